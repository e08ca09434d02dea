package model

// SourceEnum records how a document root came into existence.
type SourceEnum string

const (
	// SourceCreated marks entities created directly in this instance.
	SourceCreated SourceEnum = "created"
	// SourceImported marks root entities created by an archive import.
	SourceImported SourceEnum = "imported"
	// SourceImportedDependency marks a project type that exists only because a
	// project import pulled it in. It is owned by exactly one project.
	SourceImportedDependency SourceEnum = "imported_dependency"
	// SourceSnapshot marks a project type cloned together with its project.
	SourceSnapshot SourceEnum = "snapshot"
)
