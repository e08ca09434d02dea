package store

import (
	"context"
	"errors"
	"time"

	"github.com/quillsec/quill/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
)

type Store interface {
	ProjectStore
	ProjectTypeStore
	TemplateStore
	AttachmentStore
	UserStore
	LockStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type ProjectStore interface {
	// CreateProject creates a new project row.
	CreateProject(ctx context.Context, p *model.Project) error
	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, id string) (*model.Project, error)
	// UpdateProject saves a project row.
	UpdateProject(ctx context.Context, p *model.Project) error
	// DeleteProject removes the project row only; cascading is the caller's job.
	DeleteProject(ctx context.Context, id string) error
	// ListStaleProjects returns unarchived projects not updated since cutoff.
	ListStaleProjects(ctx context.Context, cutoff time.Time) ([]*model.Project, error)
	// ListArchivedProjectsBefore returns projects archived before cutoff.
	ListArchivedProjectsBefore(ctx context.Context, cutoff time.Time) ([]*model.Project, error)
	// CountProjectsByType counts projects using a project type, excluding one project.
	CountProjectsByType(ctx context.Context, typeID, excludeProjectID string) (int64, error)

	CreateSection(ctx context.Context, s *model.Section) error
	ListSections(ctx context.Context, projectID string) ([]*model.Section, error)
	UpdateSection(ctx context.Context, s *model.Section) error
	DeleteProjectSections(ctx context.Context, projectID string) error

	CreateFinding(ctx context.Context, f *model.Finding) error
	ListFindings(ctx context.Context, projectID string) ([]*model.Finding, error)
	UpdateFinding(ctx context.Context, f *model.Finding) error
	DeleteProjectFindings(ctx context.Context, projectID string) error

	CreateNote(ctx context.Context, n *model.NotebookPage) error
	ListNotes(ctx context.Context, projectID string) ([]*model.NotebookPage, error)
	UpdateNote(ctx context.Context, n *model.NotebookPage) error
	DeleteProjectNotes(ctx context.Context, projectID string) error

	CreateMember(ctx context.Context, m *model.ProjectMember) error
	ListMembers(ctx context.Context, projectID string) ([]*model.ProjectMember, error)
	DeleteProjectMembers(ctx context.Context, projectID string) error
}

type ProjectTypeStore interface {
	CreateProjectType(ctx context.Context, t *model.ProjectType) error
	GetProjectType(ctx context.Context, id string) (*model.ProjectType, error)
	UpdateProjectType(ctx context.Context, t *model.ProjectType) error
	DeleteProjectType(ctx context.Context, id string) error
	// ListLinkedProjectTypes returns types whose LinkedProjectID is projectID.
	ListLinkedProjectTypes(ctx context.Context, projectID string) ([]*model.ProjectType, error)
}

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *model.FindingTemplate) error
	GetTemplate(ctx context.Context, id string) (*model.FindingTemplate, error)
	UpdateTemplate(ctx context.Context, t *model.FindingTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	CreateTranslation(ctx context.Context, tr *model.TemplateTranslation) error
	ListTranslations(ctx context.Context, templateID string) ([]*model.TemplateTranslation, error)
	DeleteTemplateTranslations(ctx context.Context, templateID string) error
}

type AttachmentStore interface {
	CreateAttachment(ctx context.Context, a *model.Attachment) error
	GetAttachment(ctx context.Context, id string) (*model.Attachment, error)
	// ListAttachments returns the attachments owned by an entity, optionally
	// filtered by kind (empty kind means all).
	ListAttachments(ctx context.Context, ownerID string, kind model.AttachmentKind) ([]*model.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	// GetBlob retrieves a blob record by content digest.
	GetBlob(ctx context.Context, digest string) (*model.Blob, error)
	// IncrefBlob creates the blob record with a reference count of one, or
	// increments the count when the digest already exists. Atomic.
	IncrefBlob(ctx context.Context, digest string, size int64) error
	// DecrefBlob decrements the reference count and deletes the record at
	// zero. Returns the remaining count. Atomic.
	DecrefBlob(ctx context.Context, digest string) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// LockStore reads and writes the lease columns of a lockable table. The table
// name addresses the entity kind; id is the row's primary key.
type LockStore interface {
	GetLock(ctx context.Context, table, id string) (*model.Lockable, error)
	// SetLock writes the lease columns only while they still hold prev,
	// reporting whether the row was updated. A false return with nil error
	// means another writer changed the lease in between. ErrNotFound when
	// the row does not exist.
	SetLock(ctx context.Context, table, id string, prev, next *model.Lockable) (bool, error)
}
