package model

import "time"

// ProjectType is a report design: the field definitions, ordering rules and
// rendering templates a project is built against.
type ProjectType struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string `gorm:"not null"`
	Language string
	Source   SourceEnum `gorm:"not null;default:created"`

	// LinkedProjectID is set when Source is imported_dependency: the project
	// that exclusively owns this type. Deleting that project cascades to the
	// type unless another project still uses it, in which case the link is
	// cleared instead.
	LinkedProjectID *string `gorm:"uuid;index"`
	CopyOfID        *string `gorm:"uuid"`

	// JSON columns holding the design definition.
	ReportFields      string
	ReportSections    string
	FindingFields     string
	FindingFieldOrder string
	FindingOrdering   string

	ReportTemplate    string
	ReportStyles      string
	ReportPreviewData string

	Lockable
}
