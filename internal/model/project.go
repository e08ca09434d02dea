package model

import "time"

// Project is the root entity of a pentest report. It exclusively owns its
// sections, findings, notebook pages, members and attachments.
type Project struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string `gorm:"not null"`
	Language string
	Source   SourceEnum `gorm:"not null;default:created"`
	Readonly bool

	// Tags is a JSON array of strings.
	Tags string
	// Data is the JSON object of custom report fields.
	Data string
	// UnknownCustomFields preserves fields a newer archive carried that this
	// instance does not understand, so they survive a round trip.
	UnknownCustomFields string
	// ImportedMembers is a JSON array of ImportedMember snapshots for users
	// that no longer exist in this instance.
	ImportedMembers string

	OverrideFindingOrdering bool

	ProjectTypeID string  `gorm:"uuid;not null;index"`
	CopyOfID      *string `gorm:"uuid"`

	// ArchivedAt is set by the retention job when a stale project is archived.
	ArchivedAt *time.Time
}

// ImportedMember is the inlined historical copy of a user kept on a project
// when the live user record is gone. It preserves the original identifier,
// role set and display attributes.
type ImportedMember struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Mobile      string   `json:"mobile"`
	Name        string   `json:"name"`
	TitleBefore string   `json:"title_before"`
	FirstName   string   `json:"first_name"`
	MiddleName  string   `json:"middle_name"`
	LastName    string   `json:"last_name"`
	TitleAfter  string   `json:"title_after"`
}

// ImportedMemberList decodes the ImportedMembers column.
func (p *Project) ImportedMemberList() ([]ImportedMember, error) {
	members := make([]ImportedMember, 0)
	if err := DecodeJSON(p.ImportedMembers, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// SetImportedMembers encodes snapshots into the ImportedMembers column.
func (p *Project) SetImportedMembers(members []ImportedMember) error {
	if members == nil {
		members = make([]ImportedMember, 0)
	}
	data, err := EncodeJSON(members)
	if err != nil {
		return err
	}
	p.ImportedMembers = data
	return nil
}

// TagList decodes the Tags column.
func (p *Project) TagList() ([]string, error) {
	tags := make([]string, 0)
	if err := DecodeJSON(p.Tags, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// ProjectMember links a user to a project with a set of roles.
type ProjectMember struct {
	ProjectID string `gorm:"primaryKey;uuid;not null"`
	UserID    string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	// Roles is a JSON array of role names.
	Roles string
}

// RoleList decodes the Roles column.
func (m *ProjectMember) RoleList() ([]string, error) {
	roles := make([]string, 0)
	if err := DecodeJSON(m.Roles, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// Section is a report section of a project. SectionID is the stable
// document-level identifier preserved across export, import and copy.
type Section struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ProjectID  string `gorm:"uuid;not null;index"`
	SectionID  string `gorm:"not null"`
	AssigneeID *string `gorm:"uuid"`
	Status     string
	// Data is the JSON object of section fields.
	Data string

	Lockable
}

// Finding is a vulnerability finding of a project. FindingID is the stable
// document-level identifier preserved across export, import and copy.
type Finding struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ProjectID  string `gorm:"uuid;not null;index"`
	FindingID  string `gorm:"not null"`
	AssigneeID *string `gorm:"uuid"`
	// TemplateID references the finding template this finding was created
	// from. Left nil when the template does not exist in this instance.
	TemplateID *string `gorm:"uuid"`
	Status     string
	Order      int
	// Data is the JSON object of finding fields.
	Data string

	Lockable
}

// NotebookPage is a project note. Pages form a tree via ParentID; the parent
// relation is preserved by NoteID across copy and import.
type NotebookPage struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ProjectID string  `gorm:"uuid;not null;index"`
	NoteID    string  `gorm:"not null"`
	ParentID  *string `gorm:"uuid"`

	Title       string
	Text        string
	Checked     *bool
	IconEmoji   string
	StatusEmoji string
	Order       int

	Lockable
}
