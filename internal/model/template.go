package model

import "time"

// FindingTemplate is a reusable finding description with one translation per
// language. Exactly one translation is flagged as main.
type FindingTemplate struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Source SourceEnum `gorm:"not null;default:created"`
	// Tags is a JSON array of strings.
	Tags string

	CopyOfID *string `gorm:"uuid"`

	Lockable
}

// TagList decodes the Tags column.
func (t *FindingTemplate) TagList() ([]string, error) {
	tags := make([]string, 0)
	if err := DecodeJSON(t.Tags, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// TemplateTranslation is the per-language content of a finding template.
type TemplateTranslation struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TemplateID string `gorm:"uuid;not null;index"`
	IsMain     bool
	Language   string `gorm:"not null"`
	Status     string
	// Data is the JSON object of translated finding fields.
	Data string
}
