package model

import "time"

// AttachmentKind distinguishes the logical directories attachments live in.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "images"
	AttachmentAsset AttachmentKind = "assets"
	AttachmentFile  AttachmentKind = "files"
)

// Attachment is a named binary owned by a document root or sub-entity. The
// bytes live in the blob store keyed by content digest; multiple rows may
// reference the same blob and the blob outlives any single row.
type Attachment struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	OwnerID string         `gorm:"uuid;not null;index"`
	Kind    AttachmentKind `gorm:"not null"`
	// Name is sanitized before storage, see SanitizeFileName.
	Name   string `gorm:"not null"`
	Digest string `gorm:"not null;index"`
}

// Blob is the reference-counted record of stored content. The file is
// physically removed only when RefCount drops to zero.
type Blob struct {
	Digest    string `gorm:"primaryKey;not null"`
	CreatedAt time.Time

	Size     int64
	RefCount int64 `gorm:"not null;default:0"`
}
