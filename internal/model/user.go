package model

import "time"

// User holds the display attributes the reporting core needs. Identity and
// authentication live outside this module; rows here are looked up by the
// reference resolver and snapshotted into ImportedMembers when deleted.
type User struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Email  string
	Phone  string
	Mobile string

	Name        string
	TitleBefore string
	FirstName   string
	MiddleName  string
	LastName    string
	TitleAfter  string
}

// Snapshot captures the user's display attributes for an ImportedMember entry.
func (u *User) Snapshot(roles []string) ImportedMember {
	if roles == nil {
		roles = make([]string, 0)
	}
	return ImportedMember{
		ID:          u.ID,
		Roles:       roles,
		Email:       u.Email,
		Phone:       u.Phone,
		Mobile:      u.Mobile,
		Name:        u.Name,
		TitleBefore: u.TitleBefore,
		FirstName:   u.FirstName,
		MiddleName:  u.MiddleName,
		LastName:    u.LastName,
		TitleAfter:  u.TitleAfter,
	}
}
