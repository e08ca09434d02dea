package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&ProjectType{},
		&Project{},
		&ProjectMember{},
		&Section{},
		&Finding{},
		&NotebookPage{},
		&FindingTemplate{},
		&TemplateTranslation{},
		&Attachment{},
		&Blob{},
	)
}
