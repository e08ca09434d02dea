package store

import (
	"context"
	"errors"
	"time"

	"github.com/quillsec/quill/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

// wrapNotFound maps gorm's record-not-found onto the store sentinel.
func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *GormStore) CreateProject(ctx context.Context, p *model.Project) error {
	return g.db.WithContext(ctx).Create(p).Error
}

func (g *GormStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (g *GormStore) UpdateProject(ctx context.Context, p *model.Project) error {
	return g.db.WithContext(ctx).Save(p).Error
}

func (g *GormStore) DeleteProject(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Project{}).Error
}

func (g *GormStore) ListStaleProjects(ctx context.Context, cutoff time.Time) ([]*model.Project, error) {
	var projects []*model.Project
	err := g.db.WithContext(ctx).
		Where("archived_at IS NULL AND updated_at < ?", cutoff).
		Find(&projects).Error
	return projects, err
}

func (g *GormStore) ListArchivedProjectsBefore(ctx context.Context, cutoff time.Time) ([]*model.Project, error) {
	var projects []*model.Project
	err := g.db.WithContext(ctx).
		Where("archived_at IS NOT NULL AND archived_at < ?", cutoff).
		Find(&projects).Error
	return projects, err
}

func (g *GormStore) CountProjectsByType(ctx context.Context, typeID, excludeProjectID string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.Project{}).
		Where("project_type_id = ? AND id <> ?", typeID, excludeProjectID).
		Count(&count).Error
	return count, err
}

func (g *GormStore) CreateSection(ctx context.Context, s *model.Section) error {
	return g.db.WithContext(ctx).Create(s).Error
}

func (g *GormStore) ListSections(ctx context.Context, projectID string) ([]*model.Section, error) {
	var sections []*model.Section
	err := g.db.WithContext(ctx).Where("project_id = ?", projectID).Order("section_id").Find(&sections).Error
	return sections, err
}

func (g *GormStore) UpdateSection(ctx context.Context, s *model.Section) error {
	return g.db.WithContext(ctx).Save(s).Error
}

func (g *GormStore) DeleteProjectSections(ctx context.Context, projectID string) error {
	return g.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.Section{}).Error
}

func (g *GormStore) CreateFinding(ctx context.Context, f *model.Finding) error {
	return g.db.WithContext(ctx).Create(f).Error
}

func (g *GormStore) ListFindings(ctx context.Context, projectID string) ([]*model.Finding, error) {
	var findings []*model.Finding
	err := g.db.WithContext(ctx).Where("project_id = ?", projectID).Order("finding_id").Find(&findings).Error
	return findings, err
}

func (g *GormStore) UpdateFinding(ctx context.Context, f *model.Finding) error {
	return g.db.WithContext(ctx).Save(f).Error
}

func (g *GormStore) DeleteProjectFindings(ctx context.Context, projectID string) error {
	return g.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.Finding{}).Error
}

func (g *GormStore) CreateNote(ctx context.Context, n *model.NotebookPage) error {
	return g.db.WithContext(ctx).Create(n).Error
}

func (g *GormStore) ListNotes(ctx context.Context, projectID string) ([]*model.NotebookPage, error) {
	var notes []*model.NotebookPage
	err := g.db.WithContext(ctx).Where("project_id = ?", projectID).Order("note_id").Find(&notes).Error
	return notes, err
}

func (g *GormStore) UpdateNote(ctx context.Context, n *model.NotebookPage) error {
	return g.db.WithContext(ctx).Save(n).Error
}

func (g *GormStore) DeleteProjectNotes(ctx context.Context, projectID string) error {
	return g.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.NotebookPage{}).Error
}

func (g *GormStore) CreateMember(ctx context.Context, m *model.ProjectMember) error {
	return g.db.WithContext(ctx).Create(m).Error
}

func (g *GormStore) ListMembers(ctx context.Context, projectID string) ([]*model.ProjectMember, error) {
	var members []*model.ProjectMember
	err := g.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&members).Error
	return members, err
}

func (g *GormStore) DeleteProjectMembers(ctx context.Context, projectID string) error {
	return g.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.ProjectMember{}).Error
}

func (g *GormStore) CreateProjectType(ctx context.Context, t *model.ProjectType) error {
	return g.db.WithContext(ctx).Create(t).Error
}

func (g *GormStore) GetProjectType(ctx context.Context, id string) (*model.ProjectType, error) {
	var t model.ProjectType
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

func (g *GormStore) UpdateProjectType(ctx context.Context, t *model.ProjectType) error {
	return g.db.WithContext(ctx).Save(t).Error
}

func (g *GormStore) DeleteProjectType(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ProjectType{}).Error
}

func (g *GormStore) ListLinkedProjectTypes(ctx context.Context, projectID string) ([]*model.ProjectType, error) {
	var types []*model.ProjectType
	err := g.db.WithContext(ctx).Where("linked_project_id = ?", projectID).Find(&types).Error
	return types, err
}

func (g *GormStore) CreateTemplate(ctx context.Context, t *model.FindingTemplate) error {
	return g.db.WithContext(ctx).Create(t).Error
}

func (g *GormStore) GetTemplate(ctx context.Context, id string) (*model.FindingTemplate, error) {
	var t model.FindingTemplate
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

func (g *GormStore) UpdateTemplate(ctx context.Context, t *model.FindingTemplate) error {
	return g.db.WithContext(ctx).Save(t).Error
}

func (g *GormStore) DeleteTemplate(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FindingTemplate{}).Error
}

func (g *GormStore) CreateTranslation(ctx context.Context, tr *model.TemplateTranslation) error {
	return g.db.WithContext(ctx).Create(tr).Error
}

func (g *GormStore) ListTranslations(ctx context.Context, templateID string) ([]*model.TemplateTranslation, error) {
	var translations []*model.TemplateTranslation
	err := g.db.WithContext(ctx).Where("template_id = ?", templateID).Order("is_main desc, language").Find(&translations).Error
	return translations, err
}

func (g *GormStore) DeleteTemplateTranslations(ctx context.Context, templateID string) error {
	return g.db.WithContext(ctx).Where("template_id = ?", templateID).Delete(&model.TemplateTranslation{}).Error
}

func (g *GormStore) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	return g.db.WithContext(ctx).Create(a).Error
}

func (g *GormStore) GetAttachment(ctx context.Context, id string) (*model.Attachment, error) {
	var a model.Attachment
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

func (g *GormStore) ListAttachments(ctx context.Context, ownerID string, kind model.AttachmentKind) ([]*model.Attachment, error) {
	var attachments []*model.Attachment
	q := g.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Order("name").Find(&attachments).Error
	return attachments, err
}

func (g *GormStore) DeleteAttachment(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Attachment{}).Error
}

func (g *GormStore) GetBlob(ctx context.Context, digest string) (*model.Blob, error) {
	var b model.Blob
	err := g.db.WithContext(ctx).Where("digest = ?", digest).First(&b).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &b, nil
}

func (g *GormStore) IncrefBlob(ctx context.Context, digest string, size int64) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "digest"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"ref_count": gorm.Expr("ref_count + 1"),
		}),
	}).Create(&model.Blob{Digest: digest, Size: size, RefCount: 1}).Error
}

func (g *GormStore) DecrefBlob(ctx context.Context, digest string) (int64, error) {
	res := g.db.WithContext(ctx).Model(&model.Blob{}).
		Where("digest = ?", digest).
		UpdateColumn("ref_count", gorm.Expr("ref_count - 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var b model.Blob
	if err := g.db.WithContext(ctx).Where("digest = ?", digest).First(&b).Error; err != nil {
		return 0, wrapNotFound(err)
	}
	if b.RefCount <= 0 {
		if err := g.db.WithContext(ctx).Where("digest = ?", digest).Delete(&model.Blob{}).Error; err != nil {
			return 0, err
		}
		return 0, nil
	}
	return b.RefCount, nil
}

func (g *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	return g.db.WithContext(ctx).Create(u).Error
}

func (g *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (g *GormStore) DeleteUser(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{}).Error
}

func (g *GormStore) GetLock(ctx context.Context, table, id string) (*model.Lockable, error) {
	var l model.Lockable
	err := g.db.WithContext(ctx).Table(table).
		Select("locked_by_id", "locked_at").
		Where("id = ?", id).
		Take(&l).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &l, nil
}

func (g *GormStore) SetLock(ctx context.Context, table, id string, prev, next *model.Lockable) (bool, error) {
	q := g.db.WithContext(ctx).Table(table).Where("id = ?", id)
	if prev.LockedByID == nil {
		q = q.Where("locked_by_id IS NULL")
	} else {
		q = q.Where("locked_by_id = ?", *prev.LockedByID)
	}
	if prev.LockedAt == nil {
		q = q.Where("locked_at IS NULL")
	} else {
		q = q.Where("locked_at = ?", *prev.LockedAt)
	}
	res := q.Updates(map[string]interface{}{
		"locked_by_id": next.LockedByID,
		"locked_at":    next.LockedAt,
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// a missed write is either a lost race or a missing row
	var count int64
	if err := g.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}
