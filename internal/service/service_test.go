package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/service"
	"github.com/quillsec/quill/internal/store"
	"github.com/quillsec/quill/internal/tester"
)

type fixture struct {
	store  store.Store
	blobs  *blob.Store
	svc    *service.ProjectService
	copier *service.Copier

	ptype   *model.ProjectType
	project *model.Project
}

func setup(t *testing.T) *fixture {
	tester.Setup()
	f := &fixture{store: tester.TestStore(), blobs: tester.Blobs()}
	f.svc = service.NewProjectService(f.store, f.blobs)
	f.copier = service.NewCopier(f.store, f.blobs)
	ctx := context.TODO()

	f.ptype = &model.ProjectType{ID: uuid.NewString(), Name: "Web Design", Source: model.SourceCreated}
	assert.NoError(t, f.store.CreateProjectType(ctx, f.ptype))
	f.project = &model.Project{
		ID:            uuid.NewString(),
		Name:          "Customer Test",
		Source:        model.SourceCreated,
		ProjectTypeID: f.ptype.ID,
	}
	assert.NoError(t, f.store.CreateProject(ctx, f.project))
	return f
}

func TestCopyProjectSharesBlobsAndUnlocks(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	userID := uuid.NewString()
	now := time.Now()
	assert.NoError(t, f.store.CreateSection(ctx, &model.Section{
		ID: uuid.NewString(), ProjectID: f.project.ID, SectionID: "summary",
		Lockable: model.Lockable{LockedByID: &userID, LockedAt: &now},
	}))
	assert.NoError(t, f.store.CreateFinding(ctx, &model.Finding{
		ID: uuid.NewString(), ProjectID: f.project.ID, FindingID: "f-1", Order: 1,
	}))
	parent := &model.NotebookPage{ID: uuid.NewString(), ProjectID: f.project.ID, NoteID: "root", Title: "Notes"}
	assert.NoError(t, f.store.CreateNote(ctx, parent))
	assert.NoError(t, f.store.CreateNote(ctx, &model.NotebookPage{
		ID: uuid.NewString(), ProjectID: f.project.ID, NoteID: "child", ParentID: &parent.ID,
	}))

	att, err := f.svc.AttachFile(ctx, f.project.ID, model.AttachmentImage, "shot.png", strings.NewReader("image bytes"))
	assert.NoError(t, err)

	f.project.Readonly = true
	assert.NoError(t, f.store.UpdateProject(ctx, f.project))

	cp, err := f.copier.CopyProject(ctx, f.project.ID)
	assert.NoError(t, err)

	assert.NotEqual(t, f.project.ID, cp.ID)
	assert.Equal(t, f.project.ID, *cp.CopyOfID)
	assert.False(t, cp.Readonly)

	// the copy owns a design snapshot, not the original design
	snap, err := f.store.GetProjectType(ctx, cp.ProjectTypeID)
	assert.NoError(t, err)
	assert.NotEqual(t, f.ptype.ID, snap.ID)
	assert.Equal(t, model.SourceSnapshot, snap.Source)
	assert.Equal(t, cp.ID, *snap.LinkedProjectID)
	assert.Equal(t, f.ptype.ID, *snap.CopyOfID)

	sections, err := f.store.ListSections(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, sections, 1)
	assert.Equal(t, "summary", sections[0].SectionID)
	assert.Nil(t, sections[0].LockedByID)

	notes, err := f.store.ListNotes(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, notes, 2)
	byNoteID := map[string]*model.NotebookPage{}
	for _, n := range notes {
		byNoteID[n.NoteID] = n
	}
	assert.Equal(t, byNoteID["root"].ID, *byNoteID["child"].ParentID)

	// attachment content is shared, not duplicated
	atts, err := f.store.ListAttachments(ctx, cp.ID, model.AttachmentImage)
	assert.NoError(t, err)
	assert.Len(t, atts, 1)
	assert.Equal(t, att.Digest, atts[0].Digest)
	b, err := f.store.GetBlob(ctx, att.Digest)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), b.RefCount)

	// deleting the original leaves the copy's attachment readable
	assert.NoError(t, f.svc.DeleteProject(ctx, f.project.ID))
	rc, err := f.blobs.Open(ctx, att.Digest)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())
}

func TestCopyTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	tpl := &model.FindingTemplate{ID: uuid.NewString(), Source: model.SourceCreated}
	assert.NoError(t, f.store.CreateTemplate(ctx, tpl))
	assert.NoError(t, f.store.CreateTranslation(ctx, &model.TemplateTranslation{
		ID: uuid.NewString(), TemplateID: tpl.ID, IsMain: true, Language: "en-US",
	}))

	cp, err := f.copier.CopyTemplate(ctx, tpl.ID)
	assert.NoError(t, err)
	assert.Equal(t, tpl.ID, *cp.CopyOfID)

	translations, err := f.store.ListTranslations(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, translations, 1)
	assert.True(t, translations[0].IsMain)
}

func TestDeleteProjectCascadesDependencyDesign(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	dep := &model.ProjectType{
		ID: uuid.NewString(), Name: "Imported Design",
		Source: model.SourceImportedDependency, LinkedProjectID: &f.project.ID,
	}
	assert.NoError(t, f.store.CreateProjectType(ctx, dep))
	f.project.ProjectTypeID = dep.ID
	assert.NoError(t, f.store.UpdateProject(ctx, f.project))

	att, err := f.svc.AttachFile(ctx, f.project.ID, model.AttachmentFile, "dump.txt", strings.NewReader("dump"))
	assert.NoError(t, err)

	assert.NoError(t, f.svc.DeleteProject(ctx, f.project.ID))

	_, err = f.store.GetProject(ctx, f.project.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	// the exclusively linked design dies with its project
	_, err = f.store.GetProjectType(ctx, dep.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	// the last blob reference is gone
	_, err = f.store.GetBlob(ctx, att.Digest)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProjectKeepsSharedDependencyDesign(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	dep := &model.ProjectType{
		ID: uuid.NewString(), Name: "Shared Design",
		Source: model.SourceImportedDependency, LinkedProjectID: &f.project.ID,
	}
	assert.NoError(t, f.store.CreateProjectType(ctx, dep))
	f.project.ProjectTypeID = dep.ID
	assert.NoError(t, f.store.UpdateProject(ctx, f.project))

	other := &model.Project{ID: uuid.NewString(), Name: "Other", ProjectTypeID: dep.ID}
	assert.NoError(t, f.store.CreateProject(ctx, other))

	assert.NoError(t, f.svc.DeleteProject(ctx, f.project.ID))

	// the design survives with its link cleared
	kept, err := f.store.GetProjectType(ctx, dep.ID)
	assert.NoError(t, err)
	assert.Nil(t, kept.LinkedProjectID)
}

func TestAttachFileSanitizesName(t *testing.T) {
	f := setup(t)

	att, err := f.svc.AttachFile(context.TODO(), f.project.ID, model.AttachmentImage, "../../e*vil.png", strings.NewReader("x"))
	assert.NoError(t, err)
	assert.Equal(t, "e-vil.png", att.Name)
}

func TestAttachFileReadonlyProject(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	f.project.Readonly = true
	assert.NoError(t, f.store.UpdateProject(ctx, f.project))

	_, err := f.svc.AttachFile(ctx, f.project.ID, model.AttachmentImage, "x.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, service.ErrReadonly)
}

func TestRetentionSweeps(t *testing.T) {
	f := setup(t)
	ctx := context.TODO()

	// fresh project: untouched by both sweeps
	n, err := f.svc.ArchiveStaleProjects(ctx, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.ArchiveStaleProjects(ctx, time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := f.store.GetProject(ctx, f.project.ID)
	assert.NoError(t, err)
	assert.NotNil(t, p.ArchivedAt)

	// already archived projects are not archived twice
	n, err = f.svc.ArchiveStaleProjects(ctx, time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.PurgeArchivedProjects(ctx, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.PurgeArchivedProjects(ctx, time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.GetProject(ctx, f.project.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
