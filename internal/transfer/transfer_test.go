package transfer_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/quillsec/quill/internal/archive"
	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/codec"
	"github.com/quillsec/quill/internal/compress"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
	"github.com/quillsec/quill/internal/tester"
	"github.com/quillsec/quill/internal/transfer"
)

type fixture struct {
	store    store.Store
	blobs    *blob.Store
	exporter *transfer.Exporter
	importer *transfer.Importer

	user    *model.User
	ptype   *model.ProjectType
	project *model.Project
}

func setupProject(t *testing.T) *fixture {
	tester.Setup()
	f := &fixture{store: tester.TestStore(), blobs: tester.Blobs()}
	f.exporter = transfer.NewExporter(f.store, f.blobs)
	f.importer = transfer.NewImporter(f.store, f.blobs)
	ctx := context.TODO()

	f.user = &model.User{ID: uuid.NewString(), Name: "Pen Tester", Email: "pentest@example.com"}
	assert.NoError(t, f.store.CreateUser(ctx, f.user))

	f.ptype = &model.ProjectType{
		ID:            uuid.NewString(),
		Name:          "Web Pentest Design",
		Language:      "en-US",
		Source:        model.SourceCreated,
		FindingFields: `{"cvss":{"type":"cvss"}}`,
	}
	assert.NoError(t, f.store.CreateProjectType(ctx, f.ptype))

	f.project = &model.Project{
		ID:            uuid.NewString(),
		Name:          "Customer Web Test",
		Language:      "en-US",
		Source:        model.SourceCreated,
		Data:          `{"title":"Report"}`,
		ProjectTypeID: f.ptype.ID,
	}
	assert.NoError(t, f.store.CreateProject(ctx, f.project))

	roles, _ := model.EncodeJSON([]string{"pentester"})
	assert.NoError(t, f.store.CreateMember(ctx, &model.ProjectMember{
		ProjectID: f.project.ID, UserID: f.user.ID, Roles: roles,
	}))

	assert.NoError(t, f.store.CreateSection(ctx, &model.Section{
		ID: uuid.NewString(), ProjectID: f.project.ID, SectionID: "executive_summary",
		AssigneeID: &f.user.ID, Status: "in-progress", Data: `{"summary":"all good"}`,
	}))
	assert.NoError(t, f.store.CreateFinding(ctx, &model.Finding{
		ID: uuid.NewString(), ProjectID: f.project.ID, FindingID: "f-sqli",
		Status: "in-progress", Order: 1,
		Data: `{"description":"see ![evidence](/images/name/evidence.png)"}`,
	}))

	parent := &model.NotebookPage{
		ID: uuid.NewString(), ProjectID: f.project.ID, NoteID: "n-root", Title: "Checklist", Order: 1,
	}
	assert.NoError(t, f.store.CreateNote(ctx, parent))
	checked := true
	assert.NoError(t, f.store.CreateNote(ctx, &model.NotebookPage{
		ID: uuid.NewString(), ProjectID: f.project.ID, NoteID: "n-child",
		ParentID: &parent.ID, Title: "Recon done", Checked: &checked, Order: 2,
	}))

	f.attach(t, f.project.ID, model.AttachmentImage, "evidence.png", "png bytes")
	f.attach(t, f.project.ID, model.AttachmentImage, "unused.png", "never referenced")
	f.attach(t, f.project.ID, model.AttachmentFile, "loot.zip", "zip bytes")
	f.attach(t, f.ptype.ID, model.AttachmentAsset, "logo.svg", "svg bytes")

	return f
}

func (f *fixture) attach(t *testing.T, ownerID string, kind model.AttachmentKind, name, content string) {
	ctx := context.TODO()
	digest, _, err := f.blobs.Put(ctx, strings.NewReader(content))
	assert.NoError(t, err)
	assert.NoError(t, f.store.CreateAttachment(ctx, &model.Attachment{
		ID: uuid.NewString(), OwnerID: ownerID, Kind: kind, Name: name, Digest: digest,
	}))
}

// deleteProjectType removes a design together with its attachment rows, the
// way the service layer cascades.
func (f *fixture) deleteProjectType(t *testing.T, id string) {
	ctx := context.TODO()
	assets, err := f.store.ListAttachments(ctx, id, "")
	assert.NoError(t, err)
	for _, a := range assets {
		assert.NoError(t, f.store.DeleteAttachment(ctx, a.ID))
		assert.NoError(t, f.blobs.Decref(ctx, a.Digest))
	}
	assert.NoError(t, f.store.DeleteProjectType(ctx, id))
}

func attachmentNames(t *testing.T, st store.Store, ownerID string, kind model.AttachmentKind) []string {
	atts, err := st.ListAttachments(context.TODO(), ownerID, kind)
	assert.NoError(t, err)
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		names = append(names, a.Name)
	}
	return names
}

func TestProjectRoundTripDefault(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	assert.Len(t, created, 1)
	cp := created[0]

	assert.NotEqual(t, f.project.ID, cp.ID)
	assert.Equal(t, model.SourceImported, cp.Source)
	assert.Equal(t, f.project.Name, cp.Name)
	// the design already exists in this instance and is reused
	assert.Equal(t, f.ptype.ID, cp.ProjectTypeID)

	members, err := f.store.ListMembers(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, f.user.ID, members[0].UserID)

	sections, err := f.store.ListSections(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, sections, 1)
	assert.Equal(t, "executive_summary", sections[0].SectionID)
	assert.Equal(t, f.user.ID, *sections[0].AssigneeID)

	// default export carries neither notes nor files nor unreferenced images
	notes, err := f.store.ListNotes(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Empty(t, notes)
	assert.Empty(t, attachmentNames(t, f.store, cp.ID, model.AttachmentFile))
	assert.Equal(t, []string{"evidence.png"}, attachmentNames(t, f.store, cp.ID, model.AttachmentImage))
}

func TestProjectRoundTripExportAll(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{All: true}, f.project.ID)
	created, err := f.importer.ImportProjects(ctx, rc, compress.GZip{})
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())
	assert.Len(t, created, 1)
	cp := created[0]

	notes, err := f.store.ListNotes(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, notes, 2)
	byNoteID := map[string]*model.NotebookPage{}
	for _, n := range notes {
		byNoteID[n.NoteID] = n
	}
	// the parent tree is rebuilt over the new rows
	assert.Nil(t, byNoteID["n-root"].ParentID)
	assert.Equal(t, byNoteID["n-root"].ID, *byNoteID["n-child"].ParentID)
	assert.True(t, *byNoteID["n-child"].Checked)

	assert.ElementsMatch(t, []string{"evidence.png", "unused.png"}, attachmentNames(t, f.store, cp.ID, model.AttachmentImage))
	assert.Equal(t, []string{"loot.zip"}, attachmentNames(t, f.store, cp.ID, model.AttachmentFile))

	// shared content is refcounted, not duplicated
	atts, err := f.store.ListAttachments(ctx, cp.ID, model.AttachmentImage)
	assert.NoError(t, err)
	for _, a := range atts {
		b, err := f.store.GetBlob(ctx, a.Digest)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), b.RefCount)
	}
}

func TestProjectImportCreatesDependencyDesign(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	// simulate a fresh instance: the design is gone from the destination
	assert.NoError(t, f.store.DeleteProject(ctx, f.project.ID))
	f.deleteProjectType(t, f.ptype.ID)

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	cp := created[0]

	// the design is reconstructed under its original identifier, owned by
	// the new project
	assert.Equal(t, f.ptype.ID, cp.ProjectTypeID)
	dep, err := f.store.GetProjectType(ctx, f.ptype.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.SourceImportedDependency, dep.Source)
	assert.Equal(t, cp.ID, *dep.LinkedProjectID)
	assert.Equal(t, "Web Pentest Design", dep.Name)
	assert.Equal(t, []string{"logo.svg"}, attachmentNames(t, f.store, dep.ID, model.AttachmentAsset))
}

func TestMultiProjectImportSharesDependencyDesign(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	second := &model.Project{
		ID: uuid.NewString(), Name: "Customer Retest", Language: "en-US",
		Source: model.SourceCreated, ProjectTypeID: f.ptype.ID,
	}
	assert.NoError(t, f.store.CreateProject(ctx, second))

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID, second.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	// fresh instance: both projects and the shared design are gone
	assert.NoError(t, f.store.DeleteProject(ctx, f.project.ID))
	assert.NoError(t, f.store.DeleteProject(ctx, second.ID))
	f.deleteProjectType(t, f.ptype.ID)

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	assert.Len(t, created, 2)

	// both projects bind to the one reconstructed design
	assert.Equal(t, f.ptype.ID, created[0].ProjectTypeID)
	assert.Equal(t, f.ptype.ID, created[1].ProjectTypeID)

	// the design created for the first project keeps its asset when the
	// second project resolves against it
	assert.Equal(t, []string{"logo.svg"}, attachmentNames(t, f.store, f.ptype.ID, model.AttachmentAsset))
}

func TestExportSkipsDanglingMemberRow(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	// the user is gone but its membership row was left behind
	assert.NoError(t, f.store.DeleteUser(ctx, f.user.ID))

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	cp := created[0]

	members, err := f.store.ListMembers(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Empty(t, members)
	snapshots, err := cp.ImportedMemberList()
	assert.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestProjectImportDanglingUserSnapshot(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	assert.NoError(t, f.store.DeleteUser(ctx, f.user.ID))

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	cp := created[0]

	members, err := f.store.ListMembers(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Empty(t, members)

	snapshots, err := cp.ImportedMemberList()
	assert.NoError(t, err)
	assert.Len(t, snapshots, 1)
	assert.Equal(t, f.user.ID, snapshots[0].ID)
	assert.Equal(t, "Pen Tester", snapshots[0].Name)
	assert.Equal(t, []string{"pentester"}, snapshots[0].Roles)

	sections, err := f.store.ListSections(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Nil(t, sections[0].AssigneeID)

	// recreating the user with the same id upgrades the next import back to
	// a live membership
	assert.NoError(t, f.store.CreateUser(ctx, &model.User{ID: f.user.ID, Name: "Pen Tester"}))
	created, err = f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	cp = created[0]

	members, err = f.store.ListMembers(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, members, 1)
	snapshots, err = cp.ImportedMemberList()
	assert.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestProjectImportSnapshotsDataFieldUsers(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	// the design declares a user field; the finding references a user who is
	// neither a member nor an assignee
	reviewer := &model.User{ID: uuid.NewString(), Name: "Report Reviewer"}
	assert.NoError(t, f.store.CreateUser(ctx, reviewer))
	f.ptype.FindingFields = `{"cvss":{"type":"cvss"},"reviewer":{"type":"user"}}`
	assert.NoError(t, f.store.UpdateProjectType(ctx, f.ptype))
	assert.NoError(t, f.store.CreateFinding(ctx, &model.Finding{
		ID: uuid.NewString(), ProjectID: f.project.ID, FindingID: "f-review", Order: 3,
		Data: `{"reviewer":"` + reviewer.ID + `"}`,
	}))

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	assert.NoError(t, f.store.DeleteUser(ctx, reviewer.ID))

	created, err := f.importer.ImportProjects(ctx, bytes.NewReader(data), compress.GZip{})
	assert.NoError(t, err)
	cp := created[0]

	snapshots, err := cp.ImportedMemberList()
	assert.NoError(t, err)
	ids := make([]string, 0, len(snapshots))
	for _, m := range snapshots {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, reviewer.ID)

	// the field value keeps the original identifier
	findings, err := f.store.ListFindings(ctx, cp.ID)
	assert.NoError(t, err)
	var reviewed *model.Finding
	for _, fd := range findings {
		if fd.FindingID == "f-review" {
			reviewed = fd
		}
	}
	assert.NotNil(t, reviewed)
	assert.Contains(t, reviewed.Data, reviewer.ID)
}

func TestProjectImportDroppedTemplateReference(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	missing := uuid.NewString()
	assert.NoError(t, f.store.CreateFinding(ctx, &model.Finding{
		ID: uuid.NewString(), ProjectID: f.project.ID, FindingID: "f-xss",
		TemplateID: &missing, Order: 2,
	}))

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	created, err := f.importer.ImportProjects(ctx, rc, compress.GZip{})
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	findings, err := f.store.ListFindings(ctx, created[0].ID)
	assert.NoError(t, err)
	for _, fd := range findings {
		assert.Nil(t, fd.TemplateID)
	}
}

func TestDesignRoundTrip(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	f.ptype.ReportTemplate = "<main>{{ report.title }}</main>"
	f.ptype.ReportStyles = "main { color: red }"
	f.ptype.FindingOrdering = `[{"field":"cvss","order":"desc"}]`
	assert.NoError(t, f.store.UpdateProjectType(ctx, f.ptype))

	rc := f.exporter.ExportProjectTypes(ctx, compress.GZip{}, f.ptype.ID)
	created, err := f.importer.ImportProjectTypes(ctx, rc, compress.GZip{})
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())
	assert.Len(t, created, 1)
	cp := created[0]

	// standalone design imports get a fresh identifier
	assert.NotEqual(t, f.ptype.ID, cp.ID)
	assert.Equal(t, model.SourceImported, cp.Source)
	assert.Nil(t, cp.LinkedProjectID)
	assert.Equal(t, f.ptype.Name, cp.Name)
	assert.Equal(t, f.ptype.ReportTemplate, cp.ReportTemplate)
	assert.Equal(t, f.ptype.ReportStyles, cp.ReportStyles)
	assert.Equal(t, f.ptype.FindingFields, cp.FindingFields)
	assert.Equal(t, f.ptype.FindingOrdering, cp.FindingOrdering)
	assert.Equal(t, []string{"logo.svg"}, attachmentNames(t, f.store, cp.ID, model.AttachmentAsset))
}

func TestTemplateRoundTrip(t *testing.T) {
	tester.Setup()
	st := tester.TestStore()
	blobs := tester.Blobs()
	exporter := transfer.NewExporter(st, blobs)
	importer := transfer.NewImporter(st, blobs)
	ctx := context.TODO()

	tpl := &model.FindingTemplate{ID: uuid.NewString(), Source: model.SourceCreated, Tags: `["web"]`}
	assert.NoError(t, st.CreateTemplate(ctx, tpl))
	assert.NoError(t, st.CreateTranslation(ctx, &model.TemplateTranslation{
		ID: uuid.NewString(), TemplateID: tpl.ID, IsMain: true, Language: "en-US",
		Status: "finished", Data: `{"title":"XSS"}`,
	}))
	assert.NoError(t, st.CreateTranslation(ctx, &model.TemplateTranslation{
		ID: uuid.NewString(), TemplateID: tpl.ID, Language: "de-DE", Data: `{"title":"XSS (de)"}`,
	}))
	digest, _, err := blobs.Put(ctx, strings.NewReader("template image"))
	assert.NoError(t, err)
	assert.NoError(t, st.CreateAttachment(ctx, &model.Attachment{
		ID: uuid.NewString(), OwnerID: tpl.ID, Kind: model.AttachmentImage, Name: "poc.png", Digest: digest,
	}))

	rc := exporter.ExportTemplates(ctx, compress.GZip{}, tpl.ID)
	created, err := importer.ImportTemplates(ctx, rc, compress.GZip{})
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())
	assert.Len(t, created, 1)
	cp := created[0]

	assert.NotEqual(t, tpl.ID, cp.ID)
	assert.Equal(t, model.SourceImported, cp.Source)

	translations, err := st.ListTranslations(ctx, cp.ID)
	assert.NoError(t, err)
	assert.Len(t, translations, 2)
	mains := 0
	for _, tr := range translations {
		if tr.IsMain {
			mains++
		}
	}
	assert.Equal(t, 1, mains)

	assert.Equal(t, []string{"poc.png"}, attachmentNames(t, st, cp.ID, model.AttachmentImage))
}

func TestImportWrongArchiveKind(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	rc := f.exporter.ExportProjects(ctx, compress.GZip{}, transfer.ExportOptions{}, f.project.ID)
	projectArchive, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	_, err = f.importer.ImportTemplates(ctx, bytes.NewReader(projectArchive), compress.GZip{})
	assert.ErrorIs(t, err, codec.ErrValidation)

	tpl := &model.FindingTemplate{ID: uuid.NewString(), Source: model.SourceCreated}
	assert.NoError(t, f.store.CreateTemplate(ctx, tpl))
	assert.NoError(t, f.store.CreateTranslation(ctx, &model.TemplateTranslation{
		ID: uuid.NewString(), TemplateID: tpl.ID, IsMain: true, Language: "en-US",
	}))
	rc = f.exporter.ExportTemplates(ctx, compress.GZip{}, tpl.ID)
	templateArchive, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	_, err = f.importer.ImportProjects(ctx, bytes.NewReader(templateArchive), compress.GZip{})
	assert.ErrorIs(t, err, codec.ErrValidation)
}

func TestImportGarbageStream(t *testing.T) {
	f := setupProject(t)

	_, err := f.importer.ImportProjects(context.TODO(), strings.NewReader("not an archive"), compress.GZip{})
	assert.ErrorIs(t, err, archive.ErrFormat)
}

func TestImportTruncatedArchive(t *testing.T) {
	f := setupProject(t)

	var buf bytes.Buffer
	aw := archive.NewWriter(&buf, compress.Nop{})
	entity := []byte(`{"format":"projects/v1","padding":"` + strings.Repeat("a", 600) + `"}`)
	assert.NoError(t, aw.WriteEntry("p.json", int64(len(entity)), bytes.NewReader(entity)))
	assert.NoError(t, aw.Close())

	// cut the stream inside the entry body
	truncated := bytes.NewReader(buf.Bytes()[:700])
	_, err := f.importer.ImportProjects(context.TODO(), truncated, compress.Nop{})
	assert.ErrorIs(t, err, archive.ErrFormat)
	assert.NotErrorIs(t, err, codec.ErrValidation)
}

func TestImportFailureLeavesNoOrphanBlobs(t *testing.T) {
	f := setupProject(t)
	ctx := context.TODO()

	// an archive whose attachment bytes stream in fine but whose entity
	// entry is of the wrong kind: the transaction rolls back and the
	// spooled blob file is removed again
	content := []byte("orphan bytes")
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	var buf bytes.Buffer
	aw := archive.NewWriter(&buf, compress.GZip{})
	owner := uuid.NewString()
	assert.NoError(t, aw.WriteEntry(owner+"-images/orphan.png", int64(len(content)), bytes.NewReader(content)))
	entity := []byte(`{"format":"templates/v2","id":"` + uuid.NewString() + `"}`)
	assert.NoError(t, aw.WriteEntry(owner+".json", int64(len(entity)), bytes.NewReader(entity)))
	assert.NoError(t, aw.Close())

	_, err := f.importer.ImportProjects(ctx, &buf, compress.GZip{})
	assert.ErrorIs(t, err, codec.ErrValidation)

	_, err = f.store.GetBlob(ctx, digest)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = os.Stat("../../.test/blobs/" + digest)
	assert.True(t, os.IsNotExist(err))
}
