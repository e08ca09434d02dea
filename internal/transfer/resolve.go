package transfer

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/quillsec/quill/internal/codec"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// resolver binds archive-side references against the destination store,
// caching lookups across the entities of one import.
type resolver struct {
	tx        store.Store
	users     map[string]bool
	templates map[string]bool
}

func newResolver(tx store.Store) *resolver {
	return &resolver{
		tx:        tx,
		users:     map[string]bool{},
		templates: map[string]bool{},
	}
}

func (r *resolver) userExists(ctx context.Context, id string) (bool, error) {
	if exists, ok := r.users[id]; ok {
		return exists, nil
	}
	_, err := r.tx.GetUser(ctx, id)
	switch {
	case err == nil:
		r.users[id] = true
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		r.users[id] = false
		return false, nil
	default:
		return false, err
	}
}

func (r *resolver) templateExists(ctx context.Context, id string) (bool, error) {
	if exists, ok := r.templates[id]; ok {
		return exists, nil
	}
	_, err := r.tx.GetTemplate(ctx, id)
	switch {
	case err == nil:
		r.templates[id] = true
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		r.templates[id] = false
		return false, nil
	default:
		return false, err
	}
}

// templateRef drops a finding's template reference when the template does not
// exist in the destination. A stub is never fabricated.
func (r *resolver) templateRef(ctx context.Context, ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	exists, err := r.templateExists(ctx, *ref)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return ref, nil
}

// memberContext tracks membership resolution across one project: which users
// bound live, and which archive snapshots have to be kept on the project.
type memberContext struct {
	rows        []*model.ProjectMember
	snapshots   []model.ImportedMember
	snapshotIDs mapset.Set[string]
	known       map[string]model.ImportedMember
}

// resolveMembers binds the archive's membership against the destination.
// Users that exist become live members again; the rest stay imported
// snapshots, deduplicated by id. Re-importing after a user was recreated with
// the same id therefore upgrades the snapshot back to a live member.
func (r *resolver) resolveMembers(ctx context.Context, projectID string, b *codec.ProjectBundle) (*memberContext, error) {
	mc := &memberContext{
		snapshotIDs: mapset.NewSet[string](),
		known:       map[string]model.ImportedMember{},
	}
	seen := mapset.NewSet[string]()
	for _, m := range append(append([]model.ImportedMember{}, b.Members...), b.ImportedMembers...) {
		if m.ID == "" || seen.Contains(m.ID) {
			continue
		}
		seen.Add(m.ID)
		mc.known[m.ID] = m

		exists, err := r.userExists(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			roles, err := model.EncodeJSON(m.Roles)
			if err != nil {
				return nil, err
			}
			mc.rows = append(mc.rows, &model.ProjectMember{
				ProjectID: projectID,
				UserID:    m.ID,
				Roles:     roles,
			})
			continue
		}
		mc.snapshots = append(mc.snapshots, m)
		mc.snapshotIDs.Add(m.ID)
	}
	return mc, nil
}

// assigneeRef binds an assignee to a live user or drops it. A dropped
// assignee whose display attributes the archive carried is preserved as an
// imported snapshot on the project.
func (r *resolver) assigneeRef(ctx context.Context, mc *memberContext, ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	exists, err := r.userExists(ctx, *ref)
	if err != nil {
		return nil, err
	}
	if exists {
		return ref, nil
	}
	if m, ok := mc.known[*ref]; ok && !mc.snapshotIDs.Contains(*ref) {
		mc.snapshots = append(mc.snapshots, m)
		mc.snapshotIDs.Add(*ref)
	}
	return nil, nil
}

// userFieldIDs extracts the field ids a design definition declares with type
// "user". Definitions this codec cannot decode declare no user fields.
func userFieldIDs(definition string) mapset.Set[string] {
	ids := mapset.NewSet[string]()
	if definition == "" {
		return ids
	}
	var fields map[string]struct {
		Type string `json:"type"`
	}
	if err := model.DecodeJSON(definition, &fields); err != nil {
		return ids
	}
	for id, f := range fields {
		if f.Type == "user" {
			ids.Add(id)
		}
	}
	return ids
}

// designUserFields resolves the report and finding field ids of user type for
// a project's design, preferring the definition carried by the archive.
func designUserFields(ctx context.Context, tx store.Store, typeID string, bundles map[string]*codec.ProjectTypeBundle) (report, finding mapset.Set[string], err error) {
	var reportDef, findingDef string
	if b, ok := bundles[typeID]; ok {
		reportDef, findingDef = b.Type.ReportFields, b.Type.FindingFields
	} else {
		t, err := tx.GetProjectType(ctx, typeID)
		if err != nil {
			return nil, nil, err
		}
		reportDef, findingDef = t.ReportFields, t.FindingFields
	}
	return userFieldIDs(reportDef), userFieldIDs(findingDef), nil
}

// snapshotDataUsers scans a data column for user field values that no longer
// resolve to a live user and preserves them as imported snapshots. The field
// value itself keeps the original identifier.
func (r *resolver) snapshotDataUsers(ctx context.Context, mc *memberContext, fields mapset.Set[string], data string) error {
	if fields.Cardinality() == 0 || data == "" {
		return nil
	}
	var values map[string]any
	if err := model.DecodeJSON(data, &values); err != nil {
		return nil
	}
	for field, v := range values {
		if !fields.Contains(field) {
			continue
		}
		id, ok := v.(string)
		if !ok {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		exists, err := r.userExists(ctx, id)
		if err != nil {
			return err
		}
		if exists || mc.snapshotIDs.Contains(id) {
			continue
		}
		m, known := mc.known[id]
		if !known {
			m = model.ImportedMember{ID: id, Roles: make([]string, 0)}
		}
		mc.snapshots = append(mc.snapshots, m)
		mc.snapshotIDs.Add(id)
	}
	return nil
}

// resolveProjectType reuses a design already present in the destination, or
// creates the one carried by the archive as an imported dependency owned by
// the new project. Created dependencies keep the archive's identifier so a
// later import of the same archive finds and reuses them. created tracks the
// designs this import materialized itself: a second project sharing one is
// bound to it without dropping its spooled assets.
func resolveProjectType(ctx context.Context, tx store.Store, typeID, projectID string, bundles map[string]*codec.ProjectTypeBundle, created, dropped mapset.Set[string]) (string, error) {
	if created.Contains(typeID) {
		return typeID, nil
	}
	_, err := tx.GetProjectType(ctx, typeID)
	if err == nil {
		// a design that existed before this import keeps its attachments,
		// the spooled assets are dropped
		dropped.Add(typeID)
		return typeID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	b, ok := bundles[typeID]
	if !ok {
		return "", fmt.Errorf("%w: project references design %s not present in the archive", codec.ErrValidation, typeID)
	}
	t := b.Type
	t.Source = model.SourceImportedDependency
	t.LinkedProjectID = &projectID
	t.CopyOfID = nil
	t.ClearLock()
	if err := tx.CreateProjectType(ctx, t); err != nil {
		return "", err
	}
	created.Add(typeID)
	return t.ID, nil
}

// materializeProject writes one decoded project bundle into the destination
// store: fresh row ids everywhere, stable document ids preserved, every
// cross-reference resolved. owners collects the archive-id to new-id mapping
// for attachment materialization.
func materializeProject(ctx context.Context, tx store.Store, res *resolver, b *codec.ProjectBundle, types map[string]*codec.ProjectTypeBundle, owners map[string]string, created, dropped mapset.Set[string]) (*model.Project, error) {
	p := b.Project
	oldID := p.ID
	p.ID = uuid.NewString()
	p.Source = model.SourceImported
	p.Readonly = false
	p.CopyOfID = nil
	p.ArchivedAt = nil

	typeID, err := resolveProjectType(ctx, tx, b.ProjectTypeID, p.ID, types, created, dropped)
	if err != nil {
		return nil, err
	}
	p.ProjectTypeID = typeID
	owners[b.ProjectTypeID] = typeID

	mc, err := res.resolveMembers(ctx, p.ID, b)
	if err != nil {
		return nil, err
	}

	// assignees and user fields may add snapshots, resolve them before
	// persisting the project
	reportFields, findingFields, err := designUserFields(ctx, tx, b.ProjectTypeID, types)
	if err != nil {
		return nil, err
	}
	if err := res.snapshotDataUsers(ctx, mc, reportFields, p.Data); err != nil {
		return nil, err
	}
	for _, s := range b.Sections {
		if s.AssigneeID, err = res.assigneeRef(ctx, mc, s.AssigneeID); err != nil {
			return nil, err
		}
		if err := res.snapshotDataUsers(ctx, mc, reportFields, s.Data); err != nil {
			return nil, err
		}
	}
	for _, f := range b.Findings {
		if f.AssigneeID, err = res.assigneeRef(ctx, mc, f.AssigneeID); err != nil {
			return nil, err
		}
		if f.TemplateID, err = res.templateRef(ctx, f.TemplateID); err != nil {
			return nil, err
		}
		if err := res.snapshotDataUsers(ctx, mc, findingFields, f.Data); err != nil {
			return nil, err
		}
	}

	if err := p.SetImportedMembers(mc.snapshots); err != nil {
		return nil, err
	}
	if err := tx.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	owners[oldID] = p.ID

	for _, row := range mc.rows {
		if err := tx.CreateMember(ctx, row); err != nil {
			return nil, err
		}
	}
	for _, s := range b.Sections {
		s.ID = uuid.NewString()
		s.ProjectID = p.ID
		s.ClearLock()
		if err := tx.CreateSection(ctx, s); err != nil {
			return nil, err
		}
	}
	for _, f := range b.Findings {
		f.ID = uuid.NewString()
		f.ProjectID = p.ID
		f.ClearLock()
		if err := tx.CreateFinding(ctx, f); err != nil {
			return nil, err
		}
	}

	// notes first get rows, then the parent tree is rebuilt over stable ids
	rowByNoteID := make(map[string]string, len(b.Notes))
	for _, n := range b.Notes {
		note := n.Note
		note.ID = uuid.NewString()
		note.ProjectID = p.ID
		note.ParentID = nil
		note.ClearLock()
		if err := tx.CreateNote(ctx, note); err != nil {
			return nil, err
		}
		rowByNoteID[note.NoteID] = note.ID
	}
	for _, n := range b.Notes {
		if n.ParentNoteID == "" {
			continue
		}
		parentRow, ok := rowByNoteID[n.ParentNoteID]
		if !ok {
			return nil, fmt.Errorf("%w: note %s references unknown parent %s", codec.ErrValidation, n.Note.NoteID, n.ParentNoteID)
		}
		n.Note.ParentID = &parentRow
		if err := tx.UpdateNote(ctx, n.Note); err != nil {
			return nil, err
		}
	}

	return p, nil
}
