package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// NewCopier creates a new Copier.
func NewCopier(st store.Store, blobs *blob.Store) *Copier {
	return &Copier{
		store: st,
		blobs: blobs,
	}
}

// Copier produces independent duplicates of document roots in the same store.
// Copies get fresh row ids but keep the stable document ids, come out
// unlocked and writable, and share attachment content through the blob
// reference counts instead of duplicating bytes.
type Copier struct {
	store store.Store
	blobs *blob.Store
}

// CopyProject clones a project together with a snapshot of its design. The
// snapshot is a separate design row with source snapshot, linked to the new
// project, so later edits of the original design never affect the copy.
func (c *Copier) CopyProject(ctx context.Context, id string) (*model.Project, error) {
	var cp *model.Project
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		orig, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		origType, err := tx.GetProjectType(ctx, orig.ProjectTypeID)
		if err != nil {
			return err
		}
		blobs := c.blobs.WithStore(tx)

		p := *orig
		p.ID = uuid.NewString()
		p.CopyOfID = &orig.ID
		p.Readonly = false
		p.ArchivedAt = nil

		snap := *origType
		snap.ID = uuid.NewString()
		snap.Source = model.SourceSnapshot
		snap.LinkedProjectID = &p.ID
		snap.CopyOfID = &origType.ID
		snap.ClearLock()
		if err := tx.CreateProjectType(ctx, &snap); err != nil {
			return err
		}
		if err := copyAttachments(ctx, tx, blobs, origType.ID, snap.ID); err != nil {
			return err
		}

		p.ProjectTypeID = snap.ID
		if err := tx.CreateProject(ctx, &p); err != nil {
			return err
		}

		members, err := tx.ListMembers(ctx, orig.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			row := *m
			row.ProjectID = p.ID
			if err := tx.CreateMember(ctx, &row); err != nil {
				return err
			}
		}

		sections, err := tx.ListSections(ctx, orig.ID)
		if err != nil {
			return err
		}
		for _, s := range sections {
			cs := *s
			cs.ID = uuid.NewString()
			cs.ProjectID = p.ID
			cs.ClearLock()
			if err := tx.CreateSection(ctx, &cs); err != nil {
				return err
			}
		}

		findings, err := tx.ListFindings(ctx, orig.ID)
		if err != nil {
			return err
		}
		for _, f := range findings {
			cf := *f
			cf.ID = uuid.NewString()
			cf.ProjectID = p.ID
			cf.ClearLock()
			if err := tx.CreateFinding(ctx, &cf); err != nil {
				return err
			}
		}

		if err := copyNotes(ctx, tx, orig.ID, p.ID); err != nil {
			return err
		}
		if err := copyAttachments(ctx, tx, blobs, orig.ID, p.ID); err != nil {
			return err
		}

		cp = &p
		logrus.Infof("copied project %s (%s -> %s)", orig.Name, orig.ID, p.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// CopyProjectType clones a standalone design with a copy_of back-reference.
func (c *Copier) CopyProjectType(ctx context.Context, id string) (*model.ProjectType, error) {
	var cp *model.ProjectType
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		orig, err := tx.GetProjectType(ctx, id)
		if err != nil {
			return err
		}
		t := *orig
		t.ID = uuid.NewString()
		t.CopyOfID = &orig.ID
		t.ClearLock()
		if err := tx.CreateProjectType(ctx, &t); err != nil {
			return err
		}
		if err := copyAttachments(ctx, tx, c.blobs.WithStore(tx), orig.ID, t.ID); err != nil {
			return err
		}
		cp = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// CopyTemplate clones a finding template with its translations and images.
func (c *Copier) CopyTemplate(ctx context.Context, id string) (*model.FindingTemplate, error) {
	var cp *model.FindingTemplate
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		orig, err := tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		t := *orig
		t.ID = uuid.NewString()
		t.CopyOfID = &orig.ID
		t.ClearLock()
		if err := tx.CreateTemplate(ctx, &t); err != nil {
			return err
		}

		translations, err := tx.ListTranslations(ctx, orig.ID)
		if err != nil {
			return err
		}
		for _, tr := range translations {
			ct := *tr
			ct.ID = uuid.NewString()
			ct.TemplateID = t.ID
			if err := tx.CreateTranslation(ctx, &ct); err != nil {
				return err
			}
		}
		if err := copyAttachments(ctx, tx, c.blobs.WithStore(tx), orig.ID, t.ID); err != nil {
			return err
		}
		cp = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// copyNotes clones the notebook tree, rebuilding parent links over the new
// rows via the stable note ids.
func copyNotes(ctx context.Context, tx store.Store, fromProject, toProject string) error {
	notes, err := tx.ListNotes(ctx, fromProject)
	if err != nil {
		return err
	}
	noteIDByRow := make(map[string]string, len(notes))
	for _, n := range notes {
		noteIDByRow[n.ID] = n.NoteID
	}

	rowByNoteID := make(map[string]string, len(notes))
	clones := make([]*model.NotebookPage, 0, len(notes))
	for _, n := range notes {
		cn := *n
		cn.ID = uuid.NewString()
		cn.ProjectID = toProject
		cn.ParentID = nil
		cn.ClearLock()
		if err := tx.CreateNote(ctx, &cn); err != nil {
			return err
		}
		rowByNoteID[cn.NoteID] = cn.ID
		clones = append(clones, &cn)
	}
	for i, n := range notes {
		if n.ParentID == nil {
			continue
		}
		parentRow := rowByNoteID[noteIDByRow[*n.ParentID]]
		clones[i].ParentID = &parentRow
		if err := tx.UpdateNote(ctx, clones[i]); err != nil {
			return err
		}
	}
	return nil
}

// copyAttachments clones every attachment row of fromOwner onto toOwner,
// taking one more reference on the shared content.
func copyAttachments(ctx context.Context, tx store.Store, blobs *blob.Store, fromOwner, toOwner string) error {
	atts, err := tx.ListAttachments(ctx, fromOwner, "")
	if err != nil {
		return err
	}
	for _, a := range atts {
		if err := blobs.Incref(ctx, a.Digest); err != nil {
			return err
		}
		ca := *a
		ca.ID = uuid.NewString()
		ca.OwnerID = toOwner
		if err := tx.CreateAttachment(ctx, &ca); err != nil {
			return err
		}
	}
	return nil
}
