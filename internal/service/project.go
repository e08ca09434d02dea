// Package service holds the entity lifecycle operations above the store:
// create, delete with cascade rules, attachment handling, copies and the
// retention sweeps.
package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// NewProjectService creates a new ProjectService.
func NewProjectService(st store.Store, blobs *blob.Store) *ProjectService {
	return &ProjectService{
		store: st,
		blobs: blobs,
	}
}

// ProjectService manages the project lifecycle.
type ProjectService struct {
	store store.Store
	blobs *blob.Store
}

// CreateProject creates a new project.
func (s *ProjectService) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Source == "" {
		p.Source = model.SourceCreated
	}
	return s.store.CreateProject(ctx, p)
}

// GetProject retrieves a project.
func (s *ProjectService) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

// DeleteProject deletes a project and everything it owns: sections, findings,
// notes, members, attachments, and any design that exists only as this
// project's imported dependency. A dependency design another project also
// uses survives with its project link cleared.
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	var digests []string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		blobs := s.blobs.WithStore(tx)

		linked, err := tx.ListLinkedProjectTypes(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range linked {
			others, err := tx.CountProjectsByType(ctx, t.ID, id)
			if err != nil {
				return err
			}
			if others > 0 {
				t.LinkedProjectID = nil
				if err := tx.UpdateProjectType(ctx, t); err != nil {
					return err
				}
				continue
			}
			d, err := deleteOwnedAttachments(ctx, tx, blobs, t.ID)
			if err != nil {
				return err
			}
			digests = append(digests, d...)
			if err := tx.DeleteProjectType(ctx, t.ID); err != nil {
				return err
			}
		}

		d, err := deleteOwnedAttachments(ctx, tx, blobs, id)
		if err != nil {
			return err
		}
		digests = append(digests, d...)

		if err := tx.DeleteProjectSections(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteProjectFindings(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteProjectNotes(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteProjectMembers(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteProject(ctx, id); err != nil {
			return err
		}
		logrus.Infof("deleted project %s (%s)", p.Name, p.ID)
		return nil
	})
	if err != nil {
		return err
	}
	for _, d := range digests {
		if err := s.blobs.RemoveIfUnreferenced(ctx, d); err != nil {
			logrus.Warnf("cleanup of blob %s failed: %v", d, err)
		}
	}
	return nil
}

// AttachFile stores the content of r as a named attachment of the project.
// The name is sanitized before use.
func (s *ProjectService) AttachFile(ctx context.Context, projectID string, kind model.AttachmentKind, name string, r io.Reader) (*model.Attachment, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Readonly {
		return nil, ErrReadonly
	}

	var att *model.Attachment
	var digest string
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		digest, _, err = s.blobs.WithStore(tx).Put(ctx, r)
		if err != nil {
			return err
		}
		att = &model.Attachment{
			ID:      uuid.NewString(),
			OwnerID: projectID,
			Kind:    kind,
			Name:    model.SanitizeFileName(name),
			Digest:  digest,
		}
		return tx.CreateAttachment(ctx, att)
	})
	if err != nil {
		if digest != "" {
			_ = s.blobs.RemoveIfUnreferenced(ctx, digest)
		}
		return nil, err
	}
	return att, nil
}

// OpenAttachment returns the bytes of an attachment.
func (s *ProjectService) OpenAttachment(ctx context.Context, attachmentID string) (io.ReadCloser, error) {
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	return s.blobs.Open(ctx, att.Digest)
}

// DeleteAttachment removes an attachment row and drops its blob reference.
func (s *ProjectService) DeleteAttachment(ctx context.Context, attachmentID string) error {
	var digest string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		att, err := tx.GetAttachment(ctx, attachmentID)
		if err != nil {
			return err
		}
		digest = att.Digest
		if err := tx.DeleteAttachment(ctx, att.ID); err != nil {
			return err
		}
		return s.blobs.WithStore(tx).Decref(ctx, digest)
	})
	if err != nil {
		return err
	}
	return s.blobs.RemoveIfUnreferenced(ctx, digest)
}

// ArchiveStaleProjects marks projects untouched since cutoff as archived.
// Returns the number of projects archived.
func (s *ProjectService) ArchiveStaleProjects(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.ListStaleProjects(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	for _, p := range stale {
		p.ArchivedAt = &now
		if err := s.store.UpdateProject(ctx, p); err != nil {
			return 0, err
		}
		logrus.Infof("archived stale project %s (%s)", p.Name, p.ID)
	}
	return len(stale), nil
}

// PurgeArchivedProjects deletes projects that have been archived since before
// cutoff. Returns the number of projects deleted.
func (s *ProjectService) PurgeArchivedProjects(ctx context.Context, cutoff time.Time) (int, error) {
	archived, err := s.store.ListArchivedProjectsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, p := range archived {
		if err := s.DeleteProject(ctx, p.ID); err != nil {
			return 0, err
		}
	}
	return len(archived), nil
}

// deleteOwnedAttachments removes every attachment row of an owner and drops
// the blob references. The returned digests need a physical cleanup check
// once the transaction is done.
func deleteOwnedAttachments(ctx context.Context, tx store.Store, blobs *blob.Store, ownerID string) ([]string, error) {
	atts, err := tx.ListAttachments(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	digests := make([]string, 0, len(atts))
	for _, a := range atts {
		if err := tx.DeleteAttachment(ctx, a.ID); err != nil {
			return nil, err
		}
		if err := blobs.Decref(ctx, a.Digest); err != nil {
			return nil, err
		}
		digests = append(digests, a.Digest)
	}
	return digests, nil
}
