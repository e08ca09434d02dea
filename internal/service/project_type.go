package service

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// NewProjectTypeService creates a new ProjectTypeService.
func NewProjectTypeService(st store.Store, blobs *blob.Store) *ProjectTypeService {
	return &ProjectTypeService{
		store: st,
		blobs: blobs,
	}
}

// ProjectTypeService manages report designs.
type ProjectTypeService struct {
	store store.Store
	blobs *blob.Store
}

// CreateProjectType creates a new design.
func (s *ProjectTypeService) CreateProjectType(ctx context.Context, t *model.ProjectType) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Source == "" {
		t.Source = model.SourceCreated
	}
	return s.store.CreateProjectType(ctx, t)
}

// GetProjectType retrieves a design.
func (s *ProjectTypeService) GetProjectType(ctx context.Context, id string) (*model.ProjectType, error) {
	return s.store.GetProjectType(ctx, id)
}

// DeleteProjectType deletes a design and its assets.
func (s *ProjectTypeService) DeleteProjectType(ctx context.Context, id string) error {
	var digests []string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		digests, err = deleteOwnedAttachments(ctx, tx, s.blobs.WithStore(tx), id)
		if err != nil {
			return err
		}
		return tx.DeleteProjectType(ctx, id)
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

// AttachAsset stores the content of r as a named asset of the design.
func (s *ProjectTypeService) AttachAsset(ctx context.Context, typeID, name string, r io.Reader) (*model.Attachment, error) {
	if _, err := s.store.GetProjectType(ctx, typeID); err != nil {
		return nil, err
	}
	var att *model.Attachment
	var digest string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		digest, _, err = s.blobs.WithStore(tx).Put(ctx, r)
		if err != nil {
			return err
		}
		att = &model.Attachment{
			ID:      uuid.NewString(),
			OwnerID: typeID,
			Kind:    model.AttachmentAsset,
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
