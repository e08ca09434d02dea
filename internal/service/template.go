package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/cache"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

func templateKey(id string) string {
	return "template:" + id
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(st store.Store, blobs *blob.Store, kv *cache.KV) *TemplateService {
	return &TemplateService{
		store: st,
		blobs: blobs,
		cache: kv,
	}
}

// TemplateService manages finding templates. Reads go through the cache;
// mutations invalidate it.
type TemplateService struct {
	store store.Store
	blobs *blob.Store
	cache *cache.KV
}

// CreateTemplate creates a new template with its translations.
func (s *TemplateService) CreateTemplate(ctx context.Context, t *model.FindingTemplate, translations []*model.TemplateTranslation) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Source == "" {
		t.Source = model.SourceCreated
	}
	return s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateTemplate(ctx, t); err != nil {
			return err
		}
		for _, tr := range translations {
			if tr.ID == "" {
				tr.ID = uuid.NewString()
			}
			tr.TemplateID = t.ID
			if err := tx.CreateTranslation(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTemplate retrieves a template, served from the cache when possible.
func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*model.FindingTemplate, error) {
	var cached model.FindingTemplate
	err := s.cache.Get(ctx, templateKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logrus.Warnf("template cache read failed: %v", err)
	}

	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, templateKey(id), t); err != nil {
		logrus.Warnf("template cache write failed: %v", err)
	}
	return t, nil
}

// DeleteTemplate deletes a template, its translations and images.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	var digests []string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		digests, err = deleteOwnedAttachments(ctx, tx, s.blobs.WithStore(tx), id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTemplateTranslations(ctx, id); err != nil {
			return err
		}
		return tx.DeleteTemplate(ctx, id)
	})
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, templateKey(id)); err != nil {
		logrus.Warnf("template cache invalidation failed: %v", err)
	}
	for _, d := range digests {
		if err := s.blobs.RemoveIfUnreferenced(ctx, d); err != nil {
			logrus.Warnf("cleanup of blob %s failed: %v", d, err)
		}
	}
	return nil
}
