// Package blob implements content-addressed, reference-counted storage for
// attachment bytes. Files live on disk keyed by their SHA-256 digest; the
// reference count lives in the relational store next to the attachment rows,
// so attach/detach and count mutation commit in the same transaction.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quillsec/quill/internal/store"
)

// ErrNotFound is returned when a digest has no live reference.
var ErrNotFound = errors.New("blob: not found")

// Store is the content-addressed blob store. Logical lifetime is tracked by
// the ref-count row; the physical file is removed only once no row remains.
type Store struct {
	root string
	db   store.Store
}

func NewStore(root string, db store.Store) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &Store{root: root, db: db}, nil
}

// WithStore returns a view of the blob store whose ref-count mutations run
// against tx, typically a transaction-scoped store.
func (s *Store) WithStore(tx store.Store) *Store {
	return &Store{root: s.root, db: tx}
}

func (s *Store) path(digest string) string {
	return filepath.Join(s.root, digest)
}

// Put stores the content of r and takes one reference on it. Identical
// content is written once; repeated puts of the same digest only increment
// the reference count.
func (s *Store) Put(ctx context.Context, r io.Reader) (digest string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, ".blob-tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("blob: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	size, err = io.Copy(tmp, io.TeeReader(r, h))
	if err != nil {
		return "", 0, fmt.Errorf("blob: write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return "", 0, fmt.Errorf("blob: fsync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("blob: close temp: %w", err)
	}

	digest = hex.EncodeToString(h.Sum(nil))
	dst := s.path(digest)
	if _, statErr := os.Stat(dst); statErr == nil {
		// content already present, drop the duplicate bytes
		_ = os.Remove(tmpName)
	} else if err = os.Rename(tmpName, dst); err != nil {
		return "", 0, fmt.Errorf("blob: rename: %w", err)
	}

	if err = s.db.IncrefBlob(ctx, digest, size); err != nil {
		return "", 0, err
	}
	return digest, size, nil
}

// Open returns the content of a referenced blob. Content whose last reference
// is gone is unreadable even if the physical file still lingers.
func (s *Store) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	if _, err := s.db.GetBlob(ctx, digest); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return nil, err
	}
	f, err := os.Open(s.path(digest))
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", digest, err)
	}
	return f, nil
}

// Stat returns the size of a referenced blob.
func (s *Store) Stat(ctx context.Context, digest string) (int64, error) {
	b, err := s.db.GetBlob(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return 0, err
	}
	return b.Size, nil
}

// Incref takes an additional reference on an existing blob.
func (s *Store) Incref(ctx context.Context, digest string) error {
	b, err := s.db.GetBlob(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return err
	}
	return s.db.IncrefBlob(ctx, digest, b.Size)
}

// Decref drops one reference. The record disappears at zero; physical file
// removal is deferred to RemoveIfUnreferenced so a rolled-back transaction
// never loses bytes that rows still point at.
func (s *Store) Decref(ctx context.Context, digest string) error {
	_, err := s.db.DecrefBlob(ctx, digest)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	return err
}

// RemoveIfUnreferenced deletes the physical file when no reference remains.
// Called outside the transaction, after commit or rollback.
func (s *Store) RemoveIfUnreferenced(ctx context.Context, digest string) error {
	_, err := s.db.GetBlob(ctx, digest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if rmErr := os.Remove(s.path(digest)); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("blob: remove %s: %w", digest, rmErr)
	}
	return nil
}
