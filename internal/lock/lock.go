// Package lock implements the lease-based edit lock. Lock state lives in two
// columns on the locked row; expiry is derived from the acquisition time and
// the lease duration, never stored. Every write is conditional on the
// previously observed lease, so two callers racing for an expired lock
// resolve to exactly one winner.
package lock

import (
	"context"
	"time"

	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// DefaultLease is how long a lock stays valid without a refresh.
const DefaultLease = 90 * time.Second

// Status is the outcome of an acquire attempt.
type Status string

const (
	// StatusCreated means the lock was newly taken, including over an
	// expired lease of another holder.
	StatusCreated Status = "created"
	// StatusRefreshed means the caller already held a valid lock and its
	// lease was extended.
	StatusRefreshed Status = "refreshed"
	// StatusFailed means another holder's lease is still valid.
	StatusFailed Status = "failed"
)

// Resource addresses one lockable row by its table and primary key.
type Resource struct {
	Table string
	ID    string
}

func Section(id string) Resource     { return Resource{Table: "sections", ID: id} }
func Finding(id string) Resource     { return Resource{Table: "findings", ID: id} }
func Note(id string) Resource        { return Resource{Table: "notebook_pages", ID: id} }
func ProjectType(id string) Resource { return Resource{Table: "project_types", ID: id} }
func Template(id string) Resource    { return Resource{Table: "finding_templates", ID: id} }

// Manager arbitrates edit locks over lockable rows.
type Manager struct {
	store store.Store
	lease time.Duration
	now   func() time.Time
}

func NewManager(st store.Store, lease time.Duration) *Manager {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{store: st, lease: lease, now: time.Now}
}

// WithClock replaces the time source. Tests use this to step through lease
// expiry without sleeping.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) expired(l *model.Lockable, now time.Time) bool {
	return l.LockedAt == nil || now.Sub(*l.LockedAt) > m.lease
}

// Acquire takes or refreshes the lock on res for userID.
func (m *Manager) Acquire(ctx context.Context, res Resource, userID string) (Status, error) {
	status := StatusFailed
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		l, err := tx.GetLock(ctx, res.Table, res.ID)
		if err != nil {
			return err
		}
		now := m.now()
		held := l.LockedByID != nil && !m.expired(l, now)
		switch {
		case held && *l.LockedByID == userID:
			status = StatusRefreshed
		case held:
			status = StatusFailed
			return nil
		default:
			status = StatusCreated
		}
		ok, err := tx.SetLock(ctx, res.Table, res.ID, l, &model.Lockable{
			LockedByID: &userID,
			LockedAt:   &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			// another writer took the lease between the read and the write
			status = StatusFailed
		}
		return nil
	})
	if err != nil {
		return StatusFailed, err
	}
	return status, nil
}

// Release gives up userID's lock on res. Releasing a lock held by someone
// else, or no lock at all, changes nothing and reports false.
func (m *Manager) Release(ctx context.Context, res Resource, userID string) (bool, error) {
	released := false
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		l, err := tx.GetLock(ctx, res.Table, res.ID)
		if err != nil {
			return err
		}
		if l.LockedByID == nil || *l.LockedByID != userID {
			return nil
		}
		released, err = tx.SetLock(ctx, res.Table, res.ID, l, &model.Lockable{})
		return err
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// IsLocked reports whether res is currently under a valid lease.
func (m *Manager) IsLocked(ctx context.Context, res Resource) (bool, error) {
	l, err := m.store.GetLock(ctx, res.Table, res.ID)
	if err != nil {
		return false, err
	}
	return l.LockedByID != nil && !m.expired(l, m.now()), nil
}

// Holder returns the current valid lease holder, or nil.
func (m *Manager) Holder(ctx context.Context, res Resource) (*string, error) {
	l, err := m.store.GetLock(ctx, res.Table, res.ID)
	if err != nil {
		return nil, err
	}
	if l.LockedByID == nil || m.expired(l, m.now()) {
		return nil, nil
	}
	return l.LockedByID, nil
}
