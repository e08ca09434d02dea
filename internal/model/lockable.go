package model

import "time"

// Lockable holds the lease state of an entity that supports exclusive edit
// locks. The lease expires implicitly: whether the entity is locked is always
// derived from (LockedAt, lease duration, now), never stored.
type Lockable struct {
	LockedByID *string `gorm:"uuid"`
	LockedAt   *time.Time
}

// ClearLock resets the lease state. Copies are always created unlocked.
func (l *Lockable) ClearLock() {
	l.LockedByID = nil
	l.LockedAt = nil
}
