package cache

import (
	"time"

	"github.com/MSU-Students/q-attendance/internal/record"
)

// Mark is the tri-state synchronization provenance of a mutation:
// the zero value means the mutation never happened, Pending means it
// happened locally and awaits replay, and a non-zero At means it was
// confirmed against the remote store at that time.
type Mark struct {
	Pending bool
	At      time.Time
}

// Confirmed reports whether the mutation was acknowledged remotely.
func (m Mark) Confirmed() bool {
	return !m.Pending && !m.At.IsZero()
}

// IsZero reports whether the mark is unset.
func (m Mark) IsZero() bool {
	return !m.Pending && m.At.IsZero()
}

// ConfirmedAt builds a confirmed mark.
func ConfirmedAt(at time.Time) Mark {
	return Mark{At: at}
}

// PendingMark marks a mutation awaiting replay.
var PendingMark = Mark{Pending: true}

// Envelope is a cached record plus its synchronization provenance. The
// composite identity (Path, Key) addresses at most one envelope per
// collection table; Path is empty for unscoped collections.
type Envelope struct {
	Path   string
	Key    string
	Record record.Record

	CreatedOnline Mark
	UpdatedOnline Mark

	// DeletedOffline, when non-zero, marks the envelope as a tombstone:
	// deleted locally while offline, pending remote deletion.
	DeletedOffline time.Time
}

// Tombstoned reports whether the envelope awaits a remote delete.
func (e *Envelope) Tombstoned() bool {
	return !e.DeletedOffline.IsZero()
}
