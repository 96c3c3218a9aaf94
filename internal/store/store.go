package store

import (
	"slices"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/query"
	"github.com/hyperengineering/habitstore/internal/types"
)

// Handle is the single owner of the habit database. Every transaction runs on
// one serialized queue; callers block until their turn has finished.
type Handle interface {
	// WithTransaction runs fn on the queue. Writes staged through tx are
	// saved and committed when fn returns nil; any error rolls back the
	// whole transaction. fn must not call back into the same Handle.
	WithTransaction(fn func(tx Tx) error) error

	// Subscribe registers fn for every committed transaction that changed
	// something. fn runs after the commit, off the queue.
	Subscribe(fn func(ChangeSet)) (cancel func())

	// Snapshot writes a consistent copy of the database to path.
	Snapshot(path string) error

	Close() error
}

// Reader is the read side of a transaction. Entities returned by Reader
// become owned by the transaction and may then be updated or deleted.
type Reader interface {
	Category(id uuid.UUID) (types.Category, error)
	CategoryByTitle(title string) (types.Category, error)
	Categories() ([]types.Category, error)
	Tracker(id uuid.UUID) (types.Tracker, error)
	Trackers() ([]types.Tracker, error)
	QueryTrackers(p query.Predicate) ([]query.Row, error)
	CompletionRecord(trackerID uuid.UUID, date types.Day) (types.CompletionRecord, error)
	CompletionRecords() ([]types.CompletionRecord, error)
	Statistics() ([]types.Statistic, error)
	ChangesAfter(afterSeq int64, limit int) ([]types.ChangeLogEntry, error)
}

// Tx is a unit of work. Writes are staged until Save.
type Tx interface {
	Reader

	InsertCategory(c types.Category) error
	UpdateCategory(c types.Category) error
	InsertTracker(t types.Tracker) error
	UpdateTracker(t types.Tracker) error
	InsertCompletion(r types.CompletionRecord) error
	SetStatistics(values []types.Statistic) error

	// Delete removes an entity fetched or inserted through this Tx.
	Delete(e types.Entity) error

	// Save applies staged writes to the transaction. It is a no-op when
	// nothing is pending.
	Save() error
}

// ChangeSet describes one committed transaction. Sequence is the last change
// log entry it wrote, so it grows in commit order. Statistics holds the stored
// rows as committed when the statistics changed.
type ChangeSet struct {
	Sequence   int64              `json:"sequence"`
	Kinds      []types.EntityKind `json:"kinds"`
	Statistics []types.Statistic  `json:"statistics,omitempty"`
}

// Has reports whether entities of kind changed.
func (c ChangeSet) Has(kind types.EntityKind) bool {
	return slices.Contains(c.Kinds, kind)
}

// Empty reports whether the transaction changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Kinds) == 0
}
