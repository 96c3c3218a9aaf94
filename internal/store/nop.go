package store

import (
	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/query"
	"github.com/hyperengineering/habitstore/internal/types"
)

// NopStore is the degraded Handle used when the database cannot be loaded.
// It persists nothing, reads empty and reports four zero statistics. Writes
// succeed without effect, so a mutation that first looks up an existing
// category, tracker or completion fails with ErrNotFound.
type NopStore struct{}

var _ Handle = NopStore{}

func (NopStore) WithTransaction(fn func(tx Tx) error) error {
	return fn(nopTx{})
}

func (NopStore) Subscribe(func(ChangeSet)) (cancel func()) { return func() {} }
func (NopStore) Snapshot(string) error                     { return nil }
func (NopStore) Close() error                              { return nil }

type nopTx struct{}

func (nopTx) Category(id uuid.UUID) (types.Category, error) {
	return types.Category{}, &NotFoundError{Kind: types.KindCategory, ID: id.String()}
}

func (nopTx) CategoryByTitle(title string) (types.Category, error) {
	return types.Category{}, &NotFoundError{Kind: types.KindCategory, ID: title}
}

func (nopTx) Categories() ([]types.Category, error) { return nil, nil }

func (nopTx) Tracker(id uuid.UUID) (types.Tracker, error) {
	return types.Tracker{}, &NotFoundError{Kind: types.KindTracker, ID: id.String()}
}

func (nopTx) Trackers() ([]types.Tracker, error)                 { return nil, nil }
func (nopTx) QueryTrackers(query.Predicate) ([]query.Row, error) { return nil, nil }

func (nopTx) CompletionRecord(trackerID uuid.UUID, date types.Day) (types.CompletionRecord, error) {
	key := types.CompletionRecord{TrackerID: trackerID, Date: date}.EntityKey()
	return types.CompletionRecord{}, &NotFoundError{Kind: types.KindCompletionRecord, ID: key}
}

func (nopTx) CompletionRecords() ([]types.CompletionRecord, error) { return nil, nil }
func (nopTx) Statistics() ([]types.Statistic, error)               { return types.ZeroStatistics(), nil }

func (nopTx) ChangesAfter(int64, int) ([]types.ChangeLogEntry, error) { return nil, nil }

func (nopTx) InsertCategory(types.Category) error           { return nil }
func (nopTx) UpdateCategory(types.Category) error           { return nil }
func (nopTx) InsertTracker(types.Tracker) error             { return nil }
func (nopTx) UpdateTracker(types.Tracker) error             { return nil }
func (nopTx) InsertCompletion(types.CompletionRecord) error { return nil }
func (nopTx) SetStatistics([]types.Statistic) error         { return nil }
func (nopTx) Delete(types.Entity) error                     { return nil }
func (nopTx) Save() error                                   { return nil }
