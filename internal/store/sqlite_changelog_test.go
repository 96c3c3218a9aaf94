package store

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/types"
)

func changes(t *testing.T, s *SQLiteStore, after int64, limit int) []types.ChangeLogEntry {
	t.Helper()
	var out []types.ChangeLogEntry
	err := s.WithTransaction(func(tx Tx) error {
		var err error
		out, err = tx.ChangesAfter(after, limit)
		return err
	})
	if err != nil {
		t.Fatalf("ChangesAfter failed: %v", err)
	}
	return out
}

func TestChangeLog_RecordsCommittedMutations(t *testing.T) {
	// Given: A category and tracker are created, then the tracker completed and deleted
	s := newTestStore(t)
	tr := tracker("Run", recurring(t, types.Monday))
	seed(t, s, "Health", tr)
	complete(t, s, tr.ID, monday)
	err := s.WithTransaction(func(tx Tx) error {
		cur, err := tx.Tracker(tr.ID)
		if err != nil {
			return err
		}
		return tx.Delete(cur)
	})
	if err != nil {
		t.Fatalf("delete tracker: %v", err)
	}

	// When
	entries := changes(t, s, 0, 100)

	// Then: One entry per applied write, in order
	type key struct{ table, op string }
	var got []key
	for _, e := range entries {
		got = append(got, key{e.TableName, e.Operation})
		if e.SourceID != s.SourceID() {
			t.Errorf("entry %d source_id = %q, want %q", e.Sequence, e.SourceID, s.SourceID())
		}
		if e.CreatedAt.IsZero() || e.ReceivedAt.IsZero() {
			t.Errorf("entry %d has zero timestamps", e.Sequence)
		}
	}
	want := []key{
		{"categories", types.OperationUpsert},
		{"trackers", types.OperationUpsert},
		{"completion_records", types.OperationUpsert},
		{"trackers", types.OperationDelete},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChangeLog_PayloadIsEntityJSON(t *testing.T) {
	s := newTestStore(t)
	cat := seed(t, s, "Health")

	entries := changes(t, s, 0, 1)

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	var got types.Category
	if err := json.Unmarshal(entries[0].Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != cat {
		t.Errorf("payload = %+v, want %+v", got, cat)
	}
	if entries[0].EntityID != cat.ID.String() {
		t.Errorf("EntityID = %q, want %q", entries[0].EntityID, cat.ID)
	}
}

func TestChangeLog_DeleteHasNoPayload(t *testing.T) {
	s := newTestStore(t)
	cat := seed(t, s, "Health")
	err := s.WithTransaction(func(tx Tx) error {
		c, err := tx.Category(cat.ID)
		if err != nil {
			return err
		}
		return tx.Delete(c)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries := changes(t, s, 1, 10)

	if len(entries) != 1 || entries[0].Operation != types.OperationDelete {
		t.Fatalf("entries = %+v, want one delete", entries)
	}
	if entries[0].Payload != nil {
		t.Errorf("delete payload = %s, want none", entries[0].Payload)
	}
}

func TestChangeLog_AfterAndLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		err := s.WithTransaction(func(tx Tx) error {
			return tx.InsertCategory(types.Category{ID: uuid.New(), Title: string(rune('A' + i))})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries := changes(t, s, 2, 2)

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Sequence != 3 || entries[1].Sequence != 4 {
		t.Errorf("sequences = %d, %d; want 3, 4", entries[0].Sequence, entries[1].Sequence)
	}
}

func TestChangeLog_UnchangedStatisticsAreNotLogged(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTransaction(func(tx Tx) error {
		return tx.SetStatistics(types.ZeroStatistics())
	})
	if err != nil {
		t.Fatalf("SetStatistics failed: %v", err)
	}

	if entries := changes(t, s, 0, 10); len(entries) != 0 {
		t.Errorf("unchanged statistics logged %d entries", len(entries))
	}
}
