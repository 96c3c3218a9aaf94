package livequery

import (
	"errors"
	"sync"
	"testing"

	"github.com/hyperengineering/habitstore/internal/query"
)

// fakeSource serves rows to a controller and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	rows    []query.Row
	fetches int
	err     error
}

func (s *fakeSource) set(rows ...query.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *fakeSource) fetch(p query.Predicate) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return Snapshot{}, s.err
	}
	return Snapshot{Sections: query.Sections(p.Apply(s.rows), "")}, nil
}

func TestController_RecomputeBeforeFetch(t *testing.T) {
	src := &fakeSource{}
	c := NewController(query.Intent{Date: day}, src.fetch)

	_, err := c.Recompute()

	if !errors.Is(err, ErrNotFetched) {
		t.Errorf("Recompute() error = %v, want ErrNotFetched", err)
	}
	var derr *DiffError
	if !errors.As(err, &derr) {
		t.Errorf("Recompute() error = %T, want *DiffError", err)
	}
	if src.fetches != 0 {
		t.Errorf("fetches = %d, want 0", src.fetches)
	}
}

func TestController_PerformFetchEmitsNothing(t *testing.T) {
	f := newFixture()
	src := &fakeSource{}
	src.set(f.row("A", "Work"))
	c := NewController(query.Intent{Date: day}, src.fetch)

	var batches []Batch
	c.Subscribe(func(b Batch) { batches = append(batches, b) })

	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}

	if len(batches) != 0 {
		t.Errorf("PerformFetch delivered %d batches, want 0", len(batches))
	}
	if c.Snapshot().RowCount() != 1 {
		t.Errorf("RowCount() = %d, want 1", c.Snapshot().RowCount())
	}
	if !c.Fetched() {
		t.Error("Fetched() = false after PerformFetch")
	}
}

func TestController_RecomputeDeliversOrderedBatches(t *testing.T) {
	// Given: a fetched controller with one subscriber
	f := newFixture()
	src := &fakeSource{}
	src.set(f.row("A", "Work"), f.row("B", "Health"))
	c := NewController(query.Intent{Date: day}, src.fetch)
	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}
	var got []Batch
	c.Subscribe(func(b Batch) { got = append(got, b) })

	// When: the only Work tracker disappears, then nothing changes
	src.set(f.row("B", "Health"))
	if _, err := c.Recompute(); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	unchanged, err := c.Recompute()
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	// Then: exactly one batch with delete + section delete
	if len(got) != 1 {
		t.Fatalf("delivered %d batches, want 1", len(got))
	}
	if got[0].Seq != 1 {
		t.Errorf("Seq = %d, want 1", got[0].Seq)
	}
	if len(got[0].Edits) != 2 || got[0].Edits[0].Kind != Deleted || got[0].Edits[1].Kind != SectionDeleted {
		t.Errorf("edits = %v, want [Deleted, SectionDeleted]", got[0].Edits)
	}
	if len(unchanged.Edits) != 0 {
		t.Errorf("unchanged recompute returned edits %v", unchanged.Edits)
	}
}

func TestController_CancelSubscription(t *testing.T) {
	f := newFixture()
	src := &fakeSource{}
	c := NewController(query.Intent{Date: day}, src.fetch)
	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}

	calls := 0
	cancel := c.Subscribe(func(Batch) { calls++ })
	cancel()
	cancel()

	src.set(f.row("A", "Work"))
	if _, err := c.Recompute(); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("cancelled subscriber called %d times", calls)
	}
}

func TestController_FetchErrorKeepsSnapshot(t *testing.T) {
	f := newFixture()
	src := &fakeSource{}
	src.set(f.row("A", "Work"))
	c := NewController(query.Intent{Date: day}, src.fetch)
	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}

	boom := errors.New("disk on fire")
	src.err = boom
	_, err := c.Recompute()

	if !errors.Is(err, boom) {
		t.Errorf("Recompute() error = %v, want wrapped %v", err, boom)
	}
	if c.Snapshot().RowCount() != 1 {
		t.Error("failed recompute replaced the snapshot")
	}
}

func TestController_RetargetDiffsAcrossIntents(t *testing.T) {
	f := newFixture()
	src := &fakeSource{}
	a := f.row("A", "Work")
	src.set(a)
	c := NewController(query.Intent{Date: day}, src.fetch)
	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}

	batch, err := c.Retarget(query.Intent{Date: day.AddDays(1)})
	if err != nil {
		t.Fatalf("Retarget failed: %v", err)
	}

	if c.Intent().Date != day.AddDays(1) {
		t.Errorf("Intent().Date = %v, want %v", c.Intent().Date, day.AddDays(1))
	}
	if len(batch.Edits) != 2 {
		t.Errorf("edits = %v, want delete + section delete", batch.Edits)
	}
	if c.Snapshot().RowCount() != 0 {
		t.Errorf("RowCount() = %d, want 0", c.Snapshot().RowCount())
	}
}

func TestController_ConcurrentRecomputesStaySequential(t *testing.T) {
	f := newFixture()
	src := &fakeSource{}
	c := NewController(query.Intent{Date: day}, src.fetch)
	if err := c.PerformFetch(); err != nil {
		t.Fatalf("PerformFetch failed: %v", err)
	}

	var mu sync.Mutex
	var seqs []uint64
	c.Subscribe(func(b Batch) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, b.Seq)
	})

	a := f.row("A", "Work")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				src.set(a)
			} else {
				src.set()
			}
			if _, err := c.Recompute(); err != nil {
				t.Errorf("Recompute failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("batches delivered out of order: %v", seqs)
		}
	}
}
