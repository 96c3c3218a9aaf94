package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/habitstore/internal/types"
)

type rollCall struct{ from, to types.Day }

type mockRoller struct {
	mu    sync.Mutex
	calls []rollCall
	moved int
	err   error
}

func (m *mockRoller) Rollover(from, to types.Day) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rollCall{from, to})
	return m.moved, m.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestRolloverCoordinator_SameDayDoesNothing(t *testing.T) {
	roller := &mockRoller{moved: 1}
	clock := &fakeClock{now: time.Date(2025, 1, 8, 9, 0, 0, 0, time.Local)}
	c := NewRolloverCoordinator(roller, clock.Now, discardLogger())

	clock.Set(time.Date(2025, 1, 8, 23, 59, 59, 0, time.Local))

	if moved := c.Tick(); moved != 0 {
		t.Errorf("Tick() = %d, want 0", moved)
	}
	if len(roller.calls) != 0 {
		t.Errorf("Rollover called %d times, want 0", len(roller.calls))
	}
}

func TestRolloverCoordinator_RollsOverAtMidnight(t *testing.T) {
	roller := &mockRoller{moved: 2}
	clock := &fakeClock{now: time.Date(2025, 1, 8, 23, 0, 0, 0, time.Local)}
	c := NewRolloverCoordinator(roller, clock.Now, discardLogger())

	clock.Set(time.Date(2025, 1, 9, 0, 0, 0, 0, time.Local))
	first := c.Tick()
	second := c.Tick()

	if first != 2 || second != 0 {
		t.Errorf("Tick() = %d then %d, want 2 then 0", first, second)
	}
	want := rollCall{types.NewDay(2025, 1, 8), types.NewDay(2025, 1, 9)}
	if len(roller.calls) != 1 || roller.calls[0] != want {
		t.Errorf("Rollover calls = %v, want [%v]", roller.calls, want)
	}
}

func TestRolloverCoordinator_CatchesUpAfterMissedDays(t *testing.T) {
	roller := &mockRoller{}
	clock := &fakeClock{now: time.Date(2025, 1, 8, 12, 0, 0, 0, time.Local)}
	c := NewRolloverCoordinator(roller, clock.Now, discardLogger())

	clock.Set(time.Date(2025, 1, 11, 7, 0, 0, 0, time.Local))
	c.Tick()

	want := rollCall{types.NewDay(2025, 1, 8), types.NewDay(2025, 1, 11)}
	if len(roller.calls) != 1 || roller.calls[0] != want {
		t.Errorf("Rollover calls = %v, want [%v]", roller.calls, want)
	}
}

func TestRolloverCoordinator_ErrorDoesNotRetrySameDay(t *testing.T) {
	roller := &mockRoller{err: errors.New("retarget failed")}
	clock := &fakeClock{now: time.Date(2025, 1, 8, 12, 0, 0, 0, time.Local)}
	c := NewRolloverCoordinator(roller, clock.Now, discardLogger())

	clock.Set(time.Date(2025, 1, 9, 0, 0, 1, 0, time.Local))
	c.Tick()
	c.Tick()

	if len(roller.calls) != 1 {
		t.Errorf("Rollover called %d times, want 1", len(roller.calls))
	}
}
