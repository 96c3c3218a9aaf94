package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/habitstore/internal/types"
)

// Roller moves live queries from one day to the next.
// Implemented by habits.Service.
type Roller interface {
	Rollover(from, to types.Day) (int, error)
}

// RolloverCoordinator retargets live queries showing yesterday once the
// calendar day changes. It remembers the last day it saw, so a missed
// midnight (sleep, clock change) still rolls over on the next tick.
type RolloverCoordinator struct {
	roller Roller
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	last types.Day
}

// NewRolloverCoordinator creates a coordinator starting from the current day.
func NewRolloverCoordinator(roller Roller, now func() time.Time, logger *slog.Logger) *RolloverCoordinator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RolloverCoordinator{
		roller: roller,
		now:    now,
		logger: logger,
		last:   types.DayOf(now()),
	}
}

// Tick rolls over when the day has changed since the previous tick.
// It returns the number of live queries moved.
func (c *RolloverCoordinator) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := types.DayOf(c.now())
	if today == c.last {
		return 0
	}
	from := c.last
	c.last = today

	moved, err := c.roller.Rollover(from, today)
	if err != nil {
		c.logger.Error("day rollover failed",
			"component", "worker",
			"worker", "rollover",
			"action", "rollover_failed",
			"from", from.String(),
			"to", today.String(),
			"error", err,
		)
		return moved
	}
	c.logger.Info("day rolled over",
		"component", "worker",
		"worker", "rollover",
		"action", "rollover_complete",
		"from", from.String(),
		"to", today.String(),
		"moved", moved,
	)
	return moved
}
