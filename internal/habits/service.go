// Package habits is the entry point for presentation code: mutation intents,
// live queries and statistics on top of a store.Handle.
package habits

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/livequery"
	"github.com/hyperengineering/habitstore/internal/query"
	"github.com/hyperengineering/habitstore/internal/store"
	"github.com/hyperengineering/habitstore/internal/types"
	"github.com/hyperengineering/habitstore/internal/validation"
)

// Service coordinates the store, live queries and statistics.
type Service struct {
	store       store.Handle
	logger      *slog.Logger
	now         func() time.Time
	pinnedTitle string

	mu      sync.Mutex
	watches map[*livequery.Controller]struct{}

	statsMu      sync.Mutex
	statsSubs    map[uint64]func([]types.Statistic)
	nextStatsSub uint64

	// deliverMu orders statistics deliveries; lastStatsSeq is the newest
	// delivered commit.
	deliverMu    sync.Mutex
	lastStatsSeq int64

	cancelStore func()
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the source of "today" used to reject future completions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPinnedTitle sets the title of the pinned section.
func WithPinnedTitle(title string) Option {
	return func(s *Service) { s.pinnedTitle = title }
}

// New creates a Service and subscribes it to committed store changes.
func New(h store.Handle, opts ...Option) *Service {
	s := &Service{
		store:       h,
		logger:      slog.Default(),
		now:         time.Now,
		pinnedTitle: query.DefaultPinnedTitle,
		watches:     make(map[*livequery.Controller]struct{}),
		statsSubs:   make(map[uint64]func([]types.Statistic)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "habits")
	s.cancelStore = h.Subscribe(s.onChange)
	return s
}

// Close stops reacting to store changes. It does not close the store.
func (s *Service) Close() {
	s.cancelStore()
}

// Today is the current calendar day in local time.
func (s *Service) Today() types.Day {
	return types.DayOf(s.now())
}

// onChange runs after every committed transaction.
func (s *Service) onChange(cs store.ChangeSet) {
	if cs.Has(types.KindCategory) || cs.Has(types.KindTracker) || cs.Has(types.KindCompletionRecord) {
		for _, c := range s.Watched() {
			if _, err := c.Recompute(); err != nil {
				s.logger.Error("live query recompute failed",
					"action", "recompute",
					"date", c.Intent().Date.String(),
					"error", err,
				)
			}
		}
	}
	if cs.Has(types.KindStatistic) {
		s.deliverStatistics(cs)
	}
}

// deliverStatistics hands the committed statistics to subscribers in commit
// order. A notification older than one already delivered is dropped.
func (s *Service) deliverStatistics(cs store.ChangeSet) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if cs.Sequence <= s.lastStatsSeq {
		s.logger.Debug("stale statistics notification dropped",
			"action", "notify_statistics",
			"sequence", cs.Sequence,
			"delivered", s.lastStatsSeq,
		)
		return
	}
	values := cs.Statistics
	if values == nil {
		var err error
		if values, err = s.FetchStatistics(); err != nil {
			s.logger.Error("statistics reload failed", "action", "notify_statistics", "error", err)
			return
		}
	}
	s.lastStatsSeq = cs.Sequence
	for _, fn := range s.statisticsSubscribers() {
		fn(values)
	}
}

// --- queries ---

func (s *Service) fetch(p query.Predicate) (livequery.Snapshot, error) {
	var rows []query.Row
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		rows, err = tx.QueryTrackers(p)
		return err
	})
	if err != nil {
		return livequery.Snapshot{}, err
	}
	return livequery.Snapshot{Sections: query.Sections(rows, s.pinnedTitle)}, nil
}

// Query runs intent once.
func (s *Service) Query(intent query.Intent) (livequery.Snapshot, error) {
	return s.fetch(query.Build(intent))
}

// Watch starts a live query for intent. The controller is recomputed after
// every committed change until Unwatch.
func (s *Service) Watch(intent query.Intent) (*livequery.Controller, error) {
	c := livequery.NewController(intent, s.fetch)
	if err := c.PerformFetch(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.watches[c] = struct{}{}
	s.mu.Unlock()
	return c, nil
}

// Unwatch stops recomputing c.
func (s *Service) Unwatch(c *livequery.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, c)
}

// Watched returns the live controllers.
func (s *Service) Watched() []*livequery.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*livequery.Controller, 0, len(s.watches))
	for c := range s.watches {
		out = append(out, c)
	}
	return out
}

// Rollover retargets every live query showing from to the day to.
// It returns the number of controllers moved.
func (s *Service) Rollover(from, to types.Day) (int, error) {
	var errs []error
	moved := 0
	for _, c := range s.Watched() {
		intent := c.Intent()
		if intent.Date != from {
			continue
		}
		intent.Date = to
		if _, err := c.Retarget(intent); err != nil {
			errs = append(errs, err)
			continue
		}
		moved++
	}
	return moved, errors.Join(errs...)
}

// Categories lists every category by title.
func (s *Service) Categories() ([]types.Category, error) {
	var out []types.Category
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		out, err = tx.Categories()
		return err
	})
	return out, err
}

// Trackers lists every tracker by title.
func (s *Service) Trackers() ([]types.Tracker, error) {
	var out []types.Tracker
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		out, err = tx.Trackers()
		return err
	})
	return out, err
}

// History returns change log entries after afterSeq.
func (s *Service) History(afterSeq int64, limit int) ([]types.ChangeLogEntry, error) {
	var out []types.ChangeLogEntry
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		out, err = tx.ChangesAfter(afterSeq, limit)
		return err
	})
	return out, err
}

// --- categories ---

func titleTaken(title string) error {
	return validation.Errors{{Field: "title", Message: fmt.Sprintf("category %q already exists", title)}}
}

// CreateCategory adds a category with a unique title.
func (s *Service) CreateCategory(title string) (types.Category, error) {
	c := types.Category{ID: uuid.New(), Title: strings.TrimSpace(title)}
	if err := validation.ValidateCategory(c); err != nil {
		return types.Category{}, err
	}

	err := s.store.WithTransaction(func(tx store.Tx) error {
		if _, err := tx.CategoryByTitle(c.Title); err == nil {
			return titleTaken(c.Title)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.InsertCategory(c)
	})
	if err != nil {
		return types.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.logger.Debug("category created", "action", "create_category", "id", c.ID)
	return c, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(id uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if err := validation.ValidateCategory(types.Category{ID: id, Title: title}); err != nil {
		return err
	}

	err := s.store.WithTransaction(func(tx store.Tx) error {
		c, err := tx.Category(id)
		if err != nil {
			return err
		}
		if other, err := tx.CategoryByTitle(title); err == nil && other.ID != id {
			return titleTaken(title)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		c.Title = title
		return tx.UpdateCategory(c)
	})
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category together with its trackers.
func (s *Service) DeleteCategory(id uuid.UUID) error {
	err := s.store.WithTransaction(func(tx store.Tx) error {
		c, err := tx.Category(id)
		if err != nil {
			return err
		}
		if err := tx.Delete(c); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.Debug("category deleted", "action", "delete_category", "id", id)
	return nil
}

// --- trackers ---

func normalizeTracker(t types.Tracker) types.Tracker {
	t.Title = strings.TrimSpace(t.Title)
	t.Color = strings.TrimSpace(t.Color)
	t.Emoji = strings.TrimSpace(t.Emoji)
	return t
}

// CreateTracker adds a tracker to an existing category.
func (s *Service) CreateTracker(n types.NewTracker) (types.Tracker, error) {
	t, err := n.Build()
	if err != nil {
		return types.Tracker{}, validation.Errors{{Field: "rule", Message: err.Error()}}
	}
	t = normalizeTracker(t)
	if err := validation.ValidateTracker(t); err != nil {
		return types.Tracker{}, err
	}

	err = s.store.WithTransaction(func(tx store.Tx) error {
		if _, err := tx.Category(t.CategoryID); err != nil {
			return err
		}
		if err := tx.InsertTracker(t); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return types.Tracker{}, fmt.Errorf("create tracker: %w", err)
	}
	s.logger.Debug("tracker created", "action", "create_tracker", "id", t.ID)
	return t, nil
}

// UpdateTracker replaces every field of an existing tracker.
func (s *Service) UpdateTracker(t types.Tracker) error {
	t = normalizeTracker(t)
	if err := validation.ValidateTracker(t); err != nil {
		return err
	}

	err := s.store.WithTransaction(func(tx store.Tx) error {
		if _, err := tx.Tracker(t.ID); err != nil {
			return err
		}
		if _, err := tx.Category(t.CategoryID); err != nil {
			return err
		}
		if err := tx.UpdateTracker(t); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return fmt.Errorf("update tracker: %w", err)
	}
	return nil
}

// SetPinned pins or unpins a tracker.
func (s *Service) SetPinned(id uuid.UUID, pinned bool) error {
	err := s.store.WithTransaction(func(tx store.Tx) error {
		t, err := tx.Tracker(id)
		if err != nil {
			return err
		}
		if t.IsPinned == pinned {
			return nil
		}
		t.IsPinned = pinned
		return tx.UpdateTracker(t)
	})
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	return nil
}

// DeleteTracker removes a tracker and its completion records.
func (s *Service) DeleteTracker(id uuid.UUID) error {
	err := s.store.WithTransaction(func(tx store.Tx) error {
		t, err := tx.Tracker(id)
		if err != nil {
			return err
		}
		if err := tx.Delete(t); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return fmt.Errorf("delete tracker: %w", err)
	}
	s.logger.Debug("tracker deleted", "action", "delete_tracker", "id", id)
	return nil
}

// --- completions ---

// AddCompletionRecord marks a tracker done on date. Completing twice is a no-op.
func (s *Service) AddCompletionRecord(trackerID uuid.UUID, date types.Day) error {
	r := types.CompletionRecord{TrackerID: trackerID, Date: date}
	if err := validation.ValidateCompletion(r, s.Today()); err != nil {
		return err
	}

	err := s.store.WithTransaction(func(tx store.Tx) error {
		if _, err := tx.Tracker(trackerID); err != nil {
			return err
		}
		if err := tx.InsertCompletion(r); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return fmt.Errorf("add completion record: %w", err)
	}
	return nil
}

// RemoveCompletionRecord clears the completion of a tracker on date.
func (s *Service) RemoveCompletionRecord(trackerID uuid.UUID, date types.Day) error {
	err := s.store.WithTransaction(func(tx store.Tx) error {
		r, err := tx.CompletionRecord(trackerID, date)
		if err != nil {
			return err
		}
		if err := tx.Delete(r); err != nil {
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return fmt.Errorf("remove completion record: %w", err)
	}
	return nil
}

// ToggleCompletion flips the completion of a tracker on date and reports the
// new state.
func (s *Service) ToggleCompletion(trackerID uuid.UUID, date types.Day) (bool, error) {
	r := types.CompletionRecord{TrackerID: trackerID, Date: date}
	completed := false
	err := s.store.WithTransaction(func(tx store.Tx) error {
		existing, err := tx.CompletionRecord(trackerID, date)
		switch {
		case err == nil:
			if err := tx.Delete(existing); err != nil {
				return err
			}
		case errors.Is(err, store.ErrNotFound):
			if err := validation.ValidateCompletion(r, s.Today()); err != nil {
				return err
			}
			if _, err := tx.Tracker(trackerID); err != nil {
				return err
			}
			if err := tx.InsertCompletion(r); err != nil {
				return err
			}
			completed = true
		default:
			return err
		}
		return recomputeStatistics(tx)
	})
	if err != nil {
		return false, fmt.Errorf("toggle completion: %w", err)
	}
	return completed, nil
}
