package habits

import (
	"fmt"
	"sync"

	"github.com/hyperengineering/habitstore/internal/stats"
	"github.com/hyperengineering/habitstore/internal/store"
	"github.com/hyperengineering/habitstore/internal/types"
)

// computeStatistics saves pending writes and derives the statistics from
// what the transaction now sees.
func computeStatistics(tx store.Tx) (stats.Values, error) {
	if err := tx.Save(); err != nil {
		return stats.Values{}, err
	}
	records, err := tx.CompletionRecords()
	if err != nil {
		return stats.Values{}, err
	}
	trackers, err := tx.Trackers()
	if err != nil {
		return stats.Values{}, err
	}
	return stats.Compute(records, trackers), nil
}

// recomputeStatistics rewrites the four rows inside tx.
func recomputeStatistics(tx store.Tx) error {
	v, err := computeStatistics(tx)
	if err != nil {
		return fmt.Errorf("recompute statistics: %w", err)
	}
	return tx.SetStatistics(v.Statistics())
}

// FetchStatistics returns the four stored statistics.
func (s *Service) FetchStatistics() ([]types.Statistic, error) {
	var out []types.Statistic
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		out, err = tx.Statistics()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}
	return out, nil
}

// Summary derives the statistics from the history without writing them,
// including the list of perfect days.
func (s *Service) Summary() (stats.Values, error) {
	var v stats.Values
	err := s.store.WithTransaction(func(tx store.Tx) error {
		var err error
		v, err = computeStatistics(tx)
		return err
	})
	if err != nil {
		return stats.Values{}, fmt.Errorf("summary: %w", err)
	}
	return v, nil
}

// ReconcileStatistics recomputes the statistics and rewrites the stored rows
// when they disagree. It reports whether anything was rewritten.
func (s *Service) ReconcileStatistics() (bool, error) {
	changed := false
	err := s.store.WithTransaction(func(tx store.Tx) error {
		v, err := computeStatistics(tx)
		if err != nil {
			return err
		}
		stored, err := tx.Statistics()
		if err != nil {
			return err
		}
		if stats.FromStatistics(stored).SameScalars(v) {
			return nil
		}
		changed = true
		return tx.SetStatistics(v.Statistics())
	})
	if err != nil {
		return false, fmt.Errorf("reconcile statistics: %w", err)
	}
	if changed {
		s.logger.Warn("statistics drifted and were rewritten", "action", "reconcile_statistics")
	}
	return changed, nil
}

// SubscribeStatistics registers fn for every change of the stored statistics.
// Calls arrive in commit order with the values that commit stored. fn must
// not write to the store.
func (s *Service) SubscribeStatistics(fn func([]types.Statistic)) (cancel func()) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	id := s.nextStatsSub
	s.nextStatsSub++
	s.statsSubs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.statsMu.Lock()
			defer s.statsMu.Unlock()
			delete(s.statsSubs, id)
		})
	}
}

func (s *Service) statisticsSubscribers() []func([]types.Statistic) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := make([]func([]types.Statistic), 0, len(s.statsSubs))
	for id := uint64(0); id < s.nextStatsSub; id++ {
		if fn, ok := s.statsSubs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
