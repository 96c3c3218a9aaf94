// Package stats derives the four habit statistics from the completion history.
package stats

import (
	"sort"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/types"
)

// Values are the derived statistics.
type Values struct {
	BestStreak       int         `json:"best_streak"`
	PerfectDays      int         `json:"perfect_days"`
	TotalCompletions int         `json:"total_completions"`
	Average          int         `json:"average"`
	PerfectDates     []types.Day `json:"perfect_dates,omitempty"`
}

// Compute derives the statistics. A day is perfect when the number of
// distinct trackers completed on it equals the number of trackers eligible on
// it, and at least one tracker is eligible.
func Compute(records []types.CompletionRecord, trackers []types.Tracker) Values {
	completed := make(map[types.Day]map[uuid.UUID]struct{})
	for _, r := range records {
		set, ok := completed[r.Date]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			completed[r.Date] = set
		}
		set[r.TrackerID] = struct{}{}
	}

	var v Values
	for day, set := range completed {
		v.TotalCompletions += len(set)
		active := activeCount(trackers, day)
		if active > 0 && len(set) == active {
			v.PerfectDates = append(v.PerfectDates, day)
		}
	}

	sort.Slice(v.PerfectDates, func(i, j int) bool { return v.PerfectDates[i].Before(v.PerfectDates[j]) })
	v.PerfectDays = len(v.PerfectDates)
	v.BestStreak = longestRun(v.PerfectDates)
	if len(completed) > 0 {
		v.Average = v.TotalCompletions / len(completed)
	}
	return v
}

// Statistics renders v as the four fixed rows.
func (v Values) Statistics() []types.Statistic {
	return []types.Statistic{
		{ID: types.StatBestStreak, Value: v.BestStreak},
		{ID: types.StatPerfectDays, Value: v.PerfectDays},
		{ID: types.StatTotalCompletions, Value: v.TotalCompletions},
		{ID: types.StatAverage, Value: v.Average},
	}
}

// FromStatistics reads the scalar values back from stored rows.
func FromStatistics(rows []types.Statistic) Values {
	var v Values
	for _, s := range rows {
		switch s.ID {
		case types.StatBestStreak:
			v.BestStreak = s.Value
		case types.StatPerfectDays:
			v.PerfectDays = s.Value
		case types.StatTotalCompletions:
			v.TotalCompletions = s.Value
		case types.StatAverage:
			v.Average = s.Value
		}
	}
	return v
}

// SameScalars reports whether the four values match, ignoring PerfectDates.
func (v Values) SameScalars(o Values) bool {
	return v.BestStreak == o.BestStreak &&
		v.PerfectDays == o.PerfectDays &&
		v.TotalCompletions == o.TotalCompletions &&
		v.Average == o.Average
}

func activeCount(trackers []types.Tracker, day types.Day) int {
	n := 0
	for _, t := range trackers {
		if t.EligibleOn(day) {
			n++
		}
	}
	return n
}

// longestRun returns the longest run of consecutive calendar days in sorted days.
func longestRun(days []types.Day) int {
	best, run := 0, 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDays(1) == d {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
