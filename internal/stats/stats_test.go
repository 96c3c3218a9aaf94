package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/types"
)

func everyDay(t *testing.T) types.Tracker {
	t.Helper()
	rule, err := types.NewRecurring(types.Monday, types.Tuesday, types.Wednesday, types.Thursday,
		types.Friday, types.Saturday, types.Sunday)
	if err != nil {
		t.Fatalf("NewRecurring: %v", err)
	}
	return types.Tracker{ID: uuid.New(), Title: "daily", Rule: rule}
}

func records(id uuid.UUID, days ...types.Day) []types.CompletionRecord {
	out := make([]types.CompletionRecord, len(days))
	for i, d := range days {
		out[i] = types.CompletionRecord{TrackerID: id, Date: d}
	}
	return out
}

func TestCompute_StreakWithGap(t *testing.T) {
	// Given: tracker A is the only active tracker and is completed on
	// Jan 1, 2, 3 and 5
	a := everyDay(t)
	recs := records(a.ID,
		types.NewDay(2025, 1, 5),
		types.NewDay(2025, 1, 1),
		types.NewDay(2025, 1, 3),
		types.NewDay(2025, 1, 2),
	)

	// When
	v := Compute(recs, []types.Tracker{a})

	// Then
	wantDates := []types.Day{
		types.NewDay(2025, 1, 1), types.NewDay(2025, 1, 2),
		types.NewDay(2025, 1, 3), types.NewDay(2025, 1, 5),
	}
	if diff := cmp.Diff(wantDates, v.PerfectDates); diff != "" {
		t.Errorf("PerfectDates mismatch (-want +got):\n%s", diff)
	}
	if v.BestStreak != 3 {
		t.Errorf("BestStreak = %d, want 3", v.BestStreak)
	}
	if v.PerfectDays != 4 {
		t.Errorf("PerfectDays = %d, want 4", v.PerfectDays)
	}
	if v.TotalCompletions != 4 || v.Average != 1 {
		t.Errorf("TotalCompletions = %d, Average = %d; want 4, 1", v.TotalCompletions, v.Average)
	}
}

func TestCompute_AverageTruncates(t *testing.T) {
	// Given: 10 completions across 4 distinct dates (3+3+2+2)
	var trackers []types.Tracker
	for i := 0; i < 3; i++ {
		trackers = append(trackers, everyDay(t))
	}
	d1, d2, d3, d4 := types.NewDay(2025, 2, 1), types.NewDay(2025, 2, 2), types.NewDay(2025, 2, 3), types.NewDay(2025, 2, 4)
	var recs []types.CompletionRecord
	recs = append(recs, records(trackers[0].ID, d1, d2, d3, d4)...)
	recs = append(recs, records(trackers[1].ID, d1, d2, d3, d4)...)
	recs = append(recs, records(trackers[2].ID, d1, d2)...)

	v := Compute(recs, trackers)

	if v.TotalCompletions != 10 {
		t.Errorf("TotalCompletions = %d, want 10", v.TotalCompletions)
	}
	if v.Average != 2 {
		t.Errorf("Average = %d, want 2", v.Average)
	}
	if v.PerfectDays != 2 || v.BestStreak != 2 {
		t.Errorf("PerfectDays = %d, BestStreak = %d; want 2, 2", v.PerfectDays, v.BestStreak)
	}
}

func TestCompute_Empty(t *testing.T) {
	v := Compute(nil, nil)

	if diff := cmp.Diff(types.ZeroStatistics(), v.Statistics()); diff != "" {
		t.Errorf("Statistics() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_PartialDayIsNotPerfect(t *testing.T) {
	a, b := everyDay(t), everyDay(t)
	day := types.NewDay(2025, 3, 3)

	v := Compute(records(a.ID, day), []types.Tracker{a, b})

	if v.PerfectDays != 0 || v.BestStreak != 0 {
		t.Errorf("PerfectDays = %d, BestStreak = %d; want 0, 0", v.PerfectDays, v.BestStreak)
	}
	if v.TotalCompletions != 1 {
		t.Errorf("TotalCompletions = %d, want 1", v.TotalCompletions)
	}
}

func TestCompute_ScheduleDecidesActiveCount(t *testing.T) {
	// Given: a Monday-only tracker and a daily tracker; on a Tuesday only the
	// daily one is eligible
	mondays, _ := types.NewRecurring(types.Monday)
	weekly := types.Tracker{ID: uuid.New(), Rule: mondays}
	daily := everyDay(t)
	tuesday := types.NewDay(2025, 1, 7)

	v := Compute(records(daily.ID, tuesday), []types.Tracker{weekly, daily})

	if v.PerfectDays != 1 {
		t.Errorf("PerfectDays = %d, want 1", v.PerfectDays)
	}
}

func TestCompute_OneOffCountsOnlyOnItsDate(t *testing.T) {
	day := types.NewDay(2025, 4, 10)
	oneOff := types.Tracker{ID: uuid.New(), Rule: types.OneOff{Date: day}}
	daily := everyDay(t)

	v := Compute(records(daily.ID, day, day.AddDays(1)), []types.Tracker{oneOff, daily})

	if v.PerfectDays != 1 {
		t.Errorf("PerfectDays = %d, want 1 (only the day after the one-off)", v.PerfectDays)
	}
	if len(v.PerfectDates) != 1 || v.PerfectDates[0] != day.AddDays(1) {
		t.Errorf("PerfectDates = %v", v.PerfectDates)
	}
}

func TestCompute_StreakAcrossMonthBoundary(t *testing.T) {
	a := everyDay(t)

	v := Compute(records(a.ID, types.NewDay(2025, 1, 31), types.NewDay(2025, 2, 1)), []types.Tracker{a})

	if v.BestStreak != 2 {
		t.Errorf("BestStreak = %d, want 2", v.BestStreak)
	}
}

func TestFromStatistics_RoundTrip(t *testing.T) {
	v := Values{BestStreak: 3, PerfectDays: 4, TotalCompletions: 10, Average: 2}

	if got := FromStatistics(v.Statistics()); !got.SameScalars(v) {
		t.Errorf("FromStatistics() = %+v, want %+v", got, v)
	}
}
