package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/habits"
	"github.com/hyperengineering/habitstore/internal/types"
)

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// describeRule renders a completion rule for table output.
func describeRule(r types.CompletionRule) string {
	switch r := r.(type) {
	case types.Recurring:
		return r.Days.String()
	case types.OneOff:
		return "once " + r.Date.String()
	default:
		return "-"
	}
}

// parseDate parses YYYY-MM-DD, defaulting to today when s is empty.
func parseDate(s string, today types.Day) (types.Day, error) {
	if s == "" {
		return today, nil
	}
	return types.ParseDay(s)
}

// parseWeekdays parses a comma separated list such as "mon,wed,fri".
func parseWeekdays(s string) ([]types.WeekDay, error) {
	var out []types.WeekDay
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := types.ParseWeekDay(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// resolveCategory accepts a category id or an exact title.
func resolveCategory(svc *habits.Service, ref string) (types.Category, error) {
	cats, err := svc.Categories()
	if err != nil {
		return types.Category{}, err
	}
	id, idErr := uuid.Parse(ref)
	for _, c := range cats {
		if (idErr == nil && c.ID == id) || c.Title == ref {
			return c, nil
		}
	}
	return types.Category{}, fmt.Errorf("category %q not found", ref)
}

// resolveTracker accepts a tracker id or an exact title.
func resolveTracker(svc *habits.Service, ref string) (types.Tracker, error) {
	trackers, err := svc.Trackers()
	if err != nil {
		return types.Tracker{}, err
	}
	id, idErr := uuid.Parse(ref)
	var match []types.Tracker
	for _, t := range trackers {
		if idErr == nil && t.ID == id {
			return t, nil
		}
		if t.Title == ref {
			match = append(match, t)
		}
	}
	switch len(match) {
	case 0:
		return types.Tracker{}, fmt.Errorf("tracker %q not found", ref)
	case 1:
		return match[0], nil
	default:
		return types.Tracker{}, fmt.Errorf("tracker title %q is ambiguous, use the id", ref)
	}
}
