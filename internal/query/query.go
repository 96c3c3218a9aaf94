// Package query turns a view intent (day, completion filter, search text) into a
// tracker predicate. Predicates evaluate in process and compile to SQL
// conditions for the store.
package query

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/hyperengineering/habitstore/internal/types"
	"golang.org/x/text/cases"
)

// Filter selects trackers by completion state on the intent's day.
type Filter int

const (
	All Filter = iota
	Completed
	NotCompleted
)

func (f Filter) String() string {
	switch f {
	case Completed:
		return "completed"
	case NotCompleted:
		return "not_completed"
	default:
		return "all"
	}
}

// ParseFilter accepts all, completed and incomplete (or not_completed).
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return All, nil
	case "completed", "done":
		return Completed, nil
	case "incomplete", "not_completed", "not-completed", "open":
		return NotCompleted, nil
	default:
		return All, fmt.Errorf("invalid filter %q", s)
	}
}

// Intent is what a caller wants to see.
type Intent struct {
	Date       types.Day
	Filter     Filter
	SearchText string
}

// Predicate is the compiled form of an Intent.
type Predicate struct {
	date   types.Day
	filter Filter
	search string
}

// Build compiles an intent. A non-empty search text replaces the completion filter.
func Build(in Intent) Predicate {
	p := Predicate{date: in.Date, filter: in.Filter}
	if s := strings.TrimSpace(in.SearchText); s != "" {
		p.search = fold(s)
		p.filter = All
	}
	return p
}

// Date is the day the predicate is evaluated against.
func (p Predicate) Date() types.Day { return p.date }

// Filter is the effective completion filter (All while searching).
func (p Predicate) Filter() Filter { return p.filter }

// Searching reports whether a title search is active.
func (p Predicate) Searching() bool { return p.search != "" }

// Matches evaluates the predicate for a tracker whose completion state on
// p.Date() is completed.
func (p Predicate) Matches(t types.Tracker, completed bool) bool {
	if !t.EligibleOn(p.date) {
		return false
	}
	if p.search != "" {
		return p.MatchesTitle(t.Title)
	}
	switch p.filter {
	case Completed:
		return completed
	case NotCompleted:
		return !completed
	default:
		return true
	}
}

// MatchesTitle reports whether title contains the search text, ignoring case.
// It always matches when no search is active.
func (p Predicate) MatchesTitle(title string) bool {
	if p.search == "" {
		return true
	}
	return strings.Contains(fold(title), p.search)
}

// Conditions compiles the day and completion rules for a select over
// trackers aliased t. Title search stays in process because SQLite LIKE only
// folds ASCII.
func (p Predicate) Conditions() sq.And {
	day := p.date.String()
	conds := sq.And{
		sq.Or{
			sq.And{
				sq.Eq{"t.rule_kind": types.RuleOneOff},
				sq.Eq{"t.one_off_date": day},
			},
			sq.And{
				sq.Eq{"t.rule_kind": types.RuleRecurring},
				sq.Expr("EXISTS (SELECT 1 FROM schedule_entries se WHERE se.tracker_id = t.id AND se.weekday = ?)",
					int(p.date.Weekday())),
			},
		},
	}
	switch p.filter {
	case Completed:
		conds = append(conds, sq.Expr(completedExpr, day))
	case NotCompleted:
		conds = append(conds, sq.Expr("NOT "+completedExpr, day))
	}
	return conds
}

const completedExpr = "EXISTS (SELECT 1 FROM completion_records cr WHERE cr.tracker_id = t.id AND cr.date = ?)"

// CompletedColumn selects whether each tracker is completed on the predicate's day.
func (p Predicate) CompletedColumn() sq.Sqlizer {
	return sq.Alias(sq.Expr(completedExpr, p.date.String()), "completed")
}

// OrderBy mirrors Less for SQL.
var OrderBy = []string{"t.is_pinned DESC", "c.title DESC", "t.title ASC", "t.id ASC"}

// fold returns a caseless form of s for substring comparison.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Row is a tracker as it appears in a query result.
type Row struct {
	Tracker       types.Tracker `json:"tracker"`
	CategoryTitle string        `json:"category_title"`
	Completed     bool          `json:"completed"`
}

// Equal compares row content.
func (r Row) Equal(other Row) bool {
	return r.Completed == other.Completed &&
		r.CategoryTitle == other.CategoryTitle &&
		r.Tracker.Equal(other.Tracker)
}

// Less orders pinned trackers first, then category title descending, then
// tracker title ascending. The id breaks remaining ties.
func Less(a, b Row) bool {
	if a.Tracker.IsPinned != b.Tracker.IsPinned {
		return a.Tracker.IsPinned
	}
	if a.CategoryTitle != b.CategoryTitle {
		return a.CategoryTitle > b.CategoryTitle
	}
	if a.Tracker.Title != b.Tracker.Title {
		return a.Tracker.Title < b.Tracker.Title
	}
	return a.Tracker.ID.String() < b.Tracker.ID.String()
}

// Apply filters rows through the predicate and sorts them with Less.
func (p Predicate) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if p.Matches(r.Tracker, r.Completed) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}
