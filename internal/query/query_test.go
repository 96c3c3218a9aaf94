package query

import (
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/types"
)

var (
	monday    = types.NewDay(2025, 1, 6)
	wednesday = types.NewDay(2025, 1, 8)
)

func recurring(t *testing.T, days ...types.WeekDay) types.Tracker {
	t.Helper()
	rule, err := types.NewRecurring(days...)
	if err != nil {
		t.Fatalf("NewRecurring: %v", err)
	}
	return types.Tracker{ID: uuid.New(), Title: "tracker", Rule: rule}
}

func TestPredicate_RecurringExcludedOnOtherWeekday(t *testing.T) {
	// Given: a tracker scheduled on Mondays only
	tr := recurring(t, types.Monday)

	// When: querying All on a Wednesday
	p := Build(Intent{Date: wednesday, Filter: All})

	// Then: it is excluded
	if p.Matches(tr, false) {
		t.Error("Monday tracker matched on a Wednesday")
	}
	if !Build(Intent{Date: monday}).Matches(tr, false) {
		t.Error("Monday tracker did not match on a Monday")
	}
}

func TestPredicate_OneOffMatchesOnlyItsDate(t *testing.T) {
	tr := types.Tracker{ID: uuid.New(), Rule: types.OneOff{Date: wednesday}}

	if !Build(Intent{Date: wednesday}).Matches(tr, false) {
		t.Error("one-off tracker did not match its date")
	}
	if Build(Intent{Date: monday}).Matches(tr, false) {
		t.Error("one-off tracker matched another date")
	}
}

func TestPredicate_CompletionFilters(t *testing.T) {
	tr := recurring(t, types.Monday)

	tests := []struct {
		filter    Filter
		completed bool
		want      bool
	}{
		{All, true, true},
		{All, false, true},
		{Completed, true, true},
		{Completed, false, false},
		{NotCompleted, true, false},
		{NotCompleted, false, true},
	}

	for _, tt := range tests {
		p := Build(Intent{Date: monday, Filter: tt.filter})
		if got := p.Matches(tr, tt.completed); got != tt.want {
			t.Errorf("filter=%v completed=%v: Matches() = %v, want %v", tt.filter, tt.completed, got, tt.want)
		}
	}
}

func TestPredicate_SearchReplacesCompletionFilter(t *testing.T) {
	// Given: two eligible trackers, only one titled to match
	foobar := recurring(t, types.Monday)
	foobar.Title = "Foobar"
	baz := recurring(t, types.Monday)
	baz.Title = "Baz"

	// When: searching "foo" with the Completed filter requested
	p := Build(Intent{Date: monday, Filter: Completed, SearchText: "foo"})

	// Then: the completion filter is ignored and only the title decides
	if !p.Searching() || p.Filter() != All {
		t.Fatalf("Searching() = %v, Filter() = %v", p.Searching(), p.Filter())
	}
	if !p.Matches(foobar, false) {
		t.Error("Foobar should match search 'foo' regardless of completion")
	}
	if p.Matches(baz, true) {
		t.Error("Baz should not match search 'foo'")
	}
}

func TestPredicate_SearchRespectsDateRule(t *testing.T) {
	tr := recurring(t, types.Monday)
	tr.Title = "Foobar"

	if Build(Intent{Date: wednesday, SearchText: "foo"}).Matches(tr, false) {
		t.Error("search matched a tracker not eligible on the date")
	}
}

func TestPredicate_SearchIsCaseInsensitiveUnicode(t *testing.T) {
	tr := recurring(t, types.Monday)
	tr.Title = "STRAßE laufen"

	if !Build(Intent{Date: monday, SearchText: "strasse"}).Matches(tr, false) {
		t.Error("case folding should match ß against ss")
	}
	if !Build(Intent{Date: monday, SearchText: "LAUFEN"}).Matches(tr, false) {
		t.Error("search should ignore case")
	}
}

func TestPredicate_BlankSearchFallsBackToFilter(t *testing.T) {
	tr := recurring(t, types.Monday)

	p := Build(Intent{Date: monday, Filter: Completed, SearchText: "   "})

	if p.Searching() {
		t.Error("blank search text should not activate search")
	}
	if p.Matches(tr, false) {
		t.Error("Completed filter should apply when search text is blank")
	}
}

func TestParseFilter(t *testing.T) {
	tests := map[string]Filter{
		"":              All,
		"all":           All,
		"Completed":     Completed,
		"not_completed": NotCompleted,
		"not-completed": NotCompleted,
		"incomplete":    NotCompleted,
		"Incomplete":    NotCompleted,
	}
	for in, want := range tests {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFilter("sometimes"); err == nil {
		t.Error("ParseFilter(sometimes) = nil error, want error")
	}
}

func TestConditions_CompileToSQL(t *testing.T) {
	p := Build(Intent{Date: monday, Filter: NotCompleted})

	sql, args, err := sq.Select("t.id").From("trackers t").Where(p.Conditions()).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	for _, frag := range []string{"t.rule_kind = ?", "t.one_off_date = ?", "se.weekday = ?", "NOT EXISTS"} {
		if !strings.Contains(sql, frag) {
			t.Errorf("SQL missing %q: %s", frag, sql)
		}
	}
	want := []any{types.RuleOneOff, "2025-01-06", types.RuleRecurring, int(types.Monday), "2025-01-06"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestConditions_AllOmitsCompletionClause(t *testing.T) {
	sql, _, err := sq.Select("t.id").From("trackers t").Where(Build(Intent{Date: monday}).Conditions()).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if strings.Contains(sql, "completion_records") {
		t.Errorf("All filter should not reference completion_records: %s", sql)
	}
}
