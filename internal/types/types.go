package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Field limits shared by validation and the schema.
const (
	MaxTitleLength = 38
	MaxEmojiLength = 8
)

// EntityKind names a persisted entity type.
type EntityKind string

const (
	KindCategory         EntityKind = "category"
	KindTracker          EntityKind = "tracker"
	KindCompletionRecord EntityKind = "completion_record"
	KindStatistic        EntityKind = "statistic"
)

// Entity is implemented by every persisted type.
type Entity interface {
	EntityKind() EntityKind
	EntityKey() string
}

// Category groups trackers. Titles are unique.
type Category struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

func (c Category) EntityKind() EntityKind { return KindCategory }
func (c Category) EntityKey() string      { return c.ID.String() }

// ErrInvalidRule is returned when a tracker has no usable completion rule.
var ErrInvalidRule = errors.New("tracker must have exactly one completion rule")

// CompletionRule decides on which days a tracker is eligible.
// Implemented only by Recurring and OneOff.
type CompletionRule interface {
	EligibleOn(d Day) bool
	isCompletionRule()
}

// Recurring trackers are eligible on a fixed set of weekdays.
type Recurring struct {
	Days WeekdaySet
}

// NewRecurring returns a Recurring rule, rejecting an empty weekday set.
func NewRecurring(days ...WeekDay) (Recurring, error) {
	set := NewWeekdaySet(days...)
	if set.IsEmpty() {
		return Recurring{}, fmt.Errorf("%w: recurring rule needs at least one weekday", ErrInvalidRule)
	}
	return Recurring{Days: set}, nil
}

func (r Recurring) EligibleOn(d Day) bool { return r.Days.Has(d.Weekday()) }
func (Recurring) isCompletionRule()       {}

// OneOff trackers are eligible on exactly one day.
type OneOff struct {
	Date Day
}

func (o OneOff) EligibleOn(d Day) bool { return o.Date == d }
func (OneOff) isCompletionRule()       {}

// Rule kinds as stored in the trackers table.
const (
	RuleRecurring = "recurring"
	RuleOneOff    = "one_off"
)

// RuleKind returns the storage name of r's variant.
func RuleKind(r CompletionRule) string {
	switch r.(type) {
	case Recurring:
		return RuleRecurring
	case OneOff:
		return RuleOneOff
	default:
		return ""
	}
}

// CheckRule verifies that r is a usable rule.
func CheckRule(r CompletionRule) error {
	switch rule := r.(type) {
	case Recurring:
		if rule.Days.IsEmpty() {
			return fmt.Errorf("%w: recurring rule needs at least one weekday", ErrInvalidRule)
		}
	case OneOff:
		if rule.Date.IsZero() {
			return fmt.Errorf("%w: one-off rule needs a date", ErrInvalidRule)
		}
	default:
		return ErrInvalidRule
	}
	return nil
}

// Tracker is a habit or one-off event definition.
type Tracker struct {
	ID         uuid.UUID
	Title      string
	Color      string
	Emoji      string
	IsPinned   bool
	CategoryID uuid.UUID
	Rule       CompletionRule
}

func (t Tracker) EntityKind() EntityKind { return KindTracker }
func (t Tracker) EntityKey() string      { return t.ID.String() }

// NewTracker is the input for creating a tracker.
type NewTracker struct {
	Title      string
	Color      string
	Emoji      string
	IsPinned   bool
	CategoryID uuid.UUID
	Rule       CompletionRule
}

// Build assigns a fresh id. It fails if the completion rule is missing or empty.
func (n NewTracker) Build() (Tracker, error) {
	if err := CheckRule(n.Rule); err != nil {
		return Tracker{}, err
	}
	return Tracker{
		ID:         uuid.New(),
		Title:      n.Title,
		Color:      n.Color,
		Emoji:      n.Emoji,
		IsPinned:   n.IsPinned,
		CategoryID: n.CategoryID,
		Rule:       n.Rule,
	}, nil
}

// EligibleOn reports whether the tracker is scheduled on d.
func (t Tracker) EligibleOn(d Day) bool {
	return t.Rule != nil && t.Rule.EligibleOn(d)
}

// Equal compares every field, including the rule.
func (t Tracker) Equal(other Tracker) bool {
	return t.ID == other.ID &&
		t.Title == other.Title &&
		t.Color == other.Color &&
		t.Emoji == other.Emoji &&
		t.IsPinned == other.IsPinned &&
		t.CategoryID == other.CategoryID &&
		t.Rule == other.Rule
}

type trackerJSON struct {
	ID         uuid.UUID   `json:"id"`
	Title      string      `json:"title"`
	Color      string      `json:"color"`
	Emoji      string      `json:"emoji"`
	IsPinned   bool        `json:"is_pinned"`
	CategoryID uuid.UUID   `json:"category_id"`
	Rule       string      `json:"rule"`
	Weekdays   *WeekdaySet `json:"weekdays,omitempty"`
	Date       *Day        `json:"date,omitempty"`
}

// MarshalJSON flattens the completion rule into rule/weekdays/date fields.
func (t Tracker) MarshalJSON() ([]byte, error) {
	out := trackerJSON{
		ID:         t.ID,
		Title:      t.Title,
		Color:      t.Color,
		Emoji:      t.Emoji,
		IsPinned:   t.IsPinned,
		CategoryID: t.CategoryID,
		Rule:       RuleKind(t.Rule),
	}
	switch r := t.Rule.(type) {
	case Recurring:
		out.Weekdays = &r.Days
	case OneOff:
		out.Date = &r.Date
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *Tracker) UnmarshalJSON(data []byte) error {
	var in trackerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Tracker{
		ID:         in.ID,
		Title:      in.Title,
		Color:      in.Color,
		Emoji:      in.Emoji,
		IsPinned:   in.IsPinned,
		CategoryID: in.CategoryID,
	}
	switch in.Rule {
	case RuleRecurring:
		if in.Weekdays == nil {
			return fmt.Errorf("%w: recurring rule without weekdays", ErrInvalidRule)
		}
		t.Rule = Recurring{Days: *in.Weekdays}
	case RuleOneOff:
		if in.Date == nil {
			return fmt.Errorf("%w: one-off rule without date", ErrInvalidRule)
		}
		t.Rule = OneOff{Date: *in.Date}
	default:
		return fmt.Errorf("%w: unknown rule %q", ErrInvalidRule, in.Rule)
	}
	return nil
}

// ScheduleEntry materializes one weekday of a recurring tracker.
type ScheduleEntry struct {
	TrackerID uuid.UUID `json:"tracker_id"`
	WeekDay   WeekDay   `json:"weekday"`
}

// ScheduleEntries expands a tracker's rule into join rows. One-off trackers have none.
func ScheduleEntries(t Tracker) []ScheduleEntry {
	r, ok := t.Rule.(Recurring)
	if !ok {
		return nil
	}
	entries := make([]ScheduleEntry, 0, r.Days.Len())
	for _, d := range r.Days.Days() {
		entries = append(entries, ScheduleEntry{TrackerID: t.ID, WeekDay: d})
	}
	return entries
}

// CompletionRecord marks a tracker done on a day.
type CompletionRecord struct {
	TrackerID uuid.UUID `json:"tracker_id"`
	Date      Day       `json:"date"`
}

func (r CompletionRecord) EntityKind() EntityKind { return KindCompletionRecord }
func (r CompletionRecord) EntityKey() string      { return r.TrackerID.String() + "/" + r.Date.String() }

// StatisticID identifies one of the four fixed statistic rows.
type StatisticID string

const (
	StatBestStreak       StatisticID = "best_streak"
	StatPerfectDays      StatisticID = "perfect_days"
	StatTotalCompletions StatisticID = "total_completions"
	StatAverage          StatisticID = "average"
)

// StatisticIDs lists the fixed rows in display order.
var StatisticIDs = []StatisticID{StatBestStreak, StatPerfectDays, StatTotalCompletions, StatAverage}

// Statistic is one derived value.
type Statistic struct {
	ID    StatisticID `json:"id"`
	Value int         `json:"value"`
}

func (s Statistic) EntityKind() EntityKind { return KindStatistic }
func (s Statistic) EntityKey() string      { return string(s.ID) }

// ZeroStatistics returns the four rows with value zero.
func ZeroStatistics() []Statistic {
	out := make([]Statistic, len(StatisticIDs))
	for i, id := range StatisticIDs {
		out[i] = Statistic{ID: id}
	}
	return out
}
