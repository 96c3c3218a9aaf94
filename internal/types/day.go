package types

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// DayLayout is the storage and wire format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date without a time of day.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf truncates t to its calendar day in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// NewDay returns the normalized day for the given components.
// Out-of-range values roll over the way time.Date does.
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.Time().Format(DayLayout)
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool {
	return d == Day{}
}

// AddDays returns the day n calendar days after d.
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.Compare(other) < 0
}

// After reports whether d is strictly later than other.
func (d Day) After(other Day) bool {
	return d.Compare(other) > 0
}

// Compare returns -1, 0 or +1.
func (d Day) Compare(other Day) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Weekday returns the ISO weekday of d.
func (d Day) Weekday() WeekDay {
	return WeekDayOf(d.Time().Weekday())
}

// MarshalJSON encodes the day as a YYYY-MM-DD string.
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// WeekDay uses ISO numbering: Monday is 1, Sunday is 7.
type WeekDay int

const (
	Monday WeekDay = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekDayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekDayOf converts a time.Weekday.
func WeekDayOf(w time.Weekday) WeekDay {
	if w == time.Sunday {
		return Sunday
	}
	return WeekDay(w)
}

// Valid reports whether w is Monday..Sunday.
func (w WeekDay) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w WeekDay) String() string {
	if !w.Valid() {
		return fmt.Sprintf("WeekDay(%d)", int(w))
	}
	return weekDayNames[w]
}

// ParseWeekDay accepts full English names or their three-letter prefixes.
func ParseWeekDay(s string) (WeekDay, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for i := Monday; i <= Sunday; i++ {
			if strings.HasPrefix(weekDayNames[i], s) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// WeekdaySet is a set of weekdays.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days, ignoring invalid values.
func NewWeekdaySet(days ...WeekDay) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// With returns s plus d.
func (s WeekdaySet) With(d WeekDay) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<uint(d-1)
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d WeekDay) bool {
	return d.Valid() && s&(1<<uint(d-1)) != 0
}

// Len returns the number of days in the set.
func (s WeekdaySet) Len() int {
	return bits.OnesCount8(uint8(s & 0x7f))
}

// IsEmpty reports whether the set contains no days.
func (s WeekdaySet) IsEmpty() bool {
	return s.Len() == 0
}

// Days lists the set in Monday-first order.
func (s WeekdaySet) Days() []WeekDay {
	days := make([]WeekDay, 0, s.Len())
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s WeekdaySet) String() string {
	names := make([]string, 0, s.Len())
	for _, d := range s.Days() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

// MarshalJSON encodes the set as an array of weekday names.
func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, s.Len())
	for _, d := range s.Days() {
		names = append(names, d.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes an array of weekday names.
func (s *WeekdaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set WeekdaySet
	for _, n := range names {
		d, err := ParseWeekDay(n)
		if err != nil {
			return err
		}
		set = set.With(d)
	}
	*s = set
	return nil
}
