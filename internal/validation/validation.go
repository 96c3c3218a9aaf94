package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}

// Errors is returned when one or more fields fail validation.
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Err returns the accumulated errors as an error, or nil.
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	return Errors(c.errors)
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateID returns an error if the id is the nil UUID.
func ValidateID(field string, id uuid.UUID) *ValidationError {
	if id == uuid.Nil {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateNotAfter returns an error if day is later than limit.
func ValidateNotAfter(field string, day, limit types.Day) *ValidationError {
	if day.After(limit) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must not be after %s", limit),
		}
	}
	return nil
}

// validateTitle applies the shared title rules.
func validateTitle(c *Collector, field, value string) {
	c.Add(ValidateRequired(field, value))
	c.Add(ValidateMaxLength(field, value, types.MaxTitleLength))
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
}

// ValidateCategory checks a category before it is written.
func ValidateCategory(cat types.Category) error {
	var c Collector
	validateTitle(&c, "title", cat.Title)
	return c.Err()
}

// ValidateTracker checks every field of a tracker, including its rule.
func ValidateTracker(t types.Tracker) error {
	var c Collector
	validateTitle(&c, "title", t.Title)
	c.Add(ValidateRequired("color", t.Color))
	c.Add(ValidateRequired("emoji", t.Emoji))
	c.Add(ValidateMaxLength("emoji", t.Emoji, types.MaxEmojiLength))
	c.Add(ValidateID("category_id", t.CategoryID))
	if err := types.CheckRule(t.Rule); err != nil {
		c.Add(&ValidationError{Field: "rule", Message: err.Error()})
	}
	return c.Err()
}

// ValidateCompletion checks that a record is not dated after today.
func ValidateCompletion(r types.CompletionRecord, today types.Day) error {
	var c Collector
	c.Add(ValidateID("tracker_id", r.TrackerID))
	if r.Date.IsZero() {
		c.Add(&ValidationError{Field: "date", Message: "is required"})
	} else {
		c.Add(ValidateNotAfter("date", r.Date, today))
	}
	return c.Err()
}
