package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperengineering/habitstore/internal/types"
)

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrSchemaUnavailable", ErrSchemaUnavailable},
		{"ErrContainerLoadFailed", ErrContainerLoadFailed},
		{"ErrSaveFailed", ErrSaveFailed},
		{"ErrNotOwned", ErrNotOwned},
		{"ErrNotFound", ErrNotFound},
		{"ErrClosed", ErrClosed},
	}

	for _, s := range sentinels {
		t.Run(s.name+"_wrapped", func(t *testing.T) {
			wrapped := fmt.Errorf("operation failed: %w", s.err)
			if !errors.Is(wrapped, s.err) {
				t.Errorf("errors.Is should return true for wrapped %s", s.name)
			}
		})
	}
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	cause := sql.ErrConnDone

	tests := []struct {
		name     string
		err      error
		sentinel error
		cause    error
	}{
		{"ContainerLoadError", &ContainerLoadError{Cause: cause}, ErrContainerLoadFailed, cause},
		{"SaveError", &SaveError{Cause: cause}, ErrSaveFailed, cause},
		{"NotFoundError", &NotFoundError{Kind: types.KindTracker, ID: "abc"}, ErrNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if tt.cause != nil && !errors.Is(wrapped, tt.cause) {
				t.Errorf("errors.Is(%v, cause) = false", wrapped)
			}
			if errors.Is(wrapped, ErrNotOwned) {
				t.Error("typed error should not match ErrNotOwned")
			}
		})
	}
}

func TestNotFoundError_Message(t *testing.T) {
	err := &NotFoundError{Kind: types.KindCategory, ID: "42"}

	if got, want := err.Error(), "category 42 not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
