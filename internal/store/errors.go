package store

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/habitstore/internal/types"
)

var (
	ErrSchemaUnavailable   = errors.New("store schema unavailable")
	ErrContainerLoadFailed = errors.New("store container load failed")
	ErrSaveFailed          = errors.New("save failed")
	ErrNotOwned            = errors.New("entity not owned by this transaction")
	ErrNotFound            = errors.New("entity not found")
	ErrClosed              = errors.New("store closed")
)

// ContainerLoadError reports that the database could not be opened.
type ContainerLoadError struct {
	Cause error
}

func (e *ContainerLoadError) Error() string {
	return fmt.Sprintf("%v: %v", ErrContainerLoadFailed, e.Cause)
}

func (e *ContainerLoadError) Is(target error) bool { return target == ErrContainerLoadFailed }
func (e *ContainerLoadError) Unwrap() error        { return e.Cause }

// SaveError reports that staged writes could not be applied.
type SaveError struct {
	Cause error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSaveFailed, e.Cause)
}

func (e *SaveError) Is(target error) bool { return target == ErrSaveFailed }
func (e *SaveError) Unwrap() error        { return e.Cause }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind types.EntityKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
