package sessioncache

import (
	"errors"
	"fmt"

	"booksearcher/internal/services"
)

var (
	// ErrNotFound reports a session that is absent or not yet committed.
	ErrNotFound = fmt.Errorf("session %w", services.ErrNotFound)
	// ErrCorruptEntry reports a session whose files exist but fail to parse.
	ErrCorruptEntry = errors.New("corrupt cache entry")
	// ErrCacheIO reports a failure to read or write the cache directory.
	ErrCacheIO = errors.New("cache i/o failure")
)

// EntryError ties a cache failure to the session it concerns.
type EntryError struct {
	ID  int
	Op  string
	Err error
}

func (e *EntryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("sessioncache: %s %d: %v", e.Op, e.ID, e.Err)
}

func (e *EntryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func entryErr(id int, op string, marker, cause error) error {
	if cause == nil {
		return &EntryError{ID: id, Op: op, Err: marker}
	}
	return &EntryError{ID: id, Op: op, Err: fmt.Errorf("%w: %w", marker, cause)}
}

func ioErr(op string, cause error) error {
	return fmt.Errorf("sessioncache: %s: %w: %w", op, ErrCacheIO, cause)
}
