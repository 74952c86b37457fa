package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is returned by Remote.Write when the stored version of
	// a slot no longer matches the version the writer last saw.
	ErrVersionConflict = errors.New("slot version conflict")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("storage backend closed")
	// ErrInvalidDSN is returned when a backend DSN cannot be used.
	ErrInvalidDSN = errors.New("invalid storage DSN")
)

// Snapshot is a slot value as read from the remote store. Version is 0 when
// the slot has never been written.
type Snapshot struct {
	Value   json.RawMessage
	Version int64
}

// Remote is the durable, authoritative slot store.
type Remote interface {
	// Read returns the stored value of slot. A missing slot yields a zero
	// Snapshot and a nil error.
	Read(ctx context.Context, slot string) (Snapshot, error)
	// Write replaces the slot value if its stored version equals
	// expectedVersion and returns the new version.
	Write(ctx context.Context, slot string, value json.RawMessage, expectedVersion int64) (int64, error)
	Close() error
}

// Mirror is the best-effort local copy of every slot, used only for recovery.
type Mirror interface {
	// Read returns nil, nil when the slot has no local copy.
	Read(ctx context.Context, slot string) (json.RawMessage, error)
	Write(ctx context.Context, slot string, value json.RawMessage) error
	Close() error
}

// ConflictError wraps ErrVersionConflict with the slot and versions involved.
type ConflictError struct {
	Slot     string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s: version conflict (expected %d, stored %d)", e.Slot, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// IsEmpty reports whether a slot value counts as "no data": absent, JSON
// null, an empty array, an empty object or an empty string.
func IsEmpty(value json.RawMessage) bool {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "[]", "{}", `""`:
		return true
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
