// Package memory provides in-process Remote and Mirror backends. They back
// the "memory://" DSN and are the fixtures used throughout the test suites.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/julianstephens/agencydesk/internal/storage"
)

func init() {
	storage.RegisterRemote("memory", func(string) (storage.Remote, error) { return NewRemote(), nil })
	storage.RegisterRemote("mem", func(string) (storage.Remote, error) { return NewRemote(), nil })
	storage.RegisterMirror("memory", func(string) (storage.Mirror, error) { return NewMirror(), nil })
}

// WriteHook runs before every write. Returning an error fails the write;
// blocking in the hook holds the write in flight.
type WriteHook func(ctx context.Context, slot string, value json.RawMessage) error

type entry struct {
	value   []byte
	version int64
}

// Remote is a versioned in-memory slot store.
type Remote struct {
	mu       sync.Mutex
	slots    map[string]entry
	writes   map[string]int
	hook     WriteHook
	readErr  error
	slotErrs map[string]error
	closed   bool
}

func NewRemote() *Remote {
	return &Remote{
		slots:    map[string]entry{},
		writes:   map[string]int{},
		slotErrs: map[string]error{},
	}
}

func (r *Remote) Read(ctx context.Context, slot string) (storage.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return storage.Snapshot{}, storage.ErrClosed
	}
	if r.readErr != nil {
		return storage.Snapshot{}, r.readErr
	}
	if err := r.slotErrs[slot]; err != nil {
		return storage.Snapshot{}, err
	}
	e, ok := r.slots[slot]
	if !ok {
		return storage.Snapshot{}, nil
	}
	return storage.Snapshot{Value: clone(e.value), Version: e.version}, nil
}

func (r *Remote) Write(ctx context.Context, slot string, value json.RawMessage, expectedVersion int64) (int64, error) {
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, slot, value); err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, storage.ErrClosed
	}
	current := r.slots[slot]
	if current.version != expectedVersion {
		return 0, &storage.ConflictError{Slot: slot, Expected: expectedVersion, Actual: current.version}
	}
	next := entry{value: clone(value), version: current.version + 1}
	r.slots[slot] = next
	r.writes[slot]++
	return next.version, nil
}

func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Seed stores value without counting it as a write. The version is bumped
// so writers holding an older version see a conflict.
func (r *Remote) Seed(slot string, value json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.slots[slot]
	r.slots[slot] = entry{value: clone(value), version: current.version + 1}
}

// Value returns the stored bytes of slot, or nil.
func (r *Remote) Value(slot string) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.slots[slot].value)
}

// Writes returns how many successful writes slot has received.
func (r *Remote) Writes(slot string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[slot]
}

func (r *Remote) SetWriteHook(hook WriteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *Remote) SetReadError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = err
}

// SetSlotReadError makes reads of one slot fail; nil clears it.
func (r *Remote) SetSlotReadError(slot string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.slotErrs, slot)
		return
	}
	r.slotErrs[slot] = err
}

// Mirror is an in-memory local cache.
type Mirror struct {
	mu       sync.Mutex
	slots    map[string][]byte
	writeErr error
}

func NewMirror() *Mirror {
	return &Mirror{slots: map[string][]byte{}}
}

func (m *Mirror) Read(ctx context.Context, slot string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[slot]
	if !ok {
		return nil, nil
	}
	return clone(v), nil
}

func (m *Mirror) Write(ctx context.Context, slot string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.slots[slot] = clone(value)
	return nil
}

func (m *Mirror) Close() error { return nil }

// SetWriteError makes every subsequent mirror write fail with err.
func (m *Mirror) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
