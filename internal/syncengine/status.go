package syncengine

import (
	"sync"
	"time"

	"github.com/julianstephens/agencydesk/internal/constants"
)

// StatusBoard folds per-slot save states into the process-wide status.
// Priority is error > saving > saved > idle. A slot in error stays there
// until its next successful write.
type StatusBoard struct {
	mu         sync.Mutex
	resetDelay time.Duration
	slots      map[string]constants.SaveStatus
	errs       map[string]error
	timers     map[string]*time.Timer
	current    constants.SaveStatus
	subs       map[int]chan constants.SaveStatus
	nextSub    int
}

func NewStatusBoard(resetDelay time.Duration) *StatusBoard {
	if resetDelay <= 0 {
		resetDelay = constants.DefaultStatusResetDelay
	}
	return &StatusBoard{
		resetDelay: resetDelay,
		slots:      map[string]constants.SaveStatus{},
		errs:       map[string]error{},
		timers:     map[string]*time.Timer{},
		current:    constants.StatusIdle,
		subs:       map[int]chan constants.SaveStatus{},
	}
}

// Status returns the aggregated status.
func (b *StatusBoard) Status() constants.SaveStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SlotStatus returns the state of one slot, idle if it never saved.
func (b *StatusBoard) SlotStatus(slot string) constants.SaveStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.slots[slot]; ok {
		return s
	}
	return constants.StatusIdle
}

// Err returns the last write error of a slot still in error.
func (b *StatusBoard) Err(slot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs[slot]
}

// Slots returns a copy of every tracked slot state.
func (b *StatusBoard) Slots() map[string]constants.SaveStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]constants.SaveStatus, len(b.slots))
	for k, v := range b.slots {
		out[k] = v
	}
	return out
}

// Subscribe delivers the aggregated status whenever it changes. Slow
// readers only see the latest value. Call cancel to stop delivery.
func (b *StatusBoard) Subscribe() (<-chan constants.SaveStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan constants.SaveStatus, 1)
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *StatusBoard) markSaving(slot string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer(slot)
	if b.slots[slot] != constants.StatusError {
		b.slots[slot] = constants.StatusSaving
	}
	b.publish()
}

func (b *StatusBoard) markSaved(slot string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer(slot)
	b.slots[slot] = constants.StatusSaved
	delete(b.errs, slot)
	b.timers[slot] = time.AfterFunc(b.resetDelay, func() { b.resetIdle(slot) })
	b.publish()
}

func (b *StatusBoard) markError(slot string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer(slot)
	b.slots[slot] = constants.StatusError
	b.errs[slot] = err
	b.publish()
}

func (b *StatusBoard) resetIdle(slot string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slots[slot] != constants.StatusSaved {
		return
	}
	b.slots[slot] = constants.StatusIdle
	delete(b.timers, slot)
	b.publish()
}

func (b *StatusBoard) stopTimer(slot string) {
	if t, ok := b.timers[slot]; ok {
		t.Stop()
		delete(b.timers, slot)
	}
}

// publish must be called with b.mu held.
func (b *StatusBoard) publish() {
	next := fold(b.slots)
	if next == b.current {
		return
	}
	b.current = next
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

func fold(slots map[string]constants.SaveStatus) constants.SaveStatus {
	out := constants.StatusIdle
	for _, s := range slots {
		if rank(s) > rank(out) {
			out = s
		}
	}
	return out
}

func rank(s constants.SaveStatus) int {
	switch s {
	case constants.StatusError:
		return 3
	case constants.StatusSaving:
		return 2
	case constants.StatusSaved:
		return 1
	default:
		return 0
	}
}
