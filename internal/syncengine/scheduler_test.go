package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/internal/storage/memory"
)

// slotState is a minimal in-memory collection used as a snapshot source.
type slotState struct {
	mu    sync.Mutex
	items []string
}

func (s *slotState) set(items ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]string(nil), items...)
}

func (s *slotState) snapshot() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *slotState) restore(value json.RawMessage) error {
	var items []string
	if err := json.Unmarshal(value, &items); err != nil {
		return err
	}
	s.set(items...)
	return nil
}

func newTestScheduler(t *testing.T, opts Options) (*Scheduler, *memory.Remote, *memory.Mirror) {
	t.Helper()
	remote := memory.NewRemote()
	mirror := memory.NewMirror()
	s := NewScheduler(remote, mirror, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, remote, mirror
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSaveNow_WritesRemoteThenMirror(t *testing.T) {
	s, remote, mirror := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotClients, state.snapshot)

	state.set("acme")
	res := s.SaveNow(constants.SlotClients)
	require.NoError(t, res.Wait(waitCtx(t)))

	assert.Equal(t, int64(1), res.Version())
	assert.JSONEq(t, `["acme"]`, string(remote.Value(constants.SlotClients)))
	mirrored, err := mirror.Read(context.Background(), constants.SlotClients)
	require.NoError(t, err)
	assert.JSONEq(t, `["acme"]`, string(mirrored))
	assert.Equal(t, constants.StatusSaved, s.Board().SlotStatus(constants.SlotClients))
}

func TestSaveDebounced_CoalescesBurst(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{DebounceWindow: 50 * time.Millisecond})
	state := &slotState{}
	s.Register(constants.SlotNotes, state.snapshot)

	var results []*Result
	for i := 1; i <= 10; i++ {
		items := make([]string, 0, i)
		for j := 1; j <= i; j++ {
			items = append(items, fmt.Sprintf("n%d", j))
		}
		state.set(items...)
		results = append(results, s.SaveDebounced(constants.SlotNotes))
	}
	require.NoError(t, WaitAll(waitCtx(t), results...))

	assert.Equal(t, 1, remote.Writes(constants.SlotNotes), "burst should produce exactly one write")
	assert.JSONEq(t, `["n1","n2","n3","n4","n5","n6","n7","n8","n9","n10"]`, string(remote.Value(constants.SlotNotes)))
	for _, r := range results {
		assert.Equal(t, int64(1), r.Version())
	}
}

func TestSaveDebounced_WindowResets(t *testing.T) {
	window := 80 * time.Millisecond
	s, remote, _ := newTestScheduler(t, Options{DebounceWindow: window})
	state := &slotState{}
	s.Register(constants.SlotChecklist, state.snapshot)

	first := s.SaveDebounced(constants.SlotChecklist)
	time.Sleep(window / 2)
	state.set("done")
	second := s.SaveDebounced(constants.SlotChecklist)
	time.Sleep(window / 2)

	select {
	case <-first.Done():
		t.Fatal("first request resolved before the reset window elapsed")
	default:
	}

	require.NoError(t, WaitAll(waitCtx(t), first, second))
	assert.Equal(t, 1, remote.Writes(constants.SlotChecklist))
	assert.JSONEq(t, `["done"]`, string(remote.Value(constants.SlotChecklist)))
}

func TestSaveNow_FlushesPendingDebounced(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{DebounceWindow: time.Hour})
	state := &slotState{}
	s.Register(constants.SlotNotes, state.snapshot)

	state.set("draft")
	debounced := s.SaveDebounced(constants.SlotNotes)
	state.set("final")
	immediate := s.SaveNow(constants.SlotNotes)

	require.NoError(t, WaitAll(waitCtx(t), debounced, immediate))
	assert.Equal(t, 1, remote.Writes(constants.SlotNotes))
	assert.Equal(t, immediate.Version(), debounced.Version())
	assert.JSONEq(t, `["final"]`, string(remote.Value(constants.SlotNotes)))
}

func TestSaveNow_RemoteFailureKeepsStateAndReportsError(t *testing.T) {
	s, remote, mirror := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotCalendar, state.snapshot)

	boom := errors.New("remote unavailable")
	remote.SetWriteHook(func(context.Context, string, json.RawMessage) error { return boom })

	state.set("e1")
	res := s.SaveNow(constants.SlotCalendar)
	err := res.Wait(waitCtx(t))
	require.ErrorIs(t, err, boom)

	snap, _ := state.snapshot()
	assert.JSONEq(t, `["e1"]`, string(snap), "in-memory state must not roll back")
	assert.Equal(t, constants.StatusError, s.Board().Status())
	assert.ErrorIs(t, s.Board().Err(constants.SlotCalendar), boom)

	mirrored, _ := mirror.Read(context.Background(), constants.SlotCalendar)
	assert.Nil(t, mirrored, "mirror is only written after a remote success")
}

func TestSaveNow_MirrorFailureIsSwallowed(t *testing.T) {
	s, remote, mirror := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotReminders, state.snapshot)
	mirror.SetWriteError(errors.New("disk full"))

	state.set("r1")
	require.NoError(t, s.SaveNow(constants.SlotReminders).Wait(waitCtx(t)))
	assert.JSONEq(t, `["r1"]`, string(remote.Value(constants.SlotReminders)))
	assert.Equal(t, constants.StatusSaved, s.Board().SlotStatus(constants.SlotReminders))
}

func TestSaveNow_VersionConflict(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotClients, state.snapshot)

	require.NoError(t, s.SaveNow(constants.SlotClients).Wait(waitCtx(t)))
	remote.Seed(constants.SlotClients, json.RawMessage(`["from-elsewhere"]`))

	state.set("mine")
	err := s.SaveNow(constants.SlotClients).Wait(waitCtx(t))
	require.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.JSONEq(t, `["from-elsewhere"]`, string(remote.Value(constants.SlotClients)))
	assert.Equal(t, constants.StatusError, s.Board().SlotStatus(constants.SlotClients))

	// the failed write refreshes the known version, so the next one lands
	state.set("mine", "later")
	res := s.SaveNow(constants.SlotClients)
	require.NoError(t, res.Wait(waitCtx(t)))
	assert.Equal(t, int64(3), res.Version())
	assert.JSONEq(t, `["mine","later"]`, string(remote.Value(constants.SlotClients)))
	assert.Equal(t, constants.StatusSaved, s.Board().SlotStatus(constants.SlotClients))
}

func TestSaveNow_RecoversAfterFailedWrite(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotInvoices, state.snapshot)

	remote.SetWriteHook(func(context.Context, string, json.RawMessage) error {
		// the write may still land on the remote
		remote.Seed(constants.SlotInvoices, json.RawMessage(`["i1"]`))
		return errors.New("connection reset")
	})
	state.set("i1")
	require.Error(t, s.SaveNow(constants.SlotInvoices).Wait(waitCtx(t)))
	remote.SetWriteHook(nil)

	state.set("i1", "i2")
	require.NoError(t, s.SaveNow(constants.SlotInvoices).Wait(waitCtx(t)))
	assert.JSONEq(t, `["i1","i2"]`, string(remote.Value(constants.SlotInvoices)))
}

func TestSlotWritesAreSerialized(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{})
	state := &slotState{}
	s.Register(constants.SlotClients, state.snapshot)

	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	remote.SetWriteHook(func(ctx context.Context, slot string, value json.RawMessage) error {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			<-release
		}
		return nil
	})

	state.set("v1")
	first := s.SaveNow(constants.SlotClients)
	state.set("v2")
	second := s.SaveNow(constants.SlotClients)

	assert.Eventually(t, func() bool {
		return s.Board().SlotStatus(constants.SlotClients) == constants.StatusSaving
	}, time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, WaitAll(waitCtx(t), first, second))
	assert.Less(t, first.Version(), second.Version())
	assert.JSONEq(t, `["v2"]`, string(remote.Value(constants.SlotClients)), "last enqueued state wins")
}

func TestSave_UnknownSlotAndClosed(t *testing.T) {
	s, _, _ := newTestScheduler(t, Options{})
	err := s.SaveNow("nope").Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown slot")

	state := &slotState{}
	s.Register(constants.SlotNotes, state.snapshot)
	require.NoError(t, s.Close(waitCtx(t)))
	assert.ErrorIs(t, s.SaveNow(constants.SlotNotes).Wait(waitCtx(t)), storage.ErrClosed)
}

func TestClose_FlushesPendingDebounced(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{DebounceWindow: time.Hour})
	state := &slotState{}
	s.Register(constants.SlotNotes, state.snapshot)

	state.set("unsaved")
	res := s.SaveDebounced(constants.SlotNotes)
	require.NoError(t, s.Close(waitCtx(t)))

	require.NoError(t, res.Wait(waitCtx(t)))
	assert.JSONEq(t, `["unsaved"]`, string(remote.Value(constants.SlotNotes)))
}

func TestClose_HonorsContextWhileQueueIsFull(t *testing.T) {
	s, remote, _ := newTestScheduler(t, Options{QueueSize: 1})
	state := &slotState{}
	s.Register(constants.SlotCalendar, state.snapshot)

	release := make(chan struct{})
	remote.SetWriteHook(func(context.Context, string, json.RawMessage) error {
		<-release
		return nil
	})

	inFlight := s.SaveNow(constants.SlotCalendar)
	require.Eventually(t, func() bool {
		return s.Board().SlotStatus(constants.SlotCalendar) == constants.StatusSaving
	}, time.Second, 5*time.Millisecond)
	queued := s.SaveNow(constants.SlotCalendar)

	blocked := make(chan *Result, 1)
	go func() { blocked <- s.SaveNow(constants.SlotCalendar) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)

	var third *Result
	select {
	case third = <-blocked:
	case <-time.After(time.Second):
		t.Fatal("save stayed blocked after close")
	}
	assert.ErrorIs(t, third.Wait(waitCtx(t)), storage.ErrClosed)

	select {
	case <-inFlight.Done():
		t.Fatal("in-flight write resolved before the remote answered")
	default:
	}

	close(release)
	require.NoError(t, WaitAll(waitCtx(t), inFlight, queued), "accepted saves still land")
}
