// Package syncengine persists in-memory slots to the remote store and the
// local mirror, and restores them at startup.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/metrics"
	"github.com/julianstephens/agencydesk/internal/storage"
)

// SnapshotFunc returns the current in-memory value of a slot.
type SnapshotFunc func() (json.RawMessage, error)

// RestoreFunc replaces the in-memory value of a slot.
type RestoreFunc func(value json.RawMessage) error

// ErrSlotReloaded resolves a save that found the remote holding data this
// process never loaded. The remote value replaced the local changes.
var ErrSlotReloaded = errors.New("slot reloaded from remote, local changes discarded")

type Options struct {
	// DebounceWindow is the quiet period a debounced save waits for.
	DebounceWindow time.Duration
	// StatusResetDelay is how long a slot shows saved before idle.
	StatusResetDelay time.Duration
	QueueSize        int
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = constants.DefaultDebounceWindow
	}
	if o.StatusResetDelay <= 0 {
		o.StatusResetDelay = constants.DefaultStatusResetDelay
	}
	if o.QueueSize <= 0 {
		o.QueueSize = constants.SlotQueueSize
	}
	return o
}

// Scheduler owns one writer goroutine per registered slot. Writes of a slot
// are serialized; different slots write in parallel.
type Scheduler struct {
	remote storage.Remote
	mirror storage.Mirror
	board  *StatusBoard
	opts   Options

	mu      sync.RWMutex
	writers map[string]*slotWriter
	closed  bool
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler. mirror may be nil.
func NewScheduler(remote storage.Remote, mirror storage.Mirror, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		remote:  remote,
		mirror:  mirror,
		board:   NewStatusBoard(opts.StatusResetDelay),
		opts:    opts,
		writers: map[string]*slotWriter{},
	}
}

func (s *Scheduler) Board() *StatusBoard {
	return s.board
}

// Register starts the writer for slot. Registering a slot twice replaces
// its snapshot source.
func (s *Scheduler) Register(slot string, snapshot SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if w, ok := s.writers[slot]; ok {
		w.setSnapshot(snapshot)
		return
	}
	w := &slotWriter{
		slot:  slot,
		reqs:  make(chan request, s.opts.QueueSize),
		done:  make(chan struct{}),
		sched: s,
	}
	w.setSnapshot(snapshot)
	s.writers[slot] = w
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run()
	}()
}

// SetVersion records the remote version a slot was loaded at.
func (s *Scheduler) SetVersion(slot string, version int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.writers[slot]; ok {
		w.version.Store(version)
	}
}

// MarkUnloaded records that the slot's remote value is unknown. Its next
// write reads the remote first: a non-empty remote is restored in memory
// and wins, an empty one is written over.
func (s *Scheduler) MarkUnloaded(slot string, restore RestoreFunc) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.writers[slot]; ok {
		w.restore.Store(restore)
		w.unloaded.Store(true)
	}
}

func (s *Scheduler) Version(slot string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.writers[slot]; ok {
		return w.version.Load()
	}
	return 0
}

// SaveNow writes the slot's current value right away, covering any
// debounced saves still waiting on that slot.
func (s *Scheduler) SaveNow(slot string) *Result {
	return s.Save(slot, constants.SaveImmediate)
}

// SaveDebounced (re)arms the slot's quiet window; the latest value is
// written once the window passes without another request.
func (s *Scheduler) SaveDebounced(slot string) *Result {
	return s.Save(slot, constants.SaveDebounced)
}

func (s *Scheduler) Save(slot string, policy constants.SavePolicy) *Result {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Resolved(storage.ErrClosed)
	}
	w, ok := s.writers[slot]
	if !ok {
		s.mu.RUnlock()
		return Resolved(fmt.Errorf("unknown slot %q", slot))
	}
	w.senders.Add(1)
	s.mu.RUnlock()
	defer w.senders.Done()

	res := newResult()
	select {
	case w.reqs <- request{policy: policy, result: res}:
		return res
	case <-w.done:
		return Resolved(storage.ErrClosed)
	}
}

// Close flushes pending debounced saves and stops every writer. It returns
// ctx's error when writes are still in flight at the deadline.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, w := range s.writers {
		close(w.done)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type request struct {
	policy constants.SavePolicy
	result *Result
}

type slotWriter struct {
	slot  string
	reqs  chan request
	done  chan struct{}
	sched *Scheduler
	// senders counts Save calls between the closed check and their send.
	senders  sync.WaitGroup
	version  atomic.Int64
	snapshot atomic.Value

	// unloaded is set when the startup read failed; restore applies the
	// remote value once it can be read.
	unloaded atomic.Bool
	restore  atomic.Value
	// refresh is set after a failed write, whose outcome on the remote is
	// unknown.
	refresh atomic.Bool
}

func (w *slotWriter) setSnapshot(fn SnapshotFunc) {
	w.snapshot.Store(fn)
}

func (w *slotWriter) run() {
	var (
		pending []*Result
		timer   *time.Timer
		fire    <-chan time.Time
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
		fire = nil
	}
	for {
		select {
		case req := <-w.reqs:
			pending = append(pending, req.result)
			if req.policy == constants.SaveImmediate {
				stop()
				w.flush(pending)
				pending = nil
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.sched.opts.DebounceWindow)
			} else {
				timer.Stop()
				timer.Reset(w.sched.opts.DebounceWindow)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.flush(pending)
			pending = nil
		case <-w.done:
			stop()
			pending = w.drain(pending)
			if len(pending) > 0 {
				w.flush(pending)
			}
			return
		}
	}
}

// drain collects the requests of senders that got past the closed check
// before Close.
func (w *slotWriter) drain(pending []*Result) []*Result {
	settled := make(chan struct{})
	go func() {
		w.senders.Wait()
		close(settled)
	}()
	for {
		select {
		case req := <-w.reqs:
			pending = append(pending, req.result)
		case <-settled:
			for {
				select {
				case req := <-w.reqs:
					pending = append(pending, req.result)
				default:
					return pending
				}
			}
		}
	}
}

// flush issues one write for every pending request.
func (w *slotWriter) flush(pending []*Result) {
	s := w.sched
	if n := len(pending); n > 1 {
		metrics.SlotSavesCoalesced.WithLabelValues(w.slot).Add(float64(n - 1))
	}

	s.board.markSaving(w.slot)
	version, err := w.write(context.Background())
	if err != nil {
		s.board.markError(w.slot, err)
		logger.Error("Slot save failed", "slot", w.slot, "error", err)
		for _, r := range pending {
			r.resolve(0, err)
		}
		return
	}
	s.board.markSaved(w.slot)
	for _, r := range pending {
		r.resolve(version, nil)
	}
}

func (w *slotWriter) write(ctx context.Context) (int64, error) {
	s := w.sched
	if w.unloaded.Load() || w.refresh.Load() {
		reloaded, err := w.reload(ctx)
		if err != nil {
			metrics.SlotSaves.WithLabelValues(w.slot, metrics.ResultError).Inc()
			return 0, err
		}
		if reloaded {
			return w.version.Load(), ErrSlotReloaded
		}
	}

	fn, _ := w.snapshot.Load().(SnapshotFunc)
	if fn == nil {
		return 0, fmt.Errorf("slot %s has no snapshot source", w.slot)
	}
	value, err := fn()
	if err != nil {
		metrics.SlotSaves.WithLabelValues(w.slot, metrics.ResultError).Inc()
		return 0, fmt.Errorf("failed to snapshot slot %s: %w", w.slot, err)
	}

	start := time.Now()
	version, err := s.remote.Write(ctx, w.slot, value, w.version.Load())
	metrics.SlotSaveDuration.WithLabelValues(w.slot).Observe(time.Since(start).Seconds())
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, storage.ErrVersionConflict) {
			result = metrics.ResultConflict
		}
		metrics.SlotSaves.WithLabelValues(w.slot, result).Inc()
		w.refresh.Store(true)
		return 0, err
	}
	metrics.SlotSaves.WithLabelValues(w.slot, metrics.ResultOK).Inc()
	w.version.Store(version)
	w.writeMirror(ctx, value)
	logger.Debug("Slot saved", "slot", w.slot, "version", version, "bytes", len(value))
	return version, nil
}

// reload re-reads the remote version of the slot. For an unloaded slot
// holding remote data, the remote value replaces memory and reload
// reports true.
func (w *slotWriter) reload(ctx context.Context) (bool, error) {
	snap, err := w.sched.remote.Read(ctx, w.slot)
	if err != nil {
		return false, fmt.Errorf("failed to reload slot %s: %w", w.slot, err)
	}
	w.version.Store(snap.Version)
	w.refresh.Store(false)
	if !w.unloaded.Load() {
		return false, nil
	}
	if storage.IsEmpty(snap.Value) {
		w.unloaded.Store(false)
		return false, nil
	}
	restore, _ := w.restore.Load().(RestoreFunc)
	if restore == nil {
		return false, fmt.Errorf("slot %s has no restore target", w.slot)
	}
	if err := restore(snap.Value); err != nil {
		return false, fmt.Errorf("failed to restore slot %s: %w", w.slot, err)
	}
	w.unloaded.Store(false)
	w.writeMirror(ctx, snap.Value)
	logger.Warn("Slot reloaded from remote", "slot", w.slot, "version", snap.Version)
	return true, nil
}

func (w *slotWriter) writeMirror(ctx context.Context, value json.RawMessage) {
	s := w.sched
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Write(ctx, w.slot, value); err != nil {
		metrics.MirrorFailures.WithLabelValues(w.slot).Inc()
		logger.Warn("Mirror write failed", "slot", w.slot, "error", err)
	}
}
