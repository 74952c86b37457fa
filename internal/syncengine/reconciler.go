package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/metrics"
	"github.com/julianstephens/agencydesk/internal/storage"
)

// SlotSpec describes how the reconciler loads one slot.
type SlotSpec struct {
	Name string
	// Restore replaces the in-memory state with value. It must reject
	// malformed data without changing state.
	Restore func(value json.RawMessage) error
	// Default yields the seed value used when remote and mirror are both
	// empty. Nil means the slot starts empty.
	Default func() json.RawMessage
}

type SlotReport struct {
	Slot    string
	Source  constants.SlotSource
	Version int64
	// Repaired is set when the remote was rewritten from mirror or defaults.
	Repaired bool
	Err      error
}

type Report struct {
	Slots []SlotReport
}

// Failed returns the slots whose load or repair reported an error.
func (r Report) Failed() []SlotReport {
	var out []SlotReport
	for _, s := range r.Slots {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Reconciler restores every slot at startup: a non-empty remote wins,
// otherwise the mirror is restored and written back, otherwise defaults.
type Reconciler struct {
	remote    storage.Remote
	mirror    storage.Mirror
	scheduler *Scheduler
}

func NewReconciler(remote storage.Remote, mirror storage.Mirror, scheduler *Scheduler) *Reconciler {
	return &Reconciler{remote: remote, mirror: mirror, scheduler: scheduler}
}

// Reconcile loads all slots concurrently. Per-slot failures are recorded
// in the report and never abort the other slots.
func (r *Reconciler) Reconcile(ctx context.Context, specs []SlotSpec) (Report, error) {
	report := Report{Slots: make([]SlotReport, len(specs))}
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			report.Slots[i] = r.reconcileSlot(gctx, spec)
			metrics.Reconciles.WithLabelValues(spec.Name, string(report.Slots[i].Source)).Inc()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("reconcile interrupted: %w", err)
	}
	return report, nil
}

func (r *Reconciler) reconcileSlot(ctx context.Context, spec SlotSpec) SlotReport {
	rep := SlotReport{Slot: spec.Name, Source: constants.SourceEmpty}

	snap, err := r.remote.Read(ctx, spec.Name)
	if err != nil {
		// the remote state is unknown, so nothing is written back
		rep.Err = fmt.Errorf("failed to read remote slot %s: %w", spec.Name, err)
		logger.Error("Remote read failed", "slot", spec.Name, "error", err)
		r.scheduler.MarkUnloaded(spec.Name, spec.Restore)
		if _, ok := r.readMirror(ctx, spec); ok {
			rep.Source = constants.SourceMirror
		}
		return rep
	}
	rep.Version = snap.Version
	r.scheduler.SetVersion(spec.Name, snap.Version)

	if !storage.IsEmpty(snap.Value) {
		err := spec.Restore(snap.Value)
		if err == nil {
			rep.Source = constants.SourceRemote
			r.refreshMirror(ctx, spec.Name, snap.Value)
			return rep
		}
		logger.Error("Remote slot is malformed, trying mirror", "slot", spec.Name, "error", err)
	}

	if value, ok := r.readMirror(ctx, spec); ok {
		rep.Source = constants.SourceMirror
		r.repair(ctx, &rep, value)
		return rep
	}

	if spec.Default != nil {
		value := spec.Default()
		if err := spec.Restore(value); err != nil {
			rep.Err = fmt.Errorf("failed to apply defaults for slot %s: %w", spec.Name, err)
			return rep
		}
		rep.Source = constants.SourceDefault
		r.repair(ctx, &rep, value)
	}
	return rep
}

// readMirror restores the mirrored value of a slot when it is present and
// parses. Malformed data is logged and ignored.
func (r *Reconciler) readMirror(ctx context.Context, spec SlotSpec) (json.RawMessage, bool) {
	if r.mirror == nil {
		return nil, false
	}
	value, err := r.mirror.Read(ctx, spec.Name)
	if err != nil {
		logger.Warn("Mirror read failed, falling back", "slot", spec.Name, "error", err)
		return nil, false
	}
	if storage.IsEmpty(value) {
		return nil, false
	}
	if err := spec.Restore(value); err != nil {
		logger.Warn("Mirror slot is malformed, falling back", "slot", spec.Name, "error", err)
		return nil, false
	}
	return value, true
}

// repair persists a recovered value to the remote and the mirror.
func (r *Reconciler) repair(ctx context.Context, rep *SlotReport, value json.RawMessage) {
	version, err := r.remote.Write(ctx, rep.Slot, value, rep.Version)
	if err != nil {
		rep.Err = fmt.Errorf("failed to repair remote slot %s: %w", rep.Slot, err)
		if errors.Is(err, storage.ErrVersionConflict) {
			logger.Error("Remote slot changed during repair", "slot", rep.Slot, "error", err)
		} else {
			logger.Error("Remote repair failed", "slot", rep.Slot, "error", err)
		}
		return
	}
	rep.Version = version
	rep.Repaired = true
	r.scheduler.SetVersion(rep.Slot, version)
	r.refreshMirror(ctx, rep.Slot, value)
	logger.Info("Slot recovered", "slot", rep.Slot, "source", rep.Source, "version", version)
}

func (r *Reconciler) refreshMirror(ctx context.Context, slot string, value json.RawMessage) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Write(ctx, slot, value); err != nil {
		metrics.MirrorFailures.WithLabelValues(slot).Inc()
		logger.Warn("Mirror write failed", "slot", slot, "error", err)
	}
}
