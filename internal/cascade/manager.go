// Package cascade keeps package assignments and the calendar events they
// generate consistent. Every cascade is journaled as an intent first so an
// interrupted cascade is rolled forward on the next start.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/models"
	"github.com/julianstephens/agencydesk/internal/repository"
	"github.com/julianstephens/agencydesk/internal/syncengine"
	"github.com/julianstephens/agencydesk/internal/validation"
)

// ErrRecoveryDeferred means recovery was skipped because a slot it reads
// did not load.
var ErrRecoveryDeferred = errors.New("cascade recovery deferred")

// cascadeSlots are the slots intents and the dangling-ref prune read.
var cascadeSlots = []string{constants.SlotClients, constants.SlotPackages, constants.SlotCalendar}

type Manager struct {
	store   *repository.Store
	journal Journal
	newID   func() string

	// cascades run one at a time
	mu sync.Mutex
}

func NewManager(store *repository.Store, journal Journal) *Manager {
	return &Manager{
		store:   store,
		journal: journal,
		newID:   uuid.NewString,
	}
}

// AssignPackageToClient expands the package's tasks into calendar events
// starting at startDate (YYYY-MM-DD) and attaches a new assignment listing
// them to the client. A missing client or package, or an unparsable date,
// is a silent no-op returning nil, nil.
func (m *Manager) AssignPackageToClient(ctx context.Context, clientID, packageID, startDate string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.store.Clients.Get(clientID)
	if !ok {
		logger.Debug("Assign skipped, unknown client", "client", clientID)
		return nil, nil
	}
	pkg, ok := m.store.Packages.Get(packageID)
	if !ok {
		logger.Debug("Assign skipped, unknown package", "package", packageID)
		return nil, nil
	}
	start, err := time.ParseInLocation(constants.DateFormat, startDate, time.UTC)
	if err != nil {
		logger.Debug("Assign skipped, invalid start date", "date", startDate)
		return nil, nil
	}

	events := make([]models.CalendarEvent, 0, len(pkg.Tasks))
	ids := make([]string, 0, len(pkg.Tasks))
	for _, task := range pkg.Tasks {
		ev := models.CalendarEvent{
			ID:            m.newID(),
			Title:         pkg.Name + ": " + task.Title,
			Date:          start.AddDate(0, 0, task.OffsetDays).Format(constants.DateFormat),
			Type:          task.Type,
			Client:        client.Name,
			PackageID:     pkg.ID,
			PackageTaskID: task.ID,
			AutoGenerated: true,
		}
		if err := validation.Struct(ev); err != nil {
			return nil, fmt.Errorf("package %s task %s: %w", pkg.ID, task.ID, err)
		}
		events = append(events, ev)
		ids = append(ids, ev.ID)
	}

	assignment := models.Assignment{
		ID:               m.newID(),
		PackageID:        pkg.ID,
		StartDate:        start.Format(constants.DateFormat),
		CalendarEventIDs: ids,
	}
	intent := &Intent{
		Kind:         KindAssign,
		ClientID:     clientID,
		PackageID:    pkg.ID,
		AssignmentID: assignment.ID,
		Assignment:   &assignment,
		Events:       events,
		Slots:        []string{constants.SlotCalendar, constants.SlotClients},
	}
	if err := m.journal.Put(intent); err != nil {
		return nil, fmt.Errorf("journal assign intent: %w", err)
	}
	return &assignment, m.run(ctx, intent)
}

// RemovePackageAssignment deletes exactly the events listed on the
// assignment, then drops the assignment. Missing ids are a no-op.
func (m *Manager) RemovePackageAssignment(ctx context.Context, clientID, assignmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.store.Clients.Get(clientID)
	if !ok {
		return nil
	}
	idx := client.FindAssignment(assignmentID)
	if idx < 0 {
		return nil
	}

	intent := &Intent{
		Kind:         KindUnassign,
		ClientID:     clientID,
		AssignmentID: assignmentID,
		PackageID:    client.PackageAssignments[idx].PackageID,
		EventIDs:     slices.Clone(client.PackageAssignments[idx].CalendarEventIDs),
		Slots:        []string{constants.SlotCalendar, constants.SlotClients},
	}
	if err := m.journal.Put(intent); err != nil {
		return fmt.Errorf("journal unassign intent: %w", err)
	}
	return m.run(ctx, intent)
}

// DeletePackage removes the package from the catalog, every event its
// assignments generated and the assignments themselves.
func (m *Manager) DeletePackage(ctx context.Context, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inCatalog := m.store.Packages.Get(packageID)
	eventIDs := m.packageEventIDs(packageID, nil)
	if !inCatalog && len(eventIDs) == 0 && !m.hasAssignments(packageID) {
		return nil
	}

	intent := &Intent{
		Kind:      KindDeletePackage,
		PackageID: packageID,
		EventIDs:  eventIDs,
		Slots:     []string{constants.SlotPackages, constants.SlotCalendar, constants.SlotClients},
	}
	if err := m.journal.Put(intent); err != nil {
		return fmt.Errorf("journal delete-package intent: %w", err)
	}
	return m.run(ctx, intent)
}

// Recover rolls every journaled intent forward in order, then drops event
// ids that no longer resolve from every assignment. It returns how many
// intents were replayed. When the report shows that a cascade slot failed
// to load, nothing is replayed or pruned and the intents stay journaled.
func (m *Manager) Recover(ctx context.Context, report syncengine.Report) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var unloaded []string
	for _, rep := range report.Failed() {
		if slices.Contains(cascadeSlots, rep.Slot) {
			unloaded = append(unloaded, rep.Slot)
		}
	}
	if len(unloaded) > 0 {
		logger.Warn("Cascade recovery deferred, slots not loaded", "slots", unloaded)
		return 0, fmt.Errorf("%w: %v", ErrRecoveryDeferred, unloaded)
	}

	intents, err := m.journal.List()
	if err != nil {
		return 0, fmt.Errorf("list intents: %w", err)
	}

	var errs []error
	for i := range intents {
		logger.Info("Replaying cascade intent", "seq", intents[i].Seq, "kind", intents[i].Kind)
		if err := m.run(ctx, &intents[i]); err != nil {
			errs = append(errs, fmt.Errorf("intent %d (%s): %w", intents[i].Seq, intents[i].Kind, err))
		}
	}

	t := newTracker()
	t.step(ctx, constants.SlotClients, m.pruneDanglingRefs)
	errs = append(errs, t.err())
	return len(intents), errors.Join(errs...)
}

// Pending returns the intents still waiting in the journal.
func (m *Manager) Pending() ([]Intent, error) {
	return m.journal.List()
}

// run applies an intent's steps, each waiting for its save, and clears the
// intent once every save succeeded.
func (m *Manager) run(ctx context.Context, in *Intent) error {
	t := newTracker()
	switch in.Kind {
	case KindAssign:
		m.applyAssign(ctx, in, t)
	case KindUnassign:
		m.applyUnassign(ctx, in, t)
	case KindDeletePackage:
		m.applyDeletePackage(ctx, in, t)
	default:
		return fmt.Errorf("unknown intent kind %q", in.Kind)
	}
	if err := t.err(); err != nil {
		logger.Error("Cascade incomplete, intent kept for recovery", "seq", in.Seq, "kind", in.Kind, "error", err)
		return err
	}
	m.complete(in, t.wrote)
	return nil
}

func (m *Manager) applyAssign(ctx context.Context, in *Intent, t *tracker) {
	if in.Assignment == nil {
		return
	}
	if _, ok := m.store.Clients.Get(in.ClientID); !ok {
		// the owner is gone, so the planned events would be orphans
		t.step(ctx, constants.SlotCalendar, func() *syncengine.Result {
			_, res := m.store.Calendar.Delete(in.Assignment.CalendarEventIDs...)
			return res
		})
		return
	}

	t.step(ctx, constants.SlotCalendar, func() *syncengine.Result {
		missing := slices.DeleteFunc(slices.Clone(in.Events), func(ev models.CalendarEvent) bool {
			_, exists := m.store.Calendar.Get(ev.ID)
			return exists
		})
		if len(missing) == 0 {
			return syncengine.Resolved(nil)
		}
		_, res := m.store.Calendar.Add(missing...)
		return res
	})

	t.step(ctx, constants.SlotClients, func() *syncengine.Result {
		client, ok := m.store.Clients.Get(in.ClientID)
		if !ok || client.FindAssignment(in.Assignment.ID) >= 0 {
			return syncengine.Resolved(nil)
		}
		_, res := m.store.Clients.Update(in.ClientID, func(c *models.Client) {
			c.PackageAssignments = append(c.PackageAssignments, *in.Assignment)
		})
		return res
	})
}

func (m *Manager) applyUnassign(ctx context.Context, in *Intent, t *tracker) {
	t.step(ctx, constants.SlotCalendar, func() *syncengine.Result {
		_, res := m.store.Calendar.Delete(in.EventIDs...)
		return res
	})
	t.step(ctx, constants.SlotClients, func() *syncengine.Result {
		client, ok := m.store.Clients.Get(in.ClientID)
		if !ok || client.FindAssignment(in.AssignmentID) < 0 {
			return syncengine.Resolved(nil)
		}
		_, res := m.store.Clients.Update(in.ClientID, func(c *models.Client) {
			c.PackageAssignments = slices.DeleteFunc(c.PackageAssignments, func(a models.Assignment) bool {
				return a.ID == in.AssignmentID
			})
		})
		return res
	})
}

func (m *Manager) applyDeletePackage(ctx context.Context, in *Intent, t *tracker) {
	t.step(ctx, constants.SlotPackages, func() *syncengine.Result {
		_, res := m.store.Packages.Delete(in.PackageID)
		return res
	})
	t.step(ctx, constants.SlotCalendar, func() *syncengine.Result {
		_, res := m.store.Calendar.Delete(m.packageEventIDs(in.PackageID, in.EventIDs)...)
		return res
	})
	t.step(ctx, constants.SlotClients, func() *syncengine.Result {
		_, res := m.store.Clients.UpdateWhere(func(c *models.Client) bool {
			before := len(c.PackageAssignments)
			c.PackageAssignments = slices.DeleteFunc(c.PackageAssignments, func(a models.Assignment) bool {
				return a.PackageID == in.PackageID
			})
			return len(c.PackageAssignments) != before
		})
		return res
	})
}

// pruneDanglingRefs drops event ids that resolve to no calendar event from
// every assignment.
func (m *Manager) pruneDanglingRefs() *syncengine.Result {
	_, res := m.store.Clients.UpdateWhere(func(c *models.Client) bool {
		changed := false
		for i := range c.PackageAssignments {
			a := &c.PackageAssignments[i]
			before := len(a.CalendarEventIDs)
			a.CalendarEventIDs = slices.DeleteFunc(a.CalendarEventIDs, func(id string) bool {
				_, exists := m.store.Calendar.Get(id)
				return !exists
			})
			if len(a.CalendarEventIDs) != before {
				logger.Warn("Dropped dangling event references", "client", c.ID, "assignment", a.ID, "count", before-len(a.CalendarEventIDs))
				changed = true
			}
		}
		return changed
	})
	return res
}

// packageEventIDs is the union of extra, the events listed on assignments
// of the package and any generated event still tagged with it.
func (m *Manager) packageEventIDs(packageID string, extra []string) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range extra {
		add(id)
	}
	for _, c := range m.store.Clients.All() {
		for _, a := range c.PackageAssignments {
			if a.PackageID != packageID {
				continue
			}
			for _, id := range a.CalendarEventIDs {
				add(id)
			}
		}
	}
	for _, ev := range m.store.Calendar.All() {
		if ev.AutoGenerated && ev.PackageID == packageID {
			add(ev.ID)
		}
	}
	return ids
}

func (m *Manager) hasAssignments(packageID string) bool {
	for _, c := range m.store.Clients.All() {
		for _, a := range c.PackageAssignments {
			if a.PackageID == packageID {
				return true
			}
		}
	}
	return false
}

// complete removes the intent and every earlier intent whose slots were all
// rewritten by this one; those whole-slot writes already carried the
// earlier in-memory changes.
func (m *Manager) complete(in *Intent, wrote map[string]bool) {
	if in.Seq == 0 {
		return
	}
	if err := m.journal.Delete(in.Seq); err != nil {
		logger.Warn("Failed to clear intent", "seq", in.Seq, "error", err)
		return
	}
	outstanding, err := m.journal.List()
	if err != nil {
		logger.Warn("Failed to list intents", "error", err)
		return
	}
	for _, o := range outstanding {
		if o.Seq >= in.Seq {
			continue
		}
		covered := true
		for _, slot := range o.Slots {
			if !wrote[slot] {
				covered = false
				break
			}
		}
		if covered {
			if err := m.journal.Delete(o.Seq); err != nil {
				logger.Warn("Failed to clear superseded intent", "seq", o.Seq, "error", err)
			}
		}
	}
}

// tracker runs cascade steps in order and records which slots were
// actually written.
type tracker struct {
	wrote map[string]bool
	errs  []error
}

func newTracker() *tracker {
	return &tracker{wrote: map[string]bool{}}
}

func (t *tracker) step(ctx context.Context, slot string, fn func() *syncengine.Result) {
	res := fn()
	if err := res.Wait(ctx); err != nil {
		t.errs = append(t.errs, fmt.Errorf("save %s: %w", slot, err))
		return
	}
	if res.Version() > 0 {
		t.wrote[slot] = true
	}
}

func (t *tracker) err() error {
	return errors.Join(t.errs...)
}
