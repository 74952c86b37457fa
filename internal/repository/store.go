package repository

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/models"
	"github.com/julianstephens/agencydesk/internal/syncengine"
)

// SlotCollection is the untyped view of a collection used by the
// reconciler and bulk import/export.
type SlotCollection interface {
	Slot() string
	Snapshot() (json.RawMessage, error)
	Restore(value json.RawMessage) error
	Check(value json.RawMessage) error
	Import(value json.RawMessage) *syncengine.Result
}

// Scheduler is what the store registers its slots with.
type Scheduler interface {
	Saver
	Register(slot string, snapshot syncengine.SnapshotFunc)
}

// Store owns one collection per declared slot.
type Store struct {
	Clients   *Collection[models.Client]
	Packages  *Collection[models.PackageDefinition]
	Calendar  *Collection[models.CalendarEvent]
	Reminders *Reminders
	Invoices  *Collection[models.Invoice]
	Notes     *Notes
	Checklist *Checklist

	bySlot map[string]SlotCollection
	now    func() time.Time
}

// NewStore builds the collections and registers each slot with sched.
func NewStore(sched Scheduler) *Store {
	s := &Store{
		Clients:   NewCollection[models.Client](constants.SlotClients, sched),
		Packages:  NewCollection[models.PackageDefinition](constants.SlotPackages, sched),
		Calendar:  NewCollection[models.CalendarEvent](constants.SlotCalendar, sched),
		Reminders: &Reminders{NewCollection[models.Reminder](constants.SlotReminders, sched)},
		Invoices:  NewCollection[models.Invoice](constants.SlotInvoices, sched),
		Notes:     &Notes{Collection: NewCollection[models.Note](constants.SlotNotes, sched), now: time.Now},
		Checklist: &Checklist{NewCollection[models.ChecklistItem](constants.SlotChecklist, sched)},
	}
	s.bySlot = map[string]SlotCollection{
		constants.SlotClients:   s.Clients,
		constants.SlotPackages:  s.Packages,
		constants.SlotCalendar:  s.Calendar,
		constants.SlotReminders: s.Reminders,
		constants.SlotInvoices:  s.Invoices,
		constants.SlotNotes:     s.Notes,
		constants.SlotChecklist: s.Checklist,
	}
	if sched != nil {
		for _, slot := range constants.Slots {
			sched.Register(slot, s.bySlot[slot].Snapshot)
		}
	}
	return s
}

// Collection returns the collection stored under slot.
func (s *Store) Collection(slot string) (SlotCollection, bool) {
	c, ok := s.bySlot[slot]
	return c, ok
}

// Specs describes every slot for the reconciler, in declared order. Only
// packages has a default value.
func (s *Store) Specs() []syncengine.SlotSpec {
	specs := make([]syncengine.SlotSpec, 0, len(constants.Slots))
	for _, slot := range constants.Slots {
		spec := syncengine.SlotSpec{Name: slot, Restore: s.bySlot[slot].Restore}
		if slot == constants.SlotPackages {
			spec.Default = defaultPackages
		}
		specs = append(specs, spec)
	}
	return specs
}

func defaultPackages() json.RawMessage {
	data, err := json.Marshal(models.DefaultPackages())
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}

// Reminders adds the escalation transitions to the reminder collection.
type Reminders struct {
	*Collection[models.Reminder]
}

// MarkTriggered records that thresholdID fired for the reminder. It
// reports false without saving when the reminder is missing, completed or
// already carries the threshold. The check and the update run under one
// lock, so a concurrent Complete or mark is never overwritten.
func (r *Reminders) MarkTriggered(id, thresholdID string) (bool, *syncengine.Result) {
	marked := false
	_, res := r.UpdateWhere(func(rem *models.Reminder) bool {
		if rem.ID != id || rem.Completed || rem.HasTriggered(thresholdID) {
			return false
		}
		rem.TriggeredIntervals = append(rem.TriggeredIntervals, thresholdID)
		marked = true
		return true
	})
	return marked, res
}

// Complete moves the reminder to its terminal state.
func (r *Reminders) Complete(id string) *syncengine.Result {
	_, res := r.UpdateWhere(func(rem *models.Reminder) bool {
		if rem.ID != id || rem.Completed {
			return false
		}
		rem.Completed = true
		return true
	})
	return res
}

// Notes debounces body edits.
type Notes struct {
	*Collection[models.Note]
	now func() time.Time
}

func (n *Notes) EditBody(id, body string) *syncengine.Result {
	_, res := n.Edit(id, func(note *models.Note) {
		note.Body = body
		note.UpdatedAt = n.now().UTC()
	})
	return res
}

// Checklist debounces toggles.
type Checklist struct {
	*Collection[models.ChecklistItem]
}

func (c *Checklist) Toggle(id string) *syncengine.Result {
	_, res := c.Edit(id, func(item *models.ChecklistItem) { item.Done = !item.Done })
	return res
}

// ForDate returns the checklist entries of one day.
func (c *Checklist) ForDate(date string) []models.ChecklistItem {
	return slices.DeleteFunc(c.All(), func(item models.ChecklistItem) bool { return item.Date != date })
}
