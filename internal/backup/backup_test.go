package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/models"
	"github.com/julianstephens/agencydesk/internal/repository"
	"github.com/julianstephens/agencydesk/internal/storage/memory"
	"github.com/julianstephens/agencydesk/internal/syncengine"
)

func seededStore(t *testing.T) *repository.Store {
	t.Helper()
	store := repository.NewStore(nil)
	_, res := store.Clients.Add(models.Client{
		ID: "c1", Name: "Acme Studio", Status: models.ClientActive, Revenue: 1200.5,
		PackageAssignments: []models.Assignment{{
			ID: "a1", PackageID: "pkg-starter", StartDate: "2024-06-01", CalendarEventIDs: []string{"e1"},
		}},
	})
	require.NoError(t, res.Err())
	_, res = store.Calendar.Add(models.CalendarEvent{
		ID: "e1", Title: "Starter: Kickoff call", Date: "2024-06-01", Type: "meeting",
		Client: "Acme Studio", PackageID: "pkg-starter", PackageTaskID: "pkg-starter-kickoff", AutoGenerated: true,
	})
	require.NoError(t, res.Err())
	_, res = store.Reminders.Add(models.Reminder{
		ID: "r1", Text: "Send proposal", Due: time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC), TriggeredIntervals: []string{"1w"},
	})
	require.NoError(t, res.Err())
	_, res = store.Invoices.Add(models.Invoice{
		ID: "i1", ClientID: "c1", Number: "INV-001", Amount: 1500, Status: models.InvoiceSent,
		IssuedAt: "2024-06-01", DueDate: "2024-06-15",
	})
	require.NoError(t, res.Err())
	_, res = store.Notes.Add(models.Note{
		ID: "n1", ClientID: "c1", Title: "Brief", Body: "Prefers morning calls",
		UpdatedAt: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, res.Err())
	_, res = store.Checklist.Add(models.ChecklistItem{ID: "k1", Date: "2024-06-01", Label: "Send recap", Done: true})
	require.NoError(t, res.Err())
	return store
}

func newSyncedStore(t *testing.T) (*repository.Store, *memory.Remote) {
	t.Helper()
	remote := memory.NewRemote()
	sched := syncengine.NewScheduler(remote, nil, syncengine.Options{DebounceWindow: 10 * time.Millisecond})
	t.Cleanup(func() { _ = sched.Close(context.Background()) })
	return repository.NewStore(sched), remote
}

func TestExportGolden(t *testing.T) {
	data, err := Export(seededStore(t))
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "export", data)
}

func TestExportIsDeterministic(t *testing.T) {
	first, err := Export(seededStore(t))
	require.NoError(t, err)
	second, err := Export(seededStore(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestImportReplacesSlotsWholesale(t *testing.T) {
	data, err := Export(seededStore(t))
	require.NoError(t, err)

	store, remote := newSyncedStore(t)
	_, res := store.Clients.Add(models.Client{ID: "old", Name: "Old Client"})
	require.NoError(t, res.Wait(context.Background()))

	slots, err := Import(context.Background(), store, data)
	require.NoError(t, err)
	assert.Equal(t, constants.Slots, slots)

	clients := store.Clients.All()
	require.Len(t, clients, 1)
	assert.Equal(t, "c1", clients[0].ID)
	for _, slot := range constants.Slots {
		want := 1
		if slot == constants.SlotClients {
			want = 2
		}
		assert.Equal(t, want, remote.Writes(slot), "slot %s", slot)
	}

	again, err := Export(store)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestImportIgnoresUnknownAndMissingFields(t *testing.T) {
	store, remote := newSyncedStore(t)
	_, res := store.Invoices.Add(models.Invoice{ID: "keep", ClientID: "c1", Number: "INV-9"})
	require.NoError(t, res.Wait(context.Background()))

	doc := `{"notes": [{"id": "n1", "title": "t", "body": "b", "updatedAt": "2024-06-01T00:00:00Z"}], "legacyWidgets": [1, 2]}`
	slots, err := Import(context.Background(), store, []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{constants.SlotNotes}, slots)
	assert.Equal(t, 1, store.Notes.Len())
	assert.Equal(t, 1, store.Invoices.Len(), "slots absent from the document stay untouched")
	assert.Equal(t, 0, remote.Writes(constants.SlotClients))
}

func TestImportRejectsInvalidDocumentBeforeChanging(t *testing.T) {
	tests := map[string]string{
		"not json":        `{"clients": [`,
		"not an object":   `[1, 2, 3]`,
		"wrong shape":     `{"clients": {"id": "c1"}}`,
		"invalid record":  `{"clients": [{"id": "c2", "name": "Beta"}], "checklist": [{"id": "k1", "date": "2024-06-01"}]}`,
		"duplicate ids":   `{"calendar": [{"id": "e1", "title": "a", "date": "2024-06-01"}, {"id": "e1", "title": "b", "date": "2024-06-02"}]}`,
		"bad date format": `{"calendar": [{"id": "e1", "title": "a", "date": "06/01/2024"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			store, remote := newSyncedStore(t)
			_, res := store.Clients.Add(models.Client{ID: "c1", Name: "Acme"})
			require.NoError(t, res.Wait(context.Background()))

			_, err := Import(context.Background(), store, []byte(doc))
			require.Error(t, err)
			assert.Equal(t, 1, store.Clients.Len())
			assert.Equal(t, "c1", store.Clients.All()[0].ID)
			assert.Equal(t, 1, remote.Writes(constants.SlotClients))
			assert.Equal(t, 0, remote.Writes(constants.SlotChecklist))
		})
	}
}

func TestImportNullSlotClears(t *testing.T) {
	store := seededStore(t)
	_, err := Import(context.Background(), store, []byte(`{"reminders": null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Reminders.Len())

	value, err := store.Reminders.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(value))
}

func TestManagerCreateAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), constants.BackupDirName)
	m := NewManager(dir, seededStore(t))
	m.now = func() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.Local) }

	path, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agencydesk-20240601-0930.json"), path)

	second, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agencydesk-20240601-093000.json"), second)

	third, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agencydesk-20240601-093000-1.json"), third)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	backups, err := m.List()
	require.NoError(t, err)
	assert.Len(t, backups, 3)
}

func TestManagerListMissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"), repository.NewStore(nil))
	backups, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManagerRotation(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, seededStore(t))
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)

	for day := range constants.MaxBackups + 3 {
		m.now = func() time.Time { return start.AddDate(0, 0, day) }
		_, err := m.Create()
		require.NoError(t, err)
	}

	backups, err := m.List()
	require.NoError(t, err)
	require.Len(t, backups, constants.MaxBackups)
	assert.WithinDuration(t, start.AddDate(0, 0, constants.MaxBackups+2), backups[0].Timestamp, 0, "newest first")
	assert.WithinDuration(t, start.AddDate(0, 0, 3), backups[len(backups)-1].Timestamp, 0, "oldest kept")
}

func TestManagerRestore(t *testing.T) {
	dir := t.TempDir()
	source := NewManager(dir, seededStore(t))
	source.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local) }
	path, err := source.Create()
	require.NoError(t, err)

	store, _ := newSyncedStore(t)
	_, res := store.Clients.Add(models.Client{ID: "current", Name: "Current"})
	require.NoError(t, res.Wait(context.Background()))

	m := NewManager(dir, store)
	m.now = func() time.Time { return time.Date(2024, 6, 2, 9, 0, 0, 0, time.Local) }
	previous, err := m.Restore(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "c1", store.Clients.All()[0].ID)
	prevData, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Contains(t, string(prevData), `"current"`, "pre-restore backup holds the replaced state")
}

func TestManagerRestoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "agencydesk-20240601-0900.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json"), 0o644))

	store := seededStore(t)
	m := NewManager(dir, store)
	_, err := m.Restore(context.Background(), corrupt)
	require.Error(t, err)

	backups, err := m.List()
	require.NoError(t, err)
	assert.Len(t, backups, 1, "no pre-restore backup for an invalid file")
	assert.Equal(t, 1, store.Clients.Len())
}
