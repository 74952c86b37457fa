package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/cli/clitest"
	"github.com/julianstephens/agencydesk/internal/models"
)

func TestParseTask(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    models.PackageTask
		wantErr bool
	}{
		{"basic", "5:shoot:Content shoot", models.PackageTask{Title: "Content shoot", Type: "shoot", OffsetDays: 5}, false},
		{"negative offset", "-3:deadline:Brief due", models.PackageTask{Title: "Brief due", Type: "deadline", OffsetDays: -3}, false},
		{"colon in title", "0:meeting:Kickoff: intro", models.PackageTask{Title: "Kickoff: intro", Type: "meeting"}, false},
		{"missing title", "0:meeting", models.PackageTask{}, true},
		{"blank title", "0:meeting:  ", models.PackageTask{}, true},
		{"bad offset", "soon:meeting:Kickoff", models.PackageTask{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTask(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDue(t *testing.T) {
	got, err := ParseDue("2024-06-10T17:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)))

	got, err = ParseDue("2024-06-10 09:30")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 10, 9, 30, 0, 0, time.Local)))

	got, err = ParseDue(" 2024-06-10 ")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Day())

	_, err = ParseDue("next tuesday")
	assert.Error(t, err)
}

func addClient(t *testing.T, cctx *cli.Context, name string) models.Client {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, (&ClientAddCmd{Name: name, Status: "active", Revenue: 1200}).Run(cctx, ctx))
	app, err := cctx.App(ctx)
	require.NoError(t, err)
	for _, c := range app.Store.Clients.All() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("client %s not stored", name)
	return models.Client{}
}

func TestClientAddAndList(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()

	require.NoError(t, (&ClientListCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "No clients yet.")

	c := addClient(t, cctx, "Acme Studio")
	assert.Equal(t, models.ClientActive, c.Status)

	out.Reset()
	require.NoError(t, (&ClientListCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Acme Studio")
	assert.Contains(t, out.String(), c.ID)

	remote := clitest.Remote(t, cctx)
	assert.Contains(t, string(remote.Value("clients")), "Acme Studio")
}

func TestAssignListAndUnassign(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()
	c := addClient(t, cctx, "Acme Studio")

	out.Reset()
	require.NoError(t, (&AssignCmd{Client: c.ID, Package: "pkg-starter", Date: "2024-06-01"}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "3 events")

	out.Reset()
	require.NoError(t, (&EventListCmd{}).Run(cctx, ctx))
	text := out.String()
	assert.Contains(t, text, "2024-06-01")
	assert.Contains(t, text, "Starter: Kickoff call")
	assert.Contains(t, text, "2024-06-13")
	assert.Contains(t, text, "3 event(s)")

	out.Reset()
	require.NoError(t, (&EventListCmd{From: "2024-06-06"}).Run(cctx, ctx))
	assert.NotContains(t, out.String(), "Kickoff call")
	assert.Contains(t, out.String(), "Content shoot")

	app, err := cctx.App(ctx)
	require.NoError(t, err)
	stored, _ := app.Store.Clients.Get(c.ID)
	require.Len(t, stored.PackageAssignments, 1)

	require.NoError(t, (&UnassignCmd{Client: c.ID, Assignment: stored.PackageAssignments[0].ID}).Run(cctx, ctx))
	assert.Equal(t, 0, app.Store.Calendar.Len())
	stored, _ = app.Store.Clients.Get(c.ID)
	assert.Empty(t, stored.PackageAssignments)
}

func TestAssign_UnknownPackageIsAnError(t *testing.T) {
	cctx, _ := clitest.New(t, true)
	c := addClient(t, cctx, "Acme Studio")

	err := (&AssignCmd{Client: c.ID, Package: "pkg-missing", Date: "2024-06-01"}).Run(cctx, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing assigned")
}

func TestClientDelete_RemovesGeneratedEvents(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()
	c := addClient(t, cctx, "Acme Studio")
	require.NoError(t, (&AssignCmd{Client: c.ID, Package: "pkg-growth", Date: "2024-06-01"}).Run(cctx, ctx))

	require.NoError(t, (&ClientDeleteCmd{ID: c.ID}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Deleted client Acme Studio")

	app, err := cctx.App(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, app.Store.Clients.Len())
	assert.Equal(t, 0, app.Store.Calendar.Len())
}

func TestClientDelete_Cancelled(t *testing.T) {
	cctx, out := clitest.New(t, false)
	ctx := context.Background()
	c := addClient(t, cctx, "Acme Studio")

	require.NoError(t, (&ClientDeleteCmd{ID: c.ID}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Delete cancelled.")

	app, err := cctx.App(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, app.Store.Clients.Len())

	assert.Error(t, (&ClientDeleteCmd{ID: "nope"}).Run(cctx, ctx))
}

func TestPackageAddAndDelete(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()

	cmd := &PackageAddCmd{Name: "Launch", Price: 900, Task: []string{"-2:deadline:Copy due", "0:meeting:Launch call"}}
	require.NoError(t, cmd.Run(cctx, ctx))
	assert.Contains(t, out.String(), "with 2 task(s)")

	app, err := cctx.App(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, app.Store.Packages.Len())
	var pkg models.PackageDefinition
	for _, p := range app.Store.Packages.All() {
		if p.Name == "Launch" {
			pkg = p
		}
	}
	require.Len(t, pkg.Tasks, 2)
	assert.Equal(t, pkg.ID+"-task-1", pkg.Tasks[0].ID)

	c := addClient(t, cctx, "Acme Studio")
	require.NoError(t, (&AssignCmd{Client: c.ID, Package: pkg.ID, Date: "2024-06-10"}).Run(cctx, ctx))
	require.Equal(t, 2, app.Store.Calendar.Len())

	out.Reset()
	require.NoError(t, (&PackageListCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Copy due")

	require.NoError(t, (&PackageDeleteCmd{ID: pkg.ID}).Run(cctx, ctx))
	assert.Equal(t, 3, app.Store.Packages.Len())
	assert.Equal(t, 0, app.Store.Calendar.Len())
	stored, _ := app.Store.Clients.Get(c.ID)
	assert.Empty(t, stored.PackageAssignments)

	assert.Error(t, (&PackageAddCmd{Name: "Bad", Task: []string{"x"}}).Run(cctx, ctx))
}

func TestReminderAddPollAck(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()

	due := time.Now().Add(30 * time.Minute).UTC().Format(time.RFC3339)
	require.NoError(t, (&ReminderAddCmd{Text: "Send invoice", Due: due}).Run(cctx, ctx))

	app, err := cctx.App(ctx)
	require.NoError(t, err)
	reminders := app.Store.Reminders.All()
	require.Len(t, reminders, 1)
	id := reminders[0].ID

	out.Reset()
	require.NoError(t, (&ReminderPollCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "1 Week Warning")

	got, _ := app.Store.Reminders.Get(id)
	assert.Equal(t, []string{"1w"}, got.TriggeredIntervals)

	require.NoError(t, (&ReminderAckCmd{ID: id}).Run(cctx, ctx))
	got, _ = app.Store.Reminders.Get(id)
	assert.True(t, got.Completed)

	out.Reset()
	require.NoError(t, (&ReminderListCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "No reminders.")

	out.Reset()
	require.NoError(t, (&ReminderListCmd{All: true}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Send invoice")

	assert.Error(t, (&ReminderAckCmd{ID: "nope"}).Run(cctx, ctx))
	assert.Error(t, (&ReminderAddCmd{Text: "x", Due: "whenever"}).Run(cctx, ctx))
}

func TestReminderServerCommands(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/notifications/active":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"reminderId": "r1", "thresholdLabel": "1 Hour Warning", "text": "Call Acme"})
		case "/reminders/r1/dismiss", "/reminders/r1/ack":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "no active notification for reminder", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cctx, out := clitest.New(t, true)
	ctx := context.Background()

	require.NoError(t, (&ReminderActiveCmd{Server: srv.URL}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Call Acme")

	require.NoError(t, (&ReminderDismissCmd{ID: "r1", Server: srv.URL}).Run(cctx, ctx))
	require.NoError(t, (&ReminderAckCmd{ID: "r1", Server: srv.URL}).Run(cctx, ctx))

	err := (&ReminderDismissCmd{ID: "r2", Server: srv.URL}).Run(cctx, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /notifications/active",
		"POST /reminders/r1/dismiss",
		"POST /reminders/r1/ack",
		"POST /reminders/r2/dismiss",
	}, calls)
}

func TestNoteEdit_FlushesOnClose(t *testing.T) {
	cctx, _ := clitest.New(t, true)
	ctx := context.Background()

	require.NoError(t, (&NoteAddCmd{Title: "Kickoff", Body: "draft"}).Run(cctx, ctx))
	app, err := cctx.App(ctx)
	require.NoError(t, err)
	id := app.Store.Notes.All()[0].ID
	remote := clitest.Remote(t, cctx)

	require.NoError(t, (&NoteEditCmd{ID: id, Body: "final agenda"}).Run(cctx, ctx))
	require.NoError(t, cctx.Close(ctx))

	assert.Contains(t, string(remote.Value("notes")), "final agenda")
}

func TestChecklistAndInvoices(t *testing.T) {
	cctx, out := clitest.New(t, true)
	ctx := context.Background()

	require.NoError(t, (&ChecklistAddCmd{Label: "Post reel", Date: "2024-06-10"}).Run(cctx, ctx))
	app, err := cctx.App(ctx)
	require.NoError(t, err)
	id := app.Store.Checklist.All()[0].ID

	require.NoError(t, (&ChecklistToggleCmd{ID: id}).Run(cctx, ctx))
	item, _ := app.Store.Checklist.Get(id)
	assert.True(t, item.Done)

	out.Reset()
	require.NoError(t, (&ChecklistListCmd{Date: "2024-06-10"}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "Post reel")

	assert.Error(t, (&ChecklistToggleCmd{ID: "nope"}).Run(cctx, ctx))

	assert.Error(t, (&InvoiceAddCmd{Client: "nope", Number: "INV-1", Amount: 10, Status: "draft"}).Run(cctx, ctx))
	c := addClient(t, cctx, "Acme Studio")
	require.NoError(t, (&InvoiceAddCmd{Client: c.ID, Number: "INV-1", Amount: 1500, Due: "2024-07-01", Status: "sent"}).Run(cctx, ctx))
	require.NoError(t, (&InvoiceAddCmd{Client: c.ID, Number: "INV-2", Amount: 250.5, Status: "draft"}).Run(cctx, ctx))

	out.Reset()
	require.NoError(t, (&InvoiceListCmd{}).Run(cctx, ctx))
	assert.Contains(t, out.String(), "INV-2")
	assert.Contains(t, out.String(), "1750.50")
}
