package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/escalation"
	"github.com/julianstephens/agencydesk/internal/models"
	"github.com/julianstephens/agencydesk/internal/notifier"
)

var dueLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// ParseDue accepts RFC 3339 or a local "YYYY-MM-DD[ HH:MM]" time.
func ParseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due time %q: use RFC 3339 or YYYY-MM-DD HH:MM", s)
}

type ReminderAddCmd struct {
	Text string `arg:"" help:"What to be reminded of."`
	Due  string `arg:"" help:"Due time (RFC 3339 or YYYY-MM-DD HH:MM)."`
}

func (c *ReminderAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	due, err := ParseDue(c.Due)
	if err != nil {
		return err
	}
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	r := models.Reminder{ID: uuid.NewString(), Text: c.Text, Due: due}
	_, res := app.Store.Reminders.Add(r)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add reminder: %w", err)
	}
	cctx.Printf("✓ Added reminder %s due %s\n", r.ID, due.Format("2006-01-02 15:04"))
	return nil
}

type ReminderListCmd struct {
	All bool `help:"Include completed reminders."`
}

func (c *ReminderListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	shown := 0
	now := time.Now()
	for _, r := range app.Store.Reminders.All() {
		if r.Completed && !c.All {
			continue
		}
		shown++
		state := cli.WarnStyle.Render(fmt.Sprintf("in %s", r.Due.Sub(now).Round(time.Minute)))
		switch {
		case r.Completed:
			state = cli.OKStyle.Render("done")
		case r.Due.Before(now):
			state = cli.ErrorStyle.Render("overdue")
		}
		cctx.Printf("  %s  %s  %-10s %s", r.ID, r.Due.Local().Format("2006-01-02 15:04"), state, r.Text)
		if len(r.TriggeredIntervals) > 0 {
			cctx.Printf("  %s", cli.MutedStyle.Render("["+strings.Join(r.TriggeredIntervals, ",")+"]"))
		}
		cctx.Println()
	}
	if shown == 0 {
		cctx.Println("No reminders.")
	}
	return nil
}

// ReminderPollCmd runs one escalation cycle and prints what fired.
type ReminderPollCmd struct{}

func (c *ReminderPollCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	s := escalation.New(app.Store.Reminders, notifier.LogSink{}, escalation.Options{})
	ev, ok := s.Poll(ctx)
	if !ok {
		cctx.Println("Nothing to escalate.")
		return nil
	}
	cctx.Printf("%s %s (%s)\n", cli.WarnStyle.Render(ev.ThresholdLabel), ev.Text, ev.ReminderID)
	return nil
}

// ReminderAckCmd completes a reminder. With --server it goes through a
// running serve process so its in-memory state stays current.
type ReminderAckCmd struct {
	ID     string `arg:"" help:"Reminder ID."`
	Server string `help:"Base URL of a running 'agencydesk serve'."`
}

func (c *ReminderAckCmd) Run(cctx *cli.Context, ctx context.Context) error {
	if c.Server != "" {
		if err := postAction(ctx, c.Server, c.ID, "ack"); err != nil {
			return err
		}
		cctx.Printf("✓ Reminder %s acknowledged\n", c.ID)
		return nil
	}
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	if _, ok := app.Store.Reminders.Get(c.ID); !ok {
		return fmt.Errorf("reminder %s not found", c.ID)
	}
	s := escalation.New(app.Store.Reminders, nil, escalation.Options{})
	if err := s.Acknowledge(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to acknowledge reminder: %w", err)
	}
	cctx.Printf("✓ Reminder %s acknowledged\n", c.ID)
	return nil
}

// ReminderDismissCmd clears the active notification of a running serve
// process. Fired thresholds stay fired.
type ReminderDismissCmd struct {
	ID     string `arg:"" help:"Reminder ID."`
	Server string `help:"Base URL of a running 'agencydesk serve'." default:"http://127.0.0.1:9464"`
}

func (c *ReminderDismissCmd) Run(cctx *cli.Context, ctx context.Context) error {
	if err := postAction(ctx, c.Server, c.ID, "dismiss"); err != nil {
		return err
	}
	cctx.Printf("✓ Notification for %s dismissed\n", c.ID)
	return nil
}

func postAction(ctx context.Context, server, id, action string) error {
	url := strings.TrimRight(server, "/") + "/reminders/" + id + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach serve process: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("%s failed with status %d: %s", action, res.StatusCode, strings.TrimSpace(string(msg)))
}

// ReminderActiveCmd shows the notification a running serve process holds.
type ReminderActiveCmd struct {
	Server string `help:"Base URL of a running 'agencydesk serve'." default:"http://127.0.0.1:9464"`
}

func (c *ReminderActiveCmd) Run(cctx *cli.Context, ctx context.Context) error {
	url := strings.TrimRight(c.Server, "/") + "/notifications/active"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach serve process: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNoContent {
		cctx.Println("No active notification.")
		return nil
	}
	var ev escalation.Event
	if err := json.NewDecoder(res.Body).Decode(&ev); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	cctx.Printf("%s %s (%s)\n", cli.WarnStyle.Render(ev.ThresholdLabel), ev.Text, ev.ReminderID)
	return nil
}
