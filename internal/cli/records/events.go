package records

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/models"
)

type EventListCmd struct {
	Client string `help:"Only events of this client (name)."`
	From   string `help:"Only events on or after this date (YYYY-MM-DD)."`
}

func (c *EventListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	events := slices.DeleteFunc(app.Store.Calendar.All(), func(e models.CalendarEvent) bool {
		if c.Client != "" && !strings.EqualFold(e.Client, c.Client) {
			return true
		}
		return c.From != "" && e.Date < c.From
	})
	if len(events) == 0 {
		cctx.Println("No events.")
		return nil
	}
	slices.SortStableFunc(events, func(a, b models.CalendarEvent) int { return strings.Compare(a.Date, b.Date) })

	for _, e := range events {
		marker := " "
		if e.AutoGenerated {
			marker = cli.MutedStyle.Render("*")
		}
		cctx.Printf("%s %s  %-9s %s", marker, e.Date, e.Type, e.Title)
		if e.Client != "" {
			cctx.Printf("  %s", cli.MutedStyle.Render(e.Client))
		}
		cctx.Println()
	}
	cctx.Println(cli.MutedStyle.Render(fmt.Sprintf("%d event(s); * generated by a package", len(events))))
	return nil
}
