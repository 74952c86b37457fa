package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/models"
)

type ClientAddCmd struct {
	Name    string  `arg:"" help:"Client name."`
	Status  string  `help:"Pipeline stage." enum:"lead,active,paused,archived" default:"lead"`
	Revenue float64 `help:"Expected revenue."`
}

func (c *ClientAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	client := models.Client{
		ID:      uuid.NewString(),
		Name:    c.Name,
		Status:  models.ClientStatus(c.Status),
		Revenue: c.Revenue,
	}
	_, res := app.Store.Clients.Add(client)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add client: %w", err)
	}
	cctx.Printf("✓ Added client %s (%s)\n", client.Name, client.ID)
	return nil
}

type ClientListCmd struct{}

func (c *ClientListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	clients := app.Store.Clients.All()
	if len(clients) == 0 {
		cctx.Println("No clients yet.")
		return nil
	}
	cctx.Println(cli.HeaderStyle.Render(fmt.Sprintf("Clients (%d)", len(clients))))
	for _, cl := range clients {
		cctx.Printf("  %s  %-24s %-9s %10.2f\n", cl.ID, cl.Name, cl.Status, cl.Revenue)
		for _, a := range cl.PackageAssignments {
			cctx.Printf("      %s %s from %s (%d events)\n",
				cli.MutedStyle.Render(a.ID), a.PackageID, a.StartDate, len(a.CalendarEventIDs))
		}
	}
	return nil
}

type ClientDeleteCmd struct {
	ID string `arg:"" help:"Client ID."`
}

// Run removes every assignment of the client through the cascade first so
// no generated event outlives it.
func (c *ClientDeleteCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	client, ok := app.Store.Clients.Get(c.ID)
	if !ok {
		return fmt.Errorf("client %s not found", c.ID)
	}
	confirmed, err := cctx.Ask(
		fmt.Sprintf("Delete client %s?", client.Name),
		fmt.Sprintf("%d package assignment(s) and their calendar events will be removed.", len(client.PackageAssignments)),
	)
	if err != nil {
		return err
	}
	if !confirmed {
		cctx.Println("Delete cancelled.")
		return nil
	}

	var errs []error
	for _, a := range client.PackageAssignments {
		if err := app.Cascade.RemovePackageAssignment(ctx, c.ID, a.ID); err != nil {
			errs = append(errs, err)
		}
	}
	_, res := app.Store.Clients.Delete(c.ID)
	if err := res.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	cctx.Printf("✓ Deleted client %s\n", client.Name)
	return nil
}
