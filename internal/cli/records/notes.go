package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/models"
)

type NoteAddCmd struct {
	Title  string `arg:"" help:"Note title."`
	Body   string `arg:"" optional:"" help:"Note body."`
	Client string `help:"Client ID the note belongs to."`
}

func (c *NoteAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	n := models.Note{ID: uuid.NewString(), ClientID: c.Client, Title: c.Title, Body: c.Body, UpdatedAt: time.Now().UTC()}
	_, res := app.Store.Notes.Add(n)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}
	cctx.Printf("✓ Added note %s\n", n.ID)
	return nil
}

// NoteEditCmd replaces a note body through the debounced save path; the
// write lands when the command exits and the scheduler flushes.
type NoteEditCmd struct {
	ID   string `arg:"" help:"Note ID."`
	Body string `arg:"" help:"New body."`
}

func (c *NoteEditCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	if _, ok := app.Store.Notes.Get(c.ID); !ok {
		return fmt.Errorf("note %s not found", c.ID)
	}
	app.Store.Notes.EditBody(c.ID, c.Body)
	cctx.Printf("✓ Note %s updated\n", c.ID)
	return nil
}

type NoteListCmd struct {
	Client string `help:"Only notes of this client ID."`
}

func (c *NoteListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	shown := 0
	for _, n := range app.Store.Notes.All() {
		if c.Client != "" && n.ClientID != c.Client {
			continue
		}
		shown++
		cctx.Printf("%s  %s  %s\n", n.ID, cli.HeaderStyle.Render(n.Title), cli.MutedStyle.Render(n.UpdatedAt.Local().Format("2006-01-02 15:04")))
		if n.Body != "" {
			cctx.Printf("    %s\n", n.Body)
		}
	}
	if shown == 0 {
		cctx.Println("No notes.")
	}
	return nil
}

type ChecklistAddCmd struct {
	Label string `arg:"" help:"Checklist entry."`
	Date  string `help:"Day (YYYY-MM-DD); defaults to today."`
}

func (c *ChecklistAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	date := c.Date
	if date == "" {
		date = time.Now().Format(constants.DateFormat)
	}
	item := models.ChecklistItem{ID: uuid.NewString(), Date: date, Label: c.Label}
	_, res := app.Store.Checklist.Add(item)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add checklist item: %w", err)
	}
	cctx.Printf("✓ Added %s for %s (%s)\n", item.Label, item.Date, item.ID)
	return nil
}

// ChecklistToggleCmd flips an entry through the debounced save path.
type ChecklistToggleCmd struct {
	ID string `arg:"" help:"Checklist item ID."`
}

func (c *ChecklistToggleCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	if _, ok := app.Store.Checklist.Get(c.ID); !ok {
		return fmt.Errorf("checklist item %s not found", c.ID)
	}
	app.Store.Checklist.Toggle(c.ID)
	item, _ := app.Store.Checklist.Get(c.ID)
	state := "open"
	if item.Done {
		state = "done"
	}
	cctx.Printf("✓ %s is now %s\n", item.Label, state)
	return nil
}

type ChecklistListCmd struct {
	Date string `help:"Day (YYYY-MM-DD); defaults to today."`
}

func (c *ChecklistListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	date := c.Date
	if date == "" {
		date = time.Now().Format(constants.DateFormat)
	}
	items := app.Store.Checklist.ForDate(date)
	if len(items) == 0 {
		cctx.Printf("Nothing on the checklist for %s.\n", date)
		return nil
	}
	for _, item := range items {
		box := "[ ]"
		if item.Done {
			box = cli.OKStyle.Render("[x]")
		}
		cctx.Printf("%s %s  %s\n", box, item.Label, cli.MutedStyle.Render(item.ID))
	}
	return nil
}

type InvoiceAddCmd struct {
	Client string  `arg:"" help:"Client ID."`
	Number string  `arg:"" help:"Invoice number."`
	Amount float64 `arg:"" help:"Amount."`
	Due    string  `help:"Due date (YYYY-MM-DD)."`
	Status string  `help:"Invoice status." enum:"draft,sent,paid,void" default:"draft"`
}

func (c *InvoiceAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	if _, ok := app.Store.Clients.Get(c.Client); !ok {
		return fmt.Errorf("client %s not found", c.Client)
	}
	inv := models.Invoice{
		ID:       uuid.NewString(),
		ClientID: c.Client,
		Number:   c.Number,
		Amount:   c.Amount,
		Status:   models.InvoiceStatus(c.Status),
		IssuedAt: time.Now().Format(constants.DateFormat),
		DueDate:  c.Due,
	}
	_, res := app.Store.Invoices.Add(inv)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add invoice: %w", err)
	}
	cctx.Printf("✓ Added invoice %s (%s)\n", inv.Number, inv.ID)
	return nil
}

type InvoiceListCmd struct{}

func (c *InvoiceListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	invoices := app.Store.Invoices.All()
	if len(invoices) == 0 {
		cctx.Println("No invoices.")
		return nil
	}
	var total float64
	for _, inv := range invoices {
		total += inv.Amount
		cctx.Printf("  %-10s %-6s %10.2f  due %-10s %s\n", inv.Number, inv.Status, inv.Amount, inv.DueDate, cli.MutedStyle.Render(inv.ClientID))
	}
	cctx.Printf("  %s %10.2f\n", cli.HeaderStyle.Render("total"), total)
	return nil
}
