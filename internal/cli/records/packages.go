package records

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/models"
)

type PackageListCmd struct{}

func (c *PackageListCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	pkgs := app.Store.Packages.All()
	if len(pkgs) == 0 {
		cctx.Println("No packages defined.")
		return nil
	}
	for _, p := range pkgs {
		cctx.Printf("%s  %s\n", cli.HeaderStyle.Render(p.Name), cli.MutedStyle.Render(fmt.Sprintf("%s  $%.2f", p.ID, p.Price)))
		for _, t := range p.Tasks {
			cctx.Printf("    day %+4d  %-9s %s\n", t.OffsetDays, t.Type, t.Title)
		}
	}
	return nil
}

type PackageAddCmd struct {
	Name  string   `arg:"" help:"Package name."`
	Price float64  `help:"Package price."`
	Task  []string `help:"Task as OFFSET:TYPE:TITLE, e.g. -3:deadline:Brief due. Repeatable." short:"t"`
}

func (c *PackageAddCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	pkg := models.PackageDefinition{ID: "pkg-" + uuid.NewString(), Name: c.Name, Price: c.Price}
	for i, spec := range c.Task {
		task, err := ParseTask(spec)
		if err != nil {
			return err
		}
		task.ID = fmt.Sprintf("%s-task-%d", pkg.ID, i+1)
		pkg.Tasks = append(pkg.Tasks, task)
	}
	_, res := app.Store.Packages.Add(pkg)
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed to add package: %w", err)
	}
	cctx.Printf("✓ Added package %s (%s) with %d task(s)\n", pkg.Name, pkg.ID, len(pkg.Tasks))
	return nil
}

// ParseTask parses OFFSET:TYPE:TITLE. The title may contain colons.
func ParseTask(spec string) (models.PackageTask, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return models.PackageTask{}, fmt.Errorf("invalid task %q: want OFFSET:TYPE:TITLE", spec)
	}
	offset, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return models.PackageTask{}, fmt.Errorf("invalid task offset in %q: %w", spec, err)
	}
	title := strings.TrimSpace(parts[2])
	if title == "" {
		return models.PackageTask{}, fmt.Errorf("invalid task %q: title is empty", spec)
	}
	return models.PackageTask{Title: title, Type: strings.TrimSpace(parts[1]), OffsetDays: offset}, nil
}

type PackageDeleteCmd struct {
	ID string `arg:"" help:"Package ID."`
}

func (c *PackageDeleteCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	pkg, ok := app.Store.Packages.Get(c.ID)
	if !ok {
		return fmt.Errorf("package %s not found", c.ID)
	}
	clients := 0
	for _, cl := range app.Store.Clients.All() {
		if slices.ContainsFunc(cl.PackageAssignments, func(a models.Assignment) bool { return a.PackageID == c.ID }) {
			clients++
		}
	}
	confirmed, err := cctx.Ask(
		fmt.Sprintf("Delete package %s?", pkg.Name),
		fmt.Sprintf("It is assigned to %d client(s); their generated calendar events will be removed.", clients),
	)
	if err != nil {
		return err
	}
	if !confirmed {
		cctx.Println("Delete cancelled.")
		return nil
	}
	if err := app.Cascade.DeletePackage(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	cctx.Printf("✓ Deleted package %s\n", pkg.Name)
	return nil
}

type AssignCmd struct {
	Client  string `arg:"" help:"Client ID."`
	Package string `arg:"" help:"Package ID."`
	Date    string `arg:"" help:"Start date (YYYY-MM-DD)."`
}

func (c *AssignCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	a, err := app.Cascade.AssignPackageToClient(ctx, c.Client, c.Package, c.Date)
	if err != nil {
		return fmt.Errorf("assignment not fully saved: %w", err)
	}
	if a == nil {
		return fmt.Errorf("nothing assigned: check the client ID, the package ID and the date %q", c.Date)
	}
	cctx.Printf("✓ Assigned %s to %s from %s (%s, %d events)\n", c.Package, c.Client, a.StartDate, a.ID, len(a.CalendarEventIDs))
	return nil
}

type UnassignCmd struct {
	Client     string `arg:"" help:"Client ID."`
	Assignment string `arg:"" help:"Assignment ID."`
}

func (c *UnassignCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	if err := app.Cascade.RemovePackageAssignment(ctx, c.Client, c.Assignment); err != nil {
		return fmt.Errorf("unassign not fully saved: %w", err)
	}
	cctx.Printf("✓ Removed assignment %s\n", c.Assignment)
	return nil
}
