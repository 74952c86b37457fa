package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/agencydesk/internal/backup"
	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/validation"
)

type DoctorCmd struct{}

type check struct {
	name string
	run  func() error
	// warn marks checks that never fail the run
	warn bool
}

func (cmd *DoctorCmd) Run(cctx *cli.Context, ctx context.Context) error {
	cctx.Println("Running diagnostics...")
	cctx.Println()

	app, err := cctx.App(ctx)
	if err != nil {
		cctx.Printf("❌ Storage reachable: FAIL\n   Error: %v\n", err)
		return fmt.Errorf("one or more health checks failed")
	}
	cctx.Println("✓ Storage reachable: OK")

	checks := []check{
		{name: "Slots loaded", run: func() error {
			var errs []error
			for _, rep := range app.Report.Failed() {
				errs = append(errs, fmt.Errorf("%s: %w", rep.Slot, rep.Err))
			}
			return errors.Join(errs...)
		}},
		{name: "Local mirror", warn: true, run: func() error {
			if app.Mirror == nil {
				return fmt.Errorf("mirror %s could not be opened; startup falls back to the remote only", cctx.Config.MirrorPath)
			}
			return nil
		}},
		{name: "Cascades settled", run: func() error {
			pending, err := app.Cascade.Pending()
			if err != nil {
				return err
			}
			if len(pending) > 0 {
				return fmt.Errorf("%d cascade intent(s) are still journaled", len(pending))
			}
			return nil
		}},
		{name: "Calendar integrity", run: func() error {
			res := validation.CheckIntegrity(app.Store.Clients.All(), app.Store.Packages.All(), app.Store.Calendar.All())
			for _, c := range res.Conflicts {
				if c.Type != validation.ConflictUnknownPackage {
					return errors.New(res.FormatReport())
				}
			}
			return nil
		}},
		{name: "Backups present", warn: true, run: func() error {
			backups, err := backup.NewManager(cctx.Config.BackupDir, nil).List()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				return errors.New("no backups yet; run 'agencydesk backup create'")
			}
			if age := time.Since(backups[0].Timestamp); age > 7*24*time.Hour {
				return fmt.Errorf("newest backup is %s old", age.Round(time.Hour))
			}
			return nil
		}},
		{name: "Clock/timezone", run: checkClock},
	}

	failed := false
	for _, c := range checks {
		err := c.run()
		switch {
		case err == nil:
			cctx.Printf("✓ %s: OK\n", c.name)
		case c.warn:
			cctx.Printf("⚠ %s: WARNING\n   %v\n", c.name, err)
		default:
			cctx.Printf("❌ %s: FAIL\n   Error: %v\n", c.name, err)
			failed = true
		}
	}

	cctx.Println()
	if failed {
		cctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	cctx.Println("All diagnostics passed!")
	return nil
}

func checkClock() error {
	now := time.Now()
	if now.Year() < 2020 {
		return fmt.Errorf("system clock looks wrong: %s", now.Format(time.RFC3339))
	}
	if time.Local == nil {
		return errors.New("local timezone is not set")
	}
	return nil
}
