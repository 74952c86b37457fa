package system

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/agencydesk/internal/cli"
)

type InitCmd struct {
	Force bool `help:"Rewrite the config file even if it exists."`
}

// Run writes the config file, creates the mirror schema and the remote
// table, and seeds the default package catalog through reconciliation.
func (c *InitCmd) Run(cctx *cli.Context, ctx context.Context) error {
	cfg := cctx.Config
	_, err := os.Stat(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist) || c.Force:
		if err := cfg.Save(); err != nil {
			return err
		}
		cctx.Printf("Wrote config: %s\n", cfg.Path)
	case err != nil:
		return fmt.Errorf("failed to access config file: %w", err)
	default:
		cctx.Printf("Using existing config: %s\n", cfg.Path)
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	printReport(cctx, app)
	if failed := app.Report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d slot(s) could not be initialized", len(failed))
	}
	cctx.Println(cli.OKStyle.Render("✓ agencydesk storage initialized"))
	return nil
}
