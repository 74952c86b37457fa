package backups

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianstephens/agencydesk/internal/backup"
	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/constants"
)

type ExportCmd struct {
	File string `arg:"" optional:"" help:"Write to FILE instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	data, err := backup.Export(app.Store)
	if err != nil {
		return err
	}
	if c.File == "" {
		cctx.Printf("%s", data)
		return nil
	}
	if err := os.WriteFile(c.File, data, 0o600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	cctx.Printf("✓ Exported to %s\n", c.File)
	return nil
}

type ImportCmd struct {
	File string `arg:"" help:"Export document to import." type:"existingfile"`
}

func (c *ImportCmd) Run(cctx *cli.Context, ctx context.Context) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	confirmed, err := cctx.Ask("Import "+filepath.Base(c.File)+"?", "Every slot in the file replaces the current data.")
	if err != nil {
		return err
	}
	if !confirmed {
		cctx.Println("Import cancelled.")
		return nil
	}
	slots, err := backup.Import(ctx, app.Store, data)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	cctx.Printf("✓ Imported %s\n", strings.Join(slots, ", "))
	return nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(cctx *cli.Context, ctx context.Context) error {
	mgr, err := manager(cctx, ctx)
	if err != nil {
		return err
	}
	path, err := mgr.Create()
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	cctx.Printf("✓ Backup created: %s\n", filepath.Base(path))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(cctx *cli.Context) error {
	mgr := backup.NewManager(cctx.Config.BackupDir, nil)
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		cctx.Println("No backups found.")
		cctx.Printf("Backups are stored in: %s\n", mgr.Dir())
		return nil
	}
	cctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	for _, b := range backups {
		cctx.Printf("  %s  %s  (%.1f KB)\n", b.Timestamp.Format("2006-01-02 15:04:05"), filepath.Base(b.Path), float64(b.Size)/1024.0)
	}
	cctx.Printf("\nBackup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or file name of the backup to restore."`
}

func (c *BackupRestoreCmd) Run(cctx *cli.Context, ctx context.Context) error {
	path, err := resolveBackup(c.BackupFile, cctx.Config.BackupDir)
	if err != nil {
		return err
	}
	mgr, err := manager(cctx, ctx)
	if err != nil {
		return err
	}
	confirmed, err := cctx.Ask(
		"Restore "+filepath.Base(path)+"?",
		"Current data is replaced. A backup of it is created first.",
	)
	if err != nil {
		return err
	}
	if !confirmed {
		cctx.Println("Restore cancelled.")
		return nil
	}
	previous, err := mgr.Restore(ctx, path)
	if previous != "" {
		cctx.Printf("Backed up current data to %s\n", filepath.Base(previous))
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	cctx.Println("✓ Restored successfully")
	return nil
}

func manager(cctx *cli.Context, ctx context.Context) (*backup.Manager, error) {
	app, err := cctx.App(ctx)
	if err != nil {
		return nil, err
	}
	return backup.NewManager(cctx.Config.BackupDir, app.Store), nil
}

// resolveBackup accepts an existing path or a file name inside the backup
// directory.
func resolveBackup(name, dir string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	if !filepath.IsAbs(name) {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("backup file not found: tried %s and %s", name, dir)
}
