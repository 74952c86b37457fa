package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/cli/backups"
	"github.com/julianstephens/agencydesk/internal/cli/records"
	"github.com/julianstephens/agencydesk/internal/cli/system"
	"github.com/julianstephens/agencydesk/internal/config"
	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/errors"
	"github.com/julianstephens/agencydesk/internal/logger"
	_ "github.com/julianstephens/agencydesk/internal/storage/memory"
	_ "github.com/julianstephens/agencydesk/internal/storage/postgres"
	_ "github.com/julianstephens/agencydesk/internal/storage/sqlite"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"path" env:"AGENCYDESK_CONFIG"`
	Remote  string `help:"Remote DSN (overrides config and env). Passwords belong in the keyring."`
	Debug   bool   `help:"Log debug output to stderr."`
	Yes     bool   `help:"Answer yes to confirmations." short:"y"`

	Init   system.InitCmd   `cmd:"" help:"Initialize storage and seed the default packages."`
	Status system.StatusCmd `cmd:"" help:"Reconcile and show slot status."`
	Doctor system.DoctorCmd `cmd:"" help:"Run health checks on storage, cascades and calendar integrity."`
	Serve  system.ServeCmd  `cmd:"" help:"Run the reminder escalation loop."`

	Client struct {
		Add    records.ClientAddCmd    `cmd:"" help:"Add a client."`
		List   records.ClientListCmd   `cmd:"" help:"List clients." default:"1"`
		Delete records.ClientDeleteCmd `cmd:"" help:"Delete a client and its assignments."`
	} `cmd:"" help:"Manage clients."`
	Package struct {
		List   records.PackageListCmd   `cmd:"" help:"List packages." default:"1"`
		Add    records.PackageAddCmd    `cmd:"" help:"Add a package."`
		Delete records.PackageDeleteCmd `cmd:"" help:"Delete a package and its generated events."`
	} `cmd:"" help:"Manage the package catalog."`
	Assign   records.AssignCmd   `cmd:"" help:"Assign a package to a client."`
	Unassign records.UnassignCmd `cmd:"" help:"Remove a package assignment."`
	Event    struct {
		List records.EventListCmd `cmd:"" help:"List calendar events." default:"1"`
	} `cmd:"" help:"Calendar events."`
	Reminder struct {
		Add     records.ReminderAddCmd     `cmd:"" help:"Add a reminder."`
		List    records.ReminderListCmd    `cmd:"" help:"List reminders." default:"1"`
		Ack     records.ReminderAckCmd     `cmd:"" help:"Acknowledge (complete) a reminder."`
		Dismiss records.ReminderDismissCmd `cmd:"" help:"Dismiss the active notification of a running serve."`
		Active  records.ReminderActiveCmd  `cmd:"" help:"Show the active notification of a running serve."`
		Poll    records.ReminderPollCmd    `cmd:"" help:"Run one escalation cycle."`
	} `cmd:"" help:"Manage reminders."`
	Note struct {
		Add  records.NoteAddCmd  `cmd:"" help:"Add a note."`
		Edit records.NoteEditCmd `cmd:"" help:"Replace a note body."`
		List records.NoteListCmd `cmd:"" help:"List notes." default:"1"`
	} `cmd:"" help:"Manage notes."`
	Checklist struct {
		Add    records.ChecklistAddCmd    `cmd:"" help:"Add a checklist entry."`
		Toggle records.ChecklistToggleCmd `cmd:"" help:"Toggle a checklist entry."`
		List   records.ChecklistListCmd   `cmd:"" help:"Show a day's checklist." default:"1"`
	} `cmd:"" help:"Daily checklist."`
	Invoice struct {
		Add  records.InvoiceAddCmd  `cmd:"" help:"Add an invoice."`
		List records.InvoiceListCmd `cmd:"" help:"List invoices." default:"1"`
	} `cmd:"" help:"Manage invoices."`
	Export backups.ExportCmd `cmd:"" help:"Export all data as one JSON document."`
	Import backups.ImportCmd `cmd:"" help:"Import a JSON export, replacing the slots it contains."`
	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage backups."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the remote DSN in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored remote DSN (password masked)."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Delete the stored remote DSN."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage the remote DSN in the OS keyring."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Agency desk: clients, packages, calendar and reminders with remote sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		errors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug, Dir: cfg.LogDir}); err != nil {
		errors.Fatal(err)
	}
	defer logger.Close()
	cfg.SetRemoteDSN(CLI.Remote)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := cli.NewContext(cfg)
	appCtx.AssumeYes = CLI.Yes

	kctx.BindTo(ctx, (*context.Context)(nil))
	runErr := kctx.Run(appCtx)

	// flush debounced saves even when the command failed or was interrupted
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := appCtx.Close(closeCtx); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		stop()
		cancel()
		errors.Fatal(runErr)
	}
}
