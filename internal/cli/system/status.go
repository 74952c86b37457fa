package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/config"
	"github.com/julianstephens/agencydesk/internal/keyring"
	"github.com/julianstephens/agencydesk/internal/logger"
)

type StatusCmd struct{}

func (c *StatusCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	cfg := cctx.Config
	cctx.Printf("%s %s\n", cli.HeaderStyle.Render("Remote:"), keyring.MaskPassword(cfg.RemoteDSN))
	cctx.Printf("%s %s\n", cli.MutedStyle.Render("  from"), dsnSourceLabel(cfg.DSNSource))
	mirror := cfg.MirrorPath
	if app.Mirror == nil {
		mirror = cli.WarnStyle.Render("unavailable")
	}
	cctx.Printf("%s %s\n", cli.HeaderStyle.Render("Mirror:"), mirror)
	cctx.Printf("%s %s\n", cli.HeaderStyle.Render("Journal:"), cfg.JournalPath)
	cctx.Printf("%s %s\n\n", cli.HeaderStyle.Render("Logs:"), logger.Path(cfg.LogDir))

	printReport(cctx, app)

	pending, err := app.Cascade.Pending()
	if err != nil {
		return err
	}
	if app.Recovered > 0 {
		cctx.Printf("Recovered %d interrupted cascade(s)\n", app.Recovered)
	}
	if len(pending) > 0 {
		cctx.Println(cli.WarnStyle.Render(fmt.Sprintf("%d cascade(s) still pending; they are retried on next start", len(pending))))
	}
	cctx.Printf("\nSave status: %s\n", cli.Badge(app.Scheduler.Board().Status()))
	return nil
}

func dsnSourceLabel(s config.DSNSource) string {
	switch s {
	case config.SourceDefault:
		return "built-in default (data lives only in this process and the mirror)"
	case "":
		return "unknown"
	default:
		return string(s)
	}
}

func printReport(cctx *cli.Context, app *cli.App) {
	cctx.Println(cli.HeaderStyle.Render("Slots"))
	for _, rep := range app.Report.Slots {
		line := fmt.Sprintf("  %-10s %-8s v%-4d", rep.Slot, cli.SourceStyle(rep.Source).Render(string(rep.Source)), rep.Version)
		if rep.Repaired {
			line += cli.WarnStyle.Render(" repaired")
		}
		if rep.Err != nil {
			line += " " + cli.ErrorStyle.Render(rep.Err.Error())
		}
		cctx.Println(line)
	}
}
