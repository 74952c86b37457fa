package system

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/escalation"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/metrics"
	"github.com/julianstephens/agencydesk/internal/notifier"
)

type ServeCmd struct {
	MetricsAddr string `help:"Address for /metrics and the notification endpoints (e.g. 127.0.0.1:9464). Empty disables the listener."`
}

// Run keeps the state engine up and runs the escalation loop until the
// context is cancelled.
func (c *ServeCmd) Run(cctx *cli.Context, ctx context.Context) error {
	app, err := cctx.App(ctx)
	if err != nil {
		return err
	}
	cfg := cctx.Config

	sched := escalation.New(app.Store.Reminders, Sinks(cctx), escalation.Options{PollInterval: cfg.PollInterval})

	addr := c.MetricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		watchStatus(gctx, cctx, app)
		return nil
	})
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/", sched.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("Serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	cctx.Printf("agencydesk serving; polling reminders every %s\n", cfg.PollInterval)
	return g.Wait()
}

// Sinks builds the configured notification sinks. The log sink is always on.
func Sinks(cctx *cli.Context) escalation.Sink {
	cfg := cctx.Config
	sinks := notifier.MultiSink{notifier.LogSink{}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookSink(cfg.WebhookURL))
	}
	if cfg.TrayNotify {
		sinks = append(sinks, &notifier.TraySink{})
	}
	return sinks
}

func watchStatus(ctx context.Context, cctx *cli.Context, app *cli.App) {
	updates, cancel := app.Scheduler.Board().Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-updates:
			logger.Debug("Save status changed", "status", status)
			cctx.Printf("save status: %s\n", cli.Badge(status))
		}
	}
}
