package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/agencydesk/internal/cascade"
	"github.com/julianstephens/agencydesk/internal/config"
	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/repository"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/internal/syncengine"
)

// Context is shared by every command. The application is opened lazily so
// commands that never touch the store (keyring) skip reconciliation.
type Context struct {
	Config    *config.Config
	Out       io.Writer
	AssumeYes bool

	// Confirm asks before destructive actions; nil uses a huh prompt.
	Confirm func(title, description string) (bool, error)

	mu  sync.Mutex
	app *App
}

func NewContext(cfg *config.Config) *Context {
	return &Context{Config: cfg, Out: os.Stdout}
}

// App is the running state engine.
type App struct {
	Remote    storage.Remote
	Mirror    storage.Mirror
	Scheduler *syncengine.Scheduler
	Store     *repository.Store
	Journal   cascade.Journal
	Cascade   *cascade.Manager
	Report    syncengine.Report
	Recovered int
}

// App opens the remote and mirror, reconciles every slot, then rolls
// outstanding cascade intents forward.
func (c *Context) App(ctx context.Context) (*App, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app != nil {
		return c.app, nil
	}

	cfg := c.Config
	if err := cfg.ResolveDSN(); err != nil {
		return nil, err
	}
	remote, err := storage.OpenRemote(cfg.RemoteDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	var mirror storage.Mirror
	if cfg.MirrorPath != "" {
		if m, err := storage.OpenMirror(cfg.MirrorPath); err != nil {
			logger.Warn("Local mirror unavailable, continuing without it", "path", cfg.MirrorPath, "error", err)
		} else {
			mirror = m
		}
	}

	app := &App{Remote: remote, Mirror: mirror}
	app.Scheduler = syncengine.NewScheduler(remote, mirror, syncengine.Options{
		DebounceWindow:   cfg.DebounceWindow,
		StatusResetDelay: cfg.StatusReset,
		QueueSize:        constants.SlotQueueSize,
	})
	app.Store = repository.NewStore(app.Scheduler)

	report, err := syncengine.NewReconciler(remote, mirror, app.Scheduler).Reconcile(ctx, app.Store.Specs())
	app.Report = report
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	for _, rep := range report.Failed() {
		logger.Warn("Slot loaded with errors", "slot", rep.Slot, "source", rep.Source, "error", rep.Err)
	}

	journal, err := cascade.OpenBadgerJournal(cfg.JournalPath)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	app.Journal = journal
	app.Cascade = cascade.NewManager(app.Store, journal)

	n, err := app.Cascade.Recover(ctx, report)
	app.Recovered = n
	if err != nil {
		logger.Error("Cascade recovery incomplete", "error", err)
	}

	c.app = app
	return app, nil
}

// Close flushes pending saves and releases every backend.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app == nil {
		return nil
	}
	err := c.app.close(ctx)
	c.app = nil
	return err
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Close(ctx))
	}
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
	}
	if a.Mirror != nil {
		errs = append(errs, a.Mirror.Close())
	}
	errs = append(errs, a.Remote.Close())
	return errors.Join(errs...)
}

// Printf writes to the command output.
func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Ask confirms a destructive action. --yes skips the prompt.
func (c *Context) Ask(title, description string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}
	if c.Confirm != nil {
		return c.Confirm(title, description)
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeBase()).Run()
	if err != nil {
		return false, fmt.Errorf("interactive form error: %w", err)
	}
	return ok, nil
}
