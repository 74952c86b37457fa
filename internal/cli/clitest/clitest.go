// Package clitest builds command contexts backed by in-memory storage.
package clitest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/config"
	"github.com/julianstephens/agencydesk/internal/storage/memory"
)

// New returns a context on fresh memory remote and mirror backends with an
// in-memory journal. Answers to confirmations come from answer.
func New(t *testing.T, answer bool) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.SetRemoteDSN("memory://")
	cfg.MirrorPath = "memory://"
	cfg.JournalPath = ""
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.DebounceWindow = 10 * time.Millisecond
	cfg.StatusReset = 20 * time.Millisecond

	out := &bytes.Buffer{}
	cctx := cli.NewContext(cfg)
	cctx.Out = out
	cctx.Confirm = func(string, string) (bool, error) { return answer, nil }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cctx.Close(ctx)
	})
	return cctx, out
}

// Remote returns the memory remote behind an opened context.
func Remote(t *testing.T, cctx *cli.Context) *memory.Remote {
	t.Helper()
	app, err := cctx.App(context.Background())
	if err != nil {
		t.Fatalf("App() failed: %v", err)
	}
	remote, ok := app.Remote.(*memory.Remote)
	if !ok {
		t.Fatalf("remote is %T, want *memory.Remote", app.Remote)
	}
	return remote
}
