package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/escalation"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

var sampleEvent = escalation.Event{
	ReminderID:     "r1",
	ThresholdID:    "1w",
	ThresholdLabel: "1 Week Warning",
	Text:           "Send invoice",
	Due:            time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
}

func TestTrayConfigDir(t *testing.T) {
	tempDir := t.TempDir()
	old := userConfigDirFunc
	defer func() { userConfigDirFunc = old }()
	userConfigDirFunc = func() (string, error) { return tempDir, nil }

	trayDir := filepath.Join(tempDir, constants.TrayAppIdentifier)
	dir, err := TrayConfigDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != trayDir {
		t.Errorf("expected %s, got %s", trayDir, dir)
	}

	if err := os.MkdirAll(trayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	custom := "/custom/agencydesk/dir"
	settings := fmt.Sprintf(`{"settings": {"lockfile_dir": %q}}`, custom)
	if err := os.WriteFile(filepath.Join(trayDir, "settings.json"), []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}
	dir, err = TrayConfigDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != custom {
		t.Errorf("expected %s, got %s", custom, dir)
	}
}

func TestFindTrayProcess(t *testing.T) {
	old := findProcessFunc
	defer func() { findProcessFunc = old }()
	findProcessFunc = func(pid int) (ps.Process, error) {
		return &mockProcess{pid: pid, executable: "agencydesk-tray"}, nil
	}

	lockfile := filepath.Join(t.TempDir(), constants.NotifierLockfileName)
	if _, _, err := findTrayProcess(lockfile); !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("missing lockfile: got %v", err)
	}

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"two parts", "8080|12345", "malformed"},
		{"garbage", "invalid", "malformed"},
		{"empty secret", "8080|12345|", "secret"},
		{"empty port", "|12345|s3cret", "port"},
		{"port out of range", "99999|12345|s3cret", "range"},
		{"bad pid", "8080|abc|s3cret", "process ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(lockfile, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, err := findTrayProcess(lockfile)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := os.WriteFile(lockfile, []byte("8080|12345|s3cret\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	findProcessFunc = func(int) (ps.Process, error) { return nil, nil }
	if _, _, err := findTrayProcess(lockfile); !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("dead process: got %v", err)
	}

	findProcessFunc = func(pid int) (ps.Process, error) {
		return &mockProcess{pid: pid, executable: "other-app"}, nil
	}
	if _, _, err := findTrayProcess(lockfile); err == nil {
		t.Error("expected error for wrong executable")
	}

	findProcessFunc = func(pid int) (ps.Process, error) {
		return &mockProcess{pid: pid, executable: "agencydesk-tray"}, nil
	}
	port, secret, err := findTrayProcess(lockfile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != "8080" || secret != "s3cret" {
		t.Errorf("got port=%s secret=%s", port, secret)
	}
}

func TestWebhookSink(t *testing.T) {
	var got Payload
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		header = r.Header.Get(secretHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	sink.Secret = "hook-secret"
	if err := sink.Notify(context.Background(), sampleEvent); err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	if got.Text != "1 Week Warning: Send invoice" {
		t.Errorf("unexpected text %q", got.Text)
	}
	if got.ThresholdID != "1w" || got.ReminderID != "r1" {
		t.Errorf("unexpected payload %+v", got)
	}
	if got.DurationMs != constants.NotificationDurationMs {
		t.Errorf("expected duration %d, got %d", constants.NotificationDurationMs, got.DurationMs)
	}
	if header != "hook-secret" {
		t.Errorf("expected secret header, got %q", header)
	}
}

func TestWebhookSinkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewWebhookSink(server.URL).Notify(context.Background(), sampleEvent)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTraySink(t *testing.T) {
	var secret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(secretHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	tempDir := t.TempDir()
	oldDir, oldFind := userConfigDirFunc, findProcessFunc
	defer func() { userConfigDirFunc, findProcessFunc = oldDir, oldFind }()
	userConfigDirFunc = func() (string, error) { return tempDir, nil }
	findProcessFunc = func(pid int) (ps.Process, error) {
		return &mockProcess{pid: pid, executable: "agencydesk-tray"}, nil
	}

	trayDir := filepath.Join(tempDir, constants.TrayAppIdentifier)
	if err := os.MkdirAll(trayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := fmt.Sprintf("%s|4242|tray-secret", u.Port())
	if err := os.WriteFile(filepath.Join(trayDir, constants.NotifierLockfileName), []byte(lock), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := (&TraySink{}).Notify(context.Background(), sampleEvent); err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	if secret != "tray-secret" {
		t.Errorf("expected tray secret, got %q", secret)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Notify(context.Context, escalation.Event) error {
	f.calls++
	return errors.New("down")
}

func TestMultiSinkTriesEverySink(t *testing.T) {
	first, second := &failingSink{}, &failingSink{}
	err := MultiSink{first, LogSink{}, second}.Notify(context.Background(), sampleEvent)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("expected both sinks called once, got %d and %d", first.calls, second.calls)
	}
	if err := (MultiSink{LogSink{}}).Notify(context.Background(), sampleEvent); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
