// Package notifier delivers escalation events to the outside world.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/escalation"
	"github.com/julianstephens/agencydesk/internal/logger"
)

const (
	trayExecutablePrefix = "agencydesk-tray"
	secretHeader         = "X-Agencydesk-Secret"
	requestTimeout       = 5 * time.Second
)

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess

	// ErrTrayNotRunning is returned when no tray process owns the lockfile.
	ErrTrayNotRunning = errors.New("agencydesk-tray is not running")
)

// Payload is the JSON body posted to webhooks and the tray.
type Payload struct {
	Text        string    `json:"text"`
	ReminderID  string    `json:"reminder_id"`
	ThresholdID string    `json:"threshold_id"`
	Threshold   string    `json:"threshold"`
	Due         time.Time `json:"due"`
	DurationMs  uint32    `json:"duration_ms"`
}

func payloadFor(ev escalation.Event) Payload {
	return Payload{
		Text:        fmt.Sprintf("%s: %s", ev.ThresholdLabel, ev.Text),
		ReminderID:  ev.ReminderID,
		ThresholdID: ev.ThresholdID,
		Threshold:   ev.ThresholdLabel,
		Due:         ev.Due,
		DurationMs:  constants.NotificationDurationMs,
	}
}

// LogSink writes every event to the application log.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, ev escalation.Event) error {
	logger.Info("Reminder due soon",
		"reminder", ev.ReminderID,
		"threshold", ev.ThresholdLabel,
		"text", ev.Text,
		"due", ev.Due.Format(time.RFC3339))
	return nil
}

// WebhookSink posts events as JSON to a fixed URL.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: requestTimeout}}
}

func (w *WebhookSink) Notify(ctx context.Context, ev escalation.Event) error {
	return post(ctx, w.client(), w.URL, w.Secret, payloadFor(ev))
}

func (w *WebhookSink) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: requestTimeout}
}

// TraySink finds the desktop tray through its lockfile and posts to it.
type TraySink struct {
	Client *http.Client
}

func (t *TraySink) Notify(ctx context.Context, ev escalation.Event) error {
	dir, err := TrayConfigDir()
	if err != nil {
		return err
	}
	port, secret, err := findTrayProcess(filepath.Join(dir, constants.NotifierLockfileName))
	if err != nil {
		return err
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return post(ctx, client, "http://127.0.0.1:"+port, secret, payloadFor(ev))
}

// MultiSink fans an event out to every sink. All sinks are tried; their
// errors are joined.
type MultiSink []escalation.Sink

func (m MultiSink) Notify(ctx context.Context, ev escalation.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TrayConfigDir returns the configuration directory used by the tray
// application, honoring a custom lockfile_dir in its settings.json.
func TrayConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	trayDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	data, err := os.ReadFile(filepath.Join(trayDir, "settings.json"))
	if err != nil {
		return trayDir, nil
	}
	var store struct {
		Settings struct {
			LockfileDir *string `json:"lockfile_dir"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(data, &store); err == nil && store.Settings.LockfileDir != nil && *store.Settings.LockfileDir != "" {
		return *store.Settings.LockfileDir, nil
	}
	return trayDir, nil
}

// findTrayProcess parses a "port|pid|secret" lockfile and checks that the
// pid belongs to a running tray.
func findTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", ErrTrayNotRunning
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}

	port := strings.TrimSpace(parts[0])
	if port == "" {
		return "", "", errors.New("port in lockfile is empty")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}

	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	secret := strings.TrimSpace(parts[2])
	if secret == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", ErrTrayNotRunning
	}
	if !strings.HasPrefix(process.Executable(), trayExecutablePrefix) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, trayExecutablePrefix, process.Executable())
	}

	return port, secret, nil
}

func post(ctx context.Context, client *http.Client, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
}
