package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/agencydesk/internal/constants"
)

func TestInit(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "config", "logs")
	t.Cleanup(func() { _ = Close() })

	err := Init(Config{
		Debug: false,
		Dir:   logDir,
	})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log directory was not created: %s", logDir)
	}

	if Logger == nil {
		t.Error("Logger is nil after initialization")
	}

	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")

	data, err := os.ReadFile(Path(logDir))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if strings.Contains(string(data), "Test info message") {
		t.Error("info should be filtered outside debug mode")
	}
	if !strings.Contains(string(data), "Test warning message") {
		t.Errorf("warning missing from log file: %q", data)
	}
}

func TestInitDebugMode(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	err := Init(Config{
		Debug: true,
		Dir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to initialize logger in debug mode: %v", err)
	}

	if Logger == nil {
		t.Error("Logger is nil after initialization")
	}
	if Logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want %v", Logger.GetLevel(), log.DebugLevel)
	}
}

func TestInitRequiresDir(t *testing.T) {
	if err := Init(Config{}); err == nil {
		t.Error("expected an error without a log directory")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MaxBackups: 7}.withDefaults()
	if cfg.MaxSizeMB != constants.LogMaxSizeMB || cfg.MaxAgeDays != constants.LogMaxAgeDays {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.MaxBackups != 7 {
		t.Errorf("MaxBackups = %d, want 7", cfg.MaxBackups)
	}
}

func TestClose(t *testing.T) {
	if err := Init(Config{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if Logger != nil {
		t.Error("Logger should be nil after Close")
	}
	if err := Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	// must not panic
	Warn("after close")
}

func TestUseWriter(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf, log.InfoLevel)
	defer func() { Logger = nil }()

	Debug("hidden")
	Warn("mirror write failed", "slot", "clients")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level: %q", out)
	}
	if !strings.Contains(out, "mirror write failed") || !strings.Contains(out, "slot=clients") {
		t.Errorf("warning not captured: %q", out)
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// must not panic
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
}
