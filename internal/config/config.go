// Package config loads agencydesk settings from YAML, the environment and
// the OS keyring.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/keyring"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/internal/storage/postgres"
)

// DSNSource records where the remote DSN came from.
type DSNSource string

const (
	SourceFile    DSNSource = "file"
	SourceEnv     DSNSource = "env"
	SourceFlag    DSNSource = "flag"
	SourceKeyring DSNSource = "keyring"
	SourceDefault DSNSource = "default"
)

var (
	lookupEnv   = os.LookupEnv
	userHomeDir = os.UserHomeDir
	keyringDSN  = keyring.GetRemoteDSN
)

type Config struct {
	RemoteDSN      string        `yaml:"remote_dsn,omitempty"`
	MirrorPath     string        `yaml:"mirror_path"`
	JournalPath    string        `yaml:"journal_path"`
	BackupDir      string        `yaml:"backup_dir"`
	LogDir         string        `yaml:"log_dir"`
	DebounceWindow time.Duration `yaml:"debounce"`
	StatusReset    time.Duration `yaml:"status_reset"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	WebhookURL     string        `yaml:"webhook_url,omitempty"`
	TrayNotify     bool          `yaml:"tray_notify"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"`

	// Dir is the directory holding the config file; relative paths resolve
	// against it.
	Dir       string    `yaml:"-"`
	Path      string    `yaml:"-"`
	DSNSource DSNSource `yaml:"-"`
}

// Default returns the built-in settings rooted at dir.
func Default(dir string) *Config {
	return &Config{
		MirrorPath:     constants.DefaultMirrorFile,
		JournalPath:    constants.DefaultJournalDir,
		BackupDir:      constants.BackupDirName,
		LogDir:         constants.DefaultLogDir,
		DebounceWindow: constants.DefaultDebounceWindow,
		StatusReset:    constants.DefaultStatusResetDelay,
		PollInterval:   constants.DefaultPollInterval,
		Dir:            dir,
		Path:           filepath.Join(dir, constants.DefaultConfigFile),
	}
}

// DefaultPath returns the config file location, honoring AGENCYDESK_CONFIG.
func DefaultPath() (string, error) {
	if p, ok := lookupEnv(constants.EnvConfigFile); ok && strings.TrimSpace(p) != "" {
		return ExpandHome(p)
	}
	return ExpandHome(filepath.Join(constants.DefaultConfigDir, constants.DefaultConfigFile))
}

// Load reads the config file at path (DefaultPath when empty) and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var err error
	if path == "" {
		path, err = DefaultPath()
	} else {
		path, err = ExpandHome(path)
	}
	if err != nil {
		return nil, err
	}

	cfg := Default(filepath.Dir(path))
	cfg.Path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("No config file, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.RemoteDSN != "" {
			cfg.DSNSource = SourceFile
		}
	}

	cfg.applyEnv()
	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := lookupEnv(constants.EnvRemoteDSN); ok && strings.TrimSpace(v) != "" {
		c.RemoteDSN = strings.TrimSpace(v)
		c.DSNSource = SourceEnv
	}
	if v, ok := lookupEnv(constants.EnvMirrorPath); ok && v != "" {
		c.MirrorPath = v
	}
	if v, ok := lookupEnv(constants.EnvJournalPath); ok && v != "" {
		c.JournalPath = v
	}
	if v, ok := lookupEnv(constants.EnvBackupDir); ok && v != "" {
		c.BackupDir = v
	}
	if v, ok := lookupEnv(constants.EnvLogDir); ok && v != "" {
		c.LogDir = v
	}
	if v, ok := lookupEnv(constants.EnvWebhookURL); ok {
		c.WebhookURL = v
	}
	if v, ok := lookupEnv(constants.EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	envDuration(constants.EnvDebounce, &c.DebounceWindow)
	envDuration(constants.EnvStatusReset, &c.StatusReset)
	envDuration(constants.EnvPollInterval, &c.PollInterval)
	if v, ok := lookupEnv(constants.EnvTrayNotify); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("Ignoring invalid environment value", "name", constants.EnvTrayNotify, "value", v)
		} else {
			c.TrayNotify = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	v, ok := lookupEnv(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Warn("Ignoring invalid environment value", "name", name, "value", v)
		return
	}
	*dst = d
}

func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.MirrorPath, &c.JournalPath, &c.BackupDir, &c.LogDir} {
		if *p == "" || strings.Contains(*p, "://") {
			continue
		}
		if expanded, err := ExpandHome(*p); err == nil {
			*p = expanded
		}
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Dir, *p)
		}
	}
}

// SetRemoteDSN applies a DSN given on the command line.
func (c *Config) SetRemoteDSN(dsn string) {
	if strings.TrimSpace(dsn) == "" {
		return
	}
	c.RemoteDSN = strings.TrimSpace(dsn)
	c.DSNSource = SourceFlag
}

// ResolveDSN falls back to the keyring and then to the in-process memory
// remote. PostgreSQL DSNs carrying a password are only accepted from the
// keyring.
func (c *Config) ResolveDSN() error {
	if c.RemoteDSN == "" {
		dsn, err := keyringDSN()
		switch {
		case err == nil:
			c.RemoteDSN, c.DSNSource = dsn, SourceKeyring
			return nil
		case errors.Is(err, keyring.ErrNotFound):
		default:
			logger.Warn("Keyring lookup failed", "error", err)
		}
		c.RemoteDSN, c.DSNSource = constants.DefaultRemoteDSN, SourceDefault
		return nil
	}
	if c.DSNSource == SourceKeyring {
		return nil
	}

	scheme, err := storage.SchemeOf(c.RemoteDSN)
	if err != nil {
		return err
	}
	if scheme != "postgres" {
		return nil
	}
	if _, err := postgres.ValidateConnString(c.RemoteDSN); errors.Is(err, postgres.ErrEmbeddedCredentials) {
		return fmt.Errorf("remote DSN from %s: %w (store it with 'agencydesk keyring set' instead)", c.DSNSource, err)
	}
	return nil
}

// Save writes the file-backed settings to c.Path atomically.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out := *c
	if out.DSNSource != SourceFile {
		out.RemoteDSN = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(c.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
