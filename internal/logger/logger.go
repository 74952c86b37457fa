package logger

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/agencydesk/internal/constants"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger

	mu   sync.Mutex
	file *lumberjack.Logger
)

// Config holds logger configuration
type Config struct {
	Debug bool
	// Dir is the directory holding the rotated log files. The CLI takes it
	// from the log_dir setting.
	Dir string

	// Rotation limits; zero values use the package defaults
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (c Config) withDefaults() Config {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = constants.LogMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = constants.LogMaxBackups
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = constants.LogMaxAgeDays
	}
	return c
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	if cfg.Dir == "" {
		return errors.New("log directory is not set")
	}
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return err
	}

	// Rotating file handler; the file always receives output
	fileWriter := &lumberjack.Logger{
		Filename:   Path(cfg.Dir),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	// Debug mode mirrors every line to stderr
	var writer io.Writer = fileWriter
	if cfg.Debug {
		writer = io.MultiWriter(os.Stderr, fileWriter)
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Close()
	}
	file = fileWriter
	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})

	return nil
}

// Path returns the active log file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, constants.AppName+".log")
}

// Close releases the log file. Later calls log nowhere until the next Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	Logger = nil
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// UseWriter points the global logger at w. Tests use it to capture output.
func UseWriter(w io.Writer, level log.Level) {
	Logger = log.NewWithOptions(w, log.Options{
		Level:  level,
		Prefix: constants.AppName,
	})
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
