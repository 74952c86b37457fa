package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/agencydesk/internal/keyring"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/internal/storage/postgres"
	"github.com/julianstephens/agencydesk/internal/storage/sqlite"
)

var hints = []struct {
	target error
	hint   string
}{
	{storage.ErrVersionConflict, "another process saved this data first; restart to reconcile with the remote store"},
	{storage.ErrClosed, "the store was already shut down"},
	{storage.ErrInvalidDSN, "check the remote DSN in your config, AGENCYDESK_REMOTE_DSN or the keyring"},
	{postgres.ErrEmbeddedCredentials, "store DSNs with passwords using 'agencydesk keyring set'"},
	{postgres.ErrInvalidConnectionString, "use a postgres:// URL or a key=value connection string"},
	{keyring.ErrNotFound, "store a remote DSN with 'agencydesk keyring set'"},
	{keyring.ErrKeyringUnavailable, "pass the DSN with --remote or AGENCYDESK_REMOTE_DSN instead"},
	{sqlite.ErrChecksumMismatch, "the local mirror is corrupt; it will be rewritten from the remote store"},
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Describe returns a one-line remediation hint for known errors, or "".
func Describe(err error) string {
	for _, h := range hints {
		if errors.Is(err, h.target) {
			return h.hint
		}
	}
	return ""
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		if hint := Describe(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
