// Package keyring keeps the remote store DSN in the OS keyring.
package keyring

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/agencydesk/internal/constants"
)

var (
	// ErrNotFound is returned when no DSN is stored in the keyring.
	ErrNotFound = errors.New("remote DSN not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be reached.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")

	keywordPassword = regexp.MustCompile(`(password\s*=\s*)('[^']*'|\S+)`)
)

// GetRemoteDSN returns the stored DSN, or ErrNotFound.
func GetRemoteDSN() (string, error) {
	dsn, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return dsn, nil
}

func SetRemoteDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("remote DSN cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, dsn); err != nil {
		return fmt.Errorf("failed to store remote DSN in keyring: %w", err)
	}
	return nil
}

func DeleteRemoteDSN() error {
	if err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete remote DSN from keyring: %w", err)
	}
	return nil
}

// IsAvailable is a best-effort check: a read that fails with anything but
// "not found" means the keyring is unusable.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "availability-check")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// MaskPassword hides the password of a URL or keyword/value DSN for display.
func MaskPassword(dsn string) string {
	idx := strings.Index(dsn, "://")
	if idx == -1 {
		return keywordPassword.ReplaceAllString(dsn, "${1}****")
	}
	rest := dsn[idx+3:]
	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return dsn
	}
	userInfo := rest[:at]
	colon := strings.Index(userInfo, ":")
	if colon == -1 {
		return dsn
	}
	return dsn[:idx+3] + userInfo[:colon] + ":****" + rest[at:]
}
