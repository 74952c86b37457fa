package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/agencydesk/internal/cli"
	"github.com/julianstephens/agencydesk/internal/keyring"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/internal/storage/postgres"
)

// KeyringSetCmd stores the remote DSN in the OS keyring.
type KeyringSetCmd struct {
	DSN string `arg:"" help:"Remote DSN (postgres:// URL or key=value string)."`
}

func (c *KeyringSetCmd) Run(cctx *cli.Context) error {
	scheme, err := storage.SchemeOf(c.DSN)
	if err != nil {
		return err
	}
	if scheme != "postgres" {
		return fmt.Errorf("only PostgreSQL DSNs are stored in the keyring, got scheme %q", scheme)
	}
	if _, err := postgres.ValidateConnString(c.DSN); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		cctx.Println(cli.WarnStyle.Render("⚠️  The DSN contains a password. It is stored as-is in the encrypted OS keyring."))
	}
	if err := keyring.SetRemoteDSN(c.DSN); err != nil {
		return err
	}
	cctx.Println("✓ Remote DSN stored in OS keyring")
	return nil
}

type KeyringGetCmd struct{}

func (c *KeyringGetCmd) Run(cctx *cli.Context) error {
	dsn, err := keyring.GetRemoteDSN()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no remote DSN in keyring. Use 'agencydesk keyring set' to store one")
		}
		return err
	}
	cctx.Println(keyring.MaskPassword(dsn))
	return nil
}

type KeyringDeleteCmd struct{}

func (c *KeyringDeleteCmd) Run(cctx *cli.Context) error {
	if err := keyring.DeleteRemoteDSN(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no remote DSN in keyring")
		}
		return err
	}
	cctx.Println("✓ Remote DSN deleted from OS keyring")
	return nil
}

type KeyringStatusCmd struct{}

func (c *KeyringStatusCmd) Run(cctx *cli.Context) error {
	if !keyring.IsAvailable() {
		cctx.Println(cli.ErrorStyle.Render("❌ OS keyring is not available on this system"))
		return keyring.ErrKeyringUnavailable
	}
	cctx.Println("✓ OS keyring is available")
	if _, err := keyring.GetRemoteDSN(); err == nil {
		cctx.Println("✓ Remote DSN is stored in keyring")
	} else if errors.Is(err, keyring.ErrNotFound) {
		cctx.Println("ℹ No remote DSN stored in keyring")
	}
	return nil
}
