package constants

const (
	// Environment overrides
	EnvConfigFile   = "AGENCYDESK_CONFIG"
	EnvRemoteDSN    = "AGENCYDESK_REMOTE_DSN"
	EnvMirrorPath   = "AGENCYDESK_MIRROR_PATH"
	EnvJournalPath  = "AGENCYDESK_JOURNAL_PATH"
	EnvBackupDir    = "AGENCYDESK_BACKUP_DIR"
	EnvLogDir       = "AGENCYDESK_LOG_DIR"
	EnvDebounce     = "AGENCYDESK_DEBOUNCE"
	EnvStatusReset  = "AGENCYDESK_STATUS_RESET"
	EnvPollInterval = "AGENCYDESK_POLL_INTERVAL"
	EnvWebhookURL   = "AGENCYDESK_WEBHOOK_URL"
	EnvTrayNotify   = "AGENCYDESK_TRAY_NOTIFY"
	EnvMetricsAddr  = "AGENCYDESK_METRICS_ADDR"

	// Default remote when nothing is configured: process memory only
	DefaultRemoteDSN = "memory://"
)
