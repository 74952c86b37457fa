package constants

import "time"

// SaveStatus is the aggregated persistence state shown by the status indicator.
type SaveStatus string

// SavePolicy selects how a slot write is scheduled.
type SavePolicy int

// SlotSource records where the reconciler took a slot's startup value from.
type SlotSource string

const (
	AppName            = "agencydesk"
	DefaultKeyringUser = "remote-connection"
	DefaultConfigDir   = "~/.config/agencydesk"
	DefaultConfigFile  = "config.yaml"
	DefaultMirrorFile  = "mirror.db"
	DefaultJournalDir  = "journal"
	DefaultLogDir      = "logs"
	Version            = "v0.3.0"

	// DateFormat is the calendar-date format used for assignments and events (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// Save scheduler defaults
	DefaultDebounceWindow   = 1000 * time.Millisecond
	DefaultStatusResetDelay = 2 * time.Second
	SlotQueueSize           = 64

	// Escalation defaults
	DefaultPollInterval = 60 * time.Second

	// Log rotation
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 28

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "agencydesk-"
	BackupFileSuffix = ".json"

	// Notify constants
	NotifierLockfileName   = "agencydesk-notifier.lock"
	NotificationDurationMs = 8000
	TrayAppIdentifier      = "com.julianstephens.agencydesk"

	// Slot names
	SlotClients   = "clients"
	SlotPackages  = "packages"
	SlotCalendar  = "calendar"
	SlotReminders = "reminders"
	SlotInvoices  = "invoices"
	SlotNotes     = "notes"
	SlotChecklist = "checklist"

	// Save statuses
	StatusIdle   SaveStatus = "idle"
	StatusSaving SaveStatus = "saving"
	StatusSaved  SaveStatus = "saved"
	StatusError  SaveStatus = "error"

	// Reconcile sources
	SourceRemote  SlotSource = "remote"
	SourceMirror  SlotSource = "mirror"
	SourceDefault SlotSource = "default"
	SourceEmpty   SlotSource = "empty"
)

// Save policies
const (
	SaveImmediate SavePolicy = iota
	SaveDebounced
)

// Slots lists every declared slot in load order.
var Slots = []string{
	SlotClients,
	SlotPackages,
	SlotCalendar,
	SlotReminders,
	SlotInvoices,
	SlotNotes,
	SlotChecklist,
}
