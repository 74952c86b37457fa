package cascade

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/models"
)

type IntentKind string

const (
	KindAssign        IntentKind = "assign"
	KindUnassign      IntentKind = "unassign"
	KindDeletePackage IntentKind = "delete-package"
)

// Intent is the plan of one cascade, journaled before any collection is
// touched and removed once every save it issued succeeded.
type Intent struct {
	Seq          uint64                 `json:"seq"`
	Kind         IntentKind             `json:"kind"`
	ClientID     string                 `json:"clientId,omitempty"`
	PackageID    string                 `json:"packageId,omitempty"`
	AssignmentID string                 `json:"assignmentId,omitempty"`
	Assignment   *models.Assignment     `json:"assignment,omitempty"`
	Events       []models.CalendarEvent `json:"events,omitempty"`
	EventIDs     []string               `json:"eventIds,omitempty"`
	Slots        []string               `json:"slots"`
}

// Journal stores outstanding intents in Seq order.
type Journal interface {
	// Put assigns the next sequence number to intent and stores it.
	Put(intent *Intent) error
	Delete(seq uint64) error
	List() ([]Intent, error)
	Close() error
}

var intentPrefix = []byte("intent/")

func intentKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", intentPrefix, seq))
}

// BadgerJournal keeps intents in a BadgerDB directory, or in memory.
type BadgerJournal struct {
	db  *badger.DB
	seq *badger.Sequence
	mu  sync.Mutex
}

// OpenBadgerJournal opens (creating if needed) the journal at dir. An empty
// dir opens an in-memory journal.
func OpenBadgerJournal(dir string) (*BadgerJournal, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(8 << 20)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open intent journal: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq/intent"), 16)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open intent sequence: %w", err)
	}
	return &BadgerJournal{db: db, seq: seq}, nil
}

func (j *BadgerJournal) Put(intent *Intent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Sequence starts at 0; intents start at 1 so the zero value means unset.
	next, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("allocate intent sequence: %w", err)
	}
	intent.Seq = next + 1

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(intentKey(intent.Seq), data)
	})
}

func (j *BadgerJournal) Delete(seq uint64) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(intentKey(seq))
	})
}

func (j *BadgerJournal) List() ([]Intent, error) {
	var out []Intent
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(intentPrefix); it.ValidForPrefix(intentPrefix); it.Next() {
			var intent Intent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &intent)
			})
			if err != nil {
				logger.Warn("Skipping unreadable intent", "key", string(it.Item().Key()), "error", err)
				continue
			}
			out = append(out, intent)
		}
		return nil
	})
	return out, err
}

func (j *BadgerJournal) Close() error {
	var errs []error
	if j.seq != nil {
		errs = append(errs, j.seq.Release())
	}
	errs = append(errs, j.db.Close())
	return errors.Join(errs...)
}

// badgerLogger routes badger's internal logging into the app logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...), "component", "journal")
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...), "component", "journal")
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "journal")
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "journal")
}
