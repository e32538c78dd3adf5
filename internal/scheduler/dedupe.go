package scheduler

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Deduper is the suppression seam for repeat fires: by default a reminder
// fires on every sweep inside its lead-time window, but a Deduper can
// collapse that to once per reminder per calendar day without touching the
// sweep logic.
type Deduper interface {
	Seen(reminderID uint, day string) bool
	Mark(reminderID uint, day string)
}

// NoopDeduper keeps the fire-on-every-sweep behavior.
type NoopDeduper struct{}

func (NoopDeduper) Seen(uint, string) bool { return false }
func (NoopDeduper) Mark(uint, string)      {}

// BadgerDeduper records (reminder, day) keys with a TTL, suppressing repeat
// notifications within one day. Lookups fail open: a KV error means "not
// seen", so a broken cache degrades to extra notifications rather than
// dropped ones.
type BadgerDeduper struct {
	db     *badger.DB
	logger *zap.Logger
	ttl    time.Duration
}

func NewBadgerDeduper(db *badger.DB, logger *zap.Logger) *BadgerDeduper {
	return &BadgerDeduper{db: db, logger: logger, ttl: 24 * time.Hour}
}

func dedupeKey(reminderID uint, day string) []byte {
	return []byte(fmt.Sprintf("dedupe:%s:%d", day, reminderID))
}

func (d *BadgerDeduper) Seen(reminderID uint, day string) bool {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(dedupeKey(reminderID, day))
		return err
	})
	if err == nil {
		return true
	}
	if !stderrors.Is(err, badger.ErrKeyNotFound) {
		d.logger.Warn("dedupe lookup failed", zap.Uint("reminder_id", reminderID), zap.Error(err))
	}
	return false
}

func (d *BadgerDeduper) Mark(reminderID uint, day string) {
	err := d.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(dedupeKey(reminderID, day), []byte{1}).WithTTL(d.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		d.logger.Warn("dedupe mark failed", zap.Uint("reminder_id", reminderID), zap.Error(err))
	}
}
