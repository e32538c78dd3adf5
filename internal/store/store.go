package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inrcare/backend/internal/config"
	apperrors "github.com/inrcare/backend/internal/errors"
)

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "inrcare.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	st := &Store{db: db, badger: badgerDB}
	if err := st.migrate(); err != nil {
		return nil, err
	}
	return st, nil
}

// NewWithDB wraps an existing gorm handle without a badger KV. Used by tests
// and by callers that bring their own connection.
func NewWithDB(db *gorm.DB) (*Store, error) {
	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&User{},
		&Medication{},
		&Reminder{},
		&PushSubscription{},
		&MedicationLog{},
		&LabResult{},
		&ConfigEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes all database connections
func (s *Store) Close() error {
	if s.badger != nil {
		return s.badger.Close()
	}
	return nil
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance, nil when the store was opened
// without one.
func (s *Store) Badger() *badger.DB {
	return s.badger
}

func notFound(err error, what string, id any) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.WrapAs(apperrors.ErrNotFound, fmt.Errorf("%s %v", what, id))
	}
	return err
}

// ==================== User Methods ====================

// CreateUser creates a new user
func (s *Store) CreateUser(u *User) error {
	return s.db.Create(u).Error
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(id uint) (*User, error) {
	var u User
	if err := s.db.First(&u, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

// GetUsers returns all users in insertion order
func (s *Store) GetUsers() ([]User, error) {
	var users []User
	err := s.db.Order("id ASC").Find(&users).Error
	return users, err
}

// ==================== Medication Methods ====================

// CreateMedication creates a new medication
func (s *Store) CreateMedication(m *Medication) error {
	return s.db.Create(m).Error
}

// GetMedication retrieves a medication by ID
func (s *Store) GetMedication(id uint) (*Medication, error) {
	var m Medication
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, notFound(err, "medication", id)
	}
	return &m, nil
}

// ListMedications lists a user's medications
func (s *Store) ListMedications(userID uint) ([]Medication, error) {
	var meds []Medication
	err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&meds).Error
	return meds, err
}

// UpdateMedication updates descriptive fields of a medication
func (s *Store) UpdateMedication(m *Medication) error {
	return s.db.Save(m).Error
}

// ==================== Reminder Methods ====================

// CreateReminder creates a new reminder
func (s *Store) CreateReminder(r *Reminder) error {
	return s.db.Create(r).Error
}

// GetReminder retrieves a reminder by ID
func (s *Store) GetReminder(id uint) (*Reminder, error) {
	var r Reminder
	if err := s.db.First(&r, id).Error; err != nil {
		return nil, notFound(err, "reminder", id)
	}
	return &r, nil
}

// GetReminders returns all of a user's reminders, active and inactive, in
// insertion order.
func (s *Store) GetReminders(userID uint) ([]Reminder, error) {
	var reminders []Reminder
	err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&reminders).Error
	return reminders, err
}

// UpdateReminder updates a reminder
func (s *Store) UpdateReminder(r *Reminder) error {
	return s.db.Save(r).Error
}

// DeleteReminder removes a reminder
func (s *Store) DeleteReminder(id uint) error {
	return s.db.Delete(&Reminder{}, id).Error
}

// ==================== Push Subscription Methods ====================

// GetPushSubscriptions returns all push subscriptions for a user
func (s *Store) GetPushSubscriptions(userID uint) ([]PushSubscription, error) {
	var subs []PushSubscription
	err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&subs).Error
	return subs, err
}

// GetPushSubscriptionByEndpoint looks up a subscription by its endpoint
func (s *Store) GetPushSubscriptionByEndpoint(endpoint string) (*PushSubscription, error) {
	var sub PushSubscription
	if err := s.db.Where("endpoint = ?", endpoint).First(&sub).Error; err != nil {
		return nil, notFound(err, "push subscription", endpoint)
	}
	return &sub, nil
}

// CreatePushSubscription creates a subscription record
func (s *Store) CreatePushSubscription(sub *PushSubscription) error {
	return s.db.Create(sub).Error
}

// DeletePushSubscription removes a subscription by id, reporting whether a
// record was actually deleted.
func (s *Store) DeletePushSubscription(id uint) (bool, error) {
	res := s.db.Delete(&PushSubscription{}, id)
	return res.RowsAffected > 0, res.Error
}

// SavePushSubscription registers an endpoint for a user.
//
// Re-registration of the same (user, endpoint) pair is idempotent and
// returns the existing record unchanged. An endpoint owned by a different
// user is superseded: the old record is deleted and a fresh one created for
// the new owner (last-registration-wins).
func (s *Store) SavePushSubscription(userID uint, endpoint, p256dh, auth string) (*PushSubscription, error) {
	existing, err := s.GetPushSubscriptionByEndpoint(endpoint)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	if existing != nil {
		if existing.UserID == userID {
			return existing, nil
		}
		if _, err := s.DeletePushSubscription(existing.ID); err != nil {
			return nil, err
		}
	}

	sub := &PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
	}
	if err := s.CreatePushSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ==================== Medication Log Methods ====================

// CreateMedicationLog appends an acknowledgement fact. Logs are immutable:
// there is no update or delete.
func (s *Store) CreateMedicationLog(l *MedicationLog) error {
	if l.TakenAt.IsZero() {
		l.TakenAt = time.Now()
	}
	return s.db.Create(l).Error
}

// ListMedicationLogs lists a user's medication logs, most recent first
func (s *Store) ListMedicationLogs(userID uint, limit int) ([]MedicationLog, error) {
	var logs []MedicationLog
	q := s.db.Where("user_id = ?", userID).Order("taken_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}

// ==================== Lab Result Methods ====================

// CreateLabResult records an INR/PT measurement
func (s *Store) CreateLabResult(r *LabResult) error {
	if r.MeasuredAt.IsZero() {
		r.MeasuredAt = time.Now()
	}
	return s.db.Create(r).Error
}

// ListLabResults lists a user's lab results, most recent first
func (s *Store) ListLabResults(userID uint, limit int) ([]LabResult, error) {
	var results []LabResult
	q := s.db.Where("user_id = ?", userID).Order("measured_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&results).Error
	return results, err
}

// ==================== Config KV Methods ====================

// SetConfigValue upserts a configuration key
func (s *Store) SetConfigValue(key, value string) error {
	entry := ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Save(&entry).Error
}

// GetConfigValue reads a configuration key, returning "" on miss
func (s *Store) GetConfigValue(key string) (string, error) {
	var entry ConfigEntry
	if err := s.db.First(&entry, "key = ?", key).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return entry.Value, nil
}
