package store

import (
	"time"
)

// EveryDay is the sentinel day token matching any weekday.
const EveryDay = "everyday"

// User owns medications, reminders, and push subscriptions. Users are never
// hard-deleted by the scheduling core.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Medication belongs to exactly one user.
type Medication struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Reminder schedules notifications for one medication.
//
// Time is local wall-clock "HH:MM". Days is a comma-joined set of weekday
// tokens (lowercase English names or 1-7 with 1=saturday) or the EveryDay
// sentinel. NotifyBefore is the lead time in minutes: the reminder is due on
// every sweep from NotifyBefore minutes ahead of Time up to Time itself.
type Reminder struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	MedicationID uint      `gorm:"index" json:"medication_id"`
	Time         string    `json:"time"`
	Days         string    `json:"days"`
	Active       bool      `json:"active"`
	NotifyBefore int       `json:"notify_before"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PushSubscription is one browser/device push registration: an opaque
// endpoint plus the client key material the push protocol needs. Endpoints
// are unique system-wide; re-registration from another user supersedes the
// prior owner's record.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Endpoint  string    `gorm:"uniqueIndex" json:"endpoint"`
	P256dh    string    `gorm:"column:p256dh" json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// MedicationLog is an immutable fact: this reminder was acknowledged at
// TakenAt, marked taken or not. Created by user action or the notification
// "mark taken" flow; the scheduler never mutates or deletes logs.
type MedicationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	ReminderID   uint      `gorm:"index" json:"reminder_id"`
	MedicationID uint      `json:"medication_id"`
	Taken        bool      `json:"taken"`
	TakenAt      time.Time `json:"taken_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// LabResult records one INR/PT measurement.
type LabResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	INR        float64   `gorm:"column:inr" json:"inr"`
	PT         float64   `gorm:"column:pt" json:"pt"`
	Note       string    `json:"note,omitempty"`
	MeasuredAt time.Time `json:"measured_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConfigEntry stores key-value configuration, e.g. a generated VAPID keypair
// persisted across restarts.
type ConfigEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name for ConfigEntry
func (ConfigEntry) TableName() string {
	return "config"
}
