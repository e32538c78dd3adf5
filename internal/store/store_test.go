package store

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/inrcare/backend/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	st, err := NewWithDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func createTestUser(t *testing.T, st *Store, name string) *User {
	t.Helper()
	u := &User{DisplayName: name}
	require.NoError(t, st.CreateUser(u))
	return u
}

func TestStore_UserCRUD(t *testing.T) {
	st := setupTestStore(t)

	u := createTestUser(t, st, "Sara")
	assert.NotZero(t, u.ID)
	assert.WithinDuration(t, time.Now(), u.CreatedAt, time.Second)

	got, err := st.GetUser(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sara", got.DisplayName)

	_, err = st.GetUser(9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_GetUsers_InsertionOrder(t *testing.T) {
	st := setupTestStore(t)

	first := createTestUser(t, st, "first")
	second := createTestUser(t, st, "second")

	users, err := st.GetUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, first.ID, users[0].ID)
	assert.Equal(t, second.ID, users[1].ID)
}

func TestStore_MedicationAndReminder(t *testing.T) {
	st := setupTestStore(t)
	u := createTestUser(t, st, "patient")

	med := &Medication{UserID: u.ID, Name: "Warfarin", Dosage: "5mg"}
	require.NoError(t, st.CreateMedication(med))

	rem := &Reminder{
		UserID:       u.ID,
		MedicationID: med.ID,
		Time:         "20:00",
		Days:         EveryDay,
		Active:       true,
		NotifyBefore: 15,
	}
	require.NoError(t, st.CreateReminder(rem))

	reminders, err := st.GetReminders(u.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "20:00", reminders[0].Time)

	// GetReminders returns inactive reminders too; filtering is the
	// scheduler's job.
	rem.Active = false
	require.NoError(t, st.UpdateReminder(rem))
	reminders, err = st.GetReminders(u.ID)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)

	_, err = st.GetMedication(4242)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, st.DeleteReminder(rem.ID))
	_, err = st.GetReminder(rem.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_SavePushSubscription_Idempotent(t *testing.T) {
	st := setupTestStore(t)
	u := createTestUser(t, st, "patient")

	first, err := st.SavePushSubscription(u.ID, "https://push.example/ep1", "p256dh-key", "auth-key")
	require.NoError(t, err)

	second, err := st.SavePushSubscription(u.ID, "https://push.example/ep1", "p256dh-key", "auth-key")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	subs, err := st.GetPushSubscriptions(u.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestStore_SavePushSubscription_OwnershipTransfer(t *testing.T) {
	st := setupTestStore(t)
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	_, err := st.SavePushSubscription(alice.ID, "https://push.example/shared", "k1", "a1")
	require.NoError(t, err)

	sub, err := st.SavePushSubscription(bob.ID, "https://push.example/shared", "k2", "a2")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, sub.UserID)

	aliceSubs, err := st.GetPushSubscriptions(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceSubs)

	bobSubs, err := st.GetPushSubscriptions(bob.ID)
	require.NoError(t, err)
	require.Len(t, bobSubs, 1)
	assert.Equal(t, "k2", bobSubs[0].P256dh)

	byEndpoint, err := st.GetPushSubscriptionByEndpoint("https://push.example/shared")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, byEndpoint.UserID)
}

func TestStore_DeletePushSubscription(t *testing.T) {
	st := setupTestStore(t)
	u := createTestUser(t, st, "patient")

	sub, err := st.SavePushSubscription(u.ID, "https://push.example/gone", "k", "a")
	require.NoError(t, err)

	deleted, err := st.DeletePushSubscription(sub.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = st.DeletePushSubscription(sub.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = st.GetPushSubscriptionByEndpoint("https://push.example/gone")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_MedicationLog(t *testing.T) {
	st := setupTestStore(t)
	u := createTestUser(t, st, "patient")

	log := &MedicationLog{UserID: u.ID, ReminderID: 3, MedicationID: 7, Taken: true}
	require.NoError(t, st.CreateMedicationLog(log))
	assert.False(t, log.TakenAt.IsZero())

	logs, err := st.ListMedicationLogs(u.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Taken)
}

func TestStore_LabResults_MostRecentFirst(t *testing.T) {
	st := setupTestStore(t)
	u := createTestUser(t, st, "patient")

	older := &LabResult{UserID: u.ID, INR: 2.1, PT: 24.5, MeasuredAt: time.Now().Add(-48 * time.Hour)}
	newer := &LabResult{UserID: u.ID, INR: 2.6, PT: 28.0, MeasuredAt: time.Now()}
	require.NoError(t, st.CreateLabResult(older))
	require.NoError(t, st.CreateLabResult(newer))

	results, err := st.ListLabResults(u.ID, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2.6, results[0].INR)
}

func TestStore_ConfigKV(t *testing.T) {
	st := setupTestStore(t)

	val, err := st.GetConfigValue("vapid_public_key")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, st.SetConfigValue("vapid_public_key", "BAbc123"))
	require.NoError(t, st.SetConfigValue("vapid_public_key", "BDef456"))

	val, err = st.GetConfigValue("vapid_public_key")
	require.NoError(t, err)
	assert.Equal(t, "BDef456", val)
}
