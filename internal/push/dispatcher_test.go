package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inrcare/backend/internal/config"
	"github.com/inrcare/backend/internal/metrics"
	"github.com/inrcare/backend/internal/store"
)

type clientFunc func(*http.Request) (*http.Response, error)

func (f clientFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func statusClient(status int) clientFunc {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	return st
}

// newSubscriptionKeys builds key material the way a browser would: an
// uncompressed P-256 public point and 16 bytes of auth secret, both
// base64url without padding. The dispatcher encrypts against these, so fake
// strings are not enough.
func newSubscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func newTestDispatcher(t *testing.T, st *store.Store, client webpush.HTTPClient) *Dispatcher {
	t.Helper()

	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	cfg := config.PushConfig{
		Subscriber:      "mailto:test@inrcare.app",
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		TTL:             60,
		SendTimeout:     2,
		RatePerSecond:   100,
	}

	logger, _ := zap.NewDevelopment()
	return NewDispatcher(st, cfg, logger, metrics.New()).WithHTTPClient(client)
}

func subscribe(t *testing.T, st *store.Store, userID uint, endpoint string) *store.PushSubscription {
	t.Helper()
	p256dh, auth := newSubscriptionKeys(t)
	sub, err := st.SavePushSubscription(userID, endpoint, p256dh, auth)
	require.NoError(t, err)
	return sub
}

func TestSendToUser_AllDelivered(t *testing.T) {
	st := newTestStore(t)
	user := &store.User{DisplayName: "patient"}
	require.NoError(t, st.CreateUser(user))
	subscribe(t, st, user.ID, "https://push.example/a")
	subscribe(t, st, user.ID, "https://push.example/b")

	d := newTestDispatcher(t, st, statusClient(http.StatusCreated))

	res := d.SendToUser(context.Background(), user.ID, ForTest())
	assert.Equal(t, Result{Sent: 2, Failed: 0}, res)
}

func TestSendToUser_NoSubscriptions(t *testing.T) {
	st := newTestStore(t)
	user := &store.User{DisplayName: "patient"}
	require.NoError(t, st.CreateUser(user))

	d := newTestDispatcher(t, st, statusClient(http.StatusCreated))

	res := d.SendToUser(context.Background(), user.ID, ForTest())
	assert.Equal(t, Result{}, res)
}

func TestSendToUser_GonePrunesSubscription(t *testing.T) {
	st := newTestStore(t)
	user := &store.User{DisplayName: "patient"}
	require.NoError(t, st.CreateUser(user))
	subscribe(t, st, user.ID, "https://push.example/stale")

	d := newTestDispatcher(t, st, statusClient(http.StatusGone))

	res := d.SendToUser(context.Background(), user.ID, ForTest())
	assert.Equal(t, Result{Sent: 0, Failed: 1}, res)

	subs, err := st.GetPushSubscriptions(user.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSendToUser_MixedEndpoints(t *testing.T) {
	st := newTestStore(t)
	user := &store.User{DisplayName: "patient"}
	require.NoError(t, st.CreateUser(user))
	subscribe(t, st, user.ID, "https://push.example/ok")
	subscribe(t, st, user.ID, "https://push.example/dead")

	// One valid endpoint, one that yields 404.
	client := clientFunc(func(req *http.Request) (*http.Response, error) {
		status := http.StatusCreated
		if strings.HasSuffix(req.URL.Path, "/dead") {
			status = http.StatusNotFound
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	d := newTestDispatcher(t, st, client)

	res := d.SendToUser(context.Background(), user.ID, ForTest())
	assert.Equal(t, Result{Sent: 1, Failed: 1}, res)

	subs, err := st.GetPushSubscriptions(user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/ok", subs[0].Endpoint)
}

func TestSendToUser_TransientFailureRetainsSubscription(t *testing.T) {
	tests := []struct {
		name   string
		client webpush.HTTPClient
	}{
		{"server error", statusClient(http.StatusInternalServerError)},
		{"too many requests", statusClient(http.StatusTooManyRequests)},
		{"network timeout", clientFunc(func(*http.Request) (*http.Response, error) {
			return nil, context.DeadlineExceeded
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			user := &store.User{DisplayName: "patient"}
			require.NoError(t, st.CreateUser(user))
			subscribe(t, st, user.ID, "https://push.example/flaky")

			d := newTestDispatcher(t, st, tt.client)

			res := d.SendToUser(context.Background(), user.ID, ForTest())
			assert.Equal(t, Result{Sent: 0, Failed: 1}, res)

			subs, err := st.GetPushSubscriptions(user.ID)
			require.NoError(t, err)
			assert.Len(t, subs, 1)
		})
	}
}

func TestSendOne_SendsEncryptedBody(t *testing.T) {
	st := newTestStore(t)
	user := &store.User{DisplayName: "patient"}
	require.NoError(t, st.CreateUser(user))
	subscribe(t, st, user.ID, "https://push.example/enc")

	var captured *http.Request
	client := clientFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	d := newTestDispatcher(t, st, client)
	res := d.SendToUser(context.Background(), user.ID, ForTest())
	require.Equal(t, 1, res.Sent)

	require.NotNil(t, captured)
	assert.Equal(t, "https://push.example/enc", captured.URL.String())
	assert.Equal(t, "aes128gcm", captured.Header.Get("Content-Encoding"))
	assert.Contains(t, captured.Header.Get("Authorization"), "vapid")
}

func TestPayload_WireShape(t *testing.T) {
	med := &store.Medication{ID: 7, Name: "Warfarin", Dosage: "5mg"}
	rem := &store.Reminder{ID: 12, MedicationID: 7, Time: "20:00"}

	body, err := ForReminder(rem, med).Encode()
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	n, ok := decoded["notification"]
	require.True(t, ok, "envelope must nest under \"notification\"")
	assert.Contains(t, n["title"], "Warfarin")
	assert.Contains(t, n["body"], "5mg")
	assert.Equal(t, "reminder-12", n["tag"])

	data, ok := n["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/api/reminders/taken?id=12", data["url"])

	actions, ok := n["actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, "taken", actions[0].(map[string]any)["action"])
}

func TestEnsureVAPIDKeys_GeneratesAndPersists(t *testing.T) {
	st := newTestStore(t)
	logger, _ := zap.NewDevelopment()

	cfg := config.PushConfig{}
	require.NoError(t, EnsureVAPIDKeys(&cfg, st, logger))
	require.NotEmpty(t, cfg.VAPIDPublicKey)
	require.NotEmpty(t, cfg.VAPIDPrivateKey)

	// A second process start reads the same pair back.
	again := config.PushConfig{}
	require.NoError(t, EnsureVAPIDKeys(&again, st, logger))
	assert.Equal(t, cfg.VAPIDPublicKey, again.VAPIDPublicKey)
	assert.Equal(t, cfg.VAPIDPrivateKey, again.VAPIDPrivateKey)
}

func TestEnsureVAPIDKeys_ConfiguredKeysWin(t *testing.T) {
	st := newTestStore(t)
	logger, _ := zap.NewDevelopment()

	cfg := config.PushConfig{VAPIDPublicKey: "BPub", VAPIDPrivateKey: "priv"}
	require.NoError(t, EnsureVAPIDKeys(&cfg, st, logger))
	assert.Equal(t, "BPub", cfg.VAPIDPublicKey)

	stored, err := st.GetConfigValue("vapid_public_key")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
