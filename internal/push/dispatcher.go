// Package push delivers notification payloads to a user's registered web-push
// endpoints and owns the subscription pruning that follows permanent
// delivery failures.
package push

import (
	"context"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/inrcare/backend/internal/config"
	apperrors "github.com/inrcare/backend/internal/errors"
	"github.com/inrcare/backend/internal/metrics"
	"github.com/inrcare/backend/internal/store"
)

// Result aggregates one SendToUser fanout.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher sends payloads to every push endpoint registered for a user.
type Dispatcher struct {
	store   *store.Store
	cfg     config.PushConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	client  webpush.HTTPClient
	limiter *rate.Limiter
}

// NewDispatcher creates a dispatcher. The default transport bounds every
// delivery attempt with the configured send timeout, so one hung push
// service cannot stall the rest of a sweep indefinitely.
func NewDispatcher(st *store.Store, cfg config.PushConfig, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	timeout := time.Duration(cfg.SendTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}

	return &Dispatcher{
		store:   st,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// WithHTTPClient overrides the push transport. Used by tests.
func (d *Dispatcher) WithHTTPClient(c webpush.HTTPClient) *Dispatcher {
	d.client = c
	return d
}

// SendToUser delivers payload to every subscription the user has. Failures
// are counted, never raised: one bad endpoint must not block delivery to the
// user's other devices.
func (d *Dispatcher) SendToUser(ctx context.Context, userID uint, payload Payload) Result {
	var res Result

	subs, err := d.store.GetPushSubscriptions(userID)
	if err != nil {
		d.logger.Error("failed to load push subscriptions",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return res
	}
	if len(subs) == 0 {
		return res
	}

	body, err := payload.Encode()
	if err != nil {
		d.logger.Error("failed to encode push payload", zap.Error(err))
		return res
	}

	dispatchID := uuid.NewString()
	for i := range subs {
		if d.sendOne(ctx, &subs[i], body, dispatchID) {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	d.metrics.RecordDispatch(res.Sent, res.Failed)
	d.logger.Debug("push dispatch complete",
		zap.String("dispatch_id", dispatchID),
		zap.Uint("user_id", userID),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res
}

// sendOne encrypts and transmits one message. A 404/410 from the push
// service means the endpoint is permanently gone: the subscription is
// deleted here, and nowhere else. Everything else is treated as transient
// and the subscription is retained.
func (d *Dispatcher) sendOne(ctx context.Context, sub *store.PushSubscription, body []byte, dispatchID string) bool {
	if err := d.limiter.Wait(ctx); err != nil {
		d.logger.Warn("push rate limiter interrupted",
			zap.String("dispatch_id", dispatchID),
			zap.Error(err),
		)
		return false
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      d.client,
		Subscriber:      d.cfg.Subscriber,
		TTL:             d.cfg.TTL,
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  d.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: d.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		d.logger.Warn("push send failed",
			zap.String("dispatch_id", dispatchID),
			zap.Uint("subscription_id", sub.ID),
			zap.Error(apperrors.WrapAs(apperrors.ErrTransientDelivery, err)),
		)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		d.pruneSubscription(sub, resp.StatusCode, dispatchID)
		return false
	case resp.StatusCode >= 400:
		d.logger.Warn("push service rejected message",
			zap.String("dispatch_id", dispatchID),
			zap.Uint("subscription_id", sub.ID),
			zap.Int("status", resp.StatusCode),
			zap.Error(apperrors.ErrTransientDelivery),
		)
		return false
	}

	return true
}

func (d *Dispatcher) pruneSubscription(sub *store.PushSubscription, status int, dispatchID string) {
	deleted, err := d.store.DeletePushSubscription(sub.ID)
	if err != nil {
		d.logger.Error("failed to prune stale subscription",
			zap.String("dispatch_id", dispatchID),
			zap.Uint("subscription_id", sub.ID),
			zap.Error(err),
		)
		return
	}
	if deleted {
		d.metrics.PushPruned.Inc()
	}
	d.logger.Info("pruned stale push subscription",
		zap.String("dispatch_id", dispatchID),
		zap.Uint("subscription_id", sub.ID),
		zap.Uint("user_id", sub.UserID),
		zap.Int("status", status),
		zap.Error(apperrors.ErrPermanentDelivery),
	)
}
