package push

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/config"
	"github.com/inrcare/backend/internal/store"
)

const (
	vapidPublicKeyConfig  = "vapid_public_key"
	vapidPrivateKeyConfig = "vapid_private_key"
)

// EnsureVAPIDKeys makes sure the process has a VAPID keypair before any
// dispatch happens. Keys from the config file win; otherwise a previously
// generated pair is read back from the store, and on a fresh install a new
// pair is generated and persisted so subscriptions survive restarts.
func EnsureVAPIDKeys(cfg *config.PushConfig, st *store.Store, log *zap.Logger) error {
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		return nil
	}

	pub, err := st.GetConfigValue(vapidPublicKeyConfig)
	if err != nil {
		return fmt.Errorf("failed to read vapid public key: %w", err)
	}
	priv, err := st.GetConfigValue(vapidPrivateKeyConfig)
	if err != nil {
		return fmt.Errorf("failed to read vapid private key: %w", err)
	}

	if pub != "" && priv != "" {
		cfg.VAPIDPublicKey = pub
		cfg.VAPIDPrivateKey = priv
		return nil
	}

	priv, pub, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate vapid keys: %w", err)
	}

	if err := st.SetConfigValue(vapidPublicKeyConfig, pub); err != nil {
		return err
	}
	if err := st.SetConfigValue(vapidPrivateKeyConfig, priv); err != nil {
		return err
	}

	cfg.VAPIDPublicKey = pub
	cfg.VAPIDPrivateKey = priv
	log.Info("generated new VAPID keypair", zap.String("public_key", pub))
	return nil
}
