package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the inrcare backend.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Push      PushConfig      `mapstructure:"push"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// SchedulerConfig holds reminder sweep settings
type SchedulerConfig struct {
	// SweepInterval is the sweep cadence in seconds.
	SweepInterval int `mapstructure:"sweep_interval"`
	// DedupeWindow suppresses repeat notifications for the same reminder
	// within one calendar day. Off by default: a reminder fires on every
	// sweep inside its lead-time window.
	DedupeWindow bool `mapstructure:"dedupe_window"`
}

// PushConfig holds web-push settings
type PushConfig struct {
	// Subscriber is the contact URI sent in the VAPID JWT (mailto: or https:).
	Subscriber      string `mapstructure:"subscriber"`
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	// TTL in seconds the push service may hold an undelivered message.
	TTL int `mapstructure:"ttl"`
	// SendTimeout bounds one delivery attempt, in seconds.
	SendTimeout int `mapstructure:"send_timeout"`
	// RatePerSecond limits outbound requests to the push services.
	RatePerSecond int `mapstructure:"rate_per_second"`
	// ClickURL is the page opened when a notification is clicked.
	ClickURL string `mapstructure:"click_url"`
}

// SecurityConfig holds API auth settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir != "" {
		// The -data flag beats everything, including the config file.
		v.Set("storage.data_dir", dataDir)
	} else {
		dataDir = getDefaultDataDir()
		v.SetDefault("storage.data_dir", dataDir)
	}

	if configPath == "" {
		configPath = filepath.Join(dataDir, "inrcare.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (INRCARE_SERVER_PORT, INRCARE_PUSH_SUBSCRIBER, ...)
	v.SetEnvPrefix("INRCARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Database paths default under whichever data dir won above.
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "inrcare.db")
	}
	if cfg.Storage.BadgerPath == "" {
		cfg.Storage.BadgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("scheduler.sweep_interval", 60)
	v.SetDefault("scheduler.dedupe_window", false)

	v.SetDefault("push.subscriber", "mailto:admin@inrcare.app")
	v.SetDefault("push.ttl", 3600)
	v.SetDefault("push.send_timeout", 10)
	v.SetDefault("push.rate_per_second", 20)
	v.SetDefault("push.click_url", "/")

	// AutomaticEnv only surfaces keys viper already knows about, so secrets
	// need explicit defaults for their INRCARE_* overrides to take effect.
	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("security.jwt_secret", "")

	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "inrcare")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "inrcare")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler sweep_interval must be positive, got %d", cfg.Scheduler.SweepInterval)
	}
	if cfg.Push.TTL < 0 {
		return fmt.Errorf("push ttl must not be negative, got %d", cfg.Push.TTL)
	}
	if !strings.HasPrefix(cfg.Push.Subscriber, "mailto:") && !strings.HasPrefix(cfg.Push.Subscriber, "https:") {
		return fmt.Errorf("push subscriber must be a mailto: or https: URI, got %q", cfg.Push.Subscriber)
	}
	// VAPID keys may be empty here: the app generates and persists a pair on
	// first start when none is configured.
	if (cfg.Push.VAPIDPublicKey == "") != (cfg.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("vapid keys must be configured together or not at all")
	}
	// An empty secret would let anyone mint valid HS256 tokens.
	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security jwt_secret must be set")
	}
	return nil
}
