package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/msimon/playerid/logging"
	"github.com/msimon/playerid/offline"
	"github.com/msimon/playerid/remote"
	"github.com/msimon/playerid/storage"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "PLAYERID_"

// Config holds the complete configuration for playerid.
type Config struct {
	// Storage configures where offline accounts are kept.
	Storage StorageConfig `json:"storage" envPrefix:"STORAGE_"`

	// Remote configures the remote identity service client.
	Remote RemoteConfig `json:"remote" envPrefix:"REMOTE_"`

	// Login configures device-code logins.
	Login LoginConfig `json:"login" envPrefix:"LOGIN_"`

	// Log configures the root logger.
	Log logging.Config `json:"log" envPrefix:"LOG_"`
}

// StorageConfig configures the key-value store.
type StorageConfig struct {
	// Type is one of "memory", "file", "sqlite", "redis" or "nats". Default: "file".
	Type string `json:"type" env:"TYPE"`

	// AccountsKey overrides the key holding the offline account collection.
	AccountsKey string `json:"accountsKey,omitempty" env:"ACCOUNTS_KEY"`

	// DefaultUserKey overrides the key holding the local default user.
	DefaultUserKey string `json:"defaultUserKey,omitempty" env:"DEFAULT_USER_KEY"`

	File   storage.FileStoreConfig   `json:"file" envPrefix:"FILE_"`
	SQLite storage.SQLiteStoreConfig `json:"sqlite" envPrefix:"SQLITE_"`
	Redis  storage.RedisStoreConfig  `json:"redis" envPrefix:"REDIS_"`
	Nats   storage.NatsStoreConfig   `json:"nats" envPrefix:"NATS_"`
}

// RemoteConfig configures the remote identity service client.
type RemoteConfig struct {
	// Type is "http" or "nats". Default: "http".
	Type string `json:"type" env:"TYPE"`

	HTTP remote.HTTPClientConfig `json:"http" envPrefix:"HTTP_"`
	Nats remote.NatsClientConfig `json:"nats" envPrefix:"NATS_"`
}

// LoginConfig configures device-code logins.
type LoginConfig struct {
	// Timeout bounds the wait for the user to complete a login, as a duration string.
	// Empty means the remote session lifetime is the only bound.
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`
}

// GetTimeout returns the login timeout, or zero if not set.
func (c *LoginConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// LoadConfig reads a configuration file and applies PLAYERID_ environment overrides.
// An empty path loads the configuration from the environment only.
func LoadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return &config, nil
}

// Validate checks that the configuration is valid and complete, filling in defaults.
func (c *Config) Validate() error {
	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "file" // default to file
	}
	switch c.Storage.Type {
	case "memory":
	case "file":
		if c.Storage.File.Path == "" {
			path, err := defaultStorePath()
			if err != nil {
				return fmt.Errorf("storage.file.path is required: %w", err)
			}
			c.Storage.File.Path = path
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("storage.redis.url is required")
		}
	case "nats":
		if c.Storage.Nats.Bucket == "" {
			return fmt.Errorf("storage.nats.bucket is required")
		}
		if err := c.Storage.Nats.Config.Validate(); err != nil {
			return fmt.Errorf("storage.nats: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	// Validate remote config
	if c.Remote.Type == "" {
		c.Remote.Type = "http" // default to http
	}
	switch c.Remote.Type {
	case "http":
		if c.Remote.HTTP.BaseURL == "" {
			return fmt.Errorf("remote.http.baseUrl is required")
		}
		if err := checkDuration("remote.http.timeout", c.Remote.HTTP.Timeout); err != nil {
			return err
		}
	case "nats":
		if err := c.Remote.Nats.Config.Validate(); err != nil {
			return fmt.Errorf("remote.nats: %w", err)
		}
		if err := checkDuration("remote.nats.timeout", c.Remote.Nats.Timeout); err != nil {
			return err
		}
		if err := checkDuration("remote.nats.loginTimeout", c.Remote.Nats.LoginTimeout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported remote type: %s", c.Remote.Type)
	}

	return checkDuration("login.timeout", c.Login.Timeout)
}

func checkDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid duration: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func defaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "playerid", "accounts.json"), nil
}

// OpenStore opens the key-value store described by cfg.
func OpenStore(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "file":
		return storage.NewFileStore(cfg.File)
	case "sqlite":
		return storage.OpenSQLiteStore(cfg.SQLite)
	case "redis":
		return storage.NewRedisStore(cfg.Redis)
	case "nats":
		return storage.NewNatsStore(ctx, cfg.Nats)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// OpenRemote creates the remote identity service client described by cfg.
func OpenRemote(cfg RemoteConfig) (remote.Service, error) {
	switch cfg.Type {
	case "http":
		return remote.NewHTTPClient(cfg.HTTP)
	case "nats":
		return remote.NewNatsClient(cfg.Nats)
	default:
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Type)
	}
}

// NewManagerWithConfig creates a Manager from a Config.
// The Manager owns the store and the remote client; release them with Close.
func NewManagerWithConfig(ctx context.Context, config *Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	kv, err := OpenStore(ctx, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing %s storage: %w", config.Storage.Type, err)
	}

	svc, err := OpenRemote(config.Remote)
	if err != nil {
		_ = storage.Close(kv)
		return nil, fmt.Errorf("initializing %s remote: %w", config.Remote.Type, err)
	}

	m := NewManager(nil, svc, append([]Option{WithLoginTimeout(config.Login.GetTimeout())}, opts...)...)
	m.offline = offline.NewStore(kv,
		offline.WithKeys(config.Storage.AccountsKey, config.Storage.DefaultUserKey),
		offline.WithLogger(m.logger),
	)
	if c, ok := svc.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
	if c, ok := kv.(storage.Closer); ok {
		m.closers = append(m.closers, c)
	}
	return m, nil
}
