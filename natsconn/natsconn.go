// Package natsconn builds NATS connections from file-based credentials.
package natsconn

import (
	"errors"
	"fmt"
	"os"
	"time"

	natsjwt "github.com/nats-io/jwt/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// ErrCredentialsExpired is returned when the user JWT in a credentials file has expired.
var ErrCredentialsExpired = errors.New("nats credentials expired")

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// The NATS_URL environment variable takes precedence.
	URL string `json:"natsUrl,omitempty" env:"URL"`

	// Credentials is the path to a NATS credentials file.
	// Mutually exclusive with Nkey.
	Credentials string `json:"natsCredentials,omitempty" env:"CREDENTIALS"`

	// Nkey is the path to a user nkey seed file.
	// Mutually exclusive with Credentials.
	Nkey string `json:"natsNkey,omitempty" env:"NKEY"`
}

// Validate checks that at most one authentication method is set.
func (c *Config) Validate() error {
	if c.Credentials != "" && c.Nkey != "" {
		return fmt.Errorf("natsCredentials and natsNkey are mutually exclusive")
	}
	return nil
}

// ServerURL returns the effective server URL.
func (c *Config) ServerURL() string {
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	if c.URL == "" {
		return nats.DefaultURL
	}
	return c.URL
}

// Options returns the connection options for cfg, named name.
// Credentials are checked for expiry at now.
func Options(cfg Config, name string, now time.Time) ([]nats.Option, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []nats.Option{nats.Name(name)}
	switch {
	case cfg.Credentials != "":
		if err := checkCredentials(cfg.Credentials, now); err != nil {
			return nil, err
		}
		opts = append(opts, nats.UserCredentials(cfg.Credentials))
	case cfg.Nkey != "":
		opt, err := nkeyOption(cfg.Nkey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// Connect connects to the server described by cfg.
func Connect(cfg Config, name string) (*nats.Conn, error) {
	opts, err := Options(cfg, name, time.Now())
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.ServerURL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

// checkCredentials decodes the user JWT in a credentials file and rejects it once expired.
func checkCredentials(path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading credentials %s: %w", path, err)
	}
	token, err := natsjwt.ParseDecoratedJWT(data)
	if err != nil {
		return fmt.Errorf("parsing credentials %s: %w", path, err)
	}
	claims, err := natsjwt.DecodeUserClaims(token)
	if err != nil {
		return fmt.Errorf("decoding user jwt in %s: %w", path, err)
	}
	if claims.Expires > 0 && now.Unix() >= claims.Expires {
		return fmt.Errorf("%w: %s expired at %s", ErrCredentialsExpired, path,
			time.Unix(claims.Expires, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

// nkeyOption loads a user seed and signs server nonces with it.
func nkeyOption(path string) (nats.Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading nkey %s: %w", path, err)
	}
	kp, err := natsjwt.ParseDecoratedNKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing nkey %s: %w", path, err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("getting public key: %w", err)
	}
	if !nkeys.IsValidPublicUserKey(pub) {
		return nil, fmt.Errorf("nkey %s is not a user seed", path)
	}
	return nats.Nkey(pub, func(nonce []byte) ([]byte, error) {
		return kp.Sign(nonce)
	}), nil
}
