package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/msimon/playerid/natsconn"
)

// NatsStoreConfig holds configuration for NatsStore.
type NatsStoreConfig struct {
	natsconn.Config

	// Bucket is the name of the NATS KV bucket.
	Bucket string `json:"bucket" env:"BUCKET"`

	// Create creates the bucket when it does not exist yet.
	Create bool `json:"create,omitempty" env:"CREATE"`
}

// NatsStore implements Store using a NATS JetStream KV bucket.
type NatsStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNatsStore connects to NATS and opens the configured bucket.
func NewNatsStore(ctx context.Context, cfg NatsStoreConfig) (*NatsStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("nats store: bucket is required")
	}

	nc, err := natsconn.Connect(cfg.Config, "playerid-store")
	if err != nil {
		return nil, fmt.Errorf("nats store: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats store: creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) && cfg.Create {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.Bucket})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats store: opening bucket %q: %w", cfg.Bucket, err)
	}

	return &NatsStore{nc: nc, kv: kv}, nil
}

// Close closes the NATS connection.
func (s *NatsStore) Close() error {
	s.nc.Close()
	return nil
}

func (s *NatsStore) Get(ctx context.Context, key string) (string, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fetching %s: %w", key, err)
	}
	return string(entry.Value()), nil
}

func (s *NatsStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.kv.PutString(ctx, key, value); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *NatsStore) Remove(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
