// Package offline manages locally created accounts and the local default-user pointer.
//
// Every storage fault is absorbed here: an unreadable or corrupt store reads
// as empty and failed writes are logged, so listing identities never fails.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/msimon/playerid/account"
	"github.com/msimon/playerid/logging"
	"github.com/msimon/playerid/storage"
)

const (
	// DefaultAccountsKey is the storage key holding the offline account collection.
	DefaultAccountsKey = "offline_accounts"

	// DefaultUserKey is the storage key holding the local default-user id.
	DefaultUserKey = "default_offline_user"
)

// Store holds offline accounts in a storage.Store.
type Store struct {
	kv          storage.Store
	accountsKey string
	defaultKey  string
	logger      logging.Logger

	// mu serialises read-modify-write cycles on the collection.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithKeys overrides the storage keys for the collection and the default pointer.
func WithKeys(accountsKey, defaultKey string) Option {
	return func(s *Store) {
		if accountsKey != "" {
			s.accountsKey = accountsKey
		}
		if defaultKey != "" {
			s.defaultKey = defaultKey
		}
	}
}

// NewStore creates a Store on kv.
func NewStore(kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		accountsKey: DefaultAccountsKey,
		defaultKey:  DefaultUserKey,
		logger:      logging.Default("offline"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add creates an offline account for username and appends it to the collection.
// If id is empty a new offline id is generated.
// Returns account.ErrInvalidInput if username is empty; nothing is stored then.
func (s *Store) Add(ctx context.Context, username, id string) (account.Account, error) {
	a, err := account.NewOffline(username, id)
	if err != nil {
		return account.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	accounts = append(accounts, a)
	s.save(ctx, accounts)

	s.logger.Info("added offline account %s (%s)", a.ID(), username)
	return a, nil
}

// Remove deletes every account whose id equals id. Missing ids are ignored.
// If id is the local default, the default is cleared as well.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	kept := accounts[:0]
	for _, a := range accounts {
		if a.ID() != id {
			kept = append(kept, a)
		}
	}
	s.save(ctx, kept)

	if def, ok := s.Default(ctx); ok && def == id {
		s.ClearDefault(ctx)
	}
}

// List returns the stored collection in insertion order.
// It returns an empty slice if nothing is stored or the stored value is unreadable.
func (s *Store) List(ctx context.Context) []account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// Find returns the offline account with the given id.
func (s *Store) Find(ctx context.Context, id string) (account.Account, bool) {
	for _, a := range s.List(ctx) {
		if a.ID() == id {
			return a, true
		}
	}
	return account.Account{}, false
}

// Default returns the local default-user id, if one is stored.
func (s *Store) Default(ctx context.Context) (string, bool) {
	v, err := s.kv.Get(ctx, s.defaultKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading %s: %v", s.defaultKey, err)
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// SetDefault stores id as the local default. An empty id is ignored.
func (s *Store) SetDefault(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.kv.Set(ctx, s.defaultKey, id); err != nil {
		s.logger.Warn("writing %s: %v", s.defaultKey, err)
	}
}

// ClearDefault removes the local default.
func (s *Store) ClearDefault(ctx context.Context) {
	if err := s.kv.Remove(ctx, s.defaultKey); err != nil {
		s.logger.Warn("removing %s: %v", s.defaultKey, err)
	}
}

func (s *Store) load(ctx context.Context) []account.Account {
	raw, err := s.kv.Get(ctx, s.accountsKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading %s: %v", s.accountsKey, err)
		}
		return []account.Account{}
	}
	if raw == "" {
		return []account.Account{}
	}

	var accounts []account.Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		s.logger.Warn("decoding %s: %v", s.accountsKey, err)
		return []account.Account{}
	}
	if accounts == nil {
		accounts = []account.Account{}
	}
	return accounts
}

func (s *Store) save(ctx context.Context, accounts []account.Account) {
	data, err := json.Marshal(accounts)
	if err != nil {
		s.logger.Warn("encoding %s: %v", s.accountsKey, err)
		return
	}
	if err := s.kv.Set(ctx, s.accountsKey, string(data)); err != nil {
		s.logger.Warn("writing %s: %v", s.accountsKey, err)
	}
}
