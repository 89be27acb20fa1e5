// Package identity merges offline and remote accounts into one identity model.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/msimon/playerid/account"
	"github.com/msimon/playerid/device"
	"github.com/msimon/playerid/logging"
	"github.com/msimon/playerid/offline"
	"github.com/msimon/playerid/remote"
)

// Manager is the public surface of playerid.
//
// Both sources are queried on every call; nothing is cached. The local
// default slot is consulted before the remote service.
type Manager struct {
	offline      *offline.Store
	remote       remote.Service
	loginTimeout time.Duration
	logger       logging.Logger

	// closers are released by Close, in order.
	closers []io.Closer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager and the login flows it starts.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithLoginTimeout bounds how long Await waits on flows started by Login.
func WithLoginTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.loginTimeout = d
	}
}

// NewManager creates a Manager over the offline store and the remote service.
func NewManager(store *offline.Store, svc remote.Service, opts ...Option) *Manager {
	m := &Manager{
		offline: store,
		remote:  svc,
		logger:  logging.Default("identity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close releases the resources opened by NewManagerWithConfig.
func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// AddOfflineAccount creates an offline account for username.
// If id is empty a new offline id is generated.
// Returns account.ErrInvalidInput if username is empty.
func (m *Manager) AddOfflineAccount(ctx context.Context, username, id string) (account.Account, error) {
	a, err := m.offline.Add(ctx, username, id)
	if err != nil {
		return account.Account{}, err
	}
	m.logger.Info("added offline account %s", a.ID())
	return a, nil
}

// RemoveOfflineAccount removes the offline account id. Unknown ids are ignored.
func (m *Manager) RemoveOfflineAccount(ctx context.Context, id string) {
	m.offline.Remove(ctx, id)
}

// ListOfflineAccounts returns the offline accounts in creation order.
func (m *Manager) ListOfflineAccounts(ctx context.Context) []account.Account {
	return m.offline.List(ctx)
}

// FindOfflineAccount returns the offline account with the given id.
func (m *Manager) FindOfflineAccount(ctx context.Context, id string) (account.Account, bool) {
	return m.offline.Find(ctx, id)
}

// Login starts a device-code login and returns the flow to await it on.
// The returned session holds the code the user must enter.
func (m *Manager) Login(ctx context.Context) (*device.Flow, remote.DeviceSession, error) {
	flow := device.NewFlow(m.remote, device.WithTimeout(m.loginTimeout), device.WithLogger(m.logger))
	session, err := flow.Begin(ctx)
	if err != nil {
		return nil, remote.DeviceSession{}, err
	}
	return flow, session, nil
}

// ListAllUsers returns the remote accounts followed by the offline accounts.
// Duplicates are not removed.
func (m *Manager) ListAllUsers(ctx context.Context) ([]account.Account, error) {
	online, err := m.remote.Users(ctx)
	if err != nil {
		return nil, serviceError("listing remote users", err)
	}

	local := m.offline.List(ctx)
	all := make([]account.Account, 0, len(online)+len(local))
	all = append(all, online...)
	all = append(all, local...)
	return all, nil
}

// GetDefaultUser returns the id of the default user.
// A local default is returned without contacting the remote service.
func (m *Manager) GetDefaultUser(ctx context.Context) (string, bool, error) {
	d, err := m.ResolveDefault(ctx)
	if err != nil {
		return "", false, err
	}
	return d.ID, d.IsSet(), nil
}

// ResolveDefault resolves the default user and tells which slot it came from.
// A local slot holding a non-offline id is cleared and ignored.
func (m *Manager) ResolveDefault(ctx context.Context) (Default, error) {
	if id, ok := m.offline.Default(ctx); ok {
		if account.IsOfflineID(id) {
			return Default{Kind: DefaultLocal, ID: id}, nil
		}
		m.logger.Warn("clearing invalid local default %q", id)
		m.offline.ClearDefault(ctx)
	}

	id, ok, err := m.remote.DefaultUser(ctx)
	if err != nil {
		return Default{}, serviceError("getting remote default user", err)
	}
	if !ok || id == "" {
		return Default{Kind: DefaultNone}, nil
	}
	return Default{Kind: DefaultRemote, ID: id}, nil
}

// SetDefaultUser makes id the default user.
// Offline ids are kept in the local slot only. Any other id clears the local
// slot and is handed to the remote service.
// Returns account.ErrInvalidInput if id is empty.
func (m *Manager) SetDefaultUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", account.ErrInvalidInput)
	}

	if account.IsOfflineID(id) {
		m.offline.SetDefault(ctx, id)
		m.logger.Debug("local default set to %s", id)
		return nil
	}

	m.offline.ClearDefault(ctx)
	if err := m.remote.SetDefaultUser(ctx, id); err != nil {
		return serviceError("setting remote default user", err)
	}
	m.logger.Debug("remote default set to %s", id)
	return nil
}

// RemoveUser removes the account id through the remote service.
// Offline ids are not intercepted; use RemoveOfflineAccount for those.
func (m *Manager) RemoveUser(ctx context.Context, id string) error {
	if err := m.remote.RemoveUser(ctx, id); err != nil {
		return serviceError("removing user", err)
	}
	return nil
}

// serviceError wraps err so that it matches remote.ErrRemoteService unless it is
// already classified.
func serviceError(op string, err error) error {
	if errors.Is(err, remote.ErrRemoteService) || errors.Is(err, remote.ErrRemoteAuth) || errors.Is(err, remote.ErrAuthTimeout) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, remote.ErrRemoteService, err)
}
