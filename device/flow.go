// Package device drives the device-code login handshake.
//
// A Flow moves Idle -> AwaitingVerification -> Completed, or to Failed from
// any step. Polling and session tracking belong to the remote service; the
// Flow only sequences the two calls and records the outcome.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msimon/playerid/logging"
	"github.com/msimon/playerid/remote"
)

// ErrInvalidState is returned when a Flow method is called out of order.
var ErrInvalidState = errors.New("invalid login state")

// State is the stage of a device login.
type State int

const (
	StateIdle State = iota
	StateAwaitingVerification
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Flow is a single device-code login. It is not reusable.
type Flow struct {
	auth    remote.Authenticator
	timeout time.Duration
	logger  logging.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      State
	waiting    bool
	session    remote.DeviceSession
	credential *remote.Credential
	err        error
}

// Option configures a Flow.
type Option func(*Flow)

// WithTimeout bounds Await. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.timeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logging.Logger) Option {
	return func(f *Flow) {
		f.logger = l
	}
}

// NewFlow creates an idle Flow using auth.
func NewFlow(auth remote.Authenticator, opts ...Option) *Flow {
	f := &Flow{
		auth:   auth,
		logger: logging.Default("device"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session returns the device session once Begin has succeeded.
func (f *Flow) Session() (remote.DeviceSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle || f.session.UserCode == "" {
		return remote.DeviceSession{}, false
	}
	return f.session, true
}

// Err returns the error that moved the flow to Failed.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Begin requests a device code from the remote service.
// Returns an error matching remote.ErrRemoteAuth if the service rejects the request.
func (f *Flow) Begin(ctx context.Context) (remote.DeviceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return remote.DeviceSession{}, fmt.Errorf("%w: begin in state %s", ErrInvalidState, f.state)
	}

	session, err := f.auth.BeginLogin(ctx)
	if err != nil {
		if !errors.Is(err, remote.ErrRemoteAuth) {
			err = fmt.Errorf("%w: %w", remote.ErrRemoteAuth, err)
		}
		f.fail(err)
		return remote.DeviceSession{}, err
	}

	f.session = session
	f.state = StateAwaitingVerification
	f.logger.Info("device login started, user code %s at %s", session.UserCode, session.VerificationURI)
	return session, nil
}

// Await blocks until the user completes the login out of band.
// A credential whose access token has already expired is rejected.
// Returns an error matching remote.ErrAuthTimeout if the login expires or the
// context deadline passes, and remote.ErrRemoteAuth for any other failure.
func (f *Flow) Await(ctx context.Context) (*remote.Credential, error) {
	f.mu.Lock()
	if f.state != StateAwaitingVerification || f.waiting {
		state := f.state
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: await in state %s", ErrInvalidState, state)
	}
	f.waiting = true
	f.mu.Unlock()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cred, err := f.auth.AwaitLogin(ctx)
	if err == nil && (cred == nil || cred.Profile.ID == "") {
		err = fmt.Errorf("%w: completed login carries no profile", remote.ErrRemoteAuth)
	}
	if err == nil {
		if exp, ok := cred.ExpiresAt(); ok && !exp.After(f.now()) {
			err = fmt.Errorf("%w: access token expired at %s", remote.ErrRemoteAuth, exp.Format(time.RFC3339))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.waiting = false

	if err != nil {
		err = authError(ctx, err)
		f.fail(err)
		return nil, err
	}

	f.credential = cred
	f.state = StateCompleted
	f.logger.Info("device login completed for %s", cred.Profile.Name)
	return cred, nil
}

func (f *Flow) fail(err error) {
	f.state = StateFailed
	f.err = err
	f.logger.Warn("device login failed: %v", err)
}

// authError classifies err as a timeout or an authentication failure.
func authError(ctx context.Context, err error) error {
	if errors.Is(err, remote.ErrAuthTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", remote.ErrAuthTimeout, err)
	}
	if errors.Is(err, remote.ErrRemoteAuth) {
		return err
	}
	return fmt.Errorf("%w: %w", remote.ErrRemoteAuth, err)
}
