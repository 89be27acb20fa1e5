package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/msimon/playerid/account"
	"github.com/msimon/playerid/natsconn"
)

const (
	defaultSubjectPrefix = "playerid.identity"
	defaultNatsTimeout   = 10 * time.Second
	defaultLoginTimeout  = 15 * time.Minute
)

// Reply error codes with a dedicated meaning.
const (
	replyCodeAuthTimeout = "auth_timeout"
	replyCodeAuthFailed  = "auth_failed"
)

// NatsClientConfig holds configuration for NatsClient.
type NatsClientConfig struct {
	natsconn.Config

	// SubjectPrefix is prepended to every request subject. Default: "playerid.identity".
	SubjectPrefix string `json:"subjectPrefix,omitempty" env:"SUBJECT_PREFIX"`

	// Timeout bounds each directory and login-begin request, as a duration string. Default: "10s".
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`

	// LoginTimeout bounds the login-await request, as a duration string. Default: "15m".
	LoginTimeout string `json:"loginTimeout,omitempty" env:"LOGIN_TIMEOUT"`
}

// GetTimeout returns the request timeout, defaulting to 10s.
func (c *NatsClientConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, defaultNatsTimeout)
}

// GetLoginTimeout returns the login-await timeout, defaulting to 15m.
func (c *NatsClientConfig) GetLoginTimeout() time.Duration {
	return parseDuration(c.LoginTimeout, defaultLoginTimeout)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NatsClient implements Service with NATS request/reply.
//
// Subjects are "<prefix>.login.begin", "<prefix>.login.await", "<prefix>.users.list",
// "<prefix>.users.default.get", "<prefix>.users.default.set" and "<prefix>.users.remove".
// Replies use the envelope {"data": ..., "error": {"code": ..., "message": ...}}.
type NatsClient struct {
	nc           *nats.Conn
	owned        bool
	prefix       string
	timeout      time.Duration
	loginTimeout time.Duration
}

// NewNatsClient connects to NATS and creates a NatsClient.
func NewNatsClient(cfg NatsClientConfig) (*NatsClient, error) {
	nc, err := natsconn.Connect(cfg.Config, "playerid-remote")
	if err != nil {
		return nil, fmt.Errorf("nats client: %w", err)
	}
	c := NewNatsClientWithConn(nc, cfg)
	c.owned = true
	return c, nil
}

// NewNatsClientWithConn creates a NatsClient on an existing connection.
// The connection is not closed by Close.
func NewNatsClientWithConn(nc *nats.Conn, cfg NatsClientConfig) *NatsClient {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NatsClient{
		nc:           nc,
		prefix:       prefix,
		timeout:      cfg.GetTimeout(),
		loginTimeout: cfg.GetLoginTimeout(),
	}
}

// Close closes the connection if the client opened it.
func (c *NatsClient) Close() error {
	if c.owned {
		c.nc.Close()
	}
	return nil
}

type replyEnvelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *replyError     `json:"error,omitempty"`
}

type replyError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (c *NatsClient) subject(name string) string {
	return c.prefix + "." + name
}

// BeginLogin asks the service to start a device-code login.
func (c *NatsClient) BeginLogin(ctx context.Context) (DeviceSession, error) {
	var session DeviceSession
	if err := c.request(ctx, c.timeout, "login.begin", ErrRemoteAuth, nil, &session); err != nil {
		return DeviceSession{}, err
	}
	if session.UserCode == "" || session.VerificationURI == "" {
		return DeviceSession{}, &Error{Kind: ErrRemoteAuth, Message: "incomplete device session"}
	}
	return session, nil
}

// AwaitLogin waits for the service to report the pending login's outcome.
func (c *NatsClient) AwaitLogin(ctx context.Context) (*Credential, error) {
	var cred Credential
	if err := c.request(ctx, c.loginTimeout, "login.await", ErrRemoteAuth, nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Users lists the accounts known to the service.
func (c *NatsClient) Users(ctx context.Context) ([]account.Account, error) {
	var creds []Credential
	if err := c.request(ctx, c.timeout, "users.list", ErrRemoteService, nil, &creds); err != nil {
		return nil, err
	}
	return accountsFromCredentials(creds)
}

// DefaultUser returns the service's default user.
func (c *NatsClient) DefaultUser(ctx context.Context) (string, bool, error) {
	var u userID
	if err := c.request(ctx, c.timeout, "users.default.get", ErrRemoteService, nil, &u); err != nil {
		return "", false, err
	}
	if u.ID == "" {
		return "", false, nil
	}
	return u.ID, true, nil
}

// SetDefaultUser sets the service's default user.
func (c *NatsClient) SetDefaultUser(ctx context.Context, id string) error {
	return c.request(ctx, c.timeout, "users.default.set", ErrRemoteService, userID{ID: id}, nil)
}

// RemoveUser removes an account from the service.
func (c *NatsClient) RemoveUser(ctx context.Context, id string) error {
	return c.request(ctx, c.timeout, "users.remove", ErrRemoteService, userID{ID: id}, nil)
}

func (c *NatsClient) request(ctx context.Context, timeout time.Duration, name string, kind error, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding request: %w", kind, err)
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject(name), payload)
	if err != nil {
		if kind == ErrRemoteAuth && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout)) {
			return fmt.Errorf("%w: %s: %w", ErrAuthTimeout, name, err)
		}
		return fmt.Errorf("%w: %s: %w", kind, name, err)
	}
	return decodeReply(msg.Data, kind, out)
}

// decodeReply unpacks a reply envelope into out.
func decodeReply(data []byte, kind error, out any) error {
	var env replyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return classify(fmt.Errorf("decoding reply: %w", err), kind)
	}

	if env.Error != nil {
		e := &Error{Kind: ErrRemoteService, Code: env.Error.Code, Message: env.Error.Message}
		switch env.Error.Code {
		case replyCodeAuthTimeout:
			e.Kind = ErrAuthTimeout
		case replyCodeAuthFailed:
			e.Kind = ErrRemoteAuth
		}
		return e
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return classify(fmt.Errorf("decoding reply data: %w", err), kind)
		}
	}
	return nil
}
