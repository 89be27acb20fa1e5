package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/msimon/playerid/account"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInterval = 5 * time.Second
	maxPollInterval     = time.Minute
)

// Device token error codes, as in RFC 8628 section 3.5.
const (
	codeAuthorizationPending = "authorization_pending"
	codeSlowDown             = "slow_down"
	codeExpiredToken         = "expired_token"
	codeAccessDenied         = "access_denied"
)

// HTTPClientConfig holds configuration for HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the identity service root (e.g., "http://localhost:8080").
	BaseURL string `json:"baseUrl" env:"BASE_URL"`

	// Timeout bounds each directory request and the device code request, as a
	// duration string. Default: "30s". Login polling is bounded by the device
	// session lifetime instead.
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`
}

// GetTimeout returns the request timeout, defaulting to 30s.
func (c *HTTPClientConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultHTTPTimeout
	}
	return d
}

// HTTPClient implements Service against the identity service's REST API.
type HTTPClient struct {
	baseURL      *url.URL
	hc           *http.Client
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pending *pendingLogin
}

type pendingLogin struct {
	deviceCode string
	interval   time.Duration
	expires    time.Time
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.hc = hc
	}
}

// WithPollInterval sets the polling interval used when the service reports none.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.pollInterval = d
	}
}

// NewHTTPClient creates an HTTPClient from the given configuration.
func NewHTTPClient(cfg HTTPClientConfig, opts ...HTTPOption) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http client: baseUrl is required")
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("http client: parsing baseUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("http client: unsupported baseUrl scheme %q", u.Scheme)
	}

	c := &HTTPClient{
		baseURL:      u,
		hc:           &http.Client{},
		timeout:      cfg.GetTimeout(),
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// deviceAuthorization is the response to a device code request.
type deviceAuthorization struct {
	DeviceSession
	DeviceCode string `json:"device_code"`
}

// apiError is the error body returned by the service.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

type userID struct {
	ID string `json:"id"`
}

// BeginLogin requests a device code and remembers it for AwaitLogin.
func (c *HTTPClient) BeginLogin(ctx context.Context) (DeviceSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var auth deviceAuthorization
	if _, err := c.do(ctx, ErrRemoteAuth, http.MethodPost, "/v1/auth/device", nil, &auth); err != nil {
		return DeviceSession{}, err
	}
	if auth.DeviceCode == "" || auth.UserCode == "" || auth.VerificationURI == "" {
		return DeviceSession{}, &Error{Kind: ErrRemoteAuth, Message: "incomplete device authorization response"}
	}

	p := &pendingLogin{
		deviceCode: auth.DeviceCode,
		interval:   c.pollInterval,
	}
	if auth.Interval > 0 {
		p.interval = time.Duration(auth.Interval) * time.Second
	}
	if auth.ExpiresIn > 0 {
		p.expires = c.now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	}

	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()

	return auth.DeviceSession, nil
}

// AwaitLogin polls the token endpoint until the pending login completes.
func (c *HTTPClient) AwaitLogin(ctx context.Context) (*Credential, error) {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return nil, &Error{Kind: ErrRemoteAuth, Message: "no login in progress"}
	}
	defer c.clearPending(p)

	if !p.expires.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, p.expires)
		defer cancel()
	}

	b := &backoff.Backoff{
		Min:    p.interval,
		Max:    maxPollInterval,
		Factor: 2,
	}
	wait := b.Duration()

	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, contextError(ctx)
		case <-timer.C:
		}

		var cred Credential
		status, err := c.do(ctx, ErrRemoteAuth, http.MethodPost, "/v1/auth/device/token", map[string]string{"device_code": p.deviceCode}, &cred)
		if err == nil {
			return &cred, nil
		}
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}

		var remoteErr *Error
		if !errors.As(err, &remoteErr) || status != http.StatusBadRequest {
			return nil, err
		}
		switch remoteErr.Code {
		case codeAuthorizationPending:
			continue
		case codeSlowDown:
			wait = b.Duration()
			continue
		case codeExpiredToken:
			remoteErr.Kind = ErrAuthTimeout
			return nil, remoteErr
		default:
			return nil, remoteErr
		}
	}
}

func (c *HTTPClient) clearPending(p *pendingLogin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == p {
		c.pending = nil
	}
}

// contextError classifies a finished context: deadlines are timeouts, cancellation is a failure.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAuthTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %w", ErrRemoteAuth, ctx.Err())
}

// Users lists the accounts known to the service.
func (c *HTTPClient) Users(ctx context.Context) ([]account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var creds []Credential
	if _, err := c.do(ctx, ErrRemoteService, http.MethodGet, "/v1/users", nil, &creds); err != nil {
		return nil, err
	}
	return accountsFromCredentials(creds)
}

// DefaultUser returns the service's default user.
func (c *HTTPClient) DefaultUser(ctx context.Context) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var u userID
	status, err := c.do(ctx, ErrRemoteService, http.MethodGet, "/v1/users/default", nil, &u)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNoContent || u.ID == "" {
		return "", false, nil
	}
	return u.ID, true, nil
}

// SetDefaultUser sets the service's default user.
func (c *HTTPClient) SetDefaultUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.do(ctx, ErrRemoteService, http.MethodPut, "/v1/users/default", userID{ID: id}, nil)
	return err
}

// RemoveUser removes an account from the service.
func (c *HTTPClient) RemoveUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.do(ctx, ErrRemoteService, http.MethodDelete, "/v1/users/"+url.PathEscape(id), nil, nil)
	return err
}

// do sends a JSON request and decodes a JSON response into out.
// Failures are returned as errors matching kind, together with the HTTP status if one was received.
func (c *HTTPClient) do(ctx context.Context, kind error, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%w: encoding request: %w", kind, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %w", kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", kind, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %w", kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Kind: kind, Status: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			e.Code = apiErr.Error
			e.Message = apiErr.Description
		} else {
			e.Message = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, e
	}

	if out != nil && resp.StatusCode != http.StatusNoContent && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decoding response: %w", kind, err)
		}
	}
	return resp.StatusCode, nil
}
