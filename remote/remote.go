// Package remote defines the remote identity service capability and its clients.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/msimon/playerid/account"
)

// Sentinel errors for remote operations. Every error returned by a client in
// this package matches exactly one of them with errors.Is.
var (
	// ErrRemoteAuth is returned when the device-code flow is rejected or fails.
	ErrRemoteAuth = errors.New("remote authentication failed")

	// ErrAuthTimeout is returned when the device-code flow expires before the user completes it.
	ErrAuthTimeout = errors.New("remote authentication timed out")

	// ErrRemoteService is returned for failures of the user directory calls.
	ErrRemoteService = errors.New("remote identity service error")
)

// DeviceSession is what the user needs to complete a device-code login out of band.
type DeviceSession struct {
	// VerificationURI is the page where the user enters the code.
	VerificationURI string `json:"verification_uri"`
	// UserCode is the code to enter.
	UserCode string `json:"user_code"`
	// ExpiresIn is the session lifetime in seconds, if reported.
	ExpiresIn int `json:"expires_in,omitempty"`
	// Interval is the minimum polling interval in seconds, if reported.
	Interval int `json:"interval,omitempty"`
}

// Authenticator drives the remote device-code login.
type Authenticator interface {
	// BeginLogin requests a new device code.
	// Returns an error matching ErrRemoteAuth on failure.
	BeginLogin(ctx context.Context) (DeviceSession, error)

	// AwaitLogin blocks until the user completes the pending login.
	// Returns an error matching ErrAuthTimeout if the login expires and
	// ErrRemoteAuth for any other failure.
	AwaitLogin(ctx context.Context) (*Credential, error)
}

// Directory gives access to the accounts held by the remote service.
// All methods return errors matching ErrRemoteService.
type Directory interface {
	// Users returns the online accounts in the service's order.
	Users(ctx context.Context) ([]account.Account, error)

	// DefaultUser returns the id of the remote default user, if any.
	DefaultUser(ctx context.Context) (string, bool, error)

	// SetDefaultUser makes id the remote default user.
	SetDefaultUser(ctx context.Context, id string) error

	// RemoveUser removes the remote account id.
	RemoveUser(ctx context.Context, id string) error
}

// Service is the full remote identity capability.
type Service interface {
	Authenticator
	Directory
}

// Error is a failure reported by the remote service.
type Error struct {
	// Kind is ErrRemoteAuth, ErrAuthTimeout or ErrRemoteService.
	Kind error
	// Status is the transport status (HTTP status code), if any.
	Status int
	// Code is the service's error code, if any.
	Code string
	// Message is a human readable description.
	Message string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// classify makes sure err matches one of the sentinel errors, defaulting to kind.
func classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteAuth) || errors.Is(err, ErrAuthTimeout) || errors.Is(err, ErrRemoteService) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// accountsFromCredentials converts the service's credential records to online accounts.
func accountsFromCredentials(creds []Credential) ([]account.Account, error) {
	accounts := make([]account.Account, 0, len(creds))
	for _, c := range creds {
		a, err := c.Account()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRemoteService, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}
