// Package account provides the account model shared by online and offline identities.
package account

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when a required field is missing or malformed.
var ErrInvalidInput = errors.New("invalid input")

// OfflinePrefix is the id prefix reserved for locally created accounts.
// Ids issued by the remote identity service never start with it.
const OfflinePrefix = "offline-"

// Kind discriminates the account variants.
type Kind string

const (
	// KindOnline is an account authenticated and owned by the remote identity service.
	KindOnline Kind = "online"
	// KindOffline is an account created locally without network authentication.
	KindOffline Kind = "offline"
)

// Profile holds the identity fields common to both account kinds.
type Profile struct {
	// ID is unique across online and offline accounts.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// UUID is the game-facing UUID, if known.
	UUID string `json:"uuid,omitempty"`
}

// Account is a single known identity.
//
// Build accounts with NewOnline or NewOffline; a decoded account should be
// checked with Validate before it is trusted.
type Account struct {
	Profile Profile `json:"profile"`
	Type    Kind    `json:"type"`
	Offline bool    `json:"offline"`
}

// NewOnline returns an online account for an id issued by the remote service.
func NewOnline(id, name string) (Account, error) {
	if strings.TrimSpace(id) == "" {
		return Account{}, fmt.Errorf("%w: online account id is required", ErrInvalidInput)
	}
	if IsOfflineID(id) {
		return Account{}, fmt.Errorf("%w: online account id %q uses the offline prefix", ErrInvalidInput, id)
	}
	return Account{
		Profile: Profile{ID: id, Name: name},
		Type:    KindOnline,
	}, nil
}

// NewOffline returns an offline account for username.
// If id is empty a new offline id is generated.
func NewOffline(username, id string) (Account, error) {
	if strings.TrimSpace(username) == "" {
		return Account{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if id == "" {
		var err error
		id, err = NewOfflineID(username)
		if err != nil {
			return Account{}, err
		}
	}
	return Account{
		Profile: Profile{
			ID:   id,
			Name: username,
			UUID: OfflineUUID(username),
		},
		Type:    KindOffline,
		Offline: true,
	}, nil
}

// ID returns the profile id.
func (a Account) ID() string {
	return a.Profile.ID
}

// Validate checks that the discriminator, the offline flag and the id agree.
func (a Account) Validate() error {
	if a.Profile.ID == "" {
		return fmt.Errorf("%w: account id is empty", ErrInvalidInput)
	}
	switch a.Type {
	case KindOnline:
		if a.Offline {
			return fmt.Errorf("%w: online account %q is flagged offline", ErrInvalidInput, a.Profile.ID)
		}
		if IsOfflineID(a.Profile.ID) {
			return fmt.Errorf("%w: online account id %q uses the offline prefix", ErrInvalidInput, a.Profile.ID)
		}
	case KindOffline:
		if !a.Offline {
			return fmt.Errorf("%w: offline account %q is not flagged offline", ErrInvalidInput, a.Profile.ID)
		}
	default:
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, a.Type)
	}
	return nil
}

// IsOfflineID reports whether id belongs to the offline namespace.
func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflinePrefix)
}
