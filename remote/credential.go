package remote

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/msimon/playerid/account"
)

// Credential is the result of a completed login, as stored by the remote service.
type Credential struct {
	Profile      account.Profile `json:"profile"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Expires      time.Time       `json:"expires"`
	Active       bool            `json:"active"`
}

// Account returns the online account described by the credential.
func (c Credential) Account() (account.Account, error) {
	a, err := account.NewOnline(c.Profile.ID, c.Profile.Name)
	if err != nil {
		return account.Account{}, err
	}
	a.Profile.UUID = c.Profile.UUID
	return a, nil
}

// ExpiresAt returns when the access token expires.
// When the service did not report an expiry, the exp claim of a JWT access
// token is used. The signature is not checked; the remote service owns the token.
func (c Credential) ExpiresAt() (time.Time, bool) {
	if !c.Expires.IsZero() {
		return c.Expires, true
	}
	if c.AccessToken == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
