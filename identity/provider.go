// Package identity describes the remote identity provider the session
// controller federates with. Implementations complete the OAuth code exchange
// themselves; callers only ever see the resulting federated session.
package identity

import (
	"context"
	"time"
)

// Provider is the remote identity provider surface the session controller
// consumes. Every call has a (data, error) shape.
type Provider interface {
	// AuthCodeURL starts a redirect-based login with the named provider and
	// returns the URL the user agent must visit.
	AuthCodeURL(ctx context.Context, provider string) (string, error)

	// Exchange completes the flow started by AuthCodeURL using the
	// parameters the redirect returned with.
	Exchange(ctx context.Context, cb Callback) error

	// Session returns the current federated session, or nil when there is none.
	Session(ctx context.Context) (*FederatedSession, error)

	// SignOut ends the federated session.
	SignOut(ctx context.Context) error
}

// Callback holds the query parameters of an OAuth redirect.
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// HasCode reports whether the redirect carries an authorization code to exchange.
func (c Callback) HasCode() bool {
	return c.Code != ""
}

// FederatedSession is what the identity provider knows about the signed-in user.
// AccessToken, RefreshToken and IDToken belong to the provider and are never
// used as the application bearer token.
type FederatedSession struct {
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the session identifies a user and has not expired.
// A zero Expiry never expires.
func (f *FederatedSession) Valid(now time.Time) bool {
	if f == nil || f.Subject == "" || f.Email == "" {
		return false
	}
	return f.Expiry.IsZero() || now.Before(f.Expiry)
}
