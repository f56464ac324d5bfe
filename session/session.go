// Package session owns the client's authenticated session: acquiring a
// bearer token by password or OAuth, mirroring it into durable storage,
// re-validating it against the backend and tearing it down.
//
// A Controller is constructed once per process and injected wherever the
// session is read. All state changes go through its actions.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/fitcoach-session/backend"
	"github.com/jrsteele09/fitcoach-session/identity"
	"github.com/jrsteele09/fitcoach-session/store"
	"github.com/rs/zerolog"
)

// Backend is the part of the application backend the controller consumes.
type Backend interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	Register(ctx context.Context, req backend.RegisterRequest) (json.RawMessage, error)
	LinkOAuth(ctx context.Context, req backend.LinkRequest) (*backend.LinkResponse, error)
	Me(ctx context.Context, token string) (*backend.MeResponse, error)
	VerifySession(ctx context.Context, token string) (*backend.VerifySessionResponse, error)
	OnboardingStatus(ctx context.Context, token string) (*backend.OnboardingStatusResponse, error)
	SubmitOnboarding(ctx context.Context, token string, answers map[string]any) (json.RawMessage, error)
	RequestPasswordReset(ctx context.Context, req backend.ResetPasswordRequest) error
	ConfirmPasswordReset(ctx context.Context, req backend.ConfirmResetRequest) error
}

var _ Backend = (*backend.Client)(nil)

// OnboardingStatus is tri-state: unknown until fetched.
type OnboardingStatus int

const (
	OnboardingUnknown OnboardingStatus = iota
	OnboardingIncomplete
	OnboardingComplete
)

func (o OnboardingStatus) String() string {
	switch o {
	case OnboardingIncomplete:
		return "incomplete"
	case OnboardingComplete:
		return "complete"
	default:
		return "unknown"
	}
}

func onboardingFrom(completed bool) OnboardingStatus {
	if completed {
		return OnboardingComplete
	}
	return OnboardingIncomplete
}

// User is the identity cached from the last successful validation.
type User struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Username            string `json:"username,omitempty"`
	FullName            string `json:"full_name,omitempty"`
	AvatarURL           string `json:"avatar_url,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`

	// Provisional is set when the identity provider vouched for the user but
	// the backend could not link the account. Such a user has no token.
	Provisional bool `json:"provisional,omitempty"`
}

// Session is a point-in-time copy of the controller state.
type Session struct {
	Token           string
	User            *User
	IsAuthenticated bool
	Onboarding      OnboardingStatus
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// TeardownReason says why the session was destroyed.
type TeardownReason int

const (
	ReasonLogout TeardownReason = iota
	// ReasonInvalidToken covers structurally invalid or expired tokens and
	// backend "malformed token" rejections.
	ReasonInvalidToken
	// ReasonRejected is the backend or identity provider refusing a
	// well-formed token.
	ReasonRejected
	// ReasonCorruptedToken is a token that maps to invalid user information.
	ReasonCorruptedToken
)

func (r TeardownReason) String() string {
	switch r {
	case ReasonLogout:
		return "logout"
	case ReasonInvalidToken:
		return "invalid_token"
	case ReasonRejected:
		return "rejected"
	case ReasonCorruptedToken:
		return "corrupted_token"
	default:
		return "unknown"
	}
}

// Result is the uniform outcome of every controller action.
type Result struct {
	Success bool
	Err     error
	Data    any
}

// Reason is the human-readable failure message, preferring the backend's
// own wording when the failure came from it.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	if apiErr, ok := backend.AsAPIError(r.Err); ok && apiErr.Reason != "" {
		return apiErr.Reason
	}
	return r.Err.Error()
}

func succeeded(data any) Result {
	return Result{Success: true, Data: data}
}

func failed(err error) Result {
	return Result{Err: err}
}

// ProfileSeed is the optional profile data sent with a registration.
type ProfileSeed struct {
	Username string
	FullName string
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore sets the durable store. Without one the session lives in memory only.
func WithStore(s store.Store) Option {
	return func(c *Controller) {
		c.kv = s
	}
}

func WithIdentityProvider(p identity.Provider) Option {
	return func(c *Controller) {
		c.provider = p
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

// WithExpiryHorizon sets how close to exp a token counts as expiring soon.
func WithExpiryHorizon(horizon time.Duration) Option {
	return func(c *Controller) {
		c.horizon = horizon
	}
}

// WithTeardownHook is called after every teardown, outside the controller
// lock. UI shells use it to send the user back to the login screen.
func WithTeardownHook(hook func(TeardownReason)) Option {
	return func(c *Controller) {
		c.onTeardown = hook
	}
}

// WithRedirect is handed the authorization URL by LoginWithOAuth.
func WithRedirect(redirect func(url string) error) Option {
	return func(c *Controller) {
		c.redirect = redirect
	}
}
