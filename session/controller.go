package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/fitcoach-session/backend"
	"github.com/jrsteele09/fitcoach-session/identity"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/store"
	"github.com/jrsteele09/fitcoach-session/store/memory"
	"github.com/jrsteele09/fitcoach-session/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrSuperseded is returned by an action whose result arrived after the
// session had already changed identity (logout, another login).
var ErrSuperseded = errors.New("session changed while the request was in flight")

// Controller is safe for concurrent use. The lock is never held across a
// network call. Every identity change (login, link, hydration, teardown)
// advances generation, and network results are only written back when the
// generation they started from is still current.
type Controller struct {
	backend    Backend
	provider   identity.Provider
	kv         store.Store
	tokens     *store.TokenStore
	logger     zerolog.Logger
	nowTime    func() time.Time
	horizon    time.Duration
	onTeardown func(TeardownReason)
	redirect   func(url string) error

	mu         sync.Mutex
	state      Session
	generation uint64
}

func New(b Backend, options ...Option) (*Controller, error) {
	if b == nil {
		return nil, errors.New("[session New] backend is required")
	}

	c := &Controller{
		backend: b,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
		horizon: token.DefaultExpiryHorizon,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.kv == nil {
		c.kv = memory.New()
	}
	c.tokens = store.NewTokenStore(c.kv)

	return c, nil
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsAuthenticated
}

func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Token
}

// Hydrate seeds the in-memory token from the store without any network call.
// The token is not trusted for authentication until CheckAuth accepts it.
func (c *Controller) Hydrate() bool {
	tok, _ := c.hydrate()
	return tok != ""
}

// Login exchanges credentials for a session. On failure the existing session
// is left exactly as it was.
func (c *Controller) Login(ctx context.Context, email, password string) Result {
	return c.action("Login", func() Result {
		email = strings.TrimSpace(email)
		if email == "" || password == "" {
			return failed(apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Login] email and password are required"))
		}

		gen := c.currentGeneration()
		resp, err := c.backend.Login(ctx, backend.LoginRequest{Email: email, Password: password})
		if err != nil {
			if apiErr, ok := backend.AsAPIError(err); ok && (apiErr.IsAuthRejection() || apiErr.StatusCode < 300) {
				return failed(fmt.Errorf("[Login] %w: %w", apperrors.ErrInvalidCredentials, apiErr))
			}
			return failed(errors.Wrap(err, "[Login]"))
		}
		if resp == nil || resp.AccessToken == "" {
			return failed(apperrors.Wrapf(apperrors.ErrMalformedResponse, "[Login] no access token in response"))
		}

		user := &User{
			ID:       resp.UserID,
			Email:    resp.Email,
			Username: resp.Username,
		}
		onboarding := OnboardingUnknown
		if resp.Profile != nil {
			user.FullName = resp.Profile.FullName
			if resp.Profile.OnboardingCompleted != nil {
				user.OnboardingCompleted = *resp.Profile.OnboardingCompleted
				onboarding = onboardingFrom(user.OnboardingCompleted)
			}
		}

		snapshot, ok := c.establish(gen, Session{
			Token:           resp.AccessToken,
			User:            user,
			IsAuthenticated: true,
			Onboarding:      onboarding,
		})
		if !ok {
			return failed(errors.Wrap(ErrSuperseded, "[Login]"))
		}
		c.logger.Info().Str("user_id", user.ID).Msg("logged in")
		return succeeded(snapshot)
	})
}

// Register creates an account. It never authenticates; Data carries the
// backend's confirmation payload.
func (c *Controller) Register(ctx context.Context, email, password string, seed ProfileSeed) Result {
	return c.action("Register", func() Result {
		email = strings.TrimSpace(email)
		if email == "" || password == "" {
			return failed(apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Register] email and password are required"))
		}

		payload, err := c.backend.Register(ctx, backend.RegisterRequest{
			Email:    email,
			Password: password,
			Username: seed.Username,
			FullName: seed.FullName,
		})
		if err != nil {
			return failed(errors.Wrap(err, "[Register]"))
		}
		return succeeded(payload)
	})
}

// Logout always succeeds. The identity provider is told first, best effort,
// then local state and storage are purged.
func (c *Controller) Logout(ctx context.Context) Result {
	c.signOut(ctx)
	c.teardown(ReasonLogout)
	c.logger.Info().Msg("logged out")
	return succeeded(nil)
}

// CheckAuth re-validates the session against the backend, hydrating from the
// store first if no token is held. Network failures leave the session as it
// is and report the current state.
func (c *Controller) CheckAuth(ctx context.Context) (authenticated bool) {
	defer c.recoverBool("CheckAuth", &authenticated)

	tok, gen := c.current()
	if tok == "" {
		tok, gen = c.hydrate()
	}
	if tok == "" {
		c.mu.Lock()
		c.state.IsAuthenticated = false
		c.mu.Unlock()
		return false
	}

	me, err := c.backend.Me(ctx, tok)
	if err != nil {
		apiErr, ok := backend.AsAPIError(err)
		if !ok || !apiErr.IsAuthRejection() {
			c.logger.Warn().Err(err).Msg("CheckAuth: backend unavailable, keeping session")
			return c.IsAuthenticated()
		}
		return c.recoverFromRejection(ctx, gen, apiErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return c.state.IsAuthenticated
	}
	c.state.User = &User{
		ID:                  me.ID,
		Email:               me.Email,
		Username:            me.Username,
		FullName:            me.FullName,
		AvatarURL:           me.AvatarURL,
		OnboardingCompleted: me.OnboardingCompleted,
	}
	c.state.Onboarding = onboardingFrom(me.OnboardingCompleted)
	c.state.IsAuthenticated = true
	return true
}

// RefreshToken asks the backend whether the current token is still honored.
// A rejection tears the session down. Acceptance changes nothing.
func (c *Controller) RefreshToken(ctx context.Context) (valid bool) {
	defer c.recoverBool("RefreshToken", &valid)

	tok, gen := c.current()
	if tok == "" {
		return false
	}

	resp, err := c.backend.VerifySession(ctx, tok)
	if err != nil {
		if apiErr, ok := backend.AsAPIError(err); ok && apiErr.IsAuthRejection() {
			c.teardownIf(gen, reasonFor(apiErr))
			return false
		}
		c.logger.Warn().Err(err).Msg("RefreshToken: verification failed, keeping session")
		return false
	}
	if !resp.Valid {
		c.teardownIf(gen, ReasonRejected)
		return false
	}
	return true
}

// recoverFromRejection runs after the backend refused the token: a live
// federated session is linked again for a fresh token, anything else ends
// the session.
func (c *Controller) recoverFromRejection(ctx context.Context, gen uint64, apiErr *backend.APIError) bool {
	if c.provider != nil {
		fed, err := c.provider.Session(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("identity provider session lookup failed")
		}
		if err == nil && fed.Valid(c.nowTime()) {
			c.logger.Info().Str("provider", fed.Provider).Msg("token rejected, relinking federated identity")
			return c.link(ctx, gen, fed).Success
		}
	}

	c.logger.Warn().Str("kind", apiErr.Kind().String()).Msg("token rejected by backend")
	c.teardownIf(gen, reasonFor(apiErr))
	return false
}

// handleRejection applies the 401 taxonomy for actions that are not
// validations: malformed and corrupted tokens end the session, ambiguous
// rejections are only surfaced.
func (c *Controller) handleRejection(gen uint64, err error) {
	apiErr, ok := backend.AsAPIError(err)
	if !ok {
		return
	}
	switch apiErr.Kind() {
	case backend.KindMalformedToken:
		c.teardownIf(gen, ReasonInvalidToken)
	case backend.KindCorruptedUser:
		c.teardownIf(gen, ReasonCorruptedToken)
	}
}

func reasonFor(apiErr *backend.APIError) TeardownReason {
	switch apiErr.Kind() {
	case backend.KindMalformedToken:
		return ReasonInvalidToken
	case backend.KindCorruptedUser:
		return ReasonCorruptedToken
	default:
		return ReasonRejected
	}
}

func (c *Controller) current() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Token, c.generation
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// establish replaces the whole session if gen is still current and mirrors
// the token into the store.
func (c *Controller) establish(gen uint64, next Session) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return c.state.clone(), false
	}
	c.generation++
	c.state = next
	if next.Token != "" {
		if err := c.tokens.Save(next.Token); err != nil {
			c.logger.Err(err).Msg("failed to persist token")
		}
	} else if err := c.tokens.Remove(); err != nil {
		c.logger.Err(err).Msg("failed to remove persisted token")
	}
	return c.state.clone(), true
}

// hydrate loads and structurally validates the stored token. An invalid
// token is purged before it can reach the backend.
func (c *Controller) hydrate() (string, uint64) {
	c.mu.Lock()
	tok, gen, rejected := c.hydrateLocked()
	c.mu.Unlock()

	if rejected {
		c.notify(ReasonInvalidToken)
	}
	return tok, gen
}

func (c *Controller) hydrateLocked() (tok string, gen uint64, rejected bool) {
	if c.state.Token != "" {
		return c.state.Token, c.generation, false
	}

	raw, err := c.tokens.Load()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Err(err).Msg("failed to read persisted token")
		}
		return "", c.generation, false
	}

	if _, err := token.ValidateStructure(raw); err != nil {
		c.logger.Warn().Err(err).Msg("discarding structurally invalid stored token")
		c.clearLocked()
		return "", c.generation, true
	}

	// Seeding is not an identity change; a login already in flight still wins.
	c.state.Token = raw
	c.state.IsAuthenticated = false
	return raw, c.generation, false
}

func (c *Controller) teardown(reason TeardownReason) {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	c.notify(reason)
}

// teardownIf tears down only if nothing has replaced the session since gen.
func (c *Controller) teardownIf(gen uint64, reason TeardownReason) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	c.clearLocked()
	c.mu.Unlock()
	c.notify(reason)
	return true
}

func (c *Controller) clearLocked() {
	c.generation++
	c.state = Session{Onboarding: OnboardingUnknown}
	if err := c.tokens.Purge(); err != nil {
		c.logger.Err(err).Msg("failed to purge session storage")
	}
}

func (c *Controller) notify(reason TeardownReason) {
	c.logger.Debug().Str("reason", reason.String()).Msg("session torn down")
	if c.onTeardown != nil {
		c.onTeardown(reason)
	}
}

func (c *Controller) signOut(ctx context.Context) {
	if c.provider == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("identity provider sign-out panicked")
		}
	}()
	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("identity provider sign-out failed")
	}
}

// action converts panics into a failed Result so nothing escapes the
// controller boundary.
func (c *Controller) action(op string, fn func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("op", op).Interface("panic", r).Msg("recovered from panic")
			res = failed(fmt.Errorf("[%s] %w: %v", op, apperrors.ErrInternal, r))
		}
	}()

	res = fn()
	if !res.Success && res.Err != nil {
		c.logger.Debug().Err(res.Err).Str("op", op).Msg("action failed")
	}
	return res
}

func (c *Controller) recoverBool(op string, out *bool) {
	if r := recover(); r != nil {
		c.logger.Error().Str("op", op).Interface("panic", r).Msg("recovered from panic")
		*out = c.IsAuthenticated()
	}
}

func userFromFederated(fed *identity.FederatedSession) *User {
	return &User{
		ID:          fed.Subject,
		Email:       fed.Email,
		FullName:    fed.Name,
		AvatarURL:   fed.AvatarURL,
		Provisional: true,
	}
}
