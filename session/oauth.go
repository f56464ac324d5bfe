package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/fitcoach-session/backend"
	"github.com/jrsteele09/fitcoach-session/identity"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/internal/utils"
	"github.com/pkg/errors"
)

// LoginWithOAuth starts a redirect-based login. It never touches the
// session; Data is the authorization URL.
func (c *Controller) LoginWithOAuth(ctx context.Context, provider string) Result {
	return c.action("LoginWithOAuth", func() Result {
		if c.provider == nil {
			return failed(apperrors.Wrapf(apperrors.ErrUnsupported, "[LoginWithOAuth] no identity provider configured"))
		}

		authURL, err := c.provider.AuthCodeURL(ctx, provider)
		if err != nil {
			return failed(errors.Wrap(err, "[LoginWithOAuth]"))
		}
		if c.redirect != nil {
			if err := c.redirect(authURL); err != nil {
				return failed(errors.Wrap(err, "[LoginWithOAuth] redirect"))
			}
		}
		return succeeded(authURL)
	})
}

// RegisterWithOAuth is LoginWithOAuth: federated providers do not separate
// sign-up from sign-in.
func (c *Controller) RegisterWithOAuth(ctx context.Context, provider string) Result {
	return c.LoginWithOAuth(ctx, provider)
}

// HandleOAuthCallback completes a federated login once the redirect comes
// back. The identity provider finishes the code exchange, its claims are
// linked to an application account and the backend-issued token becomes
// the session token.
func (c *Controller) HandleOAuthCallback(ctx context.Context, cb identity.Callback) Result {
	return c.action("HandleOAuthCallback", func() Result {
		if c.provider == nil {
			return failed(apperrors.Wrapf(apperrors.ErrUnsupported, "[HandleOAuthCallback] no identity provider configured"))
		}

		gen := c.currentGeneration()
		if cb.Error != "" || cb.HasCode() {
			if err := c.provider.Exchange(ctx, cb); err != nil {
				return failed(errors.Wrap(err, "[HandleOAuthCallback]"))
			}
		}

		fed, err := c.provider.Session(ctx)
		if err != nil {
			return failed(errors.Wrap(err, "[HandleOAuthCallback]"))
		}
		if !fed.Valid(c.nowTime()) {
			return failed(apperrors.Wrapf(apperrors.ErrNoFederatedSession, "[HandleOAuthCallback]"))
		}

		return c.link(ctx, gen, fed)
	})
}

// link forwards federated claims to the backend. When linking fails the
// session drops to a provisional view: the user is known but holds no
// token and is not authenticated.
func (c *Controller) link(ctx context.Context, gen uint64, fed *identity.FederatedSession) Result {
	resp, err := c.backend.LinkOAuth(ctx, backend.LinkRequest{
		GoogleID:  fed.Subject,
		Email:     fed.Email,
		FullName:  fed.Name,
		AvatarURL: fed.AvatarURL,
		Provider:  fed.Provider,
	})
	if err == nil && (resp == nil || resp.AccessToken == "") {
		err = apperrors.Wrapf(apperrors.ErrMalformedResponse, "no access token in link response")
	}

	if err != nil {
		c.logger.Warn().Err(err).Str("provider", fed.Provider).Msg("account linking failed, continuing with provisional identity")
		if _, ok := c.establish(gen, Session{
			User:       userFromFederated(fed),
			Onboarding: OnboardingUnknown,
		}); !ok {
			return failed(errors.Wrap(ErrSuperseded, "[link]"))
		}
		return failed(fmt.Errorf("[link] %w: %w", apperrors.ErrBackendLinkFailed, err))
	}

	snapshot, ok := c.establish(gen, Session{
		Token: resp.AccessToken,
		User: &User{
			ID:                  resp.UserID,
			Email:               utils.FirstNonEmpty(resp.Email, fed.Email),
			Username:            resp.Username,
			FullName:            utils.FirstNonEmpty(resp.FullName, fed.Name),
			AvatarURL:           fed.AvatarURL,
			OnboardingCompleted: resp.OnboardingCompleted,
		},
		IsAuthenticated: true,
		Onboarding:      onboardingFrom(resp.OnboardingCompleted),
	})
	if !ok {
		return failed(errors.Wrap(ErrSuperseded, "[link]"))
	}
	c.logger.Info().Str("provider", fed.Provider).Str("user_id", resp.UserID).Msg("federated identity linked")
	return succeeded(snapshot)
}
