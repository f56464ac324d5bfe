package session

import (
	"context"

	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/token"
	"github.com/pkg/errors"
)

// CheckOnboardingStatus fetches the onboarding flag. Any failure resolves to
// incomplete for the session it was made for.
func (c *Controller) CheckOnboardingStatus(ctx context.Context) (completed bool) {
	tok, gen := c.current()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("CheckOnboardingStatus: recovered from panic")
			c.defaultOnboarding(gen)
			completed = false
		}
	}()

	if tok == "" {
		c.defaultOnboarding(gen)
		return false
	}

	resp, err := c.backend.OnboardingStatus(ctx, tok)
	if err != nil {
		c.logger.Warn().Err(err).Msg("onboarding status unavailable, assuming incomplete")
		c.handleRejection(gen, err)
		c.defaultOnboarding(gen)
		return false
	}

	c.setOnboarding(gen, resp.OnboardingCompleted)
	return resp.OnboardingCompleted
}

// PrecheckToken classifies the current token's expiry. Callers should
// refresh or log in again before state-changing requests when the token is
// not StatusValid.
func (c *Controller) PrecheckToken() token.ExpiryStatus {
	status, _ := token.CheckExpiry(c.Token(), c.nowTime(), c.horizon)
	return status
}

// SubmitOnboarding sends the completed onboarding answers. Invalid or
// expired tokens end the session instead of being sent. A token about to
// expire is re-verified first but not blocked.
func (c *Controller) SubmitOnboarding(ctx context.Context, answers map[string]any) Result {
	return c.action("SubmitOnboarding", func() Result {
		tok, gen := c.current()
		if tok == "" {
			return failed(apperrors.Wrapf(apperrors.ErrNotAuthenticated, "[SubmitOnboarding]"))
		}

		status, err := token.CheckExpiry(tok, c.nowTime(), c.horizon)
		if !status.Usable() {
			c.teardownIf(gen, ReasonInvalidToken)
			if status == token.StatusExpired {
				return failed(errors.Wrap(apperrors.ErrTokenExpired, "[SubmitOnboarding]"))
			}
			return failed(errors.Wrapf(apperrors.ErrInvalidToken, "[SubmitOnboarding] %v", err))
		}
		if status == token.StatusExpiringSoon {
			c.logger.Warn().Msg("token expires soon, verifying before submitting onboarding")
			if !c.RefreshToken(ctx) && c.currentGeneration() != gen {
				return failed(errors.Wrap(apperrors.ErrNotAuthenticated, "[SubmitOnboarding] session ended"))
			}
		}

		payload, err := c.backend.SubmitOnboarding(ctx, tok, answers)
		if err != nil {
			c.handleRejection(gen, err)
			return failed(errors.Wrap(err, "[SubmitOnboarding]"))
		}

		c.setOnboarding(gen, true)
		return succeeded(payload)
	})
}

func (c *Controller) setOnboarding(gen uint64, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.state.Onboarding = onboardingFrom(completed)
	if c.state.User != nil {
		c.state.User.OnboardingCompleted = completed
	}
}

// defaultOnboarding resolves the status to incomplete for the session the
// check was made for. A cleared or replaced session is left alone.
func (c *Controller) defaultOnboarding(gen uint64) {
	c.setOnboarding(gen, false)
}
