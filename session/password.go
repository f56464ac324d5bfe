package session

import (
	"context"
	"strings"

	"github.com/jrsteele09/fitcoach-session/backend"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/pkg/errors"
)

// RequestPasswordReset asks the backend to send a one-time reset code.
// Resend throttling is the caller's job.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) Result {
	return c.action("RequestPasswordReset", func() Result {
		email = strings.TrimSpace(email)
		if email == "" {
			return failed(apperrors.Wrapf(apperrors.ErrInvalidRequest, "[RequestPasswordReset] email is required"))
		}
		if err := c.backend.RequestPasswordReset(ctx, backend.ResetPasswordRequest{Email: email}); err != nil {
			return failed(errors.Wrap(err, "[RequestPasswordReset]"))
		}
		return succeeded(nil)
	})
}

// ConfirmPasswordReset sets a new password using the emailed code. The
// session is not changed; the user logs in afterwards.
func (c *Controller) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) Result {
	return c.action("ConfirmPasswordReset", func() Result {
		email = strings.TrimSpace(email)
		code = strings.TrimSpace(code)
		if email == "" || code == "" || newPassword == "" {
			return failed(apperrors.Wrapf(apperrors.ErrInvalidRequest, "[ConfirmPasswordReset] email, code and new password are required"))
		}
		err := c.backend.ConfirmPasswordReset(ctx, backend.ConfirmResetRequest{
			Email:       email,
			Code:        code,
			NewPassword: newPassword,
		})
		if err != nil {
			return failed(errors.Wrap(err, "[ConfirmPasswordReset]"))
		}
		return succeeded(nil)
	})
}
