package commands

import (
	"context"

	"github.com/jrsteele09/fitcoach-session/cooldown"
)

const resetCooldownKey = "reset_password_sent_at"

type ResetPasswordCmd struct {
	Email       string `arg:"" help:"Account email"`
	Code        string `help:"One-time code from the reset email; omit to request one"`
	NewPassword string `help:"New password, required with --code" env:"FITCOACH_NEW_PASSWORD"`
}

func (c *ResetPasswordCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	if c.Code != "" {
		res := app.Controller.ConfirmPasswordReset(ctx, c.Email, c.Code, c.NewPassword)
		if !res.Success {
			return fail("password reset", res)
		}
		globals.printf("Password updated. Run `fitcoach login %s`.\n", c.Email)
		return nil
	}

	resend := cooldown.New(globals.Config.GetResendCooldown(), cooldown.WithStore(app.Store, resetCooldownKey))
	if err := resend.Check(); err != nil {
		return err
	}

	res := app.Controller.RequestPasswordReset(ctx, c.Email)
	if !res.Success {
		resend.Reset()
		return fail("password reset", res)
	}
	globals.printf("A reset code was sent to %s. Run `fitcoach reset-password %s --code <code> --new-password <password>`.\n", c.Email, c.Email)
	return nil
}
