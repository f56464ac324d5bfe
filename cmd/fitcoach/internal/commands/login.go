package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jrsteele09/fitcoach-session/session"
	"github.com/rs/zerolog/log"
)

type LoginCmd struct {
	Email    string `arg:"" help:"Account email"`
	Password string `help:"Password (read from stdin when omitted)" env:"FITCOACH_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	password, err := passwordOrPrompt(globals, c.Password)
	if err != nil {
		return err
	}

	globals.banner()
	res := app.Controller.Login(ctx, c.Email, password)
	if !res.Success {
		return fail("login", res)
	}

	s := app.Controller.Snapshot()
	globals.printf("Logged in as %s\n", s.User.Email)
	if s.Onboarding == session.OnboardingIncomplete {
		globals.printf("Onboarding is not complete yet. Run `fitcoach onboarding --answers <file>` to finish it.\n")
	}
	log.Debug().Str("user_id", s.User.ID).Msg("login complete")
	return nil
}

type RegisterCmd struct {
	Email    string `arg:"" help:"Account email"`
	Password string `help:"Password (read from stdin when omitted)" env:"FITCOACH_PASSWORD"`
	Username string `help:"Username"`
	FullName string `help:"Full name"`
}

func (c *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	password, err := passwordOrPrompt(globals, c.Password)
	if err != nil {
		return err
	}

	res := app.Controller.Register(ctx, c.Email, password, session.ProfileSeed{
		Username: c.Username,
		FullName: c.FullName,
	})
	if !res.Success {
		return fail("registration", res)
	}

	globals.printf("Account created for %s. Confirm your email, then run `fitcoach login %s`.\n", c.Email, c.Email)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}
	app.Controller.Logout(ctx)
	globals.printf("Logged out.\n")
	return nil
}

func passwordOrPrompt(globals *Globals, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	if globals.In == nil {
		return "", errors.New("password is required")
	}

	globals.printf("Password: ")
	line, err := bufio.NewReader(globals.In).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
