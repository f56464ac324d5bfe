package commands

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/server"
	"github.com/rs/zerolog/log"
)

type OAuthLoginCmd struct {
	Provider string        `arg:"" optional:"" default:"google" help:"Configured identity provider name"`
	Timeout  time.Duration `help:"How long to wait for the browser to return" default:"5m"`
}

func (c *OAuthLoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	callbacks, err := server.New(app.Controller, server.WithLogger(globals.Logger), server.WithEnv(globals.Config.GetEnv()))
	if err != nil {
		return err
	}
	if _, err := callbacks.Start(globals.Config.GetCallbackAddr()); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := callbacks.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("failed to stop callback server")
		}
	}()

	globals.banner()
	res := app.Controller.LoginWithOAuth(ctx, c.Provider)
	if !res.Success {
		return fail("oauth login", res)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	res, err = callbacks.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("no response from %s: %w", c.Provider, err)
	}

	if !res.Success {
		if apperrors.Is(res.Err, apperrors.ErrBackendLinkFailed) {
			if s := app.Controller.Snapshot(); s.User != nil {
				globals.printf("Signed in to %s as %s, but your account could not be linked.\n", c.Provider, s.User.Email)
			}
			globals.printf("Protected features are unavailable until linking succeeds. Try `fitcoach oauth-login` again later.\n")
		}
		return fail("oauth login", res)
	}

	globals.printf("Logged in as %s\n", app.Controller.Snapshot().User.Email)
	return nil
}
