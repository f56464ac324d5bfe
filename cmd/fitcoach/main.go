package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jrsteele09/fitcoach-session/cmd/fitcoach/internal/commands"
	"github.com/jrsteele09/fitcoach-session/internal/config"
	"github.com/jrsteele09/fitcoach-session/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login         commands.LoginCmd         `cmd:"" help:"Log in with email and password"`
		Register      commands.RegisterCmd      `cmd:"" help:"Create an account"`
		Logout        commands.LogoutCmd        `cmd:"" help:"Log out and forget the local session"`
		OAuthLogin    commands.OAuthLoginCmd    `cmd:"" name:"oauth-login" help:"Log in through an identity provider"`
		Status        commands.StatusCmd        `cmd:"" help:"Validate and show the current session"`
		Refresh       commands.RefreshCmd       `cmd:"" help:"Check the session token is still accepted"`
		Onboarding    commands.OnboardingCmd    `cmd:"" help:"Show or submit onboarding"`
		ResetPassword commands.ResetPasswordCmd `cmd:"" name:"reset-password" help:"Request or confirm a password reset"`
		Config        string                    `help:"Path to a YAML config file." env:"FITCOACH_CONFIG" type:"path"`
		Debug         bool                      `help:"Enable debug mode."`
		Version       kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("fitcoach"),
		kong.Description("FitCoach session client."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	path := cli.Config
	if path == "" {
		path = config.ConfigFilePath()
	}
	cfg, err := config.Load(path)
	cmd.FatalIfErrorf(err)

	log := logger.Setup(cli.Debug || cfg.IsDev())
	logger.SetGlobal(log)

	globals := &commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Config:  cfg,
		Logger:  log,
		Out:     os.Stdout,
		In:      os.Stdin,
	}

	err = cmd.Run(globals)
	if closeErr := globals.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "closing session store: %v\n", closeErr)
	}
	cmd.FatalIfErrorf(err)
}
