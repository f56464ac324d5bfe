package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/jrsteele09/fitcoach-session/internal/utils"
)

type StatusCmd struct {
	Offline bool `help:"Only read the local session, do not contact the backend"`
}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	if c.Offline {
		app.Controller.Hydrate()
	} else {
		app.Controller.CheckAuth(ctx)
	}
	s := app.Controller.Snapshot()

	w := tabwriter.NewWriter(globals.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "AUTHENTICATED\t%t\n", s.IsAuthenticated)
	if s.User != nil {
		fmt.Fprintf(w, "USER\t%s\n", utils.FirstNonEmpty(s.User.FullName, s.User.Username, s.User.ID))
		fmt.Fprintf(w, "EMAIL\t%s\n", s.User.Email)
		if s.User.Provisional {
			fmt.Fprintf(w, "ACCOUNT\tnot linked\n")
		}
	}
	fmt.Fprintf(w, "ONBOARDING\t%s\n", s.Onboarding)
	if s.Token != "" {
		fmt.Fprintf(w, "TOKEN\t%s\n", app.Controller.PrecheckToken())
	}
	return w.Flush()
}

type RefreshCmd struct{}

func (c *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	if app.Controller.Token() == "" && !app.Controller.Hydrate() {
		return fmt.Errorf("not logged in")
	}
	if !app.Controller.RefreshToken(ctx) {
		return fmt.Errorf("session could not be verified")
	}
	globals.printf("Session is valid (%s).\n", app.Controller.PrecheckToken())
	return nil
}
