package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/fitcoach-session/backend"
	"github.com/jrsteele09/fitcoach-session/identity"
	"github.com/jrsteele09/fitcoach-session/identity/oidc"
	"github.com/jrsteele09/fitcoach-session/internal/config"
	"github.com/jrsteele09/fitcoach-session/session"
	"github.com/jrsteele09/fitcoach-session/store"
	"github.com/jrsteele09/fitcoach-session/store/bbolt"
	"github.com/rs/zerolog"
)

type Globals struct {
	Debug   bool
	Version string
	Config  config.Config
	Logger  zerolog.Logger
	Out     io.Writer
	In      io.Reader

	once  sync.Once
	app   *App
	err   error
	Build func(ctx context.Context, g *Globals) (*App, error)
}

// App is what every command works with: one controller over one store.
type App struct {
	Store      store.Store
	Controller *session.Controller
}

// App builds the application on first use so that commands such as
// --version never touch the session store.
func (g *Globals) App(ctx context.Context) (*App, error) {
	g.once.Do(func() {
		build := g.Build
		if build == nil {
			build = NewApp
		}
		g.app, g.err = build(ctx, g)
	})
	return g.app, g.err
}

func (g *Globals) Close() error {
	if g.app == nil || g.app.Store == nil {
		return nil
	}
	return g.app.Store.Close()
}

func (g *Globals) printf(format string, args ...any) {
	fmt.Fprintf(g.Out, format, args...)
}

func (g *Globals) banner() {
	if g.Config == nil {
		return
	}
	myFigure := figure.NewFigure(g.Config.GetAppName(), "cybermedium", true)
	fmt.Fprintln(g.Out, myFigure.String())
}

// NewApp wires the controller from configuration: the bbolt store, the
// backend client and, when any provider is configured, OIDC federation.
func NewApp(_ context.Context, g *Globals) (*App, error) {
	cfg := g.Config

	kv, err := bbolt.Open(cfg.GetStorePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	api, err := backend.New(cfg.GetAPIBaseURL(),
		backend.WithTimeout(cfg.GetRequestTimeout()),
		backend.WithLogger(g.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	var provider identity.Provider
	if providers := cfg.GetProviders(); len(providers) > 0 {
		provider, err = oidc.New(providers, kv, oidc.WithLogger(g.Logger))
		if err != nil {
			kv.Close()
			return nil, err
		}
	}

	ctrl, err := NewController(g, api, kv, provider)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &App{Store: kv, Controller: ctrl}, nil
}

// NewController applies the CLI's hooks: forced teardowns send the user
// back to login and OAuth redirects are printed for the user to open.
func NewController(g *Globals, api session.Backend, kv store.Store, provider identity.Provider) (*session.Controller, error) {
	options := []session.Option{
		session.WithStore(kv),
		session.WithLogger(g.Logger),
		session.WithTeardownHook(func(reason session.TeardownReason) {
			if reason == session.ReasonLogout {
				return
			}
			g.printf("Your session has ended (%s). Please log in again with `fitcoach login`.\n", reason)
		}),
		session.WithRedirect(func(url string) error {
			g.printf("Open this URL in your browser to continue:\n\n  %s\n\n", url)
			return nil
		}),
	}
	if g.Config != nil {
		options = append(options, session.WithExpiryHorizon(g.Config.GetExpiryHorizon()))
	}
	if provider != nil {
		options = append(options, session.WithIdentityProvider(provider))
	}
	return session.New(api, options...)
}

// fail turns a failed Result into the command error.
func fail(action string, res session.Result) error {
	return fmt.Errorf("%s failed: %s", action, res.Reason())
}
