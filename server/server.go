// Package server is the loopback HTTP receiver for OAuth redirects. The
// identity provider sends the browser back to it and the parameters are
// handed to the session controller.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/fitcoach-session/identity"
	"github.com/jrsteele09/fitcoach-session/session"
	"github.com/rs/zerolog"
)

// CallbackPath is where the identity provider redirects back to.
const CallbackPath = "/auth/callback"

// CallbackHandler completes a federated login. *session.Controller
// satisfies it.
type CallbackHandler interface {
	HandleOAuthCallback(ctx context.Context, cb identity.Callback) session.Result
}

var _ CallbackHandler = (*session.Controller)(nil)

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	handler CallbackHandler
	logger  zerolog.Logger

	results chan session.Result

	httpServer *http.Server
	lock       sync.Mutex
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEnv enables per-request route logging when env is "DEV".
func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

func New(handler CallbackHandler, options ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("[Server New] callback handler is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		handler: handler,
		logger:  zerolog.Nop(),
		results: make(chan session.Result, 1),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+CallbackPath, ChainMiddleware(s.OAuthCallbackHandler(), s.CallbackMiddleware()...))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Results delivers the outcome of the first callback received.
func (s *Server) Results() <-chan session.Result {
	return s.results
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.httpServer != nil {
		return "", errors.New("[Server Start] already started")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("[Server Start] listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Err(err).Msg("callback server stopped")
		}
	}()

	s.logger.Debug().Str("addr", listener.Addr().String()).Msg("callback server listening")
	return listener.Addr().String(), nil
}

// Wait blocks until a callback has been handled or ctx is done.
func (s *Server) Wait(ctx context.Context) (session.Result, error) {
	select {
	case res := <-s.results:
		return res, nil
	case <-ctx.Done():
		return session.Result{}, fmt.Errorf("[Server Wait] %w", ctx.Err())
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("[Server Shutdown] %w", err)
	}
	s.httpServer = nil
	return nil
}

func (s *Server) publish(res session.Result) {
	select {
	case s.results <- res:
	default:
		s.logger.Debug().Msg("callback result already pending, dropping")
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Debug().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
