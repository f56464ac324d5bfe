package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/fitcoach-session/backend"
	fakeprovider "github.com/jrsteele09/fitcoach-session/identity/fake"
	"github.com/jrsteele09/fitcoach-session/session"
	"github.com/jrsteele09/fitcoach-session/store/memory"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an httptest API whose endpoints are scripted per test.
type fakeBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	tokens   map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	f := &fakeBackend{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		tokens:   make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")

		f.mu.Lock()
		f.calls[path]++
		f.tokens[path] = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		h, ok := f.handlers[path]
		f.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "not found"})
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) on(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeBackend) respond(path string, status int, body any) {
	f.on(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

// drop makes path fail at the transport level.
func (f *fakeBackend) drop(path string) {
	f.on(path, func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBackend) bearer(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[path]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func mintToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return raw
}

type fixture struct {
	api       *fakeBackend
	kv        *memory.Store
	provider  *fakeprovider.FakeProvider
	ctrl      *session.Controller
	now       time.Time
	teardowns []session.TeardownReason
	mu        sync.Mutex
}

func setup(t *testing.T, options ...session.Option) *fixture {
	t.Helper()

	f := &fixture{
		api:      newFakeBackend(t),
		kv:       memory.New(),
		provider: fakeprovider.NewFakeProvider(),
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	client, err := backend.New(f.api.server.URL+"/api", backend.WithTimeout(2*time.Second))
	require.NoError(t, err)

	opts := []session.Option{
		session.WithStore(f.kv),
		session.WithIdentityProvider(f.provider),
		session.WithNowTime(func() time.Time { return f.now }),
		session.WithTeardownHook(func(reason session.TeardownReason) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.teardowns = append(f.teardowns, reason)
		}),
	}
	f.ctrl, err = session.New(client, append(opts, options...)...)
	require.NoError(t, err)
	return f
}

func (f *fixture) teardownReasons() []session.TeardownReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.TeardownReason(nil), f.teardowns...)
}

func (f *fixture) storedToken(t *testing.T) string {
	t.Helper()
	v, err := f.kv.Get("access_token")
	if err != nil {
		return ""
	}
	return v
}

// loginAs runs a successful password login and returns the issued token.
func (f *fixture) loginAs(t *testing.T, onboarded bool) string {
	t.Helper()
	tok := mintToken(t, "u1", "a@b.com", f.now.Add(time.Hour))
	f.api.respond("/auth/login", http.StatusOK, ok(map[string]any{
		"user_id":      "u1",
		"email":        "a@b.com",
		"username":     "a",
		"access_token": tok,
		"profile":      map[string]any{"full_name": "Ann Bee", "onboarding_completed": onboarded},
	}))
	res := f.ctrl.Login(context.Background(), "a@b.com", "secret")
	require.True(t, res.Success, res.Reason())
	return tok
}
