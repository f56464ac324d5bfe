package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/fitcoach-session/backend"
	"github.com/jrsteele09/fitcoach-session/identity"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/session"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBackend(t *testing.T) {
	_, err := session.New(nil)
	require.Error(t, err)
}

func TestLoginScenario(t *testing.T) {
	f := setup(t)
	f.api.respond("/auth/login", http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"user_id":      "u1",
			"email":        "a@b.com",
			"username":     "a",
			"access_token": "h.p.s",
			"profile":      map[string]any{"onboarding_completed": false},
		},
	})

	res := f.ctrl.Login(context.Background(), "a@b.com", "secret")
	require.True(t, res.Success, res.Reason())

	s := f.ctrl.Snapshot()
	require.True(t, s.IsAuthenticated)
	require.Equal(t, session.OnboardingIncomplete, s.Onboarding)
	require.Equal(t, "h.p.s", s.Token)
	require.Equal(t, "u1", s.User.ID)
	require.Equal(t, "h.p.s", f.storedToken(t))
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(f *fixture)
		wantErr error
		reason  string
	}{
		{
			name: "bad credentials",
			prepare: func(f *fixture) {
				f.api.respond("/auth/login", http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
			},
			wantErr: apperrors.ErrInvalidCredentials,
			reason:  "Invalid credentials",
		},
		{
			name: "success false",
			prepare: func(f *fixture) {
				f.api.respond("/auth/login", http.StatusOK, map[string]any{"success": false, "error": "Email not confirmed"})
			},
			wantErr: apperrors.ErrInvalidCredentials,
			reason:  "Email not confirmed",
		},
		{
			name:    "network error",
			prepare: func(f *fixture) { f.api.drop("/auth/login") },
			wantErr: apperrors.ErrUnavailable,
		},
		{
			name: "malformed response",
			prepare: func(f *fixture) {
				f.api.respond("/auth/login", http.StatusOK, ok(map[string]any{"user_id": "u2"}))
			},
			wantErr: apperrors.ErrMalformedResponse,
		},
		{
			name: "undecodable response",
			prepare: func(f *fixture) {
				f.api.on("/auth/login", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte(`{"success":true,"data":{"access_token":42}}`))
				})
			},
			wantErr: apperrors.ErrMalformedResponse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			tok := f.loginAs(t, true)
			before := f.ctrl.Snapshot()

			tc.prepare(f)
			res := f.ctrl.Login(context.Background(), "other@b.com", "wrong")
			require.False(t, res.Success)
			require.ErrorIs(t, res.Err, tc.wantErr)
			require.NotEmpty(t, res.Reason())
			if tc.reason != "" {
				require.Equal(t, tc.reason, res.Reason())
			}

			require.Equal(t, before, f.ctrl.Snapshot())
			require.Equal(t, tok, f.storedToken(t))
		})
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	f := setup(t)
	res := f.ctrl.Login(context.Background(), " ", "secret")
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, apperrors.ErrInvalidRequest)
	require.Zero(t, f.api.totalCalls())
}

func TestRegisterDoesNotAuthenticate(t *testing.T) {
	f := setup(t)
	f.api.on("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ok(map[string]any{"message": "check your inbox"}))
	})

	res := f.ctrl.Register(context.Background(), "new@b.com", "secret", session.ProfileSeed{Username: "new", FullName: "New User"})
	require.True(t, res.Success, res.Reason())
	require.JSONEq(t, `{"message":"check your inbox"}`, string(res.Data.(json.RawMessage)))
	require.False(t, f.ctrl.IsAuthenticated())
	require.Empty(t, f.ctrl.Token())

	f.api.respond("/auth/register", http.StatusBadRequest, map[string]any{"detail": "Email already registered"})
	res = f.ctrl.Register(context.Background(), "new@b.com", "secret", session.ProfileSeed{})
	require.False(t, res.Success)
	require.Equal(t, "Email already registered", res.Reason())
}

func TestLogoutTeardown(t *testing.T) {
	for _, signOutErr := range []error{nil, apperrors.ErrUnavailable} {
		f := setup(t)
		f.loginAs(t, true)
		require.NoError(t, f.kv.Put("cached_plan", "x"))
		f.provider.SignOutErr = signOutErr

		res := f.ctrl.Logout(context.Background())
		require.True(t, res.Success)

		s := f.ctrl.Snapshot()
		require.Empty(t, s.Token)
		require.Nil(t, s.User)
		require.False(t, s.IsAuthenticated)
		require.Equal(t, session.OnboardingUnknown, s.Onboarding)
		require.Zero(t, f.kv.Len(), "durable storage must be purged wholesale")
		require.Equal(t, 1, f.provider.SignOutCalls)
		require.Equal(t, []session.TeardownReason{session.ReasonLogout}, f.teardownReasons())
	}
}

func TestHydrationStructuralGate(t *testing.T) {
	cases := map[string]string{
		"no dots":         "abc",
		"missing middle":  "header..sig",
		"middle not json": "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig",
		"missing sub":     "eyJhbGciOiJIUzI1NiJ9.eyJlbWFpbCI6ImFAYi5jb20ifQ.sig",
		"missing email":   "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1MSJ9.sig",
	}

	for name, stored := range cases {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			f.api.respond("/auth/me", http.StatusOK, ok(map[string]any{"id": "u1", "email": "a@b.com"}))
			require.NoError(t, f.kv.Put("access_token", stored))

			require.False(t, f.ctrl.Hydrate())
			require.False(t, f.ctrl.CheckAuth(context.Background()))
			require.False(t, f.ctrl.IsAuthenticated())
			require.Empty(t, f.ctrl.Token())
			require.Empty(t, f.storedToken(t))
			require.Zero(t, f.api.totalCalls(), "an invalid stored token is never sent")
			require.Equal(t, []session.TeardownReason{session.ReasonInvalidToken}, f.teardownReasons())
		})
	}
}

func TestCheckAuthHydratesAndValidates(t *testing.T) {
	f := setup(t)
	tok := mintToken(t, "u1", "a@b.com", f.now.Add(time.Hour))
	require.NoError(t, f.kv.Put("access_token", tok))
	f.api.respond("/auth/me", http.StatusOK, ok(map[string]any{
		"id": "u1", "email": "a@b.com", "username": "a", "full_name": "Ann Bee", "onboarding_completed": true,
	}))

	require.True(t, f.ctrl.Hydrate())
	require.False(t, f.ctrl.IsAuthenticated(), "a hydrated token is not trusted until validated")

	require.True(t, f.ctrl.CheckAuth(context.Background()))
	require.Equal(t, tok, f.api.bearer("/auth/me"))

	s := f.ctrl.Snapshot()
	require.True(t, s.IsAuthenticated)
	require.Equal(t, "Ann Bee", s.User.FullName)
	require.Equal(t, session.OnboardingComplete, s.Onboarding)
}

func TestCheckAuthWithoutToken(t *testing.T) {
	f := setup(t)
	require.False(t, f.ctrl.CheckAuth(context.Background()))
	require.Zero(t, f.api.totalCalls())
}

func TestCheckAuthIdempotent(t *testing.T) {
	f := setup(t)
	f.loginAs(t, false)

	for _, status := range []int{http.StatusOK, http.StatusInternalServerError} {
		f.api.respond("/auth/me", status, ok(map[string]any{"id": "u1", "email": "a@b.com"}))
		first := f.ctrl.CheckAuth(context.Background())
		second := f.ctrl.CheckAuth(context.Background())
		require.Equal(t, first, second)
	}
}

func TestCheckAuthNetworkErrorPreservesSession(t *testing.T) {
	f := setup(t)
	tok := f.loginAs(t, true)
	before := f.ctrl.Snapshot()

	f.api.drop("/auth/me")
	require.True(t, f.ctrl.CheckAuth(context.Background()))
	require.Equal(t, before, f.ctrl.Snapshot())
	require.Equal(t, tok, f.storedToken(t))
	require.Empty(t, f.teardownReasons())
}

func TestCheckAuthRejectionTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		detail string
		want   session.TeardownReason
	}{
		{"malformed token", http.StatusUnauthorized, "Could not validate credentials: malformed token", session.ReasonInvalidToken},
		{"corrupted user", http.StatusUnauthorized, "Invalid user information", session.ReasonCorruptedToken},
		{"other rejection", http.StatusForbidden, "Session revoked", session.ReasonRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			f.loginAs(t, true)
			f.api.respond("/auth/me", tc.status, map[string]any{"detail": tc.detail})

			require.False(t, f.ctrl.CheckAuth(context.Background()))
			require.False(t, f.ctrl.IsAuthenticated())
			require.Empty(t, f.ctrl.Token())
			require.Empty(t, f.storedToken(t))
			require.Equal(t, []session.TeardownReason{tc.want}, f.teardownReasons())
			require.Equal(t, 1, f.provider.SessionCalls, "the identity provider is consulted before teardown")
		})
	}
}

func TestCheckAuthRelinksFederatedSession(t *testing.T) {
	f := setup(t)
	f.loginAs(t, true)
	f.provider.Current = &identity.FederatedSession{
		Provider:    "google",
		Subject:     "g-1",
		Email:       "a@b.com",
		Name:        "Ann Bee",
		AccessToken: "provider-native-token",
		Expiry:      f.now.Add(time.Hour),
	}
	fresh := mintToken(t, "u1", "a@b.com", f.now.Add(2*time.Hour))
	f.api.respond("/auth/me", http.StatusUnauthorized, map[string]any{"detail": "Token has been revoked"})
	f.api.respond("/auth/google-oauth", http.StatusOK, ok(map[string]any{
		"user_id": "u1", "email": "a@b.com", "access_token": fresh, "onboarding_completed": true,
	}))

	require.True(t, f.ctrl.CheckAuth(context.Background()))
	require.Equal(t, fresh, f.ctrl.Token())
	require.Equal(t, fresh, f.storedToken(t))
	require.Empty(t, f.teardownReasons())
}

func TestLoginWinsOverConcurrentHydration(t *testing.T) {
	f := setup(t)
	stale := mintToken(t, "u0", "old@b.com", f.now.Add(time.Hour))
	require.NoError(t, f.kv.Put("access_token", stale))

	fresh := mintToken(t, "u1", "a@b.com", f.now.Add(2*time.Hour))
	started := make(chan struct{})
	release := make(chan struct{})
	f.api.on("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeJSON(w, http.StatusOK, ok(map[string]any{
			"user_id":      "u1",
			"email":        "a@b.com",
			"access_token": fresh,
		}))
	})

	done := make(chan session.Result)
	go func() {
		done <- f.ctrl.Login(context.Background(), "a@b.com", "secret")
	}()

	<-started
	require.True(t, f.ctrl.Hydrate())
	require.Equal(t, stale, f.ctrl.Token())
	close(release)

	res := <-done
	require.True(t, res.Success, res.Reason())
	require.Equal(t, fresh, f.ctrl.Token())
	require.True(t, f.ctrl.IsAuthenticated())
	require.Equal(t, fresh, f.storedToken(t))
	require.Empty(t, f.teardownReasons())
}

func TestCheckAuthDoesNotResurrectAfterLogout(t *testing.T) {
	f := setup(t)
	f.loginAs(t, true)

	started := make(chan struct{})
	release := make(chan struct{})
	f.api.on("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeJSON(w, http.StatusOK, ok(map[string]any{"id": "u1", "email": "a@b.com", "onboarding_completed": true}))
	})

	done := make(chan bool)
	go func() {
		done <- f.ctrl.CheckAuth(context.Background())
	}()

	<-started
	f.ctrl.Logout(context.Background())
	close(release)

	require.False(t, <-done)
	s := f.ctrl.Snapshot()
	require.False(t, s.IsAuthenticated)
	require.Nil(t, s.User)
	require.Empty(t, s.Token)
	require.Empty(t, f.storedToken(t))
}

func TestRefreshToken(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := setup(t)
		f.loginAs(t, true)
		before := f.ctrl.Snapshot()
		f.api.respond("/auth/verify-session", http.StatusOK, map[string]any{"valid": true})

		require.True(t, f.ctrl.RefreshToken(context.Background()))
		require.Equal(t, before, f.ctrl.Snapshot())
	})

	t.Run("invalid", func(t *testing.T) {
		f := setup(t)
		f.loginAs(t, true)
		f.api.respond("/auth/verify-session", http.StatusOK, map[string]any{"valid": false})

		require.False(t, f.ctrl.RefreshToken(context.Background()))
		require.False(t, f.ctrl.IsAuthenticated())
		require.Empty(t, f.storedToken(t))
		require.Equal(t, []session.TeardownReason{session.ReasonRejected}, f.teardownReasons())
	})

	t.Run("unauthorized", func(t *testing.T) {
		f := setup(t)
		f.loginAs(t, true)
		f.api.respond("/auth/verify-session", http.StatusUnauthorized, map[string]any{"detail": "Invalid token"})

		require.False(t, f.ctrl.RefreshToken(context.Background()))
		require.Empty(t, f.ctrl.Token())
		require.Equal(t, []session.TeardownReason{session.ReasonInvalidToken}, f.teardownReasons())
	})

	t.Run("network error keeps session", func(t *testing.T) {
		f := setup(t)
		tok := f.loginAs(t, true)
		f.api.drop("/auth/verify-session")

		require.False(t, f.ctrl.RefreshToken(context.Background()))
		require.True(t, f.ctrl.IsAuthenticated())
		require.Equal(t, tok, f.ctrl.Token())
	})

	t.Run("no token", func(t *testing.T) {
		f := setup(t)
		require.False(t, f.ctrl.RefreshToken(context.Background()))
		require.Zero(t, f.api.totalCalls())
	})
}

func TestPasswordReset(t *testing.T) {
	f := setup(t)
	f.api.respond("/auth/reset-password", http.StatusOK, ok(nil))
	f.api.on("/auth/reset-password/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req backend.ConfirmResetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Code != "123456" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid or expired code"})
			return
		}
		writeJSON(w, http.StatusOK, ok(nil))
	})

	require.True(t, f.ctrl.RequestPasswordReset(context.Background(), "a@b.com").Success)

	res := f.ctrl.ConfirmPasswordReset(context.Background(), "a@b.com", "000000", "new-secret")
	require.False(t, res.Success)
	require.Equal(t, "Invalid or expired code", res.Reason())

	require.True(t, f.ctrl.ConfirmPasswordReset(context.Background(), "a@b.com", "123456", "new-secret").Success)
	require.False(t, f.ctrl.IsAuthenticated())

	res = f.ctrl.RequestPasswordReset(context.Background(), "")
	require.ErrorIs(t, res.Err, apperrors.ErrInvalidRequest)
}

type panickingBackend struct {
	session.Backend
}

func (panickingBackend) Login(context.Context, backend.LoginRequest) (*backend.LoginResponse, error) {
	panic("boom")
}

func TestActionRecoversPanics(t *testing.T) {
	ctrl, err := session.New(panickingBackend{})
	require.NoError(t, err)

	res := ctrl.Login(context.Background(), "a@b.com", "secret")
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, apperrors.ErrInternal)
	require.False(t, ctrl.IsAuthenticated())
}
