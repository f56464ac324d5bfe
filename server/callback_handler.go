package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/fitcoach-session/identity"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
)

func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue covers query parameters and form_post responses.
		cb := identity.Callback{
			State:            r.FormValue("state"),
			Code:             r.FormValue("code"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		res := s.handler.HandleOAuthCallback(r.Context(), cb)
		s.publish(res)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.Success {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
			return
		}

		status := http.StatusBadRequest
		if apperrors.Is(res.Err, apperrors.ErrBackendLinkFailed) || apperrors.Is(res.Err, apperrors.ErrUnavailable) {
			status = http.StatusBadGateway
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, "Sign-in failed: %s\n", res.Reason())
	}
}
