package server

import (
	"fmt"
	"net/http"

	"github.com/lewismc/earthdata-search/oauthmodel"
	"github.com/rs/zerolog/log"
)

// LoginHandler sends the browser to the URS authorize endpoint.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.deps.Login.LoginURL(), http.StatusFound)
	}
}

// URSCallbackHandler exchanges the authorization code for a token set and
// resumes wherever the user was before logging in.
func (s *Server) URSCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			respondWithProblem(w, r, http.StatusBadRequest, "Authorization failed", fmt.Sprintf("%s - %s", errorParam, errorDesc))
			return
		}
		if code == "" {
			respondWithProblem(w, r, http.StatusBadRequest, "Bad Request", oauthmodel.ErrMissingCode.Error())
			return
		}

		resp, err := s.deps.Login.Exchange(r.Context(), code)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}

		session := SessionFrom(r.Context())
		s.deps.Tokens.Store(session, resp)
		// A new token may belong to someone else.
		session.SetUserID("")
		log.Info().Str("session", session.ID()).Msg("user logged in")

		http.Redirect(w, r, s.deps.Tokens.PopRedirectTarget(session, s.config.GetRootURL()), http.StatusFound)
	}
}

// LogoutHandler forgets the tokens and deletes the session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		s.deps.Tokens.Clear(session)

		discardSession(r.Context())
		if err := s.deps.Sessions.Delete(r.Context(), session.ID()); err != nil {
			log.Err(err).Str("session", session.ID()).Msg("failed to delete session")
		}
		clearSessionCookie(w)

		http.Redirect(w, r, s.config.GetRootURL(), http.StatusFound)
	}
}

type refreshResponse struct {
	ClientRefreshDueInMs int64 `json:"client_refresh_due_in_ms"`
}

// RefreshTokenHandler is called by the client-side timer to refresh before expiry.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		if !s.deps.Tokens.IsAuthenticated(session) {
			respondWithProblem(w, r, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		if err := s.deps.Tokens.Refresh(r.Context(), session, callerFor(r)); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, refreshResponse{ClientRefreshDueInMs: s.deps.Tokens.ClientRefreshDueInMs(session)})
	}
}
