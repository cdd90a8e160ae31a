package server

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/lewismc/earthdata-search/auth"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/rs/zerolog/log"
)

// SessionMiddleware loads the session named by the cookie, or starts a new one,
// and saves it once the handler returns. The request also gets a fresh
// identity cache.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.loadSession(r)
		if session == nil {
			session = sessions.New(uuid.NewString(), s.nowFunc())
			if err := s.setSessionCookie(w, r, session.ID()); err != nil {
				log.Err(err).Msg("failed to sign session cookie")
				respondWithProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "")
				return
			}
		}

		ctx, rs := withSession(r.Context(), session)
		next(w, r.WithContext(auth.WithRequestCache(ctx)))

		if rs.discarded {
			return
		}
		if err := s.deps.Sessions.Upsert(context.WithoutCancel(ctx), session); err != nil {
			log.Err(err).Str("session", session.ID()).Msg("failed to save session")
		}
	}
}

func (s *Server) loadSession(r *http.Request) *sessions.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	id, err := s.cookies.decode(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring invalid session cookie")
		return nil
	}
	session, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, errors.ErrSessionNotFound) {
			log.Err(err).Str("session", id).Msg("failed to load session")
		}
		return nil
	}
	return session
}

// RefreshTokenMiddleware refreshes tokens that are close to expiry before the
// handler runs.
func (s *Server) RefreshTokenMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Tokens.EnsureFresh(r.Context(), SessionFrom(r.Context()), callerFor(r)); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		next(w, r)
	}
}

// RequireLogin resolves the caller's identity and rejects anonymous callers.
// Page navigations are sent to URS and resume where they left off.
func (s *Server) RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		identity, err := s.deps.Resolver.Resolve(r.Context(), session)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if identity == nil {
			caller := callerFor(r)
			if caller.Interactive {
				session.SetPendingRedirect(caller.FullPath)
			}
			s.respondWithError(w, r, &errors.ReauthenticationError{RedirectTarget: targetIf(caller.Interactive, caller.FullPath)})
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), identity)))
	}
}

func targetIf(ok bool, target string) string {
	if ok {
		return target
	}
	return ""
}

// OrderRateLimitMiddleware caps how often one identity may submit orders.
func (s *Server) OrderRateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		if s.deps.Limiter == nil || identity == nil {
			next(w, r)
			return
		}
		allowed, retryAfter, err := s.deps.Limiter.Allow(r.Context(), identity.InternalID)
		if err != nil {
			// Fail open: losing the limiter must not stop orders.
			log.Err(err).Msg("order rate limiter unavailable")
			next(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			respondWithProblem(w, r, http.StatusTooManyRequests, "Too Many Requests", "order rate limit exceeded")
			return
		}
		next(w, r)
	}
}
