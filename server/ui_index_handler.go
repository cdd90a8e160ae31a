package server

import (
	"net/http"

	"github.com/lewismc/earthdata-search/users"
	"github.com/rs/zerolog/log"
)

type indexView struct {
	AppName              string
	Authenticated        bool
	ClientRefreshDueInMs int64
}

type accountView struct {
	AppName        string
	Identity       *users.Identity
	RecentDatasets []string
}

// IndexHandler renders the home page with the client refresh schedule.
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("index.html")
	if err != nil {
		panic("Failed to parse index template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		data := indexView{
			AppName:       s.config.GetAppName(),
			Authenticated: s.deps.Tokens.IsAuthenticated(session),
		}
		if data.Authenticated {
			data.ClientRefreshDueInMs = s.deps.Tokens.ClientRefreshDueInMs(session)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
			log.Err(err).Msg("failed to render index")
		}
	}
}

// AccountHandler shows the logged in user and their recent datasets.
func (s *Server) AccountHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("account.html")
	if err != nil {
		panic("Failed to parse account template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		recent, err := s.deps.Resolver.RecentDatasets(r.Context(), SessionFrom(r.Context()), identity, defaultRecentLimit)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := accountView{AppName: s.config.GetAppName(), Identity: identity, RecentDatasets: recent}
		if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
			log.Err(err).Msg("failed to render account")
		}
	}
}
