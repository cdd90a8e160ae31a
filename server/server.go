package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lewismc/earthdata-search/auth"
	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/oauthmodel"
	"github.com/lewismc/earthdata-search/orders"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/lewismc/earthdata-search/token"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LoginProvider sends users to URS and turns the callback code into tokens.
type LoginProvider interface {
	LoginURL() string
	Exchange(ctx context.Context, code string) (*oauthmodel.TokenResponse, error)
}

type OrderSubmitter interface {
	Submit(ctx context.Context, req orders.Request) (*orders.Result, error)
}

// OrderLimiter decides whether key may place another order now.
type OrderLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Deps holds everything the handlers call into. Limiter may be nil.
type Deps struct {
	Sessions sessions.Repo
	Tokens   *token.Manager
	Resolver *auth.Resolver
	Orders   OrderSubmitter
	Login    LoginProvider
	Limiter  OrderLimiter
}

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	deps    Deps
	cookies *cookieCodec
	nowFunc func() time.Time
}

type Option func(*Server)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg config.Config, deps Deps, options ...Option) *Server {
	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		deps:    deps,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.cookies = newCookieCodec(cfg.GetSessionSecret(), cfg.GetSessionTTL(), s.nowFunc)

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler is the server wrapped in request tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, s.config.GetAppName())
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			method, path = "", route
		}
		log.Debug().Msgf("[%s] %s", colourMethod(method), path)
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
