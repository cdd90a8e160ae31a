// Package token keeps the URS token triple stored in a session fresh. Requests
// refresh on the server shortly before expiry, and browser scripts are told
// when to ask for a refresh themselves.
package token

import (
	"context"
	"time"

	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/oauthmodel"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new token triple.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauthmodel.TokenResponse, error)
}

// Caller describes the request that needs a fresh token.
type Caller struct {
	Interactive bool   // a page navigation that can be redirected to login
	FullPath    string // path and query to resume at after login
}

// defaultRefreshTimeout bounds a shared refresh once it no longer follows the
// context of the request that started it.
const defaultRefreshTimeout = 60 * time.Second

type Manager struct {
	refresher      Refresher
	serverOffset   time.Duration
	clientOffset   time.Duration
	refreshTimeout time.Duration
	nowFunc        func() time.Time
	refreshes      singleflight.Group // key: session id + refresh token
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithOffsets overrides how long before expiry the server and browser scripts refresh.
func WithOffsets(server, client time.Duration) ManagerOption {
	return func(m *Manager) {
		m.serverOffset = server
		m.clientOffset = client
	}
}

// WithRefreshTimeout bounds each call to the provider's token endpoint.
func WithRefreshTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

func New(refresher Refresher, options ...ManagerOption) *Manager {
	m := &Manager{
		refresher:      refresher,
		serverOffset:   config.ServerExpirationOffset,
		clientOffset:   config.ClientExpirationOffset,
		refreshTimeout: defaultRefreshTimeout,
		nowFunc:        time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Manager) IsAuthenticated(s *sessions.Session) bool {
	return s.AccessToken() != ""
}

// ServerRefreshDueIn is the number of seconds until the server should refresh.
// Negative means a refresh is due now.
func (m *Manager) ServerRefreshDueIn(s *sessions.Session) int {
	ts, issuedAt := s.Tokens()
	return m.remaining(ts, issuedAt) - int(m.serverOffset/time.Second)
}

// ClientRefreshDueInMs is the number of milliseconds until a browser script
// should request a refresh. It can be negative.
func (m *Manager) ClientRefreshDueInMs(s *sessions.Session) int64 {
	ts, issuedAt := s.Tokens()
	return 1000 * int64(m.remaining(ts, issuedAt)-int(m.clientOffset/time.Second))
}

func (m *Manager) remaining(ts sessions.TokenSet, issuedAt time.Time) int {
	if issuedAt.IsZero() {
		return ts.ExpiresIn
	}
	elapsed := int(m.nowFunc().Sub(issuedAt) / time.Second)
	return ts.ExpiresIn - elapsed
}

// EnsureFresh refreshes the session's tokens when the server refresh is due.
// A rejected refresh clears the tokens and returns a *errors.ReauthenticationError;
// interactive callers also get their path stored as the session's resume point.
// A provider timeout leaves the tokens untouched and returns errors.ErrUpstreamTimeout.
func (m *Manager) EnsureFresh(ctx context.Context, s *sessions.Session, caller Caller) error {
	if !m.IsAuthenticated(s) {
		return nil
	}
	if m.ServerRefreshDueIn(s) >= 0 {
		return nil
	}
	return m.Refresh(ctx, s, caller)
}

// Refresh refreshes the session's tokens now, due or not. Failures are
// handled as in EnsureFresh.
func (m *Manager) Refresh(ctx context.Context, s *sessions.Session, caller Caller) error {
	ts, _ := s.Tokens()
	if ts.RefreshToken == "" {
		return m.handleRefreshFailure(s, caller, errors.ErrRefreshRejected)
	}

	resp, shared, err := m.sharedRefresh(ctx, s.ID()+"|"+ts.RefreshToken, ts.RefreshToken)
	if err != nil {
		return m.handleRefreshFailure(s, caller, err)
	}

	if !s.CompareAndSetTokens(ts.RefreshToken, toTokenSet(resp), m.nowFunc()) {
		log.Debug().Str("session", s.ID()).Msg("tokens replaced concurrently, keeping newer set")
	}
	log.Debug().Str("session", s.ID()).Bool("shared", shared).Msg("access token refreshed")
	return nil
}

// sharedRefresh runs one provider call per key. The call is detached from the
// context of whichever request started it, so a cancelled leader does not fail
// the waiters; each caller stops waiting when its own ctx is done.
func (m *Manager) sharedRefresh(ctx context.Context, key, refreshToken string) (*oauthmodel.TokenResponse, bool, error) {
	ch := m.refreshes.DoChan(key, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresher.Refresh(rctx, refreshToken)
	})
	select {
	case <-ctx.Done():
		return nil, false, errors.Wrapf(errors.ClassifyTransport(ctx.Err()), "[token.Refresh] caller gave up")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, errors.ClassifyTransport(res.Err)
		}
		return res.Val.(*oauthmodel.TokenResponse), res.Shared, nil
	}
}

func (m *Manager) handleRefreshFailure(s *sessions.Session, caller Caller, err error) error {
	if errors.IsTimeout(err) {
		return errors.Wrapf(err, "[token.Refresh]")
	}
	if !errors.Is(err, errors.ErrRefreshRejected) {
		return errors.Wrapf(err, "[token.Refresh] refresh failed")
	}

	log.Info().Str("session", s.ID()).Bool("interactive", caller.Interactive).Msg("refresh rejected, login required")
	m.Store(s, nil)
	if !caller.Interactive {
		return &errors.ReauthenticationError{}
	}
	s.SetPendingRedirect(caller.FullPath)
	return &errors.ReauthenticationError{RedirectTarget: caller.FullPath}
}

// Store replaces the session's token triple with resp, issued now. A nil resp
// clears all three fields.
func (m *Manager) Store(s *sessions.Session, resp *oauthmodel.TokenResponse) {
	if resp == nil {
		s.ClearTokens()
		return
	}
	s.SetTokens(toTokenSet(resp), m.nowFunc())
}

// Clear logs the session out: tokens, the cached user id and the anonymous history go.
func (m *Manager) Clear(s *sessions.Session) {
	m.Store(s, nil)
	s.SetUserID("")
	s.ClearRecentDatasets()
}

// PopRedirectTarget returns and clears the stored resume point, or fallback if none is set.
func (m *Manager) PopRedirectTarget(s *sessions.Session, fallback string) string {
	if target := s.PopPendingRedirect(); target != "" {
		return target
	}
	return fallback
}

func toTokenSet(resp *oauthmodel.TokenResponse) sessions.TokenSet {
	return sessions.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}
}
