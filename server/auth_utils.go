package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/lewismc/earthdata-search/token"
	"github.com/lewismc/earthdata-search/users"
)

// sessionCookieName carries the signed session id; the session itself stays server side.
const sessionCookieName = "edsc_session"

// cookieCodec signs session ids into HS256 JWTs so a client cannot pick another session.
type cookieCodec struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func newCookieCodec(secret string, ttl time.Duration, now func() time.Time) *cookieCodec {
	return &cookieCodec{secret: []byte(secret), ttl: ttl, nowFunc: now}
}

func (c *cookieCodec) encode(sessionID string) (string, error) {
	now := c.nowFunc()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *cookieCodec) decode(value string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.nowFunc))
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidToken, "[cookieCodec.decode] %v", err)
	}
	if claims.ID == "" {
		return "", errors.ErrInvalidToken
	}
	return claims.ID, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) error {
	value, err := s.cookies.encode(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cookies.ttl / time.Second),
	})
	return nil
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

type contextKey string

const (
	contextKeySession  contextKey = "session"
	contextKeyIdentity contextKey = "identity"
)

// requestSession is the request's session plus whether it should be saved afterwards.
type requestSession struct {
	session   *sessions.Session
	discarded bool
}

func withSession(ctx context.Context, s *sessions.Session) (context.Context, *requestSession) {
	rs := &requestSession{session: s}
	return context.WithValue(ctx, contextKeySession, rs), rs
}

// SessionFrom returns the request's session. SessionMiddleware guarantees one.
func SessionFrom(ctx context.Context) *sessions.Session {
	rs, _ := ctx.Value(contextKeySession).(*requestSession)
	if rs == nil {
		return nil
	}
	return rs.session
}

// discardSession stops SessionMiddleware from saving the session after the handler.
func discardSession(ctx context.Context) {
	if rs, _ := ctx.Value(contextKeySession).(*requestSession); rs != nil {
		rs.discarded = true
	}
}

func withIdentity(ctx context.Context, identity *users.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFrom returns the identity RequireLogin resolved, if any.
func IdentityFrom(ctx context.Context) *users.Identity {
	identity, _ := ctx.Value(contextKeyIdentity).(*users.Identity)
	return identity
}

func isXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// isInteractive reports whether r is a page navigation that can follow a login redirect.
func isInteractive(r *http.Request) bool {
	if r.Method != http.MethodGet || isXHR(r) {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func callerFor(r *http.Request) token.Caller {
	return token.Caller{Interactive: isInteractive(r), FullPath: r.URL.RequestURI()}
}
