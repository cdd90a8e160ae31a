// Package urs talks to the Earthdata Login (URS) OAuth provider: it builds the
// login redirect, exchanges authorization codes and refreshes access tokens.
package urs

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/oauthmodel"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "oauth/authorize"
	tokenPath     = "oauth/token"
)

type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	nowFunc    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every call to the provider.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// New builds a client with endpoints rooted at cfg.GetURSRoot().
func New(cfg config.OAuthConfig, options ...Option) *Client {
	root := cfg.GetURSRoot()
	return newClient(cfg, oauth2.Endpoint{
		AuthURL:   root + authorizePath,
		TokenURL:  root + tokenPath,
		AuthStyle: oauth2.AuthStyleInHeader,
	}, options...)
}

// NewWithDiscovery resolves the provider endpoints from the issuer's OIDC
// discovery document instead of deriving them from the URS root.
func NewWithDiscovery(ctx context.Context, cfg config.OAuthConfig, options ...Option) (*Client, error) {
	c := newClient(cfg, oauth2.Endpoint{}, options...)
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), cfg.GetURSIssuerURL())
	if err != nil {
		return nil, errors.Wrapf(errors.ClassifyTransport(err), "[urs.NewWithDiscovery] discover %s", cfg.GetURSIssuerURL())
	}
	c.oauth.Endpoint = provider.Endpoint()
	return c, nil
}

func newClient(cfg config.OAuthConfig, endpoint oauth2.Endpoint, options ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetURSClientID(),
			ClientSecret: cfg.GetURSClientSecret(),
			RedirectURL:  cfg.GetURSCallbackURL(),
			Endpoint:     endpoint,
		},
		httpClient: http.DefaultClient,
		timeout:    30 * time.Second,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// LoginURL is the provider authorize URL for the code flow. No network call is made.
func (c *Client) LoginURL() string {
	return c.AuthorizeURL(oauthmodel.AuthorizationParameters{
		ClientID:     c.oauth.ClientID,
		RedirectURI:  c.oauth.RedirectURL,
		ResponseType: oauthmodel.CodeResponseType,
	})
}

// AuthorizeURL builds the authorize redirect for arbitrary parameters.
func (c *Client) AuthorizeURL(params oauthmodel.AuthorizationParameters) string {
	cfg := *c.oauth
	cfg.ClientID = params.ClientID
	cfg.RedirectURL = params.RedirectURI
	return cfg.AuthCodeURL(params.State)
}

// Exchange trades an authorization code for a token triple.
func (c *Client) Exchange(ctx context.Context, code string) (*oauthmodel.TokenResponse, error) {
	if code == "" {
		return nil, oauthmodel.ErrMissingCode
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(c.classify(err), "[urs.Exchange]")
	}
	return c.toResponse(tok)
}

// Refresh mints a new token triple from a refresh token. A provider that
// declines to issue a token yields errors.ErrRefreshRejected.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauthmodel.TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.ErrRefreshRejected
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.Wrapf(c.classify(err), "[urs.Refresh]")
	}
	resp, err := c.toResponse(tok)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrRefreshRejected, "[urs.Refresh] %v", err)
	}
	return resp, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		log.Warn().
			Int("status", retrieveErr.Response.StatusCode).
			Str("error_code", retrieveErr.ErrorCode).
			Msg("urs declined token request")
		return errors.ErrRefreshRejected
	}
	return errors.ClassifyTransport(err)
}

func (c *Client) toResponse(tok *oauth2.Token) (*oauthmodel.TokenResponse, error) {
	resp := &oauthmodel.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok, c.nowFunc()),
	}
	if endpoint, ok := tok.Extra("endpoint").(string); ok {
		resp.Endpoint = endpoint
	}
	return resp, resp.Validate()
}

// expiresIn prefers the raw expires_in the provider sent over the derived expiry.
func expiresIn(tok *oauth2.Token, now time.Time) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int(tok.Expiry.Sub(now).Seconds())
}
