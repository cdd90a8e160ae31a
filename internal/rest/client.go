// Package rest is the JSON-over-HTTP core shared by the ECHO and CMR clients.
// Each call gets its own timeout, and failures come back as typed errors.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const TokenHeader = "Echo-Token"

type Client struct {
	service    string
	root       string
	clientID   string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientID appends ":<id>" to the token header so upstream can attribute calls.
func WithClientID(id string) Option {
	return func(c *Client) {
		c.clientID = id
	}
}

func New(service, root string, options ...Option) *Client {
	c := &Client{
		service:    service,
		root:       strings.TrimSuffix(root, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    60 * time.Second,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Request is one upstream call. A zero Timeout uses the client default.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
	Token       string
	Timeout     time.Duration
}

// JSONBody encodes v as a request body.
func JSONBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// Response is the raw upstream answer. It is kept so callers can log it.
type Response struct {
	Status int
	Body   []byte
}

func (r *Response) Decode(out any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Do performs req. Non-2xx answers become *errors.UpstreamRejectedError and
// timeouts wrap errors.ErrUpstreamTimeout.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.root + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, req.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "[%s.Do] build %s %s", c.service, req.Method, req.Path)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Token != "" {
		httpReq.Header.Set(TokenHeader, c.tokenHeader(req.Token))
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(errors.ClassifyTransport(err), "[%s.Do] %s %s", c.service, req.Method, req.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ClassifyTransport(err), "[%s.Do] read %s %s", c.service, req.Method, req.Path)
	}

	log.Debug().
		Str("service", c.service).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.UpstreamRejectedError{
			Service:     c.service,
			Method:      req.Method,
			Path:        req.Path,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}

// DoJSON performs req and decodes a successful body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		return resp, errors.Wrapf(err, "[%s.DoJSON] decode %s %s", c.service, req.Method, req.Path)
	}
	return resp, nil
}

func (c *Client) tokenHeader(token string) string {
	if c.clientID == "" {
		return token
	}
	return token + ":" + c.clientID
}
