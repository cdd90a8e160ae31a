package rest_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/rest"
	"github.com/stretchr/testify/require"
)

func TestDoSendsTokenAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/things.json", r.URL.Path)
		require.Equal(t, "b", r.URL.Query().Get("a"))
		require.Equal(t, "tok:client", r.Header.Get(rest.TokenHeader))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"x":1}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := rest.New("test", srv.URL+"/", rest.WithHTTPClient(srv.Client()), rest.WithClientID("client"))
	body, err := rest.JSONBody(map[string]int{"x": 1})
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := c.DoJSON(context.Background(), rest.Request{
		Method:      http.MethodPost,
		Path:        "/things.json",
		Query:       url.Values{"a": {"b"}},
		Body:        body,
		ContentType: "application/json",
		Token:       "tok",
	}, &out)
	require.NoError(t, err)
	require.True(t, out.OK)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestDoWithoutClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok", r.Header.Get(rest.TokenHeader))
	}))
	defer srv.Close()

	c := rest.New("test", srv.URL, rest.WithHTTPClient(srv.Client()))
	_, err := c.Do(context.Background(), rest.Request{Method: http.MethodGet, Path: "/", Token: "tok"})
	require.NoError(t, err)
}

func TestDoRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":["missing"]}`))
	}))
	defer srv.Close()

	c := rest.New("echo", srv.URL, rest.WithHTTPClient(srv.Client()))
	_, err := c.Do(context.Background(), rest.Request{Method: http.MethodGet, Path: "/missing"})

	var rejected *errors.UpstreamRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, http.StatusNotFound, rejected.Status)
	require.Equal(t, "echo", rejected.Service)
	require.JSONEq(t, `{"errors":["missing"]}`, string(rejected.Body))
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestDoPerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := rest.New("echo", srv.URL, rest.WithHTTPClient(srv.Client()), rest.WithTimeout(time.Hour))
	_, err := c.Do(context.Background(), rest.Request{Method: http.MethodGet, Path: "/slow", Timeout: 30 * time.Millisecond})
	require.True(t, errors.IsTimeout(err))
}
