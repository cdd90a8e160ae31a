// Package cmr searches the Common Metadata Repository for granules.
package cmr

import (
	"context"
	"net/http"
	"net/url"

	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/rest"
	"github.com/lewismc/earthdata-search/internal/utils"
)

type Granule struct {
	ID                string  `json:"id"`
	ProducerGranuleID *string `json:"producer_granule_id,omitempty"`
	Title             *string `json:"title,omitempty"`
}

// DisplayName is the producer granule id, or the title when there is none.
func (g Granule) DisplayName() string {
	if g.ProducerGranuleID != nil {
		return *g.ProducerGranuleID
	}
	return utils.Value(g.Title)
}

type granuleFeed struct {
	Feed struct {
		Entry []Granule `json:"entry"`
	} `json:"feed"`
}

type Client struct {
	rest *rest.Client
}

func New(cfg config.EchoConfig, clientID string, options ...rest.Option) *Client {
	opts := append([]rest.Option{
		rest.WithTimeout(cfg.GetUpstreamTimeout()),
		rest.WithClientID(clientID),
	}, options...)
	return &Client{rest: rest.New("cmr", cfg.GetCMRRoot(), opts...)}
}

// GetGranules runs a granule search. The query is passed through as given.
func (c *Client) GetGranules(ctx context.Context, query url.Values, token string) ([]Granule, error) {
	var out granuleFeed
	if _, err := c.rest.DoJSON(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/search/granules.json",
		Query:  query,
		Token:  token,
	}, &out); err != nil {
		return nil, errors.Wrapf(err, "[cmr.GetGranules]")
	}
	return out.Feed.Entry, nil
}
