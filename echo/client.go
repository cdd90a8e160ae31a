// Package echo is a typed client for the ECHO commerce REST API: current user,
// order options, orders and the preferences an order draws contacts from.
package echo

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/rest"
	"github.com/rs/zerolog/log"
)

const (
	jsonContentType = "application/json"
	formContentType = "application/x-www-form-urlencoded"
)

type Client struct {
	rest        *rest.Client
	bulkTimeout time.Duration
}

// New builds a client for cfg.GetEchoRoot(). clientID is appended to every token header.
func New(cfg config.EchoConfig, clientID string, options ...rest.Option) *Client {
	opts := append([]rest.Option{
		rest.WithTimeout(cfg.GetUpstreamTimeout()),
		rest.WithClientID(clientID),
	}, options...)
	return &Client{
		rest:        rest.New("echo", cfg.GetEchoRoot(), opts...),
		bulkTimeout: cfg.GetBulkSubmitTimeout(),
	}
}

// GetCurrentUser returns the user the token belongs to. A response without a
// user yields a nil User.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*CurrentUserResponse, error) {
	var out CurrentUserResponse
	if _, err := c.rest.DoJSON(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/echo-rest/users/current.json",
		Token:  token,
	}, &out); err != nil {
		return nil, errors.Wrapf(err, "[echo.GetCurrentUser]")
	}
	return &out, nil
}

// GetOrderInformation fetches order options for all items in one call.
func (c *Client) GetOrderInformation(ctx context.Context, itemIDs []string, token string) ([]OrderInformationEntry, error) {
	form := url.Values{"catalog_item_id[]": itemIDs}
	var out []OrderInformationEntry
	if _, err := c.rest.DoJSON(ctx, rest.Request{
		Method:      http.MethodPost,
		Path:        "/echo-rest/order_information.json",
		Body:        strings.NewReader(form.Encode()),
		ContentType: formContentType,
		Token:       token,
	}, &out); err != nil {
		return nil, errors.Wrapf(err, "[echo.GetOrderInformation]")
	}
	return out, nil
}

// CreateOrder creates an empty draft order and returns its id.
func (c *Client) CreateOrder(ctx context.Context, token string) (string, *rest.Response, error) {
	body, err := rest.JSONBody(createOrderRequest{})
	if err != nil {
		return "", nil, err
	}
	var out CreateOrderResponse
	resp, err := c.rest.DoJSON(ctx, rest.Request{
		Method:      http.MethodPost,
		Path:        "/echo-rest/orders.json",
		Body:        body,
		ContentType: jsonContentType,
		Token:       token,
	}, &out)
	if err != nil {
		return "", resp, errors.Wrapf(err, "[echo.CreateOrder]")
	}
	if out.Order.ID == "" {
		return "", resp, errors.New("[echo.CreateOrder] response has no order id")
	}
	return out.Order.ID, resp, nil
}

// BulkSubmitItems adds items to a draft order. It runs with the bulk submit
// timeout rather than the default.
func (c *Client) BulkSubmitItems(ctx context.Context, orderID string, items []OrderItemEnvelope, token string) (*rest.Response, error) {
	body, err := rest.JSONBody(items)
	if err != nil {
		return nil, err
	}
	resp, err := c.rest.Do(ctx, rest.Request{
		Method:      http.MethodPost,
		Path:        "/echo-rest/orders/" + url.PathEscape(orderID) + "/order_items/bulk_action",
		Body:        body,
		ContentType: jsonContentType,
		Token:       token,
		Timeout:     c.bulkTimeout,
	})
	return resp, errors.Wrapf(err, "[echo.BulkSubmitItems]")
}

// GetPreferences reads a user's preferences. A user without preferences gets
// an empty record created first.
func (c *Client) GetPreferences(ctx context.Context, userID, token string) (*PreferencesPayload, error) {
	var out PreferencesPayload
	_, err := c.rest.DoJSON(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/echo-rest/users/" + url.PathEscape(userID) + "/preferences.json",
		Token:  token,
	}, &out)
	if errors.Is(err, errors.ErrNotFound) {
		log.Info().Str("user_id", userID).Msg("no echo preferences, creating empty record")
		resp, err := c.UpdatePreferences(ctx, userID, PreferencesPayload{}, token)
		if err != nil {
			return nil, errors.Wrapf(err, "[echo.GetPreferences] create")
		}
		if err := resp.Decode(&out); err != nil {
			return nil, errors.Wrapf(err, "[echo.GetPreferences] decode created")
		}
		return &out, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[echo.GetPreferences]")
	}
	return &out, nil
}

func (c *Client) UpdatePreferences(ctx context.Context, userID string, payload PreferencesPayload, token string) (*rest.Response, error) {
	body, err := rest.JSONBody(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.rest.Do(ctx, rest.Request{
		Method:      http.MethodPut,
		Path:        "/echo-rest/users/" + url.PathEscape(userID) + "/preferences.json",
		Body:        body,
		ContentType: jsonContentType,
		Token:       token,
	})
	return resp, errors.Wrapf(err, "[echo.UpdatePreferences]")
}

func (c *Client) GetUser(ctx context.Context, userID, token string) (*UserResponse, error) {
	var out UserResponse
	if _, err := c.rest.DoJSON(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/echo-rest/users/" + url.PathEscape(userID),
		Token:  token,
	}, &out); err != nil {
		return nil, errors.Wrapf(err, "[echo.GetUser]")
	}
	return &out, nil
}

func (c *Client) PutUserInformation(ctx context.Context, orderID string, payload UserInformationPayload, token string) (*rest.Response, error) {
	body, err := rest.JSONBody(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.rest.Do(ctx, rest.Request{
		Method:      http.MethodPut,
		Path:        "/echo-rest/orders/" + url.PathEscape(orderID) + "/user_information",
		Body:        body,
		ContentType: jsonContentType,
		Token:       token,
	})
	return resp, errors.Wrapf(err, "[echo.PutUserInformation]")
}

// SubmitOrder moves a draft order into processing.
func (c *Client) SubmitOrder(ctx context.Context, orderID, token string) (*rest.Response, error) {
	resp, err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/echo-rest/orders/" + url.PathEscape(orderID) + "/submit",
		Token:  token,
	})
	return resp, errors.Wrapf(err, "[echo.SubmitOrder]")
}
