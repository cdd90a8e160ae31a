// Package orders places ECHO orders for the granules a catalog query matches.
// Granules that cannot take the requested order option are dropped and reported.
package orders

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/lewismc/earthdata-search/cmr"
	"github.com/lewismc/earthdata-search/echo"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/rest"
	"github.com/lewismc/earthdata-search/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lewismc/earthdata-search/orders"

var ErrNoRequester = errors.New("order requires a logged in requester")

// CatalogClient resolves a catalog query to granules.
type CatalogClient interface {
	GetGranules(ctx context.Context, query url.Values, token string) ([]cmr.Granule, error)
}

// CommerceClient is the part of ECHO an order needs.
type CommerceClient interface {
	GetOrderInformation(ctx context.Context, itemIDs []string, token string) ([]echo.OrderInformationEntry, error)
	CreateOrder(ctx context.Context, token string) (string, *rest.Response, error)
	BulkSubmitItems(ctx context.Context, orderID string, items []echo.OrderItemEnvelope, token string) (*rest.Response, error)
	GetPreferences(ctx context.Context, userID, token string) (*echo.PreferencesPayload, error)
	GetUser(ctx context.Context, userID, token string) (*echo.UserResponse, error)
	PutUserInformation(ctx context.Context, orderID string, payload echo.UserInformationPayload, token string) (*rest.Response, error)
	SubmitOrder(ctx context.Context, orderID, token string) (*rest.Response, error)
}

// Request describes one order. Empty option fields mean no option was chosen.
type Request struct {
	CatalogQuery  url.Values
	OptionID      string
	OptionName    string
	OptionPayload string
	Requester     *users.Identity
	Token         string
}

type Result struct {
	OrderID            string          `json:"order_id"`
	IncludedItemCount  int             `json:"count"`
	DroppedItems       []DroppedItem   `json:"dropped_granules"`
	SubmissionResponse json.RawMessage `json:"response,omitempty"`
}

type Saga struct {
	catalog  CatalogClient
	commerce CommerceClient
	policies map[State]Policy
	tracer   trace.Tracer
	logger   zerolog.Logger
}

type SagaOption func(*Saga)

// WithPolicy sets the policy for one state.
func WithPolicy(state State, policy Policy) SagaOption {
	return func(s *Saga) {
		s.policies[state] = policy
	}
}

func WithTracer(tracer trace.Tracer) SagaOption {
	return func(s *Saga) {
		s.tracer = tracer
	}
}

func WithLogger(logger zerolog.Logger) SagaOption {
	return func(s *Saga) {
		s.logger = logger
	}
}

func NewSaga(catalog CatalogClient, commerce CommerceClient, options ...SagaOption) *Saga {
	s := &Saga{
		catalog:  catalog,
		commerce: commerce,
		policies: make(map[State]Policy),
		tracer:   otel.Tracer(tracerName),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// run holds what one saga invocation has produced so far.
type run struct {
	req       Request
	granules  []cmr.Granule
	supported map[string][]string
	included  []cmr.Granule
	dropped   []DroppedItem
	orderID   string
	content   string
	result    *rest.Response
	logger    zerolog.Logger
}

// Submit runs every step in order. There is no rollback: a failure after the
// order was created returns a *StepError naming the draft order left behind.
func (s *Saga) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.Requester == nil {
		return nil, &StepError{State: StateQueryingCatalog, Err: ErrNoRequester}
	}

	r := &run{req: req, logger: s.logger.With().Str("user_id", req.Requester.ExternalID).Logger()}
	if req.OptionPayload != "" {
		r.content = CollapseXML(req.OptionPayload)
	}

	steps := map[State]func(context.Context, *run) error{
		StateQueryingCatalog:   s.queryCatalog,
		StateFetchingOptions:   s.fetchOptions,
		StateFiltering:         s.filter,
		StateCreatingOrder:     s.createOrder,
		StateSubmittingItems:   s.submitItems,
		StateAttachingUserInfo: s.attachUserInfo,
		StateSubmitting:        s.submit,
	}

	ctx, span := s.tracer.Start(ctx, "orders.Submit")
	defer span.End()

	for _, state := range Steps {
		if err := s.step(ctx, state, r, steps[state]); err != nil {
			span.SetStatus(codes.Error, string(StateFailed))
			r.logger.Error().Err(err).Str("state", string(state)).Str("order_id", r.orderID).Msg("order saga failed")
			return nil, &StepError{State: state, OrderID: r.orderID, Err: err}
		}
	}
	span.SetAttributes(attribute.String("order.id", r.orderID))

	result := &Result{
		OrderID:           r.orderID,
		IncludedItemCount: len(r.included),
		DroppedItems:      r.dropped,
	}
	if r.result != nil {
		result.SubmissionResponse = submissionJSON(r.result.Body)
	}
	r.logger.Info().
		Str("state", string(StateDone)).
		Str("order_id", result.OrderID).
		Int("included", result.IncludedItemCount).
		Int("dropped", len(result.DroppedItems)).
		Msg("order submitted")
	return result, nil
}

func (s *Saga) step(ctx context.Context, state State, r *run, fn func(context.Context, *run) error) error {
	ctx, span := s.tracer.Start(ctx, "orders."+string(state))
	defer span.End()

	if policy, ok := s.policies[state]; ok && policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	err := fn(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.ClassifyTransport(err)
	}
	if r.orderID != "" {
		span.SetAttributes(attribute.String("order.id", r.orderID))
	}
	return nil
}

func (s *Saga) logResponse(r *run, state State, resp *rest.Response) {
	ev := r.logger.Info().Str("state", string(state)).Str("order_id", r.orderID)
	if resp != nil {
		ev = ev.Int("status", resp.Status).RawJSON("response", rawOrNull(resp.Body))
	}
	ev.Msg("order step response")
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 || !json.Valid(b) {
		return []byte("null")
	}
	return b
}

// submissionJSON embeds a JSON body as-is and any other body as a JSON string.
func submissionJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

func (s *Saga) queryCatalog(ctx context.Context, r *run) error {
	granules, err := s.catalog.GetGranules(ctx, r.req.CatalogQuery, r.req.Token)
	if err != nil {
		return err
	}
	r.granules = granules
	ids := make([]string, 0, len(granules))
	for _, g := range granules {
		ids = append(ids, g.ID)
	}
	r.logger.Debug().
		Str("state", string(StateQueryingCatalog)).
		Int("granules", len(granules)).
		Strs("granule_ids", ids).
		Msg("catalog query resolved")
	return nil
}

func (s *Saga) fetchOptions(ctx context.Context, r *run) error {
	ids := make([]string, 0, len(r.granules))
	for _, g := range r.granules {
		ids = append(ids, g.ID)
	}
	info, err := s.commerce.GetOrderInformation(ctx, ids, r.req.Token)
	if err != nil {
		return err
	}
	r.supported = SupportedOptions(info)
	r.logger.Debug().
		Str("state", string(StateFetchingOptions)).
		Int("entries", len(info)).
		Interface("supported_options", r.supported).
		Msg("order information resolved")
	return nil
}

func (s *Saga) filter(_ context.Context, r *run) error {
	r.included, r.dropped = Filter(r.granules, r.supported, r.req.OptionName)
	if len(r.dropped) > 0 {
		r.logger.Info().Int("dropped", len(r.dropped)).Str("option", r.req.OptionName).Msg("granules dropped from order")
	}
	return nil
}

func (s *Saga) createOrder(ctx context.Context, r *run) error {
	id, resp, err := s.commerce.CreateOrder(ctx, r.req.Token)
	if err != nil {
		return err
	}
	r.orderID = id
	s.logResponse(r, StateCreatingOrder, resp)
	return nil
}

func (s *Saga) submitItems(ctx context.Context, r *run) error {
	var selection *echo.OptionSelection
	if r.req.OptionID != "" {
		selection = &echo.OptionSelection{
			ID:                   r.req.OptionID,
			OptionDefinitionName: r.req.OptionName,
			Content:              r.content,
		}
	}
	items := make([]echo.OrderItemEnvelope, 0, len(r.included))
	for _, g := range r.included {
		items = append(items, echo.OrderItemEnvelope{OrderItem: echo.OrderItem{
			CatalogItemID:   g.ID,
			Quantity:        1,
			OptionSelection: selection,
		}})
	}
	resp, err := s.commerce.BulkSubmitItems(ctx, r.orderID, items, r.req.Token)
	if err != nil {
		return err
	}
	s.logResponse(r, StateSubmittingItems, resp)
	return nil
}

func (s *Saga) attachUserInfo(ctx context.Context, r *run) error {
	userID := r.req.Requester.ExternalID
	prefs, err := s.commerce.GetPreferences(ctx, userID, r.req.Token)
	if err != nil {
		return err
	}
	user, err := s.commerce.GetUser(ctx, userID, r.req.Token)
	if err != nil {
		return err
	}

	r.logger.Debug().
		Str("state", string(StateAttachingUserInfo)).
		Bool("has_contact", len(prefs.Preferences.GeneralContact) > 0).
		Str("user_domain", user.User.UserDomain).
		Str("user_region", user.User.UserRegion).
		Msg("preferences and user resolved")

	contact := prefs.Preferences.GeneralContact
	resp, err := s.commerce.PutUserInformation(ctx, r.orderID, echo.UserInformationPayload{
		UserInformation: echo.UserInformation{
			ShippingContact: contact,
			BillingContact:  contact,
			OrderContact:    contact,
			UserDomain:      user.User.UserDomain,
			UserRegion:      user.User.UserRegion,
		},
	}, r.req.Token)
	if err != nil {
		return err
	}
	s.logResponse(r, StateAttachingUserInfo, resp)
	return nil
}

func (s *Saga) submit(ctx context.Context, r *run) error {
	resp, err := s.commerce.SubmitOrder(ctx, r.orderID, r.req.Token)
	if err != nil {
		return err
	}
	r.result = resp
	s.logResponse(r, StateSubmitting, resp)
	return nil
}
