package orders_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lewismc/earthdata-search/cmr"
	"github.com/lewismc/earthdata-search/echo"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/rest"
	"github.com/lewismc/earthdata-search/internal/utils"
	"github.com/lewismc/earthdata-search/orders"
	"github.com/lewismc/earthdata-search/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var requester = &users.Identity{ExternalID: "ECHO-USER-1", InternalID: "u1"}

type fakeCatalog struct {
	granules []cmr.Granule
	err      error
}

func (f *fakeCatalog) GetGranules(ctx context.Context, query url.Values, token string) ([]cmr.Granule, error) {
	return f.granules, f.err
}

type fakeCommerce struct {
	mu       sync.Mutex
	calls    []string
	info     []echo.OrderInformationEntry
	items    []echo.OrderItemEnvelope
	userInfo *echo.UserInformationPayload
	failAt   string
	failErr  error
	block    string
	// submitBody replaces the default JSON submit response when set.
	submitBody []byte
}

func (f *fakeCommerce) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return f.failErr
	}
	return nil
}

func (f *fakeCommerce) GetOrderInformation(ctx context.Context, itemIDs []string, token string) ([]echo.OrderInformationEntry, error) {
	if err := f.record("order_information"); err != nil {
		return nil, err
	}
	return f.info, nil
}

func (f *fakeCommerce) CreateOrder(ctx context.Context, token string) (string, *rest.Response, error) {
	if err := f.record("create_order"); err != nil {
		return "", nil, err
	}
	return "ORDER-1", &rest.Response{Status: 201, Body: []byte(`{"order":{"id":"ORDER-1"}}`)}, nil
}

func (f *fakeCommerce) BulkSubmitItems(ctx context.Context, orderID string, items []echo.OrderItemEnvelope, token string) (*rest.Response, error) {
	if f.block == "bulk" {
		<-ctx.Done()
		return nil, errors.ClassifyTransport(ctx.Err())
	}
	if err := f.record("bulk_submit"); err != nil {
		return nil, err
	}
	f.items = items
	return &rest.Response{Status: 200}, nil
}

func (f *fakeCommerce) GetPreferences(ctx context.Context, userID, token string) (*echo.PreferencesPayload, error) {
	if err := f.record("preferences"); err != nil {
		return nil, err
	}
	return &echo.PreferencesPayload{Preferences: echo.Preferences{GeneralContact: json.RawMessage(`{"email":"jane@example.com"}`)}}, nil
}

func (f *fakeCommerce) GetUser(ctx context.Context, userID, token string) (*echo.UserResponse, error) {
	if err := f.record("user"); err != nil {
		return nil, err
	}
	return &echo.UserResponse{User: echo.User{ID: userID, UserDomain: "UNIVERSITY", UserRegion: "USA"}}, nil
}

func (f *fakeCommerce) PutUserInformation(ctx context.Context, orderID string, payload echo.UserInformationPayload, token string) (*rest.Response, error) {
	if err := f.record("user_information"); err != nil {
		return nil, err
	}
	f.userInfo = &payload
	return &rest.Response{Status: 200}, nil
}

func (f *fakeCommerce) SubmitOrder(ctx context.Context, orderID, token string) (*rest.Response, error) {
	if err := f.record("submit"); err != nil {
		return nil, err
	}
	if f.submitBody != nil {
		return &rest.Response{Status: 200, Body: f.submitBody}, nil
	}
	return &rest.Response{Status: 200, Body: []byte(`{"order":{"id":"ORDER-1","state":"SUBMITTING"}}`)}, nil
}

var allCalls = []string{"order_information", "create_order", "bulk_submit", "preferences", "user", "user_information", "submit"}

func twoGranules() *fakeCatalog {
	return &fakeCatalog{granules: []cmr.Granule{
		{ID: "1", ProducerGranuleID: utils.Ptr("P1")},
		{ID: "2", Title: utils.Ptr("Granule two")},
	}}
}

func TestSubmitFiltersAndSubmits(t *testing.T) {
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1", "X"), orderInfo("2", "Y")}}
	saga := orders.NewSaga(twoGranules(), commerce)

	result, err := saga.Submit(context.Background(), orders.Request{
		CatalogQuery:  url.Values{"echo_collection_id": {"C1-PROV"}},
		OptionID:      "OPT-1",
		OptionName:    "X",
		OptionPayload: "  <form>\n  <field>1</field>\n</form>\n",
		Requester:     requester,
		Token:         "tok",
	})
	require.NoError(t, err)
	require.Equal(t, "ORDER-1", result.OrderID)
	require.Equal(t, 1, result.IncludedItemCount)
	require.Equal(t, []orders.DroppedItem{{ID: "2", Name: "Granule two"}}, result.DroppedItems)
	require.JSONEq(t, `{"order":{"id":"ORDER-1","state":"SUBMITTING"}}`, string(result.SubmissionResponse))
	require.Equal(t, allCalls, commerce.calls)

	require.Len(t, commerce.items, 1)
	item := commerce.items[0].OrderItem
	require.Equal(t, "1", item.CatalogItemID)
	require.Equal(t, 1, item.Quantity)
	require.Equal(t, &echo.OptionSelection{
		ID:                   "OPT-1",
		OptionDefinitionName: "X",
		Content:              "<form><field>1</field></form>",
	}, item.OptionSelection)

	info := commerce.userInfo.UserInformation
	require.JSONEq(t, `{"email":"jane@example.com"}`, string(info.ShippingContact))
	require.Equal(t, info.ShippingContact, info.BillingContact)
	require.Equal(t, info.ShippingContact, info.OrderContact)
	require.Equal(t, "UNIVERSITY", info.UserDomain)
	require.Equal(t, "USA", info.UserRegion)
}

func TestSubmitPlainTextResponseIsQuoted(t *testing.T) {
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1"), orderInfo("2")}, submitBody: []byte("OK")}
	saga := orders.NewSaga(twoGranules(), commerce)

	result, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"OK"`), result.SubmissionResponse)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"response":"OK"`)
}

func TestSubmitLogsUpstreamSummaries(t *testing.T) {
	var buf bytes.Buffer
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1", "X"), orderInfo("2")}}
	saga := orders.NewSaga(twoGranules(), commerce, orders.WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	_, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	require.NoError(t, err)

	logged := make(map[string]map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if msg, ok := entry["message"].(string); ok {
			logged[msg] = entry
		}
	}

	catalog := logged["catalog query resolved"]
	require.NotNil(t, catalog)
	require.Equal(t, []any{"1", "2"}, catalog["granule_ids"])

	info := logged["order information resolved"]
	require.NotNil(t, info)
	require.EqualValues(t, 2, info["entries"])

	user := logged["preferences and user resolved"]
	require.NotNil(t, user)
	require.Equal(t, true, user["has_contact"])
	require.Equal(t, "UNIVERSITY", user["user_domain"])
	require.Equal(t, "USA", user["user_region"])
}

func TestSubmitWithoutOptionAttachesNoSelection(t *testing.T) {
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1", "X"), orderInfo("2")}}
	saga := orders.NewSaga(twoGranules(), commerce)

	result, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok", OptionPayload: "<a> </a>"})
	require.NoError(t, err)
	require.Equal(t, 2, result.IncludedItemCount)
	require.Empty(t, result.DroppedItems)
	for _, item := range commerce.items {
		require.Nil(t, item.OrderItem.OptionSelection)
	}
}

func TestSubmitCreatesOrderEvenWhenEverythingIsDropped(t *testing.T) {
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1"), orderInfo("2")}}
	saga := orders.NewSaga(twoGranules(), commerce)

	result, err := saga.Submit(context.Background(), orders.Request{OptionID: "OPT", OptionName: "X", Requester: requester, Token: "tok"})
	require.NoError(t, err)
	require.Equal(t, "ORDER-1", result.OrderID)
	require.Zero(t, result.IncludedItemCount)
	require.Len(t, result.DroppedItems, 2)
	require.Empty(t, commerce.items)
	require.Equal(t, allCalls, commerce.calls)
}

func TestSubmitFailureBeforeOrderCreation(t *testing.T) {
	boom := &errors.UpstreamRejectedError{Service: "cmr", Status: 400, Body: []byte(`{"errors":["bad"]}`)}
	commerce := &fakeCommerce{}
	saga := orders.NewSaga(&fakeCatalog{err: boom}, commerce)

	_, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	var stepErr *orders.StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, orders.StateQueryingCatalog, stepErr.State)
	require.Empty(t, stepErr.OrderID)

	var rejected *errors.UpstreamRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, 400, rejected.Status)
	require.Empty(t, commerce.calls)
}

func TestSubmitFailureAfterOrderCreationLeavesDraft(t *testing.T) {
	boom := &errors.UpstreamRejectedError{Service: "echo", Status: 500}
	commerce := &fakeCommerce{
		info:    []echo.OrderInformationEntry{orderInfo("1"), orderInfo("2")},
		failAt:  "user_information",
		failErr: boom,
	}
	saga := orders.NewSaga(twoGranules(), commerce)

	_, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	var stepErr *orders.StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, orders.StateAttachingUserInfo, stepErr.State)
	require.Equal(t, "ORDER-1", stepErr.OrderID)
	require.ErrorIs(t, err, boom)
	require.NotContains(t, commerce.calls, "submit")
}

func TestSubmitStepTimeoutPolicy(t *testing.T) {
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1"), orderInfo("2")}, block: "bulk"}
	saga := orders.NewSaga(twoGranules(), commerce,
		orders.WithPolicy(orders.StateSubmittingItems, orders.Policy{Timeout: 20 * time.Millisecond}))

	_, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	var stepErr *orders.StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, orders.StateSubmittingItems, stepErr.State)
	require.True(t, errors.IsTimeout(err))
}

func TestSubmitRequiresRequester(t *testing.T) {
	saga := orders.NewSaga(twoGranules(), &fakeCommerce{})
	_, err := saga.Submit(context.Background(), orders.Request{Token: "tok"})
	require.ErrorIs(t, err, orders.ErrNoRequester)
}

func TestSubmitTracesEveryState(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	commerce := &fakeCommerce{info: []echo.OrderInformationEntry{orderInfo("1"), orderInfo("2")}}
	saga := orders.NewSaga(twoGranules(), commerce, orders.WithTracer(tp.Tracer("test")))

	_, err := saga.Submit(context.Background(), orders.Request{Requester: requester, Token: "tok"})
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	for _, state := range orders.Steps {
		require.Contains(t, names, "orders."+string(state))
	}
	require.Contains(t, names, "orders.Submit")
}
