package sms_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/adapters/sms"
	"github.com/ajayykmr/billing-notifier/internal/api"
	"github.com/ajayykmr/billing-notifier/internal/models"
	smsprovider "github.com/ajayykmr/billing-notifier/internal/providers/sms"
)

type captured struct {
	path string
	auth string
	body string
}

func newHTTPAdapter(t *testing.T, status int, respBody string, got *captured) *sms.Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.body = string(raw)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL, zerolog.Nop())
	require.NoError(t, err)
	provider, err := smsprovider.NewHTTPProvider(client, zerolog.Nop())
	require.NoError(t, err)
	adapter, err := sms.NewAdapter(provider, zerolog.Nop())
	require.NoError(t, err)
	return adapter
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name     string
		req      models.DispatchRequest
		wantPath string
		wantBody any
	}{
		{"all", models.DispatchRequest{Segment: models.All(), Message: "hi"}, sms.EndpointAll, map[string]string{"message": "hi"}},
		{"unpaid", models.DispatchRequest{Segment: models.Unpaid(), Message: "Pay now"}, sms.EndpointUnpaid, map[string]string{"message": "Pay now"}},
		{"unpaid without message", models.DispatchRequest{Segment: models.Unpaid()}, sms.EndpointUnpaid, nil},
		{"low balance", models.DispatchRequest{Segment: models.LowBalance()}, sms.EndpointLowBalance, nil},
		{"high balance", models.DispatchRequest{Segment: models.HighBalance(), Message: "x"}, sms.EndpointHighBalance, map[string]string{"message": "x"}},
		{"day group", models.DispatchRequest{Segment: models.DayGroup(models.Monday), Message: "Reminder"}, sms.EndpointGroup, map[string]string{"day": "MONDAY", "message": "Reminder"}},
		{"day customer", models.DispatchRequest{Segment: models.DayCustomer(models.Friday, "0712"), Message: "Hi"}, sms.EndpointCustomer, map[string]string{"mobile": "0712", "message": "Hi"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, body, err := sms.Route(tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPath, path)
			assert.Equal(t, tc.wantBody, body)
		})
	}
}

func TestRouteValidation(t *testing.T) {
	for _, req := range []models.DispatchRequest{
		{Segment: models.All(), Message: "  "},
		{Segment: models.DayGroup(models.Monday)},
		{Segment: models.Segment{Kind: models.SegmentDay}, Message: "x"},
		{Segment: models.Segment{Kind: "vip"}, Message: "x"},
	} {
		_, _, err := sms.Route(req)
		assert.True(t, errors.Is(err, common.ErrValidation), "segment %s", req.Segment)
	}
}

func TestSendGroupServerError(t *testing.T) {
	var got captured
	adapter := newHTTPAdapter(t, http.StatusInternalServerError, `{"message":"gateway down"}`, &got)

	receipt, err := adapter.Send(context.Background(), &common.Envelope{
		DispatchID: "d-1",
		Request:    models.DispatchRequest{Segment: models.DayGroup(models.Monday), Message: "Reminder"},
		Token:      "tok",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrServer))
	assert.Equal(t, "/send-to-group", got.path)
	assert.JSONEq(t, `{"day":"MONDAY","message":"Reminder"}`, got.body)
	assert.Equal(t, "Bearer tok", got.auth)
	require.NotNil(t, receipt)
	assert.Equal(t, http.StatusInternalServerError, receipt.StatusCode)
}

func TestSendSuccessBuildsReceipt(t *testing.T) {
	var got captured
	adapter := newHTTPAdapter(t, http.StatusOK, `{"message":"Messages queued"}`, &got)

	receipt, err := adapter.Send(context.Background(), &common.Envelope{
		DispatchID: "d-2",
		Request:    models.DispatchRequest{Segment: models.Unpaid()},
	})
	require.NoError(t, err)
	assert.Equal(t, "/send-sms-unpaid", got.path)
	assert.Empty(t, got.body)
	assert.Empty(t, got.auth)
	assert.Equal(t, "d-2", receipt.DispatchID)
	assert.Equal(t, "unpaid", receipt.Segment)
	assert.Equal(t, "Messages queued", receipt.Message)
	assert.Equal(t, http.StatusOK, receipt.StatusCode)
}

func TestSendValidationMakesNoCall(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop())
	adapter, err := sms.NewAdapter(provider, zerolog.Nop())
	require.NoError(t, err)

	_, err = adapter.Send(context.Background(), &common.Envelope{
		Request: models.DispatchRequest{Segment: models.All()},
	})
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Empty(t, provider.Calls())
}

func TestSendClassifiesMockFailures(t *testing.T) {
	tests := []struct {
		scenario     smsprovider.Scenario
		want         error
		unauthorized bool
	}{
		{smsprovider.ScenarioServerError, common.ErrServer, false},
		{smsprovider.ScenarioUnauthorized, common.ErrServer, true},
		{smsprovider.ScenarioNetwork, common.ErrNetwork, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.scenario), func(t *testing.T) {
			provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithScenario(tc.scenario))
			adapter, err := sms.NewAdapter(provider, zerolog.Nop())
			require.NoError(t, err)

			_, err = adapter.Send(context.Background(), &common.Envelope{
				Request: models.DispatchRequest{Segment: models.All(), Message: "hi"},
			})
			assert.True(t, errors.Is(err, tc.want))
			assert.Equal(t, tc.unauthorized, common.IsUnauthorized(err))
			assert.Len(t, provider.Calls(), 1)
		})
	}
}

func TestNewAdapterRequiresProvider(t *testing.T) {
	_, err := sms.NewAdapter(nil, zerolog.Nop())
	assert.Error(t, err)
}
