package paymentclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/util"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{AccessToken: "TEST-TOKEN", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestCreatePreference(t *testing.T) {
	var got PreferenceRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer TEST-TOKEN", r.Header.Get("Authorization"))
		assert.Equal(t, "order-1", r.Header.Get("X-Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://pay.example/checkout?pref=pref-1"}`))
	})

	pref, err := client.CreatePreference(context.Background(), &PreferenceRequest{
		Items: []PreferenceItem{
			{ID: "var-a", Title: "Mate", Quantity: 2, UnitPrice: 100},
		},
		BackURLs:          BackURLs{Success: "s", Failure: "f", Pending: "p"},
		ExternalReference: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/checkout?pref=pref-1", pref.InitPoint)
	assert.Equal(t, "order-1", got.ExternalReference)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestCreatePreferenceWithoutInitPoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pref-1"}`))
	})

	_, err := client.CreatePreference(context.Background(), &PreferenceRequest{ExternalReference: "order-1"})
	assert.Error(t, err)
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/123456", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":123456,"status":"approved","status_detail":"accredited","external_reference":"order-9","transaction_amount":250.5}`))
	})

	before := lookupSamples(t)
	payment, err := client.GetPayment(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, before+1, lookupSamples(t))
	assert.Equal(t, int64(123456), payment.ID)
	assert.Equal(t, "approved", payment.Status)
	assert.Equal(t, "order-9", payment.ExternalReference)
	assert.True(t, decimal.RequireFromString("250.5").Equal(payment.TransactionAmount))
}

func TestGetPaymentNonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Payment not found"}`))
	})

	_, err := client.GetPayment(context.Background(), "999")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Payment not found")
}

func lookupSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, util.PaymentLookupLatency.Write(&m))
	return m.GetHistogram().GetSampleCount()
}
