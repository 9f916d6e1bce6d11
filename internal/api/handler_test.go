package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*service.CheckoutResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockWebhook struct{ mock.Mock }

func (m *mockWebhook) HandleNotification(ctx context.Context, n *models.PaymentNotification) (service.WebhookOutcome, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(service.WebhookOutcome), args.Error(1)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) ListOrders(ctx context.Context, req *service.ListOrdersRequest) (*service.ListOrdersResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*service.ListOrdersResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if o, ok := args.Get(0).(*models.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) UpdateOrderStatus(ctx context.Context, id, status string) (*models.Order, error) {
	args := m.Called(ctx, id, status)
	if o, ok := args.Get(0).(*models.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) DeleteOrder(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockCustomers struct{ mock.Mock }

func (m *mockCustomers) ResolveCustomer(ctx context.Context, req *service.ResolveCustomerRequest) (*models.Customer, bool, error) {
	args := m.Called(ctx, req)
	if c, ok := args.Get(0).(*models.Customer); ok {
		return c, args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

type mockStock struct{ mock.Mock }

func (m *mockStock) GetAvailable(ctx context.Context, variantID string) (int, error) {
	args := m.Called(ctx, variantID)
	return args.Int(0), args.Error(1)
}

func (m *mockStock) GetVariantStock(ctx context.Context, variantID string) (*service.VariantStock, error) {
	args := m.Called(ctx, variantID)
	if s, ok := args.Get(0).(*service.VariantStock); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type testServer struct {
	router    *gin.Engine
	checkout  *mockCheckout
	webhook   *mockWebhook
	orders    *mockOrders
	customers *mockCustomers
	stock     *mockStock
}

func newTestServer(apiKey string, ready func(context.Context) error) *testServer {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())

	ts := &testServer{
		router:    gin.New(),
		checkout:  &mockCheckout{},
		webhook:   &mockWebhook{},
		orders:    &mockOrders{},
		customers: &mockCustomers{},
		stock:     &mockStock{},
	}

	h := NewHandler(Services{
		Checkout:  ts.checkout,
		Webhook:   ts.webhook,
		Orders:    ts.orders,
		Customers: ts.customers,
		Stock:     ts.stock,
	}, apiKey, ready)
	h.SetupRoutes(ts.router)

	return ts
}

func (ts *testServer) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCheckoutReturnsInitPoint(t *testing.T) {
	ts := newTestServer("", nil)
	ts.checkout.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req *service.CheckoutRequest) bool {
		return req.CustomerID == "cust-1" && len(req.Cart) == 1 && req.Cart[0].Price.String() == "19.99"
	})).Return(&service.CheckoutResponse{OrderID: "o-1", InitPoint: "https://pay.example/o-1"}, nil)

	w := ts.do(http.MethodPost, "/api/checkout",
		`{"cart":[{"id":"var-a","name":"Shirt","price":19.99,"quantity":1}],"customerId":"cust-1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"init_point": "https://pay.example/o-1"}, decode(t, w))
	ts.checkout.AssertExpectations(t)
}

func TestCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", models.NewValidationError("cart is empty"), http.StatusBadRequest, "cart is empty"},
		{"upstream", errors.New("failed to create payment session"), http.StatusInternalServerError, "failed to create payment session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer("", nil)
			ts.checkout.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := ts.do(http.MethodPost, "/api/checkout", `{"cart":[],"customerId":"abc"}`, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.msg, decode(t, w)["error"])
		})
	}
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	ts := newTestServer("", nil)

	w := ts.do(http.MethodPost, "/api/checkout", `{"cart":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ts.checkout.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		outcome service.WebhookOutcome
		err     error
		panics  bool
	}{
		{name: "processed", body: `{"type":"payment","action":"payment.updated","data":{"id":"1"}}`, outcome: service.OutcomePaid},
		{name: "lookup failure", body: `{"type":"payment","action":"payment.updated","data":{"id":"1"}}`, outcome: service.OutcomeLookupFailed, err: errors.New("timeout")},
		{name: "panic", body: `{"type":"payment","action":"payment.updated","data":{"id":"1"}}`, panics: true},
		{name: "malformed", body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer("", nil)
			call := ts.webhook.On("HandleNotification", mock.Anything, mock.Anything)
			if tt.panics {
				call.Run(func(mock.Arguments) { panic("boom") })
			} else {
				call.Return(tt.outcome, tt.err)
			}

			w := ts.do(http.MethodPost, "/api/webhook", tt.body, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, map[string]interface{}{"received": true}, decode(t, w))
		})
	}
}

func TestWebhookPassesNotificationThrough(t *testing.T) {
	ts := newTestServer("", nil)
	ts.webhook.On("HandleNotification", mock.Anything, &models.PaymentNotification{
		Type:   "payment",
		Action: "payment.created",
		Data:   models.PaymentNotificationData{ID: "123"},
	}).Return(service.OutcomePaid, nil)

	w := ts.do(http.MethodPost, "/api/webhook", `{"type":"payment","action":"payment.created","data":{"id":"123"}}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ts.webhook.AssertExpectations(t)
}

func TestResolveCustomerStatus(t *testing.T) {
	ts := newTestServer("", nil)
	ts.customers.On("ResolveCustomer", mock.Anything, mock.MatchedBy(func(r *service.ResolveCustomerRequest) bool {
		return r.Email == "new@example.com"
	})).Return(&models.Customer{ID: "c-new", Email: "new@example.com"}, true, nil)
	ts.customers.On("ResolveCustomer", mock.Anything, mock.Anything).
		Return(&models.Customer{ID: "c-old", Email: "old@example.com"}, false, nil)

	w := ts.do(http.MethodPost, "/api/customers", `{"name":"N","email":"new@example.com"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(http.MethodPost, "/api/customers", `{"email":"old@example.com"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-old", decode(t, w)["id"])
}

func TestBackofficeRequiresAPIKey(t *testing.T) {
	ts := newTestServer("secret-key", nil)
	ts.orders.On("GetOrder", mock.Anything, "o-1").Return(&models.Order{ID: "o-1"}, nil)

	w := ts.do(http.MethodGet, "/api/v1/orders/o-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/orders/o-1", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/orders/o-1", "", map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListOrdersBindsQuery(t *testing.T) {
	ts := newTestServer("", nil)
	ts.orders.On("ListOrders", mock.Anything, &service.ListOrdersRequest{Page: 2, Limit: 5, Search: "ana", Status: "PAID"}).
		Return(&service.ListOrdersResponse{Orders: []models.Order{}, Total: 6, Page: 2, Limit: 5}, nil)

	w := ts.do(http.MethodGet, "/api/v1/orders?page=2&limit=5&search=ana&status=PAID", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, decode(t, w)["total"])
}

func TestOrderErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: CANCELLED -> PAID", models.ErrInvalidTransition), http.StatusConflict},
		{models.NewValidationError(`unknown order status "X"`), http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		ts := newTestServer("", nil)
		ts.orders.On("UpdateOrderStatus", mock.Anything, "o-1", "PAID").Return(nil, tt.err)

		w := ts.do(http.MethodPatch, "/api/v1/orders/o-1/status", `{"status":"PAID"}`, nil)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	ts := newTestServer("", nil)

	w := ts.do(http.MethodPatch, "/api/v1/orders/o-1/status", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	ts := newTestServer("", nil)
	ts.orders.On("DeleteOrder", mock.Anything, "o-1").Return(nil)
	ts.orders.On("DeleteOrder", mock.Anything, "o-2").Return(models.ErrOrderNotFound)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/v1/orders/o-1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/api/v1/orders/o-2", "", nil).Code)
}

func TestGetStock(t *testing.T) {
	ts := newTestServer("", nil)
	ts.stock.On("GetVariantStock", mock.Anything, "var-a").Return(&service.VariantStock{
		VariantID:  "var-a",
		Total:      9,
		Warehouses: []models.Stock{{VariantID: "var-a", WarehouseID: "w1", Quantity: 9}},
	}, nil)
	ts.stock.On("GetAvailable", mock.Anything, "var-a").Return(8, nil)

	w := ts.do(http.MethodGet, "/api/v1/stock/var-a", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 9, body["total"])
	assert.EqualValues(t, 8, body["available"])
}

func TestReadiness(t *testing.T) {
	ts := newTestServer("", func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/ready", "", nil).Code)

	ts = newTestServer("", func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/ready", "", nil).Code)
}
