package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

// Config holds the values needed to construct a Client
type Config struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client talks to the payment processor REST API
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
	logger      *zap.Logger
}

// NewClient creates a new payment processor client
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("payment processor access token is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("payment processor base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		http:        httpClient,
		logger:      util.GetLogger().With(zap.String("component", "payment-client")),
	}, nil
}

// CreatePreference creates a hosted checkout session
func (c *Client) CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.CreatePreference",
		attribute.String("external_reference", req.ExternalReference))
	defer span.End()

	var pref Preference
	headers := map[string]string{"X-Idempotency-Key": req.ExternalReference}
	if err := c.do(ctx, "create preference", http.MethodPost, "/checkout/preferences", req, headers, &pref); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if pref.InitPoint == "" {
		err := errors.New("payment processor returned a preference without init_point")
		util.RecordError(span, err)
		return nil, err
	}

	return &pref, nil
}

// GetPayment fetches the authoritative state of a payment
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.GetPayment",
		attribute.String("payment_id", paymentID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentLookupLatency.Observe(time.Since(start).Seconds())
	}()

	var payment Payment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, "get payment", http.MethodGet, path, nil, nil, &payment); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	return &payment, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Payment processor returned an error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
