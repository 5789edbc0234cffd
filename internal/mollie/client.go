package mollie

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

	"github.com/sandeepkv93/paygw-mollie/internal/observability"
)

const (
	DefaultBaseURL   = "https://api.mollie.com/v2"
	maxResponseBytes = 1 << 20
)

var ErrMissingAPIKey = errors.New("mollie api key not set")

// Client talks to the payments API. The API key is passed per call because the key
// class (live or test) belongs to the transaction, not to the client.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "paygw-mollie-go",
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreatePayment(ctx context.Context, apiKey string, req CreatePaymentRequest) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, apiKey, http.MethodPost, "/payments", req, &payment); err != nil {
		observability.RecordRemoteCall(ctx, "create_payment", "error")
		return nil, err
	}
	observability.RecordRemoteCall(ctx, "create_payment", "success")
	return &payment, nil
}

func (c *Client) GetPayment(ctx context.Context, apiKey, id string) (*Payment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("get payment: empty payment id")
	}
	var payment Payment
	if err := c.do(ctx, apiKey, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &payment); err != nil {
		observability.RecordRemoteCall(ctx, "get_payment", "error")
		return nil, err
	}
	observability.RecordRemoteCall(ctx, "get_payment", "success")
	return &payment, nil
}

func (c *Client) ListActiveMethods(ctx context.Context, apiKey string) ([]Method, error) {
	var list methodList
	if err := c.do(ctx, apiKey, http.MethodGet, "/methods", nil, &list); err != nil {
		observability.RecordRemoteCall(ctx, "list_methods", "error")
		return nil, err
	}
	observability.RecordRemoteCall(ctx, "list_methods", "success")
	return list.Embedded.Methods, nil
}

func (c *Client) do(ctx context.Context, apiKey, method, path string, in, out any) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrMissingAPIKey
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/hal+json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
