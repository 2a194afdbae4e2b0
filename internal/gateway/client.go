// Package gateway is the HTTP client for the hosted payment provider. It
// creates, cancels and retrieves payment intents and verifies webhook
// payload signatures. The provider renders the PromptPay QR payload; this
// package only carries it through.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	IntentStatusPending   = "pending"
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

// ErrUpstream wraps every unexpected gateway response.
var ErrUpstream = errors.New("gateway error")

// APIError is a structured 4xx from the gateway.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
}

const (
	CodeIntentNotFound      = "intent_not_found"
	CodeIntentNotCancelable = "intent_not_cancelable"
)

type Intent struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Email     string            `json:"email,omitempty"`
	QRPayload string            `json:"qr_payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type CreateIntentParams struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Email       string            `json:"email,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	return c.do(ctx, http.MethodPost, "/v1/payment_intents", params)
}

func (c *Client) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	return c.do(ctx, http.MethodPost, "/v1/payment_intents/"+id+"/cancel", nil)
}

func (c *Client) GetIntent(ctx context.Context, id string) (*Intent, error) {
	return c.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*Intent, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.Error.Code == "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, data)
		}
		wrapper.Error.HTTPStatus = resp.StatusCode
		return nil, &wrapper.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, data)
	}

	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("%w: response missing intent id", ErrUpstream)
	}
	return &intent, nil
}
