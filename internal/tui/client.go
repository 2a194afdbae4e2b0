package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sea021/promptshop-go/internal/domain"
)

// Client talks to the storefront API over HTTP and satisfies API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	var out struct {
		Data []domain.Product `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreateIntent(ctx context.Context, productID string, quantity int64, email string) (*IntentSession, error) {
	body := map[string]any{"product_id": productID, "quantity": quantity, "email": email}
	var session IntentSession
	if err := c.do(ctx, http.MethodPost, "/api/checkout", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) PaymentStatus(ctx context.Context, intentID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := "/api/payment-status?id=" + url.QueryEscape(intentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) CancelPayment(ctx context.Context, intentID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/cancel-payment", map[string]any{"id": intentID}, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
