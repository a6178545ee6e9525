package payment

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

// OrderRequest asks the gateway to open an order. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// GatewayOrder is the gateway's view of an opened order.
type GatewayOrder struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"-"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	// KeyID is the public key the client checkout widget is opened with.
	KeyID() string
}

// RazorpayClient talks to a Razorpay-compatible orders API.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

type gatewayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, in OrderRequest) (*GatewayOrder, error) {
	if c.keySecret == "" {
		return nil, errors.New("missing gateway key secret")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode order request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway create order request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response failed: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var ge gatewayErrorBody
		if json.Unmarshal(body, &ge) == nil && ge.Error.Description != "" {
			return nil, fmt.Errorf("gateway create order failed: %s: %s (%d)", ge.Error.Code, ge.Error.Description, res.StatusCode)
		}
		return nil, fmt.Errorf("gateway create order failed: %s (%d)", string(body), res.StatusCode)
	}

	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("parse order json failed: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("gateway returned an order without id")
	}
	order.Raw = body
	return &order, nil
}
