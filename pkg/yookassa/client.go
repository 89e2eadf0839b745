package yookassa

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

	"github.com/google/uuid"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.yookassa.ru/v3"
	defaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 1024

	ConfirmationRedirect = "redirect"
	PaymentMethodCard    = "bank_card"

	StatusSucceeded       = "succeeded"
	EventPaymentSucceeded = "payment.succeeded"
)

var (
	errShopIDRequired    = errors.New("yookassa shop id is required")
	errSecretKeyRequired = errors.New("yookassa secret key is required")
)

// Client wraps the YooKassa payments API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a client authenticated with the shop id and secret key.
func NewClient(shopID, secretKey string, opts ...Option) (*Client, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, errShopIDRequired
	}
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		shopID:     shopID,
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type PaymentMethodData struct {
	Type string `json:"type"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	Amount            Amount             `json:"amount"`
	PaymentMethodData *PaymentMethodData `json:"payment_method_data,omitempty"`
	Capture           bool               `json:"capture"`
	Confirmation      Confirmation       `json:"confirmation"`
	Description       string             `json:"description,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

// Payment is the subset of the payment object the storefront reads.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Notification is the body YooKassa posts to the webhook URL.
type Notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

// ConfirmationURL returns the redirect target, or "" when the gateway sent none.
func (p *Payment) ConfirmationURL() string {
	if p == nil || p.Confirmation == nil {
		return ""
	}
	return strings.TrimSpace(p.Confirmation.ConfirmationURL)
}

// APIError is the error object YooKassa returns on non-2xx responses.
type APIError struct {
	StatusCode  int    `json:"-"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("yookassa status %d", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// CreatePayment opens a payment. A blank idempotency key is replaced with a
// fresh one.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest, idempotencyKey string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "yookassa client not configured")
	}
	if strings.TrimSpace(req.Amount.Value) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount is required")
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("payments"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", idempotencyKey)
	return c.do(httpReq, "payment request failed")
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "yookassa client not configured")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("payments/"+url.PathEscape(paymentID)), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment lookup")
	}
	return c.do(httpReq, "payment lookup failed")
}

func (c *Client) do(httpReq *http.Request, failure string) (*Payment, error) {
	httpReq.SetBasicAuth(c.shopID, c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payment request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, decodeAPIError(resp), failure)
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment response")
	}
	return &payment, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == "" && apiErr.Description == "") {
		apiErr.Description = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
