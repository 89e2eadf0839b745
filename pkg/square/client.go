package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/zaavg/storefront/pkg/config"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
)

// Square hosts, keyed by the environment names accepted in config.
var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type paymentLinksAPI interface {
	Create(ctx context.Context, request *sqcheckout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// Client opens Square hosted checkout links for a single location.
type Client struct {
	links       paymentLinksAPI
	environment string
	locationID  string
	logger      *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q must be sandbox or production", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square location id is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token))
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "location_id": location}), "square client initialized")
	return &Client{
		links:       sdk.Checkout.PaymentLinks,
		environment: env,
		locationID:  location,
		logger:      logg,
	}, nil
}

// Environment is "sandbox" or "production".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreatePaymentLink opens a quick-pay checkout page for a fixed amount.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*sq.PaymentLink, error) {
	if c == nil || c.links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client not configured")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment link amount must be positive")
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}

	ctx = c.logFields(ctx, map[string]any{
		"operation":    "create_payment_link",
		"location_id":  params.LocationID,
		"amount":       params.AmountCents,
		"currency":     params.Currency,
		"reference_id": params.ReferenceID,
	})
	resp, err := c.links.Create(ctx, params.toSquareRequest(c.ensureIdempotencyKey("payment_link.create", params.IdempotencyKey)))
	if err != nil {
		mapped := c.mapSquareError(err, "create payment link")
		c.logger.Error(ctx, "square request failed", mapped)
		return nil, mapped
	}
	link := resp.GetPaymentLink()
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square create payment link returned no link")
	}
	c.logger.Info(c.logger.WithField(ctx, "payment_link_id", deref(link.GetID())), "square payment link created")
	return link, nil
}

// LinkURL returns the hosted checkout URL of link, or "".
func LinkURL(link *sq.PaymentLink) string {
	if link == nil {
		return ""
	}
	return strings.TrimSpace(deref(link.GetURL()))
}

// ensureIdempotencyKey keeps a caller-provided key, else mints prefix-<uuid>.
func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return prefix + "-" + uuid.NewString()
}

func (c *Client) logFields(ctx context.Context, fields map[string]any) context.Context {
	safe := make(map[string]any, len(fields))
	for k, v := range fields {
		safe[k] = c.redact(k, v)
	}
	return c.logger.WithFields(ctx, safe)
}

var sensitiveKeyParts = []string{"token", "secret", "email", "phone"}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return "[REDACTED]"
		}
	}
	return value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
