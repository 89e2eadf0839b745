package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zaavg/storefront/internal/cart"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "RUB"

// PaymentRequest is the gateway-neutral description of one payment session.
type PaymentRequest struct {
	Amount         string
	Currency       string
	OrderID        string
	UserID         string
	ReturnURL      string
	IdempotencyKey string
	ItemNames      []string
	Lines          []LineDescriptor
}

// Gateway opens a payment session and returns the URL the shopper is sent to.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (string, error)
}

type cartReader interface {
	Lines(ctx context.Context, cartID string) ([]cart.Line, error)
}

// Service starts checkout sessions for persisted carts.
type Service interface {
	Start(ctx context.Context, cartID string, input CheckoutInput) (*Session, error)
}

// CheckoutInput captures caller supplied data used during checkout.
type CheckoutInput struct {
	UserID         string
	OrderID        string
	ReturnURL      string
	IdempotencyKey string
}

// Session is the result of a successful hand-off to the gateway.
type Session struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	RedirectURL string `json:"redirect_url"`
}

// Options configures the checkout service.
type Options struct {
	Currency  string
	ReturnURL string
	Logger    *logger.Logger
	Metrics   *metrics.PaymentMetrics
}

type service struct {
	carts     cartReader
	gateway   Gateway
	currency  string
	returnURL string
	logg      *logger.Logger
	metrics   *metrics.PaymentMetrics
}

// NewService builds the checkout service.
func NewService(carts cartReader, gateway Gateway, opts Options) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &service{
		carts:     carts,
		gateway:   gateway,
		currency:  currency,
		returnURL: strings.TrimSpace(opts.ReturnURL),
		logg:      opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Start reads the cart, builds the payment request and asks the gateway for a
// redirect URL. The cart is never modified, whatever the outcome.
func (s *service) Start(ctx context.Context, cartID string, input CheckoutInput) (*Session, error) {
	if strings.TrimSpace(cartID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	ctx = s.logg.WithCartID(ctx, cartID)

	lines, err := s.carts.Lines(ctx, cartID)
	if err != nil {
		return nil, err
	}
	built, err := BuildRequest(lines)
	if err != nil {
		return nil, err
	}

	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = s.returnURL
	}
	if returnURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return url required")
	}
	callerOrderID := strings.TrimSpace(input.OrderID)
	orderID := callerOrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	req := PaymentRequest{
		Amount:         built.TotalAmount,
		Currency:       s.currency,
		OrderID:        orderID,
		UserID:         strings.TrimSpace(input.UserID),
		ReturnURL:      returnURL,
		IdempotencyKey: gatewayKey(cartID, input.IdempotencyKey, callerOrderID, built.TotalAmount),
		ItemNames:      built.ItemNames,
		Lines:          built.Lines,
	}

	provider := s.gateway.Name()
	redirectURL, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.metrics.IncSession(provider, "error")
		s.logg.Error(ctx, "payment session failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePayment, err, "payment could not be started")
	}
	if strings.TrimSpace(redirectURL) == "" {
		s.metrics.IncSession(provider, "missing_url")
		s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID), "payment gateway returned no confirmation url")
		return nil, pkgerrors.New(pkgerrors.CodePayment, "payment could not be started")
	}

	s.metrics.IncSession(provider, "ok")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID,
		"amount":   req.Amount,
		"provider": provider,
	}), "payment session started")

	return &Session{
		OrderID:     orderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: redirectURL,
	}, nil
}

var gatewayKeySpace = uuid.MustParse("7c1d6a52-3f0e-5b8a-9d4e-2a61f0c9b8e3")

// gatewayKey derives the payment idempotency key. A retried request carrying
// the same client key, or the same caller order id, for an unchanged cart
// total maps to the same gateway key. Without either the key is random.
func gatewayKey(cartID, clientKey, orderID, amount string) string {
	var source string
	switch {
	case strings.TrimSpace(clientKey) != "":
		source = "key:" + strings.TrimSpace(clientKey)
	case orderID != "":
		source = "order:" + orderID
	default:
		return uuid.NewString()
	}
	return uuid.NewSHA1(gatewayKeySpace, []byte(cartID+"|"+source+"|"+amount)).String()
}
