package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/zaavg/storefront/pkg/square"
)

// Square caps quick-pay names at 255 characters.
const squareNameLimit = 255

type squareLinks interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*sq.PaymentLink, error)
}

// SquareGateway opens hosted Square checkout links.
type SquareGateway struct {
	client squareLinks
}

func NewSquareGateway(client squareLinks) (*SquareGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{client: client}, nil
}

func (g *SquareGateway) Name() string { return "square" }

func (g *SquareGateway) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", req.Amount, err)
	}

	link, err := g.client.CreatePaymentLink(ctx, square.PaymentLinkParams{
		Name:           truncateRunes(strings.Join(req.ItemNames, ", "), squareNameLimit),
		AmountCents:    amount.Shift(2).IntPart(),
		Currency:       req.Currency,
		RedirectURL:    req.ReturnURL,
		ReferenceID:    req.OrderID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	return square.LinkURL(link), nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
