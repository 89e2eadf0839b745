package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zaavg/storefront/pkg/yookassa"
)

// MetadataValueLimit is the longest metadata value YooKassa accepts.
const MetadataValueLimit = 512

type yookassaPayments interface {
	CreatePayment(ctx context.Context, req yookassa.CreatePaymentRequest, idempotencyKey string) (*yookassa.Payment, error)
}

// YooKassaGateway opens bank-card payments with a redirect confirmation.
type YooKassaGateway struct {
	client yookassaPayments
}

func NewYooKassaGateway(client yookassaPayments) (*YooKassaGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("yookassa client required")
	}
	return &YooKassaGateway{client: client}, nil
}

func (g *YooKassaGateway) Name() string { return "yookassa" }

func (g *YooKassaGateway) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	itemData, err := compactItemNames(req.ItemNames)
	if err != nil {
		return "", err
	}

	payment, err := g.client.CreatePayment(ctx, yookassa.CreatePaymentRequest{
		Amount:            yookassa.Amount{Value: req.Amount, Currency: req.Currency},
		PaymentMethodData: &yookassa.PaymentMethodData{Type: yookassa.PaymentMethodCard},
		Capture:           true,
		Confirmation: yookassa.Confirmation{
			Type:      yookassa.ConfirmationRedirect,
			ReturnURL: strings.TrimSpace(req.ReturnURL),
		},
		Metadata: map[string]string{
			"orderId":  req.OrderID,
			"userId":   req.UserID,
			"itemData": itemData,
			"lines":    compactLines(req.Lines),
		},
	}, req.IdempotencyKey)
	if err != nil {
		return "", err
	}
	return payment.ConfirmationURL(), nil
}

// compactItemNames encodes as many leading names as fit the metadata limit as
// a JSON array.
func compactItemNames(names []string) (string, error) {
	for n := len(names); n >= 0; n-- {
		data, err := json.Marshal(names[:n])
		if err != nil {
			return "", fmt.Errorf("encode item names: %w", err)
		}
		if len(data) <= MetadataValueLimit {
			return string(data), nil
		}
	}
	return "[]", nil
}

// compactLines renders lines as comma separated key:quantity pairs, stopping
// at the last pair that fits the metadata limit.
func compactLines(lines []LineDescriptor) string {
	var b strings.Builder
	for _, line := range lines {
		pair := line.Key + ":" + strconv.Itoa(line.Quantity)
		if b.Len() > 0 {
			pair = "," + pair
		}
		if b.Len()+len(pair) > MetadataValueLimit {
			break
		}
		b.WriteString(pair)
	}
	return b.String()
}
