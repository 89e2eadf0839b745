package checkout

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
	"github.com/zaavg/storefront/pkg/yookassa"
)

type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error)
}

// ConfirmedPayment is a succeeded payment re-read from the provider.
type ConfirmedPayment struct {
	PaymentID string
	OrderID   string
	UserID    string
	Amount    string
	Currency  string
}

// YooKassaNotifications verifies payment notifications by fetching the
// payment back from YooKassa before acknowledging them.
type YooKassaNotifications struct {
	payments paymentFetcher
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

func NewYooKassaNotifications(payments paymentFetcher, logg *logger.Logger, m *metrics.PaymentMetrics) (*YooKassaNotifications, error) {
	if payments == nil {
		return nil, fmt.Errorf("yookassa client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &YooKassaNotifications{payments: payments, logg: logg, metrics: m}, nil
}

// Handle returns a nil payment for events it acknowledges without acting on:
// anything other than payment.succeeded, and payments whose fetched status
// is not succeeded. A succeeded payment without a userId in its metadata is
// a validation error.
func (n *YooKassaNotifications) Handle(ctx context.Context, note yookassa.Notification) (*ConfirmedPayment, error) {
	ctx = n.logg.WithFields(ctx, map[string]any{
		"event":      note.Event,
		"payment_id": note.Object.ID,
	})
	if note.Event != yookassa.EventPaymentSucceeded {
		n.metrics.IncNotification("yookassa", "ignored")
		return nil, nil
	}
	paymentID := strings.TrimSpace(note.Object.ID)
	if paymentID == "" {
		n.metrics.IncNotification("yookassa", "invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	fresh, err := n.payments.GetPayment(ctx, paymentID)
	if err != nil {
		n.metrics.IncNotification("yookassa", "error")
		n.logg.Error(ctx, "payment verification failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verification failed")
	}
	if fresh.Status != yookassa.StatusSucceeded {
		n.metrics.IncNotification("yookassa", "not_succeeded")
		n.logg.Warn(n.logg.WithField(ctx, "status", fresh.Status), "payment not succeeded")
		return nil, nil
	}

	metadata := fresh.Metadata
	if len(metadata) == 0 {
		metadata = note.Object.Metadata
	}
	userID := strings.TrimSpace(metadata["userId"])
	if userID == "" {
		n.metrics.IncNotification("yookassa", "invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid metadata")
	}

	confirmed := &ConfirmedPayment{
		PaymentID: fresh.ID,
		OrderID:   strings.TrimSpace(metadata["orderId"]),
		UserID:    userID,
		Amount:    fresh.Amount.Value,
		Currency:  fresh.Amount.Currency,
	}
	if confirmed.PaymentID == "" {
		confirmed.PaymentID = paymentID
	}
	n.metrics.IncNotification("yookassa", "confirmed")
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{
		"order_id": confirmed.OrderID,
		"user_id":  confirmed.UserID,
		"amount":   confirmed.Amount,
	}), "payment confirmed")
	return confirmed, nil
}
