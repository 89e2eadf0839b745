package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/zaavg/storefront/api/responses"
	"github.com/zaavg/storefront/internal/checkout"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/yookassa"
)

const maxNotificationBytes = 64 << 10

// YooKassaNotificationHandler verifies one provider notification.
type YooKassaNotificationHandler interface {
	Handle(ctx context.Context, note yookassa.Notification) (*checkout.ConfirmedPayment, error)
}

// YooKassaWebhook acknowledges payment notifications once they verify. Events
// that need no action are acknowledged too, so YooKassa stops redelivering.
func YooKassaWebhook(handler YooKassaNotificationHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if handler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "yookassa notifications are not enabled"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		var note yookassa.Notification
		if err := json.Unmarshal(payload, &note); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid json"))
			return
		}

		if _, err := handler.Handle(ctx, note); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"ok": true})
	}
}
