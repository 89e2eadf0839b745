package controllers

import (
	"net/http"

	"github.com/zaavg/storefront/api/responses"
	"github.com/zaavg/storefront/api/validators"
	"github.com/zaavg/storefront/internal/checkout"
	"github.com/zaavg/storefront/pkg/logger"
)

type checkoutRequest struct {
	UserID    string `json:"user_id" validate:"omitempty,max=128"`
	OrderID   string `json:"order_id" validate:"omitempty,max=128"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// CartCheckout builds the payment request from the persisted cart and returns
// the provider redirect URL. The body is optional.
func CartCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Start(r.Context(), cartID, checkout.CheckoutInput{
			UserID:         validators.SanitizeString(payload.UserID, 128),
			OrderID:        validators.SanitizeString(payload.OrderID, 128),
			ReturnURL:      payload.ReturnURL,
			IdempotencyKey: validators.SanitizeString(r.Header.Get("Idempotency-Key"), 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
