package controllers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zaavg/storefront/api/responses"
	"github.com/zaavg/storefront/api/validators"
	"github.com/zaavg/storefront/internal/cart"
	"github.com/zaavg/storefront/internal/catalog"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
)

const maxCartIDLength = 128

type productFinder interface {
	Lookup(key string) (catalog.Product, bool)
}

// DeferredRemover schedules removals that stay undoable for a short window.
type DeferredRemover interface {
	Schedule(cartID, key string) time.Time
	Undo(cartID, key string) bool
}

type cartLineResponse struct {
	Key            string  `json:"key"`
	ProductKey     string  `json:"product_key"`
	Name           string  `json:"name"`
	SelectedSize   *string `json:"selected_size,omitempty"`
	Quantity       int     `json:"quantity"`
	UnitPrice      string  `json:"unit_price"`
	Subtotal       string  `json:"subtotal"`
	ImageURL       string  `json:"image_url,omitempty"`
	AvailableStock int     `json:"available_stock"`
}

type cartResponse struct {
	CartID    string             `json:"cart_id"`
	Lines     []cartLineResponse `json:"lines"`
	ItemCount int                `json:"item_count"`
	Total     string             `json:"total"`
}

func newCartResponse(svc cart.Service, cartID string, lines []cart.Line) cartResponse {
	resp := cartResponse{
		CartID: cartID,
		Lines:  make([]cartLineResponse, 0, len(lines)),
		Total:  cart.Total(lines).Truncate(2).StringFixed(2),
	}
	for _, line := range lines {
		item := cartLineResponse{
			Key:            line.Key(),
			ProductKey:     line.ProductKey,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice.String(),
			Subtotal:       line.Subtotal().String(),
			ImageURL:       line.ImageURL,
			AvailableStock: svc.AvailableStock(line),
		}
		if label, ok := line.Size.Label(); ok {
			item.SelectedSize = &label
		}
		resp.Lines = append(resp.Lines, item)
		resp.ItemCount += line.Quantity
	}
	return resp
}

func cartIDParam(r *http.Request) (string, error) {
	id := validators.SanitizeString(pathParam(r, "cartId"), 0)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	if len([]rune(id)) > maxCartIDLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart id too long")
	}
	return id, nil
}

// pathParam returns the decoded route parameter. Product slugs and size
// labels may be non-ASCII, in which case chi hands back the escaped form.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func lineKeyParam(r *http.Request) (string, error) {
	key := pathParam(r, "key")
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "line key required")
	}
	return key, nil
}

// CartFetch returns the persisted cart with per-line available stock.
func CartFetch(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.Lines(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(svc, cartID, lines))
	}
}

type addItemRequest struct {
	Product  string  `json:"product" validate:"required"`
	Quantity int     `json:"quantity"`
	Size     *string `json:"size"`
}

// CartAddItem merges a product selection into the cart. Stock clamping is
// reported in the result rather than as an error.
func CartAddItem(svc cart.Service, products productFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, ok := products.Lookup(payload.Product)
		if !ok {
			responses.WriteError(r.Context(), logg, w, catalog.ErrProductNotFound(payload.Product))
			return
		}

		result, err := svc.AddItem(r.Context(), cartID, product, payload.Quantity, cart.SizeFromOptional(payload.Size))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.Lines(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"result":  result,
			"clamped": result.Clamped(),
			"cart":    newCartResponse(svc, cartID, lines),
		})
	}
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// CartUpdateItem sets a line quantity. The stock cap is re-derived from the
// catalog rather than taken from the client.
func CartUpdateItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := lineKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.Lines(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var hint *int
		for _, line := range current {
			if line.Key() == key {
				available := svc.AvailableStock(line)
				hint = &available
				break
			}
		}

		lines, err := svc.UpdateQuantity(r.Context(), cartID, key, *payload.Quantity, hint)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(svc, cartID, lines))
	}
}

// CartRemoveItem removes a line now, or after the undo window when
// ?deferred=true.
func CartRemoveItem(svc cart.Service, remover DeferredRemover, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := lineKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deferred, err := validators.ParseQueryBool(r, "deferred")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if deferred && remover != nil {
			deadline := remover.Schedule(cartID, key)
			responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
				"key":           key,
				"pending_until": deadline.UTC().Format(time.RFC3339Nano),
			})
			return
		}

		lines, err := svc.RemoveItem(r.Context(), cartID, key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(svc, cartID, lines))
	}
}

// CartRestoreItem cancels a pending deferred removal.
func CartRestoreItem(remover DeferredRemover, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := lineKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if remover == nil || !remover.Undo(cartID, key) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no pending removal for line"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"key": key, "restored": true})
	}
}
