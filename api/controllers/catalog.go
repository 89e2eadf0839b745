package controllers

import (
	"net/http"
	"strings"

	"github.com/zaavg/storefront/api/responses"
	"github.com/zaavg/storefront/api/validators"
	"github.com/zaavg/storefront/internal/catalog"
	"github.com/zaavg/storefront/pkg/logger"
)

const (
	defaultCatalogLimit = 500
	maxCatalogLimit     = 1000
)

type productResponse struct {
	catalog.Product
	Sized bool           `json:"sized"`
	Stock map[string]int `json:"stock"`
}

func newProductResponse(p catalog.Product) productResponse {
	stock := p.Stock()
	if stock == nil {
		stock = catalog.StockMap{}
	}
	return productResponse{Product: p, Sized: len(stock) > 0, Stock: stock}
}

// CatalogList returns the live snapshot, optionally filtered by category.
func CatalogList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultCatalogLimit, 1, maxCatalogLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category := strings.TrimSpace(r.URL.Query().Get("category"))

		items := make([]productResponse, 0)
		for _, p := range svc.List() {
			if category != "" && !strings.EqualFold(p.Category, category) {
				continue
			}
			items = append(items, newProductResponse(p))
			if len(items) == limit {
				break
			}
		}
		responses.WriteSuccess(w, map[string]any{"products": items, "count": len(items)})
	}
}

// CatalogGet resolves a product by any of its accepted key spellings.
func CatalogGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := pathParam(r, "name")
		product, ok := svc.Lookup(key)
		if !ok {
			responses.WriteError(r.Context(), logg, w, catalog.ErrProductNotFound(key))
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

func CatalogRefresh(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Refresh(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"products": svc.Snapshot().Len()})
	}
}
