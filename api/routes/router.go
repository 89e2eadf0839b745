package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zaavg/storefront/api/controllers"
	"github.com/zaavg/storefront/api/middleware"
	"github.com/zaavg/storefront/internal/cart"
	"github.com/zaavg/storefront/internal/catalog"
	"github.com/zaavg/storefront/internal/checkout"
	"github.com/zaavg/storefront/internal/events"
	"github.com/zaavg/storefront/internal/wishlist"
	"github.com/zaavg/storefront/pkg/config"
	"github.com/zaavg/storefront/pkg/logger"
)

// Dependencies groups what the HTTP surface needs. Idempotency, Gatherer,
// Payments and Remover are optional.
type Dependencies struct {
	Catalog     catalog.Service
	Carts       cart.Service
	Remover     *cart.DeferredRemover
	Bus         *events.Bus
	Checkout    checkout.Service
	Wishlists   wishlist.Service
	Payments    controllers.YooKassaNotificationHandler
	Idempotency middleware.IdempotencyStore
	Readiness   map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	replayFor := func(ttl time.Duration) func(http.Handler) http.Handler {
		return middleware.Idempotency(deps.Idempotency, ttl, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", controllers.CatalogList(deps.Catalog, logg))
			r.Post("/refresh", controllers.CatalogRefresh(deps.Catalog, logg))
			r.Get("/{name}", controllers.CatalogGet(deps.Catalog, logg))
		})

		r.Route("/carts/{cartId}", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Carts, logg))
			r.Get("/events", controllers.CartEvents(deps.Bus, logg))
			r.With(replayFor(middleware.CartMutationTTL)).Post("/items", controllers.CartAddItem(deps.Carts, deps.Catalog, logg))
			r.Patch("/items/{key}", controllers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{key}", controllers.CartRemoveItem(deps.Carts, remover(deps.Remover), logg))
			r.Post("/items/{key}/restore", controllers.CartRestoreItem(remover(deps.Remover), logg))
			r.With(replayFor(middleware.CheckoutTTL)).Post("/checkout", controllers.CartCheckout(deps.Checkout, logg))
		})

		r.Route("/wishlists/{cartId}", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(deps.Wishlists, logg))
			r.Post("/toggle", controllers.WishlistToggle(deps.Wishlists, logg))
			r.Delete("/items/{productKey}", controllers.WishlistRemove(deps.Wishlists, logg))
		})

		r.Post("/payments/yookassa/webhook", controllers.YooKassaWebhook(deps.Payments, logg))
	})

	return r
}

// remover keeps a nil *DeferredRemover from becoming a non-nil interface.
func remover(d *cart.DeferredRemover) controllers.DeferredRemover {
	if d == nil {
		return nil
	}
	return d
}
