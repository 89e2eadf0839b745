package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks catalog refreshes.
type CatalogMetrics struct {
	duration prometheus.Histogram
	failures prometheus.Counter
	products prometheus.Gauge
}

// NewCatalogMetrics registers the catalog metrics on the provided registerer.
func NewCatalogMetrics(reg prometheus.Registerer) *CatalogMetrics {
	if reg == nil {
		return &CatalogMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_refresh_duration_seconds",
		Help:    "Duration of catalog refreshes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_refresh_failures_total",
		Help: "Catalog refreshes that kept the previous snapshot.",
	})
	products := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_products",
		Help: "Products in the live catalog snapshot.",
	})
	reg.MustRegister(duration, failures, products)
	return &CatalogMetrics{duration: duration, failures: failures, products: products}
}

func (c *CatalogMetrics) ObserveRefresh(d time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.Observe(d.Seconds())
}

func (c *CatalogMetrics) IncFailure() {
	if c == nil || c.failures == nil {
		return
	}
	c.failures.Inc()
}

func (c *CatalogMetrics) SetProducts(n int) {
	if c == nil || c.products == nil {
		return
	}
	c.products.Set(float64(n))
}
