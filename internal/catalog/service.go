package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
)

// Service keeps the live catalog snapshot and refreshes it from a Source.
type Service interface {
	Refresh(ctx context.Context) error
	Run(ctx context.Context, interval time.Duration)
	Lookup(key string) (Product, bool)
	ProductByKey(key string) (Product, bool)
	List() []Product
	Snapshot() *Index
}

type service struct {
	source  Source
	logg    *logger.Logger
	metrics *metrics.CatalogMetrics
	current atomic.Pointer[Index]
	now     func() time.Time
}

// NewService builds a catalog service. The catalog starts empty until the
// first successful Refresh.
func NewService(source Source, logg *logger.Logger, m *metrics.CatalogMetrics) (Service, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	svc := &service{source: source, logg: logg, metrics: m, now: time.Now}
	svc.current.Store(NewIndex(nil))
	return svc, nil
}

// Refresh fetches, transforms and swaps in a new snapshot. On failure the
// previous snapshot stays live.
func (s *service) Refresh(ctx context.Context) error {
	started := s.now()
	rows, err := s.source.Fetch(ctx)
	if err != nil {
		s.metrics.IncFailure()
		s.logg.Error(ctx, "catalog refresh failed, keeping previous snapshot", err)
		return err
	}

	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		product, degradations := FromRow(row)
		for _, d := range degradations {
			ctx := s.logg.WithFields(ctx, map[string]any{
				"product": product.Name,
				"field":   d.Field,
				"raw":     d.Raw,
				"reason":  d.Reason,
			})
			s.logg.Warn(ctx, "catalog field degraded")
		}
		if product.Key == "" {
			s.logg.Warn(s.logg.WithField(ctx, "name", product.Name), "skipping product without a usable key")
			continue
		}
		products = append(products, product)
	}

	idx := NewIndex(products)
	s.current.Store(idx)
	s.metrics.SetProducts(idx.Len())
	s.metrics.ObserveRefresh(s.now().Sub(started))
	s.logg.Info(s.logg.WithField(ctx, "products", idx.Len()), "catalog refreshed")
	return nil
}

// Run refreshes on every tick until ctx is done. Failures are logged and the
// loop keeps going.
func (s *service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

func (s *service) Snapshot() *Index {
	return s.current.Load()
}

func (s *service) Lookup(key string) (Product, bool) {
	return s.Snapshot().Lookup(key)
}

func (s *service) ProductByKey(key string) (Product, bool) {
	return s.Snapshot().ByKey(key)
}

func (s *service) List() []Product {
	return s.Snapshot().Products()
}

// ErrProductNotFound builds the not-found error used by callers that surface
// lookup misses over HTTP.
func ErrProductNotFound(key string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"product": key})
}
