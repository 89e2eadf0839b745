package cart

import (
	"context"
	"fmt"

	"github.com/zaavg/storefront/internal/catalog"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
)

// DefaultUnlimitedStock is reported as available for sizeless products.
const DefaultUnlimitedStock = 999

// Outcome describes what an add did to the cart.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeMerged  Outcome = "merged"
	OutcomeClamped Outcome = "clamped"
	OutcomeSoldOut Outcome = "sold_out"
	OutcomeIgnored Outcome = "ignored"
)

// AddResult reports the quantity actually applied by AddItem. Requested is
// what the caller asked for, Applied is how many units were added and
// Quantity is the resulting line quantity (0 when no line exists).
type AddResult struct {
	Key       string  `json:"key"`
	Requested int     `json:"requested"`
	Applied   int     `json:"applied"`
	Quantity  int     `json:"quantity"`
	Outcome   Outcome `json:"outcome"`
}

// Clamped reports whether fewer units were added than requested.
func (r AddResult) Clamped() bool {
	return r.Applied < r.Requested
}

// Notifier is told about every cart that changed.
type Notifier interface {
	Notify(ctx context.Context, cartID string)
}

type productLookup interface {
	ProductByKey(key string) (catalog.Product, bool)
}

// Service owns the cart mutations. Every mutation is a read-modify-write of
// the whole persisted cart through Storage.Update, followed by a notification.
type Service interface {
	Lines(ctx context.Context, cartID string) ([]Line, error)
	AddItem(ctx context.Context, cartID string, product catalog.Product, quantity int, size Size) (AddResult, error)
	UpdateQuantity(ctx context.Context, cartID, key string, quantity int, stockHint *int) ([]Line, error)
	RemoveItem(ctx context.Context, cartID, key string) ([]Line, error)
	AvailableStock(line Line) int
}

type service struct {
	storage   Storage
	products  productLookup
	notifier  Notifier
	unlimited int
	logg      *logger.Logger
	metrics   *metrics.CartMetrics
}

// Options carries the optional collaborators of the cart service.
type Options struct {
	UnlimitedStock int
	Logger         *logger.Logger
	Metrics        *metrics.CartMetrics
}

// NewService builds a cart service backed by the provided storage.
func NewService(storage Storage, products productLookup, notifier Notifier, opts Options) (Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if opts.UnlimitedStock <= 0 {
		opts.UnlimitedStock = DefaultUnlimitedStock
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &service{
		storage:   storage,
		products:  products,
		notifier:  notifier,
		unlimited: opts.UnlimitedStock,
		logg:      opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

func (s *service) Lines(ctx context.Context, cartID string) ([]Line, error) {
	return s.storage.Load(ctx, cartID)
}

// AddItem merges quantity into the line for (product, size), clamping to the
// stock available right now. Invalid requests and sold-out sizes are no-ops;
// the only error is a storage failure.
func (s *service) AddItem(ctx context.Context, cartID string, product catalog.Product, quantity int, size Size) (AddResult, error) {
	key := IdentityKey(product.Key, size)
	result := AddResult{Key: key, Requested: quantity}
	ctx = s.logg.WithFields(ctx, map[string]any{"cart_id": cartID, "line_key": key})

	if quantity < 1 || product.Key == "" || product.Sized() != size.IsSized() {
		result.Outcome = OutcomeIgnored
		s.metrics.IncMutation("add", string(result.Outcome))
		s.logg.Debug(ctx, "add to cart ignored")
		return s.withCurrentQuantity(ctx, cartID, result)
	}

	available := s.availableFor(product, size)

	_, err := s.storage.Update(ctx, cartID, func(lines []Line) ([]Line, error) {
		result.Applied, result.Quantity = 0, 0
		pos := indexOf(lines, key)

		if pos >= 0 {
			existing := lines[pos].Quantity
			result.Quantity = existing
			merged := min(existing+quantity, available)
			if merged <= existing {
				result.Outcome = capacityOutcome(available)
				return nil, errUnchanged
			}
			lines[pos].Quantity = merged
			result.Applied = merged - existing
			result.Quantity = merged
			result.Outcome = OutcomeMerged
			if result.Applied < quantity {
				result.Outcome = OutcomeClamped
			}
			return lines, nil
		}

		if available <= 0 {
			result.Outcome = OutcomeSoldOut
			return nil, errUnchanged
		}
		qty := min(quantity, available)
		lines = append(lines, Line{
			ProductKey: product.Key,
			Name:       product.Name,
			Size:       size,
			Quantity:   qty,
			UnitPrice:  product.Price,
			ImageURL:   product.ImageURL,
		})
		result.Applied = qty
		result.Quantity = qty
		result.Outcome = OutcomeAdded
		if qty < quantity {
			result.Outcome = OutcomeClamped
		}
		return lines, nil
	})
	if err != nil {
		s.metrics.IncMutation("add", "error")
		s.logg.Error(ctx, "add to cart failed", err)
		return AddResult{}, err
	}

	s.metrics.IncMutation("add", string(result.Outcome))
	if result.Applied > 0 {
		s.notify(ctx, cartID)
	}
	return result, nil
}

func (s *service) withCurrentQuantity(ctx context.Context, cartID string, result AddResult) (AddResult, error) {
	lines, err := s.storage.Load(ctx, cartID)
	if err != nil {
		return AddResult{}, err
	}
	if pos := indexOf(lines, result.Key); pos >= 0 {
		result.Quantity = lines[pos].Quantity
	}
	return result, nil
}

func capacityOutcome(available int) Outcome {
	if available <= 0 {
		return OutcomeSoldOut
	}
	return OutcomeClamped
}

// UpdateQuantity sets the quantity of the line under key. A quantity below one
// removes the line. A nil stockHint leaves the quantity uncapped; any other
// hint, zero included, is the ceiling for a raise. A line already above the
// ceiling may be lowered but never raised, so a sold-out size keeps its
// current quantity instead of disappearing. Absent keys are a no-op.
func (s *service) UpdateQuantity(ctx context.Context, cartID, key string, quantity int, stockHint *int) ([]Line, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, cartID, key)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"cart_id": cartID, "line_key": key})
	changed := false
	lines, err := s.storage.Update(ctx, cartID, func(lines []Line) ([]Line, error) {
		changed = false
		pos := indexOf(lines, key)
		if pos < 0 {
			return nil, errUnchanged
		}
		final := cappedQuantity(lines[pos].Quantity, quantity, stockHint)
		if lines[pos].Quantity == final {
			return nil, errUnchanged
		}
		lines[pos].Quantity = final
		changed = true
		return lines, nil
	})
	if err != nil {
		s.metrics.IncMutation("update", "error")
		s.logg.Error(ctx, "update cart quantity failed", err)
		return nil, err
	}

	outcome := "unchanged"
	if changed {
		outcome = "updated"
		s.notify(ctx, cartID)
	}
	s.metrics.IncMutation("update", outcome)
	return lines, nil
}

func cappedQuantity(current, requested int, stockHint *int) int {
	if stockHint == nil || requested <= *stockHint {
		return requested
	}
	return max(*stockHint, min(current, requested))
}

// RemoveItem deletes the line under key. Removing an absent key is a no-op,
// so repeated calls are safe.
func (s *service) RemoveItem(ctx context.Context, cartID, key string) ([]Line, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"cart_id": cartID, "line_key": key})
	removed := false
	lines, err := s.storage.Update(ctx, cartID, func(lines []Line) ([]Line, error) {
		removed = false
		pos := indexOf(lines, key)
		if pos < 0 {
			return nil, errUnchanged
		}
		removed = true
		return append(lines[:pos], lines[pos+1:]...), nil
	})
	if err != nil {
		s.metrics.IncMutation("remove", "error")
		s.logg.Error(ctx, "remove cart line failed", err)
		return nil, err
	}

	outcome := "absent"
	if removed {
		outcome = "removed"
		s.notify(ctx, cartID)
	}
	s.metrics.IncMutation("remove", outcome)
	return lines, nil
}

// AvailableStock re-derives the stock for line from the current catalog.
// Sizeless lines report the unlimited sentinel; a size or product that no
// longer exists reports zero.
func (s *service) AvailableStock(line Line) int {
	if !line.Size.IsSized() {
		return s.unlimited
	}
	product, ok := s.products.ProductByKey(line.ProductKey)
	if !ok {
		return 0
	}
	return s.availableFor(product, line.Size)
}

func (s *service) availableFor(product catalog.Product, size Size) int {
	label, sized := size.Label()
	if !sized {
		return s.unlimited
	}
	qty, _ := product.Stock().Available(label)
	return qty
}

func (s *service) notify(ctx context.Context, cartID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, cartID)
}
