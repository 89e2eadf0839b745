package wishlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zaavg/storefront/internal/catalog"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
)

type productLookup interface {
	ProductByKey(key string) (catalog.Product, bool)
}

// Service manages one wishlist per cart id.
type Service interface {
	List(ctx context.Context, cartID string) (View, error)
	Toggle(ctx context.Context, cartID, productKey string) (ToggleResult, error)
	Remove(ctx context.Context, cartID, productKey string) (View, error)
}

type service struct {
	storage  Storage
	products productLookup
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the wishlist service.
func NewService(storage Storage, products productLookup, logg *logger.Logger) (Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("wishlist storage required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{storage: storage, products: products, logg: logg, now: time.Now}, nil
}

// List returns the saved items, marking those no longer in the catalog.
func (s *service) List(ctx context.Context, cartID string) (View, error) {
	if err := requireCartID(cartID); err != nil {
		return View{}, err
	}
	items, err := s.storage.Load(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	return s.view(cartID, items), nil
}

// Toggle adds the product when absent and removes it when present. Only an
// add needs the product to exist in the catalog.
func (s *service) Toggle(ctx context.Context, cartID, productKey string) (ToggleResult, error) {
	if err := requireCartID(cartID); err != nil {
		return ToggleResult{}, err
	}
	productKey = strings.TrimSpace(productKey)
	if productKey == "" {
		return ToggleResult{}, pkgerrors.New(pkgerrors.CodeValidation, "product key required")
	}

	var added bool
	items, err := s.storage.Update(ctx, cartID, func(items []Item) ([]Item, error) {
		added = false
		if pos := indexOf(items, productKey); pos >= 0 {
			return append(items[:pos], items[pos+1:]...), nil
		}
		product, ok := s.products.ProductByKey(productKey)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if len(items) >= MaxItems {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "wishlist holds at most %d items", MaxItems)
		}
		added = true
		return append(items, Item{
			ProductKey: product.Key,
			Name:       product.Name,
			Price:      product.Price.String(),
			Category:   product.Category,
			ImageURL:   product.ImageURL,
			AddedAt:    s.now().UTC(),
		}), nil
	})
	if err != nil {
		return ToggleResult{}, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithCartID(ctx, cartID), map[string]any{
		"product_key": productKey,
		"added":       added,
	}), "wishlist toggled")
	return ToggleResult{View: s.view(cartID, items), ProductKey: productKey, Added: added}, nil
}

// Remove drops the entry regardless of prior state.
func (s *service) Remove(ctx context.Context, cartID, productKey string) (View, error) {
	if err := requireCartID(cartID); err != nil {
		return View{}, err
	}
	productKey = strings.TrimSpace(productKey)
	items, err := s.storage.Update(ctx, cartID, func(items []Item) ([]Item, error) {
		pos := indexOf(items, productKey)
		if pos < 0 {
			return nil, errUnchanged
		}
		return append(items[:pos], items[pos+1:]...), nil
	})
	if err != nil {
		return View{}, err
	}
	return s.view(cartID, items), nil
}

func (s *service) view(cartID string, items []Item) View {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		_, item.Available = s.products.ProductByKey(item.ProductKey)
		out = append(out, item)
	}
	return View{CartID: cartID, Items: out, Count: len(out)}
}

func requireCartID(cartID string) error {
	if strings.TrimSpace(cartID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	return nil
}
