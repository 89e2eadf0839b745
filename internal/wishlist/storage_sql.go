package wishlist

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zaavg/storefront/pkg/db"
	"github.com/zaavg/storefront/pkg/db/models"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
)

const sqlSlotPrefix = "wishlist:"

// SQLStorage shares the cart_slots table with carts, under the wishlist:
// slot prefix, and writes with the same version compare-and-swap.
type SQLStorage struct {
	conn       *gorm.DB
	driver     string
	maxRetries int
	logg       *logger.Logger
}

func NewSQLStorage(conn *gorm.DB, driver string, maxRetries int, logg *logger.Logger) *SQLStorage {
	if maxRetries <= 0 {
		maxRetries = 8
	}
	if driver == "" {
		driver = "postgres"
	}
	return &SQLStorage{conn: conn, driver: driver, maxRetries: maxRetries, logg: logg}
}

func (s *SQLStorage) Name() string { return s.driver }

func (s *SQLStorage) Load(ctx context.Context, cartID string) ([]Item, error) {
	slot, found, err := s.read(ctx, sqlSlotPrefix+cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist")
	}
	if !found {
		return []Item{}, nil
	}
	return s.decode(ctx, slot), nil
}

func (s *SQLStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Item, error) {
	key := sqlSlotPrefix + cartID

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		current, found, err := s.read(ctx, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist")
		}
		items := []Item{}
		if found {
			items = s.decode(ctx, current)
		}

		next, err := fn(cloneItems(items))
		if errors.Is(err, errUnchanged) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		payload, err := encodeSlot(next)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode wishlist")
		}

		var written bool
		if found {
			written, err = s.swap(ctx, current, payload)
		} else {
			written, err = s.insert(ctx, key, payload)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write wishlist")
		}
		if written {
			return next, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "wishlist is being updated concurrently, retry")
}

func (s *SQLStorage) read(ctx context.Context, key string) (models.CartSlot, bool, error) {
	var slot models.CartSlot
	err := s.conn.WithContext(ctx).Where("slot = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CartSlot{}, false, nil
	}
	if err != nil {
		return models.CartSlot{}, false, err
	}
	return slot, true, nil
}

func (s *SQLStorage) swap(ctx context.Context, current models.CartSlot, payload string) (bool, error) {
	res := s.conn.WithContext(ctx).
		Model(&models.CartSlot{}).
		Where("slot = ? AND version = ?", current.Slot, current.Version).
		Updates(map[string]any{
			"payload":    payload,
			"version":    current.Version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLStorage) insert(ctx context.Context, key, payload string) (bool, error) {
	err := s.conn.WithContext(ctx).Create(&models.CartSlot{
		Slot:    key,
		Payload: payload,
		Version: 1,
	}).Error
	if db.IsUniqueViolation(err, "") {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStorage) decode(ctx context.Context, slot models.CartSlot) []Item {
	items, ok := decodeSlot(slot.Payload)
	if !ok {
		warnCorruptSlot(ctx, s.logg, s.Name(), slot.Slot)
	}
	return items
}
