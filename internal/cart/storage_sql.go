package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zaavg/storefront/pkg/db"
	"github.com/zaavg/storefront/pkg/db/models"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
)

// SQLStorage keeps one cart_slots row per cart and writes it with a
// version compare-and-swap.
type SQLStorage struct {
	conn       *gorm.DB
	driver     string
	prefix     string
	maxRetries int
	logg       *logger.Logger
	metrics    *metrics.CartMetrics
}

type SQLStorageOptions struct {
	Driver     string
	SlotPrefix string
	MaxRetries int
}

func NewSQLStorage(conn *gorm.DB, opts SQLStorageOptions, logg *logger.Logger, m *metrics.CartMetrics) *SQLStorage {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 8
	}
	if opts.Driver == "" {
		opts.Driver = "postgres"
	}
	return &SQLStorage{
		conn:       conn,
		driver:     opts.Driver,
		prefix:     opts.SlotPrefix,
		maxRetries: opts.MaxRetries,
		logg:       logg,
		metrics:    m,
	}
}

func (s *SQLStorage) Name() string {
	return s.driver
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStorage) slot(cartID string) string {
	if s.prefix == "" {
		return cartID
	}
	return s.prefix + ":" + cartID
}

func (s *SQLStorage) Load(ctx context.Context, cartID string) ([]Line, error) {
	slot, found, err := s.read(ctx, s.slot(cartID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if !found {
		return []Line{}, nil
	}
	return s.decode(ctx, slot), nil
}

func (s *SQLStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Line, error) {
	key := s.slot(cartID)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		current, found, err := s.read(ctx, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		lines := []Line{}
		if found {
			lines = s.decode(ctx, current)
		}

		next, err := fn(cloneLines(lines))
		if errors.Is(err, errUnchanged) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		payload, err := encodeSlot(next)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
		}

		var written bool
		if found {
			written, err = s.swap(ctx, current, payload)
		} else {
			written, err = s.insert(ctx, key, payload)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write cart")
		}
		if written {
			return next, nil
		}
		s.metrics.IncConflict(s.Name())
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is being updated concurrently, retry")
}

// PurgeBefore deletes this storage's slots last written before cutoff.
func (s *SQLStorage) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.conn.WithContext(ctx).Where("updated_at < ?", cutoff.UTC())
	if s.prefix != "" {
		query = query.Where("slot LIKE ?", s.prefix+":%")
	}
	res := query.Delete(&models.CartSlot{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "purge cart slots")
	}
	return res.RowsAffected, nil
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

func (s *SQLStorage) decode(ctx context.Context, slot models.CartSlot) []Line {
	lines, ok := decodeSlot(slot.Payload)
	if !ok {
		warnCorruptSlot(ctx, s.logg, s.Name(), slot.Slot, slot.Payload)
	}
	return lines
}
