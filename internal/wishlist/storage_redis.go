package wishlist

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/redis"
)

type slotTransactor interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Transact(ctx context.Context, key string, ttl time.Duration, fn func(current string, exists bool) (string, error)) error
	WishlistKey(cartID string) string
}

// RedisStorage keeps each wishlist under its own key, written with
// WATCH/MULTI and retried on conflict.
type RedisStorage struct {
	client     slotTransactor
	ttl        time.Duration
	maxRetries int
	logg       *logger.Logger
}

func NewRedisStorage(client slotTransactor, ttl time.Duration, maxRetries int, logg *logger.Logger) *RedisStorage {
	if maxRetries <= 0 {
		maxRetries = 8
	}
	return &RedisStorage{client: client, ttl: ttl, maxRetries: maxRetries, logg: logg}
}

func (r *RedisStorage) Name() string { return "redis" }

func (r *RedisStorage) Load(ctx context.Context, cartID string) ([]Item, error) {
	key := r.client.WishlistKey(cartID)
	payload, _, err := r.client.Get(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist")
	}
	return r.decode(ctx, key, payload), nil
}

func (r *RedisStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Item, error) {
	key := r.client.WishlistKey(cartID)

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		var result []Item
		err := r.client.Transact(ctx, key, r.ttl, func(current string, _ bool) (string, error) {
			items := r.decode(ctx, key, current)
			next, err := fn(cloneItems(items))
			if err != nil {
				result = items
				return "", err
			}
			result = next
			return encodeSlot(next)
		})
		switch {
		case err == nil, errors.Is(err, errUnchanged):
			return result, nil
		case errors.Is(err, redis.ErrConflict):
			continue
		case pkgerrors.As(err) != nil:
			return nil, err
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wishlist")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "wishlist is being updated concurrently, retry")
}

func (r *RedisStorage) decode(ctx context.Context, key, payload string) []Item {
	items, ok := decodeSlot(payload)
	if !ok {
		warnCorruptSlot(ctx, r.logg, r.Name(), key)
	}
	return items
}
