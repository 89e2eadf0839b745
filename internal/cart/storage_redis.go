package cart

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
	"github.com/zaavg/storefront/pkg/redis"
)

type slotTransactor interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Transact(ctx context.Context, key string, ttl time.Duration, fn func(current string, exists bool) (string, error)) error
	CartKey(slotPrefix, cartID string) string
	Ping(ctx context.Context) error
}

// RedisStorage keeps each cart under its own key and writes with
// WATCH/MULTI, retrying when another writer got there first.
type RedisStorage struct {
	client     slotTransactor
	prefix     string
	ttl        time.Duration
	maxRetries int
	logg       *logger.Logger
	metrics    *metrics.CartMetrics
}

type RedisStorageOptions struct {
	SlotPrefix string
	TTL        time.Duration
	MaxRetries int
}

func NewRedisStorage(client slotTransactor, opts RedisStorageOptions, logg *logger.Logger, m *metrics.CartMetrics) *RedisStorage {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 8
	}
	return &RedisStorage{
		client:     client,
		prefix:     opts.SlotPrefix,
		ttl:        opts.TTL,
		maxRetries: opts.MaxRetries,
		logg:       logg,
		metrics:    m,
	}
}

func (r *RedisStorage) Name() string {
	return "redis"
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func (r *RedisStorage) Load(ctx context.Context, cartID string) ([]Line, error) {
	key := r.client.CartKey(r.prefix, cartID)
	payload, _, err := r.client.Get(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return r.decode(ctx, key, payload), nil
}

func (r *RedisStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Line, error) {
	key := r.client.CartKey(r.prefix, cartID)

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		var result []Line
		err := r.client.Transact(ctx, key, r.ttl, func(current string, _ bool) (string, error) {
			lines := r.decode(ctx, key, current)
			next, err := fn(cloneLines(lines))
			if err != nil {
				result = lines
				return "", err
			}
			result = next
			return encodeSlot(next)
		})
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, errUnchanged):
			return result, nil
		case errors.Is(err, redis.ErrConflict):
			r.metrics.IncConflict(r.Name())
			continue
		case pkgerrors.As(err) != nil:
			return nil, err
		case ctx.Err() != nil:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "update cart")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is being updated concurrently, retry")
}

func (r *RedisStorage) decode(ctx context.Context, key, payload string) []Line {
	lines, ok := decodeSlot(payload)
	if !ok {
		warnCorruptSlot(ctx, r.logg, r.Name(), key, payload)
	}
	return lines
}
