package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/metrics"
	"github.com/zaavg/storefront/pkg/redis"
)

// fakeSlots mimics WATCH/MULTI: a transaction fails with ErrConflict when the
// key changed between its read and its write.
type fakeSlots struct {
	mu        sync.Mutex
	data      map[string]string
	version   map[string]int
	interfere func(key string)
	failGet   error
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{data: map[string]string{}, version: map[string]int{}}
}

func (f *fakeSlots) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", false, f.failGet
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeSlots) Transact(ctx context.Context, key string, ttl time.Duration, fn func(string, bool) (string, error)) error {
	f.mu.Lock()
	current, exists := f.data[key]
	seen := f.version[key]
	interfere := f.interfere
	f.mu.Unlock()

	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	if interfere != nil {
		interfere(key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.version[key] != seen {
		return redis.ErrConflict
	}
	f.data[key] = next
	f.version[key]++
	return nil
}

func (f *fakeSlots) CartKey(prefix, cartID string) string {
	return "sf:cart:" + prefix + ":" + cartID
}

func (f *fakeSlots) Ping(context.Context) error { return nil }

func (f *fakeSlots) write(key, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = payload
	f.version[key]++
}

func TestRedisStorageRetriesOnConflictWithoutLosingTheOtherWrite(t *testing.T) {
	t.Parallel()

	slots := newFakeSlots()
	reg := prometheus.NewRegistry()
	storage := NewRedisStorage(slots, RedisStorageOptions{SlotPrefix: "cart", MaxRetries: 3}, nil, metrics.NewCartMetrics(reg))

	interfered := false
	slots.interfere = func(key string) {
		if interfered {
			return
		}
		interfered = true
		other, _ := encodeSlot([]Line{{ProductKey: "chain", Name: "Chain", Quantity: 1}})
		slots.write(key, other)
	}

	calls := 0
	lines, err := storage.Update(context.Background(), "abc", func(lines []Line) ([]Line, error) {
		calls++
		return append(lines, Line{ProductKey: "ring", Name: "Ring", Size: Sized("M"), Quantity: 1}), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the update to be retried once, got %d calls", calls)
	}
	if len(lines) != 2 {
		t.Fatalf("expected both writes to survive, got %+v", lines)
	}
	if got := storageConflicts(t, reg); got != 1 {
		t.Fatalf("expected one recorded conflict, got %v", got)
	}

	persisted, err := storage.Load(context.Background(), "abc")
	if err != nil || len(persisted) != 2 {
		t.Fatalf("expected persisted lines to match, got %+v err=%v", persisted, err)
	}
}

func TestRedisStorageGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	slots := newFakeSlots()
	storage := NewRedisStorage(slots, RedisStorageOptions{MaxRetries: 2}, nil, nil)
	slots.interfere = func(key string) { slots.write(key, "[]") }

	_, err := storage.Update(context.Background(), "abc", func(lines []Line) ([]Line, error) {
		return append(lines, Line{ProductKey: "ring", Quantity: 1}), nil
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestRedisStorageUnchangedSkipsWrite(t *testing.T) {
	t.Parallel()

	slots := newFakeSlots()
	storage := NewRedisStorage(slots, RedisStorageOptions{}, nil, nil)
	key := slots.CartKey("", "abc")
	payload, _ := encodeSlot([]Line{{ProductKey: "ring", Quantity: 2}})
	slots.write(key, payload)

	lines, err := storage.Update(context.Background(), "abc", func(lines []Line) ([]Line, error) {
		return nil, errUnchanged
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("expected current lines back, got %+v", lines)
	}
	if slots.version[key] != 1 {
		t.Fatalf("unchanged update must not write")
	}
}

func TestRedisStorageLoadFailureIsDependencyError(t *testing.T) {
	t.Parallel()

	slots := newFakeSlots()
	slots.failGet = errors.New("connection refused")
	storage := NewRedisStorage(slots, RedisStorageOptions{}, nil, nil)

	if _, err := storage.Load(context.Background(), "abc"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRedisStorageCorruptPayloadIsEmpty(t *testing.T) {
	t.Parallel()

	slots := newFakeSlots()
	storage := NewRedisStorage(slots, RedisStorageOptions{}, nil, nil)
	slots.write(slots.CartKey("", "abc"), "definitely not json")

	lines, err := storage.Load(context.Background(), "abc")
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v err=%v", lines, err)
	}
}

func storageConflicts(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "cart_storage_conflicts_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("conflict metric not registered")
	return 0
}
