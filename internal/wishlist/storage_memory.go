package wishlist

import (
	"context"
	"errors"
	"sync"

	"github.com/zaavg/storefront/pkg/logger"
)

// MemoryStorage keeps wishlists in process memory.
type MemoryStorage struct {
	mu    sync.Mutex
	slots map[string]string
	logg  *logger.Logger
}

func NewMemoryStorage(logg *logger.Logger) *MemoryStorage {
	return &MemoryStorage{slots: make(map[string]string), logg: logg}
}

func (m *MemoryStorage) Name() string { return "memory" }

func (m *MemoryStorage) Load(ctx context.Context, cartID string) ([]Item, error) {
	m.mu.Lock()
	payload := m.slots[cartID]
	m.mu.Unlock()
	return m.decode(ctx, cartID, payload), nil
}

func (m *MemoryStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.decode(ctx, cartID, m.slots[cartID])
	next, err := fn(cloneItems(current))
	if errors.Is(err, errUnchanged) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	payload, err := encodeSlot(next)
	if err != nil {
		return nil, err
	}
	m.slots[cartID] = payload
	return next, nil
}

// Put stores a raw payload, bypassing the codec.
func (m *MemoryStorage) Put(cartID, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[cartID] = payload
}

func (m *MemoryStorage) decode(ctx context.Context, cartID, payload string) []Item {
	items, ok := decodeSlot(payload)
	if !ok {
		warnCorruptSlot(ctx, m.logg, m.Name(), cartID)
	}
	return items
}
