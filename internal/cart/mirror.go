package cart

import (
	"context"
	"sync"

	"github.com/zaavg/storefront/internal/events"
	"github.com/zaavg/storefront/pkg/logger"
)

type subscriber interface {
	Subscribe(l events.Listener) (unsubscribe func())
}

type linesLoader interface {
	Lines(ctx context.Context, cartID string) ([]Line, error)
}

// Mirror is a read-only copy of one cart, as held by a badge or a cart panel.
// It never shares memory with the store: on every change notification for
// its cart it reloads the full persisted state.
type Mirror struct {
	cartID string
	loader linesLoader
	logg   *logger.Logger

	mu          sync.RWMutex
	lines       []Line
	open        bool
	unsubscribe func()
}

// NewMirror loads the current cart and starts following bus notifications.
func NewMirror(ctx context.Context, cartID string, loader linesLoader, bus subscriber, logg *logger.Logger) (*Mirror, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	m := &Mirror{cartID: cartID, loader: loader, logg: logg}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	m.unsubscribe = bus.Subscribe(func(ctx context.Context, evt events.Event) {
		if evt.CartID != m.cartID {
			return
		}
		if err := m.Reload(ctx); err != nil {
			m.logg.Error(m.logg.WithCartID(ctx, m.cartID), "mirror reload failed", err)
		}
	})
	return m, nil
}

// Reload replaces the mirrored lines with the persisted ones. An empty cart
// closes the mirror.
func (m *Mirror) Reload(ctx context.Context) error {
	lines, err := m.loader.Lines(ctx, m.cartID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = cloneLines(lines)
	if len(m.lines) == 0 {
		m.open = false
	}
	return nil
}

func (m *Mirror) Lines() []Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneLines(m.lines)
}

// Count is the number of units across all lines.
func (m *Mirror) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, line := range m.lines {
		total += line.Quantity
	}
	return total
}

func (m *Mirror) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// SetOpen toggles visibility. An empty cart cannot be opened.
func (m *Mirror) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open && len(m.lines) > 0
}

// Close stops following notifications.
func (m *Mirror) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}
