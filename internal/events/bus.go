package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/zaavg/storefront/pkg/logger"
)

// Event says that a cart changed. It carries no delta: listeners reload the
// whole cart.
type Event struct {
	CartID string `json:"cart_id"`
}

// Listener handles one event. Listeners run synchronously on the notifying
// goroutine and must not block.
type Listener func(ctx context.Context, evt Event)

// Publisher forwards locally raised events to other processes.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Bus is the process-wide cart change channel.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
	publisher Publisher
	logg      *logger.Logger
}

func NewBus(logg *logger.Logger) *Bus {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Bus{listeners: make(map[uint64]Listener), logg: logg}
}

// SetPublisher attaches a cross-process publisher; nil detaches it.
func (b *Bus) SetPublisher(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publisher = p
}

// Subscribe registers l and returns a func that detaches it. Subscribing to a
// closed bus returns a no-op detach.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || l == nil {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Notify delivers the change to local listeners and, when a publisher is
// attached, to other processes.
func (b *Bus) Notify(ctx context.Context, cartID string) {
	evt := Event{CartID: cartID}
	b.Deliver(ctx, evt)

	b.mu.RLock()
	pub := b.publisher
	b.mu.RUnlock()
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		b.logg.Error(b.logg.WithCartID(ctx, cartID), "publish cart event failed", err)
	}
}

// Deliver hands evt to local listeners only.
func (b *Bus) Deliver(ctx context.Context, evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.call(ctx, l, evt)
	}
}

func (b *Bus) call(ctx context.Context, l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logg.Error(b.logg.WithCartID(ctx, evt.CartID), "cart listener panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	l(ctx, evt)
}

// Len returns the number of attached listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close detaches every listener; later notifications are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = make(map[uint64]Listener)
	return nil
}
