package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memoryBroker fans published payloads out to every subscriber, like a
// single redis channel shared by several processes.
type memoryBroker struct {
	mu   sync.Mutex
	subs []chan string
}

func (m *memoryBroker) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub <- payload
	}
	return nil
}

func (m *memoryBroker) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	in := make(chan string, 16)
	out := make(chan string)
	m.mu.Lock()
	m.subs = append(m.subs, in)
	m.mu.Unlock()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-in:
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() error { return nil }, nil
}

func TestRedisBridgeRelaysBetweenProcesses(t *testing.T) {
	t.Parallel()

	broker := &memoryBroker{}
	busA, busB := NewBus(nil), NewBus(nil)
	bridgeA := NewRedisBridge(broker, "cart_updated", busA, nil)
	bridgeB := NewRedisBridge(broker, "cart_updated", busB, nil)

	ctx := context.Background()
	if err := bridgeA.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := bridgeB.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	t.Cleanup(func() {
		_ = bridgeA.Close()
		_ = bridgeB.Close()
	})

	receivedB := make(chan Event, 4)
	busB.Subscribe(func(ctx context.Context, evt Event) { receivedB <- evt })
	echoedA := make(chan Event, 4)
	busA.Subscribe(func(ctx context.Context, evt Event) { echoedA <- evt })

	busA.Notify(ctx, "cart-42")

	select {
	case evt := <-receivedB:
		if evt.CartID != "cart-42" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remote bus never received the event")
	}

	// the local delivery happens once, the bridge must not echo it back
	<-echoedA
	select {
	case evt := <-echoedA:
		t.Fatalf("event echoed back to origin: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisBridgeDropsMalformedPayloads(t *testing.T) {
	t.Parallel()

	broker := &memoryBroker{}
	bus := NewBus(nil)
	bridge := NewRedisBridge(broker, "cart_updated", bus, nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer bridge.Close()

	received := make(chan Event, 2)
	bus.Subscribe(func(ctx context.Context, evt Event) { received <- evt })

	_ = broker.Publish(context.Background(), "cart_updated", "not json")
	_ = broker.Publish(context.Background(), "cart_updated", `{"cart_id":"c1","origin":"elsewhere"}`)

	select {
	case evt := <-received:
		if evt.CartID != "c1" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("valid event was not relayed")
	}
}

func TestRedisBridgeStartTwiceFails(t *testing.T) {
	t.Parallel()

	bridge := NewRedisBridge(&memoryBroker{}, "c", NewBus(nil), nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer bridge.Close()
	if err := bridge.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}
