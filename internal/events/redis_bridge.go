package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/zaavg/storefront/pkg/logger"
)

// Broker is the pub/sub surface of the redis client.
type Broker interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)
}

type envelope struct {
	CartID string `json:"cart_id"`
	Origin string `json:"origin"`
}

// RedisBridge relays cart events between processes sharing one storage.
// Messages published by this process are not delivered back to it.
type RedisBridge struct {
	broker  Broker
	channel string
	bus     *Bus
	origin  string
	logg    *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closer func() error
	done   chan struct{}
}

func NewRedisBridge(broker Broker, channel string, bus *Bus, logg *logger.Logger) *RedisBridge {
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisBridge{
		broker:  broker,
		channel: channel,
		bus:     bus,
		origin:  uuid.NewString(),
		logg:    logg,
	}
}

// Publish implements Publisher.
func (r *RedisBridge) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(envelope{CartID: evt.CartID, Origin: r.origin})
	if err != nil {
		return err
	}
	return r.broker.Publish(ctx, r.channel, string(payload))
}

// Start subscribes to the channel, attaches the bridge as the bus publisher
// and relays remote events until Close or ctx cancellation.
func (r *RedisBridge) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("redis bridge already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	messages, closer, err := r.broker.Subscribe(ctx, r.channel)
	if err != nil {
		cancel()
		return err
	}
	r.cancel = cancel
	r.closer = closer
	r.done = make(chan struct{})
	r.bus.SetPublisher(r)

	go r.relay(ctx, messages, r.done)
	r.logg.Info(r.logg.WithField(ctx, "channel", r.channel), "cart event bridge started")
	return nil
}

func (r *RedisBridge) relay(ctx context.Context, messages <-chan string, done chan struct{}) {
	defer close(done)
	for payload := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil || env.CartID == "" {
			r.logg.Warn(r.logg.WithField(ctx, "payload", payload), "dropping malformed cart event")
			continue
		}
		if env.Origin == r.origin {
			continue
		}
		r.bus.Deliver(ctx, Event{CartID: env.CartID})
	}
}

// Close stops relaying and detaches the bridge from the bus.
func (r *RedisBridge) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil
	}
	r.bus.SetPublisher(nil)
	r.cancel()
	var err error
	if r.closer != nil {
		err = r.closer()
	}
	<-r.done
	r.cancel = nil
	return err
}
