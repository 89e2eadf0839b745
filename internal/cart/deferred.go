package cart

import (
	"context"
	"sync"
	"time"

	"github.com/zaavg/storefront/pkg/logger"
)

// DefaultUndoWindow is how long a scheduled removal can still be undone.
const DefaultUndoWindow = 3 * time.Second

type remover interface {
	RemoveItem(ctx context.Context, cartID, key string) ([]Line, error)
}

// DeferredRemover schedules line removals that can be undone within a window.
// It only ever calls RemoveItem, which is idempotent, so a timer racing with
// a manual removal is harmless.
type DeferredRemover struct {
	store  remover
	window time.Duration
	logg   *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewDeferredRemover(store remover, window time.Duration, logg *logger.Logger) *DeferredRemover {
	if window <= 0 {
		window = DefaultUndoWindow
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &DeferredRemover{
		store:   store,
		window:  window,
		logg:    logg,
		pending: make(map[string]*time.Timer),
	}
}

func pendingKey(cartID, key string) string {
	return cartID + "\x00" + key
}

// Schedule arms the removal of key, restarting the window if one is already
// pending. It returns the deadline.
func (d *DeferredRemover) Schedule(cartID, key string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	deadline := time.Now().Add(d.window)
	if d.stopped {
		return deadline
	}
	id := pendingKey(cartID, key)
	if timer, ok := d.pending[id]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.pending[id] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.pending, id)
		d.mu.Unlock()

		ctx := d.logg.WithFields(context.Background(), map[string]any{"cart_id": cartID, "line_key": key})
		if _, err := d.store.RemoveItem(ctx, cartID, key); err != nil {
			d.logg.Error(ctx, "deferred cart removal failed", err)
		}
	})
	d.pending[id] = timer
	return deadline
}

// Undo cancels a pending removal. It reports false when nothing was pending,
// including when the removal already ran.
func (d *DeferredRemover) Undo(cartID, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked(pendingKey(cartID, key))
}

// cancelLocked drops the pending entry. A timer that already fired but is
// still waiting for d.mu finds its entry gone and skips the removal, so
// dropping the entry is what counts, not whether Stop caught the timer.
func (d *DeferredRemover) cancelLocked(id string) bool {
	timer, ok := d.pending[id]
	if !ok {
		return false
	}
	delete(d.pending, id)
	timer.Stop()
	return true
}

// Pending reports whether a removal is scheduled for key.
func (d *DeferredRemover) Pending(cartID, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[pendingKey(cartID, key)]
	return ok
}

// Stop cancels every pending removal; later Schedule calls are ignored.
func (d *DeferredRemover) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
}
