package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/zaavg/storefront/pkg/logger"
)

// UpdateFunc receives the current items and returns the items to write. It
// may be called more than once when a storage retries.
type UpdateFunc func(items []Item) ([]Item, error)

// Storage persists one wishlist slot per cart id.
type Storage interface {
	Load(ctx context.Context, cartID string) ([]Item, error)
	Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Item, error)
	Name() string
}

var errUnchanged = errors.New("wishlist unchanged")

// decodeSlot keeps every well-formed entry and drops the rest. ok is false
// when anything had to be dropped.
func decodeSlot(payload string) (items []Item, ok bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "null" {
		return []Item{}, true
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return []Item{}, false
	}

	ok = true
	items = make([]Item, 0, len(raw))
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal(entry, &item); err != nil || item.ProductKey == "" || indexOf(items, item.ProductKey) >= 0 {
			ok = false
			continue
		}
		items = append(items, item)
	}
	return items, ok
}

func encodeSlot(items []Item) (string, error) {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func warnCorruptSlot(ctx context.Context, logg *logger.Logger, driver, slot string) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{"driver": driver, "slot": slot}), "wishlist slot is corrupt, dropping unreadable entries")
}
