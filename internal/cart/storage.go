package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/zaavg/storefront/pkg/logger"
)

// UpdateFunc receives the freshly read lines and returns the lines to write.
// Storages that retry on conflicts may call it more than once, so it must not
// keep state between calls.
type UpdateFunc func(lines []Line) ([]Line, error)

// Storage persists one slot per cart. Update performs the read, the call to
// fn and the write-back as one exclusive (or optimistically retried) unit.
type Storage interface {
	Load(ctx context.Context, cartID string) ([]Line, error)
	Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Line, error)
	Ping(ctx context.Context) error
	Name() string
}

// errUnchanged lets an UpdateFunc skip the write-back.
var errUnchanged = errors.New("cart unchanged")

// decodeSlot parses a persisted slot. Anything that is not a JSON array of
// lines is treated as an empty cart; ok reports whether the payload was clean.
func decodeSlot(payload string) (lines []Line, ok bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "null" {
		return []Line{}, true
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return []Line{}, false
	}

	ok = true
	lines = make([]Line, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		var line Line
		if err := json.Unmarshal(item, &line); err != nil || line.ProductKey == "" || line.Quantity < 1 {
			ok = false
			continue
		}
		if _, dup := seen[line.Key()]; dup {
			ok = false
			continue
		}
		seen[line.Key()] = struct{}{}
		lines = append(lines, line)
	}
	return lines, ok
}

func encodeSlot(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func warnCorruptSlot(ctx context.Context, logg *logger.Logger, driver, slot, payload string) {
	if logg == nil {
		return
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"driver":  driver,
		"slot":    slot,
		"payload": truncate(payload, 256),
	})
	logg.Warn(ctx, "cart slot is corrupt, treating unreadable entries as absent")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
