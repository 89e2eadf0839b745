package cart

import (
	"context"
	"testing"

	"github.com/zaavg/storefront/internal/events"
)

func TestMirrorsReloadOnNotification(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	chain := product("Gold Chain", "", "50")
	lookup := stubCatalog{ring.Key: ring, chain.Key: chain}

	bus := events.NewBus(nil)
	storage := NewMemoryStorage(nil)
	ctx := context.Background()

	badgeStore, _ := NewService(storage, lookup, bus, Options{})
	panelStore, _ := NewService(storage, lookup, bus, Options{})

	badge, err := NewMirror(ctx, "cart", badgeStore, bus, nil)
	if err != nil {
		t.Fatalf("badge mirror: %v", err)
	}
	defer badge.Close()
	panel, err := NewMirror(ctx, "cart", panelStore, bus, nil)
	if err != nil {
		t.Fatalf("panel mirror: %v", err)
	}
	defer panel.Close()
	other, err := NewMirror(ctx, "someone-else", panelStore, bus, nil)
	if err != nil {
		t.Fatalf("other mirror: %v", err)
	}
	defer other.Close()

	// each surface writes through its own store without seeing the other
	_, _ = badgeStore.AddItem(ctx, "cart", ring, 2, Sized("M"))
	_, _ = panelStore.AddItem(ctx, "cart", chain, 1, Sizeless())

	for name, m := range map[string]*Mirror{"badge": badge, "panel": panel} {
		if got := len(m.Lines()); got != 2 {
			t.Fatalf("%s mirror has %d lines, want 2", name, got)
		}
		if got := m.Count(); got != 3 {
			t.Fatalf("%s mirror counts %d units, want 3", name, got)
		}
	}
	if len(other.Lines()) != 0 {
		t.Fatalf("mirror of another cart must not change")
	}
}

func TestMirrorClosesWhenCartEmpties(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	bus := events.NewBus(nil)
	svc, _ := NewService(NewMemoryStorage(nil), stubCatalog{ring.Key: ring}, bus, Options{})
	ctx := context.Background()

	panel, err := NewMirror(ctx, "cart", svc, bus, nil)
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	defer panel.Close()

	panel.SetOpen(true)
	if panel.IsOpen() {
		t.Fatalf("an empty cart cannot be opened")
	}

	_, _ = svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	panel.SetOpen(true)
	if !panel.IsOpen() {
		t.Fatalf("expected panel to open")
	}

	_, _ = svc.RemoveItem(ctx, "cart", IdentityKey(ring.Key, Sized("M")))
	if panel.IsOpen() {
		t.Fatalf("removing the last line must close the panel")
	}
}

func TestMirrorCloseStopsUpdates(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	bus := events.NewBus(nil)
	svc, _ := NewService(NewMemoryStorage(nil), stubCatalog{ring.Key: ring}, bus, Options{})
	ctx := context.Background()

	m, err := NewMirror(ctx, "cart", svc, bus, nil)
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	m.Close()

	_, _ = svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	if len(m.Lines()) != 0 {
		t.Fatalf("closed mirror must not reload")
	}
	if bus.Len() != 0 {
		t.Fatalf("expected listener detached, got %d", bus.Len())
	}
}
