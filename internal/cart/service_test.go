package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zaavg/storefront/internal/catalog"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

type stubCatalog map[string]catalog.Product

func (s stubCatalog) ProductByKey(key string) (catalog.Product, bool) {
	p, ok := s[key]
	return p, ok
}

type recordingNotifier struct {
	mu    sync.Mutex
	carts []string
}

func (r *recordingNotifier) Notify(ctx context.Context, cartID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts = append(r.carts, cartID)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

func product(name, stock string, price string) catalog.Product {
	p, _ := catalog.FromRow(catalog.Row{Name: catalog.Cell(name), Sizes: catalog.Cell(stock), Price: catalog.Cell(price)})
	return p
}

func newTestService(t *testing.T, products ...catalog.Product) (Service, *MemoryStorage, *recordingNotifier) {
	t.Helper()
	lookup := stubCatalog{}
	for _, p := range products {
		lookup[p.Key] = p
	}
	storage := NewMemoryStorage(nil)
	notifier := &recordingNotifier{}
	svc, err := NewService(storage, lookup, notifier, Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, storage, notifier
}

func TestAddItemMergesAndClampsToStock(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 2}`, "100")
	svc, _, notifier := newTestService(t, ring)
	ctx := context.Background()

	first, err := svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.Outcome != OutcomeAdded || first.Applied != 1 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := svc.AddItem(ctx, "cart", ring, 5, Sized("M"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if second.Outcome != OutcomeClamped || second.Applied != 1 || second.Quantity != 2 || !second.Clamped() {
		t.Fatalf("unexpected second result %+v", second)
	}

	lines, err := svc.Lines(ctx, "cart")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("expected one line with quantity 2, got %+v", lines)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", notifier.count())
	}
}

func TestAddItemAtCapacityIsNoop(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 2}`, "100")
	svc, _, notifier := newTestService(t, ring)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "cart", ring, 2, Sized("M")); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Applied != 0 || res.Quantity != 2 || res.Outcome != OutcomeClamped {
		t.Fatalf("unexpected result %+v", res)
	}
	if notifier.count() != 1 {
		t.Fatalf("no-op add must not notify, got %d notifications", notifier.count())
	}
}

func TestAddItemZeroStockNeverCreatesLine(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 0}`, "100")
	svc, _, notifier := newTestService(t, ring)
	ctx := context.Background()

	res, err := svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Outcome != OutcomeSoldOut || res.Applied != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	lines, _ := svc.Lines(ctx, "cart")
	if len(lines) != 0 {
		t.Fatalf("expected unchanged empty cart, got %+v", lines)
	}
	if notifier.count() != 0 {
		t.Fatalf("sold-out add must not notify")
	}

	// unknown sizes behave like sold out sizes
	if res, _ := svc.AddItem(ctx, "cart", ring, 1, Sized("XL")); res.Outcome != OutcomeSoldOut {
		t.Fatalf("expected unknown size to be sold out, got %+v", res)
	}
}

func TestAddItemIgnoresInvalidRequests(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 3}`, "100")
	chain := product("Gold Chain", "", "50")
	svc, _, _ := newTestService(t, ring, chain)
	ctx := context.Background()

	cases := []struct {
		name string
		p    catalog.Product
		qty  int
		size Size
	}{
		{name: "zero quantity", p: ring, qty: 0, size: Sized("M")},
		{name: "negative quantity", p: ring, qty: -2, size: Sized("M")},
		{name: "sized product without size", p: ring, qty: 1, size: Sizeless()},
		{name: "sizeless product with size", p: chain, qty: 1, size: Sized("M")},
	}
	for _, tc := range cases {
		res, err := svc.AddItem(ctx, "cart", tc.p, tc.qty, tc.size)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if res.Outcome != OutcomeIgnored {
			t.Fatalf("%s: expected ignored, got %+v", tc.name, res)
		}
	}
	if lines, _ := svc.Lines(ctx, "cart"); len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", lines)
	}
}

func TestAddItemSizelessUsesUnlimitedSentinel(t *testing.T) {
	t.Parallel()
	chain := product("Gold Chain", "", "50")
	svc, _, _ := newTestService(t, chain)
	ctx := context.Background()

	res, err := svc.AddItem(ctx, "cart", chain, 1000, Sizeless())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Quantity != DefaultUnlimitedStock {
		t.Fatalf("expected clamp to %d, got %+v", DefaultUnlimitedStock, res)
	}
	lines, _ := svc.Lines(ctx, "cart")
	if got := svc.AvailableStock(lines[0]); got != DefaultUnlimitedStock {
		t.Fatalf("expected unlimited sentinel, got %d", got)
	}
}

func TestAddItemKeepsSizesApart(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"16": 3, "17": 3}`, "100")
	svc, _, _ := newTestService(t, ring)
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, "cart", ring, 1, Sized("16"))
	_, _ = svc.AddItem(ctx, "cart", ring, 2, Sized("17"))
	_, _ = svc.AddItem(ctx, "cart", ring, 1, Sized("16"))

	lines, _ := svc.Lines(ctx, "cart")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[0].Key() != "silver-ring-16" || lines[0].Quantity != 2 {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].Key() != "silver-ring-17" || lines[1].Quantity != 2 {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
}

func TestUpdateQuantity(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	svc, _, _ := newTestService(t, ring)
	ctx := context.Background()
	key := IdentityKey(ring.Key, Sized("M"))

	if _, err := svc.AddItem(ctx, "cart", ring, 1, Sized("M")); err != nil {
		t.Fatalf("add: %v", err)
	}

	hint := 3
	lines, err := svc.UpdateQuantity(ctx, "cart", key, 10, &hint)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if lines[0].Quantity != 3 {
		t.Fatalf("expected hint clamp to 3, got %d", lines[0].Quantity)
	}

	zero := 0
	lines, _ = svc.UpdateQuantity(ctx, "cart", key, 7, &zero)
	if lines[0].Quantity != 3 {
		t.Fatalf("zero hint must refuse a raise, got %d", lines[0].Quantity)
	}
	lines, _ = svc.UpdateQuantity(ctx, "cart", key, 4, nil)
	if lines[0].Quantity != 4 {
		t.Fatalf("missing hint must not clamp, got %d", lines[0].Quantity)
	}

	lines, _ = svc.UpdateQuantity(ctx, "cart", "missing-key", 2, nil)
	if len(lines) != 1 || lines[0].Quantity != 4 {
		t.Fatalf("absent key must be a no-op, got %+v", lines)
	}
}

func TestUpdateQuantitySoldOutAfterRefreshCannotRaise(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 2}`, "100")
	lookup := stubCatalog{ring.Key: ring}
	svc, err := NewService(NewMemoryStorage(nil), lookup, nil, Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	key := IdentityKey(ring.Key, Sized("M"))
	if _, err := svc.AddItem(ctx, "cart", ring, 2, Sized("M")); err != nil {
		t.Fatalf("add: %v", err)
	}

	lookup[ring.Key] = product("Silver Ring", `{"M": 0}`, "100")
	lines, _ := svc.Lines(ctx, "cart")
	available := svc.AvailableStock(lines[0])
	if available != 0 {
		t.Fatalf("expected sold-out size, got %d", available)
	}

	lines, err = svc.UpdateQuantity(ctx, "cart", key, 50, &available)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("sold-out line must keep its quantity, got %+v", lines)
	}

	lines, _ = svc.UpdateQuantity(ctx, "cart", key, 1, &available)
	if lines[0].Quantity != 1 {
		t.Fatalf("lowering a sold-out line must still work, got %d", lines[0].Quantity)
	}
}

func TestCappedQuantity(t *testing.T) {
	t.Parallel()
	three, zero := 3, 0
	tests := []struct {
		name               string
		current, requested int
		hint               *int
		want               int
	}{
		{"no hint", 1, 40, nil, 40},
		{"within stock", 1, 2, &three, 2},
		{"raise clamps", 1, 10, &three, 3},
		{"sold out keeps", 2, 9, &zero, 2},
		{"sold out lowers", 2, 1, &zero, 1},
		{"above shrunk stock keeps", 5, 8, &three, 5},
	}
	for _, tt := range tests {
		if got := cappedQuantity(tt.current, tt.requested, tt.hint); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestUpdateQuantityZeroEqualsRemove(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	chain := product("Gold Chain", "", "50")
	svc, _, _ := newTestService(t, ring, chain)
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, "cart", ring, 2, Sized("M"))
	_, _ = svc.AddItem(ctx, "cart", chain, 1, Sizeless())

	lines, err := svc.UpdateQuantity(ctx, "cart", IdentityKey(ring.Key, Sized("M")), 0, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductKey != chain.Key {
		t.Fatalf("expected ring line to disappear, got %+v", lines)
	}
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	chain := product("Gold Chain", "", "50")
	svc, _, notifier := newTestService(t, ring, chain)
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, "cart", ring, 2, Sized("M"))
	_, _ = svc.AddItem(ctx, "cart", chain, 1, Sizeless())
	key := IdentityKey(ring.Key, Sized("M"))

	once, err := svc.RemoveItem(ctx, "cart", key)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	twice, err := svc.RemoveItem(ctx, "cart", key)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if len(once) != 1 || len(twice) != 1 || once[0].Key() != twice[0].Key() {
		t.Fatalf("expected identical carts, got %+v and %+v", once, twice)
	}
	if notifier.count() != 3 {
		t.Fatalf("absent-key removal must not notify, got %d notifications", notifier.count())
	}
}

func TestAvailableStockReflectsCurrentCatalog(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	lookup := stubCatalog{ring.Key: ring}
	svc, err := NewService(NewMemoryStorage(nil), lookup, nil, Options{UnlimitedStock: 50})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	_, _ = svc.AddItem(ctx, "cart", ring, 3, Sized("M"))
	lines, _ := svc.Lines(ctx, "cart")

	lookup[ring.Key] = product("Silver Ring", `{"M": 1, "L": 4}`, "100")
	if got := svc.AvailableStock(lines[0]); got != 1 {
		t.Fatalf("expected refreshed stock 1, got %d", got)
	}
	lookup[ring.Key] = product("Silver Ring", `{"L": 4}`, "100")
	if got := svc.AvailableStock(lines[0]); got != 0 {
		t.Fatalf("expected vanished size to report 0, got %d", got)
	}
	delete(lookup, ring.Key)
	if got := svc.AvailableStock(lines[0]); got != 0 {
		t.Fatalf("expected vanished product to report 0, got %d", got)
	}
	if got := svc.AvailableStock(Line{ProductKey: "x", Quantity: 1}); got != 50 {
		t.Fatalf("expected configured unlimited sentinel, got %d", got)
	}
}

func TestRoundTripPreservesLines(t *testing.T) {
	t.Parallel()
	products := []catalog.Product{
		product("Silver Ring", `{"16": 4, "17": 4}`, "100"),
		product("Gold Chain", "", "50"),
		product("Moon Pendant", "S:2", "75"),
	}
	svc, storage, _ := newTestService(t, products...)
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, "cart", products[0], 2, Sized("16"))
	_, _ = svc.AddItem(ctx, "cart", products[0], 1, Sized("17"))
	_, _ = svc.AddItem(ctx, "cart", products[1], 3, Sizeless())
	_, _ = svc.AddItem(ctx, "cart", products[2], 1, Sized("S"))
	want, _ := svc.Lines(ctx, "cart")

	// a fresh service over the same storage sees exactly the same lines
	reloaded, err := NewService(storage, stubCatalog{}, nil, Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	got, err := reloaded.Lines(ctx, "cart")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(got) != len(want) || len(got) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		wl, wok := w.Size.Label()
		gl, gok := g.Size.Label()
		if w.ProductKey != g.ProductKey || wl != gl || wok != gok || w.Quantity != g.Quantity || !w.UnitPrice.Equal(g.UnitPrice) {
			t.Fatalf("line %d differs: want %+v got %+v", i, w, g)
		}
	}
}

func TestCorruptSlotIsEmptyCart(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	svc, storage, _ := newTestService(t, ring)
	ctx := context.Background()

	storage.Put("cart", `{"not":"an array"}`)
	lines, err := svc.Lines(ctx, "cart")
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart without error, got %+v err=%v", lines, err)
	}

	res, err := svc.AddItem(ctx, "cart", ring, 1, Sized("M"))
	if err != nil || res.Outcome != OutcomeAdded {
		t.Fatalf("expected add over corrupt slot to start fresh, got %+v err=%v", res, err)
	}
}

func TestTwoWritersDoNotLoseUpdates(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 500}`, "100")
	chain := product("Gold Chain", "", "50")
	lookup := stubCatalog{ring.Key: ring, chain.Key: chain}
	storage := NewMemoryStorage(nil)

	badge, _ := NewService(storage, lookup, nil, Options{})
	panel, _ := NewService(storage, lookup, nil, Options{})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = badge.AddItem(ctx, "cart", ring, 1, Sized("M"))
		}()
		go func() {
			defer wg.Done()
			_, _ = panel.AddItem(ctx, "cart", chain, 1, Sizeless())
		}()
	}
	wg.Wait()

	lines, _ := badge.Lines(ctx, "cart")
	if len(lines) != 2 {
		t.Fatalf("expected both lines, got %+v", lines)
	}
	for _, line := range lines {
		if line.Quantity != 50 {
			t.Fatalf("lost update on %s: quantity %d", line.Key(), line.Quantity)
		}
	}
}

type failingStorage struct{ *MemoryStorage }

func (f *failingStorage) Update(ctx context.Context, cartID string, fn UpdateFunc) ([]Line, error) {
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis down"), "update cart")
}

func TestStorageFailureSurfacesAsDependencyError(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	storage := &failingStorage{MemoryStorage: NewMemoryStorage(nil)}
	svc, _ := NewService(storage, stubCatalog{ring.Key: ring}, nil, Options{})

	_, err := svc.AddItem(context.Background(), "cart", ring, 1, Sized("M"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestLineSnapshotsPrice(t *testing.T) {
	t.Parallel()
	ring := product("Silver Ring", `{"M": 5}`, "100")
	svc, _, _ := newTestService(t, ring)
	ctx := context.Background()
	_, _ = svc.AddItem(ctx, "cart", ring, 1, Sized("M"))

	repriced := product("Silver Ring", `{"M": 5}`, "250")
	_, _ = svc.AddItem(ctx, "cart", repriced, 1, Sized("M"))

	lines, _ := svc.Lines(ctx, "cart")
	if !lines[0].UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unit price must stay the add-time snapshot, got %s", lines[0].UnitPrice)
	}
}
