package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/zaavg/storefront/internal/cart"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

type stubCarts struct {
	lines []cart.Line
	err   error
	calls int
}

func (s *stubCarts) Lines(ctx context.Context, cartID string) ([]cart.Line, error) {
	s.calls++
	return s.lines, s.err
}

type stubGateway struct {
	url  string
	err  error
	reqs []PaymentRequest
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	g.reqs = append(g.reqs, req)
	return g.url, g.err
}

func newTestService(t *testing.T, carts cartReader, gw Gateway) Service {
	t.Helper()
	svc, err := NewService(carts, gw, Options{Currency: "rub", ReturnURL: "https://shop.example/thanks"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestStartReturnsRedirect(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 2, "100")}}
	gw := &stubGateway{url: "https://pay.example/confirm"}
	svc := newTestService(t, carts, gw)

	session, err := svc.Start(context.Background(), "cart-1", CheckoutInput{UserID: "user-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.RedirectURL != "https://pay.example/confirm" {
		t.Fatalf("unexpected redirect %q", session.RedirectURL)
	}
	if session.OrderID == "" {
		t.Fatalf("expected generated order id")
	}
	if len(gw.reqs) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gw.reqs))
	}
	req := gw.reqs[0]
	if req.Amount != "200.00" || req.Currency != "RUB" {
		t.Fatalf("unexpected amount %s %s", req.Amount, req.Currency)
	}
	if req.ReturnURL != "https://shop.example/thanks" {
		t.Fatalf("expected configured return url, got %q", req.ReturnURL)
	}
	if req.UserID != "user-1" || req.IdempotencyKey == "" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestStartHonoursCallerOrderAndReturnURL(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 1, "10")}}
	gw := &stubGateway{url: "https://pay.example/confirm"}
	svc := newTestService(t, carts, gw)

	session, err := svc.Start(context.Background(), "cart-1", CheckoutInput{OrderID: "order-7", ReturnURL: "  https://other.example/  "})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.OrderID != "order-7" {
		t.Fatalf("expected caller order id, got %q", session.OrderID)
	}
	if gw.reqs[0].ReturnURL != "https://other.example/" {
		t.Fatalf("expected trimmed caller return url, got %q", gw.reqs[0].ReturnURL)
	}
}

func TestStartDerivesGatewayKeyFromClientKey(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 1, "10")}}
	gw := &stubGateway{url: "https://pay.example/confirm"}
	svc := newTestService(t, carts, gw)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Start(ctx, "cart-1", CheckoutInput{IdempotencyKey: "retry-1"}); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if _, err := svc.Start(ctx, "cart-1", CheckoutInput{IdempotencyKey: "retry-2"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if gw.reqs[0].IdempotencyKey != gw.reqs[1].IdempotencyKey {
		t.Fatalf("expected retried key to repeat, got %q and %q", gw.reqs[0].IdempotencyKey, gw.reqs[1].IdempotencyKey)
	}
	if gw.reqs[0].IdempotencyKey == gw.reqs[2].IdempotencyKey {
		t.Fatalf("expected a different client key to get a different gateway key")
	}
	if len(gw.reqs[0].IdempotencyKey) > 45 {
		t.Fatalf("gateway key too long: %q", gw.reqs[0].IdempotencyKey)
	}
}

func TestStartDerivesGatewayKeyFromOrderID(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 1, "10")}}
	gw := &stubGateway{url: "https://pay.example/confirm"}
	svc := newTestService(t, carts, gw)
	ctx := context.Background()

	for _, input := range []CheckoutInput{{OrderID: "order-7"}, {OrderID: "order-7"}, {}, {}} {
		if _, err := svc.Start(ctx, "cart-1", input); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if gw.reqs[0].IdempotencyKey != gw.reqs[1].IdempotencyKey {
		t.Fatalf("expected same order id to repeat the gateway key")
	}
	if gw.reqs[2].IdempotencyKey == gw.reqs[3].IdempotencyKey {
		t.Fatalf("expected fresh keys without a client key or order id")
	}

	carts.lines = []cart.Line{line("ring", "Ring", cart.Sized("M"), 2, "10")}
	if _, err := svc.Start(ctx, "cart-1", CheckoutInput{OrderID: "order-7"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if gw.reqs[4].IdempotencyKey == gw.reqs[0].IdempotencyKey {
		t.Fatalf("expected a changed total to get a new gateway key")
	}
}

func TestStartEmptyCartIsValidationError(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{url: "https://pay.example/confirm"}
	svc := newTestService(t, &stubCarts{}, gw)

	_, err := svc.Start(context.Background(), "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(gw.reqs) != 0 {
		t.Fatalf("gateway must not be called for an empty cart")
	}
}

func TestStartGatewayFailureIsPaymentError(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 1, "10")}}
	svc := newTestService(t, carts, &stubGateway{err: errors.New("503 upstream")})

	_, err := svc.Start(context.Background(), "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if pkgerrors.As(err).Message() != "payment could not be started" {
		t.Fatalf("unexpected message %q", pkgerrors.As(err).Message())
	}
}

func TestStartMissingURLIsPaymentError(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{lines: []cart.Line{line("ring", "Ring", cart.Sized("M"), 1, "10")}}
	svc := newTestService(t, carts, &stubGateway{url: "  "})

	_, err := svc.Start(context.Background(), "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
}

func TestStartPropagatesStorageFailure(t *testing.T) {
	t.Parallel()

	storageErr := pkgerrors.New(pkgerrors.CodeDependency, "cart storage unavailable")
	svc := newTestService(t, &stubCarts{err: storageErr}, &stubGateway{url: "x"})

	_, err := svc.Start(context.Background(), "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, &stubGateway{}, Options{}); err == nil {
		t.Fatalf("expected error for nil cart reader")
	}
	if _, err := NewService(&stubCarts{}, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil gateway")
	}
}
