package controllers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/zaavg/storefront/internal/wishlist"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

func decodeWishlist(t *testing.T, raw json.RawMessage) wishlist.ToggleResult {
	t.Helper()
	var res wishlist.ToggleResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode wishlist: %v", err)
	}
	return res
}

func TestWishlistToggleListRemove(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/wishlists/c1/toggle", `{"product_key":"silver-ring"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeWishlist(t, env.Data)
	if !res.Added || res.Count != 1 || res.Items[0].Name != "Silver Ring" {
		t.Fatalf("unexpected toggle result %+v", res)
	}

	rec, env = f.do(t, http.MethodGet, "/wishlists/c1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if view := decodeWishlist(t, env.Data); view.Count != 1 || !view.Items[0].Available {
		t.Fatalf("unexpected wishlist %+v", view)
	}

	rec, env = f.do(t, http.MethodDelete, "/wishlists/c1/items/silver-ring", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if view := decodeWishlist(t, env.Data); view.Count != 0 {
		t.Fatalf("expected empty wishlist, got %+v", view)
	}

	rec, _ = f.do(t, http.MethodDelete, "/wishlists/c1/items/silver-ring", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected repeated remove to succeed, got %d", rec.Code)
	}
}

func TestWishlistToggleTwiceRemoves(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.do(t, http.MethodPost, "/wishlists/c1/toggle", `{"product_key":"gold-chain"}`)
	rec, env := f.do(t, http.MethodPost, "/wishlists/c1/toggle", `{"product_key":"gold-chain"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decodeWishlist(t, env.Data); res.Added || res.Count != 0 {
		t.Fatalf("expected second toggle to remove, got %+v", res)
	}
}

func TestWishlistToggleErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/wishlists/c1/toggle", `{"product_key":"missing"}`)
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, env = f.do(t, http.MethodPost, "/wishlists/c1/toggle", `{}`)
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %d: %s", rec.Code, rec.Body.String())
	}
}
