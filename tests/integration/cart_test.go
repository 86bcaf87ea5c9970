//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCart_UpsertAndLoad(t *testing.T) {
	user := "cart-user-1"
	fillCart(t, user, "sku-trail-bottle", 2)

	resp := doGet(t, "/api/cart", user)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", cart.Lines[0].Quantity)
	}
	// 2 x 24.99
	if cart.Subtotal != 49.98 {
		t.Errorf("expected subtotal 49.98, got %f", cart.Subtotal)
	}
}

func TestCart_UpsertReplacesQuantity(t *testing.T) {
	user := "cart-user-2"
	fillCart(t, user, "sku-trail-bottle", 2)
	fillCart(t, user, "sku-trail-bottle", 5)

	resp := doGet(t, "/api/cart", user)
	defer resp.Body.Close()

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected single line with quantity 5, got %+v", cart.Lines)
	}
}

func TestCart_ZeroQuantityDeletesLine(t *testing.T) {
	user := "cart-user-3"
	fillCart(t, user, "sku-trail-bottle", 1)

	resp := doRequest(t, http.MethodPut, "/api/cart/items", user, upsertCartLineRequest{
		ProductID: "sku-trail-bottle",
		Quantity:  0,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/cart", user)
	defer resp.Body.Close()
	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
}

func TestCart_RejectsQuantityBeyondStock(t *testing.T) {
	user := "cart-user-4"

	// sku-chef-knife has 45 in stock.
	resp := doRequest(t, http.MethodPut, "/api/cart/items", user, upsertCartLineRequest{
		ProductID: "sku-chef-knife",
		Quantity:  46,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCart_OutOfStockProduct(t *testing.T) {
	user := "cart-user-5"

	// sku-desk-lamp is seeded with zero stock.
	resp := doRequest(t, http.MethodPut, "/api/cart/items", user, upsertCartLineRequest{
		ProductID: "sku-desk-lamp",
		Quantity:  1,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCart_IsolatedPerUser(t *testing.T) {
	fillCart(t, "cart-user-6a", "sku-trail-bottle", 3)

	resp := doGet(t, "/api/cart", "cart-user-6b")
	defer resp.Body.Close()

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart for other user, got %d lines", len(cart.Lines))
	}
}
