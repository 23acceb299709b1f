package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/http/handlers"
)

func TestUserCartRequiresLogin(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	r := env.client(t).do("GET", "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
	assert.Equal(t, "UNAUTHENTICATED", r.Body["kind"])
}

func TestAddAccumulatesAndClampsToLineCap(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)
	cl.login("alice@bazaar.test")

	r := cl.do("POST", "/api/v1/cart/items", map[string]any{"productId": "snes-001", "quantity": 8})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))

	r = cl.do("POST", "/api/v1/cart/items", map[string]any{"productId": "snes-001", "quantity": 7})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	ls := lines(t, r)
	require.Len(t, ls, 1)
	assert.EqualValues(t, 10, ls[0]["quantity"])
	assert.Equal(t, "1990.00", r.Body["cartTotal"])
	assert.EqualValues(t, 10, r.Body["totalQuantity"])

	changes := r.Body["quantityChanges"].([]any)
	require.Len(t, changes, 1)
	qc := changes[0].(map[string]any)
	assert.Equal(t, "QUANTITY_LIMIT_EXCEEDED", qc["reason"])
	assert.EqualValues(t, 15, qc["oldQuantity"])
	assert.EqualValues(t, 10, qc["newQuantity"])
}

func TestAddErrorsMapToStatus(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	r := cl.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "nope", "quantity": 1})
	assert.Equal(t, "nope", r.Body["productId"])

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"too many", map[string]any{"productId": "gbc-001", "quantity": 11}, http.StatusConflict, "QUANTITY_LIMIT_EXCEEDED"},
		{"zero", map[string]any{"productId": "gbc-001", "quantity": 0}, http.StatusConflict, "QUANTITY_LIMIT_EXCEEDED"},
		{"unknown product", map[string]any{"productId": "nope", "quantity": 1}, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"sold out", map[string]any{"productId": "radio-zenith-500", "quantity": 1}, http.StatusConflict, "OUT_OF_STOCK"},
		{"bad id", map[string]any{"productId": "../etc", "quantity": 1}, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed", "{", http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := env.client(t)
			sub.sid = cl.sid
			r := sub.do("POST", "/api/v1/guest-cart/items", tc.body)
			assert.Equal(t, tc.status, r.Status, string(r.Raw))
			assert.Equal(t, tc.kind, r.Body["kind"])
		})
	}
}

func TestBatchAddIsAllOrNothing(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	r := cl.do("POST", "/api/v1/guest-cart/items/batch", map[string]any{"productId": "gbc-001", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "INVALID_INPUT", r.Body["kind"])

	r = cl.do("POST", "/api/v1/guest-cart/items/batch", []map[string]any{
		{"productId": "gbc-001", "quantity": 1},
		{"productId": "radio-zenith-500", "quantity": 1},
	})
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Empty(t, lines(t, cl.do("GET", "/api/v1/guest-cart", nil)))

	r = cl.do("POST", "/api/v1/guest-cart/items/batch", []map[string]any{
		{"productId": "gbc-001", "quantity": 1},
		{"productId": "radio-001", "quantity": 5},
	})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.Len(t, lines(t, r), 2)
	changes := r.Body["quantityChanges"].([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "STOCK_LIMIT_EXCEEDED", changes[0].(map[string]any)["reason"])
	assert.Equal(t, "828.99", r.Body["cartTotal"])
}

func TestUpdateAndRemoveLines(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)
	cl.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "nes-001", "quantity": 1})

	r := cl.do("PATCH", "/api/v1/guest-cart/items/nes-001", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.EqualValues(t, 3, lines(t, r)[0]["quantity"])
	assert.Equal(t, "597.00", r.Body["cartTotal"])

	r = cl.do("PATCH", "/api/v1/guest-cart/items/nes-001", map[string]any{"quantity": 6})
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "STOCK_LIMIT_EXCEEDED", r.Body["kind"])

	r = cl.do("DELETE", "/api/v1/guest-cart/items/gbc-001", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)
	assert.Equal(t, "CART_ITEM_NOT_FOUND", r.Body["kind"])

	r = cl.do("DELETE", "/api/v1/guest-cart/items/nope", nil)
	assert.Equal(t, "PRODUCT_NOT_FOUND", r.Body["kind"])

	r = cl.do("DELETE", "/api/v1/guest-cart/items/nes-001", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Empty(t, lines(t, r))
	assert.Equal(t, "0.00", r.Body["cartTotal"])
}

func TestClearCart(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)
	cl.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "nes-001", "quantity": 2})

	r := cl.do("DELETE", "/api/v1/guest-cart", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Empty(t, lines(t, r))
	assert.EqualValues(t, 0, r.Body["totalQuantity"])
}

func TestPriceAndStockDriftReportedOnNextRead(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	shopper := env.client(t)
	shopper.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "gbc-001", "quantity": 4})
	shopper.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "nes-001", "quantity": 1})

	admin := env.client(t)
	admin.login("admin@bazaar.test")
	require.Equal(t, http.StatusOK, admin.do("PUT", "/api/v1/admin/products/gbc-001/price", map[string]any{"price": "119.99"}).Status)
	require.Equal(t, http.StatusOK, admin.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{"stock": 3}).Status)
	require.Equal(t, http.StatusOK, admin.do("PUT", "/api/v1/admin/products/nes-001/stock", map[string]any{"stock": 0}).Status)

	r := shopper.do("GET", "/api/v1/guest-cart", nil)
	require.Equal(t, http.StatusOK, r.Status)
	ls := lines(t, r)
	require.Len(t, ls, 1)
	assert.EqualValues(t, 3, ls[0]["quantity"])
	assert.Equal(t, "119.99", ls[0]["unitPrice"])
	assert.Equal(t, "359.97", r.Body["cartTotal"])
	assert.Equal(t, []any{"NES Console"}, r.Body["removedItems"])

	pcs := r.Body["priceChanges"].([]any)
	require.Len(t, pcs, 1)
	assert.Equal(t, "129.99", pcs[0].(map[string]any)["oldPrice"])
	assert.Equal(t, "119.99", pcs[0].(map[string]any)["newPrice"])

	again := shopper.do("GET", "/api/v1/guest-cart", nil)
	assert.Empty(t, again.Body["priceChanges"])
	assert.Empty(t, again.Body["removedItems"])
	assert.Equal(t, "359.97", again.Body["cartTotal"])
}

func TestBuyNowHoldsOneLine(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	cl.do("POST", "/api/v1/buy-now/items", map[string]any{"productId": "gbc-001", "quantity": 2})
	r := cl.do("POST", "/api/v1/buy-now/items", map[string]any{"productId": "nes-001", "quantity": 1})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	ls := lines(t, r)
	require.Len(t, ls, 1)
	assert.Equal(t, "nes-001", ls[0]["productId"])
	assert.Empty(t, lines(t, cl.do("GET", "/api/v1/guest-cart", nil)))
}
