package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bazaar/internal/http/handlers"
	applog "bazaar/internal/log"
)

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	h := cl.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, h.Status)
	assert.Equal(t, true, h.Body["ok"])

	cl.do("GET", "/api/v1/products", nil)
	m := cl.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, m.Status)
	assert.Contains(t, string(m.Raw), "bazaar_http_requests_total")
}

func TestCatalogRoutes(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	cats := cl.do("GET", "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, cats.Status)
	assert.Len(t, cats.Body["categories"], 2)

	radios := cl.do("GET", "/api/v1/products?category=vintage-radios", nil)
	require.Equal(t, http.StatusOK, radios.Status)
	assert.Len(t, radios.Body["products"], 2)

	p := cl.do("GET", "/api/v1/products/radio-001", nil)
	require.Equal(t, http.StatusOK, p.Status)
	assert.Equal(t, "349.50", p.Body["price"])

	missing := cl.do("GET", "/api/v1/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Status)
	assert.Equal(t, "PRODUCT_NOT_FOUND", missing.Body["kind"])

	assert.Equal(t, http.StatusNotFound, cl.do("GET", "/nowhere", nil).Status)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	applog.SetLogger(zap.New(core))
	t.Cleanup(func() { applog.SetLogger(nil) })

	env := newEnv(t, handlers.Limits{})
	anon := env.client(t)
	assert.Equal(t, http.StatusForbidden, anon.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{"stock": 1}).Status)

	alice := env.client(t)
	alice.login("alice@bazaar.test")
	assert.Equal(t, http.StatusForbidden, alice.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{"stock": 1}).Status)
	assert.Equal(t, 2, logs.FilterMessage("access.denied.admin").Len())

	admin := env.client(t)
	admin.login("admin@bazaar.test")
	bad := admin.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{"stock": -1})
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	bad = admin.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	bad = admin.do("PUT", "/api/v1/admin/products/gbc-001/price", map[string]any{"price": "0"})
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Equal(t, http.StatusNotFound, admin.do("PUT", "/api/v1/admin/products/nope/stock", map[string]any{"stock": 1}).Status)

	ok := admin.do("PUT", "/api/v1/admin/products/gbc-001/stock", map[string]any{"stock": 4})
	require.Equal(t, http.StatusOK, ok.Status)
	assert.EqualValues(t, 4, ok.Body["stock"])
	assert.Equal(t, 1, logs.FilterMessage("admin.stock.save").Len())
}

func TestOversizedBodyRejected(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	big := `{"productId":"gbc-001","quantity":1,"pad":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest("POST", "/api/v1/guest-cart/items", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req, -1)
	// fasthttp may drop the connection instead of answering
	if err != nil {
		assert.Regexp(t, "body size exceeds|too large", err.Error())
		return
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGlobalRateLimit(t *testing.T) {
	env := newEnv(t, handlers.Limits{Requests: 3})
	cl := env.client(t)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, cl.do("GET", "/api/v1/categories", nil).Status)
	}
	r := cl.do("GET", "/api/v1/categories", nil)
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, http.StatusOK, cl.do("GET", "/healthz", nil).Status)
}
