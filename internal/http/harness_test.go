package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"bazaar/internal/cache"
	"bazaar/internal/config"
	"bazaar/internal/http/handlers"
	"bazaar/internal/repos"
)

const demoPassword = "Passw0rd!"

type testEnv struct {
	app  *fiber.App
	deps *handlers.Deps
}

func newEnv(t *testing.T, lim handlers.Limits) *testEnv {
	t.Helper()
	db, err := repos.OpenDB(repos.FileDSN(filepath.Join(t.TempDir(), "api.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(db))

	deps, err := handlers.NewDeps(db, config.Config{TxIsolation: "default"}, cache.Nop{}, nil, nil)
	require.NoError(t, err)
	if lim.Requests == 0 {
		lim.Requests = 1000
	}
	return &testEnv{app: handlers.NewApp(deps, lim), deps: deps}
}

// client carries the sid cookie between requests like a browser would.
type client struct {
	t   *testing.T
	env *testEnv
	sid string
}

func (e *testEnv) client(t *testing.T) *client { return &client{t: t, env: e} }

type apiResponse struct {
	Status int
	Header http.Header
	Body   map[string]any
	Raw    []byte
}

func (cl *client) do(method, path string, body any, headers ...string) apiResponse {
	cl.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(cl.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if cl.sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: cl.sid})
	}

	resp, err := cl.env.app.Test(req, -1)
	require.NoError(cl.t, err)
	defer resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			cl.sid = c.Value
		}
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(cl.t, err)
	out := apiResponse{Status: resp.StatusCode, Header: resp.Header, Raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(cl.t, json.Unmarshal(raw, &out.Body))
	}
	return out
}

func (cl *client) login(email string) {
	cl.t.Helper()
	r := cl.do("POST", "/api/v1/auth/login", map[string]string{"email": email, "password": demoPassword})
	require.Equal(cl.t, http.StatusOK, r.Status, string(r.Raw))
	require.NotEmpty(cl.t, cl.sid)
}

func lines(t *testing.T, r apiResponse) []map[string]any {
	t.Helper()
	raw, ok := r.Body["lines"].([]any)
	require.True(t, ok, "no lines in %s", r.Raw)
	out := make([]map[string]any, 0, len(raw))
	for _, l := range raw {
		out = append(out, l.(map[string]any))
	}
	return out
}

// orderItems turns a cart response into the items payload of a checkout.
func orderItems(t *testing.T, r apiResponse) []map[string]any {
	t.Helper()
	var items []map[string]any
	for _, l := range lines(t, r) {
		items = append(items, map[string]any{
			"productId": l["productId"],
			"quantity":  l["quantity"],
			"unitPrice": l["unitPrice"],
		})
	}
	return items
}
