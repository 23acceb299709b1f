package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"bazaar/internal/http/handlers"
	applog "bazaar/internal/log"
)

func TestPasswordsSeededAreHashed(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	var hashes []string
	require.NoError(t, env.deps.TM.DB().Select(&hashes, `SELECT password_hash FROM users`))
	require.NotEmpty(t, hashes)
	for _, h := range hashes {
		assert.False(t, strings.Contains(h, demoPassword))
		assert.True(t, strings.HasPrefix(h, "$2"))
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte(demoPassword)))
	}
}

func TestLoginSuccessFailAndThrottle(t *testing.T) {
	env := newEnv(t, handlers.Limits{Logins: 2})
	cl := env.client(t)

	bad := cl.do("POST", "/api/v1/auth/login", map[string]string{"email": "alice@bazaar.test", "password": "Wrongpass1!"})
	assert.Equal(t, http.StatusUnauthorized, bad.Status)
	assert.Equal(t, "Invalid email or password", bad.Body["error"])

	good := cl.do("POST", "/api/v1/auth/login", map[string]string{"email": "alice@bazaar.test", "password": demoPassword})
	require.Equal(t, http.StatusOK, good.Status)
	assert.Equal(t, "u-alice", good.Body["id"])

	me := cl.do("GET", "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, me.Status)
	assert.Equal(t, "alice@bazaar.test", me.Body["email"])

	third := cl.do("POST", "/api/v1/auth/login", map[string]string{"email": "alice@bazaar.test", "password": demoPassword})
	assert.Equal(t, http.StatusTooManyRequests, third.Status)
}

func TestLogoutEndsSession(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)
	cl.login("alice@bazaar.test")
	sid := cl.sid

	out := cl.do("POST", "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, out.Status)

	cl.sid = sid
	assert.Equal(t, http.StatusUnauthorized, cl.do("GET", "/api/v1/auth/me", nil).Status)
}

func TestLoginMergesGuestCart(t *testing.T) {
	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)

	r := cl.do("POST", "/api/v1/guest-cart/items", map[string]any{"productId": "gbc-001", "quantity": 2})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	require.NotEmpty(t, cl.sid)

	cl.login("bob@bazaar.test")

	cart := cl.do("GET", "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, cart.Status)
	ls := lines(t, cart)
	require.Len(t, ls, 1)
	assert.Equal(t, "gbc-001", ls[0]["productId"])
	assert.EqualValues(t, 2, ls[0]["quantity"])

	guest := cl.do("GET", "/api/v1/guest-cart", nil)
	assert.Empty(t, lines(t, guest))
}

func TestLoginFailureIsLoggedAsSecurityEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	applog.SetLogger(zap.New(core))
	t.Cleanup(func() { applog.SetLogger(nil) })

	env := newEnv(t, handlers.Limits{})
	cl := env.client(t)
	cl.do("POST", "/api/v1/auth/login", map[string]string{"email": "not-an-email", "password": demoPassword})
	cl.login("alice@bazaar.test")

	fails := logs.FilterMessage("auth.login.fail").All()
	require.Len(t, fails, 1)
	assert.Equal(t, zapcore.WarnLevel, fails[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("auth.login.success").Len())
}
