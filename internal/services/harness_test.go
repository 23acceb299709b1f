package services_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bazaar/internal/cache"
	"bazaar/internal/domain"
	"bazaar/internal/repos"
	"bazaar/internal/services"
)

type harness struct {
	db      *sqlx.DB
	tm      *repos.TxManager
	prods   *repos.ProductRepo
	outbox  *repos.OutboxRepo
	carts   *services.CartService
	orders  *services.OrderService
	auth    *services.AuthService
	catalog *services.CatalogService
	clock   time.Time
}

func newHarness(t *testing.T, c cache.CartCache) *harness {
	t.Helper()
	db, err := repos.OpenDB(repos.FileDSN(filepath.Join(t.TempDir(), "shop.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(db))

	h := &harness{db: db, tm: repos.NewTxManager(db, sql.LevelDefault), prods: repos.NewProductRepo(), outbox: repos.NewOutboxRepo()}
	users := repos.NewUserRepo()
	h.carts = services.NewCartService(h.tm, repos.NewCartRepo(), h.prods, users, c, nil, nil)
	h.orders = services.NewOrderService(h.tm, h.carts, h.prods, repos.NewOrderRepo(), users, h.outbox, nil, nil)
	h.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.orders.Now = func() time.Time { return h.clock }
	h.auth = services.NewAuthService(h.tm, users, h.carts, nil)
	h.catalog = services.NewCatalogService(h.tm, h.prods, h.carts, nil)
	return h
}

func (h *harness) product(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, h.prods.Create(context.Background(), h.db, domain.Product{
		ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), Stock: stock,
	}))
}

func (h *harness) stock(t *testing.T, id string) domain.Product {
	t.Helper()
	p, err := h.prods.Get(context.Background(), h.db, id)
	require.NoError(t, err)
	return p
}

// orderLines mirrors the cart the way a client would submit it.
func orderLines(v domain.CartView) []domain.OrderLineInput {
	out := make([]domain.OrderLineInput, 0, len(v.Lines))
	for _, l := range v.Lines {
		out = append(out, domain.OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.AddedPrice})
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertTotals(t *testing.T, v domain.CartView) {
	t.Helper()
	qty, total := 0, decimal.Zero
	for _, l := range v.Lines {
		require.True(t, l.Amount.Equal(domain.LineAmount(l.AddedPrice, l.Quantity)), "line %s amount", l.ProductID)
		qty += l.Quantity
		total = total.Add(l.Amount)
	}
	require.Equal(t, qty, v.TotalQuantity)
	require.True(t, total.Equal(v.CartTotal), "cart total %s != %s", v.CartTotal, total)
}
