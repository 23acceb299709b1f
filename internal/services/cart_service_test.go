package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/domain"
	"bazaar/internal/services"
)

func TestAddItemValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	guest := h.carts.For(domain.CartSession)

	_, err := guest.AddItem(ctx, "sid-1", "gbc-001", 0)
	assert.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)
	_, err = guest.AddItem(ctx, "sid-1", "gbc-001", 11)
	assert.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)
	_, err = guest.AddItem(ctx, "sid-1", "nope", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = guest.AddItem(ctx, "sid-1", "radio-zenith-500", 1)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = h.carts.For(domain.CartUser).AddItem(ctx, "u-ghost", "gbc-001", 1)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAddAccumulatesAndClampsAtCap(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.product(t, "bulk", "1.00", 100)
	cart := h.carts.For(domain.CartUser)

	// a single add past the cap is rejected, not clamped
	_, err := cart.AddItem(ctx, "u-alice", "bulk", 15)
	require.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)
	empty, err := cart.Get(ctx, "u-alice")
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)

	change, err := cart.AddItem(ctx, "u-alice", "bulk", 8)
	require.NoError(t, err)
	assert.Nil(t, change)

	change, err = cart.AddItem(ctx, "u-alice", "bulk", 7)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, domain.QuantityChange{
		ProductID: "bulk", ProductName: "Product bulk", OldQuantity: 15, NewQuantity: 10, Reason: domain.ReasonQuantityLimit,
	}, *change)

	v, err := cart.Get(ctx, "u-alice")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, 10, v.Lines[0].Quantity)
	assertTotals(t, v)
}

func TestAddClampsToStock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.product(t, "few", "4.00", 3)

	change, err := h.carts.For(domain.CartSession).AddItem(ctx, "sid-1", "few", 5)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, domain.ReasonStockLimit, change.Reason)
	assert.Equal(t, 3, change.NewQuantity)

	v, err := h.carts.For(domain.CartSession).Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, 3, v.TotalQuantity)
	assert.Equal(t, "12.00", v.CartTotal.StringFixed(2))
}

func TestReadIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	_, err := cart.AddItem(ctx, "sid-1", "gbc-001", 2)
	require.NoError(t, err)

	first, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	second, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "259.98", first.CartTotal.StringFixed(2))
	assertTotals(t, first)
}

func TestPriceDriftIsReportedAndApplied(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.product(t, "lamp", "10.00", 20)
	cart := h.carts.For(domain.CartUser)

	_, err := cart.AddItem(ctx, "u-bob", "lamp", 2)
	require.NoError(t, err)
	require.NoError(t, h.catalog.SetPrice(ctx, "lamp", dec("12.50")))

	v, err := cart.Get(ctx, "u-bob")
	require.NoError(t, err)
	require.Len(t, v.PriceChanges, 1)
	assert.True(t, v.PriceChanges[0].OldPrice.Equal(dec("10.00")))
	assert.True(t, v.PriceChanges[0].NewPrice.Equal(dec("12.50")))
	assert.True(t, v.Lines[0].AddedPrice.Equal(dec("12.50")))
	assert.Equal(t, "25.00", v.Lines[0].Amount.StringFixed(2))
	assertTotals(t, v)

	again, err := cart.Get(ctx, "u-bob")
	require.NoError(t, err)
	assert.Empty(t, again.PriceChanges)
}

func TestOutOfStockLineIsEvicted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	_, err := cart.AddItem(ctx, "sid-1", "radio-001", 2)
	require.NoError(t, err)
	_, err = cart.AddItem(ctx, "sid-1", "nes-001", 1)
	require.NoError(t, err)
	require.NoError(t, h.catalog.SetStock(ctx, "radio-001", 0))

	v, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Philco 1939"}, v.RemovedItems)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "nes-001", v.Lines[0].ProductID)
	assertTotals(t, v)
}

func TestStockDropCapsLineOnRead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	_, err := cart.AddItem(ctx, "sid-1", "nes-001", 5)
	require.NoError(t, err)
	require.NoError(t, h.catalog.SetStock(ctx, "nes-001", 2))

	v, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.Len(t, v.QuantityChanges, 1)
	assert.Equal(t, domain.ReasonStockLimit, v.QuantityChanges[0].Reason)
	assert.Equal(t, 2, v.Lines[0].Quantity)
	assertTotals(t, v)
}

func TestUpdateItemQuantity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	// no line yet: behaves like add
	_, err := cart.UpdateItemQuantity(ctx, "sid-1", "nes-001", 2)
	require.NoError(t, err)

	_, err = cart.UpdateItemQuantity(ctx, "sid-1", "nes-001", 6)
	assert.ErrorIs(t, err, domain.ErrStockLimitExceeded)

	_, err = cart.UpdateItemQuantity(ctx, "sid-1", "nes-001", 4)
	require.NoError(t, err)

	v, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, 4, v.TotalQuantity)
	assert.Equal(t, "796.00", v.CartTotal.StringFixed(2))
}

func TestRemoveAndClear(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	_, err := cart.AddItem(ctx, "sid-1", "nes-001", 1)
	require.NoError(t, err)
	_, err = cart.AddItem(ctx, "sid-1", "snes-001", 1)
	require.NoError(t, err)

	assert.ErrorIs(t, cart.RemoveItem(ctx, "sid-1", "nope"), domain.ErrProductNotFound)
	assert.ErrorIs(t, cart.RemoveItem(ctx, "sid-1", "gbc-001"), domain.ErrCartItemNotFound)
	require.NoError(t, cart.RemoveItem(ctx, "sid-1", "nes-001"))

	v, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.TotalQuantity)

	require.NoError(t, cart.Clear(ctx, "sid-1"))
	v, err = cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.True(t, v.CartTotal.IsZero())
}

func TestBuyNowHoldsOneLine(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	buyNow := h.carts.For(domain.CartBuyNow)

	_, err := buyNow.AddItem(ctx, "sid-1", "nes-001", 2)
	require.NoError(t, err)
	_, err = buyNow.AddItem(ctx, "sid-1", "gbc-001", 1)
	require.NoError(t, err)

	v, err := buyNow.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "gbc-001", v.Lines[0].ProductID)
	assert.Equal(t, 1, v.TotalQuantity)

	_, err = buyNow.AddItems(ctx, "sid-1", []services.ItemInput{{ProductID: "nes-001", Quantity: 1}, {ProductID: "gbc-001", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAddItemsIsAllOrNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cart := h.carts.For(domain.CartSession)

	_, err := cart.AddItems(ctx, "sid-1", []services.ItemInput{
		{ProductID: "nes-001", Quantity: 1},
		{ProductID: "radio-zenith-500", Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	v, err := cart.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)

	changes, err := cart.AddItems(ctx, "sid-1", []services.ItemInput{
		{ProductID: "nes-001", Quantity: 1},
		{ProductID: "radio-001", Quantity: 5},
	})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "radio-001", changes[0].ProductID)
}

func TestMergeSessionIntoUser(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.product(t, "A", "3.00", 4)
	h.product(t, "B", "1.00", 10)
	user := h.carts.For(domain.CartUser)
	guest := h.carts.For(domain.CartSession)

	_, err := user.AddItem(ctx, "u-alice", "A", 3)
	require.NoError(t, err)
	_, err = user.AddItem(ctx, "u-alice", "B", 1)
	require.NoError(t, err)
	_, err = guest.AddItem(ctx, "sid-1", "A", 2)
	require.NoError(t, err)

	changes, err := h.carts.MergeSessionIntoUser(ctx, "sid-1", "u-alice")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ReasonStockLimit, changes[0].Reason)

	v, err := user.Get(ctx, "u-alice")
	require.NoError(t, err)
	got := map[string]int{}
	for _, l := range v.Lines {
		got[l.ProductID] = l.Quantity
	}
	assert.Equal(t, map[string]int{"A": 4, "B": 1}, got)
	assertTotals(t, v)

	var sessionCarts int
	require.NoError(t, h.db.Get(&sessionCarts, `SELECT COUNT(*) FROM carts WHERE kind = 'SESSION' AND owner_key = 'sid-1'`))
	assert.Zero(t, sessionCarts)
}

func TestMergeWithoutSessionCartIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	changes, err := h.carts.MergeSessionIntoUser(ctx, "sid-none", "u-alice")
	require.NoError(t, err)
	assert.Empty(t, changes)
}
