package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
)

// UpsertMode selects how UpsertLine interprets its quantity argument.
type UpsertMode int

const (
	// AddQuantity adds to the existing line quantity.
	AddQuantity UpsertMode = iota
	// SetQuantity replaces the existing line quantity.
	SetQuantity
)

// CartRepo is the cart store. All methods run on the caller's transaction.
type CartRepo struct{}

func NewCartRepo() *CartRepo { return &CartRepo{} }

const cartColumns = `id, kind, owner_key, total_quantity, cart_total`

// Find returns the cart for owner+kind, or ok=false when none exists.
func (r *CartRepo) Find(ctx context.Context, q sqlx.QueryerContext, kind domain.CartKind, owner string) (domain.Cart, bool, error) {
	var c domain.Cart
	err := sqlx.GetContext(ctx, q, &c, `SELECT `+cartColumns+` FROM carts WHERE kind = ? AND owner_key = ?`, kind, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("find cart %s/%s: %w", kind, owner, err)
	}
	return c, true, nil
}

// FindOrCreate returns the existing cart or creates an empty one. Idempotent.
func (r *CartRepo) FindOrCreate(ctx context.Context, q sqlx.ExtContext, kind domain.CartKind, owner string) (domain.Cart, error) {
	now := stamp(time.Now())
	if _, err := q.ExecContext(ctx, `
		INSERT INTO carts(id, kind, owner_key, total_quantity, cart_total, created_at, updated_at)
		VALUES (?, ?, ?, 0, '0', ?, ?)
		ON CONFLICT(kind, owner_key) DO NOTHING
	`, uuid.NewString(), kind, owner, now, now); err != nil {
		return domain.Cart{}, fmt.Errorf("create cart %s/%s: %w", kind, owner, err)
	}
	c, ok, err := r.Find(ctx, q, kind, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	if !ok {
		return domain.Cart{}, fmt.Errorf("cart %s/%s vanished after create", kind, owner)
	}
	return c, nil
}

const lineColumns = `
    cl.id, cl.cart_id, cl.product_id, COALESCE(p.name, cl.product_id) AS product_name,
    cl.quantity, cl.added_price, cl.amount`

// Lines returns a cart's lines in insertion order.
func (r *CartRepo) Lines(ctx context.Context, q sqlx.QueryerContext, cartID string) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	err := sqlx.SelectContext(ctx, q, &lines, `
	  SELECT`+lineColumns+`
	  FROM cart_lines cl LEFT JOIN products p ON p.id = cl.product_id
	  WHERE cl.cart_id = ?
	  ORDER BY cl.rowid
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("cart lines %s: %w", cartID, err)
	}
	return lines, nil
}

// Line returns one line, or ok=false when the product is not in the cart.
func (r *CartRepo) Line(ctx context.Context, q sqlx.QueryerContext, cartID, productID string) (domain.CartLine, bool, error) {
	var l domain.CartLine
	err := sqlx.GetContext(ctx, q, &l, `
	  SELECT`+lineColumns+`
	  FROM cart_lines cl LEFT JOIN products p ON p.id = cl.product_id
	  WHERE cl.cart_id = ? AND cl.product_id = ?
	`, cartID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartLine{}, false, nil
	}
	if err != nil {
		return domain.CartLine{}, false, fmt.Errorf("cart line %s/%s: %w", cartID, productID, err)
	}
	return l, true, nil
}

// UpsertLine adds or sets the quantity of p in cart, clamped to min(requested, 10, stock).
// An existing line keeps its added price; a new line takes the current price.
// Totals move by the delta. When the clamp changed the requested quantity a
// QuantityChange is returned. A clamp to zero removes the line.
func (r *CartRepo) UpsertLine(ctx context.Context, q sqlx.ExtContext, cart domain.Cart, p domain.Product, qty int, mode UpsertMode) (domain.CartLine, *domain.QuantityChange, error) {
	existing, found, err := r.Line(ctx, q, cart.ID, p.ID)
	if err != nil {
		return domain.CartLine{}, nil, err
	}

	requested := qty
	if mode == AddQuantity && found {
		requested = existing.Quantity + qty
	}
	final, change := Clamp(p, requested)

	if final <= 0 {
		if found {
			if _, err := r.RemoveLine(ctx, q, cart, p.ID); err != nil {
				return domain.CartLine{}, nil, err
			}
		}
		return domain.CartLine{}, change, nil
	}

	line := existing
	if !found {
		line = domain.CartLine{ID: uuid.NewString(), CartID: cart.ID, ProductID: p.ID, AddedPrice: domain.Money(p.Price)}
	}
	line.ProductName = p.Name
	line.Quantity = final
	line.Amount = domain.LineAmount(line.AddedPrice, final)

	now := stamp(time.Now())
	if found {
		_, err = q.ExecContext(ctx, `
			UPDATE cart_lines SET quantity = ?, amount = ?, updated_at = ? WHERE id = ?
		`, line.Quantity, line.Amount, now, line.ID)
	} else {
		_, err = q.ExecContext(ctx, `
			INSERT INTO cart_lines(id, cart_id, product_id, quantity, added_price, amount, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, line.ID, line.CartID, line.ProductID, line.Quantity, line.AddedPrice, line.Amount, now, now)
	}
	if err != nil {
		return domain.CartLine{}, nil, fmt.Errorf("upsert line %s/%s: %w", cart.ID, p.ID, err)
	}

	if err := r.addTotals(ctx, q, cart.ID, final-existing.Quantity, line.Amount.Sub(existing.Amount)); err != nil {
		return domain.CartLine{}, nil, err
	}
	return line, change, nil
}

// Clamp applies min(requested, 10, stock). The reason is QUANTITY_LIMIT_EXCEEDED when
// the flat cap is binding (result == 10), otherwise STOCK_LIMIT_EXCEEDED.
func Clamp(p domain.Product, requested int) (int, *domain.QuantityChange) {
	final := min(requested, domain.MaxLineQuantity, max(p.Stock, 0))
	if final == requested {
		return final, nil
	}
	reason := domain.ReasonStockLimit
	if final == domain.MaxLineQuantity {
		reason = domain.ReasonQuantityLimit
	}
	return final, &domain.QuantityChange{
		ProductID:   p.ID,
		ProductName: p.Name,
		OldQuantity: requested,
		NewQuantity: final,
		Reason:      reason,
	}
}

// UpdateLine persists a reconciled line's quantity and price. Totals are not touched;
// callers resum with SetTotals.
func (r *CartRepo) UpdateLine(ctx context.Context, q sqlx.ExecerContext, l domain.CartLine) error {
	_, err := q.ExecContext(ctx, `
		UPDATE cart_lines SET quantity = ?, added_price = ?, amount = ?, updated_at = ? WHERE id = ?
	`, l.Quantity, l.AddedPrice, l.Amount, stamp(time.Now()), l.ID)
	if err != nil {
		return fmt.Errorf("update line %s: %w", l.ID, err)
	}
	return nil
}

// DeleteLine drops a line by id without touching totals.
func (r *CartRepo) DeleteLine(ctx context.Context, q sqlx.ExecerContext, lineID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("delete line %s: %w", lineID, err)
	}
	return nil
}

// RemoveLine deletes the product's line and takes its quantity and amount off the totals.
func (r *CartRepo) RemoveLine(ctx context.Context, q sqlx.ExtContext, cart domain.Cart, productID string) (domain.CartLine, error) {
	l, found, err := r.Line(ctx, q, cart.ID, productID)
	if err != nil {
		return domain.CartLine{}, err
	}
	if !found {
		return domain.CartLine{}, domain.CartItemNotFound(productID)
	}
	if err := r.DeleteLine(ctx, q, l.ID); err != nil {
		return domain.CartLine{}, err
	}
	if err := r.addTotals(ctx, q, cart.ID, -l.Quantity, l.Amount.Neg()); err != nil {
		return domain.CartLine{}, err
	}
	return l, nil
}

// Clear deletes every line and zeroes the totals.
func (r *CartRepo) Clear(ctx context.Context, q sqlx.ExecerContext, cartID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart %s: %w", cartID, err)
	}
	return r.SetTotals(ctx, q, cartID, 0, decimal.Zero)
}

// Delete removes the cart and, by cascade, its lines.
func (r *CartRepo) Delete(ctx context.Context, q sqlx.ExecerContext, cartID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID); err != nil {
		return fmt.Errorf("delete cart %s: %w", cartID, err)
	}
	return nil
}

// SetTotals overwrites the denormalized totals.
func (r *CartRepo) SetTotals(ctx context.Context, q sqlx.ExecerContext, cartID string, qty int, total decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
		UPDATE carts SET total_quantity = ?, cart_total = ?, updated_at = ? WHERE id = ?
	`, qty, domain.Money(total), stamp(time.Now()), cartID)
	if err != nil {
		return fmt.Errorf("set totals %s: %w", cartID, err)
	}
	return nil
}

func (r *CartRepo) addTotals(ctx context.Context, q sqlx.ExtContext, cartID string, dq int, amount decimal.Decimal) error {
	var cur domain.Cart
	if err := sqlx.GetContext(ctx, q, &cur, `SELECT `+cartColumns+` FROM carts WHERE id = ?`, cartID); err != nil {
		return fmt.Errorf("read totals %s: %w", cartID, err)
	}
	return r.SetTotals(ctx, q, cartID, max(cur.TotalQuantity+dq, 0), cur.CartTotal.Add(amount))
}

// CartRef names a cart by kind and owner.
type CartRef struct {
	Kind     domain.CartKind `db:"kind"`
	OwnerKey string          `db:"owner_key"`
}

// Holders lists the carts with a line for any of productIDs.
func (r *CartRepo) Holders(ctx context.Context, q sqlx.QueryerContext, productIDs []string) ([]CartRef, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
	  SELECT DISTINCT c.kind, c.owner_key
	  FROM cart_lines cl JOIN carts c ON c.id = cl.cart_id
	  WHERE cl.product_id IN (?)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	var out []CartRef
	if err := sqlx.SelectContext(ctx, q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("cart holders: %w", err)
	}
	return out, nil
}
