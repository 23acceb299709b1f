package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"bazaar/internal/domain"
)

type OrderRepo struct{}

func NewOrderRepo() *OrderRepo { return &OrderRepo{} }

type orderRow struct {
	domain.Order
	Created string `db:"created_at"`
}

func (r orderRow) order() (domain.Order, error) {
	o := r.Order
	t, err := time.Parse(time.RFC3339Nano, r.Created)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s created_at %q: %w", o.ID, r.Created, err)
	}
	o.CreatedAt = t
	return o, nil
}

const orderColumns = `id, user_id, idempotency_key, checkout_type, order_total, status, created_at`

// Create inserts the order header. A duplicate idempotency key surfaces as a
// unique violation (see IsUniqueViolation).
func (r *OrderRepo) Create(ctx context.Context, q sqlx.ExecerContext, o domain.Order) error {
	_, err := q.ExecContext(ctx, `
	  INSERT INTO orders (`+orderColumns+`)
	  VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, o.IdempotencyKey, o.CheckoutType, domain.Money(o.OrderTotal), o.Status, stamp(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepo) InsertLine(ctx context.Context, q sqlx.ExecerContext, l domain.OrderLine) error {
	_, err := q.ExecContext(ctx, `
	  INSERT INTO order_lines(order_id, product_id, product_name, quantity, unit_price, amount)
	  VALUES (?, ?, ?, ?, ?, ?)
	`, l.OrderID, l.ProductID, l.ProductName, l.Quantity, domain.Money(l.UnitPrice), domain.Money(l.Amount))
	if err != nil {
		return fmt.Errorf("insert order line %s/%s: %w", l.OrderID, l.ProductID, err)
	}
	return nil
}

// ByIdempotencyKey returns the order id stored under key, or ok=false.
func (r *OrderRepo) ByIdempotencyKey(ctx context.Context, q sqlx.QueryerContext, key string) (string, bool, error) {
	var id string
	err := sqlx.GetContext(ctx, q, &id, `SELECT id FROM orders WHERE idempotency_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("order by key: %w", err)
	}
	return id, true, nil
}

// Get returns the order with its lines, or domain.ErrOrderNotFound.
func (r *OrderRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	o, err := row.order()
	if err != nil {
		return domain.Order{}, err
	}
	o.Lines, err = r.Lines(ctx, q, id)
	return o, err
}

func (r *OrderRepo) Lines(ctx context.Context, q sqlx.QueryerContext, orderID string) ([]domain.OrderLine, error) {
	lines := []domain.OrderLine{}
	if err := sqlx.SelectContext(ctx, q, &lines, `
	  SELECT order_id, product_id, product_name, quantity, unit_price, amount
	  FROM order_lines WHERE order_id = ?
	  ORDER BY rowid
	`, orderID); err != nil {
		return nil, fmt.Errorf("order lines %s: %w", orderID, err)
	}
	return lines, nil
}

// ListByUser returns a user's orders, newest first, without lines.
func (r *OrderRepo) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]domain.Order, error) {
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
	  SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, rowid DESC
	`, userID); err != nil {
		return nil, fmt.Errorf("list orders %s: %w", userID, err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.order()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Delete removes the order; its lines go by cascade.
func (r *OrderRepo) Delete(ctx context.Context, q sqlx.ExecerContext, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}
