package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
)

// ProductRepo is the catalog accessor: the only source of current price and stock.
type ProductRepo struct{}

func NewProductRepo() *ProductRepo { return &ProductRepo{} }

const productColumns = `
    p.id, p.category_id, COALESCE(c.name,'') AS category, p.name, p.description,
    p.price, p.stock, p.sold, p.wishlist_count, p.active`

// Get returns the product or domain.ErrProductNotFound.
func (r *ProductRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, q, &p, `
	  SELECT`+productColumns+`
	  FROM products p LEFT JOIN categories c ON c.id = p.category_id
	  WHERE p.id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// GetForUpdate reads a product that is about to be written in the same transaction.
// Transactions are opened with BEGIN IMMEDIATE, so the write lock is already held
// and this read cannot be invalidated before the write.
func (r *ProductRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (domain.Product, error) {
	return r.Get(ctx, tx, id)
}

// GetMany loads products by id; missing ids are simply absent from the map.
func (r *ProductRepo) GetMany(ctx context.Context, q sqlx.QueryerContext, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
	  SELECT`+productColumns+`
	  FROM products p LEFT JOIN categories c ON c.id = p.category_id
	  WHERE p.id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}
	var rows []domain.Product
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// Debit subtracts qty from stock and adds it to sold, refusing to go below zero.
func (r *ProductRepo) Debit(ctx context.Context, tx *sqlx.Tx, p domain.Product, qty int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, sold = sold + ?, updated_at = ?
		WHERE id = ? AND stock >= ?
	`, qty, qty, stamp(time.Now()), p.ID, qty)
	if err != nil {
		return fmt.Errorf("debit stock %s: %w", p.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.StockLimitExceeded(p, qty)
	}
	return nil
}

// Credit reverses a Debit.
func (r *ProductRepo) Credit(ctx context.Context, tx *sqlx.Tx, productID string, qty int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, sold = MAX(sold - ?, 0), updated_at = ?
		WHERE id = ?
	`, qty, qty, stamp(time.Now()), productID)
	if err != nil {
		return fmt.Errorf("credit stock %s: %w", productID, err)
	}
	return nil
}

func (r *ProductRepo) SetPrice(ctx context.Context, q sqlx.ExecerContext, id string, price decimal.Decimal) error {
	return r.update(ctx, q, id, `UPDATE products SET price = ?, updated_at = ? WHERE id = ?`, domain.Money(price))
}

func (r *ProductRepo) SetStock(ctx context.Context, q sqlx.ExecerContext, id string, stock int) error {
	return r.update(ctx, q, id, `UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`, stock)
}

func (r *ProductRepo) update(ctx context.Context, q sqlx.ExecerContext, id, query string, v any) error {
	res, err := q.ExecContext(ctx, query, v, stamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update product %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ProductNotFound(id)
	}
	return nil
}

// Create inserts a product, creating its category if needed.
func (r *ProductRepo) Create(ctx context.Context, q sqlx.ExecerContext, p domain.Product) error {
	if p.CategoryID == "" {
		p.CategoryID = "general"
	}
	if p.Category == "" {
		p.Category = p.CategoryID
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO categories(id,name) VALUES(?,?) ON CONFLICT(id) DO NOTHING`,
		p.CategoryID, p.Category); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO products(id, category_id, name, description, price, stock, sold, wishlist_count, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, p.ID, p.CategoryID, p.Name, p.Description, domain.Money(p.Price), p.Stock, p.Sold, p.WishlistCount, stamp(time.Now()))
	return err
}

// List returns active products, optionally filtered by category, ordered by name.
func (r *ProductRepo) List(ctx context.Context, q sqlx.QueryerContext, categoryID string, limit, offset int) ([]domain.Product, error) {
	out := []domain.Product{}
	err := sqlx.SelectContext(ctx, q, &out, `
	  SELECT`+productColumns+`
	  FROM products p LEFT JOIN categories c ON c.id = p.category_id
	  WHERE p.active = 1 AND (? = '' OR p.category_id = ?)
	  ORDER BY p.name, p.id
	  LIMIT ? OFFSET ?
	`, categoryID, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (r *ProductRepo) Categories(ctx context.Context, q sqlx.QueryerContext) ([]domain.Category, error) {
	out := []domain.Category{}
	if err := sqlx.SelectContext(ctx, q, &out, `SELECT id, name FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}
