package services

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bazaar/internal/domain"
	"bazaar/internal/repos"
)

// CatalogService serves product reads and the admin price/stock edits. Edits never
// write cart rows; they drop the cached views of carts holding the product, and
// those carts reconcile on their next read.
type CatalogService struct {
	tm     *repos.TxManager
	prods  *repos.ProductRepo
	carts  *CartService
	logger *zap.Logger
}

func NewCatalogService(tm *repos.TxManager, prods *repos.ProductRepo, carts *CartService, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{tm: tm, prods: prods, carts: carts, logger: logger}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.prods.Categories(ctx, s.tm.DB())
}

func (s *CatalogService) ListProducts(ctx context.Context, categoryID string, page, pageSize int) ([]domain.Product, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 12
	}
	return s.prods.List(ctx, s.tm.DB(), categoryID, pageSize, (page-1)*pageSize)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.prods.Get(ctx, s.tm.DB(), id)
}

func (s *CatalogService) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.InvalidInput("price must be positive")
	}
	err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		return s.prods.SetPrice(ctx, tx, id, price)
	})
	if err != nil {
		return err
	}
	s.carts.InvalidateProducts(ctx, id)
	s.logger.Info("price changed", zap.String("product", id), zap.String("price", domain.Money(price).StringFixed(2)))
	return nil
}

func (s *CatalogService) SetStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		return domain.InvalidInput("stock must not be negative")
	}
	err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		return s.prods.SetStock(ctx, tx, id, stock)
	})
	if err != nil {
		return err
	}
	s.carts.InvalidateProducts(ctx, id)
	s.logger.Info("stock changed", zap.String("product", id), zap.Int("stock", stock))
	return nil
}
