package handlers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"bazaar/internal/cache"
	"bazaar/internal/config"
	"bazaar/internal/domain"
	"bazaar/internal/metrics"
	"bazaar/internal/repos"
	"bazaar/internal/services"
)

// Deps is everything the routes need, wired from one database handle.
type Deps struct {
	TM      *repos.TxManager
	Outbox  *repos.OutboxRepo
	Auth    *services.AuthService
	Carts   *services.CartService
	Orders  *services.OrderService
	Catalog *services.CatalogService
	Metrics *metrics.Metrics

	AuthHandler    *AuthHandler
	CatalogHandler *CatalogHandler
	UserCart       *CartHandler
	GuestCart      *CartHandler
	BuyNow         *CartHandler
	OrderHandler   *OrderHandler
	AdminHandler   *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, c cache.CartCache, m *metrics.Metrics, logger *zap.Logger) (*Deps, error) {
	isolation, err := repos.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}
	tm := repos.NewTxManager(db, isolation)
	prodRepo := repos.NewProductRepo()
	userRepo := repos.NewUserRepo()
	outbox := repos.NewOutboxRepo()

	cartSvc := services.NewCartService(tm, repos.NewCartRepo(), prodRepo, userRepo, c, m, logger)
	orderSvc := services.NewOrderService(tm, cartSvc, prodRepo, repos.NewOrderRepo(), userRepo, outbox, m, logger)
	if cfg.CheckoutTimeout > 0 {
		orderSvc.Timeout = cfg.CheckoutTimeout
	}
	if cfg.OrderTopic != "" {
		orderSvc.Topic = cfg.OrderTopic
	}
	authSvc := services.NewAuthService(tm, userRepo, cartSvc, logger)
	catalogSvc := services.NewCatalogService(tm, prodRepo, cartSvc, logger)

	return &Deps{
		TM:      tm,
		Outbox:  outbox,
		Auth:    authSvc,
		Carts:   cartSvc,
		Orders:  orderSvc,
		Catalog: catalogSvc,
		Metrics: m,

		AuthHandler:    &AuthHandler{Auth: authSvc},
		CatalogHandler: &CatalogHandler{Catalog: catalogSvc},
		UserCart:       &CartHandler{Carts: cartSvc.For(domain.CartUser), Owner: userOwner},
		GuestCart:      &CartHandler{Carts: cartSvc.For(domain.CartSession), Owner: sessionOwner},
		BuyNow:         &CartHandler{Carts: cartSvc.For(domain.CartBuyNow), Owner: sessionOwner},
		OrderHandler:   &OrderHandler{Orders: orderSvc},
		AdminHandler:   &AdminHandler{Catalog: catalogSvc},
	}, nil
}
