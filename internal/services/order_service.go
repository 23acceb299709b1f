package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bazaar/internal/domain"
	"bazaar/internal/events"
	"bazaar/internal/metrics"
	"bazaar/internal/repos"
)

// PlaceOrderCommand is one checkout submission. SessionID owns the buy-now cart.
type PlaceOrderCommand struct {
	UserID         string
	SessionID      string
	CheckoutType   domain.CheckoutType
	Lines          []domain.OrderLineInput
	IdempotencyKey string
}

type PlaceOrderResult struct {
	OrderID  string
	Replayed bool
}

var errIdempotencyRace = errors.New("idempotency key inserted concurrently")

type OrderService struct {
	tm      *repos.TxManager
	carts   *CartService
	prods   *repos.ProductRepo
	orders  *repos.OrderRepo
	users   *repos.UserRepo
	outbox  *repos.OutboxRepo
	metrics *metrics.Metrics
	logger  *zap.Logger

	Timeout time.Duration
	Topic   string
	Now     func() time.Time
}

func NewOrderService(tm *repos.TxManager, carts *CartService, prods *repos.ProductRepo, orders *repos.OrderRepo,
	users *repos.UserRepo, outbox *repos.OutboxRepo, m *metrics.Metrics, logger *zap.Logger) *OrderService {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		tm: tm, carts: carts, prods: prods, orders: orders, users: users, outbox: outbox,
		metrics: m, logger: logger,
		Timeout: 30 * time.Second,
		Topic:   "order-events",
		Now:     time.Now,
	}
}

// PlaceOrder turns the live cart into an order exactly once per idempotency key.
// A known key returns the stored order id without further checks.
func (s *OrderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (res PlaceOrderResult, err error) {
	defer func() {
		outcome := metrics.Outcome(string(domain.KindOf(err)))
		if err == nil && res.Replayed {
			outcome = "replayed"
		}
		s.metrics.Checkouts.WithLabelValues(string(cmd.CheckoutType), outcome).Inc()
	}()

	kind, owner, err := s.validate(cmd)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	if id, ok, err := s.orders.ByIdempotencyKey(ctx, s.tm.DB(), cmd.IdempotencyKey); err != nil {
		return PlaceOrderResult{}, err
	} else if ok {
		return PlaceOrderResult{OrderID: id, Replayed: true}, nil
	}

	var order domain.Order
	replayed := false
	err = s.tm.InTxTimeout(ctx, s.Timeout, func(tx *sqlx.Tx) error {
		if id, ok, err := s.orders.ByIdempotencyKey(ctx, tx, cmd.IdempotencyKey); err != nil {
			return err
		} else if ok {
			order.ID, replayed = id, true
			return nil
		}
		if _, err := s.users.ByID(ctx, tx, cmd.UserID); err != nil {
			return err
		}

		view, err := s.carts.ViewIn(ctx, tx, kind, owner)
		if err != nil {
			return err
		}
		if err := matchCart(view.Lines, cmd.Lines); err != nil {
			return err
		}

		order, err = s.buildOrder(ctx, tx, cmd)
		if err != nil {
			return err
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			if repos.IsUniqueViolation(err) {
				return errIdempotencyRace
			}
			return err
		}
		for _, l := range order.Lines {
			if err := s.orders.InsertLine(ctx, tx, l); err != nil {
				return err
			}
		}
		for _, l := range order.Lines {
			p, err := s.prods.GetForUpdate(ctx, tx, l.ProductID)
			if err != nil {
				return err
			}
			if err := s.prods.Debit(ctx, tx, p, l.Quantity); err != nil {
				return err
			}
		}
		if err := s.appendEvent(ctx, tx, events.TypeOrderPlaced, order); err != nil {
			return err
		}
		if cmd.CheckoutType == domain.CheckoutNormal {
			return s.carts.ClearIn(ctx, tx, kind, owner)
		}
		return nil
	})
	if errors.Is(err, errIdempotencyRace) {
		id, ok, rerr := s.orders.ByIdempotencyKey(ctx, s.tm.DB(), cmd.IdempotencyKey)
		if rerr != nil {
			return PlaceOrderResult{}, rerr
		}
		if !ok {
			return PlaceOrderResult{}, domain.StorageUnavailable(err)
		}
		return PlaceOrderResult{OrderID: id, Replayed: true}, nil
	}
	if err != nil {
		s.logger.Info("checkout rejected",
			zap.String("user", cmd.UserID), zap.String("type", string(cmd.CheckoutType)),
			zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		if cartDrift(err) {
			s.carts.Invalidate(kind, owner)
		}
		return PlaceOrderResult{}, err
	}
	if replayed {
		return PlaceOrderResult{OrderID: order.ID, Replayed: true}, nil
	}

	if cmd.CheckoutType == domain.CheckoutNormal {
		s.carts.Invalidate(kind, owner)
	}
	s.carts.InvalidateProducts(ctx, order.ProductIDs()...)
	s.logger.Info("order placed",
		zap.String("order", order.ID), zap.String("user", order.UserID),
		zap.String("type", string(order.CheckoutType)), zap.String("total", order.OrderTotal.StringFixed(2)))
	return PlaceOrderResult{OrderID: order.ID}, nil
}

// cartDrift reports checkout failures caused by the cart no longer matching the
// catalog.
func cartDrift(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindCartChanged, domain.KindPriceChanged, domain.KindStockLimitExceeded,
		domain.KindQuantityLimitExceeded, domain.KindOutOfStock, domain.KindProductNotFound:
		return true
	}
	return false
}

func (s *OrderService) validate(cmd PlaceOrderCommand) (domain.CartKind, string, error) {
	if cmd.IdempotencyKey == "" {
		return "", "", domain.InvalidInput("idempotency key required")
	}
	if cmd.UserID == "" {
		return "", "", domain.InvalidInput("user required")
	}
	switch cmd.CheckoutType {
	case domain.CheckoutNormal:
		if len(cmd.Lines) == 0 {
			return "", "", domain.CartEmpty()
		}
		return domain.CartUser, cmd.UserID, nil
	case domain.CheckoutBuyNow:
		if cmd.SessionID == "" {
			return "", "", domain.InvalidInput("buy-now checkout needs a session")
		}
		if len(cmd.Lines) == 0 {
			return "", "", domain.CartEmpty()
		}
		return domain.CartBuyNow, cmd.SessionID, nil
	}
	return "", "", domain.InvalidInput(fmt.Sprintf("unknown checkout type %q", cmd.CheckoutType))
}

// matchCart compares the submitted lines with the reconciled cart: same products,
// same quantities, unit prices within one cent.
func matchCart(live []domain.CartLine, submitted []domain.OrderLineInput) error {
	if len(live) != len(submitted) {
		return domain.CartChanged(fmt.Sprintf("cart has %d lines, order has %d", len(live), len(submitted)))
	}
	byProduct := make(map[string]domain.CartLine, len(live))
	for _, l := range live {
		byProduct[l.ProductID] = l
	}
	seen := make(map[string]bool, len(submitted))
	for _, in := range submitted {
		l, ok := byProduct[in.ProductID]
		if !ok || seen[in.ProductID] {
			return domain.CartChanged("product " + in.ProductID + " is not in the cart")
		}
		seen[in.ProductID] = true
		if l.Quantity != in.Quantity {
			return domain.CartChanged(fmt.Sprintf("quantity of %s is %d", l.ProductName, l.Quantity))
		}
		if !domain.PricesMatch(l.AddedPrice, in.UnitPrice) {
			return domain.CartChanged(fmt.Sprintf("price of %s is %s", l.ProductName, l.AddedPrice.StringFixed(2)))
		}
	}
	return nil
}

// buildOrder re-validates every line against the catalog and prices it.
func (s *OrderService) buildOrder(ctx context.Context, tx *sqlx.Tx, cmd PlaceOrderCommand) (domain.Order, error) {
	o := domain.Order{
		ID:             uuid.NewString(),
		UserID:         cmd.UserID,
		IdempotencyKey: cmd.IdempotencyKey,
		CheckoutType:   cmd.CheckoutType,
		Status:         domain.OrderPlaced,
		CreatedAt:      s.Now(),
	}
	total := decimal.Zero
	for _, in := range cmd.Lines {
		p, err := s.prods.GetForUpdate(ctx, tx, in.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if !domain.PricesMatch(p.Price, in.UnitPrice) {
			return domain.Order{}, domain.PriceChanged(p)
		}
		if err := checkQuantity(p.ID, in.Quantity); err != nil {
			return domain.Order{}, err
		}
		if in.Quantity > p.Stock {
			return domain.Order{}, domain.StockLimitExceeded(p, in.Quantity)
		}
		price := domain.Money(p.Price)
		amount := domain.LineAmount(price, in.Quantity)
		o.Lines = append(o.Lines, domain.OrderLine{
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    in.Quantity,
			UnitPrice:   price,
			Amount:      amount,
		})
		total = total.Add(amount)
	}
	o.OrderTotal = domain.Money(total)
	return o, nil
}

// CancelOrder reverses the stock effects of an order placed less than 24h ago
// and deletes it.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) error {
	err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		o, err := s.orders.Get(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return domain.UnauthorizedOrderCancellation(orderID)
		}
		if s.Now().Sub(o.CreatedAt) > domain.CancellationWindow {
			return domain.CancellationPeriodEnded(orderID)
		}
		for _, l := range o.Lines {
			if err := s.prods.Credit(ctx, tx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := s.orders.Delete(ctx, tx, orderID); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, events.TypeOrderCanceled, o)
	})
	if err != nil {
		return err
	}
	s.logger.Info("order canceled", zap.String("order", orderID), zap.String("user", userID))
	return nil
}

// GetOrder returns one of the user's orders; other users' orders read as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.orders.Get(ctx, s.tm.DB(), orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o.UserID != userID {
		return domain.Order{}, domain.OrderNotFound(orderID)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, s.tm.DB(), userID)
}

func (s *OrderService) appendEvent(ctx context.Context, tx *sqlx.Tx, typ string, o domain.Order) error {
	payload, err := events.NewOrderEvent(typ, o, s.Now()).Marshal()
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, tx, s.Topic, o.ID, payload)
}
