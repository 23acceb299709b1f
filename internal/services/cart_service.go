package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bazaar/internal/cache"
	"bazaar/internal/domain"
	"bazaar/internal/metrics"
	"bazaar/internal/repos"
)

// ItemInput is one requested product quantity.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CartService implements the cart operations for every cart kind. Each public
// method is one transaction; the cached view is invalidated after commit.
type CartService struct {
	tm      *repos.TxManager
	carts   *repos.CartRepo
	prods   *repos.ProductRepo
	users   *repos.UserRepo
	cache   cache.CartCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	sfg     singleflight.Group
	// gens is bumped by Invalidate; a read only caches its view if no
	// invalidation hit its stripe while it ran.
	gens [64]atomic.Uint64
}

func NewCartService(tm *repos.TxManager, carts *repos.CartRepo, prods *repos.ProductRepo, users *repos.UserRepo,
	c cache.CartCache, m *metrics.Metrics, logger *zap.Logger) *CartService {
	if c == nil {
		c = cache.Nop{}
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{tm: tm, carts: carts, prods: prods, users: users, cache: c, metrics: m, logger: logger}
}

// Carts is the facade for one cart kind; the owner key is a user id for USER
// carts and a session id otherwise.
type Carts struct {
	svc  *CartService
	kind domain.CartKind
}

func (s *CartService) For(kind domain.CartKind) Carts { return Carts{svc: s, kind: kind} }

func (c Carts) Kind() domain.CartKind { return c.kind }

func (c Carts) Get(ctx context.Context, owner string) (domain.CartView, error) {
	return c.svc.Get(ctx, c.kind, owner)
}

func (c Carts) AddItem(ctx context.Context, owner, productID string, qty int) (*domain.QuantityChange, error) {
	return c.svc.AddItem(ctx, c.kind, owner, productID, qty)
}

func (c Carts) AddItems(ctx context.Context, owner string, items []ItemInput) ([]domain.QuantityChange, error) {
	return c.svc.AddItems(ctx, c.kind, owner, items)
}

func (c Carts) UpdateItemQuantity(ctx context.Context, owner, productID string, qty int) (*domain.QuantityChange, error) {
	return c.svc.UpdateItemQuantity(ctx, c.kind, owner, productID, qty)
}

func (c Carts) RemoveItem(ctx context.Context, owner, productID string) error {
	return c.svc.RemoveItem(ctx, c.kind, owner, productID)
}

func (c Carts) Clear(ctx context.Context, owner string) error {
	return c.svc.Clear(ctx, c.kind, owner)
}

// Get returns the reconciled cart. Cache hits carry no change reports.
func (s *CartService) Get(ctx context.Context, kind domain.CartKind, owner string) (domain.CartView, error) {
	key := flightKey(kind, owner)
	v, err, _ := s.sfg.Do(key, func() (any, error) {
		// shared by every caller that joins the flight
		ctx := context.WithoutCancel(ctx)
		gen := s.generation(key)

		view, err := s.cache.Get(ctx, kind, owner)
		if err == nil {
			s.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return view, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			s.metrics.CacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("cart cache get failed", zap.String("cart", key), zap.Error(err))
		}

		err = s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
			view, err = s.ViewIn(ctx, tx, kind, owner)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, gen, view)
		return view, nil
	})
	s.observe(kind, "get", err)
	if err != nil {
		return domain.CartView{}, err
	}
	return v.(domain.CartView), nil
}

// store caches view unless the cart was invalidated after gen was read. An
// invalidation racing the write itself is caught by the second check.
func (s *CartService) store(ctx context.Context, key string, gen uint64, view domain.CartView) {
	if s.generation(key) != gen {
		return
	}
	if err := s.cache.Set(ctx, view); err != nil {
		s.logger.Warn("cart cache set failed", zap.String("cart", key), zap.Error(err))
		return
	}
	if s.generation(key) != gen {
		s.Invalidate(view.Kind, view.OwnerKey)
	}
}

func flightKey(kind domain.CartKind, owner string) string { return string(kind) + ":" + owner }

func (s *CartService) stripe(key string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.gens[h.Sum32()%uint32(len(s.gens))]
}

func (s *CartService) generation(key string) uint64 { return s.stripe(key).Load() }

// ViewIn reconciles the cart inside the caller's transaction, persists the
// corrections and the resummed totals, and returns the view.
func (s *CartService) ViewIn(ctx context.Context, tx *sqlx.Tx, kind domain.CartKind, owner string) (domain.CartView, error) {
	cart, err := s.findOrCreate(ctx, tx, kind, owner)
	if err != nil {
		return domain.CartView{}, err
	}
	lines, err := s.carts.Lines(ctx, tx, cart.ID)
	if err != nil {
		return domain.CartView{}, err
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.prods.GetMany(ctx, tx, ids)
	if err != nil {
		return domain.CartView{}, err
	}

	rec := Reconcile(lines, products)
	for _, id := range rec.Deleted {
		if err := s.carts.DeleteLine(ctx, tx, id); err != nil {
			return domain.CartView{}, err
		}
	}
	for _, l := range rec.Updated {
		if err := s.carts.UpdateLine(ctx, tx, l); err != nil {
			return domain.CartView{}, err
		}
	}
	qty, total := rec.TotalQuantity(), rec.Total()
	if qty != cart.TotalQuantity || !total.Equal(cart.CartTotal) {
		if err := s.carts.SetTotals(ctx, tx, cart.ID, qty, total); err != nil {
			return domain.CartView{}, err
		}
	}
	if rec.Corrected() {
		s.metrics.Corrections.WithLabelValues("removed").Add(float64(len(rec.Removed)))
		s.metrics.Corrections.WithLabelValues("price").Add(float64(len(rec.PriceChanges)))
		s.metrics.Corrections.WithLabelValues("quantity").Add(float64(len(rec.QuantityChanges)))
		s.logger.Info("cart reconciled",
			zap.String("kind", string(kind)), zap.String("owner", owner),
			zap.Strings("removed", rec.Removed),
			zap.Int("price_changes", len(rec.PriceChanges)),
			zap.Int("quantity_changes", len(rec.QuantityChanges)))
	}

	return domain.CartView{
		Kind:            kind,
		OwnerKey:        owner,
		CartTotal:       total,
		TotalQuantity:   qty,
		Lines:           rec.Lines,
		RemovedItems:    rec.Removed,
		PriceChanges:    rec.PriceChanges,
		QuantityChanges: rec.QuantityChanges,
	}, nil
}

// AddItem adds qty of a product. A buy-now cart holds one line, so adding replaces it.
func (s *CartService) AddItem(ctx context.Context, kind domain.CartKind, owner, productID string, qty int) (*domain.QuantityChange, error) {
	var change *domain.QuantityChange
	err := s.mutate(ctx, kind, owner, "add", func(tx *sqlx.Tx, cart domain.Cart) error {
		var err error
		change, err = s.addIn(ctx, tx, cart, productID, qty)
		return err
	})
	return change, err
}

// AddItems adds several products in one transaction; any failure rolls back all of them.
func (s *CartService) AddItems(ctx context.Context, kind domain.CartKind, owner string, items []ItemInput) ([]domain.QuantityChange, error) {
	if len(items) == 0 {
		return nil, domain.InvalidInput("no items given")
	}
	if kind == domain.CartBuyNow && len(items) > 1 {
		return nil, domain.InvalidInput("a buy-now cart holds a single item")
	}
	changes := []domain.QuantityChange{}
	err := s.mutate(ctx, kind, owner, "add_batch", func(tx *sqlx.Tx, cart domain.Cart) error {
		for _, it := range items {
			change, err := s.addIn(ctx, tx, cart, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if change != nil {
				changes = append(changes, *change)
			}
		}
		return nil
	})
	return changes, err
}

func (s *CartService) addIn(ctx context.Context, tx *sqlx.Tx, cart domain.Cart, productID string, qty int) (*domain.QuantityChange, error) {
	if err := checkQuantity(productID, qty); err != nil {
		return nil, err
	}
	p, err := s.prods.Get(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, domain.OutOfStock(p)
	}
	mode := repos.AddQuantity
	if cart.Kind == domain.CartBuyNow {
		if err := s.carts.Clear(ctx, tx, cart.ID); err != nil {
			return nil, err
		}
		mode = repos.SetQuantity
	}
	_, change, err := s.carts.UpsertLine(ctx, tx, cart, p, qty, mode)
	return change, err
}

// UpdateItemQuantity sets the absolute quantity of a line, or adds the product
// when it is not in the cart yet.
func (s *CartService) UpdateItemQuantity(ctx context.Context, kind domain.CartKind, owner, productID string, qty int) (*domain.QuantityChange, error) {
	var change *domain.QuantityChange
	err := s.mutate(ctx, kind, owner, "update", func(tx *sqlx.Tx, cart domain.Cart) error {
		if err := checkQuantity(productID, qty); err != nil {
			return err
		}
		_, found, err := s.carts.Line(ctx, tx, cart.ID, productID)
		if err != nil {
			return err
		}
		if !found {
			change, err = s.addIn(ctx, tx, cart, productID, qty)
			return err
		}
		p, err := s.prods.Get(ctx, tx, productID)
		if err != nil {
			return err
		}
		if qty > p.Stock {
			return domain.StockLimitExceeded(p, qty)
		}
		_, change, err = s.carts.UpsertLine(ctx, tx, cart, p, qty, repos.SetQuantity)
		return err
	})
	return change, err
}

func (s *CartService) RemoveItem(ctx context.Context, kind domain.CartKind, owner, productID string) error {
	return s.mutate(ctx, kind, owner, "remove", func(tx *sqlx.Tx, cart domain.Cart) error {
		if _, err := s.prods.Get(ctx, tx, productID); err != nil {
			return err
		}
		_, err := s.carts.RemoveLine(ctx, tx, cart, productID)
		return err
	})
}

func (s *CartService) Clear(ctx context.Context, kind domain.CartKind, owner string) error {
	return s.mutate(ctx, kind, owner, "clear", func(tx *sqlx.Tx, cart domain.Cart) error {
		return s.carts.Clear(ctx, tx, cart.ID)
	})
}

// ClearIn empties a cart inside the caller's transaction. The caller invalidates
// the cached view after commit.
func (s *CartService) ClearIn(ctx context.Context, tx *sqlx.Tx, kind domain.CartKind, owner string) error {
	cart, ok, err := s.carts.Find(ctx, tx, kind, owner)
	if err != nil || !ok {
		return err
	}
	return s.carts.Clear(ctx, tx, cart.ID)
}

// MergeSessionIntoUser moves every session cart line into the user's cart and
// deletes the session cart. Quantities add up and are clamped to the per-line cap
// and current stock; lines whose product is gone or sold out are dropped.
func (s *CartService) MergeSessionIntoUser(ctx context.Context, sessionID, userID string) ([]domain.QuantityChange, error) {
	changes := []domain.QuantityChange{}
	merged := false
	err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		session, ok, err := s.carts.Find(ctx, tx, domain.CartSession, sessionID)
		if err != nil || !ok {
			return err
		}
		lines, err := s.carts.Lines(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		userCart, err := s.findOrCreate(ctx, tx, domain.CartUser, userID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			p, err := s.prods.Get(ctx, tx, l.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if p.Stock <= 0 {
				continue
			}
			_, change, err := s.carts.UpsertLine(ctx, tx, userCart, p, l.Quantity, repos.AddQuantity)
			if err != nil {
				return err
			}
			if change != nil {
				changes = append(changes, *change)
			}
		}
		merged = true
		return s.carts.Delete(ctx, tx, session.ID)
	})
	s.observe(domain.CartUser, "merge", err)
	if err != nil {
		return nil, err
	}
	if merged {
		s.Invalidate(domain.CartSession, sessionID)
		s.Invalidate(domain.CartUser, userID)
		s.logger.Info("session cart merged", zap.String("session", sessionID), zap.String("user", userID))
	}
	return changes, nil
}

// Invalidate drops the cached view and detaches later reads from any read
// already in flight. Failures are logged, never returned.
func (s *CartService) Invalidate(kind domain.CartKind, owner string) {
	key := flightKey(kind, owner)
	s.stripe(key).Add(1)
	s.sfg.Forget(key)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, kind, owner); err != nil {
		s.logger.Warn("cart cache invalidate failed",
			zap.String("kind", string(kind)), zap.String("owner", owner), zap.Error(err))
	}
}

// InvalidateProducts drops the cached view of every cart holding one of
// productIDs. Call it after the price or stock change has committed.
func (s *CartService) InvalidateProducts(ctx context.Context, productIDs ...string) {
	if _, ok := s.cache.(cache.Nop); ok {
		return
	}
	refs, err := s.carts.Holders(context.WithoutCancel(ctx), s.tm.DB(), productIDs)
	if err != nil {
		s.logger.Warn("cart holders lookup failed", zap.Strings("products", productIDs), zap.Error(err))
		return
	}
	for _, ref := range refs {
		s.Invalidate(ref.Kind, ref.OwnerKey)
	}
}

func (s *CartService) mutate(ctx context.Context, kind domain.CartKind, owner, op string, fn func(tx *sqlx.Tx, cart domain.Cart) error) error {
	err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		cart, err := s.findOrCreate(ctx, tx, kind, owner)
		if err != nil {
			return err
		}
		return fn(tx, cart)
	})
	s.observe(kind, op, err)
	if err != nil {
		return err
	}
	s.Invalidate(kind, owner)
	return nil
}

// findOrCreate only validates the owner for user carts; session and buy-now
// carts come into existence on first touch.
func (s *CartService) findOrCreate(ctx context.Context, tx *sqlx.Tx, kind domain.CartKind, owner string) (domain.Cart, error) {
	if !kind.Valid() || owner == "" {
		return domain.Cart{}, domain.InvalidInput("cart owner required")
	}
	if kind == domain.CartUser {
		if _, err := s.users.ByID(ctx, tx, owner); err != nil {
			return domain.Cart{}, err
		}
	}
	return s.carts.FindOrCreate(ctx, tx, kind, owner)
}

func (s *CartService) observe(kind domain.CartKind, op string, err error) {
	s.metrics.CartOps.WithLabelValues(string(kind), op, metrics.Outcome(string(domain.KindOf(err)))).Inc()
}

func checkQuantity(productID string, qty int) error {
	if qty < 1 || qty > domain.MaxLineQuantity {
		return domain.QuantityLimitExceeded(productID, qty)
	}
	return nil
}
