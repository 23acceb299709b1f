package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartKind identifies which actor a cart is scoped to.
type CartKind string

const (
	CartUser    CartKind = "USER"
	CartSession CartKind = "SESSION"
	CartBuyNow  CartKind = "BUY_NOW"
)

func (k CartKind) Valid() bool {
	switch k {
	case CartUser, CartSession, CartBuyNow:
		return true
	}
	return false
}

type CheckoutType string

const (
	CheckoutNormal CheckoutType = "NORMAL"
	CheckoutBuyNow CheckoutType = "BUY_NOW"
)

func (t CheckoutType) Valid() bool { return t == CheckoutNormal || t == CheckoutBuyNow }

// MaxLineQuantity is the flat per-line cap.
const MaxLineQuantity = 10

// CancellationWindow is how long after placement an order may still be cancelled.
const CancellationWindow = 24 * time.Hour

type Category struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type Product struct {
	ID            string          `db:"id"`
	CategoryID    string          `db:"category_id"`
	Category      string          `db:"category"`
	Name          string          `db:"name"`
	Description   string          `db:"description"`
	Price         decimal.Decimal `db:"price"`
	Stock         int             `db:"stock"`
	Sold          int             `db:"sold"`
	WishlistCount int             `db:"wishlist_count"`
	Active        bool            `db:"active"`
}

type Cart struct {
	ID            string          `db:"id"`
	Kind          CartKind        `db:"kind"`
	OwnerKey      string          `db:"owner_key"`
	TotalQuantity int             `db:"total_quantity"`
	CartTotal     decimal.Decimal `db:"cart_total"`
}

// CartLine is one stored product line. Amount always equals Quantity * AddedPrice.
type CartLine struct {
	ID          string          `db:"id" json:"id"`
	CartID      string          `db:"cart_id" json:"cartId"`
	ProductID   string          `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int             `db:"quantity" json:"quantity"`
	AddedPrice  decimal.Decimal `db:"added_price" json:"addedPrice"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
}

type ChangeReason string

const (
	ReasonQuantityLimit ChangeReason = "QUANTITY_LIMIT_EXCEEDED"
	ReasonStockLimit    ChangeReason = "STOCK_LIMIT_EXCEEDED"
)

type QuantityChange struct {
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	OldQuantity int          `json:"oldQuantity"`
	NewQuantity int          `json:"newQuantity"`
	Reason      ChangeReason `json:"reason"`
}

type PriceChange struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	OldPrice    decimal.Decimal `json:"oldPrice"`
	NewPrice    decimal.Decimal `json:"newPrice"`
}

// CartView is the reconciled read model returned by every cart read.
type CartView struct {
	Kind            CartKind         `json:"kind"`
	OwnerKey        string           `json:"ownerKey"`
	CartTotal       decimal.Decimal  `json:"cartTotal"`
	TotalQuantity   int              `json:"totalQuantity"`
	Lines           []CartLine       `json:"lines"`
	RemovedItems    []string         `json:"removedItems"`
	PriceChanges    []PriceChange    `json:"priceChanges"`
	QuantityChanges []QuantityChange `json:"quantityChanges"`
}

// WithoutReports returns a copy stripped of the one-shot change reports.
func (v CartView) WithoutReports() CartView {
	v.RemovedItems = []string{}
	v.PriceChanges = []PriceChange{}
	v.QuantityChanges = []QuantityChange{}
	return v
}

type OrderStatus string

const OrderPlaced OrderStatus = "PLACED"

type Order struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	IdempotencyKey string          `db:"idempotency_key"`
	CheckoutType   CheckoutType    `db:"checkout_type"`
	OrderTotal     decimal.Decimal `db:"order_total"`
	Status         OrderStatus     `db:"status"`
	CreatedAt      time.Time       `db:"-"`
	Lines          []OrderLine     `db:"-"`
}

// ProductIDs lists the products the order touches.
func (o Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

type OrderLine struct {
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	Amount      decimal.Decimal `db:"amount"`
}

// OrderLineInput is the client's view of a line at checkout submission.
type OrderLineInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}
