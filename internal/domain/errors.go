package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error. Handlers map kinds to status codes.
type Kind string

const (
	KindUserNotFound                  Kind = "USER_NOT_FOUND"
	KindProductNotFound               Kind = "PRODUCT_NOT_FOUND"
	KindCartItemNotFound              Kind = "CART_ITEM_NOT_FOUND"
	KindOutOfStock                    Kind = "OUT_OF_STOCK"
	KindStockLimitExceeded            Kind = "STOCK_LIMIT_EXCEEDED"
	KindQuantityLimitExceeded         Kind = "QUANTITY_LIMIT_EXCEEDED"
	KindPriceChanged                  Kind = "PRICE_CHANGED"
	KindCartChanged                   Kind = "CART_CHANGED"
	KindCartEmpty                     Kind = "CART_EMPTY"
	KindOrderNotFound                 Kind = "ORDER_NOT_FOUND"
	KindUnauthorizedOrderCancellation Kind = "UNAUTHORIZED_ORDER_CANCELLATION"
	KindCancellationPeriodEnded       Kind = "CANCELLATION_PERIOD_ENDED"
	KindInvalidInput                  Kind = "INVALID_INPUT"
	KindStorageUnavailable            Kind = "STORAGE_UNAVAILABLE"
)

// Error is the single error type raised by cart and checkout logic.
type Error struct {
	Kind        Kind
	Message     string
	ProductID   string
	ProductName string
	OrderID     string
	Err         error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUserNotFound                  = &Error{Kind: KindUserNotFound}
	ErrProductNotFound               = &Error{Kind: KindProductNotFound}
	ErrCartItemNotFound              = &Error{Kind: KindCartItemNotFound}
	ErrOutOfStock                    = &Error{Kind: KindOutOfStock}
	ErrStockLimitExceeded            = &Error{Kind: KindStockLimitExceeded}
	ErrQuantityLimitExceeded         = &Error{Kind: KindQuantityLimitExceeded}
	ErrPriceChanged                  = &Error{Kind: KindPriceChanged}
	ErrCartChanged                   = &Error{Kind: KindCartChanged}
	ErrCartEmpty                     = &Error{Kind: KindCartEmpty}
	ErrOrderNotFound                 = &Error{Kind: KindOrderNotFound}
	ErrUnauthorizedOrderCancellation = &Error{Kind: KindUnauthorizedOrderCancellation}
	ErrCancellationPeriodEnded       = &Error{Kind: KindCancellationPeriodEnded}
	ErrInvalidInput                  = &Error{Kind: KindInvalidInput}
	ErrStorageUnavailable            = &Error{Kind: KindStorageUnavailable}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func UserNotFound(userID string) error {
	return &Error{Kind: KindUserNotFound, Message: fmt.Sprintf("user %s not found", userID)}
}

func ProductNotFound(productID string) error {
	return &Error{Kind: KindProductNotFound, ProductID: productID,
		Message: fmt.Sprintf("product %s not found", productID)}
}

func CartItemNotFound(productID string) error {
	return &Error{Kind: KindCartItemNotFound, ProductID: productID,
		Message: fmt.Sprintf("product %s is not in the cart", productID)}
}

func OutOfStock(p Product) error {
	return &Error{Kind: KindOutOfStock, ProductID: p.ID, ProductName: p.Name,
		Message: fmt.Sprintf("%s is out of stock", p.Name)}
}

func StockLimitExceeded(p Product, requested int) error {
	return &Error{Kind: KindStockLimitExceeded, ProductID: p.ID, ProductName: p.Name,
		Message: fmt.Sprintf("requested %d of %s but only %d in stock", requested, p.Name, p.Stock)}
}

func QuantityLimitExceeded(productID string, requested int) error {
	return &Error{Kind: KindQuantityLimitExceeded, ProductID: productID,
		Message: fmt.Sprintf("quantity %d outside 1..%d", requested, MaxLineQuantity)}
}

func PriceChanged(p Product) error {
	return &Error{Kind: KindPriceChanged, ProductID: p.ID, ProductName: p.Name,
		Message: fmt.Sprintf("price of %s changed to %s", p.Name, p.Price.StringFixed(2))}
}

func CartChanged(reason string) error {
	return &Error{Kind: KindCartChanged,
		Message: "cart changed (" + reason + "); re-fetch the cart and retry"}
}

func CartEmpty() error {
	return &Error{Kind: KindCartEmpty, Message: "cart is empty"}
}

func OrderNotFound(orderID string) error {
	return &Error{Kind: KindOrderNotFound, OrderID: orderID,
		Message: fmt.Sprintf("order %s not found", orderID)}
}

func UnauthorizedOrderCancellation(orderID string) error {
	return &Error{Kind: KindUnauthorizedOrderCancellation, OrderID: orderID,
		Message: "order belongs to another user"}
}

func CancellationPeriodEnded(orderID string) error {
	return &Error{Kind: KindCancellationPeriodEnded, OrderID: orderID,
		Message: "orders can only be cancelled within 24 hours"}
}

func InvalidInput(msg string) error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

// StorageUnavailable wraps a transient storage failure; the operation is safe to retry.
func StorageUnavailable(err error) error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable, retry", Err: err}
}
