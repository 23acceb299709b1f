package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
)

const (
	TypeOrderPlaced   = "order.placed"
	TypeOrderCanceled = "order.canceled"
)

type OrderLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderEvent is the payload written to the outbox for order lifecycle changes.
type OrderEvent struct {
	Type         string              `json:"type"`
	OrderID      string              `json:"orderId"`
	UserID       string              `json:"userId"`
	CheckoutType domain.CheckoutType `json:"checkoutType"`
	OrderTotal   decimal.Decimal     `json:"orderTotal"`
	Lines        []OrderLine         `json:"lines"`
	OccurredAt   time.Time           `json:"occurredAt"`
}

func NewOrderEvent(typ string, o domain.Order, at time.Time) OrderEvent {
	ev := OrderEvent{
		Type:         typ,
		OrderID:      o.ID,
		UserID:       o.UserID,
		CheckoutType: o.CheckoutType,
		OrderTotal:   o.OrderTotal,
		Lines:        make([]OrderLine, 0, len(o.Lines)),
		OccurredAt:   at.UTC(),
	}
	for _, l := range o.Lines {
		ev.Lines = append(ev.Lines, OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return ev
}

func (e OrderEvent) Marshal() ([]byte, error) { return json.Marshal(e) }
