package handlers

import (
	"time"

	"bazaar/internal/domain"
)

// Money leaves the API as 2dp strings.

type lineResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Amount      string `json:"amount"`
}

type priceChangeResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	OldPrice    string `json:"oldPrice"`
	NewPrice    string `json:"newPrice"`
}

type cartResponse struct {
	CartTotal       string                  `json:"cartTotal"`
	TotalQuantity   int                     `json:"totalQuantity"`
	Lines           []lineResponse          `json:"lines"`
	RemovedItems    []string                `json:"removedItems"`
	PriceChanges    []priceChangeResponse   `json:"priceChanges"`
	QuantityChanges []domain.QuantityChange `json:"quantityChanges"`
}

func toCartResponse(v domain.CartView, extra []domain.QuantityChange) cartResponse {
	out := cartResponse{
		CartTotal:       v.CartTotal.StringFixed(2),
		TotalQuantity:   v.TotalQuantity,
		Lines:           make([]lineResponse, 0, len(v.Lines)),
		RemovedItems:    append([]string{}, v.RemovedItems...),
		PriceChanges:    make([]priceChangeResponse, 0, len(v.PriceChanges)),
		QuantityChanges: append(append([]domain.QuantityChange{}, extra...), v.QuantityChanges...),
	}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.AddedPrice.StringFixed(2),
			Amount:      l.Amount.StringFixed(2),
		})
	}
	for _, pc := range v.PriceChanges {
		out.PriceChanges = append(out.PriceChanges, priceChangeResponse{
			ProductID:   pc.ProductID,
			ProductName: pc.ProductName,
			OldPrice:    pc.OldPrice.StringFixed(2),
			NewPrice:    pc.NewPrice.StringFixed(2),
		})
	}
	return out
}

type orderResponse struct {
	ID           string         `json:"id"`
	CheckoutType string         `json:"checkoutType"`
	Status       string         `json:"status"`
	OrderTotal   string         `json:"orderTotal"`
	CreatedAt    time.Time      `json:"createdAt"`
	Lines        []lineResponse `json:"lines,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	out := orderResponse{
		ID:           o.ID,
		CheckoutType: string(o.CheckoutType),
		Status:       string(o.Status),
		OrderTotal:   o.OrderTotal.StringFixed(2),
		CreatedAt:    o.CreatedAt,
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Amount:      l.Amount.StringFixed(2),
		})
	}
	return out
}

type productResponse struct {
	ID         string `json:"id"`
	CategoryID string `json:"categoryId"`
	Category   string `json:"category"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Stock      int    `json:"stock"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		CategoryID: p.CategoryID,
		Category:   p.Category,
		Name:       p.Name,
		Price:      p.Price.StringFixed(2),
		Stock:      p.Stock,
	}
}
