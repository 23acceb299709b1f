package services

import (
	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
)

// Reconciliation is the outcome of checking stored lines against the catalog.
type Reconciliation struct {
	Lines           []domain.CartLine
	Removed         []string
	PriceChanges    []domain.PriceChange
	QuantityChanges []domain.QuantityChange

	// Updated lines must be written back; Deleted holds line ids to drop.
	Updated []domain.CartLine
	Deleted []string
}

// TotalQuantity and Total are exact sums over the reconciled lines.
func (r Reconciliation) TotalQuantity() int {
	n := 0
	for _, l := range r.Lines {
		n += l.Quantity
	}
	return n
}

func (r Reconciliation) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.Lines {
		sum = sum.Add(l.Amount)
	}
	return domain.Money(sum)
}

// Reconcile corrects each line independently: lines whose product is gone or out
// of stock are removed, quantities above stock or the per-line cap are lowered,
// and the added price follows the current price.
func Reconcile(lines []domain.CartLine, products map[string]domain.Product) Reconciliation {
	r := Reconciliation{
		Lines:           make([]domain.CartLine, 0, len(lines)),
		Removed:         []string{},
		PriceChanges:    []domain.PriceChange{},
		QuantityChanges: []domain.QuantityChange{},
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || p.Stock <= 0 {
			name := l.ProductName
			if ok {
				name = p.Name
			}
			r.Removed = append(r.Removed, name)
			r.Deleted = append(r.Deleted, l.ID)
			continue
		}

		l.ProductName = p.Name
		dirty := false

		if l.Quantity > p.Stock || l.Quantity > domain.MaxLineQuantity {
			capped := min(p.Stock, domain.MaxLineQuantity)
			reason := domain.ReasonStockLimit
			if capped == domain.MaxLineQuantity {
				reason = domain.ReasonQuantityLimit
			}
			r.QuantityChanges = append(r.QuantityChanges, domain.QuantityChange{
				ProductID:   p.ID,
				ProductName: p.Name,
				OldQuantity: l.Quantity,
				NewQuantity: capped,
				Reason:      reason,
			})
			l.Quantity = capped
			dirty = true
		}

		current := domain.Money(p.Price)
		if !current.Equal(l.AddedPrice) {
			r.PriceChanges = append(r.PriceChanges, domain.PriceChange{
				ProductID:   p.ID,
				ProductName: p.Name,
				OldPrice:    l.AddedPrice,
				NewPrice:    current,
			})
			l.AddedPrice = current
			dirty = true
		}

		amount := domain.LineAmount(l.AddedPrice, l.Quantity)
		if !amount.Equal(l.Amount) {
			l.Amount = amount
			dirty = true
		}
		if dirty {
			r.Updated = append(r.Updated, l)
		}
		r.Lines = append(r.Lines, l)
	}
	return r
}

// Corrected reports whether anything was removed, capped or repriced.
func (r Reconciliation) Corrected() bool {
	return len(r.Removed)+len(r.PriceChanges)+len(r.QuantityChanges) > 0
}
