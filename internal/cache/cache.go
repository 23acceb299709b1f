package cache

import (
	"context"
	"errors"
	"fmt"

	"bazaar/internal/domain"
)

// CartCache holds reconciled cart views keyed by cart kind and owner.
type CartCache interface {
	Get(ctx context.Context, kind domain.CartKind, owner string) (domain.CartView, error)
	Set(ctx context.Context, view domain.CartView) error
	Delete(ctx context.Context, kind domain.CartKind, owner string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything; every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, domain.CartKind, string) (domain.CartView, error) {
	return domain.CartView{}, ErrCacheMiss
}

func (Nop) Set(context.Context, domain.CartView) error { return nil }

func (Nop) Delete(context.Context, domain.CartKind, string) error { return nil }

func cacheKey(kind domain.CartKind, owner string) string {
	return fmt.Sprintf("cart:%s:%s", kind, owner)
}
