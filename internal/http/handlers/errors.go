package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"bazaar/internal/domain"
	applog "bazaar/internal/log"
)

// statusOf maps a domain error kind to its HTTP status.
func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindUserNotFound, domain.KindProductNotFound, domain.KindCartItemNotFound, domain.KindOrderNotFound:
		return fiber.StatusNotFound
	case domain.KindUnauthorizedOrderCancellation:
		return fiber.StatusForbidden
	case domain.KindOutOfStock, domain.KindStockLimitExceeded, domain.KindQuantityLimitExceeded,
		domain.KindPriceChanged, domain.KindCartChanged, domain.KindCancellationPeriodEnded:
		return fiber.StatusConflict
	case domain.KindInvalidInput, domain.KindCartEmpty:
		return fiber.StatusBadRequest
	case domain.KindStorageUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// fail writes err as a JSON error body. Unknown errors become a generic 500.
func fail(c *fiber.Ctx, action string, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		applog.Error(c, action+".fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
	}

	status := statusOf(de.Kind)
	body := fiber.Map{"error": de.Error(), "kind": de.Kind}
	if de.ProductID != "" {
		body["productId"] = de.ProductID
	}
	if de.ProductName != "" {
		body["productName"] = de.ProductName
	}
	if de.OrderID != "" {
		body["orderId"] = de.OrderID
	}
	switch de.Kind {
	case domain.KindCartChanged:
		body["action"] = "refetch_cart"
	case domain.KindStorageUnavailable:
		body["error"] = "temporarily unavailable, retry"
		c.Set(fiber.HeaderRetryAfter, "1")
		applog.Error(c, action+".unavailable", err, nil)
	}
	if status == fiber.StatusForbidden {
		applog.Security(c, action+".denied", map[string]any{"kind": de.Kind})
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is the app-wide fallback; it never leaks internal messages.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
}
