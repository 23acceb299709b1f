package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
	applog "bazaar/internal/log"
	"bazaar/internal/services"
	"bazaar/internal/validate"
)

const idempotencyHeader = "Idempotency-Key"

type OrderHandler struct {
	Orders *services.OrderService
}

type placeOrderRequest struct {
	CheckoutType string             `json:"checkoutType" validate:"required,oneof=NORMAL BUY_NOW"`
	Items        []orderLineRequest `json:"items" validate:"dive"`
}

type orderLineRequest struct {
	ProductID string          `json:"productId" validate:"required,resid"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// POST /orders
func (h *OrderHandler) Place(c *fiber.Ctx) error {
	u := currentUser(c)
	key := strings.TrimSpace(c.Get(idempotencyHeader))
	if key == "" || len(key) > 128 {
		applog.Security(c, "validation.fail", map[string]any{"field": "idempotency_key"})
		return fail(c, "order.place", domain.InvalidInput(idempotencyHeader+" header required"))
	}
	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, "order.place", domain.InvalidInput("malformed body"))
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "order.place", err)
	}
	lines := make([]domain.OrderLineInput, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.OrderLineInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	res, err := h.Orders.PlaceOrder(c.UserContext(), services.PlaceOrderCommand{
		UserID:         u.ID,
		SessionID:      ensureSID(c),
		CheckoutType:   domain.CheckoutType(req.CheckoutType),
		Lines:          lines,
		IdempotencyKey: key,
	})
	if err != nil {
		return fail(c, "order.place", err)
	}
	if res.Replayed {
		applog.Info(c, "order.place.replay", map[string]any{"order_id": res.OrderID})
		return c.JSON(fiber.Map{"orderId": res.OrderID, "replayed": true})
	}
	applog.Audit(c, "order.place", map[string]any{"order_id": res.OrderID, "type": req.CheckoutType})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"orderId": res.OrderID})
}

// GET /orders
func (h *OrderHandler) List(c *fiber.Ctx) error {
	orders, err := h.Orders.ListOrders(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "order.list", err)
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return c.JSON(fiber.Map{"orders": out})
}

// GET /orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	oid, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "order.view", domain.OrderNotFound(c.Params("id")))
	}
	o, err := h.Orders.GetOrder(c.UserContext(), currentUser(c).ID, oid)
	if err != nil {
		return fail(c, "order.view", err)
	}
	return c.JSON(toOrderResponse(o))
}

// POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	oid, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "order.cancel", domain.OrderNotFound(c.Params("id")))
	}
	if err := h.Orders.CancelOrder(c.UserContext(), currentUser(c).ID, oid); err != nil {
		return fail(c, "order.cancel", err)
	}
	applog.Audit(c, "order.cancel", map[string]any{"order_id": oid})
	return c.SendStatus(fiber.StatusNoContent)
}
