package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"bazaar/internal/domain"
	applog "bazaar/internal/log"
	"bazaar/internal/services"
	"bazaar/internal/validate"
)

// CartHandler serves one cart kind; Owner resolves the owner key from the request.
type CartHandler struct {
	Carts services.Carts
	Owner func(c *fiber.Ctx) (string, error)
}

type itemRequest struct {
	ProductID string `json:"productId" validate:"required,resid"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) action(op string) string {
	return "cart." + strings.ToLower(string(h.Carts.Kind())) + "." + op
}

// GET
func (h *CartHandler) View(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("view"), err)
	}
	return h.respond(c, owner, nil)
}

// POST /items
func (h *CartHandler) Add(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("add"), err)
	}
	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.action("add"), domain.InvalidInput("malformed body"))
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, h.action("add"), err)
	}
	change, err := h.Carts.AddItem(c.UserContext(), owner, req.ProductID, req.Quantity)
	if err != nil {
		return fail(c, h.action("add"), err)
	}
	applog.Info(c, h.action("add"), map[string]any{"product_id": req.ProductID, "qty": req.Quantity})
	return h.respond(c, owner, optional(change))
}

// POST /items/batch takes a JSON array of items.
func (h *CartHandler) AddBatch(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("add_batch"), err)
	}
	var reqs []itemRequest
	if err := json.Unmarshal(c.Body(), &reqs); err != nil {
		return fail(c, h.action("add_batch"), domain.InvalidInput("body must be a JSON array of items"))
	}
	items := make([]services.ItemInput, 0, len(reqs))
	for _, r := range reqs {
		if err := validate.Struct(r); err != nil {
			return fail(c, h.action("add_batch"), err)
		}
		items = append(items, services.ItemInput{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	changes, err := h.Carts.AddItems(c.UserContext(), owner, items)
	if err != nil {
		return fail(c, h.action("add_batch"), err)
	}
	applog.Info(c, h.action("add_batch"), map[string]any{"items": len(items)})
	return h.respond(c, owner, changes)
}

// PATCH /items/:productId
func (h *CartHandler) Update(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("update"), err)
	}
	pid, ok := validate.ID(c.Params("productId"))
	if !ok {
		return fail(c, h.action("update"), domain.InvalidInput("bad product id"))
	}
	var req quantityRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.action("update"), domain.InvalidInput("malformed body"))
	}
	change, err := h.Carts.UpdateItemQuantity(c.UserContext(), owner, pid, req.Quantity)
	if err != nil {
		return fail(c, h.action("update"), err)
	}
	return h.respond(c, owner, optional(change))
}

// DELETE /items/:productId
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("remove"), err)
	}
	pid, ok := validate.ID(c.Params("productId"))
	if !ok {
		return fail(c, h.action("remove"), domain.InvalidInput("bad product id"))
	}
	if err := h.Carts.RemoveItem(c.UserContext(), owner, pid); err != nil {
		return fail(c, h.action("remove"), err)
	}
	return h.respond(c, owner, nil)
}

// DELETE
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	owner, err := h.Owner(c)
	if err != nil {
		return fail(c, h.action("clear"), err)
	}
	if err := h.Carts.Clear(c.UserContext(), owner); err != nil {
		return fail(c, h.action("clear"), err)
	}
	return h.respond(c, owner, nil)
}

func (h *CartHandler) respond(c *fiber.Ctx, owner string, changes []domain.QuantityChange) error {
	v, err := h.Carts.Get(c.UserContext(), owner)
	if err != nil {
		return fail(c, h.action("view"), err)
	}
	return c.JSON(toCartResponse(v, changes))
}

func optional(change *domain.QuantityChange) []domain.QuantityChange {
	if change == nil {
		return nil
	}
	return []domain.QuantityChange{*change}
}
