package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"bazaar/internal/domain"
	applog "bazaar/internal/log"
	"bazaar/internal/services"
	"bazaar/internal/validate"
)

// AdminHandler edits live catalog price and stock; carts pick the change up on their next read.
type AdminHandler struct {
	Catalog *services.CatalogService
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type stockRequest struct {
	Stock *int `json:"stock" validate:"required"`
}

// PUT /admin/products/:id/price
func (h *AdminHandler) SetPrice(c *fiber.Ctx) error {
	pid, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "admin.price", domain.InvalidInput("bad product id"))
	}
	var req priceRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, "admin.price", domain.InvalidInput("malformed body"))
	}
	if err := h.Catalog.SetPrice(c.UserContext(), pid, req.Price); err != nil {
		return fail(c, "admin.price", err)
	}
	applog.Audit(c, "admin.price.save", map[string]any{"product": pid, "price": req.Price.StringFixed(2)})
	return h.product(c, pid)
}

// PUT /admin/products/:id/stock
func (h *AdminHandler) SetStock(c *fiber.Ctx) error {
	pid, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "admin.stock", domain.InvalidInput("bad product id"))
	}
	var req stockRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, "admin.stock", domain.InvalidInput("malformed body"))
	}
	if err := validate.Struct(req); err != nil {
		return fail(c, "admin.stock", err)
	}
	if err := h.Catalog.SetStock(c.UserContext(), pid, *req.Stock); err != nil {
		return fail(c, "admin.stock", err)
	}
	applog.Audit(c, "admin.stock.save", map[string]any{"product": pid, "stock": *req.Stock})
	return h.product(c, pid)
}

func (h *AdminHandler) product(c *fiber.Ctx, id string) error {
	p, err := h.Catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return fail(c, "admin.product", err)
	}
	return c.JSON(toProductResponse(p))
}
