package handlers

import (
	"github.com/gofiber/fiber/v2"

	"bazaar/internal/domain"
	"bazaar/internal/services"
	"bazaar/internal/validate"
)

type CatalogHandler struct {
	Catalog *services.CatalogService
}

// GET /categories
func (h *CatalogHandler) Categories(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext())
	if err != nil {
		return fail(c, "catalog.categories", err)
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	return c.JSON(fiber.Map{"categories": cats})
}

// GET /products?category=&page=&pageSize=
func (h *CatalogHandler) Products(c *fiber.Ctx) error {
	cat := c.Query("category")
	if cat != "" {
		var ok bool
		if cat, ok = validate.ID(cat); !ok {
			return fail(c, "catalog.products", domain.InvalidInput("bad category id"))
		}
	}
	prods, err := h.Catalog.ListProducts(c.UserContext(), cat, c.QueryInt("page", 1), c.QueryInt("pageSize", 20))
	if err != nil {
		return fail(c, "catalog.products", err)
	}
	out := make([]productResponse, 0, len(prods))
	for _, p := range prods {
		out = append(out, toProductResponse(p))
	}
	return c.JSON(fiber.Map{"products": out})
}

// GET /products/:id
func (h *CatalogHandler) Product(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "catalog.product", domain.ProductNotFound(c.Params("id")))
	}
	p, err := h.Catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return fail(c, "catalog.product", err)
	}
	return c.JSON(toProductResponse(p))
}
