package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	applog "bazaar/internal/log"
)

// Limits are per-IP request budgets. Zero fields take the defaults.
type Limits struct {
	Requests int
	Window   time.Duration
	Logins   int
}

func (l Limits) withDefaults() Limits {
	if l.Requests <= 0 {
		l.Requests = 60
	}
	if l.Window <= 0 {
		l.Window = time.Minute
	}
	if l.Logins <= 0 {
		l.Logins = 5
	}
	return l
}

// NewApp builds the JSON API on top of d.
func NewApp(d *Deps, lim Limits) *fiber.App {
	lim = lim.withDefaults()
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    1 << 20,
	})

	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(d.Metrics.Middleware())
	app.Use(limiter.New(limiter.Config{
		Max:        lim.Requests,
		Expiration: lim.Window,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	app.Use(Identify(d.Auth))

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	api := app.Group("/api/v1")

	api.Get("/categories", d.CatalogHandler.Categories)
	api.Get("/products", d.CatalogHandler.Products)
	api.Get("/products/:id", d.CatalogHandler.Product)

	api.Post("/auth/login", limiter.New(limiter.Config{
		Max:        lim.Logins,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	api.Post("/auth/logout", d.AuthHandler.Logout)
	api.Get("/auth/me", RequireUser(), d.AuthHandler.Me)

	mountCart(api.Group("/cart", RequireUser()), d.UserCart)
	mountCart(api.Group("/guest-cart"), d.GuestCart)

	mountCart(api.Group("/buy-now"), d.BuyNow)

	orders := api.Group("/orders", RequireUser())
	orders.Post("/", d.OrderHandler.Place)
	orders.Get("/", d.OrderHandler.List)
	orders.Get("/:id", d.OrderHandler.Get)
	orders.Post("/:id/cancel", d.OrderHandler.Cancel)

	admin := api.Group("/admin", RequireAdmin())
	admin.Put("/products/:id/price", d.AdminHandler.SetPrice)
	admin.Put("/products/:id/stock", d.AdminHandler.SetStock)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
	return app
}

func mountCart(r fiber.Router, h *CartHandler) {
	r.Get("/", h.View)
	r.Delete("/", h.Clear)
	r.Post("/items", h.Add)
	r.Post("/items/batch", h.AddBatch)
	r.Patch("/items/:productId", h.Update)
	r.Delete("/items/:productId", h.Remove)
}
