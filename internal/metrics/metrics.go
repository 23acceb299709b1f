package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many instances as they like.
type Metrics struct {
	Registry     *prometheus.Registry
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
	CartOps      *prometheus.CounterVec
	Corrections  *prometheus.CounterVec
	Checkouts    *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bazaar",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bazaar",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		CartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bazaar",
			Subsystem: "cart",
			Name:      "operations_total",
			Help:      "Cart operations by cart kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bazaar",
			Subsystem: "cart",
			Name:      "reconcile_corrections_total",
			Help:      "Lines corrected on read, by correction type.",
		}, []string{"type"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bazaar",
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Checkout attempts by checkout type and outcome.",
		}, []string{"type", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bazaar",
			Subsystem: "cart_cache",
			Name:      "lookups_total",
			Help:      "Cart cache lookups by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(m.Requests, m.LatencyMS, m.CartOps, m.Corrections, m.Checkouts, m.CacheLookups)
	return m
}

// Outcome labels an operation result: "ok" or the domain error kind.
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		return err
	}
}
