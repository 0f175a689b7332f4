package middleware

import (
	"strings"
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSockets is the number of open feed sockets on this instance.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minisocial_active_websockets",
		Help: "Number of active feed websocket connections",
	})

	// RedisErrors counts failed redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_redis_errors_total",
		Help: "Total number of failed Redis commands",
	}, []string{"command"})

	// RateLimited counts requests rejected by the redis limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_rate_limited_total",
		Help: "Requests rejected by the per-route rate limiter",
	}, []string{"resource"})
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide request metrics collector. The
// collectors register against the default registry, so repeated calls share one.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware records request metrics, skipping the scrape endpoint and websocket upgrades.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/metrics" || strings.HasPrefix(path, "/api/ws") {
			return c.Next()
		}
		return p.Middleware(c)
	}
}
