package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"webbuilder/internal/metrics"
)

// RouterConfig carries the cross-cutting pieces of the HTTP server.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the engine with logging, recovery and CORS ahead of the
// handler routes.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(cfg.Logger, cfg.Metrics), Recovery(cfg.Logger), CORS(cfg.AllowedOrigins))
	h.RegisterRoutes(router)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// CORS answers preflight requests and echoes allowed origins.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed, explicit := false, false
		for _, o := range allowedOrigins {
			if o == origin && origin != "" {
				allowed, explicit = true, true
				break
			}
			if o == "*" {
				allowed = true
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			// credentials only for explicitly listed origins
			if explicit {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// Recovery turns panics into a 500 JSON error.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Internal server error: %v", recovered),
		})
	})
}

// RequestLogger logs every request and counts it.
func RequestLogger(log zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.RecordRequest(c.Request.Method, route, strconv.Itoa(status))

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
