package middleware

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mes-platform/production-service/pkg/errors"
	"github.com/mes-platform/production-service/pkg/logging"
)

// Config holds middleware configuration
type Config struct {
	Logger         *logging.Logger
	ServiceName    string
	EnableCORS     bool
	TrustedProxies []string
}

// DefaultConfig enables CORS for the shop-floor UI
func DefaultConfig(serviceName string, logger *logging.Logger) *Config {
	return &Config{
		Logger:      logger,
		ServiceName: serviceName,
		EnableCORS:  true,
	}
}

// Setup installs the standard chain, outermost first: recovery, ids,
// request logging, sanitising, CORS, content type and error rendering.
func Setup(router *gin.Engine, config *Config) {
	RegisterValidators()

	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	chain := []gin.HandlerFunc{
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		Logger(config.Logger),
		InputSanitizer(),
	}
	if config.EnableCORS {
		chain = append(chain, CORS())
	}
	chain = append(chain, ContentType(), ErrorHandler(config.Logger))
	router.Use(chain...)

	router.HandleMethodNotAllowed = true
	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())
}

// CORS allows any origin and exposes the id and download headers
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+HeaderRequestID+", "+HeaderCorrelationID)
		h.Set("Access-Control-Expose-Headers", HeaderRequestID+", "+HeaderCorrelationID+", Content-Disposition")
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// HealthCheck is the liveness probe
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}

// ReadinessCheck runs every named check with a shared timeout. Any failure
// makes the service not ready and is reported under its name.
func ReadinessCheck(serviceName string, checks map[string]func(context.Context) error) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		c.JSON(status, gin.H{"status": state, "service": serviceName, "checks": results})
	}
}

func routeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody(c, errors.NewAppError(code, message, status)))
}

// NoRoute renders unknown paths with the standard error body
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		routeError(c, http.StatusNotFound, "ROUTE_NOT_FOUND", "The requested resource was not found")
	}
}

// NoMethod renders unsupported methods with the standard error body
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		routeError(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The request method is not supported for this resource")
	}
}
