package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mes-platform/production-service/pkg/errors"
	"github.com/mes-platform/production-service/pkg/logging"
)

// Gin context keys
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"
)

// HTTP header names
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// probePaths are not logged, traced or counted
var probePaths = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// propagate echoes header back to the caller, generating a value with fallback
// when the request has none, and stores it under key and in the request context
func propagate(header, key string, fallback func(*gin.Context) string, attach func(context.Context, string) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		value := c.GetHeader(header)
		if value == "" {
			value = fallback(c)
		}

		c.Set(key, value)
		c.Header(header, value)
		c.Request = c.Request.WithContext(attach(c.Request.Context(), value))
		c.Next()
	}
}

// RequestID assigns every request an id
func RequestID() gin.HandlerFunc {
	return propagate(HeaderRequestID, ContextKeyRequestID,
		func(*gin.Context) string { return uuid.New().String() },
		logging.ContextWithRequestID)
}

// CorrelationID carries the caller's correlation id onto logs and published
// events. Without one the request id is reused.
func CorrelationID() gin.HandlerFunc {
	return propagate(HeaderCorrelationID, ContextKeyCorrelationID,
		func(c *gin.Context) string {
			if id := GetRequestID(c); id != "" {
				return id
			}
			return uuid.New().String()
		},
		logging.ContextWithCorrelationID)
}

// Logger writes one line per request. 5xx log at error, 4xx at warn.
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if probePaths[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.Int64("latencyMs", time.Since(start).Milliseconds()),
			slog.String("clientIP", c.ClientIP()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}
		logger.LogAttrs(c.Request.Context(), level, "HTTP request", attrs...)
	}
}

// Recovery turns panics into a 500 with the standard error body
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Panic(c.Request.Context(), recovered)
				AbortWithAppError(c, errors.ErrInternal("An unexpected error occurred"))
			}
		}()
		c.Next()
	}
}

// GetRequestID returns the request id set by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation id set by CorrelationID
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
