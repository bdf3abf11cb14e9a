package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mes-platform/production-service/pkg/errors"
	"github.com/mes-platform/production-service/pkg/logging"
)

// APIErrorResponse is the body of every non-2xx response
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Path      string            `json:"path"`
}

func errorBody(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Path:      c.Request.URL.Path,
	}
}

// ErrorHandler renders the last error attached with c.Error when the
// handler wrote nothing itself.
func ErrorHandler(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		Respond(c, logger, errors.MapDomainError(c.Errors.Last().Err))
	}
}

// Respond logs appErr and writes it as the response. Server errors log at
// error level, client errors at warn.
func Respond(c *gin.Context, logger *logging.Logger, appErr *errors.AppError) {
	level := slog.LevelWarn
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("code", appErr.Code),
		slog.Int("status", appErr.HTTPStatus),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	}
	if appErr.Err != nil {
		attrs = append(attrs, slog.String("error", appErr.Err.Error()))
	}
	if len(appErr.Details) > 0 {
		attrs = append(attrs, slog.Any("details", appErr.Details))
	}
	logger.LogAttrs(c.Request.Context(), level, appErr.Message, attrs...)

	c.JSON(appErr.HTTPStatus, errorBody(c, appErr))
}

// AbortWithAppError stops the chain and writes appErr without logging
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorBody(c, appErr))
}
