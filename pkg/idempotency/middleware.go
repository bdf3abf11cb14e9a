package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/mes-platform/production-service/pkg/errors"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/middleware"
)

const (
	outcomeExecuted = "executed"
	outcomeReplayed = "replayed"
	outcomeConflict = "conflict"
	outcomeMismatch = "mismatch"
	outcomeError    = "error"
)

// Recorder counts keyed requests by outcome
type Recorder interface {
	RecordIdempotency(outcome string)
}

// Config wires the middleware. Metrics may be nil.
type Config struct {
	Store       Store
	ServiceName string
	Logger      *logging.Logger
	Metrics     Recorder
	// Retention is how long a finished response can be replayed
	Retention time.Duration
}

// DefaultRetention keeps responses for a day, longer than any client retries
const DefaultRetention = 24 * time.Hour

// recorder keeps a copy of everything the handler writes
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware runs a POST carrying an Idempotency-Key once per key. A retry
// with the same body gets the stored response, a different body gets 422 and
// a retry racing the first request gets 409. Requests without the header pass
// through.
func Middleware(config *Config) gin.HandlerFunc {
	retention := config.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key, err := NormalizeKey(c.GetHeader(HeaderKey))
		if err != nil {
			middleware.AbortWithAppError(c, apperrors.ErrBadRequest(err.Error()).WithDetail("header", HeaderKey))
			return
		}
		if key == "" {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				middleware.AbortWithAppError(c, apperrors.ErrBadRequest("unreadable request body"))
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		now := time.Now().UTC()
		rec := &Record{
			Key:         key,
			Service:     config.ServiceName,
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Fingerprint: Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			Token:       uuid.NewString(),
			LockedAt:    &now,
			CreatedAt:   now,
			ExpiresAt:   now.Add(retention),
		}
		logger := config.Logger.With("idempotencyKey", key, "path", rec.Path)

		stored, owned, err := config.Store.Acquire(c.Request.Context(), rec)
		switch {
		case err != nil:
			config.record(outcomeError)
			middleware.Respond(c, logger, apperrors.NewAppError("IDEMPOTENCY_UNAVAILABLE",
				"idempotency storage is temporarily unavailable", http.StatusServiceUnavailable).Wrap(err))
			c.Abort()
			return
		case owned:
			config.execute(c, logger, stored)
			return
		case stored.Fingerprint != rec.Fingerprint:
			config.record(outcomeMismatch)
			middleware.AbortWithAppError(c, apperrors.NewAppError("IDEMPOTENCY_MISMATCH",
				"idempotency key was used for a different request", http.StatusUnprocessableEntity))
			return
		case stored.Completed():
			config.record(outcomeReplayed)
			logger.Info("Replaying stored response", "status", stored.ResponseCode)
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.ResponseCode, stored.ResponseContentType, stored.ResponseBody)
			c.Abort()
			return
		default:
			config.record(outcomeConflict)
			middleware.AbortWithAppError(c, apperrors.ErrConflict("a request with this idempotency key is in progress"))
		}
	}
}

// execute runs the handler and stores its response. Server errors release
// the key instead, so the client can retry.
func (config *Config) execute(c *gin.Context, logger *logging.Logger, rec *Record) {
	w := &recorder{ResponseWriter: c.Writer}
	c.Writer = w
	c.Next()

	config.record(outcomeExecuted)
	ctx := context.WithoutCancel(c.Request.Context())
	status := w.Status()

	if status >= http.StatusInternalServerError {
		if err := config.Store.Release(ctx, rec); err != nil {
			logger.WithError(err).Error("Failed to release idempotency key")
		}
		return
	}
	if err := config.Store.Complete(ctx, rec, status, w.Header().Get("Content-Type"), w.body.Bytes()); err != nil {
		logger.WithError(err).Error("Failed to store idempotent response")
	}
}

func (config *Config) record(outcome string) {
	if config.Metrics != nil {
		config.Metrics.RecordIdempotency(outcome)
	}
}
