package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	router := gin.New()
	Setup(router, DefaultConfig("test", logging.NewNop()))
	return router
}

type createRequest struct {
	WorkOrder string `json:"workOrder" binding:"required,work_order"`
	Name      string `json:"name" binding:"omitempty,safe_string"`
}

func TestRequestAndCorrelationIDs(t *testing.T) {
	router := newRouter()
	var ctxCorrelation any
	router.GET("/ping", func(c *gin.Context) {
		ctxCorrelation = c.Request.Context().Value(logging.CorrelationIDKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderCorrelationID, "corr-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, "corr-123", w.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "corr-123", ctxCorrelation)
}

func TestBindAndValidate(t *testing.T) {
	router := newRouter()
	router.POST("/jobs", func(c *gin.Context) {
		var req createRequest
		if appErr := BindAndValidate(c, &req); appErr != nil {
			Respond(c, logging.NewNop(), appErr)
			return
		}
		c.JSON(http.StatusCreated, req)
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"valid", `{"workOrder":"WO-1001","name":"Cutting"}`, http.StatusCreated, ""},
		{"missing work order", `{"name":"Cutting"}`, http.StatusBadRequest, "workOrder"},
		{"bad work order", `{"workOrder":"<script>"}`, http.StatusBadRequest, "workOrder"},
		{"unsafe name", `{"workOrder":"WO-1","name":"a<b"}`, http.StatusBadRequest, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantField != "" {
				var resp APIErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "VALIDATION_ERROR", resp.Code)
				assert.Contains(t, resp.Details, tt.wantField)
			}
		})
	}
}

func TestErrorHandler_MapsAttachedError(t *testing.T) {
	router := newRouter()
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("production job not found"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveryAndNoRoute(t *testing.T) {
	router := newRouter()
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")
}

func TestContentType_RejectsNonJSON(t *testing.T) {
	router := newRouter()
	router.POST("/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCorrelationID_DefaultsToRequestID(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-42", w.Header().Get(HeaderCorrelationID))
}

func TestReadinessCheck(t *testing.T) {
	router := newRouter()
	healthy := true
	router.GET("/ready", ReadinessCheck("test", map[string]func(context.Context) error{
		"mongodb": func(context.Context) error {
			if !healthy {
				return fmt.Errorf("no primary")
			}
			return nil
		},
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "no primary", body.Checks["mongodb"])
}
