package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mes-platform/production-service/internal/application"
	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	"github.com/mes-platform/production-service/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.ProductionJob
}

func (r *memoryJobs) CreateJobs(_ context.Context, jobs []*domain.ProductionJob) ([]*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range jobs {
		r.jobs[j.JobID] = j.DeepCopy()
	}
	return jobs, nil
}

func (r *memoryJobs) ListJobs(context.Context) ([]*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.ProductionJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.DeepCopy())
	}
	return out, nil
}

func (r *memoryJobs) FindByJobID(_ context.Context, id string) (*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		return j.DeepCopy(), nil
	}
	return nil, domain.ErrJobNotFound
}

func (r *memoryJobs) UpdatePartial(_ context.Context, id string, patch domain.JobPatch) (*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if patch.ProcessPath != nil {
		j.ProcessPath = patch.ProcessPath
	}
	return j.DeepCopy(), nil
}

func (r *memoryJobs) ApplyTransition(_ context.Context, job *domain.ProductionJob, _ *domain.HaltDurationRecord, _ []domain.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; !ok {
		return domain.ErrJobNotFound
	}
	r.jobs[job.JobID] = job.DeepCopy()
	return nil
}

func (r *memoryJobs) DeleteCompleted(context.Context) (int64, error) { return 0, nil }

type memoryHalts struct {
	records []*domain.HaltDurationRecord
}

func (r *memoryHalts) Append(_ context.Context, rec *domain.HaltDurationRecord) error {
	r.records = append([]*domain.HaltDurationRecord{rec}, r.records...)
	return nil
}

func (r *memoryHalts) List(context.Context) ([]*domain.HaltDurationRecord, error) {
	return r.records, nil
}

func (r *memoryHalts) ListByWorkOrder(_ context.Context, wo string) ([]*domain.HaltDurationRecord, error) {
	var out []*domain.HaltDurationRecord
	for _, rec := range r.records {
		if rec.WorkOrder == wo {
			out = append(out, rec)
		}
	}
	return out, nil
}

type staticCatalog []*domain.Machine

func (c staticCatalog) ListMachines(context.Context) ([]*domain.Machine, error) { return c, nil }

func (c staticCatalog) FindMachine(_ context.Context, name string) (*domain.Machine, error) {
	for _, m := range c {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, nil
}

func newTestRouter(t *testing.T, guards ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("production-test"))

	catalog := application.NewCatalogService(staticCatalog{{
		Name: "Fabrication",
		Components: []domain.Component{{
			Name: "Frame",
			Materials: []domain.Material{
				{Name: "Steel", Sizes: []string{"M"}, Processes: []string{"Cutting", "Assembly"}},
			},
		}},
	}}, logger)
	tracker := application.NewTrackerService(&memoryJobs{jobs: map[string]*domain.ProductionJob{}}, catalog, nil, m, logger)
	ledger := application.NewHaltLedgerService(&memoryHalts{}, m, logger)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig("production-test", logger))
	SetupRoutes(router, NewHandlers(tracker, ledger, catalog, logger), guards...)
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const createBody = `{
	"workOrder": "WO-1001",
	"machineName": "Line A",
	"department": "Fabrication",
	"items": [{"component": "Frame", "material": "Steel", "size": "M", "processes": [{"stageId": "Cutting"}, {"stageId": "Assembly"}]}]
}`

func createJob(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := do(router, http.MethodPost, "/api/v1/production/jobs", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Jobs []application.JobDTO `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	return resp.Jobs[0].JobID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestCatalogRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/catalog/departments", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"departments":["Fabrication"]}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/catalog/departments/Fabrication/components/Frame/materials", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processes":["Cutting","Assembly"]`)

	w = do(router, http.MethodGet, "/api/v1/catalog/departments/Paint/components", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errorCode(t, w))
}

func TestCreateJobs_Validation(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/production/jobs", `{"workOrder":"WO-1","machineName":"A","department":"Fabrication","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	body := strings.Replace(createBody, `"size": "M"`, `"size": "XL"`, 1)
	w = do(router, http.MethodPost, "/api/v1/production/jobs", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"size"`)
}

func TestTrackerRoutes(t *testing.T) {
	router := newTestRouter(t)
	jobID := createJob(t, router)
	base := "/api/v1/production/jobs/" + jobID

	w := do(router, http.MethodPost, base+"/advance", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))

	w = do(router, http.MethodPost, base+"/stages/1/toggle", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, base+"/stages/9/toggle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, base+"/stages/abc/toggle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		w = do(router, http.MethodPost, base+"/stages/0/toggle", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = do(router, http.MethodPost, base+"/advance", "")
	require.Equal(t, http.StatusOK, w.Code)
	var result application.TransitionResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Persisted)
	assert.Equal(t, 1, result.Job.CurrentStageIndex)
	assert.Equal(t, "Cutting", result.HaltRecord.FromProcess)
	assert.Equal(t, "Assembly", result.HaltRecord.ToProcess)

	w = do(router, http.MethodPost, base+"/stages/0/toggle", "")
	require.Equal(t, http.StatusOK, w.Code, "finished stage toggles as a no-op")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Changed)

	w = do(router, http.MethodPatch, base+"/stages/Assembly", `{"name":"Final assembly"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Final assembly")

	w = do(router, http.MethodGet, "/api/v1/production/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"workOrder":"WO-1001"`)
}

func TestUnknownJobIsNotFound(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/production/jobs/JOB-missing/advance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errorCode(t, w))
}

func TestHaltRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/halt-durations",
		`{"workOrder":"WO-7","machine":"Fabrication","type":"Frame","component":"Steel","fromProcess":"Cutting","toProcess":"Assembly","duration":4500}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/halt-durations?workOrder=", "")
	require.Equal(t, http.StatusOK, w.Code)
	var query application.HaltQueryResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &query))
	assert.False(t, query.FilterApplied)
	assert.Empty(t, query.Records)

	w = do(router, http.MethodGet, "/api/v1/halt-durations/work-orders/WO-7", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &query))
	assert.True(t, query.FilterApplied)
	require.Len(t, query.Records, 1)
	assert.Equal(t, "00:00:04", query.Records[0].DurationDisplay)

	w = do(router, http.MethodGet, "/api/v1/halt-durations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records"`)

	w = do(router, http.MethodGet, "/api/v1/halt-durations/export?workOrder=WO-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "halt-durations-WO-7.xlsx")

	w = do(router, http.MethodGet, "/api/v1/halt-durations/export", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuardsRunOnCreateRoutesOnly(t *testing.T) {
	var guarded []string
	router := newTestRouter(t, func(c *gin.Context) {
		guarded = append(guarded, c.FullPath())
		c.Next()
	})

	jobID := createJob(t, router)
	do(router, http.MethodPost, "/api/v1/production/jobs/"+jobID+"/stages/0/toggle", "")
	do(router, http.MethodPost, "/api/v1/halt-durations",
		`{"workOrder":"WO-7","machine":"Fabrication","type":"Frame","component":"Steel","fromProcess":"Cutting","toProcess":"Assembly","duration":1000}`)
	do(router, http.MethodGet, "/api/v1/halt-durations", "")

	assert.Equal(t, []string{"/api/v1/production/jobs", "/api/v1/halt-durations"}, guarded)
}
