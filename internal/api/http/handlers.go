package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mes-platform/production-service/internal/application"
	"github.com/mes-platform/production-service/internal/domain"
	apperrors "github.com/mes-platform/production-service/pkg/errors"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Handlers holds the HTTP handlers for the production service
type Handlers struct {
	tracker *application.TrackerService
	ledger  *application.HaltLedgerService
	catalog *application.CatalogService
	logger  *logging.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	tracker *application.TrackerService,
	ledger *application.HaltLedgerService,
	catalog *application.CatalogService,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		tracker: tracker,
		ledger:  ledger,
		catalog: catalog,
		logger:  logger,
	}
}

// respondError maps domain errors onto the API error taxonomy
func (h *Handlers) respondError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &ve):
		appErr = apperrors.ErrValidationWithFields(err.Error(), map[string]string{ve.Field: ve.Message})
	case errors.Is(err, domain.ErrInvalidStageIndex):
		appErr = apperrors.ErrValidationWithFields(err.Error(), map[string]string{"stageIndex": "is out of range"})
	case errors.Is(err, domain.ErrJobNotFound):
		appErr = apperrors.ErrNotFound("production job")
	case errors.Is(err, domain.ErrStageNotFound):
		appErr = apperrors.ErrNotFound("stage")
	case errors.Is(err, domain.ErrCatalogNotFound):
		appErr = apperrors.ErrNotFound("catalog entry")
	case errors.Is(err, domain.ErrStageNotStopped), errors.Is(err, domain.ErrStageNotCurrent):
		appErr = apperrors.ErrConflict(err.Error())
	default:
		middleware.SetSpanError(c, err)
		appErr = apperrors.ErrInternal("").Wrap(err)
	}
	middleware.Respond(c, h.logger, appErr)
}

// ListDepartments handles GET /api/v1/catalog/departments
func (h *Handlers) ListDepartments(c *gin.Context) {
	departments, err := h.catalog.ListDepartments(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": departments})
}

// ListComponents handles GET /api/v1/catalog/departments/:department/components
func (h *Handlers) ListComponents(c *gin.Context) {
	components, err := h.catalog.ListComponents(c.Request.Context(), c.Param("department"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"components": components})
}

// ListMaterials handles GET /api/v1/catalog/departments/:department/components/:component/materials
func (h *Handlers) ListMaterials(c *gin.Context) {
	materials, err := h.catalog.ListMaterials(c.Request.Context(), c.Param("department"), c.Param("component"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"materials": materials})
}

// ProcessRequest selects one process with an optional display name
type ProcessRequest struct {
	StageID string `json:"stageId" binding:"required,safe_string,max=64"`
	Name    string `json:"name" binding:"omitempty,safe_string,max=64"`
}

// JobItemRequest is one item of a batch
type JobItemRequest struct {
	Component       string           `json:"component" binding:"required,safe_string,max=128"`
	Material        string           `json:"material" binding:"required,safe_string,max=128"`
	CustomComponent string           `json:"customComponent" binding:"omitempty,safe_string,max=128"`
	CustomMaterial  string           `json:"customMaterial" binding:"omitempty,safe_string,max=128"`
	Size            string           `json:"size" binding:"required,safe_string,max=64"`
	Processes       []ProcessRequest `json:"processes" binding:"omitempty,max=50,dive"`
	ProcessCount    int              `json:"processCount" binding:"omitempty,min=1,max=20"`
}

// CreateJobsRequest represents the request body for batch job creation
type CreateJobsRequest struct {
	WorkOrder     string           `json:"workOrder" binding:"required,work_order"`
	MachineName   string           `json:"machineName" binding:"required,safe_string,max=128"`
	RequirementNo string           `json:"requirementNo" binding:"omitempty,safe_string,max=64"`
	Department    string           `json:"department" binding:"required,safe_string,max=128"`
	Items         []JobItemRequest `json:"items" binding:"required,min=1,max=100,dive"`
}

func (r CreateJobsRequest) toCommand() application.CreateJobsCommand {
	cmd := application.CreateJobsCommand{
		WorkOrder:     r.WorkOrder,
		MachineName:   r.MachineName,
		RequirementNo: r.RequirementNo,
		Department:    r.Department,
		Items:         make([]application.JobItem, len(r.Items)),
	}
	for i, item := range r.Items {
		processes := make([]application.ProcessSelection, len(item.Processes))
		for k, p := range item.Processes {
			processes[k] = application.ProcessSelection{StageID: p.StageID, Name: p.Name}
		}
		cmd.Items[i] = application.JobItem{
			Component:       item.Component,
			Material:        item.Material,
			CustomComponent: item.CustomComponent,
			CustomMaterial:  item.CustomMaterial,
			Size:            item.Size,
			Processes:       processes,
			ProcessCount:    item.ProcessCount,
		}
	}
	return cmd
}

// CreateJobs handles POST /api/v1/production/jobs
func (h *Handlers) CreateJobs(c *gin.Context) {
	var req CreateJobsRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.Respond(c, h.logger, appErr)
		return
	}

	jobs, err := h.tracker.CreateJobs(c.Request.Context(), req.toCommand())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": jobs})
}

// ListJobs handles GET /api/v1/production/jobs
func (h *Handlers) ListJobs(c *gin.Context) {
	jobs, err := h.tracker.ListJobs(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob handles GET /api/v1/production/jobs/:jobId
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.tracker.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ToggleStage handles POST /api/v1/production/jobs/:jobId/stages/:stageIndex/toggle
func (h *Handlers) ToggleStage(c *gin.Context) {
	stageIndex, err := strconv.Atoi(c.Param("stageIndex"))
	if err != nil {
		middleware.Respond(c, h.logger, apperrors.ErrValidationWithFields("invalid stage index",
			map[string]string{"stageIndex": "must be an integer"}))
		return
	}

	result, err := h.tracker.Toggle(c.Request.Context(), application.ToggleStageCommand{
		JobID:      c.Param("jobId"),
		StageIndex: stageIndex,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdvanceJob handles POST /api/v1/production/jobs/:jobId/advance
func (h *Handlers) AdvanceJob(c *gin.Context) {
	result, err := h.tracker.Advance(c.Request.Context(), application.AdvanceJobCommand{JobID: c.Param("jobId")})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RenameStageRequest represents the request body for renaming a stage
type RenameStageRequest struct {
	Name string `json:"name" binding:"required,safe_string,max=64"`
}

// RenameStage handles PATCH /api/v1/production/jobs/:jobId/stages/:stageId
func (h *Handlers) RenameStage(c *gin.Context) {
	var req RenameStageRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.Respond(c, h.logger, appErr)
		return
	}

	job, err := h.tracker.RenameStage(c.Request.Context(), application.RenameStageCommand{
		JobID:   c.Param("jobId"),
		StageID: c.Param("stageId"),
		Name:    req.Name,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// PurgeCompleted handles DELETE /api/v1/production/jobs/completed
func (h *Handlers) PurgeCompleted(c *gin.Context) {
	result, err := h.tracker.PurgeCompleted(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBoard handles GET /api/v1/production/board
func (h *Handlers) GetBoard(c *gin.Context) {
	board, err := h.tracker.Board(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// ReloadBoard handles POST /api/v1/production/board/reload
func (h *Handlers) ReloadBoard(c *gin.Context) {
	board, err := h.tracker.Reload(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// AppendHaltRecordRequest represents the request body for appending a halt record
type AppendHaltRecordRequest struct {
	JobID       string `json:"jobId" binding:"omitempty,safe_string,max=64"`
	WorkOrder   string `json:"workOrder" binding:"required,work_order"`
	Machine     string `json:"machine" binding:"omitempty,safe_string,max=128"`
	Type        string `json:"type" binding:"omitempty,safe_string,max=128"`
	Component   string `json:"component" binding:"omitempty,safe_string,max=128"`
	FromProcess string `json:"fromProcess" binding:"required,safe_string,max=64"`
	ToProcess   string `json:"toProcess" binding:"required,safe_string,max=64"`
	Duration    int64  `json:"duration" binding:"min=0"`
}

// AppendHaltRecord handles POST /api/v1/halt-durations
func (h *Handlers) AppendHaltRecord(c *gin.Context) {
	var req AppendHaltRecordRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.Respond(c, h.logger, appErr)
		return
	}

	result, err := h.ledger.Append(c.Request.Context(), application.AppendHaltRecordCommand{
		JobID:       req.JobID,
		WorkOrder:   req.WorkOrder,
		Machine:     req.Machine,
		Type:        req.Type,
		Component:   req.Component,
		FromProcess: req.FromProcess,
		ToProcess:   req.ToProcess,
		Duration:    req.Duration,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Persisted {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// ListHaltRecords handles GET /api/v1/halt-durations. A workOrder query
// parameter, even an empty one, switches to the filtered query.
func (h *Handlers) ListHaltRecords(c *gin.Context) {
	if workOrder, ok := c.GetQuery("workOrder"); ok {
		h.queryHaltRecords(c, workOrder)
		return
	}

	records, err := h.ledger.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// QueryHaltRecords handles GET /api/v1/halt-durations/work-orders/:workOrder
func (h *Handlers) QueryHaltRecords(c *gin.Context) {
	h.queryHaltRecords(c, c.Param("workOrder"))
}

func (h *Handlers) queryHaltRecords(c *gin.Context, workOrder string) {
	result, err := h.ledger.QueryByWorkOrder(c.Request.Context(), workOrder)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExportHaltRecords handles GET /api/v1/halt-durations/export?workOrder=
func (h *Handlers) ExportHaltRecords(c *gin.Context) {
	workOrder := c.Query("workOrder")

	var buf bytes.Buffer
	if _, err := h.ledger.Export(c.Request.Context(), workOrder, &buf); err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("halt-durations-%s.xlsx", unsafeFilename.ReplaceAllString(workOrder, "_"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
