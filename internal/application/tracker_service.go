package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	"github.com/mes-platform/production-service/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// persistNotice is shown when a transition was applied locally but not saved
const persistNotice = "change applied locally but could not be saved; reload the board to resync"

// TrackerService drives the process tracker over a cached board of jobs.
// Commands run one at a time.
type TrackerService struct {
	mu       sync.Mutex
	repo     domain.ProductionJobRepository
	catalog  *CatalogService
	tracker  *domain.Tracker
	board    map[string]*domain.ProductionJob
	loaded   bool
	loadedAt time.Time
	metrics  *metrics.Metrics
	logger   *logging.Logger
	spans    trace.Tracer
}

// NewTrackerService creates a new tracker service
func NewTrackerService(
	repo domain.ProductionJobRepository,
	catalog *CatalogService,
	tracker *domain.Tracker,
	m *metrics.Metrics,
	logger *logging.Logger,
) *TrackerService {
	if tracker == nil {
		tracker = domain.NewTracker(nil, nil)
	}
	return &TrackerService{
		repo:    repo,
		catalog: catalog,
		tracker: tracker,
		board:   make(map[string]*domain.ProductionJob),
		metrics: m,
		logger:  logger.WithComponent("tracker"),
		spans:   otel.Tracer("production-tracker"),
	}
}

// Load rehydrates the board from persisted jobs. In-progress start times are
// restored from each stage's persisted startTime.
func (s *TrackerService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *TrackerService) load(ctx context.Context) error {
	jobs, err := s.repo.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	starts := s.tracker.StartTimes()
	starts.Reset()
	s.board = make(map[string]*domain.ProductionJob, len(jobs))
	for _, job := range jobs {
		s.board[job.JobID] = job
		starts.Restore(job)
	}
	s.loaded = true
	s.loadedAt = s.tracker.Now()

	s.logger.Info("Board loaded", "jobs", len(jobs), "armedStages", starts.Len())
	return nil
}

func (s *TrackerService) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.load(ctx)
}

// CreateJobs validates and inserts one job per item as a single batch
func (s *TrackerService) CreateJobs(ctx context.Context, cmd CreateJobsCommand) ([]*JobDTO, error) {
	if len(cmd.Items) == 0 {
		return nil, domain.NewValidationError("items", "at least one item is required")
	}

	now := s.tracker.Now()
	jobs := make([]*domain.ProductionJob, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		component, material, err := item.names()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		stages, custom, err := s.catalog.ResolveStages(ctx, cmd.Department, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		job, err := domain.NewProductionJob(domain.JobAttributes{
			WorkOrder:     cmd.WorkOrder,
			MachineName:   cmd.MachineName,
			RequirementNo: cmd.RequirementNo,
			Department:    cmd.Department,
			Component:     component,
			Material:      material,
			Size:          item.Size,
			Custom:        custom,
		}, stages, now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.repo.CreateJobs(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs: %w", err)
	}

	out := make([]*JobDTO, 0, len(created))
	var customCount int
	for _, job := range created {
		job.ClearDomainEvents()
		if s.loaded {
			s.board[job.JobID] = job
		}
		if job.Custom {
			customCount++
		}
		out = append(out, ToJobDTO(job))
	}
	if n := len(created) - customCount; n > 0 {
		s.metrics.RecordJobsCreated(n, false)
	}
	if customCount > 0 {
		s.metrics.RecordJobsCreated(customCount, true)
	}

	s.logger.Audit(ctx, "create_jobs", "work_order", cmd.WorkOrder, map[string]any{
		"jobs":   len(created),
		"custom": customCount,
	})
	return out, nil
}

// ListJobs returns the board view of every job ordered by work order and component
func (s *TrackerService) ListJobs(ctx context.Context) ([]*JobDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	jobs := s.sortedJobs()
	out := make([]*JobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = ToJobDTO(job)
	}
	return out, nil
}

// GetJob returns one job from the board, falling back to the repository
func (s *TrackerService) GetJob(ctx context.Context, jobID string) (*JobDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ToJobDTO(job), nil
}

func (s *TrackerService) lookup(ctx context.Context, jobID string) (*domain.ProductionJob, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if job, ok := s.board[jobID]; ok {
		return job, nil
	}
	job, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.board[jobID] = job
	s.tracker.StartTimes().Restore(job)
	return job, nil
}

// Toggle starts or stops the current stage of a job
func (s *TrackerService) Toggle(ctx context.Context, cmd ToggleStageCommand) (*TransitionResultDTO, error) {
	return tracing.TracedOperation(ctx, s.spans, "tracker.toggle", func(ctx context.Context) (*TransitionResultDTO, error) {
		return s.toggle(ctx, cmd)
	}, tracing.JobSpanAttributes(cmd.JobID, cmd.StageIndex)...)
}

func (s *TrackerService) toggle(ctx context.Context, cmd ToggleStageCommand) (*TransitionResultDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	tr, err := s.tracker.Toggle(job, cmd.StageIndex)
	if err != nil {
		return nil, err
	}

	transition := "noop"
	if tr.Changed {
		transition = "start"
		if tr.Job.ProcessPath[cmd.StageIndex].Status == domain.StageStop {
			transition = "stop"
		}
	}
	return s.commit(ctx, transition, tr)
}

// Advance moves a stopped job to its next stage and records the halt
func (s *TrackerService) Advance(ctx context.Context, cmd AdvanceJobCommand) (*TransitionResultDTO, error) {
	return tracing.TracedOperation(ctx, s.spans, "tracker.advance", func(ctx context.Context) (*TransitionResultDTO, error) {
		return s.advance(ctx, cmd)
	}, tracing.JobSpanAttributes(cmd.JobID, -1)...)
}

func (s *TrackerService) advance(ctx context.Context, cmd AdvanceJobCommand) (*TransitionResultDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	tr, err := s.tracker.Advance(job)
	if err != nil {
		return nil, err
	}

	transition := "noop"
	if tr.Changed {
		transition = "advance"
		if tr.Job.Status == domain.JobStatusCompleted {
			transition = "complete"
		}
	}
	return s.commit(ctx, transition, tr)
}

// commit keeps the transition on the board and persists it. A missing job is
// dropped from the board; any other write failure keeps the local state and
// is reported as a notice.
func (s *TrackerService) commit(ctx context.Context, transition string, tr *domain.Transition) (*TransitionResultDTO, error) {
	result := &TransitionResultDTO{Changed: tr.Changed, Persisted: true}
	if !tr.Changed {
		result.Job = ToJobDTO(tr.Job)
		return result, nil
	}

	jobID := tr.Job.JobID
	log := s.logger.WithJob(jobID, tr.Job.WorkOrder)

	err := s.repo.ApplyTransition(ctx, tr.Job, tr.HaltRecord, tr.Events)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		delete(s.board, jobID)
		s.tracker.StartTimes().ForgetJob(jobID)
		log.Warn("Job no longer exists, dropped from board", "transition", transition)
		return nil, err
	case err != nil:
		log.WithError(err).Warn("Failed to persist transition, keeping local state", "transition", transition)
		s.metrics.RecordPersistFailure(transition)
		result.Persisted = false
		result.Notice = persistNotice
	}

	s.board[jobID] = tr.Job
	s.metrics.RecordStageTransition(transition)
	if tr.HaltRecord != nil {
		s.metrics.ObserveHaltDuration(tr.HaltRecord.Machine, time.Duration(tr.HaltRecord.Duration)*time.Millisecond)
	}
	log.Info("Stage transition applied",
		"transition", transition,
		"stageIndex", tr.Job.CurrentStageIndex,
		"persisted", result.Persisted,
	)

	// the halt record id is assigned by the write
	if tr.HaltRecord != nil {
		result.HaltRecord = ToHaltRecordDTO(tr.HaltRecord)
	}
	result.Job = ToJobDTO(tr.Job)
	return result, nil
}

// RenameStage changes the display name of a stage
func (s *TrackerService) RenameStage(ctx context.Context, cmd RenameStageCommand) (*JobDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	next := job.DeepCopy()
	if err := next.RenameStage(cmd.StageID, cmd.Name, s.tracker.Now()); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePartial(ctx, cmd.JobID, domain.JobPatch{
		ProcessPath: next.ProcessPath,
		Events:      next.GetDomainEvents(),
	})
	if errors.Is(err, domain.ErrJobNotFound) {
		delete(s.board, cmd.JobID)
		s.tracker.StartTimes().ForgetJob(cmd.JobID)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rename stage: %w", err)
	}

	s.board[cmd.JobID] = updated
	return ToJobDTO(updated), nil
}

// PurgeCompleted deletes every completed job
func (s *TrackerService) PurgeCompleted(ctx context.Context) (*PurgeResultDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.repo.DeleteCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	for id, job := range s.board {
		if job.IsTerminal() {
			delete(s.board, id)
			s.tracker.StartTimes().ForgetJob(id)
		}
	}
	s.metrics.RecordCompletedJobsPurged(deleted)
	s.logger.Audit(ctx, "purge_completed", "production_job", "", map[string]any{"deleted": deleted})

	return &PurgeResultDTO{
		Deleted: deleted,
		Message: fmt.Sprintf("%d completed items deleted", deleted),
	}, nil
}

// Reload discards the board and rehydrates it from the repository
func (s *TrackerService) Reload(ctx context.Context) (*BoardDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.projectBoard(), nil
}

// Board groups jobs by work order and material
func (s *TrackerService) Board(ctx context.Context) (*BoardDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.projectBoard(), nil
}

func (s *TrackerService) projectBoard() *BoardDTO {
	jobs := s.sortedJobs()
	dto := &BoardDTO{Groups: []BoardGroupDTO{}, JobCount: len(jobs), LoadedAt: s.loadedAt}

	index := make(map[[2]string]int)
	for _, job := range jobs {
		key := [2]string{job.WorkOrder, job.Material}
		i, ok := index[key]
		if !ok {
			i = len(dto.Groups)
			index[key] = i
			dto.Groups = append(dto.Groups, BoardGroupDTO{WorkOrder: job.WorkOrder, Material: job.Material})
		}
		g := &dto.Groups[i]
		jd := ToJobDTO(job)
		g.Jobs = append(g.Jobs, jd)
		g.Progress.Completed += jd.Progress.Completed
		g.Progress.Total += jd.Progress.Total
	}
	for i := range dto.Groups {
		g := &dto.Groups[i]
		g.Completed = g.Progress.Total > 0 && g.Progress.Completed == g.Progress.Total
	}
	return dto
}

func (s *TrackerService) sortedJobs() []*domain.ProductionJob {
	jobs := make([]*domain.ProductionJob, 0, len(s.board))
	for _, job := range s.board {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.WorkOrder != b.WorkOrder {
			return a.WorkOrder < b.WorkOrder
		}
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.JobID < b.JobID
	})
	return jobs
}
