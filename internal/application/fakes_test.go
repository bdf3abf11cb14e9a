package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
)

var errUnavailable = errors.New("mongodb unavailable")

type fakeJobRepo struct {
	mu          sync.Mutex
	jobs        map[string]*domain.ProductionJob
	records     []*domain.HaltDurationRecord
	events      []domain.DomainEvent
	applyErr    error
	createCalls int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.ProductionJob)}
}

func (r *fakeJobRepo) CreateJobs(_ context.Context, jobs []*domain.ProductionJob) ([]*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	for _, j := range jobs {
		r.events = append(r.events, j.GetDomainEvents()...)
		r.jobs[j.JobID] = j.DeepCopy()
	}
	return jobs, nil
}

func (r *fakeJobRepo) ListJobs(context.Context) ([]*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.ProductionJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.DeepCopy())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out, nil
}

func (r *fakeJobRepo) FindByJobID(_ context.Context, jobID string) (*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return j.DeepCopy(), nil
}

func (r *fakeJobRepo) UpdatePartial(_ context.Context, jobID string, patch domain.JobPatch) (*domain.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if patch.ProcessPath != nil {
		j.ProcessPath = patch.ProcessPath
	}
	if patch.CurrentStageIndex != nil {
		j.CurrentStageIndex = *patch.CurrentStageIndex
	}
	r.events = append(r.events, patch.Events...)
	return j.DeepCopy(), nil
}

func (r *fakeJobRepo) ApplyTransition(_ context.Context, job *domain.ProductionJob, record *domain.HaltDurationRecord, events []domain.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	if _, ok := r.jobs[job.JobID]; !ok {
		return domain.ErrJobNotFound
	}
	r.jobs[job.JobID] = job.DeepCopy()
	if record != nil {
		record.ID = primitive.NewObjectID()
		r.records = append(r.records, record)
	}
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeJobRepo) DeleteCompleted(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.IsTerminal() {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

type fakeHaltRepo struct {
	records   []*domain.HaltDurationRecord
	appendErr error
}

func (r *fakeHaltRepo) Append(_ context.Context, record *domain.HaltDurationRecord) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.records = append([]*domain.HaltDurationRecord{record}, r.records...)
	return nil
}

func (r *fakeHaltRepo) List(context.Context) ([]*domain.HaltDurationRecord, error) {
	return r.records, nil
}

func (r *fakeHaltRepo) ListByWorkOrder(_ context.Context, workOrder string) ([]*domain.HaltDurationRecord, error) {
	var out []*domain.HaltDurationRecord
	for _, rec := range r.records {
		if rec.WorkOrder == workOrder {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	machines []*domain.Machine
}

func (c *fakeCatalog) ListMachines(context.Context) ([]*domain.Machine, error) {
	return c.machines, nil
}

func (c *fakeCatalog) FindMachine(_ context.Context, name string) (*domain.Machine, error) {
	for _, m := range c.machines {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{machines: []*domain.Machine{{
		Name: "Fabrication",
		Components: []domain.Component{{
			Name: "Frame",
			Materials: []domain.Material{
				{Name: "Steel", Sizes: []string{"S", "M"}, Processes: []string{"Cutting", "Assembly", "Packaging"}},
				{Name: "Aluminium", Sizes: []string{"M"}, Processes: []string{"Cutting", "Anodising"}},
			},
		}},
	}}}
}

func testMetrics() *metrics.Metrics {
	return metrics.New(metrics.DefaultConfig("production-test"))
}

func newTestTrackerService(repo *fakeJobRepo, tracker *domain.Tracker) *TrackerService {
	logger := logging.NewNop()
	catalog := NewCatalogService(testCatalog(), logger)
	return NewTrackerService(repo, catalog, tracker, testMetrics(), logger)
}
