//go:build integration

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	pkgtesting "github.com/mes-platform/production-service/pkg/testing"
)

type RepositoryIntegrationTestSuite struct {
	suite.Suite
	container *pkgtesting.MongoDB
	client    *pkgmongo.Client
	db        *mongo.Database
	jobs      *ProductionJobRepository
	halts     *HaltRecordRepository
	tracker   *domain.Tracker
	ctx       context.Context
}

func (s *RepositoryIntegrationTestSuite) SetupSuite() {
	s.ctx = pkgtesting.TestContext(s.T(), 5*time.Minute)

	container, err := pkgtesting.StartMongoDB(s.ctx, "production_test")
	s.Require().NoError(err)
	s.container = container

	client, err := container.Connect(s.ctx)
	s.Require().NoError(err)
	s.client = client
	s.db = client.Database()

	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("production-integration"))
	factory := cloudevents.NewEventFactory(cloudevents.SourceProduction)

	s.jobs = NewProductionJobRepository(s.db, factory, m, logger)
	s.halts = NewHaltRecordRepository(s.db, factory, m, logger)
	s.tracker = domain.NewTracker(nil, nil)
}

func (s *RepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
	s.Require().NoError(s.container.Terminate(s.ctx))
}

func (s *RepositoryIntegrationTestSuite) TearDownTest() {
	_ = s.db.Collection(jobsCollection).Drop(s.ctx)
	_ = s.db.Collection(haltsCollection).Drop(s.ctx)
	_ = s.db.Collection("outbox_events").Drop(s.ctx)
	s.tracker.StartTimes().Reset()
}

func (s *RepositoryIntegrationTestSuite) newJob(workOrder, component string, stageIDs ...string) *domain.ProductionJob {
	stages := make([]domain.ProcessStage, len(stageIDs))
	for i, id := range stageIDs {
		stages[i] = domain.NewProcessStage(id, "")
	}
	job, err := domain.NewProductionJob(domain.JobAttributes{
		WorkOrder:   workOrder,
		MachineName: "Line A",
		Department:  "Fabrication",
		Component:   component,
		Material:    "Steel",
		Size:        "M",
	}, stages, s.tracker.Now())
	s.Require().NoError(err)
	return job
}

func (s *RepositoryIntegrationTestSuite) countOutbox() int64 {
	n, err := s.db.Collection("outbox_events").CountDocuments(s.ctx, bson.M{})
	s.Require().NoError(err)
	return n
}

func (s *RepositoryIntegrationTestSuite) TestCreateAndList() {
	_, err := s.jobs.CreateJobs(s.ctx, []*domain.ProductionJob{
		s.newJob("WO-2", "Frame", "Cutting"),
		s.newJob("WO-1", "Panel", "Cutting"),
		s.newJob("WO-1", "Bracket", "Cutting"),
	})
	s.Require().NoError(err)

	jobs, err := s.jobs.ListJobs(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(jobs, 3)
	s.Equal("Bracket", jobs[0].Component)
	s.Equal("Panel", jobs[1].Component)
	s.Equal("WO-2", jobs[2].WorkOrder)
	s.Equal(int64(3), s.countOutbox())

	_, err = s.jobs.FindByJobID(s.ctx, "JOB-missing")
	s.ErrorIs(err, domain.ErrJobNotFound)
}

func (s *RepositoryIntegrationTestSuite) TestApplyTransitionThroughCompletion() {
	job := s.newJob("WO-9", "Frame", "Cutting", "Welding")
	_, err := s.jobs.CreateJobs(s.ctx, []*domain.ProductionJob{job})
	s.Require().NoError(err)

	current := job
	var written []*domain.HaltDurationRecord
	step := func(tr *domain.Transition, err error) {
		s.Require().NoError(err)
		s.Require().NoError(s.jobs.ApplyTransition(s.ctx, tr.Job, tr.HaltRecord, tr.Events))
		if tr.HaltRecord != nil {
			s.False(tr.HaltRecord.ID.IsZero(), "halt record id is set by the insert")
			written = append(written, tr.HaltRecord)
		}
		current = tr.Job
	}

	for i := 0; i < 2; i++ {
		step(s.tracker.Toggle(current, i))
		step(s.tracker.Toggle(current, i))
		time.Sleep(5 * time.Millisecond)
		step(s.tracker.Advance(current))
	}

	stored, err := s.jobs.FindByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(domain.JobStatusCompleted, stored.Status)
	s.Equal(domain.StageCompleted, stored.ProcessPath[1].Status)

	records, err := s.halts.ListByWorkOrder(s.ctx, "WO-9")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(domain.CompletedProcessName, records[0].ToProcess)
	s.Require().Len(written, 2)
	s.Equal(written[1].ID, records[0].ID)

	deleted, err := s.jobs.DeleteCompleted(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	jobs, err := s.jobs.ListJobs(s.ctx)
	s.Require().NoError(err)
	s.Empty(jobs)
}

func (s *RepositoryIntegrationTestSuite) TestApplyTransitionMissingJob() {
	job := s.newJob("WO-3", "Frame", "Cutting")
	tr, err := s.tracker.Toggle(job, 0)
	s.Require().NoError(err)

	err = s.jobs.ApplyTransition(s.ctx, tr.Job, nil, tr.Events)
	s.ErrorIs(err, domain.ErrJobNotFound)
	s.Equal(int64(0), s.countOutbox())
}

func (s *RepositoryIntegrationTestSuite) TestUpdatePartialRename() {
	job := s.newJob("WO-4", "Frame", "Cutting")
	_, err := s.jobs.CreateJobs(s.ctx, []*domain.ProductionJob{job})
	s.Require().NoError(err)

	next := job.DeepCopy()
	s.Require().NoError(next.RenameStage("Cutting", "Laser cutting", s.tracker.Now()))

	updated, err := s.jobs.UpdatePartial(s.ctx, job.JobID, domain.JobPatch{
		ProcessPath: next.ProcessPath,
		Events:      next.GetDomainEvents(),
	})
	s.Require().NoError(err)
	s.Equal("Laser cutting", updated.ProcessPath[0].Name)
	s.Equal(int64(2), s.countOutbox())

	history, err := s.jobs.GetOutboxRepository().FindByAggregateID(s.ctx, job.JobID)
	s.Require().NoError(err)
	types := make([]string, 0, len(history))
	for _, e := range history {
		types = append(types, e.EventType)
	}
	s.ElementsMatch([]string{"mes.production.job-created", "mes.production.stage-renamed"}, types)

	_, err = s.jobs.UpdatePartial(s.ctx, "JOB-missing", domain.JobPatch{ProcessPath: next.ProcessPath})
	s.ErrorIs(err, domain.ErrJobNotFound)
}

func TestRepositoryIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RepositoryIntegrationTestSuite))
}
