package application

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mes-platform/production-service/internal/domain"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time       { return c.now }
func (c *stepClock) Step(d time.Duration) { c.now = c.now.Add(d) }

func steelCommand() CreateJobsCommand {
	return CreateJobsCommand{
		WorkOrder:   "WO-1001",
		MachineName: "Line A",
		Department:  "Fabrication",
		Items: []JobItem{{
			Component: "Frame",
			Material:  "Steel",
			Size:      "M",
			Processes: []ProcessSelection{{StageID: "Packaging"}, {StageID: "Cutting"}, {StageID: "Assembly", Name: "Final assembly"}},
		}},
	}
}

func TestTrackerService_CreateJobsOrdersCatalogProcesses(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)

	jobs, err := svc.CreateJobs(context.Background(), steelCommand())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.False(t, job.Custom)
	require.Len(t, job.Stages, 3)
	assert.Equal(t, "Cutting", job.Stages[0].Name)
	assert.Equal(t, "Final assembly", job.Stages[1].Name)
	assert.Equal(t, "Assembly", job.Stages[1].StageID)
	assert.Equal(t, "Packaging", job.Stages[2].Name)
	assert.Equal(t, 1, repo.createCalls)
	require.Len(t, repo.events, 1)
	assert.Equal(t, "mes.production.job-created", repo.events[0].EventType())
}

func TestTrackerService_CreateJobsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateJobsCommand)
		field  string
	}{
		{"no items", func(c *CreateJobsCommand) { c.Items = nil }, "items"},
		{"size not offered", func(c *CreateJobsCommand) { c.Items[0].Size = "XL" }, "size"},
		{"unknown process", func(c *CreateJobsCommand) { c.Items[0].Processes = []ProcessSelection{{StageID: "Painting"}} }, "processes"},
		{"no process selected", func(c *CreateJobsCommand) { c.Items[0].Processes = nil }, "processes"},
		{"missing work order", func(c *CreateJobsCommand) { c.WorkOrder = "" }, "workOrder"},
		{"missing machine name", func(c *CreateJobsCommand) { c.MachineName = "" }, "machineName"},
		{"custom without processes", func(c *CreateJobsCommand) {
			c.Items[0].Material = "other"
			c.Items[0].CustomMaterial = "Brass"
			c.Items[0].Processes = nil
		}, "processes"},
		{"other material without a name", func(c *CreateJobsCommand) {
			c.Items[0].Material = "other"
		}, "customMaterial"},
		{"other component named other", func(c *CreateJobsCommand) {
			c.Items[0].Component = "Other"
			c.Items[0].CustomComponent = " other "
		}, "customComponent"},
		{"custom with names and count", func(c *CreateJobsCommand) {
			c.Items[0].Material = "Brass"
			c.Items[0].ProcessCount = 3
		}, "processCount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeJobRepo()
			svc := newTestTrackerService(repo, nil)
			cmd := steelCommand()
			tt.mutate(&cmd)

			_, err := svc.CreateJobs(context.Background(), cmd)
			require.ErrorIs(t, err, domain.ErrValidation)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, 0, repo.createCalls, "nothing is persisted on validation failure")
		})
	}
}

func TestTrackerService_CustomItemSynthesisesStages(t *testing.T) {
	svc := newTestTrackerService(newFakeJobRepo(), nil)

	cmd := steelCommand()
	cmd.Items = []JobItem{
		{Component: "other", CustomComponent: " Hinge ", Material: "Brass", Size: "42mm", ProcessCount: 4},
		{Component: "other", CustomComponent: "Latch", Material: "Brass", Size: "42mm", ProcessCount: 1},
		{Component: "Frame", Material: "Titanium", Size: "L", Processes: []ProcessSelection{{StageID: "welding", Name: "Welding"}}},
	}

	jobs, err := svc.CreateJobs(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.True(t, jobs[0].Custom)
	assert.Equal(t, "Hinge", jobs[0].Component, "the typed name is stored, not the other option")
	assert.Equal(t, "Latch", jobs[1].Component)
	require.Len(t, jobs[0].Stages, 4)
	for i, s := range jobs[0].Stages {
		assert.Equal(t, "Process "+string(rune('1'+i)), s.Name)
	}

	assert.True(t, jobs[2].Custom, "catalog miss on material is custom")
	assert.Equal(t, "Welding", jobs[2].Stages[0].Name)
}

func TestTrackerService_ToggleAdvancePersists(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, domain.NewTracker(clock.Now, nil))
	ctx := context.Background()

	jobs, err := svc.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)
	jobID := jobs[0].JobID

	res, err := svc.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, "in-progress", res.Job.Stages[0].Status)

	clock.Step(5 * time.Second)
	res, err = svc.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.NoError(t, err)
	require.NotNil(t, res.Job.Stages[0].InProcessDuration)
	assert.Equal(t, int64(5000), *res.Job.Stages[0].InProcessDuration)
	assert.Equal(t, "00:00:05", res.Job.Stages[0].InProcessDisplay)

	clock.Step(2 * time.Second)
	res, err = svc.Advance(ctx, AdvanceJobCommand{JobID: jobID})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	require.NotNil(t, res.HaltRecord)
	assert.Equal(t, int64(2000), res.HaltRecord.Duration)
	assert.Equal(t, "Final assembly", res.HaltRecord.ToProcess)
	require.Len(t, repo.records, 1)
	assert.Equal(t, repo.records[0].ID.Hex(), res.HaltRecord.ID, "advance returns the stored record id")

	assert.Equal(t, "stop", res.Job.Stages[0].Status)
	assert.Equal(t, "completed", res.Job.Stages[0].EffectiveStatus)
	assert.True(t, res.Job.Stages[0].Done)
	assert.True(t, res.Job.Stages[1].Current)

	stored, err := repo.FindByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStageIndex)
	assert.Len(t, repo.records, 1)
}

func TestTrackerService_AdvanceRejectedWhenNotStopped(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)
	ctx := context.Background()

	jobs, err := svc.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)

	_, err = svc.Advance(ctx, AdvanceJobCommand{JobID: jobs[0].JobID})
	assert.ErrorIs(t, err, domain.ErrStageNotStopped)
	assert.Empty(t, repo.records)
}

func TestTrackerService_PersistFailureKeepsOptimisticState(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)
	ctx := context.Background()

	jobs, err := svc.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)
	jobID := jobs[0].JobID

	repo.applyErr = errUnavailable
	res, err := svc.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.NotEmpty(t, res.Notice)
	assert.Equal(t, "in-progress", res.Job.Stages[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.PersistFailures.WithLabelValues("start")))

	got, err := svc.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "in-progress", got.Stages[0].Status, "board keeps the unsaved state")

	stored, err := repo.FindByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageWaiting, stored.ProcessPath[0].Status)

	repo.applyErr = nil
	_, err = svc.Reload(ctx)
	require.NoError(t, err)
	got, err = svc.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "waiting", got.Stages[0].Status, "reload resyncs from storage")
}

func TestTrackerService_NotFoundDropsBoardEntry(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)
	ctx := context.Background()

	jobs, err := svc.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)
	jobID := jobs[0].JobID
	_, err = svc.ListJobs(ctx)
	require.NoError(t, err)

	repo.remove(jobID)
	_, err = svc.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	list, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.GetJob(ctx, jobID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestTrackerService_LoadRestoresStartTimes(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	repo := newFakeJobRepo()
	ctx := context.Background()

	first := newTestTrackerService(repo, domain.NewTracker(clock.Now, nil))
	jobs, err := first.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)
	jobID := jobs[0].JobID
	_, err = first.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.NoError(t, err)

	tracker := domain.NewTracker(clock.Now, nil)
	second := newTestTrackerService(repo, tracker)
	require.NoError(t, second.Load(ctx))
	_, ok := tracker.StartTimes().Get(jobID, 0)
	assert.True(t, ok)

	clock.Step(1500 * time.Millisecond)
	res, err := second.Toggle(ctx, ToggleStageCommand{JobID: jobID, StageIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), *res.Job.Stages[0].InProcessDuration)
}

func TestTrackerService_RenameStage(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)
	ctx := context.Background()

	jobs, err := svc.CreateJobs(ctx, steelCommand())
	require.NoError(t, err)

	job, err := svc.RenameStage(ctx, RenameStageCommand{JobID: jobs[0].JobID, StageID: "Cutting", Name: "Laser cutting"})
	require.NoError(t, err)
	assert.Equal(t, "Laser cutting", job.Stages[0].Name)
	assert.Equal(t, "Cutting", job.Stages[0].StageID)
	assert.Equal(t, "mes.production.stage-renamed", repo.events[len(repo.events)-1].EventType())

	_, err = svc.RenameStage(ctx, RenameStageCommand{JobID: jobs[0].JobID, StageID: "Nope", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrStageNotFound)
}

func TestTrackerService_BoardAndPurge(t *testing.T) {
	repo := newFakeJobRepo()
	svc := newTestTrackerService(repo, nil)
	ctx := context.Background()

	cmd := steelCommand()
	cmd.Items = append(cmd.Items,
		JobItem{Component: "Frame", Material: "Aluminium", Size: "M", Processes: []ProcessSelection{{StageID: "Cutting"}}},
		JobItem{Component: "Frame", Material: "Aluminium", Size: "M", Processes: []ProcessSelection{{StageID: "Anodising"}}},
	)
	jobs, err := svc.CreateJobs(ctx, cmd)
	require.NoError(t, err)

	board, err := svc.Board(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, board.JobCount)
	require.Len(t, board.Groups, 2)

	// complete one single-stage aluminium job
	single := jobs[1].JobID
	_, err = svc.Toggle(ctx, ToggleStageCommand{JobID: single, StageIndex: 0})
	require.NoError(t, err)
	_, err = svc.Toggle(ctx, ToggleStageCommand{JobID: single, StageIndex: 0})
	require.NoError(t, err)
	res, err := svc.Advance(ctx, AdvanceJobCommand{JobID: single})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Job.Status)
	assert.Equal(t, domain.CompletedProcessName, res.HaltRecord.ToProcess)

	board, err = svc.Board(ctx)
	require.NoError(t, err)
	for _, g := range board.Groups {
		if g.Material == "Aluminium" {
			assert.Equal(t, ProgressDTO{Completed: 1, Total: 2}, g.Progress)
			assert.False(t, g.Completed)
		}
	}

	purge, err := svc.PurgeCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purge.Deleted)
	assert.Equal(t, "1 completed items deleted", purge.Message)

	list, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
