package application

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
)

func newTestLedger(repo *fakeHaltRepo) *HaltLedgerService {
	return NewHaltLedgerService(repo, testMetrics(), logging.NewNop())
}

func appendCmd(workOrder string, duration int64) AppendHaltRecordCommand {
	return AppendHaltRecordCommand{
		WorkOrder:   workOrder,
		Machine:     "Fabrication",
		Type:        "Frame",
		Component:   "Steel",
		FromProcess: "Cutting",
		ToProcess:   "Assembly",
		Duration:    duration,
	}
}

func TestHaltLedger_Append(t *testing.T) {
	repo := &fakeHaltRepo{}
	ledger := newTestLedger(repo)

	res, err := ledger.Append(context.Background(), appendCmd("WO-1", 61000))
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, "00:01:01", res.Record.DurationDisplay)
	assert.Len(t, repo.records, 1)
}

func TestHaltLedger_AppendFailureIsNonFatal(t *testing.T) {
	ledger := newTestLedger(&fakeHaltRepo{appendErr: errUnavailable})

	res, err := ledger.Append(context.Background(), appendCmd("WO-1", 10))
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, appendNotice, res.Notice)
}

func TestHaltLedger_AppendValidation(t *testing.T) {
	ledger := newTestLedger(&fakeHaltRepo{})

	_, err := ledger.Append(context.Background(), appendCmd("", 10))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = ledger.Append(context.Background(), appendCmd("WO-1", -1))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHaltLedger_QueryByWorkOrder(t *testing.T) {
	repo := &fakeHaltRepo{}
	ledger := newTestLedger(repo)
	ctx := context.Background()

	for _, wo := range []string{"WO-1", "WO-2", "WO-1"} {
		_, err := ledger.Append(ctx, appendCmd(wo, 100))
		require.NoError(t, err)
	}

	res, err := ledger.QueryByWorkOrder(ctx, "  ")
	require.NoError(t, err)
	assert.False(t, res.FilterApplied)
	assert.Empty(t, res.Records)
	assert.NotEmpty(t, res.Message)

	res, err = ledger.QueryByWorkOrder(ctx, "WO-1")
	require.NoError(t, err)
	assert.True(t, res.FilterApplied)
	assert.Len(t, res.Records, 2)

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHaltLedger_Export(t *testing.T) {
	repo := &fakeHaltRepo{records: []*domain.HaltDurationRecord{{
		WorkOrder: "WO-9", Machine: "Fabrication", Type: "Frame", Component: "Steel",
		FromProcess: "Cutting", ToProcess: domain.CompletedProcessName, Duration: 3661000,
		CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}}}
	ledger := newTestLedger(repo)

	var buf bytes.Buffer
	n, err := ledger.Export(context.Background(), "WO-9", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(HaltSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Work Order", rows[0][0])
	assert.Equal(t, "WO-9", rows[1][0])
	assert.Equal(t, "Completed", rows[1][5])
	assert.Equal(t, "01:01:01", rows[1][7])

	_, err = ledger.Export(context.Background(), "", &buf)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
