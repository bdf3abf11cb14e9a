package application

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
)

const (
	appendNotice    = "halt record could not be saved"
	noFilterMessage = "enter a work order to view halt durations"
)

// HaltLedgerService appends and queries halt duration records
type HaltLedgerService struct {
	repo    domain.HaltRecordRepository
	metrics *metrics.Metrics
	logger  *logging.Logger
	clock   func() time.Time
}

// NewHaltLedgerService creates a new halt ledger service
func NewHaltLedgerService(repo domain.HaltRecordRepository, m *metrics.Metrics, logger *logging.Logger) *HaltLedgerService {
	return &HaltLedgerService{
		repo:    repo,
		metrics: m,
		logger:  logger.WithComponent("halt-ledger"),
		clock:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Append stores a record. A storage failure is logged and reported in the
// result rather than returned.
func (s *HaltLedgerService) Append(ctx context.Context, cmd AppendHaltRecordCommand) (*AppendResultDTO, error) {
	record := &domain.HaltDurationRecord{
		JobID:       cmd.JobID,
		WorkOrder:   strings.TrimSpace(cmd.WorkOrder),
		Machine:     cmd.Machine,
		Type:        cmd.Type,
		Component:   cmd.Component,
		FromProcess: cmd.FromProcess,
		ToProcess:   cmd.ToProcess,
		Duration:    cmd.Duration,
		CreatedAt:   s.clock(),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	result := &AppendResultDTO{Persisted: true}
	if err := s.repo.Append(ctx, record); err != nil {
		s.logger.WithError(err).Warn("Failed to append halt record", "workOrder", record.WorkOrder)
		s.metrics.RecordPersistFailure("halt_append")
		result.Persisted = false
		result.Notice = appendNotice
	} else {
		s.metrics.ObserveHaltDuration(record.Machine, time.Duration(record.Duration)*time.Millisecond)
	}
	result.Record = ToHaltRecordDTO(record)
	return result, nil
}

// QueryByWorkOrder returns the records of one work order, newest first. An
// empty work order returns no records and FilterApplied false.
func (s *HaltLedgerService) QueryByWorkOrder(ctx context.Context, workOrder string) (*HaltQueryResultDTO, error) {
	workOrder = strings.TrimSpace(workOrder)
	if workOrder == "" {
		return &HaltQueryResultDTO{
			FilterApplied: false,
			Message:       noFilterMessage,
			Records:       []*HaltDurationRecordDTO{},
		}, nil
	}

	records, err := s.repo.ListByWorkOrder(ctx, workOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to query halt records: %w", err)
	}
	return &HaltQueryResultDTO{
		WorkOrder:     workOrder,
		FilterApplied: true,
		Records:       toHaltRecordDTOs(records),
	}, nil
}

// List returns every record, newest first
func (s *HaltLedgerService) List(ctx context.Context) ([]*HaltDurationRecordDTO, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list halt records: %w", err)
	}
	return toHaltRecordDTOs(records), nil
}

// Export writes the records of a work order as an XLSX workbook
func (s *HaltLedgerService) Export(ctx context.Context, workOrder string, w io.Writer) (int, error) {
	workOrder = strings.TrimSpace(workOrder)
	if workOrder == "" {
		return 0, domain.NewValidationError("workOrder", "is required")
	}
	records, err := s.repo.ListByWorkOrder(ctx, workOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to query halt records: %w", err)
	}
	if err := WriteHaltWorkbook(w, records); err != nil {
		return 0, err
	}
	s.logger.Audit(ctx, "export_halt_records", "work_order", workOrder, map[string]any{"records": len(records)})
	return len(records), nil
}
