package application

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mes-platform/production-service/internal/domain"
)

// HaltSheetName is the worksheet holding exported halt records
const HaltSheetName = "Halt Durations"

var haltHeaders = []string{
	"Work Order", "Machine", "Type", "Component",
	"From Process", "To Process", "Duration (ms)", "Duration", "Recorded At",
}

// WriteHaltWorkbook renders records into a single-sheet workbook
func WriteHaltWorkbook(w io.Writer, records []*domain.HaltDurationRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", HaltSheetName); err != nil {
		return fmt.Errorf("set sheet name: %w", err)
	}

	for i, h := range haltHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(HaltSheetName, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", h, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(haltHeaders), 1)
	if err := f.SetCellStyle(HaltSheetName, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			r.WorkOrder, r.Machine, r.Type, r.Component,
			r.FromProcess, r.ToProcess, r.Duration, domain.FormatDuration(r.Duration),
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(HaltSheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
