package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

const (
	SheetReports = "Reports"
	SheetResults = "Results"
)

var (
	reportHeaders = []string{
		"Source File", "Status", "Report ID", "Patient Name", "Patient ID", "Age", "Gender",
		"Lab ID", "Collected Date", "Validated By", "Tests", "Error",
	}
	resultHeaders = []string{
		"Report ID", "Source File", "Category", "Test", "Result", "Unit", "Reference Range", "Flag",
	}
)

// Service produces XLSX workbooks for stored reports.
type Service struct {
	reports repository.ReportRepository
	logger  *slog.Logger
}

func NewService(reports repository.ReportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reports: reports, logger: logger}
}

// ExportBatchXLSX returns a workbook with every report of a batch.
func (s *Service) ExportBatchXLSX(ctx context.Context, batchID uuid.UUID) ([]byte, error) {
	reps, err := s.reports.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	s.logger.Debug("export.batch.loaded", "batch_id", batchID, "reports", len(reps))
	return s.ExportReportsXLSX(reps)
}

// ExportReportsXLSX writes one Reports row per report and one Results row per test result.
func (s *Service) ExportReportsXLSX(reps []*entity.LabReport) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close.failed", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetReports); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetResults); err != nil {
		return nil, err
	}
	writeRow(f, SheetReports, 1, toAny(reportHeaders)...)
	writeRow(f, SheetResults, 1, toAny(resultHeaders)...)

	row, resultRow := 2, 2
	var undecodable int
	for _, r := range reps {
		rep, err := r.Decode()
		if err != nil {
			undecodable++
			s.logger.Warn("export.report.decode.failed", "report_id", r.ID, "error", err)
		}
		if rep == nil {
			rep = &entity.Report{}
		}
		writeRow(f, SheetReports, row,
			r.SourcePath,
			string(r.Status),
			r.ID.String(),
			entity.StrVal(rep.PatientInfo.Name),
			entity.StrVal(rep.PatientInfo.PatientID),
			entity.StrVal(rep.PatientInfo.Age),
			entity.StrVal(rep.PatientInfo.Gender),
			entity.StrVal(rep.LabInfo.LabID),
			entity.StrVal(rep.LabInfo.CollectedDate),
			entity.StrVal(rep.LabInfo.ValidatedBy),
			len(rep.TestResults),
			truncate(entity.StrVal(r.ErrorMessage), 200),
		)
		row++

		for _, tr := range rep.TestResults {
			writeRow(f, SheetResults, resultRow,
				r.ID.String(),
				r.SourcePath,
				tr.Category,
				tr.TestName,
				tr.Result,
				tr.Unit,
				tr.ReferenceRange,
				entity.StrVal(tr.Flag),
			)
			resultRow++
		}
	}

	_ = f.SetColWidth(SheetReports, "A", "A", 48) // source
	_ = f.SetColWidth(SheetReports, "C", "C", 38) // id
	_ = f.SetColWidth(SheetReports, "D", "D", 28) // name
	_ = f.SetColWidth(SheetReports, "L", "L", 60) // error
	_ = f.SetColWidth(SheetResults, "A", "B", 38)
	_ = f.SetColWidth(SheetResults, "D", "D", 32)
	_ = f.SetColWidth(SheetResults, "G", "G", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"reports", len(reps),
		"results", resultRow-2,
		"undecodable", undecodable,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
