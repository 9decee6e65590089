package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

// Processor coordinates text extraction, parsing and persistence of one report.
type Processor struct {
	Logger  *slog.Logger
	OCR     *OCRStage
	Parse   *ParseStage
	Reports repository.ReportRepository
}

func NewProcessor(logger *slog.Logger, ocr *OCRStage, parse *ParseStage, reports repository.ReportRepository) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, OCR: ocr, Parse: parse, Reports: reports}
}

// ProcessFile extracts, parses and stores the report at path. A failure in either
// stage is stored as a FAILED row; the row is returned together with the error.
// The batch id, if any, is taken from ctx.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*entity.LabReport, error) {
	ctx, reqID := common.EnsureRequestID(ctx)

	res, err := p.OCR.Run(ctx, path)
	if err != nil {
		p.Logger.Error("processor.ocr.failed", "request_id", reqID, "path", path, "error", err)
		return p.fail(ctx, path, err)
	}
	p.Logger.Info("processor.ocr.ok",
		"request_id", reqID,
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"confidence", res.Confidence,
	)
	return p.ProcessText(ctx, path, res.Text)
}

// ProcessText parses text that is already extracted and stores it under source.
func (p *Processor) ProcessText(ctx context.Context, source, text string) (*entity.LabReport, error) {
	ctx, reqID := common.EnsureRequestID(ctx)

	_, raw, err := p.Parse.Run(ctx, text)
	if err != nil {
		p.Logger.Error("processor.parse.failed", "request_id", reqID, "source", source, "error", err)
		return p.fail(ctx, source, err)
	}

	row := &entity.LabReport{
		BatchID:    batchID(ctx),
		SourcePath: source,
		Status:     constants.ReportStatusProcessed,
		Report:     raw,
	}
	if err := p.Reports.Create(ctx, row); err != nil {
		p.Logger.Error("processor.persist.failed", "request_id", reqID, "source", source, "error", err)
		return nil, err
	}
	p.Logger.Info("processor.parse.ok", "request_id", reqID, "source", source, "report_id", row.ID)
	return row, nil
}

func (p *Processor) fail(ctx context.Context, source string, cause error) (*entity.LabReport, error) {
	row := &entity.LabReport{
		BatchID:      batchID(ctx),
		SourcePath:   source,
		Status:       constants.ReportStatusFailed,
		ErrorMessage: entity.StrPtr(cause.Error()),
	}
	if err := p.Reports.Create(ctx, row); err != nil {
		p.Logger.Error("processor.persist.failed", "source", source, "error", err)
		return nil, cause
	}
	return row, cause
}

func batchID(ctx context.Context) *uuid.UUID {
	if id, ok := common.BatchIDFromContext(ctx); ok {
		return &id
	}
	return nil
}
