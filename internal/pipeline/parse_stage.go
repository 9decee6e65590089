package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

// ReportParser turns extracted text into a structured report.
type ReportParser interface {
	Parse(ctx context.Context, text string) (*entity.Report, error)
}

type ParseStage struct {
	Parser ReportParser
	Logger *slog.Logger
}

func NewParseStage(p ReportParser, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{Parser: p, Logger: logger}
}

// Run parses text and returns the report serialized and checked against the report schema.
func (s *ParseStage) Run(ctx context.Context, text string) (*entity.Report, json.RawMessage, error) {
	rep, err := s.Parser.Parse(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return nil, nil, common.NewAppError("ENCODE_ERROR", "encode report", err)
	}
	if err := report.ValidateJSON(raw); err != nil {
		s.Logger.Error("pipeline.parse.schema_mismatch", "error", err)
		return nil, nil, common.NewAppError("SCHEMA_ERROR", "report does not match schema", err)
	}
	return rep, raw, nil
}
