package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/extract"
)

// LowConfidence is the extraction confidence below which a report is logged for review.
const LowConfidence = 0.6

type OCRStage struct {
	TextExtractor extract.TextExtractor
	Logger        *slog.Logger
}

func NewOCRStage(tx extract.TextExtractor, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{TextExtractor: tx, Logger: logger}
}

// Run extracts text from the file at path.
func (s *OCRStage) Run(ctx context.Context, path string) (extract.TextExtractionResult, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsAllowedExt(ext) {
		return extract.TextExtractionResult{}, common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("unsupported format: %q", ext), common.ErrInvalidInput)
	}

	res, err := s.TextExtractor.Extract(ctx, path)
	if err != nil {
		return res, err
	}
	if res.Confidence > 0 && res.Confidence < LowConfidence {
		s.Logger.Warn("pipeline.ocr.low_confidence",
			"path", path,
			"method", res.Method,
			"confidence", res.Confidence,
		)
	}
	return res, nil
}
