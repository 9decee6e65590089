package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/extract"
	"github.com/joseph-ayodele/lab-report-parser/internal/ocr"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

const labText = `Patient ID : PT000042
Name : SOK CHAN
LABORATORY REPORT
BIOCHEMISTRY
Urea : 5.1 mmol/L (2.5 - 7.5)
Validated By: Dr. KEO`

func newProcessor(tx extract.TextExtractor, reports repository.ReportRepository) *Processor {
	return NewProcessor(nil,
		NewOCRStage(tx, nil),
		NewParseStage(report.NewAssembler(rules.Default()), nil),
		reports,
	)
}

func writeReport(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestProcessFileStoresParsedReport(t *testing.T) {
	reports := repository.NewMemoryReportRepository()
	p := newProcessor(extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{}, nil)), reports)
	batch := uuid.New()
	path := writeReport(t, "a.txt", labText)

	row, err := p.ProcessFile(common.WithBatchID(context.Background(), batch), path)
	require.NoError(t, err)
	assert.Equal(t, constants.ReportStatusProcessed, row.Status)
	assert.Equal(t, path, row.SourcePath)
	require.NotNil(t, row.BatchID)
	assert.Equal(t, batch, *row.BatchID)

	stored, err := reports.Get(context.Background(), row.ID)
	require.NoError(t, err)
	rep, err := stored.Decode()
	require.NoError(t, err)
	assert.Equal(t, "PT000042", entity.StrVal(rep.PatientInfo.PatientID))
	require.Len(t, rep.TestResults, 1)
	assert.Equal(t, "Urea", rep.TestResults[0].TestName)
}

type failingExtractor struct{ err error }

func (f failingExtractor) Extract(context.Context, string) (extract.TextExtractionResult, error) {
	return extract.TextExtractionResult{}, f.err
}

func TestProcessFileRecordsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("extraction", func(t *testing.T) {
		reports := repository.NewMemoryReportRepository()
		p := newProcessor(failingExtractor{errors.New("tesseract: exit status 1")}, reports)

		row, err := p.ProcessFile(ctx, "/in/scan.png")
		require.Error(t, err)
		require.NotNil(t, row)
		assert.Equal(t, constants.ReportStatusFailed, row.Status)
		assert.Equal(t, "tesseract: exit status 1", entity.StrVal(row.ErrorMessage))
		assert.Nil(t, row.BatchID)
	})

	t.Run("blank text", func(t *testing.T) {
		reports := repository.NewMemoryReportRepository()
		p := newProcessor(extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{}, nil)), reports)

		row, err := p.ProcessFile(ctx, writeReport(t, "empty.txt", "  \n\n"))
		assert.True(t, errors.Is(err, common.ErrNoInput))
		require.NotNil(t, row)
		assert.Equal(t, constants.ReportStatusFailed, row.Status)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		reports := repository.NewMemoryReportRepository()
		p := newProcessor(failingExtractor{}, reports)

		row, err := p.ProcessFile(ctx, "/in/report.docx")
		assert.True(t, errors.Is(err, common.ErrInvalidInput))
		assert.Equal(t, constants.ReportStatusFailed, row.Status)
	})
}

func TestProcessText(t *testing.T) {
	reports := repository.NewMemoryReportRepository()
	p := newProcessor(failingExtractor{}, reports)

	row, err := p.ProcessText(context.Background(), "api", labText)
	require.NoError(t, err)
	assert.Equal(t, "api", row.SourcePath)
	assert.NoError(t, report.ValidateJSON(row.Report))

	all, err := reports.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
