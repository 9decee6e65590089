package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

const parsed = `{"patientInfo":{"name":"HORN BUN HACH","patientId":"PT001868","age":"58 Y","gender":"Male","phone":null},` +
	`"labInfo":{"labId":"LT1","requestedBy":null,"requestedDate":null,"collectedDate":"01/02/2025","analysisDate":null,"validatedBy":"Dr. KEO"},` +
	`"testResults":[{"category":"biochemistry","testName":"Glucose","result":"7.2","unit":"mmol/L","referenceRange":"3.9 - 6.1","flag":"H"},` +
	`{"category":"serology","testName":"Widal (TH)","result":"NEGATIVE","unit":"","referenceRange":"","flag":null}]}`

func TestExportBatchXLSX(t *testing.T) {
	ctx := context.Background()
	reports := repository.NewMemoryReportRepository()
	batch := uuid.New()
	other := uuid.New()

	ok := &entity.LabReport{BatchID: &batch, SourcePath: "/in/a.txt", Status: constants.ReportStatusProcessed, Report: json.RawMessage(parsed)}
	failed := &entity.LabReport{BatchID: &batch, SourcePath: "/in/b.png", Status: constants.ReportStatusFailed, ErrorMessage: entity.StrPtr("tesseract: exit status 1")}
	elsewhere := &entity.LabReport{BatchID: &other, SourcePath: "/in/c.txt", Status: constants.ReportStatusProcessed, Report: json.RawMessage(parsed)}
	for _, r := range []*entity.LabReport{ok, failed, elsewhere} {
		require.NoError(t, reports.Create(ctx, r))
	}

	data, err := NewService(reports, nil).ExportBatchXLSX(ctx, batch)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetReports, SheetResults}, f.GetSheetList())

	rows, err := f.GetRows(SheetReports)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, reportHeaders, rows[0])
	assert.Equal(t, []string{"/in/a.txt", "PROCESSED", ok.ID.String(), "HORN BUN HACH", "PT001868", "58 Y", "Male", "LT1", "01/02/2025", "Dr. KEO", "2"}, rows[1])
	assert.Equal(t, "FAILED", rows[2][1])
	assert.Equal(t, "0", rows[2][10])
	assert.Equal(t, "tesseract: exit status 1", rows[2][11])

	results, err := f.GetRows(SheetResults)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{ok.ID.String(), "/in/a.txt", "biochemistry", "Glucose", "7.2", "mmol/L", "3.9 - 6.1", "H"}, results[1])
	assert.Equal(t, []string{ok.ID.String(), "/in/a.txt", "serology", "Widal (TH)", "NEGATIVE"}, results[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
