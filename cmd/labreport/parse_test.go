package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

func TestValidateReportFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"patientInfo":{"name":null,"patientId":null,"age":null,"gender":null,"phone":null},`+
		`"labInfo":{"labId":null,"requestedBy":null,"requestedDate":null,"collectedDate":null,"analysisDate":null,"validatedBy":null},`+
		`"testResults":[]}`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`{"patientInfo":{}}`), 0o600))

	var out bytes.Buffer
	require.NoError(t, validateReportFile(&out, good))
	assert.Contains(t, out.String(), "valid")

	assert.Error(t, validateReportFile(&out, bad))
	assert.Error(t, validateReportFile(&out, filepath.Join(dir, "missing.json")))
}

func TestPrintPretty(t *testing.T) {
	rep := &entity.Report{
		PatientInfo: entity.PatientInfo{Name: entity.StrPtr("SOK CHAN"), PatientID: entity.StrPtr("PT000042")},
		TestResults: []entity.TestResult{
			{Category: "biochemistry", TestName: "Urea", Result: "5.1", Unit: "mmol/L", ReferenceRange: "2.5 - 7.5"},
			{Category: "haematology", TestName: "Hb", Result: "9.0", Unit: "g/dL", Flag: entity.StrPtr("L")},
		},
	}
	var out bytes.Buffer
	printPretty(&out, rep, "text", 0.9)

	s := out.String()
	assert.Contains(t, s, "SOK CHAN")
	assert.Contains(t, s, "BIOCHEMISTRY")
	assert.Contains(t, s, "HAEMATOLOGY")
	assert.Contains(t, s, "[L]")
	assert.Regexp(t, `Lab ID:\s+-\n`, s)
}

func TestParseCorrectionType(t *testing.T) {
	typ, err := parseCorrectionType("testName")
	require.NoError(t, err)
	assert.Equal(t, "test_name", string(typ))

	_, err = parseCorrectionType("colour")
	assert.Error(t, err)
}

func TestParseCommandPretty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(`Patient ID : PT000042
Name : SOK CHAN
LABORATORY REPORT
BIOCHEMISTRY
Urea : 5.1 mmol/L (2.5 - 7.5)
Validated By: Dr. KEO`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"parse", "--inmem", "--format", "pretty", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		inMemory, parseFormat = false, "json"
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Extraction: text (confidence")
	assert.Contains(t, out.String(), "PT000042")
	assert.Contains(t, out.String(), "Urea")
}
