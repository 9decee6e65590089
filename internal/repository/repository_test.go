package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

type repoSuite struct {
	suite.Suite
	newRepos    func(t *testing.T) (CorrectionRepository, ReportRepository)
	corrections CorrectionRepository
	reports     ReportRepository
}

func (s *repoSuite) SetupTest() {
	s.corrections, s.reports = s.newRepos(s.T())
}

func TestSQLiteRepositories(t *testing.T) {
	suite.Run(t, &repoSuite{newRepos: func(t *testing.T) (CorrectionRepository, ReportRepository) {
		db, err := OpenInMemory(context.Background(), nil)
		require.NoError(t, err)
		t.Cleanup(db.Close)
		return NewCorrectionRepository(db, nil), NewReportRepository(db, nil)
	}})
}

func TestMemoryRepositories(t *testing.T) {
	suite.Run(t, &repoSuite{newRepos: func(*testing.T) (CorrectionRepository, ReportRepository) {
		return NewMemoryCorrectionRepository(), NewMemoryReportRepository()
	}})
}

func (s *repoSuite) TestUpsertLifecycle() {
	ctx := context.Background()
	var scores []int
	for i := 0; i < 10; i++ {
		c, err := s.corrections.Upsert(ctx, "Glucse", "Glucose", constants.CorrectionTestName)
		s.Require().NoError(err)
		s.Equal(i+1, c.Frequency)
		scores = append(scores, c.ConfidenceScore)
	}
	s.Equal([]int{85, 87, 89, 91, 93, 95, 97, 99, 100, 100}, scores)

	other, err := s.corrections.Upsert(ctx, "Glucse", "Glucose", constants.CorrectionValue)
	s.Require().NoError(err)
	s.Equal(1, other.Frequency, "type is part of the key")
}

func (s *repoSuite) TestFindExactPrefersFrequency() {
	ctx := context.Background()
	_, err := s.corrections.Upsert(ctx, "Hb", "Haemoglobin", constants.CorrectionTestName)
	s.Require().NoError(err)
	for i := 0; i < 2; i++ {
		_, err = s.corrections.Upsert(ctx, "Hb", "Hemoglobin", constants.CorrectionTestName)
		s.Require().NoError(err)
	}

	c, err := s.corrections.FindExact(ctx, "Hb", constants.CorrectionTestName, constants.ExactMatchMinConfidence)
	s.Require().NoError(err)
	s.Equal("Hemoglobin", c.CorrectedText)

	_, err = s.corrections.FindExact(ctx, "Hb", constants.CorrectionTestName, 95)
	s.True(errors.Is(err, common.ErrNotFound))

	_, err = s.corrections.FindExact(ctx, "Hb", constants.CorrectionValue, 0)
	s.True(errors.Is(err, common.ErrNotFound))
}

func (s *repoSuite) TestTopByFrequencyAndList() {
	ctx := context.Background()
	upsert := func(o, c string, n int, typ constants.CorrectionType) {
		for i := 0; i < n; i++ {
			_, err := s.corrections.Upsert(ctx, o, c, typ)
			s.Require().NoError(err)
		}
	}
	upsert("a", "A", 1, constants.CorrectionValue)
	upsert("b", "B", 3, constants.CorrectionValue)
	upsert("c", "C", 2, constants.CorrectionValue)
	upsert("d", "D", 5, constants.CorrectionTestName)

	top, err := s.corrections.TopByFrequency(ctx, constants.CorrectionValue, constants.FuzzyMinConfidence, 2)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("b", top[0].OriginalText)
	s.Equal("c", top[1].OriginalText)

	all, err := s.corrections.List(ctx, "", 0)
	s.Require().NoError(err)
	s.Len(all, 4)
	s.Equal("d", all[0].OriginalText)

	values, err := s.corrections.List(ctx, constants.CorrectionValue, 0)
	s.Require().NoError(err)
	s.Len(values, 3)
}

func (s *repoSuite) TestConcurrentUpsertsAreSerialized() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.corrections.Upsert(ctx, "Urea.", "Urea", constants.CorrectionTestName)
			s.NoError(err)
		}()
	}
	wg.Wait()

	c, err := s.corrections.FindExact(ctx, "Urea.", constants.CorrectionTestName, 0)
	s.Require().NoError(err)
	s.Equal(20, c.Frequency)
	s.Equal(constants.MaxConfidence, c.ConfidenceScore)
}

func (s *repoSuite) TestReportRoundTrip() {
	ctx := context.Background()
	batch := uuid.New()
	msg := "ocr failed"

	ok := &entity.LabReport{BatchID: &batch, SourcePath: "/in/b.pdf", Status: constants.ReportStatusProcessed, Report: json.RawMessage(`{"a":1}`)}
	failed := &entity.LabReport{BatchID: &batch, SourcePath: "/in/a.pdf", Status: constants.ReportStatusFailed, ErrorMessage: &msg}
	s.Require().NoError(s.reports.Create(ctx, ok))
	s.Require().NoError(s.reports.Create(ctx, failed))
	s.NotEqual(uuid.Nil, ok.ID)

	got, err := s.reports.Get(ctx, ok.ID)
	s.Require().NoError(err)
	s.Equal(constants.ReportStatusProcessed, got.Status)
	s.JSONEq(`{"a":1}`, string(got.Report))
	s.Require().NotNil(got.BatchID)
	s.Equal(batch, *got.BatchID)
	s.Nil(got.ErrorMessage)

	s.Require().NoError(s.reports.UpdateReport(ctx, ok.ID, constants.ReportStatusCorrected, json.RawMessage(`{"a":2}`)))
	got, err = s.reports.Get(ctx, ok.ID)
	s.Require().NoError(err)
	s.Equal(constants.ReportStatusCorrected, got.Status)
	s.JSONEq(`{"a":2}`, string(got.Report))

	listed, err := s.reports.ListByBatch(ctx, batch)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("/in/a.pdf", listed[0].SourcePath)
	s.Equal("ocr failed", entity.StrVal(listed[0].ErrorMessage))

	all, err := s.reports.List(ctx, 1)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *repoSuite) TestReportNotFound() {
	ctx := context.Background()
	_, err := s.reports.Get(ctx, uuid.New())
	s.True(errors.Is(err, common.ErrNotFound))

	err = s.reports.UpdateReport(ctx, uuid.New(), constants.ReportStatusCorrected, nil)
	s.True(errors.Is(err, common.ErrNotFound))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestMigrateIsIdempotentAndHealthy(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	assert.NoError(t, db.HealthCheck(ctx, 0))
}

func TestMigrateEnforcesUniqueTriple(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx, nil)
	require.NoError(t, err)
	defer db.Close()

	insert := `INSERT INTO corrections (original_text, corrected_text, correction_type) VALUES (?, ?, ?)`
	var res sql.Result
	require.NoError(t, db.Driver.Exec(ctx, insert, []any{"Glucse", "Glucose", "test_name"}, &res))
	assert.Error(t, db.Driver.Exec(ctx, insert, []any{"Glucse", "Glucose", "test_name"}, &res))
	assert.NoError(t, db.Driver.Exec(ctx, insert, []any{"Glucse", "Glucose", "value"}, &res))
}

func TestMemoryCorrectionRepositoryErr(t *testing.T) {
	m := NewMemoryCorrectionRepository()
	m.Err = errors.New("down")
	_, err := m.Upsert(context.Background(), "a", "b", constants.CorrectionValue)
	assert.Error(t, err)
	_, err = m.FindExact(context.Background(), "a", constants.CorrectionValue, 0)
	assert.EqualError(t, err, "down")
}
