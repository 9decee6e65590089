package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

type correctionKey struct {
	original, corrected string
	typ                 constants.CorrectionType
}

// MemoryCorrectionRepository is an in-process CorrectionRepository with the same
// upsert and ordering rules as the SQL one.
type MemoryCorrectionRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[correctionKey]*entity.Correction
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryCorrectionRepository() *MemoryCorrectionRepository {
	return &MemoryCorrectionRepository{rows: map[correctionKey]*entity.Correction{}}
}

func (m *MemoryCorrectionRepository) Upsert(_ context.Context, original, corrected string, typ constants.CorrectionType) (*entity.Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	k := correctionKey{original, corrected, typ}
	c, ok := m.rows[k]
	if !ok {
		m.nextID++
		c = &entity.Correction{
			ID:              m.nextID,
			OriginalText:    original,
			CorrectedText:   corrected,
			CorrectionType:  typ,
			Frequency:       1,
			ConfidenceScore: constants.InitialConfidence,
		}
		m.rows[k] = c
	} else {
		c.Frequency++
		c.ConfidenceScore = min(constants.MaxConfidence, c.ConfidenceScore+constants.ConfidenceStep)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryCorrectionRepository) FindExact(_ context.Context, text string, typ constants.CorrectionType, minConfidence int) (*entity.Correction, error) {
	rows, err := m.filter(func(c *entity.Correction) bool {
		return c.OriginalText == text && c.CorrectionType == typ && c.ConfidenceScore >= minConfidence
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	return rows[0], nil
}

func (m *MemoryCorrectionRepository) TopByFrequency(_ context.Context, typ constants.CorrectionType, minConfidence, limit int) ([]*entity.Correction, error) {
	return m.filter(func(c *entity.Correction) bool {
		return c.CorrectionType == typ && c.ConfidenceScore >= minConfidence
	}, limit)
}

func (m *MemoryCorrectionRepository) List(_ context.Context, typ constants.CorrectionType, limit int) ([]*entity.Correction, error) {
	return m.filter(func(c *entity.Correction) bool {
		return typ == "" || c.CorrectionType == typ
	}, limit)
}

func (m *MemoryCorrectionRepository) filter(keep func(*entity.Correction) bool, limit int) ([]*entity.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*entity.Correction
	for _, c := range m.rows {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryReportRepository is an in-process ReportRepository.
type MemoryReportRepository struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]*entity.LabReport
	order []uuid.UUID
}

func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{rows: map[uuid.UUID]*entity.LabReport{}}
}

func (m *MemoryReportRepository) Create(_ context.Context, r *entity.LabReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, ok := m.rows[r.ID]; ok {
		return fmt.Errorf("%w: duplicate report id %s", common.ErrDatabase, r.ID)
	}
	cp := *r
	m.rows[r.ID] = &cp
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryReportRepository) Get(_ context.Context, id uuid.UUID) (*entity.LabReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryReportRepository) UpdateReport(_ context.Context, id uuid.UUID, status constants.ReportStatus, report json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	r.Status = status
	r.Report = append(json.RawMessage(nil), report...)
	return nil
}

func (m *MemoryReportRepository) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*entity.LabReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entity.LabReport
	for _, id := range m.order {
		r := m.rows[id]
		if r.BatchID != nil && *r.BatchID == batchID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out, nil
}

func (m *MemoryReportRepository) List(_ context.Context, limit int) ([]*entity.LabReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entity.LabReport
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := *m.rows[m.order[i]]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
