package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

// CorrectionRepository persists learned corrections. Upsert is the only write path.
type CorrectionRepository interface {
	// Upsert creates the triple with frequency 1 and the initial confidence, or bumps
	// frequency by one and confidence by the step (capped) when it already exists.
	Upsert(ctx context.Context, original, corrected string, typ constants.CorrectionType) (*entity.Correction, error)
	// FindExact returns the most frequent correction for text at or above minConfidence,
	// or common.ErrNotFound.
	FindExact(ctx context.Context, text string, typ constants.CorrectionType, minConfidence int) (*entity.Correction, error)
	// TopByFrequency lists up to limit corrections of typ at or above minConfidence, most frequent first.
	TopByFrequency(ctx context.Context, typ constants.CorrectionType, minConfidence, limit int) ([]*entity.Correction, error)
	// List returns corrections of typ (all types when empty), most frequent first.
	List(ctx context.Context, typ constants.CorrectionType, limit int) ([]*entity.Correction, error)
}

var correctionColumns = []string{"id", "original_text", "corrected_text", "correction_type", "frequency", "confidence_score"}

type correctionRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCorrectionRepository(db *DB, logger *slog.Logger) CorrectionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &correctionRepository{db: db, logger: logger}
}

func (r *correctionRepository) Upsert(ctx context.Context, original, corrected string, typ constants.CorrectionType) (*entity.Correction, error) {
	now := time.Now().UTC()
	bumped := fmt.Sprintf("%s.confidence_score + %d", tableCorrections, constants.ConfidenceStep)
	capped := fmt.Sprintf("CASE WHEN %s > %d THEN %d ELSE %s END", bumped, constants.MaxConfidence, constants.MaxConfidence, bumped)

	query, args := r.db.builder().Insert(tableCorrections).
		Columns("original_text", "corrected_text", "correction_type", "frequency", "confidence_score", "created_at", "updated_at").
		Values(original, corrected, string(typ), 1, constants.InitialConfidence, now, now).
		OnConflict(
			entsql.ConflictColumns("original_text", "corrected_text", "correction_type"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Set("frequency", entsql.Expr(tableCorrections+".frequency + 1"))
				u.Set("confidence_score", entsql.Expr(capped))
				u.Set("updated_at", now)
			}),
		).
		Query()

	var res sql.Result
	if err := r.db.Driver.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("repository.correction.upsert.failed", "type", string(typ), "error", err)
		return nil, fmt.Errorf("%w: upsert correction: %v", common.ErrDatabase, err)
	}

	sel := r.selectCorrections().Where(entsql.And(
		entsql.EQ("original_text", original),
		entsql.EQ("corrected_text", corrected),
		entsql.EQ("correction_type", string(typ)),
	))
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: upserted correction not readable", common.ErrDatabase)
	}
	return rows[0], nil
}

func (r *correctionRepository) FindExact(ctx context.Context, text string, typ constants.CorrectionType, minConfidence int) (*entity.Correction, error) {
	sel := r.selectCorrections().
		Where(entsql.And(
			entsql.EQ("original_text", text),
			entsql.EQ("correction_type", string(typ)),
			entsql.GTE("confidence_score", minConfidence),
		)).
		OrderBy(entsql.Desc("frequency"), entsql.Desc("confidence_score"), "id").
		Limit(1)
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	return rows[0], nil
}

func (r *correctionRepository) TopByFrequency(ctx context.Context, typ constants.CorrectionType, minConfidence, limit int) ([]*entity.Correction, error) {
	sel := r.selectCorrections().
		Where(entsql.And(
			entsql.EQ("correction_type", string(typ)),
			entsql.GTE("confidence_score", minConfidence),
		)).
		OrderBy(entsql.Desc("frequency"), "id").
		Limit(limit)
	return r.query(ctx, sel)
}

func (r *correctionRepository) List(ctx context.Context, typ constants.CorrectionType, limit int) ([]*entity.Correction, error) {
	sel := r.selectCorrections().OrderBy(entsql.Desc("frequency"), "id")
	if typ != "" {
		sel.Where(entsql.EQ("correction_type", string(typ)))
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	return r.query(ctx, sel)
}

func (r *correctionRepository) selectCorrections() *entsql.Selector {
	return r.db.builder().Select(correctionColumns...).From(entsql.Table(tableCorrections))
}

func (r *correctionRepository) query(ctx context.Context, sel *entsql.Selector) ([]*entity.Correction, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, query, args, rows); err != nil {
		r.logger.Error("repository.correction.query.failed", "error", err)
		return nil, fmt.Errorf("%w: query corrections: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.Correction
	for rows.Next() {
		var (
			c   entity.Correction
			typ string
		)
		if err := rows.Scan(&c.ID, &c.OriginalText, &c.CorrectedText, &typ, &c.Frequency, &c.ConfidenceScore); err != nil {
			return nil, fmt.Errorf("%w: scan correction: %v", common.ErrDatabase, err)
		}
		c.CorrectionType = constants.CorrectionType(typ)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate corrections: %v", common.ErrDatabase, err)
	}
	return out, nil
}
