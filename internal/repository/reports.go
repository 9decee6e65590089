package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

type ReportRepository interface {
	Create(ctx context.Context, r *entity.LabReport) error
	Get(ctx context.Context, id uuid.UUID) (*entity.LabReport, error)
	// UpdateReport replaces the stored report JSON and status. common.ErrNotFound when id is unknown.
	UpdateReport(ctx context.Context, id uuid.UUID, status constants.ReportStatus, report json.RawMessage) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.LabReport, error)
	List(ctx context.Context, limit int) ([]*entity.LabReport, error)
}

var reportColumns = []string{"id", "batch_id", "source_path", "status", "report_json", "error_message"}

type reportRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewReportRepository(db *DB, logger *slog.Logger) ReportRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &reportRepository{db: db, logger: logger}
}

func (r *reportRepository) Create(ctx context.Context, rep *entity.LabReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	now := time.Now().UTC()
	query, args := r.db.builder().Insert(tableLabReports).
		Columns("id", "batch_id", "source_path", "status", "report_json", "error_message", "created_at", "updated_at").
		Values(rep.ID.String(), nullUUID(rep.BatchID), rep.SourcePath, string(rep.Status), nullJSON(rep.Report), rep.ErrorMessage, now, now).
		Query()
	var res sql.Result
	if err := r.db.Driver.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("repository.report.create.failed", "report_id", rep.ID, "source_path", rep.SourcePath, "error", err)
		return fmt.Errorf("%w: create report: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *reportRepository) Get(ctx context.Context, id uuid.UUID) (*entity.LabReport, error) {
	rows, err := r.query(ctx, r.selectReports().Where(entsql.EQ("id", id.String())))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	return rows[0], nil
}

func (r *reportRepository) UpdateReport(ctx context.Context, id uuid.UUID, status constants.ReportStatus, report json.RawMessage) error {
	query, args := r.db.builder().Update(tableLabReports).
		Set("status", string(status)).
		Set("report_json", nullJSON(report)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id.String())).
		Query()
	var res sql.Result
	if err := r.db.Driver.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("repository.report.update.failed", "report_id", id, "error", err)
		return fmt.Errorf("%w: update report: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update report: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	return nil
}

func (r *reportRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.LabReport, error) {
	return r.query(ctx, r.selectReports().
		Where(entsql.EQ("batch_id", batchID.String())).
		OrderBy("source_path"))
}

func (r *reportRepository) List(ctx context.Context, limit int) ([]*entity.LabReport, error) {
	sel := r.selectReports().OrderBy(entsql.Desc("created_at"), "source_path")
	if limit > 0 {
		sel.Limit(limit)
	}
	return r.query(ctx, sel)
}

func (r *reportRepository) selectReports() *entsql.Selector {
	return r.db.builder().Select(reportColumns...).From(entsql.Table(tableLabReports))
}

func (r *reportRepository) query(ctx context.Context, sel *entsql.Selector) ([]*entity.LabReport, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, query, args, rows); err != nil {
		r.logger.Error("repository.report.query.failed", "error", err)
		return nil, fmt.Errorf("%w: query reports: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.LabReport
	for rows.Next() {
		var (
			rep                       entity.LabReport
			id, status, source        string
			batchID, body, errMessage sql.NullString
		)
		if err := rows.Scan(&id, &batchID, &source, &status, &body, &errMessage); err != nil {
			return nil, fmt.Errorf("%w: scan report: %v", common.ErrDatabase, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: report id %q: %v", common.ErrDatabase, id, err)
		}
		rep.ID = parsed
		rep.SourcePath = source
		rep.Status = constants.ReportStatus(status)
		if batchID.Valid {
			if b, err := uuid.Parse(batchID.String); err == nil {
				rep.BatchID = &b
			}
		}
		if body.Valid && body.String != "" {
			rep.Report = json.RawMessage(body.String)
		}
		if errMessage.Valid {
			rep.ErrorMessage = &errMessage.String
		}
		out = append(out, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate reports: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
