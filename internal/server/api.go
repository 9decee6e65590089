package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/corrections"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

// TextProcessor parses already extracted text and stores the result.
type TextProcessor interface {
	ProcessText(ctx context.Context, source, text string) (*entity.LabReport, error)
}

type ParseRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type ReportResponse struct {
	ReportID     string          `json:"reportId"`
	BatchID      string          `json:"batchId,omitempty"`
	SourcePath   string          `json:"sourcePath"`
	Status       string          `json:"status"`
	Report       json.RawMessage `json:"report,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

type SubmitRequest struct {
	ReportID    string                   `json:"reportId"`
	Corrections []entity.CorrectionInput `json:"corrections"`
	Snapshot    json.RawMessage          `json:"snapshot"`
}

type SubmitResponse = corrections.SubmitResult

type BestCorrectionRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type BestCorrectionResponse struct {
	Found     bool   `json:"found"`
	Corrected string `json:"corrected,omitempty"`
}

// API holds the operations both transports expose.
type API struct {
	processor   TextProcessor
	reports     repository.ReportRepository
	corrections *corrections.Service
	store       corrections.Store
	logger      *slog.Logger
}

func NewAPI(p TextProcessor, reports repository.ReportRepository, svc *corrections.Service, store corrections.Store, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{processor: p, reports: reports, corrections: svc, store: store, logger: logger}
}

func (a *API) ParseText(ctx context.Context, req ParseRequest) (*ReportResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, common.NewAppError("NO_INPUT", "text is required", common.ErrNoInput)
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	row, err := a.processor.ProcessText(ctx, source, req.Text)
	if err != nil {
		return nil, err
	}
	return toReportResponse(row), nil
}

func (a *API) GetReport(ctx context.Context, id string) (*ReportResponse, error) {
	rid, err := parseReportID(id)
	if err != nil {
		return nil, err
	}
	row, err := a.reports.Get(ctx, rid)
	if err != nil {
		return nil, err
	}
	return toReportResponse(row), nil
}

func (a *API) SubmitCorrections(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	rid, err := parseReportID(req.ReportID)
	if err != nil {
		return nil, err
	}
	snapshot := req.Snapshot
	if len(snapshot) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, snapshot); err != nil {
			return nil, common.NewAppError("INVALID_SNAPSHOT", "snapshot is not valid JSON", fmt.Errorf("%w: %v", common.ErrValidation, err))
		}
		snapshot = buf.Bytes()
	}
	return a.corrections.Submit(ctx, rid, req.Corrections, snapshot)
}

// BestCorrection answers "no correction" when the store is unavailable.
func (a *API) BestCorrection(ctx context.Context, req BestCorrectionRequest) (*BestCorrectionResponse, error) {
	typ, _ := constants.CanonicalizeCorrectionType(req.Type)
	err := common.NewValidator().
		Field("text", req.Text, common.Required).
		Field("type", string(typ), common.OneOf(constants.CorrectionTypes()...)).
		Error()
	if err != nil {
		return nil, err
	}
	got, found, err := a.store.BestCorrection(ctx, req.Text, typ)
	if err != nil {
		a.logger.Warn("server.best_correction.degraded", "error", err)
		return &BestCorrectionResponse{}, nil
	}
	return &BestCorrectionResponse{Found: found, Corrected: got}, nil
}

func parseReportID(id string) (uuid.UUID, error) {
	v := common.NewValidator().Field("reportId", id, common.Required, common.UUID)
	if err := v.Error(); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(id), nil
}

func toReportResponse(r *entity.LabReport) *ReportResponse {
	out := &ReportResponse{
		ReportID:     r.ID.String(),
		SourcePath:   r.SourcePath,
		Status:       string(r.Status),
		Report:       r.Report,
		ErrorMessage: entity.StrVal(r.ErrorMessage),
	}
	if r.BatchID != nil {
		out.BatchID = r.BatchID.String()
	}
	return out
}
