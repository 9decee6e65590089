package corrections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

const maxCorrectionText = 500

// SubmitResult counts what a submission did: pairs learned and no-op pairs skipped.
type SubmitResult struct {
	Learned int `json:"learned"`
	Skipped int `json:"skipped"`
}

// Service handles reviewer submissions for a stored report.
type Service struct {
	store   Store
	reports repository.ReportRepository
	logger  *slog.Logger
}

func NewService(store Store, reports repository.ReportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, reports: reports, logger: logger}
}

// Submit validates the corrected snapshot and every pair, learns each pair and
// stores the snapshot with status CORRECTED. Nothing is learned if validation fails.
func (s *Service) Submit(ctx context.Context, reportID uuid.UUID, inputs []entity.CorrectionInput, snapshot json.RawMessage) (*SubmitResult, error) {
	if _, err := s.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, common.NewAppError("INVALID_SNAPSHOT", "corrected snapshot is required", common.ErrValidation)
	}
	if err := report.ValidateJSON(snapshot); err != nil {
		return nil, common.NewAppError("INVALID_SNAPSHOT", "corrected snapshot does not match the report schema",
			fmt.Errorf("%w: %v", common.ErrValidation, err))
	}

	types, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{}
	for i, in := range inputs {
		learned, err := s.store.Learn(ctx, in.Original, in.Corrected, types[i])
		if err != nil {
			s.logger.Error("corrections.submit.failed", "report_id", reportID, "index", i, "error", err)
			return nil, err
		}
		if learned {
			res.Learned++
		} else {
			res.Skipped++
		}
	}

	if err := s.reports.UpdateReport(ctx, reportID, constants.ReportStatusCorrected, snapshot); err != nil {
		return nil, err
	}
	s.logger.Info("corrections.submit.ok",
		"request_id", common.RequestIDFromContext(ctx),
		"report_id", reportID,
		"learned", res.Learned,
		"skipped", res.Skipped,
	)
	return res, nil
}

// validateInputs canonicalizes the loose type names clients send and checks every pair.
func validateInputs(inputs []entity.CorrectionInput) ([]constants.CorrectionType, error) {
	v := common.NewValidator()
	types := make([]constants.CorrectionType, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("corrections[%d]", i)
		typ := in.Type
		if t, ok := constants.CanonicalizeCorrectionType(in.Type); ok {
			typ = string(t)
		}
		types[i] = constants.CorrectionType(typ)
		v.Field(field+".original", in.Original, common.Required, common.MaxLength(maxCorrectionText)).
			Field(field+".corrected", in.Corrected, common.Required, common.MaxLength(maxCorrectionText)).
			Field(field+".type", typ, common.OneOf(constants.CorrectionTypes()...))
	}
	if err := v.Error(); err != nil {
		return nil, err
	}
	return types, nil
}
