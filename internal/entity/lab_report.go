package entity

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
)

// LabReport is a persisted parse outcome for a single source document.
type LabReport struct {
	ID           uuid.UUID              `json:"id"`
	BatchID      *uuid.UUID             `json:"batch_id,omitempty"`
	SourcePath   string                 `json:"source_path"`
	Status       constants.ReportStatus `json:"status"`
	Report       json.RawMessage        `json:"report,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
}

// Decode unmarshals the stored report JSON.
func (l *LabReport) Decode() (*Report, error) {
	if len(l.Report) == 0 {
		return nil, nil
	}
	var r Report
	if err := json.Unmarshal(l.Report, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
