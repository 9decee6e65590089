package entity

import "github.com/joseph-ayodele/lab-report-parser/constants"

// Correction is a learned original -> corrected mapping.
type Correction struct {
	ID              int64                    `json:"id"`
	OriginalText    string                   `json:"original_text"`
	CorrectedText   string                   `json:"corrected_text"`
	CorrectionType  constants.CorrectionType `json:"correction_type"`
	Frequency       int                      `json:"frequency"`
	ConfidenceScore int                      `json:"confidence_score"`
}

// CorrectionInput is a single reviewer edit as submitted by a verification client.
type CorrectionInput struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Type      string `json:"type"`
}
