package constants

import (
	"strings"
)

type CorrectionType string

const (
	CorrectionTestName    CorrectionType = "test_name"
	CorrectionValue       CorrectionType = "value"
	CorrectionPatientInfo CorrectionType = "patient_info"
)

var allCorrectionTypes = []CorrectionType{
	CorrectionTestName,
	CorrectionValue,
	CorrectionPatientInfo,
}

// CorrectionTypes returns the stored string values, in declaration order.
func CorrectionTypes() []string {
	result := make([]string, len(allCorrectionTypes))
	for i, t := range allCorrectionTypes {
		result[i] = string(t)
	}
	return result
}

// Valid reports whether t is one of the stored correction types.
func (t CorrectionType) Valid() bool {
	for _, c := range allCorrectionTypes {
		if t == c {
			return true
		}
	}
	return false
}

// CanonicalizeCorrectionType maps loose client input ("Test Name", "result",
// "patient") onto a stored correction type.
func CanonicalizeCorrectionType(input string) (CorrectionType, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	synonyms := map[string]CorrectionType{
		"testname": CorrectionTestName,
		"test":     CorrectionTestName,
		"name":     CorrectionTestName,
		"result":   CorrectionValue,
		"values":   CorrectionValue,
		"patient":  CorrectionPatientInfo,
		"lab_info": CorrectionPatientInfo,
	}

	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	for _, t := range allCorrectionTypes {
		if normalized == string(t) {
			return t, true
		}
	}

	return "", false
}

// Correction lifecycle and lookup thresholds.
const (
	InitialConfidence = 85
	ConfidenceStep    = 2
	MaxConfidence     = 100

	ExactMatchMinConfidence = 80
	FuzzyMinConfidence      = 85
	FuzzyCandidateLimit     = 20
	SimilarityThreshold     = 85.0
)
