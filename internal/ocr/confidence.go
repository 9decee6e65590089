package ocr

import (
	"regexp"
	"strings"
)

var (
	reLabTitle = regexp.MustCompile(`\blab(oratory)?\s+report\b`)
	reDate     = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	reUnit     = regexp.MustCompile(`\b(mg/dl|mmol/l|g/dl|g/l|u/l|iu/l|umol/l|/ul|fl|pg)\b|10\^\d`)
	rePatient  = regexp.MustCompile(`\bpatient\b|\bname\b`)
)

// heuristicConfidence scores decoded text by how much it looks like a lab report.
func heuristicConfidence(txt string) float32 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	if reLabTitle.MatchString(txtL) {
		score += 0.2
	}
	if reDate.MatchString(txtL) {
		score += 0.15
	}
	if reUnit.MatchString(txtL) {
		score += 0.2
	}
	if rePatient.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
