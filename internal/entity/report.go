package entity

// Report is the structured record produced by one parse run.
type Report struct {
	PatientInfo PatientInfo  `json:"patientInfo"`
	LabInfo     LabInfo      `json:"labInfo"`
	TestResults []TestResult `json:"testResults"`
}

// PatientInfo fields are nil when no alias resolved; they are never omitted.
type PatientInfo struct {
	Name      *string `json:"name"`
	PatientID *string `json:"patientId"`
	Age       *string `json:"age"`
	Gender    *string `json:"gender"`
	Phone     *string `json:"phone"`
}

type LabInfo struct {
	LabID         *string `json:"labId"`
	RequestedBy   *string `json:"requestedBy"`
	RequestedDate *string `json:"requestedDate"`
	CollectedDate *string `json:"collectedDate"`
	AnalysisDate  *string `json:"analysisDate"`
	ValidatedBy   *string `json:"validatedBy"`
}

// TestResult is one parsed test line. Category is the section slug it was captured under.
type TestResult struct {
	Category       string  `json:"category"`
	TestName       string  `json:"testName"`
	Result         string  `json:"result"`
	Unit           string  `json:"unit"`
	ReferenceRange string  `json:"referenceRange"`
	Flag           *string `json:"flag"`
}

// Categories returns the distinct categories in first-seen order.
func (r *Report) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range r.TestResults {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal dereferences p, returning "" for nil.
func StrVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
