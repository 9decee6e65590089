package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Repair kinds understood by the InfoMap repairer.
const (
	RepairExclude       = "exclude"
	RepairScan          = "scan"
	RepairSwap          = "swap"
	RepairMisplacedName = "misplaced_name"
	RepairInvalidDate   = "invalid_date"
)

// Logical field names used by alias lists and repair rules.
const (
	FieldName          = "name"
	FieldPatientID     = "patient_id"
	FieldAge           = "age"
	FieldGender        = "gender"
	FieldPhone         = "phone"
	FieldLabID         = "lab_id"
	FieldRequestedBy   = "requested_by"
	FieldRequestedDate = "requested_date"
	FieldCollectedDate = "collected_date"
	FieldAnalysisDate  = "analysis_date"
	FieldValidatedBy   = "validated_by"
)

// Tables is the full set of data-driven OCR rules.
type Tables struct {
	NoiseTokens      []string          `yaml:"noise_tokens"`
	TermFixes        []TermFix         `yaml:"term_fixes"`
	StartMarkers     []string          `yaml:"start_markers"`
	StopMarkers      []string          `yaml:"stop_markers"`
	Sections         []SectionAlias    `yaml:"sections"`
	SlugVariants     map[string]string `yaml:"slug_variants"`
	NonSectionLabels []string          `yaml:"non_section_labels"`
	TableHeaders     []string          `yaml:"table_headers"`
	ResultShapes     []string          `yaml:"result_shapes"`
	TextualResults   []string          `yaml:"textual_results"`
	PatientFields    PatientFields     `yaml:"patient_fields"`
	LabFields        LabFields         `yaml:"lab_fields"`
	HospitalPhones   []string          `yaml:"hospital_phones"`
	Repairs          []Repair          `yaml:"repairs"`
}

type TermFix struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SectionAlias maps a header keyword (matched case-insensitively as a substring) to a slug.
type SectionAlias struct {
	Keyword string `yaml:"keyword"`
	Slug    string `yaml:"slug"`
}

type PatientFields struct {
	Name      []string `yaml:"name"`
	PatientID []string `yaml:"patient_id"`
	Age       []string `yaml:"age"`
	Gender    []string `yaml:"gender"`
	Phone     []string `yaml:"phone"`
}

type LabFields struct {
	LabID         []string `yaml:"lab_id"`
	RequestedBy   []string `yaml:"requested_by"`
	RequestedDate []string `yaml:"requested_date"`
	CollectedDate []string `yaml:"collected_date"`
	AnalysisDate  []string `yaml:"analysis_date"`
	ValidatedBy   []string `yaml:"validated_by"`
}

// Repair is one entry of the known-systematic-misread table.
type Repair struct {
	Name    string      `yaml:"name"`
	Kind    string      `yaml:"kind"`
	Field   string      `yaml:"field"`
	Other   string      `yaml:"other,omitempty"`
	Pattern string      `yaml:"pattern,omitempty"`
	Recover string      `yaml:"recover,omitempty"`
	Values  []string    `yaml:"values,omitempty"`
	Dates   []DateField `yaml:"dates,omitempty"`
}

// DateField ties a date field to the keyword expected on the line that carries its value.
type DateField struct {
	Field   string `yaml:"field"`
	Context string `yaml:"context"`
}

// Default returns a freshly parsed copy of the embedded tables.
func Default() *Tables {
	t, err := Parse(defaultRules, nil)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded rules.yaml is invalid: %v", err))
	}
	return t
}

// LoadFile reads a YAML file over the embedded defaults. Keys absent from the
// file keep their default values, lists present in the file replace the default
// list and slug_variants entries are merged.
func LoadFile(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data, Default())
}

// Parse unmarshals data on top of base (or an empty table when base is nil) and validates it.
func Parse(data []byte, base *Tables) (*Tables, error) {
	t := base
	if t == nil {
		t = &Tables{}
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate compiles every pattern and checks table consistency.
func (t *Tables) Validate() error {
	var patterns []string
	patterns = append(patterns, t.StartMarkers...)
	patterns = append(patterns, t.ResultShapes...)
	for _, r := range t.Repairs {
		if r.Pattern != "" {
			patterns = append(patterns, r.Pattern)
		}
		if r.Recover != "" {
			patterns = append(patterns, r.Recover)
		}
	}
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("rules: bad pattern %q: %w", p, err)
		}
	}

	if len(t.StartMarkers) == 0 {
		return fmt.Errorf("rules: at least one start marker is required")
	}
	for _, f := range t.TermFixes {
		if f.From == "" {
			return fmt.Errorf("rules: term fix with empty source")
		}
		// a replacement containing its own source would keep growing on every pass
		if strings.Contains(f.To, f.From) {
			return fmt.Errorf("rules: term fix %q -> %q is not stable", f.From, f.To)
		}
	}
	for _, s := range t.Sections {
		if s.Keyword == "" || s.Slug == "" {
			return fmt.Errorf("rules: section alias needs keyword and slug")
		}
	}
	for _, r := range t.Repairs {
		if err := r.validate(t); err != nil {
			return err
		}
	}
	return nil
}

func (r Repair) validate(t *Tables) error {
	if t.Aliases(r.Field) == nil {
		return fmt.Errorf("rules: repair %q: unknown field %q", r.Name, r.Field)
	}
	switch r.Kind {
	case RepairExclude:
		if len(r.Values) == 0 {
			return fmt.Errorf("rules: repair %q: exclude needs values", r.Name)
		}
	case RepairScan:
		if r.Pattern == "" {
			return fmt.Errorf("rules: repair %q: scan needs a pattern", r.Name)
		}
	case RepairSwap:
		if r.Pattern == "" || t.Aliases(r.Other) == nil {
			return fmt.Errorf("rules: repair %q: swap needs a pattern and a known other field", r.Name)
		}
	case RepairMisplacedName, RepairInvalidDate:
		if r.Pattern == "" || r.Recover == "" || len(r.Dates) == 0 {
			return fmt.Errorf("rules: repair %q: %s needs pattern, recover and dates", r.Name, r.Kind)
		}
		for _, d := range r.Dates {
			if t.Aliases(d.Field) == nil {
				return fmt.Errorf("rules: repair %q: unknown date field %q", r.Name, d.Field)
			}
		}
	default:
		return fmt.Errorf("rules: repair %q: unknown kind %q", r.Name, r.Kind)
	}
	return nil
}

// Aliases returns the ordered label aliases for a logical field, or nil if the field is unknown.
func (t *Tables) Aliases(field string) []string {
	switch field {
	case FieldName:
		return nonNil(t.PatientFields.Name)
	case FieldPatientID:
		return nonNil(t.PatientFields.PatientID)
	case FieldAge:
		return nonNil(t.PatientFields.Age)
	case FieldGender:
		return nonNil(t.PatientFields.Gender)
	case FieldPhone:
		return nonNil(t.PatientFields.Phone)
	case FieldLabID:
		return nonNil(t.LabFields.LabID)
	case FieldRequestedBy:
		return nonNil(t.LabFields.RequestedBy)
	case FieldRequestedDate:
		return nonNil(t.LabFields.RequestedDate)
	case FieldCollectedDate:
		return nonNil(t.LabFields.CollectedDate)
	case FieldAnalysisDate:
		return nonNil(t.LabFields.AnalysisDate)
	case FieldValidatedBy:
		return nonNil(t.LabFields.ValidatedBy)
	}
	return nil
}

// IsTableHeaderWord reports whether w is exactly one of the table header words.
func (t *Tables) IsTableHeaderWord(w string) bool {
	w = strings.TrimSpace(w)
	for _, h := range t.TableHeaders {
		if strings.EqualFold(h, w) {
			return true
		}
	}
	return false
}

// known fields with an empty alias list still resolve to a non-nil slice
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
