package infomap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

func lines(s string) []string {
	return strings.Split(strings.TrimPrefix(s, "\n"), "\n")
}

func TestBuildFirstOccurrenceWins(t *testing.T) {
	m := Build(lines(`
Patient ID : PT001868
Lab ID : LT1
Patient ID : PT999999`))

	v, ok := m.Get("Patient ID")
	require.True(t, ok)
	assert.Equal(t, "PT001868", v)
	assert.Equal(t, []string{"Patient ID", "Lab ID"}, m.Keys())
}

func TestBuildKeyOnOneLineValueOnNext(t *testing.T) {
	m := Build(lines(`
ឈ្មោះ/Name

: HORN BUN HACH
Patient ID
: PT001868
Orphan
no colon here`))

	name, _ := m.Get("ឈ្មោះ/Name")
	id, _ := m.Get("Patient ID")
	assert.Equal(t, "HORN BUN HACH", name)
	assert.Equal(t, "PT001868", id)
	assert.Equal(t, 2, m.Len())
}

func TestBuildSkipsValueOnlyAndEmptyPairs(t *testing.T) {
	m := Build(lines(`
: stray value
Gender :
Collected Date : 01/02/2025 09:30`))

	assert.Equal(t, []string{"Collected Date"}, m.Keys())
	v, _ := m.Get("Collected Date")
	assert.Equal(t, "01/02/2025 09:30", v)
}

func TestResolveUsesAliasOrder(t *testing.T) {
	m := Of("Patient ID", "PT001868", "ឈ្មោះ/Name", "HORN BUN HACH", "Name", "other")
	tables := rules.Default()

	id, ok := m.Resolve(tables.Aliases(rules.FieldPatientID))
	require.True(t, ok)
	assert.Equal(t, "PT001868", id)

	name, ok := m.Resolve(tables.Aliases(rules.FieldName))
	require.True(t, ok)
	assert.Equal(t, "HORN BUN HACH", name)

	_, ok = m.Resolve(tables.Aliases(rules.FieldPhone))
	assert.False(t, ok)
}

func TestSetAndDelete(t *testing.T) {
	m := Of("a", "1", "b", "2")
	m.Set("a", "3")
	m.Set("c", "4")
	m.Delete("b")
	m.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, m.Keys())
	v, _ := m.Get("a")
	assert.Equal(t, "3", v)
}

type observed struct{ rules []string }

func (o *observed) record(rule string) { o.rules = append(o.rules, rule) }

func newExtractor(o *observed) *Extractor {
	return NewExtractor(rules.Default(), nil, WithRepairObserver(o.record))
}

func TestExtractExcludesHospitalPhone(t *testing.T) {
	o := &observed{}
	m := newExtractor(o).Extract(lines(`
ទូរស័ព្ទ/Phone : 097 840 47 89
ទូរស័ព្ទ/Phone : 012 345 678`))

	v, ok := m.Get("ទូរស័ព្ទ/Phone")
	require.True(t, ok)
	assert.Equal(t, "012 345 678", v)
	assert.Contains(t, o.rules, "hospital-phone")
}

func TestExtractScansMissingFields(t *testing.T) {
	o := &observed{}
	e := newExtractor(o)
	text := lines(`
HOSPITAL 097 840 47 89
Ref PT001868 / LT20250101
Age line : 58 Y
Contact : 0978404789
Contact2 : 012345678`)

	m := e.Extract(text)

	id, _ := e.Resolve(m, rules.FieldPatientID)
	lab, _ := e.Resolve(m, rules.FieldLabID)
	age, _ := e.Resolve(m, rules.FieldAge)
	phone, _ := e.Resolve(m, rules.FieldPhone)
	assert.Equal(t, "PT001868", id)
	assert.Equal(t, "LT20250101", lab)
	assert.Equal(t, "58 Y", age)
	assert.Equal(t, "012345678", phone)
	assert.ElementsMatch(t, []string{"age-scan", "patient-id-scan", "lab-id-scan", "phone-scan"}, o.rules)
}

func TestExtractSwapsNameAndPatientID(t *testing.T) {
	o := &observed{}
	e := newExtractor(o)
	m := e.Extract(lines(`
Name : PT001868
Patient ID : HORN BUN HACH`))

	name, _ := e.Resolve(m, rules.FieldName)
	id, _ := e.Resolve(m, rules.FieldPatientID)
	assert.Equal(t, "HORN BUN HACH", name)
	assert.Equal(t, "PT001868", id)
	assert.Contains(t, o.rules, "name-patient-id-swap")
}

func TestExtractMovesMisplacedName(t *testing.T) {
	o := &observed{}
	e := newExtractor(o)
	m := e.Extract(lines(`
Requested Date : HORN BUN HACH
Printed 01/01/2025 08:00
Request received 02/01/2025 09:15`))

	name, _ := e.Resolve(m, rules.FieldName)
	requested, _ := e.Resolve(m, rules.FieldRequestedDate)
	assert.Equal(t, "HORN BUN HACH", name)
	assert.Equal(t, "02/01/2025 09:15", requested)
	assert.Contains(t, o.rules, "misplaced-name")
}

func TestExtractFixesInvalidDates(t *testing.T) {
	o := &observed{}
	e := newExtractor(o)
	m := e.Extract(lines(`
Collected Date : Female
Analysis Date : ???
Sample collected 03/01/2025 07:45
Other 04/01/2025 10:00`))

	gender, _ := e.Resolve(m, rules.FieldGender)
	collected, _ := e.Resolve(m, rules.FieldCollectedDate)
	analysis, _ := e.Resolve(m, rules.FieldAnalysisDate)
	assert.Equal(t, "Female", gender)
	assert.Equal(t, "03/01/2025 07:45", collected)
	assert.Equal(t, "04/01/2025 10:00", analysis, "last field falls back to the last date")
	assert.Equal(t, []string{"invalid-date", "invalid-date"}, o.rules)
}

func TestExtractDropsUnrecoverableDate(t *testing.T) {
	e := newExtractor(&observed{})
	m := e.Extract(lines(`Requested Date : soon`))

	_, ok := e.Resolve(m, rules.FieldRequestedDate)
	assert.False(t, ok)
}

func TestExtractLeavesCleanDocumentAlone(t *testing.T) {
	o := &observed{}
	e := newExtractor(o)
	m := e.Extract(lines(`
ឈ្មោះ/Name : HORN BUN HACH
Patient ID : PT001868
អាយុ/Age : 58 Y
ភេទ/Gender : Male
ទូរស័ព្ទ/Phone : 012345678
Lab ID : LT1
Requested Date : 01/01/2025 08:00`))

	assert.Empty(t, o.rules)
	assert.Equal(t, 7, m.Len())
}
