package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTablesAreValid(t *testing.T) {
	tables := Default()

	require.NoError(t, tables.Validate())
	assert.Contains(t, tables.NoiseTokens, "eee")
	assert.Contains(t, tables.StopMarkers, "Validated By")
	assert.Equal(t, "biochemistry", tables.SlugVariants["bio_chimistry"])
	assert.Equal(t, []string{"Patient ID", "Patient Id", "PatientID"}, tables.Aliases(FieldPatientID))
	assert.Len(t, tables.HospitalPhones, 3)

	var exclude *Repair
	for i := range tables.Repairs {
		if tables.Repairs[i].Kind == RepairExclude {
			exclude = &tables.Repairs[i]
		}
	}
	require.NotNil(t, exclude)
	assert.Equal(t, tables.HospitalPhones, exclude.Values)
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.NoiseTokens[0] = "changed"
	a.SlugVariants["x"] = "y"

	assert.Equal(t, "eee", b.NoiseTokens[0])
	assert.NotContains(t, b.SlugVariants, "x")
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
noise_tokens: [zzz]
slug_variants:
  chem: biochemistry
`), 0o644))

	tables, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz"}, tables.NoiseTokens)
	assert.Equal(t, "biochemistry", tables.SlugVariants["chem"])
	assert.Equal(t, "biochemistry", tables.SlugVariants["bio_chimistry"])
	assert.NotEmpty(t, tables.Sections)
}

func TestLoadFileEmptyPathUsesDefaults(t *testing.T) {
	tables, err := LoadFile("  ")
	require.NoError(t, err)
	assert.Equal(t, Default().StopMarkers, tables.StopMarkers)
}

func TestValidateRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"bad regex":       "start_markers: ['(']",
		"no start marker": "start_markers: []",
		"unstable fix":    "term_fixes: [{from: Gluc, to: Glucose}]",
		"unknown kind":    "repairs: [{name: x, kind: guess, field: name}]",
		"unknown field":   "repairs: [{name: x, kind: scan, field: shoe_size, pattern: 'x'}]",
		"swap no other":   "repairs: [{name: x, kind: swap, field: name, pattern: 'x'}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), Default())
			assert.Error(t, err)
		})
	}
}

func TestAliasesUnknownField(t *testing.T) {
	assert.Nil(t, Default().Aliases("nope"))
	assert.NotNil(t, (&Tables{}).Aliases(FieldName))
}

func TestIsTableHeaderWord(t *testing.T) {
	tables := Default()
	assert.True(t, tables.IsTableHeaderWord(" Result "))
	assert.True(t, tables.IsTableHeaderWord("reference range"))
	assert.False(t, tables.IsTableHeaderWord("Glucose"))
}
