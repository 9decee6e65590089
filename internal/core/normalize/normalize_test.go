package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

type fakeLookup struct {
	corrections map[string]string
	err         error
	calls       int
}

func (f *fakeLookup) BestCorrection(_ context.Context, text string, _ constants.CorrectionType) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	c, ok := f.corrections[text]
	return c, ok, nil
}

func newNormalizer(lookup CorrectionLookup) *Normalizer {
	return New(rules.Default(), lookup, nil)
}

func TestNormalizeCleanup(t *testing.T) {
	n := newNormalizer(nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"control chars", "Glu\x00cose\x07", "Glucose"},
		{"noise tokens", "eee Glucose wee", "Glucose"},
		{"noise case insensitive", "EEE Urea OS", "Urea"},
		{"noise not inside words", "Weekly Cosine", "Weekly Cosine"},
		{"dash noise token", "00- Urea", "Urea"},
		{"term fix", "Cholesterole Total", "Cholesterol Total"},
		{"term fix with space", "Gamm GT", "Gamma GT"},
		{"ellipsis removed", "Urea.......", "Urea"},
		{"whitespace collapsed", "Total   \t Protein", "Total Protein"},
		{"trailing digit dash", "Albumin 12 --", "Albumin"},
		{"leading punctuation", ":: ,Sodium", "Sodium"},
		{"trailing punctuation", "Sodium ;:", "Sodium"},
		{"keeps comparison prefix", "<0.5", "<0.5"},
		{"keeps trailing dot and percent", "5.2 %", "5.2 %"},
		{"keeps balanced paren", "Widal (TH)", "Widal (TH)"},
		{"drops unbalanced paren", "Widal TH)", "Widal TH"},
		{"khmer text survives", "ហោ HORN", "ហោ HORN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(ctx, tc.in, constants.CorrectionTestName))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := newNormalizer(nil)
	ctx := context.Background()

	inputs := []string{
		"eee Cholesterole  Total ..... 00-",
		"Gamm  GT 5-",
		"  ((Widal (TH)))) ;",
		"Creatinine, serum : 0.9 mg/dL (0.9 - 1.1)",
		"wee os we cece",
		"Urea 12 - 3 --",
		". . . Sodium , , .",
		"00- 00- 00- Potassium",
		"Urea 1-1-1-1-1-1-1-1-",
		"x 1- 2- 3- 4- 5- 6-",
	}
	for _, in := range inputs {
		once := n.Normalize(ctx, in, constants.CorrectionValue)
		twice := n.Normalize(ctx, once, constants.CorrectionValue)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestNormalizeStripsWholeTrailingRun(t *testing.T) {
	n := newNormalizer(nil)
	assert.Equal(t, "Urea", n.Clean("Urea 1-1-1-1-1-1-1-1-"))
	assert.Equal(t, "x", n.Clean("x 1- 2- 3- 4- 5- 6-"))
}

func TestNormalizeUsesCorrection(t *testing.T) {
	lookup := &fakeLookup{corrections: map[string]string{"GLUC E L": "GLUCOSE"}}
	n := newNormalizer(lookup)

	got := n.Normalize(context.Background(), "  GLUC E L ...", constants.CorrectionTestName)

	assert.Equal(t, "GLUCOSE", got)
	assert.Equal(t, 1, lookup.calls)
}

func TestNormalizeStoreFailureDegrades(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	n := newNormalizer(lookup)

	got := n.Normalize(context.Background(), "Glucoze", constants.CorrectionTestName)

	assert.Equal(t, "Glucose", got)
}

func TestNormalizeSkipsLookupForEmpty(t *testing.T) {
	lookup := &fakeLookup{}
	n := newNormalizer(lookup)

	assert.Equal(t, "", n.Normalize(context.Background(), "eee", constants.CorrectionValue))
	assert.Zero(t, lookup.calls)
}

func TestCleanLineBoundsEllipsis(t *testing.T) {
	n := newNormalizer(nil)

	assert.Equal(t, "Widal (TH) ... : NEGATIVE", n.CleanLine("Widal (TH) ........ : NEGATIVE"))
	assert.Equal(t, "Urea : 30", n.CleanLine("eee Urea : 30 12-"))
	assert.Equal(t, "", n.CleanLine("eee wee os"))
}

func TestIsNoise(t *testing.T) {
	n := newNormalizer(nil)

	assert.True(t, n.IsNoise("eee wee os"))
	assert.True(t, n.IsNoise(". . e w"))
	assert.True(t, n.IsNoise(""))
	assert.False(t, n.IsNoise("Glucose"))
}

func TestStripControlRepairsInvalidUTF8(t *testing.T) {
	got := StripControl("Ure\xffa\u200b")
	require.Equal(t, "Urea", got)
}

func TestNewlineNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\nc", NewlineNormalize("a\r\nb\rc"))
}
