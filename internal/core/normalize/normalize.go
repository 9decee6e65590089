package normalize

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

// CorrectionLookup is the read side of the correction store.
type CorrectionLookup interface {
	BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error)
}

var (
	reEllipsis     = regexp.MustCompile(`\.{3,}`)
	reWhitespace   = regexp.MustCompile(`\s+`)
	reTrailingJunk = regexp.MustCompile(`(?:\s*\d+\s*-+)+$`)
	reNoiseChars   = regexp.MustCompile(`(?i)^[.\sew-]+$`)
)

// maxPasses bounds the cleanup fixpoint loop. Every rule removes a whole run in
// one pass, so the loop normally settles in two.
const maxPasses = 16

// Normalizer cleans OCR values. It is safe for concurrent use.
type Normalizer struct {
	noise  []*regexp.Regexp
	terms  *strings.Replacer
	lookup CorrectionLookup
	logger *slog.Logger
}

// New compiles the noise and term tables. lookup may be nil.
func New(tables *rules.Tables, lookup CorrectionLookup, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{lookup: lookup, logger: logger}
	for _, tok := range tables.NoiseTokens {
		if re := noiseTokenRegexp(tok); re != nil {
			n.noise = append(n.noise, re)
		}
	}
	pairs := make([]string, 0, 2*len(tables.TermFixes))
	for _, f := range tables.TermFixes {
		pairs = append(pairs, f.From, f.To)
	}
	n.terms = strings.NewReplacer(pairs...)
	return n
}

// noiseTokenRegexp builds a case-insensitive whole-word matcher. \b only works on
// word-character edges, so tokens like "00-" anchor on whitespace instead.
func noiseTokenRegexp(tok string) *regexp.Regexp {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(tok)
	last, _ := utf8.DecodeLastRuneInString(tok)

	left, right := `(?:^|\s)`, `(?:\s|$)`
	if isWordRune(first) {
		left = `\b`
	}
	if isWordRune(last) {
		right = `\b`
	}
	return regexp.MustCompile(`(?i)` + left + regexp.QuoteMeta(tok) + right)
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// Normalize cleans raw and then consults the correction store. It never fails:
// a store error is treated the same as no correction.
func (n *Normalizer) Normalize(ctx context.Context, raw string, typ constants.CorrectionType) string {
	cleaned := n.Clean(raw)
	if cleaned == "" || n.lookup == nil {
		return cleaned
	}
	corrected, ok, err := n.lookup.BestCorrection(ctx, cleaned, typ)
	if err != nil {
		n.logger.Warn("normalize.lookup.failed", "type", string(typ), "error", err)
		return cleaned
	}
	if ok && corrected != "" {
		n.logger.Debug("normalize.correction.applied", "type", string(typ), "original", cleaned, "corrected", corrected)
		return corrected
	}
	return cleaned
}

// Clean applies the table-driven cleanup without a store lookup. Clean(Clean(s)) == Clean(s).
func (n *Normalizer) Clean(raw string) string {
	s := raw
	for i := 0; i < maxPasses; i++ {
		next := n.cleanOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func (n *Normalizer) cleanOnce(s string) string {
	s = StripControl(s)
	s = n.removeNoise(s)
	s = n.terms.Replace(s)
	s = reEllipsis.ReplaceAllString(s, "")
	s = collapseSpace(s)
	s = reTrailingJunk.ReplaceAllString(s, "")
	s = trimPunct(strings.TrimSpace(s))
	return s
}

// CleanLine is the lighter cleanup applied to a whole test line before it is split:
// noise is removed, ellipsis runs are bounded to three dots and trailing junk is dropped.
func (n *Normalizer) CleanLine(raw string) string {
	s := StripControl(raw)
	s = n.removeNoise(s)
	s = reEllipsis.ReplaceAllString(s, "...")
	s = collapseSpace(s)
	s = reTrailingJunk.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// IsNoise reports whether s is made only of OCR noise characters or tokens.
func (n *Normalizer) IsNoise(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	if reNoiseChars.MatchString(s) {
		return true
	}
	return strings.TrimSpace(collapseSpace(n.removeNoise(s))) == ""
}

func (n *Normalizer) removeNoise(s string) string {
	for _, re := range n.noise {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// StripControl applies NFC and drops control, format, private-use and
// unassigned runes. Tab, CR and LF survive as whitespace.
func StripControl(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case unicode.In(r, unicode.L, unicode.M, unicode.N, unicode.P, unicode.S):
			return r
		case r == ' ' || unicode.Is(unicode.Zs, r):
			return ' '
		default:
			return -1
		}
	}, s)
}

// NewlineNormalize converts CRLF and lone CR to LF.
func NewlineNormalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func collapseSpace(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

func trimPunct(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		if strings.ContainsRune("-+(<>", r) {
			return false
		}
		return isPunctOrSymbol(r) || unicode.IsSpace(r)
	})
	for s != "" {
		r, size := utf8.DecodeLastRuneInString(s)
		if unicode.IsSpace(r) {
			s = s[:len(s)-size]
			continue
		}
		if !isPunctOrSymbol(r) || strings.ContainsRune("-+(<>.%", r) {
			break
		}
		if r == ')' && balanced(s) {
			break
		}
		s = s[:len(s)-size]
	}
	return s
}

func isPunctOrSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
