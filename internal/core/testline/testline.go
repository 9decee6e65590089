package testline

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/normalize"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

const minLineLen = 3

// separators are tried in order; the first that yields two non-empty parts wins.
var separators = []*regexp.Regexp{
	regexp.MustCompile(`\.{2,}\s*:\s*`),
	regexp.MustCompile(`\.{2,}`),
	regexp.MustCompile(`:`),
}

var (
	reLeadingNumber = regexp.MustCompile(`^([<>]=?)?\s*(\d+(?:,\d{3})*(?:\.\d+)?)(.*)$`)
	reBareNumber    = regexp.MustCompile(`^(?:[<>]=?\s*)?\d+(?:,\d{3})*(?:\.\d+)?$`)
	reLooseRange    = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:-|–|to)\s*\d+(?:\.\d+)?`)
	reFlag          = regexp.MustCompile(`^[A-Z]$`)
	reUnit          = regexp.MustCompile(`^[0-9A-Za-zµμ%/^.*]+$`)
	reUnitLetter    = regexp.MustCompile(`[A-Za-zµμ%]`)
)

// Value is what a value strategy extracts from the right-hand side of a test line.
type Value struct {
	Result         string
	Unit           string
	ReferenceRange string
	Flag           string
}

// strategy is one entry of the ordered value extraction list.
type strategy struct {
	name    string
	extract func(v string) (Value, bool)
}

// Parser turns section lines into test results. It is safe for concurrent use.
type Parser struct {
	tables     *rules.Tables
	norm       *normalize.Normalizer
	textual    *regexp.Regexp
	strategies []strategy
	logger     *slog.Logger
}

func New(tables *rules.Tables, norm *normalize.Normalizer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		tables:  tables,
		norm:    norm,
		textual: textualRegexp(tables.TextualResults),
		logger:  logger,
	}
	p.strategies = []strategy{
		{name: "textual", extract: p.textualValue},
		{name: "measured", extract: measuredValue},
		{name: "number", extract: bareNumber},
		{name: "token", extract: firstToken},
	}
	return p
}

// textualRegexp anchors the vocabulary at the start of the value, longest phrase first
// so "NOT DETECTED" is preferred over "DETECTED".
func textualRegexp(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), ` `, `\s+`)
	}
	return regexp.MustCompile(`(?i)^(` + strings.Join(quoted, "|") + `)\b`)
}

// ParseLines parses every line of one section. Lines that do not parse are dropped.
func (p *Parser) ParseLines(ctx context.Context, category string, lines []string) []entity.TestResult {
	out := make([]entity.TestResult, 0, len(lines))
	for _, raw := range lines {
		if r, ok := p.ParseLine(ctx, category, raw); ok {
			out = append(out, r)
		}
	}
	return out
}

// ParseLine runs clean, split, validate and extract on a single line.
func (p *Parser) ParseLine(ctx context.Context, category, raw string) (entity.TestResult, bool) {
	line := p.norm.CleanLine(raw)
	if utf8.RuneCountInString(line) < minLineLen {
		return entity.TestResult{}, false
	}

	namePart, valuePart, ok := Split(line)
	if !ok {
		p.logger.Debug("testline.dropped", "reason", "no_separator", "line", line)
		return entity.TestResult{}, false
	}

	name := p.norm.Normalize(ctx, strings.Trim(namePart, " .:"), constants.CorrectionTestName)
	if !p.validName(name) {
		p.logger.Debug("testline.dropped", "reason", "invalid_name", "line", line)
		return entity.TestResult{}, false
	}

	v, via, ok := p.ExtractValue(valuePart)
	if !ok {
		p.logger.Debug("testline.dropped", "reason", "no_value", "line", line)
		return entity.TestResult{}, false
	}
	result := p.norm.Normalize(ctx, v.Result, constants.CorrectionValue)
	if result == "" {
		p.logger.Debug("testline.dropped", "reason", "empty_result", "line", line, "strategy", via)
		return entity.TestResult{}, false
	}

	return entity.TestResult{
		Category:       category,
		TestName:       name,
		Result:         result,
		Unit:           v.Unit,
		ReferenceRange: v.ReferenceRange,
		Flag:           entity.StrPtr(v.Flag),
	}, true
}

// Split separates a cleaned line into its name and value parts.
func Split(line string) (name, value string, ok bool) {
	for _, re := range separators {
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		name = strings.TrimSpace(line[:loc[0]])
		value = strings.TrimSpace(line[loc[1]:])
		if name != "" && value != "" {
			return name, value, true
		}
	}
	return "", "", false
}

func (p *Parser) validName(name string) bool {
	if utf8.RuneCountInString(name) <= 1 {
		return false
	}
	if strings.IndexFunc(name, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	if strings.IndexFunc(name, unicode.IsLetter) < 0 {
		return false
	}
	if p.norm.IsNoise(name) {
		return false
	}
	return !p.tables.IsTableHeaderWord(name)
}

// ExtractValue evaluates the strategies in order and reports which one matched.
func (p *Parser) ExtractValue(v string) (Value, string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Value{}, "", false
	}
	for _, s := range p.strategies {
		if out, ok := s.extract(v); ok && out.Result != "" {
			return out, s.name, true
		}
	}
	return Value{}, "", false
}

func (p *Parser) textualValue(v string) (Value, bool) {
	if p.textual == nil {
		return Value{}, false
	}
	m := p.textual.FindStringSubmatch(v)
	if m == nil {
		return Value{}, false
	}
	return Value{Result: strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))}, true
}

// measuredValue handles "<number> <unit>? (<range>)? <flag>?".
func measuredValue(v string) (Value, bool) {
	m := reLeadingNumber.FindStringSubmatch(v)
	if m == nil || strings.TrimSpace(m[3]) == "" {
		return Value{}, false
	}
	out := Value{Result: m[1] + m[2]}
	rest := strings.TrimSpace(m[3])

	outside := rest
	if rng, before, after, ok := firstParens(rest); ok {
		out.ReferenceRange = rng
		outside = before + " " + after
	} else if loc := reLooseRange.FindStringIndex(rest); loc != nil {
		out.ReferenceRange = strings.TrimSpace(rest[loc[0]:loc[1]])
		outside = rest[:loc[0]] + " " + rest[loc[1]:]
	}

	tokens := strings.Fields(outside)
	if n := len(tokens); n > 0 && reFlag.MatchString(tokens[n-1]) {
		out.Flag = tokens[n-1]
		tokens = tokens[:n-1]
	}
	if len(tokens) > 0 && looksLikeUnit(tokens[0]) {
		out.Unit = tokens[0]
	}
	return out, true
}

func bareNumber(v string) (Value, bool) {
	if !reBareNumber.MatchString(v) {
		return Value{}, false
	}
	return Value{Result: strings.ReplaceAll(v, " ", "")}, true
}

func firstToken(v string) (Value, bool) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return Value{}, false
	}
	return Value{Result: fields[0]}, true
}

// firstParens returns the content of the first balanced parenthesis group and the
// text around it. An unclosed group runs to the end of s.
func firstParens(s string) (inner, before, after string, ok bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", "", "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[open+1 : i]), s[:open], s[i+1:], true
			}
		}
	}
	return strings.TrimSpace(s[open+1:]), s[:open], "", true
}

func looksLikeUnit(tok string) bool {
	return utf8.RuneCountInString(tok) <= 15 && reUnit.MatchString(tok) && reUnitLetter.MatchString(tok)
}
