package segment

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

// Section is a named bucket of raw lines in document order.
type Section struct {
	Name  string
	Lines []string
}

// Sections keeps buckets in the order their headers were first seen.
type Sections []Section

// Get returns the lines of the named section, or nil.
func (s Sections) Get(name string) []string {
	for _, sec := range s {
		if sec.Name == name {
			return sec.Lines
		}
	}
	return nil
}

func (s Sections) Names() []string {
	out := make([]string, len(s))
	for i, sec := range s {
		out[i] = sec.Name
	}
	return out
}

func (s *Sections) bucket(name string) *Section {
	for i := range *s {
		if (*s)[i].Name == name {
			return &(*s)[i]
		}
	}
	*s = append(*s, Section{Name: name})
	return &(*s)[len(*s)-1]
}

func (s *Sections) merge(other Sections) {
	for _, sec := range other {
		b := s.bucket(sec.Name)
		b.Lines = append(b.Lines, sec.Lines...)
	}
}

type state int

const (
	beforeBody state = iota
	inBody
	inSection
)

var (
	reAllCaps   = regexp.MustCompile(`^[A-Z][A-Z /\-()&_]*$`)
	reNonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	reDigit     = regexp.MustCompile(`[0-9]`)
	rePageBreak = regexp.MustCompile(`(?m)^[ \t]*-{3,}[ \t]*PAGE BREAK[ \t]*-{3,}[ \t]*$`)
)

const (
	minDynamicLen    = 4
	maxDynamicLen    = 50
	minStandaloneLen = 8
	minIndent        = 5
	aliasSlack       = 15
)

// line is what a header rule sees about the current line.
type line struct {
	text       string
	afterStart bool
	indent     int
}

// headerRule reports the slug of a section header, evaluated in order.
type headerRule struct {
	name  string
	match func(l line) (string, bool)
}

// Segmenter splits report text into sections. It is safe for concurrent use.
type Segmenter struct {
	start        []*regexp.Regexp
	stops        []string
	aliases      []rules.SectionAlias
	variants     map[string]string
	resultShapes []*regexp.Regexp
	tableHeader  *regexp.Regexp
	nonSection   *regexp.Regexp
	headers      []headerRule
	logger       *slog.Logger
}

// New compiles the segmenter tables. Tables are expected to be validated.
func New(tables *rules.Tables, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Segmenter{
		variants:    tables.SlugVariants,
		tableHeader: wordsRegexp(tables.TableHeaders),
		nonSection:  wordsRegexp(tables.NonSectionLabels),
		logger:      logger,
	}
	for _, p := range tables.StartMarkers {
		s.start = append(s.start, regexp.MustCompile(p))
	}
	for _, m := range tables.StopMarkers {
		s.stops = append(s.stops, strings.ToLower(m))
	}
	for _, p := range tables.ResultShapes {
		s.resultShapes = append(s.resultShapes, regexp.MustCompile(p))
	}

	// longer keywords first so "SEROLOGY / IMMUNOLOGY" wins over "IMMUNOLOGY"
	s.aliases = append(s.aliases, tables.Sections...)
	sort.SliceStable(s.aliases, func(i, j int) bool {
		return len(s.aliases[i].Keyword) > len(s.aliases[j].Keyword)
	})

	s.headers = []headerRule{
		{name: "known", match: s.knownHeader},
		{name: "dynamic", match: s.dynamicHeader},
	}
	return s
}

// wordsRegexp matches any of words as whole words, case-insensitively. Nil for an empty list.
func wordsRegexp(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), ` `, `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// SegmentDocument splits text into pages, segments each page and merges buckets that share a slug.
func (s *Segmenter) SegmentDocument(text string) Sections {
	var out Sections
	for _, page := range SplitPages(text) {
		out.merge(s.Segment(strings.Split(page, "\n")))
	}
	return out
}

// Segment runs the body state machine over one page of lines.
func (s *Segmenter) Segment(lines []string) Sections {
	var (
		out        Sections
		st         = beforeBody
		current    string
		afterStart bool
	)

	for i, raw := range lines {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		if st == beforeBody {
			if s.isStart(text) {
				st = inBody
				afterStart = true
			}
			continue
		}

		if s.isStop(text) {
			s.logger.Debug("segment.stop", "line", i, "text", text)
			break
		}
		if s.isStart(text) {
			afterStart = true
			continue
		}

		l := line{text: text, afterStart: afterStart, indent: indentOf(raw)}
		afterStart = false

		if s.isTableHeader(text) {
			continue
		}
		if slug, rule, ok := s.classify(l); ok {
			s.logger.Debug("segment.header.detected", "line", i, "rule", rule, "slug", slug)
			out.bucket(slug)
			current = slug
			st = inSection
			continue
		}
		if st == inSection {
			b := out.bucket(current)
			b.Lines = append(b.Lines, raw)
		}
	}
	return out
}

func (s *Segmenter) classify(l line) (slug, rule string, ok bool) {
	for _, h := range s.headers {
		if slug, ok := h.match(l); ok {
			return slug, h.name, true
		}
	}
	return "", "", false
}

func (s *Segmenter) knownHeader(l line) (string, bool) {
	// "HEMATOLOGY:" is a header; "HEMATOLOGY : see attached" is a value line.
	text := strings.TrimRight(l.text, " :")
	if strings.Contains(text, ":") {
		return "", false
	}
	upper := strings.ToUpper(text)
	n := utf8.RuneCountInString(text)
	for _, a := range s.aliases {
		kw := strings.ToUpper(a.Keyword)
		if !strings.Contains(upper, kw) {
			continue
		}
		if l.afterStart || n < utf8.RuneCountInString(kw)+aliasSlack {
			return Slug(a.Slug, s.variants), true
		}
	}
	return "", false
}

func (s *Segmenter) dynamicHeader(l line) (string, bool) {
	n := utf8.RuneCountInString(l.text)
	if n < minDynamicLen || n > maxDynamicLen {
		return "", false
	}
	if !reAllCaps.MatchString(l.text) || reDigit.MatchString(l.text) {
		return "", false
	}
	for _, re := range s.resultShapes {
		if re.MatchString(l.text) {
			return "", false
		}
	}
	if s.isTableHeader(l.text) {
		return "", false
	}
	if s.nonSection != nil && s.nonSection.MatchString(l.text) {
		return "", false
	}
	standalone := !strings.Contains(l.text, ":")
	if !l.afterStart && l.indent < minIndent && !(standalone && n >= minStandaloneLen) {
		return "", false
	}
	slug := Slug(l.text, s.variants)
	return slug, slug != ""
}

func (s *Segmenter) isStart(text string) bool {
	for _, re := range s.start {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Segmenter) isStop(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range s.stops {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isTableHeader matches column header rows such as "Test Result Unit Reference Range".
func (s *Segmenter) isTableHeader(text string) bool {
	return s.tableHeader != nil && s.tableHeader.MatchString(text) && !reDigit.MatchString(text)
}

// Slug lowercases raw, turns non-alphanumeric runs into underscores and applies the variant table.
func Slug(raw string, variants map[string]string) string {
	slug := reNonAlnum.ReplaceAllString(strings.ToLower(raw), "_")
	slug = strings.Trim(slug, "_")
	if v, ok := variants[slug]; ok {
		return v
	}
	return slug
}

// SplitPages splits on form feeds and "--- PAGE BREAK ---" lines.
func SplitPages(text string) []string {
	text = rePageBreak.ReplaceAllString(text, "\f")
	return strings.Split(text, "\f")
}

func indentOf(raw string) int {
	n := 0
	for _, r := range raw {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
