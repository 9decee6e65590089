package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

// Document is the subset of a document-AI processing response the flattener reads.
// Both the REST (camelCase) and client-library (snake_case) spellings are accepted.
type Document struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
	Pages    []Page   `json:"pages"`
}

type Entity struct {
	Type        string `json:"type"`
	MentionText string `json:"mentionText"`
	MentionAlt  string `json:"mention_text"`
}

func (e Entity) Mention() string {
	if e.MentionText != "" {
		return e.MentionText
	}
	return e.MentionAlt
}

type Page struct {
	Tables []Table `json:"tables"`
}

type Table struct {
	HeaderRows    []TableRow `json:"headerRows"`
	HeaderRowsAlt []TableRow `json:"header_rows"`
	BodyRows      []TableRow `json:"bodyRows"`
	BodyRowsAlt   []TableRow `json:"body_rows"`
}

func (t Table) headers() []TableRow { return pick(t.HeaderRows, t.HeaderRowsAlt) }
func (t Table) body() []TableRow    { return pick(t.BodyRows, t.BodyRowsAlt) }

type TableRow struct {
	Cells []TableCell `json:"cells"`
}

type TableCell struct {
	Layout struct {
		TextAnchor    *TextAnchor `json:"textAnchor"`
		TextAnchorAlt *TextAnchor `json:"text_anchor"`
	} `json:"layout"`
}

func (c TableCell) anchor() *TextAnchor {
	if c.Layout.TextAnchor != nil {
		return c.Layout.TextAnchor
	}
	return c.Layout.TextAnchorAlt
}

type TextAnchor struct {
	TextSegments    []TextSegment `json:"textSegments"`
	TextSegmentsAlt []TextSegment `json:"text_segments"`
}

func (a *TextAnchor) segments() []TextSegment {
	if a == nil {
		return nil
	}
	return pick(a.TextSegments, a.TextSegmentsAlt)
}

type TextSegment struct {
	StartIndex    flexInt `json:"startIndex"`
	StartIndexAlt flexInt `json:"start_index"`
	EndIndex      flexInt `json:"endIndex"`
	EndIndexAlt   flexInt `json:"end_index"`
}

func (s TextSegment) bounds() (int, int) {
	return int(max(s.StartIndex, s.StartIndexAlt)), int(max(s.EndIndex, s.EndIndexAlt))
}

// flexInt accepts int64 indices encoded either as numbers or as JSON strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("text segment index %q: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

func pick[T any](a, b []T) []T {
	if len(a) > 0 {
		return a
	}
	return b
}

func (e *Extractor) extractDocAI(path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.DOCAI, Method: MethodDocAI}
	raw, err := os.ReadFile(path)
	if err != nil {
		return res, common.NewAppError("READ_ERROR", "read document-ai response", err)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return res, err
	}
	res.Text = Clean(Flatten(doc))
	res.Pages = max(len(doc.Pages), 1)
	return res, nil
}

// ParseDocument decodes a document-AI response, bare or wrapped in {"document": ...}.
func ParseDocument(raw []byte) (*Document, error) {
	if s, decoded := decodeText(raw); decoded {
		raw = []byte(s)
	}
	var wrapped struct {
		Document *Document `json:"document"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, common.NewAppError("INVALID_DOCUMENT", "decode document-ai response",
			fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if wrapped.Document != nil {
		return wrapped.Document, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, common.NewAppError("INVALID_DOCUMENT", "decode document-ai response",
			fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	return &doc, nil
}

// Flatten renders doc as labeled lines: one "type: mention" line per entity, then
// the document text with each table's span replaced by one line per table row.
func Flatten(doc *Document) string {
	var b strings.Builder
	for _, ent := range doc.Entities {
		typ := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(ent.Type))
		mention := singleLine(ent.Mention())
		if typ == "" || mention == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", typ, mention)
	}

	text := []rune(doc.Text)
	type placed struct {
		lo, hi int
		lines  string
	}
	var anchored []placed
	for _, page := range doc.Pages {
		for _, t := range page.Tables {
			lines, lo, hi := flattenTable(t, text)
			if lines == "" || lo < 0 {
				continue
			}
			anchored = append(anchored, placed{lo, hi, lines})
		}
	}
	sort.SliceStable(anchored, func(i, j int) bool { return anchored[i].lo < anchored[j].lo })

	pos := 0
	for _, p := range anchored {
		if p.lo >= pos {
			b.WriteString(string(text[pos:p.lo]))
			pos = p.hi
		}
		b.WriteString("\n")
		b.WriteString(p.lines)
		b.WriteString("\n")
	}
	b.WriteString(string(text[pos:]))
	return b.String()
}

// flattenTable returns the table's rows as lines and the rune span its cells cover
// in text, or lo = -1 when no cell is anchored.
func flattenTable(t Table, text []rune) (lines string, lo, hi int) {
	lo, hi = -1, -1
	var rows []string
	emit := func(r TableRow) {
		var cells []string
		for _, c := range r.Cells {
			for _, seg := range c.anchor().segments() {
				s, e := clampSpan(seg, len(text))
				if s < e {
					if lo < 0 || s < lo {
						lo = s
					}
					if e > hi {
						hi = e
					}
				}
			}
			if v := singleLine(cellText(c, text)); v != "" {
				cells = append(cells, v)
			}
		}
		if len(cells) > 0 {
			rows = append(rows, joinCells(cells))
		}
	}
	if hs := t.headers(); len(hs) > 0 {
		emit(hs[0])
	}
	for _, r := range t.body() {
		emit(r)
	}
	return strings.Join(rows, "\n"), lo, hi
}

// joinCells puts "  :  " between a row's label and its values so the line parser
// sees a name/value split.
func joinCells(cells []string) string {
	if len(cells) < 2 {
		return strings.Join(cells, "  ")
	}
	return cells[0] + "  :  " + strings.Join(cells[1:], "  ")
}

func cellText(c TableCell, text []rune) string {
	var b strings.Builder
	for _, seg := range c.anchor().segments() {
		s, e := clampSpan(seg, len(text))
		if s < e {
			b.WriteString(string(text[s:e]))
		}
	}
	return b.String()
}

func clampSpan(seg TextSegment, n int) (int, int) {
	s, e := seg.bounds()
	s = min(max(s, 0), n)
	e = min(max(e, 0), n)
	return s, e
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
