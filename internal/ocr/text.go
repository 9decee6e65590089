package ocr

import (
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-=]{3,}[ \t]*$`)
)

func (e *Extractor) extractText(path string) (ExtractionResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{SourceType: constants.TEXT, Method: MethodText},
			common.NewAppError("READ_ERROR", "read text file", err)
	}
	txt, decoded := decodeText(raw)
	var warns []string
	if decoded {
		warns = append(warns, "input was not UTF-8; decoded as Windows-1252")
	}
	txt = Clean(txt)
	return ExtractionResult{
		Text:       txt,
		Pages:      1 + strings.Count(txt, "\f"),
		SourceType: constants.TEXT,
		Method:     MethodText,
		Warnings:   warns,
	}, nil
}

// decodeText returns raw as a string, re-decoding it as Windows-1252 when it is
// not valid UTF-8. The bool reports whether re-decoding happened.
func decodeText(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return string(raw), false
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), ""), true
	}
	return string(out), true
}

// Clean unifies line endings, drops control characters other than tab, newline
// and form feed, removes ruler lines and collapses runs of blank lines.
// Inner spacing is kept; the line parser relies on it.
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t', '\f':
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	s = reBoxNoise.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
