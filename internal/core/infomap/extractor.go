package infomap

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

// Extractor builds an InfoMap and runs the repair table over it.
type Extractor struct {
	tables   *rules.Tables
	excludes []*repair
	repairs  []*repair
	logger   *slog.Logger
	observe  func(rule string)
}

type repair struct {
	rules.Repair
	re      *regexp.Regexp
	recover *regexp.Regexp
}

type Option func(*Extractor)

// WithRepairObserver registers a callback invoked with the rule name each time a repair fires.
func WithRepairObserver(fn func(rule string)) Option {
	return func(e *Extractor) { e.observe = fn }
}

// NewExtractor compiles the repair rules. Tables are expected to be validated.
func NewExtractor(tables *rules.Tables, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{tables: tables, logger: logger}
	for _, r := range tables.Repairs {
		c := &repair{Repair: r}
		if r.Pattern != "" {
			c.re = regexp.MustCompile(r.Pattern)
		}
		if r.Recover != "" {
			c.recover = regexp.MustCompile(r.Recover)
		}
		if r.Kind == rules.RepairExclude {
			e.excludes = append(e.excludes, c)
		} else {
			e.repairs = append(e.repairs, c)
		}
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract builds the InfoMap from lines and applies every repair rule in table order.
func (e *Extractor) Extract(lines []string) *InfoMap {
	m := build(lines, e.accept, func(key, kept, dropped string) {
		e.logger.Debug("infomap.duplicate_key", "key", key, "kept", kept, "dropped", dropped)
	})
	e.Repair(m, lines)
	return m
}

// Resolve looks up a logical field through its alias list.
func (e *Extractor) Resolve(m *InfoMap, field string) (string, bool) {
	return m.Resolve(e.tables.Aliases(field))
}

// Repair applies the non-exclude rules to m.
func (e *Extractor) Repair(m *InfoMap, lines []string) {
	for _, r := range e.repairs {
		switch r.Kind {
		case rules.RepairScan:
			e.scan(r, m, lines)
		case rules.RepairSwap:
			e.swap(r, m)
		case rules.RepairMisplacedName:
			e.misplacedName(r, m, lines)
		case rules.RepairInvalidDate:
			e.invalidDate(r, m, lines)
		}
	}
}

func (e *Extractor) accept(key, value string) bool {
	for _, r := range e.excludes {
		if !contains(e.tables.Aliases(r.Field), key) {
			continue
		}
		if matchesAny(value, r.Values) {
			e.applied(r, key, value)
			return false
		}
	}
	return true
}

func (e *Extractor) scan(r *repair, m *InfoMap, lines []string) {
	aliases := e.tables.Aliases(r.Field)
	if _, _, ok := m.lookup(aliases); ok || len(aliases) == 0 {
		return
	}
	for _, line := range lines {
		match := r.re.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		value := match[0]
		if len(match) > 1 {
			value = match[1]
		}
		value = strings.TrimSpace(value)
		if value == "" || matchesAny(value, r.Values) {
			continue
		}
		m.Set(aliases[0], value)
		e.applied(r, aliases[0], value)
		return
	}
}

func (e *Extractor) swap(r *repair, m *InfoMap) {
	aKey, aVal, ok := m.lookup(e.tables.Aliases(r.Field))
	if !ok || !r.re.MatchString(aVal) {
		return
	}
	bAliases := e.tables.Aliases(r.Other)
	bKey, bVal, bOK := m.lookup(bAliases)
	switch {
	case bOK && r.re.MatchString(bVal):
		return
	case bOK:
		m.Set(aKey, bVal)
		m.Set(bKey, aVal)
	case len(bAliases) > 0:
		m.Delete(aKey)
		m.Set(bAliases[0], aVal)
	default:
		return
	}
	e.applied(r, aKey, aVal)
}

func (e *Extractor) misplacedName(r *repair, m *InfoMap, lines []string) {
	aliases := e.tables.Aliases(r.Field)
	if _, _, ok := m.lookup(aliases); ok || len(aliases) == 0 {
		return
	}
	for i, d := range r.Dates {
		key, value, ok := m.lookup(e.tables.Aliases(d.Field))
		if !ok || !r.re.MatchString(value) || strings.Contains(value, "Dr.") {
			continue
		}
		m.Set(aliases[0], value)
		e.restoreDate(r, m, key, i, lines)
		e.applied(r, key, value)
		return
	}
}

func (e *Extractor) invalidDate(r *repair, m *InfoMap, lines []string) {
	target := e.tables.Aliases(r.Field)
	for i, d := range r.Dates {
		key, value, ok := m.lookup(e.tables.Aliases(d.Field))
		if !ok || r.re.MatchString(value) {
			continue
		}
		if contains(lowerAll(r.Values), strings.ToLower(value)) && len(target) > 0 {
			if _, _, has := m.lookup(target); !has {
				m.Set(target[0], value)
			}
		}
		e.restoreDate(r, m, key, i, lines)
		e.applied(r, key, value)
	}
}

// restoreDate replaces key with a date found on a line mentioning the field's
// context word, falling back to the index-th date in the document. The key is
// dropped when no date can be found.
func (e *Extractor) restoreDate(r *repair, m *InfoMap, key string, index int, lines []string) {
	if date := findDate(r, index, lines); date != "" {
		m.Set(key, date)
		return
	}
	m.Delete(key)
}

func findDate(r *repair, index int, lines []string) string {
	type found struct{ date, context string }
	var all []found
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, d := range r.recover.FindAllString(line, -1) {
			all = append(all, found{date: d, context: lower})
		}
	}
	ctx := strings.ToLower(r.Dates[index].Context)
	if ctx != "" {
		for _, f := range all {
			if strings.Contains(f.context, ctx) {
				return f.date
			}
		}
	}
	switch {
	case index < len(all):
		return all[index].date
	case index == len(r.Dates)-1 && len(all) > 0:
		return all[len(all)-1].date
	}
	return ""
}

func (e *Extractor) applied(r *repair, key, value string) {
	e.logger.Info("infomap.repair.applied", "rule", r.Name, "kind", r.Kind, "field", r.Field, "key", key, "value", value)
	if e.observe != nil {
		e.observe(r.Name)
	}
}

// matchesAny compares digits only when both sides carry digits, so "0978404789"
// matches "097 840 47 89"; otherwise it is a case-insensitive substring check.
func matchesAny(value string, candidates []string) bool {
	vd := digits(value)
	for _, c := range candidates {
		if cd := digits(c); cd != "" && vd != "" {
			if strings.Contains(vd, cd) {
				return true
			}
			continue
		}
		if c != "" && strings.Contains(strings.ToLower(value), strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
