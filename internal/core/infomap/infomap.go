package infomap

import "strings"

// InfoMap is an insertion-ordered label -> value map. Labels are kept as they
// appear in the OCR text.
type InfoMap struct {
	keys   []string
	values map[string]string
}

func New() *InfoMap {
	return &InfoMap{values: map[string]string{}}
}

// Of builds a map from alternating key/value arguments.
func Of(kv ...string) *InfoMap {
	m := New()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Add(kv[i], kv[i+1])
	}
	return m
}

// Add inserts key unless it is already present. It reports whether the value was stored.
func (m *InfoMap) Add(key, value string) bool {
	if _, ok := m.values[key]; ok {
		return false
	}
	m.keys = append(m.keys, key)
	m.values[key] = value
	return true
}

// Set overwrites key. Only repair rules use it.
func (m *InfoMap) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *InfoMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *InfoMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the labels in insertion order.
func (m *InfoMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *InfoMap) Len() int { return len(m.keys) }

// Resolve returns the value of the first alias present in the map.
func (m *InfoMap) Resolve(aliases []string) (string, bool) {
	_, v, ok := m.lookup(aliases)
	return v, ok
}

func (m *InfoMap) lookup(aliases []string) (key, value string, ok bool) {
	for _, a := range aliases {
		if v, found := m.values[a]; found {
			return a, v, true
		}
	}
	return "", "", false
}

// Build scans lines for "key : value" pairs and for a key line followed by a
// line starting with ':'. The first occurrence of a key wins.
func Build(lines []string) *InfoMap {
	return build(lines, nil, nil)
}

type acceptFunc func(key, value string) bool

func build(lines []string, accept acceptFunc, onDuplicate func(key, kept, dropped string)) *InfoMap {
	m := New()
	add := func(key, value string) {
		if accept != nil && !accept(key, value) {
			return
		}
		if !m.Add(key, value) && onDuplicate != nil {
			kept, _ := m.Get(key)
			onDuplicate(key, kept, value)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		// a leading colon marks a value already claimed by the previous key line
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			if key != "" && value != "" {
				add(key, value)
			}
			continue
		}

		j := nextNonBlank(lines, i+1)
		if j < 0 {
			continue
		}
		next := strings.TrimSpace(lines[j])
		if !strings.HasPrefix(next, ":") {
			continue
		}
		if value := strings.TrimSpace(next[1:]); value != "" {
			add(line, value)
		}
		i = j
	}
	return m
}

func nextNonBlank(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) != "" {
			return j
		}
	}
	return -1
}
