package composer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxPredicates bounds the predicates returned for one input.
const MaxPredicates = 256

// translation resolves a code prefix to predicates.
type translation interface {
	prefix(input string) ([]Predicate, error)
}

type entry struct {
	code  string
	texts []string
}

// memoryTranslation keeps entries sorted by code so a prefix is a
// contiguous range.
type memoryTranslation struct {
	entries []entry
}

func newMemoryTranslation(m map[string][]string) *memoryTranslation {
	t := &memoryTranslation{entries: make([]entry, 0, len(m))}
	for code, texts := range m {
		t.entries = append(t.entries, entry{code: code, texts: texts})
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].code < t.entries[j].code })
	return t
}

func (t *memoryTranslation) prefix(input string) ([]Predicate, error) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].code >= input })
	var out []Predicate
	for ; i < len(t.entries) && len(out) < MaxPredicates; i++ {
		e := t.entries[i]
		if !strings.HasPrefix(e.code, input) {
			break
		}
		out = append(out, newPredicate(input, e.code, e.texts))
	}
	sortPredicates(out)
	return out, nil
}

func newPredicate(input, code string, texts []string) Predicate {
	remaining := strings.TrimPrefix(code, input)
	return Predicate{
		Code:      code,
		Remaining: remaining,
		Texts:     texts,
		CanCommit: remaining == "",
	}
}

// sortPredicates orders exact matches first, then by how much code is
// left to type, then by code.
func sortPredicates(p []Predicate) {
	sort.SliceStable(p, func(i, j int) bool {
		ri, rj := utf8.RuneCountInString(p[i].Remaining), utf8.RuneCountInString(p[j].Remaining)
		if ri != rj {
			return ri < rj
		}
		return p[i].Code < p[j].Code
	})
}
