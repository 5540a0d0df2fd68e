package ime

import "fmt"

// DefaultPageSize is the number of candidates shown per lookup table page.
const DefaultPageSize = 9

// Candidate is one entry of the lookup table.
type Candidate struct {
	// Text is what gets committed.
	Text string

	// Hint is the remaining input needed to reach this candidate
	// without choosing it (may be empty).
	Hint string
}

// LookupPage is the visible window of a CandidateList.
type LookupPage struct {
	Candidates []Candidate
	// Cursor is the highlighted index within Candidates, or -1.
	Cursor    int
	PageSize  int
	Page      int
	PageCount int
	// Start is the absolute index of Candidates[0].
	Start int
	Total int
}

// CandidateList is an ordered, paged list of candidates with an optional
// selection. Paging clamps at the first and last page; it never wraps.
type CandidateList struct {
	items    []Candidate
	pageSize int
	page     int
	selected int
}

// NewCandidateList creates an empty list. A non-positive pageSize falls
// back to DefaultPageSize.
func NewCandidateList(pageSize int) *CandidateList {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CandidateList{pageSize: pageSize, selected: -1}
}

// Replace swaps the whole content, unsets the selection and returns to
// the first page.
func (l *CandidateList) Replace(candidates []Candidate) {
	l.items = append(l.items[:0:0], candidates...)
	l.page = 0
	l.selected = -1
}

// Clear empties the list.
func (l *CandidateList) Clear() {
	l.items = nil
	l.page = 0
	l.selected = -1
}

// Len returns the number of candidates.
func (l *CandidateList) Len() int { return len(l.items) }

// PageSize returns the fixed page size.
func (l *CandidateList) PageSize() int { return l.pageSize }

// PageIndex returns the current 0-based page.
func (l *CandidateList) PageIndex() int { return l.page }

// PageCount returns the number of pages, 0 when empty.
func (l *CandidateList) PageCount() int {
	return (len(l.items) + l.pageSize - 1) / l.pageSize
}

// Selected returns the selected absolute index, or -1.
func (l *CandidateList) Selected() int { return l.selected }

// At returns the candidate at an absolute index.
func (l *CandidateList) At(i int) (Candidate, error) {
	if i < 0 || i >= len(l.items) {
		return Candidate{}, fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, i, len(l.items))
	}
	return l.items[i], nil
}

// PageDown advances one page. It reports false, changing nothing, when
// already on the last page.
func (l *CandidateList) PageDown() bool {
	if l.page+1 >= l.PageCount() {
		return false
	}
	l.page++
	return true
}

// PageUp goes back one page. It reports false when already on the first.
func (l *CandidateList) PageUp() bool {
	if l.page == 0 {
		return false
	}
	l.page--
	return true
}

// CursorDown moves the highlight to the next candidate, following it
// onto the next page.
func (l *CandidateList) CursorDown() bool {
	switch {
	case len(l.items) == 0:
		return false
	case l.selected < 0:
		l.selected = l.pageStart()
	case l.selected+1 < len(l.items):
		l.selected++
	default:
		return false
	}
	l.page = l.selected / l.pageSize
	return true
}

// CursorUp moves the highlight to the previous candidate.
func (l *CandidateList) CursorUp() bool {
	switch {
	case len(l.items) == 0:
		return false
	case l.selected < 0:
		l.selected = l.pageStart()
	case l.selected > 0:
		l.selected--
	default:
		return false
	}
	l.page = l.selected / l.pageSize
	return true
}

// Highlighted returns the absolute index shown as highlighted: the
// selection, or the first visible candidate when nothing is selected.
// It is -1 for an empty list.
func (l *CandidateList) Highlighted() int {
	switch {
	case len(l.items) == 0:
		return -1
	case l.selected >= 0:
		return l.selected
	default:
		return l.pageStart()
	}
}

// SelectVisible maps an index within the visible page to its absolute
// index and marks it selected. On ErrOutOfRange the list is unchanged.
func (l *CandidateList) SelectVisible(i int) (int, Candidate, error) {
	visible := l.visibleCount()
	if i < 0 || i >= visible {
		return -1, Candidate{}, fmt.Errorf("%w: visible index %d (page %d has %d)", ErrOutOfRange, i, l.page, visible)
	}
	abs := l.pageStart() + i
	l.selected = abs
	return abs, l.items[abs], nil
}

// Page returns a copy of the visible window.
func (l *CandidateList) Page() LookupPage {
	start := l.pageStart()
	end := start + l.visibleCount()

	cursor := -1
	if l.selected >= start && l.selected < end {
		cursor = l.selected - start
	}

	return LookupPage{
		Candidates: append([]Candidate(nil), l.items[start:end]...),
		Cursor:     cursor,
		PageSize:   l.pageSize,
		Page:       l.page,
		PageCount:  l.PageCount(),
		Start:      start,
		Total:      len(l.items),
	}
}

func (l *CandidateList) pageStart() int {
	return l.page * l.pageSize
}

func (l *CandidateList) visibleCount() int {
	n := len(l.items) - l.pageStart()
	if n > l.pageSize {
		n = l.pageSize
	}
	if n < 0 {
		n = 0
	}
	return n
}
