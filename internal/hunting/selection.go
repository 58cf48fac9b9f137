package hunting

import (
	"slices"
	"sync"
)

// ID identifies an observed object: a program fingerprint or a buffer or
// render-target hash.
type ID uint64

// Set is the ordered collection of ids observed for one resource, plus the
// operator's cursor.
//
// States: empty (no ids) and populated. Observe never moves the cursor. The
// set only shrinks through Clear.
//
// Thread-safety: safe for concurrent use. Intercept threads call Observe
// while the frame thread navigates.
type Set struct {
	mu          sync.Mutex
	ids         []ID // sorted ascending, unique
	selected    ID
	hasSelected bool
	lastOrdinal int // position of the last selection, -1 if never selected
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{lastOrdinal: -1}
}

// Observe inserts id if absent. Returns true if it was new.
func (s *Set) Observe(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, found := slices.BinarySearch(s.ids, id)
	if found {
		return false
	}
	s.ids = slices.Insert(s.ids, i, id)
	return true
}

// Next selects the successor of the current selection, wrapping to the
// first id. Returns false when the set is empty.
func (s *Set) Next() (ID, bool) {
	return s.step(1)
}

// Prev selects the predecessor of the current selection, wrapping to the
// last id. Returns false when the set is empty.
func (s *Set) Prev() (ID, bool) {
	return s.step(-1)
}

func (s *Set) step(dir int) (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.ids)
	if n == 0 {
		s.hasSelected = false
		return 0, false
	}

	var i int
	switch {
	case s.hasSelected:
		pos, found := slices.BinarySearch(s.ids, s.selected)
		if found {
			i = (pos + dir + n) % n
		} else {
			i = s.reseat(n)
		}
	case s.lastOrdinal >= 0:
		// The selection was lost (cleared); resume near where it was.
		i = s.reseat(n)
	case dir > 0:
		i = 0
	default:
		i = n - 1
	}

	s.selected = s.ids[i]
	s.hasSelected = true
	s.lastOrdinal = i
	return s.selected, true
}

// reseat picks the last known ordinal clamped to the current size.
func (s *Set) reseat(n int) int {
	return min(max(s.lastOrdinal, 0), n-1)
}

// Selected returns the current selection. The boolean is false when
// nothing is selected, which is distinct from every real id.
func (s *Set) Selected() (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.hasSelected
}

// IsSelected reports whether id is the current selection.
func (s *Set) IsSelected(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSelected && s.selected == id
}

// Clear empties the set and drops the selection. The ordinal of the last
// selection is kept so the next move resumes near it.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.selected = 0
	s.hasSelected = false
}

// Reset is Clear that also forgets the last ordinal.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.selected = 0
	s.hasSelected = false
	s.lastOrdinal = -1
}

// IDs returns a sorted copy of the observed ids.
func (s *Set) IDs() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

// Len returns the number of observed ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Contains reports whether id has been observed.
func (s *Set) Contains(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := slices.BinarySearch(s.ids, id)
	return found
}
