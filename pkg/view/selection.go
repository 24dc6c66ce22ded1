package view

import (
	"github.com/ecodeclub/ekit/slice"
)

// Selection is an ordered set of selected ids. It is independent of server
// state and must be pruned whenever the listing changes. The zero value is
// empty and ready to use. Selection is not safe for concurrent use; views
// guard it with their own lock.
type Selection struct {
	ids []string
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	_, ok := slice.Find(s.ids, func(src string) bool { return src == id })
	return ok
}

// Set selects or deselects id.
func (s *Selection) Set(id string, on bool) {
	if on == s.Has(id) {
		return
	}
	if on {
		s.ids = append(s.ids, id)
		return
	}
	s.remove(map[string]bool{id: true})
}

// Toggle flips id and returns the new state.
func (s *Selection) Toggle(id string) bool {
	on := !s.Has(id)
	s.Set(id, on)
	return on
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	return append([]string{}, s.ids...)
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// Clear deselects everything.
func (s *Selection) Clear() {
	s.ids = nil
}

// Prune drops every id not in current and returns how many were dropped.
func (s *Selection) Prune(current []string) int {
	keep := slice.ToMap(current, func(element string) string { return element })
	gone := make(map[string]bool)
	for _, id := range s.ids {
		if _, ok := keep[id]; !ok {
			gone[id] = true
		}
	}
	s.remove(gone)
	return len(gone)
}

func (s *Selection) remove(gone map[string]bool) {
	if len(gone) == 0 {
		return
	}
	out := s.ids[:0]
	for _, id := range s.ids {
		if !gone[id] {
			out = append(out, id)
		}
	}
	s.ids = out
}
