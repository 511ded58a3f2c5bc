// Package orderedset provides an insertion-ordered set.
package orderedset

// Set keeps the first-seen order of its elements and ignores repeats.
// The zero value is ready to use.
type Set[T comparable] struct {
	seen  map[T]struct{}
	items []T
}

// Of returns a set holding values in first-seen order.
//
// Example:
//
//	Of("b", "a", "b").Values()
//	// Returns: []string{"b", "a"}
func Of[T comparable](values ...T) *Set[T] {
	s := &Set[T]{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new.
func (s *Set[T]) Add(v T) bool {
	if s.seen == nil {
		s.seen = make(map[T]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.seen[v]
	return ok
}

// Len returns the number of distinct elements.
func (s *Set[T]) Len() int {
	return len(s.items)
}

// Values returns a copy of the elements in insertion order. It never returns nil.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// AddNonEmpty inserts *v when v is non-nil and not the zero value.
func AddNonEmpty[T comparable](s *Set[T], v *T) {
	var zero T
	if v == nil || *v == zero {
		return
	}
	s.Add(*v)
}
