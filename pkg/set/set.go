// Package set provides small generic sets. They are not safe for concurrent
// use.
package set

import (
	"cmp"
	"slices"
)

type Set[T comparable] struct {
	items map[T]struct{}
}

func New[T comparable](elems ...T) Set[T] {
	s := Set[T]{items: make(map[T]struct{}, len(elems))}
	s.Append(elems...)
	return s
}

func (s Set[T]) Append(elems ...T) {
	for _, elem := range elems {
		s.items[elem] = struct{}{}
	}
}

// Add inserts elem and reports whether it was new.
func (s Set[T]) Add(elem T) bool {
	if s.Contains(elem) {
		return false
	}
	s.items[elem] = struct{}{}
	return true
}

func (s Set[T]) Contains(elem T) bool {
	_, ok := s.items[elem]
	return ok
}

func (s Set[T]) Len() int {
	return len(s.items)
}

// Values returns the elements in no particular order.
func (s Set[T]) Values() []T {
	v := make([]T, 0, len(s.items))
	for elem := range s.items {
		v = append(v, elem)
	}
	return v
}

// Ordered is a set whose Values come out sorted.
type Ordered[T cmp.Ordered] struct {
	Set[T]
}

func NewOrdered[T cmp.Ordered](elems ...T) Ordered[T] {
	return Ordered[T]{Set: New(elems...)}
}

func (s Ordered[T]) Values() []T {
	v := s.Set.Values()
	slices.Sort(v)
	return v
}
