// Package sets has the string-keyed sets used to collect include flags.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

// Set holds each key once.
type Set[T comparable] map[T]struct{}

// New returns a set of vals.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

func (s Set[T]) Add(v T) { s[v] = struct{}{} }

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Union adds the keys of other to s.
func (s Set[T]) Union(other Set[T]) {
	maps.Copy(s, other)
}

// Sorted lists the keys of s in ascending order, so that flags derived from
// a set come out the same on every run.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
