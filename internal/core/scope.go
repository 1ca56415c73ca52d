package core

import "sort"

// Scope is one (month, category) pair whose aggregate needs a refresh.
type Scope struct {
	MonthKey string
	Category string
}

// ScopeSet tracks affected (month, category) pairs. Iteration helpers return
// sorted results so callers behave deterministically.
type ScopeSet map[string]map[string]struct{}

func NewScopeSet() ScopeSet {
	return make(ScopeSet)
}

func (s ScopeSet) Add(month, category string) {
	cats, ok := s[month]
	if !ok {
		cats = make(map[string]struct{})
		s[month] = cats
	}
	cats[category] = struct{}{}
}

func (s ScopeSet) Contains(month, category string) bool {
	_, ok := s[month][category]
	return ok
}

func (s ScopeSet) Merge(other ScopeSet) {
	for month, cats := range other {
		for cat := range cats {
			s.Add(month, cat)
		}
	}
}

// Len returns the number of pairs.
func (s ScopeSet) Len() int {
	n := 0
	for _, cats := range s {
		n += len(cats)
	}
	return n
}

func (s ScopeSet) Empty() bool {
	return s.Len() == 0
}

func (s ScopeSet) Months() []string {
	months := make([]string, 0, len(s))
	for m, cats := range s {
		if len(cats) > 0 {
			months = append(months, m)
		}
	}
	sort.Strings(months)
	return months
}

func (s ScopeSet) Categories(month string) []string {
	cats := make([]string, 0, len(s[month]))
	for c := range s[month] {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func (s ScopeSet) Scopes() []Scope {
	out := make([]Scope, 0, s.Len())
	for _, m := range s.Months() {
		for _, c := range s.Categories(m) {
			out = append(out, Scope{MonthKey: m, Category: c})
		}
	}
	return out
}

// ToMap flattens the set into month -> sorted categories, the wire shape used
// by refresh messages.
func (s ScopeSet) ToMap() map[string][]string {
	out := make(map[string][]string, len(s))
	for _, m := range s.Months() {
		out[m] = s.Categories(m)
	}
	return out
}

// ScopeSetFromMap is the inverse of ToMap.
func ScopeSetFromMap(m map[string][]string) ScopeSet {
	s := NewScopeSet()
	for month, cats := range m {
		for _, c := range cats {
			s.Add(month, c)
		}
	}
	return s
}
