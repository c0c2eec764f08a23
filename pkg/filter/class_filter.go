// Package filter selects collector classes by name.
//
// A pattern is a class name with an optional leading or trailing '*':
//
//	Actor      exactly Actor
//	Hud*       names starting with Hud
//	*Widget    names ending with Widget
//	*Inv*      names containing Inv
//
// A leading '!' turns a pattern into an exclusion. Exclusions win over
// inclusions, and a filter without inclusions includes every class.
package filter

import (
	"fmt"
	"strings"
	"sync"
)

type matchKind int

const (
	matchExact matchKind = iota
	matchPrefix
	matchSuffix
	matchContains
	matchAny
)

type pattern struct {
	kind matchKind
	text string
}

func (p pattern) match(name string) bool {
	switch p.kind {
	case matchExact:
		return name == p.text
	case matchPrefix:
		return strings.HasPrefix(name, p.text)
	case matchSuffix:
		return strings.HasSuffix(name, p.text)
	case matchContains:
		return strings.Contains(name, p.text)
	default:
		return true
	}
}

func parsePattern(s string) (pattern, error) {
	lead := strings.HasPrefix(s, "*")
	trail := len(s) > 1 && strings.HasSuffix(s, "*")
	text := strings.TrimSuffix(strings.TrimPrefix(s, "*"), "*")
	if s == "*" {
		return pattern{kind: matchAny}, nil
	}
	if text == "" || strings.Contains(text, "*") {
		return pattern{}, fmt.Errorf("invalid class pattern %q", s)
	}
	switch {
	case lead && trail:
		return pattern{matchContains, text}, nil
	case lead:
		return pattern{matchSuffix, text}, nil
	case trail:
		return pattern{matchPrefix, text}, nil
	}
	return pattern{matchExact, text}, nil
}

// ClassFilter matches class names against include and exclude patterns.
// It is safe for concurrent use.
type ClassFilter struct {
	mu      sync.RWMutex
	include []pattern
	exclude []pattern

	// Cache for frequently queried classes
	cache     map[string]bool
	cacheSize int
}

// NewClassFilter builds a filter from patterns; see the package comment for
// the syntax.
func NewClassFilter(patterns ...string) (*ClassFilter, error) {
	f := &ClassFilter{
		cache:     make(map[string]bool),
		cacheSize: 1024,
	}
	for _, p := range patterns {
		if err := f.Add(p); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add appends one pattern.
func (f *ClassFilter) Add(s string) error {
	s = strings.TrimSpace(s)
	exclude := strings.HasPrefix(s, "!")
	p, err := parsePattern(strings.TrimPrefix(s, "!"))
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if exclude {
		f.exclude = append(f.exclude, p)
	} else {
		f.include = append(f.include, p)
	}
	f.cache = make(map[string]bool)
	return nil
}

// IsEmpty reports whether the filter has no patterns and so matches
// everything.
func (f *ClassFilter) IsEmpty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.include) == 0 && len(f.exclude) == 0
}

// Match reports whether the class called name passes the filter.
func (f *ClassFilter) Match(name string) bool {
	f.mu.RLock()
	if ok, hit := f.cache[name]; hit {
		f.mu.RUnlock()
		return ok
	}
	ok := f.matchUncached(name)
	f.mu.RUnlock()

	f.mu.Lock()
	if len(f.cache) < f.cacheSize {
		f.cache[name] = ok
	}
	f.mu.Unlock()
	return ok
}

func (f *ClassFilter) matchUncached(name string) bool {
	for _, p := range f.exclude {
		if p.match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, p := range f.include {
		if p.match(name) {
			return true
		}
	}
	return false
}

// MatchLineage applies the filter to a class and its ancestors, nearest
// first. The class passes if no member of the lineage is excluded and, when
// inclusions exist, some member is included. Including Thinker thus also
// selects every class derived from it.
func (f *ClassFilter) MatchLineage(lineage []string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	included := len(f.include) == 0
	for _, name := range lineage {
		for _, p := range f.exclude {
			if p.match(name) {
				return false
			}
		}
		if !included {
			for _, p := range f.include {
				if p.match(name) {
					included = true
					break
				}
			}
		}
	}
	return included
}

// CacheStats returns cache statistics.
func (f *ClassFilter) CacheStats() (size int, maxSize int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache), f.cacheSize
}
