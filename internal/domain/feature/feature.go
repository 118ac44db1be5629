// Package feature models spatial evaluation units and the groups of
// correlated units that are pooled together.
package feature

import (
	"fmt"
	"sort"
	"strings"
)

// Feature is one spatial unit, identified by name.
type Feature struct {
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	WKT         string `koanf:"wkt"`
	SRID        int    `koanf:"srid"`
}

// Of returns a feature with only a name.
func Of(name string) Feature { return Feature{Name: name} }

// IsZero reports whether the feature is unset.
func (f Feature) IsZero() bool { return f.Name == "" }

func (f Feature) String() string { return f.Name }

// Tuple correlates the left, right and optional baseline features evaluated
// together. The features may differ from one another.
type Tuple struct {
	Left     Feature `koanf:"left"`
	Right    Feature `koanf:"right"`
	Baseline Feature `koanf:"baseline"`
}

// TupleOf builds a tuple where every side uses the same name; an empty
// baseline name leaves the baseline unset.
func TupleOf(left, right, baseline string) Tuple {
	t := Tuple{Left: Of(left), Right: Of(right)}
	if baseline != "" {
		t.Baseline = Of(baseline)
	}
	return t
}

// HasBaseline reports whether the tuple carries a baseline feature.
func (t Tuple) HasBaseline() bool { return !t.Baseline.IsZero() }

func (t Tuple) String() string {
	if t.HasBaseline() {
		return t.Left.Name + "-" + t.Right.Name + "-" + t.Baseline.Name
	}
	return t.Left.Name + "-" + t.Right.Name
}

func (t Tuple) less(o Tuple) bool {
	return t.String() < o.String()
}

// Group is a named, ordered set of tuples evaluated as one pool.
type Group struct {
	Name   string
	Tuples []Tuple
}

// NewGroup validates and sorts the tuples. A group without a name is named
// after its tuples.
func NewGroup(name string, tuples ...Tuple) (Group, error) {
	if len(tuples) == 0 {
		return Group{}, fmt.Errorf("%w: group %q has no tuples", ErrInvalidGroup, name)
	}
	sorted := make([]Tuple, 0, len(tuples))
	seen := make(map[string]struct{}, len(tuples))
	for _, t := range tuples {
		if t.Left.IsZero() || t.Right.IsZero() {
			return Group{}, fmt.Errorf("%w: tuple %q lacks a left or right feature", ErrInvalidGroup, t)
		}
		if _, ok := seen[t.String()]; ok {
			continue
		}
		seen[t.String()] = struct{}{}
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })
	if name == "" {
		parts := make([]string, len(sorted))
		for i, t := range sorted {
			parts[i] = t.String()
		}
		name = strings.Join(parts, ",")
	}
	return Group{Name: name, Tuples: sorted}, nil
}

// Singletons returns one group per tuple.
func Singletons(tuples ...Tuple) ([]Group, error) {
	out := make([]Group, 0, len(tuples))
	for _, t := range tuples {
		g, err := NewGroup("", t)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Lefts returns the distinct left features in tuple order.
func (g Group) Lefts() []Feature {
	return distinct(g.Tuples, func(t Tuple) Feature { return t.Left })
}

// Rights returns the distinct right features in tuple order.
func (g Group) Rights() []Feature {
	return distinct(g.Tuples, func(t Tuple) Feature { return t.Right })
}

// Baselines returns the distinct baseline features in tuple order.
func (g Group) Baselines() []Feature {
	return distinct(g.Tuples, func(t Tuple) Feature { return t.Baseline })
}

// HasBaseline reports whether any tuple declares a baseline feature.
func (g Group) HasBaseline() bool {
	for _, t := range g.Tuples {
		if t.HasBaseline() {
			return true
		}
	}
	return false
}

// TuplesForRight returns the tuples whose right feature matches.
func (g Group) TuplesForRight(f Feature) []Tuple {
	return g.filter(func(t Tuple) bool { return t.Right.Name == f.Name })
}

// TuplesForBaseline returns the tuples whose baseline feature matches.
func (g Group) TuplesForBaseline(f Feature) []Tuple {
	return g.filter(func(t Tuple) bool { return t.Baseline.Name == f.Name })
}

// TuplesForLeft returns the tuples whose left feature matches.
func (g Group) TuplesForLeft(f Feature) []Tuple {
	return g.filter(func(t Tuple) bool { return t.Left.Name == f.Name })
}

func (g Group) filter(keep func(Tuple) bool) []Tuple {
	var out []Tuple
	for _, t := range g.Tuples {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (g Group) String() string { return g.Name }

func distinct(tuples []Tuple, side func(Tuple) Feature) []Feature {
	seen := make(map[string]struct{}, len(tuples))
	var out []Feature
	for _, t := range tuples {
		f := side(t)
		if f.IsZero() {
			continue
		}
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	return out
}
