// Package headerspace models packet-header predicates as per-field integer
// intervals and composes them by intersection.
package headerspace

import (
	"fmt"
	"sort"
	"strings"

	"flow-validator/pkg/wellknown"
)

// Interval is an inclusive range of header values.
type Interval struct {
	Lo, Hi uint64
}

func Exact(v uint64) Interval { return Interval{Lo: v, Hi: v} }

// Intersect returns the overlap of two intervals and whether it is non-empty.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	lo, hi := max(i.Lo, o.Lo), min(i.Hi, o.Hi)
	if lo > hi {
		return Interval{}, false
	}
	return Interval{Lo: lo, Hi: hi}, true
}

func (i Interval) String() string {
	if i.Lo == i.Hi {
		return fmt.Sprintf("%d", i.Lo)
	}
	return fmt.Sprintf("%d-%d", i.Lo, i.Hi)
}

// Match is an immutable header-space predicate. A field absent from the map
// is a wildcard. The zero value matches every packet.
type Match struct {
	fields map[string]Interval
	unsat  bool
}

// Unsatisfiable is the match that admits no packet.
var Unsatisfiable = Match{unsat: true}

// Wildcard returns the match that admits every packet.
func Wildcard() Match { return Match{} }

func (m Match) IsEmpty() bool { return m.unsat }

// Field returns the constraint on a field; ok is false for a wildcard.
func (m Match) Field(name string) (Interval, bool) {
	iv, ok := m.fields[name]
	return iv, ok
}

// Restrict narrows one field by intersection.
func (m Match) Restrict(field string, iv Interval) Match {
	return Intersect(m, Match{fields: map[string]Interval{field: iv}})
}

// Rewrite replaces the constraint on a field, as a set-field action does.
// Rewriting an unsatisfiable match leaves it unsatisfiable.
func (m Match) Rewrite(field string, iv Interval) Match {
	if m.unsat {
		return m
	}
	out := m.clone()
	if isFullRange(field, iv) {
		delete(out.fields, field)
	} else {
		out.fields[field] = iv
	}
	return out
}

// Intersect composes two matches field by field. It is commutative and
// associative, and Unsatisfiable absorbs.
func Intersect(a, b Match) Match {
	if a.unsat || b.unsat {
		return Unsatisfiable
	}
	out := a.clone()
	for name, biv := range b.fields {
		aiv, ok := out.fields[name]
		if !ok {
			out.fields[name] = biv
			continue
		}
		iv, ok := aiv.Intersect(biv)
		if !ok {
			return Unsatisfiable
		}
		out.fields[name] = iv
	}
	for name, iv := range out.fields {
		if isFullRange(name, iv) {
			delete(out.fields, name)
		}
	}
	return out
}

func (m Match) Equal(o Match) bool {
	if m.unsat || o.unsat {
		return m.unsat == o.unsat
	}
	if len(m.fields) != len(o.fields) {
		return false
	}
	for name, iv := range m.fields {
		if oiv, ok := o.fields[name]; !ok || oiv != iv {
			return false
		}
	}
	return true
}

func (m Match) String() string {
	if m.unsat {
		return "<unsatisfiable>"
	}
	if len(m.fields) == 0 {
		return "*"
	}
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + m.fields[name].String()
	}
	return strings.Join(parts, ",")
}

func (m Match) clone() Match {
	out := Match{fields: make(map[string]Interval, len(m.fields))}
	for k, v := range m.fields {
		out.fields[k] = v
	}
	return out
}

func isFullRange(field string, iv Interval) bool {
	entry, ok := wellknown.Field(field)
	return ok && iv.Lo == 0 && iv.Hi == entry.Max()
}
