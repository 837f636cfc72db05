// Package pattern implements the predicate algebra used to describe a
// converter's input/output shape requirements and a planner's goal state.
package pattern

import (
	"strings"

	"github.com/rhizome-lab/transmute/pkg/omap"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

// PredicateKind identifies which comparison a Predicate performs.
type PredicateKind int

const (
	Any PredicateKind = iota
	Eq
	Ne
	Gt
	Gte
	Lt
	Lte
	StartsWith
	EndsWith
	Contains
	OneOf
)

// Predicate is a single-property test. Exactly one of its fields is
// meaningful, selected by Kind.
type Predicate struct {
	Kind  PredicateKind
	Value properties.Value
	Set   []properties.Value
}

// PredicateAny matches any value, including an absent property.
func PredicateAny() Predicate { return Predicate{Kind: Any} }

// PredicateEq matches when the property equals v exactly.
func PredicateEq(v properties.Value) Predicate { return Predicate{Kind: Eq, Value: v} }

// PredicateNe matches when the property is present and not equal to v.
func PredicateNe(v properties.Value) Predicate { return Predicate{Kind: Ne, Value: v} }

// PredicateGt matches numeric properties greater than v.
func PredicateGt(v properties.Value) Predicate { return Predicate{Kind: Gt, Value: v} }

// PredicateGte matches numeric properties greater than or equal to v.
func PredicateGte(v properties.Value) Predicate { return Predicate{Kind: Gte, Value: v} }

// PredicateLt matches numeric properties less than v.
func PredicateLt(v properties.Value) Predicate { return Predicate{Kind: Lt, Value: v} }

// PredicateLte matches numeric properties less than or equal to v.
func PredicateLte(v properties.Value) Predicate { return Predicate{Kind: Lte, Value: v} }

// PredicateStartsWith matches string properties with the given prefix.
func PredicateStartsWith(prefix string) Predicate {
	return Predicate{Kind: StartsWith, Value: properties.String(prefix)}
}

// PredicateEndsWith matches string properties with the given suffix.
func PredicateEndsWith(suffix string) Predicate {
	return Predicate{Kind: EndsWith, Value: properties.String(suffix)}
}

// PredicateContains matches string properties containing the given substring.
func PredicateContains(substr string) Predicate {
	return Predicate{Kind: Contains, Value: properties.String(substr)}
}

// PredicateOneOf matches when the property equals any value in set.
func PredicateOneOf(set []properties.Value) Predicate { return Predicate{Kind: OneOf, Set: set} }

// Matches reports whether value satisfies the predicate. Any always
// matches, even an absent value (present=false).
func (p Predicate) Matches(value properties.Value, present bool) bool {
	if p.Kind == Any {
		return true
	}
	if !present {
		return false
	}
	switch p.Kind {
	case Eq:
		return value.Equal(p.Value)
	case Ne:
		return !value.Equal(p.Value)
	case Gt, Gte, Lt, Lte:
		a, ok1 := value.AsFloat64()
		b, ok2 := p.Value.AsFloat64()
		if !ok1 || !ok2 {
			return false
		}
		switch p.Kind {
		case Gt:
			return a > b
		case Gte:
			return a >= b
		case Lt:
			return a < b
		default:
			return a <= b
		}
	case StartsWith:
		s, ok1 := value.AsString()
		prefix, ok2 := p.Value.AsString()
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case EndsWith:
		s, ok1 := value.AsString()
		suffix, ok2 := p.Value.AsString()
		return ok1 && ok2 && strings.HasSuffix(s, suffix)
	case Contains:
		s, ok1 := value.AsString()
		substr, ok2 := p.Value.AsString()
		return ok1 && ok2 && strings.Contains(s, substr)
	case OneOf:
		for _, candidate := range p.Set {
			if value.Equal(candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// PropertyPattern is an ordered set of per-property predicates. All
// predicates must match for the pattern to match; properties on the
// subject not named by the pattern are always allowed.
type PropertyPattern struct {
	m *omap.Map[Predicate]
}

// NewPattern returns an empty pattern, which matches anything.
func NewPattern() PropertyPattern {
	return PropertyPattern{m: omap.New[Predicate]()}
}

// With returns a copy of p with key constrained by pred.
func (p PropertyPattern) With(key string, pred Predicate) PropertyPattern {
	clone := p.clone()
	clone.m.Set(key, pred)
	return clone
}

// Eq is shorthand for With(key, PredicateEq(value)).
func (p PropertyPattern) Eq(key string, value properties.Value) PropertyPattern {
	return p.With(key, PredicateEq(value))
}

// Exists is shorthand for With(key, PredicateAny()), used to require a
// property be present without constraining its value.
func (p PropertyPattern) Exists(key string) PropertyPattern {
	return p.With(key, PredicateAny())
}

// Predicates exposes the pattern's predicates in insertion order, for
// planner heuristics and inspection.
func (p PropertyPattern) Predicates() []string {
	if p.m == nil {
		return nil
	}
	return p.m.Keys()
}

// Get returns the predicate registered for key, if any.
func (p PropertyPattern) Get(key string) (Predicate, bool) {
	if p.m == nil {
		return Predicate{}, false
	}
	return p.m.Get(key)
}

// Matches reports whether props satisfies every predicate in the pattern.
// Every key the pattern names must be present in props, even one
// constrained only by Any.
func (p PropertyPattern) Matches(props properties.Properties) bool {
	if p.m == nil {
		return true
	}
	ok := true
	p.m.Range(func(key string, pred Predicate) bool {
		value, present := props.Get(key)
		if !present || !pred.Matches(value, present) {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// UnsatisfiedCount returns how many of the pattern's predicates are not
// satisfied by props. Used as the planner's admissible heuristic: it can
// never overestimate the number of converter applications still needed,
// since each converter step can satisfy at most the predicates its output
// pattern sets via Eq.
func (p PropertyPattern) UnsatisfiedCount(props properties.Properties) int {
	if p.m == nil {
		return 0
	}
	n := 0
	p.m.Range(func(key string, pred Predicate) bool {
		value, present := props.Get(key)
		if !present || !pred.Matches(value, present) {
			n++
		}
		return true
	})
	return n
}

func (p PropertyPattern) clone() PropertyPattern {
	if p.m == nil {
		return NewPattern()
	}
	return PropertyPattern{m: p.m.Clone()}
}
