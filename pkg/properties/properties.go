package properties

import "github.com/rhizome-lab/transmute/pkg/omap"

// Properties is an ordered string-to-Value map, the unit of metadata that
// travels alongside every blob of bytes moving through the engine. Order is
// insertion order, matching the IndexMap semantics of the original.
type Properties struct {
	m *omap.Map[Value]
}

// New returns an empty Properties.
func New() Properties {
	return Properties{m: omap.New[Value]()}
}

// With returns a copy of p with key set to value, leaving p unmodified.
// This is the fluent builder carried over from PropertiesExt::with in the
// original, since Go has no trait-based extension methods.
func (p Properties) With(key string, value Value) Properties {
	clone := p.clone()
	clone.m.Set(key, value)
	return clone
}

// Set mutates p in place, setting key to value.
func (p Properties) Set(key string, value Value) {
	p.ensure()
	p.m.Set(key, value)
}

// Get returns the value for key and whether it was present.
func (p Properties) Get(key string) (Value, bool) {
	if p.m == nil {
		return Value{}, false
	}
	return p.m.Get(key)
}

// Delete removes key, if present.
func (p Properties) Delete(key string) {
	if p.m == nil {
		return
	}
	p.m.Delete(key)
}

// Len returns the number of entries.
func (p Properties) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	if p.m == nil {
		return nil
	}
	return p.m.Keys()
}

// Range calls fn for each entry in insertion order, stopping early if fn
// returns false.
func (p Properties) Range(fn func(key string, value Value) bool) {
	if p.m == nil {
		return
	}
	p.m.Range(fn)
}

// Merge returns a copy of p with every entry of other overlaid on top,
// overwriting on key collision. Keys new to p are appended in other's
// order.
func (p Properties) Merge(other Properties) Properties {
	clone := p.clone()
	other.Range(func(k string, v Value) bool {
		clone.m.Set(k, v)
		return true
	})
	return clone
}

func (p Properties) clone() Properties {
	if p.m == nil {
		return New()
	}
	return Properties{m: p.m.Clone()}
}

func (p *Properties) ensure() {
	if p.m == nil {
		p.m = omap.New[Value]()
	}
}

// String renders a debug representation.
func (p Properties) String() string {
	s := "{"
	first := true
	p.Range(func(k string, v Value) bool {
		if !first {
			s += ", "
		}
		first = false
		s += k + ": " + v.String()
		return true
	})
	return s + "}"
}
