// Package registry holds the two parallel indices the planner and executor
// read from: converter declarations (always present once registered) and
// converter implementations (optional, enabling plan-only dry runs against
// declarations nobody has wired code for yet).
package registry

import (
	"fmt"

	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/properties"
	"github.com/rhizome-lab/transmute/pkg/telemetry"
)

var validate = validator.New()

// Registry is the converter catalog. Declarations and implementations are
// keyed by ConverterDecl.ID and iterate in registration order, which the
// planner relies on for deterministic tie-breaking between equal-cost
// edges.
type Registry struct {
	declOrder       []string
	declarations    map[string]converter.ConverterDecl
	implementations map[string]converter.Converter
	logger          *telemetry.Logger
}

// New returns an empty registry, logging registrations through
// telemetry.FromContext's default logger until WithLogger attaches a
// configured one.
func New() *Registry {
	return &Registry{
		declarations:    make(map[string]converter.ConverterDecl),
		implementations: make(map[string]converter.Converter),
		logger:          telemetry.FromContext(context.Background()),
	}
}

// WithLogger attaches a configured logger (e.g. one pulled off a
// *telemetry.Telemetry) so registration events carry the same fields and
// sinks as the rest of the engine's telemetry.
func (r *Registry) WithLogger(logger *telemetry.Logger) *Registry {
	r.logger = logger
	return r
}

// RegisterDecl inserts a declaration with no backing implementation, for
// plan-only exploration, or replaces the existing one if id is already
// registered — a replaced id keeps its original position in registration
// order rather than moving to the end. Returns an error only if the
// declaration is structurally invalid (empty ID, no inputs or no outputs).
func (r *Registry) RegisterDecl(decl converter.ConverterDecl) error {
	if err := validate.Struct(decl); err != nil {
		return fmt.Errorf("registry: invalid converter declaration: %w", err)
	}
	if len(decl.Inputs) == 0 {
		return fmt.Errorf("registry: converter %q declares no input ports", decl.ID)
	}
	if len(decl.Outputs) == 0 {
		return fmt.Errorf("registry: converter %q declares no output ports", decl.ID)
	}
	if _, exists := r.declarations[decl.ID]; !exists {
		r.declOrder = append(r.declOrder, decl.ID)
		r.logger.WithConverter(decl.ID).Debugf("registered converter declaration: %d input(s), %d output(s)", len(decl.Inputs), len(decl.Outputs))
	} else {
		r.logger.WithConverter(decl.ID).Debugf("replaced converter declaration in place")
	}
	r.declarations[decl.ID] = decl
	return nil
}

// Register adds a converter implementation, registering its declaration if
// not already present.
func (r *Registry) Register(conv converter.Converter) error {
	decl := conv.Decl()
	if _, exists := r.declarations[decl.ID]; !exists {
		if err := r.RegisterDecl(decl); err != nil {
			return err
		}
	}
	r.implementations[decl.ID] = conv
	r.logger.WithConverter(decl.ID).Debugf("registered converter implementation")
	return nil
}

// GetDecl returns the declaration for id.
func (r *Registry) GetDecl(id string) (converter.ConverterDecl, bool) {
	d, ok := r.declarations[id]
	return d, ok
}

// Get returns the implementation for id, if one was registered.
func (r *Registry) Get(id string) (converter.Converter, bool) {
	c, ok := r.implementations[id]
	return c, ok
}

// Declarations returns all declarations in registration order.
func (r *Registry) Declarations() []converter.ConverterDecl {
	out := make([]converter.ConverterDecl, 0, len(r.declOrder))
	for _, id := range r.declOrder {
		out = append(out, r.declarations[id])
	}
	return out
}

// FindMatchingInput returns, in registration order, every declaration that
// has an input port matching props. This is the planner's edge-discovery
// primitive: each match is a converter that could be applied next.
func (r *Registry) FindMatchingInput(props properties.Properties) []converter.ConverterDecl {
	var out []converter.ConverterDecl
	for _, id := range r.declOrder {
		decl := r.declarations[id]
		if _, _, ok := decl.MatchesInput(props); ok {
			out = append(out, decl)
		}
	}
	return out
}

// FindSimpleMatchingInput is FindMatchingInput narrowed to simple
// (one-in, one-out, non-list) converters. The planner itself searches with
// FindMatchingInput.
func (r *Registry) FindSimpleMatchingInput(props properties.Properties) []converter.ConverterDecl {
	var out []converter.ConverterDecl
	for _, id := range r.declOrder {
		decl := r.declarations[id]
		if !decl.IsSimple() {
			continue
		}
		if _, _, ok := decl.MatchesInput(props); ok {
			out = append(out, decl)
		}
	}
	return out
}

// Len returns the number of registered declarations.
func (r *Registry) Len() int {
	return len(r.declOrder)
}

// IsEmpty reports whether the registry has no declarations.
func (r *Registry) IsEmpty() bool {
	return len(r.declOrder) == 0
}
