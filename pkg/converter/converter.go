// Package converter defines the declarative converter interface: the
// PortDecl/ConverterDecl algebra the registry and planner reason about, and
// the Converter contract implementations satisfy.
package converter

import (
	"context"
	"fmt"

	"github.com/rhizome-lab/transmute/pkg/pattern"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

// PortDecl declares one input or output port of a converter: the property
// pattern it requires (input) or produces (output), and whether it carries
// a single item or a list of items.
type PortDecl struct {
	Pattern pattern.PropertyPattern
	List    bool
}

// Single returns a non-list port matching p.
func Single(p pattern.PropertyPattern) PortDecl {
	return PortDecl{Pattern: p, List: false}
}

// List returns a list port matching p.
func List(p pattern.PropertyPattern) PortDecl {
	return PortDecl{Pattern: p, List: true}
}

// ConverterDecl is the static, introspectable shape of a converter: its
// identity, its named input and output ports, and its per-target costs.
// Declarations exist independently of implementations so the planner can
// dry-run plans against converters that have not been registered with code.
type ConverterDecl struct {
	ID          string `validate:"required"`
	Description string
	Inputs      map[string]PortDecl
	inputOrder  []string
	Outputs     map[string]PortDecl
	outputOrder []string
	Costs       map[string]float64
	Cost        float64
}

// NewDecl starts a builder-style declaration for a converter identified by
// id. Chain WithDescription/Input/Output/Simple/WithCost to finish it.
func NewDecl(id string) ConverterDecl {
	return ConverterDecl{
		ID:      id,
		Inputs:  make(map[string]PortDecl),
		Outputs: make(map[string]PortDecl),
		Costs:   make(map[string]float64),
		Cost:    1.0,
	}
}

// WithDescription sets the human-readable description.
func (d ConverterDecl) WithDescription(desc string) ConverterDecl {
	d.Description = desc
	return d
}

// Input adds a named input port, preserving declaration order.
func (d ConverterDecl) Input(name string, port PortDecl) ConverterDecl {
	if _, exists := d.Inputs[name]; !exists {
		d.inputOrder = append(append([]string(nil), d.inputOrder...), name)
	}
	d.Inputs = cloneMap(d.Inputs)
	d.Inputs[name] = port
	return d
}

// Output adds a named output port, preserving declaration order.
func (d ConverterDecl) Output(name string, port PortDecl) ConverterDecl {
	if _, exists := d.Outputs[name]; !exists {
		d.outputOrder = append(append([]string(nil), d.outputOrder...), name)
	}
	d.Outputs = cloneMap(d.Outputs)
	d.Outputs[name] = port
	return d
}

// Simple is shorthand for a converter with exactly one input port named
// "in" and one output port named "out", both non-list.
func (d ConverterDecl) Simple(in, out pattern.PropertyPattern) ConverterDecl {
	return d.Input("in", Single(in)).Output("out", Single(out))
}

// WithCost sets a cost for a specific optimization key (e.g. "quality_loss",
// "speed", "size").
func (d ConverterDecl) WithCost(key string, cost float64) ConverterDecl {
	d.Costs = cloneCosts(d.Costs)
	d.Costs[key] = cost
	return d
}

func cloneMap(m map[string]PortDecl) map[string]PortDecl {
	out := make(map[string]PortDecl, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCosts(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InputNames returns input port names in declaration order.
func (d ConverterDecl) InputNames() []string {
	return d.inputOrder
}

// OutputNames returns output port names in declaration order.
func (d ConverterDecl) OutputNames() []string {
	return d.outputOrder
}

// IsSimple reports whether d has exactly one non-list input and one
// non-list output.
func (d ConverterDecl) IsSimple() bool {
	if len(d.Inputs) != 1 || len(d.Outputs) != 1 {
		return false
	}
	for _, p := range d.Inputs {
		if p.List {
			return false
		}
	}
	for _, p := range d.Outputs {
		if p.List {
			return false
		}
	}
	return true
}

// Aggregates reports whether any input port is a list port.
func (d ConverterDecl) Aggregates() bool {
	for _, p := range d.Inputs {
		if p.List {
			return true
		}
	}
	return false
}

// Expands reports whether any output port is a list port.
func (d ConverterDecl) Expands() bool {
	for _, p := range d.Outputs {
		if p.List {
			return true
		}
	}
	return false
}

// HasMultiInput reports whether d declares more than one input port.
func (d ConverterDecl) HasMultiInput() bool {
	return len(d.Inputs) > 1
}

// MatchesInput reports whether props satisfies any input port's pattern,
// returning the first matching port name in declaration order.
func (d ConverterDecl) MatchesInput(props properties.Properties) (string, PortDecl, bool) {
	for _, name := range d.inputOrder {
		port := d.Inputs[name]
		if port.Pattern.Matches(props) {
			return name, port, true
		}
	}
	return "", PortDecl{}, false
}

// OutputPattern returns the first declared output port's pattern, matching
// the original's single-output-port planning assumption (see SPEC_FULL.md
// §6 for the multi-output Open Question).
func (d ConverterDecl) OutputPattern() (string, PortDecl, bool) {
	if len(d.outputOrder) == 0 {
		return "", PortDecl{}, false
	}
	name := d.outputOrder[0]
	return name, d.Outputs[name], true
}

// NamedInput is one named input slot handed to Converter.ConvertMulti.
type NamedInput struct {
	Data  []byte
	Props properties.Properties
}

// OutputKind identifies which variant of ConvertOutput is populated.
type OutputKind int

const (
	OutputSingle OutputKind = iota
	OutputMultiple
)

// ConvertOutput is the sum type a converter invocation returns: either one
// (bytes, properties) pair, or several (in expansion).
type ConvertOutput struct {
	Kind   OutputKind
	Single struct {
		Data  []byte
		Props properties.Properties
	}
	Multiple []struct {
		Data  []byte
		Props properties.Properties
	}
}

// Item bundles a single output pair. It exists so callers building
// ConvertOutput.Multiple don't have to spell the anonymous struct type.
type Item struct {
	Data  []byte
	Props properties.Properties
}

// NewSingleOutput wraps one output pair.
func NewSingleOutput(data []byte, props properties.Properties) ConvertOutput {
	out := ConvertOutput{Kind: OutputSingle}
	out.Single.Data = data
	out.Single.Props = props
	return out
}

// NewMultipleOutput wraps several output pairs.
func NewMultipleOutput(items []Item) ConvertOutput {
	out := ConvertOutput{Kind: OutputMultiple}
	out.Multiple = make([]struct {
		Data  []byte
		Props properties.Properties
	}, len(items))
	for i, it := range items {
		out.Multiple[i].Data = it.Data
		out.Multiple[i].Props = it.Props
	}
	return out
}

// Items flattens the output into a slice regardless of Kind, for executor
// code that wants uniform handling.
func (o ConvertOutput) Items() []Item {
	switch o.Kind {
	case OutputSingle:
		return []Item{{Data: o.Single.Data, Props: o.Single.Props}}
	case OutputMultiple:
		items := make([]Item, len(o.Multiple))
		for i, m := range o.Multiple {
			items[i] = Item{Data: m.Data, Props: m.Props}
		}
		return items
	default:
		return nil
	}
}

// Converter is the runtime contract implementations satisfy. Convert is
// mandatory; ConvertMulti and ConvertBatch have rejecting defaults via the
// embeddable Unsupported helper below, matching the original's
// default-trait-method rejections for converters that don't support
// multi-input or batch execution.
type Converter interface {
	Decl() ConverterDecl
	Convert(ctx context.Context, input []byte, props properties.Properties) (ConvertOutput, error)
	ConvertMulti(ctx context.Context, inputs map[string]NamedInput) (ConvertOutput, error)
	ConvertBatch(ctx context.Context, items []Item) (ConvertOutput, error)
}

// Unsupported embeds into a converter implementation to provide the
// rejecting defaults for ConvertMulti and ConvertBatch, so simple
// converters only need to implement Decl and Convert.
type Unsupported struct{}

// ConvertMulti rejects with MultiInputNotSupported.
func (Unsupported) ConvertMulti(ctx context.Context, inputs map[string]NamedInput) (ConvertOutput, error) {
	return ConvertOutput{}, &ConvertError{Kind: MultiInputNotSupported}
}

// ConvertBatch rejects with BatchNotSupported.
func (Unsupported) ConvertBatch(ctx context.Context, items []Item) (ConvertOutput, error) {
	return ConvertOutput{}, &ConvertError{Kind: BatchNotSupported}
}

// ErrorKind identifies which converter-layer failure occurred.
type ErrorKind int

const (
	Failed ErrorKind = iota
	BatchNotSupported
	MultiInputNotSupported
	MissingInput
	InvalidInput
	MissingProperty
	Other
)

// ConvertError is the converter-layer error taxonomy: a conversion either
// fails for a domain reason (Failed/InvalidInput/MissingProperty/
// MissingInput) or rejects an entry point it doesn't implement
// (BatchNotSupported/MultiInputNotSupported).
type ConvertError struct {
	Kind    ErrorKind
	Message string
	Input   string
	Field   string
	Err     error
}

func (e *ConvertError) Error() string {
	switch e.Kind {
	case Failed:
		return fmt.Sprintf("conversion failed: %s", e.Message)
	case BatchNotSupported:
		return "converter does not support batch conversion"
	case MultiInputNotSupported:
		return "converter does not support multi-input conversion"
	case MissingInput:
		return fmt.Sprintf("missing required input: %s", e.Input)
	case InvalidInput:
		return fmt.Sprintf("invalid input: %s", e.Message)
	case MissingProperty:
		return fmt.Sprintf("missing required property: %s", e.Field)
	default:
		return fmt.Sprintf("converter error: %s", e.Message)
	}
}

func (e *ConvertError) Unwrap() error { return e.Err }

// NewFailedError wraps a conversion failure with an underlying cause.
func NewFailedError(message string, err error) *ConvertError {
	return &ConvertError{Kind: Failed, Message: message, Err: err}
}

// NewMissingInputError reports a named input port that was not supplied.
func NewMissingInputError(name string) *ConvertError {
	return &ConvertError{Kind: MissingInput, Input: name}
}

// NewInvalidInputError reports malformed input bytes.
func NewInvalidInputError(message string) *ConvertError {
	return &ConvertError{Kind: InvalidInput, Message: message}
}

// NewMissingPropertyError reports a required property absent from the
// input Properties.
func NewMissingPropertyError(field string) *ConvertError {
	return &ConvertError{Kind: MissingProperty, Field: field}
}

// Is supports errors.Is comparisons against the ErrorKind rather than
// requiring exact message equality.
func (e *ConvertError) Is(target error) bool {
	other, ok := target.(*ConvertError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
