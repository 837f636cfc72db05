// Package workflow defines the serializable pipeline shape callers author
// by hand or generate from a planner.Plan: a source, an optional explicit
// step list, and a sink. A workflow missing its step list is incomplete and
// needs the planner to fill it in before it can run.
package workflow

import (
	"fmt"
	"strings"

	"github.com/rhizome-lab/transmute/pkg/pattern"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

// Source describes where a workflow's input comes from.
type Source interface {
	// ToProperties returns the properties the planner should search from.
	ToProperties() properties.Properties
	// IsBatch reports whether this source represents more than one item.
	IsBatch() bool
}

// SourceFile is a single file path source.
type SourceFile struct {
	Path string `json:"path" yaml:"path"`
}

// ToProperties reports the path and, if detectable, the format implied by
// the file extension.
func (s SourceFile) ToProperties() properties.Properties {
	props := properties.New().With("path", properties.String(s.Path))
	if format, ok := detectFormat(s.Path); ok {
		props = props.With("format", properties.String(format))
	}
	return props
}

// IsBatch is always false for a single file.
func (s SourceFile) IsBatch() bool { return false }

// SourceGlob is a glob pattern matching multiple input files.
type SourceGlob struct {
	Glob string `json:"glob" yaml:"glob"`
}

// ToProperties reports the glob and, if detectable, the format implied by
// the pattern's extension.
func (s SourceGlob) ToProperties() properties.Properties {
	props := properties.New().With("glob", properties.String(s.Glob))
	if format, ok := detectFormat(s.Glob); ok {
		props = props.With("format", properties.String(format))
	}
	return props
}

// IsBatch is always true for a glob, since it may match several files.
func (s SourceGlob) IsBatch() bool { return true }

// SourceProperties is an inline property set, used for planning without a
// concrete file on disk.
type SourceProperties struct {
	Properties properties.Properties `json:"properties" yaml:"properties"`
}

// ToProperties returns the inline properties unchanged.
func (s SourceProperties) ToProperties() properties.Properties { return s.Properties }

// IsBatch is always false; inline properties describe one item.
func (s SourceProperties) IsBatch() bool { return false }

// Sink describes where a workflow's output goes.
type Sink interface {
	// ToPattern returns the pattern the planner should search toward.
	ToPattern() pattern.PropertyPattern
}

// SinkFile is a single output file path.
type SinkFile struct {
	Path string `json:"path" yaml:"path"`
}

// ToPattern matches the format implied by the file extension, if any.
func (s SinkFile) ToPattern() pattern.PropertyPattern {
	p := pattern.NewPattern()
	if format, ok := detectFormat(s.Path); ok {
		p = p.Eq("format", properties.String(format))
	}
	return p
}

// SinkDirectory is an output directory for batch results. A directory
// alone carries no format information.
type SinkDirectory struct {
	Directory string `json:"directory" yaml:"directory"`
}

// ToPattern returns the empty pattern; nothing about a bare directory
// constrains the output format.
func (s SinkDirectory) ToPattern() pattern.PropertyPattern {
	return pattern.NewPattern()
}

// SinkProperties is an inline target pattern, used for planning without a
// concrete output path.
type SinkProperties struct {
	Properties properties.Properties `json:"properties" yaml:"properties"`
}

// ToPattern builds an Eq predicate for every property in the inline set.
func (s SinkProperties) ToPattern() pattern.PropertyPattern {
	p := pattern.NewPattern()
	s.Properties.Range(func(k string, v properties.Value) bool {
		p = p.Eq(k, v)
		return true
	})
	return p
}

// Step is one converter application in an explicit workflow.
type Step struct {
	// Converter is the converter ID to invoke.
	Converter string `json:"converter" yaml:"converter"`

	// Options are per-step converter options.
	Options properties.Properties `json:"options,omitempty" yaml:"options,omitempty"`

	// ID optionally names this step so later steps can reference its
	// output.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Input optionally selects a named input port (defaults to the
	// converter's sole input).
	Input string `json:"input,omitempty" yaml:"input,omitempty"`

	// Output optionally selects a named output port (defaults to the
	// converter's sole output).
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Workflow is a pipeline definition: a source, optional explicit steps, and
// a sink. Omitting Steps marks the workflow as needing planning.
type Workflow struct {
	// Preset optionally names a bundle of options to apply before the
	// explicit fields below.
	Preset string

	Source Source
	Steps  []Step
	Sink   Sink

	// Options are global options layered under every step's own options.
	Options properties.Properties
}

// New returns an empty workflow.
func New() Workflow {
	return Workflow{Options: properties.New()}
}

// WithSource sets the source.
func (w Workflow) WithSource(source Source) Workflow {
	w.Source = source
	return w
}

// SourceFile sets the source to a single file path.
func (w Workflow) SourceFile(path string) Workflow {
	return w.WithSource(SourceFile{Path: path})
}

// SourceGlob sets the source to a glob pattern.
func (w Workflow) SourceGlob(glob string) Workflow {
	return w.WithSource(SourceGlob{Glob: glob})
}

// Step appends a step invoking converter with no options.
func (w Workflow) Step(converter string) Workflow {
	w.Steps = append(append([]Step(nil), w.Steps...), Step{Converter: converter})
	return w
}

// WithSink sets the sink.
func (w Workflow) WithSink(sink Sink) Workflow {
	w.Sink = sink
	return w
}

// SinkFile sets the sink to a single output file path.
func (w Workflow) SinkFile(path string) Workflow {
	return w.WithSink(SinkFile{Path: path})
}

// IsComplete reports whether the workflow has a source, a sink, and at
// least one explicit step.
func (w Workflow) IsComplete() bool {
	return w.Source != nil && w.Sink != nil && len(w.Steps) > 0
}

// NeedsPlanning reports whether the workflow has a source and a sink but
// no explicit steps, meaning the planner must fill them in before it can
// run.
func (w Workflow) NeedsPlanning() bool {
	return w.Source != nil && w.Sink != nil && len(w.Steps) == 0
}

// ErrorKind identifies which workflow-layer failure occurred.
type ErrorKind int

const (
	// Parse indicates the workflow bytes could not be decoded.
	Parse ErrorKind = iota
	// Incomplete indicates an operation required a complete workflow
	// (source + sink + steps) and it wasn't.
	Incomplete
	// Execution indicates the workflow failed while running.
	Execution
)

// WorkflowError is the workflow-layer error taxonomy, following the same
// Error()/Unwrap()/Is() shape as converter.ConvertError and
// executor.ExecuteError.
type WorkflowError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	switch e.Kind {
	case Parse:
		return fmt.Sprintf("failed to parse workflow: %s", e.Message)
	case Incomplete:
		return fmt.Sprintf("incomplete workflow: %s", e.Message)
	case Execution:
		return fmt.Sprintf("workflow execution failed: %s", e.Message)
	default:
		return fmt.Sprintf("workflow error: %s", e.Message)
	}
}

func (e *WorkflowError) Unwrap() error { return e.Err }

func (e *WorkflowError) Is(target error) bool {
	other, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newParseError(format string, err error) *WorkflowError {
	return &WorkflowError{Kind: Parse, Message: fmt.Sprintf("%s: %s", format, err.Error()), Err: err}
}

// FromBytes parses a workflow, auto-detecting its format from path's
// extension. If path is empty or its extension is unrecognized, yaml is
// assumed.
func FromBytes(data []byte, path string) (Workflow, error) {
	format, ok := detectFormat(path)
	if !ok {
		format = "yaml"
	}
	return FromBytesFormat(data, format)
}

// FromBytesFormat parses a workflow in an explicit format ("json", "yaml",
// or "yml"). TOML is not supported: the pack carries no TOML library, and
// the original's RON/msgpack/cbor variants are not wire formats real Go
// workflow files are authored in, so only JSON and YAML are implemented.
func FromBytesFormat(data []byte, format string) (Workflow, error) {
	switch strings.ToLower(format) {
	case "json":
		return fromJSON(data)
	case "yaml", "yml":
		return fromYAML(data)
	default:
		return Workflow{}, &WorkflowError{Kind: Parse, Message: fmt.Sprintf("unsupported workflow format: %s", format)}
	}
}

// ToBytes serializes the workflow in an explicit format ("json", "yaml",
// or "yml").
func (w Workflow) ToBytes(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return w.toJSON()
	case "yaml", "yml":
		return w.toYAML()
	default:
		return nil, &WorkflowError{Kind: Parse, Message: fmt.Sprintf("unsupported workflow format: %s", format)}
	}
}

// detectFormat infers a format tag from a path's extension, mirroring the
// original's detect_format. Only json/yaml map to a Workflow wire format;
// the rest (including the image formats) only ever populate a source or
// sink's "format" property.
func detectFormat(path string) (string, bool) {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return "", false
	}
	switch strings.ToLower(path[idx+1:]) {
	case "json":
		return "json", true
	case "yaml", "yml":
		return "yaml", true
	case "toml":
		return "toml", true
	case "ron":
		return "ron", true
	case "msgpack", "mp":
		return "msgpack", true
	case "cbor":
		return "cbor", true
	case "csv":
		return "csv", true
	case "png":
		return "png", true
	case "jpg", "jpeg":
		return "jpg", true
	case "webp":
		return "webp", true
	case "gif":
		return "gif", true
	default:
		return "", false
	}
}
