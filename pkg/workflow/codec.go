package workflow

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rhizome-lab/transmute/pkg/properties"
)

// Source and Sink are untagged unions in the original (serde picks the
// variant by which field is present). Go has no untagged-union decode in
// encoding/json or yaml.v3, so both codec paths below sniff the same way:
// decode into a raw object, inspect which of the variant's fields is
// present, then decode into the concrete type.

func fromJSON(data []byte) (Workflow, error) {
	var wire struct {
		Preset  string          `json:"preset"`
		Source  json.RawMessage `json:"source"`
		Steps   []Step          `json:"steps"`
		Sink    json.RawMessage `json:"sink"`
		Options properties.Properties `json:"options"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Workflow{}, newParseError("json", err)
	}

	w := Workflow{Preset: wire.Preset, Steps: wire.Steps, Options: wire.Options}

	if len(wire.Source) > 0 {
		src, err := sourceFromJSON(wire.Source)
		if err != nil {
			return Workflow{}, newParseError("json", err)
		}
		w.Source = src
	}
	if len(wire.Sink) > 0 {
		sink, err := sinkFromJSON(wire.Sink)
		if err != nil {
			return Workflow{}, newParseError("json", err)
		}
		w.Sink = sink
	}
	return w, nil
}

func sourceFromJSON(data []byte) (Source, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch {
	case probe["path"] != nil:
		var s SourceFile
		return s, json.Unmarshal(data, &s)
	case probe["glob"] != nil:
		var s SourceGlob
		return s, json.Unmarshal(data, &s)
	case probe["properties"] != nil:
		var s SourceProperties
		return s, json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("source must have one of path, glob, or properties")
	}
}

func sinkFromJSON(data []byte) (Sink, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch {
	case probe["path"] != nil:
		var s SinkFile
		return s, json.Unmarshal(data, &s)
	case probe["directory"] != nil:
		var s SinkDirectory
		return s, json.Unmarshal(data, &s)
	case probe["properties"] != nil:
		var s SinkProperties
		return s, json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("sink must have one of path, directory, or properties")
	}
}

func (w Workflow) toJSON() ([]byte, error) {
	wire := struct {
		Preset  string                 `json:"preset,omitempty"`
		Source  Source                 `json:"source,omitempty"`
		Steps   []Step                 `json:"steps,omitempty"`
		Sink    Sink                   `json:"sink,omitempty"`
		Options properties.Properties  `json:"options,omitempty"`
	}{
		Preset:  w.Preset,
		Source:  w.Source,
		Steps:   w.Steps,
		Sink:    w.Sink,
		Options: w.Options,
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return nil, newParseError("json", err)
	}
	return data, nil
}

func fromYAML(data []byte) (Workflow, error) {
	var wire struct {
		Preset  string                 `yaml:"preset"`
		Source  yaml.Node              `yaml:"source"`
		Steps   []Step                 `yaml:"steps"`
		Sink    yaml.Node              `yaml:"sink"`
		Options properties.Properties  `yaml:"options"`
	}
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return Workflow{}, newParseError("yaml", err)
	}

	w := Workflow{Preset: wire.Preset, Steps: wire.Steps, Options: wire.Options}

	if wire.Source.Kind != 0 {
		src, err := sourceFromYAML(&wire.Source)
		if err != nil {
			return Workflow{}, newParseError("yaml", err)
		}
		w.Source = src
	}
	if wire.Sink.Kind != 0 {
		sink, err := sinkFromYAML(&wire.Sink)
		if err != nil {
			return Workflow{}, newParseError("yaml", err)
		}
		w.Sink = sink
	}
	return w, nil
}

func yamlMapKeys(node *yaml.Node) map[string]*yaml.Node {
	keys := make(map[string]*yaml.Node)
	if node.Kind != yaml.MappingNode {
		return keys
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = node.Content[i+1]
	}
	return keys
}

func sourceFromYAML(node *yaml.Node) (Source, error) {
	keys := yamlMapKeys(node)
	switch {
	case keys["path"] != nil:
		var s SourceFile
		return s, node.Decode(&s)
	case keys["glob"] != nil:
		var s SourceGlob
		return s, node.Decode(&s)
	case keys["properties"] != nil:
		var s SourceProperties
		return s, node.Decode(&s)
	default:
		return nil, fmt.Errorf("source must have one of path, glob, or properties")
	}
}

func sinkFromYAML(node *yaml.Node) (Sink, error) {
	keys := yamlMapKeys(node)
	switch {
	case keys["path"] != nil:
		var s SinkFile
		return s, node.Decode(&s)
	case keys["directory"] != nil:
		var s SinkDirectory
		return s, node.Decode(&s)
	case keys["properties"] != nil:
		var s SinkProperties
		return s, node.Decode(&s)
	default:
		return nil, fmt.Errorf("sink must have one of path, directory, or properties")
	}
}

func (w Workflow) toYAML() ([]byte, error) {
	wire := struct {
		Preset  string                 `yaml:"preset,omitempty"`
		Source  Source                 `yaml:"source,omitempty"`
		Steps   []Step                 `yaml:"steps,omitempty"`
		Sink    Sink                   `yaml:"sink,omitempty"`
		Options properties.Properties  `yaml:"options,omitempty"`
	}{
		Preset:  w.Preset,
		Source:  w.Source,
		Steps:   w.Steps,
		Sink:    w.Sink,
		Options: w.Options,
	}
	data, err := yaml.Marshal(wire)
	if err != nil {
		return nil, newParseError("yaml", err)
	}
	return data, nil
}
