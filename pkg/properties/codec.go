package properties

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rhizome-lab/transmute/pkg/omap"
)

// MarshalJSON and UnmarshalJSON are hand-written rather than generated
// because the original's Properties is backed by an IndexMap specifically
// to preserve declaration order through serde round-trips; encoding/json's
// default map handling sorts keys and would silently break that guarantee.

// MarshalJSON renders v as a JSON scalar, array, or object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		buf := bytes.NewBufferString("[")
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	default:
		return nil, fmt.Errorf("properties: invalid value kind %d", v.kind)
	}
}

// UnmarshalJSON populates v from a JSON scalar, array, or object.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
		return nil
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
		return nil
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
		return nil
	}

	if len(data) == 0 {
		return fmt.Errorf("properties: empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		arr := make([]Value, len(raw))
		for i, r := range raw {
			if err := arr[i].UnmarshalJSON(r); err != nil {
				return err
			}
		}
		*v = Array(arr)
		return nil
	case '{':
		var p Properties
		if err := p.UnmarshalJSON(data); err != nil {
			return err
		}
		*v = Object(p)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var num json.Number
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("properties: invalid value %q: %w", data, err)
	}
	if i, err := num.Int64(); err == nil {
		*v = Int(i)
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return fmt.Errorf("properties: invalid number %q: %w", num, err)
	}
	*v = Float(f)
	return nil
}

// MarshalJSON renders p as a JSON object, keys in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	first := true
	var encErr error
	p.Range(func(k string, val Value) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		kb, err := json.Marshal(k)
		if err != nil {
			encErr = err
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := val.MarshalJSON()
		if err != nil {
			encErr = err
			return false
		}
		buf.Write(vb)
		return true
	})
	if encErr != nil {
		return nil, encErr
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON populates p from a JSON object, preserving key order via a
// token-by-token decode rather than encoding/json's map path.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected JSON object")
	}

	m := omap.New[Value]()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: expected string key")
		}
		var val Value
		if err := dec.Decode(&val); err != nil {
			return err
		}
		m.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	p.m = m
	return nil
}

// MarshalYAML renders v as a yaml.v3 node tree. Object values build a
// MappingNode directly (rather than returning a plain map) so that key
// order survives the encode, matching the JSON path above.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			y, err := e.MarshalYAML()
			if err != nil {
				return nil, err
			}
			out[i] = y
		}
		return out, nil
	case KindObject:
		return v.obj.MarshalYAML()
	default:
		return nil, fmt.Errorf("properties: invalid value kind %d", v.kind)
	}
}

// UnmarshalYAML populates v from a yaml.v3 node.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			*v = Null()
			return nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*v = Bool(b)
			return nil
		case "!!int":
			var i int64
			if err := node.Decode(&i); err != nil {
				return err
			}
			*v = Int(i)
			return nil
		case "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return err
			}
			*v = Float(f)
			return nil
		default:
			var s string
			if err := node.Decode(&s); err != nil {
				return err
			}
			*v = String(s)
			return nil
		}
	case yaml.SequenceNode:
		arr := make([]Value, len(node.Content))
		for i, c := range node.Content {
			if err := arr[i].UnmarshalYAML(c); err != nil {
				return err
			}
		}
		*v = Array(arr)
		return nil
	case yaml.MappingNode:
		var p Properties
		if err := p.UnmarshalYAML(node); err != nil {
			return err
		}
		*v = Object(p)
		return nil
	default:
		return fmt.Errorf("properties: unsupported YAML node kind %d", node.Kind)
	}
}

// MarshalYAML renders p as an ordered yaml.v3 mapping node.
func (p Properties) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var encErr error
	p.Range(func(k string, val Value) bool {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(k); err != nil {
			encErr = err
			return false
		}
		y, err := val.MarshalYAML()
		if err != nil {
			encErr = err
			return false
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(y); err != nil {
			encErr = err
			return false
		}
		node.Content = append(node.Content, keyNode, valNode)
		return true
	})
	if encErr != nil {
		return nil, encErr
	}
	return node, nil
}

// UnmarshalYAML populates p from an ordered yaml.v3 mapping node.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("properties: expected YAML mapping")
	}
	m := omap.New[Value]()
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		var val Value
		if err := val.UnmarshalYAML(node.Content[i+1]); err != nil {
			return err
		}
		m.Set(key, val)
	}
	p.m = m
	return nil
}
