package workflow

import (
	"testing"

	"github.com/rhizome-lab/transmute/pkg/properties"
)

func TestWorkflowJSONRoundTrip(t *testing.T) {
	w := New().SourceFile("in.png").Step("resize").SinkFile("out.jpg")
	w.Preset = "thumbnail"

	data, err := w.ToBytes("json")
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	out, err := FromBytesFormat(data, "json")
	if err != nil {
		t.Fatalf("FromBytesFormat: %v", err)
	}

	if out.Preset != "thumbnail" {
		t.Fatalf("Preset = %q, want thumbnail", out.Preset)
	}
	src, ok := out.Source.(SourceFile)
	if !ok || src.Path != "in.png" {
		t.Fatalf("Source = %+v, want SourceFile{in.png}", out.Source)
	}
	sink, ok := out.Sink.(SinkFile)
	if !ok || sink.Path != "out.jpg" {
		t.Fatalf("Sink = %+v, want SinkFile{out.jpg}", out.Sink)
	}
	if len(out.Steps) != 1 || out.Steps[0].Converter != "resize" {
		t.Fatalf("Steps = %+v, want one resize step", out.Steps)
	}
}

func TestWorkflowYAMLRoundTrip(t *testing.T) {
	w := New().SourceGlob("*.png").Step("resize").WithSink(SinkDirectory{Directory: "out/"})

	data, err := w.ToBytes("yaml")
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	out, err := FromBytesFormat(data, "yaml")
	if err != nil {
		t.Fatalf("FromBytesFormat: %v", err)
	}

	src, ok := out.Source.(SourceGlob)
	if !ok || src.Glob != "*.png" {
		t.Fatalf("Source = %+v, want SourceGlob{*.png}", out.Source)
	}
	sink, ok := out.Sink.(SinkDirectory)
	if !ok || sink.Directory != "out/" {
		t.Fatalf("Sink = %+v, want SinkDirectory{out/}", out.Sink)
	}
}

func TestWorkflowSourcePropertiesVariant(t *testing.T) {
	w := New().WithSource(SourceProperties{Properties: properties.New().With("format", properties.String("png"))}).SinkFile("out.jpg")

	data, err := w.ToBytes("json")
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	out, err := FromBytesFormat(data, "json")
	if err != nil {
		t.Fatalf("FromBytesFormat: %v", err)
	}
	src, ok := out.Source.(SourceProperties)
	if !ok {
		t.Fatalf("Source = %+v, want SourceProperties", out.Source)
	}
	if v, ok := src.Properties.Get("format"); !ok || !v.Equal(properties.String("png")) {
		t.Fatalf("Source.Properties[format] = %v, %v, want png, true", v, ok)
	}
}

func TestWorkflowSinkPropertiesVariant(t *testing.T) {
	w := New().SourceFile("in.png").WithSink(SinkProperties{Properties: properties.New().With("format", properties.String("gif"))})

	data, err := w.ToBytes("yaml")
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	out, err := FromBytesFormat(data, "yaml")
	if err != nil {
		t.Fatalf("FromBytesFormat: %v", err)
	}
	sink, ok := out.Sink.(SinkProperties)
	if !ok {
		t.Fatalf("Sink = %+v, want SinkProperties", out.Sink)
	}
	if v, ok := sink.Properties.Get("format"); !ok || !v.Equal(properties.String("gif")) {
		t.Fatalf("Sink.Properties[format] = %v, %v, want gif, true", v, ok)
	}
}

func TestSourceFromJSONRejectsUnrecognizedShape(t *testing.T) {
	_, err := sourceFromJSON([]byte(`{"unrelated": 1}`))
	if err == nil {
		t.Fatal("expected an error for a source object with none of path/glob/properties")
	}
}

func TestSinkFromYAMLRejectsUnrecognizedShape(t *testing.T) {
	_, err := FromBytesFormat([]byte("source:\n  path: in.png\nsink:\n  unrelated: 1\n"), "yaml")
	if err == nil {
		t.Fatal("expected an error for a sink mapping with none of path/directory/properties")
	}
}
