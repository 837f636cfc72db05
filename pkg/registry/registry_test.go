package registry

import (
	"testing"

	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/pattern"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

func simpleDecl(id string) converter.ConverterDecl {
	return converter.NewDecl(id).Simple(
		pattern.NewPattern().Eq("format", properties.String("png")),
		pattern.NewPattern().Eq("format", properties.String("jpg")),
	)
}

func TestRegisterDeclReplacesDuplicateID(t *testing.T) {
	r := New()
	if err := r.RegisterDecl(simpleDecl("a").WithDescription("first")); err != nil {
		t.Fatalf("first RegisterDecl: %v", err)
	}
	if err := r.RegisterDecl(simpleDecl("a").WithDescription("second")); err != nil {
		t.Fatalf("replacing RegisterDecl: %v", err)
	}

	decl, ok := r.GetDecl("a")
	if !ok || decl.Description != "second" {
		t.Fatalf("GetDecl(a) = %+v, want replaced declaration", decl)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (replace must not duplicate the entry)", r.Len())
	}
}

func TestRegisterDeclReplaceKeepsRegistrationPosition(t *testing.T) {
	r := New()
	_ = r.RegisterDecl(simpleDecl("a"))
	_ = r.RegisterDecl(simpleDecl("b"))
	_ = r.RegisterDecl(simpleDecl("a").WithDescription("replaced"))

	decls := r.Declarations()
	if len(decls) != 2 || decls[0].ID != "a" || decls[1].ID != "b" {
		t.Fatalf("Declarations() order = %v, want [a b] (replace keeps original position)", ids(decls))
	}
}

func TestRegisterDeclRejectsMissingPorts(t *testing.T) {
	r := New()
	noInputs := converter.NewDecl("x").Output("out", converter.Single(pattern.NewPattern()))
	if err := r.RegisterDecl(noInputs); err == nil {
		t.Fatal("expected error for decl with no input ports")
	}

	noOutputs := converter.NewDecl("y").Input("in", converter.Single(pattern.NewPattern()))
	if err := r.RegisterDecl(noOutputs); err == nil {
		t.Fatal("expected error for decl with no output ports")
	}
}

func TestRegisterDeclRejectsEmptyID(t *testing.T) {
	r := New()
	decl := converter.NewDecl("").
		Input("in", converter.Single(pattern.NewPattern())).
		Output("out", converter.Single(pattern.NewPattern()))
	if err := r.RegisterDecl(decl); err == nil {
		t.Fatal("expected validation error for empty ID")
	}
}

func TestDeclarationsPreserveRegistrationOrder(t *testing.T) {
	r := New()
	_ = r.RegisterDecl(simpleDecl("c"))
	_ = r.RegisterDecl(simpleDecl("a"))
	_ = r.RegisterDecl(simpleDecl("b"))

	decls := r.Declarations()
	if len(decls) != 3 || decls[0].ID != "c" || decls[1].ID != "a" || decls[2].ID != "b" {
		t.Fatalf("Declarations() order = %v, want [c a b]", ids(decls))
	}
}

func ids(decls []converter.ConverterDecl) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.ID
	}
	return out
}

func TestFindMatchingInput(t *testing.T) {
	r := New()
	_ = r.RegisterDecl(simpleDecl("png_to_jpg"))
	other := converter.NewDecl("gif_to_png").Simple(
		pattern.NewPattern().Eq("format", properties.String("gif")),
		pattern.NewPattern().Eq("format", properties.String("png")),
	)
	_ = r.RegisterDecl(other)

	props := properties.New().With("format", properties.String("png"))
	matches := r.FindMatchingInput(props)
	if len(matches) != 1 || matches[0].ID != "png_to_jpg" {
		t.Fatalf("FindMatchingInput() = %v, want [png_to_jpg]", ids(matches))
	}
}

func TestGetDeclAndGet(t *testing.T) {
	r := New()
	_ = r.RegisterDecl(simpleDecl("a"))

	if _, ok := r.GetDecl("a"); !ok {
		t.Fatal("expected GetDecl to find registered declaration")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("expected Get to report false: no implementation was registered")
	}
	if _, ok := r.GetDecl("missing"); ok {
		t.Fatal("expected GetDecl to report false for unknown id")
	}
}

func TestLenAndIsEmpty(t *testing.T) {
	r := New()
	if !r.IsEmpty() || r.Len() != 0 {
		t.Fatal("expected new registry to be empty")
	}
	_ = r.RegisterDecl(simpleDecl("a"))
	if r.IsEmpty() || r.Len() != 1 {
		t.Fatalf("Len() = %d, IsEmpty() = %v, want 1, false", r.Len(), r.IsEmpty())
	}
}
