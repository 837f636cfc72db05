package planpolicy

import (
	"context"
	"testing"

	"github.com/rhizome-lab/transmute/pkg/planner"
)

const denyLongPlansPolicy = `
package transmute.policies.maxsteps

deny[msg] {
	input.step_count > 2
	msg := "plan exceeds maximum step count"
}
`

const denyConverterPolicy = `
package transmute.policies.noslow

deny[msg] {
	input.steps[_].converter_id == "slow_path"
	msg := "plan must not use slow_path"
}
`

func samplePlan(converterIDs ...string) *planner.Plan {
	steps := make([]planner.PlanStep, len(converterIDs))
	for i, id := range converterIDs {
		steps[i] = planner.PlanStep{ConverterID: id}
	}
	return &planner.Plan{Steps: steps, Cost: float64(len(steps))}
}

func TestGateAllowsWhenNoPolicyViolated(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "maxsteps", Rego: denyLongPlansPolicy, Severity: SeverityError, Enabled: true,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	result, err := g.EvaluatePlan(context.Background(), samplePlan("a", "b"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("result = %+v, want Allowed", result)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("Violations = %+v, want none", result.Violations)
	}
}

func TestGateDeniesViolatingPlan(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "maxsteps", Rego: denyLongPlansPolicy, Severity: SeverityError, Enabled: true,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	result, err := g.EvaluatePlan(context.Background(), samplePlan("a", "b", "c"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected a plan exceeding max steps to be denied")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Violations = %+v, want exactly one", result.Violations)
	}
}

func TestGateDisabledPolicyIsIgnored(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "maxsteps", Rego: denyLongPlansPolicy, Severity: SeverityError, Enabled: false,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	result, err := g.EvaluatePlan(context.Background(), samplePlan("a", "b", "c"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected a disabled policy to be skipped entirely")
	}
}

func TestGateInfoSeverityDoesNotBlock(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "maxsteps", Rego: denyLongPlansPolicy, Severity: SeverityInfo, Enabled: true,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	result, err := g.EvaluatePlan(context.Background(), samplePlan("a", "b", "c"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected an info-severity violation to still report Allowed")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Violations = %+v, want exactly one (still reported)", result.Violations)
	}
}

func TestGateMatchesOnConverterID(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "noslow", Rego: denyConverterPolicy, Severity: SeverityCritical, Enabled: true,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	result, err := g.EvaluatePlan(context.Background(), samplePlan("fast_path"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected a plan without slow_path to be allowed")
	}

	result, err = g.EvaluatePlan(context.Background(), samplePlan("fast_path", "slow_path"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected a plan using slow_path to be denied")
	}
}

func TestLoadPolicyRejectsInvalidRego(t *testing.T) {
	g := NewGate()
	err := g.LoadPolicy(context.Background(), Policy{Name: "broken", Rego: "not valid rego {{{"})
	if err == nil {
		t.Fatal("expected an error loading a syntactically invalid policy")
	}
}

func TestRemovePolicy(t *testing.T) {
	g := NewGate()
	if err := g.LoadPolicy(context.Background(), Policy{
		Name: "maxsteps", Rego: denyLongPlansPolicy, Severity: SeverityError, Enabled: true,
	}); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	g.RemovePolicy("maxsteps")

	result, err := g.EvaluatePlan(context.Background(), samplePlan("a", "b", "c"))
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected plan to be allowed once its only policy was removed")
	}
}

func TestExtractPackageName(t *testing.T) {
	got := extractPackageName("# comment\npackage transmute.policies.foo\n\ndeny[msg] { false }")
	if got != "transmute.policies.foo" {
		t.Fatalf("extractPackageName() = %q, want transmute.policies.foo", got)
	}
}

func TestExtractPackageNameDefault(t *testing.T) {
	got := extractPackageName("deny[msg] { false }")
	if got != "transmute.policies" {
		t.Fatalf("extractPackageName() with no package line = %q, want default", got)
	}
}
