// Package planpolicy gates a planner.Plan against Rego policies before an
// executor is allowed to run it — e.g. forbidding plans that route through
// a named converter, or that exceed a cost ceiling.
package planpolicy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/rhizome-lab/transmute/pkg/planner"
)

// Severity is a policy violation's severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is a named Rego policy gating plans. Its deny rule set (rule
// "deny" under the package declared in the Rego source itself, not under
// Name) produces the violations EvaluatePlan collects.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
}

// Violation is one deny result produced by a policy.
type Violation struct {
	Policy   string
	Message  string
	Severity Severity
	Details  map[string]interface{}
}

// Result is the outcome of gating a plan against every loaded policy.
type Result struct {
	Allowed    bool
	Violations []Violation
}

// stepInput is the Rego-visible shape of one planner.PlanStep.
type stepInput struct {
	Index       int     `json:"index"`
	ConverterID string  `json:"converter_id"`
	InputPort   string  `json:"input_port"`
	OutputPort  string  `json:"output_port"`
}

// planInput is the Rego input document built from a planner.Plan.
type planInput struct {
	Steps     []stepInput `json:"steps"`
	StepCount int         `json:"step_count"`
	Cost      float64     `json:"cost"`
}

func newPlanInput(plan *planner.Plan) *planInput {
	steps := make([]stepInput, len(plan.Steps))
	for i, s := range plan.Steps {
		steps[i] = stepInput{
			Index:       i,
			ConverterID: s.ConverterID,
			InputPort:   s.InputPort,
			OutputPort:  s.OutputPort,
		}
	}
	return &planInput{Steps: steps, StepCount: len(steps), Cost: plan.Cost}
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// Gate holds compiled policies and evaluates plans against them.
type Gate struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
}

// NewGate returns an empty Gate.
func NewGate() *Gate {
	return &Gate{policies: make(map[string]*compiledPolicy)}
}

// LoadPolicy compiles p's Rego module and prepares it for repeated
// evaluation, following pkg/policy/engine.go's compileAndStorePolicy
// (ast.ParseModule for early syntax errors, then rego.New+PrepareForEval
// to build a reusable PreparedEvalQuery instead of recompiling on every
// EvaluatePlan call).
func (g *Gate) LoadPolicy(ctx context.Context, p Policy) error {
	if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
		return fmt.Errorf("planpolicy: parse policy %s: %w", p.Name, err)
	}

	pkg := extractPackageName(p.Rego)
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("planpolicy: compile policy %s: %w", p.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	policy := p
	g.policies[p.Name] = &compiledPolicy{policy: &policy, query: query}
	return nil
}

// RemovePolicy removes a loaded policy by name.
func (g *Gate) RemovePolicy(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.policies, name)
}

// EvaluatePlan runs every enabled policy's prepared query against plan and
// collects the resulting violations. A plan is Allowed unless at least one
// violation carries error or critical severity, matching
// pkg/policy/engine.go's EvaluatePlan.
func (g *Gate) EvaluatePlan(ctx context.Context, plan *planner.Plan) (*Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	input := newPlanInput(plan)

	var violations []Violation
	for _, cp := range g.policies {
		if !cp.policy.Enabled {
			continue
		}

		rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("planpolicy: evaluate policy %s: %w", cp.policy.Name, err)
		}
		for _, r := range rs {
			for _, expr := range r.Expressions {
				denySet, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denySet {
					violations = append(violations, newViolation(cp.policy, d))
				}
			}
		}
	}

	allowed := true
	for _, v := range violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			allowed = false
			break
		}
	}

	return &Result{Allowed: allowed, Violations: violations}, nil
}

func newViolation(policy *Policy, result interface{}) Violation {
	v := Violation{Policy: policy.Name, Severity: policy.Severity}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		v.Details = r
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// extractPackageName pulls the Rego "package x.y" declaration out of src,
// following pkg/policy/engine.go's extractPackageName.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "transmute.policies"
}
