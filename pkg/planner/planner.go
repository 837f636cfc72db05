// Package planner finds a sequence of converter applications (a Plan) that
// carries a starting Properties/Cardinality state to one matching a target
// PropertyPattern/Cardinality, using A* search over the registry's
// declarations.
package planner

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/pattern"
	"github.com/rhizome-lab/transmute/pkg/properties"
	"github.com/rhizome-lab/transmute/pkg/registry"
	"github.com/rhizome-lab/transmute/pkg/telemetry"
)

// Cardinality tracks whether the current state represents a single item
// (One) or a list of items (Many). It is tracked independently of
// Properties because a converter's output pattern does not by itself say
// how many items satisfy it.
type Cardinality int

const (
	One Cardinality = iota
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// OptimizeTarget selects which cost dimension the planner minimizes.
// Speed is the default, matching the original.
type OptimizeTarget int

const (
	Speed OptimizeTarget = iota
	Quality
	Size
)

func (o OptimizeTarget) costKey() string {
	switch o {
	case Quality:
		return "quality_loss"
	case Size:
		return "size"
	default:
		return "speed"
	}
}

func (o OptimizeTarget) String() string {
	switch o {
	case Quality:
		return "quality"
	case Size:
		return "size"
	default:
		return "speed"
	}
}

// PlanStep is one converter application in a Plan.
type PlanStep struct {
	ConverterID      string
	InputPort        string
	OutputPort       string
	OutputProperties properties.Properties
}

// Plan is an ordered sequence of converter applications and their total
// cost. A Plan with zero Steps means the source already satisfies the
// target.
type Plan struct {
	Steps []PlanStep
	Cost  float64
}

// Planner runs A* search over a Registry's declarations. It consults
// declarations only — it never invokes a converter implementation — so a
// Plan can be computed even for converters that have no registered Go code
// behind them yet.
type Planner struct {
	registry *registry.Registry
	maxDepth int
	optimize OptimizeTarget
}

// New returns a Planner with the default max depth (10) and Speed
// optimization target.
func New(reg *registry.Registry) *Planner {
	return &Planner{registry: reg, maxDepth: 10, optimize: Speed}
}

// WithMaxDepth overrides the default search depth bound, which guarantees
// termination on a registry with cycles.
func (p *Planner) WithMaxDepth(depth int) *Planner {
	p.maxDepth = depth
	return p
}

// WithOptimizeTarget overrides the default Speed optimization target.
func (p *Planner) WithOptimizeTarget(target OptimizeTarget) *Planner {
	p.optimize = target
	return p
}

// searchNode is one frontier entry in the A* search.
type searchNode struct {
	props          properties.Properties
	cardinality    Cardinality
	steps          []PlanStep
	cost           float64
	estimatedTotal float64
	seq            int // insertion order, for deterministic tie-breaking
}

type frontier []*searchNode

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].estimatedTotal != f[j].estimatedTotal {
		return f[i].estimatedTotal < f[j].estimatedTotal
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*searchNode)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// Plan searches for a sequence of converter applications taking
// (source, sourceCardinality) to a state matching
// (target, targetCardinality). A nil error with a nil Plan never happens:
// "no path found" is reported as ErrNoPlan, a normal (non-exceptional)
// outcome, not a failure of the search itself. The search is logged,
// traced and measured under a fresh plan id if ctx carries a
// *telemetry.Telemetry; with a bare context it still logs through
// telemetry.FromContext's default logger.
func (p *Planner) Plan(ctx context.Context, source properties.Properties, sourceCardinality Cardinality, target pattern.PropertyPattern, targetCardinality Cardinality) (plan *Plan, err error) {
	planID := uuid.NewString()
	ctx = telemetry.WithPlanContext(ctx, planID, p.optimize.String())
	logger := telemetry.FromContext(ctx).WithPlanID(planID)
	logger.Debugf("plan search starting: optimize=%s max_depth=%d", p.optimize, p.maxDepth)

	defer func() {
		steps, cost := 0, 0.0
		if plan != nil {
			steps, cost = len(plan.Steps), plan.Cost
		}
		telemetry.EndPlanContext(ctx, planID, p.optimize.String(), steps, cost, err)
		if err != nil {
			logger.WithError(err).Warn("plan search finished without a plan")
		} else {
			logger.Infof("plan search found a %d-step plan at cost %g", steps, cost)
		}
	}()

	if target.Matches(source) && sourceCardinality == targetCardinality {
		return &Plan{Steps: nil, Cost: 0}, nil
	}

	visited := make(map[string]bool)
	var seq int
	open := &frontier{}
	heap.Init(open)
	heap.Push(open, &searchNode{
		props:          source,
		cardinality:    sourceCardinality,
		steps:          nil,
		cost:           0,
		estimatedTotal: float64(target.UnsatisfiedCount(source)),
		seq:            seq,
	})

	for open.Len() > 0 {
		current := heap.Pop(open).(*searchNode)

		if target.Matches(current.props) && current.cardinality == targetCardinality {
			return &Plan{Steps: current.steps, Cost: current.cost}, nil
		}

		if len(current.steps) >= p.maxDepth {
			continue
		}

		key := stateKey(current.props, current.cardinality)
		if visited[key] {
			continue
		}
		visited[key] = true

		for _, decl := range p.registry.FindMatchingInput(current.props) {
			nextProps, nextCardinality, inputPort, outputPort, ok := tryApply(decl, current.props, current.cardinality)
			if !ok {
				continue
			}

			nextKey := stateKey(nextProps, nextCardinality)
			if visited[nextKey] {
				continue
			}

			stepCost := costFor(decl, p.optimize)
			nextSteps := make([]PlanStep, len(current.steps), len(current.steps)+1)
			copy(nextSteps, current.steps)
			nextSteps = append(nextSteps, PlanStep{
				ConverterID:      decl.ID,
				InputPort:        inputPort,
				OutputPort:       outputPort,
				OutputProperties: nextProps,
			})

			nextCost := current.cost + stepCost
			heuristic := float64(target.UnsatisfiedCount(nextProps))
			seq++
			heap.Push(open, &searchNode{
				props:          nextProps,
				cardinality:    nextCardinality,
				steps:          nextSteps,
				cost:           nextCost,
				estimatedTotal: nextCost + heuristic,
				seq:            seq,
			})
		}
	}

	return nil, ErrNoPlan
}

// ErrNoPlan indicates the registry has no sequence of converters reaching
// the target from the source. It is a normal result of planning, not an
// exceptional condition: callers are expected to check for it the same way
// they'd check a boolean.
var ErrNoPlan = fmt.Errorf("planner: no plan found within max depth")

// tryApply computes the cardinality transition and output properties for
// applying decl to (props, cardinality), or reports ok=false if decl
// cannot be applied (the planner never auto-aggregates a lone item into a
// list-input converter).
func tryApply(decl converter.ConverterDecl, props properties.Properties, cardinality Cardinality) (nextProps properties.Properties, nextCardinality Cardinality, inputPort, outputPort string, ok bool) {
	inName, inPort, matched := decl.MatchesInput(props)
	if !matched {
		return properties.Properties{}, 0, "", "", false
	}

	switch {
	case cardinality == One && !inPort.List:
		if decl.Expands() {
			nextCardinality = Many
		} else {
			nextCardinality = One
		}
	case cardinality == Many && !inPort.List:
		nextCardinality = Many
	case cardinality == One && inPort.List:
		return properties.Properties{}, 0, "", "", false
	default: // Many, list input: aggregation
		if decl.Expands() {
			nextCardinality = Many
		} else {
			nextCardinality = One
		}
	}

	outName, outPort, hasOutput := decl.OutputPattern()
	if !hasOutput {
		return properties.Properties{}, 0, "", "", false
	}

	nextProps = overlayEq(props, outPort)
	return nextProps, nextCardinality, inName, outName, true
}

// overlayEq returns a copy of props with every Eq predicate in port's
// pattern applied as a concrete property value. Non-Eq predicates
// constrain the output shape but don't themselves determine a value, so
// they are left alone, matching the original's overlay behavior.
func overlayEq(props properties.Properties, port converter.PortDecl) properties.Properties {
	out := props
	for _, key := range port.Pattern.Predicates() {
		pred, _ := port.Pattern.Get(key)
		if pred.Kind == pattern.Eq {
			out = out.With(key, pred.Value)
		}
	}
	return out
}

// costFor resolves a converter's cost for the planner's optimization
// target: the target-specific entry in decl.Costs if present, falling
// back to decl.Cost, falling back to 1.0.
func costFor(decl converter.ConverterDecl, target OptimizeTarget) float64 {
	if v, ok := decl.Costs[target.costKey()]; ok {
		return v
	}
	if decl.Cost != 0 {
		return decl.Cost
	}
	return 1.0
}

// stateKey is the coarse visited-set key: format plus cardinality. It is
// deliberately coarser than the full Properties, which keeps the visited
// set small at the cost of treating two states with the same format but
// different incidental properties as equivalent. This is a documented
// tradeoff carried from the original, not an oversight: see DESIGN.md.
func stateKey(props properties.Properties, cardinality Cardinality) string {
	format := "?"
	if v, ok := props.Get("format"); ok {
		if s, ok := v.AsString(); ok {
			format = s
		}
	}
	return fmt.Sprintf("%s:%s", format, cardinality)
}
