package optimizer

import (
	"fmt"
	"math"
)

type (
	// Option names the restructuring an Action applies at its node.
	Option int

	// Action mirrors the part of the tree a Plan applies to. Left and Right
	// follow the node's children; a nil side is untouched.
	Action struct {
		Predicate int
		Option    Option
		Left      *Action
		Right     *Action
	}

	Plan struct {
		Cost    float64
		Benefit float64
		Actions *Action
	}

	// PlanPair is what a subtree reports to its parent during search.
	PlanPair struct {
		// Best is the best plan rooted in the subtree.
		Best *Plan
		// Top is the best plan after which the driving predicate is enforceable
		// at or above the subtree's root.
		Top *Plan
		// FullAccess is true when no predicate in scope prunes any leaf below.
		FullAccess bool
	}

	// CostModel prices moving the tuples of a subtree.
	CostModel struct {
		DiskCost        float64
		NetworkCost     float64
		NodeMemoryBytes float64
		TupleBytes      float64
	}
)

const (
	FilterOnly       Option = 0
	Replace          Option = 1
	SwapDown         Option = 2
	PartialPropagate Option = 3
	Reuse            Option = 5
)

const emptyCost = -1

func (o Option) String() string {
	switch o {
	case FilterOnly:
		return "FilterOnly"
	case Replace:
		return "Replace"
	case SwapDown:
		return "SwapDown"
	case PartialPropagate:
		return "PartialPropagate"
	case Reuse:
		return "Reuse"
	default:
		return fmt.Sprintf("Option(%d)", int(o))
	}
}

// NewPlan returns an empty plan, one that any candidate replaces.
func NewPlan() *Plan {
	return &Plan{Cost: emptyCost}
}

func (p *Plan) Empty() bool {
	return p.Cost == emptyCost
}

// Ratio is benefit per unit of cost. Free plans rank above any paid plan when
// they help and below any when they hurt.
func (p *Plan) Ratio() float64 {
	if p.Cost == 0 {
		switch {
		case p.Benefit > 0:
			return math.Inf(1)
		case p.Benefit < 0:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return p.Benefit / p.Cost
}

// UpdatePlan copies source into dest when dest is empty or source has a
// strictly better ratio. Ties keep dest. Reports whether dest changed.
func UpdatePlan(dest, source *Plan) bool {
	if source == nil || source.Empty() || dest == source {
		return false
	}
	if !dest.Empty() && source.Ratio() <= dest.Ratio() {
		return false
	}
	dest.Cost = source.Cost
	dest.Benefit = source.Benefit
	dest.Actions = source.Actions
	return true
}

func (p *Plan) String() string {
	if p == nil || p.Empty() {
		return "empty plan"
	}
	return fmt.Sprintf("cost=%g benefit=%g actions=%s", p.Cost, p.Benefit, p.Actions)
}

func (a *Action) String() string {
	if a == nil {
		return "-"
	}
	if a.Left == nil && a.Right == nil {
		return fmt.Sprintf("%s(p%d)", a.Option, a.Predicate)
	}
	return fmt.Sprintf("%s(p%d %s %s)", a.Option, a.Predicate, a.Left, a.Right)
}

// Contains reports whether any action in the tree uses opt.
func (a *Action) Contains(opt Option) bool {
	if a == nil {
		return false
	}
	return a.Option == opt || a.Left.Contains(opt) || a.Right.Contains(opt)
}

func DefaultCostModel() CostModel {
	return CostModel{
		DiskCost:        4,
		NetworkCost:     7,
		NodeMemoryBytes: 2 * 1024 * 1024 * 1024,
		TupleBytes:      48,
	}
}

// NodeTupleLimit is how many tuples one node can repartition in memory.
func (c CostModel) NodeTupleLimit() float64 {
	return c.NodeMemoryBytes / c.TupleBytes
}

// Cost prices repartitioning tuples; spilling past a node's memory adds the
// network cost per tuple.
func (c CostModel) Cost(tuples float64) float64 {
	if tuples > c.NodeTupleLimit() {
		return (c.DiskCost + c.NetworkCost) * tuples
	}
	return c.DiskCost * tuples
}
