package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/value"
)

var logger = gologger.NewComponentLogger("optimizer")

// Optimizer searches for local restructurings of a tree that make the queries
// in its window touch fewer tuples. It is not safe for concurrent use.
type Optimizer struct {
	tree   *tree.Tree
	window *query.Window
	costs  CostModel
}

func New(t *tree.Tree, window *query.Window, costs CostModel) *Optimizer {
	return &Optimizer{
		tree:   t,
		window: window,
		costs:  costs,
	}
}

// RoutingSink receives the routing changes of a plan before the tree is
// changed. An error leaves the tree and window as they were.
type RoutingSink func(ctx context.Context, changes []part.RoutingChange) error

// BuildPlan finds the best plan for q, hands its routing changes to sink, then
// applies the plan to the tree and records q in the window. A nil plan means q
// had no predicates. A nil sink accepts everything.
func (o *Optimizer) BuildPlan(ctx context.Context, q query.Query, sink RoutingSink) (*Plan, []part.RoutingChange, error) {
	if err := o.tree.ValidatePredicates(q.Predicates); err != nil {
		return nil, nil, fmt.Errorf("error validating query: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s := time.Now()
	plan := o.BestPlan(q.Predicates)
	r, err := o.Describe(plan, q.Predicates)
	if err != nil {
		return nil, nil, fmt.Errorf("error in Describe: %w", err)
	}
	if sink != nil && len(r.Changes) > 0 {
		if err := sink(ctx, r.Changes); err != nil {
			return nil, nil, fmt.Errorf("error in routing sink: %w", err)
		}
	}
	if err := r.Apply(); err != nil {
		return nil, nil, fmt.Errorf("error in Apply: %w", err)
	}
	o.window.Add(q)

	logger.Debug().Str("query", q.String()).Str("plan", plan.String()).Int("changes", len(r.Changes)).Int64("ms", time.Since(s).Milliseconds()).Msg("built plan")
	return plan, r.Changes, nil
}

// BestPlan tries every predicate as the driving one and keeps the plan with
// the best benefit to cost ratio.
func (o *Optimizer) BestPlan(predicates []query.Predicate) *Plan {
	if len(predicates) == 0 {
		return nil
	}
	best := NewPlan()
	for i := range predicates {
		UpdatePlan(best, o.BestPlanForPredicate(predicates, i))
	}
	return best
}

// BestPlanForPredicate is the best plan with predicates[pid] driving.
func (o *Optimizer) BestPlanForPredicate(predicates []query.Predicate, pid int) *Plan {
	pair := o.bestPlanForSubtree(o.tree.Root(), predicates, pid)
	if pair.Best == nil {
		return NewPlan()
	}
	return pair.Best
}

func leafPlan(pid int) *Plan {
	return &Plan{Actions: &Action{Predicate: pid, Option: FilterOnly}}
}

func (o *Optimizer) bestPlanForSubtree(n tree.NodeID, predicates []query.Predicate, pid int) PlanPair {
	t := o.tree
	if t.IsLeaf(n) {
		return PlanPair{Best: leafPlan(pid), Top: leafPlan(pid), FullAccess: true}
	}

	p := predicates[pid]
	attr, _, sv := t.Split(n)
	goLeft, goRight := query.Reachable(predicates, attr, sv)

	var left, right PlanPair
	if goLeft {
		left = o.bestPlanForSubtree(t.Left(n), predicates, pid)
	}
	if goRight {
		right = o.bestPlanForSubtree(t.Right(n), predicates, pid)
	}

	top, best := NewPlan(), NewPlan()
	fullAccess := left.FullAccess && right.FullAccess

	// Replace
	if fullAccess && o.Validity(n, p.Attribute, p.Value) {
		if c := o.replaceCandidate(n, p, pid); c != nil {
			UpdatePlan(top, c)
			UpdatePlan(best, c)
		}
	}

	// SwapDown
	if left.Top != nil && right.Top != nil {
		c := &Plan{
			Cost:    left.Top.Cost + right.Top.Cost,
			Benefit: left.Top.Benefit + right.Top.Benefit,
			Actions: &Action{Predicate: pid, Option: SwapDown, Left: left.Top.Actions, Right: right.Top.Actions},
		}
		UpdatePlan(top, c)
		UpdatePlan(best, c)
	}

	// PartialPropagate
	if attr == p.Attribute {
		if c := o.partialPropagate(n, sv, p, pid, left, right); c != nil {
			UpdatePlan(top, c)
			UpdatePlan(best, c)
		}
	}

	// Reuse
	var reuse *Plan
	switch {
	case left.Best != nil && right.Best != nil:
		reuse = &Plan{
			Cost:    left.Best.Cost + right.Best.Cost,
			Benefit: left.Best.Benefit + right.Best.Benefit,
			Actions: &Action{Predicate: pid, Option: Reuse, Left: left.Best.Actions, Right: right.Best.Actions},
		}
	case left.Best != nil:
		reuse = &Plan{
			Cost:    left.Best.Cost,
			Benefit: left.Best.Benefit,
			Actions: &Action{Predicate: pid, Option: Reuse, Left: left.Best.Actions},
		}
	case right.Best != nil:
		reuse = &Plan{
			Cost:    right.Best.Cost,
			Benefit: right.Best.Benefit,
			Actions: &Action{Predicate: pid, Option: Reuse, Right: right.Best.Actions},
		}
	}
	UpdatePlan(best, reuse)

	pair := PlanPair{FullAccess: fullAccess}
	if !top.Empty() {
		pair.Top = top
	}
	if !best.Empty() {
		pair.Best = best
	}
	return pair
}

// replaceCandidate prices swapping n's split for p. Only a replacement that
// lowers the window's accessed tuples is a candidate.
func (o *Optimizer) replaceCandidate(n tree.NodeID, p query.Predicate, pid int) *Plan {
	if o.window.Len() == 0 {
		return nil
	}
	before := o.AccessedTuples(n)
	hypo := o.tree.WithReplacedSplit(n, p.Attribute, p.Type, p.Value)
	var after float64
	for _, q := range o.window.Queries() {
		if o.reaches(n, q.Predicates) {
			after += hypo.SearchTuples(hypo.Root(), q.Predicates)
		}
	}
	benefit := before - after
	if benefit <= 0 {
		return nil
	}
	return &Plan{
		Cost:    o.costs.Cost(o.tree.EstimatedTuplesInSubtree(n)),
		Benefit: benefit,
		Actions: &Action{Predicate: pid, Option: Replace},
	}
}

// partialPropagate pushes the Top of the one child that still needs p. When
// the split value is below p's value that is the right child, otherwise the
// left; the other side is either pruned by p or already satisfies it.
func (o *Optimizer) partialPropagate(n tree.NodeID, sv value.Value, p query.Predicate, pid int, left, right PlanPair) *Plan {
	c := value.Compare(sv, p.Value)
	if c == 0 {
		// this split already enforces p
		return nil
	}
	needs, other := right, left
	if c > 0 {
		needs, other = left, right
	}
	if needs.Top == nil {
		if other.Top != nil {
			logger.Error().Int("node", int(n)).Str("predicate", p.String()).Str("split", sv.Format()).Msg("partial propagate found only the side that should already satisfy the predicate, skipping")
		}
		return nil
	}
	action := &Action{Predicate: pid, Option: PartialPropagate}
	if c < 0 {
		action.Right = needs.Top.Actions
	} else {
		action.Left = needs.Top.Actions
	}
	return &Plan{Cost: needs.Top.Cost, Benefit: needs.Top.Benefit, Actions: action}
}

// AccessedTuples is the tuples under n that the whole window reads.
func (o *Optimizer) AccessedTuples(n tree.NodeID) float64 {
	var total float64
	for _, q := range o.window.Queries() {
		total += o.AccessedTuplesForQuery(n, q)
	}
	return total
}

// AccessedTuplesForQuery is the tuples under n that q reads.
func (o *Optimizer) AccessedTuplesForQuery(n tree.NodeID, q query.Query) float64 {
	if !o.reaches(n, q.Predicates) {
		return 0
	}
	return o.tree.SearchTuples(n, q.Predicates)
}

// reaches reports whether search with predicates can descend from the root
// to n.
func (o *Optimizer) reaches(n tree.NodeID, predicates []query.Predicate) bool {
	t := o.tree
	cur := n
	for parent := t.Parent(cur); parent != tree.None; cur, parent = parent, t.Parent(parent) {
		attr, _, sv := t.Split(parent)
		goLeft, goRight := query.Reachable(predicates, attr, sv)
		if t.Left(parent) == cur && !goLeft {
			return false
		}
		if t.Right(parent) == cur && !goRight {
			return false
		}
	}
	return true
}

// Validity reports whether n can split on attr at v without contradicting the
// range its ancestors already confine attr to: a left descendant must stay
// below an ancestor's split value and a right descendant at or above it.
func (o *Optimizer) Validity(n tree.NodeID, attr int, v value.Value) bool {
	t := o.tree
	cur := n
	for parent := t.Parent(cur); parent != tree.None; cur, parent = parent, t.Parent(parent) {
		pattr, _, sv := t.Split(parent)
		if pattr != attr {
			continue
		}
		c := value.Compare(sv, v)
		if t.Left(parent) == cur && c <= 0 {
			return false
		}
		if t.Right(parent) == cur && c >= 0 {
			return false
		}
	}
	return true
}
