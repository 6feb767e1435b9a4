package optimizer

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/tree"
)

var ErrPlanMismatch = errors.New("plan does not match the tree")

type step struct {
	node   tree.NodeID
	action *Action
	path   string
}

// Realization is a plan checked against the tree with its routing changes
// described but not yet applied.
type Realization struct {
	Changes []part.RoutingChange

	o          *Optimizer
	predicates []query.Predicate
	replaces   []step
}

// Describe checks the plan against the tree's shape and computes the routing
// change of every Replace without touching the tree. Replaces never nest, so
// the bucket sets are the same before and after grafting.
func (o *Optimizer) Describe(plan *Plan, predicates []query.Predicate) (*Realization, error) {
	r := &Realization{o: o, predicates: predicates}
	if plan == nil || plan.Actions == nil {
		return r, nil
	}

	err := o.walk(plan.Actions, func(s step) error {
		if s.action.Predicate < 0 || s.action.Predicate >= len(predicates) {
			return fmt.Errorf("%w: action at %q names predicate %d of %d", ErrPlanMismatch, s.path, s.action.Predicate, len(predicates))
		}
		if s.action.Option != Replace {
			return nil
		}
		if o.tree.IsLeaf(s.node) {
			return fmt.Errorf("%w: Replace at bucket %q", ErrPlanMismatch, s.path)
		}
		r.replaces = append(r.replaces, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range r.replaces {
		p := predicates[s.action.Predicate]
		buckets := roaring.New()
		for _, leaf := range o.tree.SearchFrom(s.node, predicates) {
			buckets.Add(uint32(o.tree.Bucket(leaf).ID))
		}
		r.Changes = append(r.Changes, part.NewRoutingChange(buckets, part.Rule{
			Attribute: p.Attribute,
			Type:      p.Type,
			Value:     p.Value,
			Path:      s.path,
		}))
	}
	return r, nil
}

// Apply grafts every described Replace into the tree.
func (r *Realization) Apply() error {
	for i, s := range r.replaces {
		p := r.predicates[s.action.Predicate]
		if err := r.o.tree.ReplaceSplit(s.node, p.Attribute, p.Type, p.Value); err != nil {
			return fmt.Errorf("error in ReplaceSplit at %q: %w", s.path, err)
		}
		rc := r.Changes[i]
		logger.Info().Str("routingChangeID", rc.ID).Str("path", s.path).Str("predicate", p.String()).Uint64("buckets", rc.Buckets.GetCardinality()).Msg("replaced split")
	}
	return nil
}

// Realize describes and applies a plan in one step.
func (o *Optimizer) Realize(plan *Plan, predicates []query.Predicate) ([]part.RoutingChange, error) {
	r, err := o.Describe(plan, predicates)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(); err != nil {
		return r.Changes, err
	}
	return r.Changes, nil
}

// walk visits actions depth first, left before right, paired with their tree
// nodes. Children of a Replace are not visited.
func (o *Optimizer) walk(root *Action, visit func(step) error) error {
	stack := []step{{node: o.tree.Root(), action: root}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := visit(s); err != nil {
			return err
		}
		if s.action.Option == Replace {
			continue
		}
		if s.action.Left == nil && s.action.Right == nil {
			continue
		}
		if o.tree.IsLeaf(s.node) {
			return fmt.Errorf("%w: %s at bucket %q has children", ErrPlanMismatch, s.action.Option, s.path)
		}
		if s.action.Right != nil {
			stack = append(stack, step{node: o.tree.Right(s.node), action: s.action.Right, path: s.path + "R"})
		}
		if s.action.Left != nil {
			stack = append(stack, step{node: o.tree.Left(s.node), action: s.action.Left, path: s.path + "L"})
		}
	}
	return nil
}
