package tree

import (
	"fmt"

	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/value"
)

// LoadSample distributes a sample over the existing structure, giving every
// bucket its share of rows and an estimate scaled to totalTuples.
func (t *Tree) LoadSample(s *sample.Set, totalTuples float64) error {
	if len(s.Types()) != len(t.Types) {
		return fmt.Errorf("%w: sample has %d attributes, tree has %d", ErrTupleMismatch, len(s.Types()), len(t.Types))
	}
	for i, typ := range s.Types() {
		if typ != t.Types[i] {
			return fmt.Errorf("%w: sample attribute %d is %s, tree has %s", ErrTupleMismatch, i, typ, t.Types[i])
		}
	}
	scale := 0.0
	if s.Size() > 0 {
		scale = totalTuples / float64(s.Size())
	}
	t.distribute(t.root, sample.Pool(t.Types, s), scale)
	return nil
}

// distribute routes s down from n with the same comparisons LocateBucket uses.
func (t *Tree) distribute(n NodeID, s *sample.Set, scale float64) {
	nd := t.nodes[n]
	if nd.bucket != nil {
		nd.bucket.Sample = s
		nd.bucket.EstimatedTuples = float64(s.Size()) * scale
		return
	}
	s.Sort(nd.attribute)
	left, right := s.SplitAt(nd.attribute, nd.value)
	t.distribute(nd.left, left, scale)
	t.distribute(nd.right, right, scale)
}

// reestimate pools the samples retained under n and routes them through the
// current splits, keeping the subtree's tuples-per-sample ratio. A subtree
// without retained samples keeps its estimates.
func (t *Tree) reestimate(n NodeID) {
	leaves := t.Leaves(n)
	sets := make([]*sample.Set, 0, len(leaves))
	var numTuples float64
	numSamples := 0
	for _, leaf := range leaves {
		b := t.nodes[leaf].bucket
		numTuples += b.EstimatedTuples
		if b.Sample != nil {
			sets = append(sets, b.Sample)
			numSamples += b.Sample.Size()
		}
	}
	if numSamples == 0 {
		logger.Debug().Int("node", int(n)).Msg("no retained samples under node, keeping estimates")
		return
	}
	t.distribute(n, sample.Pool(t.Types, sets...), numTuples/float64(numSamples))
}

// WithReplacedSplit returns a detached copy of the subtree under n whose root
// routes on the given split instead, with bucket estimates recomputed for the
// new routing. The receiver is not modified.
func (t *Tree) WithReplacedSplit(n NodeID, attr int, typ value.AttributeType, v value.Value) *Tree {
	hypo := newTree(t.MaxBuckets, t.Types)
	hypo.root = t.copyInto(hypo, n, None)
	hypo.setSplit(hypo.root, attr, typ, v)
	hypo.reestimate(hypo.root)
	return hypo
}

func (t *Tree) copyInto(dst *Tree, n NodeID, parent NodeID) NodeID {
	nd := t.nodes[n]
	c := dst.addNode(parent)
	if nd.bucket != nil {
		b := *nd.bucket
		dst.setLeaf(c, &b)
		return c
	}
	dst.setSplit(c, nd.attribute, nd.typ, nd.value)
	left := t.copyInto(dst, nd.left, c)
	right := t.copyInto(dst, nd.right, c)
	dst.nodes[c].left, dst.nodes[c].right = left, right
	return c
}

// ReplaceSplit changes the routing rule of internal node n in place and
// redistributes the retained samples and estimates of every bucket beneath it.
func (t *Tree) ReplaceSplit(n NodeID, attr int, typ value.AttributeType, v value.Value) error {
	if t.IsLeaf(n) {
		return fmt.Errorf("node %d is a bucket, not a split", n)
	}
	if attr < 0 || attr >= len(t.Types) || t.Types[attr] != typ || v.Type() != typ {
		return fmt.Errorf("%w: cannot split attribute %d as %s", ErrPredicateMismatch, attr, typ)
	}
	t.setSplit(n, attr, typ, v)
	t.reestimate(n)
	return nil
}
