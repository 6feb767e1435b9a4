package tree

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/value"
	"github.com/google/btree"
)

var (
	logger = gologger.NewComponentLogger("tree")

	ErrTupleMismatch     = errors.New("tuple does not match tree schema")
	ErrPredicateMismatch = errors.New("predicate does not match tree schema")
)

type (
	// NodeID addresses a node inside one Tree's arena.
	NodeID int

	Bucket struct {
		ID              int
		EstimatedTuples float64
		Sample          *sample.Set
	}

	// node is internal when bucket is nil. parent is a back-reference used only
	// for upward walks.
	node struct {
		parent, left, right NodeID

		attribute int
		typ       value.AttributeType
		value     value.Value

		bucket *Bucket
	}

	bucketEntry struct {
		id   int
		node NodeID
	}

	// Tree is a strict binary partition tree. Internal nodes route values below
	// their split value left and everything else right; leaves hold buckets.
	Tree struct {
		MaxBuckets int
		Types      []value.AttributeType

		nodes        []node
		root         NodeID
		nextBucketID int
		buckets      *btree.BTreeG[bucketEntry]
	}
)

// None is the absent node.
const None NodeID = -1

func newTree(maxBuckets int, types []value.AttributeType) *Tree {
	return &Tree{
		MaxBuckets: maxBuckets,
		Types:      types,
		root:       None,
		buckets: btree.NewG(16, func(a, b bucketEntry) bool {
			return a.id < b.id
		}),
	}
}

func (t *Tree) addNode(parent NodeID) NodeID {
	t.nodes = append(t.nodes, node{parent: parent, left: None, right: None})
	return NodeID(len(t.nodes) - 1)
}

// newBucket hands out the next id from this tree's counter.
func (t *Tree) newBucket() *Bucket {
	b := &Bucket{ID: t.nextBucketID}
	t.nextBucketID++
	return b
}

func (t *Tree) setLeaf(n NodeID, b *Bucket) {
	t.nodes[n].bucket = b
	t.nodes[n].left, t.nodes[n].right = None, None
	t.buckets.ReplaceOrInsert(bucketEntry{id: b.ID, node: n})
	if b.ID >= t.nextBucketID {
		t.nextBucketID = b.ID + 1
	}
}

func (t *Tree) setSplit(n NodeID, attr int, typ value.AttributeType, v value.Value) {
	t.nodes[n].attribute = attr
	t.nodes[n].typ = typ
	t.nodes[n].value = v
}

func (t *Tree) NumAttributes() int {
	return len(t.Types)
}

func (t *Tree) Root() NodeID {
	return t.root
}

func (t *Tree) IsLeaf(n NodeID) bool {
	return t.nodes[n].bucket != nil
}

func (t *Tree) Left(n NodeID) NodeID {
	return t.nodes[n].left
}

func (t *Tree) Right(n NodeID) NodeID {
	return t.nodes[n].right
}

func (t *Tree) Parent(n NodeID) NodeID {
	return t.nodes[n].parent
}

// Split returns the routing rule of an internal node.
func (t *Tree) Split(n NodeID) (attr int, typ value.AttributeType, v value.Value) {
	nd := t.nodes[n]
	return nd.attribute, nd.typ, nd.value
}

// Bucket returns the bucket of a leaf, nil for an internal node.
func (t *Tree) Bucket(n NodeID) *Bucket {
	return t.nodes[n].bucket
}

func (t *Tree) BucketByID(id int) (*Bucket, bool) {
	e, ok := t.buckets.Get(bucketEntry{id: id})
	if !ok {
		return nil, false
	}
	return t.nodes[e.node].bucket, true
}

// BucketIDs lists every bucket id in ascending order.
func (t *Tree) BucketIDs() []int {
	ids := make([]int, 0, t.buckets.Len())
	t.buckets.Ascend(func(e bucketEntry) bool {
		ids = append(ids, e.id)
		return true
	})
	return ids
}

func (t *Tree) NumBuckets() int {
	return t.buckets.Len()
}

// LocateBucket routes a tuple from the root to its bucket id.
func (t *Tree) LocateBucket(tuple value.Tuple) (int, error) {
	if len(tuple) != len(t.Types) {
		return 0, fmt.Errorf("%w: got %d attributes, want %d", ErrTupleMismatch, len(tuple), len(t.Types))
	}
	n := t.root
	for !t.IsLeaf(n) {
		nd := t.nodes[n]
		if tuple[nd.attribute].Type() != nd.typ {
			return 0, fmt.Errorf("%w: attribute %d is %s, want %s", ErrTupleMismatch, nd.attribute, tuple[nd.attribute].Type(), nd.typ)
		}
		if value.Compare(nd.value, tuple[nd.attribute]) > 0 {
			n = nd.left
		} else {
			n = nd.right
		}
	}
	return t.nodes[n].bucket.ID, nil
}

// ValidatePredicates checks predicates against the declared schema so search
// never compares mismatched values.
func (t *Tree) ValidatePredicates(predicates []query.Predicate) error {
	for _, p := range predicates {
		if p.Attribute < 0 || p.Attribute >= len(t.Types) {
			return fmt.Errorf("%w: no attribute %d", ErrPredicateMismatch, p.Attribute)
		}
		if !t.Types[p.Attribute].Splittable() {
			return fmt.Errorf("%w: attribute %d is %s", ErrPredicateMismatch, p.Attribute, t.Types[p.Attribute])
		}
		if p.Type != t.Types[p.Attribute] || p.Value.Type() != p.Type {
			return fmt.Errorf("%w: attribute %d is %s, predicate is %s", ErrPredicateMismatch, p.Attribute, t.Types[p.Attribute], p.Value.Type())
		}
	}
	return nil
}

// Search returns the buckets a conjunction of predicates may touch.
func (t *Tree) Search(predicates []query.Predicate) []*Bucket {
	leaves := t.SearchFrom(t.root, predicates)
	buckets := make([]*Bucket, len(leaves))
	for i, n := range leaves {
		buckets[i] = t.nodes[n].bucket
	}
	return buckets
}

// SearchFrom returns the leaves under n that the predicates may touch. The tree
// is disjoint so no leaf is reached twice.
func (t *Tree) SearchFrom(n NodeID, predicates []query.Predicate) []NodeID {
	var leaves []NodeID
	var walk func(n NodeID)
	walk = func(n NodeID) {
		nd := t.nodes[n]
		if nd.bucket != nil {
			leaves = append(leaves, n)
			return
		}
		goLeft, goRight := query.Reachable(predicates, nd.attribute, nd.value)
		if goLeft {
			walk(nd.left)
		}
		if goRight {
			walk(nd.right)
		}
	}
	walk(n)
	return leaves
}

// SearchTuples sums the estimated tuples of the leaves under n the predicates touch.
func (t *Tree) SearchTuples(n NodeID, predicates []query.Predicate) float64 {
	var total float64
	for _, leaf := range t.SearchFrom(n, predicates) {
		total += t.nodes[leaf].bucket.EstimatedTuples
	}
	return total
}

// Leaves lists the leaves under n left to right.
func (t *Tree) Leaves(n NodeID) []NodeID {
	var leaves []NodeID
	stack := []NodeID{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t.IsLeaf(cur) {
			leaves = append(leaves, cur)
			continue
		}
		stack = append(stack, t.nodes[cur].right, t.nodes[cur].left)
	}
	return leaves
}

// EstimatedTuplesInSubtree sums the bucket estimates under n.
func (t *Tree) EstimatedTuplesInSubtree(n NodeID) float64 {
	var total float64
	for _, leaf := range t.Leaves(n) {
		total += t.nodes[leaf].bucket.EstimatedTuples
	}
	return total
}

// Depth is the length of the longest root to leaf path.
func (t *Tree) Depth() int {
	var depth func(n NodeID) int
	depth = func(n NodeID) int {
		if t.IsLeaf(n) {
			return 0
		}
		return 1 + max(depth(t.nodes[n].left), depth(t.nodes[n].right))
	}
	return depth(t.root)
}
