package tree

import (
	"math"
	"math/bits"

	"github.com/danthegoodman1/adaptree/value"
)

// Range is the half open interval [Low, High) of one attribute. A nil bound is
// unbounded.
type Range struct {
	Low  *value.Value
	High *value.Value
}

// Allocations recovers how much of each attribute's budget the tree spends.
// Nodes are numbered level by level from 1 as if the tree were complete; node k
// contributes 2^(1-floor(log2 k)) to its split attribute.
func (t *Tree) Allocations() []float64 {
	allocations := make([]float64, len(t.Types))
	queue := []NodeID{t.root}
	nodeNum, lastNode := 0, 0
	for len(queue) > 0 {
		nodeNum++
		n := queue[0]
		queue = queue[1:]

		if n == None || t.IsLeaf(n) {
			if nodeNum > lastNode*2 {
				break
			}
			// placeholders keep the numbering of the next level complete
			queue = append(queue, None, None)
			continue
		}

		lastNode = nodeNum
		level := bits.Len(uint(nodeNum)) - 1
		allocations[t.nodes[n].attribute] += math.Pow(2, float64(1-level))
		queue = append(queue, t.nodes[n].left, t.nodes[n].right)
	}
	return allocations
}

// BucketRanges maps each bucket whose root path splits on attr to the range of
// attr it covers. Buckets never constrained on attr are left out.
func (t *Tree) BucketRanges(attr int) map[int]Range {
	ranges := make(map[int]Range)
	var walk func(n NodeID, r Range, constrained bool)
	walk = func(n NodeID, r Range, constrained bool) {
		nd := t.nodes[n]
		if nd.bucket != nil {
			if constrained {
				ranges[nd.bucket.ID] = r
			}
			return
		}
		if nd.attribute != attr {
			walk(nd.left, r, constrained)
			walk(nd.right, r, constrained)
			return
		}
		v := nd.value
		left, right := r, r
		if left.High == nil || value.Less(v, *left.High) {
			left.High = &v
		}
		if right.Low == nil || value.Less(*right.Low, v) {
			right.Low = &v
		}
		walk(nd.left, left, true)
		walk(nd.right, right, true)
	}
	walk(t.root, Range{}, false)
	return ranges
}
