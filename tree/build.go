package tree

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand"
	"time"

	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/value"
)

var ErrBadMaxBuckets = errors.New("max buckets must be at least 1")

type (
	BuildOptions struct {
		MaxBuckets int
		// TotalTuples is the size of the real dataset the sample was drawn from.
		TotalTuples float64
		// AttributeWeights overrides the starting allocation of an attribute by index.
		AttributeWeights map[int]float64
		// Rand breaks allocation ties. Defaults to a time seeded source.
		Rand *rand.Rand
	}

	task struct {
		node   NodeID
		sample *sample.Set
		depth  int
	}
)

// Build grows a tree level by level from a sample. Each level splits on the
// attribute with the most allocation left, at that attribute's median, until
// log2(MaxBuckets) levels exist or no attribute splits the sample at a node.
func Build(s *sample.Set, opts BuildOptions) (*Tree, error) {
	if opts.MaxBuckets < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBadMaxBuckets, opts.MaxBuckets)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	types := s.Types()
	t := newTree(opts.MaxBuckets, types)
	t.root = t.addNode(None)

	maxDepth := bits.Len(uint(opts.MaxBuckets)) - 1
	allocations := InitialAllocations(types, opts.MaxBuckets, opts.AttributeWeights)

	numSplittable := 0
	for _, typ := range types {
		if typ.Splittable() {
			numSplittable++
		}
	}

	totalSamples := float64(s.Size())
	scale := 0.0
	if totalSamples > 0 {
		scale = opts.TotalTuples / totalSamples
	}

	logger.Debug().Int("samples", s.Size()).Int("maxDepth", maxDepth).Floats64("allocations", allocations).Msg("building tree")

	queue := []task{{node: t.root, sample: s, depth: 0}}
	for len(queue) > 0 {
		tk := queue[0]
		queue = queue[1:]

		if tk.depth >= maxDepth {
			t.makeLeaf(tk.node, tk.sample, scale)
			continue
		}

		dim := -1
		var left, right *sample.Set
		tried := make([]bool, len(types))
		for round := 0; round < numSplittable; round++ {
			attr := mostAllocated(types, allocations, tried, rng)
			tried[attr] = true
			allocations[attr] -= 2.0 / math.Pow(2, float64(tk.depth))

			l, r := tk.sample.SortAndSplit(attr)
			if l.Size() > 0 && r.Size() > 0 {
				dim, left, right = attr, l, r
				break
			}
			logger.Warn().Int("attribute", attr).Int("depth", tk.depth).Msg("skipping attribute with a one sided split")
		}

		if dim == -1 {
			logger.Error().Int("depth", tk.depth).Int("samples", tk.sample.Size()).Msg("no attribute to partition on, leaving an undersized leaf")
			t.makeLeaf(tk.node, tk.sample, scale)
			continue
		}

		// the median itself is the first value of the right half
		t.setSplit(tk.node, dim, types[dim], right.First(dim))
		l := t.addNode(tk.node)
		r := t.addNode(tk.node)
		t.nodes[tk.node].left, t.nodes[tk.node].right = l, r
		queue = append(queue,
			task{node: l, sample: left, depth: tk.depth + 1},
			task{node: r, sample: right, depth: tk.depth + 1},
		)
	}

	logger.Debug().Int("buckets", t.NumBuckets()).Floats64("finalAllocations", allocations).Msg("built tree")
	return t, nil
}

func (t *Tree) makeLeaf(n NodeID, s *sample.Set, scale float64) {
	b := t.newBucket()
	b.Sample = s
	b.EstimatedTuples = float64(s.Size()) * scale
	t.setLeaf(n, b)
}

// InitialAllocations gives every attribute the numAttributes-th root of
// maxBuckets, then applies any explicit weight overrides.
func InitialAllocations(types []value.AttributeType, maxBuckets int, weights map[int]float64) []float64 {
	perAttribute := NthRoot(len(types), float64(maxBuckets))
	allocations := make([]float64, len(types))
	for i := range allocations {
		allocations[i] = perAttribute
		if w, ok := weights[i]; ok {
			allocations[i] = w
		}
	}
	return allocations
}

// mostAllocated picks the untried splittable attribute with the largest
// remaining allocation, breaking ties uniformly at random.
func mostAllocated(types []value.AttributeType, allocations []float64, tried []bool, rng *rand.Rand) int {
	var candidates []int
	best := math.Inf(-1)
	for i, a := range allocations {
		if tried[i] || !types[i].Splittable() {
			continue
		}
		switch {
		case a > best:
			best = a
			candidates = append(candidates[:0], i)
		case a == best:
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[rng.Intn(len(candidates))]
}

// NthRoot approximates the n-th root of a with Newton's method to within 0.001.
func NthRoot(n int, a float64) float64 {
	if n <= 0 || a <= 0 {
		return 0
	}
	if n == 1 {
		return a
	}
	const tolerance = .001
	nf := float64(n)
	prev := a
	x := a / nf
	for math.Abs(x-prev) > tolerance {
		prev = x
		x = ((nf-1)*x + a/math.Pow(x, nf-1)) / nf
	}
	return x
}

// DepthOfIndex is ceil(log2(numBlocks)).
func DepthOfIndex(numBlocks int) int {
	if numBlocks <= 1 {
		return 0
	}
	k := bits.Len(uint(numBlocks)) - 1
	if numBlocks == 1<<k {
		return k
	}
	return k + 1
}

// BucketsForDatasetSize rounds the dataset's block count up to a power of two.
func BucketsForDatasetSize(totalBytes, blockSize int64) int {
	numBlocks := int(totalBytes / blockSize)
	if numBlocks < 1 {
		numBlocks = 1
	}
	return 1 << DepthOfIndex(numBlocks)
}
