package tree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/value"
)

// gridSample holds n rows of two distinct INT permutations of [0, n).
func gridSample(t *testing.T, n int) *sample.Set {
	t.Helper()
	s := sample.New(value.MustParseTypes("INT", "INT", "VARCHAR"))
	for i := 0; i < n; i++ {
		tuple := value.Tuple{value.NewInt(int32(i)), value.NewInt(int32((i * 37) % n)), value.NewVarchar("x")}
		if err := s.Insert(tuple); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func buildGrid(t *testing.T) *Tree {
	t.Helper()
	tr, err := Build(gridSample(t, 256), BuildOptions{
		MaxBuckets:  8,
		TotalTuples: 2560,
		Rand:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestBuild(t *testing.T) {
	tr := buildGrid(t)
	if tr.NumBuckets() != 8 {
		t.Fatal("expected 8 buckets, got", tr.NumBuckets())
	}
	if tr.Depth() != 3 {
		t.Fatal("expected depth 3, got", tr.Depth())
	}
	if got := tr.EstimatedTuplesInSubtree(tr.Root()); got != 2560 {
		t.Fatal("estimates should sum to the dataset size, got", got)
	}
	for _, leaf := range tr.Leaves(tr.Root()) {
		if tr.Bucket(leaf).Sample.Size() != 32 {
			t.Fatal("expected balanced buckets, got", tr.Bucket(leaf).Sample.Size())
		}
	}
}

func TestBuildRejectsNoBuckets(t *testing.T) {
	if _, err := Build(gridSample(t, 4), BuildOptions{MaxBuckets: 0}); err == nil {
		t.Fatal("expected an error for zero buckets")
	}
}

func TestBuildDegenerateAttributes(t *testing.T) {
	s := sample.New(value.MustParseTypes("INT"))
	for i := 0; i < 16; i++ {
		if err := s.Insert(value.Tuple{value.NewInt(7)}); err != nil {
			t.Fatal(err)
		}
	}
	tr, err := Build(s, BuildOptions{MaxBuckets: 4, TotalTuples: 16})
	if err != nil {
		t.Fatal(err)
	}
	if tr.NumBuckets() != 1 {
		t.Fatal("a sample with one distinct value cannot split, got buckets", tr.NumBuckets())
	}
}

// checkSplitInvariant asserts every sampled row sits left of a split when below
// its value and right otherwise.
func checkSplitInvariant(t *testing.T, tr *Tree) {
	t.Helper()
	for _, leaf := range tr.Leaves(tr.Root()) {
		for _, row := range tr.Bucket(leaf).Sample.Rows() {
			cur := leaf
			for parent := tr.Parent(cur); parent != None; cur, parent = parent, tr.Parent(parent) {
				attr, _, sv := tr.Split(parent)
				below := value.Less(row[attr], sv)
				if tr.Left(parent) == cur && !below {
					t.Fatalf("row %v is left of split a%d=%s", row, attr, sv)
				}
				if tr.Right(parent) == cur && below {
					t.Fatalf("row %v is right of split a%d=%s", row, attr, sv)
				}
			}
		}
	}
}

func TestBuildSplitInvariant(t *testing.T) {
	checkSplitInvariant(t, buildGrid(t))
}

func TestBuildSplitInvariantWithNaN(t *testing.T) {
	s := sample.New(value.MustParseTypes("FLOAT"))
	for i := 0; i < 16; i++ {
		f := float64(i)
		if i%3 == 0 {
			f = math.NaN()
		}
		if err := s.Insert(value.Tuple{value.NewFloat(f)}); err != nil {
			t.Fatal(err)
		}
	}
	tr, err := Build(s, BuildOptions{MaxBuckets: 4, TotalTuples: 16, Rand: rand.New(rand.NewSource(1))})
	if err != nil {
		t.Fatal(err)
	}
	if tr.NumBuckets() < 2 {
		t.Fatal("expected the floats to split, got buckets", tr.NumBuckets())
	}
	checkSplitInvariant(t, tr)

	// NaN rows route the way they were distributed
	for _, leaf := range tr.Leaves(tr.Root()) {
		for _, row := range tr.Bucket(leaf).Sample.Rows() {
			id, err := tr.LocateBucket(row)
			if err != nil {
				t.Fatal(err)
			}
			if id != tr.Bucket(leaf).ID {
				t.Fatalf("row %v located in bucket %d, sampled into %d", row, id, tr.Bucket(leaf).ID)
			}
		}
	}
}

func TestLocateBucketAgreesWithSearch(t *testing.T) {
	tr := buildGrid(t)
	for _, leaf := range tr.Leaves(tr.Root()) {
		b := tr.Bucket(leaf)
		for _, row := range b.Sample.Rows() {
			id, err := tr.LocateBucket(row)
			if err != nil {
				t.Fatal(err)
			}
			if id != b.ID {
				t.Fatalf("row %v located in bucket %d, sampled into %d", row, id, b.ID)
			}
			found := tr.Search([]query.Predicate{
				query.NewPredicate(0, query.EQ, row[0]),
				query.NewPredicate(1, query.EQ, row[1]),
			})
			if len(found) != 1 || found[0].ID != id {
				t.Fatalf("point search for %v found %d buckets", row, len(found))
			}
		}
	}
}

func TestSearchRange(t *testing.T) {
	tr := buildGrid(t)
	preds := []query.Predicate{query.NewPredicate(0, query.GEQ, value.NewInt(200))}
	found := map[int]bool{}
	for _, b := range tr.Search(preds) {
		found[b.ID] = true
	}
	if len(found) == 0 || len(found) == tr.NumBuckets() {
		t.Fatal("expected the range to prune some buckets, found", len(found))
	}
	for _, leaf := range tr.Leaves(tr.Root()) {
		b := tr.Bucket(leaf)
		for _, row := range b.Sample.Rows() {
			if row[0].Int() >= 200 && !found[b.ID] {
				t.Fatalf("row %v matches but bucket %d was pruned", row, b.ID)
			}
		}
	}
	if tr.SearchTuples(tr.Root(), nil) != 2560 {
		t.Fatal("an empty conjunction reads everything")
	}
}

func TestLocateBucketMismatch(t *testing.T) {
	tr := buildGrid(t)
	if _, err := tr.LocateBucket(value.Tuple{value.NewInt(1)}); err == nil {
		t.Fatal("expected an arity error")
	}
	if _, err := tr.LocateBucket(value.Tuple{value.NewLong(1), value.NewLong(1), value.NewVarchar("")}); err == nil {
		t.Fatal("expected a type error")
	}
	err := tr.ValidatePredicates([]query.Predicate{query.NewPredicate(2, query.EQ, value.NewVarchar("x"))})
	if err == nil {
		t.Fatal("expected varchar predicates to be rejected")
	}
}

func TestWithReplacedSplitLeavesTreeAlone(t *testing.T) {
	tr := buildGrid(t)
	before := string(tr.Marshal())

	root := tr.Root()
	attr, typ, _ := tr.Split(root)
	other := 1 - attr
	hypo := tr.WithReplacedSplit(root, other, typ, value.NewInt(64))

	if string(tr.Marshal()) != before {
		t.Fatal("evaluating a replacement changed the live tree")
	}
	if got, _, v := hypo.Split(hypo.Root()); got != other || v.Int() != 64 {
		t.Fatal("the copy does not carry the new split")
	}
	if hypo.EstimatedTuplesInSubtree(hypo.Root()) != 2560 {
		t.Fatal("re-estimation should keep the subtree total, got", hypo.EstimatedTuplesInSubtree(hypo.Root()))
	}
	if hypo.NumBuckets() != tr.NumBuckets() {
		t.Fatal("the copy lost buckets")
	}
}

func TestReplaceSplit(t *testing.T) {
	tr := buildGrid(t)
	root := tr.Root()
	attr, typ, _ := tr.Split(root)
	other := 1 - attr
	if err := tr.ReplaceSplit(root, other, typ, value.NewInt(64)); err != nil {
		t.Fatal(err)
	}
	// a quarter of the rows are below 64 on either attribute
	var left float64
	for _, leaf := range tr.Leaves(tr.Left(root)) {
		left += tr.Bucket(leaf).EstimatedTuples
	}
	if left != 640 {
		t.Fatal("expected 640 tuples left of the new split, got", left)
	}
	if err := tr.ReplaceSplit(tr.Leaves(root)[0], 0, value.Int, value.NewInt(1)); err == nil {
		t.Fatal("expected an error replacing a bucket")
	}
	if err := tr.ReplaceSplit(root, 0, value.Long, value.NewLong(1)); err == nil {
		t.Fatal("expected a type error")
	}
}

func TestDepthOfIndex(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 5: 3, 8: 3, 1024: 10, 1025: 11}
	for in, want := range cases {
		if got := DepthOfIndex(in); got != want {
			t.Fatalf("DepthOfIndex(%d) = %d, want %d", in, got, want)
		}
	}
	if BucketsForDatasetSize(10*64, 64) != 16 {
		t.Fatal("bad bucket count")
	}
}

func TestNthRoot(t *testing.T) {
	if r := NthRoot(2, 16); r < 3.999 || r > 4.001 {
		t.Fatal("bad square root", r)
	}
	if r := NthRoot(3, 8); r < 1.999 || r > 2.001 {
		t.Fatal("bad cube root", r)
	}
	alloc := InitialAllocations(value.MustParseTypes("INT", "INT"), 16, map[int]float64{1: 9})
	if alloc[1] != 9 || alloc[0] < 3.999 || alloc[0] > 4.001 {
		t.Fatal("bad initial allocations", alloc)
	}
}
