package tree

import (
	"testing"
)

func TestAllocations(t *testing.T) {
	tr, err := Unmarshal([]byte(referenceTree))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2.0, 1.25, 1.5, 0.75}
	got := tr.Allocations()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocations %v, want %v", got, want)
		}
	}
}

func TestAllocationsLopsided(t *testing.T) {
	tr, err := Unmarshal([]byte(`17 4
INT INT STRING INT
n 0 INT 10
n 1 INT 32
n 2 STRING hello
n 3 INT 100
b 1 0
b 2 0
b 3 0
b 4 0
b 5 0
`))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 1, 0.5, 0.25}
	got := tr.Allocations()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocations %v, want %v", got, want)
		}
	}
}

func TestBucketRanges(t *testing.T) {
	tr, err := Unmarshal([]byte(referenceTree))
	if err != nil {
		t.Fatal(err)
	}
	ranges := tr.BucketRanges(1)

	type bound struct {
		low, high int64
	}
	const open = -1
	want := map[int]bound{
		1: {open, 32},
		2: {open, 32},
		3: {open, 18},
		4: {18, 32},
		5: {32, open},
		6: {32, open},
	}
	if len(ranges) != len(want) {
		t.Fatalf("got ranges for %d buckets, want %d", len(ranges), len(want))
	}
	for id, w := range want {
		r, ok := ranges[id]
		if !ok {
			t.Fatal("missing range for bucket", id)
		}
		low, high := int64(open), int64(open)
		if r.Low != nil {
			low = r.Low.Int()
		}
		if r.High != nil {
			high = r.High.Int()
		}
		if low != w.low || high != w.high {
			t.Fatalf("bucket %d covers [%d, %d), want [%d, %d)", id, low, high, w.low, w.high)
		}
	}
}
