package tree

import (
	"errors"
	"strings"
	"testing"

	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/value"
)

// referenceTree has 8 buckets over (INT, INT, STRING, INT).
const referenceTree = `17 4
INT INT STRING INT
n 0 INT 10
n 1 INT 32
n 2 STRING hello
n 3 INT 100
b 1 0
b 2 0
n 1 INT 18
b 3 0
b 4 0
n 3 INT 11
b 5 0
b 6 0
n 2 STRING hola
b 7 0
b 8 0
`

func TestMarshalRoundTrip(t *testing.T) {
	tr := buildGrid(t)
	b := tr.Marshal()
	back, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(back.Marshal()) != string(b) {
		t.Log(string(b))
		t.Fatal("round trip changed the tree")
	}
	if back.MaxBuckets != tr.MaxBuckets || back.NumBuckets() != tr.NumBuckets() || back.Depth() != tr.Depth() {
		t.Fatal("round trip changed the tree shape")
	}
	for _, id := range tr.BucketIDs() {
		orig, _ := tr.BucketByID(id)
		got, ok := back.BucketByID(id)
		if !ok {
			t.Fatal("missing bucket", id)
		}
		if got.EstimatedTuples != orig.EstimatedTuples {
			t.Fatal("bucket estimate changed", id)
		}
	}
	// reloaded buckets route the same rows
	for _, leaf := range tr.Leaves(tr.Root()) {
		for _, row := range tr.Bucket(leaf).Sample.Rows() {
			want, _ := tr.LocateBucket(row)
			got, err := back.LocateBucket(row)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("row %v moved from bucket %d to %d", row, want, got)
			}
		}
	}
}

func TestUnmarshalReference(t *testing.T) {
	tr, err := Unmarshal([]byte(referenceTree))
	if err != nil {
		t.Fatal(err)
	}
	if tr.MaxBuckets != 17 || tr.NumAttributes() != 4 || tr.NumBuckets() != 8 {
		t.Fatal("bad header", tr.MaxBuckets, tr.NumAttributes(), tr.NumBuckets())
	}
	if string(tr.Marshal()) != referenceTree {
		t.Log(string(tr.Marshal()))
		t.Fatal("reference tree did not round trip")
	}
	id, err := tr.LocateBucket(value.Tuple{value.NewInt(3), value.NewInt(20), value.NewString("zebra"), value.NewInt(0)})
	if err != nil {
		t.Fatal(err)
	}
	// a0 < 10, a1 < 32, a2 >= hello, a1 >= 18
	if id != 4 {
		t.Fatal("expected bucket 4, got", id)
	}
}

func TestUnmarshalStringWithSpaces(t *testing.T) {
	in := "2 1\nSTRING\nn 0 STRING hello world\nb 0 1.5\nb 1 2\n"
	tr, err := Unmarshal([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, v := tr.Split(tr.Root()); v.Str() != "hello world" {
		t.Fatalf("got split value %q", v.Str())
	}
	if string(tr.Marshal()) != in {
		t.Fatal("string split did not round trip")
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	cases := map[string]string{
		"header":         "2\nINT\nb 0 1\n",
		"type count":     "2 2\nINT\nb 0 1\n",
		"unknown type":   "2 1\nBLOB\nb 0 1\n",
		"type mismatch":  "2 1\nINT\nn 0 LONG 5\nb 0 1\nb 1 1\n",
		"varchar split":  "2 1\nVARCHAR\nn 0 VARCHAR x\nb 0 1\nb 1 1\n",
		"bad attribute":  "2 1\nINT\nn 3 INT 5\nb 0 1\nb 1 1\n",
		"bad value":      "2 1\nINT\nn 0 INT five\nb 0 1\nb 1 1\n",
		"missing child":  "2 1\nINT\nn 0 INT 5\nb 0 1\n",
		"trailing data":  "2 1\nINT\nb 0 1\nb 1 1\n",
		"duplicate id":   "2 1\nINT\nn 0 INT 5\nb 0 1\nb 0 1\n",
		"unknown tag":    "2 1\nINT\nx 0 1\n",
		"bad tuple size": "2 1\nINT\nb 0 many\n",
	}
	for name, in := range cases {
		_, err := Unmarshal([]byte(in))
		if !errors.Is(err, ErrMalformedTree) {
			t.Fatalf("%s: expected malformed tree, got %v", name, err)
		}
		if !strings.HasPrefix(err.Error(), "line ") {
			t.Fatalf("%s: error does not name a line: %s", name, err)
		}
	}
}

func TestLoadSample(t *testing.T) {
	tr, err := Unmarshal([]byte("4 2\nINT INT\nn 0 INT 50\nb 0 0\nb 1 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := sample.New(tr.Types)
	for i := 0; i < 100; i++ {
		if err := s.Insert(value.Tuple{value.NewInt(int32(i)), value.NewInt(0)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.LoadSample(s, 1000); err != nil {
		t.Fatal(err)
	}
	for _, id := range []int{0, 1} {
		b, _ := tr.BucketByID(id)
		if b.Sample.Size() != 50 || b.EstimatedTuples != 500 {
			t.Fatalf("bucket %d got %d samples and %g tuples", id, b.Sample.Size(), b.EstimatedTuples)
		}
	}
	if err := tr.LoadSample(sample.New(value.MustParseTypes("INT")), 10); !errors.Is(err, ErrTupleMismatch) {
		t.Fatal("expected a schema mismatch, got", err)
	}
}

func TestMarshalEscapesSplitValues(t *testing.T) {
	tr, err := Unmarshal([]byte("2 1\nSTRING\nn 0 STRING m\nb 0 1\nb 1 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	split := "a|b\nc\\d\r "
	if err := tr.ReplaceSplit(tr.Root(), 0, value.String, value.NewString(split)); err != nil {
		t.Fatal(err)
	}
	b := tr.Marshal()
	back, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, v := back.Split(back.Root()); v.Str() != split {
		t.Fatalf("split value %q came back as %q", split, v.Str())
	}
	if string(back.Marshal()) != string(b) {
		t.Fatal("escaped tree did not round trip")
	}
}
