package table

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danthegoodman1/adaptree/datastore"
	"github.com/danthegoodman1/adaptree/metastore"
	"github.com/danthegoodman1/adaptree/optimizer"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/partitioner"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/value"
)

var testColumns = []partitioner.Column{
	{Name: "a", Type: value.Int},
	{Name: "b", Type: value.Int},
}

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	ms, err := metastore.NewSQLiteMetaStore(context.Background(), filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ms.Shutdown(context.Background())
	})
	ds, err := datastore.NewDiskDataStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		Name:       "events",
		Columns:    testColumns,
		Costs:      optimizer.DefaultCostModel(),
		WindowSize: 10,
		MetaStore:  ms,
		DataStore:  ds,
	}
}

// testTable splits a on 50 over 100 rows where b is a permutation of [0, 100).
func testTable(t *testing.T, opts Options) *Table {
	t.Helper()
	tr, err := tree.Unmarshal([]byte("4 2\nINT INT\nn 0 INT 50\nb 0 0\nb 1 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := sample.New(tr.Types)
	for i := 0; i < 100; i++ {
		if err := s.Insert(value.Tuple{value.NewInt(int32(i)), value.NewInt(int32((i * 37) % 100))}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.LoadSample(s, 1000); err != nil {
		t.Fatal(err)
	}
	tbl, err := New(tr, opts)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestNewSchemaMismatch(t *testing.T) {
	tr, err := tree.Unmarshal([]byte("2 2\nINT STRING\nn 0 INT 5\nb 0 1\nb 1 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(tr, Options{Name: "x", Columns: testColumns})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatal("expected schema mismatch, got", err)
	}
	_, err = New(tr, Options{Name: "x", Columns: testColumns[:1]})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatal("expected schema mismatch, got", err)
	}
}

func TestAdaptRecordsRoutingChanges(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	tbl := testTable(t, opts)
	q := query.New(query.NewPredicate(1, query.LT, value.NewInt(20)))

	// nothing in the window yet, so nothing can pay off
	_, changes, err := tbl.Adapt(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Fatal("expected no changes on an empty window, got", len(changes))
	}

	plan, changes, err := tbl.Adapt(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Actions.Option != optimizer.Replace || len(changes) != 1 {
		t.Fatal("expected a root replace", plan, len(changes))
	}

	recorded, err := opts.MetaStore.ListRoutingChanges(ctx, opts.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].ID != changes[0].ID {
		t.Fatal("routing change not recorded", recorded)
	}
	if recorded[0].Buckets.GetCardinality() != 2 {
		t.Fatal("both buckets should be rerouted, got", recorded[0].BucketIDs())
	}

	ids, err := tbl.Search(q.Predicates)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatal("query should now touch one bucket, got", ids)
	}

	bucket, partition, err := tbl.Locate(map[string]any{"a": float64(70), "b": float64(10)})
	if err != nil {
		t.Fatal(err)
	}
	if bucket != ids[0] || partition != partitioner.BucketPartition(ids[0]) {
		t.Fatal("row should land in the searched bucket", bucket, partition)
	}
}

func TestSearchBadPredicate(t *testing.T) {
	tbl := testTable(t, Options{Name: "x", Columns: testColumns, Costs: optimizer.DefaultCostModel()})
	_, err := tbl.Search([]query.Predicate{query.NewPredicate(0, query.EQ, value.NewString("nope"))})
	if err == nil {
		t.Fatal("expected a type mismatch")
	}
}

func TestBucketRanges(t *testing.T) {
	tbl := testTable(t, Options{Name: "x", Columns: testColumns, Costs: optimizer.DefaultCostModel()})
	ranges, err := tbl.BucketRanges(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 2 || ranges[0].High == nil || ranges[0].High.Int() != 50 {
		t.Fatal("bad ranges", ranges)
	}
	if _, err := tbl.BucketRanges(5); !errors.Is(err, ErrNoAttribute) {
		t.Fatal("expected ErrNoAttribute, got", err)
	}
}

func TestCheckpointRestore(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	tbl := testTable(t, opts)
	q := query.New(query.NewPredicate(1, query.LT, value.NewInt(20)))
	for i := 0; i < 2; i++ {
		if _, _, err := tbl.Adapt(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	cp, err := tbl.Checkpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cp.NumBuckets != 2 || cp.TotalTuples != 1000 {
		t.Fatal("bad checkpoint", cp)
	}
	if _, err := opts.DataStore.Get(ctx, cp.ParquetKey); err != nil {
		t.Fatal("parquet export missing", err)
	}

	restored, err := Restore(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored.Marshal()) != string(tbl.Marshal()) {
		t.Fatalf("restored tree differs\n%s\n%s", restored.Marshal(), tbl.Marshal())
	}
	want, _ := tbl.Search(q.Predicates)
	got, _ := restored.Search(q.Predicates)
	if len(got) != 1 || got[0] != want[0] {
		t.Fatal("restored search differs", got, want)
	}
}

func TestRestoreWithoutCheckpoint(t *testing.T) {
	_, err := Restore(context.Background(), testOptions(t))
	if !errors.Is(err, metastore.ErrNoCheckpoint) {
		t.Fatal("expected ErrNoCheckpoint, got", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := testTable(t, Options{Name: "b_table", Columns: testColumns, Costs: optimizer.DefaultCostModel()})
	b := testTable(t, Options{Name: "a_table", Columns: testColumns, Costs: optimizer.DefaultCostModel()})
	if err := r.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(a); !errors.Is(err, ErrTableExists) {
		t.Fatal("expected ErrTableExists, got", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "a_table" {
		t.Fatal("bad names", names)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrTableNotFound) {
		t.Fatal("expected ErrTableNotFound, got", err)
	}
}

// flakyMetaStore fails routing change writes while down is set.
type flakyMetaStore struct {
	metastore.MetaStore
	down bool
}

func (f *flakyMetaStore) RecordRoutingChanges(ctx context.Context, table string, changes []part.RoutingChange) error {
	if f.down {
		return errors.New("sink down")
	}
	return f.MetaStore.RecordRoutingChanges(ctx, table, changes)
}

func TestAdaptLeavesTreeWhenSinkFails(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	flaky := &flakyMetaStore{MetaStore: opts.MetaStore}
	opts.MetaStore = flaky
	tbl := testTable(t, opts)
	q := query.New(query.NewPredicate(1, query.LT, value.NewInt(20)))

	if _, _, err := tbl.Adapt(ctx, q); err != nil {
		t.Fatal(err)
	}
	before := string(tbl.Marshal())

	flaky.down = true
	for i := 0; i < 2; i++ {
		if _, changes, err := tbl.Adapt(ctx, q); err == nil || changes != nil {
			t.Fatal("expected the failed write to surface, got", err, changes)
		}
		if string(tbl.Marshal()) != before {
			t.Fatalf("a failed write changed the tree\n%s", tbl.Marshal())
		}
	}

	flaky.down = false
	_, changes, err := tbl.Adapt(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatal("the replace should be retried once the sink recovers, got", len(changes))
	}
	recorded, err := flaky.ListRoutingChanges(ctx, opts.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].ID != changes[0].ID {
		t.Fatal("expected exactly the retried change to be recorded", recorded)
	}
	if string(tbl.Marshal()) == before {
		t.Fatal("the tree should be restructured after a recorded change")
	}
}
