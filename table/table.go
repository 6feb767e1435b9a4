package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danthegoodman1/adaptree/datastore"
	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/metastore"
	"github.com/danthegoodman1/adaptree/optimizer"
	"github.com/danthegoodman1/adaptree/parquet_accumulator"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/partitioner"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	logger = gologger.NewLogger()

	ErrSchemaMismatch = errors.New("columns do not match the tree")
	ErrNoAttribute    = errors.New("no such attribute")
)

type (
	Options struct {
		Name       string
		Columns    []partitioner.Column
		Costs      optimizer.CostModel
		WindowSize int
		MetaStore  metastore.MetaStore
		DataStore  datastore.DataStore
	}

	// Table is one adaptively partitioned dataset. Every operation takes an
	// exclusive lock since adapting mutates the tree in place.
	Table struct {
		Name string
		// ID tells apart instances of the same table across restarts in logs.
		ID      string
		Columns []partitioner.Column

		mu        sync.Mutex
		tree      *tree.Tree
		optimizer *optimizer.Optimizer
		meta      metastore.MetaStore
		data      datastore.DataStore
	}
)

func New(t *tree.Tree, opts Options) (*Table, error) {
	if len(opts.Columns) != len(t.Types) {
		return nil, fmt.Errorf("%w: %d columns, %d attributes", ErrSchemaMismatch, len(opts.Columns), len(t.Types))
	}
	for i, col := range opts.Columns {
		if col.Type != t.Types[i] {
			return nil, fmt.Errorf("%w: column %s is %s, attribute %d is %s", ErrSchemaMismatch, col.Name, col.Type, i, t.Types[i])
		}
	}
	tbl := &Table{
		Name:      opts.Name,
		ID:        utils.GenRandomShortID(),
		Columns:   opts.Columns,
		tree:      t,
		optimizer: optimizer.New(t, query.NewWindow(opts.WindowSize), opts.Costs),
		meta:      opts.MetaStore,
		data:      opts.DataStore,
	}
	logger.Debug().Str("table", tbl.Name).Str(string(gologger.TableIDKey), tbl.ID).Int("buckets", t.NumBuckets()).Msg("created table")
	return tbl, nil
}

// Build grows a fresh tree from s.
func Build(s *sample.Set, build tree.BuildOptions, opts Options) (*Table, error) {
	t, err := tree.Build(s, build)
	if err != nil {
		return nil, fmt.Errorf("error in tree.Build: %w", err)
	}
	return New(t, opts)
}

func (t *Table) Types() []value.AttributeType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Types
}

func (t *Table) withLogger(ctx context.Context) context.Context {
	l := zerolog.Ctx(ctx).With().Str("table", t.Name).Str(string(gologger.TableIDKey), t.ID).Logger()
	return l.WithContext(ctx)
}

// Adapt plans the best restructuring for q and records its routing changes in
// the metastore before applying it, so a failed write leaves the tree as it was.
func (t *Table) Adapt(ctx context.Context, q query.Query) (*optimizer.Plan, []part.RoutingChange, error) {
	ctx = t.withLogger(ctx)
	logger := zerolog.Ctx(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	var sink optimizer.RoutingSink
	if t.meta != nil {
		sink = func(ctx context.Context, changes []part.RoutingChange) error {
			if err := t.meta.RecordRoutingChanges(ctx, t.Name, changes); err != nil {
				return fmt.Errorf("error in RecordRoutingChanges: %w", err)
			}
			return nil
		}
	}
	plan, changes, err := t.optimizer.BuildPlan(ctx, q, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("error in BuildPlan: %w", err)
	}
	logger.Info().Str("query", q.String()).Str("plan", plan.String()).Int("changes", len(changes)).Msg("adapted")
	return plan, changes, nil
}

// Locate routes a flattened JSON row to its bucket.
func (t *Table) Locate(row map[string]any) (int, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return partitioner.GetRowPartition(t.tree, row, t.Columns)
}

// Search lists the ids of the buckets a conjunction of predicates may touch.
func (t *Table) Search(predicates []query.Predicate) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tree.ValidatePredicates(predicates); err != nil {
		return nil, err
	}
	buckets := t.tree.Search(predicates)
	ids := make([]int, len(buckets))
	for i, b := range buckets {
		ids[i] = b.ID
	}
	return ids, nil
}

func (t *Table) Marshal() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Marshal()
}

func (t *Table) Allocations() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Allocations()
}

func (t *Table) BucketRanges(attr int) (map[int]tree.Range, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if attr < 0 || attr >= t.tree.NumAttributes() || !t.tree.Types[attr].Splittable() {
		return nil, fmt.Errorf("%w: %d", ErrNoAttribute, attr)
	}
	return t.tree.BucketRanges(attr), nil
}

// Checkpoint persists the tree, its retained samples and a parquet export of
// those samples, then catalogs them in the metastore.
func (t *Table) Checkpoint(ctx context.Context) (metastore.Checkpoint, error) {
	ctx = t.withLogger(ctx)
	logger := zerolog.Ctx(ctx)
	if t.meta == nil || t.data == nil {
		return metastore.Checkpoint{}, fmt.Errorf("table %s has no stores to checkpoint to", t.Name)
	}

	// snapshot under the lock, upload outside it
	t.mu.Lock()
	treeBytes := t.tree.Marshal()
	numBuckets := t.tree.NumBuckets()
	totalTuples := t.tree.EstimatedTuplesInSubtree(t.tree.Root())
	pooled := sample.New(t.tree.Types)
	var rows []parquet_accumulator.Row
	for _, id := range t.tree.BucketIDs() {
		b, _ := t.tree.BucketByID(id)
		if b.Sample == nil {
			continue
		}
		pooled.Append(b.Sample.Rows()...)
		for _, tuple := range b.Sample.Rows() {
			rows = append(rows, parquet_accumulator.Row{Bucket: id, Tuple: tuple})
		}
	}
	sampleBytes := pooled.Marshal()
	t.mu.Unlock()

	names := make([]string, len(t.Columns))
	types := make([]value.AttributeType, len(t.Columns))
	for i, col := range t.Columns {
		names[i], types[i] = col.Name, col.Type
	}
	psa, err := parquet_accumulator.ForAttributes(names, types)
	if err != nil {
		return metastore.Checkpoint{}, fmt.Errorf("error in ForAttributes: %w", err)
	}

	cp := metastore.Checkpoint{
		ID:          utils.GenKSortedID("cp_"),
		Table:       t.Name,
		NumBuckets:  numBuckets,
		TotalTuples: totalTuples,
		CreatedAt:   time.Now(),
	}
	prefix := t.Name + "/" + cp.ID + "/"
	cp.TreeKey = prefix + "tree"
	cp.SampleKey = prefix + "sample"
	cp.ParquetKey = prefix + "sample.parquet"

	s := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.data.Put(gctx, cp.TreeKey, treeBytes)
	})
	g.Go(func() error {
		return t.data.Put(gctx, cp.SampleKey, sampleBytes)
	})
	g.Go(func() error {
		var buf bytes.Buffer
		if _, err := psa.WriteParquet(&buf, rows); err != nil {
			return fmt.Errorf("error in WriteParquet: %w", err)
		}
		return t.data.Put(gctx, cp.ParquetKey, buf.Bytes())
	})
	if err := g.Wait(); err != nil {
		return metastore.Checkpoint{}, fmt.Errorf("error writing checkpoint blobs: %w", err)
	}

	if err := t.meta.RecordCheckpoint(ctx, cp); err != nil {
		return metastore.Checkpoint{}, fmt.Errorf("error in RecordCheckpoint: %w", err)
	}
	logger.Info().Str("checkpointID", cp.ID).Int("buckets", numBuckets).Int("sampleRows", pooled.Size()).Int64("ms", time.Since(s).Milliseconds()).Msg("checkpointed table")
	return cp, nil
}

// Restore rebuilds a table from its latest checkpoint. Bucket estimates come
// from the persisted tree and samples are routed back to their buckets.
func Restore(ctx context.Context, opts Options) (*Table, error) {
	logger := zerolog.Ctx(ctx)
	cp, err := opts.MetaStore.LatestCheckpoint(ctx, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("error in LatestCheckpoint: %w", err)
	}

	treeBytes, err := opts.DataStore.Get(ctx, cp.TreeKey)
	if err != nil {
		return nil, fmt.Errorf("error getting tree: %w", err)
	}
	sampleBytes, err := opts.DataStore.Get(ctx, cp.SampleKey)
	if err != nil {
		return nil, fmt.Errorf("error getting sample: %w", err)
	}

	tr, err := tree.Unmarshal(treeBytes)
	if err != nil {
		return nil, fmt.Errorf("error in tree.Unmarshal: %w", err)
	}
	s, err := sample.Unmarshal(sampleBytes)
	if err != nil {
		return nil, fmt.Errorf("error in sample.Unmarshal: %w", err)
	}

	estimates := make(map[int]float64, tr.NumBuckets())
	for _, id := range tr.BucketIDs() {
		b, _ := tr.BucketByID(id)
		estimates[id] = b.EstimatedTuples
	}
	if err := tr.LoadSample(s, cp.TotalTuples); err != nil {
		return nil, fmt.Errorf("error in LoadSample: %w", err)
	}
	for id, est := range estimates {
		b, _ := tr.BucketByID(id)
		b.EstimatedTuples = est
	}

	logger.Info().Str("table", opts.Name).Str("checkpointID", cp.ID).Int("buckets", tr.NumBuckets()).Msg("restored table")
	return New(tr, opts)
}
