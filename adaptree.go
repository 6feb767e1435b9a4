package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/danthegoodman1/adaptree/config"
	"github.com/danthegoodman1/adaptree/datastore"
	"github.com/danthegoodman1/adaptree/metastore"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/table"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/rs/zerolog"
)

type (
	AdapTree struct {
		MetaStore metastore.MetaStore
		DataStore datastore.DataStore
		Tables    *table.Registry

		cfg *config.Config
	}
)

func NewAdapTree(ms metastore.MetaStore, ds datastore.DataStore, cfg *config.Config) (*AdapTree, error) {
	at := &AdapTree{
		MetaStore: ms,
		DataStore: ds,
		Tables:    table.NewRegistry(),
		cfg:       cfg,
	}

	return at, nil
}

// LoadTables builds or restores every configured table.
func (at *AdapTree) LoadTables(ctx context.Context) error {
	for _, tc := range at.cfg.Tables {
		tbl, err := at.loadTable(ctx, tc)
		if err != nil {
			return fmt.Errorf("error loading table %s: %w", tc.Name, err)
		}
		if err := at.Tables.Add(tbl); err != nil {
			return fmt.Errorf("error in Tables.Add: %w", err)
		}
	}
	return nil
}

func (at *AdapTree) tableOptions(tc config.TableConfig) (table.Options, error) {
	cols, err := tc.PartitionerColumns()
	if err != nil {
		return table.Options{}, err
	}
	return table.Options{
		Name:       tc.Name,
		Columns:    cols,
		Costs:      at.cfg.Optimizer.CostModel(),
		WindowSize: tc.WindowSize,
		MetaStore:  at.MetaStore,
		DataStore:  at.DataStore,
	}, nil
}

func (at *AdapTree) loadTable(ctx context.Context, tc config.TableConfig) (*table.Table, error) {
	logger := zerolog.Ctx(ctx).With().Str("table", tc.Name).Logger()
	opts, err := at.tableOptions(tc)
	if err != nil {
		return nil, fmt.Errorf("error in tableOptions: %w", err)
	}

	if tc.Restore {
		tbl, err := table.Restore(ctx, opts)
		if err == nil {
			return tbl, nil
		}
		if !errors.Is(err, metastore.ErrNoCheckpoint) {
			return nil, fmt.Errorf("error in table.Restore: %w", err)
		}
		logger.Info().Msg("no checkpoint to restore, building from sample")
	}

	b, err := os.ReadFile(tc.SamplePath)
	if err != nil {
		return nil, fmt.Errorf("error reading sample: %w", err)
	}
	s, err := sample.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("error in sample.Unmarshal: %w", err)
	}

	maxBuckets, err := tc.ResolveMaxBuckets()
	if err != nil {
		return nil, err
	}
	totalTuples := tc.TotalTuples
	if totalTuples <= 0 {
		totalTuples = float64(s.Size())
	}
	build := tree.BuildOptions{
		MaxBuckets:       maxBuckets,
		TotalTuples:      totalTuples,
		AttributeWeights: tc.AttributeWeights,
	}
	if tc.Seed != 0 {
		build.Rand = rand.New(rand.NewSource(tc.Seed))
	}

	tbl, err := table.Build(s, build, opts)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("sampleRows", s.Size()).Int("maxBuckets", maxBuckets).Msg("built table")
	return tbl, nil
}

func (at *AdapTree) Shutdown(ctx context.Context) error {
	var errs []error
	if err := at.MetaStore.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down metastore: %w", err))
	}
	if err := at.DataStore.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down datastore: %w", err))
	}
	return errors.Join(errs...)
}
