package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

type (
	CRDBMetaStore struct {
		pool       *pgxpool.Pool
		maxRuntime time.Duration
	}
)

func NewCRDBMetaStore(pool *pgxpool.Pool) *CRDBMetaStore {
	return &CRDBMetaStore{
		pool:       pool,
		maxRuntime: time.Second * 10,
	}
}

func (cms *CRDBMetaStore) RecordRoutingChanges(ctx context.Context, table string, changes []part.RoutingChange) error {
	logger := zerolog.Ctx(ctx)
	rows := make([]routingChangeRow, len(changes))
	for i, rc := range changes {
		row, err := toRow(rc)
		if err != nil {
			return err
		}
		rows[i] = row
	}

	s := time.Now()
	err := utils.ReliableExecInTx(ctx, cms.pool, cms.maxRuntime, func(ctx context.Context, tx pgx.Tx) error {
		for _, row := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO routing_changes (id, table_name, attribute, attribute_type, split_value, node_path, buckets, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, row.ID, table, row.Attribute, row.AttributeType, row.SplitValue, row.NodePath, row.Buckets, row.CreatedAt)
			if err != nil {
				return fmt.Errorf("error inserting routing change %s: %w", row.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error in ReliableExecInTx: %w", err)
	}
	logger.Debug().Str("table", table).Int("changes", len(rows)).Int64("ms", time.Since(s).Milliseconds()).Msg("recorded routing changes")
	return nil
}

func (cms *CRDBMetaStore) ListRoutingChanges(ctx context.Context, table string) ([]part.RoutingChange, error) {
	var changes []part.RoutingChange
	err := utils.ReliableExec(ctx, cms.pool, cms.maxRuntime, func(ctx context.Context, conn *pgxpool.Conn) error {
		changes = changes[:0]
		rows, err := conn.Query(ctx, `
			SELECT id, attribute, attribute_type, split_value, node_path, buckets, created_at
			FROM routing_changes
			WHERE table_name = $1
			ORDER BY created_at, id
		`, table)
		if err != nil {
			return fmt.Errorf("error querying routing changes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var row routingChangeRow
			if err := rows.Scan(&row.ID, &row.Attribute, &row.AttributeType, &row.SplitValue, &row.NodePath, &row.Buckets, &row.CreatedAt); err != nil {
				return fmt.Errorf("error scanning routing change: %w", err)
			}
			rc, err := row.toRoutingChange()
			if err != nil {
				return utils.PermError(err.Error())
			}
			changes = append(changes, rc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("error in ReliableExec: %w", err)
	}
	return changes, nil
}

func (cms *CRDBMetaStore) RecordCheckpoint(ctx context.Context, cp Checkpoint) error {
	err := utils.ReliableExec(ctx, cms.pool, cms.maxRuntime, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO checkpoints (id, table_name, tree_key, sample_key, parquet_key, num_buckets, total_tuples, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, cp.ID, cp.Table, cp.TreeKey, cp.SampleKey, cp.ParquetKey, int64(cp.NumBuckets), cp.TotalTuples, cp.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return fmt.Errorf("error in ReliableExec: %w", err)
	}
	return nil
}

func (cms *CRDBMetaStore) LatestCheckpoint(ctx context.Context, table string) (Checkpoint, error) {
	cp := Checkpoint{Table: table}
	var numBuckets, createdAt int64
	err := utils.ReliableExec(ctx, cms.pool, cms.maxRuntime, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT id, tree_key, sample_key, parquet_key, num_buckets, total_tuples, created_at
			FROM checkpoints
			WHERE table_name = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, table).Scan(&cp.ID, &cp.TreeKey, &cp.SampleKey, &cp.ParquetKey, &numBuckets, &cp.TotalTuples, &createdAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w %s", ErrNoCheckpoint, table)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("error in ReliableExec: %w", err)
	}
	cp.NumBuckets = int(numBuckets)
	cp.CreatedAt = time.Unix(0, createdAt)
	return cp, nil
}

func (cms *CRDBMetaStore) Shutdown(context.Context) error {
	cms.pool.Close()
	return nil
}
