package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danthegoodman1/adaptree/migrations"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/rs/zerolog"
	// ensure "sqlite" driver is loaded
	_ "modernc.org/sqlite"
)

type (
	// SQLiteMetaStore is a single node MetaStore in a local file.
	SQLiteMetaStore struct {
		db *sql.DB
	}
)

// NewSQLiteMetaStore opens path, migrating it if needed.
func NewSQLiteMetaStore(ctx context.Context, path string) (*SQLiteMetaStore, error) {
	logger := zerolog.Ctx(ctx)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn().Err(err).Msg("failed to set journal mode")
	}

	n, err := migrations.Exec(db, migrations.SQLite)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error in migrations.Exec: %w", err)
	}
	logger.Debug().Str("path", path).Int("applied", n).Msg("opened sqlite metastore")
	return &SQLiteMetaStore{db: db}, nil
}

func (sms *SQLiteMetaStore) RecordRoutingChanges(ctx context.Context, table string, changes []part.RoutingChange) error {
	tx, err := sms.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error in BeginTx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO routing_changes (id, table_name, attribute, attribute_type, split_value, node_path, buckets, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("error in PrepareContext: %w", err)
	}
	defer stmt.Close()

	for _, rc := range changes {
		row, err := toRow(rc)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, row.ID, table, row.Attribute, row.AttributeType, row.SplitValue, row.NodePath, row.Buckets, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("error inserting routing change %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error in Commit: %w", err)
	}
	return nil
}

func (sms *SQLiteMetaStore) ListRoutingChanges(ctx context.Context, table string) ([]part.RoutingChange, error) {
	rows, err := sms.db.QueryContext(ctx, `
		SELECT id, attribute, attribute_type, split_value, node_path, buckets, created_at
		FROM routing_changes
		WHERE table_name = ?
		ORDER BY created_at, id
	`, table)
	if err != nil {
		return nil, fmt.Errorf("error querying routing changes: %w", err)
	}
	defer rows.Close()

	var changes []part.RoutingChange
	for rows.Next() {
		var row routingChangeRow
		if err := rows.Scan(&row.ID, &row.Attribute, &row.AttributeType, &row.SplitValue, &row.NodePath, &row.Buckets, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning routing change: %w", err)
		}
		rc, err := row.toRoutingChange()
		if err != nil {
			return nil, err
		}
		changes = append(changes, rc)
	}
	return changes, rows.Err()
}

func (sms *SQLiteMetaStore) RecordCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := sms.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, table_name, tree_key, sample_key, parquet_key, num_buckets, total_tuples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.Table, cp.TreeKey, cp.SampleKey, cp.ParquetKey, int64(cp.NumBuckets), cp.TotalTuples, cp.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("error inserting checkpoint: %w", err)
	}
	return nil
}

func (sms *SQLiteMetaStore) LatestCheckpoint(ctx context.Context, table string) (Checkpoint, error) {
	cp := Checkpoint{Table: table}
	var numBuckets, createdAt int64
	err := sms.db.QueryRowContext(ctx, `
		SELECT id, tree_key, sample_key, parquet_key, num_buckets, total_tuples, created_at
		FROM checkpoints
		WHERE table_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, table).Scan(&cp.ID, &cp.TreeKey, &cp.SampleKey, &cp.ParquetKey, &numBuckets, &cp.TotalTuples, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w %s", ErrNoCheckpoint, table)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("error selecting checkpoint: %w", err)
	}
	cp.NumBuckets = int(numBuckets)
	cp.CreatedAt = time.Unix(0, createdAt)
	return cp, nil
}

func (sms *SQLiteMetaStore) Shutdown(context.Context) error {
	return sms.db.Close()
}
