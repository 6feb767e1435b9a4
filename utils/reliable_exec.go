package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// retryable SQLSTATE classes: serialization failure, connection exceptions
var retryableCodes = []string{"40001", "08000", "08003", "08006", "57P01"}

// IsPermanent reports whether err should never be retried.
func IsPermanent(err error) bool {
	var perm PermError
	if errors.As(err, &perm) || errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, code := range retryableCodes {
			if pgErr.Code == code {
				return false
			}
		}
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Retry runs f with exponential backoff until it succeeds, returns a permanent
// error, or maxRuntime elapses.
func Retry(ctx context.Context, maxRuntime time.Duration, f func(ctx context.Context) error) error {
	logger := zerolog.Ctx(ctx)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxRuntime

	ctx, cancel := context.WithTimeout(ctx, maxRuntime)
	defer cancel()

	return backoff.RetryNotify(func() error {
		err := f(ctx)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		logger.Warn().Err(err).Str("retryIn", d.String()).Msg("retrying after error")
	})
}

// ReliableExec acquires a pooled connection and runs f with retries.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, maxRuntime time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	return Retry(ctx, maxRuntime, func(ctx context.Context) error {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("error acquiring connection: %w", err)
		}
		defer conn.Release()
		return f(ctx, conn)
	})
}

// ReliableExecInTx runs f inside a transaction, retrying serialization failures
// the way CockroachDB expects.
func ReliableExecInTx(ctx context.Context, pool *pgxpool.Pool, maxRuntime time.Duration, f func(ctx context.Context, tx pgx.Tx) error) error {
	return Retry(ctx, maxRuntime, func(ctx context.Context) error {
		return crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return f(ctx, tx)
		})
	})
}
