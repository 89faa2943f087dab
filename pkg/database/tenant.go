package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// ErrNoTransaction is returned by helpers that must run inside WithTenantRLS.
var ErrNoTransaction = errors.New("no transaction in context")

// WithTenantRLS runs fn inside a transaction scoped to tenantID.
//
// The transaction is stored in the context handed to fn, so repository calls
// made through Conn(ctx) join it. app.current_tenant is set with SET LOCAL
// semantics for the row level security policies:
//
//	USING (tenant_id = current_setting('app.current_tenant')::uuid)
//
// Nested calls for the same tenant reuse the outer transaction.
func (db *DB) WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	if tx := getTx(ctx); tx != nil {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenantID); err != nil {
			return fmt.Errorf("failed to set app.current_tenant to %s: %w", tenantID, err)
		}

		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// SetLockTimeout bounds how long row locks in the current transaction may wait.
// A lock wait beyond d fails with SQLSTATE 55P03.
func (db *DB) SetLockTimeout(ctx context.Context, d time.Duration) error {
	tx := getTx(ctx)
	if tx == nil {
		return ErrNoTransaction
	}
	if d <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT set_config('lock_timeout', $1, true)", fmt.Sprintf("%dms", d.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set lock_timeout: %w", err)
	}
	return nil
}

// InTransaction reports whether ctx carries a transaction.
func InTransaction(ctx context.Context) bool {
	return getTx(ctx) != nil
}

// getTx extracts transaction from context if present
func getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
