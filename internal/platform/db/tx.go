package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InTx runs fn inside a transaction on q. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func InTx(ctx context.Context, q Querier, fn func(tx pgx.Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
