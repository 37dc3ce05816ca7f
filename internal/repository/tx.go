package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubsched/sessiond/internal/repository/base"
)

// TxRunner runs functions inside serializable transactions shared by every
// repository call the function makes.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (t *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return base.InTx(ctx, t.pool, fn)
}
