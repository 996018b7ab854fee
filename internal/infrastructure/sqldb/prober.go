package sqldb

import (
	"context"

	"ledger-service/internal/application"
)

var _ application.Prober = (*Prober)(nil)

type Prober struct{ db *DB }

func NewProber(db *DB) *Prober { return &Prober{db: db} }

func (p *Prober) SelectOne(ctx context.Context, tx application.OptionalTx) (int64, error) {
	q, err := p.db.Querier(tx)
	if err != nil {
		return 0, err
	}
	var one int64
	if err := q.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return 0, err
	}
	return one, nil
}
