package pcr

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) ListRawTests(ctx context.Context) ([]*RawTest, error) {
	rows, err := s.pool.Query(ctx, `SELECT patient_id, pcr FROM test ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	tests, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*RawTest, error) {
		var t RawTest
		err := row.Scan(&t.PatientID, &t.PCR)
		return &t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tests: %w", err)
	}
	return tests, nil
}
