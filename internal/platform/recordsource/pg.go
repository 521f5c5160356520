package recordsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource reads patient records previously ingested into Postgres.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Fetch(ctx context.Context, cpmrn string, encounter int) (json.RawMessage, error) {
	const q = `SELECT record FROM patient_records WHERE cpmrn = $1 AND encounter = $2`

	var record json.RawMessage
	err := s.pool.QueryRow(ctx, q, cpmrn, encounter).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cpmrn %s encounter %d: %w", cpmrn, encounter, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query patient record: %w", err)
	}
	return record, nil
}
