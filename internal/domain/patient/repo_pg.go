package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/dedup/internal/platform/db"
)

type PGRepo struct {
	pool *pgxpool.Pool
}

func NewPGRepo(pool *pgxpool.Pool) *PGRepo {
	return &PGRepo{pool: pool}
}

func (r *PGRepo) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const rawPatientCols = `patient_id, given_name, surname, street_number, address_1, suburb,
	postcode, state, date_of_birth::text, age, phone_number, address_2`

func (r *PGRepo) ListRawPatients(ctx context.Context) ([]*RawPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rawPatientCols+` FROM patient ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []*RawPatient
	for rows.Next() {
		p, err := scanRawPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRawPatient(row pgx.Row) (*RawPatient, error) {
	var p RawPatient
	err := row.Scan(&p.PatientID, &p.GivenName, &p.Surname, &p.StreetNumber, &p.Address1, &p.Suburb,
		&p.Postcode, &p.State, &p.DateOfBirth, &p.Age, &p.PhoneNumber, &p.Address2)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveRun writes the run, its canonical patients and its matched pairs in
// one transaction.
func (r *PGRepo) SaveRun(ctx context.Context, run *Run, patients []*CanonicalPatient, matches []Match) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO dedup_run (id, source, started_at, finished_at, input_count, dropped_count,
				pair_count, cluster_count, created_by, stats)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			run.ID, run.Source, run.StartedAt, run.FinishedAt, run.InputCount, run.DroppedCount,
			run.PairCount, run.ClusterCount, run.CreatedBy, run.Stats,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		_, err = q.CopyFrom(ctx, pgx.Identifier{"canonical_patient"}, canonicalCopyCols,
			pgx.CopyFromSlice(len(patients), func(i int) ([]any, error) {
				p := patients[i]
				return []any{
					run.ID, p.PatientID, p.GivenName, p.Surname, p.StreetNumber, p.Address1, p.Address2,
					p.Suburb, p.Postcode, p.State, p.Birthday, p.Age, p.PhoneNumber,
					p.AllPatientIDs, p.PCRPositive,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy canonical patients: %w", err)
		}

		_, err = q.CopyFrom(ctx, pgx.Identifier{"dedup_match"}, []string{"run_id", "patient_a", "patient_b", "pass"},
			pgx.CopyFromSlice(len(matches), func(i int) ([]any, error) {
				m := matches[i]
				return []any{run.ID, m.A, m.B, m.Pass}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy matches: %w", err)
		}
		return nil
	})
}

var canonicalCopyCols = []string{
	"run_id", "patient_id", "given_name", "surname", "street_number", "address_1", "address_2",
	"suburb", "postcode", "state", "birthday", "age", "phone_number",
	"all_patient_ids", "pcr_positive",
}

const runCols = `id, source, started_at, finished_at, input_count, dropped_count,
	pair_count, cluster_count, COALESCE(created_by, ''), stats`

func (r *PGRepo) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	return scanRun(r.conn(ctx).QueryRow(ctx, `SELECT `+runCols+` FROM dedup_run WHERE id = $1`, id))
}

func (r *PGRepo) LatestRun(ctx context.Context) (*Run, error) {
	return scanRun(r.conn(ctx).QueryRow(ctx, `SELECT `+runCols+` FROM dedup_run ORDER BY finished_at DESC LIMIT 1`))
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt, &run.InputCount, &run.DroppedCount,
		&run.PairCount, &run.ClusterCount, &run.CreatedBy, &run.Stats)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

const canonicalCols = `patient_id, given_name, surname, street_number, address_1, address_2,
	suburb, postcode, state, birthday, age, phone_number, all_patient_ids, pcr_positive`

func (r *PGRepo) ListCanonical(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*CanonicalPatient, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM canonical_patient WHERE run_id = $1`, runID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count canonical patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+canonicalCols+` FROM canonical_patient
		WHERE run_id = $1 ORDER BY patient_id LIMIT $2 OFFSET $3`, runID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query canonical patients: %w", err)
	}
	defer rows.Close()

	var out []*CanonicalPatient
	for rows.Next() {
		var c CanonicalPatient
		p := &c.Patient
		if err := rows.Scan(&p.PatientID, &p.GivenName, &p.Surname, &p.StreetNumber, &p.Address1, &p.Address2,
			&p.Suburb, &p.Postcode, &p.State, &p.Birthday, &p.Age, &p.PhoneNumber,
			&c.AllPatientIDs, &c.PCRPositive); err != nil {
			return nil, 0, fmt.Errorf("scan canonical patient: %w", err)
		}
		out = append(out, &c)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) ListMatches(ctx context.Context, runID uuid.UUID) ([]Match, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT patient_a, patient_b, pass FROM dedup_match
		WHERE run_id = $1 ORDER BY patient_a, patient_b`, runID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		err := row.Scan(&m.A, &m.B, &m.Pass)
		return m, err
	})
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}
