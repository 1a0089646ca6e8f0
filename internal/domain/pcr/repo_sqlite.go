package pcr

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

type SQLiteSource struct {
	db *sql.DB
}

func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func (s *SQLiteSource) ListRawTests(ctx context.Context) ([]*RawTest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, pcr FROM test`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var out []*RawTest
	for rows.Next() {
		var id any
		var pcr sql.NullString
		if err := rows.Scan(&id, &pcr); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		// Tests without a usable patient id cannot be attached to anyone.
		pid, ok := patientID(id)
		if !ok {
			continue
		}
		t := &RawTest{PatientID: pid}
		if pcr.Valid {
			t.PCR = &pcr.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func patientID(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}
