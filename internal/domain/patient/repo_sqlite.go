package patient

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SQLiteSource reads the patient table of a SQLite extract. Column types in
// these extracts are loose: ids and ages may be stored as REAL and
// date_of_birth as a float such as 19890213.0.
type SQLiteSource struct {
	db *sql.DB
}

func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func (s *SQLiteSource) ListRawPatients(ctx context.Context) ([]*RawPatient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, given_name, surname, street_number, address_1,
		suburb, postcode, state, date_of_birth, age, phone_number, address_2 FROM patient`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []*RawPatient
	for rows.Next() {
		var cols [12]any
		ptrs := make([]any, len(cols))
		for i := range cols {
			ptrs[i] = &cols[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}

		// A NULL or non-integral id is passed on marked, so the cleaner can
		// count it with the other dropped rows.
		id, ok := looseInt(cols[0])
		out = append(out, &RawPatient{
			PatientID:    id,
			InvalidID:    !ok,
			GivenName:    looseString(cols[1]),
			Surname:      looseString(cols[2]),
			StreetNumber: looseString(cols[3]),
			Address1:     looseString(cols[4]),
			Suburb:       looseString(cols[5]),
			Postcode:     looseString(cols[6]),
			State:        looseString(cols[7]),
			DateOfBirth:  looseString(cols[8]),
			Age:          looseIntPtr(cols[9]),
			PhoneNumber:  looseString(cols[10]),
			Address2:     looseString(cols[11]),
		})
	}
	return out, rows.Err()
}

// looseString renders a SQLite value as text. Integral floats lose their
// fractional part so 19890213.0 reads as "19890213" and 2000.0 as "2000".
func looseString(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			s = strconv.FormatInt(int64(x), 10)
		} else {
			s = strconv.FormatFloat(x, 'f', -1, 64)
		}
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

func looseInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case string:
		return parseLooseInt(x)
	case []byte:
		return parseLooseInt(string(x))
	}
	return 0, false
}

func parseLooseInt(s string) (int64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func looseIntPtr(v any) *int64 {
	n, ok := looseInt(v)
	if !ok {
		return nil
	}
	return &n
}
