// Package pcr attaches PCR test results to deduplicated patients.
package pcr

import "context"

// RawTest is a row of the test table.
type RawTest struct {
	PatientID int64   `json:"patient_id"`
	PCR       *string `json:"pcr"`
}

// Result is the aggregated outcome for one original patient id.
type Result struct {
	PatientID int64 `json:"patient_id"`
	Positive  bool  `json:"pcr_positive"`
}

// Group maps a canonical patient to every original id folded into it.
type Group struct {
	PatientID     int64
	AllPatientIDs []int64
}

// Source reads the raw test table.
type Source interface {
	ListRawTests(ctx context.Context) ([]*RawTest, error)
}
