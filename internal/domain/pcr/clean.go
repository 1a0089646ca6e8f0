package pcr

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsPositive reports whether a recorded PCR value reads as positive: its
// first letter is a P in either case ("P", "positive", "Pos"). Missing
// values are negative.
func IsPositive(v *string) bool {
	if v == nil {
		return false
	}
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(*v))
	return unicode.ToUpper(r) == 'P'
}

// Clean reduces raw tests to one result per patient id, positive if any of
// that patient's tests is. Results are sorted by patient id.
func Clean(raw []*RawTest) []Result {
	byPatient := make(map[int64]bool, len(raw))
	for _, t := range raw {
		byPatient[t.PatientID] = byPatient[t.PatientID] || IsPositive(t.PCR)
	}

	out := make([]Result, 0, len(byPatient))
	for id, pos := range byPatient {
		out = append(out, Result{PatientID: id, Positive: pos})
	}
	slices.SortFunc(out, func(a, b Result) int {
		switch {
		case a.PatientID < b.PatientID:
			return -1
		case a.PatientID > b.PatientID:
			return 1
		}
		return 0
	})
	return out
}
