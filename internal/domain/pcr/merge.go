package pcr

// Summary counts the outcome of attaching results to canonical patients.
type Summary struct {
	Tested    int `json:"tested"`
	Positive  int `json:"positive"`
	Untested  int `json:"untested"`
	Unmatched int `json:"unmatched"`
}

// MergeIntoPatients attaches results to canonical patients. Every original
// id of a group is looked up; the canonical patient is positive if any of
// them tested positive. Groups with no result at all are absent from the
// returned map. Results for ids outside every group are counted as
// unmatched and otherwise ignored.
func MergeIntoPatients(groups []Group, results []Result) (map[int64]bool, Summary) {
	owner := make(map[int64]int64)
	for _, g := range groups {
		owner[g.PatientID] = g.PatientID
		for _, id := range g.AllPatientIDs {
			owner[id] = g.PatientID
		}
	}

	merged := make(map[int64]bool)
	var sum Summary
	for _, r := range results {
		canonical, ok := owner[r.PatientID]
		if !ok {
			sum.Unmatched++
			continue
		}
		merged[canonical] = merged[canonical] || r.Positive
	}

	sum.Tested = len(merged)
	sum.Untested = len(groups) - len(merged)
	for _, pos := range merged {
		if pos {
			sum.Positive++
		}
	}
	return merged, sum
}
