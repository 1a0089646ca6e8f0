package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	postcodePattern = regexp.MustCompile(`^\d{4}`)
	phonePattern    = regexp.MustCompile(`^\d{2} \d{8}`)
)

var stateNames = map[string]string{
	"nsw": "New South Wales",
	"vic": "Victoria",
	"qld": "Queensland",
	"wa":  "Western Australia",
	"sa":  "South Australia",
	"tas": "Tasmania",
	"act": "Australian Capital Territory",
	"nt":  "Northern Territory",
}

// CleanReport counts what the cleaner dropped or nulled.
type CleanReport struct {
	Input            int `json:"input"`
	Output           int `json:"output"`
	InvalidIDs       int `json:"invalid_ids"`
	DuplicateIDs     int `json:"duplicate_ids"`
	InvalidBirthday  int `json:"invalid_birthday"`
	InvalidState     int `json:"invalid_state"`
	InvalidPostcode  int `json:"invalid_postcode"`
	PostcodeInSuburb int `json:"postcode_in_suburb"`
	InvalidPhone     int `json:"invalid_phone"`
}

// Dropped is the number of input rows not passed on.
func (r CleanReport) Dropped() int { return r.Input - r.Output }

type Cleaner struct {
	logger zerolog.Logger
}

func NewCleaner(logger zerolog.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean normalizes raw rows. Rows without a usable patient_id are dropped.
// Every row whose patient_id occurs more than once is dropped, all copies
// included, since no copy can be trusted.
func (c *Cleaner) Clean(raw []*RawPatient) ([]*Patient, CleanReport) {
	report := CleanReport{Input: len(raw)}

	counts := make(map[int64]int, len(raw))
	for _, r := range raw {
		if !r.InvalidID {
			counts[r.PatientID]++
		}
	}

	out := make([]*Patient, 0, len(raw))
	for _, r := range raw {
		if r.InvalidID {
			report.InvalidIDs++
			continue
		}
		if counts[r.PatientID] > 1 {
			report.DuplicateIDs++
			continue
		}
		out = append(out, cleanRow(r, &report))
	}
	report.Output = len(out)

	c.logger.Debug().
		Int("input", report.Input).
		Int("output", report.Output).
		Int("invalid_ids", report.InvalidIDs).
		Int("duplicate_ids", report.DuplicateIDs).
		Int("invalid_birthday", report.InvalidBirthday).
		Int("invalid_postcode", report.InvalidPostcode).
		Int("invalid_phone", report.InvalidPhone).
		Msg("patients cleaned")
	return out, report
}

func cleanRow(r *RawPatient, report *CleanReport) *Patient {
	p := &Patient{
		PatientID:    r.PatientID,
		GivenName:    trimmed(r.GivenName),
		Surname:      trimmed(r.Surname),
		StreetNumber: trimmed(r.StreetNumber),
		Address1:     trimmed(r.Address1),
		Address2:     trimmed(r.Address2),
		Suburb:       trimmed(r.Suburb),
		Age:          r.Age,
	}

	if dob := trimmed(r.DateOfBirth); dob != nil {
		p.Birthday = Birthday(*dob)
		if p.Birthday == nil {
			report.InvalidBirthday++
		}
	}

	if s := trimmed(r.State); s != nil {
		p.State = StateName(*s)
		if p.State == nil {
			report.InvalidState++
		}
	}

	if pc := trimmed(r.Postcode); pc != nil {
		if postcodePattern.MatchString(*pc) {
			p.Postcode = pc
		} else {
			report.InvalidPostcode++
		}
	}
	if p.Postcode == nil && p.Suburb != nil && postcodePattern.MatchString(*p.Suburb) {
		pc := *p.Suburb
		p.Postcode = &pc
		report.PostcodeInSuburb++
	}

	if ph := trimmed(r.PhoneNumber); ph != nil {
		if phonePattern.MatchString(*ph) {
			p.PhoneNumber = ph
		} else {
			report.InvalidPhone++
		}
	}
	return p
}

// Birthday returns "MM-DD" for a YYYYMMDD date of birth. A trailing ".0"
// left by a float column is accepted. Anything that is not a calendar date
// yields nil.
func Birthday(dob string) *string {
	dob = strings.TrimSuffix(strings.TrimSpace(dob), ".0")
	if len(dob) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", dob)
	if err != nil {
		return nil
	}
	s := t.Format("01-02")
	return &s
}

// StateName expands an Australian state or territory abbreviation. Case and
// surrounding spaces are ignored, so "NSW" and " nsw" both expand; anything
// that is not one of the eight abbreviations, full names included, is nil.
func StateName(abbrev string) *string {
	name, ok := stateNames[strings.ToLower(strings.TrimSpace(abbrev))]
	if !ok {
		return nil
	}
	return &name
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
