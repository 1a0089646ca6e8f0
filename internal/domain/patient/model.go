package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dedup/internal/dedup"
)

// Field names shared by the cleaner, the engine schema and the stores.
const (
	FieldGivenName    = "given_name"
	FieldSurname      = "surname"
	FieldStreetNumber = "street_number"
	FieldAddress1     = "address_1"
	FieldAddress2     = "address_2"
	FieldSuburb       = "suburb"
	FieldPostcode     = "postcode"
	FieldState        = "state"
	FieldBirthday     = "birthday"
	FieldAge          = "age"
	FieldPhoneNumber  = "phone_number"
)

// RawPatient is a row of the patient source table as stored. DateOfBirth is
// the YYYYMMDD digits, whatever type the source used for it.
type RawPatient struct {
	PatientID    int64   `json:"patient_id"`
	GivenName    *string `json:"given_name,omitempty"`
	Surname      *string `json:"surname,omitempty"`
	StreetNumber *string `json:"street_number,omitempty"`
	Address1     *string `json:"address_1,omitempty"`
	Suburb       *string `json:"suburb,omitempty"`
	Postcode     *string `json:"postcode,omitempty"`
	State        *string `json:"state,omitempty"`
	DateOfBirth  *string `json:"date_of_birth,omitempty"`
	Age          *int64  `json:"age,omitempty"`
	PhoneNumber  *string `json:"phone_number,omitempty"`
	Address2     *string `json:"address_2,omitempty"`
	// InvalidID marks a row whose patient_id could not be read. The cleaner
	// drops it.
	InvalidID bool `json:"-"`
}

// Patient is a cleaned patient row, the unit the engine deduplicates.
type Patient struct {
	PatientID    int64   `json:"patient_id"`
	GivenName    *string `json:"given_name"`
	Surname      *string `json:"surname"`
	StreetNumber *string `json:"street_number"`
	Address1     *string `json:"address_1"`
	Address2     *string `json:"address_2"`
	Suburb       *string `json:"suburb"`
	Postcode     *string `json:"postcode"`
	State        *string `json:"state"`
	Birthday     *string `json:"birthday"`
	Age          *int64  `json:"age"`
	PhoneNumber  *string `json:"phone_number"`
}

// CanonicalPatient is one deduplicated patient. PatientID is the smallest
// id in AllPatientIDs.
type CanonicalPatient struct {
	Patient
	AllPatientIDs []int64 `json:"all_patient_ids"`
	PCRPositive   *bool   `json:"pcr_positive,omitempty"`
}

// Run records one deduplication run.
type Run struct {
	ID           uuid.UUID   `json:"id"`
	Source       string      `json:"source"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	InputCount   int         `json:"input_count"`
	DroppedCount int         `json:"dropped_count"`
	PairCount    int         `json:"pair_count"`
	ClusterCount int         `json:"cluster_count"`
	CreatedBy    string      `json:"created_by,omitempty"`
	Stats        dedup.Stats `json:"stats"`
}

// Match is a persisted matched pair with the pass that produced it.
type Match = dedup.MatchedPair[int64]

// Schema declares the patient fields the engine may read.
func Schema() dedup.Schema {
	return dedup.Schema{
		FieldGivenName:    dedup.KindString,
		FieldSurname:      dedup.KindString,
		FieldStreetNumber: dedup.KindString,
		FieldAddress1:     dedup.KindString,
		FieldAddress2:     dedup.KindString,
		FieldSuburb:       dedup.KindString,
		FieldPostcode:     dedup.KindString,
		FieldState:        dedup.KindString,
		FieldBirthday:     dedup.KindString,
		FieldAge:          dedup.KindInt,
		FieldPhoneNumber:  dedup.KindString,
	}
}

func (p *Patient) ToRecord() dedup.Record[int64] {
	return dedup.Record[int64]{
		ID: p.PatientID,
		Fields: dedup.Fields{
			FieldGivenName:    dedup.StringPtr(p.GivenName),
			FieldSurname:      dedup.StringPtr(p.Surname),
			FieldStreetNumber: dedup.StringPtr(p.StreetNumber),
			FieldAddress1:     dedup.StringPtr(p.Address1),
			FieldAddress2:     dedup.StringPtr(p.Address2),
			FieldSuburb:       dedup.StringPtr(p.Suburb),
			FieldPostcode:     dedup.StringPtr(p.Postcode),
			FieldState:        dedup.StringPtr(p.State),
			FieldBirthday:     dedup.StringPtr(p.Birthday),
			FieldAge:          dedup.IntPtr(p.Age),
			FieldPhoneNumber:  dedup.StringPtr(p.PhoneNumber),
		},
	}
}

// ToRecord returns the canonical patient as engine input, carrying its
// merged ids.
func (c *CanonicalPatient) ToRecord() dedup.Record[int64] {
	r := c.Patient.ToRecord()
	for _, id := range c.AllPatientIDs {
		if id != c.PatientID {
			r.Merged = append(r.Merged, id)
		}
	}
	return r
}

func patientFromFields(id int64, f dedup.Fields) Patient {
	return Patient{
		PatientID:    id,
		GivenName:    f.Get(FieldGivenName).StringPtr(),
		Surname:      f.Get(FieldSurname).StringPtr(),
		StreetNumber: f.Get(FieldStreetNumber).StringPtr(),
		Address1:     f.Get(FieldAddress1).StringPtr(),
		Address2:     f.Get(FieldAddress2).StringPtr(),
		Suburb:       f.Get(FieldSuburb).StringPtr(),
		Postcode:     f.Get(FieldPostcode).StringPtr(),
		State:        f.Get(FieldState).StringPtr(),
		Birthday:     f.Get(FieldBirthday).StringPtr(),
		Age:          f.Get(FieldAge).IntPtr(),
		PhoneNumber:  f.Get(FieldPhoneNumber).StringPtr(),
	}
}

// FromCanonical converts an engine output row.
func FromCanonical(c dedup.CanonicalRecord[int64]) *CanonicalPatient {
	return &CanonicalPatient{
		Patient:       patientFromFields(c.ID, c.Fields),
		AllPatientIDs: append([]int64(nil), c.AllIDs...),
	}
}

func ToRecords(patients []*Patient) []dedup.Record[int64] {
	out := make([]dedup.Record[int64], len(patients))
	for i, p := range patients {
		out[i] = p.ToRecord()
	}
	return out
}
