package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dedup/internal/dedup"
)

func TestSchema_CoversRecordFields(t *testing.T) {
	p := cleanedPatients()[0]
	r := p.ToRecord()
	schema := Schema()
	for name := range r.Fields {
		_, ok := schema[name]
		assert.True(t, ok, "field %s missing from schema", name)
	}
	require.NoError(t, schema.Check(r.Fields))
}

func TestPatient_ToRecord(t *testing.T) {
	p := &Patient{PatientID: 9, GivenName: str("ann"), Age: i64(50)}
	r := p.ToRecord()

	assert.Equal(t, int64(9), r.ID)
	assert.Equal(t, dedup.String("ann"), r.Fields.Get(FieldGivenName))
	assert.Equal(t, dedup.Int(50), r.Fields.Get(FieldAge))
	assert.True(t, r.Fields.Get(FieldSurname).IsNull())
	assert.Empty(t, r.Merged)
}

func TestFromCanonical_RoundTrip(t *testing.T) {
	p := cleanedPatients()[3]
	rec := p.ToRecord()

	c := FromCanonical(dedup.CanonicalRecord[int64]{ID: 4, AllIDs: []int64{4, 5}, Fields: rec.Fields})
	assert.Equal(t, *p, c.Patient)
	assert.Equal(t, []int64{4, 5}, c.AllPatientIDs)
	assert.Nil(t, c.PCRPositive)

	again := c.ToRecord()
	assert.Equal(t, []int64{5}, again.Merged)
	assert.Equal(t, rec.Fields, again.Fields)
}
