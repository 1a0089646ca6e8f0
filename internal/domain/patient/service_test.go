package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dedup/internal/dedup"
	"github.com/ehr/dedup/internal/domain/pcr"
	"github.com/ehr/dedup/internal/platform/auth"
)

func canonicalIDs(patients []*CanonicalPatient) [][]int64 {
	out := make([][]int64, len(patients))
	for i, p := range patients {
		out[i] = p.AllPatientIDs
	}
	return out
}

func TestService_DeduplicatePatients(t *testing.T) {
	svc := NewService(&fakeSource{}, "test", newTestEngine(t), zerolog.Nop())

	out, err := svc.DeduplicatePatients(context.Background(), cleanedPatients())
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5}, {6}}, canonicalIDs(out.Patients))
	assert.Equal(t, []Match{
		{A: 1, B: 2, Pass: "phone"},
		{A: 1, B: 3, Pass: "phone"},
		{A: 4, B: 5, Pass: "postcode_birthday"},
	}, out.Matches)

	first := out.Patients[0]
	assert.Equal(t, int64(1), first.PatientID)
	assert.Equal(t, str("benjamin"), first.GivenName)
	assert.Equal(t, str("habert"), first.Surname)
	assert.Equal(t, str("05-12"), first.Birthday)
	assert.Equal(t, str("Victoria"), first.State)

	second := out.Patients[1]
	assert.Equal(t, str("sarah"), second.GivenName)
	assert.Equal(t, str("connor"), second.Surname)

	assert.Equal(t, "request", out.Run.Source)
	assert.Equal(t, 6, out.Run.InputCount)
	assert.Equal(t, 3, out.Run.PairCount)
	assert.Equal(t, 3, out.Run.ClusterCount)
	assert.NotEqual(t, uuid.Nil, out.Run.ID)
}

func TestService_DeduplicatePatients_Idempotent(t *testing.T) {
	svc := NewService(&fakeSource{}, "test", newTestEngine(t), zerolog.Nop())
	ctx := context.Background()

	first, err := svc.DeduplicatePatients(ctx, cleanedPatients())
	require.NoError(t, err)

	records := make([]dedup.Record[int64], len(first.Patients))
	for i, p := range first.Patients {
		records[i] = p.ToRecord()
	}
	res, err := newTestEngine(t).Run(ctx, records)
	require.NoError(t, err)

	require.Len(t, res.Records, len(first.Patients))
	for i, r := range res.Records {
		again := FromCanonical(r)
		assert.Equal(t, first.Patients[i], again)
	}
	assert.Empty(t, res.Pairs)
}

func TestService_DeduplicatePatients_DuplicateID(t *testing.T) {
	svc := NewService(&fakeSource{}, "test", newTestEngine(t), zerolog.Nop())
	patients := append(cleanedPatients(), &Patient{PatientID: 1})

	_, err := svc.DeduplicatePatients(context.Background(), patients)
	assert.ErrorIs(t, err, dedup.ErrDuplicateID)
}

func rawSource() *fakeSource {
	return &fakeSource{rows: []*RawPatient{
		{PatientID: 1, GivenName: str("benjamin"), Surname: str("habert"), DateOfBirth: str("19900512.0"),
			PhoneNumber: str("02 12345678"), State: str("nsw")},
		{PatientID: 2, GivenName: str("bnjamin"), Surname: str("habrt"), PhoneNumber: str("02 12345678")},
		{PatientID: 3, GivenName: str("ann"), Surname: str("lee"), PhoneNumber: str("bad")},
		{PatientID: 7, GivenName: str("dup")},
		{PatientID: 7, GivenName: str("dup again")},
	}}
}

func TestService_Deduplicate_PersistsRun(t *testing.T) {
	store := newFakeStore()
	tests := &fakeTests{rows: []*pcr.RawTest{
		{PatientID: 2, PCR: str("P")},
		{PatientID: 3, PCR: str("N")},
		{PatientID: 7, PCR: str("P")},
	}}
	svc := NewService(rawSource(), "sqlite", newTestEngine(t), zerolog.Nop(), WithStore(store), WithTests(tests))

	ctx := auth.WithUser(context.Background(), "steward-1", []string{auth.RoleDataSteward})
	out, err := svc.Deduplicate(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, 5, out.Clean.Input)
	assert.Equal(t, 2, out.Clean.DuplicateIDs)
	assert.Equal(t, 1, out.Clean.InvalidPhone)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, canonicalIDs(out.Patients))

	require.NotNil(t, out.Patients[0].PCRPositive)
	assert.True(t, *out.Patients[0].PCRPositive)
	require.NotNil(t, out.Patients[1].PCRPositive)
	assert.False(t, *out.Patients[1].PCRPositive)
	assert.Equal(t, &pcr.Summary{Tested: 2, Positive: 1, Unmatched: 1}, out.PCR)

	assert.Equal(t, str("05-12"), out.Patients[0].Birthday)
	assert.Equal(t, str("New South Wales"), out.Patients[0].State)

	saved, err := store.GetRun(ctx, out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", saved.Source)
	assert.Equal(t, "steward-1", saved.CreatedBy)
	assert.Equal(t, 5, saved.InputCount)
	assert.Equal(t, 2, saved.DroppedCount)
	assert.Len(t, store.patients[out.Run.ID], 2)
	assert.Len(t, store.matches[out.Run.ID], 1)

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, out.Run.ID, latest.ID)

	page, total, err := svc.ListCanonical(ctx, out.Run.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, int64(3), page[0].PatientID)
}

func TestService_Deduplicate_NoPersist(t *testing.T) {
	store := newFakeStore()
	svc := NewService(rawSource(), "postgres", newTestEngine(t), zerolog.Nop(), WithStore(store))

	out, err := svc.Deduplicate(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, out.PCR)
	assert.Empty(t, store.runs)
}

func TestService_Deduplicate_Errors(t *testing.T) {
	boom := errors.New("boom")

	svc := NewService(&fakeSource{err: boom}, "postgres", newTestEngine(t), zerolog.Nop())
	_, err := svc.Deduplicate(context.Background(), true)
	assert.ErrorIs(t, err, boom)

	svc = NewService(rawSource(), "postgres", newTestEngine(t), zerolog.Nop(), WithTests(&fakeTests{err: boom}))
	_, err = svc.Deduplicate(context.Background(), true)
	assert.ErrorIs(t, err, boom)

	store := newFakeStore()
	store.saveErr = boom
	svc = NewService(rawSource(), "postgres", newTestEngine(t), zerolog.Nop(), WithStore(store))
	_, err = svc.Deduplicate(context.Background(), true)
	assert.ErrorIs(t, err, boom)
}

func TestService_ReadsWithoutStore(t *testing.T) {
	svc := NewService(&fakeSource{}, "postgres", newTestEngine(t), zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = svc.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNoStore)
	_, _, err = svc.ListCanonical(ctx, uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = svc.ListMatches(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestService_ListCanonical_UnknownRun(t *testing.T) {
	svc := NewService(&fakeSource{}, "postgres", newTestEngine(t), zerolog.Nop(), WithStore(newFakeStore()))
	_, _, err := svc.ListCanonical(context.Background(), uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingObserver struct {
	sources []string
	stats   []dedup.Stats
	errs    []error
}

func (o *recordingObserver) ObserveRun(source string, stats dedup.Stats, err error) {
	o.sources = append(o.sources, source)
	o.stats = append(o.stats, stats)
	o.errs = append(o.errs, err)
}

func TestService_ObserverSeesEveryRun(t *testing.T) {
	obs := &recordingObserver{}
	svc := NewService(&fakeSource{}, "test", newTestEngine(t), zerolog.Nop(), WithObserver(obs))

	_, err := svc.DeduplicatePatients(context.Background(), cleanedPatients())
	require.NoError(t, err)

	dup := cleanedPatients()
	dup[1].PatientID = dup[0].PatientID
	_, err = svc.DeduplicatePatients(context.Background(), dup)
	require.Error(t, err)

	require.Len(t, obs.sources, 2)
	assert.Equal(t, []string{"request", "request"}, obs.sources)
	assert.Equal(t, 3, obs.stats[0].Pairs)
	assert.NoError(t, obs.errs[0])
	assert.ErrorIs(t, obs.errs[1], dedup.ErrDuplicateID)
}
