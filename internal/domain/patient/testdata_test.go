package patient

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dedup/internal/dedup"
	"github.com/ehr/dedup/internal/domain/pcr"
)

func str(s string) *string { return &s }

func i64(n int64) *int64 { return &n }

// cleanedPatients holds two duplicate groups, {1,2,3} found by the phone
// pass and {4,5} found by the postcode pass, plus a singleton.
func cleanedPatients() []*Patient {
	return []*Patient{
		{PatientID: 1, GivenName: str("benjamin"), Surname: str("habert"), Birthday: str("05-12"),
			PhoneNumber: str("02 12345678"), Postcode: str("2000"), Age: i64(30)},
		{PatientID: 2, GivenName: str("bnjamin"), Surname: str("habrt"), PhoneNumber: str("02 12345678")},
		{PatientID: 3, GivenName: str("benjamin"), PhoneNumber: str("02 12345678"), State: str("Victoria")},
		{PatientID: 4, GivenName: str("sarah"), Surname: str("connor"), Birthday: str("01-01"),
			PhoneNumber: str("03 99999999"), Postcode: str("3000"), Age: i64(40)},
		{PatientID: 5, GivenName: str("sara"), Surname: str("conor"), Birthday: str("01-01"),
			Postcode: str("3000"), Age: i64(40)},
		{PatientID: 6, GivenName: str("zed"), Surname: str("zulu"), Birthday: str("07-07")},
	}
}

func newTestEngine(t *testing.T) *dedup.Engine[int64] {
	t.Helper()
	e, err := dedup.New[int64](dedup.Config{
		Schema: Schema(),
		Rules:  dedup.DefaultRuleSet(dedup.DefaultMaxNameDistance),
	}, zerolog.Nop())
	require.NoError(t, err)
	return e
}

type fakeSource struct {
	rows []*RawPatient
	err  error
}

func (f *fakeSource) ListRawPatients(context.Context) ([]*RawPatient, error) {
	return f.rows, f.err
}

type fakeTests struct {
	rows []*pcr.RawTest
	err  error
}

func (f *fakeTests) ListRawTests(context.Context) ([]*pcr.RawTest, error) {
	return f.rows, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*Run
	patients map[uuid.UUID][]*CanonicalPatient
	matches  map[uuid.UUID][]Match
	latest   *Run
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     make(map[uuid.UUID]*Run),
		patients: make(map[uuid.UUID][]*CanonicalPatient),
		matches:  make(map[uuid.UUID][]Match),
	}
}

func (f *fakeStore) SaveRun(_ context.Context, run *Run, patients []*CanonicalPatient, matches []Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.runs[run.ID] = run
	f.patients[run.ID] = patients
	f.matches[run.ID] = matches
	f.latest = run
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) LatestRun(context.Context) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil, ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeStore) ListCanonical(_ context.Context, runID uuid.UUID, limit, offset int) ([]*CanonicalPatient, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.patients[runID]
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (f *fakeStore) ListMatches(_ context.Context, runID uuid.UUID) ([]Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches[runID], nil
}
