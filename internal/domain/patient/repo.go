package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Source reads the raw patient table.
type Source interface {
	ListRawPatients(ctx context.Context) ([]*RawPatient, error)
}

// Store persists deduplication runs and their results.
type Store interface {
	SaveRun(ctx context.Context, run *Run, patients []*CanonicalPatient, matches []Match) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListCanonical(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*CanonicalPatient, int, error)
	ListMatches(ctx context.Context, runID uuid.UUID) ([]Match, error)
}
