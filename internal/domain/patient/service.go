package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dedup/internal/dedup"
	"github.com/ehr/dedup/internal/domain/pcr"
	"github.com/ehr/dedup/internal/platform/auth"
)

// ErrNoStore is returned by read operations when results are not persisted.
var ErrNoStore = errors.New("result store not configured")

// Outcome is the result of one deduplication.
type Outcome struct {
	Run      *Run                `json:"run"`
	Clean    CleanReport         `json:"clean"`
	PCR      *pcr.Summary        `json:"pcr,omitempty"`
	Patients []*CanonicalPatient `json:"patients"`
	Matches  []Match             `json:"matches"`
}

type Service struct {
	source     Source
	sourceName string
	store      Store
	tests      pcr.Source
	cleaner    *Cleaner
	engine     *dedup.Engine[int64]
	observer   RunObserver
	logger     zerolog.Logger
}

// RunObserver is told about every engine run, failed ones included.
type RunObserver interface {
	ObserveRun(source string, stats dedup.Stats, err error)
}

type Option func(*Service)

// WithStore persists every Deduplicate run.
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// WithTests attaches PCR results to the canonical patients of every run.
func WithTests(tests pcr.Source) Option {
	return func(s *Service) { s.tests = tests }
}

// WithObserver reports engine runs to o.
func WithObserver(o RunObserver) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(source Source, sourceName string, engine *dedup.Engine[int64], logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		source:     source,
		sourceName: sourceName,
		cleaner:    NewCleaner(logger),
		engine:     engine,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deduplicate loads, cleans and deduplicates the whole source, attaches PCR
// results when a test source is configured, and stores the run when a
// store is configured and persist is true.
func (s *Service) Deduplicate(ctx context.Context, persist bool) (*Outcome, error) {
	started := time.Now().UTC()

	raw, err := s.source.ListRawPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	cleaned, report := s.cleaner.Clean(raw)

	out, err := s.deduplicate(ctx, s.sourceName, cleaned)
	if err != nil {
		return nil, err
	}
	out.Clean = report
	out.Run.StartedAt = started
	out.Run.InputCount = report.Input
	out.Run.DroppedCount = report.Dropped()

	if s.tests != nil {
		summary, err := s.attachTests(ctx, out.Patients)
		if err != nil {
			return nil, err
		}
		out.PCR = &summary
	}

	if persist && s.store != nil {
		out.Run.CreatedBy = auth.UserIDFromContext(ctx)
		if err := s.store.SaveRun(ctx, out.Run, out.Patients, out.Matches); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	s.logger.Info().
		Str("run_id", out.Run.ID.String()).
		Str("source", s.sourceName).
		Int("raw", report.Input).
		Int("dropped", report.Dropped()).
		Int("pairs", out.Run.PairCount).
		Int("patients", out.Run.ClusterCount).
		Bool("persisted", persist && s.store != nil).
		Msg("patient deduplication finished")
	return out, nil
}

// DeduplicatePatients runs the engine on already cleaned patients without
// touching any source or store.
func (s *Service) DeduplicatePatients(ctx context.Context, patients []*Patient) (*Outcome, error) {
	out, err := s.deduplicate(ctx, "request", patients)
	if err != nil {
		return nil, err
	}
	out.Run.InputCount = len(patients)
	return out, nil
}

func (s *Service) deduplicate(ctx context.Context, source string, patients []*Patient) (*Outcome, error) {
	res, err := s.engine.Run(ctx, ToRecords(patients))
	if s.observer != nil {
		var stats dedup.Stats
		if res != nil {
			stats = res.Stats
		}
		s.observer.ObserveRun(source, stats, err)
	}
	if err != nil {
		return nil, err
	}

	canonical := make([]*CanonicalPatient, len(res.Records))
	for i, r := range res.Records {
		canonical[i] = FromCanonical(r)
	}

	now := time.Now().UTC()
	return &Outcome{
		Run: &Run{
			ID:           uuid.New(),
			Source:       source,
			StartedAt:    now.Add(-res.Stats.Duration),
			FinishedAt:   now,
			PairCount:    res.Stats.Pairs,
			ClusterCount: res.Stats.Clusters,
			Stats:        res.Stats,
		},
		Patients: canonical,
		Matches:  res.Pairs,
	}, nil
}

func (s *Service) attachTests(ctx context.Context, patients []*CanonicalPatient) (pcr.Summary, error) {
	raw, err := s.tests.ListRawTests(ctx)
	if err != nil {
		return pcr.Summary{}, fmt.Errorf("load tests: %w", err)
	}

	groups := make([]pcr.Group, len(patients))
	for i, p := range patients {
		groups[i] = pcr.Group{PatientID: p.PatientID, AllPatientIDs: p.AllPatientIDs}
	}
	merged, summary := pcr.MergeIntoPatients(groups, pcr.Clean(raw))
	for _, p := range patients {
		if pos, ok := merged[p.PatientID]; ok {
			p.PCRPositive = &pos
		}
	}
	if summary.Unmatched > 0 {
		s.logger.Warn().Int("unmatched", summary.Unmatched).Msg("pcr results for unknown patients ignored")
	}
	return summary, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetRun(ctx, id)
}

func (s *Service) LatestRun(ctx context.Context) (*Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.LatestRun(ctx)
}

func (s *Service) ListCanonical(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*CanonicalPatient, int, error) {
	if s.store == nil {
		return nil, 0, ErrNoStore
	}
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, 0, err
	}
	return s.store.ListCanonical(ctx, runID, limit, offset)
}

func (s *Service) ListMatches(ctx context.Context, runID uuid.UUID) ([]Match, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.ListMatches(ctx, runID)
}
