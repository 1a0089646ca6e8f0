// Package dedup resolves duplicate records into canonical ones.
//
// A run has four stages. Blocking groups records sharing an exact key value;
// each pass's rule compares the pairs inside its blocks; the matched pairs are
// closed transitively with a disjoint set; and every resulting cluster is
// merged into one canonical record that lists all of its source ids.
package dedup

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config configures an Engine.
type Config struct {
	// Schema declares every field a rule or blocking key may read.
	Schema Schema
	// Rules holds the blocking passes and the merge policy.
	Rules RuleSet
	// MaxNameDistance applies to fuzzy_name rules that leave the distance
	// unset. Nil means DefaultMaxNameDistance.
	MaxNameDistance *int
	// Workers bounds concurrent block comparisons and merges. Zero means
	// GOMAXPROCS.
	Workers int
	// Resolvers overrides the merge policy for the named fields.
	Resolvers map[string]Resolver
}

// Stats summarizes one run.
type Stats struct {
	Records  int           `json:"records"`
	Pairs    int           `json:"pairs"`
	Clusters int           `json:"clusters"`
	Merged   int           `json:"merged"`
	Rounds   int           `json:"rounds"`
	Passes   []PassStats   `json:"passes"`
	Duration time.Duration `json:"duration"`
}

// Result is the output of a run.
type Result[ID cmp.Ordered] struct {
	Pairs    []MatchedPair[ID]     `json:"pairs"`
	Clusters Clusters[ID]          `json:"clusters"`
	Records  []CanonicalRecord[ID] `json:"records"`
	Stats    Stats                 `json:"stats"`
}

// Engine runs deduplication over in-memory record sets. It is safe for
// concurrent use once built.
type Engine[ID cmp.Ordered] struct {
	schema    Schema
	generator *Generator[ID]
	merger    *Merger[ID]
	logger    zerolog.Logger
}

// New compiles cfg. Any rule referring to an undeclared field, or comparing
// a field of the wrong kind, is reported here rather than during a run.
func New[ID cmp.Ordered](cfg Config, logger zerolog.Logger) (*Engine[ID], error) {
	dist := DefaultMaxNameDistance
	if cfg.MaxNameDistance != nil {
		dist = *cfg.MaxNameDistance
	}
	if dist < 0 {
		return nil, fmt.Errorf("%w: max name distance must be >= 0, got %d", ErrInvalidRule, dist)
	}
	passes, err := compilePasses(cfg.Rules.Passes, cfg.Schema, dist)
	if err != nil {
		return nil, fmt.Errorf("compile passes: %w", err)
	}
	merger, err := NewMerger[ID](cfg.Rules.Merge, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("merge policy: %w", err)
	}
	for field, r := range cfg.Resolvers {
		merger.WithResolver(field, r)
	}
	for _, p := range passes {
		logger.Debug().Str("pass", p.name).Strs("key", p.key).Str("rule", p.predicate.String()).Msg("pass compiled")
	}
	return &Engine[ID]{
		schema:    cfg.Schema,
		generator: newGenerator[ID](passes, cfg.Workers, logger),
		merger:    merger,
		logger:    logger,
	}, nil
}

// Run deduplicates records. Ids must be unique, across both record ids and
// the ids a record lists as already merged, and every declared field must
// hold a value of its declared kind. The input slice is not modified.
//
// A merged record can match a record none of its members matched, so after
// the first round the passes are run again over the canonical records and
// any new pair joins its clusters. Rounds repeat until the canonical records
// yield no pair, which makes running the engine on its own output a no-op.
func (e *Engine[ID]) Run(ctx context.Context, records []Record[ID]) (*Result[ID], error) {
	start := time.Now()
	if err := e.validate(records); err != nil {
		return nil, err
	}

	pairs, passStats, err := e.generator.Generate(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}

	ids := make([]ID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	set := NewDisjointSet(ids)
	if err := unionAll(set, pairs); err != nil {
		return nil, fmt.Errorf("build clusters: %w", err)
	}

	clusters := set.Clusters()
	canonical, err := e.merger.Merge(ctx, records, clusters)
	if err != nil {
		return nil, fmt.Errorf("merge clusters: %w", err)
	}

	rounds := 1
	for clusters.Len() > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		again := make([]Record[ID], len(canonical))
		for i, c := range canonical {
			again[i] = Record[ID]{ID: c.ID, Fields: c.Fields}
		}
		extra, extraStats, err := e.generator.Generate(ctx, again)
		if err != nil {
			return nil, fmt.Errorf("generate candidates, round %d: %w", rounds+1, err)
		}
		if len(extra) == 0 {
			break
		}
		rounds++
		addPassStats(passStats, extraStats)
		if err := unionAll(set, extra); err != nil {
			return nil, fmt.Errorf("build clusters: %w", err)
		}
		pairs = dedupePairs(append(pairs, extra...))

		clusters = set.Clusters()
		canonical, err = e.merger.Merge(ctx, records, clusters)
		if err != nil {
			return nil, fmt.Errorf("merge clusters: %w", err)
		}
		e.logger.Debug().Int("round", rounds).Int("new_pairs", len(extra)).Int("clusters", clusters.Len()).Msg("canonical records matched again")
	}

	stats := Stats{
		Records:  len(records),
		Pairs:    len(pairs),
		Clusters: clusters.Len(),
		Merged:   len(records) - clusters.Len(),
		Rounds:   rounds,
		Passes:   passStats,
		Duration: time.Since(start),
	}
	e.logger.Info().
		Int("records", stats.Records).
		Int("pairs", stats.Pairs).
		Int("clusters", stats.Clusters).
		Int("merged", stats.Merged).
		Int("rounds", stats.Rounds).
		Dur("duration", stats.Duration).
		Msg("deduplication run complete")

	return &Result[ID]{
		Pairs:    pairs,
		Clusters: clusters,
		Records:  canonical,
		Stats:    stats,
	}, nil
}

func unionAll[ID cmp.Ordered](set *DisjointSet[ID], pairs []MatchedPair[ID]) error {
	for _, p := range pairs {
		if err := set.Union(p.A, p.B); err != nil {
			return err
		}
	}
	return nil
}

// addPassStats folds a later round's counts into the first round's. Both come
// from the same compiled passes, so they line up by index.
func addPassStats(total, round []PassStats) {
	for i := range round {
		total[i].Blocks += round[i].Blocks
		total[i].Comparisons += round[i].Comparisons
		total[i].Matches += round[i].Matches
	}
}

func (e *Engine[ID]) validate(records []Record[ID]) error {
	seen := make(map[ID]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %v", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := e.schema.Check(r.Fields); err != nil {
			return fmt.Errorf("record %v: %w", r.ID, err)
		}
	}
	// A merged id owned by two rows would land in two canonical records.
	owner := make(map[ID]ID)
	for _, r := range records {
		for _, m := range r.Merged {
			if m == r.ID {
				continue
			}
			if _, dup := seen[m]; dup {
				return fmt.Errorf("%w: %v is merged into %v and is also a record", ErrDuplicateID, m, r.ID)
			}
			if prev, dup := owner[m]; dup && prev != r.ID {
				return fmt.Errorf("%w: %v is merged into both %v and %v", ErrDuplicateID, m, prev, r.ID)
			}
			owner[m] = r.ID
		}
	}
	return nil
}
