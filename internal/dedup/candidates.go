package dedup

import (
	"cmp"
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PassStats counts the work done by one blocking pass.
type PassStats struct {
	Pass        string `json:"pass"`
	Blocks      int    `json:"blocks"`
	Comparisons int    `json:"comparisons"`
	Matches     int    `json:"matches"`
}

// Generator runs every blocking pass and collects the matched pairs.
type Generator[ID cmp.Ordered] struct {
	passes  []compiledPass
	workers int
	logger  zerolog.Logger
}

func newGenerator[ID cmp.Ordered](passes []compiledPass, workers int, logger zerolog.Logger) *Generator[ID] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Generator[ID]{passes: passes, workers: workers, logger: logger}
}

type blockJob struct {
	pass  int
	block Block
}

// Generate compares every pair inside every block of every pass. Blocks are
// compared concurrently; the union of their matches is returned with
// duplicates collapsed, sorted by (A, B). A pair found by several passes is
// attributed to the first pass in configured order.
func (g *Generator[ID]) Generate(ctx context.Context, records []Record[ID]) ([]MatchedPair[ID], []PassStats, error) {
	stats := make([]PassStats, len(g.passes))
	var jobs []blockJob
	for i, p := range g.passes {
		blocks := BuildBlocks(records, p.key)
		stats[i].Pass = p.name
		stats[i].Blocks = len(blocks)
		for _, b := range blocks {
			stats[i].Comparisons += b.pairCount()
			jobs = append(jobs, blockJob{pass: i, block: b})
		}
	}

	found := make([][]MatchedPair[ID], len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for n, job := range jobs {
		n, job := n, job
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			found[n] = g.compareBlock(records, job)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var all []MatchedPair[ID]
	for n, pairs := range found {
		stats[jobs[n].pass].Matches += len(pairs)
		all = append(all, pairs...)
	}
	pairs := dedupePairs(all)

	for _, s := range stats {
		g.logger.Debug().
			Str("pass", s.Pass).
			Int("blocks", s.Blocks).
			Int("comparisons", s.Comparisons).
			Int("matches", s.Matches).
			Msg("blocking pass done")
	}
	return pairs, stats, nil
}

func (g *Generator[ID]) compareBlock(records []Record[ID], job blockJob) []MatchedPair[ID] {
	p := g.passes[job.pass]
	var out []MatchedPair[ID]
	for i := 0; i < len(job.block); i++ {
		a := records[job.block[i]]
		for j := i + 1; j < len(job.block); j++ {
			b := records[job.block[j]]
			if p.predicate.Match(a.Fields, b.Fields) {
				out = append(out, NewPair(a.ID, b.ID, p.name))
			}
		}
	}
	return out
}
