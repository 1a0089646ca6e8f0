package dedup

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Merge strategies.
const (
	// StrategyMode keeps the most frequent non-null value. Ties go to the
	// value seen first in ascending member-id order.
	StrategyMode = "mode"
	// StrategyFirst keeps the non-null value of the smallest member id.
	StrategyFirst = "first"
	// StrategyLast keeps the non-null value of the largest member id.
	StrategyLast = "last"
)

// Resolver reduces the values one field takes across a cluster to a single
// value. values are ordered by ascending member id and may contain nulls.
type Resolver interface {
	Resolve(values []Value) Value
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(values []Value) Value

func (f ResolverFunc) Resolve(values []Value) Value { return f(values) }

// ResolverFor returns the built-in resolver named by strategy.
func ResolverFor(strategy string) (Resolver, error) {
	switch strategy {
	case "", StrategyMode:
		return ResolverFunc(Mode), nil
	case StrategyFirst:
		return ResolverFunc(FirstNonNull), nil
	case StrategyLast:
		return ResolverFunc(LastNonNull), nil
	}
	return nil, fmt.Errorf("%w: unknown merge strategy %q", ErrInvalidRule, strategy)
}

// Mode returns the most frequent non-null value, or null if every value is
// null. Among equally frequent values the one whose first occurrence comes
// earliest wins.
func Mode(values []Value) Value {
	counts := make(map[Value]int, len(values))
	var order []Value
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestCount := Null(), 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// FirstNonNull returns the first non-null value.
func FirstNonNull(values []Value) Value {
	for _, v := range values {
		if !v.IsNull() {
			return v
		}
	}
	return Null()
}

// LastNonNull returns the last non-null value.
func LastNonNull(values []Value) Value {
	for i := len(values) - 1; i >= 0; i-- {
		if !values[i].IsNull() {
			return values[i]
		}
	}
	return Null()
}

// Merger collapses clusters into canonical records.
type Merger[ID cmp.Ordered] struct {
	def     Resolver
	fields  map[string]Resolver
	workers int
}

// NewMerger builds a merger from a policy.
func NewMerger[ID cmp.Ordered](policy MergePolicy, workers int) (*Merger[ID], error) {
	def, err := ResolverFor(policy.Default)
	if err != nil {
		return nil, err
	}
	m := &Merger[ID]{def: def, fields: make(map[string]Resolver, len(policy.Fields)), workers: workers}
	for field, strategy := range policy.Fields {
		r, err := ResolverFor(strategy)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		m.fields[field] = r
	}
	if m.workers <= 0 {
		m.workers = runtime.GOMAXPROCS(0)
	}
	return m, nil
}

// WithResolver overrides the resolver for one field. It is for setup only:
// calling it while Merge runs is a data race. An Engine takes its overrides
// through Config.Resolvers.
func (m *Merger[ID]) WithResolver(field string, r Resolver) *Merger[ID] {
	m.fields[field] = r
	return m
}

func (m *Merger[ID]) resolverFor(field string) Resolver {
	if r, ok := m.fields[field]; ok {
		return r
	}
	return m.def
}

// Merge emits one canonical record per cluster, ordered by canonical id.
// Every record id must appear in clusters.
func (m *Merger[ID]) Merge(ctx context.Context, records []Record[ID], clusters Clusters[ID]) ([]CanonicalRecord[ID], error) {
	byID := make(map[ID]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}

	out := make([]CanonicalRecord[ID], len(clusters.Groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(m.workers)
	for n, group := range clusters.Groups {
		n, group := n, group
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			members := make([]Record[ID], 0, len(group))
			for _, id := range group {
				i, ok := byID[id]
				if !ok {
					return fmt.Errorf("%w: %v", ErrUnknownID, id)
				}
				members = append(members, records[i])
			}
			out[n] = m.MergeCluster(members)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeCluster collapses members into one record. Values are resolved in
// ascending member-id order. A single member passes through with its fields
// unchanged.
func (m *Merger[ID]) MergeCluster(members []Record[ID]) CanonicalRecord[ID] {
	if len(members) == 0 {
		return CanonicalRecord[ID]{}
	}
	if !slices.IsSortedFunc(members, compareRecords[ID]) {
		members = slices.Clone(members)
		slices.SortFunc(members, compareRecords[ID])
	}

	var all []ID
	for _, r := range members {
		all = append(all, r.ID)
		all = append(all, r.Merged...)
	}
	slices.Sort(all)
	all = slices.Compact(all)

	if len(members) == 1 {
		return CanonicalRecord[ID]{
			ID:     members[0].ID,
			AllIDs: all,
			Fields: members[0].Fields.Clone(),
		}
	}

	var names []string
	seen := make(map[string]bool)
	for _, r := range members {
		for name := range r.Fields {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)

	fields := make(Fields, len(names))
	values := make([]Value, len(members))
	for _, name := range names {
		for i, r := range members {
			values[i] = r.Fields.Get(name)
		}
		fields[name] = m.resolverFor(name).Resolve(values)
	}

	return CanonicalRecord[ID]{
		ID:     members[0].ID,
		AllIDs: all,
		Fields: fields,
	}
}

func compareRecords[ID cmp.Ordered](a, b Record[ID]) int {
	return cmp.Compare(a.ID, b.ID)
}
