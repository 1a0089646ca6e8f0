package dedup

import (
	"cmp"
	"slices"
)

// Record is one cleaned input row. The engine never mutates a Record.
type Record[ID cmp.Ordered] struct {
	ID     ID     `json:"id"`
	Fields Fields `json:"fields"`
	// Merged lists ids folded into this row by an earlier run. Empty for
	// raw input.
	Merged []ID `json:"merged,omitempty"`
}

// MatchedPair asserts that two records denote the same entity. A is always
// the smaller id.
type MatchedPair[ID cmp.Ordered] struct {
	A    ID     `json:"a"`
	B    ID     `json:"b"`
	Pass string `json:"pass"`
}

// NewPair builds a normalized pair.
func NewPair[ID cmp.Ordered](x, y ID, pass string) MatchedPair[ID] {
	if y < x {
		x, y = y, x
	}
	return MatchedPair[ID]{A: x, B: y, Pass: pass}
}

func (p MatchedPair[ID]) key() [2]ID { return [2]ID{p.A, p.B} }

// CanonicalRecord is the merged row emitted for one cluster.
type CanonicalRecord[ID cmp.Ordered] struct {
	ID     ID     `json:"id"`
	AllIDs []ID   `json:"all_ids"`
	Fields Fields `json:"fields"`
}

// AsRecord turns a canonical row back into an input record, carrying its
// member ids so that a later run keeps them.
func (c CanonicalRecord[ID]) AsRecord() Record[ID] {
	merged := make([]ID, 0, len(c.AllIDs))
	for _, id := range c.AllIDs {
		if id != c.ID {
			merged = append(merged, id)
		}
	}
	return Record[ID]{ID: c.ID, Fields: c.Fields.Clone(), Merged: merged}
}

// dedupePairs collapses pairs with the same ids, keeping the first seen,
// and returns them sorted by (A, B).
func dedupePairs[ID cmp.Ordered](pairs []MatchedPair[ID]) []MatchedPair[ID] {
	seen := make(map[[2]ID]struct{}, len(pairs))
	out := make([]MatchedPair[ID], 0, len(pairs))
	for _, p := range pairs {
		p = NewPair(p.A, p.B, p.Pass)
		if p.A == p.B {
			continue
		}
		if _, ok := seen[p.key()]; ok {
			continue
		}
		seen[p.key()] = struct{}{}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(x, y MatchedPair[ID]) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	return out
}
