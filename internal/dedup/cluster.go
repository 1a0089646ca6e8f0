package dedup

import (
	"cmp"
	"fmt"
	"slices"
)

// DisjointSet is a union-find over record ids. Ids are mapped to dense
// indices once, in sorted order; union and find work on the indices.
// Not safe for concurrent use: pairs are applied by one writer.
type DisjointSet[ID cmp.Ordered] struct {
	ids    []ID
	index  map[ID]int
	parent []int
	rank   []uint8
}

// NewDisjointSet starts every id in its own singleton set.
func NewDisjointSet[ID cmp.Ordered](ids []ID) *DisjointSet[ID] {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	d := &DisjointSet[ID]{
		ids:    sorted,
		index:  make(map[ID]int, len(sorted)),
		parent: make([]int, len(sorted)),
		rank:   make([]uint8, len(sorted)),
	}
	for i, id := range sorted {
		d.index[id] = i
		d.parent[i] = i
	}
	return d
}

func (d *DisjointSet[ID]) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

// Find returns the representative index of id's set.
func (d *DisjointSet[ID]) Find(id ID) (int, bool) {
	i, ok := d.index[id]
	if !ok {
		return 0, false
	}
	return d.find(i), true
}

// Union merges the sets holding a and b.
func (d *DisjointSet[ID]) Union(a, b ID) error {
	ia, ok := d.index[a]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownID, a)
	}
	ib, ok := d.index[b]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownID, b)
	}
	ra, rb := d.find(ia), d.find(ib)
	if ra == rb {
		return nil
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
	return nil
}

// Clusters materializes the current components.
func (d *DisjointSet[ID]) Clusters() Clusters[ID] {
	c := Clusters[ID]{of: make(map[ID]int, len(d.ids))}
	byRoot := make(map[int]int)
	// ids are sorted, so groups appear in order of their smallest member and
	// each group's members stay sorted.
	for i, id := range d.ids {
		root := d.find(i)
		g, ok := byRoot[root]
		if !ok {
			g = len(c.Groups)
			byRoot[root] = g
			c.Groups = append(c.Groups, nil)
		}
		c.Groups[g] = append(c.Groups[g], id)
		c.of[id] = g
	}
	return c
}

// Clusters is a partition of record ids into connected components.
type Clusters[ID cmp.Ordered] struct {
	// Groups holds each component as a sorted slice, ordered by smallest id.
	Groups [][]ID `json:"groups"`
	of     map[ID]int
}

// Of returns every id in the component holding id, or nil if id is unknown.
func (c Clusters[ID]) Of(id ID) []ID {
	g, ok := c.of[id]
	if !ok {
		return nil
	}
	return c.Groups[g]
}

// Len returns the number of components.
func (c Clusters[ID]) Len() int { return len(c.Groups) }

// BuildClusters computes the connected components of the graph whose
// vertices are ids and whose edges are pairs. The result does not depend on
// the order or repetition of pairs.
func BuildClusters[ID cmp.Ordered](ids []ID, pairs []MatchedPair[ID]) (Clusters[ID], error) {
	d := NewDisjointSet(ids)
	for _, p := range pairs {
		if err := d.Union(p.A, p.B); err != nil {
			return Clusters[ID]{}, err
		}
	}
	return d.Clusters(), nil
}
