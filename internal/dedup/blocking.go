package dedup

import (
	"cmp"
	"strconv"
	"strings"
)

// Block is a group of record indices sharing one blocking key value.
type Block []int

// BuildBlocks groups records by the exact value of the key fields. Records
// with a null in any key field join no block. Groups of one are dropped since
// they cannot produce a pair. Blocks come back in order of first occurrence,
// members in input order.
func BuildBlocks[ID cmp.Ordered](records []Record[ID], key []string) []Block {
	index := make(map[string]int)
	var groups []Block
	for i, r := range records {
		k, ok := blockKey(r.Fields, key)
		if !ok {
			continue
		}
		g, found := index[k]
		if !found {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}

	blocks := groups[:0]
	for _, g := range groups {
		if len(g) >= 2 {
			blocks = append(blocks, g)
		}
	}
	return blocks
}

// blockKey encodes the key fields of f as one string. Each component is
// length-prefixed and tagged with its kind so that distinct tuples never
// collide.
func blockKey(f Fields, key []string) (string, bool) {
	var b strings.Builder
	for _, name := range key {
		v := f.Get(name)
		if v.IsNull() {
			return "", false
		}
		s := v.String()
		b.WriteString(strconv.Itoa(int(v.Kind())))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String(), true
}

// pairCount returns the number of comparisons a block needs.
func (b Block) pairCount() int {
	return len(b) * (len(b) - 1) / 2
}
