package dedup

import (
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// SortedFullName joins the given parts, splits the result on whitespace and
// rejoins the tokens in sorted order, so "John Smith" and "Smith John" yield
// the same string.
func SortedFullName(parts ...string) string {
	tokens := strings.Fields(strings.Join(parts, " "))
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}

// NameDistance is the unit-cost edit distance between two sorted full names.
func NameDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}
