package dedup

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxNameDistance is the edit distance under which two sorted
	// full names are considered the same person.
	DefaultMaxNameDistance = 2

	DefaultGivenField   = "given_name"
	DefaultSurnameField = "surname"
)

// Rule is one node of a pass's match rule. Exactly one of the variants must
// be set; rules nest through Any and All.
type Rule struct {
	Equal     string         `yaml:"equal,omitempty" json:"equal,omitempty"`
	FuzzyName *FuzzyNameRule `yaml:"fuzzy_name,omitempty" json:"fuzzy_name,omitempty"`
	Any       []Rule         `yaml:"any,omitempty" json:"any,omitempty"`
	All       []Rule         `yaml:"all,omitempty" json:"all,omitempty"`
}

// FuzzyNameRule compares sorted full names by edit distance. Zero values
// fall back to the defaults.
type FuzzyNameRule struct {
	MaxDistance  *int   `yaml:"max_distance,omitempty" json:"max_distance,omitempty"`
	GivenField   string `yaml:"given_field,omitempty" json:"given_field,omitempty"`
	SurnameField string `yaml:"surname_field,omitempty" json:"surname_field,omitempty"`
}

// EqualField matches when field is present and equal on both records.
func EqualField(field string) Rule {
	return Rule{Equal: field}
}

// FuzzyName matches when the sorted full names are within maxDistance edits.
func FuzzyName(maxDistance int) Rule {
	return Rule{FuzzyName: &FuzzyNameRule{MaxDistance: &maxDistance}}
}

// AnyOf matches when at least one of rules matches.
func AnyOf(rules ...Rule) Rule {
	return Rule{Any: rules}
}

// AllOf matches when every one of rules matches.
func AllOf(rules ...Rule) Rule {
	return Rule{All: rules}
}

// Predicate decides whether two records are duplicates. Implementations are
// pure and safe for concurrent use.
type Predicate interface {
	Match(a, b Fields) bool
	String() string
}

// Compile checks r against schema and returns its predicate.
// defaultDistance is used by fuzzy_name nodes without an explicit distance.
func (r Rule) Compile(schema Schema, defaultDistance int) (Predicate, error) {
	set := 0
	if r.Equal != "" {
		set++
	}
	if r.FuzzyName != nil {
		set++
	}
	if r.Any != nil {
		set++
	}
	if r.All != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: a rule needs exactly one of equal, fuzzy_name, any, all (got %d)", ErrInvalidRule, set)
	}

	switch {
	case r.Equal != "":
		if _, ok := schema[r.Equal]; !ok {
			return nil, fmt.Errorf("%w: equal on undeclared field %q", ErrInvalidRule, r.Equal)
		}
		return equalPredicate{field: r.Equal}, nil

	case r.FuzzyName != nil:
		p := fuzzyNamePredicate{
			given:       r.FuzzyName.GivenField,
			surname:     r.FuzzyName.SurnameField,
			maxDistance: defaultDistance,
		}
		if p.given == "" {
			p.given = DefaultGivenField
		}
		if p.surname == "" {
			p.surname = DefaultSurnameField
		}
		if r.FuzzyName.MaxDistance != nil {
			p.maxDistance = *r.FuzzyName.MaxDistance
		}
		if p.maxDistance < 0 {
			return nil, fmt.Errorf("%w: fuzzy_name max_distance must be >= 0, got %d", ErrInvalidRule, p.maxDistance)
		}
		for _, f := range []string{p.given, p.surname} {
			kind, ok := schema[f]
			if !ok {
				return nil, fmt.Errorf("%w: fuzzy_name on undeclared field %q", ErrInvalidRule, f)
			}
			if kind != KindString {
				return nil, fmt.Errorf("%w: fuzzy_name needs string field, %q is %s", ErrFieldType, f, kind)
			}
		}
		return p, nil

	default:
		children := r.Any
		all := false
		if r.All != nil {
			children = r.All
			all = true
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("%w: empty any/all", ErrInvalidRule)
		}
		preds := make([]Predicate, 0, len(children))
		for i, child := range children {
			p, err := child.Compile(schema, defaultDistance)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			preds = append(preds, p)
		}
		if all {
			return allPredicate(preds), nil
		}
		return anyPredicate(preds), nil
	}
}

type equalPredicate struct {
	field string
}

func (p equalPredicate) Match(a, b Fields) bool {
	return a.Get(p.field).Equal(b.Get(p.field))
}

func (p equalPredicate) String() string {
	return "equal(" + p.field + ")"
}

type fuzzyNamePredicate struct {
	given       string
	surname     string
	maxDistance int
}

func (p fuzzyNamePredicate) Match(a, b Fields) bool {
	na, ok := p.fullName(a)
	if !ok {
		return false
	}
	nb, ok := p.fullName(b)
	if !ok {
		return false
	}
	return NameDistance(na, nb) <= p.maxDistance
}

func (p fuzzyNamePredicate) fullName(f Fields) (string, bool) {
	g, s := f.Get(p.given), f.Get(p.surname)
	if g.Kind() != KindString || s.Kind() != KindString {
		return "", false
	}
	return SortedFullName(g.Str(), s.Str()), true
}

func (p fuzzyNamePredicate) String() string {
	return fmt.Sprintf("fuzzy_name(%s,%s)<=%d", p.given, p.surname, p.maxDistance)
}

type anyPredicate []Predicate

func (ps anyPredicate) Match(a, b Fields) bool {
	for _, p := range ps {
		if p.Match(a, b) {
			return true
		}
	}
	return false
}

func (ps anyPredicate) String() string {
	return "any(" + joinPredicates(ps) + ")"
}

type allPredicate []Predicate

func (ps allPredicate) Match(a, b Fields) bool {
	for _, p := range ps {
		if !p.Match(a, b) {
			return false
		}
	}
	return true
}

func (ps allPredicate) String() string {
	return "all(" + joinPredicates(ps) + ")"
}

func joinPredicates(ps []Predicate) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
