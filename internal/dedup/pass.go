package dedup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pass pairs a blocking key with the rule that decides matches inside each
// block.
type Pass struct {
	Name  string   `yaml:"name" json:"name"`
	Key   []string `yaml:"key" json:"key"`
	Match Rule     `yaml:"match" json:"match"`
}

// MergePolicy names the resolver used for every field, with per-field
// overrides.
type MergePolicy struct {
	Default string            `yaml:"default,omitempty" json:"default,omitempty"`
	Fields  map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// RuleSet is the complete matching configuration, usually read from YAML:
//
//	passes:
//	  - name: phone
//	    key: [phone_number]
//	    match:
//	      any:
//	        - equal: birthday
//	        - equal: given_name
//	        - fuzzy_name: {max_distance: 2}
//	merge:
//	  default: mode
type RuleSet struct {
	Passes []Pass      `yaml:"passes" json:"passes"`
	Merge  MergePolicy `yaml:"merge,omitempty" json:"merge,omitempty"`
}

// DefaultRuleSet returns the reference configuration: a phone pass and a
// postcode+birthday pass.
func DefaultRuleSet(maxDistance int) RuleSet {
	return RuleSet{
		Passes: []Pass{
			{
				Name: "phone",
				Key:  []string{"phone_number"},
				Match: AnyOf(
					EqualField("birthday"),
					EqualField("given_name"),
					FuzzyName(maxDistance),
				),
			},
			{
				Name: "postcode_birthday",
				Key:  []string{"postcode", "birthday"},
				Match: AllOf(
					EqualField("age"),
					FuzzyName(maxDistance),
				),
			},
		},
		Merge: MergePolicy{Default: StrategyMode},
	}
}

// ParseRuleSet decodes a YAML rule set.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("%w: parse rule set: %v", ErrInvalidRule, err)
	}
	return rs, nil
}

// LoadRuleSet reads a YAML rule set from path.
func LoadRuleSet(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

type compiledPass struct {
	name      string
	key       []string
	predicate Predicate
}

func compilePasses(passes []Pass, schema Schema, defaultDistance int) ([]compiledPass, error) {
	seen := make(map[string]bool, len(passes))
	out := make([]compiledPass, 0, len(passes))
	for i, p := range passes {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: pass %d has no name", ErrInvalidRule, i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate pass name %q", ErrInvalidRule, p.Name)
		}
		seen[p.Name] = true

		if len(p.Key) == 0 {
			return nil, fmt.Errorf("%w: pass %q has an empty blocking key", ErrInvalidRule, p.Name)
		}
		for _, f := range p.Key {
			if _, ok := schema[f]; !ok {
				return nil, fmt.Errorf("%w: pass %q blocks on undeclared field %q", ErrInvalidRule, p.Name, f)
			}
		}

		pred, err := p.Match.Compile(schema, defaultDistance)
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", p.Name, err)
		}
		out = append(out, compiledPass{
			name:      p.Name,
			key:       append([]string(nil), p.Key...),
			predicate: pred,
		})
	}
	return out, nil
}
