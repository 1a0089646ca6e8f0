package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, rs RuleSet, workers int) *Generator[string] {
	t.Helper()
	passes, err := compilePasses(rs.Passes, testSchema, DefaultMaxNameDistance)
	require.NoError(t, err)
	return newGenerator[string](passes, workers, testLogger)
}

func TestGenerate_PhoneScenario(t *testing.T) {
	g := newTestGenerator(t, phoneOnlyRules(), 4)

	pairs, stats, err := g.Generate(context.Background(), phoneScenario())
	require.NoError(t, err)

	assert.Equal(t, []MatchedPair[string]{
		{A: "A", B: "B", Pass: "phone"},
		{A: "A", B: "C", Pass: "phone"},
	}, pairs)
	require.Len(t, stats, 1)
	assert.Equal(t, PassStats{Pass: "phone", Blocks: 1, Comparisons: 6, Matches: 2}, stats[0])
}

func TestGenerate_UnionAcrossPasses(t *testing.T) {
	mk := func(id, given, surname, phone, postcode, birthday string, age int64) Record[string] {
		r := person(id, given, surname, birthday, phone)
		if postcode != "" {
			r.Fields["postcode"] = String(postcode)
		}
		r.Fields["age"] = Int(age)
		return r
	}
	recs := []Record[string]{
		// same phone, same given name
		mk("P1", "ann", "lee", "02 12345678", "", "", 40),
		mk("P2", "ann", "leigh", "02 12345678", "", "", 41),
		// no phone on P3: only the postcode pass can link it to P1
		mk("P3", "anne", "lee", "", "2000", "03-04", 40),
		mk("P4", "ann", "lee", "", "2000", "03-04", 40),
		// P1 and P4 appear in both passes
	}
	recs[0].Fields["postcode"] = String("2000")
	recs[0].Fields["birthday"] = String("03-04")

	g := newTestGenerator(t, DefaultRuleSet(DefaultMaxNameDistance), 2)
	pairs, _, err := g.Generate(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, []MatchedPair[string]{
		{A: "P1", B: "P2", Pass: "phone"},
		{A: "P1", B: "P3", Pass: "postcode_birthday"},
		{A: "P1", B: "P4", Pass: "postcode_birthday"},
		{A: "P3", B: "P4", Pass: "postcode_birthday"},
	}, pairs)
}

func TestGenerate_FirstPassWins(t *testing.T) {
	rs := RuleSet{Passes: []Pass{
		{Name: "by_phone", Key: []string{"phone_number"}, Match: EqualField("given_name")},
		{Name: "by_birthday", Key: []string{"birthday"}, Match: EqualField("given_name")},
	}}
	recs := []Record[string]{
		person("Y", "ann", "", "01-01", "9"),
		person("X", "ann", "", "01-01", "9"),
	}
	g := newTestGenerator(t, rs, 1)
	pairs, stats, err := g.Generate(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, []MatchedPair[string]{{A: "X", B: "Y", Pass: "by_phone"}}, pairs)
	assert.Equal(t, 1, stats[0].Matches)
	assert.Equal(t, 1, stats[1].Matches)
}

func TestGenerate_Cancelled(t *testing.T) {
	g := newTestGenerator(t, phoneOnlyRules(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Generate(ctx, phoneScenario())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_Empty(t *testing.T) {
	g := newTestGenerator(t, DefaultRuleSet(DefaultMaxNameDistance), 0)
	pairs, _, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
