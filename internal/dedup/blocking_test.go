package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBlocks_SingleKey(t *testing.T) {
	recs := phoneScenario()
	blocks := BuildBlocks(recs, []string{"phone_number"})

	// E is alone on its phone number and forms no block.
	assert.Equal(t, []Block{{0, 1, 2, 3}}, blocks)
}

func TestBuildBlocks_NullsNeverGroup(t *testing.T) {
	recs := []Record[string]{
		person("A", "x", "", "", ""),
		person("B", "y", "", "", ""),
		person("C", "z", "", "", "1"),
	}
	assert.Empty(t, BuildBlocks(recs, []string{"phone_number"}))
}

func TestBuildBlocks_CompositeKey(t *testing.T) {
	mk := func(id, postcode, birthday string) Record[string] {
		f := Fields{}
		if postcode != "" {
			f["postcode"] = String(postcode)
		}
		if birthday != "" {
			f["birthday"] = String(birthday)
		}
		return Record[string]{ID: id, Fields: f}
	}
	recs := []Record[string]{
		mk("A", "2000", "01-01"),
		mk("B", "2000", "01-02"),
		mk("C", "2000", "01-01"),
		mk("D", "2000", ""),
		mk("E", "", "01-01"),
		mk("F", "2000", "01-02"),
	}
	blocks := BuildBlocks(recs, []string{"postcode", "birthday"})
	assert.Equal(t, []Block{{0, 2}, {1, 5}}, blocks)
}

func TestBlockKey_NoCollisions(t *testing.T) {
	a, ok := blockKey(Fields{"x": String("a:1"), "y": String("b")}, []string{"x", "y"})
	assert.True(t, ok)
	b, ok := blockKey(Fields{"x": String("a"), "y": String("1:b")}, []string{"x", "y"})
	assert.True(t, ok)
	assert.NotEqual(t, a, b)

	s, _ := blockKey(Fields{"x": String("1")}, []string{"x"})
	i, _ := blockKey(Fields{"x": Int(1)}, []string{"x"})
	assert.NotEqual(t, s, i)
}

func TestBuildBlocks_Empty(t *testing.T) {
	assert.Empty(t, BuildBlocks([]Record[string]{}, []string{"phone_number"}))
}
