package dedup

import (
	"io"

	"github.com/rs/zerolog"
)

var testSchema = Schema{
	"given_name":   KindString,
	"surname":      KindString,
	"birthday":     KindString,
	"phone_number": KindString,
	"postcode":     KindString,
	"age":          KindInt,
}

var testLogger = zerolog.New(io.Discard)

// person builds a record; empty strings are left out as nulls.
func person(id, given, surname, birthday, phone string) Record[string] {
	f := Fields{}
	set := func(name, v string) {
		if v != "" {
			f[name] = String(v)
		}
	}
	set("given_name", given)
	set("surname", surname)
	set("birthday", birthday)
	set("phone_number", phone)
	return Record[string]{ID: id, Fields: f}
}

// phoneScenario is the five-record example blocked by phone.
func phoneScenario() []Record[string] {
	return []Record[string]{
		person("A", "benjamin", "habert", "05-12", "555"),
		person("B", "bnjamin", "habrt", "", "555"),
		person("C", "benjamin", "", "", "555"),
		person("D", "benja", "", "", "555"),
		person("E", "benjamin", "habert", "05-12", "556"),
	}
}

func phoneOnlyRules() RuleSet {
	rs := DefaultRuleSet(DefaultMaxNameDistance)
	rs.Passes = rs.Passes[:1]
	return rs
}
