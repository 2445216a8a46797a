// Package validation splits batches of records into a valid and a rejected
// partition and writes each partition to its terminal location.
//
// Rules are pure predicates over a Record. A record is valid when it
// satisfies every rule of the set; it is rejected otherwise. A record with a
// missing or mistyped field simply fails the rule that reads it.
package validation

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// Record is one decoded input row.
type Record map[string]interface{}

// Rule is a named predicate over a Record.
type Rule struct {
	Name  string
	Check func(Record) bool
}

// Eval reports whether rec satisfies r. A rule without a check accepts everything.
func (r Rule) Eval(rec Record) bool {
	if r.Check == nil {
		return true
	}
	return r.Check(rec)
}

// Timestamp and decimal formats accepted by the default rules.
var (
	TimestampPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}.[0-9]{3}Z$`)
	DecimalPattern   = regexp.MustCompile(`^[+-]?([0-9]+([.][0-9]*)?|[.][0-9]+)$`)
)

// Required accepts records where field is a non-empty string.
func Required(field string) Rule {
	return Rule{
		Name: "required(" + field + ")",
		Check: func(rec Record) bool {
			s, ok := rec[field].(string)
			return ok && s != ""
		},
	}
}

// Matches accepts records where field is a string matching re.
func Matches(field string, re *regexp.Regexp) Rule {
	return Rule{
		Name: "matches(" + field + ")",
		Check: func(rec Record) bool {
			s, ok := rec[field].(string)
			return ok && re.MatchString(s)
		},
	}
}

// Timestamp accepts records where field is a YYYY-MM-DDTHH:MM:SS.mmmZ string.
func Timestamp(field string) Rule {
	r := Matches(field, TimestampPattern)
	r.Name = "timestamp(" + field + ")"
	return r
}

// Decimal accepts records where field is a string-encoded decimal number.
func Decimal(field string) Rule {
	r := Matches(field, DecimalPattern)
	r.Name = "decimal(" + field + ")"
	return r
}

// Range accepts records where field is a number within [min, max].
// String values are not numbers.
func Range(field string, min, max float64) Rule {
	return Rule{
		Name: "range(" + field + ")",
		Check: func(rec Record) bool {
			v, ok := Number(rec[field])
			return ok && v >= min && v <= max
		},
	}
}

// AllOf accepts records satisfying every rule. An empty AllOf accepts everything.
func AllOf(rules ...Rule) Rule {
	return Rule{
		Name: "all",
		Check: func(rec Record) bool {
			for _, r := range rules {
				if !r.Eval(rec) {
					return false
				}
			}
			return true
		},
	}
}

// Not accepts exactly the records r rejects.
func Not(r Rule) Rule {
	return Rule{
		Name:  "not(" + r.Name + ")",
		Check: func(rec Record) bool { return !r.Eval(rec) },
	}
}

// Violations returns the names of the rules rec fails.
func Violations(rec Record, rules ...Rule) []string {
	var names []string
	for _, r := range rules {
		if !r.Eval(rec) {
			names = append(names, r.Name)
		}
	}
	return names
}

// Number converts a decoded JSON number to float64.
func Number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
