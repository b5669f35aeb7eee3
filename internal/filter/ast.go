package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Filter is a parsed filter expression.
//
// This is a sealed interface: the implementations are StatementTypeEquals,
// AttributeEquals, AttributeLessThan, AttributeGreaterThan, And, Or and Not.
type Filter interface {
	filterNode()

	// String renders the filter in the expression language. Parsing the
	// result yields an equal filter.
	String() string
}

// ValueKind is the JSON type of a literal.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
)

// Value is a string or numeric literal. Numbers keep their source text so
// integers stay exact.
type Value struct {
	Kind ValueKind
	Str  string
	Num  json.Number
}

// String returns a string literal.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric literal.
func Number(n json.Number) Value { return Value{Kind: KindNumber, Num: n} }

// Int returns an integer literal.
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float returns a floating point literal.
func Float(f float64) Value {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// Param returns the value to bind as a SQL parameter: string, int64 or
// float64.
func (v Value) Param() any {
	if v.Kind == KindString {
		return v.Str
	}
	if i, err := v.Num.Int64(); err == nil {
		return i
	}
	f, _ := v.Num.Float64()
	return f
}

func (v Value) String() string {
	if v.Kind == KindString {
		return quote(v.Str)
	}
	return v.Num.String()
}

// StatementTypeEquals matches statements whose type is exactly Type.
type StatementTypeEquals struct {
	Type string
}

// AttributeEquals matches statements whose attribute Key holds Value with
// the same JSON type.
type AttributeEquals struct {
	Key   string
	Value Value
}

// AttributeLessThan matches numeric attributes below Value.
type AttributeLessThan struct {
	Key   string
	Value json.Number
}

// AttributeGreaterThan matches numeric attributes above Value.
type AttributeGreaterThan struct {
	Key   string
	Value json.Number
}

// And matches when every filter matches. An empty And matches everything.
type And struct {
	Filters []Filter
}

// Or matches when any filter matches. An empty Or matches nothing.
type Or struct {
	Filters []Filter
}

// Not inverts Filter.
type Not struct {
	Filter Filter
}

func (StatementTypeEquals) filterNode()  {}
func (AttributeEquals) filterNode()      {}
func (AttributeLessThan) filterNode()    {}
func (AttributeGreaterThan) filterNode() {}
func (And) filterNode()                  {}
func (Or) filterNode()                   {}
func (Not) filterNode()                  {}

func (f StatementTypeEquals) String() string {
	return "statementType == " + quote(f.Type)
}

func (f AttributeEquals) String() string {
	return fmt.Sprintf("attributes.%s == %s", f.Key, f.Value)
}

func (f AttributeLessThan) String() string {
	return fmt.Sprintf("attributes.%s < %s", f.Key, f.Value)
}

func (f AttributeGreaterThan) String() string {
	return fmt.Sprintf("attributes.%s > %s", f.Key, f.Value)
}

func (f And) String() string { return join(f.Filters, " && ") }
func (f Or) String() string  { return join(f.Filters, " || ") }
func (f Not) String() string { return "!(" + f.Filter.String() + ")" }

func join(filters []Filter, op string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = "(" + f.String() + ")"
	}
	return strings.Join(parts, op)
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
