package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/filter"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want filter.Filter
	}{
		{
			name: "statement type",
			expr: `statementType == "ComputationRegistration"`,
			want: filter.StatementTypeEquals{Type: "ComputationRegistration"},
		},
		{
			name: "statement type not equal",
			expr: `statementType != 'DataRegistration'`,
			want: filter.Not{Filter: filter.StatementTypeEquals{Type: "DataRegistration"}},
		},
		{
			name: "string attribute",
			expr: `attributes.myStringTag == 'hello'`,
			want: filter.AttributeEquals{Key: "myStringTag", Value: filter.String("hello")},
		},
		{
			name: "negative int attribute",
			expr: `attributes.myIntTag == -42`,
			want: filter.AttributeEquals{Key: "myIntTag", Value: filter.Int(-42)},
		},
		{
			name: "uint attribute",
			expr: `attributes.count == 7u`,
			want: filter.AttributeEquals{Key: "count", Value: filter.Number("7")},
		},
		{
			name: "double attribute",
			expr: `attributes.myFloatTag == 3.14`,
			want: filter.AttributeEquals{Key: "myFloatTag", Value: filter.Float(3.14)},
		},
		{
			name: "less than",
			expr: `attributes.size < 450`,
			want: filter.AttributeLessThan{Key: "size", Value: json.Number("450")},
		},
		{
			name: "greater than",
			expr: `attributes.size > 1.5`,
			want: filter.AttributeGreaterThan{Key: "size", Value: json.Number("1.5")},
		},
		{
			name: "and chain is flat",
			expr: `attributes.a == 1 && attributes.b == 2 && attributes.c == 3`,
			want: filter.And{Filters: []filter.Filter{
				filter.AttributeEquals{Key: "a", Value: filter.Int(1)},
				filter.AttributeEquals{Key: "b", Value: filter.Int(2)},
				filter.AttributeEquals{Key: "c", Value: filter.Int(3)},
			}},
		},
		{
			name: "and binds tighter than or",
			expr: `attributes.a == 1 || attributes.b == 2 && attributes.c == 3`,
			want: filter.Or{Filters: []filter.Filter{
				filter.AttributeEquals{Key: "a", Value: filter.Int(1)},
				filter.And{Filters: []filter.Filter{
					filter.AttributeEquals{Key: "b", Value: filter.Int(2)},
					filter.AttributeEquals{Key: "c", Value: filter.Int(3)},
				}},
			}},
		},
		{
			name: "parentheses and negation",
			expr: `!(attributes.a == 'x' || statementType == 'T')`,
			want: filter.Not{Filter: filter.Or{Filters: []filter.Filter{
				filter.AttributeEquals{Key: "a", Value: filter.String("x")},
				filter.StatementTypeEquals{Type: "T"},
			}}},
		},
		{
			name: "escapes",
			expr: `attributes.s == 'it\'s!'`,
			want: filter.AttributeEquals{Key: "s", Value: filter.String("it's!")},
		},
		{
			name: "raw string",
			expr: `attributes.s == r'a\b'`,
			want: filter.AttributeEquals{Key: "s", Value: filter.String(`a\b`)},
		},
		{
			name: "hex int",
			expr: `attributes.flags == 0x10`,
			want: filter.AttributeEquals{Key: "flags", Value: filter.Int(16)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filter.Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_StringRoundTrip(t *testing.T) {
	exprs := []string{
		`statementType == 'A' && (attributes.x > 3 || !(attributes.y == 'q\'s'))`,
		`attributes.n < -2.5 || attributes.m == 0`,
		`!(statementType == 'DataRegistration')`,
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			f := filter.MustParse(expr)
			again, err := filter.Parse(f.String())
			require.NoError(t, err, f.String())
			assert.Equal(t, f, again)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		message  string
		fragment string
	}{
		{"empty", ``, "empty expression", ""},
		{"blank", `   `, "empty expression", ""},
		{"identifier", `statementType`, "Identifier expressions are not supported as top-level expressions", "statementType"},
		{"literal", `'hello'`, "Literal expressions are not supported as top-level expressions", "'hello'"},
		{"select", `attributes.x`, "Select expressions are not supported as top-level expressions", "attributes.x"},
		{"list", `[1, 2]`, "List expressions are not supported as top-level expressions", "[1, 2]"},
		{"map", `{'a': 1}`, "Map expressions are not supported as top-level expressions", "{'a': 1}"},
		{"struct", `Msg{a: 1}`, "Struct expressions are not supported as top-level expressions", "Msg{a: 1}"},
		{"comprehension", `attributes.all(x, x == 1)`, "Comprehension expressions are not supported as top-level expressions", ""},
		{"greater or equal", `attributes.x >= 1`, "Unsupported function call: _>=_", "attributes.x >= 1"},
		{"function", `size(attributes) == 1 || f(1)`, "Left side of _==_ must be an identifier or select expression", "size(attributes)"},
		{"unknown identifier", `kind == 'x'`, "Unsupported identifier on left side of _==_. Supported identifiers: 'statementType'", "kind"},
		{"unknown select", `meta.x == 'x'`, "Unsupported select expression on left side of _==_. Supported select expressions: 'attributes.<key>'", "meta.x"},
		{"nested select", `attributes.a.b == 1`, "Left side of _==_ must be an identifier or select expression", "attributes.a.b"},
		{"literal on left", `1 == attributes.a`, "Left side of _==_ must be an identifier or select expression", "1"},
		{"bool literal", `attributes.ok == true`, "Strings and numbers are the only supported literal types", "true"},
		{"null literal", `attributes.ok == null`, "Strings and numbers are the only supported literal types", "null"},
		{"bytes literal", `attributes.ok == b'x'`, "Strings and numbers are the only supported literal types", "b'x'"},
		{"right side identifier", `attributes.a == attributes.b`, "Right side of _==_ must be a literal", "attributes.b"},
		{"type with number", `statementType == 5`, "Invalid left/right side combination for _==_", ""},
		{"type less than", `statementType < 'x'`, "Invalid left/right side combination for _<_", ""},
		{"string comparison", `attributes.a > 'x'`, "Invalid left/right side combination for _>_", ""},
		{"unterminated", `attributes.a == 'x`, "unterminated string literal", ""},
		{"bad character", `attributes.a == #`, "unexpected character '#'", "#"},
		{"dangling operator", `attributes.a ==`, "unexpected end of expression", ""},
		{"unbalanced", `(attributes.a == 1`, `expected ")"`, ""},
		{"trailing", `attributes.a == 1 2`, `unexpected "2"`, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := filter.Parse(tt.expr)
			require.Error(t, err)
			assert.True(t, errs.IsFilterSyntax(err), err.Error())

			var se *filter.SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Message, tt.message)
			assert.Equal(t, tt.expr, se.Expr)
			assert.NotEmpty(t, se.Supported)
			if tt.fragment != "" {
				assert.Equal(t, tt.fragment, se.Fragment)
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { filter.MustParse("statementType") })
}
