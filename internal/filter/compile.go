package filter

import (
	"fmt"
	"strings"
)

// SQLCompiler compiles filters to parameterized SQLite WHERE fragments.
//
// Values and attribute paths are always bound as parameters. Attribute
// comparisons check json_type first so a number never equals a string and
// a missing attribute compares false rather than NULL.
type SQLCompiler struct {
	// TypeColumn holds the statement type.
	TypeColumn string

	// AttributesColumn holds the attribute JSON object.
	AttributesColumn string
}

// NewSQLCompiler creates a compiler for the statements table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		TypeColumn:       "statement_type",
		AttributesColumn: "attributes",
	}
}

// Compile converts f to a WHERE fragment and its parameters. A nil filter
// matches every row.
func (c *SQLCompiler) Compile(f Filter) (string, []any, error) {
	if f == nil {
		return "1 = 1", nil, nil
	}

	switch node := f.(type) {
	case StatementTypeEquals:
		return c.TypeColumn + " = ?", []any{node.Type}, nil
	case AttributeEquals:
		guard := "= 'text'"
		if node.Value.Kind == KindNumber {
			guard = "IN ('integer', 'real')"
		}
		return c.attribute(node.Key, guard, "=", node.Value.Param())
	case AttributeLessThan:
		return c.attribute(node.Key, "IN ('integer', 'real')", "<", Number(node.Value).Param())
	case AttributeGreaterThan:
		return c.attribute(node.Key, "IN ('integer', 'real')", ">", Number(node.Value).Param())
	case And:
		if len(node.Filters) == 0 {
			return "1 = 1", nil, nil
		}
		return c.join(node.Filters, " AND ")
	case Or:
		if len(node.Filters) == 0 {
			return "1 = 0", nil, nil
		}
		return c.join(node.Filters, " OR ")
	case Not:
		sql, params, err := c.Compile(node.Filter)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter type: %T", f)
	}
}

// attribute compiles a guarded comparison of one attribute.
func (c *SQLCompiler) attribute(key, typeGuard, op string, value any) (string, []any, error) {
	if key == "" {
		return "", nil, fmt.Errorf("empty attribute key")
	}
	path := AttributePath(key)
	sql := fmt.Sprintf("IFNULL(json_type(%[1]s, ?) %[2]s AND json_extract(%[1]s, ?) %[3]s ?, 0)",
		c.AttributesColumn, typeGuard, op)
	return sql, []any{path, path, value}, nil
}

func (c *SQLCompiler) join(filters []Filter, sep string) (string, []any, error) {
	parts := make([]string, 0, len(filters))
	var params []any
	for _, f := range filters {
		sql, p, err := c.Compile(f)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, p...)
	}
	return strings.Join(parts, sep), params, nil
}

// AttributePath returns the SQLite JSON path of a top-level attribute key.
func AttributePath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}
