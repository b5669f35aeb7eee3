package filter

import (
	"cmp"
	"encoding/json"
)

// Match reports whether a statement with the given type and attributes
// satisfies f. It agrees with the SQL produced by SQLCompiler: comparisons
// never coerce between strings and numbers, and missing attributes never
// match. A nil filter matches everything.
func Match(f Filter, statementType string, attrs map[string]any) bool {
	if f == nil {
		return true
	}
	switch node := f.(type) {
	case StatementTypeEquals:
		return statementType == node.Type
	case AttributeEquals:
		v, ok := attrs[node.Key]
		if !ok {
			return false
		}
		if node.Value.Kind == KindString {
			s, isString := v.(string)
			return isString && s == node.Value.Str
		}
		order, ok := compareNumber(v, node.Value.Num)
		return ok && order == 0
	case AttributeLessThan:
		order, ok := compareNumber(attrs[node.Key], node.Value)
		return ok && order < 0
	case AttributeGreaterThan:
		order, ok := compareNumber(attrs[node.Key], node.Value)
		return ok && order > 0
	case And:
		for _, sub := range node.Filters {
			if !Match(sub, statementType, attrs) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range node.Filters {
			if Match(sub, statementType, attrs) {
				return true
			}
		}
		return false
	case Not:
		return !Match(node.Filter, statementType, attrs)
	}
	return false
}

// number is an integer when exact is set, otherwise a float.
type number struct {
	exact bool
	i     int64
	f     float64
}

func (n number) float() float64 {
	if n.exact {
		return float64(n.i)
	}
	return n.f
}

// compareNumber compares a decoded JSON value with n. ok is false when v
// is not a number.
func compareNumber(v any, n json.Number) (int, bool) {
	left, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	right, ok := toNumber(n)
	if !ok {
		return 0, false
	}
	if left.exact && right.exact {
		return cmp.Compare(left.i, right.i), true
	}
	return cmp.Compare(left.float(), right.float()), true
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return number{exact: true, i: i}, true
		}
		f, err := x.Float64()
		return number{f: f}, err == nil
	case float64:
		return number{f: x}, true
	case float32:
		return number{f: float64(x)}, true
	case int:
		return number{exact: true, i: int64(x)}, true
	case int64:
		return number{exact: true, i: x}, true
	case int32:
		return number{exact: true, i: int64(x)}, true
	}
	return number{}, false
}
