package filter

import "fmt"

// convert checks a parsed expression against the supported filter forms.
func convert(src string, n *node) (Filter, error) {
	fail := func(at *node, format string, args ...any) error {
		return &SyntaxError{
			Expr:      src,
			Fragment:  src[at.start:at.end],
			Offset:    at.start,
			Message:   fmt.Sprintf(format, args...),
			Supported: Supported,
		}
	}

	if n.kind != nodeCall {
		return nil, fail(n, "%s expressions are not supported as top-level expressions", nodeKindNames[n.kind])
	}

	switch n.name {
	case "_&&_", "_||_":
		parts := make([]Filter, 0, len(n.args))
		for _, arg := range n.args {
			f, err := convert(src, arg)
			if err != nil {
				return nil, err
			}
			parts = append(parts, f)
		}
		if n.name == "_&&_" {
			return And{Filters: parts}, nil
		}
		return Or{Filters: parts}, nil
	case "!_":
		inner, err := convert(src, n.args[0])
		if err != nil {
			return nil, err
		}
		return Not{Filter: inner}, nil
	case "_==_", "_!=_", "_<_", "_>_":
		return comparison(n, fail)
	}
	return nil, fail(n, "Unsupported function call: %s", n.name)
}

type leftSide struct {
	statementType bool
	key           string
}

func comparison(n *node, fail func(*node, string, ...any) error) (Filter, error) {
	op := n.name
	left, right := n.args[0], n.args[1]

	var lhs leftSide
	switch {
	case left.kind == nodeIdent:
		if left.name != "statementType" {
			return nil, fail(left, "Unsupported identifier on left side of %s. %s", op, supportedIdentifiers)
		}
		lhs.statementType = true
	case left.kind == nodeSelect && left.operand != nil && left.operand.kind == nodeIdent:
		if left.operand.name != "attributes" {
			return nil, fail(left, "Unsupported select expression on left side of %s. %s", op, supportedSelects)
		}
		lhs.key = left.name
	default:
		return nil, fail(left, "Left side of %s must be an identifier or select expression. %s. %s",
			op, supportedIdentifiers, supportedSelects)
	}

	if right.kind != nodeLiteral {
		return nil, fail(right, "Right side of %s must be a literal", op)
	}
	if right.value == nil {
		return nil, fail(right, "Strings and numbers are the only supported literal types")
	}
	v := *right.value

	var f Filter
	switch {
	case lhs.statementType && (op == "_==_" || op == "_!=_") && v.Kind == KindString:
		f = StatementTypeEquals{Type: v.Str}
	case !lhs.statementType && (op == "_==_" || op == "_!=_"):
		f = AttributeEquals{Key: lhs.key, Value: v}
	case !lhs.statementType && op == "_>_" && v.Kind == KindNumber:
		f = AttributeGreaterThan{Key: lhs.key, Value: v.Num}
	case !lhs.statementType && op == "_<_" && v.Kind == KindNumber:
		f = AttributeLessThan{Key: lhs.key, Value: v.Num}
	default:
		return nil, fail(n, "Invalid left/right side combination for %s", op)
	}

	if op == "_!=_" {
		return Not{Filter: f}, nil
	}
	return f, nil
}
