package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

type nodeKind int

const (
	nodeIdent nodeKind = iota
	nodeSelect
	nodeLiteral
	nodeCall
	nodeList
	nodeMap
	nodeStruct
	nodeComprehension
)

var nodeKindNames = map[nodeKind]string{
	nodeIdent:         "Identifier",
	nodeSelect:        "Select",
	nodeLiteral:       "Literal",
	nodeCall:          "Call",
	nodeList:          "List",
	nodeMap:           "Map",
	nodeStruct:        "Struct",
	nodeComprehension: "Comprehension",
}

// node is a parsed expression before it is checked against the supported
// filter forms.
type node struct {
	kind nodeKind

	// name is the identifier, selected field or function name.
	name string

	// operand is the selected or called-on expression.
	operand *node
	args    []*node

	// value is set for string and numeric literals. Other literals
	// (bool, null, bytes) leave it nil.
	value *Value

	start, end int
}

// comprehension macros expand to loops and are never valid filters.
var comprehensions = map[string]bool{
	"all": true, "exists": true, "exists_one": true, "map": true, "filter": true,
}

type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse compiles a filter expression.
//
// The language is a subset of CEL: statementType and attributes.<key>
// compared with literals, combined with &&, || and !.
func Parse(expr string) (Filter, error) {
	n, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}
	return convert(expr, n)
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) Filter {
	f, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return f
}

func parseExpr(src string) (*node, error) {
	toks, err := lex(src)
	if err != nil {
		le := err.(*lexError)
		return nil, &SyntaxError{Expr: src, Fragment: fragmentAt(src, le.pos), Offset: le.pos, Message: le.msg, Supported: Supported}
	}
	if len(toks) == 1 {
		return nil, &SyntaxError{Expr: src, Message: "empty expression", Supported: Supported}
	}
	p := &parser{src: src, toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorAt(t, fmt.Sprintf("unexpected %s", describe(t)))
	}
	return n, nil
}

func fragmentAt(src string, pos int) string {
	end := pos + 1
	for end < len(src) && src[end] != ' ' {
		end++
	}
	if end > len(src) {
		end = len(src)
	}
	return src[pos:end]
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) expect(op string) (token, error) {
	t := p.next()
	if t.kind != tokOp || t.text != op {
		return t, p.errorAt(t, fmt.Sprintf("expected %q, found %s", op, describe(t)))
	}
	return t, nil
}

func (p *parser) errorAt(t token, msg string) *SyntaxError {
	frag := p.src[t.start:t.end]
	return &SyntaxError{Expr: p.src, Fragment: frag, Offset: t.start, Message: msg, Supported: Supported}
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

func call(name string, start, end int, args ...*node) *node {
	return &node{kind: nodeCall, name: name, args: args, start: start, end: end}
}

func (p *parser) expr() (*node, error) {
	cond, err := p.logical("||", p.and)
	if err != nil {
		return nil, err
	}
	if !p.isOp("?") {
		return cond, nil
	}
	p.next()
	then, err := p.logical("||", p.and)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.expr()
	if err != nil {
		return nil, err
	}
	return call("_?_:_", cond.start, els.end, cond, then, els), nil
}

func (p *parser) and() (*node, error) { return p.logical("&&", p.relation) }

// logical parses a chain of op into a single call with every operand.
func (p *parser) logical(op string, operand func() (*node, error)) (*node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	args := []*node{first}
	for p.isOp(op) {
		p.next()
		n, err := operand()
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	if len(args) == 1 {
		return first, nil
	}
	return call("_"+op+"_", first.start, args[len(args)-1].end, args...), nil
}

var relations = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) relation() (*node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var name string
		switch {
		case t.kind == tokOp && relations[t.text]:
			name = "_" + t.text + "_"
		case t.kind == tokIdent && t.text == "in":
			name = "@in"
		default:
			return left, nil
		}
		p.next()
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = call(name, left.start, right.end, left, right)
	}
}

func (p *parser) additive() (*node, error) {
	return p.binary([]string{"+", "-"}, p.multiplicative)
}

func (p *parser) multiplicative() (*node, error) {
	return p.binary([]string{"*", "/", "%"}, p.unary)
}

func (p *parser) binary(ops []string, operand func() (*node, error)) (*node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		matched := false
		for _, op := range ops {
			if t.kind == tokOp && t.text == op {
				matched = true
			}
		}
		if !matched {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = call("_"+t.text+"_", left.start, right.end, left, right)
	}
}

func (p *parser) unary() (*node, error) {
	switch {
	case p.isOp("!"):
		t := p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return call("!_", t.start, operand.end, operand), nil
	case p.isOp("-"):
		t := p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if neg, ok := negate(operand); ok {
			neg.start = t.start
			return neg, nil
		}
		return call("-_", t.start, operand.end, operand), nil
	}
	return p.member()
}

// negate folds a minus sign into a signed numeric literal.
func negate(n *node) (*node, bool) {
	if n.kind != nodeLiteral || n.value == nil || n.value.Kind != KindNumber || n.name == "uint" {
		return nil, false
	}
	text := n.value.Num.String()
	if strings.HasPrefix(text, "-") {
		text = text[1:]
	} else {
		text = "-" + text
	}
	v := Number(json.Number(text))
	return &node{kind: nodeLiteral, name: n.name, value: &v, end: n.end}, true
}

func (p *parser) member() (*node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.next()
			field := p.next()
			if field.kind != tokIdent {
				return nil, p.errorAt(field, fmt.Sprintf("expected field name, found %s", describe(field)))
			}
			if p.isOp("(") {
				args, end, err := p.arguments()
				if err != nil {
					return nil, err
				}
				kind := nodeCall
				if comprehensions[field.text] {
					kind = nodeComprehension
				}
				n = &node{kind: kind, name: field.text, operand: n, args: args, start: n.start, end: end}
				continue
			}
			n = &node{kind: nodeSelect, name: field.text, operand: n, start: n.start, end: field.end}
		case p.isOp("["):
			p.next()
			index, err := p.expr()
			if err != nil {
				return nil, err
			}
			closing, err := p.expect("]")
			if err != nil {
				return nil, err
			}
			n = call("_[_]", n.start, closing.end, n, index)
		case p.isOp("{") && (n.kind == nodeIdent || n.kind == nodeSelect):
			entries, end, err := p.entries("}")
			if err != nil {
				return nil, err
			}
			n = &node{kind: nodeStruct, name: n.name, args: entries, start: n.start, end: end}
		default:
			return n, nil
		}
	}
}

func (p *parser) primary() (*node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "true", "false", "null":
			return &node{kind: nodeLiteral, name: t.text, start: t.start, end: t.end}, nil
		}
		if p.isOp("(") {
			args, end, err := p.arguments()
			if err != nil {
				return nil, err
			}
			if t.text == "has" {
				return &node{kind: nodeSelect, name: "has", args: args, start: t.start, end: end}, nil
			}
			return &node{kind: nodeCall, name: t.text, args: args, start: t.start, end: end}, nil
		}
		return &node{kind: nodeIdent, name: t.text, start: t.start, end: t.end}, nil
	case tokString:
		v := String(t.text)
		return &node{kind: nodeLiteral, name: "string", value: &v, start: t.start, end: t.end}, nil
	case tokInt, tokUint, tokDouble:
		v := Number(json.Number(t.text))
		name := map[tokenKind]string{tokInt: "int", tokUint: "uint", tokDouble: "double"}[t.kind]
		return &node{kind: nodeLiteral, name: name, value: &v, start: t.start, end: t.end}, nil
	case tokBytes:
		return &node{kind: nodeLiteral, name: "bytes", start: t.start, end: t.end}, nil
	case tokOp:
		switch t.text {
		case "(":
			n, err := p.expr()
			if err != nil {
				return nil, err
			}
			closing, err := p.expect(")")
			if err != nil {
				return nil, err
			}
			n.start, n.end = t.start, closing.end
			return n, nil
		case "[":
			var items []*node
			for !p.isOp("]") {
				item, err := p.expr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			closing, err := p.expect("]")
			if err != nil {
				return nil, err
			}
			return &node{kind: nodeList, args: items, start: t.start, end: closing.end}, nil
		case "{":
			p.pos--
			entries, end, err := p.entries("}")
			if err != nil {
				return nil, err
			}
			return &node{kind: nodeMap, args: entries, start: t.start, end: end}, nil
		case ".":
			ident := p.next()
			if ident.kind != tokIdent {
				return nil, p.errorAt(ident, fmt.Sprintf("expected identifier, found %s", describe(ident)))
			}
			return &node{kind: nodeIdent, name: "." + ident.text, start: t.start, end: ident.end}, nil
		}
	}
	return nil, p.errorAt(t, fmt.Sprintf("unexpected %s", describe(t)))
}

// arguments parses a parenthesised argument list.
func (p *parser) arguments() ([]*node, int, error) {
	if _, err := p.expect("("); err != nil {
		return nil, 0, err
	}
	var args []*node
	for !p.isOp(")") {
		arg, err := p.expr()
		if err != nil {
			return nil, 0, err
		}
		args = append(args, arg)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	closing, err := p.expect(")")
	if err != nil {
		return nil, 0, err
	}
	return args, closing.end, nil
}

// entries parses "{k: v, ...}" into alternating key and value nodes.
func (p *parser) entries(closer string) ([]*node, int, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, 0, err
	}
	var out []*node
	for !p.isOp(closer) {
		key, err := p.expr()
		if err != nil {
			return nil, 0, err
		}
		if _, err := p.expect(":"); err != nil {
			return nil, 0, err
		}
		value, err := p.expr()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, key, value)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	closing, err := p.expect(closer)
	if err != nil {
		return nil, 0, err
	}
	return out, closing.end, nil
}
