package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokUint
	tokDouble
	tokBytes
	tokOp
)

type token struct {
	kind  tokenKind
	text  string // operator or identifier text, decoded string, or number text
	start int
	end   int
}

// twoCharOps must be checked before single characters.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

const oneCharOps = "<>!()[]{}.,:?+-*/%"

type lexError struct {
	pos int
	msg string
}

func (e *lexError) Error() string { return e.msg }

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			if i < len(src) && (src[i] == '\'' || src[i] == '"') {
				if kind, raw, ok := stringPrefix(word); ok {
					s, end, err := lexString(src, i, raw)
					if err != nil {
						return nil, err
					}
					toks = append(toks, token{kind: kind, text: s, start: start, end: end})
					i = end
					continue
				}
			}
			toks = append(toks, token{kind: tokIdent, text: word, start: start, end: i})
		case c >= '0' && c <= '9':
			tok, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = tok.end
		case c == '\'' || c == '"':
			s, end, err := lexString(src, i, false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, start: i, end: end})
			i = end
		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, start: i, end: i + 2})
					i += 2
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.IndexByte(oneCharOps, c) >= 0 {
				toks = append(toks, token{kind: tokOp, text: string(c), start: i, end: i + 1})
				i++
				continue
			}
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, &lexError{pos: i, msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{kind: tokEOF, start: len(src), end: len(src)})
	return toks, nil
}

// stringPrefix reports whether word is a raw or bytes prefix on a quoted
// literal.
func stringPrefix(word string) (tokenKind, bool, bool) {
	switch strings.ToLower(word) {
	case "r":
		return tokString, true, true
	case "b":
		return tokBytes, false, true
	case "br", "rb":
		return tokBytes, true, true
	}
	return 0, false, false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func lexNumber(src string, start int) (token, error) {
	i := start
	if strings.HasPrefix(src[i:], "0x") || strings.HasPrefix(src[i:], "0X") {
		i += 2
		for i < len(src) && strings.IndexByte("0123456789abcdefABCDEF", src[i]) >= 0 {
			i++
		}
		return finishInt(src, start, i)
	}
	for i < len(src) && src[i] >= '0' && src[i] <= '9' {
		i++
	}
	double := false
	if i+1 < len(src) && src[i] == '.' && src[i+1] >= '0' && src[i+1] <= '9' {
		double = true
		i++
		for i < len(src) && src[i] >= '0' && src[i] <= '9' {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && src[j] >= '0' && src[j] <= '9' {
			double = true
			i = j
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
		}
	}
	if double {
		text := src[start:i]
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return token{}, &lexError{pos: start, msg: fmt.Sprintf("invalid double literal %q", text)}
		}
		return token{kind: tokDouble, text: text, start: start, end: i}, nil
	}
	return finishInt(src, start, i)
}

func finishInt(src string, start, i int) (token, error) {
	text := src[start:i]
	if i < len(src) && (src[i] == 'u' || src[i] == 'U') {
		v, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return token{}, &lexError{pos: start, msg: fmt.Sprintf("invalid uint literal %q", text)}
		}
		return token{kind: tokUint, text: strconv.FormatUint(v, 10), start: start, end: i + 1}, nil
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return token{}, &lexError{pos: start, msg: fmt.Sprintf("invalid int literal %q", text)}
	}
	return token{kind: tokInt, text: strconv.FormatInt(v, 10), start: start, end: i}, nil
}

// lexString reads a quoted literal starting at the quote at src[start].
func lexString(src string, start int, raw bool) (string, int, error) {
	q := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == q:
			return b.String(), i + 1, nil
		case c == '\n':
			return "", 0, &lexError{pos: start, msg: "unterminated string literal"}
		case c == '\\' && !raw:
			if i+1 >= len(src) {
				return "", 0, &lexError{pos: start, msg: "unterminated string literal"}
			}
			n, err := unescape(src, i, &b)
			if err != nil {
				return "", 0, err
			}
			i = n
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &lexError{pos: start, msg: "unterminated string literal"}
}

// unescape decodes the escape sequence at src[i] and returns the index after it.
func unescape(src string, i int, b *strings.Builder) (int, error) {
	c := src[i+1]
	switch c {
	case '\\', '\'', '"', '`', '?':
		b.WriteByte(c)
		return i + 2, nil
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		end := i + 2 + width
		if end > len(src) {
			return 0, &lexError{pos: i, msg: "invalid escape sequence"}
		}
		v, err := strconv.ParseUint(src[i+2:end], 16, 32)
		if err != nil || !utf8.ValidRune(rune(v)) {
			return 0, &lexError{pos: i, msg: "invalid escape sequence"}
		}
		b.WriteRune(rune(v))
		return end, nil
	default:
		return 0, &lexError{pos: i, msg: fmt.Sprintf("invalid escape sequence \\%c", c)}
	}
	return i + 2, nil
}
