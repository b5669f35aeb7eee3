package filter

import (
	"fmt"

	"github.com/roach88/provgraph/internal/errs"
)

const (
	supportedIdentifiers = "Supported identifiers: 'statementType'"
	supportedSelects     = "Supported select expressions: 'attributes.<key>'"
)

// Supported lists the expression forms a filter may use.
var Supported = []string{
	"statementType == '<type>'",
	"statementType != '<type>'",
	"attributes.<key> == <string|number>",
	"attributes.<key> != <string|number>",
	"attributes.<key> < <number>",
	"attributes.<key> > <number>",
	"<expr> && <expr>",
	"<expr> || <expr>",
	"!<expr>",
}

// SyntaxError reports an expression that cannot be parsed or uses an
// unsupported form. It unwraps to an errs.Error with CodeFilterSyntax.
type SyntaxError struct {
	// Expr is the full expression.
	Expr string

	// Fragment is the offending part of Expr.
	Fragment string

	// Offset is the byte offset of Fragment in Expr.
	Offset int

	Message string

	// Supported lists the accepted forms.
	Supported []string
}

func (e *SyntaxError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("filter %q: %s", e.Expr, e.Message)
	}
	return fmt.Sprintf("filter %q at %q: %s", e.Expr, e.Fragment, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return errs.New(errs.CodeFilterSyntax, "%s", e.Message).With("expr", e.Expr)
}
