package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/attrstore"
	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/statement"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext gives assertions access to the stores of a run.
type AssertionContext struct {
	Ctx        context.Context
	Graphs     *graphstore.Store
	Attributes attrstore.Store

	// Refs maps statement refs to identifiers.
	Refs map[string]string
}

// EvaluateAssertions runs every assertion and returns one message per
// failure. An empty slice means all passed.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertClosure:
		return assertClosure(a, actx)
	case AssertClosureContains:
		return assertClosureMembership(a, actx, true)
	case AssertClosureExcludes:
		return assertClosureMembership(a, actx, false)
	case AssertQuery:
		return assertQuery(a, actx)
	case AssertAssociations:
		return assertAssociations(a, actx)
	case AssertGraphs:
		return assertGraphs(a, actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertClosure checks the exact closure order.
func assertClosure(a Assertion, actx *AssertionContext) error {
	got, err := closureIDs(a.Graph, actx)
	if err != nil {
		return err
	}
	want := actx.ids(a.Statements)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertClosure,
			Expected: fmt.Sprintf("graph %s closure %s", a.Graph, actx.describe(want)),
			Actual:   actx.describe(got),
		}
	}
	return nil
}

func assertClosureMembership(a Assertion, actx *AssertionContext, present bool) error {
	got, err := closureIDs(a.Graph, actx)
	if err != nil {
		return err
	}
	for _, ref := range a.Statements {
		id := actx.Refs[ref]
		if slices.Contains(got, id) == present {
			continue
		}
		verb := "to contain"
		if !present {
			verb = "to exclude"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("graph %s closure %s %s", a.Graph, verb, ref),
			Actual:   actx.describe(got),
		}
	}
	return nil
}

func closureIDs(graphID string, actx *AssertionContext) ([]string, error) {
	g, err := actx.Graphs.RetrieveGraph(actx.Ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("retrieve graph %s: %w", graphID, err)
	}
	return statementIDs(g.Statements), nil
}

// assertQuery checks the statements matched by a filter, in id order.
func assertQuery(a Assertion, actx *AssertionContext) error {
	sts, _, err := attrstore.RetrieveQuery(actx.Ctx, actx.Attributes, a.Filter)
	if err != nil {
		return fmt.Errorf("query %q: %w", a.Filter, err)
	}
	got := statementIDs(sts)
	want := actx.ids(a.Statements)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("filter %q to match %s", a.Filter, actx.describe(want)),
			Actual:   actx.describe(got),
		}
	}
	return nil
}

func assertAssociations(a Assertion, actx *AssertionContext) error {
	subject, err := resolveValue(a.Subject, actx.Refs)
	if err != nil {
		return err
	}
	got, err := actx.Graphs.AssociationsForSubject(actx.Ctx, subject)
	if err != nil {
		return fmt.Errorf("associations for %s: %w", subject, err)
	}

	want := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		resolved, err := resolveValue(v, actx.Refs)
		if err != nil {
			return err
		}
		want = append(want, statement.NormalizeSubject(resolved))
	}
	slices.Sort(want)
	want = slices.Compact(want)

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertAssociations,
			Expected: fmt.Sprintf("%s associated with %s", a.Subject, actx.describe(want)),
			Actual:   actx.describe(got),
		}
	}
	return nil
}

func assertGraphs(a Assertion, actx *AssertionContext) error {
	got, err := actx.Graphs.GraphsForStatement(actx.Ctx, actx.Refs[a.Statement])
	if err != nil {
		return fmt.Errorf("graphs for %s: %w", a.Statement, err)
	}
	want := slices.Clone(a.Values)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertGraphs,
			Expected: fmt.Sprintf("%s linked to %v", a.Statement, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// ids maps refs to identifiers.
func (actx *AssertionContext) ids(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, actx.Refs[ref])
	}
	return out
}

// describe renders identifiers as refs where one is known.
func (actx *AssertionContext) describe(ids []string) string {
	byID := make(map[string]string, len(actx.Refs))
	for ref, id := range actx.Refs {
		byID[id] = ref
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if ref, ok := byID[id]; ok {
			names = append(names, ref)
		} else {
			names = append(names, id)
		}
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func statementIDs(sts []statement.Statement) []string {
	ids := make([]string, 0, len(sts))
	for _, st := range sts {
		ids = append(ids, statement.ID(st))
	}
	return ids
}
