package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// Scenario defines a provenance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Canonicalization selects the identifier form: "jcs" (default) or "rdfc".
	Canonicalization string `yaml:"canonicalization,omitempty"`

	// Graphs are created in order before any statement is registered.
	Graphs []GraphStep `yaml:"graphs,omitempty"`

	// Statements are built and registered in order.
	Statements []StatementStep `yaml:"statements"`

	// Assertions are evaluated after every statement is registered.
	Assertions []Assertion `yaml:"assertions"`
}

// GraphStep creates one graph.
type GraphStep struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
}

// StatementStep builds and registers one statement.
type StatementStep struct {
	// Ref names the statement for later "$ref" values and assertions.
	Ref string `yaml:"ref"`

	// Kind is the statement kind, e.g. "computation" or "did".
	Kind string `yaml:"kind"`

	// Graph links a graph-scoped statement. Empty registers globally.
	Graph string `yaml:"graph,omitempty"`

	RegisteredBy string `yaml:"registered_by"`

	// Timestamp overrides the deterministic clock.
	Timestamp string `yaml:"timestamp,omitempty"`

	Args StatementArgs `yaml:"args"`

	// Attributes, when present, index the statement in the attribute store.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// ExpectError is the error code building or registering must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// StatementArgs holds the kind-specific fields of a statement.
type StatementArgs struct {
	Subject     string   `yaml:"subject,omitempty"`
	Association string   `yaml:"association,omitempty"`
	Data        []string `yaml:"data,omitempty"`
	Metadata    string   `yaml:"metadata,omitempty"`
	StoredOn    string   `yaml:"stored_on,omitempty"`
	OperatedBy  string   `yaml:"operated_by,omitempty"`
	Computation string   `yaml:"computation,omitempty"`
	Input       []string `yaml:"input,omitempty"`
	Output      []string `yaml:"output,omitempty"`
	ExecutedOn  string   `yaml:"executed_on,omitempty"`
	Entity      []string `yaml:"entity,omitempty"`
	Document    string   `yaml:"document,omitempty"`
	DID         string   `yaml:"did,omitempty"`
}

// Assertion checks the store after the statements are registered.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Graph is the graph to retrieve (closure assertions).
	Graph string `yaml:"graph,omitempty"`

	// Filter is the attribute filter expression (query). Empty matches all.
	Filter string `yaml:"filter,omitempty"`

	// Subject is the identifier whose associations are listed (associations).
	Subject string `yaml:"subject,omitempty"`

	// Statement is the ref whose graphs are listed (graphs).
	Statement string `yaml:"statement,omitempty"`

	// Statements are the expected statement refs.
	Statements []string `yaml:"statements,omitempty"`

	// Values are the expected identifiers or graph ids.
	Values []string `yaml:"values,omitempty"`
}

// Assertion type constants.
const (
	AssertClosure         = "closure"
	AssertClosureContains = "closure_contains"
	AssertClosureExcludes = "closure_excludes"
	AssertQuery           = "query"
	AssertAssociations    = "associations"
	AssertGraphs          = "graphs"
)

var buildableKinds = []statement.Kind{
	statement.KindAssociation, statement.KindData, statement.KindMetadata,
	statement.KindStorage, statement.KindComputation, statement.KindEntity,
	statement.KindGovernance, statement.KindDid,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and refs resolve
// to earlier steps.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Canonicalization {
	case "", "jcs", "rdfc":
	default:
		return fmt.Errorf("canonicalization must be jcs or rdfc, got %q", s.Canonicalization)
	}
	if len(s.Statements) == 0 {
		return fmt.Errorf("statements list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	graphs := make(map[string]bool)
	for i, g := range s.Graphs {
		if g.ID == "" || g.Name == "" {
			return fmt.Errorf("graphs[%d]: id and name are required", i)
		}
		if graphs[g.ID] {
			return fmt.Errorf("graphs[%d]: duplicate graph id %q", i, g.ID)
		}
		if g.Parent != "" && !graphs[g.Parent] {
			return fmt.Errorf("graphs[%d]: parent %q must be declared earlier", i, g.Parent)
		}
		graphs[g.ID] = true
	}

	refs := make(map[string]bool)
	for i, st := range s.Statements {
		if st.Ref == "" {
			return fmt.Errorf("statements[%d]: ref is required", i)
		}
		if refs[st.Ref] {
			return fmt.Errorf("statements[%d]: duplicate ref %q", i, st.Ref)
		}
		if !slices.Contains(buildableKinds, statement.Kind(st.Kind)) {
			return fmt.Errorf("statements[%d]: unknown kind %q", i, st.Kind)
		}
		if st.ExpectError != "" && !knownCode(st.ExpectError) {
			return fmt.Errorf("statements[%d]: unknown error code %q", i, st.ExpectError)
		}
		// Failing steps cannot be referenced.
		if st.ExpectError == "" {
			refs[st.Ref] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, refs); err != nil {
			return err
		}
	}
	return nil
}

func knownCode(code string) bool {
	switch errs.Code(code) {
	case errs.CodeIdentityMismatch, errs.CodeMalformedStatement, errs.CodeUnsupportedRegistration,
		errs.CodeNotFound, errs.CodeAlreadyExists, errs.CodeIntegrity, errs.CodeFilterSyntax, errs.CodeStorage:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, refs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertClosure, AssertClosureContains, AssertClosureExcludes:
		if a.Graph == "" {
			return fmt.Errorf("assertions[%d]: graph is required for %s", index, a.Type)
		}
	case AssertQuery:
	case AssertAssociations:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for associations", index)
		}
	case AssertGraphs:
		if !refs[a.Statement] {
			return fmt.Errorf("assertions[%d]: statement %q is not a registered ref", index, a.Statement)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	for _, ref := range a.Statements {
		if !refs[ref] {
			return fmt.Errorf("assertions[%d]: statement %q is not a registered ref", index, ref)
		}
	}
	return nil
}
