// Package harness runs provenance scenarios against a fresh graph store and
// attribute index.
//
// A scenario builds a graph hierarchy, creates statements with a
// deterministic clock, registers them, and then checks closure retrieval,
// attribute queries and associations.
//
// # Scenario Format
//
//	name: training_closure
//	description: "Parent annotations reach a child computation"
//	canonicalization: jcs
//	graphs:
//	  - id: root
//	    name: project
//	  - id: run
//	    name: training
//	    parent: root
//	statements:
//	  - ref: comp
//	    kind: computation
//	    graph: run
//	    registered_by: did:key:z6MkAlice
//	    args:
//	      input: [blob:dataset]
//	      output: [blob:model]
//	      operated_by: did:key:z6MkAlice
//	    attributes: { stage: train }
//	assertions:
//	  - type: closure
//	    graph: run
//	    statements: [comp]
//
// # Values
//
// Argument and expectation strings are resolved before use:
//
//   - "$ref" is the identifier of an earlier statement
//   - "blob:<text>" is the raw CID of the bytes of <text>
//
// Anything else is used as written.
//
// # Assertion Types
//
//   - closure: the retrieval closure of a graph, in order
//   - closure_contains: statements present in the closure
//   - closure_excludes: statements absent from the closure
//   - query: statements matched by an attribute filter, in id order
//   - associations: associations registered for a subject
//   - graphs: the graphs a statement is linked to
//
// # Deterministic Testing
//
// Every run uses a testutil.DeterministicClock, so statements without an
// explicit timestamp get the same identifier each time and traces can be
// compared against golden files.
package harness
