// Package graphstore persists statements and the graph hierarchy in SQLite
// and computes the closure of statements visible to a graph.
//
// Each statement variant has its own table holding the indexed fields and
// the statement body. Graph-scoped statements are linked to graphs through
// statement_graph_link; global statements (Did, Governance, credentials) are
// never linked and are found by identity during retrieval.
//
// # Idempotency
//
// Every insert uses ON CONFLICT DO NOTHING. Registering the same statement
// twice, into the same or another graph, never fails and never changes the
// stored body.
//
// # Determinism
//
// All queries order by identifier with COLLATE BINARY, so RetrieveGraph
// returns the same sequence for the same database.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package graphstore
