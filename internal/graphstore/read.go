package graphstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// Graph is a named scope in the hierarchy. Statements is filled only by
// RetrieveGraph.
type Graph struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	ParentID   string                `json:"parent_id,omitempty"`
	Statements []statement.Statement `json:"statements,omitempty"`
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadGraph(ctx context.Context, q querier, graphID string) (Graph, error) {
	var g Graph
	var parent sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT graph_id, name, parent_id FROM graphs WHERE graph_id = ?
	`, graphID).Scan(&g.ID, &g.Name, &parent)
	if err == sql.ErrNoRows {
		return Graph{}, errs.NewNotFound("graph", graphID)
	}
	if err != nil {
		return Graph{}, errs.NewStorage("load graph", err).With("graph", graphID)
	}
	g.ParentID = parent.String
	return g, nil
}

// ancestors returns graphID followed by its parent, grandparent and so on.
// A repeated graph in the chain is an INTEGRITY error.
func ancestors(ctx context.Context, q querier, graphID string) ([]Graph, error) {
	var chain []Graph
	visited := make(map[string]bool)
	for id := graphID; id != ""; {
		if visited[id] {
			return nil, errs.NewIntegrity("graph hierarchy contains a cycle").With("graph", id)
		}
		visited[id] = true

		g, err := loadGraph(ctx, q, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
		id = g.ParentID
	}
	return chain, nil
}

// GetGraph returns the graph record without statements.
func (s *Store) GetGraph(ctx context.Context, graphID string) (Graph, error) {
	return loadGraph(ctx, s.db, graphKey(graphID))
}

// Ancestors returns the chain from graphID up to its root, closest first.
func (s *Store) Ancestors(ctx context.Context, graphID string) ([]Graph, error) {
	return ancestors(ctx, s.db, graphKey(graphID))
}

// ListGraphs returns every graph ordered by name, then id.
func (s *Store) ListGraphs(ctx context.Context) ([]Graph, error) {
	return s.queryGraphs(ctx, `
		SELECT graph_id, name, parent_id FROM graphs
		ORDER BY name COLLATE BINARY, graph_id COLLATE BINARY
	`)
}

// ChildGraphs returns every descendant of graphID ordered by id. graphID
// itself is excluded.
func (s *Store) ChildGraphs(ctx context.Context, graphID string) ([]Graph, error) {
	graphID = graphKey(graphID)
	if _, err := loadGraph(ctx, s.db, graphID); err != nil {
		return nil, err
	}
	return s.queryGraphs(ctx, `
		WITH RECURSIVE descendants(graph_id, name, parent_id) AS (
			SELECT graph_id, name, parent_id FROM graphs WHERE parent_id = ?
			UNION
			SELECT g.graph_id, g.name, g.parent_id
			FROM graphs g JOIN descendants d ON g.parent_id = d.graph_id
		)
		SELECT graph_id, name, parent_id FROM descendants
		ORDER BY graph_id COLLATE BINARY
	`, graphID)
}

func (s *Store) queryGraphs(ctx context.Context, query string, args ...any) ([]Graph, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStorage("query graphs", err)
	}
	defer rows.Close()

	var graphs []Graph
	for rows.Next() {
		var g Graph
		var parent sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &parent); err != nil {
			return nil, errs.NewStorage("scan graph", err)
		}
		g.ParentID = parent.String
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorage("iterate graphs", err)
	}
	return graphs, nil
}

// GetStatement returns the statement with the given id from any variant
// table. The id may omit the "urn:cid:" prefix.
func (s *Store) GetStatement(ctx context.Context, id string) (_ statement.Statement, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get_statement", start, err) }()

	id = normalizeID(id)
	var body string
	err = s.db.QueryRowContext(ctx,
		`SELECT body FROM all_statements WHERE statement_id = ?`, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("statement", id)
	}
	if err != nil {
		return nil, errs.NewStorage("get statement", err).With("id", id)
	}
	return decodeBody(id, body)
}

// GraphsForStatement returns the ids of the graphs id is linked to.
func (s *Store) GraphsForStatement(ctx context.Context, id string) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT graph_id FROM statement_graph_link
		WHERE statement_id = ?
		ORDER BY graph_id COLLATE BINARY
	`, normalizeID(id))
}

// AssociationsForSubject returns the distinct associations registered for
// subject, sorted.
func (s *Store) AssociationsForSubject(ctx context.Context, subject string) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT DISTINCT association FROM association_statements
		WHERE subject = ?
		ORDER BY association COLLATE BINARY
	`, statement.NormalizeSubject(subject))
}

// SubjectsForAssociation returns the distinct subjects associated with
// association, sorted.
func (s *Store) SubjectsForAssociation(ctx context.Context, association string) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT DISTINCT subject FROM association_statements
		WHERE association = ?
		ORDER BY subject COLLATE BINARY
	`, statement.NormalizeSubject(association))
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStorage("query", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errs.NewStorage("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorage("iterate", err)
	}
	return out, nil
}

// decodeBody decodes a stored statement. The row key is the normalized id
// and replaces whatever "@id" form the body carries.
func decodeBody(id, body string) (statement.Statement, error) {
	st, err := statement.Decode([]byte(body))
	if err != nil {
		return nil, errs.Wrap(errs.CodeIntegrity, err, "stored statement does not decode").With("id", id)
	}
	st.Meta().ID = id
	return st, nil
}

// normalizeID accepts statement ids with or without "urn:cid:".
func normalizeID(id string) string {
	return cid.AddURN(id)
}

// graphKey returns the canonical form of a UUID graph id, so that case,
// braces or a "urn:uuid:" prefix do not create a second graph. Other ids
// are opaque and used as given.
func graphKey(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}
