package graphstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// RetrieveGraph returns the graph with the closure of statements visible
// to it.
//
// Computations linked to the graph anchor the closure. Graph-scoped
// statements linked to the graph or any ancestor are included when their
// subject is an identifier referenced by an anchor (or an anchor itself).
// Credentials about any included statement, Dids of every registrant, and
// the metadata and credentials of those Dids are added last. A graph with no
// computations has an empty closure.
//
// Identifiers are compared in normalized form, so a bare CID and its
// "urn:cid:" form name the same artifact.
//
// Statements are ordered: anchors, annotations by ancestor distance then id,
// then global statements by id within each step. Dangling references are
// skipped.
func (s *Store) RetrieveGraph(ctx context.Context, graphID string) (_ Graph, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "retrieve_graph", start, err) }()

	graphID = graphKey(graphID)
	g, err := loadGraph(ctx, s.db, graphID)
	if err != nil {
		return Graph{}, err
	}

	res := newClosure()
	anchors, err := s.loadStatements(ctx, `
		SELECT c.statement_id, c.body
		FROM computation_statements c
		JOIN statement_graph_link l ON l.statement_id = c.statement_id
		WHERE l.graph_id = ?
		ORDER BY c.statement_id COLLATE BINARY
	`, graphID)
	if err != nil {
		return Graph{}, err
	}
	if len(anchors) == 0 {
		g.Statements = []statement.Statement{}
		return g, nil
	}
	res.add(anchors...)

	var anchorIDs []string
	subjects := newStringSet()
	for _, c := range anchors {
		anchorIDs = append(anchorIDs, statement.ID(c))
		subjects.add(statement.ID(c))
		subjects.add(statement.NormalizeRefs(c.ReferencedIdentifiers())...)
	}
	subjectsJSON, err := jsonArray(subjects.sorted())
	if err != nil {
		return Graph{}, err
	}

	chain, err := ancestors(ctx, s.db, graphID)
	if err != nil {
		return Graph{}, err
	}
	for level, ancestor := range chain {
		found, err := s.loadStatements(ctx, `
			SELECT DISTINCT st.statement_id, st.body
			FROM statement_subjects ss
			JOIN statement_graph_link l ON l.statement_id = ss.statement_id
			JOIN all_statements st ON st.statement_id = ss.statement_id
			WHERE l.graph_id = ?
			  AND ss.subject IN (SELECT value FROM json_each(?))
			ORDER BY st.statement_id COLLATE BINARY
		`, ancestor.ID, subjectsJSON)
		if err != nil {
			return Graph{}, err
		}
		if added := res.add(found...); added > 0 {
			s.logger.Debug("closure annotations", "graph_id", graphID, "ancestor", ancestor.ID, "level", level, "added", added)
		}
	}

	// Metadata about an anchor computation is visible from any graph.
	anchorsJSON, err := jsonArray(anchorIDs)
	if err != nil {
		return Graph{}, err
	}
	compMeta, err := s.loadStatements(ctx, `
		SELECT statement_id, body FROM metadata_statements
		WHERE subject IN (SELECT value FROM json_each(?))
		ORDER BY statement_id COLLATE BINARY
	`, anchorsJSON)
	if err != nil {
		return Graph{}, err
	}
	res.add(compMeta...)

	if err := s.expandGlobals(ctx, res); err != nil {
		return Graph{}, err
	}

	g.Statements = res.statements
	return g, nil
}

// expandGlobals adds credentials about the gathered statements, Dids of
// their registrants, and one level of Did metadata and credentials.
func (s *Store) expandGlobals(ctx context.Context, res *closure) error {
	idsJSON, err := jsonArray(res.ids())
	if err != nil {
		return err
	}
	creds, err := s.loadStatements(ctx, `
		SELECT statement_id, body FROM credential_statements
		WHERE credential_subject IN (SELECT value FROM json_each(?))
		ORDER BY statement_id COLLATE BINARY
	`, idsJSON)
	if err != nil {
		return err
	}
	res.add(creds...)

	registrants := newStringSet()
	for _, st := range res.statements {
		registrants.add(st.Meta().RegisteredBy)
	}
	registrantsJSON, err := jsonArray(registrants.sorted())
	if err != nil {
		return err
	}
	dids, err := s.loadStatements(ctx, `
		SELECT statement_id, body FROM did_statements
		WHERE did IN (SELECT value FROM json_each(?))
		ORDER BY statement_id COLLATE BINARY
	`, registrantsJSON)
	if err != nil {
		return err
	}
	res.add(dids...)
	if len(dids) == 0 {
		return nil
	}

	didValues := newStringSet()
	var didIDs []string
	for _, st := range dids {
		if d, ok := st.(*statement.Did); ok {
			didValues.add(d.DID)
		}
		didIDs = append(didIDs, statement.ID(st))
	}
	didValuesJSON, err := jsonArray(didValues.sorted())
	if err != nil {
		return err
	}
	didIDsJSON, err := jsonArray(didIDs)
	if err != nil {
		return err
	}

	didMeta, err := s.loadStatements(ctx, `
		SELECT statement_id, body FROM metadata_statements
		WHERE subject IN (SELECT value FROM json_each(?))
		ORDER BY statement_id COLLATE BINARY
	`, didValuesJSON)
	if err != nil {
		return err
	}
	res.add(didMeta...)

	didCreds, err := s.loadStatements(ctx, `
		SELECT statement_id, body FROM credential_statements
		WHERE credential_subject IN (SELECT value FROM json_each(?))
		ORDER BY statement_id COLLATE BINARY
	`, didIDsJSON)
	if err != nil {
		return err
	}
	res.add(didCreds...)
	return nil
}

// loadStatements runs a query returning (statement_id, body) rows.
func (s *Store) loadStatements(ctx context.Context, query string, args ...any) ([]statement.Statement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStorage("query statements", err)
	}
	defer rows.Close()

	var out []statement.Statement
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, errs.NewStorage("scan statement", err)
		}
		st, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorage("iterate statements", err)
	}
	return out, nil
}

// closure is an insertion-ordered set of statements keyed by id.
type closure struct {
	statements []statement.Statement
	seen       map[string]bool
}

func newClosure() *closure {
	return &closure{seen: make(map[string]bool)}
}

// add appends the statements not already present and returns how many
// were new.
func (c *closure) add(sts ...statement.Statement) int {
	n := 0
	for _, st := range sts {
		id := statement.ID(st)
		if c.seen[id] {
			continue
		}
		c.seen[id] = true
		c.statements = append(c.statements, st)
		n++
	}
	return n
}

func (c *closure) ids() []string {
	ids := make([]string, 0, len(c.statements))
	for _, st := range c.statements {
		ids = append(ids, statement.ID(st))
	}
	sort.Strings(ids)
	return ids
}

type stringSet map[string]struct{}

func newStringSet() stringSet { return make(stringSet) }

func (s stringSet) add(vals ...string) {
	for _, v := range vals {
		if v != "" {
			s[v] = struct{}{}
		}
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// jsonArray encodes vals for binding to json_each.
func jsonArray(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", errs.NewStorage("encode identifiers", err)
	}
	return string(b), nil
}
