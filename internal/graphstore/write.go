package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// Register stores st and, for graph-scoped statements, links it to graphID.
//
// Registration is idempotent on the statement id: the stored body is never
// overwritten and repeated links are ignored. A global statement registered
// with a graph id is stored but not linked; the mismatch is logged.
//
// The "@id" of st is rewritten to its "urn:cid:" form, and every indexed
// reference is keyed by its normalized form. Referenced values in the body
// are left as registered since they are covered by the identifier.
func (s *Store) Register(ctx context.Context, st statement.Statement, graphID string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "register", start, err) }()

	id := statement.ID(st)
	if id == "" {
		return errs.NewMalformed("missing field `@id`")
	}
	if s.addr != nil {
		if err := statement.Verify(s.addr, st); err != nil {
			return err
		}
	}
	id = normalizeID(id)
	st.Meta().ID = id
	graphID = graphKey(graphID)

	body, err := json.Marshal(st)
	if err != nil {
		return errs.Wrap(errs.CodeMalformedStatement, err, "marshal statement %s", id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewStorage("begin register", err)
	}
	defer tx.Rollback()

	scope := statement.ScopeOfStatement(st)
	if scope == statement.ScopeGraph && graphID != "" {
		if err := requireGraph(ctx, tx, graphID); err != nil {
			return err
		}
	}

	if err := insertStatement(ctx, tx, st, string(body)); err != nil {
		return err
	}

	if graphID != "" {
		if scope == statement.ScopeGlobal {
			s.logger.Error("global statement cannot be registered with a graph",
				"id", id, "type", st.Meta().Type, "graph_id", graphID)
			s.metrics.RecordError(ctx, "register", string(errs.CodeUnsupportedRegistration))
		} else if err := linkStatement(ctx, tx, id, graphID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStorage("commit register", err)
	}

	s.logger.Debug("statement registered", "id", id, "kind", st.Kind(), "graph_id", graphID)
	return nil
}

func insertStatement(ctx context.Context, tx *sql.Tx, st statement.Statement, body string) error {
	h := st.Meta()
	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errs.NewStorage(fmt.Sprintf("insert %s statement", st.Kind()), err).With("id", h.ID)
		}
		return nil
	}

	switch v := st.(type) {
	case *statement.Computation:
		return exec(`
			INSERT INTO computation_statements
			(statement_id, registered_by, timestamp, computation, operated_by, executed_on, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, nullString(ref(v.Computation)), v.OperatedBy, nullString(ref(v.ExecutedOn)), body)

	case *statement.Data:
		if err := exec(`
			INSERT INTO data_statements (statement_id, registered_by, timestamp, body)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, body); err != nil {
			return err
		}
		for _, subject := range v.Data {
			if err := exec(`
				INSERT INTO data_statement_subjects (statement_id, subject)
				VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, h.ID, ref(subject)); err != nil {
				return err
			}
		}
		return nil

	case *statement.Metadata:
		return exec(`
			INSERT INTO metadata_statements
			(statement_id, registered_by, timestamp, subject, metadata, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, ref(v.Subject), ref(v.Metadata), body)

	case *statement.Storage:
		return exec(`
			INSERT INTO storage_statements
			(statement_id, registered_by, timestamp, data, stored_on, operated_by, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, ref(v.Data), ref(v.StoredOn), v.OperatedBy, body)

	case *statement.Association:
		return exec(`
			INSERT INTO association_statements
			(statement_id, registered_by, timestamp, subject, association, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, ref(v.Subject), ref(v.Association), body)

	case *statement.Entity:
		if err := exec(`
			INSERT INTO entity_statements (statement_id, registered_by, timestamp, body)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, body); err != nil {
			return err
		}
		for _, subject := range v.Entity {
			if err := exec(`
				INSERT INTO entity_statement_subjects (statement_id, subject)
				VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, h.ID, entityRef(subject)); err != nil {
				return err
			}
		}
		return nil

	case *statement.Governance:
		return exec(`
			INSERT INTO governance_statements
			(statement_id, registered_by, timestamp, subject, document, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, ref(v.Subject), v.Document, body)

	case *statement.Did:
		return exec(`
			INSERT INTO did_statements
			(statement_id, registered_by, timestamp, did, did_type, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, v.DID, v.IndexType(), body)

	case statement.Credential:
		return exec(`
			INSERT INTO credential_statements
			(statement_id, registered_by, timestamp, kind, credential_subject, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO NOTHING
		`, h.ID, h.RegisteredBy, h.Timestamp, string(v.Kind()), ref(v.CredentialSubject()), body)
	}

	return errs.NewUnsupported(h.Type, "register")
}

func linkStatement(ctx context.Context, tx *sql.Tx, statementID, graphID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO statement_graph_link (statement_id, graph_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, statementID, graphID)
	if err != nil {
		return errs.NewStorage("link statement", err).With("id", statementID).With("graph_id", graphID)
	}
	return nil
}

// AssociateStatementToGraph links an already stored graph-scoped statement
// to graphID. Linking twice is a no-op. Global statements are not linked.
func (s *Store) AssociateStatementToGraph(ctx context.Context, statementID, graphID string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "associate", start, err) }()

	statementID = normalizeID(statementID)
	graphID = graphKey(graphID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewStorage("begin associate", err)
	}
	defer tx.Rollback()

	if err := requireGraph(ctx, tx, graphID); err != nil {
		return err
	}

	var kind string
	err = tx.QueryRowContext(ctx,
		`SELECT kind FROM all_statements WHERE statement_id = ?`, statementID,
	).Scan(&kind)
	if err == sql.ErrNoRows {
		return errs.NewNotFound("statement", statementID)
	}
	if err != nil {
		return errs.NewStorage("lookup statement", err)
	}

	if statement.ScopeOf(statement.Kind(kind)) == statement.ScopeGlobal {
		s.logger.Error("global statement cannot be associated with a graph",
			"id", statementID, "kind", kind, "graph_id", graphID)
		s.metrics.RecordError(ctx, "associate", string(errs.CodeUnsupportedRegistration))
		return nil
	}

	if err := linkStatement(ctx, tx, statementID, graphID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewStorage("commit associate", err)
	}
	return nil
}

// CreateGraph inserts g. An empty ID is replaced by a new random UUID.
// Fails with ALREADY_EXISTS for a known id and NOT_FOUND for an unknown
// parent. Parent chains that would form a cycle are rejected.
func (s *Store) CreateGraph(ctx context.Context, g Graph) (_ Graph, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "create_graph", start, err) }()

	if g.Name == "" {
		return Graph{}, errs.NewMalformed("graph name must not be empty")
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.ID, g.ParentID = graphKey(g.ID), graphKey(g.ParentID)
	g.Statements = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Graph{}, errs.NewStorage("begin create graph", err)
	}
	defer tx.Rollback()

	if _, err := loadGraph(ctx, tx, g.ID); err == nil {
		return Graph{}, errs.New(errs.CodeAlreadyExists, "graph already exists").With("graph", g.ID)
	} else if !errs.IsNotFound(err) {
		return Graph{}, err
	}

	if g.ParentID != "" {
		if g.ParentID == g.ID {
			return Graph{}, errs.NewIntegrity("graph cannot be its own parent").With("graph", g.ID)
		}
		chain, err := ancestors(ctx, tx, g.ParentID)
		if err != nil {
			return Graph{}, err
		}
		for _, a := range chain {
			if a.ID == g.ID {
				return Graph{}, errs.NewIntegrity("parent assignment creates a cycle").With("graph", g.ID)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (graph_id, name, parent_id)
		VALUES (?, ?, ?)
	`, g.ID, g.Name, nullString(g.ParentID))
	if err != nil {
		return Graph{}, errs.NewStorage("insert graph", err).With("graph", g.ID)
	}

	if err := tx.Commit(); err != nil {
		return Graph{}, errs.NewStorage("commit create graph", err)
	}

	s.logger.Info("graph created", "graph_id", g.ID, "name", g.Name, "parent_id", g.ParentID)
	return g, nil
}

func requireGraph(ctx context.Context, q querier, graphID string) error {
	_, err := loadGraph(ctx, q, graphID)
	return err
}

// ref is the subject index key of a referenced identifier.
func ref(s string) string { return statement.NormalizeRef(s) }

// entityRef prefixes a bare entity UUID with "urn:uuid:".
func entityRef(s string) string {
	if s == "" || strings.Contains(s, ":") {
		return s
	}
	return cid.AddUUIDURN(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
