package attrstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/statement"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - statements table with JSON attributes
const currentSchemaVersion = 1

// SQLiteStore keeps statements and attributes in one SQLite table and
// compiles filters to SQL.
type SQLiteStore struct {
	db       *sql.DB
	compiler *filter.SQLCompiler
	options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite creates or opens the attribute database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, compiler: filter.NewSQLCompiler(), options: buildOptions(opts)}, nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Register implements Store.
func (s *SQLiteStore) Register(ctx context.Context, st statement.Statement, attrs map[string]any) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "register", start, err) }()

	id, err := s.prepare(st)
	if err != nil {
		return err
	}
	body, err := json.Marshal(st)
	if err != nil {
		return errs.Wrap(errs.CodeMalformedStatement, err, "marshal statement %s", id)
	}
	encoded, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO statements (statement_id, statement_type, statement_data, attributes)
		VALUES (?, ?, ?, ?)
	`, id, st.Meta().Type, string(body), string(encoded))
	if err != nil {
		return errs.NewStorage("register statement", err).With("id", id)
	}
	s.logger.Debug("statement indexed", "id", id, "type", st.Meta().Type)
	return nil
}

// Retrieve implements Store.
func (s *SQLiteStore) Retrieve(ctx context.Context, f filter.Filter) (stmts []statement.Statement, attrs map[string]map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "retrieve", start, err) }()

	where, params, err := s.compiler.Compile(f)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeFilterSyntax, err, "compile filter")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT statement_id, statement_data, attributes FROM statements WHERE "+where+
			" ORDER BY statement_id ASC COLLATE BINARY", params...)
	if err != nil {
		return nil, nil, errs.NewStorage("retrieve statements", err)
	}
	defer rows.Close()

	stmts = []statement.Statement{}
	attrs = make(map[string]map[string]any)
	for rows.Next() {
		var id, body, rawAttrs string
		if err := rows.Scan(&id, &body, &rawAttrs); err != nil {
			return nil, nil, errs.NewStorage("scan statement", err)
		}
		rec, err := decodeRecord(id, []byte(body), []byte(rawAttrs))
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, rec.Statement)
		attrs[id] = rec.Attributes
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errs.NewStorage("retrieve statements", err)
	}
	return stmts, attrs, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	id = cid.AddURN(id)
	var body, rawAttrs string
	err := s.db.QueryRowContext(ctx,
		"SELECT statement_data, attributes FROM statements WHERE statement_id = ?", id).Scan(&body, &rawAttrs)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, errs.NewNotFound("statement", id)
	}
	if err != nil {
		return Record{}, errs.NewStorage("get statement", err).With("id", id)
	}
	return decodeRecord(id, []byte(body), []byte(rawAttrs))
}

// UniqueAttributes implements Store.
func (s *SQLiteStore) UniqueAttributes(ctx context.Context) (map[string]UniqueValues, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT attributes FROM statements ORDER BY statement_id ASC COLLATE BINARY")
	if err != nil {
		return nil, errs.NewStorage("unique attributes", err)
	}
	defer rows.Close()

	u := newUniqueCollector()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errs.NewStorage("scan attributes", err)
		}
		attrs, err := decodeAttributes([]byte(raw))
		if err != nil {
			return nil, errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object")
		}
		u.add(attrs)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorage("unique attributes", err)
	}
	return u.result(), nil
}

// UpdateAttributes implements Store.
func (s *SQLiteStore) UpdateAttributes(ctx context.Context, ids []string, patch map[string]any) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update", start, err) }()

	return s.rewrite(ctx, ids, func(attrs map[string]any) {
		for k, v := range patch {
			attrs[k] = v
		}
	})
}

// RemoveAttributes implements Store.
func (s *SQLiteStore) RemoveAttributes(ctx context.Context, ids []string, keys []string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "remove", start, err) }()

	return s.rewrite(ctx, ids, func(attrs map[string]any) {
		for _, k := range keys {
			delete(attrs, k)
		}
	})
}

// rewrite applies change to the attributes of each existing id, one row at
// a time.
func (s *SQLiteStore) rewrite(ctx context.Context, ids []string, change func(map[string]any)) error {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT statement_id, attributes FROM statements WHERE statement_id IN ("+placeholders+") ORDER BY statement_id", args...)
	if err != nil {
		return errs.NewStorage("load attributes", err)
	}
	current := make(map[string]map[string]any)
	var order []string
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return errs.NewStorage("scan attributes", err)
		}
		attrs, err := decodeAttributes([]byte(raw))
		if err != nil {
			rows.Close()
			return errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
		}
		current[id] = attrs
		order = append(order, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errs.NewStorage("load attributes", err)
	}

	for _, id := range order {
		attrs := current[id]
		change(attrs)
		encoded, err := encodeAttributes(attrs)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			"UPDATE statements SET attributes = ? WHERE statement_id = ?", string(encoded), id); err != nil {
			return errs.NewStorage("update attributes", err).With("id", id)
		}
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, f filter.Filter) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	where, params, err := s.compiler.Compile(f)
	if err != nil {
		return 0, errs.Wrap(errs.CodeFilterSyntax, err, "compile filter")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM statements WHERE "+where, params...)
	if err != nil {
		return 0, errs.NewStorage("delete statements", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, errs.NewStorage("delete statements", err)
	}
	s.logger.Debug("statements deleted", "count", n)
	return n, nil
}

// Count returns the number of indexed statements and publishes it as a
// storage gauge.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statements").Scan(&n); err != nil {
		return 0, errs.NewStorage("count statements", err)
	}
	s.metrics.SetStorageCount(ctx, "attributes", n)
	return n, nil
}

func decodeRecord(id string, body, rawAttrs []byte) (Record, error) {
	st, err := statement.Decode(body)
	if err != nil {
		return Record{}, errs.Wrap(errs.CodeIntegrity, err, "stored statement does not decode").With("id", id)
	}
	attrs, err := decodeAttributes(rawAttrs)
	if err != nil {
		return Record{}, errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
	}
	st.Meta().ID = id
	return Record{Statement: st, Attributes: attrs}, nil
}
