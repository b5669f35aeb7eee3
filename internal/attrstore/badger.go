package attrstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/statement"
)

// Key format: stmt/<statement id>
const statementPrefix = "stmt/"

// deleteBatch bounds the number of deletes per transaction.
const deleteBatch = 1000

// BadgerStore keeps one key per statement and evaluates filters in memory.
type BadgerStore struct {
	db *badger.DB
	options
}

var _ Store = (*BadgerStore)(nil)

// badgerRecord is the stored value of a statement key.
type badgerRecord struct {
	Type       string          `json:"type"`
	Statement  json.RawMessage `json:"statement"`
	Attributes json.RawMessage `json:"attributes"`
}

// OpenBadger opens a Badger database in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, opts ...Option) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, options: buildOptions(opts)}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func statementKey(id string) []byte {
	return []byte(statementPrefix + id)
}

// Register implements Store.
func (s *BadgerStore) Register(ctx context.Context, st statement.Statement, attrs map[string]any) (err error) {
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
	value, err := json.Marshal(badgerRecord{Type: st.Meta().Type, Statement: body, Attributes: encoded})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(statementKey(id), value)
	})
	if err != nil {
		return errs.NewStorage("register statement", err).With("id", id)
	}
	s.logger.Debug("statement indexed", "id", id, "type", st.Meta().Type)
	return nil
}

// scan calls fn for every stored record in key order.
func (s *BadgerStore) scan(fn func(id string, rec badgerRecord) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(statementPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var rec badgerRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return errs.Wrap(errs.CodeIntegrity, err, "stored record does not decode").With("id", id)
			}
			if err := fn(id, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Retrieve implements Store.
func (s *BadgerStore) Retrieve(ctx context.Context, f filter.Filter) (stmts []statement.Statement, attrs map[string]map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "retrieve", start, err) }()

	stmts = []statement.Statement{}
	attrs = make(map[string]map[string]any)
	err = s.scan(func(id string, rec badgerRecord) error {
		a, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
		}
		if !filter.Match(f, rec.Type, a) {
			return nil
		}
		st, err := statement.Decode(rec.Statement)
		if err != nil {
			return errs.Wrap(errs.CodeIntegrity, err, "stored statement does not decode").With("id", id)
		}
		st.Meta().ID = id
		stmts = append(stmts, st)
		attrs[id] = a
		return nil
	})
	if err != nil {
		return nil, nil, wrapStorage("retrieve statements", err)
	}
	return stmts, attrs, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, id string) (Record, error) {
	id = cid.AddURN(id)
	var rec badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statementKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, errs.NewNotFound("statement", id)
	}
	if err != nil {
		return Record{}, errs.NewStorage("get statement", err).With("id", id)
	}
	return decodeRecord(id, rec.Statement, rec.Attributes)
}

// UniqueAttributes implements Store.
func (s *BadgerStore) UniqueAttributes(ctx context.Context) (map[string]UniqueValues, error) {
	u := newUniqueCollector()
	err := s.scan(func(id string, rec badgerRecord) error {
		a, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
		}
		u.add(a)
		return nil
	})
	if err != nil {
		return nil, wrapStorage("unique attributes", err)
	}
	return u.result(), nil
}

// UpdateAttributes implements Store.
func (s *BadgerStore) UpdateAttributes(ctx context.Context, ids []string, patch map[string]any) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update", start, err) }()

	return s.rewrite(ids, func(attrs map[string]any) {
		for k, v := range patch {
			attrs[k] = v
		}
	})
}

// RemoveAttributes implements Store.
func (s *BadgerStore) RemoveAttributes(ctx context.Context, ids []string, keys []string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "remove", start, err) }()

	return s.rewrite(ids, func(attrs map[string]any) {
		for _, k := range keys {
			delete(attrs, k)
		}
	})
}

// rewrite applies change to each existing id in its own transaction.
func (s *BadgerStore) rewrite(ids []string, change func(map[string]any)) error {
	for _, id := range normalizeIDs(ids) {
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(statementKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var rec badgerRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return errs.Wrap(errs.CodeIntegrity, err, "stored record does not decode").With("id", id)
			}
			attrs, err := decodeAttributes(rec.Attributes)
			if err != nil {
				return errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
			}
			change(attrs)
			if rec.Attributes, err = encodeAttributes(attrs); err != nil {
				return err
			}
			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			return txn.Set(statementKey(id), value)
		})
		if err != nil {
			return wrapStorage("update attributes", err)
		}
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, f filter.Filter) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	var keys [][]byte
	err = s.scan(func(id string, rec badgerRecord) error {
		a, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return errs.Wrap(errs.CodeIntegrity, err, "stored attributes are not a JSON object").With("id", id)
		}
		if filter.Match(f, rec.Type, a) {
			keys = append(keys, statementKey(id))
		}
		return nil
	})
	if err != nil {
		return 0, wrapStorage("delete statements", err)
	}

	for len(keys) > 0 {
		batch := keys[:min(deleteBatch, len(keys))]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, k := range batch {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return n, errs.NewStorage("delete statements", err)
		}
		n += int64(len(batch))
		keys = keys[len(batch):]
	}
	s.logger.Debug("statements deleted", "count", n)
	return n, nil
}

// Count returns the number of indexed statements and publishes it as a
// storage gauge.
func (s *BadgerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(statementPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errs.NewStorage("count statements", err)
	}
	s.metrics.SetStorageCount(ctx, "attributes", n)
	return n, nil
}

// wrapStorage keeps coded errors and wraps everything else as storage
// failures.
func wrapStorage(op string, err error) error {
	if errs.CodeOf(err) != "" {
		return err
	}
	return errs.NewStorage(op, err)
}
