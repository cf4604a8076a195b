// Package sqlstore keeps documents as JSON rows of one MySQL table and
// turns the docstore query model into SQL over JSON_EXTRACT.
//
// Live queries re-run their SQL whenever a writer signals the collection on
// the configured notifier. With a Redis notifier every instance sharing the
// database sees every write.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/logger"
)

// Schema creates the documents table.
const Schema = `CREATE TABLE IF NOT EXISTS documents (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  path VARCHAR(512) NOT NULL,
  collection VARCHAR(512) NOT NULL,
  doc_id VARCHAR(128) NOT NULL,
  data JSON NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
  UNIQUE KEY uq_documents_path (path),
  KEY idx_documents_collection (collection)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrBadField is returned for filter or order fields that cannot be used in
// a JSON path.
var ErrBadField = errors.New("invalid field name")

// Store is a docstore.Store over *sql.DB.
type Store struct {
	DB       *sql.DB
	notifier docstore.Notifier
	// Log receives change notifications that could not be sent.
	Log logger.Logger
}

var _ docstore.Store = (*Store)(nil)

func New(db *sql.DB, n docstore.Notifier) *Store {
	return &Store{DB: db, notifier: n, Log: logger.Nop()}
}

func (s *Store) LiveQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if _, _, err := buildQuery(q); err != nil {
		return nil, docstore.Wrap("listen", q.Collection, err)
	}
	sub, err := docstore.Watch(ctx, s.notifier, q, s.QueryOnce)
	if err != nil {
		return nil, docstore.Wrap("listen", q.Collection, err)
	}
	return sub, nil
}

func (s *Store) QueryOnce(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, docstore.Wrap("query", q.Collection, err)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, docstore.Wrap("query", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			d   docstore.Document
			raw []byte
		)
		if err := rows.Scan(&d.ID, &d.Path, &raw); err != nil {
			return nil, docstore.Wrap("query", q.Collection, err)
		}
		if d.Data, err = decodeData(raw); err != nil {
			return nil, docstore.Wrap("query", d.Path, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, docstore.Wrap("query", q.Collection, err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE path=? LIMIT 1", path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, docstore.Wrap("get", path, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return docstore.Document{}, docstore.Wrap("get", path, err)
	}
	_, id := docstore.Split(path)
	return docstore.Document{ID: id, Path: path, Data: data}, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	return s.RunBatch(ctx, []docstore.WriteOp{docstore.SetOp(path, data, merge)})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.RunBatch(ctx, []docstore.WriteOp{docstore.DeleteOp(path)})
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, docstore.Join(collection, id), data, false); err != nil {
		return "", err
	}
	return id, nil
}

// RunBatch applies ops in one transaction and signals every touched
// collection after the commit.
func (s *Store) RunBatch(ctx context.Context, ops []docstore.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Wrap("batch", ops[0].Path, err)
	}
	defer tx.Rollback()

	changed := map[string]struct{}{}
	for _, op := range ops {
		col, id := docstore.Split(op.Path)
		switch op.Kind {
		case docstore.OpDelete:
			if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path=?", op.Path); err != nil {
				return docstore.Wrap("delete", op.Path, err)
			}
		case docstore.OpSet:
			raw, err := json.Marshal(op.Data)
			if err != nil {
				return docstore.Wrap("set", op.Path, err)
			}
			update := "data=VALUES(data)"
			if op.Merge {
				update = "data=JSON_MERGE_PATCH(data, VALUES(data))"
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO documents (path, collection, doc_id, data) VALUES (?,?,?,?) ON DUPLICATE KEY UPDATE "+update,
				op.Path, col, id, string(raw)); err != nil {
				return docstore.Wrap("set", op.Path, err)
			}
		}
		changed[col] = struct{}{}
	}
	if err := tx.Commit(); err != nil {
		return docstore.Wrap("batch", ops[0].Path, err)
	}

	// Committed: a lost signal only delays other listeners until the next
	// write, so it is not the caller's failure.
	for col := range changed {
		if err := s.notifier.Notify(ctx, col); err != nil {
			s.Log.Warn("sqlstore: notify failed", "collection", col, "error", err)
		}
	}
	return nil
}

func jsonPath(field string) (string, error) {
	if !fieldName.MatchString(field) {
		return "", fmt.Errorf("%w: %q", ErrBadField, field)
	}
	return `JSON_EXTRACT(data, '$."` + field + `"')`, nil
}

// buildQuery translates q into a SELECT returning doc_id, path and data.
// Documents lacking the order field are left out.
func buildQuery(q docstore.Query) (string, []any, error) {
	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	sb.WriteString("SELECT doc_id, path, data FROM documents WHERE collection=?")
	for _, f := range q.Filters {
		if f.Op != docstore.OpEqual {
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		expr, err := jsonPath(f.Field)
		if err != nil {
			return "", nil, err
		}
		raw, err := json.Marshal(docstore.Normalize(f.Value))
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND " + expr + " = CAST(? AS JSON)")
		args = append(args, string(raw))
	}
	if q.OrderBy != "" {
		expr, err := jsonPath(q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.Direction == docstore.Desc {
			dir = "DESC"
		}
		sb.WriteString(" AND " + expr + " IS NOT NULL ORDER BY " + expr + " " + dir + ", id ASC")
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

// decodeData parses a JSON object keeping integers as int64.
func decodeData(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for k, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			m[k] = i
		} else if f, err := n.Float64(); err == nil {
			m[k] = f
		}
	}
	return m, nil
}
