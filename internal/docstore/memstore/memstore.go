// Package memstore is an in-process docstore.Store used for local
// development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/logger"
)

type entry struct {
	seq  uint64
	data map[string]any
}

// Store keeps every document in a map keyed by path. Queries return
// documents in insertion order unless an ordering is requested.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]entry
	seq      uint64
	notifier docstore.Notifier
	fault    func(op, path string) error
	// Log receives change notifications that could not be sent.
	Log logger.Logger
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store that signals changes through a local notifier.
func New() *Store {
	return NewWithNotifier(docstore.NewLocalNotifier())
}

func NewWithNotifier(n docstore.Notifier) *Store {
	return &Store{docs: map[string]entry{}, notifier: n, Log: logger.Nop()}
}

// SetFault installs a hook consulted before every operation. A non-nil
// return fails the operation without touching any data.
func (s *Store) SetFault(fn func(op, path string) error) {
	s.mu.Lock()
	s.fault = fn
	s.mu.Unlock()
}

func (s *Store) check(op, path string) error {
	s.mu.RLock()
	fn := s.fault
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return docstore.Wrap(op, path, fn(op, path))
}

func (s *Store) LiveQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := s.check("listen", q.Collection); err != nil {
		return nil, err
	}
	return docstore.Watch(ctx, s.notifier, q, s.QueryOnce)
}

func (s *Store) QueryOnce(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.check("query", q.Collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	type row struct {
		seq uint64
		doc docstore.Document
	}
	var rows []row
	for path, e := range s.docs {
		col, id := docstore.Split(path)
		if col != q.Collection {
			continue
		}
		rows = append(rows, row{e.seq, docstore.Document{ID: id, Path: path, Data: clone(e.data)}})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	docs := make([]docstore.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return docstore.Apply(docs, q), nil
}

func (s *Store) Get(_ context.Context, path string) (docstore.Document, error) {
	if err := s.check("get", path); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	_, id := docstore.Split(path)
	return docstore.Document{ID: id, Path: path, Data: clone(e.data)}, nil
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

// RunBatch applies every op under one lock, so readers see all or none.
func (s *Store) RunBatch(ctx context.Context, ops []docstore.WriteOp) error {
	for _, op := range ops {
		name := "set"
		if op.Kind == docstore.OpDelete {
			name = "delete"
		}
		if err := s.check(name, op.Path); err != nil {
			return err
		}
	}

	changed := map[string]struct{}{}
	s.mu.Lock()
	for _, op := range ops {
		col, _ := docstore.Split(op.Path)
		switch op.Kind {
		case docstore.OpDelete:
			if _, ok := s.docs[op.Path]; !ok {
				continue
			}
			delete(s.docs, op.Path)
		case docstore.OpSet:
			e, exists := s.docs[op.Path]
			if !exists {
				s.seq++
				e = entry{seq: s.seq}
			}
			if op.Merge && exists {
				merged := clone(e.data)
				for k, v := range op.Data {
					merged[k] = docstore.Normalize(v)
				}
				e.data = merged
			} else {
				e.data = normalized(op.Data)
			}
			s.docs[op.Path] = e
		}
		changed[col] = struct{}{}
	}
	s.mu.Unlock()

	// The batch is applied at this point; a lost signal only delays
	// listeners until the next write.
	for col := range changed {
		if err := s.notifier.Notify(ctx, col); err != nil {
			s.Log.Warn("memstore: notify failed", "collection", col, "error", err)
		}
	}
	return nil
}

// Len reports how many documents the store holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func normalized(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = docstore.Normalize(v)
	}
	return out
}
