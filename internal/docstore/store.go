// Package docstore describes the remote document store the service is built
// on: documents addressed by slash-separated paths, collections queried with
// equality filters, one optional ordering and a limit, live queries that
// deliver the full result set on every change, and atomic write batches.
//
// Adapters live in the memstore, sqlstore and firestore subpackages.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// StoreError wraps an adapter failure with the operation and path that
// failed. Mutations that fail with a StoreError are not applied.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("docstore %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap returns err wrapped in a StoreError, or nil. ErrNotFound and context
// errors pass through unchanged.
func Wrap(op, path string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StoreError{Op: op, Path: path, Err: err}
}

// Document is one stored record. Data holds scalar values only.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Operator is a filter comparison. Only equality is needed by the service.
type Operator string

const OpEqual Operator = "=="

// Filter restricts a query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Where is shorthand for an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query selects documents of one collection. Zero OrderBy keeps the
// adapter's natural order, zero Limit means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// Snapshot is the complete, ordered result of a live query at one point in
// time. It is never a diff.
type Snapshot struct {
	Docs []Document
}

// Subscription is a running live query.
type Subscription interface {
	// Snapshots delivers the latest result set. A slow reader only ever
	// misses intermediate snapshots, never the newest one.
	Snapshots() <-chan Snapshot
	// Err delivers listener failures. The subscription keeps running.
	Err() <-chan error
	// Unsubscribe stops listening. It is safe to call more than once.
	Unsubscribe()
}

// OpKind tells a batch entry apart.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

// WriteOp is one entry of an atomic batch.
type WriteOp struct {
	Kind  OpKind
	Path  string
	Data  map[string]any
	Merge bool
}

// SetOp builds a batch write.
func SetOp(path string, data map[string]any, merge bool) WriteOp {
	return WriteOp{Kind: OpSet, Path: path, Data: data, Merge: merge}
}

// DeleteOp builds a batch delete.
func DeleteOp(path string) WriteOp {
	return WriteOp{Kind: OpDelete, Path: path}
}

// Store is the capability set the service needs from a document database.
// Multi-step sequences built on it (check then insert, read then merge) are
// not transactional; only RunBatch is atomic.
type Store interface {
	LiveQuery(ctx context.Context, q Query) (Subscription, error)
	QueryOnce(ctx context.Context, q Query) ([]Document, error)
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	RunBatch(ctx context.Context, ops []WriteOp) error
}
