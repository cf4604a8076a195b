// Package firestore adapts Cloud Firestore to docstore.Store. Live queries
// use Firestore's own snapshot listeners, reopened after a failure; batches
// run in a transaction.
package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/iliyamo/typing-contest/internal/docstore"
)

// Store is a docstore.Store backed by a Firestore client.
type Store struct {
	client *firestore.Client
}

var _ docstore.Store = (*Store)(nil)

// Open connects to projectID. credentialsFile may be empty to use the
// ambient application default credentials.
func Open(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) query(q docstore.Query) firestore.Query {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), docstore.Normalize(f.Value))
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == docstore.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

// Delays between reopening a failed listener.
const (
	relistenMin = 500 * time.Millisecond
	relistenMax = 30 * time.Second
)

func (s *Store) LiveQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	fq := s.query(q)
	open := func(ctx context.Context) snapshotIter {
		return &queryIter{it: fq.Snapshots(ctx), collection: q.Collection}
	}
	return docstore.Stream(ctx, func(ctx context.Context, sink *docstore.Sink) {
		listen(ctx, sink, q.Collection, open, relistenMin, relistenMax)
	}), nil
}

// snapshotIter yields the full result set after every change.
type snapshotIter interface {
	Next() ([]docstore.Document, error)
	Stop()
}

type queryIter struct {
	it         *firestore.QuerySnapshotIterator
	collection string
}

func (q *queryIter) Next() ([]docstore.Document, error) {
	snap, err := q.it.Next()
	if err != nil {
		return nil, err
	}
	all, err := snap.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	return toDocs(q.collection, all), nil
}

func (q *queryIter) Stop() { q.it.Stop() }

// listen forwards snapshots until ctx is done. A listener that fails is
// reported on the sink and reopened after a delay that doubles up to
// maxDelay and resets once a snapshot arrives.
func listen(ctx context.Context, sink *docstore.Sink, collection string, open func(ctx context.Context) snapshotIter, minDelay, maxDelay time.Duration) {
	delay := minDelay
	for {
		it := open(ctx)
		err := forward(ctx, sink, it, func() { delay = minDelay })
		it.Stop()
		if err == nil {
			return
		}
		sink.Error(docstore.Wrap("listen", collection, err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(2*delay, maxDelay)
	}
}

// forward drains it into sink. It returns nil when the listener ended
// because ctx is done, and the failure otherwise.
func forward(ctx context.Context, sink *docstore.Sink, it snapshotIter, delivered func()) error {
	for {
		docs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		delivered()
		sink.Snapshot(docs)
	}
}

func (s *Store) QueryOnce(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	all, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, docstore.Wrap("query", q.Collection, err)
	}
	return toDocs(q.Collection, all), nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	snap, err := s.client.Doc(path).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, docstore.Wrap("get", path, err)
	}
	_, id := docstore.Split(path)
	return docstore.Document{ID: id, Path: path, Data: snap.Data()}, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	var err error
	if merge {
		_, err = s.client.Doc(path).Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = s.client.Doc(path).Set(ctx, data)
	}
	return docstore.Wrap("set", path, err)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.Doc(path).Delete(ctx)
	return docstore.Wrap("delete", path, err)
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", docstore.Wrap("add", collection, err)
	}
	return ref.ID, nil
}

func (s *Store) RunBatch(ctx context.Context, ops []docstore.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, op := range ops {
			ref := s.client.Doc(op.Path)
			var err error
			switch {
			case op.Kind == docstore.OpDelete:
				err = tx.Delete(ref)
			case op.Merge:
				err = tx.Set(ref, op.Data, firestore.MergeAll)
			default:
				err = tx.Set(ref, op.Data)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return docstore.Wrap("batch", ops[0].Path, err)
}

func toDocs(collection string, snaps []*firestore.DocumentSnapshot) []docstore.Document {
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, docstore.Document{
			ID:   snap.Ref.ID,
			Path: docstore.Join(collection, snap.Ref.ID),
			Data: snap.Data(),
		})
	}
	return docs
}
