package docstore

import (
	"context"
	"sync"
)

// Sink is the producer side of a subscription created by Stream.
type Sink struct {
	ctx   context.Context
	snaps chan Snapshot
	errs  chan error
}

// Snapshot publishes docs, replacing any snapshot the reader has not taken.
func (s *Sink) Snapshot(docs []Document) {
	snap := Snapshot{Docs: docs}
	for {
		select {
		case <-s.ctx.Done():
			return
		case s.snaps <- snap:
			return
		default:
		}
		select {
		case <-s.snaps:
		default:
		}
	}
}

// Error publishes a listener failure. Errors are dropped while one is
// already waiting to be read.
func (s *Sink) Error(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

type feed struct {
	sink   *Sink
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (f *feed) Snapshots() <-chan Snapshot { return f.sink.snaps }
func (f *feed) Err() <-chan error          { return f.sink.errs }

func (f *feed) Unsubscribe() {
	f.once.Do(func() {
		f.cancel()
		<-f.done
	})
}

// Stream runs produce in its own goroutine until the subscription is
// unsubscribed or parent is cancelled.
func Stream(parent context.Context, produce func(ctx context.Context, sink *Sink)) Subscription {
	ctx, cancel := context.WithCancel(parent)
	f := &feed{
		sink:   &Sink{ctx: ctx, snaps: make(chan Snapshot, 1), errs: make(chan error, 1)},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		produce(ctx, f.sink)
	}()
	return f
}

// Watch builds a live query out of a one-shot query and a change notifier:
// run is evaluated once up front and again after every change signal on the
// query's collection.
func Watch(parent context.Context, n Notifier, q Query, run func(ctx context.Context, q Query) ([]Document, error)) (Subscription, error) {
	ctx, cancel := context.WithCancel(parent)
	changes, err := n.Listen(ctx, q.Collection)
	if err != nil {
		cancel()
		return nil, err
	}
	sub := Stream(ctx, func(ctx context.Context, sink *Sink) {
		for {
			docs, err := run(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				sink.Error(err)
			} else {
				sink.Snapshot(docs)
			}
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	})
	return &watched{Subscription: sub, cancel: cancel}, nil
}

type watched struct {
	Subscription
	cancel context.CancelFunc
}

func (w *watched) Unsubscribe() {
	w.Subscription.Unsubscribe()
	w.cancel()
}
