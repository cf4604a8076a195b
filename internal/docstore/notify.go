package docstore

import (
	"context"
	"sync"
)

// Notifier carries "collection changed" signals between writers and live
// queries. Signals coalesce: a listener sees at least one signal after any
// number of changes, never one per change.
type Notifier interface {
	Notify(ctx context.Context, collection string) error
	// Listen returns a channel that receives a value after every change to
	// collection. The channel is closed once ctx is done.
	Listen(ctx context.Context, collection string) (<-chan struct{}, error)
}

// LocalNotifier delivers signals inside one process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: map[string]map[chan struct{}]struct{}{}}
}

func (n *LocalNotifier) Notify(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[collection] {
		signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	set := n.listeners[collection]
	if set == nil {
		set = map[chan struct{}]struct{}{}
		n.listeners[collection] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners[collection], ch)
		if len(n.listeners[collection]) == 0 {
			delete(n.listeners, collection)
		}
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
