package conn

import (
	"encoding/json"
	"sync"

	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// Callback handles decoded data frames for one subscription. Callbacks run
// on a per-subscription dispatch goroutine, never on the socket read loop,
// so a slow callback cannot stall frame reading. Per-subscription ordering
// is preserved; cross-channel ordering is not.
type Callback func(channel paradex.Channel, market string, data json.RawMessage)

// Key identifies a subscription: a channel plus its optional market
// parameter.
type Key struct {
	Channel paradex.Channel
	Market  string
}

// Name returns the wire channel name, e.g. "bbo.BTC-USD-PERP".
func (k Key) Name() string {
	return k.Channel.WithMarket(k.Market)
}

// subscription pairs a key with its callback and bounded delivery queue.
// One dispatch goroutine per subscription drains the queue.
type subscription struct {
	key Key

	cbMu sync.RWMutex
	cb   Callback

	queue chan json.RawMessage
	done  chan struct{}
}

func (s *subscription) run() {
	for {
		select {
		case data := <-s.queue:
			s.cbMu.RLock()
			cb := s.cb
			s.cbMu.RUnlock()
			cb(s.key.Channel, s.key.Market, data)
		case <-s.done:
			// Drain frames already queued, then stop; nothing new is
			// admitted once done is closed.
			for {
				select {
				case data := <-s.queue:
					s.cbMu.RLock()
					cb := s.cb
					s.cbMu.RUnlock()
					cb(s.key.Channel, s.key.Market, data)
				default:
					return
				}
			}
		}
	}
}

// Registry is the source of truth for active subscriptions. It is
// independent of socket lifecycle: entries survive reconnects and are
// replayed to the server, not recreated. Safe for concurrent use.
type Registry struct {
	queueDepth int

	mu     sync.RWMutex
	subs   map[string]*subscription // keyed by wire channel name
	order  []*subscription          // original subscribe order, for replay
	closed bool
}

// NewRegistry builds a registry whose subscriptions buffer up to queueDepth
// undelivered frames each.
func NewRegistry(queueDepth int) *Registry {
	return &Registry{
		queueDepth: queueDepth,
		subs:       make(map[string]*subscription),
	}
}

// Add registers a callback for (channel, market). Re-adding an existing key
// atomically replaces the callback in place: the subscription keeps its
// queue, dispatch goroutine and replay position, and every frame is
// delivered to exactly one of the old or new callback.
func (r *Registry) Add(channel paradex.Channel, market string, cb Callback) {
	key := Key{Channel: channel, Market: market}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if existing, ok := r.subs[key.Name()]; ok {
		existing.cbMu.Lock()
		existing.cb = cb
		existing.cbMu.Unlock()
		return
	}

	sub := &subscription{
		key:   key,
		cb:    cb,
		queue: make(chan json.RawMessage, r.queueDepth),
		done:  make(chan struct{}),
	}
	r.subs[key.Name()] = sub
	r.order = append(r.order, sub)
	go sub.run()
}

// Remove drops the subscription for (channel, market) and stops its
// dispatcher. It reports whether the key was registered.
func (r *Registry) Remove(channel paradex.Channel, market string) bool {
	name := Key{Channel: channel, Market: market}.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[name]
	if !ok {
		return false
	}
	delete(r.subs, name)
	for i, s := range r.order {
		if s == sub {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	close(sub.done)
	return true
}

// Snapshot returns the active subscription keys in original subscribe
// order. The connection manager replays this after every reconnect.
func (r *Registry) Snapshot() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, len(r.order))
	for i, s := range r.order {
		keys[i] = s.key
	}
	return keys
}

// HasPrivate reports whether any registered channel requires auth.
func (r *Registry) HasPrivate() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.order {
		if s.key.Channel.RequiresAuth() {
			return true
		}
	}
	return false
}

// Dispatch queues a frame for the subscription registered under the wire
// channel name. The first return reports delivery (false when the queue is
// full), the second whether any subscription matched. A frame for an
// unknown key is not an error: it can race an unsubscribe.
func (r *Registry) Dispatch(name string, data json.RawMessage) (delivered, found bool) {
	r.mu.RLock()
	sub, ok := r.subs[name]
	r.mu.RUnlock()
	if !ok {
		return false, false
	}

	select {
	case sub.queue <- data:
		return true, true
	default:
		return false, true
	}
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close stops all dispatch goroutines and rejects further Adds. Queued
// frames that have not been picked up are discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.order {
		close(s.done)
	}
	r.subs = make(map[string]*subscription)
	r.order = nil
}
