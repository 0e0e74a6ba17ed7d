// Package watch is the in-process change subscription bridge.
//
// The store publishes a Change after every committed write. Subscribers
// register a Predicate and receive a coalesced signal whenever a matching
// change lands; they then re-read the full result set they care about.
// Nothing here carries row diffs, so a missed or merged signal can never
// leave a consumer with a wrong value, only with one more re-read to do.
package watch

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/stockledger/internal/ledger"
)

// ChangeKind says what kind of write produced a Change.
type ChangeKind int

const (
	// ChangeInserted means new entries were appended.
	ChangeInserted ChangeKind = iota + 1
	// ChangeConfirmed means a transfer was confirmed (and its mirror appended).
	ChangeConfirmed
	// ChangeSite means a site was registered.
	ChangeSite
	// ChangeExternal means another connection committed to the database,
	// e.g. a second process or the replication layer. What it wrote is unknown.
	ChangeExternal
)

// Change describes one committed write.
type Change struct {
	Kind    ChangeKind
	Sites   []ledger.SiteID
	Entries []ledger.EntryID
}

// Touches reports whether the change involves site. An external change
// carries no site list and touches every site.
func (c Change) Touches(site ledger.SiteID) bool {
	if c.Kind == ChangeExternal {
		return true
	}
	return slices.Contains(c.Sites, site)
}

// Predicate selects the changes a subscriber is interested in.
type Predicate func(Change) bool

// Any matches every change.
func Any(Change) bool { return true }

// TouchesSite matches changes that involve site, either as the recording
// site or as the counterparty of a transfer.
func TouchesSite(site ledger.SiteID) Predicate {
	return func(c Change) bool { return c.Touches(site) }
}

// Hub fans changes out to subscribers.
//
// Thread-safety: all methods are safe for concurrent use. Publish never
// blocks on a slow subscriber.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

// Subscription receives a signal for every matching change.
type Subscription struct {
	hub    *Hub
	id     uint64
	pred   Predicate
	signal chan struct{} // buffered, size 1
	once   sync.Once
}

// Subscribe registers pred. A nil predicate matches everything.
// On a closed hub the returned subscription's channel is already closed.
func (h *Hub) Subscribe(pred Predicate) *Subscription {
	if pred == nil {
		pred = Any
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		hub:    h,
		pred:   pred,
		signal: make(chan struct{}, 1),
	}
	if h.closed {
		sub.once.Do(func() { close(sub.signal) })
		return sub
	}

	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

// Publish signals every subscriber whose predicate matches c.
// Signals coalesce: a subscriber that has not drained the previous signal
// sees one signal for several changes.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if !sub.pred(c) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.signal) })
	}
}

// C returns the signal channel. It is closed when the subscription or the
// hub is closed.
func (s *Subscription) C() <-chan struct{} {
	return s.signal
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	delete(s.hub.subs, s.id)
	s.once.Do(func() { close(s.signal) })
}

// Stream turns a subscription into a stream of full result sets.
//
// load runs once immediately and again after every signal; each successful
// result is sent on the returned channel. Load errors go to onErr (which may
// be nil) and the stream waits for the next signal. The channel is closed
// and the subscription released when ctx is done or the subscription closes.
func Stream[T any](ctx context.Context, sub *Subscription, load func(context.Context) (T, error), onErr func(error)) <-chan T {
	out := make(chan T)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			v, err := load(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				if onErr != nil {
					onErr(err)
				}
			default:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
			}
		}
	}()

	return out
}
