// broadcast.go implements best-effort snapshot delivery to a dynamic set of
// observers.
//
// Each observer gets its own buffered channel. Delivery is failure-isolated:
// an observer that cannot keep up is dropped (its channel closed and removed)
// without affecting the other observers or the publisher.

package tunnel

import "sync"

// observerBuffer is the per-observer channel capacity. An observer lagging
// this many snapshots behind is considered dead and removed.
const observerBuffer = 8

// Broadcaster fans snapshots out to subscribed observers.
type Broadcaster struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan Snapshot
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan Snapshot)}
}

// Subscribe registers a new observer. The returned cancel func removes the
// observer and closes its channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Snapshot, observerBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers a snapshot to every observer. Never blocks: an observer
// with a full buffer is removed and its channel closed.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Len returns the number of subscribed observers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
