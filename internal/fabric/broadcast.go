package fabric

import (
	"sync"
	"sync/atomic"

	"github.com/liveriver/fabric/internal/packet"
)

// Envelope is one broadcast delivery: the packet plus the sequence number
// it was published under, so a subscriber can tell how far it fell behind.
type Envelope struct {
	Seq    uint64
	Packet packet.Packet
}

// Broadcaster fans a publisher's packets out to any number of subscribers,
// the Go equivalent of the bounded multi-producer/multi-consumer broadcast
// channel the original actor model builds on. Each subscriber gets its own
// bounded buffer; a subscriber that cannot keep up has its oldest buffered
// envelope dropped to make room rather than stalling the publisher, and the
// drop is counted so the subscriber can detect it lagged.
type Broadcaster struct {
	capacity int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    uint64
	closed bool
}

// Subscription is one subscriber's view onto a Broadcaster.
type Subscription struct {
	id     uint64
	b      *Broadcaster
	ch     chan Envelope
	lagged atomic.Uint64
}

// NewBroadcaster returns a Broadcaster whose subscribers each buffer up to
// capacity envelopes before the oldest is dropped to admit a new one.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = 64
	}
	return &Broadcaster{capacity: capacity, subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscription. The caller must call Close on the
// returned Subscription once done receiving. Subscribing to a closed
// Broadcaster yields a subscription whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, b: b, ch: make(chan Envelope, b.capacity)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers pkt to every current subscriber. It never blocks: a
// subscriber whose buffer is full has its oldest envelope discarded first.
// Delivery happens under the lock so it can never race Close closing a
// subscriber's channel; every send below is non-blocking, so the lock is
// never held across a suspension.
func (b *Broadcaster) Publish(pkt packet.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	env := Envelope{Seq: b.seq, Packet: pkt}
	for _, s := range b.subs {
		s.deliver(env)
	}
}

func (s *Subscription) deliver(env Envelope) {
	select {
	case s.ch <- env:
		return
	default:
	}
	// Buffer full: drop the oldest envelope and count the loss before
	// retrying, matching a lagging-receiver semantics instead of blocking
	// the publisher.
	select {
	case <-s.ch:
		s.lagged.Add(1)
	default:
	}
	select {
	case s.ch <- env:
	default:
		s.lagged.Add(1)
	}
}

// C returns the channel to receive envelopes from.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Lagged returns the number of envelopes dropped because this subscriber
// fell behind.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// Close unregisters the subscription from its Broadcaster.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()
}

// Close marks the broadcaster closed and closes every subscriber's channel,
// so a receiver blocked on C() unblocks with ok == false once it drains
// whatever was already buffered. Further Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}

// SubscriberCount returns the current number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
