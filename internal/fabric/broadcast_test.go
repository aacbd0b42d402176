package fabric

import (
	"testing"

	"github.com/liveriver/fabric/internal/packet"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(packet.Packet{Kind: packet.KindVideo, Timestamp: 1})

	for _, s := range []*Subscription{s1, s2} {
		select {
		case env := <-s.C():
			if env.Packet.Timestamp != 1 {
				t.Fatalf("expected timestamp 1, got %d", env.Packet.Timestamp)
			}
		default:
			t.Fatalf("expected a buffered envelope")
		}
	}
}

func TestBroadcasterDropsOldestWhenSubscriberFallsBehind(t *testing.T) {
	b := NewBroadcaster(2)
	s := b.Subscribe()
	defer s.Close()

	for i := uint32(0); i < 5; i++ {
		b.Publish(packet.Packet{Kind: packet.KindVideo, Timestamp: i})
	}

	if s.Lagged() == 0 {
		t.Fatalf("expected at least one dropped envelope")
	}

	last := packet.Packet{}
	for {
		select {
		case env := <-s.C():
			last = env.Packet
			continue
		default:
		}
		break
	}
	if last.Timestamp != 4 {
		t.Fatalf("expected the most recent envelope to survive, got timestamp %d", last.Timestamp)
	}
}

func TestBroadcasterCloseUnblocksSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	s := b.Subscribe()

	b.Publish(packet.Packet{Kind: packet.KindVideo, Timestamp: 1})
	b.Close()

	// Buffered envelopes drain first, then the closed channel reports
	// ok == false instead of blocking forever.
	env, ok := <-s.C()
	if !ok || env.Packet.Timestamp != 1 {
		t.Fatalf("expected the buffered envelope before close, got ok=%v env=%+v", ok, env)
	}
	if _, ok := <-s.C(); ok {
		t.Fatalf("expected the subscription channel to be closed")
	}

	// Close after Close is a no-op, and a late Subscription.Close is safe.
	b.Close()
	s.Close()
}

func TestBroadcasterSubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	b := NewBroadcaster(4)
	b.Close()
	s := b.Subscribe()
	if _, ok := <-s.C(); ok {
		t.Fatalf("expected a subscription on a closed broadcaster to start closed")
	}
}

func TestSubscriberCountReflectsSubscribeAndClose(t *testing.T) {
	b := NewBroadcaster(4)
	s := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}
	s.Close()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
}
