package fabric

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/liveriver/fabric/internal/logger"
	"github.com/liveriver/fabric/internal/packet"
)

const broadcastCapacity = 64

// Channel is the per-stream actor: a single goroutine owns all mutable
// state for one stream key and serializes every operation on it through an
// inbox channel, so publish, join, leave and release never race each other
// the way they would behind a shared mutex.
type Channel struct {
	key       string
	inbox     chan command
	done      chan struct{}
	broadcast *Broadcaster
	triggers  *triggerRegistry
	log       zerolog.Logger
	fullGOP   bool
}

// command is the sealed set of messages a Channel's actor loop accepts.
type command interface{ isCommand() }

type cmdPublish struct {
	publisherID string
	reply       chan error
}

type cmdUnpublish struct {
	publisherID string
}

type cmdPacket struct {
	pkt packet.Packet
}

type cmdJoin struct {
	reply chan joinResult
}

type cmdLeave struct {
	subID uint64
}

type cmdStats struct {
	reply chan Stats
}

type cmdClose struct {
	reply chan struct{}
}

func (cmdPublish) isCommand()   {}
func (cmdUnpublish) isCommand() {}
func (cmdPacket) isCommand()    {}
func (cmdJoin) isCommand()      {}
func (cmdLeave) isCommand()     {}
func (cmdStats) isCommand()     {}
func (cmdClose) isCommand()     {}

// joinResult is returned to a subscriber joining a Channel: the live
// subscription plus the cached join kit (metadata, sequence headers, and
// the current group-of-pictures) so the subscriber can render a
// keyframe-ready stream without waiting for the next one.
type joinResult struct {
	sub         *Subscription
	metadata    *packet.Packet
	videoHeader *packet.Packet
	audioHeader *packet.Packet
	gop         []packet.Packet
}

// Stats is a point-in-time snapshot of a Channel's state.
type Stats struct {
	StreamKey     string
	Publishing    bool
	PublisherID   string
	Subscribers   int
}

func newChannel(key string, triggers *triggerRegistry, fullGOP bool) *Channel {
	c := &Channel{
		key:       key,
		inbox:     make(chan command, 32),
		done:      make(chan struct{}),
		broadcast: NewBroadcaster(broadcastCapacity),
		triggers:  triggers,
		log:       logger.WithStream(*logger.Logger(), key),
		fullGOP:   fullGOP,
	}
	go c.run()
	return c
}

// run is the actor loop: every field below is touched only from this
// goroutine, so none of it needs a mutex.
func (c *Channel) run() {
	var publisherID string
	publishing := false
	var metadata, videoHeader, audioHeader *packet.Packet
	var gop []packet.Packet
	subs := 0

	defer close(c.done)
	ctx := context.Background()

	for cmd := range c.inbox {
		switch m := cmd.(type) {
		case cmdPublish:
			if publishing {
				m.reply <- ErrAlreadyPublishing
				continue
			}
			publishing = true
			publisherID = m.publisherID
			m.reply <- nil
			c.triggers.fire(ctx, TriggerContext{Event: TriggerPublish, StreamKey: c.key})

		case cmdUnpublish:
			if !publishing || publisherID != m.publisherID {
				continue
			}
			publishing = false
			publisherID = ""
			metadata = nil
			videoHeader = nil
			audioHeader = nil
			gop = nil
			c.triggers.fire(ctx, TriggerContext{Event: TriggerUnpublish, StreamKey: c.key})

		case cmdPacket:
			if !publishing {
				continue
			}
			switch m.pkt.Kind {
			case packet.KindMeta:
				meta := m.pkt.Clone()
				metadata = &meta
			case packet.KindVideo:
				if hdr, err := packet.ParseVideoHeader(m.pkt.Payload); err == nil {
					switch {
					case hdr.PacketType == packet.VideoPacketSequenceHeader:
						h := m.pkt.Clone()
						videoHeader = &h
					case hdr.Keyframe:
						gop = []packet.Packet{m.pkt.Clone()}
					case c.fullGOP && len(gop) > 0:
						gop = append(gop, m.pkt.Clone())
					}
				}
			case packet.KindAudio:
				// Only an AAC sequence header replaces the cache; MP3/Speex
				// packets carry no AudioSpecificConfig to cache.
				if hdr, err := packet.ParseAudioHeader(m.pkt.Payload); err == nil &&
					hdr.Codec == packet.AudioCodecAAC && hdr.PacketType == packet.AudioPacketSequenceHeader {
					h := m.pkt.Clone()
					audioHeader = &h
				}
			}
			c.broadcast.Publish(m.pkt)

		case cmdJoin:
			sub := c.broadcast.Subscribe()
			subs++
			c.triggers.fire(ctx, TriggerContext{Event: TriggerJoin, StreamKey: c.key})
			m.reply <- joinResult{
				sub:         sub,
				metadata:    metadata,
				videoHeader: videoHeader,
				audioHeader: audioHeader,
				gop:         append([]packet.Packet(nil), gop...),
			}

		case cmdLeave:
			subs--
			if subs < 0 {
				subs = 0
			}
			c.triggers.fire(ctx, TriggerContext{Event: TriggerLeave, StreamKey: c.key})

		case cmdStats:
			m.reply <- Stats{StreamKey: c.key, Publishing: publishing, PublisherID: publisherID, Subscribers: subs}

		case cmdClose:
			c.broadcast.Close()
			c.triggers.fire(ctx, TriggerContext{Event: TriggerEndSession, StreamKey: c.key})
			close(m.reply)
			return
		}
	}
}

// Publish attempts to attach a publisher, identified by a fresh ID per
// connection attempt. It returns ErrAlreadyPublishing if the stream already
// has one.
func (c *Channel) Publish(ctx context.Context) (publisherID string, err error) {
	publisherID = uuid.NewString()
	reply := make(chan error, 1)
	select {
	case c.inbox <- cmdPublish{publisherID: publisherID, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", newChannelError("publish", c.key, ErrChannelClosed)
	}
	select {
	case err = <-reply:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return publisherID, nil
}

// Unpublish detaches publisherID if it is the current publisher. A stale
// or mismatched ID is a silent no-op, since a superseded publisher racing
// its own teardown against a new one must not clobber it.
func (c *Channel) Unpublish(publisherID string) {
	select {
	case c.inbox <- cmdUnpublish{publisherID: publisherID}:
	case <-c.done:
	}
}

// PushPacket forwards one media packet from the attached publisher to every
// current subscriber.
func (c *Channel) PushPacket(pkt packet.Packet) {
	select {
	case c.inbox <- cmdPacket{pkt: pkt}:
	case <-c.done:
	}
}

// Join registers a new subscriber and returns its live feed plus the
// cached join kit (metadata, sequence headers, current GOP), so HLS/FLV/
// RTMP egress can prime a decoder before the live feed produces its own
// copies naturally.
func (c *Channel) Join(ctx context.Context) (*Subscription, *packet.Packet, *packet.Packet, *packet.Packet, []packet.Packet, error) {
	reply := make(chan joinResult, 1)
	select {
	case c.inbox <- cmdJoin{reply: reply}:
	case <-ctx.Done():
		return nil, nil, nil, nil, nil, ctx.Err()
	case <-c.done:
		return nil, nil, nil, nil, nil, newChannelError("join", c.key, ErrChannelClosed)
	}
	select {
	case res := <-reply:
		return res.sub, res.metadata, res.videoHeader, res.audioHeader, res.gop, nil
	case <-ctx.Done():
		return nil, nil, nil, nil, nil, ctx.Err()
	}
}

// Leave unregisters a subscriber obtained from Join.
func (c *Channel) Leave(sub *Subscription) {
	sub.Close()
	select {
	case c.inbox <- cmdLeave{subID: sub.id}:
	case <-c.done:
	}
}

// Stats returns a snapshot of the channel's current state.
func (c *Channel) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case c.inbox <- cmdStats{reply: reply}:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-c.done:
		return Stats{}, newChannelError("stats", c.key, ErrChannelClosed)
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// close shuts the actor loop down and waits for it to exit.
func (c *Channel) close() {
	reply := make(chan struct{})
	select {
	case c.inbox <- cmdClose{reply: reply}:
		<-c.done
	case <-c.done:
	}
}
