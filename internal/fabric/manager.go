// Package fabric implements the streaming core: one Manager owning a
// Channel actor per active stream key, each Channel serializing publish,
// packet, join and leave operations through its own inbox so the rest of
// the server never touches shared stream state directly.
package fabric

import (
	"context"
	"sync"

	"github.com/liveriver/fabric/internal/auth"
	"github.com/liveriver/fabric/internal/logger"
	"github.com/liveriver/fabric/internal/packet"
)

// Manager is the process-wide registry of Channels, keyed by "app/stream".
// It owns Channel creation/teardown and the trigger registry every Channel
// fires into.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	triggers *triggerRegistry

	authMu sync.RWMutex
	auth   auth.Provider

	gopMu   sync.RWMutex
	fullGOP bool
}

// NewManager returns an empty Manager. With no auth provider set, Create
// never rejects for authentication; call SetAuthProvider to enable the
// credential check on publish.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]*Channel), triggers: newTriggerRegistry()}
}

// SetAuthProvider installs the credential check every subsequent Create
// consults. A nil provider disables the check entirely.
func (m *Manager) SetAuthProvider(p auth.Provider) {
	m.authMu.Lock()
	m.auth = p
	m.authMu.Unlock()
}

// SetFullGOP controls whether newly created Channels append inter-frames to
// their cached GOP between keyframes (true) or only ever cache the
// keyframe itself (false, the default). Channels already running keep
// whatever setting was in effect at their creation.
func (m *Manager) SetFullGOP(enabled bool) {
	m.gopMu.Lock()
	m.fullGOP = enabled
	m.gopMu.Unlock()
}

// RegisterTrigger registers fn to run whenever event fires on any channel
// this Manager owns.
func (m *Manager) RegisterTrigger(event TriggerEvent, fn Trigger) {
	m.triggers.RegisterTrigger(event, fn)
}

// getOrCreate returns the Channel for key, creating it (and firing
// TriggerCreateSession) if this is the first reference to that key.
func (m *Manager) getOrCreate(key string) *Channel {
	m.mu.RLock()
	if c, ok := m.channels[key]; ok {
		m.mu.RUnlock()
		return c
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.channels[key]; ok {
		return c
	}
	m.gopMu.RLock()
	fullGOP := m.fullGOP
	m.gopMu.RUnlock()
	c := newChannel(key, m.triggers, fullGOP)
	m.channels[key] = c
	m.triggers.fire(context.Background(), TriggerContext{Event: TriggerCreateSession, StreamKey: key})
	return c
}

// Create attaches a publisher to the stream key, creating the Channel if
// needed. streamKey is the credential the publisher presented; it is
// checked against the installed auth.Provider (if any) before the Channel
// is touched, so a failed check never creates or disturbs one. It returns
// ErrAlreadyPublishing if a publisher is already attached: a duplicate
// publish is rejected rather than displacing the existing one.
func (m *Manager) Create(ctx context.Context, key, streamKey string) (*Channel, string, error) {
	if err := m.authenticate(ctx, key, streamKey); err != nil {
		return nil, "", err
	}
	c := m.getOrCreate(key)
	id, err := c.Publish(ctx)
	if err != nil {
		return nil, "", err
	}
	return c, id, nil
}

func (m *Manager) authenticate(ctx context.Context, key, streamKey string) error {
	m.authMu.RLock()
	p := m.auth
	m.authMu.RUnlock()
	if p == nil {
		return nil
	}
	return p.Authenticate(ctx, key, streamKey)
}

// Release detaches publisherID from key's Channel and tears the Channel
// down: the stream dies with its publisher, so every subscriber's broadcast
// channel closes and a subsequent Join on the same key gets
// ErrNoSuchChannel. A stale publisherID (a superseded publisher racing its
// own teardown) is a no-op and leaves the live Channel alone.
func (m *Manager) Release(key, publisherID string) {
	m.mu.RLock()
	c, ok := m.channels[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.Unpublish(publisherID)
	stats, err := c.Stats(context.Background())
	if err == nil && stats.Publishing {
		return
	}
	m.mu.Lock()
	if cur, ok := m.channels[key]; ok && cur == c {
		delete(m.channels, key)
	}
	m.mu.Unlock()
	c.close()
	logger.Logger().Info().Str("stream_key", key).Msg("stream session ended")
}

// Join attaches a subscriber to the stream key. It returns ErrNoSuchChannel
// if no Channel is currently running for that key — a viewer joining a
// stream nobody is publishing gets a clear error instead of an empty feed.
func (m *Manager) Join(ctx context.Context, key string) (*Channel, *Subscription, error) {
	c, sub, _, _, _, _, err := m.JoinWithHeaders(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return c, sub, nil
}

// JoinWithHeaders is Join plus the cached join kit — metadata, sequence
// headers and the current GOP — for primer-less egress attach, used by
// HLS/FLV/RTMP workers that need to seed a decoder before the live feed
// produces its own copies of any of these.
func (m *Manager) JoinWithHeaders(ctx context.Context, key string) (*Channel, *Subscription, *packet.Packet, *packet.Packet, *packet.Packet, []packet.Packet, error) {
	m.mu.RLock()
	c, ok := m.channels[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, nil, nil, nil, nil, newChannelError("join", key, ErrNoSuchChannel)
	}
	sub, metadata, video, audio, gop, err := c.Join(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	return c, sub, metadata, video, audio, gop, nil
}

// Leave detaches sub from key's Channel. The Channel itself lives as long
// as its publisher does; Release tears it down.
func (m *Manager) Leave(key string, sub *Subscription) {
	m.mu.RLock()
	c, ok := m.channels[key]
	m.mu.RUnlock()
	if !ok {
		sub.Close()
		return
	}
	c.Leave(sub)
}

// Stats returns a snapshot of key's Channel, or an empty Stats with
// ErrNoSuchChannel if it has no running Channel.
func (m *Manager) Stats(ctx context.Context, key string) (Stats, error) {
	m.mu.RLock()
	c, ok := m.channels[key]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, newChannelError("stats", key, ErrNoSuchChannel)
	}
	return c.Stats(ctx)
}

// ActiveKeys returns a snapshot of every currently running stream key.
func (m *Manager) ActiveKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.channels))
	for k := range m.channels {
		keys = append(keys, k)
	}
	return keys
}
