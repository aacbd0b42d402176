package auth

import (
	"context"
	"sync"
)

// MemoryProvider holds an in-process map of stream_name -> expected stream
// key. Used for local development and any deployment that configures keys
// statically rather than through credential_store_url.
type MemoryProvider struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemoryProvider builds a provider seeded from keys (stream_name ->
// stream_key). A nil map is treated as empty.
func NewMemoryProvider(keys map[string]string) *MemoryProvider {
	m := &MemoryProvider{keys: make(map[string]string, len(keys))}
	for k, v := range keys {
		m.keys[k] = v
	}
	return m
}

func (p *MemoryProvider) Authenticate(_ context.Context, streamName, streamKey string) error {
	p.mu.RLock()
	want, ok := p.keys[streamName]
	p.mu.RUnlock()
	if !ok || want != streamKey {
		return newAuthError("authenticate", streamName)
	}
	return nil
}

// SetKey registers or replaces the expected key for streamName.
func (p *MemoryProvider) SetKey(streamName, streamKey string) {
	p.mu.Lock()
	p.keys[streamName] = streamKey
	p.mu.Unlock()
}

// RemoveKey revokes streamName, rejecting any future Create for it.
func (p *MemoryProvider) RemoveKey(streamName string) {
	p.mu.Lock()
	delete(p.keys, streamName)
	p.mu.Unlock()
}
