// Package hls turns a Channel's broadcast into a sliding window of MPEG-TS
// segment files and the playlist that advertises them.
package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/liveriver/fabric/internal/logger"
)

// DefaultMaxSegments is the sliding-window size per stream.
const DefaultMaxSegments = 6

// DefaultDeleteGrace is how long a popped segment's file is kept on disk
// before deletion, so an in-flight GET isn't yanked out from under a
// client.
const DefaultDeleteGrace = 5 * time.Second

// DefaultStreamTTL is how long a stream may go unfetched before the
// sweeper drops it from the playlist service entirely.
const DefaultStreamTTL = 5 * time.Minute

// Segment is one entry in a stream's sliding window: the Unix-second
// timestamp that names its .ts file, and its integer-second duration.
type Segment struct {
	Timestamp int64
	Duration  uint8
}

type streamState struct {
	mu           sync.RWMutex
	segments     []Segment
	mediaSeq     uint32
	lastAccess   time.Time
}

// PlaylistService holds the in-memory sliding window of segments per
// stream and renders `.m3u8` playlists on demand. It owns no network
// surface itself; the HTTP layer calls into it.
type PlaylistService struct {
	dataPath    string
	maxSegments int
	deleteGrace time.Duration
	streamTTL   time.Duration

	mu      sync.RWMutex
	streams map[string]*streamState

	stopSweep chan struct{}
}

// NewPlaylistService returns a PlaylistService rooted at dataPath. Pass
// zero for maxSegments/deleteGrace/streamTTL to use their defaults.
func NewPlaylistService(dataPath string, maxSegments int, deleteGrace, streamTTL time.Duration) *PlaylistService {
	if maxSegments <= 0 {
		maxSegments = DefaultMaxSegments
	}
	if deleteGrace <= 0 {
		deleteGrace = DefaultDeleteGrace
	}
	if streamTTL <= 0 {
		streamTTL = DefaultStreamTTL
	}
	return &PlaylistService{
		dataPath:    dataPath,
		maxSegments: maxSegments,
		deleteGrace: deleteGrace,
		streamTTL:   streamTTL,
		streams:     make(map[string]*streamState),
		stopSweep:   make(chan struct{}),
	}
}

// StartSweeper runs the TTL sweeper on a background tick until Stop is
// called.
func (p *PlaylistService) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.sweep()
			case <-p.stopSweep:
				return
			}
		}
	}()
}

// Stop halts the sweeper goroutine.
func (p *PlaylistService) Stop() { close(p.stopSweep) }

func (p *PlaylistService) sweep() {
	now := time.Now()
	p.mu.Lock()
	var expired []string
	for name, st := range p.streams {
		st.mu.RLock()
		stale := now.Sub(st.lastAccess) > p.streamTTL
		st.mu.RUnlock()
		if stale {
			expired = append(expired, name)
			delete(p.streams, name)
		}
	}
	p.mu.Unlock()
	for _, name := range expired {
		logger.Logger().Info().Str("stream", name).Msg("hls playlist ttl expired")
	}
}

func (p *PlaylistService) stateFor(streamName string) *streamState {
	p.mu.RLock()
	st, ok := p.streams[streamName]
	p.mu.RUnlock()
	if ok {
		return st
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.streams[streamName]; ok {
		return st
	}
	st = &streamState{lastAccess: time.Now()}
	p.streams[streamName] = st
	return st
}

// SegmentReady registers a newly written segment for streamName, evicting
// the oldest segment (and scheduling its file for deletion) if the window
// is now over capacity.
func (p *PlaylistService) SegmentReady(streamName string, timestamp int64, duration uint8) {
	st := p.stateFor(streamName)
	st.mu.Lock()
	st.segments = append(st.segments, Segment{Timestamp: timestamp, Duration: duration})
	st.mediaSeq++
	var evicted *Segment
	if len(st.segments) > p.maxSegments {
		ev := st.segments[0]
		evicted = &ev
		st.segments = st.segments[1:]
	}
	st.mu.Unlock()

	if evicted != nil {
		path := filepath.Join(p.dataPath, streamName, fmt.Sprintf("%d.ts", evicted.Timestamp))
		time.AfterFunc(p.deleteGrace, func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Logger().Warn().Str("path", path).Err(err).Msg("failed to delete expired hls segment")
			}
		})
	}
}

// RemoveStream drops streamName's window immediately, used when a
// publisher disconnects and the segmenter flushes its final segment. The
// window's remaining files are deleted after the same grace the eviction
// path gives an in-flight download.
func (p *PlaylistService) RemoveStream(streamName string) {
	p.mu.Lock()
	st, ok := p.streams[streamName]
	delete(p.streams, streamName)
	p.mu.Unlock()
	if !ok {
		return
	}

	st.mu.RLock()
	segments := append([]Segment(nil), st.segments...)
	st.mu.RUnlock()
	for _, s := range segments {
		path := filepath.Join(p.dataPath, streamName, fmt.Sprintf("%d.ts", s.Timestamp))
		time.AfterFunc(p.deleteGrace, func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Logger().Warn().Str("path", path).Err(err).Msg("failed to delete expired hls segment")
			}
		})
	}
}

// ErrStreamNotFound is returned by RenderPlaylist and SegmentPath for a
// stream name the playlist service holds no window for (never seen, removed
// or expired), and by SegmentPath for a segment not in the window.
var ErrStreamNotFound = fmt.Errorf("hls: stream not found")

// RenderPlaylist touches streamName's last-access time and renders its
// current sliding window as an HLS media playlist.
func (p *PlaylistService) RenderPlaylist(streamName string) (string, error) {
	p.mu.RLock()
	st, ok := p.streams[streamName]
	p.mu.RUnlock()
	if !ok {
		return "", ErrStreamNotFound
	}

	st.mu.Lock()
	st.lastAccess = time.Now()
	segments := append([]Segment(nil), st.segments...)
	mediaSeq := st.mediaSeq - uint32(len(segments)) + 1
	if len(segments) == 0 {
		mediaSeq = st.mediaSeq
	}
	st.mu.Unlock()

	var target uint8
	for _, s := range segments {
		if s.Duration > target {
			target = s.Duration
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", target)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSeq)
	fmt.Fprintf(&b, "#EXT-X-PLAYLIST-TYPE:LIVE\n")
	for _, s := range segments {
		fmt.Fprintf(&b, "#EXTINF:%d.000\n", s.Duration)
		fmt.Fprintf(&b, "%s/%d.ts\n", streamName, s.Timestamp)
	}
	return b.String(), nil
}

// SegmentPath resolves the on-disk path for one of streamName's segments,
// touching last-access, or ErrStreamNotFound if the stream/segment is not
// currently in the window.
func (p *PlaylistService) SegmentPath(streamName string, timestamp int64) (string, error) {
	p.mu.RLock()
	st, ok := p.streams[streamName]
	p.mu.RUnlock()
	if !ok {
		return "", ErrStreamNotFound
	}
	st.mu.Lock()
	st.lastAccess = time.Now()
	present := false
	for _, s := range st.segments {
		if s.Timestamp == timestamp {
			present = true
			break
		}
	}
	st.mu.Unlock()
	if !present {
		return "", ErrStreamNotFound
	}
	return filepath.Join(p.dataPath, streamName, fmt.Sprintf("%d.ts", timestamp)), nil
}
