package hls

import (
	"context"
	"sync"
	"time"

	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/logger"
)

// Service wires a PlaylistService to a fabric.Manager: it spawns one
// segmenter writer per stream when the Manager's create_session trigger
// fires, and stops it when the publisher disconnects.
type Service struct {
	mgr      *fabric.Manager
	playlist *PlaylistService
	dataPath string
	segmentD time.Duration

	mu      sync.Mutex
	stopped map[string]chan struct{}
}

// NewService returns a Service that has not yet registered its triggers;
// call Start to begin spawning segmenters.
func NewService(mgr *fabric.Manager, playlist *PlaylistService, dataPath string, segmentDuration time.Duration) *Service {
	return &Service{
		mgr:      mgr,
		playlist: playlist,
		dataPath: dataPath,
		segmentD: segmentDuration,
		stopped:  make(map[string]chan struct{}),
	}
}

// Start registers the Manager triggers that drive segmenter lifecycle.
func (s *Service) Start() {
	s.mgr.RegisterTrigger(fabric.TriggerCreateSession, func(_ context.Context, tc fabric.TriggerContext) {
		s.spawn(tc.StreamKey)
	})
	s.mgr.RegisterTrigger(fabric.TriggerUnpublish, func(_ context.Context, tc fabric.TriggerContext) {
		s.stop(tc.StreamKey)
	})
}

func (s *Service) spawn(streamKey string) {
	stopped := make(chan struct{})
	s.mu.Lock()
	s.stopped[streamKey] = stopped
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.stopped, streamKey)
			s.mu.Unlock()
		}()

		ctx := context.Background()
		_, sub, _, videoHdr, audioHdr, gop, err := s.mgr.JoinWithHeaders(ctx, streamKey)
		if err != nil {
			logger.Logger().Warn().Str("stream_key", streamKey).Err(err).Msg("hls segmenter failed to join channel")
			return
		}
		defer s.mgr.Leave(streamKey, sub)

		w := newWriter(streamKey, s.dataPath, s.segmentD, s.playlist)
		w.primeJoin(videoHdr, audioHdr, gop)
		w.run(sub, stopped)
		s.playlist.RemoveStream(streamKey)
	}()
}

func (s *Service) stop(streamKey string) {
	s.mu.Lock()
	stopped, ok := s.stopped[streamKey]
	s.mu.Unlock()
	if !ok {
		return
	}
	close(stopped)
}
