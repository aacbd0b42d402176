package egress

// HTTP-FLV egress: GET /{app}.flv (or /{app}/{key}.flv) joins the stream's
// Channel and streams the FLV signature, the join-kit primer (metadata,
// sequence headers, cached GOP), then the live broadcast tail as chunked
// FLV tags until the client disconnects or the publisher ends the stream.

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/logger"
	"github.com/liveriver/fabric/internal/packet"
)

// FLVServer serves live streams as chunked HTTP-FLV out of a
// fabric.Manager.
type FLVServer struct {
	addr   string
	mgr    *fabric.Manager
	router *mux.Router
	srv    *http.Server

	mu      sync.Mutex
	viewers map[string][]chan struct{}
}

// NewFLVServer returns a server bound to addr that joins streams through
// mgr. Call Start to register its unpublish trigger and begin listening.
func NewFLVServer(addr string, mgr *fabric.Manager) *FLVServer {
	s := &FLVServer{
		addr:    addr,
		mgr:     mgr,
		router:  mux.NewRouter(),
		viewers: make(map[string][]chan struct{}),
	}
	s.router.HandleFunc("/{app}.flv", s.handleStream).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/{app}/{key}.flv", s.handleStream).Methods(http.MethodGet, http.MethodOptions)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start registers the unpublish trigger that ends in-flight responses when
// a publisher disconnects, then begins serving in a background goroutine.
func (s *FLVServer) Start() error {
	s.mgr.RegisterTrigger(fabric.TriggerUnpublish, func(_ context.Context, tc fabric.TriggerContext) {
		s.closeViewers(tc.StreamKey)
	})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger().Error().Err(err).Str("addr", s.addr).Msg("http-flv server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server and ends every in-flight
// stream response.
func (s *FLVServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	for key, chans := range s.viewers {
		for _, ch := range chans {
			close(ch)
		}
		delete(s.viewers, key)
	}
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

func (s *FLVServer) addViewer(streamKey string) chan struct{} {
	stop := make(chan struct{})
	s.mu.Lock()
	s.viewers[streamKey] = append(s.viewers[streamKey], stop)
	s.mu.Unlock()
	return stop
}

func (s *FLVServer) removeViewer(streamKey string, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chans := s.viewers[streamKey]
	for i, ch := range chans {
		if ch == stop {
			s.viewers[streamKey] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.viewers[streamKey]) == 0 {
		delete(s.viewers, streamKey)
	}
}

func (s *FLVServer) closeViewers(streamKey string) {
	s.mu.Lock()
	chans := s.viewers[streamKey]
	delete(s.viewers, streamKey)
	s.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

func (s *FLVServer) handleStream(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	streamKey := streamKeyFromVars(mux.Vars(r))
	log := logger.WithStream(*logger.Logger(), streamKey)

	_, sub, metadata, video, audio, gop, err := s.mgr.JoinWithHeaders(r.Context(), streamKey)
	if err != nil {
		if errors.Is(err, fabric.ErrNoSuchChannel) {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer s.mgr.Leave(streamKey, sub)

	stop := s.addViewer(streamKey)
	defer s.removeViewer(streamKey, stop)

	w.Header().Set("Content-Type", "video/x-flv")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	fw := NewFLVWriter(w)
	if err := fw.WriteHeader(); err != nil {
		return
	}

	// Primer order matches the join-kit contract: metadata, then video and
	// audio sequence headers with zeroed timestamps, then the cached GOP
	// with its real timestamps.
	for _, hdr := range []*packet.Packet{metadata, video, audio} {
		if hdr == nil {
			continue
		}
		primer := *hdr
		primer.Timestamp = 0
		if err := fw.WritePacket(primer); err != nil {
			return
		}
	}
	for _, pkt := range gop {
		if err := fw.WritePacket(pkt); err != nil {
			return
		}
	}
	if flusher != nil {
		flusher.Flush()
	}

	var lagged uint64
	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if err := fw.WritePacket(env.Packet); err != nil {
				log.Debug().Err(err).Msg("http-flv viewer write failed")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if n := sub.Lagged(); n > lagged {
				log.Warn().Uint64("dropped", n-lagged).Msg("http-flv viewer lagging")
				lagged = n
			}
		case <-stop:
			return
		case <-r.Context().Done():
			return
		}
	}
}
