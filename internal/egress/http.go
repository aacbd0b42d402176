// Package egress exposes the streaming fabric over HTTP: the HLS
// sliding-window playlist with the MPEG-TS segments it references, and the
// chunked HTTP-FLV live stream.
package egress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/liveriver/fabric/internal/hls"
	"github.com/liveriver/fabric/internal/logger"
)

// Server is the HLS HTTP surface: one gorilla/mux router in front of a
// PlaylistService, with no state of its own.
type Server struct {
	addr     string
	playlist *hls.PlaylistService
	router   *mux.Router
	srv      *http.Server
}

// NewServer returns a Server bound to addr (e.g. ":8080") that renders
// playlists and serves segments out of playlist.
func NewServer(addr string, playlist *hls.PlaylistService) *Server {
	s := &Server{addr: addr, playlist: playlist, router: mux.NewRouter()}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/{app}.m3u8", s.handlePlaylist).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/{app}/{key}.m3u8", s.handlePlaylist).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/{app}/{key}/{stem}.ts", s.handleSegment).Methods(http.MethodGet, http.MethodOptions)
}

// Start begins serving in a background goroutine. Call Stop to shut down.
func (s *Server) Start() error {
	ln := s.srv.Addr
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger().Error().Err(err).Str("addr", ln).Msg("hls http server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func streamKeyFromVars(vars map[string]string) string {
	app := vars["app"]
	if key := vars["key"]; key != "" {
		return app + "/" + key
	}
	return app
}

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	vars := mux.Vars(r)
	streamKey := streamKeyFromVars(vars)

	body, err := s.playlist.RenderPlaylist(streamKey)
	if errors.Is(err, hls.ErrStreamNotFound) {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(body))
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	vars := mux.Vars(r)
	streamKey := streamKeyFromVars(vars)

	stamp, ok := parseSegmentStem(vars["stem"])
	if !ok {
		http.Error(w, "invalid segment name", http.StatusBadRequest)
		return
	}

	path, err := s.playlist.SegmentPath(streamKey, stamp)
	if errors.Is(err, hls.ErrStreamNotFound) {
		http.Error(w, "segment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, path)
}

func parseSegmentStem(stem string) (int64, bool) {
	if stem == "" {
		return 0, false
	}
	var n int64
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}
	return n, true
}

