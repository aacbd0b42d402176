package egress

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/liveriver/fabric/internal/hls"
)

func TestHandlePlaylistRenders(t *testing.T) {
	dir := t.TempDir()
	playlist := hls.NewPlaylistService(dir, 0, 0, 0)
	playlist.SegmentReady("app/live1", 1000, 5)

	s := NewServer(":0", playlist)

	req := httptest.NewRequest(http.MethodGet, "/app/live1.m3u8", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS header")
	}
}

func TestHandlePlaylistNotFound(t *testing.T) {
	s := NewServer(":0", hls.NewPlaylistService(t.TempDir(), 0, 0, 0))

	req := httptest.NewRequest(http.MethodGet, "/app/missing.m3u8", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandlePlaylistOptionsPreflight(t *testing.T) {
	s := NewServer(":0", hls.NewPlaylistService(t.TempDir(), 0, 0, 0))

	req := httptest.NewRequest(http.MethodOptions, "/app/live1.m3u8", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestHandleSegmentServesFile(t *testing.T) {
	dir := t.TempDir()
	playlist := hls.NewPlaylistService(dir, 0, 0, 0)
	playlist.SegmentReady("app/live1", 1000, 5)

	segDir := filepath.Join(dir, "app/live1")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(segDir, "1000.ts"), []byte("tsdata"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	s := NewServer(":0", playlist)

	req := httptest.NewRequest(http.MethodGet, "/app/live1/1000.ts", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "tsdata" {
		t.Fatalf("unexpected segment body %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestHandleSegmentNotFound(t *testing.T) {
	dir := t.TempDir()
	playlist := hls.NewPlaylistService(dir, 0, 0, 0)
	playlist.SegmentReady("app/live1", 1000, 5)

	s := NewServer(":0", playlist)

	req := httptest.NewRequest(http.MethodGet, "/app/live1/9999.ts", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
