package egress

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/packet"
)

func TestFLVWriterSignatureAndTag(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFLVWriter(&buf)

	pkt := packet.Packet{
		Kind:      packet.KindVideo,
		Timestamp: 0x01020304,
		HasTS:     true,
		Payload:   []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xAA},
	}
	if err := fw.WritePacket(pkt); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	out := buf.Bytes()
	if !bytes.Equal(out[:13], flvSignature) {
		t.Fatalf("missing FLV signature, got % x", out[:13])
	}

	hdr := out[13:24]
	if hdr[0] != 9 {
		t.Fatalf("expected video tag type 9, got %d", hdr[0])
	}
	dataSize := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	if dataSize != len(pkt.Payload) {
		t.Fatalf("expected data size %d, got %d", len(pkt.Payload), dataSize)
	}
	// 24-bit timestamp low + 8-bit extended high.
	if hdr[4] != 0x02 || hdr[5] != 0x03 || hdr[6] != 0x04 || hdr[7] != 0x01 {
		t.Fatalf("unexpected timestamp bytes % x", hdr[4:8])
	}
	if hdr[8] != 0 || hdr[9] != 0 || hdr[10] != 0 {
		t.Fatalf("stream id must be zero, got % x", hdr[8:11])
	}

	body := out[24 : 24+dataSize]
	if !bytes.Equal(body, pkt.Payload) {
		t.Fatalf("payload mismatch")
	}

	trailer := binary.BigEndian.Uint32(out[24+dataSize:])
	if trailer != uint32(11+dataSize) {
		t.Fatalf("expected previous tag size %d, got %d", 11+dataSize, trailer)
	}
	if len(out) != 13+11+dataSize+4 {
		t.Fatalf("unexpected trailing bytes, total %d", len(out))
	}
}

func TestFLVWriterMetaHasNoTimestamp(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFLVWriter(&buf)

	pkt := packet.Packet{Kind: packet.KindMeta, Timestamp: 999, HasTS: false, Payload: []byte{0x02}}
	if err := fw.WritePacket(pkt); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	hdr := buf.Bytes()[13:24]
	if hdr[0] != 18 {
		t.Fatalf("expected meta tag type 18, got %d", hdr[0])
	}
	if hdr[4] != 0 || hdr[5] != 0 || hdr[6] != 0 || hdr[7] != 0 {
		t.Fatalf("meta timestamp must be zero, got % x", hdr[4:8])
	}
}

func TestFLVWriterHeaderWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFLVWriter(&buf)
	if err := fw.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := fw.WriteHeader(); err != nil {
		t.Fatalf("write header again: %v", err)
	}
	if buf.Len() != len(flvSignature) {
		t.Fatalf("signature written more than once, got %d bytes", buf.Len())
	}
}

func TestHandleFLVStreamNotFound(t *testing.T) {
	s := NewFLVServer(":0", fabric.NewManager())

	req := httptest.NewRequest(http.MethodGet, "/app/missing.flv", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleFLVOptionsPreflight(t *testing.T) {
	s := NewFLVServer(":0", fabric.NewManager())

	req := httptest.NewRequest(http.MethodOptions, "/app/live1.flv", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS header")
	}
}

// readTag reads one FLV tag off r and returns its type byte and payload.
func readTag(t *testing.T, r io.Reader) (uint8, []byte) {
	t.Helper()
	var hdr [11]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		t.Fatalf("read tag header: %v", err)
	}
	dataSize := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	body := make([]byte, dataSize+4)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read tag body: %v", err)
	}
	return hdr[0], body[:dataSize]
}

func TestHandleFLVStreamPrimerOrder(t *testing.T) {
	mgr := fabric.NewManager()
	ch, pubID, err := mgr.Create(context.Background(), "app/live1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mgr.Release("app/live1", pubID)

	meta := packet.Packet{Kind: packet.KindMeta, Payload: []byte{0x02, 0x00, 0x0A}}
	videoSeq := packet.Packet{Kind: packet.KindVideo, Timestamp: 0, HasTS: true,
		Payload: []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64, 0x00, 0x1F}}
	audioSeq := packet.Packet{Kind: packet.KindAudio, Timestamp: 0, HasTS: true,
		Payload: []byte{0xAF, 0x00, 0x12, 0x10}}
	keyframe := packet.Packet{Kind: packet.KindVideo, Timestamp: 40, HasTS: true,
		Payload: []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x65, 0x88}}

	ch.PushPacket(meta)
	ch.PushPacket(videoSeq)
	ch.PushPacket(audioSeq)
	ch.PushPacket(keyframe)
	// A Stats round-trip drains the inbox, so the cache is settled before
	// the viewer joins.
	if _, err := ch.Stats(context.Background()); err != nil {
		t.Fatalf("stats: %v", err)
	}

	s := NewFLVServer(":0", mgr)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/app/live1.flv", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "video/x-flv" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var sig [13]byte
	if _, err := io.ReadFull(resp.Body, sig[:]); err != nil {
		t.Fatalf("read signature: %v", err)
	}
	if !bytes.Equal(sig[:], flvSignature) {
		t.Fatalf("bad signature % x", sig)
	}

	wantOrder := []struct {
		tagType uint8
		payload []byte
	}{
		{18, meta.Payload},
		{9, videoSeq.Payload},
		{8, audioSeq.Payload},
		{9, keyframe.Payload},
	}
	for i, want := range wantOrder {
		tt, payload := readTag(t, resp.Body)
		if tt != want.tagType {
			t.Fatalf("tag %d: expected type %d, got %d", i, want.tagType, tt)
		}
		if !bytes.Equal(payload, want.payload) {
			t.Fatalf("tag %d: payload mismatch", i)
		}
	}

	// A live packet published after the join arrives next on the stream.
	inter := packet.Packet{Kind: packet.KindVideo, Timestamp: 80, HasTS: true,
		Payload: []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x41, 0x9A}}
	ch.PushPacket(inter)

	tt, payload := readTag(t, resp.Body)
	if tt != 9 {
		t.Fatalf("expected live video tag, got type %d", tt)
	}
	if !bytes.Equal(payload, inter.Payload) {
		t.Fatalf("live payload mismatch")
	}
}
