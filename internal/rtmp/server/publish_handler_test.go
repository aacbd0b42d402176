package server

import (
	"context"
	"testing"

	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/rtmp/amf"
	"github.com/liveriver/fabric/internal/rtmp/chunk"
	"github.com/liveriver/fabric/internal/rtmp/rpc"
)

// stubConn captures the last message sent; it mimics the subset of the
// connection we need (SendMessage). SendMessage always succeeds.
type stubConn struct{ last *chunk.Message }

func (s *stubConn) SendMessage(m *chunk.Message) error { s.last = m; return nil }

// buildPublishMessage builds a minimal AMF0 publish command message for tests.
func buildPublishMessage(streamName string) *chunk.Message {
	payload, _ := amf.EncodeAll("publish", float64(0), nil, streamName, "live")
	return &chunk.Message{TypeID: rpc.CommandMessageAMF0TypeIDForTest(), Payload: payload, MessageLength: uint32(len(payload)), MessageStreamID: 1}
}

func TestHandlePublishSuccess(t *testing.T) {
	mgr := fabric.NewManager()
	sc := &stubConn{}
	msg := buildPublishMessage("testStream")

	ch, pubID, onStatus, err := HandlePublish(mgr, sc, "app", msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch == nil || pubID == "" || onStatus == nil || sc.last == nil {
		t.Fatalf("expected channel, publisher id and onStatus message")
	}

	vals, err := amf.DecodeAll(onStatus.Payload)
	if err != nil {
		t.Fatalf("decode onStatus: %v", err)
	}
	if len(vals) < 4 {
		t.Fatalf("expected >=4 AMF values, got %d", len(vals))
	}
	if vals[0] != "onStatus" {
		t.Fatalf("expected command name onStatus, got %v", vals[0])
	}
	info, _ := vals[3].(map[string]interface{})
	if info["code"] != "NetStream.Publish.Start" {
		t.Fatalf("unexpected status code: %v", info["code"])
	}

	stats, err := mgr.Stats(context.Background(), "app/testStream")
	if err != nil || !stats.Publishing {
		t.Fatalf("expected channel to be publishing, stats=%+v err=%v", stats, err)
	}
}

func TestHandlePublishDuplicate(t *testing.T) {
	mgr := fabric.NewManager()
	first := &stubConn{}
	second := &stubConn{}
	msg := buildPublishMessage("dup")
	if _, _, _, err := HandlePublish(mgr, first, "app", msg); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if _, _, _, err := HandlePublish(mgr, second, "app", msg); err == nil {
		t.Fatalf("expected duplicate publish error")
	}
}

func TestHandlePublishReleaseEndsSession(t *testing.T) {
	mgr := fabric.NewManager()
	sc := &stubConn{}
	msg := buildPublishMessage("gone")
	_, pubID, _, err := HandlePublish(mgr, sc, "app", msg)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	mgr.Release("app/gone", pubID)
	if _, err := mgr.Stats(context.Background(), "app/gone"); err == nil {
		t.Fatalf("expected channel to be reaped after release")
	}
}
