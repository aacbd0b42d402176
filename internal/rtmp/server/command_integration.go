package server

// Command Integration
// --------------------
// Bridges the lower-level connection (handshake + control + chunking
// read/write loops) to the streaming fabric: connect/createStream get the
// canonical AMF0 responses, publish attaches to (or creates) a
// fabric.Channel via HandlePublish, play joins one via HandlePlay, and raw
// audio/video chunk messages are relayed through the Channel (and, when
// configured, a recorder and the multi-destination relay) until the
// connection closes.

import (
	"log/slog"
	"time"

	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/rtmp/chunk"
	iconn "github.com/liveriver/fabric/internal/rtmp/conn"
	"github.com/liveriver/fabric/internal/rtmp/control"
	"github.com/liveriver/fabric/internal/rtmp/media"
	"github.com/liveriver/fabric/internal/rtmp/relay"
	"github.com/liveriver/fabric/internal/rtmp/rpc"
)

// streamCodecState is the minimal media.CodecStore fed to the one-shot
// codec detector for a single publisher's connection. It exists to surface
// the detected codec names in logs; the fabric Channel itself stays
// codec-agnostic and leaves codec parsing to its egress consumers.
type streamCodecState struct {
	key          string
	audio, video string
}

func (s *streamCodecState) SetAudioCodec(c string) { s.audio = c }
func (s *streamCodecState) SetVideoCodec(c string) { s.video = c }
func (s *streamCodecState) GetAudioCodec() string  { return s.audio }
func (s *streamCodecState) GetVideoCodec() string  { return s.video }
func (s *streamCodecState) StreamKey() string      { return s.key }

// commandState holds mutable per-connection fields needed by handlers.
type commandState struct {
	app       string
	streamKey string
	pubID     string
	streamID  uint32
	ch        *fabric.Channel

	allocator     *rpc.StreamIDAllocator
	mediaLogger   *MediaLogger
	codecDetector *media.CodecDetector
	codecState    *streamCodecState
}

// attachCommandHandling installs a dispatcher-backed message handler on the
// provided connection. Safe to call immediately after Accept returns, and
// must be called before c.Start() so no message races the handler install.
func attachCommandHandling(c *iconn.Connection, mgr *fabric.Manager, cfg *Config, log *slog.Logger, destMgr *relay.DestinationManager, srv *Server) {
	if c == nil || mgr == nil || cfg == nil {
		return
	}
	st := &commandState{
		allocator:     rpc.NewStreamIDAllocator(),
		mediaLogger:   NewMediaLogger(c.ID(), log, 30*time.Second),
		codecDetector: &media.CodecDetector{},
	}

	d := rpc.NewDispatcher(func() string { return st.app })

	d.OnConnect = func(cc *rpc.ConnectCommand, msg *chunk.Message) error {
		st.app = cc.App
		resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connection succeeded.")
		if err != nil {
			log.Error("connect response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("connect response send failed", "error", err)
		} else {
			log.Info("connect response sent", "app", cc.App)
		}
		return nil
	}

	d.OnCreateStream = func(cs *rpc.CreateStreamCommand, msg *chunk.Message) error {
		resp, streamID, err := rpc.BuildCreateStreamResponse(cs.TransactionID, st.allocator)
		if err != nil {
			log.Error("createStream response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("createStream response send failed", "error", err)
		} else {
			log.Info("createStream response sent", "stream_id", streamID, "txn_id", cs.TransactionID)
		}

		streamBegin := control.EncodeUserControlStreamBegin(streamID)
		if err := c.SendMessage(streamBegin); err != nil {
			log.Error("StreamBegin send failed", "error", err, "stream_id", streamID)
		}
		return nil
	}

	d.OnPublish = func(pc *rpc.PublishCommand, msg *chunk.Message) error {
		ch, pubID, _, err := HandlePublish(mgr, c, st.app, msg)
		if err != nil {
			log.Error("publish rejected", "error", err, "stream_key", pc.StreamKey)
			return nil
		}

		st.streamKey = pc.StreamKey
		st.pubID = pubID
		st.ch = ch
		st.codecState = &streamCodecState{key: pc.StreamKey}

		if cfg.RecordAll && srv != nil {
			if err := srv.startRecorder(pc.StreamKey, cfg.RecordDir, log); err != nil {
				log.Error("failed to create recorder", "error", err, "stream_key", pc.StreamKey)
			} else {
				log.Info("recording started", "stream_key", pc.StreamKey, "record_dir", cfg.RecordDir)
			}
		}
		return nil
	}

	d.OnPlay = func(pl *rpc.PlayCommand, msg *chunk.Message) error {
		sub, streamKey, err := HandlePlay(mgr, c, st.app, msg)
		if err != nil {
			log.Error("play rejected", "error", err, "stream_key", streamKey)
			return nil
		}
		st.streamKey = streamKey
		st.streamID = msg.MessageStreamID
		go forwardSubscription(c, mgr, sub, streamKey, msg.MessageStreamID, log)
		return nil
	}

	c.SetMessageHandler(func(m *chunk.Message) {
		if m == nil {
			return
		}

		if m.TypeID == 8 || m.TypeID == 9 {
			st.mediaLogger.ProcessMessage(m)

			if st.ch == nil {
				return
			}
			if st.codecState != nil {
				st.codecDetector.Process(m.TypeID, m.Payload, st.codecState, log)
			}
			if srv != nil {
				srv.writeRecorder(st.streamKey, m, log)
			}
			if destMgr != nil {
				destMgr.RelayMessage(m)
			}
			if pkt, ok := chunkToPacket(m); ok {
				st.ch.PushPacket(pkt)
			}
			return
		}

		if m.TypeID == dataMessageAMF0TypeID {
			if st.ch == nil {
				return
			}
			if pkt, ok := chunkToPacket(m); ok {
				st.ch.PushPacket(pkt)
			}
			return
		}

		if m.TypeID != rpc.CommandMessageAMF0TypeIDForTest() {
			return
		}
		if err := d.Dispatch(m); err != nil {
			log.Error("dispatch error", "error", err)
		}
	})

	go func() {
		<-c.Done()
		if st.ch != nil && st.pubID != "" {
			mgr.Release(st.streamKey, st.pubID)
		}
		if srv != nil && st.streamKey != "" {
			srv.closeRecorder(st.streamKey, log)
		}
	}()
}

// forwardSubscription pumps one subscriber's fabric feed back out over the
// RTMP connection, addressed to the message stream id negotiated at
// createStream time, until either the feed or the connection closes.
func forwardSubscription(c *iconn.Connection, mgr *fabric.Manager, sub *fabric.Subscription, streamKey string, streamID uint32, log *slog.Logger) {
	defer mgr.Leave(streamKey, sub)
	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			msg := packetToChunk(env.Packet, streamID)
			if msg == nil {
				continue
			}
			if err := c.SendMessage(msg); err != nil {
				log.Debug("subscriber send failed", "error", err, "stream_key", streamKey)
				return
			}
		case <-c.Done():
			return
		}
	}
}
