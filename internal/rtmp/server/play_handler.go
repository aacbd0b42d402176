package server

// Play handling bridges the RTMP "play" command to fabric.Manager.Join: a
// missing Channel gets NetStream.Play.StreamNotFound, a live one gets Stream
// Begin + Play.Start plus the cached sequence headers so the subscriber's
// decoder can start cold.

import (
	"context"
	"fmt"

	rtmperrors "github.com/liveriver/fabric/internal/errors"
	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/logger"
	"github.com/liveriver/fabric/internal/rtmp/amf"
	"github.com/liveriver/fabric/internal/rtmp/chunk"
	"github.com/liveriver/fabric/internal/rtmp/control"
	"github.com/liveriver/fabric/internal/rtmp/rpc"
)

// HandlePlay parses the incoming play command, joins the target Channel
// through the Manager, and sends Stream Begin + onStatus (Play.Start or
// StreamNotFound) plus any cached sequence headers. On success it returns
// the Subscription the caller must forward to the connection and Leave on
// disconnect.
func HandlePlay(mgr *fabric.Manager, conn sender, app string, msg *chunk.Message) (*fabric.Subscription, string, error) {
	if mgr == nil || conn == nil || msg == nil {
		return nil, "", rtmperrors.NewProtocolError("play.handle", fmt.Errorf("nil argument"))
	}

	pcmd, err := rpc.ParsePlayCommand(msg, app)
	if err != nil {
		return nil, "", err
	}

	log := logger.Logger()
	log.Info().Str("stream_key", pcmd.StreamKey).Msg("play command")

	_, sub, metadata, video, audio, gop, err := mgr.JoinWithHeaders(context.Background(), pcmd.StreamKey)
	if err != nil {
		log.Warn().Str("stream_key", pcmd.StreamKey).Msg("play command failed - stream not found")
		notFound, _ := buildOnStatus(msg.MessageStreamID, pcmd.StreamKey, "NetStream.Play.StreamNotFound",
			fmt.Sprintf("Stream %s not found.", pcmd.StreamKey))
		_ = conn.SendMessage(notFound)
		return nil, pcmd.StreamKey, err
	}

	uc := control.EncodeUserControlStreamBegin(msg.MessageStreamID)
	_ = conn.SendMessage(uc)

	started, err := buildOnStatus(msg.MessageStreamID, pcmd.StreamKey, "NetStream.Play.Start", fmt.Sprintf("Started playing %s.", pcmd.StreamKey))
	if err != nil {
		mgr.Leave(pcmd.StreamKey, sub)
		return nil, pcmd.StreamKey, rtmperrors.NewProtocolError("play.handle.encode", err)
	}
	_ = conn.SendMessage(started)

	// Primer order matches the join-kit contract: metadata, then video and
	// audio sequence headers, then the cached GOP, so a decoder sees
	// everything it needs before the live feed resumes.
	if metadata != nil {
		primer := packetToChunk(*metadata, msg.MessageStreamID)
		primer.Timestamp = 0
		_ = conn.SendMessage(primer)
	}
	if video != nil {
		primer := packetToChunk(*video, msg.MessageStreamID)
		primer.Timestamp = 0
		_ = conn.SendMessage(primer)
	}
	if audio != nil {
		primer := packetToChunk(*audio, msg.MessageStreamID)
		primer.Timestamp = 0
		_ = conn.SendMessage(primer)
	}
	for _, pkt := range gop {
		primer := packetToChunk(pkt, msg.MessageStreamID)
		if primer != nil {
			_ = conn.SendMessage(primer)
		}
	}

	return sub, pcmd.StreamKey, nil
}

// buildOnStatus creates an AMF0 onStatus message.
func buildOnStatus(streamID uint32, streamKey, code, description string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "status",
		"code":        code,
		"description": description,
		"details":     streamKey,
	}
	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return nil, err
	}
	return &chunk.Message{
		CSID:            5,
		TypeID:          rpc.CommandMessageAMF0TypeIDForTest(),
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}
