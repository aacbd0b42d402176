package server

// This file bridges the RTMP chunk-message wire format to the codec-agnostic
// packet.Packet the streaming fabric broadcasts. Audio/video chunk messages
// (type IDs 8 and 9) carry the exact same FLV tag-body layout packet.Packet
// expects, so the conversion is a relabeling, not a re-encoding.

import (
	"github.com/liveriver/fabric/internal/packet"
	"github.com/liveriver/fabric/internal/rtmp/chunk"
)

// dataMessageAMF0TypeID is the AMF0 data message type (onMetaData and
// similar @setDataFrame payloads carry the stream's metadata Packet).
const dataMessageAMF0TypeID = 18

// chunkToPacket converts an audio/video/data chunk.Message into a fabric
// Packet. ok is false for any message type the fabric doesn't broadcast
// (commands, control messages) — callers should skip those.
func chunkToPacket(msg *chunk.Message) (packet.Packet, bool) {
	var kind packet.Kind
	hasTS := true
	switch msg.TypeID {
	case 8:
		kind = packet.KindAudio
	case 9:
		kind = packet.KindVideo
	case dataMessageAMF0TypeID:
		kind = packet.KindMeta
		hasTS = false
	default:
		return packet.Packet{}, false
	}
	return packet.Packet{
		Kind:      kind,
		Timestamp: msg.Timestamp,
		HasTS:     hasTS,
		Payload:   msg.Payload,
	}, true
}

// packetToChunk converts a fabric Packet back into a chunk.Message addressed
// to msid, the subscriber's negotiated message stream id. csid follows the
// established convention of separating audio (CSID 4) from video (CSID 6).
func packetToChunk(pkt packet.Packet, msid uint32) *chunk.Message {
	var typeID uint8
	var csid uint32
	switch pkt.Kind {
	case packet.KindAudio:
		typeID, csid = 8, 4
	case packet.KindVideo:
		typeID, csid = 9, 6
	case packet.KindMeta:
		typeID, csid = dataMessageAMF0TypeID, 3
	default:
		return nil
	}
	return &chunk.Message{
		CSID:            csid,
		TypeID:          typeID,
		Timestamp:       pkt.Timestamp,
		MessageStreamID: msid,
		MessageLength:   uint32(len(pkt.Payload)),
		Payload:         pkt.Payload,
	}
}
