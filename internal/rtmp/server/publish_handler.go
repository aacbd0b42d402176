package server

// Publish handling bridges the RTMP "publish" command to fabric.Manager.Create:
// the publishing name doubles as the credential checked against the
// configured auth.Provider, matching the conventional rtmp://host/app/{key}
// publish URL shape.

import (
	"context"
	"fmt"

	rtmperrors "github.com/liveriver/fabric/internal/errors"
	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/rtmp/amf"
	"github.com/liveriver/fabric/internal/rtmp/chunk"
	"github.com/liveriver/fabric/internal/rtmp/rpc"
)

// sender is the minimal interface required from a connection for this task.
// *conn.Connection satisfies it. We keep it tiny so tests can use a stub.
type sender interface {
	SendMessage(*chunk.Message) error
}

// HandlePublish parses the publish command, authenticates and attaches the
// publisher to its Channel via mgr.Create, and replies with an onStatus
// NetStream.Publish.Start (or the appropriate failure status). It returns
// the channel and publisher id the caller needs to push media packets and
// to Release on disconnect.
func HandlePublish(mgr *fabric.Manager, conn sender, app string, msg *chunk.Message) (*fabric.Channel, string, *chunk.Message, error) {
	if mgr == nil || conn == nil || msg == nil {
		return nil, "", nil, rtmperrors.NewProtocolError("publish.handle", fmt.Errorf("nil argument"))
	}

	pcmd, err := rpc.ParsePublishCommand(app, msg)
	if err != nil {
		return nil, "", nil, err
	}

	ch, pubID, err := mgr.Create(context.Background(), pcmd.StreamKey, pcmd.PublishingName)
	if err != nil {
		notFound, buildErr := buildOnStatus(msg.MessageStreamID, pcmd.StreamKey, "NetStream.Publish.BadName",
			fmt.Sprintf("Publish to %s rejected: %v", pcmd.StreamKey, err))
		if buildErr == nil {
			_ = conn.SendMessage(notFound)
		}
		return nil, "", notFound, err
	}

	info := map[string]interface{}{
		"level":       "status",
		"code":        "NetStream.Publish.Start",
		"description": fmt.Sprintf("Publishing %s.", pcmd.StreamKey),
		"details":     pcmd.StreamKey,
	}

	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return ch, pubID, nil, rtmperrors.NewProtocolError("publish.handle.encode", err)
	}

	onStatus := &chunk.Message{
		CSID:            5,
		TypeID:          rpc.CommandMessageAMF0TypeIDForTest(),
		MessageStreamID: msg.MessageStreamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}
	_ = conn.SendMessage(onStatus)
	return ch, pubID, onStatus, nil
}
