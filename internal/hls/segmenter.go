package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/liveriver/fabric/internal/codec/aac"
	"github.com/liveriver/fabric/internal/codec/avc"
	"github.com/liveriver/fabric/internal/codec/hevc"
	"github.com/liveriver/fabric/internal/fabric"
	"github.com/liveriver/fabric/internal/logger"
	"github.com/liveriver/fabric/internal/packet"
	"github.com/liveriver/fabric/internal/ts"
)

// DefaultSegmentDuration is the target wall-clock length of one TS
// segment.
const DefaultSegmentDuration = 5 * time.Second

// videoConverter is satisfied by both avc.Converter and hevc.Converter.
type videoConverter interface {
	Ready() bool
	SetSequenceHeader([]byte) error
	ToAnnexB(payload []byte, keyframe bool) ([]byte, error)
}

// audioConverter is satisfied by aac.Converter.
type audioConverter interface {
	Ready() bool
	SetSequenceHeader([]byte) error
	ToADTS(raw []byte) ([]byte, error)
}

// writer is one stream's HLS segmenter: it owns a single codec converter
// pair and TS packager and runs entirely on the goroutine that calls run,
// so none of its fields need synchronization.
type writer struct {
	streamKey string
	dataPath  string
	segmentD  time.Duration
	playlist  *PlaylistService
	log       zerolog.Logger

	video videoConverter
	audio audioConverter
	pkg   *ts.Packager

	nextCutTime time.Time
	cutStart    time.Time
	sawKeyframe bool
}

func newWriter(streamKey, dataPath string, segmentDuration time.Duration, playlist *PlaylistService) *writer {
	if segmentDuration <= 0 {
		segmentDuration = DefaultSegmentDuration
	}
	now := time.Now()
	return &writer{
		streamKey:   streamKey,
		dataPath:    dataPath,
		segmentD:    segmentDuration,
		playlist:    playlist,
		log:         logger.WithStream(*logger.Logger(), streamKey),
		video:       avc.NewConverter(),
		audio:       aac.NewConverter(),
		pkg:         ts.NewPackager(),
		nextCutTime: now.Add(segmentDuration),
		cutStart:    now,
	}
}

// primeJoin seeds the converters from a late-join Channel's cached sequence
// headers, then replays the cached GOP through the same path so the first
// segment this writer ever cuts opens on the current keyframe instead of
// waiting for the next one.
func (w *writer) primeJoin(video, audioHdr *packet.Packet, gop []packet.Packet) {
	if video != nil {
		w.handleVideo(*video)
	}
	if audioHdr != nil {
		w.handleAudio(*audioHdr)
	}
	for _, pkt := range gop {
		w.handleVideo(pkt)
	}
}

// run consumes envelopes from sub until stopped is closed or the broadcast
// itself closes (the publisher disconnected) and flushes a final short
// segment on exit.
func (w *writer) run(sub *fabric.Subscription, stopped <-chan struct{}) {
	now := time.Now()
	w.nextCutTime = now.Add(w.segmentD)
	w.cutStart = now

	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				w.flushFinal()
				return
			}
			switch env.Packet.Kind {
			case packet.KindVideo:
				w.handleVideo(env.Packet)
			case packet.KindAudio:
				w.handleAudio(env.Packet)
			}
		case <-stopped:
			w.flushFinal()
			return
		}
	}
}

func (w *writer) handleVideo(pkt packet.Packet) {
	hdr, err := packet.ParseVideoHeader(pkt.Payload)
	if err != nil {
		return
	}
	body := pkt.Payload[hdr.BodyOffset:]

	if hdr.PacketType == packet.VideoPacketSequenceHeader {
		if hdr.Codec == packet.VideoCodecHEVC {
			w.video = hevc.NewConverter()
			w.pkg.SetCodec(ts.CodecHEVC)
		} else {
			w.pkg.SetCodec(ts.CodecAVC)
		}
		if err := w.video.SetSequenceHeader(body); err != nil {
			w.log.Warn().Err(err).Msg("failed to parse video sequence header")
		}
		return
	}
	if !w.video.Ready() {
		return
	}

	annexb, err := w.video.ToAnnexB(body, hdr.Keyframe)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to convert video packet to annex-b")
		return
	}

	if hdr.Keyframe && !time.Now().Before(w.nextCutTime) {
		w.cut()
	}
	if hdr.Keyframe {
		w.sawKeyframe = true
	}

	if err := w.pkg.PushVideo(pkt.Timestamp, hdr.CompositionOffsetMS, hdr.Keyframe, annexb); err != nil {
		w.log.Warn().Err(err).Msg("failed to push video access unit to ts packager")
	}
}

func (w *writer) handleAudio(pkt packet.Packet) {
	hdr, err := packet.ParseAudioHeader(pkt.Payload)
	if err != nil || hdr.Codec != packet.AudioCodecAAC {
		// Only AAC is muxed into the TS audio elementary stream.
		return
	}
	body := pkt.Payload[hdr.BodyOffset:]

	if hdr.PacketType == packet.AudioPacketSequenceHeader {
		if err := w.audio.SetSequenceHeader(body); err != nil {
			w.log.Warn().Err(err).Msg("failed to parse audio sequence header")
		}
		return
	}
	if !w.audio.Ready() || !w.sawKeyframe {
		// Drop audio ahead of the first video keyframe in this segment's
		// writer lifetime so every segment opens on a video access unit.
		return
	}

	adts, err := w.audio.ToADTS(body)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to wrap audio frame in adts")
		return
	}
	if err := w.pkg.PushAudio(pkt.Timestamp, adts); err != nil {
		w.log.Warn().Err(err).Msg("failed to push audio frame to ts packager")
	}
}

// cut flushes the current segment (if it carries any media beyond the
// PAT/PMT header) and starts a fresh one.
func (w *writer) cut() {
	duration := time.Since(w.cutStart)
	w.flush(w.cutStart.Unix(), durationSeconds(duration))
	w.nextCutTime = time.Now().Add(w.segmentD)
	w.cutStart = time.Now()
}

func (w *writer) flushFinal() {
	if !w.sawKeyframe {
		return
	}
	w.flush(w.cutStart.Unix(), durationSeconds(time.Since(w.cutStart)))
}

func (w *writer) flush(stamp int64, duration uint8) {
	dir := filepath.Join(w.dataPath, w.streamKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Error().Err(err).Str("dir", dir).Msg("failed to create hls segment directory")
		w.pkg.Reset()
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.ts", stamp))
	if err := w.pkg.WriteToFile(path); err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("failed to write hls segment")
		w.pkg.Reset()
		return
	}
	w.playlist.SegmentReady(w.streamKey, stamp, duration)
	w.pkg.Reset()
}

func durationSeconds(d time.Duration) uint8 {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs > 255 {
		secs = 255
	}
	return uint8(secs)
}
