package egress

// FLV container framing for the HTTP-FLV egress: the 13-byte file
// signature, then per packet an 11-byte tag header, the payload, and a
// 4-byte previous-tag-size trailer. Same layout media.Recorder writes to
// disk, re-expressed over packet.Packet so the HTTP handler can stream a
// fabric subscription without going back through chunk messages.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/liveriver/fabric/internal/packet"
)

// flvSignature is the fixed file header: 'F','L','V', version 1, flags
// 0x05 (audio + video present), data offset 9, then PreviousTagSize0.
var flvSignature = []byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}

// FLVWriter encodes fabric packets as FLV tags onto an io.Writer.
type FLVWriter struct {
	w           io.Writer
	wroteHeader bool
}

// NewFLVWriter returns a writer that emits the FLV signature before the
// first tag.
func NewFLVWriter(w io.Writer) *FLVWriter {
	return &FLVWriter{w: w}
}

// WriteHeader writes the 13-byte signature. It is a no-op after the first
// call; WritePacket calls it implicitly.
func (fw *FLVWriter) WriteHeader() error {
	if fw.wroteHeader {
		return nil
	}
	if _, err := fw.w.Write(flvSignature); err != nil {
		return fmt.Errorf("flv: write signature: %w", err)
	}
	fw.wroteHeader = true
	return nil
}

// tagType maps a packet kind to its FLV tag type byte.
func tagType(kind packet.Kind) (uint8, bool) {
	switch kind {
	case packet.KindAudio:
		return 8, true
	case packet.KindVideo:
		return 9, true
	case packet.KindMeta:
		return 18, true
	default:
		return 0, false
	}
}

// WritePacket emits one tag: header, payload, previous-tag-size trailer.
// Packets of a kind FLV has no tag type for are skipped silently.
func (fw *FLVWriter) WritePacket(pkt packet.Packet) error {
	tt, ok := tagType(pkt.Kind)
	if !ok {
		return nil
	}
	if err := fw.WriteHeader(); err != nil {
		return err
	}
	dataSize := len(pkt.Payload)
	if dataSize > 0xFFFFFF {
		return fmt.Errorf("flv: payload too large: %d", dataSize)
	}
	ts := pkt.Timestamp
	if !pkt.HasTS {
		ts = 0
	}

	var hdr [11]byte
	hdr[0] = tt
	hdr[1] = byte(dataSize >> 16)
	hdr[2] = byte(dataSize >> 8)
	hdr[3] = byte(dataSize)
	hdr[4] = byte(ts >> 16)
	hdr[5] = byte(ts >> 8)
	hdr[6] = byte(ts)
	hdr[7] = byte(ts >> 24) // extended timestamp
	// StreamID bytes 8-10 stay zero.

	if _, err := fw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("flv: write tag header: %w", err)
	}
	if dataSize > 0 {
		if _, err := fw.w.Write(pkt.Payload); err != nil {
			return fmt.Errorf("flv: write tag payload: %w", err)
		}
	}
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], uint32(11+dataSize))
	if _, err := fw.w.Write(trailer[:]); err != nil {
		return fmt.Errorf("flv: write tag trailer: %w", err)
	}
	return nil
}
