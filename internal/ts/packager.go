// Package ts assembles MPEG Transport Stream segment files from converted
// Annex-B video and ADTS audio access units: PAT/PMT tables, PES framing
// and 188-byte TS packetization with adaptation-field PCR and stuffing.
package ts

import (
	"fmt"
	"os"
)

// PID allocation.
const (
	PIDPAT   = 0x0000
	PIDPMT   = 0x1000
	PIDVideo = 0x0100
	PIDAudio = 0x0101
)

// Codec selects the PMT stream type advertised for the video elementary
// stream.
type Codec uint8

const (
	CodecAVC Codec = iota
	CodecHEVC
)

// PMT stream_type values.
const (
	StreamTypeAVC  = 0x1B
	StreamTypeHEVC = 0x24
	StreamTypeAAC  = 0x0F
)

const packetSize = 188

// Packager accumulates TS packets for one segment. It is not safe for
// concurrent use; the HLS segmenter owns exactly one Packager per stream.
type Packager struct {
	codec       Codec
	buf         []byte
	continuity  map[uint16]uint8
	pcrWritten  bool
	programNum  uint16
}

// NewPackager returns a Packager with AVC selected as the default codec.
func NewPackager() *Packager {
	p := &Packager{codec: CodecAVC, continuity: make(map[uint16]uint8), programNum: 1}
	p.Reset()
	return p
}

// SetCodec switches the PMT stream_type for the video elementary stream.
func (p *Packager) SetCodec(c Codec) { p.codec = c }

// Reset starts a new segment: clears the buffer, resets the continuity
// counters (monotonic mod 16 within one TS file) and emits a fresh PAT/PMT
// as the first packets of the new file.
func (p *Packager) Reset() {
	p.buf = p.buf[:0]
	p.continuity = make(map[uint16]uint8)
	p.pcrWritten = false
	p.writePAT()
	p.writePMT()
}

// Size returns the number of bytes buffered for the current segment.
func (p *Packager) Size() int { return len(p.buf) }

// PushVideo appends one access unit's worth of Annex-B NALs as a video PES.
// PTS = (ptsMS + compOffsetMS) * 90; DTS = ptsMS * 90 when compOffsetMS != 0,
// otherwise the PES carries PTS only. The first video packet of a segment
// carries the PCR in its adaptation field.
func (p *Packager) PushVideo(ptsMS uint32, compOffsetMS int32, keyframe bool, annexb []byte) error {
	if len(annexb) == 0 {
		return fmt.Errorf("ts: empty video access unit")
	}
	pts := (uint64(int64(ptsMS)+int64(compOffsetMS))) * 90
	var dts uint64
	hasDTS := compOffsetMS != 0
	if hasDTS {
		dts = uint64(ptsMS) * 90
	} else {
		dts = pts
	}
	pes := buildPES(0xE0, pts, dts, hasDTS, annexb)
	wantPCR := !p.pcrWritten
	p.writePES(PIDVideo, pes, wantPCR, pts)
	if wantPCR {
		p.pcrWritten = true
	}
	return nil
}

// PushAudio appends one ADTS-wrapped AAC frame as an audio PES (PTS only).
func (p *Packager) PushAudio(ptsMS uint32, adts []byte) error {
	if len(adts) == 0 {
		return fmt.Errorf("ts: empty audio frame")
	}
	pts := uint64(ptsMS) * 90
	pes := buildPES(0xC0, pts, 0, false, adts)
	p.writePES(PIDAudio, pes, false, pts)
	return nil
}

// WriteToFile flushes the buffered packets to path. The file is written to
// a temporary sibling and renamed into place so that a concurrent reader
// opening path never observes a partial file.
func (p *Packager) WriteToFile(path string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, p.buf, 0o644); err != nil {
		return fmt.Errorf("ts: write segment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ts: finalize segment: %w", err)
	}
	return nil
}

func (p *Packager) streamType() byte {
	if p.codec == CodecHEVC {
		return StreamTypeHEVC
	}
	return StreamTypeAVC
}

func (p *Packager) nextContinuity(pid uint16) uint8 {
	cc := p.continuity[pid]
	p.continuity[pid] = (cc + 1) & 0x0F
	return cc
}
