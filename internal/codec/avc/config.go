package avc

import (
	"encoding/binary"
	"fmt"
)

// DCR is the AVC Decoder Configuration Record (ISO/IEC 14496-15):
// version, profile/level fields, the NAL length-prefix size used by AVCC
// framing, and the SPS/PPS parameter sets.
type DCR struct {
	Version              uint8
	ProfileIndication    uint8
	ProfileCompatibility uint8
	LevelIndication      uint8
	NALULengthSize       int // 1, 2 or 4
	SPS                  [][]byte
	PPS                  [][]byte
}

// Ready reports whether the record carries at least one SPS and one PPS,
// the minimum needed to prepend parameter sets ahead of an IDR.
func (d *DCR) Ready() bool {
	return d != nil && len(d.SPS) > 0 && len(d.PPS) > 0
}

// ParseDCR decodes an AVCDecoderConfigurationRecord byte string.
func ParseDCR(b []byte) (*DCR, error) {
	if len(b) < 7 {
		return nil, fmt.Errorf("avc: dcr too short (%d bytes)", len(b))
	}
	version := b[0]
	if version != 1 {
		return nil, fmt.Errorf("avc: unsupported dcr version %d", version)
	}
	d := &DCR{
		Version:              version,
		ProfileIndication:    b[1],
		ProfileCompatibility: b[2],
		LevelIndication:      b[3],
		NALULengthSize:       int(b[4]&0x03) + 1,
	}
	pos := 5
	if pos >= len(b) {
		return nil, fmt.Errorf("avc: dcr truncated before sps count")
	}
	spsCount := int(b[pos] & 0x1F)
	pos++
	for i := 0; i < spsCount; i++ {
		if pos+2 > len(b) {
			return nil, fmt.Errorf("avc: dcr truncated sps length")
		}
		n := int(binary.BigEndian.Uint16(b[pos : pos+2]))
		pos += 2
		if pos+n > len(b) {
			return nil, fmt.Errorf("avc: dcr truncated sps data")
		}
		d.SPS = append(d.SPS, b[pos:pos+n])
		pos += n
	}
	if pos >= len(b) {
		return nil, fmt.Errorf("avc: dcr truncated before pps count")
	}
	ppsCount := int(b[pos])
	pos++
	for i := 0; i < ppsCount; i++ {
		if pos+2 > len(b) {
			return nil, fmt.Errorf("avc: dcr truncated pps length")
		}
		n := int(binary.BigEndian.Uint16(b[pos : pos+2]))
		pos += 2
		if pos+n > len(b) {
			return nil, fmt.Errorf("avc: dcr truncated pps data")
		}
		d.PPS = append(d.PPS, b[pos:pos+n])
		pos += n
	}
	return d, nil
}

// Marshal re-encodes the record, writing every SPS and PPS held in the
// lists in order.
func (d *DCR) Marshal() []byte {
	out := make([]byte, 0, 16)
	out = append(out, d.Version, d.ProfileIndication, d.ProfileCompatibility, d.LevelIndication)
	out = append(out, 0xFC|byte(d.NALULengthSize-1))
	out = append(out, 0xE0|byte(len(d.SPS)))
	for _, sps := range d.SPS {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(sps)))
		out = append(out, lenBuf[:]...)
		out = append(out, sps...)
	}
	out = append(out, byte(len(d.PPS)))
	for _, pps := range d.PPS {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(pps)))
		out = append(out, lenBuf[:]...)
		out = append(out, pps...)
	}
	return out
}
