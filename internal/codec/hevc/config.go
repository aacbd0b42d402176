package hevc

import (
	"encoding/binary"
	"fmt"
)

// DCR is the HEVC Decoder Configuration Record (ISO/IEC 14496-15): general
// profile/tier/level fields and the VPS/SPS/PPS parameter sets. Only the
// fields the converter needs are kept; unused profile-compatibility /
// constraint-indicator bits are not round-tripped.
type DCR struct {
	ConfigurationVersion uint8
	GeneralTierFlag      uint8
	GeneralProfileIDC    uint8
	GeneralLevelIDC      uint8
	NALULengthSize       int // 1, 2 or 4
	VPS                  [][]byte
	SPS                  [][]byte
	PPS                  [][]byte
}

// Ready reports whether the record carries VPS, SPS and PPS, the minimum
// HEVC needs to prepend parameter sets ahead of an IRAP access unit.
func (d *DCR) Ready() bool {
	return d != nil && len(d.VPS) > 0 && len(d.SPS) > 0 && len(d.PPS) > 0
}

// ParseDCR decodes an HEVCDecoderConfigurationRecord byte string. Fixed
// fields ahead of the parameter-set arrays are skipped per the 23-byte
// layout defined by ISO/IEC 14496-15; only profile/tier/level and the
// array-count/length fields are interpreted.
func ParseDCR(b []byte) (*DCR, error) {
	if len(b) < 23 {
		return nil, fmt.Errorf("hevc: dcr too short (%d bytes)", len(b))
	}
	version := b[0]
	if version != 1 {
		return nil, fmt.Errorf("hevc: unsupported dcr version %d", version)
	}
	d := &DCR{
		ConfigurationVersion: version,
		GeneralTierFlag:      (b[1] >> 5) & 0x01,
		GeneralProfileIDC:    b[1] & 0x1F,
		GeneralLevelIDC:      b[12],
		NALULengthSize:       int(b[21]&0x03) + 1,
	}
	pos := 22
	numArrays := int(b[pos])
	pos++

	for i := 0; i < numArrays; i++ {
		if pos >= len(b) {
			return nil, fmt.Errorf("hevc: dcr truncated before array header")
		}
		nalType := NALType(b[pos] & 0x3F)
		pos++
		if pos+2 > len(b) {
			return nil, fmt.Errorf("hevc: dcr truncated array count")
		}
		count := int(binary.BigEndian.Uint16(b[pos : pos+2]))
		pos += 2
		for j := 0; j < count; j++ {
			if pos+2 > len(b) {
				return nil, fmt.Errorf("hevc: dcr truncated nal length")
			}
			n := int(binary.BigEndian.Uint16(b[pos : pos+2]))
			pos += 2
			if pos+n > len(b) {
				return nil, fmt.Errorf("hevc: dcr truncated nal data")
			}
			nalu := b[pos : pos+n]
			pos += n
			switch nalType {
			case NALTypeVPS:
				d.VPS = append(d.VPS, nalu)
			case NALTypeSPS:
				d.SPS = append(d.SPS, nalu)
			case NALTypePPS:
				d.PPS = append(d.PPS, nalu)
			}
		}
	}
	return d, nil
}

// Marshal re-encodes the record with one array per parameter-set kind that
// is non-empty, each carrying every stored NAL of that kind.
func (d *DCR) Marshal() []byte {
	out := make([]byte, 22)
	out[0] = 1 // configuration_version
	out[1] = (d.GeneralTierFlag&0x01)<<5 | (d.GeneralProfileIDC & 0x1F)
	out[12] = d.GeneralLevelIDC
	out[21] = 0xFC | byte(d.NALULengthSize-1)

	numArrays := byte(0)
	var arrays []byte
	appendArray := func(t NALType, nalus [][]byte) {
		if len(nalus) == 0 {
			return
		}
		numArrays++
		arrays = append(arrays, byte(t)&0x3F)
		var cnt [2]byte
		binary.BigEndian.PutUint16(cnt[:], uint16(len(nalus)))
		arrays = append(arrays, cnt[:]...)
		for _, n := range nalus {
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(len(n)))
			arrays = append(arrays, lenBuf[:]...)
			arrays = append(arrays, n...)
		}
	}
	appendArray(NALTypeVPS, d.VPS)
	appendArray(NALTypeSPS, d.SPS)
	appendArray(NALTypePPS, d.PPS)

	out = append(out, numArrays)
	out = append(out, arrays...)
	return out
}
