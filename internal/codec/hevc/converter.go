package hevc

import (
	"fmt"

	"github.com/liveriver/fabric/internal/codec"
	"github.com/liveriver/fabric/internal/codec/bitstream"
)

var annexBStartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
var annexBStartCode3 = []byte{0x00, 0x00, 0x01}

// Converter is the HEVC bitstream state machine, mirroring avc.Converter
// but tracking VPS in addition to SPS/PPS and recognizing NAL types 16-23
// as keyframes.
type Converter struct {
	dcr *DCR
}

// NewConverter returns a fresh Initializing converter.
func NewConverter() *Converter { return &Converter{} }

// Ready reports whether a usable DCR has been observed.
func (c *Converter) Ready() bool { return c.dcr.Ready() }

// DCR returns the current decoder configuration record, or nil while
// Initializing.
func (c *Converter) DCR() *DCR { return c.dcr }

// SetSequenceHeader parses an HEVCDecoderConfigurationRecord payload and
// transitions the converter to Ready.
func (c *Converter) SetSequenceHeader(hvcc []byte) error {
	dcr, err := ParseDCR(hvcc)
	if err != nil {
		return fmt.Errorf("hevc: %w: %v", codec.ErrNotEnoughData, err)
	}
	c.dcr = dcr
	return nil
}

// ToAnnexB converts one HVCC access unit to Annex-B framing, prepending
// VPS/SPS/PPS ahead of the first IRAP NAL and an AUD ahead of every access
// unit. VPS/SPS/PPS/AUD NALs found in the input are dropped.
func (c *Converter) ToAnnexB(hvccPayload []byte, keyframe bool) ([]byte, error) {
	if !c.Ready() {
		return nil, codec.ErrNotInitialized
	}
	nalus, err := bitstream.SplitLengthPrefixed(hvccPayload, c.dcr.NALULengthSize)
	if err != nil {
		return nil, fmt.Errorf("hevc: %w: %v", codec.ErrNotEnoughData, err)
	}

	out := make([]byte, 0, len(hvccPayload)*2)
	audAppended := false
	paramsAppended := false

	for _, nalu := range nalus {
		t := Type(nalu)
		switch {
		case t == NALTypeVPS || t == NALTypeSPS || t == NALTypePPS || t == NALTypeAccessUnitDelimiter:
			continue
		case t.IsIRAP():
			if !audAppended {
				out = append(out, annexBStartCode4...)
				out = append(out, AccessUnitDelimiter...)
				audAppended = true
			}
			if !paramsAppended {
				for _, vps := range firstOf(c.dcr.VPS) {
					out = append(out, annexBStartCode4...)
					out = append(out, vps...)
				}
				for _, sps := range firstOf(c.dcr.SPS) {
					out = append(out, annexBStartCode4...)
					out = append(out, sps...)
				}
				for _, pps := range firstOf(c.dcr.PPS) {
					out = append(out, annexBStartCode4...)
					out = append(out, pps...)
				}
				paramsAppended = true
			}
		default:
			if !audAppended {
				out = append(out, annexBStartCode4...)
				out = append(out, AccessUnitDelimiter...)
				audAppended = true
			}
		}
		out = append(out, annexBStartCode3...)
		out = append(out, nalu...)
	}
	return out, nil
}

func firstOf(nalus [][]byte) [][]byte {
	if len(nalus) == 0 {
		return nil
	}
	return nalus[:1]
}

// FromAnnexB tokenizes an Annex-B stream, updates the DCR on VPS/SPS/PPS
// (becoming Ready once all three are present) and returns the remaining
// NAL payloads, start codes stripped and without a length prefix. AUD NALs
// are dropped.
func (c *Converter) FromAnnexB(annexb []byte) ([][]byte, error) {
	nalus, err := bitstream.SplitAnnexB(annexb)
	if err != nil {
		return nil, fmt.Errorf("hevc: %w: %v", codec.ErrNotEnoughData, err)
	}
	if c.dcr == nil {
		c.dcr = &DCR{ConfigurationVersion: 1, NALULengthSize: 4}
	}

	var out [][]byte
	for _, nalu := range nalus {
		switch Type(nalu) {
		case NALTypeVPS:
			c.dcr.VPS = [][]byte{nalu}
		case NALTypeSPS:
			c.dcr.SPS = [][]byte{nalu}
		case NALTypePPS:
			c.dcr.PPS = [][]byte{nalu}
		case NALTypeAccessUnitDelimiter:
			// dropped
		default:
			out = append(out, nalu)
		}
	}
	return out, nil
}

// IsKeyframeNAL reports whether nalu carries one of the IRAP NAL types.
func IsKeyframeNAL(nalu []byte) bool { return Type(nalu).IsIRAP() }
