package avc

import (
	"fmt"

	"github.com/liveriver/fabric/internal/codec"
	"github.com/liveriver/fabric/internal/codec/bitstream"
)

// annexBStartCode4 is prepended ahead of the first NAL of every access unit
// (the access-unit delimiter and, for IDR pictures, the parameter sets).
var annexBStartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
var annexBStartCode3 = []byte{0x00, 0x00, 0x01}

// Converter is the AVC bitstream state machine: Initializing until the
// first sequence header is observed, Ready(DCR) thereafter. A Ready
// converter replaces its DCR whenever a new sequence header arrives.
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

// SetSequenceHeader parses an AVCDecoderConfigurationRecord payload
// (AVCC sequence header) and transitions the converter to Ready, replacing
// any previously stored DCR.
func (c *Converter) SetSequenceHeader(avcc []byte) error {
	dcr, err := ParseDCR(avcc)
	if err != nil {
		return fmt.Errorf("avc: %w: %v", codec.ErrNotEnoughData, err)
	}
	c.dcr = dcr
	return nil
}

// ToAnnexB converts one AVCC access unit (the length-prefixed NAL units of a
// single video Packet payload) to Annex-B framing. An access-unit delimiter
// is emitted once; for an IDR access unit the SPS/PPS from the DCR are
// prepended ahead of the first VCL NAL. SPS/PPS/AUD NALs found inside the
// input are dropped since they are sourced from the DCR.
//
// Requires a Ready converter; returns codec.ErrNotInitialized otherwise.
func (c *Converter) ToAnnexB(avccPayload []byte, keyframe bool) ([]byte, error) {
	if !c.Ready() {
		return nil, codec.ErrNotInitialized
	}
	nalus, err := bitstream.SplitLengthPrefixed(avccPayload, c.dcr.NALULengthSize)
	if err != nil {
		return nil, fmt.Errorf("avc: %w: %v", codec.ErrNotEnoughData, err)
	}

	out := make([]byte, 0, len(avccPayload)*2)
	audAppended := false
	paramsAppended := false

	for _, nalu := range nalus {
		switch Type(nalu) {
		case NALTypeSPS, NALTypePPS, NALTypeAccessUnitDelimiter:
			continue
		case NALTypeIDR:
			if !audAppended {
				out = append(out, annexBStartCode4...)
				out = append(out, AccessUnitDelimiter...)
				audAppended = true
			}
			if !paramsAppended {
				if len(c.dcr.SPS) > 0 {
					out = append(out, annexBStartCode4...)
					out = append(out, c.dcr.SPS[0]...)
				}
				if len(c.dcr.PPS) > 0 {
					out = append(out, annexBStartCode4...)
					out = append(out, c.dcr.PPS[0]...)
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

// FromAnnexB tokenizes an Annex-B stream, updates the DCR whenever a new
// SPS/PPS is observed (becoming Ready once both are present) and returns
// the remaining VCL/SEI NAL payloads, start codes stripped and without a
// length prefix. AUD NALs are dropped.
func (c *Converter) FromAnnexB(annexb []byte) ([][]byte, error) {
	nalus, err := bitstream.SplitAnnexB(annexb)
	if err != nil {
		return nil, fmt.Errorf("avc: %w: %v", codec.ErrNotEnoughData, err)
	}
	if c.dcr == nil {
		c.dcr = &DCR{Version: 1, NALULengthSize: 4}
	}

	var out [][]byte
	for _, nalu := range nalus {
		switch Type(nalu) {
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
