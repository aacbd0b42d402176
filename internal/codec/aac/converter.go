package aac

import (
	"fmt"

	"github.com/liveriver/fabric/internal/codec"
)

const (
	adtsSyncWord         = 0xFFF
	adtsHeaderSizeNoCRC  = 7
)

// Converter is the AAC framing state machine: Initializing until an
// AudioSpecificConfig sequence header arrives, Ready thereafter.
type Converter struct {
	asc *ASC
}

// NewConverter returns a fresh Initializing converter.
func NewConverter() *Converter { return &Converter{} }

// Ready reports whether an ASC has been observed.
func (c *Converter) Ready() bool { return c.asc != nil }

// ASC returns the current AudioSpecificConfig, or nil while Initializing.
func (c *Converter) ASC() *ASC { return c.asc }

// SetSequenceHeader parses an AudioSpecificConfig payload and transitions
// the converter to Ready.
func (c *Converter) SetSequenceHeader(asc []byte) error {
	parsed, err := ParseASC(asc)
	if err != nil {
		return fmt.Errorf("aac: %w: %v", codec.ErrNotEnoughData, err)
	}
	c.asc = parsed
	return nil
}

// ToADTS wraps one raw AAC frame in a 7-byte ADTS header (no CRC,
// number_of_frames_minus_one = 0). Requires a Ready converter.
func (c *Converter) ToADTS(raw []byte) ([]byte, error) {
	if !c.Ready() {
		return nil, codec.ErrNotInitialized
	}
	if c.asc.SamplingFrequencyIndex == 15 {
		return nil, fmt.Errorf("aac: sampling frequency index 15 is forbidden on ADTS output")
	}
	frameLen := adtsHeaderSizeNoCRC + len(raw)
	if frameLen > 0x1FFF {
		return nil, fmt.Errorf("aac: frame too large for ADTS frame-length field (%d)", frameLen)
	}

	out := make([]byte, adtsHeaderSizeNoCRC+len(raw))
	profile := c.asc.ObjectType - 1
	sfi := c.asc.SamplingFrequencyIndex
	chanConfig := c.asc.ChannelConfiguration

	out[0] = 0xFF
	out[1] = 0xF1 // syncword low nibble(0xF) + MPEG version(0) + layer(00) + protection_absent(1)
	out[2] = (profile&0x03)<<6 | (sfi&0x0F)<<2 | (chanConfig>>2)&0x01
	out[3] = (chanConfig&0x03)<<6 | byte(frameLen>>11)&0x03
	out[4] = byte(frameLen >> 3)
	out[5] = byte(frameLen<<5) | 0x1F // frame length low bits + buffer fullness high bits (0x7FF, all set)
	out[6] = 0xFC                    // buffer fullness low bits + number_of_aac_frames_minus_one (00)
	copy(out[7:], raw)
	return out, nil
}

// FromADTS loops over concatenated ADTS frames and returns each frame's
// raw AAC payload in order. Each frame's ASC fields also refresh the
// converter's cached ASC (the last frame's fields win) so FromADTS can be
// used standalone (e.g. tests) without a prior SetSequenceHeader call.
func (c *Converter) FromADTS(data []byte) ([][]byte, error) {
	var frames [][]byte
	for len(data) > 0 {
		if len(data) < adtsHeaderSizeNoCRC {
			return nil, fmt.Errorf("aac: %w: truncated adts header", codec.ErrNotEnoughData)
		}
		if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
			return nil, fmt.Errorf("aac: adts sync word not found")
		}
		protectionAbsent := data[1] & 0x01
		profile := (data[2] >> 6) & 0x03
		sfi := (data[2] >> 2) & 0x0F
		chanConfig := (data[2]&0x01)<<2 | (data[3]>>6)&0x03
		frameLen := int(data[3]&0x03)<<11 | int(data[4])<<3 | int(data[5]>>5)

		headerSize := adtsHeaderSizeNoCRC
		if protectionAbsent == 0 {
			headerSize += 2
		}
		if frameLen < headerSize || len(data) < frameLen {
			return nil, fmt.Errorf("aac: %w: truncated adts frame", codec.ErrNotEnoughData)
		}

		c.asc = &ASC{ObjectType: profile + 1, SamplingFrequencyIndex: sfi, ChannelConfiguration: chanConfig}
		frames = append(frames, data[headerSize:frameLen])
		data = data[frameLen:]
	}
	return frames, nil
}
