// Package aac converts between raw AAC frames and ADTS-wrapped frames,
// tracking an AudioSpecificConfig the way avc/hevc track a DCR.
package aac

import "fmt"

// ASC is an AAC AudioSpecificConfig: the object type, sampling-frequency
// index and channel configuration needed to synthesize an ADTS header.
type ASC struct {
	ObjectType             uint8 // MPEG-4 audio object type (1=Main,2=LC,3=SSR,4=LTP)
	SamplingFrequencyIndex uint8 // 0-12 or 15 ("explicit")
	ChannelConfiguration   uint8 // 0-7
}

// ParseASC decodes the first two bytes of an AudioSpecificConfig: 5 bits
// object type, 4 bits sampling-frequency index, 4 bits channel
// configuration (the remaining 3 bits of the second byte are unused by
// this design).
func ParseASC(b []byte) (*ASC, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("aac: asc too short (%d bytes)", len(b))
	}
	objectType := (b[0] >> 3) & 0x1F
	sfi := ((b[0] & 0x07) << 1) | (b[1] >> 7)
	chanConfig := (b[1] >> 3) & 0x0F
	if sfi > 12 && sfi != 15 {
		return nil, fmt.Errorf("aac: unsupported sampling frequency index %d", sfi)
	}
	if chanConfig > 7 {
		return nil, fmt.Errorf("aac: unsupported channel configuration %d", chanConfig)
	}
	return &ASC{ObjectType: objectType, SamplingFrequencyIndex: sfi, ChannelConfiguration: chanConfig}, nil
}

// Marshal re-encodes the ASC as a 2-byte AudioSpecificConfig.
func (a *ASC) Marshal() []byte {
	b0 := (a.ObjectType&0x1F)<<3 | (a.SamplingFrequencyIndex >> 1)
	b1 := (a.SamplingFrequencyIndex&0x01)<<7 | (a.ChannelConfiguration&0x0F)<<3
	return []byte{b0, b1}
}
