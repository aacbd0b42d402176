package hevc

// NALType is the 6-bit nal_unit_type field of an H.265 NAL header (bits
// 1-6 of the first header byte; HEVC NAL headers are 2 bytes).
type NALType uint8

const (
	NALTypeBLAWLP             NALType = 16
	NALTypeBLAWRADL           NALType = 17
	NALTypeBLANLP             NALType = 18
	NALTypeIDRWRADL           NALType = 19
	NALTypeIDRNLP             NALType = 20
	NALTypeCRA                NALType = 21
	NALTypeIRAPReserved22     NALType = 22
	NALTypeIRAPReserved23     NALType = 23
	NALTypeVPS                NALType = 32
	NALTypeSPS                NALType = 33
	NALTypePPS                NALType = 34
	NALTypeAccessUnitDelimiter NALType = 35
)

// Type returns the nal_unit_type of an HEVC NAL unit payload.
func Type(nalu []byte) NALType {
	if len(nalu) < 2 {
		return 0
	}
	return NALType((nalu[0] >> 1) & 0x3F)
}

// IsIRAP reports whether t is one of the IRAP (BLA/IDR/CRA/reserved)
// keyframe-class NAL types 16-23.
func (t NALType) IsIRAP() bool { return t >= NALTypeBLAWLP && t <= NALTypeIRAPReserved23 }

// AccessUnitDelimiter is the fixed HEVC AUD NAL (header + pic_type byte)
// per "00 00 00 01 46 01 50".
var AccessUnitDelimiter = []byte{0x46, 0x01, 0x50}
