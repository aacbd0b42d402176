package ts

import "encoding/binary"

// buildPES wraps one elementary-stream access unit in a PES header carrying
// PTS, and DTS when hasDTS is set. Timestamps are 90kHz clock values
// already (callers convert from milliseconds before calling in).
func buildPES(streamID byte, pts, dts uint64, hasDTS bool, payload []byte) []byte {
	var optional []byte
	var ptsDTSFlags byte
	if hasDTS {
		ptsDTSFlags = 0x3
		optional = append(optional, encodeTimestamp(0x3, pts)...)
		optional = append(optional, encodeTimestamp(0x1, dts)...)
	} else {
		ptsDTSFlags = 0x2
		optional = append(optional, encodeTimestamp(0x2, pts)...)
	}

	headerLen := 3 + len(optional) // flags byte pair + header_data_length + optional
	packetLen := headerLen + len(payload)
	var lenField uint16
	if packetLen <= 0xFFFF {
		lenField = uint16(packetLen)
	} // else 0: unbounded length, legal for video PES per MPEG-2 13818-1

	out := make([]byte, 0, 6+headerLen+len(payload))
	out = append(out, 0x00, 0x00, 0x01, streamID)
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], lenField)
	out = append(out, lb[:]...)
	out = append(out, 0x80)                  // marker bits + no scrambling/priority/alignment/copyright
	out = append(out, ptsDTSFlags<<6)         // PTS_DTS_flags, remaining optional flags unset
	out = append(out, byte(len(optional)))    // PES_header_data_length
	out = append(out, optional...)
	out = append(out, payload...)
	return out
}

// encodeTimestamp packs a 33-bit 90kHz timestamp into the 5-byte marker-bit
// pattern shared by PTS and DTS fields. marker is 0b0010 for PTS-only,
// 0b0011 for PTS-when-DTS-present, 0b0001 for DTS.
func encodeTimestamp(marker byte, ts uint64) []byte {
	ts &= 0x1FFFFFFFF
	b := make([]byte, 5)
	b[0] = marker<<4 | byte(ts>>29)&0x0E | 0x01
	b[1] = byte(ts >> 22)
	b[2] = byte(ts>>14)&0xFE | 0x01
	b[3] = byte(ts >> 7)
	b[4] = byte(ts<<1)&0xFE | 0x01
	return b
}
