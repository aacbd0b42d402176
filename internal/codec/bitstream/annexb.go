// Package bitstream holds the start-code and length-prefix framing helpers
// shared by the AVC and HEVC converters: tokenizing Annex-B NAL streams and
// splitting/joining length-prefixed (AVCC/HVCC) NAL streams.
package bitstream

import (
	"encoding/binary"
	"fmt"
)

// SplitAnnexB tokenizes a byte-stream framed with Annex-B start codes
// (00 00 01 or 00 00 00 01) into individual NAL unit payloads (start codes
// stripped). It is shared between AVC and HEVC since the start-code framing
// itself is codec-agnostic.
func SplitAnnexB(data []byte) ([][]byte, error) {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil, fmt.Errorf("bitstream: no Annex-B start code found")
	}
	var nalus [][]byte
	for i, s := range starts {
		begin := s.pos + s.length
		var end int
		if i+1 < len(starts) {
			end = starts[i+1].pos
		} else {
			end = len(data)
		}
		if begin >= end {
			continue
		}
		nalus = append(nalus, data[begin:end])
	}
	if len(nalus) == 0 {
		return nil, fmt.Errorf("bitstream: start code present but no NAL payload")
	}
	return nalus, nil
}

type startCode struct {
	pos, length int
}

// findStartCodes locates every occurrence of 00 00 01 or 00 00 00 01,
// preferring the 4-byte form when both overlap at the same position.
func findStartCodes(data []byte) []startCode {
	var out []startCode
	i := 0
	for i+2 < len(data) {
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				out = append(out, startCode{pos: i, length: 3})
				i += 3
				continue
			}
			if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				out = append(out, startCode{pos: i, length: 4})
				i += 4
				continue
			}
		}
		i++
	}
	return out
}

// SplitLengthPrefixed splits an AVCC/HVCC byte-stream into NAL unit payloads
// using a big-endian length prefix of the given size (1, 2 or 4 bytes per
// the DCR's nalu_length_size).
func SplitLengthPrefixed(data []byte, lengthSize int) ([][]byte, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, fmt.Errorf("bitstream: unsupported nalu length size %d", lengthSize)
	}
	var nalus [][]byte
	for len(data) > 0 {
		if len(data) < lengthSize {
			return nil, fmt.Errorf("bitstream: truncated length prefix")
		}
		var n int
		switch lengthSize {
		case 1:
			n = int(data[0])
		case 2:
			n = int(binary.BigEndian.Uint16(data[:2]))
		case 4:
			n = int(binary.BigEndian.Uint32(data[:4]))
		}
		data = data[lengthSize:]
		if len(data) < n {
			return nil, fmt.Errorf("bitstream: truncated NAL unit (want %d, have %d)", n, len(data))
		}
		nalus = append(nalus, data[:n])
		data = data[n:]
	}
	return nalus, nil
}

// JoinLengthPrefixed re-assembles an AVCC/HVCC byte-stream from NAL unit
// payloads using a big-endian length prefix of the given size.
func JoinLengthPrefixed(nalus [][]byte, lengthSize int) []byte {
	out := make([]byte, 0, sizeHint(nalus, lengthSize))
	var lenBuf [4]byte
	for _, n := range nalus {
		switch lengthSize {
		case 1:
			out = append(out, byte(len(n)))
		case 2:
			binary.BigEndian.PutUint16(lenBuf[:2], uint16(len(n)))
			out = append(out, lenBuf[:2]...)
		case 4:
			binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(n)))
			out = append(out, lenBuf[:4]...)
		}
		out = append(out, n...)
	}
	return out
}

func sizeHint(nalus [][]byte, lengthSize int) int {
	total := 0
	for _, n := range nalus {
		total += lengthSize + len(n)
	}
	return total
}
