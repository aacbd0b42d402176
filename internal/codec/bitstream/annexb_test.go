package bitstream

import (
	"bytes"
	"testing"
)

func TestSplitAnnexBFourByteStartCodes(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x68, 0xBB, 0xCC}
	nalus, err := SplitAnnexB(data)
	if err != nil {
		t.Fatalf("SplitAnnexB: %v", err)
	}
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NALs, got %d", len(nalus))
	}
	if !bytes.Equal(nalus[0], []byte{0x67, 0xAA}) {
		t.Fatalf("unexpected first nal: %x", nalus[0])
	}
	if !bytes.Equal(nalus[1], []byte{0x68, 0xBB, 0xCC}) {
		t.Fatalf("unexpected second nal: %x", nalus[1])
	}
}

func TestSplitAnnexBMixedThreeAndFourByteStartCodes(t *testing.T) {
	data := []byte{0, 0, 1, 0x41, 0xAA, 0, 0, 0, 1, 0x41, 0xBB}
	nalus, err := SplitAnnexB(data)
	if err != nil {
		t.Fatalf("SplitAnnexB: %v", err)
	}
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NALs, got %d", len(nalus))
	}
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	nalus := [][]byte{{0x67, 0x01, 0x02}, {0x68, 0x03}}
	joined := JoinLengthPrefixed(nalus, 4)

	split, err := SplitLengthPrefixed(joined, 4)
	if err != nil {
		t.Fatalf("SplitLengthPrefixed: %v", err)
	}
	if len(split) != 2 {
		t.Fatalf("expected 2 NALs, got %d", len(split))
	}
	for i := range nalus {
		if !bytes.Equal(split[i], nalus[i]) {
			t.Fatalf("nal %d round-trip mismatch: got %x want %x", i, split[i], nalus[i])
		}
	}
}

func TestSplitLengthPrefixedTruncated(t *testing.T) {
	if _, err := SplitLengthPrefixed([]byte{0, 0, 0, 5, 1, 2}, 4); err == nil {
		t.Fatalf("expected an error for a length prefix exceeding the remaining data")
	}
}
