package hevc

import (
	"errors"
	"testing"

	"github.com/liveriver/fabric/internal/codec"
	"github.com/liveriver/fabric/internal/codec/bitstream"
)

func hevcNAL(t NALType, rest ...byte) []byte {
	return append([]byte{byte(t) << 1, 0x01}, rest...)
}

func testHEVCDCR() *DCR {
	return &DCR{
		ConfigurationVersion: 1, GeneralTierFlag: 0, GeneralProfileIDC: 1, GeneralLevelIDC: 93,
		NALULengthSize: 4,
		VPS:            [][]byte{hevcNAL(NALTypeVPS, 0x01)},
		SPS:            [][]byte{hevcNAL(NALTypeSPS, 0x02)},
		PPS:            [][]byte{hevcNAL(NALTypePPS, 0x03)},
	}
}

func TestHEVCDCRMarshalParseRoundTrip(t *testing.T) {
	want := testHEVCDCR()
	got, err := ParseDCR(want.Marshal())
	if err != nil {
		t.Fatalf("ParseDCR: %v", err)
	}
	if !got.Ready() {
		t.Fatalf("expected round-tripped dcr to be ready")
	}
	if got.GeneralProfileIDC != want.GeneralProfileIDC || got.GeneralLevelIDC != want.GeneralLevelIDC {
		t.Fatalf("profile/level mismatch: got %+v want %+v", got, want)
	}
}

func TestHEVCConverterNotReadyUntilSequenceHeader(t *testing.T) {
	c := NewConverter()
	if c.Ready() {
		t.Fatalf("expected a fresh converter to not be ready")
	}
	if _, err := c.ToAnnexB(nil, true); !errors.Is(err, codec.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestHEVCToAnnexBPrependsVPSSPSBeforeIRAP(t *testing.T) {
	c := NewConverter()
	if err := c.SetSequenceHeader(testHEVCDCR().Marshal()); err != nil {
		t.Fatalf("SetSequenceHeader: %v", err)
	}

	idr := hevcNAL(NALTypeIDRWRADL, 0xAA)
	hvcc := bitstream.JoinLengthPrefixed([][]byte{idr}, 4)

	out, err := c.ToAnnexB(hvcc, true)
	if err != nil {
		t.Fatalf("ToAnnexB: %v", err)
	}
	nalus, err := bitstream.SplitAnnexB(out)
	if err != nil {
		t.Fatalf("SplitAnnexB: %v", err)
	}
	if len(nalus) != 5 {
		t.Fatalf("expected AUD+VPS+SPS+PPS+IDR (5 NALs), got %d", len(nalus))
	}
	if Type(nalus[0]) != NALTypeAccessUnitDelimiter {
		t.Fatalf("expected first NAL to be an AUD")
	}
	if Type(nalus[1]) != NALTypeVPS || Type(nalus[2]) != NALTypeSPS || Type(nalus[3]) != NALTypePPS {
		t.Fatalf("expected VPS, SPS, PPS ahead of the IRAP NAL")
	}
	if !IsKeyframeNAL(nalus[4]) {
		t.Fatalf("expected the final NAL to be recognized as a keyframe NAL")
	}
}

func TestHEVCFromAnnexBBecomesReadyOnceVPSSPSAndPPSSeen(t *testing.T) {
	c := NewConverter()
	var data []byte
	data = append(data, 0, 0, 0, 1)
	data = append(data, hevcNAL(NALTypeVPS, 0x01)...)
	if _, err := c.FromAnnexB(data); err != nil {
		t.Fatalf("FromAnnexB: %v", err)
	}
	if c.Ready() {
		t.Fatalf("expected Initializing without SPS/PPS")
	}

	data = nil
	data = append(data, 0, 0, 0, 1)
	data = append(data, hevcNAL(NALTypeSPS, 0x02)...)
	data = append(data, 0, 0, 0, 1)
	data = append(data, hevcNAL(NALTypePPS, 0x03)...)
	if _, err := c.FromAnnexB(data); err != nil {
		t.Fatalf("FromAnnexB: %v", err)
	}
	if !c.Ready() {
		t.Fatalf("expected Ready once VPS, SPS and PPS are all seen")
	}
}
