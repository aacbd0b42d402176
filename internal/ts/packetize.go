package ts

import "encoding/binary"

const (
	syncByte     = 0x47
	tableProgram = 1 // program_number / program_map_PID association
)

// writePAT emits a single TS packet carrying a one-program Program
// Association Table mapping program 1 to PIDPMT.
func (p *Packager) writePAT() {
	section := make([]byte, 0, 12)
	section = append(section, 0x00) // table_id: program_association_section
	section = append(section, 0xB0, 0x00) // section_syntax_indicator/reserved + length placeholder
	section = append(section, 0x00, 0x01) // transaction_id (arbitrary)
	section = append(section, 0xC1)       // reserved + version(0) + current_next_indicator(1)
	section = append(section, 0x00, 0x00) // section_number, last_section_number
	var prog [4]byte
	binary.BigEndian.PutUint16(prog[0:2], tableProgram)
	binary.BigEndian.PutUint16(prog[2:4], PIDPMT|0xE000)
	section = append(section, prog[:]...)

	sectionLength := len(section) - 3 + 4 // bytes after the length field, plus the 4-byte CRC we append below
	section[1] = 0xB0 | byte(sectionLength>>8)
	section[2] = byte(sectionLength)

	crc := crc32MPEG(section)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	section = append(section, crcBuf[:]...)

	p.writeSection(PIDPAT, section)
}

// writePMT emits a single TS packet carrying a Program Map Table with one
// video and one audio elementary stream.
func (p *Packager) writePMT() {
	section := make([]byte, 0, 24)
	section = append(section, 0x02)        // table_id: TS_program_map_section
	section = append(section, 0xB0, 0x00)  // length placeholder
	var progNum [2]byte
	binary.BigEndian.PutUint16(progNum[:], tableProgram)
	section = append(section, progNum[:]...)
	section = append(section, 0xC1) // version(0) + current_next_indicator(1)
	section = append(section, 0x00, 0x00) // section_number, last_section_number
	section = append(section, 0xE0|byte(PIDVideo>>8), byte(PIDVideo&0xFF)) // PCR_PID = video PID
	section = append(section, 0xF0, 0x00)                            // program_info_length = 0

	appendStream := func(streamType byte, pid uint16) {
		section = append(section, streamType)
		section = append(section, 0xE0|byte(pid>>8), byte(pid))
		section = append(section, 0xF0, 0x00) // ES_info_length = 0
	}
	appendStream(p.streamType(), PIDVideo)
	appendStream(StreamTypeAAC, PIDAudio)

	sectionLength := len(section) - 3 + 4
	section[1] = 0xB0 | byte(sectionLength>>8)
	section[2] = byte(sectionLength)

	crc := crc32MPEG(section)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	section = append(section, crcBuf[:]...)

	p.writeSection(PIDPMT, section)
}

// writeSection packs a PSI section (PAT or PMT) into one TS packet: a
// pointer_field of 0 followed by the section bytes, stuffed to 188 bytes
// with 0xFF.
func (p *Packager) writeSection(pid uint16, section []byte) {
	pkt := make([]byte, packetSize)
	pkt[0] = syncByte
	pkt[1] = 0x40 | byte(pid>>8&0x1F) // payload_unit_start_indicator=1
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | p.nextContinuity(pid) // adaptation_field_control=01 (payload only)

	copy(pkt[5:], section)
	pkt[4] = 0x00 // pointer_field
	for i := 5 + len(section); i < packetSize; i++ {
		pkt[i] = 0xFF
	}
	p.buf = append(p.buf, pkt...)
}

// writePES splits one PES packet across as many 188-byte TS packets as
// needed. The first packet sets PUSI; when withPCR is set the first packet
// also carries an adaptation field with the PCR derived from pcr90k (a
// 90kHz-clock value, same units as PTS). The final packet is padded to
// exactly 188 bytes with adaptation-field stuffing.
func (p *Packager) writePES(pid uint16, pes []byte, withPCR bool, pcr90k uint64) {
	first := true
	for len(pes) > 0 {
		pkt := make([]byte, 4, packetSize)
		pkt[0] = syncByte
		pusi := byte(0)
		if first {
			pusi = 0x40
		}
		pkt[1] = pusi | byte(pid>>8&0x1F)
		pkt[2] = byte(pid)

		cc := p.nextContinuity(pid)
		payloadCap := packetSize - 4

		var adaptation []byte
		hasAdaptation := false
		if first && withPCR {
			adaptation = buildPCRAdaptation(pcr90k)
			hasAdaptation = true
		}

		remaining := len(pes)
		space := payloadCap - len(adaptation)
		if hasAdaptation {
			space-- // adaptation_field_length byte itself
		}
		take := remaining
		if take > space {
			take = space
		}

		isLast := take == remaining
		if isLast && !hasAdaptation {
			pad := payloadCap - take - 1 // account for the adaptation_field_length byte itself
			if pad >= 0 {
				adaptation = stuffingAdaptation(pad)
				hasAdaptation = true
			}
		} else if isLast {
			// PCR packet that also ends the PES: stuff its adaptation field.
			for i := take; i < space; i++ {
				adaptation = append(adaptation, 0xFF)
			}
		}

		afc := byte(0x10) // payload only
		if hasAdaptation {
			afc = 0x30 // adaptation field + payload
		}
		pkt[3] = afc | cc

		if hasAdaptation {
			pkt = append(pkt, byte(len(adaptation)))
			pkt = append(pkt, adaptation...)
		}
		pkt = append(pkt, pes[:take]...)
		for len(pkt) < packetSize {
			pkt = append(pkt, 0xFF)
		}

		p.buf = append(p.buf, pkt...)
		pes = pes[take:]
		first = false
	}
}

// buildPCRAdaptation returns an adaptation field carrying only a PCR: flags
// byte (PCR_flag set) followed by the 6-byte PCR.
func buildPCRAdaptation(pcr90k uint64) []byte {
	out := make([]byte, 7)
	out[0] = 0x10 // PCR_flag
	base := pcr90k & 0x1FFFFFFFF
	ext := uint16(0)
	out[1] = byte(base >> 25)
	out[2] = byte(base >> 17)
	out[3] = byte(base >> 9)
	out[4] = byte(base >> 1)
	out[5] = byte(base<<7) | 0x7E | byte(ext>>8)
	out[6] = byte(ext)
	return out
}

// stuffingAdaptation returns a flags-only adaptation field (no PCR, no
// other optional fields) of total length n, used to pad the last TS packet
// of a PES to exactly 188 bytes.
func stuffingAdaptation(n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	out[0] = 0x00 // no flags set
	for i := 1; i < n; i++ {
		out[i] = 0xFF
	}
	return out
}
