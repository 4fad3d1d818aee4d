// Package tsutil builds synthetic transport packets and PSI/SI sections.
// It backs the package tests.
package tsutil

import (
	"encoding/binary"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// TSPacketSize is the fixed size of an MPEG-TS packet.
const TSPacketSize = mpegts.PacketSize

// LongSection builds a section with section_syntax_indicator=1, the
// 5-byte extension header, body, and a valid CRC32.
func LongSection(tableID byte, ext uint16, version, sectionNumber, lastSectionNumber uint8, body []byte) []byte {
	sectionLength := 5 + len(body) + 4
	data := make([]byte, 3+sectionLength)
	data[0] = tableID
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	binary.BigEndian.PutUint16(data[3:], ext)
	data[5] = 0xC0 | (version&0x1F)<<1 | 0x01 // current_next_indicator=1
	data[6] = sectionNumber
	data[7] = lastSectionNumber
	copy(data[8:], body)
	return SealCRC(data)
}

// ShortSection builds a section with section_syntax_indicator=0: table_id,
// section_length, body, CRC32.
func ShortSection(tableID byte, body []byte) []byte {
	sectionLength := len(body) + 4
	data := make([]byte, 3+sectionLength)
	data[0] = tableID
	data[1] = 0x30 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	copy(data[3:], body)
	return SealCRC(data)
}

// SealCRC overwrites the last 4 bytes of section with the CRC32 of the
// preceding bytes and returns section.
func SealCRC(section []byte) []byte {
	n := len(section) - 4
	binary.BigEndian.PutUint32(section[n:], mpegts.CRC32(section[:n]))
	return section
}

// Packet builds one payload-only packet. payload shorter than 184 bytes
// is padded with 0xFF.
func Packet(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	pkt := make([]byte, TSPacketSize)
	pkt[0] = mpegts.SyncByte
	pkt[1] = byte(pid>>8) & 0x1F
	pkt[2] = byte(pid)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[3] = 0x10 | cc&0x0F
	n := copy(pkt[4:], payload)
	for i := 4 + n; i < TSPacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// PCRPacket builds an adaptation-field-only packet carrying a PCR in
// 27 MHz ticks.
func PCRPacket(pid uint16, cc uint8, pcr uint64) []byte {
	pkt := make([]byte, TSPacketSize)
	pkt[0] = mpegts.SyncByte
	pkt[1] = byte(pid>>8) & 0x1F
	pkt[2] = byte(pid)
	pkt[3] = 0x20 | cc&0x0F
	pkt[4] = 183
	pkt[5] = 0x10
	PutPCR(pkt[6:12], pcr)
	for i := 12; i < TSPacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// AdaptationPacket builds a packet whose adaptation field carries flags
// (and pcr when flags has the PCR bit 0x10), stuffed so that payload ends
// the packet. An empty payload yields an adaptation-only packet.
func AdaptationPacket(pid uint16, cc uint8, flags byte, pcr uint64, payload []byte) []byte {
	pkt := make([]byte, TSPacketSize)
	pkt[0] = mpegts.SyncByte
	pkt[1] = byte(pid>>8) & 0x1F
	pkt[2] = byte(pid)
	afc := byte(0x20)
	if len(payload) > 0 {
		afc = 0x30
	}
	pkt[3] = afc | cc&0x0F
	afLen := TSPacketSize - 5 - len(payload)
	pkt[4] = byte(afLen)
	pkt[5] = flags
	pos := 6
	if flags&0x10 != 0 {
		PutPCR(pkt[pos:pos+6], pcr)
		pos += 6
	}
	for ; pos < 5+afLen; pos++ {
		pkt[pos] = 0xFF
	}
	copy(pkt[5+afLen:], payload)
	return pkt
}

// PutPCR writes a 27 MHz PCR value into the 6-byte PCR layout.
func PutPCR(b []byte, pcr uint64) {
	base := pcr / 300
	ext := pcr % 300
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&0x01)<<7 | 0x7E | byte(ext>>8)&0x01
	b[5] = byte(ext)
}

// NullPacket builds a stuffing packet on PID 0x1FFF.
func NullPacket(cc uint8) []byte {
	return Packet(mpegts.NullPID, cc, false, nil)
}

// PacketizeSection splits one section into packets on pid with a zero
// pointer field, incrementing cc between packets.
func PacketizeSection(pid uint16, section []byte, cc *uint8) [][]byte {
	payload := make([]byte, 1+len(section))
	copy(payload[1:], section)
	return PacketizePayload(pid, payload, cc)
}

// PacketizePayload splits a payload unit (already carrying its pointer
// field) into packets on pid.
func PacketizePayload(pid uint16, payload []byte, cc *uint8) [][]byte {
	const capacity = TSPacketSize - 4
	var out [][]byte
	for off, first := 0, true; off < len(payload); first = false {
		end := min(off+capacity, len(payload))
		out = append(out, Packet(pid, *cc, first, payload[off:end]))
		*cc = (*cc + 1) & 0x0F
		off = end
	}
	return out
}

// SplitSection packetizes section so that the first packet ends after
// exactly cut bytes of it (1 <= cut <= 183). The first packet's
// pointer_field skips filler that stands in for the tail of an earlier
// section; the remainder follows in continuation packets.
func SplitSection(pid uint16, section []byte, cut int, cc *uint8) [][]byte {
	lead := TSPacketSize - 5 - cut
	payload := make([]byte, 1+lead+len(section))
	payload[0] = byte(lead)
	for i := 1; i <= lead; i++ {
		payload[i] = 0xAB
	}
	copy(payload[1+lead:], section)
	return PacketizePayload(pid, payload, cc)
}

// Concat joins packets into one byte stream.
func Concat(packets ...[][]byte) []byte {
	var out []byte
	for _, group := range packets {
		for _, p := range group {
			out = append(out, p...)
		}
	}
	return out
}
