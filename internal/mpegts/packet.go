package mpegts

import (
	"errors"
	"fmt"
)

// fieldError locates a decode failure inside a sub-structure; offset is
// relative to the start of that sub-structure.
type fieldError struct {
	offset int
	err    error
}

func (e *fieldError) Error() string { return e.err.Error() }

func fieldErrorf(offset int, format string, args ...any) error {
	return &fieldError{offset: offset, err: fmt.Errorf(format, args...)}
}

// Decode parses one transport packet. A 204-byte frame is truncated to
// its leading 188 bytes first. seq is recorded on the packet and on any
// returned error.
//
// Errored (TEI) and null packets are returned with header fields only and
// the 184 bytes after the header as opaque payload. When the adaptation
// field or PES header is malformed, Decode returns a *ParseError together
// with a null-PID placeholder packet.
func Decode(buf []byte, seq int64) (*Packet, error) {
	switch len(buf) {
	case PacketSize:
	case PacketSizeFEC:
		buf = buf[:PacketSize]
	default:
		return nil, &SizeError{Seq: seq, Size: len(buf)}
	}
	if buf[0] != SyncByte {
		return nil, &SyncError{Seq: seq, Byte: buf[0]}
	}

	p := &Packet{Seq: seq}
	h := &p.Header
	h.TransportErrorIndicator = buf[1]&0x80 != 0
	h.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	h.TransportPriority = buf[1]&0x20 != 0
	h.PID = PID13(buf[1:3])
	h.TransportScramblingControl = buf[3] >> 6
	h.AdaptationFieldControl = buf[3] >> 4 & 0x03
	h.HasAdaptationField = h.AdaptationFieldControl&AFCAdaptationOnly != 0
	h.HasPayload = h.AdaptationFieldControl&AFCPayloadOnly != 0
	h.ContinuityCounter = buf[3] & 0x0F

	if h.TransportErrorIndicator || h.PID == NullPID {
		p.Payload = make([]byte, PacketSize-4)
		copy(p.Payload, buf[4:])
		return p, nil
	}

	offset := 4
	if h.HasAdaptationField {
		af, err := parseAdaptationField(buf[offset:], h.HasPayload)
		if err != nil {
			return placeholder(seq), newParseError(seq, h.PID, offset, "adaptation_field", err)
		}
		p.AdaptationField = af
		offset += 1 + af.Length
	}

	if h.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}

	if h.PayloadUnitStartIndicator && isPESPayload(p.Payload) {
		pes, err := parsePESHeader(p.Payload)
		if err != nil {
			return placeholder(seq), newParseError(seq, h.PID, offset, "pes_header", err)
		}
		p.PES = pes
	}

	return p, nil
}

func placeholder(seq int64) *Packet {
	return &Packet{
		Seq:         seq,
		Header:      PacketHeader{PID: NullPID},
		Placeholder: true,
	}
}

func newParseError(seq int64, pid uint16, base int, field string, err error) *ParseError {
	pe := &ParseError{Seq: seq, PID: pid, Offset: base, Field: field, Err: err}
	var fe *fieldError
	if errors.As(err, &fe) {
		pe.Offset = base + fe.offset
		pe.Err = fe.err
	}
	return pe
}

// parseAdaptationField decodes the adaptation field starting at its
// length byte.
func parseAdaptationField(b []byte, hasPayload bool) (*AdaptationField, error) {
	af := &AdaptationField{Length: int(b[0])}

	maxLen := PacketSize - 5 // 183: no payload
	if hasPayload {
		maxLen--
	}
	if af.Length > maxLen {
		return nil, fieldErrorf(0, "adaptation_field_length %d exceeds %d", af.Length, maxLen)
	}
	if af.Length == 0 {
		return af, nil
	}

	end := 1 + af.Length
	flags := b[1]
	af.DiscontinuityIndicator = flags&0x80 != 0
	af.RandomAccessIndicator = flags&0x40 != 0
	af.ElementaryStreamPriorityIndicator = flags&0x20 != 0
	af.HasPCR = flags&0x10 != 0
	af.HasOPCR = flags&0x08 != 0
	af.HasSplicingPoint = flags&0x04 != 0
	af.HasTransportPrivateData = flags&0x02 != 0
	af.HasExtension = flags&0x01 != 0

	pos := 2
	if af.HasPCR {
		if pos+6 > end {
			return nil, fieldErrorf(pos, "PCR overruns adaptation field")
		}
		base, ext := ClockReference(b[pos:])
		af.PCR = &ClockRef{Base: base, Extension: ext}
		pos += 6
	}
	if af.HasOPCR {
		if pos+6 > end {
			return nil, fieldErrorf(pos, "OPCR overruns adaptation field")
		}
		base, ext := ClockReference(b[pos:])
		af.OPCR = &ClockRef{Base: base, Extension: ext}
		pos += 6
	}
	if af.HasSplicingPoint {
		if pos+1 > end {
			return nil, fieldErrorf(pos, "splice_countdown overruns adaptation field")
		}
		af.SpliceCountdown = int8(b[pos])
		pos++
	}
	if af.HasTransportPrivateData {
		if pos+1 > end {
			return nil, fieldErrorf(pos, "private data length overruns adaptation field")
		}
		n := int(b[pos])
		pos++
		if pos+n > end {
			return nil, fieldErrorf(pos, "private data length %d overruns adaptation field", n)
		}
		af.TransportPrivateData = append([]byte(nil), b[pos:pos+n]...)
		pos += n
	}
	if af.HasExtension {
		if pos+1 > end {
			return nil, fieldErrorf(pos, "extension length overruns adaptation field")
		}
		n := int(b[pos])
		pos++
		if pos+n > end {
			return nil, fieldErrorf(pos, "extension length %d overruns adaptation field", n)
		}
		af.Extension = append([]byte(nil), b[pos:pos+n]...)
		pos += n
	}
	af.StuffingLength = end - pos
	return af, nil
}

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasPESOptionalHeader reports whether streamID carries the optional
// PES header. padding_stream (0xBE), private_stream_2 (0xBF), ECM (0xF0),
// EMM (0xF1), DSMCC (0xF2), H.222.1 type E (0xF8) and
// program_stream_directory (0xFF) do not.
func hasPESOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePESHeader(payload []byte) (*PESHeader, error) {
	if len(payload) < 6 {
		return nil, fieldErrorf(0, "PES packet too short (%d bytes)", len(payload))
	}

	pes := &PESHeader{
		StreamID:     payload[3],
		PacketLength: int(Uint16(payload[4:])),
		DataOffset:   6,
	}
	if !hasPESOptionalHeader(pes.StreamID) {
		return pes, nil
	}

	if len(payload) < 9 {
		return nil, fieldErrorf(6, "PES optional header too short")
	}
	if payload[6]>>6 != 0x02 {
		return nil, fieldErrorf(6, "PES optional header marker bits 0x%X", payload[6]>>6)
	}

	oh := &PESOptionalHeader{
		ScramblingControl:      payload[6] >> 4 & 0x03,
		Priority:               payload[6]&0x08 != 0,
		DataAlignmentIndicator: payload[6]&0x04 != 0,
		Copyright:              payload[6]&0x02 != 0,
		OriginalOrCopy:         payload[6]&0x01 != 0,
		HeaderDataLength:       int(payload[8]),
	}
	ptsDTSIndicator := payload[7] >> 6 & 0x03
	hasESCR := payload[7]&0x20 != 0
	oh.HasESRate = payload[7]&0x10 != 0
	hasTrick := payload[7]&0x08 != 0
	hasCopyInfo := payload[7]&0x04 != 0
	hasCRC := payload[7]&0x02 != 0
	oh.HasExtension = payload[7]&0x01 != 0

	if ptsDTSIndicator == 0x01 {
		return nil, fieldErrorf(7, "forbidden PTS_DTS_flags value 01")
	}

	end := 9 + oh.HeaderDataLength
	if end > len(payload) {
		return nil, fieldErrorf(8, "PES_header_data_length %d exceeds payload", oh.HeaderDataLength)
	}

	pos := 9
	need := func(n int, field string) error {
		if pos+n > end {
			return fieldErrorf(pos, "%s overruns PES header", field)
		}
		return nil
	}

	if ptsDTSIndicator&0x02 != 0 {
		if err := need(5, "PTS"); err != nil {
			return nil, err
		}
		pts, err := Timestamp(payload[pos:])
		if err != nil {
			return nil, &fieldError{offset: pos, err: err}
		}
		oh.PTS = &pts
		pos += 5
	}
	if ptsDTSIndicator == 0x03 {
		if err := need(5, "DTS"); err != nil {
			return nil, err
		}
		dts, err := Timestamp(payload[pos:])
		if err != nil {
			return nil, &fieldError{offset: pos, err: err}
		}
		oh.DTS = &dts
		pos += 5
	}
	if hasESCR {
		if err := need(6, "ESCR"); err != nil {
			return nil, err
		}
		oh.ESCR = parseESCR(payload[pos:])
		pos += 6
	}
	if oh.HasESRate {
		if err := need(3, "ES_rate"); err != nil {
			return nil, err
		}
		oh.ESRate = Uint24(payload[pos:]) >> 1 & 0x3FFFFF
		pos += 3
	}
	if hasTrick {
		if err := need(1, "trick mode"); err != nil {
			return nil, err
		}
		v := payload[pos]
		oh.TrickMode = &v
		pos++
	}
	if hasCopyInfo {
		if err := need(1, "additional_copy_info"); err != nil {
			return nil, err
		}
		v := payload[pos] & 0x7F
		oh.AdditionalCopyInfo = &v
		pos++
	}
	if hasCRC {
		if err := need(2, "previous_PES_packet_CRC"); err != nil {
			return nil, err
		}
		v := Uint16(payload[pos:])
		oh.PreviousPESCRC = &v
	}

	pes.OptionalHeader = oh
	pes.DataOffset = end
	return pes, nil
}

// parseESCR decodes the 6-byte ESCR layout: 2 reserved bits, 33-bit base
// split 3/15/15 by marker bits, 9-bit extension, marker.
func parseESCR(b []byte) *ClockRef {
	base := uint64(b[0]>>3&0x07)<<30 |
		uint64(b[0]&0x03)<<28 |
		uint64(b[1])<<20 |
		uint64(b[2]>>3)<<15 |
		uint64(b[2]&0x03)<<13 |
		uint64(b[3])<<5 |
		uint64(b[4]>>3)
	ext := uint16(b[4]&0x03)<<7 | uint16(b[5]>>1)
	return &ClockRef{Base: base, Extension: ext}
}
