package mpegts

import "fmt"

// SyncError reports a packet whose first byte is not the sync byte.
type SyncError struct {
	Seq  int64
	Byte byte
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("mpegts: invalid sync byte 0x%02X at packet %d", e.Byte, e.Seq)
}

// SizeError reports a frame that is neither 188 nor 204 bytes.
type SizeError struct {
	Seq  int64
	Size int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("mpegts: packet %d size %d, expected %d or %d", e.Seq, e.Size, PacketSize, PacketSizeFEC)
}

// ParseError reports a malformed adaptation field or PES header.
type ParseError struct {
	Seq    int64
	PID    uint16
	Offset int
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mpegts: packet %d pid 0x%04X: %s at offset %d: %v", e.Seq, e.PID, e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FramingKind classifies section reassembly failures.
type FramingKind int

// Framing failure kinds.
const (
	FramingPointerOverflow FramingKind = iota + 1
	FramingTruncated
	FramingLength
	FramingDiscontinuity
	FramingTransportError
)

func (k FramingKind) String() string {
	switch k {
	case FramingPointerOverflow:
		return "pointer overflow"
	case FramingTruncated:
		return "truncated section"
	case FramingLength:
		return "invalid section length"
	case FramingDiscontinuity:
		return "continuity gap"
	case FramingTransportError:
		return "transport error"
	default:
		return "unknown"
	}
}

// FramingError reports a reassembly anomaly on one PID. The reassembler
// has already reset itself when it returns one; processing continues.
type FramingError struct {
	Kind   FramingKind
	PID    uint16
	Seq    int64
	Offset int
	Detail string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("mpegts: pid 0x%04X packet %d: %s at offset %d: %s", e.PID, e.Seq, e.Kind, e.Offset, e.Detail)
}
