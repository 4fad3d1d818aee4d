// Package mpegts implements the transport-stream layer of the demuxer: the
// 188-byte packet decoder with adaptation field and PES header parsing,
// the per-PID section reassembler, CRC-32/MPEG2, and the byte-level field
// codecs (BCD, MJD, PTS/DTS, PCR) shared by the table decoders.
package mpegts

const (
	// PacketSize is the size of a transport packet.
	PacketSize = 188

	// PacketSizeFEC is the size of a Reed-Solomon coded packet; the
	// trailing 16 bytes are parity and are stripped before decoding.
	PacketSizeFEC = 204

	// SyncByte starts every transport packet.
	SyncByte = 0x47

	// NullPID is reserved for stuffing packets.
	NullPID uint16 = 0x1FFF

	// MaxPID is the largest 13-bit PID.
	MaxPID uint16 = 0x1FFF
)

// Adaptation field control values (2 bits in header byte 3).
const (
	AFCPayloadOnly       = 0x1
	AFCAdaptationOnly    = 0x2
	AFCAdaptationPayload = 0x3
)

// Packet is a decoded transport stream packet.
type Packet struct {
	Header          PacketHeader
	AdaptationField *AdaptationField
	PES             *PESHeader
	Payload         []byte

	// Seq is the zero-based position of the packet in the session.
	Seq int64

	// Placeholder is set when the packet failed field decoding and was
	// replaced by a null-PID stand-in.
	Placeholder bool
}

// PacketHeader contains the fixed 4-byte header fields of a packet.
type PacketHeader struct {
	PID                        uint16
	ContinuityCounter          uint8
	TransportScramblingControl uint8
	AdaptationFieldControl     uint8
	HasAdaptationField         bool
	HasPayload                 bool
	PayloadUnitStartIndicator  bool
	TransportErrorIndicator    bool
	TransportPriority          bool
}

// AdaptationField carries timing and signalling fields that sit between
// the packet header and the payload.
type AdaptationField struct {
	Length                            int
	DiscontinuityIndicator            bool
	RandomAccessIndicator             bool
	ElementaryStreamPriorityIndicator bool
	HasPCR                            bool
	HasOPCR                           bool
	HasSplicingPoint                  bool
	HasTransportPrivateData           bool
	HasExtension                      bool

	PCR                  *ClockRef
	OPCR                 *ClockRef
	SpliceCountdown      int8
	TransportPrivateData []byte
	Extension            []byte

	// StuffingLength is the number of trailing 0xFF bytes.
	StuffingLength int
}

// ClockRef is a 42-bit program clock reference sample.
type ClockRef struct {
	Base      uint64 // 90 kHz
	Extension uint16 // 27 MHz remainder, 0..299
}

// Ticks returns the value in 27 MHz ticks.
func (c *ClockRef) Ticks() uint64 {
	return c.Base*300 + uint64(c.Extension)
}

// PESHeader is the header of a packetized elementary stream packet.
type PESHeader struct {
	StreamID       uint8
	PacketLength   int
	OptionalHeader *PESOptionalHeader

	// DataOffset is where elementary-stream bytes start within the packet
	// payload.
	DataOffset int
}

// PESOptionalHeader carries the flags and optional fields that follow
// the 6-byte PES prefix for most stream ids.
type PESOptionalHeader struct {
	ScramblingControl      uint8
	Priority               bool
	DataAlignmentIndicator bool
	Copyright              bool
	OriginalOrCopy         bool
	HeaderDataLength       int

	PTS *int64
	DTS *int64

	ESCR               *ClockRef
	ESRate             uint32
	HasESRate          bool
	TrickMode          *uint8
	AdditionalCopyInfo *uint8
	PreviousPESCRC     *uint16
	HasExtension       bool
}
