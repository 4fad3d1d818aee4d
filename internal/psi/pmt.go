package psi

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Stream types referenced by the demuxer.
const (
	StreamTypeMPEG1Video     uint8 = 0x01
	StreamTypeMPEG2Video     uint8 = 0x02
	StreamTypeMPEG1Audio     uint8 = 0x03
	StreamTypeMPEG2Audio     uint8 = 0x04
	StreamTypePrivateSection uint8 = 0x05
	StreamTypePrivatePES     uint8 = 0x06
	StreamTypeAAC            uint8 = 0x0F
	StreamTypeLATM           uint8 = 0x11
	StreamTypeMetadata       uint8 = 0x15
	StreamTypeH264           uint8 = 0x1B
	StreamTypeH265           uint8 = 0x24
	StreamTypeAC3            uint8 = 0x81
	StreamTypeSCTE35         uint8 = 0x86
	StreamTypeEAC3           uint8 = 0x87
)

// FormatCUEI is the registration format_identifier announcing SCTE-35.
const FormatCUEI uint32 = 0x43554549

var streamTypeNames = map[uint8]string{
	StreamTypeMPEG1Video:     "MPEG-1 video",
	StreamTypeMPEG2Video:     "MPEG-2 video",
	StreamTypeMPEG1Audio:     "MPEG-1 audio",
	StreamTypeMPEG2Audio:     "MPEG-2 audio",
	StreamTypePrivateSection: "private sections",
	StreamTypePrivatePES:     "private PES",
	StreamTypeAAC:            "AAC",
	StreamTypeLATM:           "LATM AAC",
	StreamTypeMetadata:       "metadata PES",
	StreamTypeH264:           "H.264",
	StreamTypeH265:           "H.265",
	StreamTypeAC3:            "AC-3",
	StreamTypeSCTE35:         "SCTE-35",
	StreamTypeEAC3:           "E-AC-3",
}

// StreamTypeName returns a human-readable name for a stream_type.
func StreamTypeName(st uint8) string {
	if n, ok := streamTypeNames[st]; ok {
		return n
	}
	return fmt.Sprintf("stream type 0x%02X", st)
}

// PMT is a program map section.
type PMT struct {
	Header
	ProgramNumber      uint16
	PCRPID             uint16
	ProgramDescriptors []Descriptor
	Streams            []ElementaryStream
}

// ElementaryStream is one entry of the PMT ES loop.
type ElementaryStream struct {
	StreamType  uint8
	PID         uint16
	Descriptors []Descriptor
}

func (*PMT) Family() Family { return FamilyPMT }

// IsSCTE35 reports whether the stream carries splice information, either
// by stream_type 0x86 or a CUEI registration descriptor.
func (es *ElementaryStream) IsSCTE35() bool {
	if es.StreamType == StreamTypeSCTE35 {
		return true
	}
	if d, ok := FindDescriptor(es.Descriptors, TagRegistration).(*RegistrationDescriptor); ok {
		return d.FormatIdentifier == FormatCUEI
	}
	return false
}

// IsAIT reports whether the stream carries an application information
// table: private sections with an application_signalling_descriptor.
func (es *ElementaryStream) IsAIT() bool {
	return es.StreamType == StreamTypePrivateSection &&
		FindDescriptor(es.Descriptors, TagApplicationSignalling) != nil
}

func decodePMT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	// section layout:
	// [0]    table_id
	// [1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]  program_number
	// [5]    reserved(2) + version(5) + current_next(1)
	// [6]    section_number
	// [7]    last_section_number
	// [8-9]  reserved(3) + PCR_PID(13)
	// [10-11] reserved(4) + program_info_length(12)
	// [...] program descriptors
	// [...] elementary stream entries
	// [N-4..N] CRC32
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("PMT without section_syntax_indicator")
	}
	b := body(section)
	if len(b) < 4 {
		return nil, fmt.Errorf("PMT too short")
	}

	pmt := &PMT{Header: h, ProgramNumber: h.TableIDExtension, PCRPID: mpegts.PID13(b)}
	infoLen := mpegts.Length12(b[2:])
	off := 4 + infoLen
	if off > len(b) {
		return nil, fmt.Errorf("PMT program_info_length %d overruns section", infoLen)
	}
	var err error
	if pmt.ProgramDescriptors, err = dp.Parse(b[4:off]); err != nil {
		return nil, fmt.Errorf("PMT program descriptors: %w", err)
	}

	for off < len(b) {
		if off+5 > len(b) {
			return nil, fmt.Errorf("PMT stream entry at offset %d truncated", off)
		}
		es := ElementaryStream{
			StreamType: b[off],
			PID:        mpegts.PID13(b[off+1:]),
		}
		esInfoLen := mpegts.Length12(b[off+3:])
		end := off + 5 + esInfoLen
		if end > len(b) {
			return nil, fmt.Errorf("PMT ES_info_length %d for pid 0x%04X overruns section", esInfoLen, es.PID)
		}
		if es.Descriptors, err = dp.Parse(b[off+5 : end]); err != nil {
			return nil, fmt.Errorf("PMT pid 0x%04X descriptors: %w", es.PID, err)
		}
		pmt.Streams = append(pmt.Streams, es)
		off = end
	}
	return pmt, nil
}
