package psi

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// PAT is a program association section.
type PAT struct {
	Header
	TransportStreamID uint16
	Programs          []PATProgram
}

// PATProgram maps a program number to its PMT PID. Program 0 maps the
// network PID instead.
type PATProgram struct {
	ProgramNumber uint16
	PID           uint16
}

func (*PAT) Family() Family { return FamilyPAT }

// NetworkPID returns the PID announced by program 0.
func (p *PAT) NetworkPID() (uint16, bool) {
	for _, prog := range p.Programs {
		if prog.ProgramNumber == 0 {
			return prog.PID, true
		}
	}
	return 0, false
}

// ProgramMapPIDs returns the PMT PIDs keyed by program number.
func (p *PAT) ProgramMapPIDs() map[uint16]uint16 {
	out := make(map[uint16]uint16, len(p.Programs))
	for _, prog := range p.Programs {
		if prog.ProgramNumber != 0 {
			out[prog.ProgramNumber] = prog.PID
		}
	}
	return out
}

func decodePAT(section []byte, h Header, _ *DescriptorParser) (Table, error) {
	// section layout:
	// [0]    table_id
	// [1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]  transport_stream_id
	// [5]    reserved(2) + version(5) + current_next(1)
	// [6]    section_number
	// [7]    last_section_number
	// [8..N-4] program entries (4 bytes each)
	// [N-4..N] CRC32
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("PAT without section_syntax_indicator")
	}
	entries := body(section)
	if len(entries)%4 != 0 {
		return nil, fmt.Errorf("PAT program loop length %d is not a multiple of 4", len(entries))
	}

	pat := &PAT{Header: h, TransportStreamID: h.TableIDExtension}
	pat.Programs = make([]PATProgram, 0, len(entries)/4)
	for i := 0; i+4 <= len(entries); i += 4 {
		pat.Programs = append(pat.Programs, PATProgram{
			ProgramNumber: mpegts.Uint16(entries[i:]),
			PID:           mpegts.PID13(entries[i+2:]),
		})
	}
	return pat, nil
}
