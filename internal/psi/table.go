// Package psi validates and decodes PSI/SI sections: the ISO 13818-1
// program tables (PAT, CAT, PMT), the EN 300 468 service information
// tables (NIT, SDT, BAT, EIT), the TS 102 809 application information
// table, the TS 101 191 megaframe initialization packet and SCTE-35
// splice information.
//
// A Validator per table family checks table_id and CRC32, suppresses
// retransmissions and version repeats, and runs the family's payload
// decoder. Tables owns the validators of one demux session.
package psi

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Family identifies a table family.
type Family int

// Table families.
const (
	FamilyPAT Family = iota + 1
	FamilyCAT
	FamilyPMT
	FamilyNIT
	FamilySDT
	FamilyBAT
	FamilyEIT
	FamilyAIT
	FamilyMIP
	FamilySCTE35
)

// Families lists every family in a stable order.
var Families = []Family{
	FamilyPAT, FamilyCAT, FamilyPMT, FamilyNIT, FamilySDT,
	FamilyBAT, FamilyEIT, FamilyAIT, FamilyMIP, FamilySCTE35,
}

// Table ids.
const (
	TableIDPAT           = 0x00
	TableIDCAT           = 0x01
	TableIDPMT           = 0x02
	TableIDNITActual     = 0x40
	TableIDNITOther      = 0x41
	TableIDSDTActual     = 0x42
	TableIDSDTOther      = 0x46
	TableIDBAT           = 0x4A
	TableIDEITFirst      = 0x4E
	TableIDEITLast       = 0x6F
	TableIDAIT           = 0x74
	TableIDSCTE35        = 0xFC
	SynchronizationIDMIP = 0x00
)

// Well-known PIDs.
const (
	PIDPAT    uint16 = 0x0000
	PIDCAT    uint16 = 0x0001
	PIDNIT    uint16 = 0x0010
	PIDSDTBAT uint16 = 0x0011
	PIDEIT    uint16 = 0x0012
	PIDMIP    uint16 = 0x0015
)

func (f Family) String() string {
	switch f {
	case FamilyPAT:
		return "PAT"
	case FamilyCAT:
		return "CAT"
	case FamilyPMT:
		return "PMT"
	case FamilyNIT:
		return "NIT"
	case FamilySDT:
		return "SDT"
	case FamilyBAT:
		return "BAT"
	case FamilyEIT:
		return "EIT"
	case FamilyAIT:
		return "AIT"
	case FamilyMIP:
		return "MIP"
	case FamilySCTE35:
		return "SCTE-35"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// SingleInstance reports whether the family keeps one instance per PID
// (plus table_id_extension and section_number) rather than a list of
// instances keyed by a composite identity.
func (f Family) SingleInstance() bool {
	switch f {
	case FamilyNIT, FamilySDT, FamilyBAT, FamilyEIT:
		return false
	}
	return true
}

// Accepts reports whether tableID belongs to the family.
func (f Family) Accepts(tableID byte) bool {
	switch f {
	case FamilyPAT:
		return tableID == TableIDPAT
	case FamilyCAT:
		return tableID == TableIDCAT
	case FamilyPMT:
		return tableID == TableIDPMT
	case FamilyNIT:
		return tableID == TableIDNITActual || tableID == TableIDNITOther
	case FamilySDT:
		return tableID == TableIDSDTActual || tableID == TableIDSDTOther
	case FamilyBAT:
		return tableID == TableIDBAT
	case FamilyEIT:
		return tableID >= TableIDEITFirst && tableID <= TableIDEITLast
	case FamilyAIT:
		return tableID == TableIDAIT
	case FamilyMIP:
		return tableID == SynchronizationIDMIP
	case FamilySCTE35:
		return tableID == TableIDSCTE35
	}
	return false
}

// LengthFunc returns the reassembly length function for the family.
func (f Family) LengthFunc() mpegts.LengthFunc {
	if f == FamilyMIP {
		return mpegts.MIPSectionLength
	}
	return mpegts.PSISectionLength
}

// Lookup returns the families a table_id can belong to.
func Lookup(tableID byte) []Family {
	var out []Family
	for _, f := range Families {
		if f.Accepts(tableID) {
			out = append(out, f)
		}
	}
	return out
}

// Header is the common section header.
type Header struct {
	TableID                byte
	SectionSyntaxIndicator bool
	PrivateIndicator       bool
	SectionLength          int

	// Long-form fields; zero when SectionSyntaxIndicator is clear.
	TableIDExtension  uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8

	CRC32 uint32
}

// SectionHeader returns the header; it lets every table satisfy Table by
// embedding Header.
func (h Header) SectionHeader() Header { return h }

// Table is a decoded section.
type Table interface {
	Family() Family
	SectionHeader() Header
}

// longHeaderSize is table_id through last_section_number.
const longHeaderSize = 8

// ParseHeader decodes the common header of a PSI/SI or SCTE-35 section.
func ParseHeader(section []byte) (Header, error) {
	if len(section) < 3+4 {
		return Header{}, fmt.Errorf("psi: section too short (%d bytes)", len(section))
	}
	h := Header{
		TableID:                section[0],
		SectionSyntaxIndicator: section[1]&0x80 != 0,
		PrivateIndicator:       section[1]&0x40 != 0,
		SectionLength:          mpegts.Length12(section[1:]),
		CRC32:                  mpegts.StoredCRC32(section),
	}
	if 3+h.SectionLength != len(section) {
		return Header{}, fmt.Errorf("psi: section_length %d does not match %d bytes", h.SectionLength, len(section))
	}
	if !h.SectionSyntaxIndicator {
		return h, nil
	}
	if len(section) < longHeaderSize+4 {
		return Header{}, fmt.Errorf("psi: long-form section too short (%d bytes)", len(section))
	}
	h.TableIDExtension = mpegts.Uint16(section[3:])
	h.Version = section[5] >> 1 & 0x1F
	h.CurrentNext = section[5]&0x01 != 0
	h.SectionNumber = section[6]
	h.LastSectionNumber = section[7]
	return h, nil
}

// parseMIPHeader decodes the megaframe initialization packet prefix:
// synchronization_id and the 8-bit section_length.
func parseMIPHeader(section []byte) (Header, error) {
	if len(section) < 2+4 {
		return Header{}, fmt.Errorf("psi: MIP too short (%d bytes)", len(section))
	}
	h := Header{
		TableID:       section[0],
		SectionLength: int(section[1]),
		CRC32:         mpegts.StoredCRC32(section),
	}
	if 2+h.SectionLength != len(section) {
		return Header{}, fmt.Errorf("psi: MIP section_length %d does not match %d bytes", h.SectionLength, len(section))
	}
	return h, nil
}

// body returns the bytes between the long-form header and the CRC.
func body(section []byte) []byte {
	return section[longHeaderSize : len(section)-4]
}
