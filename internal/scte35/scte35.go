// Package scte35 decodes SCTE-35 splice_info_section tables carried on
// splice PIDs. Commands and descriptors are dispatched by their type and
// tag bytes; anything not recognised is kept as raw bytes so callers still
// see the section.
package scte35

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// TableID is the table_id of a splice_info_section.
const TableID = 0xFC

// legacyCommandLength marks a splice_command_length that must be derived
// by decoding the command itself.
const legacyCommandLength = 0xFFF

// headerSize is the number of bytes before the splice command: the 3-byte
// section prefix plus protocol_version through splice_command_type.
const headerSize = 14

// SpliceInfoSection is a decoded splice_info_section.
type SpliceInfoSection struct {
	SAPType             uint8
	SectionLength       int
	ProtocolVersion     uint8
	EncryptedPacket     bool
	EncryptionAlgorithm uint8
	PTSAdjustment       uint64
	CWIndex             uint8
	Tier                uint16
	SpliceCommandLength int
	SpliceCommandType   uint8

	SpliceCommand     SpliceCommand
	SpliceDescriptors []SpliceDescriptor

	CRC32 uint32
}

// AdjustedPTS applies pts_adjustment to a splice time, wrapping at 33 bits.
// It returns false when the splice time carries no PTS.
func (s *SpliceInfoSection) AdjustedPTS(t SpliceTime) (uint64, bool) {
	if t.PTSTime == nil {
		return 0, false
	}
	return (*t.PTSTime + s.PTSAdjustment) % mpegts.PTSModulus, true
}

// Decode parses a complete splice_info_section including its CRC32.
func Decode(section []byte) (*SpliceInfoSection, error) {
	if len(section) < headerSize+2+4 {
		return nil, fmt.Errorf("scte35: section too short (%d bytes)", len(section))
	}
	if section[0] != TableID {
		return nil, fmt.Errorf("scte35: table_id 0x%02X, expected 0x%02X", section[0], TableID)
	}
	if err := mpegts.VerifyCRC32(section); err != nil {
		return nil, fmt.Errorf("scte35: %w", err)
	}

	r := newReader(section)
	s := &SpliceInfoSection{}
	r.TryReadBits(8) // table_id
	r.TryReadBits(2) // section_syntax_indicator, private_indicator
	s.SAPType = uint8(r.TryReadBits(2))
	s.SectionLength = int(r.TryReadBits(12))
	s.ProtocolVersion = uint8(r.TryReadBits(8))
	s.EncryptedPacket = readFlag(r)
	s.EncryptionAlgorithm = uint8(r.TryReadBits(6))
	s.PTSAdjustment = r.TryReadBits(33)
	s.CWIndex = uint8(r.TryReadBits(8))
	s.Tier = uint16(r.TryReadBits(12))
	s.SpliceCommandLength = int(r.TryReadBits(12))
	s.SpliceCommandType = uint8(r.TryReadBits(8))
	if err := readError(r, "section header"); err != nil {
		return nil, err
	}
	if 3+s.SectionLength != len(section) {
		return nil, fmt.Errorf("scte35: section_length %d does not match %d bytes", s.SectionLength, len(section))
	}
	s.CRC32 = mpegts.StoredCRC32(section)

	body := section[headerSize : len(section)-4]
	if s.EncryptedPacket {
		// Command, descriptors and E_CRC_32 are all encrypted.
		s.SpliceCommand = &OpaqueCommand{CommandType: s.SpliceCommandType, Data: clone(body)}
		return s, nil
	}

	cmdLen := s.SpliceCommandLength
	if cmdLen == legacyCommandLength {
		cmd, n, err := decodeCommandPrefix(s.SpliceCommandType, body)
		if err != nil {
			return nil, err
		}
		s.SpliceCommand = cmd
		cmdLen = n
	} else {
		if cmdLen > len(body) {
			return nil, fmt.Errorf("scte35: splice_command_length %d exceeds %d available bytes", cmdLen, len(body))
		}
		cmd, err := decodeCommand(s.SpliceCommandType, body[:cmdLen])
		if err != nil {
			return nil, err
		}
		s.SpliceCommand = cmd
	}

	rest := body[cmdLen:]
	if len(rest) == 0 && s.SpliceCommandLength == legacyCommandLength {
		return s, nil
	}
	if len(rest) < 2 {
		return nil, fmt.Errorf("scte35: descriptor_loop_length missing")
	}
	loopLen := int(mpegts.Uint16(rest))
	if 2+loopLen > len(rest) {
		return nil, fmt.Errorf("scte35: descriptor_loop_length %d exceeds %d available bytes", loopLen, len(rest)-2)
	}
	descs, err := decodeDescriptors(rest[2 : 2+loopLen])
	if err != nil {
		return nil, err
	}
	s.SpliceDescriptors = descs
	return s, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
