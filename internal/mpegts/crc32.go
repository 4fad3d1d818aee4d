package mpegts

import "fmt"

// MPEG-2 CRC32 with polynomial 0x04C11DB7, no reflection, no final XOR.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// CRC32 computes the CRC-32/MPEG2 checksum of data.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// StoredCRC32 returns the big-endian CRC32 carried in the last 4 bytes of
// a section.
func StoredCRC32(section []byte) uint32 {
	if len(section) < 4 {
		return 0
	}
	return Uint32(section[len(section)-4:])
}

// VerifyCRC32 checks that the last 4 bytes of section are the CRC32 of
// the preceding bytes.
func VerifyCRC32(section []byte) error {
	if len(section) < 4 {
		return fmt.Errorf("mpegts: data too short for CRC32")
	}
	computed := CRC32(section[:len(section)-4])
	stored := StoredCRC32(section)
	if computed != stored {
		return fmt.Errorf("mpegts: CRC32 mismatch: computed 0x%08X, stored 0x%08X", computed, stored)
	}
	return nil
}
