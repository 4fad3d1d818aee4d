package mpegts

import (
	"fmt"
	"time"
)

const (
	// PCRFrequency is the 27 MHz system clock that PCR values count in.
	PCRFrequency = 27_000_000

	// PCRModulus is the point at which a 42-bit PCR (33-bit base * 300 +
	// 9-bit extension) wraps.
	PCRModulus = (1 << 33) * 300

	// PTSModulus is the wrap point of a 33-bit PTS/DTS.
	PTSModulus = 1 << 33
)

// mjdEpoch is Modified Julian Date day 0.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// Uint16 reads a big-endian uint16 from the first 2 bytes of b.
func Uint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// Uint24 reads a big-endian 24-bit value from the first 3 bytes of b.
func Uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32 reads a big-endian uint32 from the first 4 bytes of b.
func Uint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// PID13 reads a 13-bit PID from 2 bytes, ignoring the 3 leading bits.
func PID13(b []byte) uint16 {
	return uint16(b[0]&0x1F)<<8 | uint16(b[1])
}

// Length12 reads a 12-bit length field from 2 bytes, ignoring the 4
// leading bits.
func Length12(b []byte) int {
	return int(b[0]&0x0F)<<8 | int(b[1])
}

// BCD decodes one packed binary-coded-decimal byte (two digits).
func BCD(b byte) (int, error) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, fmt.Errorf("mpegts: invalid BCD byte 0x%02X", b)
	}
	return int(hi)*10 + int(lo), nil
}

// MJDDate converts a 16-bit Modified Julian Date to a UTC midnight time.
func MJDDate(mjd uint16) time.Time {
	return mjdEpoch.AddDate(0, 0, int(mjd))
}

// BCDDuration decodes a 24-bit hh:mm:ss BCD duration.
func BCDDuration(b []byte) (time.Duration, error) {
	if len(b) < 3 {
		return 0, fmt.Errorf("mpegts: BCD duration needs 3 bytes, got %d", len(b))
	}
	var parts [3]int
	for i := range parts {
		v, err := BCD(b[i])
		if err != nil {
			return 0, err
		}
		parts[i] = v
	}
	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second, nil
}

// DVBTime decodes the 40-bit UTC time used by EIT/TDT/TOT: 16-bit MJD
// followed by 24-bit BCD hh:mm:ss. An all-ones value means undefined and
// yields the zero time.
func DVBTime(b []byte) (time.Time, error) {
	if len(b) < 5 {
		return time.Time{}, fmt.Errorf("mpegts: DVB time needs 5 bytes, got %d", len(b))
	}
	if b[0] == 0xFF && b[1] == 0xFF && b[2] == 0xFF && b[3] == 0xFF && b[4] == 0xFF {
		return time.Time{}, nil
	}
	day := MJDDate(Uint16(b))
	d, err := BCDDuration(b[2:5])
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(d), nil
}

// Timestamp decodes a 33-bit PTS or DTS from its 5-byte marker-bit layout.
func Timestamp(bs []byte) (int64, error) {
	if len(bs) < 5 {
		return 0, fmt.Errorf("mpegts: timestamp needs 5 bytes, got %d", len(bs))
	}
	if bs[0]&0x01 == 0 || bs[2]&0x01 == 0 || bs[4]&0x01 == 0 {
		return 0, fmt.Errorf("mpegts: timestamp marker bits not set")
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
	return base, nil
}

// ClockReference decodes a 48-bit PCR/OPCR field: 33-bit base, 6 reserved
// bits, 9-bit extension.
func ClockReference(b []byte) (base uint64, ext uint16) {
	base = uint64(b[0])<<25 |
		uint64(b[1])<<17 |
		uint64(b[2])<<9 |
		uint64(b[3])<<1 |
		uint64(b[4])>>7
	ext = uint16(b[4]&0x01)<<8 | uint16(b[5])
	return base, ext
}

// PCRDelta returns the forward distance in 27 MHz ticks from prev to
// next, accounting for a single PCR wrap.
func PCRDelta(prev, next uint64) uint64 {
	if next >= prev {
		return next - prev
	}
	return PCRModulus - prev + next
}
