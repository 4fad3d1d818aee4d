package psi

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// Character tables selected by a leading byte below 0x20 (EN 300 468
// Annex A.2).
var singleByteTables = map[byte]encoding.Encoding{
	0x01: charmap.ISO8859_5,
	0x02: charmap.ISO8859_6,
	0x03: charmap.ISO8859_7,
	0x04: charmap.ISO8859_8,
	0x05: charmap.ISO8859_9,
	0x06: charmap.ISO8859_10,
	0x07: charmap.Windows874, // ISO/IEC 8859-11 superset
	0x09: charmap.ISO8859_13,
	0x0A: charmap.ISO8859_14,
	0x0B: charmap.ISO8859_15,
}

// Tables selected by 0x10 followed by a 16-bit ISO/IEC 8859 part number.
var iso8859Parts = map[uint16]encoding.Encoding{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	11: charmap.Windows874,
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
	16: charmap.ISO8859_16,
}

var multiByteTables = map[byte]encoding.Encoding{
	0x11: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	0x12: korean.EUCKR,
	0x13: simplifiedchinese.GBK,
	0x14: traditionalchinese.Big5,
}

// defaultTable stands in for the ISO/IEC 6937 default; the two agree on
// printable ASCII and most Latin-1 letters.
var defaultTable encoding.Encoding = charmap.ISO8859_1

// DecodeText decodes a DVB text field: an optional character table
// selector followed by the encoded characters. Emphasis control codes are
// dropped and the CR/LF control code becomes a newline.
func DecodeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	enc := defaultTable
	multiByte := false
	switch sel := b[0]; {
	case sel >= 0x20:
	case sel == 0x10:
		if len(b) < 3 {
			return ""
		}
		part := uint16(b[1])<<8 | uint16(b[2])
		if e, ok := iso8859Parts[part]; ok {
			enc = e
		}
		b = b[3:]
	case sel == 0x15:
		return stripControlRunes(strings.ToValidUTF8(string(b[1:]), "\uFFFD"))
	case sel == 0x1F:
		// Encoding type id follows; the scheme is not decoded.
		if len(b) < 2 {
			return ""
		}
		b = b[2:]
	default:
		if e, ok := singleByteTables[sel]; ok {
			enc = e
		} else if e, ok := multiByteTables[sel]; ok {
			enc = e
			multiByte = true
		}
		b = b[1:]
	}

	if !multiByte {
		b = stripControls(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	if multiByte {
		return stripControlRunes(string(out))
	}
	return string(out)
}

// stripControls removes the single-byte control codes 0x80-0x9F,
// translating 0x8A (CR/LF) to '\n'.
func stripControls(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch {
		case c == 0x8A:
			out = append(out, '\n')
		case c >= 0x80 && c <= 0x9F:
		default:
			out = append(out, c)
		}
	}
	return out
}

// stripControlRunes is stripControls for text already decoded from a
// multi-byte table, where the control codes are U+0080-U+009F.
func stripControlRunes(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x8A:
			return '\n'
		case r >= 0x80 && r <= 0x9F:
			return -1
		}
		return r
	}, s)
}
