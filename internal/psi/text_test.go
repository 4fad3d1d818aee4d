package psi

import "testing"

func TestDecodeText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", nil, ""},
		{"default table", []byte("BBC One"), "BBC One"},
		{"default latin", []byte{'C', 'a', 'f', 0xE9}, "Caf\u00e9"},
		{"ISO-8859-5", []byte{0x01, 0xB0}, "\u0410"},
		{"ISO-8859-9", []byte{0x05, 0xFD}, "\u0131"},
		{"ISO-8859 by part number", []byte{0x10, 0x00, 0x02, 0xB1}, "\u0105"},
		{"UTF-16BE", []byte{0x11, 0x00, 'A', 0x00, 'B'}, "AB"},
		{"UTF-8", append([]byte{0x15}, "h\u00e9llo \u0100"...), "h\u00e9llo \u0100"},
		{"UTF-8 control", append([]byte{0x15}, "a\u008Ab"...), "a\nb"},
		{"CR/LF control", []byte("Line1\x8ALine2"), "Line1\nLine2"},
		{"emphasis stripped", []byte("\x86Big\x87 news"), "Big news"},
		{"truncated part selector", []byte{0x10, 0x00}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DecodeText(tt.in); got != tt.want {
				t.Errorf("DecodeText(%X) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
