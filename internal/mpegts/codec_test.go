package mpegts

import (
	"testing"
	"time"
)

func TestBCD(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      byte
		want    int
		wantErr bool
	}{
		{0x00, 0, false},
		{0x59, 59, false},
		{0x99, 99, false},
		{0x1A, 0, true},
		{0xA1, 0, true},
	}
	for _, tc := range tests {
		got, err := BCD(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("BCD(0x%02X) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("BCD(0x%02X) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMJDDate(t *testing.T) {
	t.Parallel()
	// EN 300 468 Annex C worked example.
	got := MJDDate(0xC079)
	want := time.Date(1993, time.October, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MJDDate(0xC079) = %v, want %v", got, want)
	}
}

func TestDVBTime(t *testing.T) {
	t.Parallel()
	got, err := DVBTime([]byte{0xC0, 0x79, 0x12, 0x45, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(1993, time.October, 13, 12, 45, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DVBTime = %v, want %v", got, want)
	}

	undefined, err := DVBTime([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if !undefined.IsZero() {
		t.Errorf("all-ones DVB time = %v, want zero", undefined)
	}

	if _, err := DVBTime([]byte{0xC0, 0x79, 0x3F, 0x00, 0x00}); err == nil {
		t.Error("expected error for invalid BCD hour")
	}
	if _, err := DVBTime([]byte{0xC0}); err == nil {
		t.Error("expected error for short input")
	}
}

func TestBCDDuration(t *testing.T) {
	t.Parallel()
	got, err := BCDDuration([]byte{0x01, 0x45, 0x30})
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Hour + 45*time.Minute + 30*time.Second; got != want {
		t.Errorf("BCDDuration = %v, want %v", got, want)
	}
}

func TestTimestamp(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{0, 1, 90_000, 0x1_FFFF_FFFF} {
		b := make([]byte, 5)
		putTimestamp(b, 0x2, v)
		got, err := Timestamp(b)
		if err != nil {
			t.Fatalf("Timestamp(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("Timestamp = %d, want %d", got, v)
		}
	}

	b := make([]byte, 5)
	putTimestamp(b, 0x2, 1234)
	b[2] &^= 0x01
	if _, err := Timestamp(b); err == nil {
		t.Error("expected error for cleared marker bit")
	}
}

func TestClockReference(t *testing.T) {
	t.Parallel()
	b := make([]byte, 6)
	putPCR(b, 0x1_FFFF_FFFF, 299)
	base, ext := ClockReference(b)
	if base != 0x1_FFFF_FFFF || ext != 299 {
		t.Errorf("ClockReference = (%d, %d), want (%d, 299)", base, ext, uint64(0x1_FFFF_FFFF))
	}
}

func TestPCRDelta(t *testing.T) {
	t.Parallel()
	if got := PCRDelta(100, 2_700_100); got != 2_700_000 {
		t.Errorf("PCRDelta = %d, want 2700000", got)
	}
	if got := PCRDelta(PCRModulus-10, 5); got != 15 {
		t.Errorf("PCRDelta across wrap = %d, want 15", got)
	}
}

func TestFieldReaders(t *testing.T) {
	t.Parallel()
	b := []byte{0xE1, 0x00, 0xF2, 0x34}
	if got := PID13(b); got != 0x0100 {
		t.Errorf("PID13 = 0x%X, want 0x100", got)
	}
	if got := Length12(b[2:]); got != 0x234 {
		t.Errorf("Length12 = 0x%X, want 0x234", got)
	}
	if got := Uint24(b); got != 0xE100F2 {
		t.Errorf("Uint24 = 0x%X", got)
	}
	if got := Uint32(b); got != 0xE100F234 {
		t.Errorf("Uint32 = 0x%X", got)
	}
}
