package mpegts_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/tsutil"
)

func decodeAll(t *testing.T, pkts [][]byte) []*mpegts.Packet {
	t.Helper()
	out := make([]*mpegts.Packet, len(pkts))
	for i, b := range pkts {
		p, err := mpegts.Decode(b, int64(i))
		if err != nil {
			t.Fatalf("decode packet %d: %v", i, err)
		}
		out[i] = p
	}
	return out
}

func pushAll(t *testing.T, r *mpegts.Reassembler, pkts []*mpegts.Packet) ([][]byte, []error) {
	t.Helper()
	var sections [][]byte
	var errs []error
	for _, p := range pkts {
		done, err := r.Push(p)
		sections = append(sections, done...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return sections, errs
}

func body(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func framingKind(t *testing.T, err error) mpegts.FramingKind {
	t.Helper()
	var fe *mpegts.FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FramingError", err)
	}
	return fe.Kind
}

func TestReassembler_SinglePacket(t *testing.T) {
	t.Parallel()
	sec := tsutil.LongSection(0x00, 1, 0, 0, 0, []byte{0x00, 0x01, 0xE1, 0x00})
	var cc uint8
	pkts := decodeAll(t, tsutil.PacketizeSection(0, sec, &cc))

	r := mpegts.NewReassembler(0, nil)
	got, errs := pushAll(t, r, pkts)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(got) != 1 || !bytes.Equal(got[0], sec) {
		t.Fatalf("got %d sections, want the original", len(got))
	}
	if r.InProgress() {
		t.Error("reassembler should be idle after a complete section")
	}
}

func TestReassembler_EverySplitPoint(t *testing.T) {
	t.Parallel()
	sec := tsutil.LongSection(0x42, 0x0100, 3, 0, 0, body(388, 0x10))
	if len(sec) != 400 {
		t.Fatalf("section length = %d, want 400", len(sec))
	}

	for cut := 1; cut <= 183; cut++ {
		var cc uint8
		pkts := decodeAll(t, tsutil.SplitSection(0x11, sec, cut, &cc))
		r := mpegts.NewReassembler(0x11, nil)
		got, errs := pushAll(t, r, pkts)
		if len(errs) != 0 {
			t.Fatalf("cut %d: unexpected errors: %v", cut, errs)
		}
		if len(got) != 1 || !bytes.Equal(got[0], sec) {
			t.Fatalf("cut %d: got %d sections, want the original", cut, len(got))
		}
	}
}

func TestReassembler_MultipleSectionsPerPacket(t *testing.T) {
	t.Parallel()
	a := tsutil.LongSection(0x4E, 1, 0, 0, 1, body(8, 0))
	b := tsutil.LongSection(0x4E, 1, 0, 1, 1, body(20, 0x40))
	payload := append([]byte{0x00}, a...)
	payload = append(payload, b...)

	p, err := mpegts.Decode(tsutil.Packet(0x12, 0, true, payload), 0)
	if err != nil {
		t.Fatal(err)
	}
	r := mpegts.NewReassembler(0x12, nil)
	got, err := r.Push(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sections, want 2", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Error("sections differ from the originals")
	}
}

func TestReassembler_CompletesPendingBeforePointer(t *testing.T) {
	t.Parallel()
	first := tsutil.LongSection(0x42, 1, 0, 0, 0, body(188, 0))
	second := tsutil.LongSection(0x42, 2, 0, 0, 0, body(4, 0x80))

	// Packet 1 carries the first 183 bytes of first; packet 2 carries the
	// remaining 17 bytes ahead of the pointer, then second.
	p1 := append([]byte{0x00}, first[:183]...)
	rest := first[183:]
	p2 := append([]byte{byte(len(rest))}, rest...)
	p2 = append(p2, second...)

	pkts := decodeAll(t, [][]byte{
		tsutil.Packet(0x11, 0, true, p1),
		tsutil.Packet(0x11, 1, true, p2),
	})
	r := mpegts.NewReassembler(0x11, nil)
	got, errs := pushAll(t, r, pkts)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(got) != 2 || !bytes.Equal(got[0], first) || !bytes.Equal(got[1], second) {
		t.Fatalf("got %d sections, want first then second", len(got))
	}
}

func TestReassembler_PointerOverflow(t *testing.T) {
	t.Parallel()
	p, err := mpegts.Decode(tsutil.Packet(0x00, 0, true, []byte{184}), 5)
	if err != nil {
		t.Fatal(err)
	}
	r := mpegts.NewReassembler(0, nil)
	got, err := r.Push(p)
	if len(got) != 0 {
		t.Errorf("got %d sections, want none", len(got))
	}
	if k := framingKind(t, err); k != mpegts.FramingPointerOverflow {
		t.Errorf("kind = %v, want pointer overflow", k)
	}
	var fe *mpegts.FramingError
	errors.As(err, &fe)
	if fe.PID != 0 || fe.Seq != 5 {
		t.Errorf("FramingError PID/Seq = %d/%d, want 0/5", fe.PID, fe.Seq)
	}

	// The next well-formed section on the PID still decodes.
	sec := tsutil.LongSection(0x00, 1, 0, 0, 0, []byte{0x00, 0x01, 0xE1, 0x00})
	cc := uint8(1)
	got, errs := pushAll(t, r, decodeAll(t, tsutil.PacketizeSection(0, sec, &cc)))
	if len(errs) != 0 || len(got) != 1 {
		t.Errorf("recovery: %d sections, errors %v", len(got), errs)
	}
}

func TestReassembler_TruncatedSection(t *testing.T) {
	t.Parallel()
	long := tsutil.LongSection(0x42, 1, 0, 0, 0, body(388, 0))
	next := tsutil.LongSection(0x42, 2, 0, 0, 0, body(4, 0x80))

	p1 := append([]byte{0x00}, long[:183]...)
	p2 := append([]byte{10}, long[183:193]...)
	p2 = append(p2, next...)

	pkts := decodeAll(t, [][]byte{
		tsutil.Packet(0x11, 0, true, p1),
		tsutil.Packet(0x11, 1, true, p2),
	})
	r := mpegts.NewReassembler(0x11, nil)
	if _, err := r.Push(pkts[0]); err != nil {
		t.Fatal(err)
	}
	got, err := r.Push(pkts[1])
	if k := framingKind(t, err); k != mpegts.FramingTruncated {
		t.Errorf("kind = %v, want truncated section", k)
	}
	if len(got) != 1 || !bytes.Equal(got[0], next) {
		t.Fatalf("got %d sections, want the section after the pointer", len(got))
	}
}

func TestReassembler_ContinuationWithoutStartIgnored(t *testing.T) {
	t.Parallel()
	p, err := mpegts.Decode(tsutil.Packet(0x10, 7, false, body(184, 0)), 0)
	if err != nil {
		t.Fatal(err)
	}
	r := mpegts.NewReassembler(0x10, nil)
	got, err := r.Push(p)
	if err != nil || len(got) != 0 {
		t.Errorf("Push = (%d sections, %v), want nothing", len(got), err)
	}
}

func TestReassembler_ContinuityGap(t *testing.T) {
	t.Parallel()
	sec := tsutil.LongSection(0x42, 1, 0, 0, 0, body(388, 0))
	var cc uint8
	pkts := decodeAll(t, tsutil.PacketizeSection(0x11, sec, &cc))
	if len(pkts) != 3 {
		t.Fatalf("packets = %d, want 3", len(pkts))
	}

	r := mpegts.NewReassembler(0x11, nil)
	if _, err := r.Push(pkts[0]); err != nil {
		t.Fatal(err)
	}
	got, err := r.Push(pkts[2])
	if k := framingKind(t, err); k != mpegts.FramingDiscontinuity {
		t.Errorf("kind = %v, want continuity gap", k)
	}
	if len(got) != 0 || r.InProgress() {
		t.Error("gap should discard the partial section")
	}
}

func TestReassembler_DuplicatePacketIgnored(t *testing.T) {
	t.Parallel()
	sec := tsutil.LongSection(0x42, 1, 0, 0, 0, body(388, 0))
	var cc uint8
	pkts := decodeAll(t, tsutil.PacketizeSection(0x11, sec, &cc))

	r := mpegts.NewReassembler(0x11, nil)
	got, errs := pushAll(t, r, []*mpegts.Packet{pkts[0], pkts[1], pkts[1], pkts[2]})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(got) != 1 || !bytes.Equal(got[0], sec) {
		t.Fatalf("got %d sections, want the original once", len(got))
	}
}

func TestReassembler_TransportErrorMidSection(t *testing.T) {
	t.Parallel()
	sec := tsutil.LongSection(0x42, 1, 0, 0, 0, body(388, 0))
	var cc uint8
	raw := tsutil.PacketizeSection(0x11, sec, &cc)
	raw[1][1] |= 0x80
	pkts := decodeAll(t, raw)

	r := mpegts.NewReassembler(0x11, nil)
	if _, err := r.Push(pkts[0]); err != nil {
		t.Fatal(err)
	}
	_, err := r.Push(pkts[1])
	if k := framingKind(t, err); k != mpegts.FramingTransportError {
		t.Errorf("kind = %v, want transport error", k)
	}
	if r.InProgress() {
		t.Error("TEI should discard the partial section")
	}
}

func TestReassembler_LengthOutOfRange(t *testing.T) {
	t.Parallel()
	p, err := mpegts.Decode(tsutil.Packet(0x11, 0, true, []byte{0x00, 0x42, 0xFF, 0xFF}), 0)
	if err != nil {
		t.Fatal(err)
	}
	r := mpegts.NewReassembler(0x11, nil)
	_, err = r.Push(p)
	if k := framingKind(t, err); k != mpegts.FramingLength {
		t.Errorf("kind = %v, want invalid section length", k)
	}
}

func TestReassembler_MIPLength(t *testing.T) {
	t.Parallel()
	// synchronization_id 0x00, section_length 6 covering the 2-byte
	// header remainder plus CRC.
	mip := []byte{0x00, 0x06, 0x12, 0x34, 0xAA, 0xBB, 0xCC, 0xDD}
	p, err := mpegts.Decode(tsutil.Packet(0x15, 0, true, append([]byte{0x00}, mip...)), 0)
	if err != nil {
		t.Fatal(err)
	}
	r := mpegts.NewReassembler(0x15, mpegts.MIPSectionLength)
	got, err := r.Push(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], mip) {
		t.Fatalf("got %v, want %X", got, mip)
	}
}
