package monitor_test

import (
	"testing"

	"github.com/zsiec/tsprobe/internal/monitor"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/tsutil"
)

const (
	videoPID = 0x100
	audioPID = 0x101
	dataPID  = 0x200
)

func decode(t *testing.T, buf []byte, seq int64) *mpegts.Packet {
	t.Helper()
	p, err := mpegts.Decode(buf, seq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return p
}

func payload(pid uint16, cc uint8) []byte {
	return tsutil.Packet(pid, cc, false, []byte{0x01, 0x02})
}

func errored(pid uint16, cc uint8) []byte {
	pkt := payload(pid, cc)
	pkt[1] |= 0x80
	return pkt
}

func adaptationOnly(pid uint16, cc uint8) []byte {
	return tsutil.AdaptationPacket(pid, cc, 0x00, 0, nil)
}

func discontinuity(pid uint16, cc uint8) []byte {
	return tsutil.AdaptationPacket(pid, cc, 0x80, 0, []byte{0xAA})
}

func offerAll(t *testing.T, a *monitor.Analyzer, pkts ...[]byte) []monitor.Findings {
	t.Helper()
	var out []monitor.Findings
	for i, buf := range pkts {
		out = append(out, a.Offer(decode(t, buf, int64(i))))
	}
	return out
}

func TestContinuity(t *testing.T) {
	t.Parallel()
	var wrap [][]byte
	for i := 0; i < 20; i++ {
		wrap = append(wrap, payload(videoPID, uint8(i)&0x0F))
	}
	tests := []struct {
		name string
		pkts [][]byte
		want uint64
	}{
		{"in order across wrap", wrap, 0},
		{"two skips", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), payload(videoPID, 3),
			payload(videoPID, 4), payload(videoPID, 6),
		}, 2},
		{"null PID never checked", [][]byte{
			tsutil.NullPacket(0), tsutil.NullPacket(5), tsutil.NullPacket(9),
		}, 0},
		{"clean packet follows errored counter", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), errored(videoPID, 7), payload(videoPID, 8),
		}, 0},
		{"corrupt counter on errored packet", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), errored(videoPID, 7), payload(videoPID, 2),
		}, 0},
		{"errored packet in sequence", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), errored(videoPID, 2), payload(videoPID, 3),
		}, 0},
		{"skip after errored packet", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), errored(videoPID, 7), payload(videoPID, 4),
		}, 1},
		{"adaptation-only keeps counter", [][]byte{
			payload(videoPID, 0), adaptationOnly(videoPID, 0), payload(videoPID, 1),
		}, 0},
		{"adaptation-only advancing", [][]byte{
			payload(videoPID, 0), adaptationOnly(videoPID, 1),
		}, 1},
		{"single duplicate", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), payload(videoPID, 1), payload(videoPID, 2),
		}, 0},
		{"second duplicate", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), payload(videoPID, 1), payload(videoPID, 1),
		}, 1},
		{"discontinuity indicator", [][]byte{
			payload(videoPID, 0), payload(videoPID, 1), discontinuity(videoPID, 9), payload(videoPID, 10),
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := monitor.NewAnalyzer(nil)
			offerAll(t, a, tt.pkts...)
			if got := a.Totals().ContinuityErrors; got != tt.want {
				t.Errorf("ContinuityErrors = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContinuityEvent(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil)
	f := offerAll(t, a, payload(videoPID, 4), payload(videoPID, 5), payload(videoPID, 9), payload(videoPID, 10))

	for i, fi := range f {
		if i != 2 && fi.Continuity != nil {
			t.Errorf("packet %d: unexpected event %+v", i, fi.Continuity)
		}
	}
	ev := f[2].Continuity
	if ev == nil {
		t.Fatal("no event for skipped counter")
	}
	want := monitor.ContinuityEvent{PID: videoPID, Seq: 2, Expected: 6, Got: 9, Errors: 1}
	if *ev != want {
		t.Errorf("event = %+v, want %+v", *ev, want)
	}
}

func TestPCRBaseSelection(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil)
	if _, ok := a.PCRPID(); ok {
		t.Fatal("PCR PID selected before any PCR")
	}
	offerAll(t, a,
		payload(dataPID, 0),
		tsutil.PCRPacket(videoPID, 0, 1000),
		tsutil.PCRPacket(audioPID, 0, 5000),
	)
	pid, ok := a.PCRPID()
	if !ok || pid != videoPID {
		t.Errorf("PCRPID = 0x%X, %v; want 0x%X", pid, ok, videoPID)
	}

	// PCRs on another PID never drive sampling.
	f := a.Offer(decode(t, tsutil.PCRPacket(audioPID, 0, 5000+10*monitor.DefaultWindow), 3))
	if len(f.Rates) != 0 {
		t.Errorf("rates from non-base PID: %+v", f.Rates)
	}
}

func TestRateSampling(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil)
	w := monitor.DefaultWindow
	if a.Window() != 2_700_000 {
		t.Fatalf("Window = %d, want 2700000", a.Window())
	}

	var seq int64
	offer := func(buf []byte) monitor.Findings {
		seq++
		return a.Offer(decode(t, buf, seq))
	}

	if f := offer(tsutil.PCRPacket(videoPID, 0, 1000)); len(f.Rates) != 0 {
		t.Fatalf("first PCR sampled: %+v", f.Rates)
	}
	if f := offer(tsutil.PCRPacket(videoPID, 0, 1000+w/2)); len(f.Rates) != 0 {
		t.Fatalf("sampled before window elapsed: %+v", f.Rates)
	}
	for cc := uint8(0); cc < 10; cc++ {
		offer(payload(dataPID, cc))
	}

	// The data PID is first anchored here, so only the base PID samples.
	f := offer(tsutil.PCRPacket(videoPID, 0, 1000+w))
	if len(f.Rates) != 1 || f.Rates[0].PID != videoPID {
		t.Fatalf("rates = %+v, want one sample for 0x%X", f.Rates, videoPID)
	}
	if got := f.Rates[0]; got.Packets != 2 || got.Ticks != w {
		t.Errorf("base sample = %+v, want 2 packets over %d ticks", got, w)
	}

	for cc := uint8(10); cc < 15; cc++ {
		offer(payload(dataPID, cc))
	}
	f = offer(tsutil.PCRPacket(videoPID, 0, 1000+2*w))
	if len(f.Rates) != 2 {
		t.Fatalf("rates = %+v, want 2 samples", f.Rates)
	}
	if f.Rates[0].PID != videoPID || f.Rates[1].PID != dataPID {
		t.Errorf("rates not ordered by PID: %+v", f.Rates)
	}
	got := f.Rates[1]
	if got.Packets != 5 || got.Ticks != w {
		t.Errorf("data sample = %+v, want 5 packets over %d ticks", got, w)
	}
	// 5 packets * 1504 bits in 100 ms.
	if got.BitsPerSecond != 75200 {
		t.Errorf("BitsPerSecond = %v, want 75200", got.BitsPerSecond)
	}

	m, ok := a.Metric(dataPID)
	if !ok || m.LastRate != got {
		t.Errorf("Metric(0x%X).LastRate = %+v, want %+v", dataPID, m.LastRate, got)
	}
}

func TestRateAcrossPCRWrap(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil, monitor.WithWindow(1000))
	if a.Window() != 1000 {
		t.Fatalf("Window = %d, want 1000", a.Window())
	}
	f := offerAll(t, a,
		tsutil.PCRPacket(videoPID, 0, mpegts.PCRModulus-500),
		tsutil.PCRPacket(videoPID, 0, 600),
	)
	if len(f[1].Rates) != 1 {
		t.Fatalf("rates = %+v, want one sample", f[1].Rates)
	}
	if got := f[1].Rates[0].Ticks; got != 1100 {
		t.Errorf("Ticks = %d, want 1100", got)
	}
}

func TestWithWindowZeroKeepsDefault(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil, monitor.WithWindow(0))
	if a.Window() != monitor.DefaultWindow {
		t.Errorf("Window = %d, want %d", a.Window(), monitor.DefaultWindow)
	}
}

func TestPCRDiscontinuityReanchors(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil)
	w := monitor.DefaultWindow
	f := offerAll(t, a,
		tsutil.PCRPacket(videoPID, 0, 0),
		tsutil.AdaptationPacket(videoPID, 3, 0x90, 5_000_000_000, nil),
		tsutil.PCRPacket(videoPID, 3, 5_000_000_000+w/2),
		tsutil.PCRPacket(videoPID, 3, 5_000_000_000+w),
	)
	if len(f[1].Rates) != 0 || len(f[2].Rates) != 0 {
		t.Errorf("sampled across discontinuity: %+v %+v", f[1].Rates, f[2].Rates)
	}
	if len(f[3].Rates) != 1 || f[3].Rates[0].Ticks != w {
		t.Errorf("rates after re-anchor = %+v, want one sample over %d ticks", f[3].Rates, w)
	}
	if n := a.Totals().ContinuityErrors; n != 0 {
		t.Errorf("ContinuityErrors = %d, want 0", n)
	}
}

func TestPCRJumpReanchors(t *testing.T) {
	t.Parallel()
	w := monitor.DefaultWindow
	tests := []struct {
		name string
		next uint64
	}{
		{"backward", 1_000_000},
		{"forward", 50_000_000 + monitor.MaxPCRGap + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := monitor.NewAnalyzer(nil)
			f := offerAll(t, a,
				tsutil.PCRPacket(videoPID, 0, 50_000_000),
				tsutil.PCRPacket(videoPID, 0, tt.next),
				tsutil.PCRPacket(videoPID, 0, tt.next+w),
			)
			if len(f[1].Rates) != 0 {
				t.Errorf("sampled across jump: %+v", f[1].Rates)
			}
			if len(f[2].Rates) != 1 || f[2].Rates[0].Ticks != w {
				t.Errorf("rates after jump = %+v, want one sample over %d ticks", f[2].Rates, w)
			}
		})
	}
}

func TestSnapshotAndTotals(t *testing.T) {
	t.Parallel()
	a := monitor.NewAnalyzer(nil)
	a.Offer(nil)
	a.Offer(&mpegts.Packet{Placeholder: true, Header: mpegts.PacketHeader{PID: mpegts.NullPID}})
	offerAll(t, a,
		payload(dataPID, 0),
		payload(videoPID, 0),
		errored(videoPID, 1),
		tsutil.NullPacket(0),
		payload(dataPID, 5),
	)

	tot := a.Totals()
	want := monitor.Totals{Packets: 5, TEIPackets: 1, ContinuityErrors: 1, PIDs: 3}
	if tot != want {
		t.Errorf("Totals = %+v, want %+v", tot, want)
	}

	snap := a.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot has %d metrics, want 3", len(snap))
	}
	pids := []uint16{videoPID, dataPID, mpegts.NullPID}
	for i, m := range snap {
		if m.PID != pids[i] {
			t.Errorf("snap[%d].PID = 0x%X, want 0x%X", i, m.PID, pids[i])
		}
	}
	if snap[0].Packets != 2 || snap[0].TEIPackets != 1 {
		t.Errorf("video metric = %+v", snap[0])
	}
	if snap[1].ContinuityErrors != 1 {
		t.Errorf("data ContinuityErrors = %d, want 1", snap[1].ContinuityErrors)
	}
	if _, ok := a.Metric(0x999); ok {
		t.Error("Metric for unseen PID reported present")
	}
}
