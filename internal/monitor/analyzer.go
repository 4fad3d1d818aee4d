// Package monitor tracks transport stream health: per-PID continuity
// counter loss and packet rates measured against the PCR of one base PID.
package monitor

import (
	"log/slog"
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// DefaultWindow is 100 ms of 27 MHz PCR ticks.
const DefaultWindow uint64 = mpegts.PCRFrequency / 10

// MaxPCRGap is the largest step between consecutive base PCRs treated as
// elapsed time. A larger step, including a backward jump, re-anchors the
// rate windows as a discontinuity does.
const MaxPCRGap uint64 = 5 * mpegts.PCRFrequency

// ContinuityEvent reports an out-of-sequence continuity counter.
type ContinuityEvent struct {
	PID      uint16
	Seq      int64
	Expected uint8
	Got      uint8

	// Errors is the PID's cumulative count including this one.
	Errors uint64
}

// RateSample is the packet count of one PID over a PCR-timed window.
type RateSample struct {
	PID           uint16
	Packets       uint64
	Ticks         uint64
	BitsPerSecond float64
}

// Findings is what one packet produced.
type Findings struct {
	Continuity *ContinuityEvent
	Rates      []RateSample
}

// Totals are session-wide counters.
type Totals struct {
	Packets          uint64
	TEIPackets       uint64
	ContinuityErrors uint64
	PIDs             int
	PCRPID           uint16
	HasPCRPID        bool
}

// Analyzer owns one PidMetric per PID. It never blocks and never fails;
// it is not safe for concurrent use.
type Analyzer struct {
	log     *slog.Logger
	window  uint64
	metrics map[uint16]*PidMetric

	pcrPID    uint16
	hasPCRPID bool
	lastPCR   uint64
	hasPCR    bool
	totals    Totals
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWindow sets the rate measurement window in 27 MHz ticks. Zero keeps
// the default.
func WithWindow(ticks uint64) Option {
	return func(a *Analyzer) {
		if ticks > 0 {
			a.window = ticks
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(log *slog.Logger, opts ...Option) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	a := &Analyzer{
		log:     log.With("component", "monitor"),
		window:  DefaultWindow,
		metrics: make(map[uint16]*PidMetric),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Window returns the rate measurement window in ticks.
func (a *Analyzer) Window() uint64 { return a.window }

// Offer runs one decoded packet through continuity and rate tracking.
// Placeholder packets are ignored.
func (a *Analyzer) Offer(p *mpegts.Packet) Findings {
	var f Findings
	if p == nil || p.Placeholder {
		return f
	}
	pid := p.Header.PID
	m, ok := a.metrics[pid]
	if !ok {
		m = newPidMetric(pid)
		a.metrics[pid] = m
	}

	a.totals.Packets++
	if p.Header.TransportErrorIndicator {
		a.totals.TEIPackets++
	}
	if ev := m.observe(p); ev != nil {
		a.totals.ContinuityErrors++
		f.Continuity = ev
	}

	af := p.AdaptationField
	if af == nil || af.PCR == nil {
		return f
	}
	if !a.hasPCRPID {
		a.pcrPID, a.hasPCRPID = pid, true
		a.log.Info("selected PCR base", "pid", pid)
	}
	if pid != a.pcrPID {
		return f
	}

	pcr := af.PCR.Ticks()
	prev, hadPCR := a.lastPCR, a.hasPCR
	a.lastPCR, a.hasPCR = pcr, true
	jump := hadPCR && mpegts.PCRDelta(prev, pcr) > MaxPCRGap
	if jump && !af.DiscontinuityIndicator {
		a.log.Warn("PCR jump without discontinuity", "pid", pid, "previous", prev, "pcr", pcr)
	}
	if af.DiscontinuityIndicator || jump {
		for _, pm := range a.metrics {
			pm.anchor(pcr)
		}
		return f
	}
	for _, pm := range a.metrics {
		if s, ok := pm.tick(pcr, a.window); ok {
			f.Rates = append(f.Rates, s)
		}
	}
	sort.Slice(f.Rates, func(i, j int) bool { return f.Rates[i].PID < f.Rates[j].PID })
	return f
}

// PCRPID returns the PCR base PID once one has been seen.
func (a *Analyzer) PCRPID() (uint16, bool) { return a.pcrPID, a.hasPCRPID }

// Metric returns a copy of the metric for pid.
func (a *Analyzer) Metric(pid uint16) (PidMetric, bool) {
	m, ok := a.metrics[pid]
	if !ok {
		return PidMetric{}, false
	}
	return *m, true
}

// Snapshot returns copies of every metric ordered by PID.
func (a *Analyzer) Snapshot() []PidMetric {
	out := make([]PidMetric, 0, len(a.metrics))
	for _, m := range a.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Totals returns session-wide counters.
func (a *Analyzer) Totals() Totals {
	t := a.totals
	t.PIDs = len(a.metrics)
	t.PCRPID, t.HasPCRPID = a.pcrPID, a.hasPCRPID
	return t
}
