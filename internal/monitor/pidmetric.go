package monitor

import "github.com/zsiec/tsprobe/internal/mpegts"

// PidMetric is the running state of one PID.
type PidMetric struct {
	PID              uint16
	Packets          uint64
	TEIPackets       uint64
	ContinuityErrors uint64

	// LastRate is the most recent rate sample, zero until one is taken.
	LastRate RateSample

	lastCC         uint8
	ccValid        bool
	lastHadPayload bool
	repeated       bool

	// altCC is the counter of an out-of-sequence TEI-flagged packet. The
	// next clean packet may follow either it or lastCC.
	altCC    uint8
	altValid bool

	anchored      bool
	anchorPackets uint64
	anchorPCR     uint64
}

func newPidMetric(pid uint16) *PidMetric {
	return &PidMetric{PID: pid}
}

// observe counts p and checks its continuity counter. It returns a
// non-nil event when the counter is out of sequence.
func (m *PidMetric) observe(p *mpegts.Packet) *ContinuityEvent {
	m.Packets++
	h := p.Header
	if h.TransportErrorIndicator {
		m.TEIPackets++
	}
	if h.PID == mpegts.NullPID {
		return nil
	}

	cc := h.ContinuityCounter
	if h.TransportErrorIndicator && m.ccValid {
		// The header may be corrupt; only an in-sequence counter advances.
		if h.HasPayload && cc == (m.lastCC+1)&0x0F {
			m.setReference(cc, true)
		} else {
			m.altCC, m.altValid = cc, true
		}
		return nil
	}
	skip := !m.ccValid || h.TransportErrorIndicator ||
		(p.AdaptationField != nil && p.AdaptationField.DiscontinuityIndicator)
	if skip {
		m.setReference(cc, h.HasPayload)
		return nil
	}

	alt := m.altValid
	m.altValid = false
	if h.HasPayload {
		if cc == (m.lastCC+1)&0x0F || alt && cc == (m.altCC+1)&0x0F {
			m.setReference(cc, true)
			return nil
		}
		// One repeat of a payload packet is a legal duplicate.
		if cc == m.lastCC && m.lastHadPayload && !m.repeated {
			m.repeated = true
			return nil
		}
		return m.mismatch(p, (m.lastCC+1)&0x0F, cc)
	}

	if cc == m.lastCC || alt && cc == m.altCC {
		m.lastCC = cc
		m.lastHadPayload = false
		return nil
	}
	return m.mismatch(p, m.lastCC, cc)
}

func (m *PidMetric) setReference(cc uint8, payload bool) {
	m.lastCC = cc
	m.ccValid = true
	m.lastHadPayload = payload
	m.repeated = false
	m.altValid = false
}

func (m *PidMetric) mismatch(p *mpegts.Packet, expected, got uint8) *ContinuityEvent {
	m.ContinuityErrors++
	m.setReference(got, p.Header.HasPayload)
	return &ContinuityEvent{
		PID:      m.PID,
		Seq:      p.Seq,
		Expected: expected,
		Got:      got,
		Errors:   m.ContinuityErrors,
	}
}

// tick handles a PCR broadcast. The first tick anchors the window; later
// ticks emit a sample once window ticks have elapsed.
func (m *PidMetric) tick(pcr, window uint64) (RateSample, bool) {
	if !m.anchored {
		m.anchor(pcr)
		return RateSample{}, false
	}
	elapsed := mpegts.PCRDelta(m.anchorPCR, pcr)
	if elapsed < window {
		return RateSample{}, false
	}
	s := RateSample{
		PID:     m.PID,
		Packets: m.Packets - m.anchorPackets,
		Ticks:   elapsed,
	}
	s.BitsPerSecond = float64(s.Packets) * mpegts.PacketSize * 8 * mpegts.PCRFrequency / float64(elapsed)
	m.LastRate = s
	m.anchor(pcr)
	return s, true
}

func (m *PidMetric) anchor(pcr uint64) {
	m.anchored = true
	m.anchorPCR = pcr
	m.anchorPackets = m.Packets
}
