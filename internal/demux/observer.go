package demux

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/monitor"
	"github.com/zsiec/tsprobe/internal/psi"
)

// TableEvent carries a newly accepted table.
type TableEvent struct {
	Family psi.Family
	PID    uint16
	Seq    int64
	Status psi.Status
	Table  psi.Table
}

// AnomalyKind classifies a recoverable stream problem.
type AnomalyKind int

// Anomaly kinds.
const (
	AnomalySync AnomalyKind = iota + 1
	AnomalySize
	AnomalyPacket
	AnomalyFraming
	AnomalyWrongTable
	AnomalyCRC
	AnomalyDecode
	AnomalyUnknownDescriptor
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalySync:
		return "sync"
	case AnomalySize:
		return "size"
	case AnomalyPacket:
		return "packet"
	case AnomalyFraming:
		return "framing"
	case AnomalyWrongTable:
		return "wrong_table"
	case AnomalyCRC:
		return "crc"
	case AnomalyDecode:
		return "decode"
	case AnomalyUnknownDescriptor:
		return "unknown_descriptor"
	default:
		return fmt.Sprintf("AnomalyKind(%d)", int(k))
	}
}

// Anomaly is a recoverable problem found in the stream. Family is zero
// when the problem precedes table identification.
type Anomaly struct {
	Kind   AnomalyKind
	PID    uint16
	Family psi.Family
	Offset int
	Seq    int64
	Err    error
}

func (a Anomaly) String() string {
	if a.Family != 0 {
		return fmt.Sprintf("%s pid 0x%04X %s: %v", a.Kind, a.PID, a.Family, a.Err)
	}
	return fmt.Sprintf("%s pid 0x%04X: %v", a.Kind, a.PID, a.Err)
}

// Observer receives session notifications. Methods are called on the
// goroutine running the session, after the session state is updated.
type Observer interface {
	OnTable(TableEvent)
	OnContinuityError(monitor.ContinuityEvent)
	OnRate(monitor.RateSample)
	OnAnomaly(Anomaly)
}

// ObserverFuncs adapts optional functions to an Observer. Nil fields are
// ignored.
type ObserverFuncs struct {
	Table      func(TableEvent)
	Continuity func(monitor.ContinuityEvent)
	Rate       func(monitor.RateSample)
	Anomaly    func(Anomaly)
}

func (o ObserverFuncs) OnTable(e TableEvent) {
	if o.Table != nil {
		o.Table(e)
	}
}

func (o ObserverFuncs) OnContinuityError(e monitor.ContinuityEvent) {
	if o.Continuity != nil {
		o.Continuity(e)
	}
}

func (o ObserverFuncs) OnRate(s monitor.RateSample) {
	if o.Rate != nil {
		o.Rate(s)
	}
}

func (o ObserverFuncs) OnAnomaly(a Anomaly) {
	if o.Anomaly != nil {
		o.Anomaly(a)
	}
}

// dispatch delivers one queued notification.
func dispatch(o Observer, ev any) {
	switch e := ev.(type) {
	case TableEvent:
		o.OnTable(e)
	case monitor.ContinuityEvent:
		o.OnContinuityError(e)
	case monitor.RateSample:
		o.OnRate(e)
	case Anomaly:
		o.OnAnomaly(e)
	}
}
