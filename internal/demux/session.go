package demux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zsiec/tsprobe/internal/ingest"
	"github.com/zsiec/tsprobe/internal/monitor"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/psi"
)

// FrameSource yields packet frames; *ingest.Buffer implements it.
type FrameSource interface {
	Remove(ctx context.Context) ([]byte, error)
}

// Snapshot is a point-in-time copy of session counters.
type Snapshot struct {
	Packets    uint64
	Sections   uint64
	Duplicates uint64
	Tables     map[psi.Family]uint64
	Anomalies  map[AnomalyKind]uint64
	Routes     []Route
	PIDs       []monitor.PidMetric
	Monitor    monitor.Totals

	UnknownDescriptorTags []uint8
}

// Option configures a Session.
type Option func(*Session)

// WithRateWindow sets the monitor's rate window in 27 MHz ticks.
func WithRateWindow(ticks uint64) Option {
	return func(s *Session) {
		s.monitorOpts = append(s.monitorOpts, monitor.WithWindow(ticks))
	}
}

// WithSCTE35PIDs routes splice_info_sections on pids without waiting for
// a PMT to announce them.
func WithSCTE35PIDs(pids ...uint16) Option {
	return func(s *Session) {
		s.scte35PIDs = append(s.scte35PIDs, pids...)
	}
}

// WithObserver adds an observer at construction.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

// Session owns all per-stream state: routes and their reassemblers, the
// table validators, the stream monitor and the observers.
type Session struct {
	log *slog.Logger

	monitorOpts []monitor.Option
	scte35PIDs  []uint16

	mu        sync.Mutex
	seq       int64
	tables    *psi.Tables
	analyzer  *monitor.Analyzer
	routes    map[uint16]*route
	observers []Observer
	pending   []any

	packets    uint64
	sections   uint64
	duplicates uint64
	accepted   map[psi.Family]uint64
	anomalies  map[AnomalyKind]uint64
}

// New creates a Session. If log is nil, slog.Default() is used.
func New(log *slog.Logger, opts ...Option) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		log:       log.With("component", "demux"),
		routes:    make(map[uint16]*route),
		accepted:  make(map[psi.Family]uint64),
		anomalies: make(map[AnomalyKind]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	s.tables = psi.NewTables(log)
	s.analyzer = monitor.NewAnalyzer(log, s.monitorOpts...)
	for _, sr := range staticRoutes {
		s.bind(sr.pid, binding{family: sr.family, origin: originStatic})
	}
	for _, pid := range s.scte35PIDs {
		s.bind(pid, binding{family: psi.FamilySCTE35, origin: originConfig})
	}
	return s
}

// AddObserver registers o for all later notifications.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	observers := make([]Observer, len(s.observers), len(s.observers)+1)
	copy(observers, s.observers)
	s.observers = append(observers, o)
}

// Process runs one frame through the session. The returned error is the
// frame's decode error, if any; every problem is also reported to
// observers as an Anomaly.
func (s *Session) Process(frame []byte) error {
	s.mu.Lock()
	err := s.process(frame)
	events, observers := s.pending, s.observers
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			dispatch(o, ev)
		}
	}
	return err
}

// Run processes frames from src until it is closed and drained or ctx
// ends.
func (s *Session) Run(ctx context.Context, src FrameSource) error {
	for {
		frame, err := src.Remove(ctx)
		if errors.Is(err, ingest.ErrBufferClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		s.Process(frame)
	}
}

func (s *Session) process(frame []byte) error {
	seq := s.seq
	s.seq++
	s.packets++

	p, err := mpegts.Decode(frame, seq)
	if err != nil {
		s.packetAnomaly(err, seq)
		return err
	}

	f := s.analyzer.Offer(p)
	if f.Continuity != nil {
		s.emit(*f.Continuity)
	}
	for _, r := range f.Rates {
		s.emit(r)
	}

	rt, ok := s.routes[p.Header.PID]
	if !ok {
		return nil
	}
	sections, err := rt.r.Push(p)
	if err != nil {
		a := Anomaly{Kind: AnomalyFraming, PID: rt.pid, Seq: seq, Err: err}
		var fe *mpegts.FramingError
		if errors.As(err, &fe) {
			a.Offset = fe.Offset
		}
		s.anomaly(a)
	}
	for _, sec := range sections {
		s.section(rt, sec, seq)
	}
	return nil
}

func (s *Session) packetAnomaly(err error, seq int64) {
	a := Anomaly{Seq: seq, Err: err}
	var (
		syncErr  *mpegts.SyncError
		sizeErr  *mpegts.SizeError
		parseErr *mpegts.ParseError
	)
	switch {
	case errors.As(err, &syncErr):
		a.Kind = AnomalySync
	case errors.As(err, &sizeErr):
		a.Kind = AnomalySize
	case errors.As(err, &parseErr):
		a.Kind, a.PID, a.Offset = AnomalyPacket, parseErr.PID, parseErr.Offset
	default:
		a.Kind = AnomalyPacket
	}
	s.anomaly(a)
}

func (s *Session) section(rt *route, sec []byte, seq int64) {
	s.sections++
	family, _ := rt.family(sec[0])
	res := s.tables.Validate(family, rt.pid, sec)
	if res.ResetPID {
		rt.r.Reset()
	}
	for _, tag := range res.NewUnknownTags {
		s.anomaly(Anomaly{
			Kind:   AnomalyUnknownDescriptor,
			PID:    rt.pid,
			Family: family,
			Seq:    seq,
			Err:    fmt.Errorf("demux: no decoder for descriptor tag 0x%02X", tag),
		})
	}
	if res.Err != nil {
		s.anomaly(Anomaly{Kind: tableAnomalyKind(res.Err), PID: rt.pid, Family: family, Seq: seq, Err: res.Err})
		return
	}
	if !res.Accepted() {
		s.duplicates++
		return
	}

	s.accepted[family]++
	s.log.Debug("table", "family", family, "pid", rt.pid,
		"version", res.Table.SectionHeader().Version, "status", res.Status)
	switch t := res.Table.(type) {
	case *psi.PAT:
		s.followPAT(t)
	case *psi.PMT:
		s.followPMT(rt.pid, t)
	}
	s.emit(TableEvent{Family: family, PID: rt.pid, Seq: seq, Status: res.Status, Table: res.Table})
}

func tableAnomalyKind(err error) AnomalyKind {
	var crcErr *psi.CRCError
	switch {
	case errors.Is(err, psi.ErrWrongTableID):
		return AnomalyWrongTable
	case errors.As(err, &crcErr):
		return AnomalyCRC
	default:
		return AnomalyDecode
	}
}

func (s *Session) anomaly(a Anomaly) {
	s.anomalies[a.Kind]++
	s.log.Debug("anomaly", "kind", a.Kind, "pid", a.PID, "seq", a.Seq, "error", a.Err)
	s.emit(a)
}

func (s *Session) emit(ev any) {
	if len(s.observers) > 0 {
		s.pending = append(s.pending, ev)
	}
}

// Tables returns the live tables of family f.
func (s *Session) Tables(f psi.Family) []psi.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.tables.Validator(f)
	if v == nil {
		return nil
	}
	return v.Live()
}

// Snapshot returns the session counters. It is safe to call from any
// goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Packets:               s.packets,
		Sections:              s.sections,
		Duplicates:            s.duplicates,
		Tables:                make(map[psi.Family]uint64, len(s.accepted)),
		Anomalies:             make(map[AnomalyKind]uint64, len(s.anomalies)),
		PIDs:                  s.analyzer.Snapshot(),
		Monitor:               s.analyzer.Totals(),
		UnknownDescriptorTags: s.tables.UnknownDescriptorTags(),
	}
	for f, n := range s.accepted {
		snap.Tables[f] = n
	}
	for k, n := range s.anomalies {
		snap.Anomalies[k] = n
	}
	for pid, rt := range s.routes {
		snap.Routes = append(snap.Routes, Route{PID: pid, Families: rt.families()})
	}
	sort.Slice(snap.Routes, func(i, j int) bool { return snap.Routes[i].PID < snap.Routes[j].PID })
	return snap
}
