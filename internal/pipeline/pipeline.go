// Package pipeline wires one input into a demux session: a producer
// goroutine runs the Source into a Framer feeding the Buffer, and a
// consumer goroutine drains the Buffer through the Session. Session
// notifications are bridged to a channel for the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsprobe/internal/demux"
	"github.com/zsiec/tsprobe/internal/ingest"
	"github.com/zsiec/tsprobe/internal/monitor"
	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Defaults applied to a zero Config.
const (
	DefaultBufferCapacity = 4096
	DefaultEventBuffer    = 256
)

// Config sizes the pipeline. Zero values take the defaults.
type Config struct {
	FrameSize      int
	BufferCapacity int
	AllowOverflow  bool
	EventBuffer    int
}

func (c *Config) applyDefaults() {
	if c.FrameSize == 0 {
		c.FrameSize = mpegts.PacketSize
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// Event is one session notification. Exactly one field is set.
type Event struct {
	Table      *demux.TableEvent
	Continuity *monitor.ContinuityEvent
	Rate       *monitor.RateSample
	Anomaly    *demux.Anomaly
}

// Stats combines acquisition and queueing counters.
type Stats struct {
	Ingest        ingest.StatsSnapshot `json:"ingest"`
	BufferLen     int                  `json:"bufferLen"`
	BufferDropped uint64               `json:"bufferDropped"`
	EventsDropped uint64               `json:"eventsDropped"`
	UptimeMs      int64                `json:"uptimeMs"`
}

// Pipeline bridges a single Source and Session.
type Pipeline struct {
	log       *slog.Logger
	source    ingest.Source
	session   *demux.Session
	buf       *ingest.Buffer
	framer    *ingest.Framer
	startTime time.Time

	events        chan Event
	eventsDropped atomic.Uint64
	started       atomic.Bool
}

// New creates a Pipeline reading source into session. If log is nil,
// slog.Default() is used.
func New(source ingest.Source, session *demux.Session, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()

	buf := ingest.NewBuffer(cfg.BufferCapacity, cfg.FrameSize, cfg.AllowOverflow)
	framer, err := ingest.NewFramer(buf, cfg.FrameSize, nil, log)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		log:       log.With("component", "pipeline"),
		source:    source,
		session:   session,
		buf:       buf,
		framer:    framer,
		startTime: time.Now(),
		events:    make(chan Event, cfg.EventBuffer),
	}
	session.AddObserver(demux.ObserverFuncs{
		Table:      func(e demux.TableEvent) { p.publish(Event{Table: &e}) },
		Continuity: func(e monitor.ContinuityEvent) { p.publish(Event{Continuity: &e}) },
		Rate:       func(s monitor.RateSample) { p.publish(Event{Rate: &s}) },
		Anomaly:    func(a demux.Anomaly) { p.publish(Event{Anomaly: &a}) },
	})
	return p, nil
}

// publish never blocks the session; events that do not fit are counted.
func (p *Pipeline) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		if p.eventsDropped.Add(1) == 1 {
			p.log.Warn("event channel full, dropping events")
		}
	}
}

// Events returns the notification channel. It is closed when Run
// returns.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Session returns the session the pipeline drives.
func (p *Pipeline) Session() *demux.Session {
	return p.session
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Ingest:        p.framer.Stats().Snapshot(),
		BufferLen:     p.buf.Len(),
		BufferDropped: p.buf.Dropped(),
		EventsDropped: p.eventsDropped.Load(),
		UptimeMs:      time.Since(p.startTime).Milliseconds(),
	}
}

// Run blocks until the source ends and every queued frame is processed,
// a goroutine fails, or ctx is cancelled. Cancellation is not an error.
// Run may be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pipeline: already started")
	}
	defer close(p.events)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer p.buf.Close()
		err := p.source.Run(gctx, p.framer)
		if ferr := p.framer.Flush(); err == nil {
			err = ferr
		}
		p.log.Info("source finished", "error", err)
		if err != nil {
			return fmt.Errorf("pipeline: source: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return p.session.Run(gctx, p.buf)
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
