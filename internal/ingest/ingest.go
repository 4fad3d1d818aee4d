// Package ingest acquires transport stream bytes from files, UDP and SRT,
// slices them into packet frames and queues the frames in a bounded
// Buffer for the demux session.
package ingest

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// Source produces raw transport stream bytes into w until the input ends
// or ctx is cancelled. A Source returns nil on a clean end of input.
type Source interface {
	Run(ctx context.Context, w io.Writer) error
}

// AddrRecorder is implemented by writers that want to know the remote
// address a network Source is receiving from.
type AddrRecorder interface {
	SetRemoteAddr(addr string)
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	BytesReceived  int64  `json:"bytesReceived"`
	ReadCount      int64  `json:"readCount"`
	Frames         int64  `json:"frames"`
	Resyncs        int64  `json:"resyncs"`
	DiscardedBytes int64  `json:"discardedBytes"`
	Rejected       int64  `json:"rejected"`
	ConnectedAt    int64  `json:"connectedAt"`
	UptimeMs       int64  `json:"uptimeMs"`
	RemoteAddr     string `json:"remoteAddr"`
}

// Stats captures acquisition counters for one input. It is safe for
// concurrent use.
type Stats struct {
	startedAt time.Time

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	frames        atomic.Int64
	resyncs       atomic.Int64
	discarded     atomic.Int64
	rejected      atomic.Int64
	remoteAddr    atomic.Value
}

// NewStats creates Stats whose uptime starts now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// RecordRead increments the byte and read counters.
func (s *Stats) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the input for diagnostics.
func (s *Stats) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	addr, _ := s.remoteAddr.Load().(string)
	return StatsSnapshot{
		BytesReceived:  s.bytesReceived.Load(),
		ReadCount:      s.readCount.Load(),
		Frames:         s.frames.Load(),
		Resyncs:        s.resyncs.Load(),
		DiscardedBytes: s.discarded.Load(),
		Rejected:       s.rejected.Load(),
		ConnectedAt:    s.startedAt.UnixMilli(),
		UptimeMs:       time.Since(s.startedAt).Milliseconds(),
		RemoteAddr:     addr,
	}
}
