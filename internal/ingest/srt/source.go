package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/tsprobe/internal/ingest"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

const defaultDialTimeout = 10 * time.Second

// Mode selects which side of the SRT handshake the Source takes.
type Mode string

// Supported modes.
const (
	ModeCaller   Mode = "caller"
	ModeListener Mode = "listener"
)

// Config describes an SRT input.
type Config struct {
	Address string
	Mode    Mode

	// StreamID is sent by a caller. A listener with a non-empty StreamID
	// only accepts publishers whose stream key matches it.
	StreamID string

	DialTimeout time.Duration
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("srt: address is required")
	}
	switch c.Mode {
	case ModeCaller, ModeListener:
	default:
		return fmt.Errorf("srt: unknown mode %q", c.Mode)
	}
	return nil
}

// Source is an ingest.Source reading from SRT.
type Source struct {
	log *slog.Logger
	cfg Config
}

// NewSource creates a Source. If log is nil, slog.Default() is used.
func NewSource(cfg Config, log *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		log: log.With("component", "srt-"+string(cfg.Mode)),
		cfg: cfg,
	}, nil
}

var _ ingest.Source = (*Source)(nil)

// Run receives the stream into w. A caller returns when the remote side
// ends the stream; a listener serves publishers one at a time until ctx
// is cancelled.
func (s *Source) Run(ctx context.Context, w io.Writer) error {
	if s.cfg.Mode == ModeListener {
		return s.listen(ctx, w)
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.log.Info("connected", "address", s.cfg.Address, "stream_id", s.cfg.StreamID)
	return s.receive(ctx, conn, s.cfg.Address, w)
}

func (s *Source) dial(ctx context.Context) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = s.cfg.StreamID

	s.log.Info("dialing", "address", s.cfg.Address)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(s.cfg.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(s.cfg.DialTimeout)
	defer timer.Stop()

	// Drain an abandoned dial in the background and close any leaked connection.
	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("srt: dial %s: %w", s.cfg.Address, res.err)
		}
		return res.conn, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("srt: dial %s timed out after %s", s.cfg.Address, s.cfg.DialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

func (s *Source) listen(ctx context.Context, w io.Writer) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.cfg.Address, cfg)
	if err != nil {
		return fmt.Errorf("srt: listen on %s: %w", s.cfg.Address, err)
	}
	s.log.Info("listening", "addr", s.cfg.Address)

	want := extractStreamKey(s.cfg.StreamID)
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if s.cfg.StreamID != "" && extractStreamKey(req.StreamID) != want {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key := extractStreamKey(conn.StreamID())
		remote := conn.RemoteAddr().String()
		s.log.Info("publish", "stream_key", key, "remote", remote)
		if err := s.receive(ctx, conn, remote, w); err != nil {
			return err
		}
	}
}

// receive copies conn into w until either side ends. It returns an error
// only when w refuses data.
func (s *Source) receive(ctx context.Context, conn *srtgo.Conn, remote string, w io.Writer) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if rec, ok := w.(ingest.AddrRecorder); ok {
		rec.SetRemoteAddr(remote)
	}

	var bytes, reads int64
	start := time.Now()
	buf := make([]byte, srtReadBufferSize)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", "remote", remote, "error", err)
			}
			break
		}
		bytes += int64(n)
		reads++
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}

	s.log.Info("connection closed", "remote", remote,
		"bytes", bytes, "reads", reads,
		"uptime_ms", time.Since(start).Milliseconds())
	return nil
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
