// Command tsgen writes a synthetic single-program transport stream carrying
// PAT, PMT, SDT, PCR and SCTE-35 cues, to a file or paced in real time over
// UDP or SRT. It feeds tsprobe during development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	srt "github.com/zsiec/srtgo"
)

// chunkSize is the write size for network outputs: 7 packets, the usual
// UDP and SRT payload.
const chunkSize = 7 * 188

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	out := flag.String("o", "", "write to a file (- for stdout)")
	udpAddr := flag.String("udp", "", "send to a UDP host:port")
	srtAddr := flag.String("srt", "", "push to an SRT listener host:port")
	streamID := flag.String("streamid", "live/tsgen", "SRT stream id")
	seconds := flag.Int("seconds", 10, "stream duration; 0 runs until interrupted (network outputs only)")
	service := flag.String("service", "tsgen", "SDT service name")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *out, *udpAddr, *srtAddr, *streamID, *seconds, *service); err != nil {
		slog.Error("tsgen failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out, udpAddr, srtAddr, streamID string, seconds int, service string) error {
	g, err := newGenerator(service)
	if err != nil {
		return err
	}

	switch {
	case out != "":
		if seconds <= 0 {
			return errors.New("-seconds must be positive for file output")
		}
		w := io.Writer(os.Stdout)
		if out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return writeTicks(ctx, w, g, seconds*ticksPerSecond)

	case udpAddr != "":
		conn, err := net.Dial("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("dial udp: %w", err)
		}
		defer conn.Close()
		slog.Info("sending", "udp", udpAddr)
		return stream(ctx, conn, g, seconds)

	case srtAddr != "":
		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID
		conn, err := srt.Dial(srtAddr, cfg)
		if err != nil {
			return fmt.Errorf("dial srt: %w", err)
		}
		defer conn.Close()
		slog.Info("connected", "srt", srtAddr, "stream_id", streamID)
		return stream(ctx, conn, g, seconds)

	default:
		return errors.New("one of -o, -udp or -srt is required")
	}
}

// writeTicks writes n ticks as fast as w accepts them.
func writeTicks(ctx context.Context, w io.Writer, g *generator, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(g.next()); err != nil {
			return err
		}
	}
	return nil
}

// stream writes ticks in chunkSize writes, paced against a global clock
// so the output rate matches the PCR. seconds <= 0 streams until ctx ends.
func stream(ctx context.Context, w io.Writer, g *generator, seconds int) error {
	start := time.Now()
	tickDuration := time.Second / ticksPerSecond
	var sent int64
	lastLog := start
	for tick := 0; seconds <= 0 || tick < seconds*ticksPerSecond; tick++ {
		data := g.next()
		for i := 0; i < len(data); i += chunkSize {
			end := min(i+chunkSize, len(data))
			if _, err := w.Write(data[i:end]); err != nil {
				return err
			}
			sent += int64(end - i)
		}

		wait := time.Until(start.Add(time.Duration(tick+1) * tickDuration))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		if time.Since(lastLog) >= 10*time.Second {
			slog.Info("streaming", "bytes", sent, "elapsed", time.Since(start).Truncate(time.Second))
			lastLog = time.Now()
		}
	}
	return nil
}
