package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsprobe/internal/config"
	"github.com/zsiec/tsprobe/internal/demux"
	"github.com/zsiec/tsprobe/internal/ingest"
	srtingest "github.com/zsiec/tsprobe/internal/ingest/srt"
	"github.com/zsiec/tsprobe/internal/logging"
	"github.com/zsiec/tsprobe/internal/pipeline"
)

var version = "dev"

// statsInterval is how often ingest counters are logged while running.
const statsInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", envOr("TSPROBE_CONFIG", ""), "path to YAML configuration file")
	input := flag.String("input", "", "input: file path, - for stdin, udp://host:port or srt://host:port (overrides config)")
	rates := flag.Bool("rates", false, "print per-PID rate samples")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("tsprobe", version)
		return
	}

	if err := run(*configPath, *input, *rates); err != nil {
		slog.Error("tsprobe failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, input string, rates bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if input != "" {
		cfg.Input.URL = input
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	in, err := cfg.Input.Resolve()
	if err != nil {
		return err
	}
	src, err := newSource(in, log)
	if err != nil {
		return err
	}

	session := demux.New(log,
		demux.WithRateWindow(cfg.Monitor.RateWindowTicks()),
		demux.WithSCTE35PIDs(cfg.SCTE35PIDs...),
	)
	p, err := pipeline.New(src, session, pipeline.Config{
		FrameSize:      cfg.Input.FrameSize,
		BufferCapacity: cfg.Buffer.Capacity,
		AllowOverflow:  cfg.Buffer.AllowOverflow,
	}, log)
	if err != nil {
		return err
	}

	log.Info("tsprobe starting",
		"version", version,
		"input", in.Kind,
		"address", in.Address,
		"frame_size", cfg.Input.FrameSize,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		report(p, printer{w: os.Stdout, rates: rates}, log)
		return nil
	})
	err = g.Wait()

	summary(os.Stdout, session.Snapshot(), p.Stats())
	return err
}

// report prints events until the pipeline closes its channel, logging
// ingest counters periodically.
func report(p *pipeline.Pipeline, pr printer, log *slog.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	events := p.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			pr.event(ev)
		case <-ticker.C:
			st := p.Stats()
			log.Info("ingest",
				"bytes", st.Ingest.BytesReceived,
				"frames", st.Ingest.Frames,
				"resyncs", st.Ingest.Resyncs,
				"buffered", st.BufferLen,
				"dropped", st.BufferDropped,
				"remote", st.Ingest.RemoteAddr,
			)
		}
	}
}

func newSource(in config.Input, log *slog.Logger) (ingest.Source, error) {
	switch in.Kind {
	case config.InputFile:
		return ingest.NewFileSource(in.Address, in.Loop, log), nil
	case config.InputUDP:
		return ingest.NewUDPSource(in.Address, in.Interface, log), nil
	case config.InputSRT:
		src, err := srtingest.NewSource(srtingest.Config{
			Address:     in.Address,
			Mode:        srtingest.Mode(in.SRTMode),
			StreamID:    in.StreamID,
			DialTimeout: in.DialTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported input %q", in.Kind)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
