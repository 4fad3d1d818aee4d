// Package config loads the tsprobe YAML configuration, applies defaults
// and environment overrides, and resolves the input URL.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/tsprobe/internal/logging"
)

// Defaults.
const (
	DefaultFrameSize      = 188
	DefaultBufferCapacity = 4096
	DefaultRateWindow     = 100 * time.Millisecond
	DefaultDialTimeout    = 10 * time.Second
)

// pcrHz is the PCR tick rate.
const pcrHz = 27_000_000

// Config is the full tsprobe configuration.
type Config struct {
	Input      InputConfig    `yaml:"input"`
	Buffer     BufferConfig   `yaml:"buffer"`
	Monitor    MonitorConfig  `yaml:"monitor"`
	SCTE35PIDs []uint16       `yaml:"scte35_pids"`
	Log        logging.Config `yaml:"log"`
}

// InputConfig selects the byte source. URL is a file path, "-" for
// stdin, or a file://, udp:// or srt:// URL.
type InputConfig struct {
	URL         string        `yaml:"url"`
	Loop        bool          `yaml:"loop"`
	FrameSize   int           `yaml:"frame_size"`
	Interface   string        `yaml:"interface"`
	SRTMode     string        `yaml:"srt_mode"`
	StreamID    string        `yaml:"stream_id"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type BufferConfig struct {
	Capacity      int  `yaml:"capacity"`
	AllowOverflow bool `yaml:"allow_overflow"`
}

type MonitorConfig struct {
	RateWindow time.Duration `yaml:"rate_window"`
}

// RateWindowTicks returns the rate window in 27 MHz PCR ticks.
func (m MonitorConfig) RateWindowTicks() uint64 {
	return uint64(m.RateWindow) * pcrHz / uint64(time.Second)
}

// Default returns a Config with every default applied and no input.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Input.FrameSize == 0 {
		c.Input.FrameSize = DefaultFrameSize
	}
	if c.Input.SRTMode == "" {
		c.Input.SRTMode = "caller"
	}
	if c.Input.DialTimeout == 0 {
		c.Input.DialTimeout = DefaultDialTimeout
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = DefaultBufferCapacity
	}
	if c.Monitor.RateWindow == 0 {
		c.Monitor.RateWindow = DefaultRateWindow
	}
	c.Log.ApplyDefaults()
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults. Environment overrides are applied afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// decode reads YAML into cfg, which already holds the defaults. Unknown
// keys are rejected; an empty document leaves cfg unchanged.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cfg.applyDefaults()
	return nil
}

// ApplyEnv applies DEBUG and TSPROBE_INPUT from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv("DEBUG") != "" {
		c.Log.Level = "debug"
	}
	if v := getenv("TSPROBE_INPUT"); v != "" {
		c.Input.URL = v
	}
}

// Validate checks the configuration, including that the input resolves.
func (c Config) Validate() error {
	var errs []error
	if c.Input.FrameSize != 188 && c.Input.FrameSize != 204 {
		errs = append(errs, fmt.Errorf("input.frame_size must be 188 or 204, got %d", c.Input.FrameSize))
	}
	if c.Buffer.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("buffer.capacity must be positive, got %d", c.Buffer.Capacity))
	}
	if c.Monitor.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("monitor.rate_window must be positive, got %s", c.Monitor.RateWindow))
	}
	for _, pid := range c.SCTE35PIDs {
		if pid > 0x1FFE {
			errs = append(errs, fmt.Errorf("scte35_pids: 0x%X is not a data PID", pid))
		}
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Input.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// InputKind names a source type.
type InputKind string

const (
	InputFile InputKind = "file"
	InputUDP  InputKind = "udp"
	InputSRT  InputKind = "srt"
)

// Input is a resolved InputConfig.
type Input struct {
	Kind        InputKind
	Address     string // file path or host:port
	Loop        bool
	Interface   string
	SRTMode     string
	StreamID    string
	DialTimeout time.Duration
}

// Resolve parses URL. Query parameters override the matching fields:
// iface for udp, mode and streamid for srt.
func (in InputConfig) Resolve() (Input, error) {
	out := Input{
		Loop:        in.Loop,
		Interface:   in.Interface,
		SRTMode:     in.SRTMode,
		StreamID:    in.StreamID,
		DialTimeout: in.DialTimeout,
	}
	if in.URL == "" {
		return out, errors.New("input.url is required")
	}
	if !strings.Contains(in.URL, "://") {
		out.Kind, out.Address = InputFile, in.URL
		return out, nil
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return out, fmt.Errorf("input.url: %w", err)
	}
	q := u.Query()
	switch strings.ToLower(u.Scheme) {
	case "file":
		out.Kind, out.Address = InputFile, u.Host+u.Path
	case "udp":
		out.Kind, out.Address = InputUDP, u.Host
		if v := q.Get("iface"); v != "" {
			out.Interface = v
		}
	case "srt":
		out.Kind, out.Address = InputSRT, u.Host
		if v := q.Get("mode"); v != "" {
			out.SRTMode = v
		}
		if v := q.Get("streamid"); v != "" {
			out.StreamID = v
		}
		switch out.SRTMode {
		case "caller", "listener":
		default:
			return out, fmt.Errorf("input: unknown srt mode %q", out.SRTMode)
		}
	default:
		return out, fmt.Errorf("input: unsupported scheme %q", u.Scheme)
	}
	if out.Address == "" {
		return out, fmt.Errorf("input: %q has no address", in.URL)
	}
	return out, nil
}
