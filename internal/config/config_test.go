package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsprobe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Input.FrameSize != 188 || c.Buffer.Capacity != DefaultBufferCapacity {
		t.Errorf("defaults: %+v", c)
	}
	if got := c.Monitor.RateWindowTicks(); got != 2_700_000 {
		t.Errorf("RateWindowTicks: got %d, want 2700000", got)
	}
	if c.Log.Level != "info" || c.Log.Format != "text" || c.Log.MaxSizeMB != 25 {
		t.Errorf("log defaults: %+v", c.Log)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	doc := `
input:
  url: udp://239.1.1.1:5000
  interface: eth0
  frame_size: 204
buffer:
  capacity: 100
  allow_overflow: true
monitor:
  rate_window: 1s
scte35_pids: [0x1F4, 600]
log:
  level: debug
  format: json
  file: /var/log/tsprobe.log
`
	c := Default()
	if err := decode(strings.NewReader(doc), &c); err != nil {
		t.Fatal(err)
	}
	if c.Input.URL != "udp://239.1.1.1:5000" || c.Input.Interface != "eth0" || c.Input.FrameSize != 204 {
		t.Errorf("input: %+v", c.Input)
	}
	if c.Buffer.Capacity != 100 || !c.Buffer.AllowOverflow {
		t.Errorf("buffer: %+v", c.Buffer)
	}
	if c.Monitor.RateWindow != time.Second || c.Monitor.RateWindowTicks() != 27_000_000 {
		t.Errorf("monitor: %+v", c.Monitor)
	}
	if len(c.SCTE35PIDs) != 2 || c.SCTE35PIDs[0] != 0x1F4 || c.SCTE35PIDs[1] != 600 {
		t.Errorf("scte35_pids: %v", c.SCTE35PIDs)
	}
	if c.Log.Level != "debug" || c.Log.Format != "json" || c.Log.File != "/var/log/tsprobe.log" {
		t.Errorf("log: %+v", c.Log)
	}
	if c.Log.MaxBackups != 5 {
		t.Errorf("log.max_backups default lost: %d", c.Log.MaxBackups)
	}
	if c.Input.DialTimeout != DefaultDialTimeout {
		t.Errorf("dial_timeout: %v", c.Input.DialTimeout)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	c := Default()
	if err := decode(strings.NewReader("inptu:\n  url: x\n"), &c); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	t.Parallel()

	c := Default()
	if err := decode(strings.NewReader(""), &c); err != nil {
		t.Fatal(err)
	}
	if c.Input.FrameSize != 188 {
		t.Errorf("FrameSize: %d", c.Input.FrameSize)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "input:\n  url: capture.ts\n  loop: true\n")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Input.URL == "" || !c.Input.Loop {
		t.Errorf("input: %+v", c.Input)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load: got %v, want not-exist", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{"DEBUG": "1", "TSPROBE_INPUT": "srt://example:9000"}
	c := Default()
	c.ApplyEnv(func(k string) string { return env[k] })
	if c.Log.Level != "debug" {
		t.Errorf("Level: %q", c.Log.Level)
	}
	if c.Input.URL != "srt://example:9000" {
		t.Errorf("URL: %q", c.Input.URL)
	}

	c = Default()
	c.Input.URL = "keep.ts"
	c.ApplyEnv(func(string) string { return "" })
	if c.Log.Level != "info" || c.Input.URL != "keep.ts" {
		t.Errorf("unset env changed config: %+v", c)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      InputConfig
		want    Input
		wantErr bool
	}{
		{
			name: "path",
			in:   InputConfig{URL: "/data/capture.ts", Loop: true},
			want: Input{Kind: InputFile, Address: "/data/capture.ts", Loop: true},
		},
		{
			name: "stdin",
			in:   InputConfig{URL: "-"},
			want: Input{Kind: InputFile, Address: "-"},
		},
		{
			name: "file url",
			in:   InputConfig{URL: "file:///data/capture.ts"},
			want: Input{Kind: InputFile, Address: "/data/capture.ts"},
		},
		{
			name: "udp with iface",
			in:   InputConfig{URL: "udp://239.1.1.1:5000?iface=eth1", Interface: "eth0"},
			want: Input{Kind: InputUDP, Address: "239.1.1.1:5000", Interface: "eth1"},
		},
		{
			name: "srt caller",
			in:   InputConfig{URL: "srt://encoder:9000?streamid=live/feed", SRTMode: "caller", DialTimeout: time.Second},
			want: Input{Kind: InputSRT, Address: "encoder:9000", SRTMode: "caller", StreamID: "live/feed", DialTimeout: time.Second},
		},
		{
			name: "srt listener",
			in:   InputConfig{URL: "srt://:6000?mode=listener", SRTMode: "caller"},
			want: Input{Kind: InputSRT, Address: ":6000", SRTMode: "listener"},
		},
		{name: "empty", in: InputConfig{}, wantErr: true},
		{name: "bad scheme", in: InputConfig{URL: "http://x:1"}, wantErr: true},
		{name: "bad srt mode", in: InputConfig{URL: "srt://x:1?mode=rendezvous"}, wantErr: true},
		{name: "no host", in: InputConfig{URL: "udp://"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Resolve()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Input.URL = "capture.ts"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := c
	bad.Input.FrameSize = 200
	bad.Buffer.Capacity = -1
	bad.SCTE35PIDs = []uint16{0x1FFF}
	bad.Log.Format = "xml"
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"frame_size", "buffer.capacity", "scte35_pids", "format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
