package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"debug-2", slog.LevelDebug - 2, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, closer, err := New(Config{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown", "pid", 256)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["pid"] != float64(256) {
		t.Errorf("record: %v", rec)
	}
}

func TestNewText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, _, err := New(Config{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hidden")
	log.Info("hello", "component", "demux")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at default level")
	}
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "component=demux") {
		t.Errorf("output: %q", out)
	}
}

func TestNewWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "tsprobe.log")
	var buf bytes.Buffer
	log, closer, err := New(Config{File: path}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("rotated")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "msg=rotated") {
		t.Errorf("file: %q", data)
	}
	if !strings.Contains(buf.String(), "msg=rotated") {
		t.Errorf("stderr copy: %q", buf.String())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{Format: "xml"}).Validate(); err == nil {
		t.Error("expected error for format xml")
	}
	if err := (Config{Level: "chatty"}).Validate(); err == nil {
		t.Error("expected error for level chatty")
	}
	if err := (Config{Level: "debug", Format: "JSON"}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
