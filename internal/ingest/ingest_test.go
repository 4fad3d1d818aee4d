package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.RecordRead(100)
	s.RecordRead(200)
	s.SetRemoteAddr("10.0.0.1:1234")
	s.frames.Add(2)

	snap := s.Snapshot()
	if snap.BytesReceived != 300 {
		t.Fatalf("got BytesReceived %d, want 300", snap.BytesReceived)
	}
	if snap.ReadCount != 2 {
		t.Fatalf("got ReadCount %d, want 2", snap.ReadCount)
	}
	if snap.Frames != 2 {
		t.Fatalf("got Frames %d, want 2", snap.Frames)
	}
	if snap.RemoteAddr != "10.0.0.1:1234" {
		t.Fatalf("got RemoteAddr %q", snap.RemoteAddr)
	}
	if snap.ConnectedAt == 0 || snap.UptimeMs < 0 {
		t.Fatalf("bad timing fields: %+v", snap)
	}
}

func TestStatsConcurrentRecordRead(t *testing.T) {
	t.Parallel()

	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordRead(10)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.BytesReceived != 1000 || snap.ReadCount != 100 {
		t.Fatalf("got %d bytes in %d reads, want 1000 in 100", snap.BytesReceived, snap.ReadCount)
	}
}

// collector is a concurrency-safe io.Writer.
type collector struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	addr string
}

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *collector) SetRemoteAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr = addr
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.ts")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	data := testPackets(600)
	src := NewFileSource(writeTestFile(t, data), false, nil)
	var c collector
	if err := src.Run(context.Background(), &c); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(c.buf.Bytes(), data) {
		t.Fatalf("copied %d bytes, want %d identical", c.buf.Len(), len(data))
	}
}

func TestFileSourceLoop(t *testing.T) {
	t.Parallel()

	data := testPackets(10)
	src := NewFileSource(writeTestFile(t, data), true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c) }()

	deadline := time.Now().Add(5 * time.Second)
	for c.Len() < 3*len(data) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if c.Len() < 3*len(data) {
		t.Fatalf("looped %d bytes, want at least %d", c.Len(), 3*len(data))
	}
}

func TestFileSourceMissing(t *testing.T) {
	t.Parallel()

	src := NewFileSource(filepath.Join(t.TempDir(), "absent.ts"), false, nil)
	if err := src.Run(context.Background(), &collector{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Run = %v, want os.ErrNotExist", err)
	}
}

func TestFileSourceStopsOnWriterError(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)
	b.Close()
	f, err := NewFramer(b, 188, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := NewFileSource(writeTestFile(t, testPackets(20)), true, nil)
	if err := src.Run(context.Background(), f); !errors.Is(err, ErrBufferClosed) {
		t.Fatalf("Run = %v, want ErrBufferClosed", err)
	}
}
