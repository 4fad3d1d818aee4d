package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func frame(b byte) []byte { return []byte{0x47, b} }

func TestBufferFIFO(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)
	for i := byte(0); i < 4; i++ {
		if err := b.Add(frame(i)); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	if b.Len() != 4 {
		t.Fatalf("Len = %d, want 4", b.Len())
	}
	for i := byte(0); i < 4; i++ {
		got, err := b.Remove(context.Background())
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if got[1] != i {
			t.Fatalf("Remove #%d returned frame %d", i, got[1])
		}
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d after draining", b.Len())
	}
}

func TestBufferOverflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		allowOverflow bool
		wantErr       error
		wantFrames    []byte
		wantDropped   uint64
	}{
		{
			name:        "rejects when full",
			wantErr:     ErrBufferOverflow,
			wantFrames:  []byte{0, 1, 2},
			wantDropped: 0,
		},
		{
			name:          "evicts oldest when full",
			allowOverflow: true,
			wantFrames:    []byte{1, 2, 3},
			wantDropped:   1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := NewBuffer(3, 188, tc.allowOverflow)
			for i := byte(0); i < 3; i++ {
				if err := b.Add(frame(i)); err != nil {
					t.Fatalf("Add(%d): %v", i, err)
				}
			}
			if err := b.Add(frame(3)); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Add on full buffer = %v, want %v", err, tc.wantErr)
			}
			if b.Dropped() != tc.wantDropped {
				t.Errorf("Dropped = %d, want %d", b.Dropped(), tc.wantDropped)
			}
			if b.Len() != 3 {
				t.Errorf("Len = %d, want 3", b.Len())
			}
			for _, want := range tc.wantFrames {
				got, err := b.Remove(context.Background())
				if err != nil {
					t.Fatalf("Remove: %v", err)
				}
				if got[1] != want {
					t.Errorf("Remove = frame %d, want %d", got[1], want)
				}
			}
		})
	}
}

func TestBufferRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	b := NewBuffer(2, 188, true)
	if err := b.Add(make([]byte, 204)); err == nil {
		t.Fatal("Add accepted a frame larger than the slot size")
	}
}

func TestBufferRemovedFrameIsACopy(t *testing.T) {
	t.Parallel()

	b := NewBuffer(1, 188, true)
	b.Add(frame(1))
	got, _ := b.Remove(context.Background())
	b.Add(frame(2))
	if got[1] != 1 {
		t.Fatalf("removed frame changed to %d after slot reuse", got[1])
	}
}

func TestBufferCloseDrains(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)
	b.Add(frame(7))
	b.Close()

	if err := b.Add(frame(8)); !errors.Is(err, ErrBufferClosed) {
		t.Fatalf("Add after Close = %v, want ErrBufferClosed", err)
	}
	got, err := b.Remove(context.Background())
	if err != nil || got[1] != 7 {
		t.Fatalf("Remove after Close = %v, %v; want queued frame", got, err)
	}
	if _, err := b.Remove(context.Background()); !errors.Is(err, ErrBufferClosed) {
		t.Fatalf("Remove on drained closed buffer = %v, want ErrBufferClosed", err)
	}
	b.Close()
}

func TestBufferRemoveBlocks(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	var err error
	go func() {
		defer wg.Done()
		got, err = b.Remove(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	b.Add(frame(9))
	wg.Wait()
	if err != nil || got[1] != 9 {
		t.Fatalf("Remove = %v, %v; want frame 9", got, err)
	}
}

func TestBufferRemoveContext(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Remove(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Remove = %v, want DeadlineExceeded", err)
	}
}

func TestBufferCloseWakesRemove(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 188, false)
	done := make(chan error, 1)
	go func() {
		_, err := b.Remove(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrBufferClosed) {
			t.Fatalf("Remove = %v, want ErrBufferClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Remove did not return after Close")
	}
}
