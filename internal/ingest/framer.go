package ingest

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Framer is an io.Writer that slices an arbitrary byte stream into
// packet-size frames and adds them to a Buffer. Sync is acquired on a
// 0x47 byte whose following packet boundary also holds 0x47; while synced,
// a frame not starting with 0x47 drops sync.
type Framer struct {
	log   *slog.Logger
	buf   *Buffer
	stats *Stats
	size  int

	pending []byte
	synced  bool
	lost    bool
}

// NewFramer creates a Framer producing frames of frameSize bytes (188, or
// 204 for streams carrying Reed-Solomon parity). stats may be nil.
func NewFramer(buf *Buffer, frameSize int, stats *Stats, log *slog.Logger) (*Framer, error) {
	if frameSize != mpegts.PacketSize && frameSize != mpegts.PacketSizeFEC {
		return nil, fmt.Errorf("ingest: unsupported frame size %d", frameSize)
	}
	if stats == nil {
		stats = NewStats()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Framer{
		log:     log.With("component", "framer"),
		buf:     buf,
		stats:   stats,
		size:    frameSize,
		pending: make([]byte, 0, 16*frameSize),
	}, nil
}

// Stats returns the counters the Framer updates.
func (f *Framer) Stats() *Stats { return f.stats }

// SetRemoteAddr records the sending peer in the Framer's Stats.
func (f *Framer) SetRemoteAddr(addr string) { f.stats.SetRemoteAddr(addr) }

// Write frames p. It fails only when the Buffer has been closed; frames
// refused by a full Buffer are counted as rejected.
func (f *Framer) Write(p []byte) (int, error) {
	f.stats.RecordRead(len(p))
	f.pending = append(f.pending, p...)

	off := 0
	for {
		if !f.synced {
			var ok bool
			off, ok = f.acquire(off)
			if !ok {
				break
			}
		}
		if len(f.pending)-off < f.size {
			break
		}
		if f.pending[off] != mpegts.SyncByte {
			f.synced, f.lost = false, true
			f.log.Debug("sync lost", "byte", f.pending[off])
			continue
		}
		if err := f.emit(f.pending[off : off+f.size]); err != nil {
			f.compact(off)
			return len(p), err
		}
		off += f.size
	}
	f.compact(off)
	return len(p), nil
}

// Flush emits a trailing frame that could not be confirmed by a following
// sync byte because the input ended.
func (f *Framer) Flush() error {
	if f.synced || len(f.pending) < f.size || f.pending[0] != mpegts.SyncByte {
		return nil
	}
	err := f.emit(f.pending[:f.size])
	f.compact(f.size)
	return err
}

// acquire scans pending from off for a confirmed sync position. It returns
// the position, or false when more input is needed.
func (f *Framer) acquire(off int) (int, bool) {
	start := off
	for i := off; i < len(f.pending); i++ {
		if f.pending[i] != mpegts.SyncByte {
			continue
		}
		if i+f.size >= len(f.pending) {
			f.discard(i - start)
			return i, false
		}
		if f.pending[i+f.size] != mpegts.SyncByte {
			continue
		}
		f.discard(i - start)
		if f.lost || i > start {
			f.stats.resyncs.Add(1)
			f.log.Debug("resynchronised", "skipped", i-start)
		}
		f.synced = true
		return i, true
	}
	f.discard(len(f.pending) - start)
	return len(f.pending), false
}

func (f *Framer) discard(n int) {
	if n > 0 {
		f.stats.discarded.Add(int64(n))
	}
}

func (f *Framer) emit(frame []byte) error {
	err := f.buf.Add(frame)
	switch {
	case err == nil:
		f.stats.frames.Add(1)
		return nil
	case errors.Is(err, ErrBufferOverflow):
		f.stats.rejected.Add(1)
		return nil
	default:
		return err
	}
}

func (f *Framer) compact(off int) {
	n := copy(f.pending, f.pending[off:])
	f.pending = f.pending[:n]
}
