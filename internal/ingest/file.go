package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// fileReadSize is 64 datagrams' worth of 7 packets each.
const fileReadSize = 64 * datagramSize

// datagramSize is the usual UDP and SRT payload: 7 packets.
const datagramSize = 7 * 188

// FileSource reads a recorded stream from disk, or from standard input
// when Path is "-".
type FileSource struct {
	log  *slog.Logger
	path string
	loop bool
}

// NewFileSource creates a FileSource. With loop, the file is replayed from
// the start each time it ends. If log is nil, slog.Default() is used.
func NewFileSource(path string, loop bool, log *slog.Logger) *FileSource {
	if log == nil {
		log = slog.Default()
	}
	return &FileSource{
		log:  log.With("component", "file-source"),
		path: path,
		loop: loop,
	}
}

// Run copies the file into w.
func (s *FileSource) Run(ctx context.Context, w io.Writer) error {
	if s.path == "-" {
		_, err := s.copy(ctx, os.Stdin, w)
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("ingest: open input: %w", err)
	}
	defer f.Close()
	s.log.Info("reading", "path", s.path, "loop", s.loop)

	for pass := 1; ; pass++ {
		n, err := s.copy(ctx, f, w)
		if err != nil {
			return err
		}
		if !s.loop || n == 0 {
			s.log.Info("input ended", "path", s.path, "passes", pass)
			return nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("ingest: rewind input: %w", err)
		}
	}
}

func (s *FileSource) copy(ctx context.Context, r io.Reader, w io.Writer) (int64, error) {
	buf := make([]byte, fileReadSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("ingest: read input: %w", err)
		}
	}
}
