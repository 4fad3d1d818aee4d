package scte35

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// newReader returns an MSB-first bit reader over data that tracks how
// many bits have been consumed.
func newReader(data []byte) *bitio.CountReader {
	return bitio.NewCountReader(bytes.NewReader(data))
}

func readFlag(r *bitio.CountReader) bool {
	return r.TryReadBits(1) == 1
}

func readUint(r *bitio.CountReader, n uint8) uint32 {
	return uint32(r.TryReadBits(n))
}

func readBytes(r *bitio.CountReader, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.TryReadBits(8))
	}
	return out
}

// consumed returns the number of whole bytes read so far.
func consumed(r *bitio.CountReader) int {
	return int((r.BitsCount + 7) / 8)
}

// readError wraps the sticky error of r, if any, with what was being
// decoded.
func readError(r *bitio.CountReader, what string) error {
	if r.TryError == nil {
		return nil
	}
	return fmt.Errorf("scte35: %s truncated: %w", what, r.TryError)
}
