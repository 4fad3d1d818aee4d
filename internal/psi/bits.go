package psi

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

func newReader(data []byte) *bitio.CountReader {
	return bitio.NewCountReader(bytes.NewReader(data))
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

// offset returns the byte position of r.
func offset(r *bitio.CountReader) int64 { return r.BitsCount / 8 }

// readLoop reads a 4-bit reserved prefix, a 12-bit loop length and the
// loop bytes.
func readLoop(r *bitio.CountReader) []byte {
	r.TryReadBits(4)
	n := int(r.TryReadBits(12))
	return readBytes(r, n)
}

// readDescriptors reads a length-prefixed descriptor loop.
func readDescriptors(r *bitio.CountReader, dp *DescriptorParser, what string) ([]Descriptor, error) {
	loop := readLoop(r)
	if r.TryError != nil {
		return nil, fmt.Errorf("%s descriptor loop truncated: %w", what, r.TryError)
	}
	ds, err := dp.Parse(loop)
	if err != nil {
		return nil, fmt.Errorf("%s descriptors: %w", what, err)
	}
	return ds, nil
}

func truncated(r *bitio.CountReader, what string) error {
	if r.TryError == nil {
		return nil
	}
	return fmt.Errorf("%s truncated: %w", what, r.TryError)
}
