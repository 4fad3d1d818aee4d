package mpegts

import "fmt"

const (
	// MaxSectionSize bounds a private section: 3 header bytes plus a
	// section_length of at most 4093.
	MaxSectionSize = 4096

	// sectionHeaderSize is the table_id + section_length prefix.
	sectionHeaderSize = 3

	stuffingByte = 0xFF
)

// LengthFunc returns the total byte length of a section from its first
// three bytes.
type LengthFunc func(header [3]byte) int

// PSISectionLength is the LengthFunc for ISO 13818-1 / EN 300 468 /
// SCTE-35 sections: 3 header bytes plus the 12-bit section_length.
func PSISectionLength(h [3]byte) int {
	return sectionHeaderSize + Length12(h[1:])
}

// MIPSectionLength is the LengthFunc for TS 101 191 megaframe
// initialization packets, whose section_length is the 8-bit field after
// the synchronization_id.
func MIPSectionLength(h [3]byte) int {
	return 2 + int(h[1])
}

// Reassembler rebuilds sections carried on a single PID from the payload
// of consecutive packets. It is not safe for concurrent use.
type Reassembler struct {
	pid      uint16
	lengthOf LengthFunc

	inProgress bool
	header     [sectionHeaderSize]byte
	headerLen  int
	buf        []byte
	filled     int

	lastCC   uint8
	ccValid  bool
	lastData []byte
}

// NewReassembler creates a Reassembler for pid. A nil lengthOf selects
// PSISectionLength.
func NewReassembler(pid uint16, lengthOf LengthFunc) *Reassembler {
	if lengthOf == nil {
		lengthOf = PSISectionLength
	}
	return &Reassembler{pid: pid, lengthOf: lengthOf}
}

// PID returns the PID this reassembler is bound to.
func (r *Reassembler) PID() uint16 { return r.pid }

// InProgress reports whether a partially received section is buffered.
func (r *Reassembler) InProgress() bool { return r.inProgress }

// Reset discards any partially received section.
func (r *Reassembler) Reset() {
	r.clear()
	r.ccValid = false
	r.lastData = nil
}

func (r *Reassembler) clear() {
	r.inProgress = false
	r.headerLen = 0
	r.buf = nil
	r.filled = 0
}

// Push feeds one packet and returns every section it completes, in
// order. A non-nil *FramingError means the reassembler dropped partial
// state; sections completed before the anomaly are still returned.
func (r *Reassembler) Push(p *Packet) ([][]byte, error) {
	if p.Header.TransportErrorIndicator {
		wasInProgress := r.inProgress
		r.Reset()
		if wasInProgress {
			return nil, r.framingErr(FramingTransportError, p, 0, "transport_error_indicator set mid-section")
		}
		return nil, nil
	}
	if !p.Header.HasPayload || len(p.Payload) == 0 {
		return nil, nil
	}

	dup, gap := r.checkContinuity(p)
	if dup {
		return nil, nil
	}
	if gap != nil {
		r.clear()
		if !p.Header.PayloadUnitStartIndicator {
			return nil, gap
		}
		sections, err := r.pushUnitStart(p)
		if err != nil {
			return sections, err
		}
		return sections, gap
	}

	if p.Header.PayloadUnitStartIndicator {
		return r.pushUnitStart(p)
	}
	if !r.inProgress {
		return nil, nil
	}
	return r.consume(p, p.Payload, 0, false)
}

// checkContinuity tracks the per-PID continuity counter. A repeated
// counter with identical payload is a legal duplicate; any other gap that
// is not signalled by the discontinuity indicator breaks the section in
// progress.
func (r *Reassembler) checkContinuity(p *Packet) (dup bool, gap *FramingError) {
	cc := p.Header.ContinuityCounter
	defer func() {
		r.lastCC = cc
		r.ccValid = true
		r.lastData = p.Payload
	}()

	if !r.ccValid {
		return false, nil
	}
	if p.AdaptationField != nil && p.AdaptationField.DiscontinuityIndicator {
		return false, nil
	}
	if cc == (r.lastCC+1)&0x0F {
		return false, nil
	}
	if cc == r.lastCC && string(p.Payload) == string(r.lastData) {
		return true, nil
	}
	if !r.inProgress {
		return false, nil
	}
	return false, r.framingErr(FramingDiscontinuity, p, 0,
		fmt.Sprintf("continuity counter %d after %d", cc, r.lastCC))
}

func (r *Reassembler) pushUnitStart(p *Packet) ([][]byte, error) {
	payload := p.Payload
	pointer := int(payload[0])
	data := payload[1:]
	if pointer > len(data) {
		r.clear()
		return nil, r.framingErr(FramingPointerOverflow, p, 0,
			fmt.Sprintf("pointer_field %d with %d bytes available", pointer, len(data)))
	}

	var sections [][]byte
	var ferr error
	if r.inProgress {
		done, err := r.consume(p, data[:pointer], 1, false)
		sections = append(sections, done...)
		if err != nil {
			ferr = err
		} else if r.inProgress {
			ferr = r.framingErr(FramingTruncated, p, 1,
				fmt.Sprintf("pointer_field %d leaves %d bytes of section missing", pointer, r.missing()))
		}
	}

	r.clear()
	done, err := r.consume(p, data[pointer:], 1+pointer, true)
	sections = append(sections, done...)
	if err != nil {
		ferr = err
	}
	return sections, ferr
}

func (r *Reassembler) missing() int {
	if r.buf == nil {
		return sectionHeaderSize - r.headerLen
	}
	return len(r.buf) - r.filled
}

// consume appends data to the current section. When allowStart is set,
// new sections may begin in data (start of a payload unit); otherwise
// bytes after a completed section are stuffing. base is the payload
// offset of data[0], used for error reporting.
func (r *Reassembler) consume(p *Packet, data []byte, base int, allowStart bool) ([][]byte, error) {
	var sections [][]byte
	pos := 0
	for pos < len(data) {
		if !r.inProgress {
			if !allowStart || data[pos] == stuffingByte {
				break
			}
			r.inProgress = true
		}

		if r.buf == nil {
			n := copy(r.header[r.headerLen:], data[pos:])
			r.headerLen += n
			pos += n
			if r.headerLen < sectionHeaderSize {
				break
			}
			total := r.lengthOf(r.header)
			if total < sectionHeaderSize || total > MaxSectionSize {
				r.clear()
				return sections, r.framingErr(FramingLength, p, base+pos-sectionHeaderSize,
					fmt.Sprintf("section length %d outside [%d, %d]", total, sectionHeaderSize, MaxSectionSize))
			}
			r.buf = make([]byte, total)
			r.filled = copy(r.buf, r.header[:])
		}

		n := copy(r.buf[r.filled:], data[pos:])
		r.filled += n
		pos += n
		if r.filled == len(r.buf) {
			sections = append(sections, r.buf)
			r.clear()
		}
	}
	return sections, nil
}

func (r *Reassembler) framingErr(kind FramingKind, p *Packet, offset int, detail string) *FramingError {
	return &FramingError{
		Kind:   kind,
		PID:    r.pid,
		Seq:    p.Seq,
		Offset: offset,
		Detail: detail,
	}
}
