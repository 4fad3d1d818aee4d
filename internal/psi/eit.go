package psi

import (
	"fmt"
	"time"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// EIT is an event information section.
type EIT struct {
	Header
	ServiceID                uint16
	TransportStreamID        uint16
	OriginalNetworkID        uint16
	SegmentLastSectionNumber uint8
	LastTableID              uint8
	Events                   []EITEvent
}

// EITEvent is one entry of the event loop. StartTime is zero when the
// broadcaster left it undefined.
type EITEvent struct {
	EventID       uint16
	StartTime     time.Time
	Duration      time.Duration
	RunningStatus uint8
	FreeCAMode    bool
	Descriptors   []Descriptor
}

func (*EIT) Family() Family { return FamilyEIT }

// PresentFollowing reports whether the section belongs to a
// present/following table rather than a schedule.
func (e *EIT) PresentFollowing() bool {
	return e.TableID == 0x4E || e.TableID == 0x4F
}

func decodeEIT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	// body layout after the common header:
	// [0-1]  transport_stream_id
	// [2-3]  original_network_id
	// [4]    segment_last_section_number
	// [5]    last_table_id
	// [6..]  events: event_id(16) start_time(40) duration(24)
	//        running_status(3) free_CA_mode(1) descriptors_loop_length(12)
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("EIT without section_syntax_indicator")
	}
	b := body(section)
	r := newReader(b)
	eit := &EIT{Header: h, ServiceID: h.TableIDExtension}
	eit.TransportStreamID = uint16(r.TryReadBits(16))
	eit.OriginalNetworkID = uint16(r.TryReadBits(16))
	eit.SegmentLastSectionNumber = uint8(r.TryReadBits(8))
	eit.LastTableID = uint8(r.TryReadBits(8))
	if err := truncated(r, "EIT header"); err != nil {
		return nil, err
	}

	for offset(r) < int64(len(b)) && r.TryError == nil {
		ev := EITEvent{EventID: uint16(r.TryReadBits(16))}
		start := readBytes(r, 5)
		dur := readBytes(r, 3)
		ev.RunningStatus = uint8(r.TryReadBits(3))
		ev.FreeCAMode = r.TryReadBits(1) == 1
		loop := readBytes(r, int(r.TryReadBits(12)))
		if err := truncated(r, "EIT event"); err != nil {
			return nil, err
		}

		var err error
		if ev.StartTime, err = mpegts.DVBTime(start); err != nil {
			return nil, fmt.Errorf("EIT event 0x%04X start_time: %w", ev.EventID, err)
		}
		if ev.Duration, err = eventDuration(dur); err != nil {
			return nil, fmt.Errorf("EIT event 0x%04X duration: %w", ev.EventID, err)
		}
		if ev.Descriptors, err = dp.Parse(loop); err != nil {
			return nil, fmt.Errorf("EIT event 0x%04X descriptors: %w", ev.EventID, err)
		}
		eit.Events = append(eit.Events, ev)
	}
	if err := truncated(r, "EIT event loop"); err != nil {
		return nil, err
	}
	return eit, nil
}

// eventDuration decodes a BCD duration; all ones means undefined.
func eventDuration(b []byte) (time.Duration, error) {
	if b[0] == 0xFF && b[1] == 0xFF && b[2] == 0xFF {
		return 0, nil
	}
	return mpegts.BCDDuration(b)
}
