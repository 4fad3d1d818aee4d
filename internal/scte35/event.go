package scte35

// Event is a one-line view of a splice_info_section for reports: the
// command, its splice point and the first segmentation descriptor.
type Event struct {
	CommandType        string  `json:"commandType"`
	CommandTypeID      uint8   `json:"commandTypeId"`
	PTS                uint64  `json:"pts,omitempty"` // pts_adjustment applied
	HasPTS             bool    `json:"hasPts"`
	EventID            uint32  `json:"eventId,omitempty"`
	SegmentationType   string  `json:"segmentationType,omitempty"`
	SegmentationTypeID uint8   `json:"segmentationTypeId,omitempty"`
	Duration           float64 `json:"duration,omitempty"` // seconds
	OutOfNetwork       bool    `json:"outOfNetwork,omitempty"`
	Immediate          bool    `json:"immediate,omitempty"`
	Cancelled          bool    `json:"cancelled,omitempty"`
	Description        string  `json:"description"`
}

// Summarize builds the Event for s.
func Summarize(s *SpliceInfoSection) Event {
	ev := Event{
		CommandType:   CommandName(s.SpliceCommandType),
		CommandTypeID: s.SpliceCommandType,
	}
	if s.EncryptedPacket {
		ev.Description = "Encrypted"
		return ev
	}

	switch cmd := s.SpliceCommand.(type) {
	case *SpliceInsert:
		ev.EventID = cmd.SpliceEventID
		ev.Cancelled = cmd.SpliceEventCancelIndicator
		ev.OutOfNetwork = cmd.OutOfNetworkIndicator
		ev.Immediate = cmd.SpliceImmediateFlag
		ev.PTS, ev.HasPTS = s.AdjustedPTS(cmd.SpliceTime)
		if cmd.BreakDuration != nil {
			ev.Duration = float64(cmd.BreakDuration.Duration) / 90000.0
		}
		switch {
		case ev.Cancelled:
			ev.Description = "Splice Cancelled"
		case ev.OutOfNetwork:
			ev.Description = "Splice Out (Ad Insertion)"
		default:
			ev.Description = "Splice In (Return to Program)"
		}
	case *TimeSignal:
		ev.PTS, ev.HasPTS = s.AdjustedPTS(cmd.SpliceTime)
		ev.Description = "Time Signal"
	case *SpliceNull:
		ev.Description = "Heartbeat"
	case *SpliceSchedule:
		ev.Description = "Splice Schedule"
	case *BandwidthReservation:
		ev.Description = "Bandwidth Reservation"
	case *PrivateCommand:
		ev.Description = "Private Command"
	default:
		ev.Description = "Unknown Command"
	}

	for _, d := range s.SpliceDescriptors {
		sd, ok := d.(*SegmentationDescriptor)
		if !ok {
			continue
		}
		ev.EventID = sd.SegmentationEventID
		ev.SegmentationTypeID = sd.SegmentationTypeID
		ev.SegmentationType = sd.Name()
		if sd.SegmentationDuration != nil {
			ev.Duration = float64(*sd.SegmentationDuration) / 90000.0
		}
		ev.Description = sd.Name()
		break
	}
	return ev
}
