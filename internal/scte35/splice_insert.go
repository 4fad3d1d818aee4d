package scte35

import "github.com/icza/bitio"

// SpliceInsert signals a splice point in the stream.
type SpliceInsert struct {
	SpliceEventID              uint32
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator      bool
	ProgramSpliceFlag          bool
	SpliceImmediateFlag        bool

	// SpliceTime is set for program splices that are not immediate.
	SpliceTime SpliceTime
	Components []SpliceComponent

	BreakDuration   *BreakDuration
	UniqueProgramID uint16
	AvailNum        uint8
	AvailsExpected  uint8
}

// SpliceComponent is one entry of a component-mode splice_insert.
type SpliceComponent struct {
	ComponentTag uint8
	SpliceTime   SpliceTime
}

func (*SpliceInsert) Type() uint8 { return SpliceInsertType }

func decodeSpliceInsert(r *bitio.CountReader, _ int) SpliceCommand {
	cmd := &SpliceInsert{}
	cmd.SpliceEventID = readUint(r, 32)
	cmd.SpliceEventCancelIndicator = readFlag(r)
	r.TryReadBits(7) // reserved
	if cmd.SpliceEventCancelIndicator {
		return cmd
	}

	cmd.OutOfNetworkIndicator = readFlag(r)
	cmd.ProgramSpliceFlag = readFlag(r)
	durationFlag := readFlag(r)
	cmd.SpliceImmediateFlag = readFlag(r)
	r.TryReadBits(4) // event_id_compliance_flag, reserved

	if cmd.ProgramSpliceFlag {
		if !cmd.SpliceImmediateFlag {
			cmd.SpliceTime = readSpliceTime(r)
		}
	} else {
		count := int(r.TryReadBits(8))
		for i := 0; i < count && r.TryError == nil; i++ {
			c := SpliceComponent{ComponentTag: uint8(r.TryReadBits(8))}
			if !cmd.SpliceImmediateFlag {
				c.SpliceTime = readSpliceTime(r)
			}
			cmd.Components = append(cmd.Components, c)
		}
	}

	if durationFlag {
		cmd.BreakDuration = readBreakDuration(r)
	}
	cmd.UniqueProgramID = uint16(r.TryReadBits(16))
	cmd.AvailNum = uint8(r.TryReadBits(8))
	cmd.AvailsExpected = uint8(r.TryReadBits(8))
	return cmd
}

func readBreakDuration(r *bitio.CountReader) *BreakDuration {
	bd := &BreakDuration{AutoReturn: readFlag(r)}
	r.TryReadBits(6) // reserved
	bd.Duration = r.TryReadBits(33)
	return bd
}
