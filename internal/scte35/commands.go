package scte35

import "github.com/icza/bitio"

// splice_command_type values.
const (
	SpliceNullType           uint8 = 0x00
	SpliceScheduleType       uint8 = 0x04
	SpliceInsertType         uint8 = 0x05
	TimeSignalType           uint8 = 0x06
	BandwidthReservationType uint8 = 0x07
	PrivateCommandType       uint8 = 0xFF
)

// SpliceCommand is one of the splice command types below.
type SpliceCommand interface {
	Type() uint8
}

// SpliceTime carries an optional 33-bit PTS.
type SpliceTime struct {
	PTSTime *uint64
}

// BreakDuration specifies the duration of a commercial break in 90 kHz
// ticks.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceNull is a no-op command used as a heartbeat.
type SpliceNull struct{}

func (*SpliceNull) Type() uint8 { return SpliceNullType }

// SpliceSchedule is kept as raw bytes.
type SpliceSchedule struct {
	Data []byte
}

func (*SpliceSchedule) Type() uint8 { return SpliceScheduleType }

// TimeSignal provides a time-synchronized data delivery mechanism.
type TimeSignal struct {
	SpliceTime SpliceTime
}

func (*TimeSignal) Type() uint8 { return TimeSignalType }

// BandwidthReservation has no fields; it reserves space in the stream.
type BandwidthReservation struct{}

func (*BandwidthReservation) Type() uint8 { return BandwidthReservationType }

// PrivateCommand carries an identifier and private bytes.
type PrivateCommand struct {
	Identifier uint32
	Data       []byte
}

func (*PrivateCommand) Type() uint8 { return PrivateCommandType }

// OpaqueCommand holds a command that was not decoded: an unknown
// splice_command_type, or any command of an encrypted section.
type OpaqueCommand struct {
	CommandType uint8
	Data        []byte
}

func (c *OpaqueCommand) Type() uint8 { return c.CommandType }

// CommandName returns a human-readable name for a splice_command_type.
func CommandName(t uint8) string {
	switch t {
	case SpliceNullType:
		return "splice_null"
	case SpliceScheduleType:
		return "splice_schedule"
	case SpliceInsertType:
		return "splice_insert"
	case TimeSignalType:
		return "time_signal"
	case BandwidthReservationType:
		return "bandwidth_reservation"
	case PrivateCommandType:
		return "private_command"
	default:
		return "reserved"
	}
}

// commandDecoder reads one command from r; length is the number of bytes
// available to it.
type commandDecoder func(r *bitio.CountReader, length int) SpliceCommand

var commandDecoders = map[uint8]commandDecoder{
	SpliceNullType: func(*bitio.CountReader, int) SpliceCommand { return &SpliceNull{} },
	SpliceScheduleType: func(r *bitio.CountReader, length int) SpliceCommand {
		return &SpliceSchedule{Data: readBytes(r, length)}
	},
	SpliceInsertType: decodeSpliceInsert,
	TimeSignalType: func(r *bitio.CountReader, _ int) SpliceCommand {
		return &TimeSignal{SpliceTime: readSpliceTime(r)}
	},
	BandwidthReservationType: func(*bitio.CountReader, int) SpliceCommand { return &BandwidthReservation{} },
	PrivateCommandType: func(r *bitio.CountReader, length int) SpliceCommand {
		c := &PrivateCommand{Identifier: readUint(r, 32)}
		c.Data = readBytes(r, length-4)
		return c
	},
}

// decodeCommand decodes a command whose length is known.
func decodeCommand(t uint8, data []byte) (SpliceCommand, error) {
	cmd, _, err := decodeCommandPrefix(t, data)
	return cmd, err
}

// decodeCommandPrefix decodes a command at the start of data and reports
// how many bytes it used. Unknown commands take all of data.
func decodeCommandPrefix(t uint8, data []byte) (SpliceCommand, int, error) {
	dec, ok := commandDecoders[t]
	if !ok {
		return &OpaqueCommand{CommandType: t, Data: clone(data)}, len(data), nil
	}
	r := newReader(data)
	cmd := dec(r, len(data))
	if err := readError(r, CommandName(t)); err != nil {
		return nil, 0, err
	}
	return cmd, consumed(r), nil
}

// readSpliceTime decodes splice_time(): time_specified_flag followed by
// either 6 reserved bits and a 33-bit PTS, or 7 reserved bits.
func readSpliceTime(r *bitio.CountReader) SpliceTime {
	if !readFlag(r) {
		r.TryReadBits(7)
		return SpliceTime{}
	}
	r.TryReadBits(6)
	pts := r.TryReadBits(33)
	return SpliceTime{PTSTime: &pts}
}
