package scte35

import (
	"fmt"

	"github.com/icza/bitio"
)

// splice_descriptor_tag values.
const (
	AvailDescriptorTag        uint8 = 0x00
	DTMFDescriptorTag         uint8 = 0x01
	SegmentationDescriptorTag uint8 = 0x02
	TimeDescriptorTag         uint8 = 0x03

	// CUEIdentifier is the CUEI ASCII identifier (0x43554549).
	CUEIdentifier uint32 = 0x43554549
)

// Segmentation type constants per SCTE-35 Table 22.
const (
	SegmentationTypeNotIndicated              uint8 = 0x00
	SegmentationTypeContentIdentification     uint8 = 0x01
	SegmentationTypeProgramStart              uint8 = 0x10
	SegmentationTypeProgramEnd                uint8 = 0x11
	SegmentationTypeProgramEarlyTermination   uint8 = 0x12
	SegmentationTypeProgramBreakaway          uint8 = 0x13
	SegmentationTypeProgramResumption         uint8 = 0x14
	SegmentationTypeProgramRunoverPlanned     uint8 = 0x15
	SegmentationTypeProgramRunoverUnplanned   uint8 = 0x16
	SegmentationTypeProgramOverlapStart       uint8 = 0x17
	SegmentationTypeProgramBlackoutOverride   uint8 = 0x18
	SegmentationTypeProgramStartInProgress    uint8 = 0x19
	SegmentationTypeChapterStart              uint8 = 0x20
	SegmentationTypeChapterEnd                uint8 = 0x21
	SegmentationTypeBreakStart                uint8 = 0x22
	SegmentationTypeBreakEnd                  uint8 = 0x23
	SegmentationTypeOpeningCreditStart        uint8 = 0x24
	SegmentationTypeOpeningCreditEnd          uint8 = 0x25
	SegmentationTypeClosingCreditStart        uint8 = 0x26
	SegmentationTypeClosingCreditEnd          uint8 = 0x27
	SegmentationTypeProviderAdStart           uint8 = 0x30
	SegmentationTypeProviderAdEnd             uint8 = 0x31
	SegmentationTypeDistributorAdStart        uint8 = 0x32
	SegmentationTypeDistributorAdEnd          uint8 = 0x33
	SegmentationTypeProviderPOStart           uint8 = 0x34
	SegmentationTypeProviderPOEnd             uint8 = 0x35
	SegmentationTypeDistributorPOStart        uint8 = 0x36
	SegmentationTypeDistributorPOEnd          uint8 = 0x37
	SegmentationTypeProviderOverlayPOStart    uint8 = 0x38
	SegmentationTypeProviderOverlayPOEnd      uint8 = 0x39
	SegmentationTypeDistributorOverlayPOStart uint8 = 0x3a
	SegmentationTypeDistributorOverlayPOEnd   uint8 = 0x3b
	SegmentationTypeProviderPromoStart        uint8 = 0x3c
	SegmentationTypeProviderPromoEnd          uint8 = 0x3d
	SegmentationTypeDistributorPromoStart     uint8 = 0x3e
	SegmentationTypeDistributorPromoEnd       uint8 = 0x3f
	SegmentationTypeUnscheduledEventStart     uint8 = 0x40
	SegmentationTypeUnscheduledEventEnd       uint8 = 0x41
	SegmentationTypeAltConOppStart            uint8 = 0x42
	SegmentationTypeAltConOppEnd              uint8 = 0x43
	SegmentationTypeProviderAdBlockStart      uint8 = 0x44
	SegmentationTypeProviderAdBlockEnd        uint8 = 0x45
	SegmentationTypeDistributorAdBlockStart   uint8 = 0x46
	SegmentationTypeDistributorAdBlockEnd     uint8 = 0x47
	SegmentationTypeNetworkStart              uint8 = 0x50
	SegmentationTypeNetworkEnd                uint8 = 0x51
)

// SpliceDescriptor is one of the splice descriptor types below.
type SpliceDescriptor interface {
	Tag() uint8
}

// AvailDescriptor carries a provider avail id.
type AvailDescriptor struct {
	ProviderAvailID uint32
}

func (*AvailDescriptor) Tag() uint8 { return AvailDescriptorTag }

// DTMFDescriptor carries DTMF characters to emit ahead of a splice.
type DTMFDescriptor struct {
	Preroll uint8 // tenths of a second
	Chars   string
}

func (*DTMFDescriptor) Tag() uint8 { return DTMFDescriptorTag }

// TimeDescriptor carries a TAI timestamp and the UTC offset.
type TimeDescriptor struct {
	TAISeconds     uint64
	TAINanoseconds uint32
	UTCOffset      uint16
}

func (*TimeDescriptor) Tag() uint8 { return TimeDescriptorTag }

// SegmentationDescriptor carries segmentation information.
type SegmentationDescriptor struct {
	SegmentationEventID     uint32
	SegmentationEventCancel bool
	ProgramSegmentationFlag bool
	DeliveryNotRestricted   bool
	WebDeliveryAllowed      bool
	NoRegionalBlackout      bool
	ArchiveAllowed          bool
	DeviceRestrictions      uint8
	Components              []SegmentationComponent
	SegmentationDuration    *uint64 // 90 kHz ticks
	SegmentationUPIDType    uint8
	SegmentationUPID        []byte
	SegmentationTypeID      uint8
	SegmentNum              uint8
	SegmentsExpected        uint8
	SubSegmentNum           *uint8
	SubSegmentsExpected     *uint8
}

// SegmentationComponent is one component entry of a segmentation
// descriptor.
type SegmentationComponent struct {
	ComponentTag uint8
	PTSOffset    uint64
}

// Tag returns the splice_descriptor_tag.
func (*SegmentationDescriptor) Tag() uint8 { return SegmentationDescriptorTag }

// Name returns a human-readable name for the segmentation type.
func (sd *SegmentationDescriptor) Name() string {
	switch sd.SegmentationTypeID {
	case SegmentationTypeNotIndicated:
		return "Not Indicated"
	case SegmentationTypeContentIdentification:
		return "Content Identification"
	case SegmentationTypeProgramStart:
		return "Program Start"
	case SegmentationTypeProgramEnd:
		return "Program End"
	case SegmentationTypeProgramEarlyTermination:
		return "Program Early Termination"
	case SegmentationTypeProgramBreakaway:
		return "Program Breakaway"
	case SegmentationTypeProgramResumption:
		return "Program Resumption"
	case SegmentationTypeProgramRunoverPlanned:
		return "Program Runover Planned"
	case SegmentationTypeProgramRunoverUnplanned:
		return "Program Runover Unplanned"
	case SegmentationTypeProgramOverlapStart:
		return "Program Overlap Start"
	case SegmentationTypeProgramBlackoutOverride:
		return "Program Blackout Override"
	case SegmentationTypeProgramStartInProgress:
		return "Program Start - In Progress"
	case SegmentationTypeChapterStart:
		return "Chapter Start"
	case SegmentationTypeChapterEnd:
		return "Chapter End"
	case SegmentationTypeBreakStart:
		return "Break Start"
	case SegmentationTypeBreakEnd:
		return "Break End"
	case SegmentationTypeOpeningCreditStart:
		return "Opening Credit Start"
	case SegmentationTypeOpeningCreditEnd:
		return "Opening Credit End"
	case SegmentationTypeClosingCreditStart:
		return "Closing Credit Start"
	case SegmentationTypeClosingCreditEnd:
		return "Closing Credit End"
	case SegmentationTypeProviderAdStart:
		return "Provider Advertisement Start"
	case SegmentationTypeProviderAdEnd:
		return "Provider Advertisement End"
	case SegmentationTypeDistributorAdStart:
		return "Distributor Advertisement Start"
	case SegmentationTypeDistributorAdEnd:
		return "Distributor Advertisement End"
	case SegmentationTypeProviderPOStart:
		return "Provider Placement Opportunity Start"
	case SegmentationTypeProviderPOEnd:
		return "Provider Placement Opportunity End"
	case SegmentationTypeDistributorPOStart:
		return "Distributor Placement Opportunity Start"
	case SegmentationTypeDistributorPOEnd:
		return "Distributor Placement Opportunity End"
	case SegmentationTypeProviderOverlayPOStart:
		return "Provider Overlay Placement Opportunity Start"
	case SegmentationTypeProviderOverlayPOEnd:
		return "Provider Overlay Placement Opportunity End"
	case SegmentationTypeDistributorOverlayPOStart:
		return "Distributor Overlay Placement Opportunity Start"
	case SegmentationTypeDistributorOverlayPOEnd:
		return "Distributor Overlay Placement Opportunity End"
	case SegmentationTypeProviderPromoStart:
		return "Provider Promo Start"
	case SegmentationTypeProviderPromoEnd:
		return "Provider Promo End"
	case SegmentationTypeDistributorPromoStart:
		return "Distributor Promo Start"
	case SegmentationTypeDistributorPromoEnd:
		return "Distributor Promo End"
	case SegmentationTypeUnscheduledEventStart:
		return "Unscheduled Event Start"
	case SegmentationTypeUnscheduledEventEnd:
		return "Unscheduled Event End"
	case SegmentationTypeAltConOppStart:
		return "Alternate Content Opportunity Start"
	case SegmentationTypeAltConOppEnd:
		return "Alternate Content Opportunity End"
	case SegmentationTypeProviderAdBlockStart:
		return "Provider Ad Block Start"
	case SegmentationTypeProviderAdBlockEnd:
		return "Provider Ad Block End"
	case SegmentationTypeDistributorAdBlockStart:
		return "Distributor Ad Block Start"
	case SegmentationTypeDistributorAdBlockEnd:
		return "Distributor Ad Block End"
	case SegmentationTypeNetworkStart:
		return "Network Start"
	case SegmentationTypeNetworkEnd:
		return "Network End"
	default:
		return "Unknown"
	}
}

// UnknownDescriptor keeps a descriptor with an unrecognised tag or
// identifier, or one that failed to decode.
type UnknownDescriptor struct {
	DescriptorTag uint8
	Identifier    uint32
	Data          []byte
	Err           error
}

func (d *UnknownDescriptor) Tag() uint8 { return d.DescriptorTag }

type descriptorDecoder func(r *bitio.CountReader, length int) SpliceDescriptor

var descriptorDecoders = map[uint8]descriptorDecoder{
	AvailDescriptorTag: func(r *bitio.CountReader, _ int) SpliceDescriptor {
		return &AvailDescriptor{ProviderAvailID: readUint(r, 32)}
	},
	DTMFDescriptorTag: func(r *bitio.CountReader, _ int) SpliceDescriptor {
		d := &DTMFDescriptor{Preroll: uint8(r.TryReadBits(8))}
		n := int(r.TryReadBits(3))
		r.TryReadBits(5) // reserved
		d.Chars = string(readBytes(r, n))
		return d
	},
	SegmentationDescriptorTag: decodeSegmentation,
	TimeDescriptorTag: func(r *bitio.CountReader, _ int) SpliceDescriptor {
		return &TimeDescriptor{
			TAISeconds:     r.TryReadBits(48),
			TAINanoseconds: readUint(r, 32),
			UTCOffset:      uint16(r.TryReadBits(16)),
		}
	},
}

// decodeDescriptors walks a splice descriptor loop. Each entry is tag,
// length and a 32-bit identifier followed by its body; only CUEI
// descriptors are decoded, everything else is kept as UnknownDescriptor.
func decodeDescriptors(data []byte) ([]SpliceDescriptor, error) {
	var descs []SpliceDescriptor
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return descs, fmt.Errorf("scte35: descriptor header truncated at offset %d", off)
		}
		tag := data[off]
		end := off + 2 + int(data[off+1])
		if end > len(data) {
			return descs, fmt.Errorf("scte35: descriptor 0x%02X length %d overruns loop", tag, data[off+1])
		}
		descs = append(descs, decodeDescriptor(tag, data[off+2:end]))
		off = end
	}
	return descs, nil
}

func decodeDescriptor(tag uint8, body []byte) SpliceDescriptor {
	unknown := &UnknownDescriptor{DescriptorTag: tag, Data: clone(body)}
	if len(body) < 4 {
		unknown.Err = fmt.Errorf("scte35: descriptor 0x%02X shorter than its identifier", tag)
		return unknown
	}
	unknown.Identifier = uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	dec, ok := descriptorDecoders[tag]
	if !ok || unknown.Identifier != CUEIdentifier {
		return unknown
	}
	r := newReader(body[4:])
	d := dec(r, len(body)-4)
	if err := readError(r, fmt.Sprintf("descriptor 0x%02X", tag)); err != nil {
		unknown.Err = err
		return unknown
	}
	return d
}

func decodeSegmentation(r *bitio.CountReader, length int) SpliceDescriptor {
	sd := &SegmentationDescriptor{}
	sd.SegmentationEventID = readUint(r, 32)
	sd.SegmentationEventCancel = readFlag(r)
	r.TryReadBits(7) // segmentation_event_id_compliance_indicator, reserved
	if sd.SegmentationEventCancel {
		return sd
	}

	sd.ProgramSegmentationFlag = readFlag(r)
	durationFlag := readFlag(r)
	sd.DeliveryNotRestricted = readFlag(r)
	if sd.DeliveryNotRestricted {
		r.TryReadBits(5) // reserved
	} else {
		sd.WebDeliveryAllowed = readFlag(r)
		sd.NoRegionalBlackout = readFlag(r)
		sd.ArchiveAllowed = readFlag(r)
		sd.DeviceRestrictions = uint8(r.TryReadBits(2))
	}

	if !sd.ProgramSegmentationFlag {
		count := int(r.TryReadBits(8))
		for i := 0; i < count && r.TryError == nil; i++ {
			c := SegmentationComponent{ComponentTag: uint8(r.TryReadBits(8))}
			r.TryReadBits(7) // reserved
			c.PTSOffset = r.TryReadBits(33)
			sd.Components = append(sd.Components, c)
		}
	}

	if durationFlag {
		dur := r.TryReadBits(40)
		sd.SegmentationDuration = &dur
	}

	sd.SegmentationUPIDType = uint8(r.TryReadBits(8))
	upidLen := int(r.TryReadBits(8))
	sd.SegmentationUPID = readBytes(r, upidLen)
	sd.SegmentationTypeID = uint8(r.TryReadBits(8))
	sd.SegmentNum = uint8(r.TryReadBits(8))
	sd.SegmentsExpected = uint8(r.TryReadBits(8))

	if hasSubSegments(sd.SegmentationTypeID) && consumed(r)+2 <= length {
		num, expected := uint8(r.TryReadBits(8)), uint8(r.TryReadBits(8))
		sd.SubSegmentNum = &num
		sd.SubSegmentsExpected = &expected
	}
	return sd
}

// hasSubSegments reports whether the placement-opportunity start types
// may carry sub_segment_num and sub_segments_expected.
func hasSubSegments(typeID uint8) bool {
	switch typeID {
	case SegmentationTypeProviderPOStart, SegmentationTypeDistributorPOStart,
		SegmentationTypeProviderOverlayPOStart, SegmentationTypeDistributorOverlayPOStart:
		return true
	}
	return false
}
