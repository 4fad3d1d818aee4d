package psi

import "fmt"

// Running status values (EN 300 468 table 6).
const (
	RunningUndefined  uint8 = 0
	RunningNotRunning uint8 = 1
	RunningStartsSoon uint8 = 2
	RunningPausing    uint8 = 3
	RunningRunning    uint8 = 4
	RunningOffAir     uint8 = 5
)

// SDT is a service description section.
type SDT struct {
	Header
	TransportStreamID uint16
	OriginalNetworkID uint16
	Services          []SDTService
}

// SDTService is one entry of the service loop.
type SDTService struct {
	ServiceID           uint16
	EITSchedule         bool
	EITPresentFollowing bool
	RunningStatus       uint8
	FreeCAMode          bool
	Descriptors         []Descriptor
}

func (*SDT) Family() Family { return FamilySDT }

// Actual reports whether the section describes the delivering transport
// stream.
func (s *SDT) Actual() bool { return s.TableID == TableIDSDTActual }

func decodeSDT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	// body layout after the common header:
	// [0-1]  original_network_id
	// [2]    reserved_future_use
	// [3..]  service loop
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("SDT without section_syntax_indicator")
	}
	b := body(section)
	r := newReader(b)
	sdt := &SDT{Header: h, TransportStreamID: h.TableIDExtension}
	sdt.OriginalNetworkID = uint16(r.TryReadBits(16))
	r.TryReadBits(8)
	if err := truncated(r, "SDT header"); err != nil {
		return nil, err
	}

	for offset(r) < int64(len(b)) && r.TryError == nil {
		svc := SDTService{ServiceID: uint16(r.TryReadBits(16))}
		r.TryReadBits(6)
		svc.EITSchedule = r.TryReadBits(1) == 1
		svc.EITPresentFollowing = r.TryReadBits(1) == 1
		svc.RunningStatus = uint8(r.TryReadBits(3))
		svc.FreeCAMode = r.TryReadBits(1) == 1
		n := int(r.TryReadBits(12))
		loop := readBytes(r, n)
		if err := truncated(r, "SDT service"); err != nil {
			return nil, err
		}
		ds, err := dp.Parse(loop)
		if err != nil {
			return nil, fmt.Errorf("SDT service 0x%04X descriptors: %w", svc.ServiceID, err)
		}
		svc.Descriptors = ds
		sdt.Services = append(sdt.Services, svc)
	}
	if err := truncated(r, "SDT service loop"); err != nil {
		return nil, err
	}
	return sdt, nil
}
