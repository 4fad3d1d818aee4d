package psi

import (
	"fmt"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// AIT is an application information section (TS 102 809).
type AIT struct {
	Header
	TestApplication   bool
	ApplicationType   uint16
	CommonDescriptors []Descriptor
	Applications      []AITApplication
}

// AITApplication is one entry of the application loop.
type AITApplication struct {
	OrganisationID uint32
	ApplicationID  uint16
	ControlCode    uint8
	Descriptors    []Descriptor
}

func (*AIT) Family() Family { return FamilyAIT }

// ApplicationDescriptor describes an application's profiles, visibility
// and priority.
type ApplicationDescriptor struct {
	Profiles                []ApplicationProfile
	ServiceBound            bool
	Visibility              uint8
	Priority                uint8
	TransportProtocolLabels []byte
}

type ApplicationProfile struct {
	Profile uint16
	Major   uint8
	Minor   uint8
	Micro   uint8
}

func (*ApplicationDescriptor) Tag() uint8 { return TagApplication }

type ApplicationName struct {
	Language string
	Name     string
}

type ApplicationNameDescriptor struct {
	Names []ApplicationName
}

func (*ApplicationNameDescriptor) Tag() uint8 { return TagApplicationName }

type TransportProtocolDescriptor struct {
	ProtocolID uint16
	Label      uint8
	Selector   []byte
}

func (*TransportProtocolDescriptor) Tag() uint8 { return TagTransportProtocol }

type SimpleAppLocationDescriptor struct {
	InitialPath string
}

func (*SimpleAppLocationDescriptor) Tag() uint8 { return TagSimpleAppLocation }

// aitDescriptorDecoders resolves AIT-scoped tags first and falls back to
// the common decoders.
var aitDescriptorDecoders = func() map[uint8]descriptorDecoder {
	m := map[uint8]descriptorDecoder{
		TagApplication:       decodeApplication,
		TagApplicationName:   decodeApplicationName,
		TagTransportProtocol: decodeTransportProtocol,
		TagSimpleAppLocation: decodeSimpleAppLocation,
	}
	for tag, dec := range descriptorDecoders {
		if _, ok := m[tag]; !ok {
			m[tag] = dec
		}
	}
	return m
}()

func decodeApplication(b []byte) (Descriptor, error) {
	if len(b) < 1 {
		return nil, shortDescriptor(TagApplication, 1, 0)
	}
	n := int(b[0])
	if n%5 != 0 || 1+n+2 > len(b) {
		return nil, fmt.Errorf("psi: application descriptor profiles length %d invalid for %d bytes", n, len(b))
	}
	d := &ApplicationDescriptor{}
	for i := 1; i+5 <= 1+n; i += 5 {
		d.Profiles = append(d.Profiles, ApplicationProfile{
			Profile: mpegts.Uint16(b[i:]),
			Major:   b[i+2],
			Minor:   b[i+3],
			Micro:   b[i+4],
		})
	}
	flags := b[1+n]
	d.ServiceBound = flags&0x80 != 0
	d.Visibility = flags >> 5 & 0x03
	d.Priority = b[2+n]
	d.TransportProtocolLabels = clone(b[3+n:])
	return d, nil
}

func decodeApplicationName(b []byte) (Descriptor, error) {
	d := &ApplicationNameDescriptor{}
	for off := 0; off < len(b); {
		if off+4 > len(b) {
			return nil, shortDescriptor(TagApplicationName, off+4, len(b))
		}
		lang := string(b[off : off+3])
		name, next, err := readText(TagApplicationName, b, off+3)
		if err != nil {
			return nil, err
		}
		d.Names = append(d.Names, ApplicationName{Language: lang, Name: name})
		off = next
	}
	return d, nil
}

func decodeTransportProtocol(b []byte) (Descriptor, error) {
	if len(b) < 3 {
		return nil, shortDescriptor(TagTransportProtocol, 3, len(b))
	}
	return &TransportProtocolDescriptor{ProtocolID: mpegts.Uint16(b), Label: b[2], Selector: clone(b[3:])}, nil
}

func decodeSimpleAppLocation(b []byte) (Descriptor, error) {
	return &SimpleAppLocationDescriptor{InitialPath: string(b)}, nil
}

func decodeAIT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	// body layout after the common header:
	// [0-1]  reserved(4) + common_descriptors_length(12)
	// [...]  common descriptors
	// [..]   reserved(4) + application_loop_length(12)
	// [...]  applications: organisation_id(32) application_id(16)
	//        application_control_code(8) reserved(4) + descriptors_length(12)
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("AIT without section_syntax_indicator")
	}
	ait := &AIT{
		Header:          h,
		TestApplication: h.TableIDExtension&0x8000 != 0,
		ApplicationType: h.TableIDExtension & 0x7FFF,
	}
	b := body(section)
	r := newReader(b)
	common := readLoop(r)
	r.TryReadBits(4)
	loopLen := int64(r.TryReadBits(12))
	if err := truncated(r, "AIT header"); err != nil {
		return nil, err
	}
	var err error
	if ait.CommonDescriptors, err = dp.parse(aitDescriptorDecoders, common); err != nil {
		return nil, fmt.Errorf("AIT common descriptors: %w", err)
	}
	end := offset(r) + loopLen
	if end > int64(len(b)) {
		return nil, fmt.Errorf("AIT application_loop_length %d overruns section", loopLen)
	}

	for offset(r) < end && r.TryError == nil {
		app := AITApplication{
			OrganisationID: uint32(r.TryReadBits(32)),
			ApplicationID:  uint16(r.TryReadBits(16)),
			ControlCode:    uint8(r.TryReadBits(8)),
		}
		loop := readLoop(r)
		if err := truncated(r, "AIT application"); err != nil {
			return nil, err
		}
		if app.Descriptors, err = dp.parse(aitDescriptorDecoders, loop); err != nil {
			return nil, fmt.Errorf("AIT application 0x%04X descriptors: %w", app.ApplicationID, err)
		}
		ait.Applications = append(ait.Applications, app)
	}
	if err := truncated(r, "AIT application loop"); err != nil {
		return nil, err
	}
	return ait, nil
}
