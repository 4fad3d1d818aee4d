package psi

import (
	"fmt"
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Descriptor tags (ISO 13818-1 2.6, EN 300 468 6.1, TS 102 809 5.3).
const (
	TagRegistration          uint8 = 0x05
	TagCA                    uint8 = 0x09
	TagISO639Language        uint8 = 0x0A
	TagMaximumBitrate        uint8 = 0x0E
	TagNetworkName           uint8 = 0x40
	TagServiceList           uint8 = 0x41
	TagService               uint8 = 0x48
	TagShortEvent            uint8 = 0x4D
	TagStreamIdentifier      uint8 = 0x52
	TagDataBroadcastID       uint8 = 0x66
	TagApplicationSignalling uint8 = 0x6F
	TagApplication           uint8 = 0x00
	TagApplicationName       uint8 = 0x01
	TagTransportProtocol     uint8 = 0x02
	TagSimpleAppLocation     uint8 = 0x15
)

// Descriptor is a decoded descriptor.
type Descriptor interface {
	Tag() uint8
}

// RegistrationDescriptor carries a format_identifier such as "CUEI".
type RegistrationDescriptor struct {
	FormatIdentifier uint32
	AdditionalInfo   []byte
}

func (*RegistrationDescriptor) Tag() uint8 { return TagRegistration }

// FormatString returns the format identifier as four ASCII characters.
func (d *RegistrationDescriptor) FormatString() string {
	b := []byte{byte(d.FormatIdentifier >> 24), byte(d.FormatIdentifier >> 16), byte(d.FormatIdentifier >> 8), byte(d.FormatIdentifier)}
	return string(b)
}

type CADescriptor struct {
	CASystemID  uint16
	CAPID       uint16
	PrivateData []byte
}

func (*CADescriptor) Tag() uint8 { return TagCA }

type ISO639Language struct {
	Code      string
	AudioType uint8
}

type ISO639LanguageDescriptor struct {
	Languages []ISO639Language
}

func (*ISO639LanguageDescriptor) Tag() uint8 { return TagISO639Language }

// MaximumBitrateDescriptor carries maximum_bitrate in units of 50 bytes/s.
type MaximumBitrateDescriptor struct {
	MaximumBitrate uint32
}

func (*MaximumBitrateDescriptor) Tag() uint8 { return TagMaximumBitrate }

// BitsPerSecond converts the declared maximum to bits per second.
func (d *MaximumBitrateDescriptor) BitsPerSecond() uint64 {
	return uint64(d.MaximumBitrate) * 50 * 8
}

type NetworkNameDescriptor struct {
	Name string
}

func (*NetworkNameDescriptor) Tag() uint8 { return TagNetworkName }

type ServiceListEntry struct {
	ServiceID   uint16
	ServiceType uint8
}

type ServiceListDescriptor struct {
	Services []ServiceListEntry
}

func (*ServiceListDescriptor) Tag() uint8 { return TagServiceList }

type ServiceDescriptor struct {
	ServiceType  uint8
	ProviderName string
	ServiceName  string
}

func (*ServiceDescriptor) Tag() uint8 { return TagService }

type ShortEventDescriptor struct {
	Language  string
	EventName string
	Text      string
}

func (*ShortEventDescriptor) Tag() uint8 { return TagShortEvent }

type StreamIdentifierDescriptor struct {
	ComponentTag uint8
}

func (*StreamIdentifierDescriptor) Tag() uint8 { return TagStreamIdentifier }

type DataBroadcastIDDescriptor struct {
	DataBroadcastID uint16
	IDSelector      []byte
}

func (*DataBroadcastIDDescriptor) Tag() uint8 { return TagDataBroadcastID }

// ApplicationSignalling is one entry of an application_signalling_descriptor.
type ApplicationSignalling struct {
	ApplicationType uint16
	AITVersion      uint8
}

type ApplicationSignallingDescriptor struct {
	Applications []ApplicationSignalling
}

func (*ApplicationSignallingDescriptor) Tag() uint8 { return TagApplicationSignalling }

// UnknownDescriptor keeps the raw body of a descriptor with no decoder, or
// one whose decoder failed (Err set).
type UnknownDescriptor struct {
	DescriptorTag uint8
	Data          []byte
	Err           error
}

func (d *UnknownDescriptor) Tag() uint8 { return d.DescriptorTag }

type descriptorDecoder func(data []byte) (Descriptor, error)

var descriptorDecoders = map[uint8]descriptorDecoder{
	TagRegistration:          decodeRegistration,
	TagCA:                    decodeCA,
	TagISO639Language:        decodeISO639Language,
	TagMaximumBitrate:        decodeMaximumBitrate,
	TagNetworkName:           decodeNetworkName,
	TagServiceList:           decodeServiceList,
	TagService:               decodeService,
	TagShortEvent:            decodeShortEvent,
	TagStreamIdentifier:      decodeStreamIdentifier,
	TagDataBroadcastID:       decodeDataBroadcastID,
	TagApplicationSignalling: decodeApplicationSignalling,
}

func shortDescriptor(tag uint8, need, got int) error {
	return fmt.Errorf("psi: descriptor 0x%02X needs %d bytes, got %d", tag, need, got)
}

func decodeRegistration(b []byte) (Descriptor, error) {
	if len(b) < 4 {
		return nil, shortDescriptor(TagRegistration, 4, len(b))
	}
	return &RegistrationDescriptor{FormatIdentifier: mpegts.Uint32(b), AdditionalInfo: clone(b[4:])}, nil
}

func decodeCA(b []byte) (Descriptor, error) {
	if len(b) < 4 {
		return nil, shortDescriptor(TagCA, 4, len(b))
	}
	return &CADescriptor{
		CASystemID:  mpegts.Uint16(b),
		CAPID:       mpegts.PID13(b[2:]),
		PrivateData: clone(b[4:]),
	}, nil
}

func decodeISO639Language(b []byte) (Descriptor, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("psi: ISO 639 descriptor length %d is not a multiple of 4", len(b))
	}
	d := &ISO639LanguageDescriptor{}
	for i := 0; i+4 <= len(b); i += 4 {
		d.Languages = append(d.Languages, ISO639Language{Code: string(b[i : i+3]), AudioType: b[i+3]})
	}
	return d, nil
}

func decodeMaximumBitrate(b []byte) (Descriptor, error) {
	if len(b) < 3 {
		return nil, shortDescriptor(TagMaximumBitrate, 3, len(b))
	}
	return &MaximumBitrateDescriptor{MaximumBitrate: mpegts.Uint24(b) & 0x3FFFFF}, nil
}

func decodeNetworkName(b []byte) (Descriptor, error) {
	return &NetworkNameDescriptor{Name: DecodeText(b)}, nil
}

func decodeServiceList(b []byte) (Descriptor, error) {
	if len(b)%3 != 0 {
		return nil, fmt.Errorf("psi: service list length %d is not a multiple of 3", len(b))
	}
	d := &ServiceListDescriptor{}
	for i := 0; i+3 <= len(b); i += 3 {
		d.Services = append(d.Services, ServiceListEntry{ServiceID: mpegts.Uint16(b[i:]), ServiceType: b[i+2]})
	}
	return d, nil
}

// readText returns the length-prefixed text starting at b[off] and the
// offset after it.
func readText(tag uint8, b []byte, off int) (string, int, error) {
	if off >= len(b) {
		return "", 0, shortDescriptor(tag, off+1, len(b))
	}
	n := int(b[off])
	end := off + 1 + n
	if end > len(b) {
		return "", 0, shortDescriptor(tag, end, len(b))
	}
	return DecodeText(b[off+1 : end]), end, nil
}

func decodeService(b []byte) (Descriptor, error) {
	if len(b) < 1 {
		return nil, shortDescriptor(TagService, 1, 0)
	}
	d := &ServiceDescriptor{ServiceType: b[0]}
	var off int
	var err error
	if d.ProviderName, off, err = readText(TagService, b, 1); err != nil {
		return nil, err
	}
	if d.ServiceName, _, err = readText(TagService, b, off); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeShortEvent(b []byte) (Descriptor, error) {
	if len(b) < 3 {
		return nil, shortDescriptor(TagShortEvent, 3, len(b))
	}
	d := &ShortEventDescriptor{Language: string(b[:3])}
	var off int
	var err error
	if d.EventName, off, err = readText(TagShortEvent, b, 3); err != nil {
		return nil, err
	}
	if d.Text, _, err = readText(TagShortEvent, b, off); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeStreamIdentifier(b []byte) (Descriptor, error) {
	if len(b) < 1 {
		return nil, shortDescriptor(TagStreamIdentifier, 1, 0)
	}
	return &StreamIdentifierDescriptor{ComponentTag: b[0]}, nil
}

func decodeDataBroadcastID(b []byte) (Descriptor, error) {
	if len(b) < 2 {
		return nil, shortDescriptor(TagDataBroadcastID, 2, len(b))
	}
	return &DataBroadcastIDDescriptor{DataBroadcastID: mpegts.Uint16(b), IDSelector: clone(b[2:])}, nil
}

func decodeApplicationSignalling(b []byte) (Descriptor, error) {
	if len(b)%3 != 0 {
		return nil, fmt.Errorf("psi: application signalling length %d is not a multiple of 3", len(b))
	}
	d := &ApplicationSignallingDescriptor{}
	for i := 0; i+3 <= len(b); i += 3 {
		d.Applications = append(d.Applications, ApplicationSignalling{
			ApplicationType: mpegts.Uint16(b[i:]) & 0x7FFF,
			AITVersion:      b[i+2] & 0x1F,
		})
	}
	return d, nil
}

// DescriptorParser decodes descriptor loops. It remembers which unknown
// tags it has already seen so each is reported once; one parser serves
// one demux session and is not safe for concurrent use.
type DescriptorParser struct {
	seen  map[uint8]struct{}
	fresh []uint8
}

// NewDescriptorParser returns a parser with an empty unknown-tag set.
func NewDescriptorParser() *DescriptorParser {
	return &DescriptorParser{seen: make(map[uint8]struct{})}
}

// Parse decodes a descriptor loop with the common decoders.
func (p *DescriptorParser) Parse(loop []byte) ([]Descriptor, error) {
	return p.parse(descriptorDecoders, loop)
}

func (p *DescriptorParser) parse(decoders map[uint8]descriptorDecoder, loop []byte) ([]Descriptor, error) {
	var out []Descriptor
	for off := 0; off < len(loop); {
		if off+2 > len(loop) {
			return nil, fmt.Errorf("psi: descriptor header at offset %d overruns %d-byte loop", off, len(loop))
		}
		tag, n := loop[off], int(loop[off+1])
		end := off + 2 + n
		if end > len(loop) {
			return nil, fmt.Errorf("psi: descriptor 0x%02X length %d overruns %d-byte loop", tag, n, len(loop))
		}
		out = append(out, p.decodeOne(decoders, tag, loop[off+2:end]))
		off = end
	}
	return out, nil
}

func (p *DescriptorParser) decodeOne(decoders map[uint8]descriptorDecoder, tag uint8, data []byte) Descriptor {
	dec, ok := decoders[tag]
	if !ok {
		p.noteUnknown(tag)
		return &UnknownDescriptor{DescriptorTag: tag, Data: clone(data)}
	}
	d, err := dec(data)
	if err != nil {
		return &UnknownDescriptor{DescriptorTag: tag, Data: clone(data), Err: err}
	}
	return d
}

func (p *DescriptorParser) noteUnknown(tag uint8) {
	if p.seen == nil {
		p.seen = make(map[uint8]struct{})
	}
	if _, ok := p.seen[tag]; ok {
		return
	}
	p.seen[tag] = struct{}{}
	p.fresh = append(p.fresh, tag)
}

// takeFresh returns the unknown tags first seen since the previous call.
func (p *DescriptorParser) takeFresh() []uint8 {
	out := p.fresh
	p.fresh = nil
	return out
}

// SeenUnknown returns every unknown tag seen so far in ascending order.
func (p *DescriptorParser) SeenUnknown() []uint8 {
	out := make([]uint8, 0, len(p.seen))
	for t := range p.seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindDescriptor returns the first descriptor with tag, or nil.
func FindDescriptor(ds []Descriptor, tag uint8) Descriptor {
	for _, d := range ds {
		if d.Tag() == tag {
			return d
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
