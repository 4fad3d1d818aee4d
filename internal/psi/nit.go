package psi

import "fmt"

// NIT is a network information section. BAT sections share the layout
// with bouquet_id in place of network_id.
type NIT struct {
	Header
	NetworkID          uint16
	NetworkDescriptors []Descriptor
	TransportStreams   []NITTransportStream
}

// NITTransportStream is one entry of the transport stream loop.
type NITTransportStream struct {
	TransportStreamID    uint16
	OriginalNetworkID    uint16
	TransportDescriptors []Descriptor
}

func (*NIT) Family() Family { return FamilyNIT }

// Actual reports whether the section describes the delivering network.
func (n *NIT) Actual() bool { return n.TableID == TableIDNITActual }

// BAT is a bouquet association section.
type BAT struct {
	Header
	BouquetID          uint16
	BouquetDescriptors []Descriptor
	TransportStreams   []NITTransportStream
}

func (*BAT) Family() Family { return FamilyBAT }

func decodeNIT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("NIT without section_syntax_indicator")
	}
	ds, streams, err := decodeNetworkLoops(body(section), dp)
	if err != nil {
		return nil, fmt.Errorf("NIT %w", err)
	}
	return &NIT{Header: h, NetworkID: h.TableIDExtension, NetworkDescriptors: ds, TransportStreams: streams}, nil
}

func decodeBAT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("BAT without section_syntax_indicator")
	}
	ds, streams, err := decodeNetworkLoops(body(section), dp)
	if err != nil {
		return nil, fmt.Errorf("BAT %w", err)
	}
	return &BAT{Header: h, BouquetID: h.TableIDExtension, BouquetDescriptors: ds, TransportStreams: streams}, nil
}

// decodeNetworkLoops parses the descriptor loop and transport stream loop
// common to NIT and BAT.
func decodeNetworkLoops(b []byte, dp *DescriptorParser) ([]Descriptor, []NITTransportStream, error) {
	r := newReader(b)
	ds, err := readDescriptors(r, dp, "network")
	if err != nil {
		return nil, nil, err
	}

	r.TryReadBits(4)
	loopLen := int64(r.TryReadBits(12))
	if err := truncated(r, "transport stream loop"); err != nil {
		return nil, nil, err
	}
	end := offset(r) + loopLen
	if end > int64(len(b)) {
		return nil, nil, fmt.Errorf("transport_stream_loop_length %d overruns section", loopLen)
	}

	var streams []NITTransportStream
	for offset(r) < end && r.TryError == nil {
		ts := NITTransportStream{
			TransportStreamID: uint16(r.TryReadBits(16)),
			OriginalNetworkID: uint16(r.TryReadBits(16)),
		}
		if ts.TransportDescriptors, err = readDescriptors(r, dp, "transport stream"); err != nil {
			return nil, nil, err
		}
		streams = append(streams, ts)
	}
	if err := truncated(r, "transport stream loop"); err != nil {
		return nil, nil, err
	}
	return ds, streams, nil
}
