package psi

import "github.com/zsiec/tsprobe/internal/scte35"

// SpliceInfo wraps a decoded SCTE-35 splice_info_section.
type SpliceInfo struct {
	Header
	Section *scte35.SpliceInfoSection
}

func (*SpliceInfo) Family() Family { return FamilySCTE35 }

func decodeSCTE35(section []byte, h Header, _ *DescriptorParser) (Table, error) {
	s, err := scte35.Decode(section)
	if err != nil {
		return nil, err
	}
	return &SpliceInfo{Header: h, Section: s}, nil
}
