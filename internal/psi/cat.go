package psi

import "fmt"

// CAT is a conditional access section.
type CAT struct {
	Header
	Descriptors []Descriptor
}

func (*CAT) Family() Family { return FamilyCAT }

// CASystems returns the CA descriptors announced by the table.
func (c *CAT) CASystems() []*CADescriptor {
	var out []*CADescriptor
	for _, d := range c.Descriptors {
		if ca, ok := d.(*CADescriptor); ok {
			out = append(out, ca)
		}
	}
	return out
}

func decodeCAT(section []byte, h Header, dp *DescriptorParser) (Table, error) {
	if !h.SectionSyntaxIndicator {
		return nil, fmt.Errorf("CAT without section_syntax_indicator")
	}
	ds, err := dp.Parse(body(section))
	if err != nil {
		return nil, fmt.Errorf("CAT descriptors: %w", err)
	}
	return &CAT{Header: h, Descriptors: ds}, nil
}
