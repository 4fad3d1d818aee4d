package psi

import "fmt"

// MIP is a megaframe initialization packet (TS 101 191), carried on PID
// 0x0015 by DVB-T single frequency networks.
type MIP struct {
	Header
	Pointer                  uint16
	Periodic                 bool
	SynchronizationTimeStamp uint32 // 100 ns units
	MaximumDelay             uint32 // 100 ns units
	TPSMIP                   uint32
	IndividualAddressing     []byte
}

func (*MIP) Family() Family { return FamilyMIP }

// mipFixedSize is section_length's minimum: pointer through
// individual_addressing_length plus CRC.
const mipFixedSize = 2 + 2 + 3 + 3 + 4 + 1 + 4

func decodeMIP(section []byte, h Header, _ *DescriptorParser) (Table, error) {
	// section layout:
	// [0]      synchronization_id
	// [1]      section_length
	// [2-3]    pointer
	// [4-5]    periodic_flag(1) + future_use(15)
	// [6-8]    synchronization_time_stamp
	// [9-11]   maximum_delay
	// [12-15]  tps_mip
	// [16]     individual_addressing_length
	// [17..]   individual addressing
	// [N-4..N] CRC32
	if h.SectionLength < mipFixedSize {
		return nil, fmt.Errorf("MIP section_length %d below %d", h.SectionLength, mipFixedSize)
	}
	r := newReader(section[2 : len(section)-4])
	m := &MIP{Header: h}
	m.Pointer = uint16(r.TryReadBits(16))
	m.Periodic = r.TryReadBits(1) == 1
	r.TryReadBits(15)
	m.SynchronizationTimeStamp = uint32(r.TryReadBits(24))
	m.MaximumDelay = uint32(r.TryReadBits(24))
	m.TPSMIP = uint32(r.TryReadBits(32))
	n := int(r.TryReadBits(8))
	m.IndividualAddressing = readBytes(r, n)
	if err := truncated(r, "MIP"); err != nil {
		return nil, err
	}
	return m, nil
}
