package main

import (
	"encoding/hex"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/psi"
	"github.com/zsiec/tsprobe/internal/tsutil"
)

const (
	transportStreamID = 1
	originalNetworkID = 0x2000
	programNumber     = 1

	pmtPID    uint16 = 0x100
	videoPID  uint16 = 0x101
	scte35PID uint16 = 0x1F4

	// tickTicks is one generator tick (40 ms) in 27 MHz PCR units.
	tickTicks = 27_000_000 * 40 / 1000

	ticksPerSecond = 25
	videoPerTick   = 12
	psiEvery       = 3                  // PAT and PMT every 120 ms
	sdtEvery       = ticksPerSecond     // SDT once a second
	spliceEvery    = 5 * ticksPerSecond // a splice_info_section every 5 s
)

// spliceSections are time_signal and splice_insert sections the generator
// cycles through.
var spliceSections = []string{
	"fc302700000000000000fff00506fe000dbba00011020f43554549000000017fbf0000300101ee197d02",
	"fc302c00000000000000fff00506fe000dbba00016021443554549000000027fff00002932e000003201031233f909",
	"fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87",
	"fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974",
}

// generator produces a synthetic single-program transport stream in
// 40 ms ticks: PCR-bearing video filler, PAT and PMT, an SDT and periodic
// SCTE-35 cues.
type generator struct {
	serviceName string
	cc          map[uint16]*uint8
	tick        uint64
	pcr         uint64
	splices     [][]byte
	nextSplice  int

	pat, pmt, sdt []byte
}

func newGenerator(serviceName string) (*generator, error) {
	g := &generator{
		serviceName: serviceName,
		cc:          make(map[uint16]*uint8),
	}
	for _, s := range spliceSections {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		g.splices = append(g.splices, b)
	}
	g.pat = tsutil.LongSection(psi.TableIDPAT, transportStreamID, 0, 0, 0, []byte{
		0x00, programNumber, 0xE0 | byte(pmtPID>>8), byte(pmtPID & 0xFF),
	})
	g.pmt = tsutil.LongSection(psi.TableIDPMT, programNumber, 0, 0, 0, []byte{
		0xE0 | byte(videoPID>>8), byte(videoPID & 0xFF), 0xF0, 0x00,
		psi.StreamTypeH264, 0xE0 | byte(videoPID>>8), byte(videoPID & 0xFF), 0xF0, 0x00,
		psi.StreamTypeSCTE35, 0xE0 | byte(scte35PID>>8), byte(scte35PID & 0xFF), 0xF0, 0x00,
	})
	g.sdt = g.buildSDT()
	return g, nil
}

func (g *generator) buildSDT() []byte {
	provider := []byte("tsgen")
	name := []byte(g.serviceName)
	desc := []byte{psi.TagService, byte(3 + len(provider) + len(name)), 0x01, byte(len(provider))}
	desc = append(desc, provider...)
	desc = append(desc, byte(len(name)))
	desc = append(desc, name...)

	body := []byte{byte(originalNetworkID >> 8), byte(originalNetworkID & 0xFF), 0xFF}
	body = append(body,
		0x00, programNumber,
		0xFD,                                     // EIT_present_following
		0x80|byte(len(desc)>>8), byte(len(desc)), // running_status 4
	)
	body = append(body, desc...)
	return tsutil.LongSection(psi.TableIDSDTActual, transportStreamID, 0, 0, 0, body)
}

func (g *generator) counter(pid uint16) *uint8 {
	cc, ok := g.cc[pid]
	if !ok {
		cc = new(uint8)
		g.cc[pid] = cc
	}
	return cc
}

func (g *generator) section(out []byte, pid uint16, sec []byte) []byte {
	for _, p := range tsutil.PacketizeSection(pid, sec, g.counter(pid)) {
		out = append(out, p...)
	}
	return out
}

// next returns the packets of the next tick.
func (g *generator) next() []byte {
	out := make([]byte, 0, (videoPerTick+8)*tsutil.TSPacketSize)

	if g.tick%psiEvery == 0 {
		out = g.section(out, psi.PIDPAT, g.pat)
		out = g.section(out, pmtPID, g.pmt)
	}
	if g.tick%sdtEvery == 0 {
		out = g.section(out, psi.PIDSDTBAT, g.sdt)
	}
	if g.tick%spliceEvery == spliceEvery-1 {
		out = g.section(out, scte35PID, g.splices[g.nextSplice])
		g.nextSplice = (g.nextSplice + 1) % len(g.splices)
	}

	cc := g.counter(videoPID)
	filler := make([]byte, 100)
	out = append(out, tsutil.AdaptationPacket(videoPID, *cc, 0x10, g.pcr, filler)...)
	*cc = (*cc + 1) & 0x0F
	for i := 1; i < videoPerTick; i++ {
		out = append(out, tsutil.Packet(videoPID, *cc, false, nil)...)
		*cc = (*cc + 1) & 0x0F
	}
	out = append(out, tsutil.NullPacket(0)...)

	g.tick++
	g.pcr = (g.pcr + tickTicks) % mpegts.PCRModulus
	return out
}
