package demux

import (
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/psi"
)

// origin records why a family is bound to a PID.
type origin uint8

const (
	originStatic origin = iota
	originConfig
	originPAT // owner is the PAT section_number
	originPMT // owner is the PMT PID
)

type binding struct {
	family psi.Family
	origin origin
	owner  uint16
}

// route is one PID the session reassembles sections on.
type route struct {
	pid      uint16
	r        *mpegts.Reassembler
	bindings []binding
}

// family returns the bound family accepting tableID. When none does, the
// first bound family is returned so that its validator reports the
// mismatch.
func (rt *route) family(tableID byte) (psi.Family, bool) {
	for _, b := range rt.bindings {
		if b.family.Accepts(tableID) {
			return b.family, true
		}
	}
	return rt.bindings[0].family, false
}

func (rt *route) families() []psi.Family {
	var out []psi.Family
	seen := make(map[psi.Family]bool, len(rt.bindings))
	for _, b := range rt.bindings {
		if !seen[b.family] {
			seen[b.family] = true
			out = append(out, b.family)
		}
	}
	return out
}

// Route is an exported view of one route.
type Route struct {
	PID      uint16
	Families []psi.Family
}

var staticRoutes = []struct {
	pid    uint16
	family psi.Family
}{
	{psi.PIDPAT, psi.FamilyPAT},
	{psi.PIDCAT, psi.FamilyCAT},
	{psi.PIDNIT, psi.FamilyNIT},
	{psi.PIDSDTBAT, psi.FamilySDT},
	{psi.PIDSDTBAT, psi.FamilyBAT},
	{psi.PIDEIT, psi.FamilyEIT},
	{psi.PIDMIP, psi.FamilyMIP},
}

// bind adds a binding, creating the route on first use.
func (s *Session) bind(pid uint16, b binding) {
	rt, ok := s.routes[pid]
	if !ok {
		rt = &route{pid: pid, r: mpegts.NewReassembler(pid, b.family.LengthFunc())}
		s.routes[pid] = rt
	}
	for _, have := range rt.bindings {
		if have == b {
			return
		}
	}
	// MIP sections are framed differently from every other family.
	if len(rt.bindings) > 0 && (b.family == psi.FamilyMIP) != (rt.bindings[0].family == psi.FamilyMIP) {
		s.log.Warn("ignoring route sharing a PID with MIP", "pid", pid, "family", b.family)
		return
	}
	known := false
	for _, have := range rt.bindings {
		known = known || have.family == b.family
	}
	rt.bindings = append(rt.bindings, b)
	if !known && b.origin != originStatic {
		s.log.Info("route added", "pid", pid, "family", b.family)
	}
}

// unbind removes the bindings drop selects. Families no longer bound to
// a PID forget their instances there; routes left empty are deleted.
func (s *Session) unbind(drop func(pid uint16, b binding) bool) {
	for pid, rt := range s.routes {
		before := rt.families()
		kept := rt.bindings[:0]
		for _, b := range rt.bindings {
			if !drop(pid, b) {
				kept = append(kept, b)
			}
		}
		rt.bindings = kept
		after := make(map[psi.Family]bool)
		for _, f := range rt.families() {
			after[f] = true
		}
		for _, f := range before {
			if !after[f] {
				s.tables.Validator(f).Forget(pid)
				s.log.Info("route removed", "pid", pid, "family", f)
			}
		}
		if len(rt.bindings) == 0 {
			delete(s.routes, pid)
		}
	}
}

// followPAT binds the PMT and network PIDs the PAT section announces and
// drops those an earlier version of the same section announced.
func (s *Session) followPAT(pat *psi.PAT) {
	owner := uint16(pat.SectionNumber)
	want := make(map[uint16]psi.Family, len(pat.Programs))
	for _, prog := range pat.Programs {
		if prog.ProgramNumber == 0 {
			want[prog.PID] = psi.FamilyNIT
		} else {
			want[prog.PID] = psi.FamilyPMT
		}
	}
	s.unbind(func(pid uint16, b binding) bool {
		return b.origin == originPAT && b.owner == owner && want[pid] != b.family
	})
	for _, pid := range sortedPIDs(want) {
		s.bind(pid, binding{family: want[pid], origin: originPAT, owner: owner})
	}
}

// followPMT binds the SCTE-35 and AIT streams the PMT on pmtPID lists.
func (s *Session) followPMT(pmtPID uint16, pmt *psi.PMT) {
	want := make(map[uint16]psi.Family)
	for i := range pmt.Streams {
		es := &pmt.Streams[i]
		switch {
		case es.IsSCTE35():
			want[es.PID] = psi.FamilySCTE35
		case es.IsAIT():
			want[es.PID] = psi.FamilyAIT
		}
	}
	s.unbind(func(pid uint16, b binding) bool {
		return b.origin == originPMT && b.owner == pmtPID && want[pid] != b.family
	})
	for _, pid := range sortedPIDs(want) {
		s.bind(pid, binding{family: want[pid], origin: originPMT, owner: pmtPID})
	}
}

func sortedPIDs(m map[uint16]psi.Family) []uint16 {
	out := make([]uint16, 0, len(m))
	for pid := range m {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
