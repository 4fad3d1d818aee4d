package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zsiec/tsprobe/internal/demux"
	"github.com/zsiec/tsprobe/internal/pipeline"
	"github.com/zsiec/tsprobe/internal/psi"
	"github.com/zsiec/tsprobe/internal/scte35"
)

// printer writes one line per pipeline event.
type printer struct {
	w     io.Writer
	rates bool
}

func (pr printer) event(ev pipeline.Event) {
	switch {
	case ev.Table != nil:
		fmt.Fprintf(pr.w, "table %-6s pid 0x%04X v%-2d %-10s %s\n",
			ev.Table.Family, ev.Table.PID, ev.Table.Table.SectionHeader().Version,
			ev.Table.Status, describe(ev.Table.Table))
	case ev.Continuity != nil:
		c := ev.Continuity
		fmt.Fprintf(pr.w, "cc     pid 0x%04X expected %d got %d (errors %d) at packet %d\n",
			c.PID, c.Expected, c.Got, c.Errors, c.Seq)
	case ev.Rate != nil:
		if pr.rates {
			r := ev.Rate
			fmt.Fprintf(pr.w, "rate   pid 0x%04X %.0f bit/s (%d packets)\n", r.PID, r.BitsPerSecond, r.Packets)
		}
	case ev.Anomaly != nil:
		fmt.Fprintf(pr.w, "error  %s at packet %d\n", ev.Anomaly, ev.Anomaly.Seq)
	}
}

// describe returns a one-line summary of a decoded table.
func describe(t psi.Table) string {
	switch t := t.(type) {
	case *psi.PAT:
		progs := make([]string, 0, len(t.Programs))
		for _, p := range t.Programs {
			progs = append(progs, fmt.Sprintf("%d:0x%04X", p.ProgramNumber, p.PID))
		}
		return fmt.Sprintf("tsid %d programs [%s]", t.TransportStreamID, strings.Join(progs, " "))
	case *psi.PMT:
		streams := make([]string, 0, len(t.Streams))
		for _, es := range t.Streams {
			streams = append(streams, fmt.Sprintf("0x%04X %s", es.PID, psi.StreamTypeName(es.StreamType)))
		}
		return fmt.Sprintf("program %d pcr 0x%04X streams [%s]", t.ProgramNumber, t.PCRPID, strings.Join(streams, ", "))
	case *psi.CAT:
		systems := t.CASystems()
		ids := make([]string, 0, len(systems))
		for _, ca := range systems {
			ids = append(ids, fmt.Sprintf("0x%04X@0x%04X", ca.CASystemID, ca.CAPID))
		}
		return fmt.Sprintf("ca [%s]", strings.Join(ids, " "))
	case *psi.NIT:
		name := ""
		for _, d := range t.NetworkDescriptors {
			if nn, ok := d.(*psi.NetworkNameDescriptor); ok {
				name = nn.Name
			}
		}
		return fmt.Sprintf("network %d %q transport streams %d", t.NetworkID, name, len(t.TransportStreams))
	case *psi.BAT:
		return fmt.Sprintf("bouquet %d transport streams %d", t.BouquetID, len(t.TransportStreams))
	case *psi.SDT:
		names := make([]string, 0, len(t.Services))
		for _, s := range t.Services {
			names = append(names, fmt.Sprintf("%d %q", s.ServiceID, serviceName(s)))
		}
		return fmt.Sprintf("tsid %d services [%s]", t.TransportStreamID, strings.Join(names, ", "))
	case *psi.EIT:
		return fmt.Sprintf("service %d table 0x%02X events %d", t.ServiceID, t.TableID, len(t.Events))
	case *psi.AIT:
		return fmt.Sprintf("application type 0x%04X applications %d", t.ApplicationType, len(t.Applications))
	case *psi.MIP:
		return fmt.Sprintf("pointer %d sts %d max delay %d", t.Pointer, t.SynchronizationTimeStamp, t.MaximumDelay)
	case *psi.SpliceInfo:
		ev := scte35.Summarize(t.Section)
		s := fmt.Sprintf("%s: %s", ev.CommandType, ev.Description)
		if ev.HasPTS {
			s += fmt.Sprintf(" pts %d", ev.PTS)
		}
		if ev.Duration > 0 {
			s += fmt.Sprintf(" duration %.1fs", ev.Duration)
		}
		return s
	default:
		return ""
	}
}

func serviceName(s psi.SDTService) string {
	for _, d := range s.Descriptors {
		if sd, ok := d.(*psi.ServiceDescriptor); ok {
			return sd.ServiceName
		}
	}
	return ""
}

// summary writes the end-of-run counters.
func summary(w io.Writer, snap demux.Snapshot, stats pipeline.Stats) {
	fmt.Fprintf(w, "packets %d sections %d duplicates %d\n", snap.Packets, snap.Sections, snap.Duplicates)
	fmt.Fprintf(w, "ingest bytes %d frames %d resyncs %d discarded %d rejected %d dropped %d\n",
		stats.Ingest.BytesReceived, stats.Ingest.Frames, stats.Ingest.Resyncs,
		stats.Ingest.DiscardedBytes, stats.Ingest.Rejected, stats.BufferDropped)
	for _, f := range psi.Families {
		if n := snap.Tables[f]; n > 0 {
			fmt.Fprintf(w, "tables %-6s %d\n", f, n)
		}
	}

	kinds := make([]demux.AnomalyKind, 0, len(snap.Anomalies))
	for k := range snap.Anomalies {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "errors %-18s %d\n", k, snap.Anomalies[k])
	}

	for _, m := range snap.PIDs {
		fmt.Fprintf(w, "pid 0x%04X packets %d cc errors %d tei %d rate %.0f bit/s\n",
			m.PID, m.Packets, m.ContinuityErrors, m.TEIPackets, m.LastRate.BitsPerSecond)
	}
	if len(snap.UnknownDescriptorTags) > 0 {
		tags := make([]string, len(snap.UnknownDescriptorTags))
		for i, tag := range snap.UnknownDescriptorTags {
			tags[i] = fmt.Sprintf("0x%02X", tag)
		}
		fmt.Fprintf(w, "unknown descriptor tags [%s]\n", strings.Join(tags, " "))
	}
}
