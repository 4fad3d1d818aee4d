package psi

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Status is the outcome of validating one section.
type Status int

// Validation outcomes.
const (
	// StatusNew is a decoded section with no previous instance.
	StatusNew Status = iota + 1
	// StatusUpdated is a decoded section that replaced a different
	// version or content.
	StatusUpdated
	// StatusDuplicate is a retransmission; nothing was decoded.
	StatusDuplicate
	// StatusRejected is a section discarded with Result.Err set.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusUpdated:
		return "updated"
	case StatusDuplicate:
		return "duplicate"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrWrongTableID is returned for a section whose table_id does not
// belong to the validating family.
var ErrWrongTableID = errors.New("psi: table_id does not belong to family")

// CRCError reports a section whose trailing CRC32 does not match.
type CRCError struct {
	Family   Family
	PID      uint16
	TableID  byte
	Computed uint32
	Stored   uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("psi: %s pid 0x%04X table_id 0x%02X: CRC32 mismatch: computed 0x%08X, stored 0x%08X",
		e.Family, e.PID, e.TableID, e.Computed, e.Stored)
}

// DecodeError reports a CRC-valid section the payload decoder rejected.
type DecodeError struct {
	Family  Family
	PID     uint16
	TableID byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("psi: %s pid 0x%04X table_id 0x%02X: %v", e.Family, e.PID, e.TableID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result describes what a Validator did with one section.
type Result struct {
	Family Family
	PID    uint16
	Status Status
	Table  Table
	Err    error

	// ResetPID asks the caller to reset the PID's reassembler.
	ResetPID bool

	// NewUnknownTags lists descriptor tags without a decoder that this
	// section was the first in the session to carry.
	NewUnknownTags []uint8
}

// Accepted reports whether the section produced a decoded table.
func (r Result) Accepted() bool {
	return r.Status == StatusNew || r.Status == StatusUpdated
}

type decodeFunc func(section []byte, h Header, dp *DescriptorParser) (Table, error)

var decoders = map[Family]decodeFunc{
	FamilyPAT:    decodePAT,
	FamilyCAT:    decodeCAT,
	FamilyPMT:    decodePMT,
	FamilyNIT:    decodeNIT,
	FamilySDT:    decodeSDT,
	FamilyBAT:    decodeBAT,
	FamilyEIT:    decodeEIT,
	FamilyAIT:    decodeAIT,
	FamilyMIP:    decodeMIP,
	FamilySCTE35: decodeSCTE35,
}

// instanceKey identifies one table instance. Single-instance families use
// pid, ext and sec; multi-instance families leave pid zero and fill the
// composite fields their identity needs.
type instanceKey struct {
	pid     uint16
	tableID byte
	ext     uint16
	onid    uint16
	sec     uint8
	last    uint8
}

type entry struct {
	version uint8
	crc     uint32
	table   Table
}

// Validator checks, deduplicates and decodes the sections of one table
// family. It is not safe for concurrent use.
type Validator struct {
	family  Family
	decode  decodeFunc
	dp      *DescriptorParser
	log     *slog.Logger
	entries map[instanceKey]*entry
}

// NewValidator creates a Validator for f. A nil dp gets a private parser.
func NewValidator(f Family, dp *DescriptorParser, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	if dp == nil {
		dp = NewDescriptorParser()
	}
	return &Validator{
		family:  f,
		decode:  decoders[f],
		dp:      dp,
		log:     log.With("component", "psi", "family", f.String()),
		entries: make(map[instanceKey]*entry),
	}
}

// Family returns the family this validator handles.
func (v *Validator) Family() Family { return v.family }

// Validate runs one complete section through table_id and CRC checks,
// duplicate and version bookkeeping, and the family's decoder.
func (v *Validator) Validate(pid uint16, section []byte) Result {
	res := Result{Family: v.family, PID: pid}
	if len(section) < 4 {
		res.Status = StatusRejected
		res.Err = &DecodeError{Family: v.family, PID: pid, Err: fmt.Errorf("section too short (%d bytes)", len(section))}
		return res
	}
	tableID := section[0]
	if !v.family.Accepts(tableID) {
		res.Status = StatusRejected
		res.Err = fmt.Errorf("%w: %s pid 0x%04X table_id 0x%02X", ErrWrongTableID, v.family, pid, tableID)
		return res
	}

	stored := mpegts.StoredCRC32(section)
	if computed := mpegts.CRC32(section[:len(section)-4]); computed != stored {
		res.Status = StatusRejected
		res.Err = &CRCError{Family: v.family, PID: pid, TableID: tableID, Computed: computed, Stored: stored}
		res.ResetPID = v.family.SingleInstance()
		return res
	}

	h, err := v.header(section)
	if err != nil {
		res.Status = StatusRejected
		res.Err = &DecodeError{Family: v.family, PID: pid, TableID: tableID, Err: err}
		return res
	}
	// Multi-instance keys are built from the long-form header.
	if !v.family.SingleInstance() && !h.SectionSyntaxIndicator {
		res.Status = StatusRejected
		res.Err = &DecodeError{Family: v.family, PID: pid, TableID: tableID,
			Err: errors.New("section_syntax_indicator not set")}
		return res
	}

	key := v.key(pid, h, section)
	prev := v.entries[key]
	switch {
	case prev == nil:
	case v.family.SingleInstance() && prev.crc == h.CRC32:
		res.Status = StatusDuplicate
		return res
	case !v.family.SingleInstance() && prev.version == h.Version:
		res.Status = StatusDuplicate
		return res
	}

	table, err := v.safeDecode(section, h)
	res.NewUnknownTags = v.dp.takeFresh()
	if err != nil {
		res.Status = StatusRejected
		res.Err = &DecodeError{Family: v.family, PID: pid, TableID: tableID, Err: err}
		return res
	}

	v.entries[key] = &entry{version: h.Version, crc: h.CRC32, table: table}
	res.Table = table
	if prev == nil {
		res.Status = StatusNew
		v.log.Debug("table received", "pid", pid, "table_id", tableID, "version", h.Version)
		return res
	}
	res.Status = StatusUpdated
	if prev.version != h.Version {
		v.log.Info("table version changed", "pid", pid, "table_id", tableID,
			"old_version", prev.version, "version", h.Version)
	}
	return res
}

func (v *Validator) header(section []byte) (Header, error) {
	if v.family == FamilyMIP {
		return parseMIPHeader(section)
	}
	return ParseHeader(section)
}

func (v *Validator) key(pid uint16, h Header, section []byte) instanceKey {
	switch v.family {
	case FamilyNIT, FamilyEIT:
		return instanceKey{tableID: h.TableID, ext: h.TableIDExtension, sec: h.SectionNumber, last: h.LastSectionNumber}
	case FamilySDT:
		return instanceKey{tableID: h.TableID, ext: h.TableIDExtension, onid: mpegts.Uint16(section[8:]),
			sec: h.SectionNumber, last: h.LastSectionNumber}
	case FamilyBAT:
		return instanceKey{ext: h.TableIDExtension, sec: h.SectionNumber, last: h.LastSectionNumber}
	}
	k := instanceKey{pid: pid}
	if h.SectionSyntaxIndicator {
		k.ext = h.TableIDExtension
		k.sec = h.SectionNumber
	}
	return k
}

// safeDecode runs the family decoder, turning a panic into an error.
func (v *Validator) safeDecode(section []byte, h Header) (t Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	if v.decode == nil {
		return nil, fmt.Errorf("no decoder for %s", v.family)
	}
	return v.decode(section, h, v.dp)
}

// Len returns the number of instances held.
func (v *Validator) Len() int { return len(v.entries) }

// Live returns the decoded tables currently held, ordered by PID, table
// id, extension and section number.
func (v *Validator) Live() []Table {
	keys := make([]instanceKey, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.pid != b.pid:
			return a.pid < b.pid
		case a.tableID != b.tableID:
			return a.tableID < b.tableID
		case a.ext != b.ext:
			return a.ext < b.ext
		case a.onid != b.onid:
			return a.onid < b.onid
		default:
			return a.sec < b.sec
		}
	})
	out := make([]Table, len(keys))
	for i, k := range keys {
		out[i] = v.entries[k].table
	}
	return out
}

// Forget drops every single-instance entry recorded for pid so the next
// section on it is decoded afresh.
func (v *Validator) Forget(pid uint16) {
	if !v.family.SingleInstance() {
		return
	}
	for k := range v.entries {
		if k.pid == pid {
			delete(v.entries, k)
		}
	}
}

// Tables owns the validators of one demux session and the session's
// descriptor parser.
type Tables struct {
	log        *slog.Logger
	dp         *DescriptorParser
	validators map[Family]*Validator
}

// NewTables creates a validator for every family.
func NewTables(log *slog.Logger) *Tables {
	if log == nil {
		log = slog.Default()
	}
	t := &Tables{
		log:        log,
		dp:         NewDescriptorParser(),
		validators: make(map[Family]*Validator, len(Families)),
	}
	for _, f := range Families {
		t.validators[f] = NewValidator(f, t.dp, log)
	}
	return t
}

// Validator returns the validator for f.
func (t *Tables) Validator(f Family) *Validator { return t.validators[f] }

// Validate runs section through the validator for f.
func (t *Tables) Validate(f Family, pid uint16, section []byte) Result {
	v, ok := t.validators[f]
	if !ok {
		return Result{Family: f, PID: pid, Status: StatusRejected, Err: fmt.Errorf("psi: unknown family %d", int(f))}
	}
	return v.Validate(pid, section)
}

// Lookup returns the families tableID can belong to.
func (t *Tables) Lookup(tableID byte) []Family { return Lookup(tableID) }

// UnknownDescriptorTags returns the unknown descriptor tags seen in the
// session.
func (t *Tables) UnknownDescriptorTags() []uint8 { return t.dp.SeenUnknown() }
