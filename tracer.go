// tracer.go - static reachability walk over the decoded control-flow
// graph: a worklist of destinations, each flagged visited once the
// straight-line path starting there has been walked.
//
// Grounded verbatim on original_source/disassembler/src/tracer.rs's
// Tracer struct and trace_unvisited_destination/present_trace methods;
// the worklist-of-flat-addresses shape is kept, translated from Rust's
// Vec<SeenDestination> into Go slices with the same dedup-by-value
// semantics (§4.4, design note "cyclic references in tracer graphs").
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

import (
	"fmt"
	"sort"
	"strings"
)

// destination is one entry in the tracer's worklist: a flat address
// the control-flow walk must eventually decode at, the set of flat
// addresses that referred to it (for the xref header), and whether
// its straight-line path has already been walked.
type destination struct {
	flat    uint32
	seg     uint16
	off     uint16
	sources []uint32
	visited bool
}

// Tracer performs the reachability walk described in spec.md §4.4: a
// worklist of destinations rooted at the entry point, each walked
// straight-line until an unconditional transfer, an already-visited
// address, or the end of the loaded ROM extent.
type Tracer struct {
	dests   []*destination
	visited map[uint32]bool
	order   []uint32 // insertion order of visited addresses, re-sorted at present time
}

// NewTracer returns an empty Tracer ready for Trace.
func NewTracer() *Tracer {
	return &Tracer{visited: make(map[uint32]bool)}
}

func (t *Tracer) findDest(flat uint32) *destination {
	for _, d := range t.dests {
		if d.flat == flat {
			return d
		}
	}
	return nil
}

// learnDestination records a branch target, accumulating sources if
// the target was already known (set-like; duplicates tolerated).
func (t *Tracer) learnDestination(seg, off uint16, source uint32) {
	flat := ToFlat(seg, off)
	if d := t.findDest(flat); d != nil {
		d.sources = append(d.sources, source)
		return
	}
	t.dests = append(t.dests, &destination{flat: flat, seg: seg, off: off, sources: []uint32{source}})
}

func (t *Tracer) hasUnvisitedDestination() bool {
	for _, d := range t.dests {
		if !d.visited {
			return true
		}
	}
	return false
}

func (t *Tracer) unvisitedDestination() *destination {
	for _, d := range t.dests {
		if !d.visited {
			return d
		}
	}
	return nil
}

func (t *Tracer) markVisitedAddress(flat uint32) {
	if !t.visited[flat] {
		t.visited[flat] = true
		t.order = append(t.order, flat)
	}
}

// Trace walks the control-flow graph starting at entrySeg:entryOff,
// decoding with dec against mmu, until every discovered destination's
// straight-line path has been walked. romBase/romLength bound the walk
// to the loaded executable's extent (spec.md §4.4 rule (c)).
func (t *Tracer) Trace(dec *Decoder, mmu *MMU, entrySeg, entryOff uint16, romBase uint32, romLength uint32) {
	t.dests = append(t.dests, &destination{flat: ToFlat(entrySeg, entryOff), seg: entrySeg, off: entryOff})

	for {
		t.traceUnvisitedDestination(dec, mmu, romBase, romLength)
		if !t.hasUnvisitedDestination() {
			break
		}
	}
}

// traceUnvisitedDestination walks one straight-line path starting at
// the first unvisited destination, per spec.md §4.4's branch rules.
func (t *Tracer) traceUnvisitedDestination(dec *Decoder, mmu *MMU, romBase, romLength uint32) {
	start := t.unvisitedDestination()
	if start == nil {
		return
	}
	if t.visited[start.flat] {
		start.visited = true
		return
	}

	seg, off := start.seg, start.off
	for {
		flat := ToFlat(seg, off)
		if t.visited[flat] {
			break
		}
		t.markVisitedAddress(flat)

		ii := dec.Decode(mmu, seg, off)

		switch ii.Command {
		case OpInvalid:
			// decode failure ends this path; nothing more to learn here.
			goto doneWalk
		case OpRetn, OpRetf, OpRetImm16:
			goto doneWalk
		case OpJmpShort, OpJmpNear, OpJmpFar:
			switch ii.Params.Dst.Kind {
			case ParamImm16:
				t.learnDestination(seg, ii.Params.Dst.ImmValue, flat)
			case ParamPtr16Imm:
				t.learnDestination(ii.Params.Dst.FarSeg, ii.Params.Dst.ImmValue, flat)
			}
			goto doneWalk
		case OpCallNear, OpCallFar, OpLoop, OpLoope, OpLoopne, OpJcxz,
			OpJa, OpJc, OpJg, OpJl, OpJna, OpJnc, OpJng, OpJnl, OpJno,
			OpJns, OpJnz, OpJo, OpJpe, OpJpo, OpJs, OpJz:
			switch ii.Params.Dst.Kind {
			case ParamImm16:
				t.learnDestination(seg, ii.Params.Dst.ImmValue, flat)
			case ParamPtr16Imm:
				t.learnDestination(ii.Params.Dst.FarSeg, ii.Params.Dst.ImmValue, flat)
			}
		}

		off += uint16(ii.Length)
		if int64(ToFlat(seg, off))-int64(romBase) >= int64(romLength) {
			break
		}
	}
doneWalk:
	start.visited = true
}

// VisitedAddresses returns the deduplicated set of visited flat
// addresses, sorted ascending — the set P6 describes as a superset of
// every reachable instruction's bytes.
func (t *Tracer) VisitedAddresses() []uint32 {
	out := make([]uint32, 0, len(t.order))
	out = append(out, t.order...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sourcesFor returns the recorded sources for a destination address,
// or nil if none were recorded (print code omits the xref header then).
func (t *Tracer) sourcesFor(flat uint32) []uint32 {
	if d := t.findDest(flat); d != nil && len(d.sources) > 0 {
		out := append([]uint32(nil), d.sources...)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	return nil
}

// PresentTrace renders the traced disassembly: addresses sorted by
// flat value, a blank separator whenever the previous instruction's
// end doesn't meet the next one's start, and an "; xref:" header for
// every destination with at least one recorded source.
func (t *Tracer) PresentTrace(dec *Decoder, mmu *MMU) string {
	var b strings.Builder
	addrs := t.VisitedAddresses()

	var prevEnd uint32
	for _, flat := range addrs {
		seg := uint16(flat >> 4)
		off := uint16(flat - uint32(seg)<<4)
		ii := dec.Decode(mmu, seg, off)

		if prevEnd != 0 && prevEnd != flat {
			b.WriteString("\n")
		}

		if srcs := t.sourcesFor(flat); srcs != nil {
			parts := make([]string, len(srcs))
			for i, s := range srcs {
				ss, so := uint16(s>>4), uint16(s-uint32(uint16(s>>4))<<4)
				parts[i] = fmt.Sprintf("%04X:%04X", ss, so)
			}
			fmt.Fprintf(&b, "; xref: %s\n", strings.Join(parts, ", "))
		}

		fmt.Fprintf(&b, "%04X:%04X %s\n", seg, off, formatInstruction(ii))
		prevEnd = ToFlat(seg, off+uint16(ii.Length))
	}
	return b.String()
}

// formatInstruction renders a disassembly line close enough to the
// teacher's debug_disasm_x86.go style (mnemonic + operands) for the
// tracer's text output; it is not required to round-trip via Encoder.
func formatInstruction(ii *Instruction) string {
	if ii.Command == OpInvalid {
		return ii.String()
	}
	name := opNames[ii.Command]
	var ops []string
	if ii.Params.Dst.Kind != ParamNone {
		ops = append(ops, ii.Params.Dst.String())
	}
	if ii.Params.Src.Kind != ParamNone {
		ops = append(ops, ii.Params.Src.String())
	}
	if ii.Params.Src2.Kind != ParamNone {
		ops = append(ops, ii.Params.Src2.String())
	}
	if len(ops) == 0 {
		return name
	}
	return name + " " + strings.Join(ops, ", ")
}
