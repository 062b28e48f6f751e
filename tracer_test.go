package x86core

import (
	"strings"
	"testing"
)

// TestSeedScenario5TracerReachability pins spec.md §8 seed scenario 5:
// MOV AX,1; JMP +2; HLT; HLT; NOP reaches {entry, entry+3, entry+7} and
// never visits entry+5..entry+7 (the two HLTs the JMP skips over).
func TestSeedScenario5TracerReachability(t *testing.T) {
	mmu := NewMMU()
	prog := []byte{0xB8, 0x01, 0x00, 0xEB, 0x02, 0xF4, 0xF4, 0x90}
	loadBytes(mmu, 0, 0, prog)

	dec := NewDecoder()
	tr := NewTracer()
	tr.Trace(dec, mmu, 0, 0, 0, uint32(len(prog)))

	got := tr.VisitedAddresses()
	want := []uint32{0, 3, 7}
	if len(got) != len(want) {
		t.Fatalf("visited = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visited = %v, want %v", got, want)
		}
	}

	for _, skipped := range []uint32{5, 6} {
		for _, v := range got {
			if v == skipped {
				t.Fatalf("address %d should be unreached (inside the skipped HLTs), but was visited", skipped)
			}
		}
	}
}

func TestTracerXrefHeaderOnlyForSourcedDestinations(t *testing.T) {
	mmu := NewMMU()
	// JMP +0 to offset 2 (the entry itself has no source recorded); the
	// JMP's target carries an xref back to the JMP's own address.
	prog := []byte{0xEB, 0x00, 0x90}
	loadBytes(mmu, 0, 0, prog)

	dec := NewDecoder()
	tr := NewTracer()
	tr.Trace(dec, mmu, 0, 0, 0, uint32(len(prog)))

	out := tr.PresentTrace(dec, mmu)
	if !strings.Contains(out, "xref: 0000:0000") {
		t.Fatalf("expected xref header crediting the JMP at 0000:0000, got:\n%s", out)
	}
	if strings.Count(out, "xref:") != 1 {
		t.Fatalf("expected exactly one xref header, got:\n%s", out)
	}
}

// TestTracerFollowsDirectFarJmp pins spec.md §4.4's "unconditional JMP
// with immediate target: record the target" rule for a direct far
// transfer (ParamPtr16Imm, opcode 0xEA/0x9A), not just the near/short
// ParamImm16 forms.
func TestTracerFollowsDirectFarJmp(t *testing.T) {
	mmu := NewMMU()
	prog := []byte{0xEA, 0x10, 0x00, 0x34, 0x12} // JMP FAR 1234:0010
	loadBytes(mmu, 0, 0, prog)

	dec := NewDecoder()
	tr := NewTracer()
	tr.Trace(dec, mmu, 0, 0, 0, uint32(len(prog)))

	wantTarget := ToFlat(0x1234, 0x0010)
	found := false
	for _, v := range tr.VisitedAddresses() {
		if v == wantTarget {
			found = true
		}
	}
	if !found {
		t.Fatalf("far jmp target %05X never visited; got %v", wantTarget, tr.VisitedAddresses())
	}
}

// TestTracerFollowsDirectFarCall mirrors the above for a direct far
// CALL (opcode 0x9A), which the same ParamPtr16Imm branch must cover.
func TestTracerFollowsDirectFarCall(t *testing.T) {
	mmu := NewMMU()
	prog := []byte{0x9A, 0x10, 0x00, 0x34, 0x12} // CALL FAR 1234:0010
	loadBytes(mmu, 0, 0, prog)

	dec := NewDecoder()
	tr := NewTracer()
	tr.Trace(dec, mmu, 0, 0, 0, uint32(len(prog)))

	wantTarget := ToFlat(0x1234, 0x0010)
	found := false
	for _, v := range tr.VisitedAddresses() {
		if v == wantTarget {
			found = true
		}
	}
	if !found {
		t.Fatalf("far call target %05X never visited; got %v", wantTarget, tr.VisitedAddresses())
	}
}

// TestTracerDeduplicatesDestinationsByFlatAddress exercises spec.md
// §4.4's dedup-by-flat-address rule: two conditional jumps (JZ at 0,
// JNZ at 2) both targeting flat address 4 must accumulate into a
// single destination with two recorded sources, not two destinations.
func TestTracerDeduplicatesDestinationsByFlatAddress(t *testing.T) {
	mmu := NewMMU()
	prog := []byte{0x74, 0x02, 0x75, 0x00, 0x90} // JZ +2 (->4); JNZ +0 (->4); NOP
	loadBytes(mmu, 0, 0, prog)

	dec := NewDecoder()
	tr := NewTracer()
	tr.Trace(dec, mmu, 0, 0, 0, uint32(len(prog)))

	destCount := 0
	for _, d := range tr.dests {
		if d.flat == 4 {
			destCount++
		}
	}
	if destCount != 1 {
		t.Fatalf("destination at flat 4 recorded %d times, want exactly 1", destCount)
	}

	srcs := tr.sourcesFor(4)
	if len(srcs) != 2 || srcs[0] != 0 || srcs[1] != 2 {
		t.Fatalf("sources for flat 4 = %v, want [0 2]", srcs)
	}
}
