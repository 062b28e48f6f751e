package x86core

import "testing"

// roundTrip encodes ii at seg:off, decodes the result back, and returns
// the re-decoded instruction for the caller to assert semantics on.
// This exercises spec.md §8 P2: decode(encode(i)).semantics == i.semantics.
func roundTrip(t *testing.T, ii *Instruction, seg, off uint16) *Instruction {
	t.Helper()
	enc := NewEncoder()
	bytes, err := enc.Encode(ii, seg, off)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	mmu := NewMMU()
	loadBytes(mmu, seg, off, bytes)
	d := NewDecoder()
	return d.Decode(mmu, seg, off)
}

func TestEncodeDecodeMovRegImm(t *testing.T) {
	ii := &Instruction{Command: OpMov16, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamReg16, RegIndex: int(RegAX)},
		Src: Parameter{Kind: ParamImm16, ImmValue: 0x1234},
	}}
	got := roundTrip(t, ii, 0, 0x100)
	if got.Command != OpMov16 {
		t.Fatalf("Command = %v, want OpMov16", got.Command)
	}
	if got.Params.Dst.RegIndex != int(RegAX) || got.Params.Src.ImmValue != 0x1234 {
		t.Fatalf("params = %+v, want AX,0x1234", got.Params)
	}
}

func TestEncodeDecodeAddRegImmAccumulatorForm(t *testing.T) {
	ii := &Instruction{Command: OpAdd8, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamReg8, RegIndex: 0},
		Src: Parameter{Kind: ParamImm8, ImmValue: 0x01},
	}}
	got := roundTrip(t, ii, 0, 0)
	if got.Command != OpAdd8 || got.Params.Src.ImmValue != 0x01 {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeDecodePushPopReg(t *testing.T) {
	push := &Instruction{Command: OpPush16, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamReg16, RegIndex: int(RegBX)},
	}}
	got := roundTrip(t, push, 0, 0)
	if got.Command != OpPush16 || got.Params.Dst.RegIndex != int(RegBX) {
		t.Fatalf("got %+v", got)
	}

	pop := &Instruction{Command: OpPop16, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamReg16, RegIndex: int(RegCX)},
	}}
	got = roundTrip(t, pop, 0, 0)
	if got.Command != OpPop16 || got.Params.Dst.RegIndex != int(RegCX) {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeDecodeJmpShortRelative(t *testing.T) {
	// Target 5 bytes past the start of a 2-byte JMP short at offset 0x10.
	ii := &Instruction{Command: OpJmpShort, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamImm16, ImmValue: 0x17},
	}}
	got := roundTrip(t, ii, 0, 0x10)
	if got.Command != OpJmpShort {
		t.Fatalf("Command = %v, want OpJmpShort", got.Command)
	}
	if got.Params.Dst.ImmValue != 0x17 {
		t.Fatalf("resolved target = %04X, want 0017", got.Params.Dst.ImmValue)
	}
}

func TestEncodeDecodeShiftGroup(t *testing.T) {
	ii := &Instruction{Command: OpShl8, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamReg8, RegIndex: 0},
		Src: Parameter{Kind: ParamImm8, ImmValue: 1},
	}}
	got := roundTrip(t, ii, 0, 0)
	if got.Command != OpShl8 {
		t.Fatalf("Command = %v, want OpShl8", got.Command)
	}
}

// TestEncodeDecodeJmpFarDirect and TestEncodeDecodeCallFarDirect pin
// P2 for the direct far forms (0xEA/0x9A) the Decoder produces for
// ParamPtr16Imm operands, as opposed to the indirect FF /5 and FF /3
// forms that take a memory/register operand.
func TestEncodeDecodeJmpFarDirect(t *testing.T) {
	ii := &Instruction{Command: OpJmpFar, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamPtr16Imm, ImmValue: 0x0010, FarSeg: 0x1234},
	}}
	got := roundTrip(t, ii, 0, 0)
	if got.Command != OpJmpFar {
		t.Fatalf("Command = %v, want OpJmpFar", got.Command)
	}
	if got.Params.Dst.Kind != ParamPtr16Imm || got.Params.Dst.ImmValue != 0x0010 || got.Params.Dst.FarSeg != 0x1234 {
		t.Fatalf("params = %+v, want ptr16imm 1234:0010", got.Params.Dst)
	}
}

func TestEncodeDecodeCallFarDirect(t *testing.T) {
	ii := &Instruction{Command: OpCallFar, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamPtr16Imm, ImmValue: 0x0010, FarSeg: 0x1234},
	}}
	got := roundTrip(t, ii, 0, 0)
	if got.Command != OpCallFar {
		t.Fatalf("Command = %v, want OpCallFar", got.Command)
	}
	if got.Params.Dst.Kind != ParamPtr16Imm || got.Params.Dst.ImmValue != 0x0010 || got.Params.Dst.FarSeg != 0x1234 {
		t.Fatalf("params = %+v, want ptr16imm 1234:0010", got.Params.Dst)
	}
}

func TestEncodeNoEncodingError(t *testing.T) {
	ii := &Instruction{Command: OpInvalid, SegPrefix: -1}
	enc := NewEncoder()
	if _, err := enc.Encode(ii, 0, 0); err == nil {
		t.Fatal("expected error encoding OpInvalid, got nil")
	}
}

// A short JMP at offset 0 ends at 0002, so target 0100 needs a
// displacement of +254, beyond rel8's +127. (A target like FFFF is in
// range: with 16-bit IP wrap it is a displacement of -3.)
func TestEncodeRel8OutOfRange(t *testing.T) {
	ii := &Instruction{Command: OpJmpShort, SegPrefix: -1, Params: Params{
		Dst: Parameter{Kind: ParamImm16, ImmValue: 0x0100},
	}}
	enc := NewEncoder()
	if _, err := enc.Encode(ii, 0, 0); err == nil {
		t.Fatal("expected out-of-range rel8 error, got nil")
	}
}
