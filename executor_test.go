package x86core

import "testing"

func newTestExecutor() (*Executor, *RegisterFile, *MMU) {
	regs := NewRegisterFile()
	mmu := NewMMU()
	regs.SetSeg(SegSS, 0x2000)
	regs.SetReg16(RegSP, 0x0100)
	e := NewExecutor(regs, mmu, nullPortBus{}, nil, NullLog{})
	return e, regs, mmu
}

type nullPortBus struct{}

func (nullPortBus) In8(uint16) byte            { return 0 }
func (nullPortBus) In16(uint16) uint16         { return 0 }
func (nullPortBus) Out8(uint16, byte)          {}
func (nullPortBus) Out16(uint16, uint16)       {}

func execOne(e *Executor, mmu *MMU, d *Decoder, seg, off uint16) *Instruction {
	ii := d.Decode(mmu, seg, off)
	e.Regs.SetIP(off + uint16(ii.Length))
	e.Execute(ii)
	return ii
}

// TestSeedScenario2AddFlags pins the exact flag pattern from the seed
// scenario: MOV AL,0x7F / ADD AL,1 -> AL=0x80, CF=0,SF=1,ZF=0,OF=1,PF=0,AF=1.
func TestSeedScenario2AddFlags(t *testing.T) {
	e, regs, mmu := newTestExecutor()
	d := NewDecoder()
	prog := []byte{0xB0, 0x7F, 0x04, 0x01}
	loadBytes(mmu, 0, 0, prog)

	execOne(e, mmu, d, 0, 0)
	execOne(e, mmu, d, 0, 2)

	if al := regs.Reg8(0); al != 0x80 {
		t.Fatalf("AL = %02X, want 80", al)
	}
	if regs.CF() {
		t.Error("CF set, want clear")
	}
	if !regs.SF() {
		t.Error("SF clear, want set")
	}
	if regs.ZF() {
		t.Error("ZF set, want clear")
	}
	if !regs.OF() {
		t.Error("OF clear, want set")
	}
	if regs.PF() {
		t.Error("PF set, want clear")
	}
	if !regs.AF() {
		t.Error("AF clear, want set")
	}
}

// TestSeedScenario3Loop pins MOV CX,3 / DEC CX / LOOP -3, stepping until
// CX first reads 0: DEC makes it 2, LOOP makes it 1 and jumps back, and
// the second DEC makes it 0 (the final LOOP is not stepped).
func TestSeedScenario3Loop(t *testing.T) {
	e, regs, mmu := newTestExecutor()
	d := NewDecoder()
	prog := []byte{0xB9, 0x03, 0x00, 0x49, 0xE2, 0xFD}
	loadBytes(mmu, 0, 0x0200, prog)

	execOne(e, mmu, d, 0, 0x0200) // MOV CX,3

	for i := 0; i < 100 && regs.Reg16(RegCX) != 0; i++ {
		ip := regs.IP()
		execOne(e, mmu, d, 0, ip)
	}

	if regs.Reg16(RegCX) != 0 {
		t.Fatalf("CX = %04X after loop, want 0", regs.Reg16(RegCX))
	}
}

func TestPushPopSPRoundTrip(t *testing.T) {
	e, regs, _ := newTestExecutor()
	before := regs.Reg16(RegSP)
	e.push16(0xBEEF)
	if regs.Reg16(RegSP) != before-2 {
		t.Fatalf("SP after push = %04X, want %04X", regs.Reg16(RegSP), before-2)
	}
	v := e.pop16()
	if v != 0xBEEF {
		t.Fatalf("popped %04X, want BEEF", v)
	}
	if regs.Reg16(RegSP) != before {
		t.Fatalf("SP after pop = %04X, want %04X (restored)", regs.Reg16(RegSP), before)
	}
}

// TestAddSubFlagDerivationTable exercises the 8-bit add/subtract helpers
// with a representative set of operand pairs: addWithCarry8's result,
// CF, OF and ZF (with and without carry-in), and subWithBorrow8's result
// and CF.
func TestAddSubFlagDerivationTable(t *testing.T) {
	cases := []struct {
		name    string
		a, b    byte
		carryIn bool
		wantR   byte
		wantCF  bool
		wantOF  bool
		wantZF  bool
	}{
		{"0x7F+1 overflows into sign", 0x7F, 0x01, false, 0x80, false, true, false},
		{"0xFF+1 wraps with carry", 0xFF, 0x01, false, 0x00, true, false, true},
		{"0x00+0 is zero, no flags", 0x00, 0x00, false, 0x00, false, false, true},
		{"carry-in propagates", 0xFF, 0x00, true, 0x00, true, false, true},
	}
	for _, c := range cases {
		e, _, _ := newTestExecutor()
		r := e.addWithCarry8(c.a, c.b, c.carryIn)
		if r != c.wantR {
			t.Errorf("%s: result = %02X, want %02X", c.name, r, c.wantR)
		}
		if e.Regs.CF() != c.wantCF {
			t.Errorf("%s: CF = %v, want %v", c.name, e.Regs.CF(), c.wantCF)
		}
		if e.Regs.OF() != c.wantOF {
			t.Errorf("%s: OF = %v, want %v", c.name, e.Regs.OF(), c.wantOF)
		}
		if e.Regs.ZF() != c.wantZF {
			t.Errorf("%s: ZF = %v, want %v", c.name, e.Regs.ZF(), c.wantZF)
		}
	}

	subCases := []struct {
		name   string
		a, b   byte
		wantR  byte
		wantCF bool
	}{
		{"0-1 borrows", 0x00, 0x01, 0xFF, true},
		{"1-1 is zero, no borrow", 0x01, 0x01, 0x00, false},
		{"0x80-1 no borrow", 0x80, 0x01, 0x7F, false},
	}
	for _, c := range subCases {
		e, _, _ := newTestExecutor()
		r := e.subWithBorrow8(c.a, c.b, false)
		if r != c.wantR {
			t.Errorf("%s: result = %02X, want %02X", c.name, r, c.wantR)
		}
		if e.Regs.CF() != c.wantCF {
			t.Errorf("%s: CF = %v, want %v", c.name, e.Regs.CF(), c.wantCF)
		}
	}
}

func TestLogicOpsClearCFAndOF(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.Regs.SetFlag(FlagCF, true)
	e.Regs.SetFlag(FlagOF, true)
	r := e.logic8(0x0F)
	if r != 0x0F {
		t.Fatalf("logic8 returned %02X, want 0F", r)
	}
	if e.Regs.CF() || e.Regs.OF() {
		t.Fatal("AND/OR/XOR must clear CF and OF")
	}
}

func TestIncDecPreserveCF(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.Regs.SetFlag(FlagCF, true)
	e.incDec8(0xFF, true) // INC wraps 0xFF -> 0x00
	if !e.Regs.CF() {
		t.Fatal("INC must not modify CF")
	}
}

func TestHLEInterruptShortCircuit(t *testing.T) {
	regs := NewRegisterFile()
	mmu := NewMMU()
	regs.SetSeg(SegSS, 0x2000)
	regs.SetReg16(RegSP, 0x0100)
	regs.SetSeg(SegCS, 0x0000)
	regs.SetIP(0x0010)

	called := false
	hle := hleFunc(func(e *Executor, vector byte) {
		called = true
		if vector != 0x10 {
			t.Errorf("vector = %02X, want 10", vector)
		}
	})
	mmu.WriteVec(0x10, 0, HLESegment)

	e := NewExecutor(regs, mmu, nullPortBus{}, hle, NullLog{})
	e.interrupt(0x10)

	if !called {
		t.Fatal("HLE handler was not invoked")
	}
	if regs.IP() != 0x0010 || regs.Seg(SegCS) != 0x0000 {
		t.Fatalf("CS:IP after HLE INT = %04X:%04X, want 0000:0010 (restored)", regs.Seg(SegCS), regs.IP())
	}
}

// TestMovzxMovsxDecodeAndExecute pins the 0x0F B6/BE reachability path:
// both must decode off the 0F escape (dispatch0F) and execute to the
// documented zero-/sign-extension of an 8-bit source into a 16-bit
// destination.
func TestMovzxMovsxDecodeAndExecute(t *testing.T) {
	e, regs, mmu := newTestExecutor()
	d := NewDecoder()

	loadBytes(mmu, 0, 0, []byte{0x0F, 0xB6, 0xC3}) // MOVZX AX, BL
	regs.SetReg8(3, 0x85)
	execOne(e, mmu, d, 0, 0)
	if ax := regs.Reg16(RegAX); ax != 0x0085 {
		t.Fatalf("MOVZX AX,BL(85) = %04X, want 0085", ax)
	}

	loadBytes(mmu, 0, 0x10, []byte{0x0F, 0xBE, 0xC3}) // MOVSX AX, BL
	regs.SetReg8(3, 0x85)
	execOne(e, mmu, d, 0, 0x10)
	if ax := regs.Reg16(RegAX); ax != 0xFF85 {
		t.Fatalf("MOVSX AX,BL(85) = %04X, want FF85", ax)
	}
}

// TestCmpswRepeatAdvancesSIAndDIByWordWidth guards against SI drifting
// from DI on a word-width string compare: both pointers must step by
// 2 per iteration, not 1.
func TestCmpswRepeatAdvancesSIAndDIByWordWidth(t *testing.T) {
	e, regs, mmu := newTestExecutor()
	regs.SetSeg(SegDS, 0x1000)
	regs.SetSeg(SegES, 0x2000)
	regs.SetReg16(RegSI, 0x0000)
	regs.SetReg16(RegDI, 0x0000)
	regs.SetReg16(RegCX, 2)
	mmu.WriteU16(0x1000, 0, 0x1111)
	mmu.WriteU16(0x1000, 2, 0x2222)
	mmu.WriteU16(0x2000, 0, 0x1111)
	mmu.WriteU16(0x2000, 2, 0x2222)

	ii := &Instruction{Command: OpCmpsw, Repeat: RepeatREPE, SegPrefix: -1}
	e.Execute(ii)

	if regs.Reg16(RegCX) != 0 {
		t.Fatalf("CX = %04X after REP CMPSW over 2 equal words, want 0000", regs.Reg16(RegCX))
	}
	if si := regs.Reg16(RegSI); si != 4 {
		t.Fatalf("SI = %04X after REP CMPSW (2 words), want 0004", si)
	}
	if di := regs.Reg16(RegDI); di != 4 {
		t.Fatalf("DI = %04X after REP CMPSW (2 words), want 0004", di)
	}
}

type hleFunc func(e *Executor, vector byte)

func (f hleFunc) HandleInterrupt(e *Executor, vector byte) { f(e, vector) }
