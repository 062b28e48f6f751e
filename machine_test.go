package x86core

import "testing"

// TestSeedScenario1MovStack pins spec.md §8 seed scenario 1 end to end
// through the Machine façade: MOV AX,8888 / MOV DS,AX / PUSH DS / POP ES.
// The push/pop pair cancels out, so SP returns to the COM loader's
// initial 0xFFFE once all 4 instructions have run.
func TestSeedScenario1MovStack(t *testing.T) {
	m := New()
	prog := []byte{0xB8, 0x88, 0x88, 0x8E, 0xD8, 0x1E, 0x07}
	if err := m.LoadExecutable(prog); err != nil {
		t.Fatalf("LoadExecutable: %v", err)
	}

	for i := 0; i < 4; i++ {
		m.ExecuteInstruction()
	}

	r := m.RegisterSnapshot()
	if r.Reg16(RegAX) != 0x8888 {
		t.Fatalf("AX = %04X, want 8888", r.Reg16(RegAX))
	}
	if r.Seg(SegDS) != 0x8888 {
		t.Fatalf("DS = %04X, want 8888", r.Seg(SegDS))
	}
	if r.Reg16(RegSP) != 0xFFFE {
		t.Fatalf("SP = %04X, want FFFE (PUSH/POP cancel)", r.Reg16(RegSP))
	}
	if r.Seg(SegES) != 0x8888 {
		t.Fatalf("ES = %04X, want 8888 (popped from the pushed DS value)", r.Seg(SegES))
	}
}

func TestExecuteInstructionsStopsOnHalt(t *testing.T) {
	m := New()
	if err := m.LoadExecutable([]byte{0x90, 0x90, 0xF4, 0x90}); err != nil {
		t.Fatalf("LoadExecutable: %v", err)
	}
	m.ExecuteInstructions(100)
	if !m.Exec.Halted {
		t.Fatal("expected Halted after HLT")
	}
	regs := m.RegisterSnapshot()
	if ip := regs.IP(); ip != 0x0103 {
		t.Fatalf("IP after halt = %04X, want 0103 (just past the HLT)", ip)
	}
}

func TestExecuteInstructionStopsOnDecodeInvalid(t *testing.T) {
	m := New()
	if err := m.LoadExecutable([]byte{0x0F, 0xFF}); err != nil { // unassigned two-byte opcode space
		t.Fatalf("LoadExecutable: %v", err)
	}
	m.ExecuteInstructions(10)
	if !m.Exec.FatalError {
		t.Fatal("expected FatalError after decoding an invalid opcode")
	}
}

func TestHardResetPreservesMemoryButResetsRegisters(t *testing.T) {
	m := New()
	prog := []byte{0xB8, 0x34, 0x12}
	if err := m.LoadExecutable(prog); err != nil {
		t.Fatalf("LoadExecutable: %v", err)
	}
	m.ExecuteInstruction()
	regs := m.RegisterSnapshot()
	if regs.Reg16(RegAX) != 0x1234 {
		t.Fatal("AX should be 0x1234 before HardReset")
	}

	before := m.MMU.Read(pspSegment, 0x0100, len(prog))
	m.HardReset()
	after := m.MMU.Read(pspSegment, 0x0100, len(prog))
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("HardReset must not clear memory")
		}
	}
	regs = m.RegisterSnapshot()
	if regs.Reg16(RegAX) != 0 {
		t.Fatal("AX should be reset to 0 after HardReset")
	}
	if m.Exec.FatalError || m.Exec.Halted {
		t.Fatal("HardReset must clear FatalError/Halted")
	}
}

func TestRenderFrameMatchesModeDimensions(t *testing.T) {
	m := New()
	m.GPU.SetMode(0x13)
	frame := m.RenderFrame()
	if len(frame) != 320*200*3 {
		t.Fatalf("frame length = %d, want %d", len(frame), 320*200*3)
	}
}

func TestLoadExecutableRejectsMalformedMZ(t *testing.T) {
	m := New()
	err := m.LoadExecutable([]byte{'M', 'Z', 0, 0})
	if err == nil {
		t.Fatal("expected ExecutableMalformed error for truncated MZ header")
	}
	regs := m.RegisterSnapshot()
	if regs.IP() != 0 {
		t.Fatal("Machine should remain in reset state after a failed load")
	}
}
