package x86core

import "testing"

// TestFlagsReservedBitsRoundTrip pins P5: PUSHF/POPF round-trips the
// writable bits while reserved bits always read back fixed, regardless
// of what SetFlags was given.
func TestFlagsReservedBitsRoundTrip(t *testing.T) {
	r := NewRegisterFile()
	r.SetFlags(0xFFFF)
	got := r.Flags()
	want := uint16(flagsWritableMask | flagsReservedOnes)
	if got != want {
		t.Fatalf("Flags() after SetFlags(0xFFFF) = %04X, want %04X", got, want)
	}

	r.SetFlags(0x0000)
	if got := r.Flags(); got != flagsReservedOnes {
		t.Fatalf("Flags() after SetFlags(0) = %04X, want %04X", got, flagsReservedOnes)
	}

	// Round trip: push then pop an arbitrary writable pattern.
	pattern := uint16(FlagCF | FlagZF | FlagOF)
	r.SetFlags(pattern)
	pushed := r.Flags()
	r.SetFlags(0)
	r.SetFlags(pushed)
	if r.Flags() != pushed {
		t.Fatalf("FLAGS did not round-trip through push/pop: got %04X, want %04X", r.Flags(), pushed)
	}
}

func TestIndividualFlagAccessors(t *testing.T) {
	r := NewRegisterFile()
	r.SetFlag(FlagCF, true)
	r.SetFlag(FlagZF, true)
	if !r.CF() || !r.ZF() {
		t.Fatal("expected CF and ZF set")
	}
	if r.SF() || r.OF() || r.AF() || r.PF() || r.DF() || r.IF() || r.TF() {
		t.Fatal("unexpected flag set")
	}
	r.SetFlag(FlagCF, false)
	if r.CF() {
		t.Fatal("expected CF cleared")
	}
}

// TestByteHalfAliasing pins the AH/AL/BH/BL/... aliasing scheme against
// the full 16-bit register.
func TestByteHalfAliasing(t *testing.T) {
	r := NewRegisterFile()
	r.SetReg16(RegAX, 0x1234)
	if r.Reg8(0) != 0x34 { // AL
		t.Fatalf("AL = %02X, want 34", r.Reg8(0))
	}
	if r.Reg8(4) != 0x12 { // AH
		t.Fatalf("AH = %02X, want 12", r.Reg8(4))
	}

	r.SetReg8(0, 0xFF) // AL
	if r.Reg16(RegAX) != 0x12FF {
		t.Fatalf("AX after SetReg8(AL) = %04X, want 12FF", r.Reg16(RegAX))
	}

	r.SetReg8(4, 0xAB) // AH
	if r.Reg16(RegAX) != 0xABFF {
		t.Fatalf("AX after SetReg8(AH) = %04X, want ABFF", r.Reg16(RegAX))
	}
}

func TestSegmentAndIPAccessors(t *testing.T) {
	r := NewRegisterFile()
	r.SetSeg(SegCS, 0x8888)
	r.SetIP(0x0100)
	if r.Seg(SegCS) != 0x8888 || r.IP() != 0x0100 {
		t.Fatalf("Seg(CS)/IP round trip failed: got %04X/%04X", r.Seg(SegCS), r.IP())
	}
}

func TestParity(t *testing.T) {
	cases := []struct {
		v    byte
		even bool
	}{
		{0x00, true},
		{0x01, false},
		{0x03, true},
		{0xFF, true},
		{0x80, false},
	}
	for _, c := range cases {
		if got := parity(c.v); got != c.even {
			t.Errorf("parity(%02X) = %v, want %v", c.v, got, c.even)
		}
	}
}
