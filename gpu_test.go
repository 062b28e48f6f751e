package x86core

import "testing"

// TestSeedScenario4ModeSet13h pins spec.md §8 seed scenario 4: setting
// mode 13h yields a 320x200 VGA mode and the shipped default palette.
func TestSeedScenario4ModeSet13h(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0x13)

	if g.Mode.SWidth != 320 || g.Mode.SHeight != 200 {
		t.Fatalf("mode dims = %dx%d, want 320x200", g.Mode.SWidth, g.Mode.SHeight)
	}
	if g.Mode.Kind != GFXVGA {
		t.Fatalf("mode kind = %v, want GFXVGA", g.Mode.Kind)
	}
	if g.Dac.Pal != defaultPalette() {
		t.Fatal("DAC palette does not match the shipped default VGA palette after SetMode")
	}
}

// TestSetModeLoadsPalettePerKind strengthens seed scenario 4: mode 04h
// (CGA4) must load a DAC distinguishable from mode 13h (VGA)'s default
// palette at the entries CGA pixel values map through, not leave
// whatever the previous mode's DAC happened to contain.
func TestSetModeLoadsPalettePerKind(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)

	g.SetMode(0x13)
	if g.Dac.Pal != defaultPalette() {
		t.Fatal("mode 13h (VGA) DAC does not match the shipped default palette")
	}

	g.SetMode(0x04)
	if g.Dac.Pal == defaultPalette() {
		t.Fatal("mode 04h (CGA4) DAC is identical to the VGA default; palette was not loaded per mode kind")
	}
	for i, idx := range cgaSubPalette {
		if g.Dac.Pal[idx] != cgaHighIntensity[i] {
			t.Fatalf("mode 04h DAC entry %d = %+v, want CGA palette-1 color %+v", idx, g.Dac.Pal[idx], cgaHighIntensity[i])
		}
	}

	// switching back to VGA must restore the VGA default, not leave the
	// CGA overrides behind.
	g.SetMode(0x13)
	if g.Dac.Pal != defaultPalette() {
		t.Fatal("DAC did not reset to the VGA default palette after switching back from CGA4")
	}
}

func TestSetModeUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown video mode number")
		}
	}()
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0xFF)
}

func TestSetModeClearsVideoMemory(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0x13)
	mmu.WriteU8(0xA000, 0, 0x42)
	g.SetMode(0x13)
	if v := mmu.ReadU8(0xA000, 0); v != 0 {
		t.Fatalf("video memory byte 0 = %02X after SetMode, want 00 (cleared)", v)
	}
}

func TestRenderMode13LinearFramebuffer(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0x13)

	mmu.WriteU8(0xA000, 0, 1) // index 1 in the EGA block of the default palette
	frame := g.RenderFrame()

	want := defaultPalette()[1]
	if frame[0] != want.R || frame[1] != want.G || frame[2] != want.B {
		t.Fatalf("pixel(0,0) = %d,%d,%d, want %d,%d,%d", frame[0], frame[1], frame[2], want.R, want.G, want.B)
	}
	if len(frame) != 320*200*3 {
		t.Fatalf("frame length = %d, want %d", len(frame), 320*200*3)
	}
}

func TestRenderMode04InterleavedBanks(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0x04)

	// pixel (0,1) is on the odd scanline bank (0xB800:0x2000), byte 0,
	// top 2 bits (shift 6): set index 2 there.
	mmu.WriteU8(0xB800, 0x2000, 0x02<<6)
	frame := g.RenderFrame()

	want := cgaHighIntensity[2]
	i := (1*320 + 0) * 3
	if frame[i] != want.R || frame[i+1] != want.G || frame[i+2] != want.B {
		t.Fatalf("pixel(0,1) = %d,%d,%d, want %d,%d,%d", frame[i], frame[i+1], frame[i+2], want.R, want.G, want.B)
	}
}

// TestDACBlockRoundTrip checks the 6-bit extremes (0 and 63) round-trip
// through SetDACBlock/ReadDACBlock's 6<->8 bit rescale.
func TestDACBlockRoundTrip(t *testing.T) {
	d := NewDAC()
	d.SetDACBlock(10, []byte{63, 0, 0, 0, 63, 0})
	got := d.ReadDACBlock(10, 2)
	want := []byte{63, 0, 0, 0, 63, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %v, want %v", i, got, want)
		}
	}
}

func TestTeletypeOutputAdvancesCursorAndWraps(t *testing.T) {
	mmu := NewMMU()
	g := NewGPU(mmu)
	g.SetMode(0x03)

	bda := &BIOSDataArea{MMU: mmu}
	for i := 0; i < g.Mode.TextCols; i++ {
		g.TeletypeOutput('A', 0x07)
	}
	col, row := bda.CursorPos(0)
	if col != 0 || row != 1 {
		t.Fatalf("cursor after filling a row = (%d,%d), want (0,1)", col, row)
	}
}
