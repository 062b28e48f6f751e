// gpu.go - video mode table, DAC palette, CRTC register file, and the
// mode 04h/13h frame composition spec.md §4.7 describes.
//
// Mode set, DAC block read/write, write_pixel's CGA/VGA dispatch, and
// the frame composition pixel-address formulas are grounded on
// original_source/src/gpu/render.rs's set_mode/render_mode04_frame/
// render_mode13_frame/write_pixel/read_dac_block/set_dac_block. The
// "mode not found" panic follows the teacher's video_vga.go setMode
// convention for an unrecognized mode number.
//
// The VGA palette and BIOS font bitmaps are not part of the retrieved
// original_source pack (no palette/font data tables survived the
// filter); the 256-entry DAC default below and the font glyph bitmaps
// (built by internal/videofont) are this implementation's own
// deterministic construction, not a byte-for-byte hardware dump.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

import (
	"fmt"

	"github.com/zaynotley/x86core/internal/videofont"
)

// GFXKind classifies a video mode block's pixel-storage convention.
type GFXKind int

const (
	GFXText GFXKind = iota
	GFXCGA2
	GFXCGA4
	GFXEGA
	GFXVGA
)

// VideoModeBlock is the static description of one BIOS video mode:
// dimensions, storage kind, page size/count, and the segment the
// framebuffer starts at.
type VideoModeBlock struct {
	Number       byte
	Kind         GFXKind
	SWidth       int // pixel width (graphics modes) or ignored for text
	SHeight      int
	TextCols     int
	TextRows     int
	PageSize     int
	StartSegment uint16
	FontHeight   int // 8, 14, or 16
}

// modeTable is the set of mode blocks this card supports, grounded on
// the standard BIOS mode numbers spec.md names: text 0x00, 0x02 and
// 0x03 (there is no 0x01 block), CGA 4-color graphics 0x04, and VGA
// 256-color graphics 0x13.
var modeTable = []VideoModeBlock{
	{Number: 0x00, Kind: GFXText, TextCols: 40, TextRows: 25, PageSize: 0x0800, StartSegment: 0xB800, FontHeight: 8},
	{Number: 0x02, Kind: GFXText, TextCols: 80, TextRows: 25, PageSize: 0x1000, StartSegment: 0xB800, FontHeight: 8},
	{Number: 0x03, Kind: GFXText, TextCols: 80, TextRows: 25, PageSize: 0x1000, StartSegment: 0xB800, FontHeight: 16},
	{Number: 0x04, Kind: GFXCGA4, SWidth: 320, SHeight: 200, PageSize: 0x4000, StartSegment: 0xB800, FontHeight: 8},
	{Number: 0x13, Kind: GFXVGA, SWidth: 320, SHeight: 200, PageSize: 0xFA00, StartSegment: 0xA000, FontHeight: 8},
}

func findMode(number byte) *VideoModeBlock {
	for i := range modeTable {
		if modeTable[i].Number == number {
			return &modeTable[i]
		}
	}
	return nil
}

// RGBColor is one DAC entry scaled to 0-255 components for direct
// RGB frame output, even though the real hardware stores 6-bit (0-63)
// components internally.
type RGBColor struct{ R, G, B byte }

// DAC is the palette RAM: 256 RGB entries plus the sequential
// read/write index the real VGA's port 0x3C7/0x3C8/0x3C9 protocol
// uses (read_dac_block/set_dac_block in the original).
type DAC struct {
	Pal      [256]RGBColor
	ReadIdx  byte
	WriteIdx byte
}

// cgaSubPalette is the 2-bit-index-to-DAC-entry map mode 04h uses,
// grounded on render.rs's pal1_map (palette 1, high intensity).
var cgaSubPalette = [4]byte{0, 3, 5, 7}

// cgaHighIntensity is CGA palette 1 (high intensity): black, cyan,
// magenta, white, grounded on render.rs's pal1_map. SetMode loads
// these into the DAC entries cgaSubPalette indexes so a CGA mode's
// four visible colors differ from whatever a VGA/EGA mode left there.
var cgaHighIntensity = [4]RGBColor{
	{0, 0, 0},
	{85, 255, 255},
	{255, 85, 255},
	{255, 255, 255},
}

// paletteForKind returns the DAC contents SetMode loads for a given
// mode kind, grounded on render.rs's set_mode dispatch ("match
// self.mode.kind { TEXT => ..., CGA4 => ..., VGA => ... }"). TEXT/EGA/
// VGA modes get the full 256-entry default table; CGA2/CGA4 modes get
// that same table with the four CGA palette-1 entries overwritten, so
// the 2-bit pixel values cgaSubPalette maps resolve to the correct
// CGA colors instead of whatever the previous mode's DAC held.
func paletteForKind(kind GFXKind) [256]RGBColor {
	p := defaultPalette()
	if kind == GFXCGA2 || kind == GFXCGA4 {
		for i, idx := range cgaSubPalette {
			p[idx] = cgaHighIntensity[i]
		}
	}
	return p
}

// defaultPalette builds this implementation's 256-entry DAC contents:
// the 16 standard EGA colors, a 16-step grayscale ramp, a 216-entry
// 6x6x6 color cube, and 8 filler black entries, totaling 256. This is
// an invention of this implementation, not a reproduction of a real
// VGA's factory-programmed DAC.
func defaultPalette() [256]RGBColor {
	var p [256]RGBColor

	ega := [16]RGBColor{
		{0, 0, 0}, {0, 0, 170}, {0, 170, 0}, {0, 170, 170},
		{170, 0, 0}, {170, 0, 170}, {170, 85, 0}, {170, 170, 170},
		{85, 85, 85}, {85, 85, 255}, {85, 255, 85}, {85, 255, 255},
		{255, 85, 85}, {255, 85, 255}, {255, 255, 85}, {255, 255, 255},
	}
	copy(p[0:16], ega[:])

	for i := 0; i < 16; i++ {
		v := byte(i * 17)
		p[16+i] = RGBColor{v, v, v}
	}

	idx := 32
	steps := [6]byte{0, 51, 102, 153, 204, 255}
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				p[idx] = RGBColor{steps[r], steps[g], steps[b]}
				idx++
			}
		}
	}
	// remaining entries (248..255) default to zero-value black.
	return p
}

// NewDAC returns a DAC pre-loaded with defaultPalette.
func NewDAC() *DAC {
	return &DAC{Pal: defaultPalette()}
}

// SetDACBlock implements the INT 10h AX=1012h bulk palette
// load: writes count consecutive entries starting at start, each as
// three 6-bit (0-63) components scaled up to 0-255, grounded on
// render.rs's set_dac_block.
func (d *DAC) SetDACBlock(start byte, rgb6 []byte) {
	n := len(rgb6) / 3
	for i := 0; i < n; i++ {
		entry := int(start) + i
		if entry > 255 {
			break
		}
		r, g, b := rgb6[i*3], rgb6[i*3+1], rgb6[i*3+2]
		d.Pal[entry] = RGBColor{scale6to8(r), scale6to8(g), scale6to8(b)}
	}
}

// ReadDACBlock implements the matching bulk read, returning count
// entries of three 6-bit components starting at start.
func (d *DAC) ReadDACBlock(start byte, count int) []byte {
	out := make([]byte, 0, count*3)
	for i := 0; i < count; i++ {
		entry := int(start) + i
		if entry > 255 {
			break
		}
		c := d.Pal[entry]
		out = append(out, scale8to6(c.R), scale8to6(c.G), scale8to6(c.B))
	}
	return out
}

// SetIndividualRegister writes one DAC entry from three 6-bit
// components (INT 10h AX=1010h).
func (d *DAC) SetIndividualRegister(index byte, r, g, b byte) {
	d.Pal[index] = RGBColor{scale6to8(r), scale6to8(g), scale6to8(b)}
}

// GetIndividualRegister reads one DAC entry back as three 6-bit
// components (INT 10h AX=1015h).
func (d *DAC) GetIndividualRegister(index byte) (r, g, b byte) {
	c := d.Pal[index]
	return scale8to6(c.R), scale8to6(c.G), scale8to6(c.B)
}

func scale6to8(v byte) byte {
	if v > 63 {
		v = 63
	}
	return byte(uint16(v) * 255 / 63)
}

func scale8to6(v byte) byte {
	// round to nearest so every 6-bit value survives scale6to8 and back
	return byte((uint16(v)*63 + 127) / 255)
}

// CRTC is the indexed register file real video cards expose through a
// pair of ports (index, data). Only the subset the core reads or
// writes is modeled; unrecognized indices read back as zero.
type CRTC struct {
	regs        [32]byte
	index       byte
	statusToggle bool
}

func (c *CRTC) SetIndex(i byte) { c.index = i & 0x1F }
func (c *CRTC) WriteData(v byte) { c.regs[c.index] = v }
func (c *CRTC) ReadData() byte   { return c.regs[c.index] }

// ReadCGAStatusRegister implements port 0x3DA: bit 0 is "display
// disabled" (horizontal or vertical retrace in progress), bit 3 is
// vertical retrace. The toggle flips every read so a polling loop
// waiting for retrace eventually observes it, grounded on render.rs's
// read_cga_status_register.
func (c *CRTC) ReadCGAStatusRegister() byte {
	c.statusToggle = !c.statusToggle
	if c.statusToggle {
		return 0x09
	}
	return 0x00
}

// GPU owns the mode block, DAC, and CRTC, and renders the active video
// buffer into an RGB frame on demand.
type GPU struct {
	MMU  *MMU
	Mode *VideoModeBlock
	Dac  *DAC
	Crtc *CRTC

	activePage int
	font8      []byte
	font14     []byte
	font16     []byte
}

// NewGPU constructs a GPU in mode 0x03 (80x25 text), matching the
// power-on default real BIOSes leave the card in.
func NewGPU(mmu *MMU) *GPU {
	g := &GPU{MMU: mmu, Dac: NewDAC(), Crtc: &CRTC{}}
	g.font8 = videofont.Build(8, 256)
	g.font14 = videofont.Build(14, 256)
	g.font16 = videofont.Build(16, 256)
	g.SetMode(0x03)
	return g
}

// SetMode implements INT 10h AH=00: locates the mode block (panicking
// if the card has no such mode, matching video_vga.go's setMode
// convention for an unknown mode number), loads the DAC palette for
// the block's kind, clears video memory, resets the cursor on all 8
// text pages, and points INT 0x43 (the font table vector spec.md §4.7
// names) at the matching glyph bitmap.
func (g *GPU) SetMode(number byte) {
	mb := findMode(number)
	if mb == nil {
		panic(fmt.Sprintf("gpu: video mode not found: %02X", number))
	}
	g.Mode = mb
	g.activePage = 0
	g.Dac.Pal = paletteForKind(mb.Kind)

	clearLen := mb.PageSize * 8
	if mb.Kind == GFXCGA4 || mb.Kind == GFXVGA {
		clearLen = mb.SWidth * mb.SHeight
	}
	zeros := make([]byte, clearLen)
	g.MMU.Write(mb.StartSegment, 0, zeros)

	for page := 0; page < 8; page++ {
		g.setCursorPosRaw(page, 0, 0)
	}

	fontBytes := g.font8
	switch mb.FontHeight {
	case 14:
		fontBytes = g.font14
	case 16:
		fontBytes = g.font16
	}
	// Font data lives at a fixed low-memory scratch segment; INT 0x43's
	// vector table entry is pointed at it so BIOS-aware guests that walk
	// the vector table to find the font (rather than calling INT 10h
	// AH=11h) still see consistent data.
	const fontScratchSeg = 0xF200
	g.MMU.Write(fontScratchSeg, 0, fontBytes)
	g.MMU.WriteVec(0x43, 0, fontScratchSeg)

	bda := &BIOSDataArea{MMU: g.MMU}
	bda.SetCurrentMode(number)
	bda.SetNumColumns(uint16(mb.TextCols))
	bda.SetPageSize(uint16(mb.PageSize))
	bda.SetCurrentPageStart(mb.StartSegment)
	bda.SetCurrentPage(0)
	if mb.TextRows > 0 {
		bda.SetNumRowsMinusOne(byte(mb.TextRows - 1))
	}
	bda.SetCharHeight(byte(mb.FontHeight))
}

// SetActivePage implements INT 10h AH=05h: selects which text page
// subsequent teletype output targets.
func (g *GPU) SetActivePage(page int) {
	g.activePage = page
	bda := &BIOSDataArea{MMU: g.MMU}
	bda.SetCurrentPage(byte(page))
	bda.SetCurrentPageStart(g.Mode.StartSegment + uint16(page*g.Mode.PageSize/16))
}

func (g *GPU) GetActivePage() int { return g.activePage }

func (g *GPU) setCursorPosRaw(page, col, row int) {
	bda := &BIOSDataArea{MMU: g.MMU}
	bda.SetCursorPos(page, byte(col), byte(row))
}

// SetCursorPos implements INT 10h AH=02h.
func (g *GPU) SetCursorPos(page int, col, row byte) {
	g.setCursorPosRaw(page, int(col), int(row))
}

// WritePixel dispatches to the mode 04h planar write or the mode 13h
// linear write depending on the current mode, matching render.rs's
// write_pixel mode check.
func (g *GPU) WritePixel(x, y int, colorIndex byte) {
	switch g.Mode.Kind {
	case GFXCGA4:
		g.writePixelCGA4(x, y, colorIndex&0x03)
	case GFXVGA:
		g.writePixelVGA(x, y, colorIndex)
	}
}

func (g *GPU) writePixelCGA4(x, y int, bits byte) {
	bank := uint16(0xB800)
	lineOff := uint16(0)
	if y%2 != 0 {
		lineOff = 0x2000
	}
	rowBase := uint16((y/2)*80) + lineOff
	byteOff := rowBase + uint16(x/4)
	shift := uint(6 - (x%4)*2)
	v := g.MMU.ReadU8(bank, byteOff)
	v &^= 0x03 << shift
	v |= bits << shift
	g.MMU.WriteU8(bank, byteOff, v)
}

func (g *GPU) writePixelVGA(x, y int, index byte) {
	off := uint16(y*320 + x)
	g.MMU.WriteU8(0xA000, off, index)
}

// WriteChar implements the glyph-rasterization half of teletype
// output for graphics modes: the 8-pixel-wide glyph from the active
// font is stamped at (col,row) one pixel at a time via WritePixel.
func (g *GPU) WriteChar(ch byte, col, row int, fg byte) {
	font := g.font8
	h := 8
	switch g.Mode.FontHeight {
	case 14:
		font, h = g.font14, 14
	case 16:
		font, h = g.font16, 16
	}
	rowBytes := 1
	base := int(ch) * h * rowBytes
	x0, y0 := col*8, row*h
	for gy := 0; gy < h; gy++ {
		rowByte := font[base+gy*rowBytes]
		for gx := 0; gx < 8; gx++ {
			if rowByte&(0x80>>uint(gx)) != 0 {
				g.WritePixel(x0+gx, y0+gy, fg)
			}
		}
	}
}

// TeletypeOutput implements INT 10h AH=0Eh: advances the cursor,
// wraps and scrolls (text modes only) on overflow, and either writes
// the character byte to the active text page or rasterizes it through
// WriteChar for graphics modes, grounded on render.rs's
// teletype_output/write_char_internal.
func (g *GPU) TeletypeOutput(ch byte, fg byte) {
	bda := &BIOSDataArea{MMU: g.MMU}
	page := int(bda.CurrentPage())
	col, row := bda.CursorPos(page)

	switch ch {
	case '\r':
		col = 0
	case '\n':
		row++
	case 0x08:
		if col > 0 {
			col--
		}
	default:
		if g.Mode.Kind == GFXText {
			g.writeCharInternal(page, int(col), int(row), ch, fg)
		} else {
			g.WriteChar(ch, int(col), int(row), fg)
		}
		col++
	}

	if g.Mode.Kind == GFXText && int(col) >= g.Mode.TextCols {
		col = 0
		row++
	}
	if g.Mode.Kind == GFXText && int(row) >= g.Mode.TextRows {
		g.scrollTextPage(page)
		row = byte(g.Mode.TextRows - 1)
	}
	bda.SetCursorPos(page, col, row)
}

func (g *GPU) writeCharInternal(page, col, row int, ch, attr byte) {
	seg := g.Mode.StartSegment
	pageBase := uint16(page * g.Mode.PageSize)
	off := pageBase + uint16((row*g.Mode.TextCols+col)*2)
	g.MMU.WriteU8(seg, off, ch)
	g.MMU.WriteU8(seg, off+1, attr)
}

func (g *GPU) scrollTextPage(page int) {
	seg := g.Mode.StartSegment
	pageBase := uint16(page * g.Mode.PageSize)
	rowBytes := uint16(g.Mode.TextCols * 2)
	for row := 1; row < g.Mode.TextRows; row++ {
		src := pageBase + uint16(row)*rowBytes
		dst := pageBase + uint16(row-1)*rowBytes
		line := g.MMU.Read(seg, src, int(rowBytes))
		g.MMU.Write(seg, dst, line)
	}
	blank := make([]byte, rowBytes)
	for i := 0; i < len(blank); i += 2 {
		blank[i] = ' '
		blank[i+1] = 0x07
	}
	lastRow := pageBase + uint16(g.Mode.TextRows-1)*rowBytes
	g.MMU.Write(seg, lastRow, blank)
}

// ProgressScanline is the once-per-100-instructions tick spec.md §5
// names; the original uses it to drive CRTC retrace status. Since
// ReadCGAStatusRegister already self-toggles per read, this only needs
// to exist as a named hook machine.go can call on the same cadence as
// the PIT tick, matching render.rs's progress_scanline call site.
func (g *GPU) ProgressScanline() {}

// RenderFrame composes the current video buffer into a width*height*3
// RGB byte slice, dispatching on the mode's GFXKind the way
// render.rs's render_mode04_frame/render_mode13_frame do. Only modes
// 04h and 13h are composed; text modes have no pixel size in their mode
// block, so they yield an empty slice.
func (g *GPU) RenderFrame() []byte {
	switch g.Mode.Kind {
	case GFXCGA4:
		return g.renderMode04()
	case GFXVGA:
		return g.renderMode13()
	default:
		return make([]byte, g.Mode.SWidth*g.Mode.SHeight*3)
	}
}

func (g *GPU) renderMode04() []byte {
	const w, h = 320, 200
	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		bank := uint16(0xB800)
		lineOff := uint16(0)
		if y%2 != 0 {
			lineOff = 0x2000
		}
		rowBase := uint16((y/2)*80) + lineOff
		for x := 0; x < w; x++ {
			byteOff := rowBase + uint16(x/4)
			shift := uint(6 - (x%4)*2)
			v := g.MMU.ReadU8(bank, byteOff)
			bits := (v >> shift) & 0x03
			entry := cgaSubPalette[bits]
			c := g.Dac.Pal[entry]
			i := (y*w + x) * 3
			out[i], out[i+1], out[i+2] = c.R, c.G, c.B
		}
	}
	return out
}

func (g *GPU) renderMode13() []byte {
	const w, h = 320, 200
	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		rowBase := uint16(y * w)
		for x := 0; x < w; x++ {
			idx := g.MMU.ReadU8(0xA000, rowBase+uint16(x))
			c := g.Dac.Pal[idx]
			i := (y*w + x) * 3
			out[i], out[i+1], out[i+2] = c.R, c.G, c.B
		}
	}
	return out
}
