// bios.go - high-level (host-level) INT 10h/16h/21h handlers and the
// BIOS data area accessors spec.md §6 names.
//
// The data-driven (INT number, AH subfunction) dispatch table follows
// spec.md §9's design note directly; register argument conventions
// (BH=page, DH=row, DL=col for AH=02h, DS:DX $-terminated string for
// INT 21h AH=09h, etc.) are standard real-mode BIOS/DOS calling
// conventions also followed by original_source/src/gpu/render.rs's
// set_cursor_pos/teletype_output signatures.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

const biosDataSeg = 0x0040

// BDA field offsets, matching spec.md §6's documented subset plus the
// user-palette-table pointer SPEC_FULL.md §4 calls out as a
// supplemented (not spec.md-literal) feature; 0x00A8 is the same
// offset a real BIOS uses for its video parameter table pointer.
const (
	bdaCurrentMode      = 0x49
	bdaNumColumns       = 0x4A
	bdaPageSize         = 0x4C
	bdaCurrentPageStart = 0x4E
	bdaCursorTable      = 0x50
	bdaCurrentPage      = 0x62
	bdaNumRowsMinusOne  = 0x84
	bdaCharHeight       = 0x85
	bdaUserPaletteTable = 0xA8
)

// BIOSDataArea is a thin accessor over the fixed low-memory BDA
// segment; gpu.go and bios.go both read/write through it rather than
// poking raw offsets inline.
type BIOSDataArea struct{ MMU *MMU }

func (b *BIOSDataArea) SetCurrentMode(v byte)   { b.MMU.WriteU8(biosDataSeg, bdaCurrentMode, v) }
func (b *BIOSDataArea) CurrentMode() byte       { return b.MMU.ReadU8(biosDataSeg, bdaCurrentMode) }
func (b *BIOSDataArea) SetNumColumns(v uint16)  { b.MMU.WriteU16(biosDataSeg, bdaNumColumns, v) }
func (b *BIOSDataArea) NumColumns() uint16      { return b.MMU.ReadU16(biosDataSeg, bdaNumColumns) }
func (b *BIOSDataArea) SetPageSize(v uint16)    { b.MMU.WriteU16(biosDataSeg, bdaPageSize, v) }
func (b *BIOSDataArea) PageSize() uint16        { return b.MMU.ReadU16(biosDataSeg, bdaPageSize) }
func (b *BIOSDataArea) SetCurrentPageStart(v uint16) {
	b.MMU.WriteU16(biosDataSeg, bdaCurrentPageStart, v)
}
func (b *BIOSDataArea) CurrentPageStart() uint16 {
	return b.MMU.ReadU16(biosDataSeg, bdaCurrentPageStart)
}

// SetCursorPos writes the (col,row) pair for one of the 8 text pages'
// cursor slots in the BDA's 16-byte cursor table.
func (b *BIOSDataArea) SetCursorPos(page int, col, row byte) {
	off := uint16(bdaCursorTable + page*2)
	b.MMU.WriteU8(biosDataSeg, off, col)
	b.MMU.WriteU8(biosDataSeg, off+1, row)
}

func (b *BIOSDataArea) CursorPos(page int) (col, row byte) {
	off := uint16(bdaCursorTable + page*2)
	return b.MMU.ReadU8(biosDataSeg, off), b.MMU.ReadU8(biosDataSeg, off+1)
}

func (b *BIOSDataArea) SetCurrentPage(v byte) { b.MMU.WriteU8(biosDataSeg, bdaCurrentPage, v) }
func (b *BIOSDataArea) CurrentPage() byte     { return b.MMU.ReadU8(biosDataSeg, bdaCurrentPage) }

func (b *BIOSDataArea) SetNumRowsMinusOne(v byte) { b.MMU.WriteU8(biosDataSeg, bdaNumRowsMinusOne, v) }
func (b *BIOSDataArea) SetCharHeight(v byte)      { b.MMU.WriteU8(biosDataSeg, bdaCharHeight, v) }

func (b *BIOSDataArea) SetUserPaletteTable(seg, off uint16) {
	b.MMU.WriteU16(biosDataSeg, bdaUserPaletteTable, off)
	b.MMU.WriteU16(biosDataSeg, bdaUserPaletteTable+2, seg)
}

// userPaletteTableSeg is the scratch segment Init copies the DAC's
// startup palette into so the BDA pointer has somewhere real to point.
const userPaletteTableSeg = 0xF300

// BIOS implements the Executor's HLEHandler interface: INT dispatch
// that reaches the reserved HLE segment lands here instead of guest
// code.
type BIOS struct {
	GPU      *GPU
	MMU      *MMU
	Log      LogSink
	keyQueue []uint16
}

// NewBIOS wires a BIOS to the GPU and MMU it services.
func NewBIOS(mmu *MMU, gpu *GPU, log LogSink) *BIOS {
	return &BIOS{GPU: gpu, MMU: mmu, Log: log}
}

// Init seeds the interrupt vector table (every vector pointed at the
// HLE segment, so any INT the guest raises reaches HandleInterrupt)
// and the BDA's user-palette-table pointer, per SPEC_FULL.md §4's
// "BIOS data area initialization on mode set" supplement — done once
// at startup rather than only on mode set, since the vector table
// itself never changes afterward.
func (b *BIOS) Init() {
	for v := 0; v < 256; v++ {
		b.MMU.WriteVec(byte(v), uint16(v), HLESegment)
	}

	raw := make([]byte, 0, 256*3)
	for _, c := range b.GPU.Dac.Pal {
		raw = append(raw, c.R, c.G, c.B)
	}
	b.MMU.Write(userPaletteTableSeg, 0, raw)

	bda := &BIOSDataArea{MMU: b.MMU}
	bda.SetUserPaletteTable(userPaletteTableSeg, 0)
}

// HandleInterrupt looks up the (vector, AH) pair in intTable and
// dispatches, falling back to InterruptNotHandled (spec.md §7 error
// kind 6) for anything unrecognized.
func (b *BIOS) HandleInterrupt(e *Executor, vector byte) {
	ah := e.Regs.Reg8(4)
	sub, ok := intTable[vector]
	if !ok {
		b.notHandled(e, vector, ah)
		return
	}
	fn, ok := sub[ah]
	if !ok {
		b.notHandled(e, vector, ah)
		return
	}
	fn(b, e)
}

// notHandled implements spec.md §7's InterruptNotHandled: log and
// return a benign (zero) default in AX so execution continues.
func (b *BIOS) notHandled(e *Executor, vector, ah byte) {
	b.Log.Logf("bios: InterruptNotHandled INT %02Xh AH=%02Xh", vector, ah)
	e.Regs.SetReg16(RegAX, 0)
}

// intTable is the data-driven (INT number, AH subfunction) dispatch
// table spec.md §9's design note calls for, avoiding a hand-rolled
// control-flow tree.
var intTable = map[byte]map[byte]func(b *BIOS, e *Executor){
	0x10: {
		0x00: (*BIOS).biosSetMode,
		0x02: (*BIOS).biosSetCursorPos,
		0x05: (*BIOS).biosSetActivePage,
		0x0E: (*BIOS).biosTeletype,
		0x10: (*BIOS).biosPaletteDispatch,
		0x1B: (*BIOS).biosFunctionalityState,
	},
	0x16: {
		0x00: (*BIOS).biosKeyRead,
		0x01: (*BIOS).biosKeyPeek,
	},
	0x21: {
		0x02: (*BIOS).biosDosPutChar,
		0x09: (*BIOS).biosDosPrintString,
		0x4C: (*BIOS).biosDosExit,
	},
}

// --- INT 10h (video) --------------------------------------------------

func (b *BIOS) biosSetMode(e *Executor) {
	al := e.Regs.Reg8(0)
	b.GPU.SetMode(al)
}

func (b *BIOS) biosSetCursorPos(e *Executor) {
	page := int(e.Regs.Reg8(7)) // BH
	row := e.Regs.Reg8(6)       // DH
	col := e.Regs.Reg8(2)       // DL
	b.GPU.SetCursorPos(page, col, row)
}

func (b *BIOS) biosSetActivePage(e *Executor) {
	page := int(e.Regs.Reg8(7)) // BH
	b.GPU.SetActivePage(page)
}

func (b *BIOS) biosTeletype(e *Executor) {
	ch := e.Regs.Reg8(0) // AL
	fg := e.Regs.Reg8(3) // BL
	b.GPU.TeletypeOutput(ch, fg)
}

// biosPaletteDispatch implements the AH=10h DAC subfunctions
// SPEC_FULL.md §4 names, keyed by AL since the real BIOS nests a
// second subfunction byte here rather than giving each its own AH.
func (b *BIOS) biosPaletteDispatch(e *Executor) {
	al := e.Regs.Reg8(0)
	switch al {
	case 0x10: // set individual DAC register: BL=index, DH=r, CH=g, CL=b
		idx := e.Regs.Reg8(3)
		r := e.Regs.Reg8(6)
		g := e.Regs.Reg8(5)
		bl := e.Regs.Reg8(1)
		b.GPU.Dac.SetIndividualRegister(idx, r, g, bl)
	case 0x12: // set DAC block: BX=start, CX=count, ES:DX=table
		start := byte(e.Regs.Reg16(RegBX))
		count := int(e.Regs.Reg16(RegCX))
		seg, off := e.Regs.Seg(SegES), e.Regs.Reg16(RegDX)
		raw := e.MMU.Read(seg, off, count*3)
		b.GPU.Dac.SetDACBlock(start, raw)
	case 0x15: // get individual DAC register: BL=index -> DH,CH,CL
		idx := e.Regs.Reg8(3)
		r, g, bl := b.GPU.Dac.GetIndividualRegister(idx)
		e.Regs.SetReg8(6, r)
		e.Regs.SetReg8(5, g)
		e.Regs.SetReg8(1, bl)
	case 0x17: // get DAC block: BX=start, CX=count, ES:DX=buffer
		start := byte(e.Regs.Reg16(RegBX))
		count := int(e.Regs.Reg16(RegCX))
		data := b.GPU.Dac.ReadDACBlock(start, count)
		seg, off := e.Regs.Seg(SegES), e.Regs.Reg16(RegDX)
		e.MMU.Write(seg, off, data)
	default:
		b.notHandled(e, 0x10, 0x10)
	}
}

// biosFunctionalityState implements AH=1Bh: fills ES:DI with the
// 16-byte static functionality block spec.md §6 names, reporting the
// currently active mode's dimensions.
func (b *BIOS) biosFunctionalityState(e *Executor) {
	seg, off := e.Regs.Seg(SegES), e.Regs.Reg16(RegDI)
	block := make([]byte, 16)
	block[0] = b.GPU.Mode.Number
	if b.GPU.Mode.TextRows > 0 {
		block[1] = byte(b.GPU.Mode.TextRows - 1)
	}
	block[2] = byte(b.GPU.Mode.FontHeight)
	e.MMU.Write(seg, off, block)
}

// --- INT 16h (keyboard) -------------------------------------------------

func (b *BIOS) biosKeyRead(e *Executor) {
	if len(b.keyQueue) == 0 {
		b.notHandled(e, 0x16, 0x00)
		return
	}
	v := b.keyQueue[0]
	b.keyQueue = b.keyQueue[1:]
	e.Regs.SetReg16(RegAX, v)
}

func (b *BIOS) biosKeyPeek(e *Executor) {
	empty := len(b.keyQueue) == 0
	// The HLE return path reloads FLAGS from the stack (IP, CS, FLAGS),
	// so ZF is also written into the saved FLAGS word the caller gets back.
	ss, flagsAt := e.Regs.Seg(SegSS), e.Regs.Reg16(RegSP)+4
	saved := e.MMU.ReadU16(ss, flagsAt)
	if empty {
		saved |= FlagZF
	} else {
		saved &^= FlagZF
	}
	e.MMU.WriteU16(ss, flagsAt, saved)
	e.Regs.SetFlag(FlagZF, empty)
	if !empty {
		e.Regs.SetReg16(RegAX, b.keyQueue[0])
	}
}

// PushKey queues a scan-code/ASCII pair (high byte scan code, low byte
// ASCII) for a subsequent INT 16h AH=00h/01h to observe; the embedder
// drives this, not guest code.
func (b *BIOS) PushKey(v uint16) { b.keyQueue = append(b.keyQueue, v) }

// --- INT 21h (DOS) -------------------------------------------------------

func (b *BIOS) biosDosPutChar(e *Executor) {
	dl := e.Regs.Reg8(2)
	b.GPU.TeletypeOutput(dl, 0x07)
}

func (b *BIOS) biosDosPrintString(e *Executor) {
	seg, off := e.Regs.Seg(SegDS), e.Regs.Reg16(RegDX)
	for {
		ch := e.MMU.ReadU8(seg, off)
		if ch == '$' {
			break
		}
		b.GPU.TeletypeOutput(ch, 0x07)
		off++
	}
}

func (b *BIOS) biosDosExit(e *Executor) {
	e.Halted = true
}
