// machine.go - the façade spec.md §6 names as the core's only
// programmatic surface: load_executable, execute_frame,
// execute_instruction, execute_instructions, hard_reset,
// register_snapshot, render_frame.
//
// Grounded on original_source/src/machine.rs's Machine struct and
// execute_frame/execute_instruction, with one deliberate
// simplification: the original re-checks `cs==0xF000` before decoding
// and calls the HLE handler directly from execute_instruction; this
// implementation relies entirely on executor.go's interrupt() method,
// which already performs the identical short-circuit the moment INT n
// executes and leaves CS:IP pointing at the return address before
// Execute returns, so IP never actually parks at CS=0xF000 for a
// following ExecuteInstruction call to observe.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

// clockHz and the 60fps frame boundary together bound ExecuteFrame's
// instruction budget, matching machine.rs's execute_frame loop
// (`cycle_count > clock_hz/60`).
const clockHz = 4_772_727 // 4.77MHz reference clock, matching the original's constant

const tickCadence = 100 // peripheral tick interval, spec.md §5

// Machine wires every collaborator together: memory, registers,
// decode/execute, the GPU/BIOS video surface, and the opaque
// peripheral tick sinks.
type Machine struct {
	MMU     *MMU
	Regs    *RegisterFile
	Decoder *Decoder
	Exec    *Executor
	GPU     *GPU
	BIOS    *BIOS
	Periph  *Peripherals
	Log     LogSink

	cycleCount int
	romBase    uint32
	romLength  uint32
}

// New constructs a Machine in its post-HardReset state: a zeroed 1 MiB
// address space, a fresh register file, mode 0x03 video, and every
// interrupt vector routed at the HLE BIOS.
func New() *Machine {
	mmu := NewMMU()
	regs := NewRegisterFile()
	gpu := NewGPU(mmu)
	log := &StderrLog{}
	bios := NewBIOS(mmu, gpu, log)
	periph := NewPeripherals(gpu)
	exec := NewExecutor(regs, mmu, periph, bios, log)

	m := &Machine{
		MMU:     mmu,
		Regs:    regs,
		Decoder: NewDecoder(),
		Exec:    exec,
		GPU:     gpu,
		BIOS:    bios,
		Periph:  periph,
		Log:     log,
	}
	bios.Init()
	return m
}

// LoadExecutable recognizes and loads a .COM image or MZ executable,
// seeding the register file from the loader's result and recording
// the loaded extent as the ROM bound the tracer and the executor's
// straight-line bookkeeping use. Returns spec.md §7's
// ExecutableMalformed error unchanged on a parse failure; the Machine
// is left in its prior (reset) state in that case.
func (m *Machine) LoadExecutable(data []byte) error {
	r, err := LoadExecutable(m.MMU, data)
	if err != nil {
		return err
	}

	m.Regs.SetSeg(SegCS, r.CS)
	m.Regs.SetIP(r.IP)
	m.Regs.SetSeg(SegSS, r.SS)
	m.Regs.SetReg16(RegSP, r.SP)
	m.Regs.SetSeg(SegDS, r.DS)
	m.Regs.SetSeg(SegES, r.ES)
	m.Regs.SetReg16(RegCX, r.CX)
	m.Regs.SetReg16(RegDX, r.DX)
	m.Regs.SetReg16(RegSI, r.SI)
	m.Regs.SetReg16(RegDI, r.DI)
	m.Regs.SetReg16(RegBP, r.BP)

	m.romBase = ToFlat(r.CS, r.IP)
	m.romLength = uint32(len(data))
	return nil
}

// ExecuteInstruction decodes and runs exactly one instruction at the
// current CS:IP, then advances the peripheral tick cadence.
func (m *Machine) ExecuteInstruction() {
	ii := m.Decoder.Decode(m.MMU, m.Regs.Seg(SegCS), m.Regs.IP())
	m.Regs.SetIP(m.Regs.IP() + uint16(ii.Length))
	m.Exec.Execute(ii)

	m.cycleCount++
	if m.cycleCount%tickCadence == 0 {
		m.GPU.ProgressScanline()
		m.Periph.DecrementCounter0()
	}
}

// ExecuteFrame runs instructions until either clockHz/60 have executed
// or a terminal state (HLT, fatal_error) is reached, matching
// machine.rs's execute_frame budget.
func (m *Machine) ExecuteFrame() {
	const budget = clockHz / 60
	for i := 0; i < budget; i++ {
		if m.Exec.FatalError || m.Exec.Halted {
			return
		}
		m.ExecuteInstruction()
	}
}

// ExecuteInstructions runs up to n instructions, stopping early on a
// terminal state.
func (m *Machine) ExecuteInstructions(n int) {
	for i := 0; i < n; i++ {
		if m.Exec.FatalError || m.Exec.Halted {
			return
		}
		m.ExecuteInstruction()
	}
}

// HardReset reinitializes the register file and execution flags but
// leaves memory and video state untouched, matching machine.rs's
// hard_reset (which resets only `cpu`, never `hw`).
func (m *Machine) HardReset() {
	m.Regs = NewRegisterFile()
	m.Exec.Regs = m.Regs
	m.Exec.FatalError = false
	m.Exec.Halted = false
	m.cycleCount = 0
}

// RegisterSnapshot returns a copy of the register file, safe for a
// caller to inspect without racing further execution.
func (m *Machine) RegisterSnapshot() RegisterFile {
	return *m.Regs
}

// RenderFrame composes the active video buffer into a width*height*3
// RGB byte slice via the GPU.
func (m *Machine) RenderFrame() []byte {
	return m.GPU.RenderFrame()
}

// Trace runs the static reachability tracer from the current CS:IP
// over the loaded extent and returns the rendered disassembly,
// exposed for cmd/tracedump.
func (m *Machine) Trace() string {
	t := NewTracer()
	t.Trace(m.Decoder, m.MMU, m.Regs.Seg(SegCS), m.Regs.IP(), m.romBase, m.romLength)
	return t.PresentTrace(m.Decoder, m.MMU)
}
