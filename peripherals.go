// peripherals.go - the opaque PIT/PIC/CMOS tick sinks spec.md §5
// describes as advancing on the same 100-instruction cadence as the
// GPU's scanline progress, plus the CRTC's port-mapped index/data/
// status registers.
//
// Grounded on original_source/src/machine.rs's execute_instruction,
// which decrements pit.counter0 in the same cycle_count%100==0 branch
// that calls gpu.progress_scanline(); none of the PIT/PIC/CMOS timing
// detail survived the original_source filter, so this models only the
// port-mapped surface spec.md's PortBus needs, not a cycle-accurate
// 8253/8259/MC146818.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

// Port numbers this implementation recognizes; everything else reads
// as zero and discards writes, matching a real PC's behavior for an
// unpopulated I/O address.
const (
	portPIT0     = 0x40
	portPITMode  = 0x43
	portPICMask  = 0x21
	portCMOSIdx  = 0x70
	portCMOSData = 0x71
	portCRTCIdx  = 0x3D4
	portCRTCData = 0x3D5
	portCGAStat  = 0x3DA
)

// Peripherals implements the Executor's PortBus interface: a PIT
// channel-0 counter, a PIC interrupt-mask register, a 128-byte CMOS
// RAM with its index/data port pair, and a passthrough to the GPU's
// CRTC index/data/status registers.
type Peripherals struct {
	GPU *GPU

	pitCounter0 uint16
	picMask     byte
	cmosIndex   byte
	cmosData    [128]byte
}

// NewPeripherals wires the PortBus to the GPU's CRTC for the
// video-adjacent ports (0x3D4/0x3D5/0x3DA).
func NewPeripherals(gpu *GPU) *Peripherals {
	return &Peripherals{GPU: gpu, pitCounter0: 0xFFFF}
}

func (p *Peripherals) In8(port uint16) byte {
	switch port {
	case portPIT0:
		return byte(p.pitCounter0)
	case portPICMask:
		return p.picMask
	case portCMOSData:
		return p.cmosData[p.cmosIndex]
	case portCRTCData:
		return p.GPU.Crtc.ReadData()
	case portCGAStat:
		return p.GPU.Crtc.ReadCGAStatusRegister()
	default:
		return 0
	}
}

func (p *Peripherals) In16(port uint16) uint16 {
	return uint16(p.In8(port)) | uint16(p.In8(port+1))<<8
}

func (p *Peripherals) Out8(port uint16, v byte) {
	switch port {
	case portPIT0:
		p.pitCounter0 = (p.pitCounter0 &^ 0xFF) | uint16(v)
	case portPITMode:
		// channel/mode command byte; no full 8253 mode machine in scope.
	case portPICMask:
		p.picMask = v
	case portCMOSIdx:
		p.cmosIndex = v & 0x7F
	case portCMOSData:
		p.cmosData[p.cmosIndex] = v
	case portCRTCIdx:
		p.GPU.Crtc.SetIndex(v)
	case portCRTCData:
		p.GPU.Crtc.WriteData(v)
	}
}

func (p *Peripherals) Out16(port uint16, v uint16) {
	p.Out8(port, byte(v))
	p.Out8(port+1, byte(v>>8))
}

// DecrementCounter0 is the 100-instruction-cadence PIT tick
// machine.go calls alongside GPU.ProgressScanline.
func (p *Peripherals) DecrementCounter0() {
	if p.pitCounter0 > 0 {
		p.pitCounter0--
	}
}
