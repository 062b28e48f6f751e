// decoder.go - byte stream -> Instruction record.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

// opNames gives the disassembly mnemonic for each Op, used by the
// tracer and by diagnostics.
var opNames = map[Op]string{
	OpUninitialized: "(uninitialized)",
	OpInvalid:       "(invalid)",
	OpAaa:           "AAA", OpAad: "AAD", OpAam: "AAM", OpAas: "AAS",
	OpAdc8: "ADC", OpAdc16: "ADC", OpAdd8: "ADD", OpAdd16: "ADD",
	OpAnd8: "AND", OpAnd16: "AND", OpBound: "BOUND", OpBsf: "BSF", OpBt: "BT",
	OpCallNear: "CALL", OpCallFar: "CALL FAR", OpCbw: "CBW",
	OpClc: "CLC", OpCld: "CLD", OpCli: "CLI", OpCmc: "CMC",
	OpCmp8: "CMP", OpCmp16: "CMP", OpCmpsb: "CMPSB", OpCmpsw: "CMPSW",
	OpCwd: "CWD", OpDaa: "DAA", OpDas: "DAS",
	OpDec8: "DEC", OpDec16: "DEC", OpDiv8: "DIV", OpDiv16: "DIV",
	OpEnter: "ENTER", OpHlt: "HLT",
	OpIdiv8: "IDIV", OpIdiv16: "IDIV", OpImul8: "IMUL", OpImul16: "IMUL",
	OpIn8: "IN", OpIn16: "IN", OpInc8: "INC", OpInc16: "INC",
	OpInsb: "INSB", OpInsw: "INSW", OpInt: "INT", OpInto: "INTO", OpIret: "IRET",
	OpJa: "JA", OpJc: "JC", OpJcxz: "JCXZ", OpJg: "JG", OpJl: "JL",
	OpJmpShort: "JMP", OpJmpNear: "JMP", OpJmpFar: "JMP FAR",
	OpJna: "JNA", OpJnc: "JNC", OpJng: "JNG", OpJnl: "JNL", OpJno: "JNO",
	OpJns: "JNS", OpJnz: "JNZ", OpJo: "JO", OpJpe: "JPE", OpJpo: "JPO",
	OpJs: "JS", OpJz: "JZ",
	OpLahf: "LAHF", OpLds: "LDS", OpLea: "LEA", OpLeave: "LEAVE", OpLes: "LES",
	OpLodsb: "LODSB", OpLodsw: "LODSW",
	OpLoop: "LOOP", OpLoope: "LOOPE", OpLoopne: "LOOPNE",
	OpMov8: "MOV", OpMov16: "MOV", OpMovsb: "MOVSB", OpMovsw: "MOVSW",
	OpMovsx: "MOVSX", OpMovzx: "MOVZX",
	OpMul8: "MUL", OpMul16: "MUL", OpNeg8: "NEG", OpNeg16: "NEG", OpNop: "NOP",
	OpNot8: "NOT", OpNot16: "NOT", OpOr8: "OR", OpOr16: "OR",
	OpOut8: "OUT", OpOut16: "OUT", OpOutsb: "OUTSB", OpOutsw: "OUTSW",
	OpPop16: "POP", OpPopa: "POPA", OpPopf: "POPF",
	OpPush16: "PUSH", OpPusha: "PUSHA", OpPushf: "PUSHF",
	OpRcl8: "RCL", OpRcl16: "RCL", OpRcr8: "RCR", OpRcr16: "RCR",
	OpRetn: "RET", OpRetf: "RETF", OpRetImm16: "RET",
	OpRol8: "ROL", OpRol16: "ROL", OpRor8: "ROR", OpRor16: "ROR",
	OpSahf: "SAHF", OpSalc: "SALC", OpSar8: "SAR", OpSar16: "SAR",
	OpSbb8: "SBB", OpSbb16: "SBB", OpScasb: "SCASB", OpScasw: "SCASW",
	OpShl8: "SHL", OpShl16: "SHL", OpShld: "SHLD",
	OpShr8: "SHR", OpShr16: "SHR", OpShrd: "SHRD",
	OpStc: "STC", OpStd: "STD", OpSti: "STI",
	OpStosb: "STOSB", OpStosw: "STOSW",
	OpSub8: "SUB", OpSub16: "SUB", OpTest8: "TEST", OpTest16: "TEST",
	OpXchg8: "XCHG", OpXchg16: "XCHG", OpXlatb: "XLAT",
	OpXor8: "XOR", OpXor16: "XOR",
}

// amode16EA resolves one of the 8 non-register addressing-mode base
// expressions ("seg override" aside) to the (registers summed) offset,
// per the 8086 addressing table: {BX+SI,BX+DI,BP+SI,BP+DI,SI,DI,BP,BX}.
func amode16EA(r *RegisterFile, amode int) uint16 {
	switch amode {
	case 0:
		return r.Reg16(RegBX) + r.Reg16(RegSI)
	case 1:
		return r.Reg16(RegBX) + r.Reg16(RegDI)
	case 2:
		return r.Reg16(RegBP) + r.Reg16(RegSI)
	case 3:
		return r.Reg16(RegBP) + r.Reg16(RegDI)
	case 4:
		return r.Reg16(RegSI)
	case 5:
		return r.Reg16(RegDI)
	case 6:
		return r.Reg16(RegBP)
	case 7:
		return r.Reg16(RegBX)
	}
	return 0
}

// amodeImpliesSS reports whether an addressing mode defaults its
// segment to SS rather than DS (the BP-based modes).
func amodeImpliesSS(amode int) bool {
	return amode == 2 || amode == 3 || amode == 6
}

// Decoder turns a byte stream at (segment, offset) into an Instruction.
// It holds no state across calls other than scratch cursor fields, so a
// single Decoder value may be reused across addresses (matching
// dustbox's `Decoder::default()` per-trace-step usage).
type Decoder struct {
	mmu    *MMU
	seg    uint16
	cursor uint16
	start  uint16

	segOverride int
	repeat      Repeat
	lock        bool
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) fetch8() byte {
	v := d.mmu.ReadU8(d.seg, d.cursor)
	d.cursor++
	return v
}

func (d *Decoder) fetch16() uint16 {
	v := d.mmu.ReadU16(d.seg, d.cursor)
	d.cursor += 2
	return v
}

func (d *Decoder) fetchS8() int8 { return int8(d.fetch8()) }

// Decode decodes one instruction at segment:offset.
func (d *Decoder) Decode(mmu *MMU, segment, offset uint16) *Instruction {
	d.mmu = mmu
	d.seg = segment
	d.cursor = offset
	d.start = offset
	d.segOverride = -1
	d.repeat = RepeatNone
	d.lock = false

	// 1. Prefix loop (at most 15 bytes total before an opcode byte).
	for d.cursor-d.start < 15 {
		b := d.mmu.ReadU8(d.seg, d.cursor)
		switch b {
		case 0x26:
			d.segOverride = SegES
		case 0x2E:
			d.segOverride = SegCS
		case 0x36:
			d.segOverride = SegSS
		case 0x3E:
			d.segOverride = SegDS
		case 0x64:
			d.segOverride = SegFS
		case 0x65:
			d.segOverride = SegGS
		case 0x66, 0x67:
			// operand/address size prefixes: accepted and skipped; this
			// core does not decode 32-bit operand forms (spec Non-goal).
		case 0xF0:
			d.lock = true
		case 0xF3:
			d.repeat = RepeatREP
		case 0xF2:
			d.repeat = RepeatREPNE
		default:
			goto opcode
		}
		d.cursor++
	}
	// 15 prefix bytes examined with no opcode byte found: report exactly
	// what the loop looked at, not invalid()'s generic start+1 guess.
	{
		bytes := d.mmu.Read(d.seg, d.start, 15)
		return &Instruction{
			Command:       OpInvalid,
			InvalidReason: InvalidOp,
			InvalidBytes:  bytes,
			Length:        15,
		}
	}

opcode:
	opByte := d.fetch8()
	ii := d.dispatch(opByte)
	ii.SegPrefix = d.segOverride
	ii.Repeat = d.repeat
	if ii.Repeat == RepeatREP && isCmpsOrScas(ii.Command) {
		// F3 in front of CMPS/SCAS is REPE (repeat while equal), not REP;
		// the prefix byte is shared with MOVS/STOS/LODS, where it is REP.
		ii.Repeat = RepeatREPE
	}
	ii.Lock = d.lock
	ii.Length = int(d.cursor - d.start)
	return ii
}

func isCmpsOrScas(op Op) bool {
	switch op {
	case OpCmpsb, OpCmpsw, OpScasb, OpScasw:
		return true
	default:
		return false
	}
}

func (d *Decoder) invalid(reason InvalidReason) *Instruction {
	n := int(d.cursor-d.start) + 1
	if n < 1 {
		n = 1
	}
	bytes := d.mmu.Read(d.seg, d.start, n)
	return &Instruction{
		Command:       OpInvalid,
		InvalidReason: reason,
		InvalidBytes:  bytes,
		Length:        n,
	}
}

// effectiveSeg resolves the segment a memory operand addresses,
// honoring an explicit override or the BP-implies-SS default.
func (d *Decoder) effectiveSeg(r *RegisterFile, amode int) uint16 {
	if d.segOverride >= 0 {
		return r.Seg(d.segOverride)
	}
	if amodeImpliesSS(amode) {
		return r.Seg(SegSS)
	}
	return r.Seg(SegDS)
}

// modrm is the decoded ModR/M byte.
type modrmInfo struct {
	mod, reg, rm byte
}

func (d *Decoder) fetchModRM() modrmInfo {
	b := d.fetch8()
	return modrmInfo{mod: b >> 6, reg: (b >> 3) & 7, rm: b & 7}
}

// decodeRM builds the Parameter for a ModR/M's r/m field, given the
// already-fetched mod/rm and whether the operand is byte- or
// word-width. The actual effective-address arithmetic (and the
// BP-implied SS choice, see effectiveSeg) happens at execute time once
// registers are live, so Ptr16Amode carries the raw amode/disp — not a
// materialized address — mirroring dustbox's Parameter variants.
func (d *Decoder) decodeRM(m modrmInfo, wide bool) Parameter {
	if m.mod == 3 {
		if wide {
			return Parameter{Kind: ParamReg16, RegIndex: int(m.rm)}
		}
		return Parameter{Kind: ParamReg8, RegIndex: int(m.rm)}
	}

	amode := int(m.rm)
	switch m.mod {
	case 0:
		if m.rm == 6 {
			disp := d.fetch16()
			return Parameter{Kind: ParamPtr16, ImmValue: disp}
		}
		return Parameter{Kind: ParamPtr16Amode, Amode: amode}
	case 1:
		disp := d.fetchS8()
		return Parameter{Kind: ParamPtr16AmodeS8, Amode: amode, Disp: int16(disp)}
	case 2:
		disp := int16(d.fetch16())
		return Parameter{Kind: ParamPtr16AmodeS16, Amode: amode, Disp: disp}
	}
	return Parameter{}
}

func regParam(wide bool, idx byte) Parameter {
	if wide {
		return Parameter{Kind: ParamReg16, RegIndex: int(idx)}
	}
	return Parameter{Kind: ParamReg8, RegIndex: int(idx)}
}

// arithGroup maps the high 5 bits of opcodes 00-3D (ADD/OR/ADC/SBB/AND/
// SUB/XOR/CMP, each spanning 6 encodings) to the 8-bit-width Op.
var arithGroup8 = [8]Op{OpAdd8, OpOr8, OpAdc8, OpSbb8, OpAnd8, OpSub8, OpXor8, OpCmp8}
var arithGroup16 = [8]Op{OpAdd16, OpOr16, OpAdc16, OpSbb16, OpAnd16, OpSub16, OpXor16, OpCmp16}

// grp1Ops is the ModR/M reg-field mapping for opcodes 80-83.
var grp1Ops8 = arithGroup8
var grp1Ops16 = arithGroup16

// grp2Ops is the ModR/M reg-field mapping for shift/rotate opcodes
// C0/C1/D0-D3 (ROL/ROR/RCL/RCR/SHL/SHR/SAL=SHL/SAR).
var grp2Ops8 = [8]Op{OpRol8, OpRor8, OpRcl8, OpRcr8, OpShl8, OpShr8, OpShl8, OpSar8}
var grp2Ops16 = [8]Op{OpRol16, OpRor16, OpRcl16, OpRcr16, OpShl16, OpShr16, OpShl16, OpSar16}

func (d *Decoder) dispatch(op byte) *Instruction {
	if op < 0x40 && (op&7) < 6 && op != 0x0F {
		// ADD/OR/ADC/SBB/AND/SUB/XOR/CMP family: forms 0-5 of each of
		// the 8 groups based at 00,08,10,18,20,28,30,38. Forms 6/7 of
		// each group are segment push/pop or decimal-adjust opcodes,
		// handled below as their own cases.
		group := int(op>>3) & 7
		form := op & 7
		return d.arithForm(group, form)
	}

	switch op {
	case 0x06:
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegES}}}
	case 0x07:
		return &Instruction{Command: OpPop16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegES}}}
	case 0x0E:
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegCS}}}
	case 0x16:
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegSS}}}
	case 0x17:
		return &Instruction{Command: OpPop16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegSS}}}
	case 0x1E:
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegDS}}}
	case 0x1F:
		return &Instruction{Command: OpPop16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: SegDS}}}
	case 0x27:
		return &Instruction{Command: OpDaa}
	case 0x2F:
		return &Instruction{Command: OpDas}
	case 0x37:
		return &Instruction{Command: OpAaa}
	case 0x3F:
		return &Instruction{Command: OpAas}
	case 0x0F:
		return d.dispatch0F()
	case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65, 0x66, 0x67, 0xF0, 0xF2, 0xF3:
		// stray prefix byte immediately followed by end of stream / another
		// prefix already consumed this in the prefix loop; treat as NOP-ish
		// only if seen twice is not expected — defensively invalid.
		return d.invalid(InvalidOp)
	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47:
		return &Instruction{Command: OpInc16, Params: Params{Dst: regParam(true, op-0x40)}}
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		return &Instruction{Command: OpDec16, Params: Params{Dst: regParam(true, op-0x48)}}
	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57:
		return &Instruction{Command: OpPush16, Params: Params{Dst: regParam(true, op-0x50)}}
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		return &Instruction{Command: OpPop16, Params: Params{Dst: regParam(true, op-0x58)}}
	case 0x60:
		return &Instruction{Command: OpPusha}
	case 0x61:
		return &Instruction{Command: OpPopa}
	case 0x62:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpBound, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0x68:
		imm := d.fetch16()
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0x69:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		imm := d.fetch16()
		return &Instruction{Command: OpImul16, Params: Params{Dst: regParam(true, m.reg), Src: rm, Src2: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0x6A:
		imm := int16(d.fetchS8())
		return &Instruction{Command: OpPush16, Params: Params{Dst: Parameter{Kind: ParamImm16, ImmValue: uint16(imm)}}}
	case 0x6B:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		imm := int16(d.fetchS8())
		return &Instruction{Command: OpImul16, Params: Params{Dst: regParam(true, m.reg), Src: rm, Src2: Parameter{Kind: ParamImm16, ImmValue: uint16(imm)}}}
	case 0x6C:
		return &Instruction{Command: OpInsb}
	case 0x6D:
		return &Instruction{Command: OpInsw}
	case 0x6E:
		return &Instruction{Command: OpOutsb}
	case 0x6F:
		return &Instruction{Command: OpOutsw}
	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		return d.jccShort(op)
	case 0x80, 0x81, 0x82, 0x83:
		return d.grp1(op)
	case 0x84:
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpTest8, Params: Params{Dst: rm, Src: regParam(false, m.reg)}}
	case 0x85:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpTest16, Params: Params{Dst: rm, Src: regParam(true, m.reg)}}
	case 0x86:
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpXchg8, Params: Params{Dst: rm, Src: regParam(false, m.reg)}}
	case 0x87:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpXchg16, Params: Params{Dst: rm, Src: regParam(true, m.reg)}}
	case 0x88:
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpMov8, Params: Params{Dst: rm, Src: regParam(false, m.reg)}}
	case 0x89:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: rm, Src: regParam(true, m.reg)}}
	case 0x8A:
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpMov8, Params: Params{Dst: regParam(false, m.reg), Src: rm}}
	case 0x8B:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0x8C:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: rm, Src: Parameter{Kind: ParamSReg16, RegIndex: int(m.reg & 7)}}}
	case 0x8D:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpLea, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0x8E:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: Parameter{Kind: ParamSReg16, RegIndex: int(m.reg & 7)}, Src: rm}}
	case 0x8F:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpPop16, Params: Params{Dst: rm}}
	case 0x90:
		return &Instruction{Command: OpNop}
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97:
		return &Instruction{Command: OpXchg16, Params: Params{Dst: regParam(true, RegAX), Src: regParam(true, op-0x90)}}
	case 0x98:
		return &Instruction{Command: OpCbw}
	case 0x99:
		return &Instruction{Command: OpCwd}
	case 0x9A:
		off := d.fetch16()
		seg := d.fetch16()
		return &Instruction{Command: OpCallFar, Params: Params{Dst: Parameter{Kind: ParamPtr16Imm, ImmValue: off, FarSeg: seg}}}
	case 0x9B:
		return &Instruction{Command: OpNop} // WAIT: no FPU, treated as a no-op
	case 0x9C:
		return &Instruction{Command: OpPushf}
	case 0x9D:
		return &Instruction{Command: OpPopf}
	case 0x9E:
		return &Instruction{Command: OpSahf}
	case 0x9F:
		return &Instruction{Command: OpLahf}
	case 0xA0:
		off := d.fetch16()
		return &Instruction{Command: OpMov8, Params: Params{Dst: regParam(false, 0), Src: Parameter{Kind: ParamPtr16, ImmValue: off}}}
	case 0xA1:
		off := d.fetch16()
		return &Instruction{Command: OpMov16, Params: Params{Dst: regParam(true, RegAX), Src: Parameter{Kind: ParamPtr16, ImmValue: off}}}
	case 0xA2:
		off := d.fetch16()
		return &Instruction{Command: OpMov8, Params: Params{Dst: Parameter{Kind: ParamPtr16, ImmValue: off}, Src: regParam(false, 0)}}
	case 0xA3:
		off := d.fetch16()
		return &Instruction{Command: OpMov16, Params: Params{Dst: Parameter{Kind: ParamPtr16, ImmValue: off}, Src: regParam(true, RegAX)}}
	case 0xA4:
		return &Instruction{Command: OpMovsb}
	case 0xA5:
		return &Instruction{Command: OpMovsw}
	case 0xA6:
		return &Instruction{Command: OpCmpsb}
	case 0xA7:
		return &Instruction{Command: OpCmpsw}
	case 0xA8:
		imm := d.fetch8()
		return &Instruction{Command: OpTest8, Params: Params{Dst: regParam(false, 0), Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xA9:
		imm := d.fetch16()
		return &Instruction{Command: OpTest16, Params: Params{Dst: regParam(true, RegAX), Src: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0xAA:
		return &Instruction{Command: OpStosb}
	case 0xAB:
		return &Instruction{Command: OpStosw}
	case 0xAC:
		return &Instruction{Command: OpLodsb}
	case 0xAD:
		return &Instruction{Command: OpLodsw}
	case 0xAE:
		return &Instruction{Command: OpScasb}
	case 0xAF:
		return &Instruction{Command: OpScasw}
	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		imm := d.fetch8()
		return &Instruction{Command: OpMov8, Params: Params{Dst: regParam(false, op-0xB0), Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		imm := d.fetch16()
		return &Instruction{Command: OpMov16, Params: Params{Dst: regParam(true, op-0xB8), Src: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0xC0, 0xC1:
		return d.grp2(op, true)
	case 0xC2:
		imm := d.fetch16()
		return &Instruction{Command: OpRetImm16, Params: Params{Dst: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0xC3:
		return &Instruction{Command: OpRetn}
	case 0xC4:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpLes, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xC5:
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpLds, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xC6:
		m := d.fetchModRM()
		if m.reg != 0 {
			return d.invalid(InvalidReg)
		}
		rm := d.decodeRM(m, false)
		imm := d.fetch8()
		return &Instruction{Command: OpMov8, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xC7:
		m := d.fetchModRM()
		if m.reg != 0 {
			return d.invalid(InvalidReg)
		}
		rm := d.decodeRM(m, true)
		imm := d.fetch16()
		return &Instruction{Command: OpMov16, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0xC8:
		size := d.fetch16()
		level := d.fetch8()
		return &Instruction{Command: OpEnter, Params: Params{Dst: Parameter{Kind: ParamImm16, ImmValue: size}, Src: Parameter{Kind: ParamImm8, ImmValue: uint16(level)}}}
	case 0xC9:
		return &Instruction{Command: OpLeave}
	case 0xCA:
		imm := d.fetch16()
		return &Instruction{Command: OpRetf, Params: Params{Dst: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	case 0xCB:
		return &Instruction{Command: OpRetf}
	case 0xCC:
		return &Instruction{Command: OpInt, Params: Params{Dst: Parameter{Kind: ParamImm8, ImmValue: 3}}}
	case 0xCD:
		imm := d.fetch8()
		return &Instruction{Command: OpInt, Params: Params{Dst: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xCE:
		return &Instruction{Command: OpInto}
	case 0xCF:
		return &Instruction{Command: OpIret}
	case 0xD0, 0xD1:
		return d.grp2Shift1(op)
	case 0xD2, 0xD3:
		return d.grp2ShiftCL(op)
	case 0xD4:
		d.fetch8() // base, always 0x0A; only that encoding is defined
		return &Instruction{Command: OpAam}
	case 0xD5:
		d.fetch8()
		return &Instruction{Command: OpAad}
	case 0xD6:
		return &Instruction{Command: OpSalc}
	case 0xD7:
		return &Instruction{Command: OpXlatb}
	case 0xD8, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE, 0xDF:
		return d.invalid(InvalidFPUOp)
	case 0xE0:
		rel := d.fetchS8()
		return &Instruction{Command: OpLoopne, Params: Params{Dst: relParam(d, rel)}}
	case 0xE1:
		rel := d.fetchS8()
		return &Instruction{Command: OpLoope, Params: Params{Dst: relParam(d, rel)}}
	case 0xE2:
		rel := d.fetchS8()
		return &Instruction{Command: OpLoop, Params: Params{Dst: relParam(d, rel)}}
	case 0xE3:
		rel := d.fetchS8()
		return &Instruction{Command: OpJcxz, Params: Params{Dst: relParam(d, rel)}}
	case 0xE4:
		p := d.fetch8()
		return &Instruction{Command: OpIn8, Params: Params{Src: Parameter{Kind: ParamImm8, ImmValue: uint16(p)}}}
	case 0xE5:
		p := d.fetch8()
		return &Instruction{Command: OpIn16, Params: Params{Src: Parameter{Kind: ParamImm8, ImmValue: uint16(p)}}}
	case 0xE6:
		p := d.fetch8()
		return &Instruction{Command: OpOut8, Params: Params{Dst: Parameter{Kind: ParamImm8, ImmValue: uint16(p)}}}
	case 0xE7:
		p := d.fetch8()
		return &Instruction{Command: OpOut16, Params: Params{Dst: Parameter{Kind: ParamImm8, ImmValue: uint16(p)}}}
	case 0xE8:
		rel := int16(d.fetch16())
		return &Instruction{Command: OpCallNear, Params: Params{Dst: relParam16(d, rel)}}
	case 0xE9:
		rel := int16(d.fetch16())
		return &Instruction{Command: OpJmpNear, Params: Params{Dst: relParam16(d, rel)}}
	case 0xEA:
		off := d.fetch16()
		seg := d.fetch16()
		return &Instruction{Command: OpJmpFar, Params: Params{Dst: Parameter{Kind: ParamPtr16Imm, ImmValue: off, FarSeg: seg}}}
	case 0xEB:
		rel := d.fetchS8()
		return &Instruction{Command: OpJmpShort, Params: Params{Dst: relParam(d, rel)}}
	case 0xEC:
		return &Instruction{Command: OpIn8, Params: Params{Src: regParam(true, RegDX)}}
	case 0xED:
		return &Instruction{Command: OpIn16, Params: Params{Src: regParam(true, RegDX)}}
	case 0xEE:
		return &Instruction{Command: OpOut8, Params: Params{Dst: regParam(true, RegDX)}}
	case 0xEF:
		return &Instruction{Command: OpOut16, Params: Params{Dst: regParam(true, RegDX)}}
	case 0xF4:
		return &Instruction{Command: OpHlt}
	case 0xF5:
		return &Instruction{Command: OpCmc}
	case 0xF6:
		return d.grp3(op)
	case 0xF7:
		return d.grp3(op)
	case 0xF8:
		return &Instruction{Command: OpClc}
	case 0xF9:
		return &Instruction{Command: OpStc}
	case 0xFA:
		return &Instruction{Command: OpCli}
	case 0xFB:
		return &Instruction{Command: OpSti}
	case 0xFC:
		return &Instruction{Command: OpCld}
	case 0xFD:
		return &Instruction{Command: OpStd}
	case 0xFE:
		return d.grp4()
	case 0xFF:
		return d.grp5()
	}
	return d.invalid(InvalidOp)
}

// relParam materializes a short/near relative branch target as an
// absolute Imm16 offset within the current code segment — the decoder
// resolves PC-relative arithmetic once here rather than pushing it to
// every consumer (Executor, Encoder, Tracer all just see Imm16).
func relParam(d *Decoder, rel int8) Parameter {
	target := uint16(int32(d.cursor) + int32(rel))
	return Parameter{Kind: ParamImm16, ImmValue: target}
}

func relParam16(d *Decoder, rel int16) Parameter {
	target := uint16(int32(d.cursor) + int32(rel))
	return Parameter{Kind: ParamImm16, ImmValue: target}
}

func (d *Decoder) arithForm(group int, form byte) *Instruction {
	switch form {
	case 0: // r/m8, r8
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: arithGroup8[group], Params: Params{Dst: rm, Src: regParam(false, m.reg)}}
	case 1: // r/m16, r16
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: arithGroup16[group], Params: Params{Dst: rm, Src: regParam(true, m.reg)}}
	case 2: // r8, r/m8
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: arithGroup8[group], Params: Params{Dst: regParam(false, m.reg), Src: rm}}
	case 3: // r16, r/m16
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: arithGroup16[group], Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 4: // AL, imm8
		imm := d.fetch8()
		return &Instruction{Command: arithGroup8[group], Params: Params{Dst: regParam(false, 0), Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 5: // AX, imm16
		imm := d.fetch16()
		return &Instruction{Command: arithGroup16[group], Params: Params{Dst: regParam(true, RegAX), Src: Parameter{Kind: ParamImm16, ImmValue: imm}}}
	}
	return d.invalid(InvalidOp)
}

func (d *Decoder) grp1(op byte) *Instruction {
	m := d.fetchModRM()
	wide := op != 0x80 && op != 0x82
	rm := d.decodeRM(m, wide)
	var src Parameter
	switch op {
	case 0x80, 0x82:
		imm := d.fetch8()
		src = Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}
	case 0x81:
		imm := d.fetch16()
		src = Parameter{Kind: ParamImm16, ImmValue: imm}
	case 0x83:
		imm := int16(d.fetchS8())
		src = Parameter{Kind: ParamImm16, ImmValue: uint16(imm)}
	}
	if wide {
		return &Instruction{Command: grp1Ops16[m.reg], Params: Params{Dst: rm, Src: src}}
	}
	return &Instruction{Command: grp1Ops8[m.reg], Params: Params{Dst: rm, Src: src}}
}

func (d *Decoder) grp2(op byte, immCount bool) *Instruction {
	m := d.fetchModRM()
	wide := op&1 == 1
	rm := d.decodeRM(m, wide)
	imm := d.fetch8()
	var command Op
	if wide {
		command = grp2Ops16[m.reg]
	} else {
		command = grp2Ops8[m.reg]
	}
	return &Instruction{Command: command, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
}

func (d *Decoder) grp2Shift1(op byte) *Instruction {
	m := d.fetchModRM()
	wide := op&1 == 1
	rm := d.decodeRM(m, wide)
	var command Op
	if wide {
		command = grp2Ops16[m.reg]
	} else {
		command = grp2Ops8[m.reg]
	}
	return &Instruction{Command: command, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm8, ImmValue: 1}}}
}

func (d *Decoder) grp2ShiftCL(op byte) *Instruction {
	m := d.fetchModRM()
	wide := op&1 == 1
	rm := d.decodeRM(m, wide)
	var command Op
	if wide {
		command = grp2Ops16[m.reg]
	} else {
		command = grp2Ops8[m.reg]
	}
	return &Instruction{Command: command, Params: Params{Dst: rm, Src: regParam(false, RegCX)}}
}

// grp3Ops8/16 is the F6/F7 group's reg-field mapping: TEST=0(imm),
// NOT=2, NEG=3, MUL=4, IMUL=5, DIV=6, IDIV=7 (1 is unassigned).
var grp3Ops8 = [8]Op{OpTest8, OpInvalid, OpNot8, OpNeg8, OpMul8, OpImul8, OpDiv8, OpIdiv8}
var grp3Ops16 = [8]Op{OpTest16, OpInvalid, OpNot16, OpNeg16, OpMul16, OpImul16, OpDiv16, OpIdiv16}

func (d *Decoder) grp3(op byte) *Instruction {
	m := d.fetchModRM()
	wide := op == 0xF7
	rm := d.decodeRM(m, wide)
	if m.reg == 1 {
		return d.invalid(InvalidReg)
	}
	var command Op
	if wide {
		command = grp3Ops16[m.reg]
	} else {
		command = grp3Ops8[m.reg]
	}
	if m.reg == 0 { // TEST takes an immediate
		if wide {
			imm := d.fetch16()
			return &Instruction{Command: command, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm16, ImmValue: imm}}}
		}
		imm := d.fetch8()
		return &Instruction{Command: command, Params: Params{Dst: rm, Src: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	}
	return &Instruction{Command: command, Params: Params{Dst: rm}}
}

// grp4: FE /0 INC r/m8, /1 DEC r/m8 (2-7 unassigned).
func (d *Decoder) grp4() *Instruction {
	m := d.fetchModRM()
	rm := d.decodeRM(m, false)
	switch m.reg {
	case 0:
		return &Instruction{Command: OpInc8, Params: Params{Dst: rm}}
	case 1:
		return &Instruction{Command: OpDec8, Params: Params{Dst: rm}}
	}
	return d.invalid(InvalidReg)
}

// grp5: FF /0 INC, /1 DEC, /2 CALL r/m16, /3 CALL FAR m16:16, /4 JMP
// r/m16, /5 JMP FAR m16:16, /6 PUSH r/m16 (7 unassigned).
func (d *Decoder) grp5() *Instruction {
	m := d.fetchModRM()
	rm := d.decodeRM(m, true)
	switch m.reg {
	case 0:
		return &Instruction{Command: OpInc16, Params: Params{Dst: rm}}
	case 1:
		return &Instruction{Command: OpDec16, Params: Params{Dst: rm}}
	case 2:
		return &Instruction{Command: OpCallNear, Params: Params{Dst: rm}}
	case 3:
		return &Instruction{Command: OpCallFar, Params: Params{Dst: rm}}
	case 4:
		return &Instruction{Command: OpJmpNear, Params: Params{Dst: rm}}
	case 5:
		return &Instruction{Command: OpJmpFar, Params: Params{Dst: rm}}
	case 6:
		return &Instruction{Command: OpPush16, Params: Params{Dst: rm}}
	}
	return d.invalid(InvalidReg)
}

// dispatch0F handles the narrow slice of the 386 two-byte opcode map
// that spec.md's executor set actually names (BT, BSF, SHLD, SHRD,
// MOVZX, MOVSX); everything else under the 0F escape is unimplemented
// in this real-mode-targeted core.
func (d *Decoder) dispatch0F() *Instruction {
	op2 := d.fetch8()
	switch op2 {
	case 0xB6: // MOVZX r16, r/m8
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpMovzx, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xB7: // MOVZX r16, r/m16 — zero-extending a 16-bit source into
		// a 16-bit destination is a plain move at this core's operand
		// width (no 32-bit destination is modeled; spec Non-goal).
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xBE: // MOVSX r16, r/m8
		m := d.fetchModRM()
		rm := d.decodeRM(m, false)
		return &Instruction{Command: OpMovsx, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xBF: // MOVSX r16, r/m16 — same width-identity reasoning as B7.
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpMov16, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	case 0xA3: // BT r/m16, r16
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpBt, Params: Params{Dst: rm, Src: regParam(true, m.reg)}}
	case 0xA4: // SHLD r/m16, r16, imm8
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		imm := d.fetch8()
		return &Instruction{Command: OpShld, Params: Params{Dst: rm, Src: regParam(true, m.reg), Src2: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xAC: // SHRD r/m16, r16, imm8
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		imm := d.fetch8()
		return &Instruction{Command: OpShrd, Params: Params{Dst: rm, Src: regParam(true, m.reg), Src2: Parameter{Kind: ParamImm8, ImmValue: uint16(imm)}}}
	case 0xBC: // BSF r16, r/m16
		m := d.fetchModRM()
		rm := d.decodeRM(m, true)
		return &Instruction{Command: OpBsf, Params: Params{Dst: regParam(true, m.reg), Src: rm}}
	}
	return d.invalid(InvalidOp)
}

// jccShort maps opcodes 70-7F to their condition and decodes the
// relative byte target common to all of them.
func (d *Decoder) jccShort(op byte) *Instruction {
	rel := d.fetchS8()
	dst := relParam(d, rel)
	var command Op
	switch op {
	case 0x70:
		command = OpJo
	case 0x71:
		command = OpJno
	case 0x72:
		command = OpJc
	case 0x73:
		command = OpJnc
	case 0x74:
		command = OpJz
	case 0x75:
		command = OpJnz
	case 0x76:
		command = OpJna
	case 0x77:
		command = OpJa
	case 0x78:
		command = OpJs
	case 0x79:
		command = OpJns
	case 0x7A:
		command = OpJpe
	case 0x7B:
		command = OpJpo
	case 0x7C:
		command = OpJl
	case 0x7D:
		command = OpJnl
	case 0x7E:
		command = OpJng
	case 0x7F:
		command = OpJg
	}
	return &Instruction{Command: command, Params: Params{Dst: dst}}
}
