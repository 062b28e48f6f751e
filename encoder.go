// encoder.go - Instruction record -> byte stream, the weak left inverse
// of the Decoder: Decode(Encode(i, seg, off), seg, off) reproduces an
// instruction with the same Command and equivalent operands, though not
// necessarily byte-identical to whatever was originally decoded (several
// opcode forms decode to the same Instruction; the encoder just has to
// pick one of them). Exists to drive the external fuzz harness, which is
// itself out of scope here.
//
// Reg-field mappings are grounded on dustbox's cpu::op f6_index/feff_index
// tables, mirrored here as grp3EncIndex/grp4Index/grp5Index.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

import "fmt"

// Encoder is stateless; Encode takes the seg:offset the instruction
// will occupy so relative branch targets can be re-derived from the
// decoder's resolved absolute Imm16 destination.
type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }

func isMemParam(p Parameter) bool {
	switch p.Kind {
	case ParamPtr16Amode, ParamPtr16AmodeS8, ParamPtr16AmodeS16, ParamPtr16:
		return true
	}
	return false
}

func isRM(p Parameter, wide bool) bool {
	if wide {
		return p.Kind == ParamReg16 || isMemParam(p)
	}
	return p.Kind == ParamReg8 || isMemParam(p)
}

// modRMBytes returns the mod/rm encoding (and trailing displacement
// bytes) for an operand that decodeRM could have produced.
func modRMBytes(reg byte, p Parameter) ([]byte, error) {
	var mod, rm byte
	var extra []byte
	switch p.Kind {
	case ParamReg8, ParamReg16:
		mod = 3
		rm = byte(p.RegIndex)
	case ParamPtr16Amode:
		mod = 0
		rm = byte(p.Amode)
	case ParamPtr16AmodeS8:
		mod = 1
		rm = byte(p.Amode)
		extra = []byte{byte(p.Disp)}
	case ParamPtr16AmodeS16:
		mod = 2
		rm = byte(p.Amode)
		extra = []byte{byte(p.Disp), byte(p.Disp >> 8)}
	case ParamPtr16:
		mod = 0
		rm = 6
		extra = []byte{byte(p.ImmValue), byte(p.ImmValue >> 8)}
	default:
		return nil, fmt.Errorf("encoder: operand kind %d has no ModR/M form", p.Kind)
	}
	out := make([]byte, 0, 1+len(extra))
	out = append(out, (mod<<6)|(reg<<3)|rm)
	out = append(out, extra...)
	return out, nil
}

var arithGroupIndex = map[Op]byte{
	OpAdd8: 0, OpAdd16: 0, OpOr8: 1, OpOr16: 1, OpAdc8: 2, OpAdc16: 2,
	OpSbb8: 3, OpSbb16: 3, OpAnd8: 4, OpAnd16: 4, OpSub8: 5, OpSub16: 5,
	OpXor8: 6, OpXor16: 6, OpCmp8: 7, OpCmp16: 7,
}

var grp2Index = map[Op]byte{
	OpRol8: 0, OpRol16: 0, OpRor8: 1, OpRor16: 1, OpRcl8: 2, OpRcl16: 2,
	OpRcr8: 3, OpRcr16: 3, OpShl8: 4, OpShl16: 4, OpShr8: 5, OpShr16: 5,
	OpSar8: 7, OpSar16: 7,
}

// grp3EncIndex mirrors dustbox's f6_index: TEST=0, NOT=2, NEG=3, MUL=4,
// IMUL=5, DIV=6, IDIV=7 (1 has no assigned meaning).
var grp3EncIndex = map[Op]byte{
	OpTest8: 0, OpTest16: 0, OpNot8: 2, OpNot16: 2, OpNeg8: 3, OpNeg16: 3,
	OpMul8: 4, OpMul16: 4, OpImul8: 5, OpImul16: 5, OpDiv8: 6, OpDiv16: 6,
	OpIdiv8: 7, OpIdiv16: 7,
}

// grp4/5 mirror dustbox's feff_index: INC=0, DEC=1, CallNear=2,
// CallFar=3, JmpNear=4, JmpFar=5, Push16=6.
var grp4Index = map[Op]byte{OpInc8: 0, OpDec8: 1}
var grp5Index = map[Op]byte{
	OpInc16: 0, OpDec16: 1, OpCallNear: 2, OpCallFar: 3,
	OpJmpNear: 4, OpJmpFar: 5, OpPush16: 6,
}

var jccOpcode = map[Op]byte{
	OpJo: 0x70, OpJno: 0x71, OpJc: 0x72, OpJnc: 0x73, OpJz: 0x74, OpJnz: 0x75,
	OpJna: 0x76, OpJa: 0x77, OpJs: 0x78, OpJns: 0x79, OpJpe: 0x7A, OpJpo: 0x7B,
	OpJl: 0x7C, OpJnl: 0x7D, OpJng: 0x7E, OpJg: 0x7F,
}

// Encode produces a byte sequence for ii, assuming it will be placed
// at segment:offset (needed to re-derive relative branch displacements
// from the decoder's resolved absolute targets).
func (enc *Encoder) Encode(ii *Instruction, segment, offset uint16) ([]byte, error) {
	var out []byte
	if ii.SegPrefix >= 0 {
		out = append(out, segOverridePrefix[ii.SegPrefix])
	}
	switch ii.Repeat {
	case RepeatREP, RepeatREPE:
		out = append(out, 0xF3)
	case RepeatREPNE:
		out = append(out, 0xF2)
	}
	if ii.Lock {
		out = append(out, 0xF0)
	}

	body, err := enc.encodeBody(ii, offset+uint16(len(out)))
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

var segOverridePrefix = [6]byte{0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65}

func (enc *Encoder) encodeBody(ii *Instruction, bodyStart uint16) ([]byte, error) {
	d, s := ii.Params.Dst, ii.Params.Src

	if group, ok := arithGroupIndex[ii.Command]; ok {
		return encodeArith(ii.Command, group, d, s)
	}

	switch ii.Command {
	case OpMov8:
		if d.Kind == ParamReg8 && s.Kind != ParamReg8 && !isMemParam(s) {
			return []byte{0xB0 + byte(d.RegIndex), byte(s.ImmValue)}, nil
		}
		if isRM(d, false) && s.Kind == ParamReg8 {
			mrm, err := modRMBytes(byte(s.RegIndex), d)
			return append([]byte{0x88}, mrm...), err
		}
		mrm, err := modRMBytes(byte(d.RegIndex), s)
		return append([]byte{0x8A}, mrm...), err
	case OpMov16:
		if d.Kind == ParamSReg16 {
			mrm, err := modRMBytes(byte(d.RegIndex), s)
			return append([]byte{0x8E}, mrm...), err
		}
		if s.Kind == ParamSReg16 {
			mrm, err := modRMBytes(byte(s.RegIndex), d)
			return append([]byte{0x8C}, mrm...), err
		}
		if d.Kind == ParamReg16 && s.Kind != ParamReg16 && !isMemParam(s) {
			return []byte{0xB8 + byte(d.RegIndex), byte(s.ImmValue), byte(s.ImmValue >> 8)}, nil
		}
		if isRM(d, true) && s.Kind == ParamReg16 {
			mrm, err := modRMBytes(byte(s.RegIndex), d)
			return append([]byte{0x89}, mrm...), err
		}
		mrm, err := modRMBytes(byte(d.RegIndex), s)
		return append([]byte{0x8B}, mrm...), err

	case OpPush16:
		if d.Kind == ParamReg16 {
			return []byte{0x50 + byte(d.RegIndex)}, nil
		}
		mrm, err := modRMBytes(6, d)
		return append([]byte{0xFF}, mrm...), err
	case OpPop16:
		if d.Kind == ParamReg16 {
			return []byte{0x58 + byte(d.RegIndex)}, nil
		}
		mrm, err := modRMBytes(0, d)
		return append([]byte{0x8F}, mrm...), err
	case OpPusha:
		return []byte{0x60}, nil
	case OpPopa:
		return []byte{0x61}, nil
	case OpPushf:
		return []byte{0x9C}, nil
	case OpPopf:
		return []byte{0x9D}, nil

	case OpInc8, OpDec8:
		reg := grp4Index[ii.Command]
		mrm, err := modRMBytes(reg, d)
		return append([]byte{0xFE}, mrm...), err
	case OpInc16:
		if d.Kind == ParamReg16 {
			return []byte{0x40 + byte(d.RegIndex)}, nil
		}
		mrm, err := modRMBytes(0, d)
		return append([]byte{0xFF}, mrm...), err
	case OpDec16:
		if d.Kind == ParamReg16 {
			return []byte{0x48 + byte(d.RegIndex)}, nil
		}
		mrm, err := modRMBytes(1, d)
		return append([]byte{0xFF}, mrm...), err

	case OpNeg8, OpNot8, OpMul8, OpImul8, OpDiv8, OpIdiv8:
		mrm, err := modRMBytes(grp3EncIndex[ii.Command], d)
		return append([]byte{0xF6}, mrm...), err
	case OpNeg16, OpNot16, OpMul16, OpDiv16, OpIdiv16:
		mrm, err := modRMBytes(grp3EncIndex[ii.Command], d)
		return append([]byte{0xF7}, mrm...), err
	case OpImul16:
		if s.Kind != ParamNone && ii.Params.Src2.Kind != ParamNone {
			mrm, err := modRMBytes(byte(d.RegIndex), s)
			if err != nil {
				return nil, err
			}
			out := append([]byte{0x69}, mrm...)
			return append(out, byte(ii.Params.Src2.ImmValue), byte(ii.Params.Src2.ImmValue>>8)), nil
		}
		mrm, err := modRMBytes(grp3EncIndex[ii.Command], d)
		return append([]byte{0xF7}, mrm...), err
	case OpTest8:
		if s.Kind == ParamImm8 {
			mrm, err := modRMBytes(0, d)
			return append(append([]byte{0xF6}, mrm...), byte(s.ImmValue)), err
		}
		mrm, err := modRMBytes(byte(s.RegIndex), d)
		return append([]byte{0x84}, mrm...), err
	case OpTest16:
		if s.Kind == ParamImm16 {
			mrm, err := modRMBytes(0, d)
			return append(append([]byte{0xF7}, mrm...), byte(s.ImmValue), byte(s.ImmValue>>8)), err
		}
		mrm, err := modRMBytes(byte(s.RegIndex), d)
		return append([]byte{0x85}, mrm...), err

	case OpRol8, OpRor8, OpRcl8, OpRcr8, OpShl8, OpShr8, OpSar8:
		return encodeShift(d, s, grp2Index[ii.Command], false)
	case OpRol16, OpRor16, OpRcl16, OpRcr16, OpShl16, OpShr16, OpSar16:
		return encodeShift(d, s, grp2Index[ii.Command], true)

	case OpXchg8:
		mrm, err := modRMBytes(byte(s.RegIndex), d)
		return append([]byte{0x86}, mrm...), err
	case OpXchg16:
		if d.Kind == ParamReg16 && d.RegIndex == RegAX {
			return []byte{0x90 + byte(s.RegIndex)}, nil
		}
		mrm, err := modRMBytes(byte(s.RegIndex), d)
		return append([]byte{0x87}, mrm...), err
	case OpLea:
		mrm, err := modRMBytes(byte(d.RegIndex), s)
		return append([]byte{0x8D}, mrm...), err

	case OpNop:
		return []byte{0x90}, nil
	case OpHlt:
		return []byte{0xF4}, nil
	case OpClc:
		return []byte{0xF8}, nil
	case OpStc:
		return []byte{0xF9}, nil
	case OpCli:
		return []byte{0xFA}, nil
	case OpSti:
		return []byte{0xFB}, nil
	case OpCld:
		return []byte{0xFC}, nil
	case OpStd:
		return []byte{0xFD}, nil
	case OpCmc:
		return []byte{0xF5}, nil
	case OpCbw:
		return []byte{0x98}, nil
	case OpCwd:
		return []byte{0x99}, nil
	case OpSahf:
		return []byte{0x9E}, nil
	case OpLahf:
		return []byte{0x9F}, nil
	case OpAaa:
		return []byte{0x37}, nil
	case OpAas:
		return []byte{0x3F}, nil
	case OpDaa:
		return []byte{0x27}, nil
	case OpDas:
		return []byte{0x2F}, nil
	case OpAam:
		return []byte{0xD4, 0x0A}, nil
	case OpAad:
		return []byte{0xD5, 0x0A}, nil
	case OpSalc:
		return []byte{0xD6}, nil
	case OpXlatb:
		return []byte{0xD7}, nil
	case OpRetn:
		return []byte{0xC3}, nil
	case OpRetImm16:
		return []byte{0xC2, byte(d.ImmValue), byte(d.ImmValue >> 8)}, nil
	case OpRetf:
		return []byte{0xCB}, nil
	case OpIret:
		return []byte{0xCF}, nil
	case OpInto:
		return []byte{0xCE}, nil
	case OpInt:
		if d.ImmValue == 3 {
			return []byte{0xCC}, nil
		}
		return []byte{0xCD, byte(d.ImmValue)}, nil

	case OpMovsb:
		return []byte{0xA4}, nil
	case OpMovsw:
		return []byte{0xA5}, nil
	case OpCmpsb:
		return []byte{0xA6}, nil
	case OpCmpsw:
		return []byte{0xA7}, nil
	case OpStosb:
		return []byte{0xAA}, nil
	case OpStosw:
		return []byte{0xAB}, nil
	case OpLodsb:
		return []byte{0xAC}, nil
	case OpLodsw:
		return []byte{0xAD}, nil
	case OpScasb:
		return []byte{0xAE}, nil
	case OpScasw:
		return []byte{0xAF}, nil
	case OpInsb:
		return []byte{0x6C}, nil
	case OpInsw:
		return []byte{0x6D}, nil
	case OpOutsb:
		return []byte{0x6E}, nil
	case OpOutsw:
		return []byte{0x6F}, nil

	case OpIn8:
		return encodePort(0xE4, 0xEC, s)
	case OpIn16:
		return encodePort(0xE5, 0xED, s)
	case OpOut8:
		return encodePortOut(0xE6, 0xEE, d)
	case OpOut16:
		return encodePortOut(0xE7, 0xEF, d)

	case OpJmpShort:
		return encodeRel8(0xEB, bodyStart, d)
	case OpJmpNear:
		return encodeRel16(0xE9, bodyStart, d)
	case OpCallNear:
		return encodeRel16(0xE8, bodyStart, d)
	case OpLoop:
		return encodeRel8(0xE2, bodyStart, d)
	case OpLoope:
		return encodeRel8(0xE1, bodyStart, d)
	case OpLoopne:
		return encodeRel8(0xE0, bodyStart, d)
	case OpJcxz:
		return encodeRel8(0xE3, bodyStart, d)
	case OpJmpFar:
		if d.Kind == ParamPtr16Imm {
			return []byte{0xEA, byte(d.ImmValue), byte(d.ImmValue >> 8), byte(d.FarSeg), byte(d.FarSeg >> 8)}, nil
		}
		mrm, err := modRMBytes(5, d)
		return append([]byte{0xFF}, mrm...), err
	case OpCallFar:
		if d.Kind == ParamPtr16Imm {
			return []byte{0x9A, byte(d.ImmValue), byte(d.ImmValue >> 8), byte(d.FarSeg), byte(d.FarSeg >> 8)}, nil
		}
		mrm, err := modRMBytes(3, d)
		return append([]byte{0xFF}, mrm...), err

	default:
		if opcode, ok := jccOpcode[ii.Command]; ok {
			return encodeRel8(opcode, bodyStart, d)
		}
	}
	return nil, fmt.Errorf("encoder: no encoding for %s", opNames[ii.Command])
}

func encodeArith(op Op, group byte, d, s Parameter) ([]byte, error) {
	base := group * 8
	wide := op == arithGroup16Lookup(op)
	if !wide {
		if d.Kind == ParamReg8 && d.RegIndex == 0 && !isMemParam(s) && s.Kind != ParamReg8 {
			return []byte{base + 4, byte(s.ImmValue)}, nil
		}
		if isRM(d, false) && s.Kind == ParamReg8 {
			mrm, err := modRMBytes(byte(s.RegIndex), d)
			return append([]byte{base + 0}, mrm...), err
		}
		if d.Kind == ParamReg8 && isRM(s, false) {
			mrm, err := modRMBytes(byte(d.RegIndex), s)
			return append([]byte{base + 2}, mrm...), err
		}
	} else {
		if d.Kind == ParamReg16 && d.RegIndex == RegAX && !isMemParam(s) && s.Kind != ParamReg16 {
			return []byte{base + 5, byte(s.ImmValue), byte(s.ImmValue >> 8)}, nil
		}
		if isRM(d, true) && s.Kind == ParamReg16 {
			mrm, err := modRMBytes(byte(s.RegIndex), d)
			return append([]byte{base + 1}, mrm...), err
		}
		if d.Kind == ParamReg16 && isRM(s, true) {
			mrm, err := modRMBytes(byte(d.RegIndex), s)
			return append([]byte{base + 3}, mrm...), err
		}
	}
	// fall back to the Grp1 immediate-to-r/m encoding (0x81/0x83).
	if !isMemParam(s) && s.Kind != ParamReg8 && s.Kind != ParamReg16 {
		if wide {
			mrm, err := modRMBytes(group, d)
			if err != nil {
				return nil, err
			}
			return append(append([]byte{0x81}, mrm...), byte(s.ImmValue), byte(s.ImmValue>>8)), nil
		}
		mrm, err := modRMBytes(group, d)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x80}, append(mrm, byte(s.ImmValue))...), nil
	}
	return nil, fmt.Errorf("encoder: arith op has no matching operand form")
}

// arithGroup16Lookup returns op itself if it is the 16-bit half of an
// arithmetic-group pair, else OpUninitialized (used only to pick the
// operand width).
func arithGroup16Lookup(op Op) Op {
	switch op {
	case OpAdd16, OpOr16, OpAdc16, OpSbb16, OpAnd16, OpSub16, OpXor16, OpCmp16:
		return op
	}
	return OpUninitialized
}


func encodeShift(d, s Parameter, reg byte, wide bool) ([]byte, error) {
	opBase := byte(0xD0)
	if wide {
		opBase = 0xD1
	}
	if s.Kind == ParamImm8 && s.ImmValue == 1 {
		mrm, err := modRMBytes(reg, d)
		return append([]byte{opBase}, mrm...), err
	}
	if s.Kind == ParamReg8 && s.RegIndex == 1 { // CL
		opBase = 0xD2
		if wide {
			opBase = 0xD3
		}
		mrm, err := modRMBytes(reg, d)
		return append([]byte{opBase}, mrm...), err
	}
	opBase = 0xC0
	if wide {
		opBase = 0xC1
	}
	mrm, err := modRMBytes(reg, d)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{opBase}, mrm...), byte(s.ImmValue)), nil
}

func encodePort(immOp, dxOp byte, s Parameter) ([]byte, error) {
	if s.Kind == ParamImm8 {
		return []byte{immOp, byte(s.ImmValue)}, nil
	}
	return []byte{dxOp}, nil
}

func encodePortOut(immOp, dxOp byte, d Parameter) ([]byte, error) {
	if d.Kind == ParamImm8 {
		return []byte{immOp, byte(d.ImmValue)}, nil
	}
	return []byte{dxOp}, nil
}

func encodeRel8(opcode byte, bodyStart uint16, target Parameter) ([]byte, error) {
	end := bodyStart + 2
	rel := int16(target.ImmValue) - int16(end)
	if rel > 127 || rel < -128 {
		return nil, fmt.Errorf("encoder: rel8 target out of range")
	}
	return []byte{opcode, byte(int8(rel))}, nil
}

func encodeRel16(opcode byte, bodyStart uint16, target Parameter) ([]byte, error) {
	end := bodyStart + 3
	rel := target.ImmValue - end
	return []byte{opcode, byte(rel), byte(rel >> 8)}, nil
}
