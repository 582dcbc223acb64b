// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "github.com/beevik/go8086/cpu"

// Encode one instruction. The stream is positioned just past the mnemonic.
// 'stmt' identifies the statement across passes for branch relaxation.
func (a *assembler) encodeInstruction(m *Mnemonic, s *tokenStream, stmt int) ([]byte, error) {
	switch m.family {
	case famMov:
		return a.encodeMov(s)
	case famALU:
		return a.encodeALU(m, s)
	case famGroup3:
		return a.encodeGroup3(m, s)
	case famIncDec:
		return a.encodeIncDec(m, s)
	case famPush:
		return a.encodePush(s)
	case famPop:
		return a.encodePop(s)
	case famJmp, famJcc:
		return a.encodeJump(m, s, stmt)
	case famLoop:
		return a.encodeLoop(m, s)
	case famCall:
		return a.encodeCall(m, s)
	case famRet:
		return a.encodeRet(m, s)
	case famInt:
		return a.encodeInt(m, s)
	default:
		return []byte{m.code}, nil
	}
}

// Parse "dst, src".
func (a *assembler) parseOperands(s *tokenStream) (dst, src operand, err error) {
	dst, err = a.parseOperand(s, "destination operand")
	if err != nil {
		return
	}
	comma, err := s.next("','")
	if err != nil {
		return
	}
	if comma.Kind != Comma {
		err = errorAt(comma, "expected ',', found '%s'", comma.Text)
		return
	}
	src, err = a.parseOperand(s, "source operand")
	return
}

// Check that a register operand and a memory operand agree in size.
func checkSizes(reg, mem operand) error {
	if mem.size != 0 && mem.size != operandSize(reg, 2) {
		return errorAt(mem.tok, "operand size mismatch")
	}
	return nil
}

// Return true if an operand is a general register.
func isReg(o operand) bool {
	return o.kind == opReg16 || o.kind == opReg8
}

// mov
func (a *assembler) encodeMov(s *tokenStream) ([]byte, error) {
	dst, src, err := a.parseOperands(s)
	if err != nil {
		return nil, err
	}

	switch {
	case isReg(dst) && isReg(src):
		if dst.kind != src.kind {
			return nil, errorAt(src.tok, "operand size mismatch")
		}
		if dst.kind == opReg16 {
			return []byte{0x8b, 0xc0 | dst.reg<<3 | src.reg}, nil
		}
		return []byte{0x8a, 0xc0 | dst.reg<<3 | src.reg}, nil

	case isReg(dst) && src.kind == opImm:
		size := operandSize(dst, 2)
		imm, err := a.immediate(src, size)
		if err != nil {
			return nil, err
		}
		if size == 1 {
			return append([]byte{0xb0 + dst.reg}, imm...), nil
		}
		return append([]byte{0xb8 + dst.reg}, imm...), nil

	case isReg(dst) && src.kind == opMem:
		if err := checkSizes(dst, src); err != nil {
			return nil, err
		}
		op := byte(0x8b)
		if dst.kind == opReg8 {
			op = 0x8a
		}
		return append([]byte{op}, modRM(dst.reg, src)...), nil

	case dst.kind == opMem && isReg(src):
		if err := checkSizes(src, dst); err != nil {
			return nil, err
		}
		op := byte(0x89)
		if src.kind == opReg8 {
			op = 0x88
		}
		return append([]byte{op}, modRM(src.reg, dst)...), nil

	case dst.kind == opMem && src.kind == opImm:
		size := operandSize(dst, 2)
		imm, err := a.immediate(src, size)
		if err != nil {
			return nil, err
		}
		op := byte(0xc7)
		if size == 1 {
			op = 0xc6
		}
		return append(append([]byte{op}, modRM(0, dst)...), imm...), nil

	case dst.kind == opSeg && (src.kind == opReg16 || src.kind == opMem):
		if cpu.SegReg(dst.reg) == cpu.CS {
			return nil, errorAt(dst.tok, "cannot move into CS")
		}
		if src.kind == opMem && src.size == 1 {
			return nil, errorAt(src.tok, "operand size mismatch")
		}
		return append([]byte{0x8e}, modRM(dst.reg, src)...), nil

	case src.kind == opSeg && (dst.kind == opReg16 || dst.kind == opMem):
		if dst.kind == opMem && dst.size == 1 {
			return nil, errorAt(dst.tok, "operand size mismatch")
		}
		return append([]byte{0x8c}, modRM(src.reg, dst)...), nil

	case dst.kind == opImm:
		return nil, errorAt(dst.tok, "destination cannot be an immediate value")

	default:
		return nil, errorAt(src.tok, "invalid operand combination")
	}
}

// add, or, adc, sbb, and, sub, xor, cmp
func (a *assembler) encodeALU(m *Mnemonic, s *tokenStream) ([]byte, error) {
	dst, src, err := a.parseOperands(s)
	if err != nil {
		return nil, err
	}
	base := m.code << 3

	switch {
	case isReg(dst) && isReg(src):
		if dst.kind != src.kind {
			return nil, errorAt(src.tok, "operand size mismatch")
		}
		op := base | 3
		if dst.kind == opReg8 {
			op = base | 2
		}
		return []byte{op, 0xc0 | dst.reg<<3 | src.reg}, nil

	case isReg(dst) && src.kind == opMem:
		if err := checkSizes(dst, src); err != nil {
			return nil, err
		}
		op := base | 3
		if dst.kind == opReg8 {
			op = base | 2
		}
		return append([]byte{op}, modRM(dst.reg, src)...), nil

	case dst.kind == opMem && isReg(src):
		if err := checkSizes(src, dst); err != nil {
			return nil, err
		}
		op := base | 1
		if src.kind == opReg8 {
			op = base
		}
		return append([]byte{op}, modRM(src.reg, dst)...), nil

	case (isReg(dst) || dst.kind == opMem) && src.kind == opImm:
		size := operandSize(dst, 2)
		if size == 1 {
			imm, err := a.immediate(src, 1)
			if err != nil {
				return nil, err
			}
			return append(append([]byte{0x80}, modRM(m.code, dst)...), imm...), nil
		}

		// Literal word immediates that fit a signed byte use the
		// sign-extended form. Label values always take a full word so
		// the instruction size never depends on label resolution.
		if !src.symbolic && src.value >= -0x80 && src.value <= 0x7f {
			return append(append([]byte{0x83}, modRM(m.code, dst)...), byte(src.value)), nil
		}
		imm, err := a.immediate(src, 2)
		if err != nil {
			return nil, err
		}
		return append(append([]byte{0x81}, modRM(m.code, dst)...), imm...), nil

	case dst.kind == opImm:
		return nil, errorAt(dst.tok, "destination cannot be an immediate value")

	default:
		return nil, errorAt(src.tok, "invalid operand combination")
	}
}

// Parse the single register or memory operand of a group instruction.
func (a *assembler) parseRM(s *tokenStream) (operand, error) {
	o, err := a.parseOperand(s, "operand")
	if err != nil {
		return o, err
	}
	if !isReg(o) && o.kind != opMem {
		return o, errorAt(o.tok, "expected a register or memory operand, found '%s'", o.tok.Text)
	}
	return o, nil
}

// not, neg, mul, imul, div, idiv
func (a *assembler) encodeGroup3(m *Mnemonic, s *tokenStream) ([]byte, error) {
	o, err := a.parseRM(s)
	if err != nil {
		return nil, err
	}
	op := byte(0xf7)
	if operandSize(o, 2) == 1 {
		op = 0xf6
	}
	return append([]byte{op}, modRM(m.code, o)...), nil
}

// inc, dec
func (a *assembler) encodeIncDec(m *Mnemonic, s *tokenStream) ([]byte, error) {
	o, err := a.parseRM(s)
	if err != nil {
		return nil, err
	}
	switch {
	case o.kind == opReg16:
		return []byte{0x40 | m.code<<3 | o.reg}, nil
	case operandSize(o, 2) == 1:
		return append([]byte{0xfe}, modRM(m.code, o)...), nil
	default:
		return append([]byte{0xff}, modRM(m.code, o)...), nil
	}
}

// push
func (a *assembler) encodePush(s *tokenStream) ([]byte, error) {
	o, err := a.parseOperand(s, "operand")
	if err != nil {
		return nil, err
	}
	switch {
	case o.kind == opReg16:
		return []byte{0x50 + o.reg}, nil
	case o.kind == opSeg:
		return []byte{0x06 | o.reg<<3}, nil
	case o.kind == opMem && o.size != 1:
		return append([]byte{0xff}, modRM(6, o)...), nil
	default:
		return nil, errorAt(o.tok, "push requires a 16-bit register or memory operand")
	}
}

// pop
func (a *assembler) encodePop(s *tokenStream) ([]byte, error) {
	o, err := a.parseOperand(s, "operand")
	if err != nil {
		return nil, err
	}
	switch {
	case o.kind == opReg16:
		return []byte{0x58 + o.reg}, nil
	case o.kind == opSeg && cpu.SegReg(o.reg) == cpu.CS:
		return nil, errorAt(o.tok, "cannot pop into CS")
	case o.kind == opSeg:
		return []byte{0x07 | o.reg<<3}, nil
	case o.kind == opMem && o.size != 1:
		return append([]byte{0x8f}, modRM(0, o)...), nil
	default:
		return nil, errorAt(o.tok, "pop requires a 16-bit register or memory operand")
	}
}

// Parse the target of a relative jump or call.
func (a *assembler) parseTarget(s *tokenStream) (value, *Token, error) {
	t := s.peek()
	if t == nil {
		return value{}, nil, s.missing("expected jump target")
	}
	v, err := a.parseValue(s, "jump target")
	return v, t, err
}

// jmp and conditional jumps. A target within a signed byte of the end of
// the 2-byte short form is encoded short. Otherwise jmp becomes E9 rel16,
// and a conditional jump becomes the inverted condition skipping over an
// E9 rel16. Once a statement is found out of range it stays near in all
// later passes, so sizes only grow and relaxation terminates.
func (a *assembler) encodeJump(m *Mnemonic, s *tokenStream, stmt int) ([]byte, error) {
	if m.family == famJmp {
		if t := s.peek(); t != nil && (t.Kind == Register16 || t.Kind == LBracket || t.Kind == SizeMarker) {
			o, err := a.parseRM(s)
			if err != nil {
				return nil, err
			}
			if operandSize(o, 2) != 2 {
				return nil, errorAt(o.tok, "jump target must be a 16-bit operand")
			}
			return append([]byte{0xff}, modRM(4, o)...), nil
		}
	}

	target, _, err := a.parseTarget(s)
	if err != nil {
		return nil, err
	}
	return a.relativeJump(m, target, stmt), nil
}

// Encode a relative jump to 'target' from the current address. Targets not
// yet resolved are sized short until a later pass locates them.
func (a *assembler) relativeJump(m *Mnemonic, v value, stmt int) []byte {
	target := v.n
	if !a.near[stmt] && !v.unknown {
		if _, err := relOffset(target, a.pc+2); err != nil {
			a.near[stmt] = true
			a.grew = true
		}
	}

	if !a.near[stmt] {
		offset, _ := relOffset(target, a.pc+2)
		if m.family == famJmp {
			return []byte{0xeb, offset}
		}
		return []byte{0x70 | m.code, offset}
	}

	if m.family == famJmp {
		return append([]byte{0xe9}, toBytes(2, target-(a.pc+3))...)
	}
	return append([]byte{(0x70 | m.code) ^ 1, 0x03, 0xe9}, toBytes(2, target-(a.pc+5))...)
}

// loop
func (a *assembler) encodeLoop(m *Mnemonic, s *tokenStream) ([]byte, error) {
	target, t, err := a.parseTarget(s)
	if err != nil {
		return nil, err
	}
	offset, err := relOffset(target.n, a.pc+2)
	if err != nil && a.final {
		return nil, errorAt(t, "loop target out of range")
	}
	return []byte{m.code, offset}, nil
}

// call
func (a *assembler) encodeCall(m *Mnemonic, s *tokenStream) ([]byte, error) {
	if t := s.peek(); t != nil && (t.Kind == Register16 || t.Kind == LBracket || t.Kind == SizeMarker) {
		o, err := a.parseRM(s)
		if err != nil {
			return nil, err
		}
		if operandSize(o, 2) != 2 {
			return nil, errorAt(o.tok, "call target must be a 16-bit operand")
		}
		return append([]byte{0xff}, modRM(2, o)...), nil
	}

	target, _, err := a.parseTarget(s)
	if err != nil {
		return nil, err
	}
	return append([]byte{m.code}, toBytes(2, target.n-(a.pc+3))...), nil
}

// ret, with an optional count of stack bytes to release
func (a *assembler) encodeRet(m *Mnemonic, s *tokenStream) ([]byte, error) {
	if s.done() {
		return []byte{m.code}, nil
	}
	o, err := a.parseOperand(s, "operand")
	if err != nil {
		return nil, err
	}
	imm, err := a.immediate(o, 2)
	if err != nil {
		return nil, err
	}
	return append([]byte{0xc2}, imm...), nil
}

// int
func (a *assembler) encodeInt(m *Mnemonic, s *tokenStream) ([]byte, error) {
	o, err := a.parseOperand(s, "interrupt vector")
	if err != nil {
		return nil, err
	}
	if o.kind != opImm {
		return nil, errorAt(o.tok, "expected an interrupt vector, found '%s'", o.tok.Text)
	}
	if err := a.checkRange(o.tok, o.value, 0, 0xff); err != nil {
		return nil, err
	}
	return []byte{m.code, byte(o.value)}, nil
}
