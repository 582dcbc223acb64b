// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "github.com/beevik/go8086/cpu"

type operandKind byte

const (
	opReg16 operandKind = iota
	opReg8
	opSeg
	opImm
	opMem
)

// An operand is one parsed instruction operand.
type operand struct {
	kind     operandKind
	tok      *Token // first token of the operand
	reg      byte   // register index (register operands)
	value    int    // immediate value or memory displacement
	symbolic bool   // value depends on a label address
	size     int    // memory: 1 or 2 when a size marker was given
	base     bool   // memory: has base and/or index registers
	rm       byte   // memory: ModRM rm field
}

// A value is the result of evaluating an operand value expression.
type value struct {
	n        int
	symbolic bool // depends on a label address
	unknown  bool // depends on a label not yet assigned an address
}

// Parse one operand: a register, an immediate value, or a memory reference
// optionally preceded by a size marker.
func (a *assembler) parseOperand(s *tokenStream, what string) (operand, error) {
	t := s.peek()
	if t == nil {
		return operand{}, s.missing("expected %s", what)
	}

	switch t.Kind {
	case Register16:
		s.pos++
		return operand{kind: opReg16, tok: t, reg: byte(t.Value)}, nil
	case Register8:
		s.pos++
		return operand{kind: opReg8, tok: t, reg: byte(t.Value)}, nil
	case SegmentRegister:
		s.pos++
		return operand{kind: opSeg, tok: t, reg: byte(t.Value)}, nil
	case SizeMarker:
		s.pos++
		if p := s.peek(); p == nil || p.Kind != LBracket {
			if p == nil {
				return operand{}, s.missing("expected memory operand after '%s'", t.Text)
			}
			return operand{}, errorAt(p, "size marker '%s' must precede a memory operand", t.Text)
		}
		o, err := a.parseMemory(s)
		o.tok, o.size = t, t.Value
		return o, err
	case LBracket:
		return a.parseMemory(s)
	default:
		v, err := a.parseValue(s, what)
		return operand{kind: opImm, tok: t, value: v.n, symbolic: v.symbolic}, err
	}
}

// Parse a bracketed memory reference: any sum of one base register (bx or
// bp), one index register (si or di), and displacement values.
func (a *assembler) parseMemory(s *tokenStream) (operand, error) {
	open, _ := s.accept(LBracket)
	o := operand{kind: opMem, tok: open}

	var baseReg, indexReg *Token
	var disp value
	for first := true; ; first = false {
		sign := 1
		if !first {
			t, err := s.next("']'")
			if err != nil {
				return o, err
			}
			switch t.Kind {
			case RBracket:
				return a.finishMemory(o, baseReg, indexReg, disp)
			case Plus:
			case Minus:
				sign = -1
			default:
				return o, errorAt(t, "expected '+', '-' or ']', found '%s'", t.Text)
			}
		}

		t := s.peek()
		if t == nil {
			return o, s.missing("expected address")
		}
		if t.Kind == Register16 {
			s.pos++
			if sign < 0 {
				return o, errorAt(t, "register '%s' cannot be subtracted", t.Text)
			}
			switch cpu.Reg16(t.Value) {
			case cpu.BX, cpu.BP:
				if baseReg != nil {
					return o, errorAt(t, "more than one base register")
				}
				baseReg = t
			case cpu.SI, cpu.DI:
				if indexReg != nil {
					return o, errorAt(t, "more than one index register")
				}
				indexReg = t
			default:
				return o, errorAt(t, "'%s' cannot be used as a base or index register", t.Text)
			}
			continue
		}
		if t.Kind == Register8 || t.Kind == SegmentRegister {
			return o, errorAt(t, "'%s' cannot be used as a base or index register", t.Text)
		}

		v, err := a.parseTerm(s, "address")
		if err != nil {
			return o, err
		}
		disp.n += sign * v.n
		disp.symbolic = disp.symbolic || v.symbolic
	}
}

// Select the rm encoding for a memory operand's registers.
func (a *assembler) finishMemory(o operand, baseReg, indexReg *Token, disp value) (operand, error) {
	o.value, o.symbolic = disp.n, disp.symbolic
	o.base = baseReg != nil || indexReg != nil

	var base, index cpu.Reg16 = 0xff, 0xff
	if baseReg != nil {
		base = cpu.Reg16(baseReg.Value)
	}
	if indexReg != nil {
		index = cpu.Reg16(indexReg.Value)
	}

	switch {
	case base == cpu.BX && index == cpu.SI:
		o.rm = 0
	case base == cpu.BX && index == cpu.DI:
		o.rm = 1
	case base == cpu.BP && index == cpu.SI:
		o.rm = 2
	case base == cpu.BP && index == cpu.DI:
		o.rm = 3
	case index == cpu.SI:
		o.rm = 4
	case index == cpu.DI:
		o.rm = 5
	case base == cpu.BP:
		o.rm = 6
	case base == cpu.BX:
		o.rm = 7
	default:
		o.rm = 6 // direct address
	}
	return o, a.checkRange(o.tok, o.value, -0x8000, 0xffff)
}

// Parse a value expression: a sum of terms separated by '+' or '-', with
// an optional leading '-'.
func (a *assembler) parseValue(s *tokenStream, what string) (value, error) {
	var v value
	sign := 1
	if _, ok := s.accept(Minus); ok {
		sign = -1
	}
	for {
		t, err := a.parseTerm(s, what)
		if err != nil {
			return v, err
		}
		v.n += sign * t.n
		v.symbolic = v.symbolic || t.symbolic
		v.unknown = v.unknown || t.unknown

		switch p := s.peek(); {
		case p == nil:
			return v, nil
		case p.Kind == Plus:
			sign = 1
		case p.Kind == Minus:
			sign = -1
		default:
			return v, nil
		}
		s.pos++
	}
}

// Parse a single value term: a number, a character, a compile-time
// expression, a constant, or a label.
func (a *assembler) parseTerm(s *tokenStream, what string) (value, error) {
	t, err := s.next(what)
	if err != nil {
		return value{}, err
	}

	switch t.Kind {
	case Number:
		return value{n: t.Value}, nil

	case String:
		if len(t.Str) != 1 {
			return value{}, errorAt(t, "expected a single character, found %s", t.Text)
		}
		return value{n: int(t.Str[0])}, nil

	case Expression:
		n, err := a.evalExpression(t)
		return value{n: n}, err

	case Identifier:
		l := NewLabel(t.Text)
		if c, ok := a.constants[l]; ok {
			return value{n: c}, nil
		}
		addr, ok := a.labels.Lookup(l)
		if !ok && a.final {
			return value{}, errorAt(t, "undefined label '%s'", t.Text)
		}
		return value{n: int(addr), symbolic: true, unknown: !ok}, nil

	default:
		return value{}, errorAt(t, "expected %s, found '%s'", what, t.Text)
	}
}

// Report an error if a value lies outside [lo, hi].
func (a *assembler) checkRange(t *Token, v, lo, hi int) error {
	if v < lo || v > hi {
		return errorAt(t, "value %d out of range", v)
	}
	return nil
}

// Return the immediate bytes of an operand of the given size in bytes.
func (a *assembler) immediate(o operand, size int) ([]byte, error) {
	if o.kind != opImm {
		return nil, errorAt(o.tok, "expected an immediate value, found '%s'", o.tok.Text)
	}
	if size == 1 {
		if err := a.checkRange(o.tok, o.value, -0x80, 0xff); err != nil {
			return nil, err
		}
		return []byte{byte(o.value)}, nil
	}
	if err := a.checkRange(o.tok, o.value, -0x8000, 0xffff); err != nil {
		return nil, err
	}
	return toBytes(2, o.value), nil
}

// Return the operand size in bytes of a register or memory operand. Memory
// operands without a size marker take 'def'.
func operandSize(o operand, def int) int {
	switch {
	case o.kind == opReg8:
		return 1
	case o.kind == opMem && o.size != 0:
		return o.size
	case o.kind == opMem:
		return def
	default:
		return 2
	}
}

// Encode the ModRM byte and displacement for a register or memory operand
// 'o', with 'reg' in the ModRM reg field.
func modRM(reg byte, o operand) []byte {
	if o.kind != opMem {
		return []byte{0xc0 | reg<<3 | o.reg}
	}

	switch {
	case !o.base:
		return append([]byte{reg<<3 | 6}, toBytes(2, o.value)...)
	case o.symbolic:
		return append([]byte{0x80 | reg<<3 | o.rm}, toBytes(2, o.value)...)
	case o.value == 0 && o.rm != 6:
		return []byte{reg<<3 | o.rm}
	case o.value >= -0x80 && o.value <= 0x7f:
		return []byte{0x40 | reg<<3 | o.rm, byte(o.value)}
	default:
		return append([]byte{0x80 | reg<<3 | o.rm}, toBytes(2, o.value)...)
	}
}
