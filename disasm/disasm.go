// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements an 8086 instruction set disassembler.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/go8086/cpu"
)

// Effective address formats for the ModRM rm field.
var rmBase = [8]string{"bx+si", "bx+di", "bp+si", "bp+di", "si", "di", "bp", "bx"}

var segNames = [4]string{"es", "cs", "ss", "ds"}

func reg16(i byte) string { return strings.ToLower(cpu.Reg16(i & 7).String()) }
func reg8(i byte) string  { return strings.ToLower(cpu.Reg8(i & 7).String()) }

func reg(i byte, word bool) string {
	if word {
		return reg16(i)
	}
	return reg8(i)
}

func imm8(v byte) string    { return fmt.Sprintf("0x%02X", v) }
func imm16(v uint16) string { return fmt.Sprintf("0x%04X", v) }

// Disassemble the machine code in memory 'm' at address 'addr'. Return a
// 'line' string representing the disassembled instruction and a 'next'
// address that starts the following line of machine code. Bytes that do
// not begin an instruction the CPU implements disassemble as data.
func Disassemble(m cpu.Memory, addr uint16) (line string, next uint16) {
	d := &decoder{mem: m, pc: addr}
	opcode := d.fetchByte()

	line, ok := d.decode(opcode)
	if !ok {
		return "db " + imm8(opcode), addr + 1
	}
	return line, d.pc
}

// A decoder reads the bytes of one instruction.
type decoder struct {
	mem cpu.Memory
	pc  uint16
}

func (d *decoder) fetchByte() byte {
	b := d.mem.LoadByte(d.pc)
	d.pc++
	return b
}

func (d *decoder) fetchWord() uint16 {
	w := d.mem.LoadWord(d.pc)
	d.pc += 2
	return w
}

// A modrm is a decoded ModRM byte.
type modrm struct {
	mod, reg, rm byte
	disp         uint16
}

func (d *decoder) fetchModRM() modrm {
	b := d.fetchByte()
	m := modrm{mod: b >> 6, reg: (b >> 3) & 7, rm: b & 7}
	switch {
	case m.mod == 0 && m.rm == 6, m.mod == 2:
		m.disp = d.fetchWord()
	case m.mod == 1:
		m.disp = uint16(int8(d.fetchByte()))
	}
	return m
}

// Format the register or memory operand of a ModRM byte. Memory operands
// carry a size marker when 'marked' is set.
func (m modrm) operand(word, marked bool) string {
	if m.mod == 3 {
		return reg(m.rm, word)
	}

	var mem string
	switch m.mod {
	case 0:
		if m.rm == 6 {
			mem = "[" + imm16(m.disp) + "]"
		} else {
			mem = "[" + rmBase[m.rm] + "]"
		}
	case 1:
		if int16(m.disp) < 0 {
			mem = fmt.Sprintf("[%s-0x%02X]", rmBase[m.rm], -int16(m.disp))
		} else {
			mem = fmt.Sprintf("[%s+0x%02X]", rmBase[m.rm], m.disp)
		}
	case 2:
		mem = fmt.Sprintf("[%s+%s]", rmBase[m.rm], imm16(m.disp))
	}

	if !marked {
		return mem
	}
	if word {
		return "w." + mem
	}
	return "b." + mem
}

// Return the absolute target of a short relative branch.
func (d *decoder) shortTarget() string {
	offset := d.fetchByte()
	return imm16(d.pc + uint16(int8(offset)))
}

// Return the absolute target of a near relative branch.
func (d *decoder) nearTarget() string {
	rel := d.fetchWord()
	return imm16(d.pc + rel)
}

// Decode the instruction beginning with 'opcode'. It returns false for
// opcodes and ModRM forms the CPU does not execute.
func (d *decoder) decode(opcode byte) (string, bool) {
	inst := cpu.GetInstructionSet().Lookup(opcode)
	if !inst.Implemented() {
		return "", false
	}
	word := opcode&1 != 0

	switch {
	case opcode < 0x40 && opcode&7 < 6:
		name := cpu.ALUNames[(opcode>>3)&7]
		switch opcode & 7 {
		case 0, 1:
			m := d.fetchModRM()
			return fmt.Sprintf("%s %s, %s", name, m.operand(word, false), reg(m.reg, word)), true
		case 2, 3:
			m := d.fetchModRM()
			return fmt.Sprintf("%s %s, %s", name, reg(m.reg, word), m.operand(word, false)), true
		case 4:
			return fmt.Sprintf("%s al, %s", name, imm8(d.fetchByte())), true
		default:
			return fmt.Sprintf("%s ax, %s", name, imm16(d.fetchWord())), true
		}

	case opcode < 0x20:
		return fmt.Sprintf("%s %s", inst.Name, segNames[(opcode>>3)&3]), true

	case opcode >= 0x40 && opcode < 0x60:
		return fmt.Sprintf("%s %s", inst.Name, reg16(opcode)), true

	case opcode >= 0x70 && opcode <= 0x7f, opcode == 0xeb, opcode == 0xe2:
		return fmt.Sprintf("%s %s", inst.Name, d.shortTarget()), true

	case opcode >= 0xb0 && opcode <= 0xb7:
		return fmt.Sprintf("mov %s, %s", reg8(opcode), imm8(d.fetchByte())), true

	case opcode >= 0xb8 && opcode <= 0xbf:
		return fmt.Sprintf("mov %s, %s", reg16(opcode), imm16(d.fetchWord())), true
	}

	switch opcode {
	case 0x80, 0x81, 0x83:
		m := d.fetchModRM()
		var imm string
		switch opcode {
		case 0x80:
			imm = imm8(d.fetchByte())
		case 0x81:
			imm = imm16(d.fetchWord())
		default:
			imm = imm16(uint16(int8(d.fetchByte())))
		}
		return fmt.Sprintf("%s %s, %s", cpu.ALUNames[m.reg], m.operand(opcode != 0x80, true), imm), true

	case 0x88, 0x89:
		m := d.fetchModRM()
		return fmt.Sprintf("mov %s, %s", m.operand(word, false), reg(m.reg, word)), true

	case 0x8a, 0x8b:
		m := d.fetchModRM()
		return fmt.Sprintf("mov %s, %s", reg(m.reg, word), m.operand(word, false)), true

	case 0x8c:
		m := d.fetchModRM()
		if m.reg > 3 {
			return "", false
		}
		return fmt.Sprintf("mov %s, %s", m.operand(true, false), segNames[m.reg]), true

	case 0x8e:
		m := d.fetchModRM()
		if m.reg > 3 || cpu.SegReg(m.reg) == cpu.CS {
			return "", false
		}
		return fmt.Sprintf("mov %s, %s", segNames[m.reg], m.operand(true, false)), true

	case 0x8f:
		m := d.fetchModRM()
		if m.reg != 0 {
			return "", false
		}
		return "pop " + m.operand(true, false), true

	case 0xc2:
		return "ret " + imm16(d.fetchWord()), true

	case 0xc6, 0xc7:
		m := d.fetchModRM()
		if m.reg != 0 {
			return "", false
		}
		var imm string
		if word {
			imm = imm16(d.fetchWord())
		} else {
			imm = imm8(d.fetchByte())
		}
		return fmt.Sprintf("mov %s, %s", m.operand(word, true), imm), true

	case 0xcd:
		return "int " + imm8(d.fetchByte()), true

	case 0xe8, 0xe9:
		return fmt.Sprintf("%s %s", inst.Name, d.nearTarget()), true

	case 0xf1:
		return "bios " + imm8(d.fetchByte()), true

	case 0xf6, 0xf7:
		m := d.fetchModRM()
		name := cpu.Group3Names[m.reg]
		if m.reg < 2 {
			return "", false
		}
		return fmt.Sprintf("%s %s", name, m.operand(word, true)), true

	case 0xfe, 0xff:
		m := d.fetchModRM()
		name := cpu.Group4Names[m.reg]
		if name == "" || (!word && m.reg > 1) {
			return "", false
		}
		return fmt.Sprintf("%s %s", name, m.operand(word, m.reg < 2)), true
	}

	// Single-byte instructions: nop, pushf, popf, ret, iret, hlt, and the
	// flag instructions.
	return inst.Name, true
}

// GetRegisterString returns a string describing the contents of the CPU
// registers. Flags are listed in FLAGS bit order, in upper case when set.
func GetRegisterString(r *cpu.Registers) string {
	flags := []struct {
		c   byte
		set bool
	}{
		{'O', r.Overflow},
		{'D', r.Direction},
		{'I', !r.InterruptDisable},
		{'T', r.Trap},
		{'S', r.Sign},
		{'Z', r.Zero},
		{'A', r.Aux},
		{'P', r.Parity},
		{'C', r.Carry},
	}
	f := make([]byte, len(flags))
	for i, fl := range flags {
		if fl.set {
			f[i] = fl.c
		} else {
			f[i] = '-'
		}
	}

	return fmt.Sprintf("AX=%04X BX=%04X CX=%04X DX=%04X SP=%04X BP=%04X SI=%04X DI=%04X"+
		" DS=%04X ES=%04X SS=%04X CS=%04X IP=%04X %s",
		r.Get16(cpu.AX), r.Get16(cpu.BX), r.Get16(cpu.CX), r.Get16(cpu.DX),
		r.Get16(cpu.SP), r.Get16(cpu.BP), r.Get16(cpu.SI), r.Get16(cpu.DI),
		r.GetSeg(cpu.DS), r.GetSeg(cpu.ES), r.GetSeg(cpu.SS), r.GetSeg(cpu.CS),
		r.IP, string(f))
}
