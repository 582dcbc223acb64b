// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "math/bits"

type instfunc func(c *CPU, opcode byte) error

// An Instruction describes the CPU's implementation of one opcode.
type Instruction struct {
	Name   string // mnemonic; empty for group opcodes selected by ModRM
	Opcode byte   // first byte of the instruction
	fn     instfunc
}

// Implemented reports whether the CPU can execute the opcode.
func (inst *Instruction) Implemented() bool {
	return inst.fn != nil
}

// An InstructionSet defines the set of all possible instructions that
// can run on the emulated CPU.
type InstructionSet struct {
	instructions [256]Instruction
}

// Lookup retrieves a CPU instruction corresponding to the requested opcode.
func (s *InstructionSet) Lookup(opcode byte) *Instruction {
	return &s.instructions[opcode]
}

// An opdata entry binds a contiguous range of opcodes to an implementation.
type opdata struct {
	first, last byte
	name        string
	fn          instfunc
}

var data = []opdata{
	{0x00, 0x05, "add", (*CPU).alu},
	{0x06, 0x06, "push", (*CPU).pushSeg},
	{0x07, 0x07, "pop", (*CPU).popSeg},
	{0x08, 0x0d, "or", (*CPU).alu},
	{0x0e, 0x0e, "push", (*CPU).pushSeg},
	{0x10, 0x15, "adc", (*CPU).alu},
	{0x16, 0x16, "push", (*CPU).pushSeg},
	{0x17, 0x17, "pop", (*CPU).popSeg},
	{0x18, 0x1d, "sbb", (*CPU).alu},
	{0x1e, 0x1e, "push", (*CPU).pushSeg},
	{0x1f, 0x1f, "pop", (*CPU).popSeg},
	{0x20, 0x25, "and", (*CPU).alu},
	{0x28, 0x2d, "sub", (*CPU).alu},
	{0x30, 0x35, "xor", (*CPU).alu},
	{0x38, 0x3d, "cmp", (*CPU).alu},
	{0x40, 0x47, "inc", (*CPU).incReg},
	{0x48, 0x4f, "dec", (*CPU).decReg},
	{0x50, 0x57, "push", (*CPU).pushReg},
	{0x58, 0x5f, "pop", (*CPU).popReg},
	{0x70, 0x7f, "", (*CPU).jcc},
	{0x80, 0x81, "", (*CPU).aluImm},
	{0x83, 0x83, "", (*CPU).aluImm},
	{0x88, 0x8b, "mov", (*CPU).mov},
	{0x8c, 0x8c, "mov", (*CPU).movFromSeg},
	{0x8e, 0x8e, "mov", (*CPU).movToSeg},
	{0x8f, 0x8f, "pop", (*CPU).popRM},
	{0x90, 0x90, "nop", (*CPU).nop},
	{0x9c, 0x9c, "pushf", (*CPU).pushf},
	{0x9d, 0x9d, "popf", (*CPU).popf},
	{0xb0, 0xbf, "mov", (*CPU).movImm},
	{0xc2, 0xc3, "ret", (*CPU).ret},
	{0xc6, 0xc7, "mov", (*CPU).movRMImm},
	{0xcd, 0xcd, "int", (*CPU).intr},
	{0xcf, 0xcf, "iret", (*CPU).iret},
	{0xe2, 0xe2, "loop", (*CPU).loop},
	{0xe8, 0xe8, "call", (*CPU).call},
	{0xe9, 0xe9, "jmp", (*CPU).jmpNear},
	{0xeb, 0xeb, "jmp", (*CPU).jmpShort},
	{opBIOS, opBIOS, "bios", (*CPU).bios},
	{0xf4, 0xf4, "hlt", (*CPU).hlt},
	{0xf6, 0xf7, "", (*CPU).group3},
	{0xf8, 0xfb, "", (*CPU).flag},
	{0xfe, 0xff, "", (*CPU).group4},
}

// Condition code mnemonics for opcodes 0x70-0x7f, indexed by the low
// nibble of the opcode.
var ConditionNames = [16]string{
	"jo", "jno", "jb", "jae", "je", "jne", "jbe", "ja",
	"js", "jns", "jp", "jnp", "jl", "jge", "jle", "jg",
}

// Arithmetic/logic operation names, indexed by the operation number held in
// bits 3-5 of the opcode or in the ModRM reg field.
var ALUNames = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}

// Group 3 (0xf6/0xf7) operation names, indexed by the ModRM reg field.
var Group3Names = [8]string{"test", "", "not", "neg", "mul", "imul", "div", "idiv"}

// Group 4/5 (0xfe/0xff) operation names, indexed by the ModRM reg field.
var Group4Names = [8]string{"inc", "dec", "call", "", "jmp", "", "push", ""}

var flagNames = [4]string{"clc", "stc", "cli", "sti"}

func newInstructionSet() *InstructionSet {
	set := &InstructionSet{}
	for _, d := range data {
		for op := int(d.first); op <= int(d.last); op++ {
			inst := &set.instructions[op]
			inst.Opcode = byte(op)
			inst.Name = d.name
			inst.fn = d.fn
		}
	}
	for i, n := range ConditionNames {
		set.instructions[0x70+i].Name = n
	}
	for i, n := range flagNames {
		set.instructions[0xf8+i].Name = n
	}
	return set
}

var instructionSet *InstructionSet

// GetInstructionSet returns the 8086 instruction set.
func GetInstructionSet() *InstructionSet {
	if instructionSet == nil {
		// Lazy-create the instruction set.
		instructionSet = newInstructionSet()
	}
	return instructionSet
}

// A width is the sign bit of an operand size.
type width uint32

const (
	byteWidth width = 0x80
	wordWidth width = 0x8000
)

func (w width) mask() uint32 {
	return uint32(w)<<1 - 1
}

// Opcodes whose low bit selects between byte and word operands.
func widthOf(opcode byte) width {
	if opcode&1 != 0 {
		return wordWidth
	}
	return byteWidth
}

// ALU operation numbers
const (
	aluAdd = iota
	aluOr
	aluAdc
	aluSbb
	aluAnd
	aluSub
	aluXor
	aluCmp
)

// Perform an arithmetic/logic operation with wrapping arithmetic, update
// the flags, and return the result.
func (cpu *CPU) arith(op byte, a, b uint32, w width) uint32 {
	r := &cpu.Reg
	mask, sign := w.mask(), uint32(w)

	var v uint32
	switch op {
	case aluAdd, aluAdc:
		c := uint32(0)
		if op == aluAdc {
			c = uint32(boolToUint16(r.Carry))
		}
		v = a + b + c
		r.Carry = v > mask
		r.Overflow = (^(a ^ b))&(a^v)&sign != 0
		r.Aux = (a^b^v)&0x10 != 0

	case aluSub, aluSbb, aluCmp:
		c := uint32(0)
		if op == aluSbb {
			c = uint32(boolToUint16(r.Carry))
		}
		v = a - b - c
		r.Carry = a < b+c
		r.Overflow = (a^b)&(a^v)&sign != 0
		r.Aux = (a^b^v)&0x10 != 0

	case aluOr:
		v = a | b
		r.Carry, r.Overflow, r.Aux = false, false, false

	case aluAnd:
		v = a & b
		r.Carry, r.Overflow, r.Aux = false, false, false

	case aluXor:
		v = a ^ b
		r.Carry, r.Overflow, r.Aux = false, false, false
	}

	v &= mask
	cpu.updateSZP(v, w)
	return v
}

// Update the Sign, Zero and Parity flags based on the value of 'v'.
func (cpu *CPU) updateSZP(v uint32, w width) {
	cpu.Reg.Zero = (v & w.mask()) == 0
	cpu.Reg.Sign = (v & uint32(w)) != 0
	cpu.Reg.Parity = bits.OnesCount8(uint8(v))%2 == 0
}

// Increment or decrement; the carry flag is preserved.
func (cpu *CPU) step1(v uint32, op byte, w width) uint32 {
	carry := cpu.Reg.Carry
	v = cpu.arith(op, v, 1, w)
	cpu.Reg.Carry = carry
	return v
}

// Two-operand arithmetic/logic: r/m,reg / reg,r/m / accumulator,imm
func (cpu *CPU) alu(opcode byte) error {
	op := (opcode >> 3) & 7
	w := widthOf(opcode)

	switch opcode & 7 {
	case 0, 1:
		m := cpu.decodeModRM()
		v := cpu.arith(op, cpu.loadRM(m, w), cpu.loadReg(m.reg, w), w)
		if op != aluCmp {
			cpu.storeRM(m, w, v)
		}

	case 2, 3:
		m := cpu.decodeModRM()
		v := cpu.arith(op, cpu.loadReg(m.reg, w), cpu.loadRM(m, w), w)
		if op != aluCmp {
			cpu.storeReg(m.reg, w, v)
		}

	case 4:
		imm := uint32(cpu.fetchByte())
		v := cpu.arith(op, cpu.loadReg(byte(AL), w), imm, w)
		if op != aluCmp {
			cpu.storeReg(byte(AL), w, v)
		}

	case 5:
		imm := uint32(cpu.fetchWord())
		v := cpu.arith(op, cpu.loadReg(byte(AX), w), imm, w)
		if op != aluCmp {
			cpu.storeReg(byte(AX), w, v)
		}
	}
	return nil
}

// Arithmetic/logic with an immediate; the ModRM reg field selects the
// operation. 0x83 sign-extends an 8-bit immediate to 16 bits.
func (cpu *CPU) aluImm(opcode byte) error {
	m := cpu.decodeModRM()

	var imm uint32
	w := wordWidth
	switch opcode {
	case 0x80:
		w = byteWidth
		imm = uint32(cpu.fetchByte())
	case 0x81:
		imm = uint32(cpu.fetchWord())
	case 0x83:
		imm = uint32(uint16(int8(cpu.fetchByte())))
	}

	v := cpu.arith(m.reg, cpu.loadRM(m, w), imm, w)
	if m.reg != aluCmp {
		cpu.storeRM(m, w, v)
	}
	return nil
}

// Increment 16-bit register
func (cpu *CPU) incReg(opcode byte) error {
	r := opcode & 7
	cpu.storeReg(r, wordWidth, cpu.step1(cpu.loadReg(r, wordWidth), aluAdd, wordWidth))
	return nil
}

// Decrement 16-bit register
func (cpu *CPU) decReg(opcode byte) error {
	r := opcode & 7
	cpu.storeReg(r, wordWidth, cpu.step1(cpu.loadReg(r, wordWidth), aluSub, wordWidth))
	return nil
}

// Push 16-bit register
func (cpu *CPU) pushReg(opcode byte) error {
	cpu.push(cpu.Reg.Get16(Reg16(opcode & 7)))
	return nil
}

// Pop 16-bit register
func (cpu *CPU) popReg(opcode byte) error {
	cpu.Reg.Set16(Reg16(opcode&7), cpu.pop())
	return nil
}

// Push segment register
func (cpu *CPU) pushSeg(opcode byte) error {
	cpu.push(cpu.Reg.GetSeg(SegReg(opcode>>3) & 3))
	return nil
}

// Pop segment register
func (cpu *CPU) popSeg(opcode byte) error {
	cpu.Reg.SetSeg(SegReg(opcode>>3)&3, cpu.pop())
	return nil
}

// Pop to register or memory
func (cpu *CPU) popRM(opcode byte) error {
	m := cpu.decodeModRM()
	if m.reg != 0 {
		return ErrAddressingMode
	}
	cpu.storeRM(m, wordWidth, uint32(cpu.pop()))
	return nil
}

// Push Processor flags
func (cpu *CPU) pushf(opcode byte) error {
	cpu.push(cpu.Reg.SaveFlags())
	return nil
}

// Pop Processor flags
func (cpu *CPU) popf(opcode byte) error {
	cpu.Reg.RestoreFlags(cpu.pop())
	return nil
}

// Conditional short jump
func (cpu *CPU) jcc(opcode byte) error {
	offset := cpu.fetchByte()
	if cpu.condition(opcode & 0x0f) {
		cpu.branch(offset)
	}
	return nil
}

// Evaluate a condition code. Odd codes negate the even code before them.
func (cpu *CPU) condition(cc byte) bool {
	r := &cpu.Reg
	var c bool
	switch cc >> 1 {
	case 0:
		c = r.Overflow
	case 1:
		c = r.Carry
	case 2:
		c = r.Zero
	case 3:
		c = r.Carry || r.Zero
	case 4:
		c = r.Sign
	case 5:
		c = r.Parity
	case 6:
		c = r.Sign != r.Overflow
	case 7:
		c = r.Zero || r.Sign != r.Overflow
	}
	return c != (cc&1 != 0)
}

// Move between register and register/memory
func (cpu *CPU) mov(opcode byte) error {
	w := widthOf(opcode)
	m := cpu.decodeModRM()
	if opcode&2 != 0 {
		cpu.storeReg(m.reg, w, cpu.loadRM(m, w))
	} else {
		cpu.storeRM(m, w, cpu.loadReg(m.reg, w))
	}
	return nil
}

// Move segment register to register/memory
func (cpu *CPU) movFromSeg(opcode byte) error {
	m := cpu.decodeModRM()
	if m.reg > 3 {
		return ErrAddressingMode
	}
	cpu.storeRM(m, wordWidth, uint32(cpu.Reg.GetSeg(SegReg(m.reg))))
	return nil
}

// Move register/memory to segment register
func (cpu *CPU) movToSeg(opcode byte) error {
	m := cpu.decodeModRM()
	if m.reg > 3 || SegReg(m.reg) == CS {
		return ErrAddressingMode
	}
	cpu.Reg.SetSeg(SegReg(m.reg), uint16(cpu.loadRM(m, wordWidth)))
	return nil
}

// Move immediate to register: 0xb0-0xb7 byte, 0xb8-0xbf word
func (cpu *CPU) movImm(opcode byte) error {
	r := opcode & 7
	if opcode < 0xb8 {
		cpu.Reg.Set8(Reg8(r), cpu.fetchByte())
	} else {
		cpu.Reg.Set16(Reg16(r), cpu.fetchWord())
	}
	return nil
}

// Move immediate to register/memory
func (cpu *CPU) movRMImm(opcode byte) error {
	w := widthOf(opcode)
	m := cpu.decodeModRM()
	if m.reg != 0 {
		return ErrAddressingMode
	}
	var imm uint32
	if w == wordWidth {
		imm = uint32(cpu.fetchWord())
	} else {
		imm = uint32(cpu.fetchByte())
	}
	cpu.storeRM(m, w, imm)
	return nil
}

// No-operation
func (cpu *CPU) nop(opcode byte) error {
	return nil
}

// Return from near call; 0xc2 also releases stack bytes
func (cpu *CPU) ret(opcode byte) error {
	var n uint16
	if opcode == 0xc2 {
		n = cpu.fetchWord()
	}
	cpu.Reg.IP = cpu.pop()
	cpu.Reg.Set16(SP, cpu.Reg.Get16(SP)+n)
	return nil
}

// Software interrupt
func (cpu *CPU) intr(opcode byte) error {
	vector := cpu.fetchByte()
	return cpu.handleInterrupt(vector)
}

// Return from Interrupt
func (cpu *CPU) iret(opcode byte) error {
	cpu.Reg.IP = cpu.pop()
	cpu.Reg.SetSeg(CS, cpu.pop())
	cpu.Reg.RestoreFlags(cpu.pop())
	return nil
}

// Decrement CX and branch if it is not zero
func (cpu *CPU) loop(opcode byte) error {
	offset := cpu.fetchByte()
	cx := cpu.Reg.Get16(CX) - 1
	cpu.Reg.Set16(CX, cx)
	if cx != 0 {
		cpu.branch(offset)
	}
	return nil
}

// Near call with a 16-bit self-relative displacement
func (cpu *CPU) call(opcode byte) error {
	rel := cpu.fetchWord()
	cpu.push(cpu.Reg.IP)
	cpu.Reg.IP += rel
	return nil
}

// Near jump with a 16-bit self-relative displacement
func (cpu *CPU) jmpNear(opcode byte) error {
	rel := cpu.fetchWord()
	cpu.Reg.IP += rel
	return nil
}

// Short jump
func (cpu *CPU) jmpShort(opcode byte) error {
	cpu.branch(cpu.fetchByte())
	return nil
}

// Emulated BIOS service marker
func (cpu *CPU) bios(opcode byte) error {
	vector := cpu.fetchByte()
	return cpu.service(vector)
}

// Halt
func (cpu *CPU) hlt(opcode byte) error {
	cpu.halted = true
	return nil
}

// Clear/set carry and interrupt flags (0xf8-0xfb)
func (cpu *CPU) flag(opcode byte) error {
	switch opcode {
	case 0xf8:
		cpu.Reg.Carry = false
	case 0xf9:
		cpu.Reg.Carry = true
	case 0xfa:
		cpu.Reg.InterruptDisable = true
	case 0xfb:
		cpu.Reg.InterruptDisable = false
	}
	return nil
}

// Group 3: not, neg, mul, imul, div, idiv
func (cpu *CPU) group3(opcode byte) error {
	w := widthOf(opcode)
	m := cpu.decodeModRM()
	v := cpu.loadRM(m, w)

	switch m.reg {
	case 2:
		cpu.storeRM(m, w, ^v&w.mask())
	case 3:
		cpu.storeRM(m, w, cpu.arith(aluSub, 0, v, w))
	case 4:
		cpu.mul(v, w)
	case 5:
		cpu.imul(v, w)
	case 6:
		return cpu.div(v, w)
	case 7:
		return cpu.idiv(v, w)
	default:
		return ErrAddressingMode
	}
	return nil
}

// Unsigned multiply into AX (byte) or DX:AX (word)
func (cpu *CPU) mul(v uint32, w width) {
	r := &cpu.Reg
	var hi uint16
	if w == byteWidth {
		p := uint16(r.Get8(AL)) * uint16(v)
		r.Set16(AX, p)
		hi = p >> 8
	} else {
		p := uint32(r.Get16(AX)) * v
		r.Set16(AX, uint16(p))
		r.Set16(DX, uint16(p>>16))
		hi = uint16(p >> 16)
	}
	r.Carry = hi != 0
	r.Overflow = r.Carry
}

// Signed multiply into AX (byte) or DX:AX (word)
func (cpu *CPU) imul(v uint32, w width) {
	r := &cpu.Reg
	if w == byteWidth {
		p := int16(int8(r.Get8(AL))) * int16(int8(v))
		r.Set16(AX, uint16(p))
		r.Carry = p != int16(int8(p))
	} else {
		p := int32(int16(r.Get16(AX))) * int32(int16(v))
		r.Set16(AX, uint16(p))
		r.Set16(DX, uint16(uint32(p)>>16))
		r.Carry = p != int32(int16(p))
	}
	r.Overflow = r.Carry
}

// Unsigned divide of AX (byte) or DX:AX (word). A zero divisor or a
// quotient that does not fit is a divide error.
func (cpu *CPU) div(v uint32, w width) error {
	r := &cpu.Reg
	if v == 0 {
		return ErrDivideByZero
	}
	if w == byteWidth {
		n := uint32(r.Get16(AX))
		q := n / v
		if q > 0xff {
			return ErrDivideByZero
		}
		r.Set8(AL, byte(q))
		r.Set8(AH, byte(n%v))
	} else {
		n := uint32(r.Get16(DX))<<16 | uint32(r.Get16(AX))
		q := n / v
		if q > 0xffff {
			return ErrDivideByZero
		}
		r.Set16(AX, uint16(q))
		r.Set16(DX, uint16(n%v))
	}
	return nil
}

// Signed divide of AX (byte) or DX:AX (word). The remainder takes the
// sign of the dividend.
func (cpu *CPU) idiv(v uint32, w width) error {
	r := &cpu.Reg
	if v == 0 {
		return ErrDivideByZero
	}
	if w == byteWidth {
		n := int32(int16(r.Get16(AX)))
		d := int32(int8(v))
		q := n / d
		if q < -128 || q > 127 {
			return ErrDivideByZero
		}
		r.Set8(AL, byte(q))
		r.Set8(AH, byte(n%d))
	} else {
		n := int64(int32(uint32(r.Get16(DX))<<16 | uint32(r.Get16(AX))))
		d := int64(int16(v))
		q := n / d
		if q < -32768 || q > 32767 {
			return ErrDivideByZero
		}
		r.Set16(AX, uint16(q))
		r.Set16(DX, uint16(n%d))
	}
	return nil
}

// Group 4/5: inc, dec, indirect call, indirect jmp, push
func (cpu *CPU) group4(opcode byte) error {
	w := widthOf(opcode)
	m := cpu.decodeModRM()

	switch {
	case m.reg == 0:
		cpu.storeRM(m, w, cpu.step1(cpu.loadRM(m, w), aluAdd, w))
	case m.reg == 1:
		cpu.storeRM(m, w, cpu.step1(cpu.loadRM(m, w), aluSub, w))
	case w == byteWidth:
		return ErrAddressingMode
	case m.reg == 2:
		target := uint16(cpu.loadRM(m, w))
		cpu.push(cpu.Reg.IP)
		cpu.Reg.IP = target
	case m.reg == 4:
		cpu.Reg.IP = uint16(cpu.loadRM(m, w))
	case m.reg == 6:
		cpu.push(uint16(cpu.loadRM(m, w)))
	default:
		return ErrAddressingMode
	}
	return nil
}
