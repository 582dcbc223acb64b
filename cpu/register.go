// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// Reg16 identifies a 16-bit general register. Its value is the register's
// encoding index in the ModRM reg and rm fields.
type Reg16 byte

// 16-bit general registers, in encoding order.
const (
	AX Reg16 = iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
)

// Reg8 identifies an 8-bit general register. Its value is the register's
// encoding index in the ModRM reg and rm fields.
type Reg8 byte

// 8-bit general registers, in encoding order.
const (
	AL Reg8 = iota
	CL
	DL
	BL
	AH
	CH
	DH
	BH
)

// SegReg identifies a segment register by its encoding index.
type SegReg byte

// Segment registers, in encoding order.
const (
	ES SegReg = iota
	CS
	SS
	DS
)

var reg16Names = [...]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}
var reg8Names = [...]string{"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH"}
var segRegNames = [...]string{"ES", "CS", "SS", "DS"}

func (r Reg16) String() string  { return reg16Names[r&7] }
func (r Reg8) String() string   { return reg8Names[r&7] }
func (r SegReg) String() string { return segRegNames[r&3] }

// Index returns the register's ModRM encoding index.
func (r Reg16) Index() byte { return byte(r) }

// Index returns the register's ModRM encoding index.
func (r Reg8) Index() byte { return byte(r) }

// Index returns the register's ModRM encoding index.
func (r SegReg) Index() byte { return byte(r) }

// RegisterKind classifies a named register.
type RegisterKind byte

// Register kinds.
const (
	Word RegisterKind = iota
	Byte
	Segment
)

// A Register is the result of looking up a register by name.
type Register struct {
	Kind  RegisterKind
	Index byte
}

var registersByName = func() map[string]Register {
	m := make(map[string]Register)
	for i, n := range reg16Names {
		m[n] = Register{Word, byte(i)}
	}
	for i, n := range reg8Names {
		m[n] = Register{Byte, byte(i)}
	}
	for i, n := range segRegNames {
		m[n] = Register{Segment, byte(i)}
	}
	return m
}()

// LookupRegister finds a register by name, ignoring case.
func LookupRegister(name string) (Register, bool) {
	r, ok := registersByName[strings.ToUpper(name)]
	return r, ok
}

// Registers contains the state of all 8086 registers.
type Registers struct {
	GP               [8]uint16 // general registers, indexed by Reg16
	Seg              [4]uint16 // segment registers, indexed by SegReg
	IP               uint16    // instruction pointer
	Carry            bool      // FLAGS: carry
	Parity           bool      // FLAGS: parity
	Aux              bool      // FLAGS: auxiliary carry
	Zero             bool      // FLAGS: zero
	Sign             bool      // FLAGS: sign
	Trap             bool      // FLAGS: trap
	InterruptDisable bool      // FLAGS: interrupt disable (inverse of IF)
	Direction        bool      // FLAGS: direction
	Overflow         bool      // FLAGS: overflow
}

// Bits assigned to the FLAGS word
const (
	CarryBit     = 1 << 0
	ReservedBit  = 1 << 1
	ParityBit    = 1 << 2
	AuxBit       = 1 << 4
	ZeroBit      = 1 << 6
	SignBit      = 1 << 7
	TrapBit      = 1 << 8
	InterruptBit = 1 << 9
	DirectionBit = 1 << 10
	OverflowBit  = 1 << 11
)

// Get16 returns the value of a 16-bit register.
func (r *Registers) Get16(reg Reg16) uint16 {
	return r.GP[reg&7]
}

// Set16 updates the value of a 16-bit register.
func (r *Registers) Set16(reg Reg16, v uint16) {
	r.GP[reg&7] = v
}

// Get8 returns the value of an 8-bit register. Indexes 0-3 address the low
// bytes of AX-BX, and 4-7 address their high bytes.
func (r *Registers) Get8(reg Reg8) byte {
	v := r.GP[reg&3]
	if reg&4 != 0 {
		return byte(v >> 8)
	}
	return byte(v)
}

// Set8 updates the value of an 8-bit register.
func (r *Registers) Set8(reg Reg8, v byte) {
	p := &r.GP[reg&3]
	if reg&4 != 0 {
		*p = (*p & 0x00ff) | uint16(v)<<8
	} else {
		*p = (*p & 0xff00) | uint16(v)
	}
}

// GetSeg returns the value of a segment register.
func (r *Registers) GetSeg(reg SegReg) uint16 {
	return r.Seg[reg&3]
}

// SetSeg updates the value of a segment register.
func (r *Registers) SetSeg(reg SegReg, v uint16) {
	r.Seg[reg&3] = v
}

// SaveFlags packs the flags into an 8086 FLAGS word.
func (r *Registers) SaveFlags() uint16 {
	var f uint16 = ReservedBit // always saved as on
	if r.Carry {
		f |= CarryBit
	}
	if r.Parity {
		f |= ParityBit
	}
	if r.Aux {
		f |= AuxBit
	}
	if r.Zero {
		f |= ZeroBit
	}
	if r.Sign {
		f |= SignBit
	}
	if r.Trap {
		f |= TrapBit
	}
	if !r.InterruptDisable {
		f |= InterruptBit
	}
	if r.Direction {
		f |= DirectionBit
	}
	if r.Overflow {
		f |= OverflowBit
	}
	return f
}

// RestoreFlags unpacks an 8086 FLAGS word into the flags.
func (r *Registers) RestoreFlags(f uint16) {
	r.Carry = ((f & CarryBit) != 0)
	r.Parity = ((f & ParityBit) != 0)
	r.Aux = ((f & AuxBit) != 0)
	r.Zero = ((f & ZeroBit) != 0)
	r.Sign = ((f & SignBit) != 0)
	r.Trap = ((f & TrapBit) != 0)
	r.InterruptDisable = ((f & InterruptBit) == 0)
	r.Direction = ((f & DirectionBit) != 0)
	r.Overflow = ((f & OverflowBit) != 0)
}

// Init initializes all registers. General and segment registers = 0,
// SP = 0xfffe, IP = 0, all flags clear.
func (r *Registers) Init() {
	*r = Registers{}
	r.GP[SP] = 0xfffe
}

func boolToUint16(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}
