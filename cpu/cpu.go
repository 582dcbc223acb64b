// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements an 8086 CPU instruction subset and emulator.
//
// Segment registers are tracked but not used for address translation: every
// effective address is a 16-bit offset into a single 64K memory.
package cpu

// CPU represents a single 8086 CPU. It contains a pointer to the
// memory associated with the CPU.
type CPU struct {
	Reg        Registers       // CPU registers
	Mem        Memory          // assigned memory
	InstSet    *InstructionSet // instruction set used by the CPU
	Steps      uint64          // total executed instructions
	LastIP     uint16          // address of the most recently started instruction
	halted     bool
	fault      error
	pending    []Interrupt
	debugger   *Debugger
	intHandler InterruptHandler
	storeByte  func(cpu *CPU, addr uint16, v byte)
}

// NewCPU creates an emulated 8086 CPU bound to the specified memory.
func NewCPU(m Memory) *CPU {
	cpu := &CPU{
		Mem:       m,
		InstSet:   GetInstructionSet(),
		storeByte: (*CPU).storeByteNormal,
	}

	cpu.Reg.Init()
	return cpu
}

// Reset returns the CPU to its power-on state. Memory is left untouched,
// as are any attached debugger and interrupt handler.
func (cpu *CPU) Reset() {
	cpu.Reg.Init()
	cpu.Steps = 0
	cpu.LastIP = 0
	cpu.halted = false
	cpu.fault = nil
	cpu.pending = nil
}

// SetIP updates the CPU instruction pointer to 'addr'.
func (cpu *CPU) SetIP(addr uint16) {
	cpu.Reg.IP = addr
}

// Halted returns true once the CPU has executed HLT or a program has
// requested termination.
func (cpu *CPU) Halted() bool {
	return cpu.halted
}

// Fault returns the fatal error that stopped the CPU, if any.
func (cpu *CPU) Fault() error {
	return cpu.fault
}

// Step the cpu by one instruction. A failed step leaves the registers as
// they were before the instruction and marks the CPU faulted.
func (cpu *CPU) Step() error {
	if cpu.fault != nil {
		return cpu.fault
	}
	if cpu.halted {
		return ErrHalted
	}

	saved := cpu.Reg
	cpu.LastIP = cpu.Reg.IP

	// Grab the next opcode at the current IP and execute it. Each
	// implementation fetches its own ModRM, displacement and immediate
	// bytes.
	opcode := cpu.fetchByte()
	inst := cpu.InstSet.Lookup(opcode)

	var err error
	if inst.fn == nil {
		err = ErrOpcodeUnknown
	} else {
		err = inst.fn(cpu, opcode)
	}

	if err != nil {
		cpu.Reg = saved
		cpu.fault = &FatalError{
			Opcode: opcode,
			CS:     saved.GetSeg(CS),
			IP:     saved.IP,
			Err:    err,
		}
		return cpu.fault
	}

	cpu.Steps++

	// Update the debugger so it can handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onStep(cpu)
	}
	return nil
}

// Run steps the CPU until it halts, faults, or executes 'limit'
// instructions. It returns the number of instructions executed.
func (cpu *CPU) Run(limit int) (int, error) {
	for n := 0; n < limit; n++ {
		if cpu.halted {
			return n, nil
		}
		if err := cpu.Step(); err != nil {
			return n, err
		}
	}
	return limit, nil
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently attached debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.storeByte = (*CPU).storeByteNormal
}

// Fetch the byte at IP and advance IP.
func (cpu *CPU) fetchByte() byte {
	b := cpu.Mem.LoadByte(cpu.Reg.IP)
	cpu.Reg.IP++
	return b
}

// Fetch the word at IP and advance IP.
func (cpu *CPU) fetchWord() uint16 {
	w := cpu.Mem.LoadWord(cpu.Reg.IP)
	cpu.Reg.IP += 2
	return w
}

// A modrm is a decoded ModRM byte together with the effective address of
// its memory operand.
type modrm struct {
	mod  byte
	reg  byte
	rm   byte
	addr uint16
}

func (m *modrm) isReg() bool {
	return m.mod == 3
}

// Fetch a ModRM byte and any displacement that follows it.
func (cpu *CPU) decodeModRM() modrm {
	b := cpu.fetchByte()
	m := modrm{mod: b >> 6, reg: (b >> 3) & 7, rm: b & 7}

	var disp uint16
	switch m.mod {
	case 0:
		if m.rm == 6 {
			m.addr = cpu.fetchWord()
			return m
		}
	case 1:
		disp = uint16(int8(cpu.fetchByte()))
	case 2:
		disp = cpu.fetchWord()
	case 3:
		return m
	}

	m.addr = cpu.baseAddress(m.rm) + disp
	return m
}

// Return the base+index sum selected by a ModRM rm field.
func (cpu *CPU) baseAddress(rm byte) uint16 {
	r := &cpu.Reg
	switch rm {
	case 0:
		return r.Get16(BX) + r.Get16(SI)
	case 1:
		return r.Get16(BX) + r.Get16(DI)
	case 2:
		return r.Get16(BP) + r.Get16(SI)
	case 3:
		return r.Get16(BP) + r.Get16(DI)
	case 4:
		return r.Get16(SI)
	case 5:
		return r.Get16(DI)
	case 6:
		return r.Get16(BP)
	default:
		return r.Get16(BX)
	}
}

// Load a register operand of the given width.
func (cpu *CPU) loadReg(idx byte, w width) uint32 {
	if w == wordWidth {
		return uint32(cpu.Reg.Get16(Reg16(idx)))
	}
	return uint32(cpu.Reg.Get8(Reg8(idx)))
}

// Store a register operand of the given width.
func (cpu *CPU) storeReg(idx byte, w width, v uint32) {
	if w == wordWidth {
		cpu.Reg.Set16(Reg16(idx), uint16(v))
	} else {
		cpu.Reg.Set8(Reg8(idx), byte(v))
	}
}

// Load the register or memory operand selected by a ModRM byte.
func (cpu *CPU) loadRM(m modrm, w width) uint32 {
	switch {
	case m.isReg():
		return cpu.loadReg(m.rm, w)
	case w == wordWidth:
		return uint32(cpu.Mem.LoadWord(m.addr))
	default:
		return uint32(cpu.Mem.LoadByte(m.addr))
	}
}

// Store to the register or memory operand selected by a ModRM byte.
func (cpu *CPU) storeRM(m modrm, w width, v uint32) {
	switch {
	case m.isReg():
		cpu.storeReg(m.rm, w, v)
	case w == wordWidth:
		cpu.storeWord(m.addr, uint16(v))
	default:
		cpu.storeByte(cpu, m.addr, byte(v))
	}
}

// Execute a relative branch using a displacement byte. Values 0x00-0x7f
// move forward and 0x80-0xff move backward.
func (cpu *CPU) branch(offset byte) {
	if offset < 0x80 {
		cpu.Reg.IP += uint16(offset)
	} else {
		cpu.Reg.IP -= 0x100 - uint16(offset)
	}
}

// Store the byte value 'v' at the address 'addr'.
func (cpu *CPU) storeByteNormal(addr uint16, v byte) {
	cpu.Mem.StoreByte(addr, v)
}

// Store the byte value 'v' at the address 'addr'.
func (cpu *CPU) storeByteDebugger(addr uint16, v byte) {
	cpu.debugger.onDataStore(cpu, addr, v)
	cpu.Mem.StoreByte(addr, v)
}

// Store the little-endian word 'v' at the address 'addr'.
func (cpu *CPU) storeWord(addr uint16, v uint16) {
	cpu.storeByte(cpu, addr, byte(v))
	cpu.storeByte(cpu, addr+1, byte(v>>8))
}

// Push a word onto the stack. SP is decremented before the write.
func (cpu *CPU) push(v uint16) {
	sp := cpu.Reg.Get16(SP) - 2
	cpu.Reg.Set16(SP, sp)
	cpu.storeWord(sp, v)
}

// Pop a word from the stack. SP is incremented after the read.
func (cpu *CPU) pop() uint16 {
	sp := cpu.Reg.Get16(SP)
	v := cpu.Mem.LoadWord(sp)
	cpu.Reg.Set16(SP, sp+2)
	return v
}
