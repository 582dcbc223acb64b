// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// Emulated BIOS layout. Interrupts 0x10 and 0x21 transfer control to fixed
// handler offsets inside the BIOS segment.
const (
	BIOSSegment  = 0xf000
	VideoHandler = 0x0040 // entry point for INT 0x10
	DOSHandler   = 0x0050 // entry point for INT 0x21
)

// Supported interrupt vectors.
const (
	VectorVideo = 0x10
	VectorDOS   = 0x21
)

// The bios opcode is reserved on the 8086 and never produced by the
// assembler. It is followed by the vector whose service it performs.
const opBIOS = 0xf1

// An Interrupt is an event raised by an emulated BIOS or DOS service. The
// CPU performs no I/O of its own; the host decides how to render events.
type Interrupt interface {
	isInterrupt()
}

// Print requests output of a single character.
type Print struct {
	Vector byte // interrupt that produced the event
	Char   byte
}

// PrintString requests output of a '$'-terminated string (INT 0x21,
// function 0x09). The terminator is not included.
type PrintString struct {
	Text string
}

// Exit reports program termination (INT 0x21, function 0x4C or 0x00).
type Exit struct {
	Code byte
}

func (Print) isInterrupt()       {}
func (PrintString) isInterrupt() {}
func (Exit) isInterrupt()        {}

// InterruptHandler is implemented by types that wish to be notified of
// interrupt events as they are raised.
type InterruptHandler interface {
	OnInterrupt(cpu *CPU, i Interrupt)
}

// WriteInterruptProcedures installs the emulated BIOS entry points into
// memory. Each consists of a service marker followed by IRET.
func WriteInterruptProcedures(m Memory) {
	m.StoreBytes(VideoHandler, []byte{opBIOS, VectorVideo, 0xcf})
	m.StoreBytes(DOSHandler, []byte{opBIOS, VectorDOS, 0xcf})
}

// handlerOffset returns the BIOS entry point for an interrupt vector.
func handlerOffset(vector byte) (uint16, bool) {
	switch vector {
	case VectorVideo:
		return VideoHandler, true
	case VectorDOS:
		return DOSHandler, true
	default:
		return 0, false
	}
}

// Enter an interrupt handler by storing the flags, code segment and return
// address on the stack. Then switch to the vector's BIOS entry point.
func (cpu *CPU) handleInterrupt(vector byte) error {
	addr, ok := handlerOffset(vector)
	if !ok {
		return ErrVectorUnknown
	}

	cpu.push(cpu.Reg.SaveFlags())
	cpu.push(cpu.Reg.GetSeg(CS))
	cpu.push(cpu.Reg.IP)

	cpu.Reg.InterruptDisable = true
	cpu.Reg.SetSeg(CS, BIOSSegment)
	cpu.Reg.IP = addr
	return nil
}

// Perform the BIOS or DOS service selected by AH.
func (cpu *CPU) service(vector byte) error {
	fn := cpu.Reg.Get8(AH)
	switch {
	case vector == VectorVideo && fn == 0x0e:
		cpu.raise(Print{Vector: vector, Char: cpu.Reg.Get8(AL)})

	case vector == VectorDOS && fn == 0x02:
		cpu.raise(Print{Vector: vector, Char: cpu.Reg.Get8(DL)})

	case vector == VectorDOS && fn == 0x09:
		var text []byte
		addr := cpu.Reg.Get16(DX)
		for i := 0; i < 0x10000; i++ {
			c := cpu.Mem.LoadByte(addr)
			if c == '$' {
				break
			}
			text = append(text, c)
			addr++
		}
		cpu.raise(PrintString{Text: string(text)})

	case vector == VectorDOS && (fn == 0x4c || fn == 0x00):
		code := cpu.Reg.Get8(AL)
		if fn == 0x00 {
			code = 0
		}
		cpu.raise(Exit{Code: code})
		cpu.halted = true

	case vector != VectorVideo && vector != VectorDOS:
		return ErrVectorUnknown

	default:
		return ErrFunctionUnknown
	}
	return nil
}

// Deliver an interrupt event to the attached handler, or queue it until
// the caller drains it with Interrupts.
func (cpu *CPU) raise(i Interrupt) {
	if cpu.intHandler != nil {
		cpu.intHandler.OnInterrupt(cpu, i)
		return
	}
	cpu.pending = append(cpu.pending, i)
}

// AttachInterruptHandler attaches a handler that receives every interrupt
// event as it is raised.
func (cpu *CPU) AttachInterruptHandler(handler InterruptHandler) {
	cpu.intHandler = handler
}

// Interrupts returns and clears the events raised since the last call
// while no interrupt handler was attached.
func (cpu *CPU) Interrupts() []Interrupt {
	p := cpu.pending
	cpu.pending = nil
	return p
}
