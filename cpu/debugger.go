// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// A CodeAddr identifies an instruction by its code segment and offset.
// Segments do not relocate fetches, so equal offsets in different segments
// name the same byte but remain distinct breakpoint addresses.
type CodeAddr struct {
	Seg uint16
	IP  uint16
}

func (a CodeAddr) String() string {
	return fmt.Sprintf("%04X:%04X", a.Seg, a.IP)
}

func compareCodeAddr(a, b CodeAddr) int {
	if c := cmp.Compare(a.Seg, b.Seg); c != 0 {
		return c
	}
	return cmp.Compare(a.IP, b.IP)
}

// The Debugger watches the CPU's CS:IP pair and its memory stores, and
// notifies its handler when either reaches an enabled breakpoint.
type Debugger struct {
	handler BreakpointHandler
	code    map[CodeAddr]*Breakpoint
	data    map[uint16]*DataBreakpoint
}

// The BreakpointHandler interface should be implemented by any object that
// wishes to receive debugger breakpoint notifications.
type BreakpointHandler interface {
	OnBreakpoint(cpu *CPU, b *Breakpoint)
	OnDataBreakpoint(cpu *CPU, b *DataBreakpoint)
}

// A Breakpoint stops execution when CS:IP reaches its address.
type Breakpoint struct {
	Addr     CodeAddr
	Disabled bool
}

// A DataBreakpoint stops execution when a byte is stored to its address,
// optionally only when the stored byte equals Value.
type DataBreakpoint struct {
	Address     uint16
	Disabled    bool
	Conditional bool
	Value       byte
}

// NewDebugger creates a debugger that reports to the handler.
func NewDebugger(handler BreakpointHandler) *Debugger {
	return &Debugger{
		handler: handler,
		code:    make(map[CodeAddr]*Breakpoint),
		data:    make(map[uint16]*DataBreakpoint),
	}
}

// Breakpoint returns the breakpoint at the code address, or nil.
func (d *Debugger) Breakpoint(at CodeAddr) *Breakpoint {
	return d.code[at]
}

// Breakpoints returns every breakpoint ordered by segment, then offset.
func (d *Debugger) Breakpoints() []*Breakpoint {
	return slices.SortedFunc(maps.Values(d.code), func(a, b *Breakpoint) int {
		return compareCodeAddr(a.Addr, b.Addr)
	})
}

// SetBreakpoint installs an enabled breakpoint at the code address,
// replacing any breakpoint already there.
func (d *Debugger) SetBreakpoint(at CodeAddr) *Breakpoint {
	b := &Breakpoint{Addr: at}
	d.code[at] = b
	return b
}

// ClearBreakpoint removes the breakpoint at the code address.
func (d *Debugger) ClearBreakpoint(at CodeAddr) {
	delete(d.code, at)
}

// DataBreakpoint returns the data breakpoint on addr, or nil.
func (d *Debugger) DataBreakpoint(addr uint16) *DataBreakpoint {
	return d.data[addr]
}

// DataBreakpoints returns every data breakpoint ordered by address.
func (d *Debugger) DataBreakpoints() []*DataBreakpoint {
	return slices.SortedFunc(maps.Values(d.data), func(a, b *DataBreakpoint) int {
		return cmp.Compare(a.Address, b.Address)
	})
}

// SetDataBreakpoint installs a data breakpoint triggered by any store to
// addr.
func (d *Debugger) SetDataBreakpoint(addr uint16) *DataBreakpoint {
	b := &DataBreakpoint{Address: addr}
	d.data[addr] = b
	return b
}

// SetConditionalDataBreakpoint installs a data breakpoint triggered only
// by stores of value to addr.
func (d *Debugger) SetConditionalDataBreakpoint(addr uint16, value byte) *DataBreakpoint {
	b := &DataBreakpoint{Address: addr, Conditional: true, Value: value}
	d.data[addr] = b
	return b
}

// ClearDataBreakpoint removes the data breakpoint on addr.
func (d *Debugger) ClearDataBreakpoint(addr uint16) {
	delete(d.data, addr)
}

func (d *Debugger) onStep(cpu *CPU) {
	if d.handler == nil {
		return
	}
	at := CodeAddr{Seg: cpu.Reg.GetSeg(CS), IP: cpu.Reg.IP}
	if b := d.code[at]; b != nil && !b.Disabled {
		d.handler.OnBreakpoint(cpu, b)
	}
}

func (d *Debugger) onDataStore(cpu *CPU, addr uint16, v byte) {
	if d.handler == nil {
		return
	}
	b := d.data[addr]
	if b == nil || b.Disabled {
		return
	}
	if !b.Conditional || b.Value == v {
		d.handler.OnDataBreakpoint(cpu, b)
	}
}
