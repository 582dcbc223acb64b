// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host allows you to create a "host" that emulates a computer system
// with an 8086 CPU, 64K of memory, emulated BIOS and DOS services, a
// built-in assembler, a built-in debugger, and other useful tools.
//
// Within the host it is possible to assemble and load machine code into
// memory, debug and step through machine code, set address and data
// breakpoints, dump the contents of memory, disassemble the contents of
// memory, manipulate CPU registers and memory, and evaluate arbitrary
// expressions.
package host

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/go8086/asm"
	"github.com/beevik/go8086/cpu"
	"github.com/beevik/go8086/disasm"
	"github.com/golang/glog"
	"go.starlark.net/starlark"
)

const defaultOrigin = 0x0100

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displaySource

	displayAll = displayRegisters | displaySource
)

type state byte

const (
	stateProcessingCommands state = iota
	stateRunning
	stateBreakpoint
	stateExited
)

// A Host represents a fully emulated 8086 system, 64K of memory, a built-in
// assembler, a built-in debugger, and other useful tools.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	mem         *cpu.FlatMemory
	cpu         *cpu.CPU
	debugger    *cpu.Debugger
	lastCmd     *cmd.Selection
	state       state
	origin      uint16
	exitCode    int
	exited      bool
	sourceMap   *asm.SourceMap
	settings    *settings
}

// New creates a new 8086 host environment.
func New() *Host {
	h := &Host{
		output:   bufio.NewWriter(os.Stdout),
		state:    stateProcessingCommands,
		origin:   defaultOrigin,
		settings: newSettings(),
	}

	// Create the emulated CPU and memory, with the BIOS entry points in
	// place.
	h.mem = cpu.NewFlatMemory()
	cpu.WriteInterruptProcedures(h.mem)
	h.cpu = cpu.NewCPU(h.mem)
	h.cpu.SetIP(h.origin)

	// Create a CPU debugger and attach it to the CPU. The same handler
	// receives the events raised by BIOS and DOS services.
	handler := newDebugHandler(h)
	h.debugger = cpu.NewDebugger(handler)
	h.cpu.AttachDebugger(h.debugger)
	h.cpu.AttachInterruptHandler(handler)

	return h
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive
	defer h.flush()

	if interactive {
		h.println()
	}

	h.displayPC()

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}
		} else if h.lastCmd != nil {
			c = *h.lastCmd
		}

		if c.Command == nil {
			continue
		}
		h.lastCmd = &c

		handler := c.Command.Data.(func(*Host, cmd.Selection) error)
		err = handler(h, c)
		if err != nil {
			break
		}
	}
}

// Exec loads a program and runs it for at most 'steps' instructions, or
// without a limit when 'steps' is zero. Assembly source files are
// assembled in memory; other files load as binaries with their source
// map. Characters printed by the program are written to 'w'.
func (h *Host) Exec(w io.Writer, filename string, steps int) error {
	h.output = bufio.NewWriter(w)
	defer h.flush()

	if err := h.load(filename, -1); err != nil {
		return err
	}
	return h.run(steps)
}

// ExitCode returns the code passed to the DOS terminate service by the
// most recently run program, if it terminated that way.
func (h *Host) ExitCode() (code int, ok bool) {
	return h.exitCode, h.exited
}

// Break interrupts a running CPU.
func (h *Host) Break() {
	h.println()

	if h.state == stateRunning {
		h.displayPC()
	}
	if h.state == stateProcessingCommands {
		h.prompt()
	}
	h.state = stateProcessingCommands
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("* ")
	}
}

func (h *Host) displayPC() {
	if h.interactive {
		d, _ := h.disassemble(h.cpu.Reg.IP, displayAll)
		h.println(d)
	}
}

func (h *Host) cmdAssemble(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	var options asm.Option
	if len(c.Args) > 1 {
		verbose, err := stringToBool(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if verbose {
			options |= asm.Verbose
		}
	}

	err := asm.AssembleFile(filename, options, h.output)
	if err != nil {
		if _, ok := err.(asm.Errors); !ok {
			h.printf("Failed to assemble '%s': %v\n", filepath.Base(filename), err)
		}
	}
	h.flush()
	return nil
}

func (h *Host) cmdBreakpointList(c cmd.Selection) error {
	h.println("Addr      Enabled")
	h.println("--------- -------")
	for _, b := range h.debugger.Breakpoints() {
		h.printf("%-9s %v\n", b.Addr, !b.Disabled)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	at, err := h.parseCodeAddr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.debugger.SetBreakpoint(at)
	h.printf("Breakpoint added at %s.\n", at)
	return nil
}

func (h *Host) cmdBreakpointRemove(c cmd.Selection) error {
	b := h.selectBreakpoint(c)
	if b == nil {
		return nil
	}

	h.debugger.ClearBreakpoint(b.Addr)
	h.printf("Breakpoint at %s removed.\n", b.Addr)
	return nil
}

func (h *Host) cmdBreakpointEnable(c cmd.Selection) error {
	b := h.selectBreakpoint(c)
	if b == nil {
		return nil
	}

	b.Disabled = false
	h.printf("Breakpoint at %s enabled.\n", b.Addr)
	return nil
}

func (h *Host) cmdBreakpointDisable(c cmd.Selection) error {
	b := h.selectBreakpoint(c)
	if b == nil {
		return nil
	}

	b.Disabled = true
	h.printf("Breakpoint at %s disabled.\n", b.Addr)
	return nil
}

// Find the breakpoint addressed by a command's first argument, reporting
// any problem to the user.
func (h *Host) selectBreakpoint(c cmd.Selection) *cpu.Breakpoint {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	at, err := h.parseCodeAddr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.Breakpoint(at)
	if b == nil {
		h.printf("No breakpoint was set on %s.\n", at)
	}
	return b
}

// Parse a code address written as segment:offset. A bare offset lies in
// the current code segment.
func (h *Host) parseCodeAddr(arg string) (cpu.CodeAddr, error) {
	seg, off, found := strings.Cut(arg, ":")
	if !found {
		ip, err := h.parseExpr(arg)
		return cpu.CodeAddr{Seg: h.cpu.Reg.GetSeg(cpu.CS), IP: ip}, err
	}

	s, err := h.parseExpr(seg)
	if err != nil {
		return cpu.CodeAddr{}, err
	}
	ip, err := h.parseExpr(off)
	if err != nil {
		return cpu.CodeAddr{}, err
	}
	return cpu.CodeAddr{Seg: s, IP: ip}, nil
}

func (h *Host) cmdDataBreakpointList(c cmd.Selection) error {
	h.println("Addr   Enabled  Value")
	h.println("------ -------  -----")
	for _, b := range h.debugger.DataBreakpoints() {
		if b.Conditional {
			h.printf("0x%04X %-5v    0x%02X\n", b.Address, !b.Disabled, b.Value)
		} else {
			h.printf("0x%04X %-5v    <none>\n", b.Address, !b.Disabled)
		}
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	if len(c.Args) > 1 {
		value, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.SetConditionalDataBreakpoint(addr, byte(value))
		h.printf("Conditional data breakpoint added at 0x%04X for value 0x%02X.\n", addr, byte(value))
	} else {
		h.debugger.SetDataBreakpoint(addr)
		h.printf("Data breakpoint added at 0x%04X.\n", addr)
	}

	return nil
}

func (h *Host) cmdDataBreakpointRemove(c cmd.Selection) error {
	b := h.selectDataBreakpoint(c)
	if b == nil {
		return nil
	}

	h.debugger.ClearDataBreakpoint(b.Address)
	h.printf("Data breakpoint at 0x%04X removed.\n", b.Address)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c cmd.Selection) error {
	b := h.selectDataBreakpoint(c)
	if b == nil {
		return nil
	}

	b.Disabled = false
	h.printf("Data breakpoint at 0x%04X enabled.\n", b.Address)
	return nil
}

func (h *Host) cmdDataBreakpointDisable(c cmd.Selection) error {
	b := h.selectDataBreakpoint(c)
	if b == nil {
		return nil
	}

	b.Disabled = true
	h.printf("Data breakpoint at 0x%04X disabled.\n", b.Address)
	return nil
}

func (h *Host) selectDataBreakpoint(c cmd.Selection) *cpu.DataBreakpoint {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.DataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on 0x%04X.\n", addr)
	}
	return b
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextDisasmAddr
		if addr == 0 {
			addr = h.cpu.Reg.IP
		}

	case ".":
		addr = h.cpu.Reg.IP

	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		l, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	for i := 0; i < lines; i++ {
		d, next := h.disassemble(addr, displaySource)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", lines)}
	return nil
}

func (h *Host) cmdEvaluate(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	expr := strings.Join(c.Args, " ")
	v, err := h.parseExpr(expr)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("0x%04X\n", v)
	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.displayCommands("")
		return nil
	}

	topic := strings.ToLower(strings.Join(c.Args, " "))
	for _, e := range helpEntries {
		if e.group == "" && e.name == topic {
			if h.displayCommands(topic) {
				return nil
			}
		}
	}

	s, err := cmds.Lookup(topic)
	if err != nil || s.Command == nil {
		h.println("Command not found.")
		return nil
	}

	if s.Command.Usage != "" {
		h.printf("Syntax: %s\n\n", s.Command.Usage)
	}
	switch {
	case s.Command.Description != "":
		h.printf("Description:\n%s\n\n", indentWrap(3, s.Command.Description))
	case s.Command.Brief != "":
		h.printf("Description:\n%s.\n\n", indentWrap(3, s.Command.Brief))
	}
	return nil
}

func (h *Host) cmdLabels(c cmd.Selection) error {
	if h.sourceMap == nil || len(h.sourceMap.Symbols) == 0 {
		h.println("No labels.")
		return nil
	}
	for _, s := range h.sourceMap.Symbols {
		h.printf("%-16s 0x%04X\n", s.Label, s.Address)
	}
	return nil
}

func (h *Host) cmdLoad(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bin"
	}

	loadAddr := -1
	if len(c.Args) >= 2 {
		addr, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		loadAddr = int(addr)
	}

	if err := h.load(filename, loadAddr); err != nil {
		if _, ok := err.(asm.Errors); !ok {
			h.printf("Failed to load '%s': %v\n", filepath.Base(filename), err)
		}
	}
	return nil
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextMemDumpAddr
		if addr == 0 {
			addr = h.cpu.Reg.IP
		}

	case ".":
		addr = h.cpu.Reg.IP

	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	bytes := uint16(h.settings.MemDumpBytes)
	if len(c.Args) >= 2 {
		var err error
		bytes, err = h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}
	if bytes == 0 {
		return nil
	}

	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + bytes
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", bytes)}
	return nil
}

func (h *Host) cmdMemorySet(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c.Command)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	var b []byte
	for _, s := range c.Args[1:] {
		v, err := h.parseExpr(s)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if v > 0xff {
			h.printf("Value '%s' does not fit in a byte.\n", s)
			return nil
		}
		b = append(b, byte(v))
	}

	h.mem.StoreBytes(addr, b)
	h.printf("Stored %d bytes at 0x%04X.\n", len(b), addr)
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errors.New("Exiting program")
}

func (h *Host) cmdRegister(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println(disasm.GetRegisterString(&h.cpu.Reg))
		d, _ := h.disassemble(h.cpu.Reg.IP, displaySource)
		h.println(d)
		return nil
	}
	if len(c.Args) < 2 {
		h.displayUsage(c.Command)
		return nil
	}

	name := strings.ToLower(c.Args[0])
	v, err := h.parseExpr(strings.Join(c.Args[1:], " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	r := &h.cpu.Reg
	if reg, ok := cpu.LookupRegister(name); ok {
		switch reg.Kind {
		case cpu.Word:
			r.Set16(cpu.Reg16(reg.Index), v)
		case cpu.Segment:
			r.SetSeg(cpu.SegReg(reg.Index), v)
		case cpu.Byte:
			if v > 0xff {
				h.printf("Value 0x%04X does not fit in register %s.\n", v, strings.ToUpper(name))
				return nil
			}
			r.Set8(cpu.Reg8(reg.Index), byte(v))
			h.printf("Register %s set to 0x%02X.\n", strings.ToUpper(name), v)
			return nil
		}
		h.printf("Register %s set to 0x%04X.\n", strings.ToUpper(name), v)
		return nil
	}

	if name == "ip" {
		r.IP = v
		h.settings.NextDisasmAddr = v
		h.printf("Register IP set to 0x%04X.\n", v)
		return nil
	}

	if f := flagRef(r, name); f != nil {
		*f = v != 0
		h.printf("Flag %s set to %v.\n", name, *f)
		return nil
	}

	h.printf("Register '%s' not found.\n", name)
	return nil
}

// Return a pointer to the named flag, or nil if there is no such flag.
func flagRef(r *cpu.Registers, name string) *bool {
	switch name {
	case "carry":
		return &r.Carry
	case "parity":
		return &r.Parity
	case "aux":
		return &r.Aux
	case "zero":
		return &r.Zero
	case "sign":
		return &r.Sign
	case "trap":
		return &r.Trap
	case "interrupt":
		return &r.InterruptDisable
	case "direction":
		return &r.Direction
	case "overflow":
		return &r.Overflow
	default:
		return nil
	}
}

func (h *Host) cmdReset(c cmd.Selection) error {
	h.cpu.Reset()
	h.cpu.SetIP(h.origin)
	h.exited = false
	h.settings.NextDisasmAddr = h.origin
	h.printf("CPU reset. IP set to 0x%04X.\n", h.origin)
	return nil
}

func (h *Host) cmdRun(c cmd.Selection) error {
	if len(c.Args) > 0 {
		ip, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.cpu.SetIP(ip)
	}

	h.printf("Running from %04X:%04X. Press ctrl-C to break.\n",
		h.cpu.Reg.GetSeg(cpu.CS), h.cpu.Reg.IP)

	if err := h.run(h.settings.StepBudget); err != nil {
		h.printf("%v\n", err)
	}
	h.reportStop()

	h.settings.NextDisasmAddr = h.cpu.Reg.IP
	return nil
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			_, _, err = h.settings.Get(key)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v uint16
			v, err = h.parseExpr(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err != nil {
			h.printf("%v\n", err)
			break
		}
		name, v, _ := h.settings.Get(key)
		h.printf("%s = %s\n", name, v)
	}

	return nil
}

func (h *Host) cmdStepIn(c cmd.Selection) error {
	return h.stepCommand(c, h.step)
}

func (h *Host) cmdStepOver(c cmd.Selection) error {
	return h.stepCommand(c, h.stepOver)
}

// Step the CPU a number of times using 'stepFn', displaying the last
// steps taken.
func (h *Host) stepCommand(c cmd.Selection, stepFn func() error) error {
	// Parse the number of steps.
	count := 1
	if len(c.Args) > 0 {
		n, err := h.parseExpr(c.Args[0])
		if err == nil {
			count = int(n)
		}
	}

	h.state = stateRunning
	for i := count - 1; i >= 0 && h.state == stateRunning; i-- {
		if h.cpu.Halted() {
			break
		}
		if err := stepFn(); err != nil {
			h.printf("%v\n", err)
			break
		}
		switch {
		case i == h.settings.MaxStepLines:
			h.println("...")
		case i < h.settings.MaxStepLines:
			h.displayPC()
		}
	}
	if h.state == stateExited {
		h.reportStop()
	}
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.cpu.Reg.IP
	return nil
}

// Load a program into memory. Assembly source is assembled in memory;
// anything else is read as binary code with an optional source map. A
// binary loads at 'addr' when it is not -1, else at its source map's
// origin, else at the default origin.
func (h *Host) load(filename string, addr int) error {
	var code []byte
	var sm *asm.SourceMap

	if strings.EqualFold(filepath.Ext(filename), ".asm") {
		src, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		prog, err := asm.Assemble(strings.NewReader(string(src)), filename, h.output, 0)
		if err != nil {
			if errs, ok := err.(asm.Errors); ok {
				h.println(errs.Render(string(src)))
			}
			return err
		}
		code, sm = prog.Code, prog.SourceMap()
	} else {
		file, err := os.Open(filename)
		if err != nil {
			return err
		}
		defer file.Close()

		prog := &asm.Program{}
		if _, err := prog.ReadFrom(file); err != nil {
			return err
		}
		code = prog.Code
		sm = h.loadSourceMap(filename, code)
	}

	origin := uint16(defaultOrigin)
	switch {
	case addr != -1:
		origin = uint16(addr)
	case sm != nil:
		origin = sm.Origin
	}

	h.mem.StoreBytes(origin, code)
	h.sourceMap = sm
	h.origin = origin
	h.exited = false
	h.cpu.Reset()
	h.cpu.SetIP(origin)
	h.settings.NextDisasmAddr = origin

	glog.V(1).Infof("loaded %s at %04X, %d bytes", filename, origin, len(code))
	if h.interactive {
		h.printf("Loaded '%s' to 0x%04X..0x%04X.\n", filepath.Base(filename), origin, int(origin)+len(code)-1)
	}
	return nil
}

// Read the source map that accompanies a binary file, if there is one.
func (h *Host) loadSourceMap(filename string, code []byte) *asm.SourceMap {
	ext := filepath.Ext(filename)
	mapFilename := filename[:len(filename)-len(ext)] + ".map"

	file, err := os.Open(mapFilename)
	if err != nil {
		return nil
	}
	defer file.Close()

	sm := &asm.SourceMap{}
	if _, err := sm.ReadFrom(file); err != nil {
		h.printf("Failed to read '%s': %v\n", filepath.Base(mapFilename), err)
		return nil
	}
	if !sm.Matches(code) {
		h.printf("Source map '%s' does not match the binary.\n", filepath.Base(mapFilename))
		return nil
	}
	return sm
}

// Run the CPU until it stops or 'limit' instructions have executed. A
// limit of zero runs without a budget.
func (h *Host) run(limit int) error {
	glog.V(1).Infof("run from %04X:%04X", h.cpu.Reg.GetSeg(cpu.CS), h.cpu.Reg.IP)

	h.state = stateRunning
	defer func() {
		if h.state == stateRunning {
			h.state = stateProcessingCommands
		}
	}()

	for n := 0; h.state == stateRunning && !h.cpu.Halted(); n++ {
		if limit > 0 && n >= limit {
			h.flush()
			h.printf("Step budget of %d instructions exhausted.\n", limit)
			return nil
		}
		if err := h.step(); err != nil {
			return err
		}
	}
	return nil
}

// Report why the CPU stopped running.
func (h *Host) reportStop() {
	h.flush()
	switch {
	case h.state == stateExited:
		h.printf("Program exited with code %d.\n", h.exitCode)
	case h.cpu.Halted():
		h.printf("CPU halted at %04X:%04X.\n", h.cpu.Reg.GetSeg(cpu.CS), h.cpu.Reg.IP)
	}
	h.state = stateProcessingCommands
}

func (h *Host) step() error {
	glog.V(2).Infof("step %04X:%04X", h.cpu.Reg.GetSeg(cpu.CS), h.cpu.Reg.IP)
	return h.cpu.Step()
}

// Step over the next instruction. Calls and software interrupts run until
// control returns to the instruction that follows them.
func (h *Host) stepOver() error {
	r := &h.cpu.Reg
	line, next := disasm.Disassemble(h.mem, r.IP)
	if !strings.HasPrefix(line, "call ") && !strings.HasPrefix(line, "int ") {
		return h.step()
	}

	cs, sp := r.GetSeg(cpu.CS), r.Get16(cpu.SP)
	for n := 0; h.state == stateRunning && !h.cpu.Halted(); n++ {
		if h.settings.StepBudget > 0 && n >= h.settings.StepBudget {
			h.printf("Step budget of %d instructions exhausted.\n", h.settings.StepBudget)
			h.state = stateBreakpoint
			return nil
		}
		if err := h.step(); err != nil {
			return err
		}
		if r.IP == next && r.GetSeg(cpu.CS) == cs && r.Get16(cpu.SP) >= sp {
			return nil
		}
	}
	return nil
}

// Evaluate an expression. Numeric literals follow the assembler's syntax
// and honor hex mode; anything else is evaluated as a Starlark expression
// that may refer to registers and program labels.
func (h *Host) parseExpr(expr string) (uint16, error) {
	expr = strings.TrimSpace(expr)
	ids := h.identifiers()
	if _, ok := ids[expr]; !ok {
		if v, ok := parseNumber(expr, h.settings.HexMode); ok {
			return v, nil
		}
	}

	v, err := asm.EvalStarlark(expr, ids)
	if err != nil {
		return 0, err
	}
	if v < -0x8000 || v > 0xffff {
		return 0, fmt.Errorf("value of '%s' does not fit in 16 bits", expr)
	}
	return uint16(v), nil
}

// Return the names visible to expressions: registers, flags and the labels
// of the loaded program, in lower and upper case.
func (h *Host) identifiers() starlark.StringDict {
	ids := starlark.StringDict{}
	add := func(name string, v int) {
		ids[name] = starlark.MakeInt(v)
		ids[strings.ToLower(name)] = starlark.MakeInt(v)
		ids[strings.ToUpper(name)] = starlark.MakeInt(v)
	}

	if h.sourceMap != nil {
		for _, s := range h.sourceMap.Symbols {
			add(s.Label, int(s.Address))
		}
	}

	r := &h.cpu.Reg
	for i := cpu.AX; i <= cpu.DI; i++ {
		add(i.String(), int(r.Get16(i)))
	}
	for i := cpu.AL; i <= cpu.BH; i++ {
		add(i.String(), int(r.Get8(i)))
	}
	for i := cpu.ES; i <= cpu.DS; i++ {
		add(i.String(), int(r.GetSeg(i)))
	}
	add("ip", int(r.IP))
	add("flags", int(r.SaveFlags()))
	return ids
}

func (h *Host) disassemble(addr uint16, flags displayFlags) (str string, next uint16) {
	var line string
	line, next = disasm.Disassemble(h.mem, addr)

	b := make([]byte, next-addr)
	h.mem.LoadBytes(addr, b)

	str = fmt.Sprintf("%04X-   %-17s  %-24s", addr, fmt.Sprintf("% X", b), line)

	if (flags & displayRegisters) != 0 {
		str += " " + disasm.GetRegisterString(&h.cpu.Reg)
	}

	if (flags&displaySource) != 0 && h.sourceMap != nil {
		if file, l := h.sourceMap.Search(int(addr)); l > 0 {
			str += fmt.Sprintf(" ; %s:%d", filepath.Base(file), l)
		}
	}

	return strings.TrimRight(str, " "), next
}

func (h *Host) dumpMemory(addr0, bytes uint16) {
	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := addr0, 6, 32; a <= addr1 && a >= addr0; a, c1, c2 = a+1, c1+3, c2+1 {
			m := h.mem.LoadByte(a)
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
			if a == 0xffff {
				break
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := (uint32(addr1) + 8) & 0xffff8
	if stop > 0x10000 {
		stop = 0x10000
	}

	a := uint16(start)
	for r := start; r < stop; r += 8 {
		addrToBuf(a, buf[0:4])
		for c1, c2 := 6, 32; c1 < 29; c1, c2, a = c1+3, c2+1, a+1 {
			if a >= addr0 && a <= addr1 {
				m := h.mem.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
	}
}

func (h *Host) displayUsage(c *cmd.Command) {
	if c.Usage != "" {
		h.printf("Syntax: %s\n", c.Usage)
	} else {
		h.println("<no help text>")
	}
}

// Display the commands of a group, or the top-level commands when 'group'
// is empty. It returns false if the group has no commands.
func (h *Host) displayCommands(group string) bool {
	var lines []string
	for _, e := range helpEntries {
		if e.group == group && e.brief != "" {
			lines = append(lines, fmt.Sprintf("    %-15s  %s", e.name, e.brief))
		}
	}
	if len(lines) == 0 {
		return false
	}

	title := "go8086"
	if group != "" {
		title = group
	}
	h.printf("%s commands:\n", title)
	for _, l := range lines {
		h.println(l)
	}
	return true
}

func (h *Host) onBreakpoint(cpu *cpu.CPU, b *cpu.Breakpoint) {
	h.state = stateBreakpoint
	h.printf("Breakpoint hit at %s.\n", b.Addr)
	h.displayPC()
}

func (h *Host) onDataBreakpoint(cpu *cpu.CPU, b *cpu.DataBreakpoint) {
	h.printf("Data breakpoint hit on address 0x%04X.\n", b.Address)

	h.state = stateBreakpoint

	if cpu.LastIP != cpu.Reg.IP {
		d, _ := h.disassemble(cpu.LastIP, displayAll)
		h.println(d)
	}

	h.displayPC()
}

// Write the output of BIOS and DOS services to the host output.
func (h *Host) onInterrupt(i cpu.Interrupt) {
	switch e := i.(type) {
	case cpu.Print:
		h.output.WriteByte(e.Char)
	case cpu.PrintString:
		h.print(e.Text)
	case cpu.Exit:
		glog.V(1).Infof("program exited with code %d", e.Code)
		h.exitCode = int(e.Code)
		h.exited = true
		h.state = stateExited
	}
}
