// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/go8086/asm"
	"github.com/beevik/go8086/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSource = `
	mov dx, msg
	mov ah, 9
	int 21h
	mov ax, 4c03h
	int 21h
msg	db "Hello$"`

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func runScript(h *Host, script string) string {
	var out bytes.Buffer
	h.RunCommands(strings.NewReader(script), &out, false)
	return out.String()
}

func TestEvaluate(t *testing.T) {
	h := New()
	assert.Equal(t, "0x000E\n", runScript(h, "evaluate 2+3*4\n"))
	assert.Equal(t, "0x0020\n", runScript(h, "evaluate 20h\n"))
	assert.Equal(t, "0xFFFF\n", runScript(h, "evaluate -1\n"))

	out := runScript(h, "set hexmode true\nevaluate 10\n")
	assert.Equal(t, "HexMode = true\n0x0010\n", out)
}

func TestRegisterCommand(t *testing.T) {
	h := New()

	out := runScript(h, "register ax 1234h\nevaluate ax\n")
	assert.Equal(t, "Register AX set to 0x1234.\n0x1234\n", out)

	out = runScript(h, "register bl 7\nregister carry 1\n")
	assert.Equal(t, "Register BL set to 0x07.\nFlag carry set to true.\n", out)
	assert.Equal(t, byte(7), h.cpu.Reg.Get8(cpu.BL))
	assert.True(t, h.cpu.Reg.Carry)

	out = runScript(h, "register bl 1234h\nregister xyz 1\n")
	assert.Equal(t, "Value 0x1234 does not fit in register BL.\nRegister 'xyz' not found.\n", out)

	out = runScript(h, "register\n")
	assert.True(t, strings.HasPrefix(out, "AX=1234 BX=0007"))
}

func TestBreakpointCommands(t *testing.T) {
	h := New()

	out := runScript(h, "breakpoint add 200h\nbreakpoint disable 200h\nbreakpoint list\n")
	assert.Equal(t, "Breakpoint added at 0000:0200.\n"+
		"Breakpoint at 0000:0200 disabled.\n"+
		"Addr      Enabled\n"+
		"--------- -------\n"+
		"0000:0200 false\n", out)

	out = runScript(h, "breakpoint remove 200h\nbreakpoint remove 200h\n")
	assert.Equal(t, "Breakpoint at 0000:0200 removed.\nNo breakpoint was set on 0000:0200.\n", out)

	out = runScript(h, "breakpoint add 0f000h:50h\nbreakpoint add 50h\nbreakpoint list\n")
	assert.Equal(t, "Breakpoint added at F000:0050.\n"+
		"Breakpoint added at 0000:0050.\n"+
		"Addr      Enabled\n"+
		"--------- -------\n"+
		"0000:0050 true\n"+
		"F000:0050 true\n", out)

	out = runScript(h, "breakpoint remove 0f000h:50h\nbreakpoint enable 0f000h:50h\n")
	assert.Equal(t, "Breakpoint at F000:0050 removed.\nNo breakpoint was set on F000:0050.\n", out)

	out = runScript(h, "databreakpoint add 300h 5\ndatabreakpoint list\n")
	assert.Contains(t, out, "Conditional data breakpoint added at 0x0300 for value 0x05.\n")
	assert.Contains(t, out, "0x0300 true     0x05\n")
}

func TestMemoryCommands(t *testing.T) {
	h := New()

	out := runScript(h, "memory set 300h 41h 42h\nmemory dump 300h 2\n")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Stored 2 bytes at 0x0300.", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0300- 41 42"))
	assert.True(t, strings.HasSuffix(lines[1], "AB"))

	out = runScript(h, "memory dump 308h 10h\n")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0308- 00"))
	assert.True(t, strings.HasPrefix(lines[1], "0310- 00"))

	out = runScript(h, "memory set 300h 100h\n")
	assert.Equal(t, "Value '100h' does not fit in a byte.\n", out)
}

func TestUnknownCommand(t *testing.T) {
	h := New()
	assert.Equal(t, "Command not found.\n", runScript(h, "frobnicate\n"))
}

func TestAssembleLoadRun(t *testing.T) {
	path := writeSource(t, "hello.asm", helloSource)
	binPath := strings.TrimSuffix(path, ".asm") + ".bin"

	h := New()
	out := runScript(h, "assemble "+path+"\nload "+binPath+"\nrun\nlabels\n")

	assert.Contains(t, out, "Assembled 'hello.asm' to produce 'hello.bin' and 'hello.map'.")
	assert.Contains(t, out, "Running from 0000:0100. Press ctrl-C to break.\nHello")
	assert.Contains(t, out, "Program exited with code 3.")
	assert.Contains(t, out, "msg")

	code, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	// The source map follows the binary.
	assert.NotNil(t, h.sourceMap)
	d, _ := h.disassemble(0x100, displaySource)
	assert.True(t, strings.HasSuffix(d, "; hello.asm:2"), d)
}

func TestExec(t *testing.T) {
	path := writeSource(t, "hello.asm", helloSource)

	var out bytes.Buffer
	h := New()
	require.NoError(t, h.Exec(&out, path, 1000))
	assert.Equal(t, "Hello", out.String())

	code, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	addr, err := h.parseExpr("msg+1")
	require.NoError(t, err)
	require.Len(t, h.sourceMap.Symbols, 1)
	assert.Equal(t, h.sourceMap.Symbols[0].Address+1, addr)
}

func TestExecBudget(t *testing.T) {
	path := writeSource(t, "spin.asm", "again:\n\tjmp again\n")

	var out bytes.Buffer
	h := New()
	require.NoError(t, h.Exec(&out, path, 10))
	assert.Equal(t, "Step budget of 10 instructions exhausted.\n", out.String())

	_, ok := h.ExitCode()
	assert.False(t, ok)
}

func TestExecErrors(t *testing.T) {
	path := writeSource(t, "bad.asm", "\tmov ax,\n")

	var out bytes.Buffer
	h := New()
	err := h.Exec(&out, path, 10)
	require.Error(t, err)
	_, ok := err.(asm.Errors)
	assert.True(t, ok)
	assert.NotEmpty(t, out.String())

	err = h.Exec(&out, filepath.Join(t.TempDir(), "missing.bin"), 10)
	assert.Error(t, err)
}

func TestExecFault(t *testing.T) {
	path := writeSource(t, "fault.asm", "\tmov ah, 1\n\tint 21h\n")

	var out bytes.Buffer
	h := New()
	err := h.Exec(&out, path, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, cpu.ErrFunctionUnknown)
}

func TestStepCommands(t *testing.T) {
	src := `
	call proc
	mov ah, 2
	mov dl, 'x'
	int 21h
	hlt
proc:
	mov ax, 2
	ret`
	path := writeSource(t, "step.asm", src)

	h := New()
	out := runScript(h, "load "+path+"\nstep over\n")
	assert.Empty(t, out)
	assert.Equal(t, uint16(0x103), h.cpu.Reg.IP)
	assert.Equal(t, uint16(2), h.cpu.Reg.Get16(cpu.AX))
	assert.Equal(t, uint16(0xfffe), h.cpu.Reg.Get16(cpu.SP))

	out = runScript(h, "step in 2\nstep over\n")
	assert.Equal(t, "x", out)
	assert.Equal(t, uint16(0x109), h.cpu.Reg.IP)
	assert.Equal(t, uint16(0), h.cpu.Reg.GetSeg(cpu.CS))

	out = runScript(h, "step over\nstep over\n")
	assert.Equal(t, "", out)
	assert.True(t, h.cpu.Halted())
}

func TestRunBreakpoint(t *testing.T) {
	path := writeSource(t, "bp.asm", "\tmov ax, 1\n\tinc ax\n\thlt\n")

	h := New()
	out := runScript(h, "load "+path+"\nbreakpoint add 103h\nrun\n")
	assert.Contains(t, out, "Breakpoint hit at 0000:0103.")
	assert.Equal(t, uint16(0x103), h.cpu.Reg.IP)
	assert.Equal(t, uint16(1), h.cpu.Reg.Get16(cpu.AX))

	out = runScript(h, "run\n")
	assert.Contains(t, out, "CPU halted at 0000:0105.")
	assert.Equal(t, uint16(2), h.cpu.Reg.Get16(cpu.AX))
}

func TestRunBreakpointInHandler(t *testing.T) {
	path := writeSource(t, "bph.asm", "\tmov ah, 2\n\tmov dl, 'x'\n\tint 21h\n\thlt\n")

	h := New()
	out := runScript(h, "load "+path+"\nbreakpoint add 50h\nbreakpoint add 0f000h:50h\nrun\n")
	assert.Contains(t, out, "Breakpoint hit at F000:0050.")
	assert.NotContains(t, out, "Breakpoint hit at 0000:0050.")
	assert.Equal(t, uint16(cpu.BIOSSegment), h.cpu.Reg.GetSeg(cpu.CS))
	assert.Equal(t, uint16(cpu.DOSHandler), h.cpu.Reg.IP)

	out = runScript(h, "run\n")
	assert.Contains(t, out, "x")
	assert.True(t, h.cpu.Halted())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		s       string
		hexMode bool
		v       uint16
		ok      bool
	}{
		{"10", false, 10, true},
		{"10", true, 0x10, true},
		{"10h", false, 0x10, true},
		{"0ffh", false, 0xff, true},
		{"0x1F", false, 0x1f, true},
		{"ff", true, 0xff, true},
		{"ff", false, 0, false},
		{"ffh", false, 0, false},
		{"70000", false, 0, false},
		{"", false, 0, false},
	}

	for _, tt := range tests {
		v, ok := parseNumber(tt.s, tt.hexMode)
		assert.Equal(t, tt.ok, ok, tt.s)
		assert.Equal(t, tt.v, v, tt.s)
	}
}

func TestSettings(t *testing.T) {
	s := newSettings()
	require.NoError(t, s.Set("hex", true))
	assert.True(t, s.HexMode)

	require.NoError(t, s.Set("memdump", uint16(16)))
	assert.Equal(t, 16, s.MemDumpBytes)

	assert.Error(t, s.Set("hexmode", uint16(1)))
	assert.Error(t, s.Set("disasmlines", true))
	assert.Error(t, s.Set("nosuchsetting", 1))
	assert.Error(t, s.Set("disasm", uint16(0)))
	assert.Error(t, s.Set("next", uint16(1)))

	name, v, err := s.Get("memd")
	require.NoError(t, err)
	assert.Equal(t, "MemDumpBytes", name)
	assert.Equal(t, "16", v)

	var b bytes.Buffer
	s.Display(&b)
	assert.Contains(t, b.String(), "NextDisasmAddr   0x0000")
}

func TestIndentWrap(t *testing.T) {
	assert.Equal(t, "   a b c", indentWrap(3, "a  b\nc"))

	long := strings.Repeat("word ", 30)
	for _, l := range strings.Split(indentWrap(4, long), "\n") {
		assert.True(t, len(l) <= 80)
		assert.True(t, strings.HasPrefix(l, "    word"))
	}
}
