// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"io"
	"strings"
	"testing"

	"github.com/beevik/go8086/asm"
	"github.com/beevik/go8086/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkDisasm(t *testing.T, code []byte, expected string) {
	t.Helper()
	mem := cpu.NewFlatMemory()
	mem.StoreBytes(0x100, code)

	line, next := Disassemble(mem, 0x100)
	assert.Equal(t, expected, line, "% X", code)
	assert.Equal(t, uint16(0x100+len(code)), next, "% X", code)
}

func TestDisassemble(t *testing.T) {
	checkDisasm(t, []byte{0xb8, 0x34, 0x12}, "mov ax, 0x1234")
	checkDisasm(t, []byte{0xb1, 0x07}, "mov cl, 0x07")
	checkDisasm(t, []byte{0x01, 0xd8}, "add ax, bx")
	checkDisasm(t, []byte{0x2a, 0xe3}, "sub ah, bl")
	checkDisasm(t, []byte{0x8b, 0x47, 0x10}, "mov ax, [bx+0x10]")
	checkDisasm(t, []byte{0x8a, 0x46, 0xfe}, "mov al, [bp-0x02]")
	checkDisasm(t, []byte{0x89, 0x88, 0x00, 0x01}, "mov [bx+si+0x0100], cx")
	checkDisasm(t, []byte{0xc7, 0x06, 0x00, 0x20, 0xef, 0xbe}, "mov w.[0x2000], 0xBEEF")
	checkDisasm(t, []byte{0xc6, 0x07, 0x05}, "mov b.[bx], 0x05")
	checkDisasm(t, []byte{0x83, 0xc0, 0xff}, "add ax, 0xFFFF")
	checkDisasm(t, []byte{0x80, 0x3e, 0x00, 0x30, 0x05}, "cmp b.[0x3000], 0x05")
	checkDisasm(t, []byte{0x81, 0xe3, 0xf0, 0x00}, "and bx, 0x00F0")
	checkDisasm(t, []byte{0x3c, 0x41}, "cmp al, 0x41")
	checkDisasm(t, []byte{0x05, 0x00, 0x10}, "add ax, 0x1000")
	checkDisasm(t, []byte{0x8c, 0xd8}, "mov ax, ds")
	checkDisasm(t, []byte{0x8e, 0xc0}, "mov es, ax")
	checkDisasm(t, []byte{0x1e}, "push ds")
	checkDisasm(t, []byte{0x07}, "pop es")
	checkDisasm(t, []byte{0x53}, "push bx")
	checkDisasm(t, []byte{0x5e}, "pop si")
	checkDisasm(t, []byte{0x47}, "inc di")
	checkDisasm(t, []byte{0x49}, "dec cx")
	checkDisasm(t, []byte{0x8f, 0x06, 0x02, 0x05}, "pop [0x0502]")
	checkDisasm(t, []byte{0xff, 0x36, 0x00, 0x05}, "push [0x0500]")
	checkDisasm(t, []byte{0xfe, 0xc0}, "inc al")
	checkDisasm(t, []byte{0xff, 0x0f}, "dec w.[bx]")
	checkDisasm(t, []byte{0xff, 0x16, 0x00, 0x20}, "call [0x2000]")
	checkDisasm(t, []byte{0xff, 0xe3}, "jmp bx")
	checkDisasm(t, []byte{0xf7, 0xf3}, "div bx")
	checkDisasm(t, []byte{0xf6, 0x2f}, "imul b.[bx]")
	checkDisasm(t, []byte{0xf7, 0xd8}, "neg ax")
	checkDisasm(t, []byte{0xcd, 0x21}, "int 0x21")
	checkDisasm(t, []byte{0xf1, 0x10}, "bios 0x10")
	checkDisasm(t, []byte{0xc2, 0x02, 0x00}, "ret 0x0002")
	checkDisasm(t, []byte{0xc3}, "ret")
	checkDisasm(t, []byte{0xcf}, "iret")
	checkDisasm(t, []byte{0x9c}, "pushf")
	checkDisasm(t, []byte{0xf9}, "stc")
	checkDisasm(t, []byte{0xfb}, "sti")
	checkDisasm(t, []byte{0xf4}, "hlt")
}

func TestDisassembleBranches(t *testing.T) {
	checkDisasm(t, []byte{0x74, 0xfe}, "je 0x0100")
	checkDisasm(t, []byte{0x7f, 0x10}, "jg 0x0112")
	checkDisasm(t, []byte{0xeb, 0x00}, "jmp 0x0102")
	checkDisasm(t, []byte{0xe2, 0xfc}, "loop 0x00FE")
	checkDisasm(t, []byte{0xe9, 0x00, 0x01}, "jmp 0x0203")
	checkDisasm(t, []byte{0xe8, 0xfd, 0xff}, "call 0x0100")
}

func TestDisassembleData(t *testing.T) {
	mem := cpu.NewFlatMemory()
	cases := [][]byte{
		{0x0f, 0x00},       // unimplemented opcode
		{0xf6, 0xc0, 0x01}, // test has no implementation
		{0x8e, 0xc8},       // mov cs, ax
		{0xfe, 0xd0},       // byte call
		{0xc6, 0x4f, 0x01}, // mov with a nonzero reg field
	}
	for _, c := range cases {
		mem.StoreBytes(0x100, c)
		line, next := Disassemble(mem, 0x100)
		assert.Equal(t, "db "+imm8(c[0]), line)
		assert.Equal(t, uint16(0x101), next)
	}
}

func TestDisassembleProgram(t *testing.T) {
	src := `
	mov cx, 3
again:
	add ax, [bx+di]
	loop again
	int 21h
	hlt`

	prog, err := asm.Assemble(strings.NewReader(src), "test.asm", io.Discard, 0)
	require.NoError(t, err)

	mem := cpu.NewFlatMemory()
	prog.Load(mem)

	var lines []string
	addr := prog.Origin
	for addr < prog.Origin+uint16(len(prog.Code)) {
		var line string
		line, addr = Disassemble(mem, addr)
		lines = append(lines, line)
	}
	assert.Equal(t, []string{
		"mov cx, 0x0003",
		"add ax, [bx+di]",
		"loop 0x0103",
		"int 0x21",
		"hlt",
	}, lines)
}

func TestRegisterString(t *testing.T) {
	var r cpu.Registers
	r.Init()
	r.Set16(cpu.AX, 0x1234)
	r.IP = 0x100
	r.Carry, r.Zero = true, true
	assert.Equal(t,
		"AX=1234 BX=0000 CX=0000 DX=0000 SP=FFFE BP=0000 SI=0000 DI=0000"+
			" DS=0000 ES=0000 SS=0000 CS=0000 IP=0100 --I--Z--C",
		GetRegisterString(&r))
}
