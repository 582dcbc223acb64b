// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(code string) (*Program, error) {
	return Assemble(strings.NewReader(code), "test", io.Discard, 0)
}

func checkASM(t *testing.T, asm string, expected string) {
	t.Helper()
	prog, err := assemble(asm)
	require.NoError(t, err)
	assert.Equal(t, expected, strings.ReplaceAll(byteString(prog.Code), " ", ""))
}

func checkASMError(t *testing.T, asm string, errString string) {
	t.Helper()
	_, err := assemble(asm)
	require.Error(t, err, asm)
	assert.Equal(t, errString, err.Error())
}

// Assemble source expected to fail and return its diagnostics.
func assembleErrors(t *testing.T, asm string) Errors {
	t.Helper()
	prog, err := assemble(asm)
	assert.Nil(t, prog)
	var errs Errors
	require.ErrorAs(t, err, &errs)
	return errs
}

func TestMovImmediate(t *testing.T) {
	prog, err := assemble(`
	org 100h
	mov ax, 0x1234`)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x100), prog.Origin)
	assert.Equal(t, []byte{0xb8, 0x34, 0x12}, prog.Code)
}

func TestMov(t *testing.T) {
	asm := `
	mov ax, bx
	mov cl, ah
	mov bx, [si]
	mov [bx+di+4], ax
	mov [bp], dx
	mov b.[1234h], 5
	mov [bx+200h], si
	mov al, 'A'
	mov ds, ax
	mov ax, es
	mov si, -1
	mov dl, [bx+si-2]
	mov w.[di], 7`

	checkASM(t, asm, "8BC3"+"8ACC"+"8B1C"+"894104"+"895600"+"C606341205"+
		"89B70002"+"B041"+"8ED8"+"8CC0"+"BEFFFF"+"8A50FE"+"C7050700")
}

func TestALU(t *testing.T) {
	asm := `
	add ax, bx
	sub cx, 5
	cmp al, 10
	and dx, 1234h
	xor [bx], ax
	or ax, -2
	adc b.[di], 1
	sbb bl, [si+1]
	cmp ax, 200`

	checkASM(t, asm, "03C3"+"83E905"+"80F80A"+"81E23412"+"3107"+"83C8FE"+
		"801501"+"1A5C01"+"81F8C800")
}

func TestGroups(t *testing.T) {
	asm := `
	mul bx
	div cl
	idiv w.[si]
	imul b.[bx]
	neg ax
	not dl
	inc ax
	dec di
	inc bl
	dec w.[bx]`

	checkASM(t, asm, "F7E3"+"F6F1"+"F73C"+"F62F"+"F7D8"+"F6D2"+"40"+"4F"+"FEC3"+"FF0F")
}

func TestStack(t *testing.T) {
	asm := `
	push ax
	push ds
	pop es
	pop bx
	push [bx]
	pop [si]
	pushf
	popf`

	checkASM(t, asm, "50"+"1E"+"07"+"5B"+"FF37"+"8F04"+"9C"+"9D")
}

func TestCallRetInt(t *testing.T) {
	asm := `
	call proc
	int 21h
	hlt
proc:
	ret
	ret 4
	iret
	call bx`

	checkASM(t, asm, "E80300"+"CD21"+"F4"+"C3"+"C20400"+"CF"+"FFD3")
}

func TestMisc(t *testing.T) {
	checkASM(t, "nop\nclc\nstc\ncli\nsti\nhlt", "90F8F9FAFBF4")
}

func TestShortJumps(t *testing.T) {
	checkASM(t, "start: jmp start", "EBFE")
	checkASM(t, "jz fwd\nnop\nfwd:", "740190")
	checkASM(t, "back: nop\njnc back\nloop back", "90"+"73FD"+"E2FB")
}

func TestConditionalJumpRelaxation(t *testing.T) {
	// Target 127 bytes past the end of the short form.
	prog, err := assemble("jz target\n" + strings.Repeat("nop\n", 127) + "target: nop")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x74, 0x7f}, prog.Code[:2])
	assert.Len(t, prog.Code, 2+127+1)
	addr, ok := prog.Lookup("target")
	require.True(t, ok)
	assert.Equal(t, uint16(0x181), addr)

	// One byte farther forces the near form.
	prog, err = assemble("jz target\n" + strings.Repeat("nop\n", 128) + "target: nop")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x75, 0x03, 0xe9, 0x80, 0x00}, prog.Code[:5])
	assert.Len(t, prog.Code, 5+128+1)
	addr, ok = prog.Lookup("target")
	require.True(t, ok)
	assert.Equal(t, uint16(0x185), addr)
}

func TestJumpRelaxation(t *testing.T) {
	prog, err := assemble("jmp target\n" + strings.Repeat("nop\n", 128) + "target: nop")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xe9, 0x80, 0x00}, prog.Code[:3])

	// Backward jumps of exactly -128 stay short.
	prog, err = assemble("back:\n" + strings.Repeat("nop\n", 126) + "jmp back")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xeb, 0x80}, prog.Code[126:])

	prog, err = assemble("back:\n" + strings.Repeat("nop\n", 127) + "jmp back")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xe9, 0x7e, 0xff}, prog.Code[127:])
}

func TestRelaxationSettles(t *testing.T) {
	// Each jump's distance depends on the size of the other.
	src := "a: jz b\n" + strings.Repeat("nop\n", 124) + "jnz a\n" +
		strings.Repeat("nop\n", 3) + "b: nop"
	prog, err := assemble(src)
	require.NoError(t, err)

	var total int
	for _, c := range prog.Chunks {
		assert.Equal(t, uint16(0x100+total), c.Address)
		total += len(c.Bytes)
	}
	assert.Len(t, prog.Code, total)

	b, _ := prog.Lookup("b")
	assert.Equal(t, uint16(0x100+len(prog.Code)-1), b)
}

func TestLoopOutOfRange(t *testing.T) {
	errs := assembleErrors(t, "back:\n"+strings.Repeat("nop\n", 127)+"loop back")
	require.Len(t, errs, 1)
	assert.Equal(t, "loop target out of range", errs[0].Message)
	assert.Equal(t, 128, errs[0].Line)
}

func TestCaseInsensitive(t *testing.T) {
	checkASM(t, "MOV AX, 1", "B80100")
	checkASM(t, "mov ax, 1", "B80100")
	checkASM(t, "Mov Ax, 1", "B80100")
	checkASM(t, "Start: JMP START", "EBFE")
	checkASM(t, "ORG 200H\nData: DB 1", "01")
}

func TestDuplicateLabel(t *testing.T) {
	checkASMError(t, "Start: nop\nstart: nop",
		"Syntax error in 'test' line 2, col 1: duplicate label 'start'")
}

func TestDataBlock(t *testing.T) {
	asm := `
.data
	mov ax, 1
	add ax, 2
code:
	mov bx, 3`

	prog, err := assemble(asm)
	require.NoError(t, err)
	assert.Equal(t, "EB06B8010083C002BB0300", strings.ReplaceAll(byteString(prog.Code), " ", ""))

	addr, ok := prog.Lookup("code")
	require.True(t, ok)
	assert.Equal(t, uint16(0x108), addr)

	// The block's boundary label is not a user symbol.
	symbols := prog.Labels.Symbols()
	require.Len(t, symbols, 1)
	assert.Equal(t, Symbol{Label: "code", Address: 0x108}, symbols[0])
}

func TestDataBlockClosedByCode(t *testing.T) {
	asm := `
.data
msg	db "Hi$"
.code
	mov dx, msg`

	checkASM(t, asm, "EB03"+"486924"+"BA0201")
}

func TestDataBlockAtEnd(t *testing.T) {
	checkASM(t, ".data\ndb 1, 2", "EB020102")
}

func TestDataBlocks(t *testing.T) {
	asm := `
.DATA
	db 1
.code
	nop
.data
	db 2`

	checkASM(t, asm, "EB0101"+"90"+"EB0102")
}

func TestLabelBeyondAddressSpace(t *testing.T) {
	// Fill everything from the origin to the end of the 64K space.
	fill := strings.Repeat("\tdw 0, 0, 0, 0, 0, 0, 0, 0\n", (0x10000-0x100)/16)

	_, err := assemble(fill + "last:\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label 'last' lies beyond the 64K address space")

	line := "\tdw 0, 0, 0, 0, 0, 0, 0, 0\n"
	short := fill[:len(fill)-len(line)] + "\tdw 0, 0, 0, 0, 0, 0, 0\n\tdb 0\n"
	prog, err := assemble(short + "last:\n\tdb 0")
	require.NoError(t, err)
	addr, ok := prog.Lookup("last")
	require.True(t, ok)
	assert.Equal(t, uint16(0xffff), addr)
}

func TestData(t *testing.T) {
	asm := `
msg	db "Hi$", 0
	dw 1234h, msg
	db 'a', -1`

	checkASM(t, asm, "48692400"+"34120001"+"61FF")
}

func TestConstants(t *testing.T) {
	asm := `
count	equ 10
	mov cx, count
	mov ax, $(count * 2 + 1)
	mov bl, $(COUNT // 3)
	add si, count`

	checkASM(t, asm, "B90A00"+"B81500"+"B303"+"83C60A")
}

func TestConstantErrors(t *testing.T) {
	_, err := assemble("mov ax, $(1 +)")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Syntax error in 'test' line 1, col 9: cannot evaluate '1 +'"), err.Error())

	errs := assembleErrors(t, "mov ax, later\nlater equ 5")
	require.Len(t, errs, 1)
	assert.Equal(t, "undefined label 'later'", errs[0].Message)

	errs = assembleErrors(t, "x equ 1\nx equ 2")
	require.Len(t, errs, 1)
	assert.Equal(t, "constant 'x' already defined", errs[0].Message)

	errs = assembleErrors(t, "here: nop\nx equ here")
	require.Len(t, errs, 1)
	assert.Equal(t, "constant must not depend on a label", errs[0].Message)
}

func TestLabelReferences(t *testing.T) {
	asm := `
	mov ax, [value]
	mov bx, [bx+value]
	add cx, value
	mov si, value
value	dw 7`

	// 8B 06 disp16, 8B 9F disp16, 81 C1 iw, BE iw
	checkASM(t, asm, "8B060F01"+"8B9F0F01"+"81C10F01"+"BE0F01"+"0700")
}

func TestMissingOperand(t *testing.T) {
	errs := assembleErrors(t, "mov ax,")
	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, 0, e.Line)
	assert.Equal(t, 7, e.Column)
	assert.Equal(t, 1, e.Length)
	assert.Equal(t, "expected source operand", e.Message)
	assert.Equal(t, "Syntax error in 'test' line 1, col 8: expected source operand\nmov ax, \n-------^",
		e.Render("mov ax,"))
}

func TestMultipleErrors(t *testing.T) {
	errs := assembleErrors(t, "mov ax,\nfoo bx\njmp nowhere\nmov ax, bl")
	require.Len(t, errs, 4)

	assert.Equal(t, 0, errs[0].Line)
	assert.Equal(t, "unknown instruction 'foo'", errs[1].Message)
	assert.Equal(t, 1, errs[1].Line)
	assert.Equal(t, "undefined label 'nowhere'", errs[2].Message)
	assert.Equal(t, 2, errs[2].Line)
	assert.Equal(t, 4, errs[2].Column)
	assert.Equal(t, "operand size mismatch", errs[3].Message)
	assert.Equal(t, 3, errs[3].Line)
	assert.Equal(t, 8, errs[3].Column)
}

func TestOperandErrors(t *testing.T) {
	cases := []struct {
		src string
		msg string
	}{
		{"mov cs, ax", "cannot move into CS"},
		{"pop cs", "cannot pop into CS"},
		{"mov 5, ax", "destination cannot be an immediate value"},
		{"mov [bx+bp], ax", "more than one base register"},
		{"mov [ax], bx", "'ax' cannot be used as a base or index register"},
		{"mov al, 300", "value 300 out of range"},
		{"int 300", "value 300 out of range"},
		{"mov b.[bx], ax", "operand size mismatch"},
		{"nop ax", "unexpected 'ax'"},
		{"mov ax bx", "expected ',', found 'bx'"},
		{"nop\norg 200h", "origin directive must appear before first instruction"},
		{"b. ax", "expected instruction, found 'b.'"},
	}
	for _, c := range cases {
		errs := assembleErrors(t, c.src)
		if assert.Len(t, errs, 1, c.src) {
			assert.Equal(t, c.msg, errs[0].Message, c.src)
		}
	}
}

func TestLexicalErrorsReportedOnce(t *testing.T) {
	errs := assembleErrors(t, "mov ax, #\nmov bx, 70000")
	require.Len(t, errs, 2)
	assert.Equal(t, "unexpected character '#'", errs[0].Message)
	assert.Equal(t, "test", errs[0].File)
	assert.Equal(t, 1, errs[1].Line)
}

func TestChunks(t *testing.T) {
	prog, err := assemble("org 200h\n  mov ax, 1\nstart: add ax, bx\n")
	require.NoError(t, err)
	require.Len(t, prog.Chunks, 2)

	assert.Equal(t, CompiledBytes{Address: 0x200, Bytes: []byte{0xb8, 0x01, 0x00}, Line: 1, Column: 2}, prog.Chunks[0])
	assert.Equal(t, CompiledBytes{Address: 0x203, Bytes: []byte{0x03, 0xc3}, Line: 2, Column: 7}, prog.Chunks[1])
}

func TestSourceMap(t *testing.T) {
	prog, err := assemble("mov ax, 1\n\nstart: nop\n")
	require.NoError(t, err)

	sm := prog.SourceMap()
	assert.Equal(t, uint16(0x100), sm.Origin)
	assert.True(t, sm.Matches(prog.Code))
	assert.Equal(t, []Symbol{{Label: "start", Address: 0x103}}, sm.Symbols)

	var buf bytes.Buffer
	_, err = sm.WriteTo(&buf)
	require.NoError(t, err)

	var sm2 SourceMap
	_, err = sm2.ReadFrom(&buf)
	require.NoError(t, err)

	file, line := sm2.Search(0x103)
	assert.Equal(t, "test", file)
	assert.Equal(t, 3, line)

	_, line = sm2.Search(0x101)
	assert.Equal(t, -1, line)
}

func TestAssembleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.asm")
	require.NoError(t, os.WriteFile(path, []byte("mov ax, 1\nhlt\n"), 0600))

	var out bytes.Buffer
	require.NoError(t, AssembleFile(path, 0, &out))
	assert.Equal(t, "Assembled 'hello.asm' to produce 'hello.bin' and 'hello.map'.\n", out.String())

	code, err := os.ReadFile(filepath.Join(dir, "hello.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xb8, 0x01, 0x00, 0xf4}, code)

	f, err := os.Open(filepath.Join(dir, "hello.map"))
	require.NoError(t, err)
	defer f.Close()
	var sm SourceMap
	_, err = sm.ReadFrom(f)
	require.NoError(t, err)
	assert.True(t, sm.Matches(code))
}

func TestVerbose(t *testing.T) {
	var out bytes.Buffer
	_, err := Assemble(strings.NewReader("start: mov ax, 1"), "test", &out, Verbose)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "-- Generating code --")
	assert.Contains(t, out.String(), "0100-   B8 01 00    start: mov ax, 1")
}
