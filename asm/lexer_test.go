// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenKinds(tokens []Token) []TokenKind {
	kinds := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		kinds[i] = t.Kind
	}
	return kinds
}

func TestLexStatement(t *testing.T) {
	tokens, errs := Lex("  mov AX, [bx+si+10h] ; comment")
	require.Empty(t, errs)
	assert.Equal(t, []TokenKind{
		Instruction, Register16, Comma, LBracket, Register16, Plus,
		Register16, Plus, Number, RBracket,
	}, tokenKinds(tokens))

	assert.Equal(t, 2, tokens[0].Column)
	assert.Equal(t, 3, tokens[0].Length)
	assert.Equal(t, "mov", tokens[0].Mnemonic.Name)
	assert.Equal(t, "AX", tokens[1].Text)
	assert.Equal(t, 0, tokens[1].Value)
	assert.Equal(t, 3, tokens[4].Value)
	assert.Equal(t, 6, tokens[6].Value)
	assert.Equal(t, 0x10, tokens[8].Value)
}

func TestLexLines(t *testing.T) {
	tokens, errs := Lex("start:\n\tjmp start\n")
	require.Empty(t, errs)
	require.Len(t, tokens, 4)
	assert.Equal(t, []TokenKind{Identifier, Colon, Instruction, Identifier}, tokenKinds(tokens))
	assert.Equal(t, 0, tokens[1].Line)
	assert.Equal(t, 1, tokens[2].Line)
	assert.Equal(t, 1, tokens[2].Column)
}

func TestLexNumbers(t *testing.T) {
	cases := []struct {
		src   string
		value int
	}{
		{"42", 42},
		{"0x1F", 0x1f},
		{"1Fh", 0x1f},
		{"0ffffh", 0xffff},
		{"101b", 5},
		{"0bh", 0x0b},
		{"65535", 0xffff},
	}
	for _, c := range cases {
		tokens, errs := Lex(c.src)
		require.Empty(t, errs, c.src)
		require.Len(t, tokens, 1, c.src)
		assert.Equal(t, Number, tokens[0].Kind, c.src)
		assert.Equal(t, c.value, tokens[0].Value, c.src)
	}
}

func TestLexRegisters(t *testing.T) {
	tokens, errs := Lex("al BH cx Sp ds es")
	require.Empty(t, errs)
	assert.Equal(t, []TokenKind{
		Register8, Register8, Register16, Register16, SegmentRegister, SegmentRegister,
	}, tokenKinds(tokens))
	assert.Equal(t, 7, tokens[1].Value)
	assert.Equal(t, 4, tokens[3].Value)
	assert.Equal(t, 3, tokens[4].Value)
}

func TestLexStringsAndExpressions(t *testing.T) {
	tokens, errs := Lex(`db "a;b", 'c' $(max(1, (2))) B.[bx]`)
	require.Empty(t, errs)
	assert.Equal(t, []TokenKind{
		Directive, String, Comma, String, Expression, SizeMarker, LBracket, Register16, RBracket,
	}, tokenKinds(tokens))
	assert.Equal(t, "a;b", tokens[1].Str)
	assert.Equal(t, "c", tokens[3].Str)
	assert.Equal(t, "max(1, (2))", tokens[4].Str)
	assert.Equal(t, 1, tokens[5].Value)
}

func TestLexErrors(t *testing.T) {
	_, errs := Lex("mov ax, #")
	require.Len(t, errs, 1)
	assert.Equal(t, 8, errs[0].Column)
	assert.Equal(t, "unexpected character '#'", errs[0].Message)

	_, errs = Lex("mov ax, 70000")
	require.Len(t, errs, 1)
	assert.Equal(t, 8, errs[0].Column)
	assert.Equal(t, 5, errs[0].Length)

	_, errs = Lex("db 'abc\nnop")
	require.Len(t, errs, 1)
	assert.Equal(t, "unterminated string", errs[0].Message)

	_, errs = Lex("mov ax, $(1 + (2)")
	require.Len(t, errs, 1)
	assert.Equal(t, "unterminated expression", errs[0].Message)

	_, errs = Lex("mov ax, 12xy")
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid number '12xy'", errs[0].Message)
}

func TestLabelTable(t *testing.T) {
	lt := NewLabelTable()
	lt.beginPass()
	assert.True(t, lt.define(NewLabel("Start"), "Start", 0x100, false))
	assert.False(t, lt.define(NewLabel("START"), "START", 0x104, false))
	assert.True(t, lt.define(NewLabel("\x00data1"), "\x00data1", 0x102, true))
	assert.True(t, lt.changed)

	addr, ok := lt.Lookup(NewLabel("start"))
	assert.True(t, ok)
	assert.Equal(t, uint16(0x100), addr)

	lt.beginPass()
	assert.True(t, lt.define(NewLabel("start"), "start", 0x100, false))
	assert.False(t, lt.changed)
	assert.True(t, lt.define(NewLabel("start2"), "start2", 0x101, false))
	assert.True(t, lt.changed)

	assert.Equal(t, []Symbol{
		{Label: "Start", Address: 0x100},
		{Label: "start2", Address: 0x101},
	}, lt.Symbols())
}

func TestErrorsRender(t *testing.T) {
	src := "\tmov ax, bl\nfoo"
	errs := Errors{
		{File: "a.asm", Line: 0, Column: 9, Length: 2, Message: "operand size mismatch"},
		{File: "a.asm", Line: 1, Column: 0, Length: 3, Message: "unknown instruction 'foo'"},
	}
	assert.Equal(t,
		"Syntax error in 'a.asm' line 1, col 10: operand size mismatch\n"+
			" mov ax, bl\n"+
			"---------^^\n"+
			"Syntax error in 'a.asm' line 2, col 1: unknown instruction 'foo'\n"+
			"foo\n"+
			"^^^",
		errs.Render(src))
	assert.Equal(t,
		"Syntax error in 'a.asm' line 1, col 10: operand size mismatch\n"+
			"Syntax error in 'a.asm' line 2, col 1: unknown instruction 'foo'",
		errs.Error())
}
