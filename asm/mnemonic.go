// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "strings"

// A family groups mnemonics that share an operand parser.
type family byte

const (
	famMov    family = iota // mov
	famALU                  // add, or, adc, sbb, and, sub, xor, cmp
	famGroup3               // not, neg, mul, imul, div, idiv
	famIncDec               // inc, dec
	famPush                 // push
	famPop                  // pop
	famJmp                  // jmp
	famJcc                  // conditional jumps
	famLoop                 // loop
	famCall                 // call
	famRet                  // ret
	famInt                  // int
	famSimple               // single-byte instructions without operands
)

// A Mnemonic is an instruction name and the encoding data its family needs:
// the ALU operation, group ModRM reg field, condition code, or opcode.
type Mnemonic struct {
	Name   string
	family family
	code   byte
}

var mnemonics = map[string]*Mnemonic{}

func addMnemonic(fam family, code byte, names ...string) {
	for _, n := range names {
		mnemonics[n] = &Mnemonic{Name: n, family: fam, code: code}
	}
}

func init() {
	addMnemonic(famMov, 0, "mov")

	for i, n := range []string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"} {
		addMnemonic(famALU, byte(i), n)
	}

	addMnemonic(famGroup3, 2, "not")
	addMnemonic(famGroup3, 3, "neg")
	addMnemonic(famGroup3, 4, "mul")
	addMnemonic(famGroup3, 5, "imul")
	addMnemonic(famGroup3, 6, "div")
	addMnemonic(famGroup3, 7, "idiv")

	addMnemonic(famIncDec, 0, "inc")
	addMnemonic(famIncDec, 1, "dec")

	addMnemonic(famPush, 0, "push")
	addMnemonic(famPop, 0, "pop")

	addMnemonic(famJmp, 0xeb, "jmp")
	addMnemonic(famJcc, 0x0, "jo")
	addMnemonic(famJcc, 0x1, "jno")
	addMnemonic(famJcc, 0x2, "jb", "jc", "jnae")
	addMnemonic(famJcc, 0x3, "jae", "jnb", "jnc")
	addMnemonic(famJcc, 0x4, "je", "jz")
	addMnemonic(famJcc, 0x5, "jne", "jnz")
	addMnemonic(famJcc, 0x6, "jbe", "jna")
	addMnemonic(famJcc, 0x7, "ja", "jnbe")
	addMnemonic(famJcc, 0x8, "js")
	addMnemonic(famJcc, 0x9, "jns")
	addMnemonic(famJcc, 0xa, "jp", "jpe")
	addMnemonic(famJcc, 0xb, "jnp", "jpo")
	addMnemonic(famJcc, 0xc, "jl", "jnge")
	addMnemonic(famJcc, 0xd, "jge", "jnl")
	addMnemonic(famJcc, 0xe, "jle", "jng")
	addMnemonic(famJcc, 0xf, "jg", "jnle")
	addMnemonic(famLoop, 0xe2, "loop")

	addMnemonic(famCall, 0xe8, "call")
	addMnemonic(famRet, 0xc3, "ret")
	addMnemonic(famInt, 0xcd, "int")

	addMnemonic(famSimple, 0xcf, "iret")
	addMnemonic(famSimple, 0x90, "nop")
	addMnemonic(famSimple, 0xf4, "hlt")
	addMnemonic(famSimple, 0x9c, "pushf")
	addMnemonic(famSimple, 0x9d, "popf")
	addMnemonic(famSimple, 0xf8, "clc")
	addMnemonic(famSimple, 0xf9, "stc")
	addMnemonic(famSimple, 0xfa, "cli")
	addMnemonic(famSimple, 0xfb, "sti")
}

// LookupMnemonic finds an instruction mnemonic, ignoring case.
func LookupMnemonic(name string) (*Mnemonic, bool) {
	m, ok := mnemonics[strings.ToLower(name)]
	return m, ok
}

// A DirectiveKind identifies an assembler directive.
type DirectiveKind byte

// Assembler directives
const (
	DirOrg DirectiveKind = iota
	DirData
	DirCode
	DirDB
	DirDW
	DirEqu
)

var directives = map[string]DirectiveKind{
	"org":   DirOrg,
	".org":  DirOrg,
	".data": DirData,
	".code": DirCode,
	"db":    DirDB,
	"dw":    DirDW,
	"equ":   DirEqu,
}

// LookupDirective finds an assembler directive, ignoring case.
func LookupDirective(name string) (DirectiveKind, bool) {
	d, ok := directives[strings.ToLower(name)]
	return d, ok
}
