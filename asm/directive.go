// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "fmt"

// Parse a directive statement. The stream is positioned just past the
// directive token. Variable and constant declarations with a leading name
// are handled by parseDeclaration.
func (a *assembler) parseDirective(d *Token, s *tokenStream, stmt int) ([]byte, error) {
	switch DirectiveKind(d.Value) {
	case DirOrg:
		return nil, a.parseOrigin(d, s)
	case DirData:
		return a.openDataBlock(stmt), nil
	case DirCode:
		a.closeDataBlock()
		return nil, nil
	case DirDB:
		return a.parseData(s, 1)
	case DirDW:
		return a.parseData(s, 2)
	default:
		return nil, errorAt(d, "'%s' must follow a name", d.Text)
	}
}

// Parse "name db ...", "name dw ..." or "name equ value".
func (a *assembler) parseDeclaration(name *Token, s *tokenStream) ([]byte, error) {
	d, _ := s.accept(Directive)
	switch DirectiveKind(d.Value) {
	case DirEqu:
		return nil, a.parseEquate(name, s)
	case DirDB, DirDW:
		if err := a.defineLabel(name); err != nil {
			return nil, err
		}
		return a.parseData(s, d.Value-int(DirDB)+1)
	default:
		return nil, errorAt(d, "'%s' cannot follow a name", d.Text)
	}
}

// Parse an origin directive. The origin must be set before any code or
// data is generated.
func (a *assembler) parseOrigin(d *Token, s *tokenStream) error {
	if a.emitted {
		return errorAt(d, "origin directive must appear before first instruction")
	}

	t := s.peek()
	v, err := a.parseValue(s, "origin address")
	if err != nil {
		return err
	}
	if v.symbolic {
		return errorAt(t, "origin must not depend on a label")
	}
	if err := a.checkRange(t, v.n, 0, 0xffff); err != nil {
		return err
	}

	a.logLine(d, "origin=$%04X", v.n)
	a.origin, a.pc = v.n, v.n
	return nil
}

// Parse a constant declaration. Constants must be defined before use and
// may not depend on label addresses.
func (a *assembler) parseEquate(name *Token, s *tokenStream) error {
	l := NewLabel(name.Text)
	if _, ok := a.constants[l]; ok {
		return errorAt(name, "constant '%s' already defined", name.Text)
	}
	if _, ok := a.labels.Lookup(l); ok {
		return errorAt(name, "'%s' is already defined as a label", name.Text)
	}

	t := s.peek()
	v, err := a.parseValue(s, "constant value")
	if err != nil {
		return err
	}
	if v.symbolic {
		return errorAt(t, "constant must not depend on a label")
	}

	a.logLine(name, "equate=%s val=$%X", name.Text, v.n)
	a.constants[l] = v.n
	return nil
}

// Parse a comma-separated list of data values, each 'unit' bytes wide.
// Strings of any length contribute one unit per character.
func (a *assembler) parseData(s *tokenStream, unit int) ([]byte, error) {
	var b []byte
	for {
		t := s.peek()
		if t == nil {
			return b, s.missing("expected data value")
		}

		if t.Kind == String && len(t.Str) != 1 {
			s.pos++
			for _, c := range []byte(t.Str) {
				b = append(b, toBytes(unit, int(c))...)
			}
		} else {
			v, err := a.parseValue(s, "data value")
			if err != nil {
				return b, err
			}
			lo := -0x80
			hi := 0xff
			if unit == 2 {
				lo, hi = -0x8000, 0xffff
			}
			if err := a.checkRange(t, v.n, lo, hi); err != nil {
				return b, err
			}
			b = append(b, toBytes(unit, v.n)...)
		}

		if s.done() {
			return b, nil
		}
		if _, err := s.expect(Comma, "','"); err != nil {
			return b, err
		}
	}
}

// Begin a data block. Execution skips the block by way of a jump to its
// boundary label, which is defined when the block is closed.
func (a *assembler) openDataBlock(stmt int) []byte {
	a.closeDataBlock()
	a.dataBlocks++
	a.dataLabel = NewLabel(fmt.Sprintf("\x00data%d", a.dataBlocks))

	jmp, _ := LookupMnemonic("jmp")
	addr, ok := a.labels.Lookup(a.dataLabel)
	return a.relativeJump(jmp, value{n: int(addr), unknown: !ok}, stmt)
}

// Close the open data block, if any, defining its boundary label at the
// current address.
func (a *assembler) closeDataBlock() {
	if a.dataLabel != "" {
		a.labels.define(a.dataLabel, string(a.dataLabel), a.pc, true)
		a.dataLabel = ""
	}
}
