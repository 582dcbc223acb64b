// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"errors"
	"hash/crc32"
	"io"

	"github.com/beevik/go8086/cpu"
)

var errProgramSize = errors.New(f("code exceeded 64K size"))

// CompiledBytes holds the machine code generated for one statement, along
// with its address and the 0-based source position of the statement.
type CompiledBytes struct {
	Address uint16
	Bytes   []byte
	Line    int
	Column  int
}

// A Program contains the assembled machine code and the data needed to map
// it back to its source. The concatenation of all chunks is the code.
type Program struct {
	File   string          // source file name
	Origin uint16          // load address of the code
	Code   []byte          // assembled machine code
	Chunks []CompiledBytes // code by statement, in source order
	Labels *LabelTable     // label addresses
}

// Load copies the program's machine code into memory at its origin.
func (p *Program) Load(m cpu.Memory) {
	m.StoreBytes(p.Origin, p.Code)
}

// Lookup returns the address of a label, ignoring case.
func (p *Program) Lookup(name string) (uint16, bool) {
	return p.Labels.Lookup(NewLabel(name))
}

// SourceMap builds a source map describing the program.
func (p *Program) SourceMap() *SourceMap {
	sm := &SourceMap{
		Origin:  p.Origin,
		Size:    uint32(len(p.Code)),
		CRC:     crc32.ChecksumIEEE(p.Code),
		Files:   []string{p.File},
		Symbols: p.Labels.Symbols(),
	}
	for _, c := range p.Chunks {
		sm.Lines = append(sm.Lines, SourceLine{
			Address:   int(c.Address),
			FileIndex: 0,
			Line:      c.Line + 1,
		})
	}
	return sm
}

// ReadFrom reads machine code from a binary input source. The program's
// origin must be set separately, typically from its source map.
func (p *Program) ReadFrom(r io.Reader) (n int64, err error) {
	p.Code, err = io.ReadAll(r)
	n = int64(len(p.Code))
	if n > 0x10000 {
		return n, errProgramSize
	}
	return n, err
}

// WriteTo saves machine code as binary data into an output writer.
func (p *Program) WriteTo(w io.Writer) (n int64, err error) {
	nn, err := w.Write(p.Code)
	return int64(nn), err
}
