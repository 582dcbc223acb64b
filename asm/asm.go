// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements an 8086 assembler.
package asm

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang/glog"
	"github.com/k0kubun/pp/v3"
)

// Option type used by the Assemble function.
type Option uint

// Options for the Assemble function.
const (
	Verbose Option = 1 << iota // verbose output during assembly
)

const defaultOrigin = 0x0100

// A statement is the tokens of one source line.
type statement struct {
	tokens []Token
}

// The assembler is a state object used during the assembly of machine code
// from assembly code. Every pass walks the same statements; only label
// addresses and the set of jumps requiring the near form carry over from one
// pass to the next.
type assembler struct {
	file       string          // name of the file being assembled
	lines      []string        // source lines, for listings
	origin     int             // requested origin
	pc         int             // the program counter
	emitted    bool            // code or data generated in this pass
	pass       int             // pass number, starting at 1
	final      bool            // generating code and reporting errors
	labels     *LabelTable     // label -> address
	constants  map[Label]int   // constant -> value, rebuilt every pass
	near       map[int]bool    // statements whose jump needs the near form
	grew       bool            // a jump switched to the near form this pass
	dataBlocks int             // data blocks opened in this pass
	dataLabel  Label           // boundary label of the open data block
	code       []byte          // generated machine code
	chunks     []CompiledBytes // generated code by statement
	skipLines  map[int]bool    // lines with lexical errors
	errors     Errors          // errors encountered during the final pass
	out        io.Writer       // output used for verbose output
	verbose    bool            // verbose output
}

// AssembleFile reads a file containing 8086 assembly code, assembles it,
// and produces a binary output file and a source map file.
func AssembleFile(path string, options Option, out io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	prog, err := Assemble(bytes.NewReader(src), path, out, options)
	if err != nil {
		if errs, ok := err.(Errors); ok {
			fmt.Fprintln(out, errs.Render(string(src)))
		}
		return err
	}

	ext := filepath.Ext(path)
	prefix := path[:len(path)-len(ext)]
	binPath := prefix + ".bin"
	binFile, err := os.OpenFile(binPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer binFile.Close()

	_, err = prog.WriteTo(binFile)
	if err != nil {
		return err
	}

	mapPath := prefix + ".map"
	mapFile, err := os.OpenFile(mapPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer mapFile.Close()

	_, err = prog.SourceMap().WriteTo(mapFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Assembled '%s' to produce '%s' and '%s'.\n",
		filepath.Base(path),
		filepath.Base(binPath),
		filepath.Base(mapPath))
	return nil
}

// Assemble reads data from the provided stream and attempts to assemble it
// into 8086 machine code. When the source contains errors, the returned
// error is an Errors value holding every diagnostic and the program is nil.
func Assemble(r io.Reader, filename string, out io.Writer, options Option) (*Program, error) {
	if out == nil {
		out = os.Stdout
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	a := &assembler{
		file:      filename,
		lines:     strings.Split(string(src), "\n"),
		labels:    NewLabelTable(),
		near:      make(map[int]bool),
		skipLines: make(map[int]bool),
		out:       out,
		verbose:   (options & Verbose) != 0,
	}

	tokens, lexErrors := Lex(string(src))
	for _, e := range lexErrors {
		e.File = filename
		a.skipLines[e.Line] = true
	}
	stmts := splitStatements(tokens)

	// Size the program until label addresses settle. Each pass that does
	// not settle moves at least one jump to the near form, so the number
	// of passes is bounded by the number of statements.
	for i := 0; i < len(stmts)+2; i++ {
		a.grew = false
		a.runPass(stmts)
		if !a.grew && !a.labels.changed {
			break
		}
	}

	a.final = true
	a.logSection("Generating code")
	a.runPass(stmts)

	errs := append(lexErrors, a.errors...)
	if len(errs) > 0 {
		slices.SortStableFunc(errs, func(x, y *CompilationError) int {
			if c := cmp.Compare(x.Line, y.Line); c != 0 {
				return c
			}
			return cmp.Compare(x.Column, y.Column)
		})
		return nil, errs
	}

	prog := &Program{
		File:   filename,
		Origin: uint16(a.origin),
		Code:   a.code,
		Chunks: a.chunks,
		Labels: a.labels,
	}

	if a.verbose {
		a.logSection("Labels")
		pp.Fprintf(a.out, "%v\n", prog.Labels.Symbols())
	}
	return prog, nil
}

// Group tokens into statements, one per source line.
func splitStatements(tokens []Token) []statement {
	var stmts []statement
	for i := 0; i < len(tokens); {
		j := i + 1
		for j < len(tokens) && tokens[j].Line == tokens[i].Line {
			j++
		}
		stmts = append(stmts, statement{tokens: tokens[i:j]})
		i = j
	}
	return stmts
}

// Walk every statement once.
func (a *assembler) runPass(stmts []statement) {
	a.pass++
	glog.V(1).Infof("Beginning pass %d", a.pass)

	a.labels.beginPass()
	a.origin, a.pc, a.emitted = defaultOrigin, defaultOrigin, false
	a.constants = make(map[Label]int)
	a.dataBlocks, a.dataLabel = 0, ""

	for i, st := range stmts {
		a.parseStatement(st, i)
	}
	a.closeDataBlock()
}

// Parse a single statement and emit its code.
func (a *assembler) parseStatement(st statement, stmt int) {
	s := newTokenStream(st.tokens)

	b, first, err := a.parseTokens(s, stmt)
	if err == nil && !s.done() {
		t := s.peek()
		err = errorAt(t, "unexpected '%s'", t.Text)
	}
	if err != nil {
		a.addError(err)
		return
	}
	if len(b) > 0 {
		a.emit(b, first)
	}
}

// Parse the tokens of a statement. It returns the generated bytes and the
// first token of the statement after any label.
func (a *assembler) parseTokens(s *tokenStream, stmt int) ([]byte, *Token, error) {
	t := s.peek()

	if t.Kind == Identifier {
		if c := s.peekAt(1); c != nil && c.Kind == Colon {
			a.closeDataBlock()
			s.pos += 2
			if err := a.defineLabel(t); err != nil {
				return nil, t, err
			}
			if t = s.peek(); t == nil {
				return nil, nil, nil
			}
		}
	}

	switch t.Kind {
	case Identifier:
		if d := s.peekAt(1); d != nil && d.Kind == Directive {
			s.pos++
			b, err := a.parseDeclaration(t, s)
			return b, t, err
		}
		return nil, t, errorAt(t, "unknown instruction '%s'", t.Text)
	case Instruction:
		s.pos++
		b, err := a.encodeInstruction(t.Mnemonic, s, stmt)
		return b, t, err
	case Directive:
		s.pos++
		b, err := a.parseDirective(t, s, stmt)
		return b, t, err
	default:
		return nil, t, errorAt(t, "expected instruction, found '%s'", t.Text)
	}
}

// Define a label at the current address.
func (a *assembler) defineLabel(t *Token) error {
	l := NewLabel(t.Text)
	if _, ok := a.constants[l]; ok {
		return errorAt(t, "'%s' is already defined as a constant", t.Text)
	}
	if a.pc > 0xffff {
		return errorAt(t, "label '%s' lies beyond the 64K address space", t.Text)
	}
	if !a.labels.define(l, t.Text, a.pc, false) {
		return errorAt(t, "duplicate label '%s'", t.Text)
	}
	glog.V(2).Infof("Defining %q at offset 0x%04x", t.Text, a.pc)
	a.logLine(t, "label=%s", t.Text)
	return nil
}

// Append a statement's bytes to the program.
func (a *assembler) emit(b []byte, t *Token) {
	addr := a.pc
	a.pc += len(b)
	a.emitted = true

	if !a.final {
		return
	}
	if a.pc > 0x10000 {
		a.addError(errorAt(t, "code exceeds the 64K address space"))
		return
	}

	a.code = append(a.code, b...)
	a.chunks = append(a.chunks, CompiledBytes{
		Address: uint16(addr),
		Bytes:   b,
		Line:    t.Line,
		Column:  t.Column,
	})
	a.logCode(addr, b, t)
}

// Append an error to the assembler's error state. Errors are kept only
// during the final pass, and only for lines without lexical errors.
func (a *assembler) addError(err error) {
	if !a.final {
		return
	}
	e, ok := err.(*CompilationError)
	if !ok {
		e = &CompilationError{Message: err.Error()}
	}
	if a.skipLines[e.Line] {
		return
	}
	e.File = a.file
	a.errors = append(a.errors, e)
	if a.verbose {
		fmt.Fprintln(a.out, e.Render(strings.Join(a.lines, "\n")))
	}
}

// In verbose mode, log a string to the output during code generation.
func (a *assembler) log(format string, args ...any) {
	if a.verbose && a.final {
		fmt.Fprintf(a.out, format, args...)
		fmt.Fprintf(a.out, "\n")
	}
}

// In verbose mode, log a string and the line of assembly code containing
// a token.
func (a *assembler) logLine(t *Token, format string, args ...any) {
	if a.verbose && a.final {
		detail := fmt.Sprintf(format, args...)
		fmt.Fprintf(a.out, "%-3d %-3d | %-20s | %s\n", t.Line+1, t.Column+1, detail, a.sourceLine(t.Line))
	}
}

// In verbose mode, log the code generated for a statement.
func (a *assembler) logCode(addr int, b []byte, t *Token) {
	n := min(len(b), 3)
	a.log("%04X-   %-8s    %s", addr, byteString(b[:n]), a.sourceLine(t.Line))
	a.logBytes(addr+n, b[n:])
}

// In verbose mode, log a series of bytes with starting address.
func (a *assembler) logBytes(addr int, b []byte) {
	for i, n := 0, len(b); i < n; i += 3 {
		j := min(i+3, n)
		a.log("%04X-*  %s", addr+i, byteString(b[i:j]))
	}
}

// In verbose mode, log a section header to the output.
func (a *assembler) logSection(name string) {
	if a.verbose && a.final {
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(a.out, "-- %s --\n", name)
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
	}
}

// Return a source line without its comment or surrounding whitespace.
func (a *assembler) sourceLine(line int) string {
	if line < 0 || line >= len(a.lines) {
		return ""
	}
	text := a.lines[line]
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
