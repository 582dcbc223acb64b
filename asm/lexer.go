// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strconv"
	"strings"

	"github.com/beevik/go8086/cpu"
)

// TokenKind classifies a lexical unit of assembly source.
type TokenKind byte

// Token kinds
const (
	Instruction TokenKind = iota
	Register8
	Register16
	SegmentRegister
	Directive
	Number
	String
	Expression
	SizeMarker
	Identifier
	Comma
	Colon
	LBracket
	RBracket
	Plus
	Minus
)

var tokenKindNames = [...]string{
	"instruction",
	"8-bit register",
	"16-bit register",
	"segment register",
	"directive",
	"number",
	"string",
	"expression",
	"size marker",
	"identifier",
	"','",
	"':'",
	"'['",
	"']'",
	"'+'",
	"'-'",
}

func (k TokenKind) String() string {
	return tokenKindNames[k]
}

// A Token is one lexical unit of assembly source, with its 0-based line and
// byte column and its length in bytes.
type Token struct {
	Kind     TokenKind
	Text     string    // literal source text
	Line     int       // 0-based source line
	Column   int       // 0-based byte column
	Length   int       // length of Text, always > 0
	Value    int       // number value, register index, directive kind, or size in bytes
	Str      string    // contents of a string or expression
	Mnemonic *Mnemonic // instruction tokens only
}

type lexer struct {
	src    string
	pos    int
	line   int
	col    int
	tokens []Token
	errors Errors
}

// Lex splits assembly source into tokens. Lexing continues past errors, so
// the returned token list is usable even when errors are reported.
func Lex(src string) ([]Token, Errors) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		l.scan()
	}
	return l.tokens, l.errors
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) emit(kind TokenKind, n int) *Token {
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Text:   l.src[l.pos : l.pos+n],
		Line:   l.line,
		Column: l.col,
		Length: n,
	})
	l.advance(n)
	return &l.tokens[len(l.tokens)-1]
}

func (l *lexer) advance(n int) {
	l.pos += n
	l.col += n
}

func (l *lexer) addError(col, n int, format string, args ...any) {
	l.errors = append(l.errors, &CompilationError{
		Line:    l.line,
		Column:  col,
		Length:  max(n, 1),
		Message: f(format, args...),
	})
}

func (l *lexer) scan() {
	c := l.src[l.pos]
	switch {
	case c == '\n':
		l.pos++
		l.line++
		l.col = 0
	case c == ' ' || c == '\t' || c == '\r':
		l.advance(1)
	case c == ';':
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			l.advance(1)
		}
	case c == ',':
		l.emit(Comma, 1)
	case c == ':':
		l.emit(Colon, 1)
	case c == '[':
		l.emit(LBracket, 1)
	case c == ']':
		l.emit(RBracket, 1)
	case c == '+':
		l.emit(Plus, 1)
	case c == '-':
		l.emit(Minus, 1)
	case c == '\'' || c == '"':
		l.scanString(c)
	case c == '$' && l.peekByte(1) == '(':
		l.scanExpression()
	case decimal(c):
		l.scanNumber()
	case wordStartChar(c):
		l.scanWord()
	default:
		l.addError(l.col, 1, "unexpected character '%c'", c)
		l.advance(1)
	}
}

// Scan a quoted string. Strings may not span lines.
func (l *lexer) scanString(quote byte) {
	n := 1
	for {
		c := l.peekByte(n)
		if c == 0 || c == '\n' {
			l.addError(l.col, n, "unterminated string")
			l.advance(n)
			return
		}
		n++
		if c == quote {
			break
		}
	}
	t := l.emit(String, n)
	t.Str = t.Text[1 : n-1]
}

// Scan a $(...) compile-time expression, honoring nested parentheses.
func (l *lexer) scanExpression() {
	depth, n := 0, 1
	for {
		c := l.peekByte(n)
		if c == 0 || c == '\n' {
			l.addError(l.col, n, "unterminated expression")
			l.advance(n)
			return
		}
		n++
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				break
			}
		}
	}
	t := l.emit(Expression, n)
	t.Str = t.Text[2 : n-1]
}

// Scan a numeric literal: decimal, 0x-prefixed hex, h-suffixed hex, or
// b-suffixed binary.
func (l *lexer) scanNumber() {
	n := 0
	for wordChar(l.peekByte(n)) {
		n++
	}
	text := l.src[l.pos : l.pos+n]
	v, ok := parseNumber(text)
	switch {
	case !ok:
		l.addError(l.col, n, "invalid number '%s'", text)
		l.advance(n)
	case v > 0xffff:
		l.addError(l.col, n, "number '%s' does not fit in 16 bits", text)
		l.advance(n)
	default:
		l.emit(Number, n).Value = int(v)
	}
}

func parseNumber(text string) (uint64, bool) {
	lower := strings.ToLower(text)
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(lower, "0x") && len(lower) > 2:
		v, err = strconv.ParseUint(lower[2:], 16, 64)
	case strings.HasSuffix(lower, "h"):
		v, err = strconv.ParseUint(lower[:len(lower)-1], 16, 64)
	case strings.HasSuffix(lower, "b") && strings.Trim(lower[:len(lower)-1], "01") == "":
		v, err = strconv.ParseUint(lower[:len(lower)-1], 2, 64)
	default:
		v, err = strconv.ParseUint(lower, 10, 64)
	}
	return v, err == nil
}

// Scan a word and classify it as a size marker, mnemonic, register,
// directive, or identifier.
func (l *lexer) scanWord() {
	n := 0
	for wordChar(l.peekByte(n)) {
		n++
	}
	word := l.src[l.pos : l.pos+n]

	switch lower := strings.ToLower(word); {
	case lower == "b.":
		l.emit(SizeMarker, n).Value = 1
	case lower == "w.":
		l.emit(SizeMarker, n).Value = 2
	default:
		if m, ok := LookupMnemonic(lower); ok {
			l.emit(Instruction, n).Mnemonic = m
			return
		}
		if r, ok := cpu.LookupRegister(lower); ok {
			kind := Register16
			switch r.Kind {
			case cpu.Byte:
				kind = Register8
			case cpu.Segment:
				kind = SegmentRegister
			}
			l.emit(kind, n).Value = int(r.Index)
			return
		}
		if d, ok := LookupDirective(lower); ok {
			l.emit(Directive, n).Value = int(d)
			return
		}
		l.emit(Identifier, n)
	}
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func alpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func wordStartChar(c byte) bool {
	return alpha(c) || c == '_' || c == '.' || c == '?' || c == '@'
}

func wordChar(c byte) bool {
	return wordStartChar(c) || decimal(c)
}
