// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

// A tokenStream is a view over the tokens of one statement. Reading past the
// end never fails silently: it yields an error anchored just past the last
// token of the statement.
type tokenStream struct {
	tokens []Token
	pos    int // number of tokens consumed
}

func newTokenStream(tokens []Token) *tokenStream {
	return &tokenStream{tokens: tokens}
}

// Return true if every token has been consumed.
func (s *tokenStream) done() bool {
	return s.pos >= len(s.tokens)
}

// Return the token 'n' places past the next token without consuming
// anything, or nil if there is none.
func (s *tokenStream) peekAt(n int) *Token {
	if s.pos+n < len(s.tokens) {
		return &s.tokens[s.pos+n]
	}
	return nil
}

// Return the next token without consuming it, or nil at the end.
func (s *tokenStream) peek() *Token {
	return s.peekAt(0)
}

// Consume the next token if it has the requested kind.
func (s *tokenStream) accept(kind TokenKind) (*Token, bool) {
	if t := s.peek(); t != nil && t.Kind == kind {
		s.pos++
		return t, true
	}
	return nil, false
}

// Consume the next token. At the end of the statement, report that 'what'
// was expected.
func (s *tokenStream) next(what string) (*Token, error) {
	t := s.peek()
	if t == nil {
		return nil, s.missing("expected %s", what)
	}
	s.pos++
	return t, nil
}

// Consume the next token, which must have the requested kind.
func (s *tokenStream) expect(kind TokenKind, what string) (*Token, error) {
	t, err := s.next(what)
	if err != nil {
		return nil, err
	}
	if t.Kind != kind {
		return nil, errorAt(t, "expected %s, found '%s'", what, t.Text)
	}
	return t, nil
}

// Build an error positioned immediately after the statement's last token.
func (s *tokenStream) missing(format string, args ...any) *CompilationError {
	e := &CompilationError{Length: 1, Message: f(format, args...)}
	if n := len(s.tokens); n > 0 {
		last := &s.tokens[n-1]
		e.Line = last.Line
		e.Column = last.Column + last.Length
	}
	return e
}

// Build an error that underlines a token.
func errorAt(t *Token, format string, args ...any) *CompilationError {
	return &CompilationError{
		Line:    t.Line,
		Column:  t.Column,
		Length:  t.Length,
		Message: f(format, args...),
	}
}
