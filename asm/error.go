// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"errors"
	"strings"

	"github.com/beevik/go8086/translate"
)

var f = translate.From

// A CompilationError is a positioned assembly diagnostic. Line and Column
// are 0-based; Column is a byte offset into the line.
type CompilationError struct {
	File    string
	Line    int
	Column  int
	Length  int
	Message string
}

func (e *CompilationError) Error() string {
	return f("Syntax error in '%s' line %d, col %d: %s", e.File, e.Line+1, e.Column+1, e.Message)
}

// Render formats the error with the offending source line and a caret
// marker beneath the reported columns. The line is padded when the marker
// extends past its end.
func (e *CompilationError) Render(source string) string {
	var text string
	lines := strings.Split(source, "\n")
	if e.Line >= 0 && e.Line < len(lines) {
		text = strings.TrimRight(lines[e.Line], "\r")
	}
	text = strings.ReplaceAll(text, "\t", " ")

	n := max(e.Length, 1)
	if end := e.Column + n; len(text) < end {
		text += strings.Repeat(" ", end-len(text))
	}

	var b strings.Builder
	b.WriteString(e.Error())
	b.WriteByte('\n')
	b.WriteString(text)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", e.Column))
	b.WriteString(strings.Repeat("^", n))
	return b.String()
}

// Errors is the collection of diagnostics produced by a failed assembly,
// in source order.
type Errors []*CompilationError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Render formats every error against the source.
func (e Errors) Render(source string) string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Render(source)
	}
	return strings.Join(msgs, "\n")
}

var errNotInteger = errors.New(f("value is not an integer"))

// ExpressionError reports a $(...) expression that could not be evaluated.
type ExpressionError struct {
	Expr string
	Err  error
}

func errExpression(expr string, err error) error {
	return &ExpressionError{Expr: expr, Err: err}
}

func (e *ExpressionError) Error() string {
	return f("cannot evaluate '%s': %v", e.Expr, e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}
