// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Evaluate a $(...) compile-time expression. Every constant defined so far
// is visible to the expression under both its lower- and upper-case name.
// Labels are not visible, since their addresses may still change between
// passes.
func (a *assembler) evalExpression(t *Token) (int, error) {
	pred := starlark.StringDict{}
	for l, v := range a.constants {
		pred[string(l)] = starlark.MakeInt(v)
		pred[strings.ToUpper(string(l))] = starlark.MakeInt(v)
	}

	n, err := EvalStarlark(t.Str, pred)
	if err != nil {
		return 0, errorAt(t, "%v", err)
	}
	if n < -0x8000 || n > 0xffff {
		return 0, errorAt(t, "expression value %d does not fit in 16 bits", n)
	}
	return n, nil
}

// EvalStarlark evaluates a Starlark expression that must produce an
// integer, with 'pred' as the predeclared names.
func EvalStarlark(expr string, pred starlark.StringDict) (int, error) {
	thread := &starlark.Thread{Name: "expr"}
	opts := syntax.FileOptions{}
	prog := "rc = (" + expr + ")\n"
	dict, err := starlark.ExecFileOptions(&opts, thread, "expr", prog, pred)
	if err != nil {
		return 0, errExpression(expr, err)
	}

	rc, ok := dict["rc"].(starlark.Int)
	if !ok {
		return 0, errExpression(expr, errNotInteger)
	}
	n, ok := rc.Int64()
	if !ok {
		return 0, errExpression(expr, errNotInteger)
	}
	return int(n), nil
}
