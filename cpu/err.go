// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import (
	"errors"

	"github.com/beevik/go8086/translate"
)

var f = translate.From

// Fatal execution errors
var (
	ErrOpcodeUnknown   = errors.New(f("unknown opcode"))
	ErrAddressingMode  = errors.New(f("unsupported addressing mode"))
	ErrVectorUnknown   = errors.New(f("unknown interrupt vector"))
	ErrFunctionUnknown = errors.New(f("unknown interrupt function"))
	ErrDivideByZero    = errors.New(f("divide error"))
	ErrHalted          = errors.New(f("cpu halted"))
)

// A FatalError reports an instruction the CPU could not execute. After a
// fatal error the CPU refuses to step until it is reset.
type FatalError struct {
	Opcode byte   // first byte of the faulting instruction
	CS     uint16 // code segment of the faulting instruction
	IP     uint16 // address of the faulting instruction
	Err    error  // one of the Err* sentinels
}

func (e *FatalError) Error() string {
	return f("%v: opcode 0x%02X at %04X:%04X", e.Err, e.Opcode, e.CS, e.IP)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
