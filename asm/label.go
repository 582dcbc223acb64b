// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"cmp"
	"slices"
	"strings"
)

// A Label is a symbol name folded to lower case, so that labels differing
// only in case compare equal.
type Label string

// NewLabel creates a label from a name as written in source.
func NewLabel(name string) Label {
	return Label(strings.ToLower(name))
}

// A Symbol is a label and the address it was assigned.
type Symbol struct {
	Label   string
	Address uint16
}

type labelEntry struct {
	name     string // name as first written
	offset   int    // most recently assigned address
	internal bool   // generated by the assembler, never reported
	defined  bool   // defined during the current pass
}

// A LabelTable maps labels to addresses. Offsets assigned in one pass stay
// visible in the next, so forward references resolve once a pass has seen
// their definition.
type LabelTable struct {
	entries map[Label]*labelEntry
	changed bool
}

// NewLabelTable creates an empty label table.
func NewLabelTable() *LabelTable {
	return &LabelTable{entries: make(map[Label]*labelEntry)}
}

// Prepare for another pass over the source.
func (t *LabelTable) beginPass() {
	for _, e := range t.entries {
		e.defined = false
	}
	t.changed = false
}

// Assign an address to a label during the current pass. It returns false if
// the label was already defined in this pass.
func (t *LabelTable) define(l Label, name string, offset int, internal bool) bool {
	e, ok := t.entries[l]
	if !ok {
		e = &labelEntry{name: name, offset: offset, internal: internal}
		t.entries[l] = e
		t.changed = true
	}
	if e.defined {
		return false
	}
	if e.offset != offset {
		e.offset = offset
		t.changed = true
	}
	e.defined = true
	return true
}

// Lookup returns the address assigned to a label.
func (t *LabelTable) Lookup(l Label) (uint16, bool) {
	if e, ok := t.entries[l]; ok {
		return uint16(e.offset), true
	}
	return 0, false
}

// Symbols returns all user-defined labels ordered by address, then name.
func (t *LabelTable) Symbols() []Symbol {
	var symbols []Symbol
	for _, e := range t.entries {
		if !e.internal {
			symbols = append(symbols, Symbol{Label: e.name, Address: uint16(e.offset)})
		}
	}
	slices.SortFunc(symbols, func(a, b Symbol) int {
		if c := cmp.Compare(a.Address, b.Address); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return symbols
}
