// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/beevik/prefixtree/v2"
)

// Host variables, adjustable with the set command. Numeric settings may
// carry a lower bound in their min tag.
type settings struct {
	HexMode         bool   `doc:"hexadecimal input mode"`
	MemDumpBytes    int    `doc:"default number of memory bytes to dump" min:"1"`
	DisasmLines     int    `doc:"default number of lines to disassemble" min:"1"`
	MaxStepLines    int    `doc:"max lines to disassemble when stepping" min:"0"`
	StepBudget      int    `doc:"max instructions per run, 0 for no limit" min:"0"`
	NextDisasmAddr  uint16 `doc:"address of next disassembly"`
	NextMemDumpAddr uint16 `doc:"address of next memory dump"`
}

func newSettings() *settings {
	return &settings{
		MemDumpBytes: 64,
		DisasmLines:  10,
		MaxStepLines: 20,
		StepBudget:   1000000,
	}
}

type settingsField struct {
	name  string
	index int
	typ   reflect.Type
	doc   string
	min   int64
}

var (
	settingsTree   = prefixtree.New[*settingsField]()
	settingsFields []settingsField
)

func init() {
	t := reflect.TypeOf(settings{})
	settingsFields = make([]settingsField, t.NumField())
	for i := range settingsFields {
		sf := t.Field(i)
		f := &settingsFields[i]
		f.name, f.index, f.typ = sf.Name, i, sf.Type
		f.doc = sf.Tag.Get("doc")
		f.min = -1 << 31
		if m, ok := sf.Tag.Lookup("min"); ok {
			f.min, _ = strconv.ParseInt(m, 10, 64)
		}
		settingsTree.Add(strings.ToLower(sf.Name), f)
	}
}

// Find the setting whose name begins with 'key'.
func lookupSetting(key string) (*settingsField, error) {
	f, err := settingsTree.FindValue(strings.ToLower(key))
	if err != nil {
		return nil, fmt.Errorf("unknown or ambiguous setting '%s'", key)
	}
	return f, nil
}

// Display writes every setting, its value and its description.
func (s *settings) Display(w io.Writer) {
	value := reflect.ValueOf(s).Elem()
	for _, f := range settingsFields {
		line := fmt.Sprintf("    %-16s %s", f.name, formatSetting(value.Field(f.index)))
		fmt.Fprintf(w, "%-28s (%s)\n", line, f.doc)
	}
}

func formatSetting(v reflect.Value) string {
	if v.Kind() == reflect.Uint16 {
		return fmt.Sprintf("0x%04X", v.Uint())
	}
	return fmt.Sprintf("%v", v)
}

// Kind returns the kind of the setting whose name begins with 'key', or
// reflect.Invalid if no single setting matches.
func (s *settings) Kind(key string) reflect.Kind {
	f, err := lookupSetting(key)
	if err != nil {
		return reflect.Invalid
	}
	return f.typ.Kind()
}

// Get returns the name and formatted value of a setting.
func (s *settings) Get(key string) (name, value string, err error) {
	f, err := lookupSetting(key)
	if err != nil {
		return "", "", err
	}
	return f.name, formatSetting(reflect.ValueOf(s).Elem().Field(f.index)), nil
}

// Set assigns a value to the setting whose name begins with 'key'. Boolean
// settings accept only bool values, and numeric settings only numbers at
// or above their lower bound.
func (s *settings) Set(key string, value any) error {
	f, err := lookupSetting(key)
	if err != nil {
		return err
	}

	in := reflect.ValueOf(value)
	isBool := f.typ.Kind() == reflect.Bool
	if isBool != (in.Kind() == reflect.Bool) || !in.Type().ConvertibleTo(f.typ) {
		return fmt.Errorf("invalid value type for setting %s", f.name)
	}
	if !isBool {
		var n int64
		switch {
		case in.CanInt():
			n = in.Int()
		case in.CanUint():
			n = int64(in.Uint())
		}
		if n < f.min {
			return fmt.Errorf("setting %s must be at least %d", f.name, f.min)
		}
	}

	reflect.ValueOf(s).Elem().Field(f.index).Set(in.Convert(f.typ))
	return nil
}
