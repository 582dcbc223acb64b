// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("plain", From("plain"))
	assert.Equal("opcode 0xF1 at 0x0100", From("opcode 0x%02X at 0x%04X", 0xf1, 0x100))
	assert.Equal("label start", From("label %s", "start"))
}
