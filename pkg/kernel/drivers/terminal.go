// Copyright 2023 The 452-USLOSS-OS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package drivers

import (
	"fmt"
	"sync"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/mailbox"
)

// Terminal is one terminal unit's driver state. Input is asynchronous, so a
// dedicated service process assembles received characters into lines and
// posts them to readMbox; output is synchronous to the caller, so Write
// needs no service process of its own, only a mutex serializing concurrent
// writers on the same unit.
type Terminal struct {
	k       *kernel.Kernel
	devices *machine.Devices
	unit    int

	lineBuf  []byte
	readMbox *mailbox.Mailbox

	writeMu sync.Mutex
}

// readMboxDepth is the number of complete, unread lines a terminal will
// buffer before a slow reader starts losing them to CondSend failures.
const readMboxDepth = 10

// readMboxSlot is the mailbox slot size backing readMbox: one length-prefix
// byte followed by up to MaxLine bytes of line content. mailbox.Mailbox
// zero-pads every message to its slot size, so the prefix byte is what lets
// Read recover the assembled line's true length instead of returning that
// padding as part of the line.
const readMboxSlot = machine.MaxLine + 1

func newTerminal(k *kernel.Kernel, d *machine.Devices, unit int) *Terminal {
	return &Terminal{
		k:        k,
		devices:  d,
		unit:     unit,
		readMbox: mailbox.New(readMboxDepth, readMboxSlot),
	}
}

// run is the input-side service process: one per unit, waiting on the next
// received-character interrupt and assembling complete lines.
func (t *Terminal) run(_ any) int {
	for {
		var ev machine.TermStatus
		t.k.BlockUntil(func() { ev = t.devices.WaitTerminalRecv(t.unit) })

		t.lineBuf = append(t.lineBuf, ev.Char)
		if ev.Char == '\n' || len(t.lineBuf) >= machine.MaxLine {
			// Best-effort post: once a reader has let 10 lines pile up,
			// CondSend fails and the newly assembled line is dropped, the
			// same trade-off a fixed mailbox depth always makes.
			msg := append([]byte{byte(len(t.lineBuf))}, t.lineBuf...)
			_ = t.readMbox.CondSend(msg)
			t.lineBuf = t.lineBuf[:0]
		}
	}
}

// Read blocks until one complete line is available, then returns up to size
// bytes of it: the returned buffer is exactly size bytes, holding
// min(size, line length) bytes of the assembled line followed by zero
// padding, and charsRead reports how many of those bytes are real line
// content. When the line is at least size bytes long, all size bytes are
// line content and no terminating zero byte is present; the rest of the
// line is discarded.
func (t *Terminal) Read(size int) (buf []byte, charsRead int, err error) {
	if size <= 0 {
		return nil, 0, fmt.Errorf("%w: read size must be positive", kernel.ErrInvalidArg)
	}
	var msg []byte
	t.k.BlockUntil(func() { msg = t.readMbox.Recv() })

	n := int(msg[0])
	line := msg[1 : 1+n]

	out := make([]byte, size)
	charsRead = copy(out, line)
	return out, charsRead, nil
}

// Write sends data one character at a time, waiting for the transmitter to
// report ready between each, and serializes concurrent writers on the same
// unit so their bytes cannot interleave. It reports how many characters
// were actually transmitted before any error.
func (t *Terminal) Write(data []byte) (charsWritten int, err error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty write buffer", kernel.ErrInvalidArg)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, b := range data {
		t.devices.TransmitChar(t.unit, b)
		t.k.BlockUntil(func() { t.devices.WaitTerminalXmit(t.unit) })
		charsWritten++
	}
	return charsWritten, nil
}
