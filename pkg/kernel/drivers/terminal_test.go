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
	"testing"
	"time"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// TestTerminalReadAssemblesLine is scenario S6: injected bytes up to and
// including a newline arrive at Read as one assembled line.
func TestTerminalReadAssemblesLine(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	m := machine.New()
	k := kernel.New(m, 10)

	term := newTerminal(k, devices, 0)

	type outcome struct {
		line      []byte
		charsRead int
		err       error
	}
	done := make(chan outcome, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("term0", term.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork: %v", err)
			}
		})

		// WaitTerminalRecv registers from a BlockUntil-spawned goroutine,
		// not synchronously with the fork above; give it a moment to
		// register before injecting, the same accepted race documented for
		// the transmit side in DESIGN.md.
		time.Sleep(5 * time.Millisecond)
		devices.InjectTerminalInput(0, []byte("hi\n"))

		line, charsRead, err := term.Read(machine.MaxLine)
		done <- outcome{line: line, charsRead: charsRead, err: err}
		park()
		return 0
	})

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("Read: %v", o.err)
		}
		if o.charsRead != 3 {
			t.Fatalf("charsRead = %d, want 3", o.charsRead)
		}
		if len(o.line) != machine.MaxLine {
			t.Fatalf("len(line) = %d, want %d", len(o.line), machine.MaxLine)
		}
		if string(o.line[:o.charsRead]) != "hi\n" {
			t.Fatalf("line = %q, want %q", o.line[:o.charsRead], "hi\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestTerminalReadTruncatesToSize confirms a reader asking for fewer bytes
// than the assembled line gets exactly size bytes back, with the excess
// discarded rather than returned, per termRead's contract.
func TestTerminalReadTruncatesToSize(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	m := machine.New()
	k := kernel.New(m, 10)

	term := newTerminal(k, devices, 0)

	type outcome struct {
		line      []byte
		charsRead int
		err       error
	}
	done := make(chan outcome, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("term0", term.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork: %v", err)
			}
		})

		time.Sleep(5 * time.Millisecond)
		devices.InjectTerminalInput(0, []byte("hello\n"))

		line, charsRead, err := term.Read(3)
		done <- outcome{line: line, charsRead: charsRead, err: err}
		park()
		return 0
	})

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("Read: %v", o.err)
		}
		if o.charsRead != 3 {
			t.Fatalf("charsRead = %d, want 3", o.charsRead)
		}
		if string(o.line) != "hel" {
			t.Fatalf("line = %q, want %q", o.line, "hel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
