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

// Package hostterm backs one simulated terminal unit with a real PTY, the
// one place this kernel's device model touches an actual host resource
// rather than the pure in-memory simulator: host keystrokes become
// injected receive interrupts, and bytes the terminal driver transmits are
// written straight through to the PTY master.
package hostterm

import (
	"fmt"
	"io"
	"os"

	"github.com/containerd/console"
	"github.com/kr/pty"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// Bridge owns the PTY backing one terminal unit. Close restores the host
// terminal and releases the PTY.
type Bridge struct {
	master console.Console
	slave  *os.File
	stop   chan struct{}
}

// Attach opens a PTY, puts the master side in raw mode, and wires it to
// unit on devices: input pumped from the master into InjectTerminalInput,
// output delivered via SetTerminalSink straight back to the master. The
// slave end is kept on the returned Bridge; SlaveName reports its path so
// the caller can print it for a human to connect to.
func Attach(devices *machine.Devices, unit int) (*Bridge, error) {
	masterFile, slaveFile, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("hostterm: opening pty: %w", err)
	}
	master, err := console.ConsoleFromFile(masterFile)
	if err != nil {
		slaveFile.Close()
		masterFile.Close()
		return nil, fmt.Errorf("hostterm: wrapping pty master: %w", err)
	}
	if err := master.SetRaw(); err != nil {
		slaveFile.Close()
		masterFile.Close()
		return nil, fmt.Errorf("hostterm: setting raw mode: %w", err)
	}

	b := &Bridge{master: master, slave: slaveFile, stop: make(chan struct{})}
	devices.SetTerminalSink(unit, func(c byte) {
		_, _ = b.master.Write([]byte{c})
	})
	go b.pumpInput(devices, unit)
	return b, nil
}

// SlaveName returns the PTY slave's path, e.g. for printing to the user so
// they know what to connect a terminal emulator to.
func (b *Bridge) SlaveName() string {
	return b.slave.Name()
}

func (b *Bridge) pumpInput(devices *machine.Devices, unit int) {
	buf := make([]byte, 256)
	for {
		n, err := b.master.Read(buf)
		if n > 0 {
			devices.InjectTerminalInput(unit, buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				select {
				case <-b.stop:
				default:
				}
			}
			return
		}
		select {
		case <-b.stop:
			return
		default:
		}
	}
}

// Close restores the host console and releases the PTY.
func (b *Bridge) Close() error {
	close(b.stop)
	slaveErr := b.slave.Close()
	masterErr := b.master.Close()
	if slaveErr != nil {
		return slaveErr
	}
	return masterErr
}
