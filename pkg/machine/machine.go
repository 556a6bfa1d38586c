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

// Package machine simulates the host machine abstraction that the kernel is
// layered on top of: saveable CPU contexts, a processor-status word
// distinguishing kernel/user mode and interrupt enablement, and the
// primitives used to drive interrupt-class devices. Everything here stands
// in for hardware the kernel does not control directly.
package machine

import (
	"fmt"
	"sync"
	"time"
)

// Psr is the processor status word. Bit 0 selects kernel (1) vs user (0)
// mode; bit 1 reflects whether interrupts are currently enabled.
type Psr uint32

const (
	// PsrKernelMode is set while a kernel context is executing.
	PsrKernelMode Psr = 1 << 0
	// PsrInterruptsEnabled is set while interrupts may be delivered.
	PsrInterruptsEnabled Psr = 1 << 1
)

// KernelMode reports whether the kernel-mode bit is set.
func (p Psr) KernelMode() bool { return p&PsrKernelMode != 0 }

// InterruptsEnabled reports whether the interrupt-enable bit is set.
func (p Psr) InterruptsEnabled() bool { return p&PsrInterruptsEnabled != 0 }

// Context is a saveable CPU context: the goroutine backing a process and the
// rendezvous channel the dispatcher uses to hand it the (simulated) single
// CPU. A Context is installed once, at process creation, and lives for the
// life of the slot that owns it.
type Context struct {
	resume chan struct{}
}

// Init installs entry as the body of a new context. entry does not run until
// the dispatcher performs the first Switch into this context; Init itself
// never blocks. Init takes no stack or size: this simulator lets the Go
// runtime manage goroutine stacks, and the requested stack size is recorded
// only in the process table's own slot.
func (c *Context) Init(entry func()) {
	c.resume = make(chan struct{})
	go func() {
		<-c.resume
		entry()
	}()
}

// Switch is the single context-switch primitive: it hands the CPU to next
// and, if old is non-nil, parks the calling goroutine until it is handed the
// CPU again. Exactly one Context is ever unparked at a time, which is what
// gives the kernel its single-CPU, cooperative-preemption model.
func Switch(old, next *Context) {
	if next == nil {
		panic("machine: Switch to nil context")
	}
	next.resume <- struct{}{}
	if old != nil {
		<-old.resume
	}
}

// Machine is one simulated host: it owns the processor status word, the
// monotonic clock, and the console/halt surface. A kernel owns exactly one
// Machine.
type Machine struct {
	mu      sync.Mutex
	psr     Psr
	boot    time.Time
	halted  bool
	haltErr error
	haltCh  chan struct{}
}

// New returns a Machine with interrupts disabled and the kernel-mode bit set,
// matching the state the hardware hands control to the kernel in.
func New() *Machine {
	return &Machine{
		psr:    PsrKernelMode,
		boot:   time.Now(),
		haltCh: make(chan struct{}),
	}
}

// Done returns a channel that is closed once Halt has been called. Tests and
// CLI harnesses select on this instead of waiting for the halted goroutine
// (which never returns) to do anything further.
func (m *Machine) Done() <-chan struct{} {
	return m.haltCh
}

// PsrGet returns the current processor status word.
func (m *Machine) PsrGet() Psr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.psr
}

// PsrSet installs a new processor status word and returns the previous one.
func (m *Machine) PsrSet(p Psr) Psr {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.psr
	m.psr = p
	return old
}

// DisableInterrupts clears the interrupt-enable bit and returns the prior PSR
// so the caller can restore it verbatim later. This is the kernel's sole
// mechanism for masking interrupts around a critical section.
func (m *Machine) DisableInterrupts() Psr {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.psr
	m.psr = old &^ PsrInterruptsEnabled
	return old
}

// CurrentTime returns milliseconds elapsed since the machine booted. The
// dispatcher's time-slice check is expressed in this unit; the clock
// driver's tick counter is not, it counts clock ticks.
func (m *Machine) CurrentTime() int64 {
	return time.Since(m.boot).Milliseconds()
}

// Halt stops the machine. A halted machine never returns control to any
// context; callers invoke it from the bottom of the trampoline or a fatal
// kernel error path and do not expect to resume.
func (m *Machine) Halt(code int) {
	m.mu.Lock()
	already := m.halted
	m.halted = true
	if code != 0 {
		m.haltErr = fmt.Errorf("machine halted with code %d", code)
	}
	m.mu.Unlock()
	if !already {
		close(m.haltCh)
	}
	select {} // the simulated machine stops; nothing resumes this goroutine.
}

// Halted reports whether Halt has been called, and with what error (nil for
// a clean halt). Useful for tests that want to observe a halt without
// actually blocking forever.
func (m *Machine) Halted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted, m.haltErr
}
