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

// Package usermode is the phase-3 user-mode runtime: spawn/wait/terminate
// built on the phase-1 kernel's fork/join/quit, and counting semaphores
// built on phase-2 mailboxes. It mirrors the process table with a shadow
// table of user-level entry points, since the kernel's own process table
// only knows about the shared spawn helper every process forks through.
package usermode

import (
	"fmt"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel/drivers"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// Runtime ties one Kernel to its shadow table, semaphore table, and phase-4
// drivers. A kernel has at most one Runtime installed on top of it.
type Runtime struct {
	kernel  *kernel.Kernel
	shadow  *shadowTable
	sems    semTable
	drivers *drivers.Drivers
}

// New builds a Runtime over k, sized to match k's process table capacity,
// and forks the phase-4 driver service processes over devices. It is called
// from init's body; drivers.Install raises kernel mode around each of its
// kernel-only forks. dataDir is passed straight through to drivers.Install.
func New(k *kernel.Kernel, devices *machine.Devices, dataDir string) (*Runtime, error) {
	var d *drivers.Drivers
	var err error
	k.Privileged(func() { d, err = drivers.Install(k, devices, dataDir) })
	if err != nil {
		return nil, err
	}
	return &Runtime{
		kernel:  k,
		shadow:  newShadowTable(k.Table().Capacity()),
		drivers: d,
	}, nil
}

// Spawn forks a kernel process whose entry is the shared spawnHelper, then
// publishes the caller's real fn/arg into the shadow table under the
// child's slot. The handshake in shadowTable.set/take makes this correct
// regardless of whether the child or the parent reaches that point first.
func (rt *Runtime) Spawn(name string, fn func(arg any) int, arg any, stackSize, priority int) (int32, error) {
	var childPID int32
	var err error
	rt.kernel.Privileged(func() {
		childPID, err = rt.kernel.Fork(name, rt.spawnHelper, nil, stackSize, priority)
	})
	if err != nil {
		return 0, err
	}
	idx := rt.kernel.Table().Index(childPID)
	rt.shadow.set(idx, fn, arg)
	return childPID, nil
}

// spawnHelper is installed as every spawned process's kernel-level start
// function. It takes the real entry point out of the shadow table, runs it
// in user mode (already the case by the time any StartFunc runs, per the
// kernel trampoline), and terminates with its return value.
func (rt *Runtime) spawnHelper(_ any) int {
	pid := rt.kernel.CurrentPID()
	idx := rt.kernel.Table().Index(pid)
	fn, arg := rt.shadow.take(idx)
	return rt.Terminate(fn(arg))
}

// Wait delegates to join.
func (rt *Runtime) Wait() (int32, int, error) {
	return rt.kernel.Join()
}

// Terminate reaps every remaining child by repeated join until none are
// left, then quits. Unlike a bare quit, terminate never fatal-errors on
// outstanding children — that is the whole point of the extra reaping
// step.
func (rt *Runtime) Terminate(status int) int {
	for {
		if _, _, err := rt.kernel.Join(); err != nil {
			break
		}
	}
	rt.kernel.Privileged(func() { rt.kernel.Quit(status) })
	return 0
}

// GetPID returns the calling process's pid.
func (rt *Runtime) GetPID() int32 {
	return rt.kernel.CurrentPID()
}

// GetTime returns the elapsed simulated ticks (100ms each) since boot.
func (rt *Runtime) GetTime() int64 {
	return rt.kernel.Machine().CurrentTime() / 100
}

// Zap blocks the caller until targetPID terminates. Not kernel-only: any
// user-mode process may name a zap target, same as the test scenarios in
// the original phase-1 suite exercise it.
func (rt *Runtime) Zap(targetPID int32) error {
	return rt.kernel.Zap(targetPID)
}

// SemCreate installs a counting semaphore with the given initial value and
// returns its id.
func (rt *Runtime) SemCreate(initial int) (int, error) {
	if initial < 0 {
		return 0, fmt.Errorf("%w: negative initial semaphore value", kernel.ErrInvalidArg)
	}
	return rt.sems.create(rt.kernel, initial)
}

// SemP decrements semaphore id, blocking if its value is already zero.
func (rt *Runtime) SemP(id int) error {
	s, err := rt.sems.get(id)
	if err != nil {
		return err
	}
	s.p(rt.kernel)
	return nil
}

// SemV increments semaphore id, or wakes its longest-waiting blocked
// caller if one exists.
func (rt *Runtime) SemV(id int) error {
	s, err := rt.sems.get(id)
	if err != nil {
		return err
	}
	s.v(rt.kernel)
	return nil
}

// Sleep blocks the caller for at least seconds.
func (rt *Runtime) Sleep(seconds int) error {
	return rt.drivers.Sleep(seconds)
}

// TermRead reads one line from the given terminal unit, returning up to
// size bytes of it and the count of those bytes that are real line content.
func (rt *Runtime) TermRead(unit, size int) ([]byte, int, error) {
	return rt.drivers.TermRead(unit, size)
}

// TermWrite writes data to the given terminal unit, returning the count of
// characters actually transmitted.
func (rt *Runtime) TermWrite(unit int, data []byte) (int, error) {
	return rt.drivers.TermWrite(unit, data)
}

// DiskRead reads blocks contiguous sectors from the given disk unit starting
// at (track, firstBlock), crossing tracks as the range requires.
func (rt *Runtime) DiskRead(unit, track, firstBlock, blocks int) ([]byte, error) {
	return rt.drivers.DiskRead(unit, track, firstBlock, blocks)
}

// DiskWrite writes buf across blocks contiguous sectors on the given disk
// unit starting at (track, firstBlock), crossing tracks as the range
// requires.
func (rt *Runtime) DiskWrite(unit, track, firstBlock, blocks int, buf []byte) error {
	return rt.drivers.DiskWrite(unit, track, firstBlock, blocks, buf)
}

// DiskSize reports the given disk unit's geometry: sector size in bytes,
// blocks per track, and total tracks.
func (rt *Runtime) DiskSize(unit int) (sectorBytes, blocksPerTrack, tracks int, err error) {
	return rt.drivers.DiskSize(unit)
}

// Close releases the driver layer's held resources (disk backing files and
// locks). Call once, after the machine has halted.
func (rt *Runtime) Close() error {
	return rt.drivers.Close()
}
