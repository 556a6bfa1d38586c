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

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// servicePriority is the run-queue priority every driver service process
// forks at: higher than user processes at priorities 3..5, so a process
// sleeping or blocked on I/O is serviced promptly once it is runnable. A
// user process forked at priority 1 still outranks the drivers.
const servicePriority = 2

// Drivers bundles one clock, TerminalUnits terminals, and DiskUnits disks
// over a single kernel/machine pair. Install forks each unit's service
// process; the returned Drivers is then the entry point phase-3 syscalls
// (and anything else) use for Sleep/termRead/termWrite/diskRead/diskWrite.
type Drivers struct {
	Clock     *Clock
	Terminals [machine.TerminalUnits]*Terminal
	Disks     [machine.DiskUnits]*Disk
}

// Install builds the driver set and forks every service process. Fork is
// kernel-only, so Install raises kernel mode itself around each Fork (see
// forkErr below); the caller need not be privileged. dataDir, if non-empty,
// backs each disk unit with a file under that directory; pass "" for a
// purely in-memory disk (what every test in this repository does).
func Install(k *kernel.Kernel, devices *machine.Devices, dataDir string) (*Drivers, error) {
	d := &Drivers{Clock: newClock(k, devices)}
	for i := range d.Terminals {
		d.Terminals[i] = newTerminal(k, devices, i)
	}
	for i := range d.Disks {
		disk, err := newDisk(k, devices, i, dataDir)
		if err != nil {
			return nil, fmt.Errorf("drivers: disk unit %d: %w", i, err)
		}
		d.Disks[i] = disk
	}

	// Each fork below runs in its own Privileged call, not one covering the
	// whole loop: the moment a forked service process is dispatched for
	// the first time, its trampoline drops the machine to user mode before
	// this goroutine ever regains the CPU, so a single Privileged wrapper
	// around the whole loop would leave every fork after the first racing
	// a PSR already clobbered back to user mode.
	forkErr := func(name string, fn func(arg any) int) error {
		var err error
		k.Privileged(func() {
			_, err = k.Fork(name, fn, nil, kernel.MinStackSize, servicePriority)
		})
		return err
	}

	if err := forkErr("clock driver", d.Clock.run); err != nil {
		return nil, fmt.Errorf("drivers: forking clock driver: %w", err)
	}
	for i, t := range d.Terminals {
		if err := forkErr(fmt.Sprintf("terminal driver %d", i), t.run); err != nil {
			return nil, fmt.Errorf("drivers: forking terminal driver %d: %w", i, err)
		}
	}
	for i, disk := range d.Disks {
		if err := forkErr(fmt.Sprintf("disk driver %d", i), disk.run); err != nil {
			return nil, fmt.Errorf("drivers: forking disk driver %d: %w", i, err)
		}
	}
	return d, nil
}

// Close releases every disk unit's backing file and advisory lock. Safe to
// call even when no unit has one.
func (d *Drivers) Close() error {
	var firstErr error
	for _, disk := range d.Disks {
		if err := disk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sleep blocks the caller for at least seconds.
func (d *Drivers) Sleep(seconds int) error {
	return d.Clock.Sleep(seconds)
}

func (d *Drivers) terminal(unit int) (*Terminal, error) {
	if unit < 0 || unit >= machine.TerminalUnits {
		return nil, fmt.Errorf("%w: terminal unit %d out of range", kernel.ErrInvalidArg, unit)
	}
	return d.Terminals[unit], nil
}

func (d *Drivers) disk(unit int) (*Disk, error) {
	if unit < 0 || unit >= machine.DiskUnits {
		return nil, fmt.Errorf("%w: disk unit %d out of range", kernel.ErrInvalidArg, unit)
	}
	return d.Disks[unit], nil
}

// TermRead reads one line from the given terminal unit, returning up to
// size bytes of it and how many of those bytes are real line content.
func (d *Drivers) TermRead(unit, size int) ([]byte, int, error) {
	t, err := d.terminal(unit)
	if err != nil {
		return nil, 0, err
	}
	return t.Read(size)
}

// TermWrite writes data to the given terminal unit, returning how many
// characters were transmitted.
func (d *Drivers) TermWrite(unit int, data []byte) (int, error) {
	t, err := d.terminal(unit)
	if err != nil {
		return 0, err
	}
	return t.Write(data)
}

// DiskRead reads blocks contiguous sectors from the given disk unit starting
// at (track, firstBlock), crossing onto later tracks as the block range
// overflows BlocksPerTrack, and returns them concatenated.
func (d *Drivers) DiskRead(unit, track, firstBlock, blocks int) ([]byte, error) {
	disk, err := d.disk(unit)
	if err != nil {
		return nil, err
	}
	return disk.ReadBlocks(track, firstBlock, blocks)
}

// DiskWrite writes buf across blocks contiguous sectors on the given disk
// unit starting at (track, firstBlock), crossing onto later tracks as the
// block range overflows BlocksPerTrack.
func (d *Drivers) DiskWrite(unit, track, firstBlock, blocks int, buf []byte) error {
	disk, err := d.disk(unit)
	if err != nil {
		return err
	}
	return disk.WriteBlocks(track, firstBlock, blocks, buf)
}

// DiskSize reports the given disk unit's geometry: sector size in bytes,
// blocks per track, and total tracks.
func (d *Drivers) DiskSize(unit int) (sectorBytes, blocksPerTrack, tracks int, err error) {
	disk, err := d.disk(unit)
	if err != nil {
		return 0, 0, 0, err
	}
	return machine.SectorSize, machine.BlocksPerTrack, disk.Tracks(), nil
}
