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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// diskRequest is one pending read or write, submitted by some caller and
// completed by the unit's driver process. status and, for a read, data are
// filled in by the driver before it unblocks the submitter; the submitter
// never reads either field until after that wakeup, so no lock guards them.
type diskRequest struct {
	pid    int32
	write  bool
	track  int
	block  int
	data   []byte
	status int
}

// Disk is one disk unit's driver: requests are serviced strictly in
// submission order by a single driver process, which is what makes the
// unit's operations appear atomic to every caller regardless of how many
// are submitted concurrently. Content lives in an in-memory backing store
// since the underlying machine.Devices only simulates seek/transfer timing
// and completion status, not storage; when dataDir is non-empty, writes are
// additionally flushed to a per-unit backing file so content survives a
// process restart against the same data directory.
type Disk struct {
	k       *kernel.Kernel
	devices *machine.Devices
	unit    int
	tracks  int

	mu      sync.Mutex
	queue   []*diskRequest
	idle    *kernel.WaitGate
	storage [][]byte

	file *os.File
	lock *flock.Flock
}

// newDisk builds the unit's in-memory state and, if dataDir is non-empty,
// opens (creating if needed) its backing file under an exclusive advisory
// lock, loading any content already on disk. A dataDir already locked by
// another process is reported as a denied resource rather than silently
// sharing the image.
func newDisk(k *kernel.Kernel, d *machine.Devices, unit int, dataDir string) (*Disk, error) {
	_, blocksPerTrack, tracks := d.DiskGeometry(unit)
	disk := &Disk{
		k:       k,
		devices: d,
		unit:    unit,
		tracks:  tracks,
		idle:    k.NewWaitGate(),
		storage: make([][]byte, tracks*blocksPerTrack),
	}
	if dataDir == "" {
		return disk, nil
	}

	imgPath := filepath.Join(dataDir, fmt.Sprintf("disk%d.img", unit))
	lk := flock.New(imgPath + ".lock")
	locked, err := lk.TryLock()
	if err != nil || !locked {
		return nil, fmt.Errorf("%w: disk unit %d: %s is in use by another process", kernel.ErrDenied, unit, imgPath)
	}

	f, err := os.OpenFile(imgPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		lk.Unlock()
		return nil, fmt.Errorf("disk unit %d: opening %s: %w", unit, imgPath, err)
	}
	disk.file = f
	disk.lock = lk
	disk.loadFromFile()
	return disk, nil
}

// loadFromFile populates storage from any content already written to the
// backing file. Short or missing sectors are left nil (read-as-zero).
func (d *Disk) loadFromFile() {
	sector := make([]byte, machine.SectorSize)
	for i := range d.storage {
		n, err := d.file.ReadAt(sector, int64(i)*machine.SectorSize)
		if n == machine.SectorSize && err == nil {
			buf := make([]byte, machine.SectorSize)
			copy(buf, sector)
			d.storage[i] = buf
		}
	}
}

// flush writes one sector to the backing file, retrying a transient I/O
// error a few times before giving up. A Disk with no backing file is a
// no-op.
func (d *Disk) flush(index int, data []byte) error {
	if d.file == nil {
		return nil
	}
	offset := int64(index) * machine.SectorSize
	op := func() error {
		_, err := d.file.WriteAt(data, offset)
		return err
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 3))
}

// Close releases the unit's backing file and advisory lock, if any.
func (d *Disk) Close() error {
	if d.file == nil {
		return nil
	}
	closeErr := d.file.Close()
	lockErr := d.lock.Unlock()
	if closeErr != nil {
		return closeErr
	}
	return lockErr
}

// run is the unit's driver service process: pull the oldest request,
// perform it against the simulated hardware, and wake its submitter.
func (d *Disk) run(_ any) int {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.idle.Register(d.k)
			d.mu.Unlock()
			d.k.Yield()
			continue
		}
		req := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.k.BlockUntil(func() {
			d.devices.DiskSeekAndTransfer(d.unit, req.track, req.write)
			status := d.devices.WaitDisk(d.unit)
			req.status = status.Code
			if status.Code == machine.DevOK && req.write {
				index := req.track*machine.BlocksPerTrack + req.block
				d.mu.Lock()
				d.storage[index] = req.data
				d.mu.Unlock()
				if err := d.flush(index, req.data); err != nil {
					req.status = machine.DevError
				}
			}
		})
		d.k.Unblock(req.pid)
	}
}

// submit enqueues req under the unit's own pid/order and blocks the caller
// until the driver has completed it. Registering as blocked happens before
// the queue lock is released, so a driver that is already idle and about
// to register on d.idle can never miss this submission.
func (d *Disk) submit(req *diskRequest) {
	req.pid = d.k.CurrentPID()
	d.mu.Lock()
	d.queue = append(d.queue, req)
	d.k.MarkBlocked()
	d.mu.Unlock()
	d.idle.Wake(d.k)
	d.k.Yield()
}

func (d *Disk) checkBounds(track, block int) error {
	if track < 0 || track >= d.tracks || block < 0 || block >= machine.BlocksPerTrack {
		return fmt.Errorf("%w: disk unit %d track %d block %d out of range", kernel.ErrInvalidArg, d.unit, track, block)
	}
	return nil
}

// Read returns one SectorSize-byte sector, zero-filled if never written.
func (d *Disk) Read(track, block int) ([]byte, error) {
	if err := d.checkBounds(track, block); err != nil {
		return nil, err
	}
	req := &diskRequest{write: false, track: track, block: block}
	d.submit(req)
	if req.status != machine.DevOK {
		return nil, fmt.Errorf("%w: disk unit %d read failed", kernel.ErrDenied, d.unit)
	}
	out := make([]byte, machine.SectorSize)
	d.mu.Lock()
	copy(out, d.storage[track*machine.BlocksPerTrack+block])
	d.mu.Unlock()
	return out, nil
}

// Write stores data (truncated or zero-padded to SectorSize) at track/block.
func (d *Disk) Write(track, block int, data []byte) error {
	if err := d.checkBounds(track, block); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write buffer", kernel.ErrInvalidArg)
	}
	buf := make([]byte, machine.SectorSize)
	copy(buf, data)
	req := &diskRequest{write: true, track: track, block: block, data: buf}
	d.submit(req)
	if req.status != machine.DevOK {
		return fmt.Errorf("%w: disk unit %d write failed", kernel.ErrDenied, d.unit)
	}
	return nil
}

// Tracks reports the unit's total track count.
func (d *Disk) Tracks() int {
	return d.tracks
}

// ReadBlocks reads blocks contiguous sectors starting at (track, firstBlock),
// crossing onto subsequent tracks as firstBlock+i overflows BlocksPerTrack,
// and returns them concatenated as one blocks*SectorSize buffer.
func (d *Disk) ReadBlocks(track, firstBlock, blocks int) ([]byte, error) {
	if err := d.checkTransfer(track, firstBlock, blocks); err != nil {
		return nil, err
	}
	out := make([]byte, 0, blocks*machine.SectorSize)
	for i := firstBlock; i < firstBlock+blocks; i++ {
		curTrack := track + i/machine.BlocksPerTrack
		curBlock := i % machine.BlocksPerTrack
		sector, err := d.Read(curTrack, curBlock)
		if err != nil {
			return nil, err
		}
		out = append(out, sector...)
	}
	return out, nil
}

// WriteBlocks writes buf across blocks contiguous sectors starting at
// (track, firstBlock), re-seeking as the absolute track changes. buf is
// split into SectorSize chunks, truncated or zero-padded per sector exactly
// as Write does for a single one.
func (d *Disk) WriteBlocks(track, firstBlock, blocks int, buf []byte) error {
	if err := d.checkTransfer(track, firstBlock, blocks); err != nil {
		return err
	}
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty write buffer", kernel.ErrInvalidArg)
	}
	for n, i := 0, firstBlock; i < firstBlock+blocks; n, i = n+1, i+1 {
		curTrack := track + i/machine.BlocksPerTrack
		curBlock := i % machine.BlocksPerTrack
		lo := n * machine.SectorSize
		hi := lo + machine.SectorSize
		if lo > len(buf) {
			lo = len(buf)
		}
		if hi > len(buf) {
			hi = len(buf)
		}
		chunk := buf[lo:hi]
		if len(chunk) == 0 {
			chunk = make([]byte, machine.SectorSize)
		}
		if err := d.Write(curTrack, curBlock, chunk); err != nil {
			return err
		}
	}
	return nil
}

// checkTransfer validates a multi-block request's shape: firstBlock must be
// non-negative, blocks must be positive, and every sector the transfer touches (after crossing
// onto later tracks as firstBlock+i overflows BlocksPerTrack) must land
// within the unit's geometry.
func (d *Disk) checkTransfer(track, firstBlock, blocks int) error {
	if firstBlock < 0 || blocks <= 0 {
		return fmt.Errorf("%w: disk unit %d firstBlock %d blocks %d out of range", kernel.ErrInvalidArg, d.unit, firstBlock, blocks)
	}
	lastTrack := track + (firstBlock+blocks-1)/machine.BlocksPerTrack
	if err := d.checkBounds(track, firstBlock%machine.BlocksPerTrack); err != nil {
		return err
	}
	if lastTrack >= d.tracks {
		return fmt.Errorf("%w: disk unit %d track %d out of range", kernel.ErrInvalidArg, d.unit, lastTrack)
	}
	return nil
}
