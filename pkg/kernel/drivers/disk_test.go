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
	"bytes"
	"testing"
	"time"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// park blocks the calling goroutine forever, used at the end of an init body
// under test so the trampoline's quit-on-return path never runs once init is
// the last runnable process.
func park() { select {} }

// TestDiskWriteReadRoundTrip is scenario S7's round trip: write a 1024-byte
// pattern at track=5, firstBlock=2, blocks=2 (spanning two sectors but not
// crossing a track boundary), then read the same coordinates back.
func TestDiskWriteReadRoundTrip(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	diskTracks[0] = 8
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	m := machine.New()
	k := kernel.New(m, 10)

	disk, err := newDisk(k, devices, 0, "")
	if err != nil {
		t.Fatalf("newDisk: %v", err)
	}

	pattern := bytes.Repeat([]byte{0xAB}, 2*machine.SectorSize)
	type outcome struct {
		read []byte
		err  error
	}
	done := make(chan outcome, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("disk0", disk.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork: %v", err)
			}
		})

		if err := disk.WriteBlocks(5, 2, 2, pattern); err != nil {
			done <- outcome{err: err}
			park()
		}
		got, err := disk.ReadBlocks(5, 2, 2)
		done <- outcome{read: got, err: err}
		park()
		return 0
	})

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("disk round trip: %v", o.err)
		}
		if !bytes.Equal(o.read, pattern) {
			t.Fatalf("read back %x, want %x", o.read, pattern)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestDiskWriteCrossesTrackBoundary exercises the cross-track addressing
// path: firstBlock + blocks overflows BlocksPerTrack, so the transfer must
// re-seek onto the next track partway through and still read back correctly.
func TestDiskWriteCrossesTrackBoundary(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	diskTracks[0] = 3
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	m := machine.New()
	k := kernel.New(m, 10)

	disk, err := newDisk(k, devices, 0, "")
	if err != nil {
		t.Fatalf("newDisk: %v", err)
	}

	const blocks = 3
	pattern := bytes.Repeat([]byte{0xCD}, blocks*machine.SectorSize)
	firstBlock := machine.BlocksPerTrack - 1

	type outcome struct {
		read []byte
		err  error
	}
	done := make(chan outcome, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("disk0", disk.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork: %v", err)
			}
		})

		if err := disk.WriteBlocks(0, firstBlock, blocks, pattern); err != nil {
			done <- outcome{err: err}
			park()
		}
		got, err := disk.ReadBlocks(0, firstBlock, blocks)
		done <- outcome{read: got, err: err}
		park()
		return 0
	})

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("cross-track round trip: %v", o.err)
		}
		if !bytes.Equal(o.read, pattern) {
			t.Fatalf("read back %x, want %x", o.read, pattern)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestDiskReadBeyondTracksFails is S7's error case: a track past the unit's
// geometry must fail rather than silently reading garbage.
func TestDiskReadBeyondTracksFails(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	diskTracks[0] = 2
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	m := machine.New()
	k := kernel.New(m, 10)

	disk, err := newDisk(k, devices, 0, "")
	if err != nil {
		t.Fatalf("newDisk: %v", err)
	}

	errCh := make(chan error, 1)
	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("disk0", disk.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork: %v", err)
			}
		})
		_, readErr := disk.Read(2, 0)
		errCh <- readErr
		park()
		return 0
	})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("read beyond tracks succeeded, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
