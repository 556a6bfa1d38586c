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

// Package drivers is the phase-4 device layer: a clock driver with a
// tick-ordered sleep queue, one input driver per terminal unit, and one
// request-serializing driver per disk unit. Each is a real forked kernel
// process — it shows up in the process table and the dump like any other
// process — rather than a bare background goroutine, the way the original
// service-process design intends. Every one of them waits on simulated
// hardware through Kernel.BlockUntil instead of blocking its goroutine
// directly, so a slow or idle device never starves every other process of
// the single simulated CPU.
package drivers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// sleepEntry is one pending Sleep call, ordered by the tick it should wake
// on; ties break in arrival order (stable insertion).
type sleepEntry struct {
	pid    int32
	wakeup int64
}

// Clock is the phase-4 clock driver: it counts ticks and wakes whatever
// sleepers are due, in tick order, on every one.
type Clock struct {
	k       *kernel.Kernel
	devices *machine.Devices

	mu    sync.Mutex
	ticks int64
	queue []sleepEntry
}

func newClock(k *kernel.Kernel, d *machine.Devices) *Clock {
	return &Clock{k: k, devices: d}
}

// run is the clock driver's service-process body. Each iteration waits for
// the next tick off the simulated hardware, then wakes every sleeper whose
// wakeup tick has arrived.
func (c *Clock) run(_ any) int {
	for {
		c.k.BlockUntil(func() { c.devices.WaitClock() })

		c.mu.Lock()
		c.ticks++
		now := c.ticks
		var due []int32
		for len(c.queue) > 0 && c.queue[0].wakeup <= now {
			due = append(due, c.queue[0].pid)
			c.queue = c.queue[1:]
		}
		c.mu.Unlock()

		for _, pid := range due {
			c.k.Unblock(pid)
		}
	}
}

// insertSorted inserts e keeping queue ascending by wakeup tick, stable on
// ties. Callers hold c.mu.
func (c *Clock) insertSorted(e sleepEntry) {
	i := sort.Search(len(c.queue), func(i int) bool { return c.queue[i].wakeup > e.wakeup })
	c.queue = append(c.queue, sleepEntry{})
	copy(c.queue[i+1:], c.queue[i:])
	c.queue[i] = e
}

// Sleep blocks the calling process until at least seconds have elapsed, in
// units of ten ticks per second. It rejects a negative duration; zero
// seconds still yields the CPU for at least one tick, the same as any
// other wakeup-on-next-tick caller.
func (c *Clock) Sleep(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative sleep duration", kernel.ErrInvalidArg)
	}
	pid := c.k.CurrentPID()
	c.mu.Lock()
	wakeup := c.ticks + int64(seconds)*10
	c.insertSorted(sleepEntry{pid: pid, wakeup: wakeup})
	// MarkBlocked while still holding c.mu: the clock driver also needs
	// c.mu to scan the queue, so it cannot observe this entry before we
	// are actually registered as blocked.
	c.k.MarkBlocked()
	c.mu.Unlock()
	c.k.Yield()
	return nil
}
