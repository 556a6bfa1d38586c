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

package usermode

import (
	"fmt"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/mailbox"
)

// MaxSems bounds the semaphore table, mirroring MAXPROC's role for the
// process table.
const MaxSems = 200

// semaphore is a counting semaphore. Its own bookkeeping (value) is
// guarded by a 1-slot mailbox used as a mutex, per the "a lock is a
// 1-slot mailbox initialized full" idiom; a blocked P, though, is parked
// through the kernel's dispatcher (WaitGate) rather than a second mailbox
// receive, so that some other process actually gets the CPU while it
// waits instead of the whole machine stalling on a mailbox no driver or
// dispatcher is watching.
type semaphore struct {
	mutex   *mailbox.Mailbox
	waiters *kernel.WaitGate
	value   int
}

func newSemaphore(k *kernel.Kernel, initial int) *semaphore {
	s := &semaphore{
		mutex:   mailbox.New(1, 0),
		waiters: k.NewWaitGate(),
		value:   initial,
	}
	s.mutex.Send(nil)
	return s
}

func (s *semaphore) p(k *kernel.Kernel) {
	s.mutex.Recv()
	if s.value > 0 {
		s.value--
		s.mutex.Send(nil)
		return
	}
	// Register marks us blocked and records our pid before we give up the
	// mutex, so a V that acquires it right after can never see "no one
	// waiting" when in fact we are about to be.
	s.waiters.Register(k)
	s.mutex.Send(nil)
	k.Yield()
}

func (s *semaphore) v(k *kernel.Kernel) {
	s.mutex.Recv()
	if s.waiters.Wake(k) {
		s.mutex.Send(nil)
		return
	}
	s.value++
	s.mutex.Send(nil)
}

// semTable is the fixed array of counting semaphores phase 3 installs.
type semTable struct {
	slots [MaxSems]*semaphore
}

func (t *semTable) create(k *kernel.Kernel, initial int) (int, error) {
	for id := range t.slots {
		if t.slots[id] == nil {
			t.slots[id] = newSemaphore(k, initial)
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: semaphore table full", kernel.ErrDenied)
}

func (t *semTable) get(id int) (*semaphore, error) {
	if id < 0 || id >= MaxSems || t.slots[id] == nil {
		return nil, fmt.Errorf("%w: invalid semaphore id %d", kernel.ErrInvalidArg, id)
	}
	return t.slots[id], nil
}
