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

import "github.com/AmeliaMatheson/452-USLOSS-OS/pkg/mailbox"

// shadowSlot mirrors one process-table slot. publish is a per-slot
// rendezvous mailbox: whichever of the spawning parent and the newly
// forked child reaches it first simply blocks there, so the handshake
// works regardless of which the dispatcher happens to run first.
type shadowSlot struct {
	fn     func(arg any) int
	arg    any
	publish *mailbox.Mailbox
}

// shadowTable is the phase-3 auxiliary table, sized and indexed exactly
// like the process table it mirrors (same pid-mod-capacity addressing).
type shadowTable struct {
	slots []shadowSlot
}

func newShadowTable(capacity int) *shadowTable {
	t := &shadowTable{slots: make([]shadowSlot, capacity)}
	for i := range t.slots {
		t.slots[i].publish = mailbox.New(0, 0)
	}
	return t
}

// set is called by the parent (inside Spawn) to publish the child's real
// entry point, and blocks until the child's helper has taken it.
func (t *shadowTable) set(idx int32, fn func(arg any) int, arg any) {
	slot := &t.slots[idx]
	slot.fn, slot.arg = fn, arg
	slot.publish.Send(nil)
}

// take is called by the child's helper and blocks until the parent has
// published, returning the fn/arg pair meant for this slot.
func (t *shadowTable) take(idx int32) (func(arg any) int, any) {
	slot := &t.slots[idx]
	slot.publish.Recv()
	return slot.fn, slot.arg
}
