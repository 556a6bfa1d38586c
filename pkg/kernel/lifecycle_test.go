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

package kernel_test

import (
	"testing"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// park blocks the calling goroutine forever, used at the end of an init
// body under test so the trampoline's quit-on-return path (which would
// panic the dispatcher once init is the last runnable process) never runs.
func park() { select {} }

// TestForkJoinSingleChild is scenario S1: one child forked at a priority
// higher than init's, which returns immediately; join reports its pid and
// status.
func TestForkJoinSingleChild(t *testing.T) {
	m := machine.New()
	k := kernel.New(m, 10)

	type result struct {
		pid    int32
		status int
		err    error
	}
	done := make(chan result, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("child", func(any) int { return 7 }, nil, kernel.MinStackSize, 3); err != nil {
				done <- result{err: err}
				park()
			}
		})
		pid, status, err := k.Join()
		done <- result{pid: pid, status: status, err: err}
		park()
		return 0
	})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Join: %v", r.err)
		}
		if r.pid == 0 {
			t.Fatalf("Join returned pid 0")
		}
		if r.status != 7 {
			t.Fatalf("status = %d, want 7", r.status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join")
	}
}

// TestJoinReturnsDeadChildrenThenErrors is scenario S2: two children quit
// with distinct statuses; two joins report both (in either order, since
// quit prepends to the dead-child list), and a third reports no children
// left.
func TestJoinReturnsDeadChildrenThenErrors(t *testing.T) {
	m := machine.New()
	k := kernel.New(m, 10)

	type outcome struct {
		statuses []int
		thirdErr error
	}
	done := make(chan outcome, 1)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("a", func(any) int { return 7 }, nil, kernel.MinStackSize, 3); err != nil {
				t.Errorf("Fork a: %v", err)
			}
			if _, err := k.Fork("b", func(any) int { return 8 }, nil, kernel.MinStackSize, 3); err != nil {
				t.Errorf("Fork b: %v", err)
			}
		})

		var got []int
		for i := 0; i < 2; i++ {
			_, status, err := k.Join()
			if err != nil {
				t.Errorf("Join %d: %v", i, err)
			}
			got = append(got, status)
		}
		_, _, thirdErr := k.Join()
		done <- outcome{statuses: got, thirdErr: thirdErr}
		park()
		return 0
	})

	select {
	case o := <-done:
		seen := map[int]bool{}
		for _, s := range o.statuses {
			seen[s] = true
		}
		if !seen[7] || !seen[8] {
			t.Fatalf("statuses = %v, want {7,8}", o.statuses)
		}
		if o.thirdErr == nil {
			t.Fatal("third Join with no children succeeded, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestTablePidIndexInvariant checks property 1 from spec.md §8: every
// in-use slot's pid satisfies pid mod capacity == its table index.
func TestTablePidIndexInvariant(t *testing.T) {
	m := machine.New()
	k := kernel.New(m, 4)

	seenChildren := make(chan struct{})
	k.Bootstrap(func(any) int {
		for i := 0; i < 3; i++ {
			var forkErr error
			k.Privileged(func() {
				_, forkErr = k.Fork("c", func(any) int { k.Block(); return 0 }, nil, kernel.MinStackSize, 3)
			})
			if forkErr != nil {
				t.Errorf("Fork: %v", forkErr)
			}
		}
		close(seenChildren)
		park()
		return 0
	})

	select {
	case <-seenChildren:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out forking children")
	}

	k.Table().Each(func(idx int32, p *kernel.PCB) {
		if k.Table().Index(p.PID) != idx {
			t.Fatalf("slot %d holds pid %d, which indexes to %d", idx, p.PID, k.Table().Index(p.PID))
		}
	})
}

// TestTableSnapshotNotAliased confirms deepcopy.Copy actually produces an
// independent backing array for a pid snapshot, not just a copied slice
// header — the property a test checkpointing table state across a mutating
// call (fork/quit/join) depends on.
func TestTableSnapshotNotAliased(t *testing.T) {
	m := machine.New()
	k := kernel.New(m, 10)

	type result struct {
		aliased bool
		snap0   int32
	}
	done := make(chan result, 1)

	k.Bootstrap(func(any) int {
		var live []int32
		k.Table().Each(func(_ int32, p *kernel.PCB) {
			live = append(live, p.PID)
		})

		snap, _ := deepcopy.Copy(live).([]int32)
		live[0] = -999

		r := result{snap0: -1}
		if len(snap) > 0 {
			r.snap0 = snap[0]
			r.aliased = snap[0] == -999
		}
		done <- r
		park()
		return 0
	})

	select {
	case r := <-done:
		if r.aliased {
			t.Fatal("deepcopy snapshot aliased the live slice's backing array")
		}
		if r.snap0 != kernel.InitPID {
			t.Fatalf("snapshot[0] = %d, want %d", r.snap0, kernel.InitPID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
