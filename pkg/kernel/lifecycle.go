package kernel

import (
	"fmt"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// trampolineFor returns the shared entry every context runs through: drop to
// user mode, run the slot's start function, then either halt (the reserved
// "testcase_main" root) or quit with its return value.
func (k *Kernel) trampolineFor(idx int32) func() {
	return func() {
		slot := k.table.Slot(idx)
		k.mach.PsrSet(machine.PsrInterruptsEnabled)
		result := slot.StartFunc(slot.Arg)
		k.mach.PsrSet(k.mach.PsrGet() | machine.PsrKernelMode)
		if slot.Name == "testcase_main" {
			k.mach.Halt(result)
			return
		}
		k.Quit(result)
	}
}

// Privileged runs fn with the kernel-mode PSR bit set, restoring whatever
// was there before. The bootstrap "init" body, the phase-3 runtime
// (Spawn, Terminate), and the phase-4 driver installer use this to call
// kernel-only primitives (Fork, Quit) despite having been dropped to user
// mode by the trampoline like any other process.
func (k *Kernel) Privileged(fn func()) {
	old := k.mach.PsrSet(k.mach.PsrGet() | machine.PsrKernelMode)
	defer k.mach.PsrSet(old)
	fn()
}

func (k *Kernel) requireKernelMode(op string) {
	if !k.mach.PsrGet().KernelMode() {
		k.fatalLocked(fmt.Sprintf("%s: invoked from user mode", op))
	}
}

// fatalLocked logs and halts. The machine never returns control to any
// context once halted, so callers after a fatalLocked call are dead code the
// compiler cannot see as unreachable; keep them trivial.
func (k *Kernel) fatalLocked(msg string) {
	k.log.Errorf("fatal: %s", msg)
	k.mach.Halt(1)
}

// blockCurrent implements block(): mark the running process blocked for
// reason, pull it off its priority queue, and enter the dispatcher. It
// returns once some unblockSlot call (from join, zap, quit, a semaphore
// post, or a device wake-up) has cleared the block and re-enqueued it.
func (k *Kernel) blockCurrent(reason BlockReason) {
	idx := k.running
	slot := k.table.Slot(idx)
	slot.Blocked = true
	slot.BlockReason = reason
	k.queues.at(slot.Priority).remove(k.table, idx)
	k.dispatch()
}

// unblockSlot implements the bookkeeping half of unblock(): clear the block
// flags and re-enqueue at the tail of the target's priority queue. It does
// not call the dispatcher itself — callers that perform several unblocks in
// one critical section (quit waking a parent and every zapper) call
// dispatch exactly once after all of them, instead of once per wake-up.
func (k *Kernel) unblockSlot(idx int32) {
	slot := k.table.Slot(idx)
	slot.Blocked = false
	slot.BlockReason = BlockReasonNone
	k.queues.at(slot.Priority).enqueue(k.table, idx)
}

// unblockAndDispatch is unblockSlot followed immediately by a single
// dispatch, for standalone wake-up sites (semV, a clock tick, a device
// interrupt) that aren't already inside a larger critical section ending in
// their own dispatch call.
func (k *Kernel) unblockAndDispatch(idx int32) {
	k.unblockSlot(idx)
	k.dispatch()
}

// Fork implements fork(): kernel-only, atomic with respect to interrupts.
func (k *Kernel) Fork(name string, fn func(arg any) int, arg any, stackSize, priority int) (int32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.requireKernelMode("fork")

	parentIdx := k.running
	pid, err := k.table.Allocate(AllocRequest{
		Name:      name,
		StartFunc: fn,
		Arg:       arg,
		StackSize: stackSize,
		Priority:  priority,
	})
	if err != nil {
		return 0, err
	}

	childIdx := k.table.Index(pid)
	child := k.table.Slot(childIdx)
	child.Context.Init(k.trampolineFor(childIdx))

	if parentIdx >= 0 {
		parent := k.table.Slot(parentIdx)
		child.Parent = parentIdx
		child.PrevSibling = -1
		child.NextSibling = parent.FirstChild
		if parent.FirstChild != -1 {
			k.table.Slot(parent.FirstChild).PrevSibling = childIdx
		}
		parent.FirstChild = childIdx
	}

	k.queues.at(priority).enqueue(k.table, childIdx)
	k.dispatch()
	return pid, nil
}

// Join implements join(&status): pop a dead child if one already exists,
// otherwise block until quit() delivers one.
func (k *Kernel) Join() (int32, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx := k.running
	slot := k.table.Slot(idx)
	for slot.FirstDeadChild == -1 {
		if slot.FirstChild == -1 {
			return 0, 0, fmt.Errorf("%w: no children to join", ErrDenied)
		}
		k.blockCurrent(BlockReasonJoin)
	}

	childIdx := slot.FirstDeadChild
	child := k.table.Slot(childIdx)
	slot.FirstDeadChild = child.NextDeadChild
	child.NextDeadChild = -1
	pid, status := child.PID, child.ExitStatus
	k.table.Free(childIdx)
	return pid, status, nil
}

// Quit implements quit(status): kernel-only, fatal if the caller still has
// living or dead children. Splices the caller out of its family, wakes a
// joining parent and every zapper, then enters the dispatcher exactly once
// — the source's double dispatcher() call at the end of quit is a bug this
// design does not reproduce.
func (k *Kernel) Quit(status int) {
	k.mu.Lock()
	k.requireKernelMode("quit")

	idx := k.running
	slot := k.table.Slot(idx)
	if slot.FirstChild != -1 || slot.FirstDeadChild != -1 {
		k.fatalLocked("quit: process has outstanding children")
		return
	}

	slot.Terminated = true
	slot.ExitStatus = status

	if parentIdx := slot.Parent; parentIdx != -1 {
		parent := k.table.Slot(parentIdx)
		if slot.PrevSibling != -1 {
			k.table.Slot(slot.PrevSibling).NextSibling = slot.NextSibling
		} else {
			parent.FirstChild = slot.NextSibling
		}
		if slot.NextSibling != -1 {
			k.table.Slot(slot.NextSibling).PrevSibling = slot.PrevSibling
		}
		slot.PrevSibling, slot.NextSibling = -1, -1

		slot.NextDeadChild = parent.FirstDeadChild
		parent.FirstDeadChild = idx

		if parent.Blocked && parent.BlockReason == BlockReasonJoin {
			k.unblockSlot(parentIdx)
		}
	}

	k.queues.at(slot.Priority).remove(k.table, idx)

	zapper := slot.Zappers
	slot.Zappers = -1
	for zapper != -1 {
		z := k.table.Slot(zapper)
		next := z.NextZapper
		z.NextZapper = -1
		z.ZappingProc = -1
		if z.Blocked && z.BlockReason == BlockReasonZap {
			k.unblockSlot(zapper)
		}
		zapper = next
	}

	k.dispatch()
	k.mu.Unlock() // unreachable: the dispatcher never switches back into a quit process
}

// Zap implements zap(pid): block the caller until targetPID terminates.
// Fatal errors cover every target a correct program cannot legally name.
func (k *Kernel) Zap(targetPID int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	callerIdx := k.running
	caller := k.table.Slot(callerIdx)

	if targetPID == caller.PID {
		k.fatalLocked("zap: process cannot zap itself")
		return nil
	}
	if targetPID == InitPID {
		k.fatalLocked("zap: init may not be zapped")
		return nil
	}
	target := k.table.Lookup(targetPID)
	if target == nil {
		k.fatalLocked(fmt.Sprintf("zap: pid %d does not exist", targetPID))
		return nil
	}
	if target.Terminated {
		k.fatalLocked(fmt.Sprintf("zap: pid %d is already terminating", targetPID))
		return nil
	}

	targetIdx := k.table.Index(targetPID)
	caller.ZappingProc = targetIdx
	caller.NextZapper = target.Zappers
	target.Zappers = callerIdx

	k.blockCurrent(BlockReasonZap)
	caller.ZappingProc = -1
	return nil
}
