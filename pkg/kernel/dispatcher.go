package kernel

import "github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"

// dispatch is the single entry point that owns context switches. Callers
// must hold mu; dispatch releases it for the instant the CPU is actually
// handed to another context and reacquires it before returning, so the
// lock's hold pattern around every call site stays uniform.
//
// Selection rule: scan priorities 1..6 for the first non-empty queue. If
// the currently running process sits at the head of that same queue and
// has held the CPU for at least TimeSlice units, rotate it to the tail and
// run the new head instead; otherwise run the head as-is (which is the
// current process, unchanged, when nothing preempts it).
func (k *Kernel) dispatch() {
	if k.running < 0 {
		k.dispatchFirst()
		return
	}

	level := k.queues.highestNonEmpty()
	if level == 0 {
		panic("kernel: dispatch called with no runnable process")
	}
	q := k.queues.at(level)

	next := q.head
	if next == k.running {
		elapsed := k.mach.CurrentTime() - k.table.Slot(k.running).LastDispatch
		if elapsed >= TimeSlice {
			q.remove(k.table, k.running)
			q.enqueue(k.table, k.running)
			next = q.head
		}
	}

	if next == k.running {
		return
	}
	k.switchTo(next)
}

// dispatchFirst performs the bootstrap switch: no context to save, the
// first process simply starts running.
func (k *Kernel) dispatchFirst() {
	level := k.queues.highestNonEmpty()
	if level == 0 {
		panic("kernel: no process to dispatch at bootstrap")
	}
	next := k.queues.at(level).head
	k.running = next
	slot := k.table.Slot(next)
	slot.LastDispatch = k.mach.CurrentTime()
	k.lastSwitch = slot.LastDispatch

	k.mu.Unlock()
	machine.Switch(nil, &slot.Context)
	k.mu.Lock()
}

// switchTo hands the CPU from the current process to next, both already
// table indices into in-use slots.
func (k *Kernel) switchTo(next int32) {
	old := k.running
	oldSlot := k.table.Slot(old)
	newSlot := k.table.Slot(next)

	k.running = next
	now := k.mach.CurrentTime()
	newSlot.LastDispatch = now
	k.lastSwitch = now

	k.mu.Unlock()
	machine.Switch(&oldSlot.Context, &newSlot.Context)
	k.mu.Lock()
}
