package kernel

import "sync"

// Block implements the generic block(): the caller removes itself from its
// priority queue and enters the dispatcher. It returns once some matching
// Unblock call (from join, zap, or a WaitGate) has cleared the block and
// re-enqueued it. Exported for phase-3/4 primitives (semaphores, sleep,
// terminal, disk) that need the same suspension point join and zap use.
func (k *Kernel) Block() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.blockCurrent(BlockReasonGeneric)
}

// Unblock implements unblock(pid): it is invalid to target the caller
// itself or a pid that is not currently blocked. Otherwise the target is
// cleared and re-enqueued, and the dispatcher runs once.
func (k *Kernel) Unblock(pid int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx := k.table.Index(pid)
	slot := k.table.Slot(idx)
	if slot.PID != pid || idx == k.running || !slot.Blocked {
		return ErrInvalidArg
	}
	k.unblockAndDispatch(idx)
	return nil
}

// MarkBlocked performs the bookkeeping half of block() — mark the caller
// blocked and pull it off its priority queue — without yet entering the
// dispatcher. A caller that still holds some domain lock of its own (a
// semaphore's mutex, a device's per-unit lock) calls this before releasing
// that lock, so a concurrent Unblock can never find "no one waiting" just
// because the park hadn't happened yet; then releases its own lock and
// calls Yield to actually hand off the CPU.
func (k *Kernel) MarkBlocked() {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx := k.running
	slot := k.table.Slot(idx)
	slot.Blocked = true
	slot.BlockReason = BlockReasonGeneric
	k.queues.at(slot.Priority).remove(k.table, idx)
}

// Yield enters the dispatcher. Pairs with MarkBlocked to complete a
// suspension once the caller has released whatever lock it was protecting
// its wait condition with.
func (k *Kernel) Yield() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.dispatch()
}

// BlockUntil marks the caller blocked, runs wait on its own goroutine, and
// resumes the caller once wait returns. This is how a device-driver
// service process waits on simulated hardware (machine.Devices' WaitClock
// /WaitDisk/WaitTerminalRecv/WaitTerminalXmit all block a bare goroutine
// with no notion of the dispatcher) without starving every other process
// of the CPU for as long as the wait takes: wait runs independently, and
// the moment it returns, the caller is unblocked and redispatched like
// any other wake-up. If wait needs to report a result, have it assign to
// a variable the caller reads only after BlockUntil returns — the
// Unblock call inside happens strictly after wait returns, so that read
// is race-free.
func (k *Kernel) BlockUntil(wait func()) {
	pid := k.CurrentPID()
	k.MarkBlocked()
	go func() {
		wait()
		k.Unblock(pid)
	}()
	k.Yield()
}

// WaitGate is a plain FIFO of blocked pids, independent of priority, used
// by semaphores and the device drivers to get the strict arrival-order
// wakeup their contracts require — something the six priority-partitioned
// run queues cannot provide on their own. A suspension is still realized
// the same way join and zap realize theirs: Block followed by a dispatcher
// entry, woken later by Unblock.
type WaitGate struct {
	mu      sync.Mutex
	waiting []int32
}

// NewWaitGate returns an empty gate. Callers register under their own
// domain lock (the semaphore's mutex, a device's per-unit lock) so that a
// concurrent Wake cannot run between the waiter's own empty/full check and
// its registration — the classic lost-wakeup window.
func (k *Kernel) NewWaitGate() *WaitGate { return &WaitGate{} }

// Register marks the caller blocked (via MarkBlocked) and records its pid
// in the gate's FIFO. The caller still owes a follow-up call to Yield,
// made after releasing whatever domain lock guards the wait condition.
func (g *WaitGate) Register(k *Kernel) {
	k.MarkBlocked()
	pid := k.CurrentPID()
	g.mu.Lock()
	g.waiting = append(g.waiting, pid)
	g.mu.Unlock()
}

// Wake resumes the longest-waiting registered pid, if any, and reports
// whether it found one.
func (g *WaitGate) Wake(k *Kernel) bool {
	g.mu.Lock()
	if len(g.waiting) == 0 {
		g.mu.Unlock()
		return false
	}
	pid := g.waiting[0]
	g.waiting = g.waiting[1:]
	g.mu.Unlock()
	return k.Unblock(pid) == nil
}
