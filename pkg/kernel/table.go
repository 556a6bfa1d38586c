package kernel

import "fmt"

// Table is the fixed-slot process table, addressed by pid modulo its
// capacity. Every method assumes the caller already holds the kernel's
// interrupt-disabling lock; Table itself does no locking of its own, the
// same way the run queues and the dispatcher trust the caller.
type Table struct {
	slots      []PCB
	pidCounter int32
}

// NewTable allocates a table with room for capacity processes.
func NewTable(capacity int) *Table {
	t := &Table{slots: make([]PCB, capacity)}
	for i := range t.slots {
		t.slots[i].reset()
	}
	return t
}

// Capacity returns MAXPROC for this table.
func (t *Table) Capacity() int { return len(t.slots) }

// Index returns pid mod capacity, the slot this pid must live in if it
// exists.
func (t *Table) Index(pid int32) int32 {
	return pid % int32(len(t.slots))
}

// Slot returns the slot at index i. Callers are expected to check
// occupancy/pid themselves; this never allocates or frees.
func (t *Table) Slot(i int32) *PCB {
	return &t.slots[i]
}

// Lookup finds the in-use slot holding pid, or nil if none does.
func (t *Table) Lookup(pid int32) *PCB {
	i := t.Index(pid)
	s := &t.slots[i]
	if s.free() || s.PID != pid {
		return nil
	}
	return s
}

// AllocRequest bundles the fields a new slot needs; it is the parameter
// object fork()/init bootstrap both fill in before calling Allocate.
type AllocRequest struct {
	Name      string
	StartFunc func(arg any) int
	Arg       any
	StackSize int
	Priority  int
	// ForceInit bypasses the 1..5 priority restriction, used exactly once
	// to seat the bootstrap "init" process at priority 6, pid 1.
	ForceInit bool
}

const minStackSize = 8 * 1024

// MinStackSize is the platform stack-size floor; Allocate rejects anything
// smaller.
const MinStackSize = minStackSize

// Allocate reserves the next free slot for req and returns its pid. It does
// not touch run queues or family links — the caller (fork, or kernel
// bootstrap) is responsible for those once the slot exists, since only the
// caller knows which list a child belongs on.
func (t *Table) Allocate(req AllocRequest) (int32, error) {
	if req.StackSize < minStackSize {
		return 0, fmt.Errorf("%w: stack size %d below minimum %d", ErrDenied, req.StackSize, minStackSize)
	}
	if req.Name == "" || len(req.Name) >= MaxName-1 {
		return 0, fmt.Errorf("%w: invalid process name %q", ErrInvalidArg, req.Name)
	}
	if !req.ForceInit && (req.Priority < 1 || req.Priority > 5) {
		return 0, fmt.Errorf("%w: priority %d out of range 1..5", ErrInvalidArg, req.Priority)
	}
	if req.StartFunc == nil {
		return 0, fmt.Errorf("%w: nil start function", ErrInvalidArg)
	}

	capacity := int32(len(t.slots))
	if req.ForceInit {
		t.pidCounter = InitPID
	} else {
		t.pidCounter++
	}
	start := t.pidCounter
	for i := int32(0); i < capacity; i++ {
		candidate := start + i
		slot := &t.slots[candidate%capacity]
		if slot.free() {
			t.pidCounter = candidate
			slot.reset()
			slot.PID = candidate
			slot.Name = req.Name
			slot.StartFunc = req.StartFunc
			slot.Arg = req.Arg
			slot.StackSize = req.StackSize
			slot.Priority = req.Priority
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w: process table full", ErrDenied)
}

// Free clears slot i back to the zeroed, free state.
func (t *Table) Free(i int32) {
	t.slots[i].reset()
}

// Each calls fn for every in-use slot's index, in table order.
func (t *Table) Each(fn func(i int32, p *PCB)) {
	for i := range t.slots {
		if !t.slots[i].free() {
			fn(int32(i), &t.slots[i])
		}
	}
}
