package kernel

import (
	"fmt"
	"io"
)

// stateString renders a slot's state exactly as dumpProcesses requires:
// Running, Runnable, Terminated(status), one of the two named blocked
// reasons, or the generic Blocked(3) fallback.
func (k *Kernel) stateString(idx int32, slot *PCB) string {
	switch {
	case idx == k.running:
		return "Running"
	case slot.Terminated:
		return fmt.Sprintf("Terminated(%d)", slot.ExitStatus)
	case slot.Blocked && slot.BlockReason == BlockReasonJoin:
		return "Blocked(waiting for child to quit)"
	case slot.Blocked && slot.BlockReason == BlockReasonZap:
		return "Blocked(waiting for zap target to quit)"
	case slot.Blocked:
		return "Blocked(3)"
	default:
		return "Runnable"
	}
}

// DumpProcesses writes the fixed-width process table listing: one header
// line, then one line per in-use slot with columns pid(4) parent(5)
// name(17) priority(8) state.
func (k *Kernel) DumpProcesses(w io.Writer) {
	k.mu.Lock()
	defer k.mu.Unlock()

	fmt.Fprintf(w, "%-4s %-5s %-17s %-8s %s\n", "PID", "PPID", "NAME", "PRIORITY", "STATE")
	k.table.Each(func(idx int32, slot *PCB) {
		name := slot.Name
		if len(name) > 16 {
			name = name[:16]
		}
		parentPID := int32(0)
		if slot.Parent != -1 {
			parentPID = k.table.Slot(slot.Parent).PID
		}
		fmt.Fprintf(w, "%-4d %-5d %-17s %-8d %s\n",
			slot.PID, parentPID, name, slot.Priority, k.stateString(idx, slot))
	})
}
