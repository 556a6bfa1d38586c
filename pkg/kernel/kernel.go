package kernel

import (
	"fmt"
	"os"
	"sync"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// Logger is the minimal surface Kernel needs for reporting fatal errors.
// internal/klog supplies a logrus-backed implementation; kernel stays
// decoupled from any particular logging library.
type Logger interface {
	Errorf(format string, args ...any)
}

type stderrLogger struct{}

func (stderrLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// DefaultMaxProc is the process-table capacity used when a caller does not
// override it via config.
const DefaultMaxProc = 50

// TimeSlice is the number of simulator time units (milliseconds of
// machine.CurrentTime) a process may run consecutively at its own priority
// before the dispatcher rotates it to the tail of its queue.
const TimeSlice = 80

// Kernel ties the process table, the priority run queues, and the
// dispatcher to one Machine. Every exported lifecycle method (Fork, Join,
// Quit, Zap, Block, Unblock) masks interrupts for its duration by holding
// mu, releasing it only for the instant the dispatcher actually hands the
// CPU to another context — mirroring the PSR save/restore discipline of the
// machine this kernel is layered on.
type Kernel struct {
	mu     sync.Mutex
	table  *Table
	queues *runQueues
	mach   *machine.Machine

	running    int32 // -1 before first dispatch
	lastSwitch int64

	log Logger
}

// New builds a kernel over machine m with a table of the given capacity.
// The caller must still call Bootstrap to seat "init" and start the
// dispatcher before any other process can run.
func New(m *machine.Machine, maxProc int) *Kernel {
	return &Kernel{
		table:   NewTable(maxProc),
		queues:  newRunQueues(),
		mach:    m,
		running: -1,
		log:     stderrLogger{},
	}
}

// SetLogger installs l as the kernel's fatal-error sink, replacing the
// stderr fallback New installs by default.
func (k *Kernel) SetLogger(l Logger) {
	if l != nil {
		k.log = l
	}
}

// Machine returns the kernel's backing machine, for driver and syscall
// layers that need raw device access.
func (k *Kernel) Machine() *machine.Machine { return k.mach }

// Table exposes the process table for read-mostly consumers (dumpProcesses,
// the syscall layer's pid validation). Mutating it outside of Kernel's own
// methods voids every invariant this package maintains.
func (k *Kernel) Table() *Table { return k.table }

// Bootstrap installs the reserved "init" process at pid 1, priority 6, and
// performs the first dispatch into it. initBody is run with interrupts
// enabled in user mode via the shared trampoline, exactly like any other
// process; it is expected to start the phase 2-4 service processes and then
// spork "testcase_main".
func (k *Kernel) Bootstrap(initBody func(arg any) int) {
	k.mu.Lock()
	pid, err := k.table.Allocate(AllocRequest{
		Name:      "init",
		StartFunc: initBody,
		StackSize: MinStackSize,
		Priority:  InitPriority,
		ForceInit: true,
	})
	if err != nil {
		panic(fmt.Sprintf("kernel: failed to seat init: %v", err))
	}
	idx := k.table.Index(pid)
	slot := k.table.Slot(idx)
	slot.Context.Init(k.trampolineFor(idx))
	k.queues.at(InitPriority).enqueue(k.table, idx)
	k.dispatch()
	k.mu.Unlock()
}

// currentPID returns the pid of the currently running process. It must be
// called with mu held (i.e. from inside a kernel entry point) or via the
// CurrentPID convenience wrapper.
func (k *Kernel) currentPID() int32 {
	if k.running < 0 {
		return 0
	}
	return k.table.Slot(k.running).PID
}

// CurrentPID returns the pid of the process currently running, 0 if none
// has been dispatched yet.
func (k *Kernel) CurrentPID() int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.currentPID()
}
