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

// Package kernel implements the phase-1 scheduling kernel: the process
// table, the six priority run queues, the dispatcher, and the lifecycle
// primitives (fork/join/quit/zap/block/unblock) everything above it is built
// from.
package kernel

import "github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"

// MaxName bounds a process name, including the trailing NUL a C-derived
// caller would expect room for.
const MaxName = 50

// InitPID is the reserved pid of the bootstrap process.
const InitPID int32 = 1

// InitPriority is the only priority the bootstrap process may hold; no
// user-created process may request it.
const InitPriority = 6

// BlockReason distinguishes why a blocked process is blocked. It is the Go
// expression of the mutually-exclusive joinBlock/zapBlock flags: a blocked
// process has exactly one reason, and BlockReasonGeneric covers every other
// blocking primitive (semaphore wait, sleep, terminal/disk I/O) that does
// not need its own flag.
type BlockReason int

const (
	BlockReasonNone BlockReason = iota
	BlockReasonJoin
	BlockReasonZap
	BlockReasonGeneric
)

// PCB is one process-table slot. A slot with Priority == 0 is free; that is
// the sole predicate the allocator and the scanner use to distinguish free
// from in-use slots.
type PCB struct {
	PID      int32
	Name     string
	Priority int

	StartFunc func(arg any) int
	Arg       any
	StackSize int
	Context   machine.Context

	// Terminated is set by quit, before the slot is reaped by the parent's
	// join. A terminated slot stays in-use (priority is untouched) until
	// join frees it; it never appears on a priority queue.
	Terminated bool
	ExitStatus int

	Blocked     bool
	BlockReason BlockReason

	// QueueNext links this slot to the next entry in its priority run
	// queue; -1 means "no next". A slot is on at most one queue at a time.
	QueueNext int32

	LastDispatch int64

	Parent      int32 // -1 if none (only init has no parent)
	FirstChild  int32 // -1 if none
	NextSibling int32 // -1 if none
	PrevSibling int32 // -1 if none

	FirstDeadChild int32 // -1 if none
	NextDeadChild  int32 // -1 if none

	ZappingProc int32 // slot this process is currently zapping, -1 if none
	Zappers     int32 // head of the singly-linked list of zappers of this process, -1 if none
	NextZapper  int32 // this process's link in whatever zap list it is on, -1 if none
}

func (p *PCB) free() bool { return p.Priority == 0 }

func (p *PCB) reset() {
	*p = PCB{
		QueueNext:      -1,
		Parent:         -1,
		FirstChild:     -1,
		NextSibling:    -1,
		PrevSibling:    -1,
		FirstDeadChild: -1,
		NextDeadChild:  -1,
		ZappingProc:    -1,
		Zappers:        -1,
		NextZapper:     -1,
	}
}
