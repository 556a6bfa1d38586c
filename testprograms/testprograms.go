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

// Package testprograms holds the sample testcase bodies cmd/uslossctl can
// boot, one per named entry in Registry. Each demonstrates one of the
// end-to-end scenarios this kernel is built to satisfy.
package testprograms

import (
	"fmt"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel/usermode"
)

// Registry maps a testcase name to a constructor that closes over the
// runtime it will call back into. cmd/uslossctl forks the chosen entry's
// returned function as "testcase_main".
var Registry = map[string]func(rt *usermode.Runtime) func(arg any) int{
	"bootstrap_single_child":  bootstrapSingleChild,
	"join_blocks_for_sleeper": joinBlocksForSleeper,
	"semaphore_mutex":         semaphoreMutex,
}

// bootstrapSingleChild is scenario S1: spawn one child that returns
// immediately, then wait for it.
func bootstrapSingleChild(rt *usermode.Runtime) func(arg any) int {
	return func(any) int {
		if _, err := rt.Spawn("child", func(any) int { return 0 }, nil, kernel.MinStackSize, 3); err != nil {
			return 1
		}
		if _, status, err := rt.Wait(); err != nil || status != 0 {
			return 1
		}
		return 0
	}
}

// joinBlocksForSleeper is scenario S3: spawn a child that sleeps one
// second then quits with a distinguishing status, and confirm wait blocks
// until it does and reports that status.
func joinBlocksForSleeper(rt *usermode.Runtime) func(arg any) int {
	return func(any) int {
		child := func(any) int {
			if err := rt.Sleep(1); err != nil {
				return -1
			}
			return 42
		}
		if _, err := rt.Spawn("sleeper", child, nil, kernel.MinStackSize, 4); err != nil {
			return 1
		}
		if _, status, err := rt.Wait(); err != nil || status != 42 {
			return 1
		}
		return 0
	}
}

// semaphoreMutex is scenario S5: four workers each increment a shared
// counter 1000 times under a mutual-exclusion semaphore; the parent
// verifies the final count.
func semaphoreMutex(rt *usermode.Runtime) func(arg any) int {
	return func(any) int {
		mutex, err := rt.SemCreate(1)
		if err != nil {
			return 1
		}
		counter := new(int)

		worker := func(any) int {
			for i := 0; i < 1000; i++ {
				if err := rt.SemP(mutex); err != nil {
					return 1
				}
				*counter++
				if err := rt.SemV(mutex); err != nil {
					return 1
				}
			}
			return 0
		}

		const workers = 4
		for i := 0; i < workers; i++ {
			if _, err := rt.Spawn(fmt.Sprintf("worker%d", i), worker, nil, kernel.MinStackSize, 3); err != nil {
				return 1
			}
		}
		for i := 0; i < workers; i++ {
			if _, status, err := rt.Wait(); err != nil || status != 0 {
				return 1
			}
		}
		if *counter != workers*1000 {
			return 1
		}
		return 0
	}
}
