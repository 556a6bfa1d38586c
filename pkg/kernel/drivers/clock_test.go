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

package drivers

import (
	"testing"
	"time"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
)

// TestClockWakesSleepersInTickOrder is scenario S3's ordering half: of two
// sleepers with different durations, the shorter one always wakes first,
// regardless of fork order.
func TestClockWakesSleepersInTickOrder(t *testing.T) {
	var diskTracks [machine.DiskUnits]int
	devices := machine.NewDevices(time.Millisecond, diskTracks)
	stop := make(chan struct{})
	go devices.Run(stop)
	defer close(stop)

	m := machine.New()
	k := kernel.New(m, 10)
	clock := newClock(k, devices)

	order := make(chan string, 2)

	k.Bootstrap(func(any) int {
		k.Privileged(func() {
			if _, err := k.Fork("clock", clock.run, nil, kernel.MinStackSize, 2); err != nil {
				t.Errorf("Fork clock: %v", err)
			}
		})
		k.Privileged(func() {
			if _, err := k.Fork("sleeper-long", func(any) int {
				_ = clock.Sleep(2)
				order <- "long"
				return 0
			}, nil, kernel.MinStackSize, 3); err != nil {
				t.Errorf("Fork long: %v", err)
			}
		})
		k.Privileged(func() {
			if _, err := k.Fork("sleeper-short", func(any) int {
				_ = clock.Sleep(1)
				order <- "short"
				return 0
			}, nil, kernel.MinStackSize, 3); err != nil {
				t.Errorf("Fork short: %v", err)
			}
		})

		_, _, _ = k.Join()
		_, _, _ = k.Join()
		park()
		return 0
	})

	want := []string{"short", "long"}
	for i, w := range want {
		select {
		case got := <-order:
			if got != w {
				t.Fatalf("wake %d = %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
}
