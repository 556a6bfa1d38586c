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

// Package config loads the kernel's boot-time configuration from a TOML
// file, with defaults matching the constants spec.md fixes in code.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

func isNotExist(err error) bool { return os.IsNotExist(err) }

// Config is the decoded boot configuration.
type Config struct {
	// MaxProc is the process table capacity (MAXPROC).
	MaxProc int `toml:"max_proc"`
	// TimeSlice is decoded and validated but not passed to the kernel: the
	// dispatcher's round-robin quantum is the constant kernel.TimeSlice
	// (80 machine.CurrentTime units) whatever this field holds.
	TimeSlice int `toml:"time_slice"`
	// TickMillis is the wall-clock duration of one simulated clock tick.
	TickMillis int `toml:"tick_millis"`
	// DiskTracks gives each disk unit's track count.
	DiskTracks [2]int `toml:"disk_tracks"`
	// Testcase selects the testprograms.Registry entry that boot forks as
	// the root test program "testcase_main".
	Testcase string `toml:"testcase"`
	// DataDir holds the disk units' backing files.
	DataDir string `toml:"data_dir"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		MaxProc:    50,
		TimeSlice:  80,
		TickMillis: 100,
		DiskTracks: [2]int{64, 64},
		Testcase:   "testcase_main",
		DataDir:    ".",
	}
}

// TickInterval returns TickMillis as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// Validate rejects a configuration no kernel could legally boot with.
func (c Config) Validate() error {
	if c.MaxProc < 1 {
		return fmt.Errorf("config: max_proc must be positive, got %d", c.MaxProc)
	}
	if c.TimeSlice < 1 {
		return fmt.Errorf("config: time_slice must be positive, got %d", c.TimeSlice)
	}
	if c.TickMillis < 1 {
		return fmt.Errorf("config: tick_millis must be positive, got %d", c.TickMillis)
	}
	for i, t := range c.DiskTracks {
		if t < 1 {
			return fmt.Errorf("config: disk_tracks[%d] must be positive, got %d", i, t)
		}
	}
	if c.Testcase == "" {
		return fmt.Errorf("config: testcase must not be empty")
	}
	return nil
}

// Load decodes path into a Config seeded with Default, so a file that omits
// a field keeps its default rather than zeroing it. A missing path is not
// an error: Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if isNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: %s: unrecognized keys %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
