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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AmeliaMatheson/452-USLOSS-OS/internal/config"
	"github.com/AmeliaMatheson/452-USLOSS-OS/internal/hostterm"
	"github.com/AmeliaMatheson/452-USLOSS-OS/internal/klog"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/kernel/usermode"
	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/machine"
	"github.com/AmeliaMatheson/452-USLOSS-OS/testprograms"
)

// bootCommand implements subcommands.Command for "boot".
type bootCommand struct {
	configPath string
	testcase   string
	interactive bool
	termUnit   int
	dump       bool
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot the kernel against a testcase and run to completion" }
func (*bootCommand) Usage() string {
	return `boot [flags] - run a named testcase until the machine halts.
`
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a uslossctl.toml config file (optional)")
	f.StringVar(&c.testcase, "testcase", "", "override the configured testcase name")
	f.BoolVar(&c.interactive, "interactive", false, "back terminal unit 0 with a real pty")
	f.IntVar(&c.termUnit, "term-unit", 0, "terminal unit the -interactive pty attaches to")
	f.BoolVar(&c.dump, "dump", true, "print the process table after halt")
}

func (c *bootCommand) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	log, _ := args[0].(*logrus.Logger)
	if log == nil {
		log = logrus.StandardLogger()
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.Errorf("loading config: %v", err)
		return subcommands.ExitFailure
	}
	if c.testcase != "" {
		cfg.Testcase = c.testcase
	}
	body, ok := testprograms.Registry[cfg.Testcase]
	if !ok {
		log.Errorf("unknown testcase %q", cfg.Testcase)
		return subcommands.ExitUsageError
	}

	devices := machine.NewDevices(cfg.TickInterval(), cfg.DiskTracks)
	m := machine.New()
	k := kernel.New(m, cfg.MaxProc)
	k.SetLogger(klog.New(log, "kernel"))

	var bridge *hostterm.Bridge
	if c.interactive {
		bridge, err = hostterm.Attach(devices, c.termUnit)
		if err != nil {
			log.Errorf("attaching pty to terminal unit %d: %v", c.termUnit, err)
			return subcommands.ExitFailure
		}
		defer bridge.Close()
		fmt.Fprintf(os.Stderr, "terminal unit %d attached at %s\n", c.termUnit, bridge.SlaveName())
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	g.Go(func() error {
		devices.Run(stop)
		return nil
	})
	g.Go(func() error {
		select {
		case <-m.Done():
		case <-gctx.Done():
		}
		close(stop)
		return nil
	})

	var rt *usermode.Runtime
	k.Bootstrap(func(any) int {
		var bootErr error
		rt, bootErr = usermode.New(k, devices, cfg.DataDir)
		if bootErr != nil {
			log.Errorf("installing drivers: %v", bootErr)
			return 1
		}
		testFn := body(rt)
		k.Privileged(func() {
			_, bootErr = k.Fork("testcase_main", testFn, nil, kernel.MinStackSize, 3)
		})
		if bootErr != nil {
			log.Errorf("forking testcase_main: %v", bootErr)
			return 1
		}
		// init's remaining job is to reap forever; it only returns if it
		// somehow runs out of children before halt, which a well-formed
		// testcase never triggers.
		_, _, _ = k.Join()
		return 0
	})

	<-m.Done()
	if rt != nil {
		_ = rt.Close()
	}
	if err := g.Wait(); err != nil {
		log.Errorf("shutdown: %v", err)
	}

	if c.dump {
		k.DumpProcesses(os.Stdout)
	}
	return subcommands.ExitSuccess
}
