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

// Package klog is the kernel.Logger implementation used outside of tests:
// a thin wrapper over logrus that tags every record with the subsystem it
// came from.
package klog

import "github.com/sirupsen/logrus"

// Logger implements kernel.Logger over a *logrus.Logger.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger that writes through base, tagged with subsystem
// (e.g. "kernel", "drivers").
func New(base *logrus.Logger, subsystem string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: base.WithField("subsystem", subsystem)}
}

// Errorf implements kernel.Logger.
func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
