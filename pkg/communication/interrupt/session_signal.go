// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package interrupt

import "sync/atomic"

// SessionSignal is a scoped-down cousin of InterruptSignal for a single agent
// run: one boolean, owned by exactly one in-flight AgentLoop.run/run_stream
// call, cooperatively polled rather than routed through the Router/
// PersistentQueue fast/slow path. It carries no priority and no payload —
// SignalGracefulShutdown is the closest analog in the full vocabulary, but a
// loop iteration only needs to know "stop at the next checkpoint", not why.
//
// Callers construct one per call, hand the Trigger side to whatever can
// cancel the run (an HTTP disconnect, an explicit stop API), and pass the
// read side into the loop.
type SessionSignal struct {
	flag atomic.Bool
}

// NewSessionSignal returns an unset signal.
func NewSessionSignal() *SessionSignal {
	return &SessionSignal{}
}

// Trigger marks the signal set. Safe to call from any goroutine, any number
// of times; only the first call has an effect.
func (s *SessionSignal) Trigger() {
	s.flag.Store(true)
}

// IsSet reports whether Trigger has been called.
func (s *SessionSignal) IsSet() bool {
	return s.flag.Load()
}

// Reset clears the signal. AgentLoop never calls this itself — a signal is
// scoped to one run call and discarded afterward — but tests and pooled
// reuse need it.
func (s *SessionSignal) Reset() {
	s.flag.Store(false)
}
