// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

// ExecutionController bounds how much work the scheduler gives a single
// fiber before yielding to the next ready fiber (§4.7: "scheduling
// fairness is enforced by a bounded-quantum execution controller").
// Swapping the controller changes scheduling policy without touching the
// fiber interpreter itself — a fuzz run might use a tiny quantum to widen
// interleavings, while an `ember run` invocation uses the default.
type ExecutionController interface {
	// Quantum returns the maximum number of instructions to execute for
	// fiber id before it must be re-queued.
	Quantum(id FiberID) int
}

// DefaultQuantum is the instruction budget per scheduling turn (§4.7).
const DefaultQuantum = 500

// FixedQuantum is an ExecutionController that gives every fiber the same
// instruction budget every turn.
type FixedQuantum struct{ N int }

// Quantum implements ExecutionController.
func (f FixedQuantum) Quantum(FiberID) int {
	if f.N <= 0 {
		return DefaultQuantum
	}
	return f.N
}

// SingleStep is an ExecutionController that runs exactly one instruction
// per turn, for single-stepping a fiber (§6.5). pkg/dap does not use it.
type SingleStep struct{}

// Quantum implements ExecutionController.
func (SingleStep) Quantum(FiberID) int { return 1 }
