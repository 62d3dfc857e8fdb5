// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"fmt"

	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
)

// trampolineProgram extends base with a trailing Call/Return pair and
// returns the extended program plus the Call instruction's index. A
// Function value's FuncEntryIP is an offset into the program it was
// compiled as part of (enterFunction jumps to it within the current
// fiber's own Program, §3.7), so a fiber driving a synthetic call against
// that function must run against base itself, not a freestanding
// program — appending rather than replacing keeps every existing offset
// into base valid. base's Instructions is copied, not mutated, so
// concurrent fibers already running against base are unaffected.
func trampolineProgram(base *bytecode.Program, numArgs int) (*bytecode.Program, int) {
	instrs := make([]bytecode.Instruction, len(base.Instructions)+2)
	copy(instrs, base.Instructions)
	callIP := len(base.Instructions)
	instrs[callIP] = bytecode.Call{NumArgs: numArgs}
	instrs[callIP+1] = bytecode.Return{}
	return &bytecode.Program{
		Instructions:           instrs,
		ConstantValues:         base.ConstantValues,
		Origins:                base.Origins,
		ModuleFunctionIP:       base.ModuleFunctionIP,
		ResponsibleModuleHirId: base.ResponsibleModuleHirId,
	}, callIP
}

// SpawnFunction seeds a new root fiber that calls fn(args...), without
// driving the scheduler at all, and returns its id. This is the
// low-level half of RunFunction, split out for hosts that need to
// interleave their own I/O between scheduling rounds (`ember run`'s
// stdio bridge calls vm.Tick() itself between rounds rather than block
// inside a single call). program must be the *bytecode.Program fn was
// compiled as part of, since its FuncEntryIP is only meaningful as an
// offset into that program. fn, args, and responsible are cloned into
// the new fiber's heap, so callers may pass values from any heap (§5
// "Packet transfer").
func (vm *VM) SpawnFunction(program *bytecode.Program, fn heap.Value, args []heap.Value, responsible heap.Value, tracer Tracer) FiberID {
	vm.nextFiberID++
	id := vm.nextFiberID
	prog, callIP := trampolineProgram(program, len(args))
	f := NewFiber(id, prog, callIP, tracer)
	f.StdoutChannel = vm.stdoutChannel

	f.push(heap.Clone(f.Heap, fn))
	for _, a := range args {
		f.push(heap.Clone(f.Heap, a))
	}
	f.push(heap.Clone(f.Heap, responsible))

	vm.fibers[id] = f
	vm.metrics.fibersSpawned.Inc()
	return id
}

// RunFunction invokes fn with args, driving it to completion on its own
// fiber in one uninterrupted call. This is how `ember fuzz` calls each
// enumerated fuzzable function with generated inputs; a host that needs
// to interleave I/O between rounds (`ember run`'s stdio bridge) should
// use SpawnFunction and Tick directly instead.
func (vm *VM) RunFunction(program *bytecode.Program, fn heap.Value, args []heap.Value, responsible heap.Value, tracer Tracer) (*Fiber, error) {
	id := vm.SpawnFunction(program, fn, args, responsible, tracer)
	for {
		progressed := vm.tick()
		root := vm.fibers[id]
		if root.Status == StatusDone || root.Status == StatusPanicked {
			return root, nil
		}
		if !progressed {
			return root, fmt.Errorf("vm: no fiber made progress (deadlock)")
		}
	}
}
