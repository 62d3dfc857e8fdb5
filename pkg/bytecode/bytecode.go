// Copyright 2026 The Ember Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bytecode is the flat, linear instruction encoding compiled from
// MIR (§3.7), the normative instruction set enumerated in §6.3.
package bytecode

import "github.com/kraklabs/ember/pkg/hir"

// Instruction is any byte-code instruction.
type Instruction interface{ isInstruction() }

// CreateTag pops a value, creates a tag with Symbol and that value,
// pushes the tag.
type CreateTag struct{ Symbol string }

// CreateList pops N items, builds a list, pushes it.
type CreateList struct{ N int }

// CreateStruct pops 2*N items (key/value pairs), builds a struct, pushes
// it.
type CreateStruct struct{ N int }

// CreateFunction reads (and dups) CapturedOffsets from the current data
// stack, builds a function with NumArgs parameters and entry point
// BodyIP, and pushes it.
type CreateFunction struct {
	CapturedOffsets []int
	NumArgs         int
	BodyIP          int
}

// PushConstant pushes ConstantIndex from the constant heap (no dup — the
// constant heap is refcount-exempt, §3.8).
type PushConstant struct{ ConstantIndex int }

// PushFromStack dups and pushes the value Offset slots from the top.
type PushFromStack struct{ Offset int }

// PopMultipleBelowTop removes N values below the top, dropping each; the
// top stays.
type PopMultipleBelowTop struct{ N int }

// Dup increments the top value's refcount by Amount.
type Dup struct{ Amount int }

// Drop decrements the top value's refcount by one, freeing it at zero.
type Drop struct{}

// Call pops responsible, NumArgs arguments, and a callee; dispatches by
// callee kind (§4.6).
type Call struct{ NumArgs int }

// TailCall behaves like Call but first drops NumLocalsToPop locals below
// the top of the current frame and does not push a return address.
type TailCall struct {
	NumLocalsToPop int
	NumArgs        int
}

// Return pops the call stack into the instruction pointer; the return
// value is already on top of the data stack.
type Return struct{}

// IfElse pops a condition and a responsible id, then jumps to ThenTarget
// or ElseTarget, synthetically entering it like a Call with the
// corresponding *Captured offsets dup'd onto the new frame.
type IfElse struct {
	ThenTarget    int
	ElseTarget    int
	ThenCaptured  []int
	ElseCaptured  []int
}

// Panic pops responsible and reason, entering panicked status.
type Panic struct{}

// TraceCallStarts pops NumArgs arguments, a callee, and a responsible id
// and forwards them to the tracer.
type TraceCallStarts struct{ NumArgs int }

// TraceCallEnds pops a return value (if HasReturnValue) and forwards it.
type TraceCallEnds struct{ HasReturnValue bool }

// TraceTailCall is TraceCallStarts's tail-call counterpart.
type TraceTailCall struct{ NumArgs int }

// TraceExpressionEvaluated pops a value and forwards it with its origin.
type TraceExpressionEvaluated struct{}

// TraceFoundFuzzableFunction pops a function value and forwards it.
type TraceFoundFuzzableFunction struct{}

func (CreateTag) isInstruction()                  {}
func (CreateList) isInstruction()                 {}
func (CreateStruct) isInstruction()                {}
func (CreateFunction) isInstruction()              {}
func (PushConstant) isInstruction()                {}
func (PushFromStack) isInstruction()               {}
func (PopMultipleBelowTop) isInstruction()         {}
func (Dup) isInstruction()                         {}
func (Drop) isInstruction()                        {}
func (Call) isInstruction()                        {}
func (TailCall) isInstruction()                    {}
func (Return) isInstruction()                      {}
func (IfElse) isInstruction()                      {}
func (Panic) isInstruction()                       {}
func (TraceCallStarts) isInstruction()             {}
func (TraceCallEnds) isInstruction()               {}
func (TraceTailCall) isInstruction()               {}
func (TraceExpressionEvaluated) isInstruction()    {}
func (TraceFoundFuzzableFunction) isInstruction()  {}

// Program is a compiled module (§3.7): a flat instruction vector plus a
// constant heap, the MIR-id->constant mapping, per-instruction origins
// for debugging/fuzzing, the module's entry function, and its top-level
// responsibility identity.
type Program struct {
	Instructions []Instruction

	// ConstantValues holds every compile-time-known value, addressed by
	// the index PushConstant references. Represented as an opaque slice
	// of interface{} here rather than *heap.Value to avoid a hard
	// dependency from bytecode on heap's concrete Value layout; the
	// compiler (pkg/compiler) populates this with heap.Value instances
	// and the VM (pkg/vm) type-asserts them back.
	ConstantValues []interface{}

	// Origins maps each instruction index to the HIR ids that produced
	// it, for stack traces, the debugger, and the fuzzer (§3.7).
	Origins map[int][]hir.Id

	// ModuleFunctionIP is the instruction index of the module's
	// zero-argument entry function (§3.7).
	ModuleFunctionIP int

	// ResponsibleModuleHirId is this module's top-level responsibility
	// identity (§3.7).
	ResponsibleModuleHirId hir.Id
}

// AddOrigin records that instruction index ip was generated by hirID.
func (p *Program) AddOrigin(ip int, hirID hir.Id) {
	if p.Origins == nil {
		p.Origins = map[int][]hir.Id{}
	}
	p.Origins[ip] = append(p.Origins[ip], hirID)
}

// Emit appends instr and returns its index.
func (p *Program) Emit(instr Instruction) int {
	p.Instructions = append(p.Instructions, instr)
	return len(p.Instructions) - 1
}
