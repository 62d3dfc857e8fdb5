// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vm is the fiber-based stack machine (§3.9-§4.8): cooperatively
// scheduled fibers, each with their own exclusively-owned heap, driven by
// a single flat byte-code program and communicating over channels.
package vm

import (
	"fmt"

	"github.com/kraklabs/ember/pkg/builtins"
	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/hir"
)

// FiberID identifies a fiber within a VM (§3.10).
type FiberID uint64

// Status is a fiber's lifecycle state (§3.10). The literal enum there
// stops at `done`/`panicked`; `Canceled` is an addition this
// implementation needs to represent §5's "the VM marks the fiber
// canceled and refuses to run it further" without overloading Panicked
// (a canceled fiber did not itself panic, and must not re-propagate a
// panic of its own).
type Status int

const (
	StatusRunning Status = iota
	StatusCreatingChannel
	StatusSending
	StatusReceiving
	StatusInParallelScope
	StatusInTry
	StatusDone
	StatusPanicked
	StatusCanceled
	statusCallingHandle
	statusUsingModule
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCreatingChannel:
		return "creating-channel"
	case StatusSending:
		return "sending"
	case StatusReceiving:
		return "receiving"
	case StatusInParallelScope:
		return "in-parallel-scope"
	case StatusInTry:
		return "in-try"
	case StatusDone:
		return "done"
	case StatusPanicked:
		return "panicked"
	case StatusCanceled:
		return "canceled"
	case statusCallingHandle:
		return "calling-handle"
	case statusUsingModule:
		return "using-module"
	default:
		return "unknown"
	}
}

// Fiber is one cooperatively-scheduled execution context (§3.10): its own
// data/call stacks, its own exclusively-owned heap, and a status that is
// `running` exactly when the scheduler may step it.
type Fiber struct {
	ID              FiberID
	Status          Status
	NextInstruction int
	DataStack       []heap.Value
	CallStack       []int
	Heap            *heap.Heap
	Tracer          Tracer
	Program         *bytecode.Program

	Parent *FiberID

	// StdoutChannel is the channel the print builtin sends to (§4.9),
	// inherited from the VM's configured stdout channel at spawn time.
	StdoutChannel ChannelID

	// Populated when Status leaves running, describing what the scheduler
	// must service before this fiber can resume (§4.7 step 5).
	PendingChannelCapacity int
	PendingChannel         ChannelID
	PendingPacket          *Packet
	PendingScopeBody       heap.Value
	PendingIsTry           bool
	enqueuedChannelOp      bool

	PendingHandleID    string
	pendingHandleArgs  []heap.Value
	pendingResponsible heap.Value

	// Populated when Status is statusUsingModule (§6.2 use-module builtin).
	PendingUseCurrentModule  string
	PendingUseRelativePath   string

	ReturnValue    heap.Value
	HasReturnValue bool

	PanicReason      heap.Value
	PanicResponsible heap.Value
	PanickedChild    *FiberID
}

// NewFiber creates a fiber with a fresh exclusively-owned heap, ready to
// run program starting at entryIP.
func NewFiber(id FiberID, program *bytecode.Program, entryIP int, tracer Tracer) *Fiber {
	if tracer == nil {
		tracer = Dummy{}
	}
	return &Fiber{
		ID:              id,
		Status:          StatusRunning,
		NextInstruction: entryIP,
		Heap:            heap.New(),
		Tracer:          tracer,
		Program:         program,
	}
}

func (f *Fiber) push(v heap.Value) { f.DataStack = append(f.DataStack, v) }

func (f *Fiber) pop() heap.Value {
	n := len(f.DataStack) - 1
	v := f.DataStack[n]
	f.DataStack = f.DataStack[:n]
	return v
}

func (f *Fiber) top() heap.Value { return f.DataStack[len(f.DataStack)-1] }

// peek returns the value offset slots below the top (offset 0 is the top).
func (f *Fiber) peek(offset int) heap.Value {
	return f.DataStack[len(f.DataStack)-1-offset]
}

// teardown drops every value still reachable from this fiber — its data
// stack and the tracer's retained objects. sweepCanceled calls it for
// canceled fibers (§5 "its heap is torn down on the next scheduler pass");
// done and panicked fibers are not passed to it.
func (f *Fiber) teardown() {
	for _, v := range f.DataStack {
		f.Heap.Drop(v)
	}
	f.DataStack = nil
	f.Tracer.Close(f.Heap)
}

// panic transitions the fiber to panicked with the given reason/responsible,
// dropping everything else still on its data stack (§4.6 Panic).
func (f *Fiber) panic(reason, responsible heap.Value) {
	for _, v := range f.DataStack {
		f.Heap.Drop(v)
	}
	f.DataStack = nil
	f.Status = StatusPanicked
	f.PanicReason = reason
	f.PanicResponsible = responsible
}

func textPanic(h *heap.Heap, msg string, responsible heap.Value) (heap.Value, heap.Value) {
	return h.NewText(msg), responsible
}

// step executes exactly one instruction. It is the sole place instruction
// semantics live (§4.6); the scheduler calls it in a bounded loop per the
// active ExecutionController's quantum.
func (f *Fiber) step(table builtins.Table) {
	ip := f.NextInstruction
	instr := f.Program.Instructions[ip]
	f.NextInstruction++

	switch i := instr.(type) {
	case bytecode.CreateTag:
		v := f.pop()
		f.push(f.Heap.NewTag(i.Symbol, &v))

	case bytecode.CreateList:
		items := make([]heap.Value, i.N)
		for k := i.N - 1; k >= 0; k-- {
			items[k] = f.pop()
		}
		f.push(f.Heap.NewList(items))

	case bytecode.CreateStruct:
		entries := make([]heap.StructEntry, i.N)
		for k := i.N - 1; k >= 0; k-- {
			val := f.pop()
			key := f.pop()
			entries[k] = heap.StructEntry{Key: key, Value: val}
		}
		f.push(f.Heap.NewStruct(entries))

	case bytecode.CreateFunction:
		captured := make([]heap.Value, len(i.CapturedOffsets))
		for k, off := range i.CapturedOffsets {
			v := f.peek(off)
			f.Heap.Dup(v, 1)
			captured[k] = v
		}
		f.push(f.Heap.NewFunction(captured, i.NumArgs, i.BodyIP))

	case bytecode.PushConstant:
		f.push(f.Program.ConstantValues[i.ConstantIndex].(heap.Value))

	case bytecode.PushFromStack:
		v := f.peek(i.Offset)
		f.Heap.Dup(v, 1)
		f.push(v)

	case bytecode.PopMultipleBelowTop:
		top := f.pop()
		for k := 0; k < i.N; k++ {
			f.Heap.Drop(f.pop())
		}
		f.push(top)

	case bytecode.Dup:
		f.Heap.Dup(f.top(), int64(i.Amount))

	case bytecode.Drop:
		f.Heap.Drop(f.pop())

	case bytecode.Call:
		f.dispatchCall(i.NumArgs, table, false, 0)

	case bytecode.TailCall:
		f.dispatchCall(i.NumArgs, table, true, i.NumLocalsToPop)

	case bytecode.Return:
		ret := f.pop()
		if len(f.CallStack) == 0 {
			f.Status = StatusDone
			f.ReturnValue = ret
			f.HasReturnValue = true
			return
		}
		retAddr := f.CallStack[len(f.CallStack)-1]
		f.CallStack = f.CallStack[:len(f.CallStack)-1]
		f.push(ret)
		f.NextInstruction = retAddr

	case bytecode.IfElse:
		responsible := f.pop()
		cond := f.pop()
		obj, ok := cond.Object()
		isTrue := ok && obj.Kind == heap.KindTag && obj.TagSymbol == "True"
		target, captured := i.ElseTarget, i.ElseCaptured
		if isTrue {
			target, captured = i.ThenTarget, i.ThenCaptured
		}
		f.Heap.Drop(cond)
		f.CallStack = append(f.CallStack, f.NextInstruction)
		for _, off := range captured {
			v := f.peek(off)
			f.Heap.Dup(v, 1)
			f.push(v)
		}
		f.push(responsible)
		f.NextInstruction = target

	case bytecode.Panic:
		responsible := f.pop()
		reason := f.pop()
		f.panic(reason, responsible)

	case bytecode.TraceCallStarts:
		responsible := f.pop()
		args := make([]heap.Value, i.NumArgs)
		for k := i.NumArgs - 1; k >= 0; k-- {
			args[k] = f.pop()
		}
		callee := f.pop()
		f.Tracer.CallStarted(f.Heap, callee, args, responsible)
		f.Heap.Drop(callee)
		for _, a := range args {
			f.Heap.Drop(a)
		}
		f.Heap.Drop(responsible)

	case bytecode.TraceTailCall:
		responsible := f.pop()
		args := make([]heap.Value, i.NumArgs)
		for k := i.NumArgs - 1; k >= 0; k-- {
			args[k] = f.pop()
		}
		callee := f.pop()
		f.Tracer.TailCalled(f.Heap, callee, args, responsible)
		f.Heap.Drop(callee)
		for _, a := range args {
			f.Heap.Drop(a)
		}
		f.Heap.Drop(responsible)

	case bytecode.TraceCallEnds:
		var result heap.Value
		if i.HasReturnValue {
			result = f.pop()
		}
		f.Tracer.CallEnded(f.Heap, result, i.HasReturnValue)
		if i.HasReturnValue {
			f.Heap.Drop(result)
		}

	case bytecode.TraceExpressionEvaluated:
		v := f.pop()
		origin := f.originOf(ip)
		f.Tracer.ExpressionEvaluated(f.Heap, origin, v)
		f.Heap.Drop(v)

	case bytecode.TraceFoundFuzzableFunction:
		v := f.pop()
		origin := f.originOf(ip)
		f.Tracer.FoundFuzzableFunction(f.Heap, origin, v)
		f.Heap.Drop(v)

	default:
		panic(fmt.Sprintf("vm: unhandled instruction %T", instr))
	}
}

func (f *Fiber) originOf(ip int) hir.Id {
	if ids, ok := f.Program.Origins[ip]; ok && len(ids) > 0 {
		return ids[len(ids)-1]
	}
	return hir.Id{}
}

// dispatchCall implements Call/TailCall (§4.6): pop responsible, NumArgs
// arguments, and the callee, then act according to the callee's kind.
func (f *Fiber) dispatchCall(numArgs int, table builtins.Table, tail bool, numLocalsToPop int) {
	responsible := f.pop()
	args := make([]heap.Value, numArgs)
	for k := numArgs - 1; k >= 0; k-- {
		args[k] = f.pop()
	}
	callee := f.pop()

	if name, ok := callee.Builtin(); ok {
		f.dispatchBuiltin(name, args, responsible, tail, numLocalsToPop)
		return
	}

	obj, isObj := callee.Object()
	if isObj && obj.Kind == heap.KindFunction {
		f.enterFunction(callee, obj, args, responsible, tail, numLocalsToPop)
		return
	}

	if tail {
		for k := 0; k < numLocalsToPop; k++ {
			f.Heap.Drop(f.pop())
		}
	}

	if isObj && obj.Kind == heap.KindTag && obj.TagValue == nil {
		// A payload-less tag used as a value acts as its own one-argument
		// constructor (e.g. `Some` applied to a value yields `Some value`).
		if numArgs != 1 {
			f.Heap.Drop(callee)
			for _, a := range args {
				f.Heap.Drop(a)
			}
			reason, resp := textPanic(f.Heap, "a tag constructor takes exactly one argument", responsible)
			f.panic(reason, resp)
			return
		}
		payload := args[0]
		f.Heap.Drop(responsible)
		f.Heap.Drop(callee)
		f.push(f.Heap.NewTag(obj.TagSymbol, &payload))
		return
	}

	if isObj && obj.Kind == heap.KindHandle {
		if obj.HandleArgCount != numArgs {
			f.Heap.Drop(callee)
			for _, a := range args {
				f.Heap.Drop(a)
			}
			reason, resp := textPanic(f.Heap, fmt.Sprintf("expected %d arguments, got %d", obj.HandleArgCount, numArgs), responsible)
			f.panic(reason, resp)
			return
		}
		// Handles are serviced by the VM's host-call path; see scheduler.go.
		f.PendingHandleID = obj.HandleID
		f.pendingHandleArgs = args
		f.pendingResponsible = responsible
		f.Heap.Drop(callee)
		f.Status = statusCallingHandle
		return
	}

	f.Heap.Drop(callee)
	for _, a := range args {
		f.Heap.Drop(a)
	}
	reason, resp := textPanic(f.Heap, "cannot call a "+callee.Kind(), responsible)
	f.panic(reason, resp)
}
