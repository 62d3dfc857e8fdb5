// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/hir"
)

// Tracer receives the §4.8 trace events a fiber's TraceXxx instructions
// (and the scheduler's own child-fiber/channel bookkeeping) emit. Any
// heap.Value a Tracer implementation retains past the call that handed it
// over must be Dup'd first — the fiber that produced it will Drop its own
// reference as soon as the instruction stream moves on, and the heap is
// torn down entirely when the fiber finishes (§4.8 "tracer-retained
// objects must be dup'd before fiber teardown").
type Tracer interface {
	CallStarted(h *heap.Heap, callee heap.Value, args []heap.Value, responsible heap.Value)
	CallEnded(h *heap.Heap, result heap.Value, hasResult bool)
	TailCalled(h *heap.Heap, callee heap.Value, args []heap.Value, responsible heap.Value)
	ExpressionEvaluated(h *heap.Heap, origin hir.Id, value heap.Value)
	FoundFuzzableFunction(h *heap.Heap, origin hir.Id, fn heap.Value)
	ChildFiberSpawned(parent, child FiberID)
	ChildFiberFinished(parent, child FiberID, status Status)
	ChannelCreated(id ChannelID, capacity int)
	ChannelOperation(id ChannelID, op string, fiber FiberID)
	// Close releases every value this tracer retained, called once the
	// owning fiber is torn down.
	Close(h *heap.Heap)
}

// Dummy is the zero-overhead Tracer (§4.8): every hook is a no-op, which
// is what an `ember run` invocation without `--tracing` uses.
type Dummy struct{}

func (Dummy) CallStarted(*heap.Heap, heap.Value, []heap.Value, heap.Value)        {}
func (Dummy) CallEnded(*heap.Heap, heap.Value, bool)                              {}
func (Dummy) TailCalled(*heap.Heap, heap.Value, []heap.Value, heap.Value)         {}
func (Dummy) ExpressionEvaluated(*heap.Heap, hir.Id, heap.Value)                  {}
func (Dummy) FoundFuzzableFunction(*heap.Heap, hir.Id, heap.Value)                {}
func (Dummy) ChildFiberSpawned(FiberID, FiberID)                                  {}
func (Dummy) ChildFiberFinished(FiberID, FiberID, Status)                         {}
func (Dummy) ChannelCreated(ChannelID, int)                                       {}
func (Dummy) ChannelOperation(ChannelID, string, FiberID)                         {}
func (Dummy) Close(*heap.Heap)                                                    {}

// CallFrame is one entry of a Full tracer's retained call stack, used to
// render a panic's trace (§4.8, §6.1).
type CallFrame struct {
	Callee      heap.Value
	Arguments   []heap.Value
	Responsible heap.Value
}

// FuzzableRecord pairs a fuzzable function's defining HIR id with its
// runtime value, retained for the fuzzer's case generator (§4.9).
type FuzzableRecord struct {
	Origin   hir.Id
	Function heap.Value
}

// EvaluatedRecord pairs a HIR expression with the value it evaluated to,
// retained for the debug adapter's variables view (§6.5).
type EvaluatedRecord struct {
	Origin hir.Id
	Value  heap.Value
}

// Full is the stack-retaining Tracer (§4.8): it keeps a live call stack
// for panic rendering, plus running logs of fuzzable functions found and
// expressions evaluated, each of which Dup's the values it retains.
type Full struct {
	Stack      []CallFrame
	Fuzzables  []FuzzableRecord
	Evaluated  []EvaluatedRecord
}

func NewFull() *Full { return &Full{} }

func (t *Full) CallStarted(h *heap.Heap, callee heap.Value, args []heap.Value, responsible heap.Value) {
	h.Dup(callee, 1)
	dupped := make([]heap.Value, len(args))
	for i, a := range args {
		h.Dup(a, 1)
		dupped[i] = a
	}
	h.Dup(responsible, 1)
	t.Stack = append(t.Stack, CallFrame{Callee: callee, Arguments: dupped, Responsible: responsible})
}

func (t *Full) CallEnded(h *heap.Heap, result heap.Value, hasResult bool) {
	if len(t.Stack) == 0 {
		return
	}
	frame := t.Stack[len(t.Stack)-1]
	t.Stack = t.Stack[:len(t.Stack)-1]
	h.Drop(frame.Callee)
	for _, a := range frame.Arguments {
		h.Drop(a)
	}
	h.Drop(frame.Responsible)
}

// TailCalled replaces the top stack frame in place, since a tail call
// reuses its caller's frame rather than pushing a new one (§4.5, §4.8).
func (t *Full) TailCalled(h *heap.Heap, callee heap.Value, args []heap.Value, responsible heap.Value) {
	if len(t.Stack) > 0 {
		old := t.Stack[len(t.Stack)-1]
		h.Drop(old.Callee)
		for _, a := range old.Arguments {
			h.Drop(a)
		}
		h.Drop(old.Responsible)
		t.Stack = t.Stack[:len(t.Stack)-1]
	}
	t.CallStarted(h, callee, args, responsible)
}

func (t *Full) ExpressionEvaluated(h *heap.Heap, origin hir.Id, value heap.Value) {
	h.Dup(value, 1)
	t.Evaluated = append(t.Evaluated, EvaluatedRecord{Origin: origin, Value: value})
}

func (t *Full) FoundFuzzableFunction(h *heap.Heap, origin hir.Id, fn heap.Value) {
	h.Dup(fn, 1)
	t.Fuzzables = append(t.Fuzzables, FuzzableRecord{Origin: origin, Function: fn})
}

func (t *Full) ChildFiberSpawned(FiberID, FiberID)          {}
func (t *Full) ChildFiberFinished(FiberID, FiberID, Status) {}
func (t *Full) ChannelCreated(ChannelID, int)               {}
func (t *Full) ChannelOperation(ChannelID, string, FiberID) {}

// Close drops every value this tracer still retains, matching the fiber
// heap's own teardown so final refcounts balance (§8 universal invariant).
func (t *Full) Close(h *heap.Heap) {
	for _, frame := range t.Stack {
		h.Drop(frame.Callee)
		for _, a := range frame.Arguments {
			h.Drop(a)
		}
		h.Drop(frame.Responsible)
	}
	t.Stack = nil
	for _, r := range t.Fuzzables {
		h.Drop(r.Function)
	}
	t.Fuzzables = nil
	for _, r := range t.Evaluated {
		h.Drop(r.Value)
	}
	t.Evaluated = nil
}
