// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"testing"

	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
)

// pushConst stashes v in prog's constant pool and returns a PushConstant
// instruction referencing it.
func pushConst(prog *bytecode.Program, v heap.Value) bytecode.Instruction {
	idx := len(prog.ConstantValues)
	prog.ConstantValues = append(prog.ConstantValues, v)
	return bytecode.PushConstant{ConstantIndex: idx}
}

func emit(prog *bytecode.Program, instrs ...bytecode.Instruction) {
	for _, i := range instrs {
		prog.Emit(i)
	}
}

// TestReturnConstant exercises the simplest possible program: push a
// constant and return it.
func TestReturnConstant(t *testing.T) {
	ch := heap.NewConstant()
	prog := &bytecode.Program{}
	emit(prog, pushConst(prog, ch.NewInt(42)))
	emit(prog, bytecode.Return{})

	root, err := New(nil).Run(prog, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if root.Status != StatusDone {
		t.Fatalf("status = %v, want done", root.Status)
	}
	n, ok := root.ReturnValue.Int()
	if !ok || n.Int64() != 42 {
		t.Fatalf("return value = %v, want 42", root.ReturnValue)
	}
}

// TestCallBuiltinAdd exercises a Call whose callee is an inline builtin
// reference, confirming both the computed result and that every operand
// (including the constant-heap responsible id) is accounted for.
func TestCallBuiltinAdd(t *testing.T) {
	ch := heap.NewConstant()
	prog := &bytecode.Program{}
	emit(prog,
		pushConst(prog, ch.NewBuiltin("Add")),
		pushConst(prog, ch.NewInt(3)),
		pushConst(prog, ch.NewInt(4)),
		pushConst(prog, ch.NewTag("Nothing", nil)),
		bytecode.Call{NumArgs: 2},
		bytecode.Return{},
	)

	root, err := New(nil).Run(prog, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if root.Status != StatusDone {
		t.Fatalf("status = %v, want done (panic reason: %v)", root.Status, root.PanicReason)
	}
	n, ok := root.ReturnValue.Int()
	if !ok || n.Int64() != 7 {
		t.Fatalf("return value = %v, want 7", root.ReturnValue)
	}
}

// TestCallBuiltinWrongArityPanics confirms a builtin called with the
// wrong number of arguments panics rather than crashing, and that the
// arguments passed are still dropped (no leak, no use-after-free).
func TestCallBuiltinWrongArityPanics(t *testing.T) {
	ch := heap.NewConstant()
	prog := &bytecode.Program{}
	emit(prog,
		pushConst(prog, ch.NewBuiltin("Add")),
		pushConst(prog, ch.NewInt(3)),
		pushConst(prog, ch.NewTag("Nothing", nil)),
		bytecode.Call{NumArgs: 1},
		bytecode.Return{},
	)

	root, err := New(nil).Run(prog, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if root.Status != StatusPanicked {
		t.Fatalf("status = %v, want panicked", root.Status)
	}
}

// TestTailCallStackBounded builds a zero-argument function that
// tail-calls itself indefinitely (ip1 is the loop body TailCall jumps
// back to; ip0 is a one-time bootstrap that primes the stack with the
// same single "local" shape every TailCall iteration leaves behind) and
// drives it for many iterations, asserting CallStack never grows and
// the data stack never accumulates beyond the one live responsible id.
func TestTailCallStackBounded(t *testing.T) {
	ch := heap.NewConstant()
	prog := &bytecode.Program{}

	respIdx := len(prog.ConstantValues)
	prog.ConstantValues = append(prog.ConstantValues, ch.NewTag("Nothing", nil))
	callee := ch.NewFunction(nil, 0, 1) // loop body starts at ip1

	prog.Emit(bytecode.PushConstant{ConstantIndex: respIdx}) // ip0: bootstrap responsible
	prog.Emit(pushConst(prog, callee))                       // ip1: loop body start
	prog.Emit(bytecode.PushConstant{ConstantIndex: respIdx}) // ip2: next iteration's responsible
	prog.Emit(bytecode.TailCall{NumLocalsToPop: 1, NumArgs: 0})

	f := NewFiber(1, prog, 0, nil)
	f.step(defaultBuiltins) // ip0: one-time bootstrap, primes the stack with a lone responsible id

	for iter := 0; iter < 200; iter++ {
		f.step(defaultBuiltins) // ip1: push callee
		f.step(defaultBuiltins) // ip2: push next responsible
		f.step(defaultBuiltins) // ip3: TailCall, jumps back to ip1
		if len(f.CallStack) != 0 {
			t.Fatalf("iteration %d: CallStack = %v, want empty — TailCall must never push a return address", iter, f.CallStack)
		}
		if len(f.DataStack) != 1 {
			t.Fatalf("iteration %d: DataStack = %v, want exactly the live responsible id", iter, f.DataStack)
		}
	}
}

// makeIdentityFunction emits a zero-argument function that drops its
// incoming responsible id (the sole thing the calling convention leaves
// on its stack) and returns v — a well-formed body that leaves nothing
// else behind for Return to see.
func makeIdentityFunction(h *heap.Heap, prog *bytecode.Program, v heap.Value) heap.Value {
	entry := len(prog.Instructions)
	emit(prog, bytecode.Drop{}, pushConst(prog, v), bytecode.Return{})
	return h.NewFunction(nil, 0, entry)
}

// TestChannelRendezvousZeroCapacity drives two fibers directly (bypassing
// compiled source) through a zero-capacity channel send/receive pair and
// confirms the value crosses over within one scheduler tick of both being
// blocked, per the synchronous-rendezvous semantics.
func TestChannelRendezvousZeroCapacity(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	senderID := vmInst.spawn(prog, 0, nil, nil)
	receiverID := vmInst.spawn(prog, 0, nil, nil)
	sender := vmInst.fibers[senderID]
	receiver := vmInst.fibers[receiverID]

	chID := vmInst.nextChannelID + 1
	vmInst.nextChannelID = chID
	vmInst.channels[chID] = NewChannel(chID, 0)

	sendVal := sender.Heap.NewInt(99)
	sender.PendingChannel = chID
	sender.PendingPacket = &Packet{Heap: heap.New()}
	cloned := heap.Clone(sender.PendingPacket.Heap, sendVal)
	sender.Heap.Drop(sendVal)
	sender.PendingPacket.Value = cloned
	sender.Status = StatusSending

	receiver.PendingChannel = chID
	receiver.Status = StatusReceiving

	// A single serviceBlocked pass both enqueues the pending operations and
	// matches them, since the rendezvous check runs immediately after in
	// the same call — that's the liveness guarantee: no extra tick needed.
	if !vmInst.serviceBlocked() {
		t.Fatalf("serviceBlocked made no progress on the matched rendezvous")
	}

	if sender.Status != StatusRunning {
		t.Fatalf("sender status = %v, want running", sender.Status)
	}
	if receiver.Status != StatusRunning {
		t.Fatalf("receiver status = %v, want running", receiver.Status)
	}
	if len(receiver.DataStack) != 1 {
		t.Fatalf("receiver data stack = %v, want one delivered value", receiver.DataStack)
	}
	n, ok := receiver.DataStack[0].Int()
	if !ok || n.Int64() != 99 {
		t.Fatalf("delivered value = %v, want 99", receiver.DataStack[0])
	}
	if len(sender.DataStack) != 1 {
		t.Fatalf("sender data stack = %v, want the Nothing ack", sender.DataStack)
	}
}

// TestChannelFIFOBuffered confirms a capacity-2 channel buffers sends in
// order and delivers them FIFO to later receivers.
func TestChannelFIFOBuffered(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	senderID := vmInst.spawn(prog, 0, nil, nil)
	sender := vmInst.fibers[senderID]

	chID := ChannelID(1)
	vmInst.nextChannelID = chID
	ch := NewChannel(chID, 2)
	vmInst.channels[chID] = ch

	for _, n := range []int64{1, 2} {
		v := sender.Heap.NewInt(n)
		ph := heap.New()
		cloned := heap.Clone(ph, v)
		sender.Heap.Drop(v)
		ch.PendingSends = append(ch.PendingSends, pendingSend{fiber: senderID, packet: Packet{Heap: ph, Value: cloned}})
	}

	if !vmInst.progressChannel(ch) {
		t.Fatalf("progressChannel made no progress buffering sends")
	}
	if len(ch.Packets) != 2 {
		t.Fatalf("buffered packets = %d, want 2", len(ch.Packets))
	}

	recv1 := vmInst.spawn(prog, 0, nil, nil)
	recv2 := vmInst.spawn(prog, 0, nil, nil)
	ch.PendingReceives = append(ch.PendingReceives, recv1, recv2)
	if !vmInst.progressChannel(ch) {
		t.Fatalf("progressChannel made no progress delivering buffered packets")
	}

	r1, _ := vmInst.fibers[recv1].DataStack[0].Int()
	r2, _ := vmInst.fibers[recv2].DataStack[0].Int()
	if r1.Int64() != 1 || r2.Int64() != 2 {
		t.Fatalf("delivery order = %d, %d, want FIFO 1, 2", r1.Int64(), r2.Int64())
	}
}

// TestCancelRemovesPendingChannelOp confirms cancel() strips a canceled
// fiber's pending send/receive entry from its channel, so a subsequent
// progressChannel pass never tries to resume it.
func TestCancelRemovesPendingChannelOp(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	recvID := vmInst.spawn(prog, 0, nil, nil)
	recv := vmInst.fibers[recvID]

	chID := ChannelID(1)
	ch := NewChannel(chID, 0)
	vmInst.channels[chID] = ch
	ch.PendingReceives = append(ch.PendingReceives, recvID)
	recv.PendingChannel = chID
	recv.Status = StatusReceiving

	vmInst.cancel(recvID)

	if recv.Status != StatusCanceled {
		t.Fatalf("status = %v, want canceled", recv.Status)
	}
	if len(ch.PendingReceives) != 0 {
		t.Fatalf("PendingReceives = %v, want empty after cancel", ch.PendingReceives)
	}
}

// TestParallelScopeChildPanicPropagates drives a parallel scope whose
// sole child panics, and confirms the parent re-panics with
// PanickedChild recorded rather than resuming.
func TestParallelScopeChildPanicPropagates(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	parentID := vmInst.spawn(prog, 0, nil, nil)
	parent := vmInst.fibers[parentID]

	bodyIP := len(prog.Instructions)
	emit(prog, bytecode.Panic{})

	body := parent.Heap.NewFunction(nil, 0, bodyIP)
	parent.PendingScopeBody = body
	parent.pendingResponsible = parent.Heap.NewTag("Nothing", nil)
	parent.Status = StatusInParallelScope

	if !vmInst.serviceBlocked() {
		t.Fatalf("serviceBlocked made no progress spawning the scope child")
	}

	scope := vmInst.scopes[parentID]
	if scope == nil || len(scope.children) != 1 {
		t.Fatalf("scope state = %+v, want exactly one child", scope)
	}
	childID := scope.children[0]
	child := vmInst.fibers[childID]

	// Drive the child's one instruction (Panic pops responsible+reason;
	// since the data stack holds only the cloned responsible id, popping
	// the reason would index out of range, so push dummy values first to
	// exercise the real panic path).
	child.push(child.Heap.NewText("boom"))
	child.push(child.Heap.NewTag("Nothing", nil))
	child.step(defaultBuiltins)
	if child.Status != StatusPanicked {
		t.Fatalf("child status = %v, want panicked", child.Status)
	}

	if !vmInst.serviceBlocked() {
		t.Fatalf("serviceBlocked made no progress resolving the panicked scope")
	}

	if parent.Status != StatusPanicked {
		t.Fatalf("parent status = %v, want panicked", parent.Status)
	}
	if parent.PanickedChild == nil || *parent.PanickedChild != childID {
		t.Fatalf("parent.PanickedChild = %v, want %v", parent.PanickedChild, childID)
	}
	if _, stillTracked := vmInst.fibers[childID]; stillTracked {
		t.Fatalf("child fiber %v still tracked after scope resolution", childID)
	}
}

// TestTryScopeChildPanicBecomesErrorResult confirms a try-scope converts
// a panicking child into a pushed `Error` tag and resumes the parent
// rather than propagating the panic.
func TestTryScopeChildPanicBecomesErrorResult(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	parentID := vmInst.spawn(prog, 0, nil, nil)
	parent := vmInst.fibers[parentID]

	bodyIP := len(prog.Instructions)
	emit(prog, bytecode.Panic{})

	body := parent.Heap.NewFunction(nil, 0, bodyIP)
	parent.PendingScopeBody = body
	parent.pendingResponsible = parent.Heap.NewTag("Nothing", nil)
	parent.Status = StatusInTry

	vmInst.serviceBlocked()
	scope := vmInst.scopes[parentID]
	child := vmInst.fibers[scope.children[0]]
	child.push(child.Heap.NewText("boom"))
	child.push(child.Heap.NewTag("Nothing", nil))
	child.step(defaultBuiltins)

	vmInst.serviceBlocked()

	if parent.Status != StatusRunning {
		t.Fatalf("parent status = %v, want running", parent.Status)
	}
	if len(parent.DataStack) != 1 {
		t.Fatalf("parent data stack = %v, want one Error result", parent.DataStack)
	}
	obj, ok := parent.DataStack[0].Object()
	if !ok || obj.Kind != heap.KindTag || obj.TagSymbol != "Error" {
		t.Fatalf("result = %v, want an Error tag", parent.DataStack[0])
	}
}

// TestTryScopeChildDoneBecomesOkResult confirms a try-scope whose child
// finishes normally wraps its return value in an `Ok` tag.
func TestTryScopeChildDoneBecomesOkResult(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	parentID := vmInst.spawn(prog, 0, nil, nil)
	parent := vmInst.fibers[parentID]

	ch := heap.NewConstant()
	body := makeIdentityFunction(parent.Heap, prog, ch.NewInt(5))
	parent.PendingScopeBody = body
	parent.pendingResponsible = parent.Heap.NewTag("Nothing", nil)
	parent.Status = StatusInTry

	vmInst.serviceBlocked()
	scope := vmInst.scopes[parentID]
	child := vmInst.fibers[scope.children[0]]
	for child.Status == StatusRunning {
		child.step(defaultBuiltins)
	}
	if child.Status != StatusDone {
		t.Fatalf("child status = %v, want done", child.Status)
	}

	vmInst.serviceBlocked()

	if parent.Status != StatusRunning {
		t.Fatalf("parent status = %v, want running", parent.Status)
	}
	obj, ok := parent.DataStack[0].Object()
	if !ok || obj.Kind != heap.KindTag || obj.TagSymbol != "Ok" {
		t.Fatalf("result = %v, want an Ok tag", parent.DataStack[0])
	}
	n, ok := obj.TagValue.Int()
	if !ok || n.Int64() != 5 {
		t.Fatalf("Ok payload = %v, want 5", *obj.TagValue)
	}
}

// TestScopeBodyWrongArityPanicsWithoutCrashing confirms passing a
// non-zero-argument body to a parallel/try scope panics the parent
// cleanly instead of registering bogus scope bookkeeping.
func TestScopeBodyWrongArityPanicsWithoutCrashing(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)

	parentID := vmInst.spawn(prog, 0, nil, nil)
	parent := vmInst.fibers[parentID]

	body := parent.Heap.NewFunction(nil, 1, 0) // wrong arity: scopes require zero args
	parent.PendingScopeBody = body
	parent.pendingResponsible = parent.Heap.NewTag("Nothing", nil)
	parent.Status = StatusInParallelScope

	vmInst.serviceBlocked()

	if parent.Status != StatusPanicked {
		t.Fatalf("status = %v, want panicked", parent.Status)
	}
	if _, tracked := vmInst.scopes[parentID]; tracked {
		t.Fatalf("scope bookkeeping registered despite failed spawn")
	}
	// A second serviceBlocked pass must not crash (no bogus child id 0
	// sitting in vm.scopes to dereference).
	vmInst.serviceBlocked()
}

// TestCreateChannelPushesSendAndReceivePorts confirms CreateChannel's
// result shape: a two-element list of [SendPort, ReceivePort].
func TestCreateChannelPushesSendAndReceivePorts(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)
	id := vmInst.spawn(prog, 0, nil, nil)
	f := vmInst.fibers[id]

	f.PendingChannelCapacity = 3
	f.Status = StatusCreatingChannel

	if !vmInst.serviceBlocked() {
		t.Fatalf("serviceBlocked made no progress creating the channel")
	}
	if f.Status != StatusRunning {
		t.Fatalf("status = %v, want running", f.Status)
	}
	if len(f.DataStack) != 1 {
		t.Fatalf("data stack = %v, want one pushed list", f.DataStack)
	}
	obj, ok := f.DataStack[0].Object()
	if !ok || obj.Kind != heap.KindList || len(obj.ListItems) != 2 {
		t.Fatalf("result = %v, want a 2-element list", f.DataStack[0])
	}
	send, ok := obj.ListItems[0].PortValue()
	if !ok || send.Direction != heap.SendPort {
		t.Fatalf("first element = %v, want a SendPort", obj.ListItems[0])
	}
	recv, ok := obj.ListItems[1].PortValue()
	if !ok || recv.Direction != heap.ReceivePort {
		t.Fatalf("second element = %v, want a ReceivePort", obj.ListItems[1])
	}
	if len(vmInst.channels) != 1 {
		t.Fatalf("channels created = %d, want 1", len(vmInst.channels))
	}
}

// TestDeadlockDetected confirms tick() reports no progress once a fiber
// is blocked with nothing able to resolve it (here: a receive on a
// channel nobody ever sends to) — the condition Run uses to report a
// deadlock instead of looping forever.
func TestDeadlockDetected(t *testing.T) {
	prog := &bytecode.Program{}
	vmInst := New(nil)
	rootID := vmInst.spawn(prog, 0, nil, nil)
	root := vmInst.fibers[rootID]

	chID := ChannelID(1)
	vmInst.nextChannelID = chID
	vmInst.channels[chID] = NewChannel(chID, 0)
	root.PendingChannel = chID
	root.Status = StatusReceiving

	vmInst.tick() // first tick enqueues the pending receive
	if vmInst.tick() {
		t.Fatalf("tick: want no progress once the receive is enqueued with no sender")
	}
	if root.Status != StatusReceiving {
		t.Fatalf("status = %v, want still receiving", root.Status)
	}
}
