// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"fmt"

	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
)

// scopeState tracks one parallel-scope or try-scope's children, resolved
// as they finish (§4.7 "Parallel scope" / "Try"). The language surface
// only ever hands the VM a single closure to run as the scope's body, so
// Children holds exactly one entry in this implementation; the slice
// shape (rather than a single field) is kept so the cancel-on-panic logic
// below reads correctly if a future builtin lets a running scope spawn
// further siblings onto the same nursery (see DESIGN.md).
type scopeState struct {
	isTry    bool
	children []FiberID
	done     map[FiberID]bool
}

// VM owns every fiber and channel created from one compiled program and
// drives them cooperatively (§4.7): at most one fiber's instructions
// execute at any instant, chosen from those in StatusRunning, each
// bounded by the active ExecutionController's quantum.
type VM struct {
	fibers        map[FiberID]*Fiber
	channels      map[ChannelID]*Channel
	scopes        map[FiberID]*scopeState
	nextFiberID   FiberID
	nextChannelID ChannelID
	controller    ExecutionController
	host          HostFunc
	resolver      ModuleResolver
	metrics       *Metrics
	stdoutChannel ChannelID
}

// New creates an empty VM. A nil controller defaults to FixedQuantum with
// DefaultQuantum.
func New(controller ExecutionController) *VM {
	if controller == nil {
		controller = FixedQuantum{N: DefaultQuantum}
	}
	return &VM{
		fibers:     map[FiberID]*Fiber{},
		channels:   map[ChannelID]*Channel{},
		scopes:     map[FiberID]*scopeState{},
		controller: controller,
		metrics:    NewMetrics(),
	}
}

// SetHost installs the function used to service Handle calls (§3.8, §5
// "Handle call (external service)"); without one, a fiber that calls a
// Handle panics.
func (vm *VM) SetHost(h HostFunc) { vm.host = h }

func (vm *VM) spawn(program *bytecode.Program, entryIP int, tracer Tracer, parent *FiberID) FiberID {
	vm.nextFiberID++
	id := vm.nextFiberID
	f := NewFiber(id, program, entryIP, tracer)
	f.Parent = parent
	f.StdoutChannel = vm.stdoutChannel
	vm.fibers[id] = f
	vm.metrics.fibersSpawned.Inc()
	return id
}

// Run drives program to completion from entryIP, returning the root
// fiber in its terminal state (Done or Panicked).
func (vm *VM) Run(program *bytecode.Program, entryIP int, tracer Tracer) (*Fiber, error) {
	rootID := vm.spawn(program, entryIP, tracer, nil)
	for {
		progressed := vm.tick()
		root := vm.fibers[rootID]
		if root.Status == StatusDone || root.Status == StatusPanicked {
			return root, nil
		}
		if !progressed {
			return root, fmt.Errorf("vm: no fiber made progress (deadlock)")
		}
	}
}

// tick runs one scheduling round: every StatusRunning fiber gets up to
// its quantum's worth of instructions, then every fiber that left
// running is serviced (§4.7 step 5). Returns whether any fiber's state
// changed, so Run can detect a genuine deadlock.
func (vm *VM) tick() bool {
	progressed := false
	for id, f := range vm.fibers {
		if f.Status != StatusRunning {
			continue
		}
		quantum := vm.controller.Quantum(id)
		for n := 0; n < quantum && f.Status == StatusRunning; n++ {
			f.step(defaultBuiltins)
			vm.metrics.instructionsExecuted.Inc()
		}
		progressed = true
	}
	if vm.serviceBlocked() {
		progressed = true
	}
	return progressed
}

func (vm *VM) serviceBlocked() bool {
	progressed := false
	var handleFibers []FiberID

	for id, f := range vm.fibers {
		switch f.Status {
		case StatusCreatingChannel:
			vm.nextChannelID++
			chID := vm.nextChannelID
			vm.channels[chID] = NewChannel(chID, f.PendingChannelCapacity)
			f.Tracer.ChannelCreated(chID, f.PendingChannelCapacity)
			send := f.Heap.NewSendPort(uint64(chID))
			recv := f.Heap.NewReceivePort(uint64(chID))
			f.push(f.Heap.NewList([]heap.Value{send, recv}))
			f.Status = StatusRunning
			vm.metrics.channelsCreated.Inc()
			progressed = true

		case StatusSending:
			if f.enqueuedChannelOp {
				continue
			}
			ch := vm.channels[f.PendingChannel]
			if ch == nil {
				f.panic(textPanic(f.Heap, "send on an unknown channel", heap.Value{}))
				progressed = true
				continue
			}
			ch.PendingSends = append(ch.PendingSends, pendingSend{fiber: id, packet: *f.PendingPacket})
			f.PendingPacket = nil
			f.enqueuedChannelOp = true
			f.Tracer.ChannelOperation(ch.ID, "send", id)
			progressed = true

		case StatusReceiving:
			if f.enqueuedChannelOp {
				continue
			}
			ch := vm.channels[f.PendingChannel]
			if ch == nil {
				f.panic(textPanic(f.Heap, "receive on an unknown channel", heap.Value{}))
				progressed = true
				continue
			}
			ch.PendingReceives = append(ch.PendingReceives, id)
			f.enqueuedChannelOp = true
			f.Tracer.ChannelOperation(ch.ID, "receive", id)
			progressed = true

		case StatusInParallelScope, StatusInTry:
			if _, already := vm.scopes[id]; !already {
				isTry := f.Status == StatusInTry
				child, ok := vm.spawnScopeChild(f, id)
				if ok {
					vm.scopes[id] = &scopeState{
						isTry:    isTry,
						children: []FiberID{child},
						done:     map[FiberID]bool{},
					}
				}
				progressed = true
			}

		case statusCallingHandle:
			handleFibers = append(handleFibers, id)

		case statusUsingModule:
			vm.serviceUseModule(f)
			progressed = true
		}
	}

	for _, ch := range vm.channels {
		if vm.progressChannel(ch) {
			progressed = true
		}
	}

	if vm.resolveScopes() {
		progressed = true
	}

	if len(handleFibers) > 0 {
		vm.serviceHandles(handleFibers)
		progressed = true
	}

	vm.sweepCanceled()

	return progressed
}

// spawnScopeChild starts the nursery's one child fiber running parent's
// PendingScopeBody (a zero-argument Function), sharing parent's program
// and tracer (§4.7 "Parallel scope" / "Try"). Reports false (with parent
// already transitioned to panicked) if the body isn't a zero-argument
// Function, so the caller must not register scope bookkeeping for it.
func (vm *VM) spawnScopeChild(parent *Fiber, parentID FiberID) (FiberID, bool) {
	obj, ok := parent.PendingScopeBody.Object()
	if !ok || obj.Kind != heap.KindFunction || obj.FuncArgCount != 0 {
		body := parent.PendingScopeBody
		resp := parent.pendingResponsible
		parent.Heap.Drop(body)
		parent.panic(textPanic(parent.Heap, "parallel/try requires a zero-argument Function", resp))
		return 0, false
	}
	childID := vm.spawn(parent.Program, obj.FuncEntryIP, parent.Tracer, &parentID)
	child := vm.fibers[childID]
	for _, c := range obj.FuncCaptured {
		cloned := heap.Clone(child.Heap, c)
		child.push(cloned)
	}
	resp := heap.Clone(child.Heap, parent.pendingResponsible)
	child.push(resp)
	parent.Heap.Drop(parent.PendingScopeBody)
	parent.Heap.Drop(parent.pendingResponsible)
	parent.Tracer.ChildFiberSpawned(parentID, childID)
	return childID, true
}

// resolveScopes finishes any parallel/try scope whose child has reached
// Done or Panicked, and cancels remaining siblings when one panics
// (§4.7 step 4, §5 Cancellation).
func (vm *VM) resolveScopes() bool {
	progressed := false
	for parentID, scope := range vm.scopes {
		parent := vm.fibers[parentID]
		if parent == nil {
			delete(vm.scopes, parentID)
			continue
		}
		var panicked *FiberID
		allDone := true
		for _, cid := range scope.children {
			c := vm.fibers[cid]
			if c == nil {
				continue
			}
			switch c.Status {
			case StatusPanicked:
				id := cid
				panicked = &id
			case StatusDone:
				scope.done[cid] = true
			default:
				allDone = false
			}
		}

		if panicked != nil {
			child := vm.fibers[*panicked]
			for _, cid := range scope.children {
				if cid == *panicked {
					continue
				}
				if sib := vm.fibers[cid]; sib != nil && sib.Status != StatusDone {
					vm.cancel(cid)
				}
			}
			parent.Tracer.ChildFiberFinished(parentID, *panicked, StatusPanicked)
			if scope.isTry {
				reason := heap.Clone(parent.Heap, child.PanicReason)
				result := parent.Heap.NewTag("Error", &reason)
				parent.push(result)
				parent.Status = StatusRunning
			} else {
				parent.PanicReason = heap.Clone(parent.Heap, child.PanicReason)
				parent.PanicResponsible = heap.Clone(parent.Heap, child.PanicResponsible)
				pid := *panicked
				parent.PanickedChild = &pid
				parent.Status = StatusPanicked
			}
			child.Heap.Drop(child.PanicReason)
			child.Heap.Drop(child.PanicResponsible)
			delete(vm.fibers, *panicked)
			delete(vm.scopes, parentID)
			progressed = true
			continue
		}

		if allDone && len(scope.children) > 0 {
			child := vm.fibers[scope.children[0]]
			parent.Tracer.ChildFiberFinished(parentID, scope.children[0], StatusDone)
			value := heap.Clone(parent.Heap, child.ReturnValue)
			if scope.isTry {
				payload := value
				value = parent.Heap.NewTag("Ok", &payload)
			}
			parent.push(value)
			child.Heap.Drop(child.ReturnValue)
			parent.Status = StatusRunning
			delete(vm.fibers, scope.children[0])
			delete(vm.scopes, parentID)
			progressed = true
		}
	}
	return progressed
}

// cancel marks a fiber canceled, removing any pending channel operation
// it held (§5 "Channels a cancelled fiber was blocked on have the
// corresponding pending operation removed").
func (vm *VM) cancel(id FiberID) {
	f := vm.fibers[id]
	if f == nil {
		return
	}
	if ch := vm.channels[f.PendingChannel]; ch != nil {
		ch.PendingSends = removePendingSend(ch.PendingSends, id)
		ch.PendingReceives = removePendingReceive(ch.PendingReceives, id)
	}
	f.Status = StatusCanceled
}

func removePendingSend(list []pendingSend, id FiberID) []pendingSend {
	out := list[:0]
	for _, s := range list {
		if s.fiber != id {
			out = append(out, s)
		}
	}
	return out
}

func removePendingReceive(list []FiberID, id FiberID) []FiberID {
	out := list[:0]
	for _, r := range list {
		if r != id {
			out = append(out, r)
		}
	}
	return out
}

// progressChannel matches queued sends/receives as far as it can (§3.9,
// §4.7 "Channel operation completion" / "Packet transfer").
func (vm *VM) progressChannel(ch *Channel) bool {
	progressed := false
	for {
		switch {
		case len(ch.Packets) > 0 && len(ch.PendingReceives) > 0:
			recvID := ch.PendingReceives[0]
			ch.PendingReceives = ch.PendingReceives[1:]
			pkt := ch.Packets[0]
			ch.Packets = ch.Packets[1:]
			vm.deliver(recvID, pkt)
			progressed = true
		case len(ch.PendingSends) > 0 && len(ch.PendingReceives) > 0:
			send := ch.PendingSends[0]
			ch.PendingSends = ch.PendingSends[1:]
			recvID := ch.PendingReceives[0]
			ch.PendingReceives = ch.PendingReceives[1:]
			vm.deliver(recvID, send.packet)
			vm.resumeSender(send.fiber)
			progressed = true
		case len(ch.PendingSends) > 0 && ch.CanBufferSend():
			send := ch.PendingSends[0]
			ch.PendingSends = ch.PendingSends[1:]
			ch.Packets = append(ch.Packets, send.packet)
			vm.resumeSender(send.fiber)
			progressed = true
		default:
			return progressed
		}
	}
}

func (vm *VM) deliver(recvID FiberID, pkt Packet) {
	recv := vm.fibers[recvID]
	if recv == nil {
		return
	}
	cloned := heap.Clone(recv.Heap, pkt.Value)
	recv.push(cloned)
	recv.Status = StatusRunning
	recv.enqueuedChannelOp = false
}

func (vm *VM) resumeSender(senderID FiberID) {
	sender := vm.fibers[senderID]
	if sender == nil {
		return
	}
	sender.push(sender.Heap.NewTag("Nothing", nil))
	sender.Status = StatusRunning
	sender.enqueuedChannelOp = false
}

// sweepCanceled tears down and forgets every canceled fiber (§5
// "its heap is torn down on the next scheduler pass").
func (vm *VM) sweepCanceled() {
	for id, f := range vm.fibers {
		if f.Status == StatusCanceled {
			f.teardown()
			delete(vm.fibers, id)
		}
	}
}

// Fibers exposes the live fiber set, for the debug adapter and tests.
func (vm *VM) Fibers() map[FiberID]*Fiber { return vm.fibers }

// Channels exposes the live channel set, for tests.
func (vm *VM) Channels() map[ChannelID]*Channel { return vm.channels }
