// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"fmt"

	"github.com/kraklabs/ember/pkg/builtins"
	"github.com/kraklabs/ember/pkg/heap"
)

// Control-flow and concurrency builtins re-enter the fiber's own call
// dispatch (function-run) or hand control to the scheduler (channel,
// parallel-scope, and try operations) rather than compute a value through
// the plain builtins.Table (§4.9, §4.7). They are recognized here, ahead
// of the table lookup, purely to keep pkg/builtins free of any dependency
// on fiber/scheduler control flow.
const (
	builtinFunctionRun   = "FunctionRun"
	builtinIfElse        = "IfElse"
	builtinCreateChannel = "CreateChannel"
	builtinSend          = "Send"
	builtinReceive       = "Receive"
	builtinParallel      = "Parallel"
	builtinTry           = "Try"
	builtinUseModule     = "UseModule"
	builtinPrint         = "Print"
)

// enterFunction pushes a Function value's captures, then args, then
// responsible, and jumps to its entry point — the shared tail of Call and
// TailCall dispatch for a Function callee, and of function-run (§4.6).
func (f *Fiber) enterFunction(callee heap.Value, obj *heap.Object, args []heap.Value, responsible heap.Value, tail bool, numLocalsToPop int) {
	if obj.FuncArgCount != len(args) {
		f.Heap.Drop(callee)
		for _, a := range args {
			f.Heap.Drop(a)
		}
		reason, resp := textPanic(f.Heap, fmt.Sprintf("expected %d arguments, got %d", obj.FuncArgCount, len(args)), responsible)
		f.panic(reason, resp)
		return
	}
	if tail {
		for k := 0; k < numLocalsToPop; k++ {
			f.Heap.Drop(f.pop())
		}
	} else {
		f.CallStack = append(f.CallStack, f.NextInstruction)
	}
	for _, c := range obj.FuncCaptured {
		f.Heap.Dup(c, 1)
		f.push(c)
	}
	for _, a := range args {
		f.push(a)
	}
	f.push(responsible)
	entryIP := obj.FuncEntryIP
	f.Heap.Drop(callee)
	f.NextInstruction = entryIP
}

// dispatchBuiltin implements a Call/TailCall whose callee is an inline
// builtin reference. Ordinary data builtins consult table; the handful
// that need to re-enter dispatch or suspend the fiber are special-cased.
func (f *Fiber) dispatchBuiltin(name string, args []heap.Value, responsible heap.Value, tail bool, numLocalsToPop int) {
	switch name {
	case builtinFunctionRun:
		fn := args[0]
		obj, ok := fn.Object()
		if !ok || obj.Kind != heap.KindFunction {
			f.Heap.Drop(fn)
			reason, resp := textPanic(f.Heap, "function-run requires a Function", responsible)
			f.panic(reason, resp)
			return
		}
		f.enterFunction(fn, obj, nil, responsible, tail, numLocalsToPop)
		return

	case builtinIfElse:
		cond, thenFn, elseFn := args[0], args[1], args[2]
		condObj, ok := cond.Object()
		isTrue := ok && condObj.Kind == heap.KindTag && condObj.TagSymbol == "True"
		f.Heap.Drop(cond)
		chosen, other := thenFn, elseFn
		if !isTrue {
			chosen, other = elseFn, thenFn
		}
		f.Heap.Drop(other)
		obj, ok := chosen.Object()
		if !ok || obj.Kind != heap.KindFunction {
			f.Heap.Drop(chosen)
			reason, resp := textPanic(f.Heap, "if-else branches must be zero-argument Functions", responsible)
			f.panic(reason, resp)
			return
		}
		f.enterFunction(chosen, obj, nil, responsible, tail, numLocalsToPop)
		return

	case builtinCreateChannel:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		n, ok := args[0].Int()
		f.Heap.Drop(args[0])
		if !ok {
			f.panic(textPanic(f.Heap, "create-channel requires an Int capacity", responsible))
			return
		}
		f.Heap.Drop(responsible)
		f.PendingChannelCapacity = int(n.Int64())
		f.Status = StatusCreatingChannel
		return

	case builtinSend:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		port, ok := args[0].PortValue()
		value := args[1]
		f.Heap.Drop(args[0])
		if !ok {
			f.Heap.Drop(value)
			f.panic(textPanic(f.Heap, "send requires a SendPort", responsible))
			return
		}
		f.Heap.Drop(responsible)
		packetHeap := heap.New()
		cloned := heap.Clone(packetHeap, value)
		f.Heap.Drop(value)
		f.PendingChannel = ChannelID(port.ChannelID)
		f.PendingPacket = &Packet{Heap: packetHeap, Value: cloned}
		f.Status = StatusSending
		return

	case builtinPrint:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		message, ok := args[0].Object()
		isText := ok && message.Kind == heap.KindText
		if !isText {
			f.Heap.Drop(args[0])
			f.panic(textPanic(f.Heap, "print requires a Text argument", responsible))
			return
		}
		if f.StdoutChannel == 0 {
			f.Heap.Drop(args[0])
			f.panic(textPanic(f.Heap, "print has no configured stdout channel", responsible))
			return
		}
		f.Heap.Drop(responsible)
		packetHeap := heap.New()
		line := packetHeap.NewText(message.Text + "\n")
		f.Heap.Drop(args[0])
		f.PendingChannel = f.StdoutChannel
		f.PendingPacket = &Packet{Heap: packetHeap, Value: line}
		f.Status = StatusSending
		return

	case builtinReceive:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		port, ok := args[0].PortValue()
		f.Heap.Drop(args[0])
		if !ok {
			f.panic(textPanic(f.Heap, "receive requires a ReceivePort", responsible))
			return
		}
		f.Heap.Drop(responsible)
		f.PendingChannel = ChannelID(port.ChannelID)
		f.Status = StatusReceiving
		return

	case builtinParallel:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		f.PendingScopeBody = args[0]
		f.pendingResponsible = responsible
		f.Status = StatusInParallelScope
		return

	case builtinTry:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		f.PendingScopeBody = args[0]
		f.pendingResponsible = responsible
		f.Status = StatusInTry
		return

	case builtinUseModule:
		if tail {
			for k := 0; k < numLocalsToPop; k++ {
				f.Heap.Drop(f.pop())
			}
		}
		currentObj, curOK := args[0].Object()
		relObj, relOK := args[1].Object()
		curOK = curOK && currentObj.Kind == heap.KindText
		relOK = relOK && relObj.Kind == heap.KindText
		if !curOK || !relOK {
			f.Heap.Drop(args[0])
			f.Heap.Drop(args[1])
			f.panic(textPanic(f.Heap, "use-module requires Text arguments", responsible))
			return
		}
		f.PendingUseCurrentModule = currentObj.Text
		f.PendingUseRelativePath = relObj.Text
		f.Heap.Drop(args[0])
		f.Heap.Drop(args[1])
		f.pendingResponsible = responsible
		f.Status = statusUsingModule
		return
	}

	if tail {
		for k := 0; k < numLocalsToPop; k++ {
			f.Heap.Drop(f.pop())
		}
	}
	entry, ok := defaultBuiltins[name]
	if !ok {
		for _, a := range args {
			f.Heap.Drop(a)
		}
		reason, resp := textPanic(f.Heap, "unknown builtin: "+name, responsible)
		f.panic(reason, resp)
		return
	}
	if entry.Arity != len(args) {
		for _, a := range args {
			f.Heap.Drop(a)
		}
		reason, resp := textPanic(f.Heap, fmt.Sprintf("%s expects %d arguments, got %d", name, entry.Arity, len(args)), responsible)
		f.panic(reason, resp)
		return
	}
	result, err := entry.Fn(f.Heap, args)
	for _, a := range args {
		f.Heap.Drop(a)
	}
	if err != nil {
		f.panic(textPanic(f.Heap, err.Error(), responsible))
		return
	}
	f.Heap.Drop(responsible)
	f.push(result)
}

// defaultBuiltins is the table of pure data builtins shared by every
// fiber; it carries no per-fiber state so one instance suffices.
var defaultBuiltins builtins.Table = builtins.Default()
