// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/ember/pkg/heap"
)

// HostFunc services a Handle call (§3.8, §5): handleID names the handle,
// args are its arguments (still owned by the calling fiber's heap).
// Implementations build their result in scratch and return it; the VM
// clones the result into the calling fiber's heap before resuming it,
// the same way a channel Packet crosses a heap boundary (§5 "Packet
// transfer").
type HostFunc func(handleID string, args []heap.Value, scratch *heap.Heap) (heap.Value, error)

// serviceHandles resolves every fiber currently suspended on a Handle
// call. Host calls are the one suspension point this VM services with
// real concurrency (§5 "a Handle call (external service)" is explicitly
// called out alongside the quantum-exhaustion suspension points, and
// unlike those, nothing about servicing it needs another fiber's
// instructions to be mid-flight) — an errgroup fans the calls out, each
// building its result against its own scratch heap, and every result is
// only applied back to its fiber after all goroutines have joined, so
// fiber/heap mutation itself stays strictly single-threaded (§5
// "Scheduling model").
func (vm *VM) serviceHandles(ids []FiberID) {
	if vm.host == nil {
		for _, id := range ids {
			f := vm.fibers[id]
			if f == nil {
				continue
			}
			reason, resp := textPanic(f.Heap, "no host registered for handle "+f.PendingHandleID, f.pendingResponsible)
			vm.finishHandleCall(f, reason, resp, true)
		}
		return
	}

	type outcome struct {
		result heap.Value
		scratch *heap.Heap
		err    error
	}
	outcomes := make([]outcome, len(ids))

	g, _ := errgroup.WithContext(context.Background())
	for i, id := range ids {
		i, id := i, id
		f := vm.fibers[id]
		if f == nil {
			continue
		}
		handleID, args := f.PendingHandleID, f.pendingHandleArgs
		g.Go(func() error {
			scratch := heap.New()
			result, err := vm.host(handleID, args, scratch)
			outcomes[i] = outcome{result: result, scratch: scratch, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		f := vm.fibers[id]
		if f == nil {
			continue
		}
		o := outcomes[i]
		if o.err != nil {
			reason, resp := textPanic(f.Heap, o.err.Error(), f.pendingResponsible)
			vm.finishHandleCall(f, reason, resp, true)
			continue
		}
		cloned := heap.Clone(f.Heap, o.result)
		vm.finishHandleCall(f, cloned, heap.Value{}, false)
	}
}

func (vm *VM) finishHandleCall(f *Fiber, value, responsible heap.Value, isPanic bool) {
	for _, a := range f.pendingHandleArgs {
		f.Heap.Drop(a)
	}
	f.pendingHandleArgs = nil
	if !isPanic {
		f.Heap.Drop(f.pendingResponsible)
	}
	f.pendingResponsible = heap.Value{}
	if isPanic {
		f.panic(value, responsible)
		return
	}
	f.push(value)
	f.Status = StatusRunning
}
