// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import "github.com/kraklabs/ember/pkg/heap"

// ModuleResolver services the `use-module` builtin (§6.2): given the
// module currently executing and the relative path named in its `use`
// statement, it resolves, compiles (if needed), runs, and caches the
// target module, returning its exported Struct (code module) or its raw
// bytes as a List of Ints (asset module). Implementations build the
// result against scratch and return it there — the VM clones it into the
// calling fiber's heap, the same boundary-crossing discipline a channel
// Packet or a Handle result already crosses.
type ModuleResolver interface {
	ResolveModule(currentModule, relativePath string, scratch *heap.Heap) (heap.Value, error)
}

// SetModuleResolver installs the resolver used to service use-module
// calls; without one, a fiber that calls use-module panics.
func (vm *VM) SetModuleResolver(r ModuleResolver) { vm.resolver = r }

// serviceUseModule resolves one fiber's pending use-module call. Unlike
// Handle calls (host.go), this is serviced inline rather than fanned out
// through an errgroup: module resolution recurses into compiling and
// running another module's top-level body on its own nested VM, which
// would itself need to reach back into this scheduler's state if it ran
// concurrently with the caller's tick — keeping it synchronous avoids
// that reentrancy hazard entirely.
func (vm *VM) serviceUseModule(f *Fiber) {
	current, relative, resp := f.PendingUseCurrentModule, f.PendingUseRelativePath, f.pendingResponsible
	f.PendingUseCurrentModule = ""
	f.PendingUseRelativePath = ""
	f.pendingResponsible = heap.Value{}

	if vm.resolver == nil {
		reason, respOut := textPanic(f.Heap, "no module resolver installed", resp)
		f.panic(reason, respOut)
		return
	}

	scratch := heap.New()
	result, err := vm.resolver.ResolveModule(current, relative, scratch)
	if err != nil {
		reason, respOut := textPanic(f.Heap, err.Error(), resp)
		f.panic(reason, respOut)
		return
	}
	cloned := heap.Clone(f.Heap, result)
	f.Heap.Drop(resp)
	f.push(cloned)
	f.Status = StatusRunning
}
