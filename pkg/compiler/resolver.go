// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package compiler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/mir"
	"github.com/kraklabs/ember/pkg/module"
	"github.com/kraklabs/ember/pkg/vm"
)

// Resolver adapts a Compiler into a vm.ModuleResolver (§6.2): resolving a
// `use` statement means resolving the target Module, compiling it if it
// is a code module (recursing through Compile, which memoizes), running
// its top-level body to completion on its own nested VM to get the
// exported struct, or loading raw bytes for an asset module. Results are
// cached by resolved Module so repeated `use`s of the same path only pay
// for resolution once; an in-flight chain, guarded by chainMu, detects
// import cycles (§6.2, §7.3).
type Resolver struct {
	compiler     *Compiler
	tracing      mir.TracingConfig
	fiberTracer  vm.Tracer
	fiberControl vm.ExecutionController

	chainMu sync.Mutex
	chain   []module.Key

	cacheMu sync.Mutex
	cache   map[module.Key]*resolvedModule
}

type resolvedModule struct {
	value heap.Value
	heap  *heap.Heap
	err   error
}

// NewResolver builds a Resolver over compiler, running code modules under
// tracing and with control. A relative path ending in ".emberasset" names
// an asset module (raw bytes); anything else names a code module.
func NewResolver(compiler *Compiler, tracing mir.TracingConfig, control vm.ExecutionController, tracer vm.Tracer) *Resolver {
	return &Resolver{
		compiler:     compiler,
		tracing:      tracing,
		fiberTracer:  tracer,
		fiberControl: control,
		cache:        map[module.Key]*resolvedModule{},
	}
}

// ResolveModule implements vm.ModuleResolver.
func (r *Resolver) ResolveModule(currentModule, relativePath string, scratch *heap.Heap) (heap.Value, error) {
	current := keyToModule(currentModule)
	kind := module.Code
	if strings.HasSuffix(relativePath, ".emberasset") {
		kind = module.Asset
	}
	target := module.Resolve(current, relativePath, kind)
	key := target.Key()

	r.cacheMu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.cacheMu.Unlock()
		if cached.err != nil {
			return heap.Value{}, cached.err
		}
		return heap.Clone(scratch, cached.value), nil
	}
	r.cacheMu.Unlock()

	if err := r.enterChain(key); err != nil {
		return heap.Value{}, err
	}
	defer r.leaveChain(key)

	value, err := r.resolveUncached(target, scratch)

	r.cacheMu.Lock()
	r.cache[key] = &resolvedModule{value: value, heap: scratch, err: err}
	r.cacheMu.Unlock()

	if err != nil {
		return heap.Value{}, err
	}
	return value, nil
}

func (r *Resolver) resolveUncached(target module.Module, scratch *heap.Heap) (heap.Value, error) {
	if target.Kind == module.Asset {
		bytes, err := r.compiler.loader.LoadAsset(target)
		if err != nil {
			return heap.Value{}, fmt.Errorf("loading asset %s: %w", target, err)
		}
		items := make([]heap.Value, len(bytes))
		for i, b := range bytes {
			items[i] = scratch.NewInt(int64(b))
		}
		return scratch.NewList(items), nil
	}

	stages, err := r.compiler.Compile(target, r.tracing)
	if err != nil {
		return heap.Value{}, err
	}

	nested := vm.New(r.fiberControl)
	nested.SetModuleResolver(r)
	root, err := nested.Run(stages.Program, stages.Program.ModuleFunctionIP, r.fiberTracer)
	if err != nil {
		return heap.Value{}, fmt.Errorf("running module %s: %w", target, err)
	}
	if root.Status == vm.StatusPanicked {
		reason := "module panicked"
		if obj, ok := root.PanicReason.Object(); ok && obj.Kind == heap.KindText {
			reason = obj.Text
		}
		return heap.Value{}, fmt.Errorf("use of %s panicked: %s", target, reason)
	}
	return heap.Clone(scratch, root.ReturnValue), nil
}

func (r *Resolver) enterChain(key module.Key) error {
	r.chainMu.Lock()
	defer r.chainMu.Unlock()
	for _, k := range r.chain {
		if k == key {
			chain := append(append([]string(nil)), keysToStrings(r.chain)...)
			chain = append(chain, string(key))
			return fmt.Errorf("circular use: %s", strings.Join(chain, " -> "))
		}
	}
	r.chain = append(r.chain, key)
	return nil
}

func (r *Resolver) leaveChain(key module.Key) {
	r.chainMu.Lock()
	defer r.chainMu.Unlock()
	for i, k := range r.chain {
		if k == key {
			r.chain = append(r.chain[:i], r.chain[i+1:]...)
			return
		}
	}
}

func keysToStrings(keys []module.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// keyToModule recovers enough of a Module from its String() form to
// resolve a relative `use` against it. Module.Key isn't reversible in
// general, but currentModule here is always produced by mir.UseModule's
// CurrentModule field, which the MIR lowerer sets to Module.String()
// (package:path/segments) — see pkg/mir/lower.go.
func keyToModule(s string) module.Module {
	pkg, rest, _ := strings.Cut(s, ":")
	var segments []string
	if rest != "" {
		segments = strings.Split(rest, "/")
	}
	return module.New(pkg, segments, module.Code)
}
