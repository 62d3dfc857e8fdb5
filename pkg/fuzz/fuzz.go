// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fuzz enumerates a compiled module's fuzzable functions and
// exercises each with generated inputs, reporting any case that panics
// or that a function-local assertion rejects.
package fuzz

import (
	"fmt"
	"math/rand"

	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/hir"
	"github.com/kraklabs/ember/pkg/vm"
)

// Case is one generated input tuple for a single fuzzable function.
type Case struct {
	Args []heap.Value
}

// Failure reports one fuzzable function call that panicked.
type Failure struct {
	Origin      hir.Id
	Case        Case
	PanicReason string
}

// Config controls how many cases are tried per function and the shape of
// the generated values.
type Config struct {
	CaseBudget int
	Seed       int64
	MaxDepth   int
}

// DefaultConfig mirrors the project-config defaults (a fuzz run with no
// .ember/project.yaml override).
func DefaultConfig() Config {
	return Config{CaseBudget: 1000, Seed: 1, MaxDepth: 3}
}

// Run exercises every fuzzable function gathered by a Full tracer's
// module-level run, returning for each function the first case that made
// its fiber panic. Each case runs on its own fiber via machine.RunFunction,
// under machine's own execution controller; RunFunction drives the case
// until it finishes, panics or deadlocks, so a generated input that never
// terminates keeps Run from returning.
func Run(machine *vm.VM, program *bytecode.Program, fuzzables []vm.FuzzableRecord, cfg Config) []Failure {
	rng := rand.New(rand.NewSource(cfg.Seed))
	var failures []Failure

	for _, fn := range fuzzables {
		argCount := functionArgCount(fn.Function)
		for i := 0; i < cfg.CaseBudget; i++ {
			argHeap := heap.New()
			args := make([]heap.Value, argCount)
			for j := range args {
				args[j] = generate(argHeap, rng, cfg.MaxDepth)
			}
			responsible := argHeap.NewHirId(fn.Origin)

			result, err := machine.RunFunction(program, heap.Clone(argHeap, fn.Function), args, responsible, vm.Dummy{})
			if err != nil {
				continue
			}
			if result.Status == vm.StatusPanicked {
				reason := "unknown"
				if obj, ok := result.PanicReason.Object(); ok && obj.Kind == heap.KindText {
					reason = obj.Text
				}
				failures = append(failures, Failure{Origin: fn.Origin, Case: Case{Args: args}, PanicReason: reason})
				break
			}
		}
	}
	return failures
}

func functionArgCount(fn heap.Value) int {
	obj, ok := fn.Object()
	if !ok || obj.Kind != heap.KindFunction {
		return 0
	}
	return obj.FuncArgCount
}

// generate produces a uniformly-shaped random value: an inline integer,
// short text, list, struct, or tag, recursing up to maxDepth before
// bottoming out at an integer.
func generate(h *heap.Heap, rng *rand.Rand, maxDepth int) heap.Value {
	if maxDepth <= 0 {
		return h.NewInt(rng.Int63n(1 << 20))
	}
	switch rng.Intn(5) {
	case 0:
		return h.NewInt(rng.Int63n(1 << 20))
	case 1:
		return h.NewText(randomText(rng))
	case 2:
		n := rng.Intn(4)
		items := make([]heap.Value, n)
		for i := range items {
			items[i] = generate(h, rng, maxDepth-1)
		}
		return h.NewList(items)
	case 3:
		n := rng.Intn(3)
		entries := make([]heap.StructEntry, n)
		for i := range entries {
			entries[i] = heap.StructEntry{
				Key:   h.NewTag(fmt.Sprintf("field%d", i), nil),
				Value: generate(h, rng, maxDepth-1),
			}
		}
		return h.NewStruct(entries)
	default:
		return h.NewTag(randomText(rng), nil)
	}
}

var alphabet = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_")

func randomText(rng *rand.Rand) string {
	n := rng.Intn(8)
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(runes)
}
