// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dap

import (
	"testing"

	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/vm"
)

func TestArgumentEntriesRendersEachArgument(t *testing.T) {
	h := heap.New()
	frame := vm.CallFrame{
		Callee:      h.NewInt(0),
		Arguments:   []heap.Value{h.NewInt(1), h.NewText("two")},
		Responsible: h.NewTag("Nothing", nil),
	}

	entries := ArgumentEntries(h, frame)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Value != "1" {
		t.Fatalf("entries[0].Value = %q, want %q", entries[0].Value, "1")
	}
	if entries[1].Value != `"two"` {
		t.Fatalf("entries[1].Value = %q, want %q", entries[1].Value, `"two"`)
	}
	if entries[0].Expandable() {
		t.Fatalf("an int entry must not be expandable")
	}
}

func TestLocalEntriesOrderedMostRecentFirst(t *testing.T) {
	f := vm.NewFiber(1, &bytecode.Program{}, 0, nil)
	f.DataStack = []heap.Value{f.Heap.NewInt(1), f.Heap.NewInt(2), f.Heap.NewInt(3)}

	entries := LocalEntries(f)
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Value != "3" || entries[0].Name != "$0" {
		t.Fatalf("entries[0] = %+v, want the top of stack as $0", entries[0])
	}
	if entries[2].Value != "1" || entries[2].Name != "$2" {
		t.Fatalf("entries[2] = %+v, want the stack bottom as $2", entries[2])
	}
}

func TestFiberHeapEntriesIncludesLiveCount(t *testing.T) {
	f := vm.NewFiber(1, &bytecode.Program{}, 0, nil)
	f.DataStack = []heap.Value{f.Heap.NewText("seven")}

	entries := FiberHeapEntries(f)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (live-objects + one local)", len(entries))
	}
	if entries[0].Name != "live-objects" || entries[0].Value != "1" {
		t.Fatalf("entries[0] = %+v, want live-objects = 1", entries[0])
	}
}

func TestInnerEntriesExpandsListAndStruct(t *testing.T) {
	h := heap.New()

	list := h.NewList([]heap.Value{h.NewInt(1), h.NewInt(2)})
	listEntry := newEntry(KindLocals, "xs", h, list)
	inner := InnerEntries(h, listEntry)
	if len(inner) != 2 {
		t.Fatalf("len(inner) = %d, want 2", len(inner))
	}
	if inner[0].Name != "[0]" || inner[0].Value != "1" {
		t.Fatalf("inner[0] = %+v, want [0]=1", inner[0])
	}

	str := h.NewStruct([]heap.StructEntry{
		{Key: h.NewTag("x", nil), Value: h.NewInt(5)},
	})
	structEntry := newEntry(KindLocals, "s", h, str)
	innerStruct := InnerEntries(h, structEntry)
	if len(innerStruct) != 1 || innerStruct[0].Value != "5" {
		t.Fatalf("innerStruct = %+v, want one entry valued 5", innerStruct)
	}
}

func TestInnerEntriesOnPrimitiveReturnsNil(t *testing.T) {
	h := heap.New()
	entry := newEntry(KindLocals, "n", h, h.NewInt(1))
	if InnerEntries(h, entry) != nil {
		t.Fatalf("InnerEntries on an Int entry = non-nil, want nil")
	}
	if entry.Expandable() {
		t.Fatalf("an Int entry must not report Expandable")
	}
}

func TestDebugTextTag(t *testing.T) {
	h := heap.New()
	payload := h.NewInt(3)
	tag := h.NewTag("Some", &payload)
	if got, want := debugText(h, tag), "#Some(3)"; got != want {
		t.Fatalf("debugText(tag) = %q, want %q", got, want)
	}

	bare := h.NewTag("Nothing", nil)
	if got, want := debugText(h, bare), "#Nothing"; got != want {
		t.Fatalf("debugText(bare tag) = %q, want %q", got, want)
	}
}
