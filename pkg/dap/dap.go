// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dap builds the structured variable entries a debug adapter's
// "variables" request returns (§6.5): arguments, locals, fiber-heap, and
// the expansion of one already-returned entry's children.
package dap

import (
	"fmt"
	"strconv"

	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/vm"
)

// Kind discriminates where an Entry came from, per §6.5's enumeration.
type Kind int

const (
	KindArguments Kind = iota
	KindLocals
	KindFiberHeap
	KindInnerOfObject
)

// Entry is one row a debug adapter renders: a name, a debug-text value,
// the value's dynamic type, and — for expandable kinds (Struct, List,
// Tag) — how many children a follow-up InnerEntries call would return.
type Entry struct {
	Kind        Kind
	Name        string
	Value       string
	Type        string
	ChildCount  int
	handle      heap.Value
	expandable  bool
}

// Expandable reports whether this entry has children a client may
// request via InnerEntries.
func (e Entry) Expandable() bool { return e.expandable }

// ArgumentEntries renders one Full-tracer call frame's arguments.
func ArgumentEntries(h *heap.Heap, frame vm.CallFrame) []Entry {
	entries := make([]Entry, len(frame.Arguments))
	for i, arg := range frame.Arguments {
		entries[i] = newEntry(KindArguments, "arg"+strconv.Itoa(i), h, arg)
	}
	return entries
}

// LocalEntries renders a fiber's current data stack as unnamed locals,
// most-recently-pushed first — the closest analog this bytecode's
// unnamed stack slots have to named HIR locals.
func LocalEntries(f *vm.Fiber) []Entry {
	entries := make([]Entry, len(f.DataStack))
	for i := range f.DataStack {
		v := f.DataStack[len(f.DataStack)-1-i]
		entries[i] = newEntry(KindLocals, "$"+strconv.Itoa(i), f.Heap, v)
	}
	return entries
}

// FiberHeapEntries renders a coarse view of a fiber's heap: its live
// object count plus every value currently reachable from its data
// stack. There is no global object table to enumerate exhaustively
// (§3.8's refcounted heap only tracks liveness, not a root set), so the
// data stack is the practical reachability frontier a debugger can walk.
func FiberHeapEntries(f *vm.Fiber) []Entry {
	entries := []Entry{{
		Kind:  KindFiberHeap,
		Name:  "live-objects",
		Value: strconv.Itoa(f.Heap.LiveCount()),
		Type:  "int",
	}}
	entries = append(entries, LocalEntries(f)...)
	return entries
}

// InnerEntries expands one Struct/List/Tag entry into its children.
// Primitive entries (Int, Text, Function, Handle, HirId) are not
// expandable and return nil.
func InnerEntries(h *heap.Heap, parent Entry) []Entry {
	obj, ok := parent.handle.Object()
	if !ok {
		return nil
	}
	switch obj.Kind {
	case heap.KindList:
		entries := make([]Entry, len(obj.ListItems))
		for i, item := range obj.ListItems {
			entries[i] = newEntry(KindInnerOfObject, "["+strconv.Itoa(i)+"]", h, item)
		}
		return entries
	case heap.KindStruct:
		entries := make([]Entry, len(obj.StructEntries))
		for i, e := range obj.StructEntries {
			entries[i] = newEntry(KindInnerOfObject, debugText(h, e.Key), h, e.Value)
		}
		return entries
	case heap.KindTag:
		if obj.TagValue == nil {
			return nil
		}
		return []Entry{newEntry(KindInnerOfObject, obj.TagSymbol, h, *obj.TagValue)}
	default:
		return nil
	}
}

func newEntry(kind Kind, name string, h *heap.Heap, v heap.Value) Entry {
	e := Entry{Kind: kind, Name: name, Value: debugText(h, v), Type: v.Kind(), handle: v}
	if obj, ok := v.Object(); ok {
		switch obj.Kind {
		case heap.KindList:
			e.expandable = true
			e.ChildCount = len(obj.ListItems)
		case heap.KindStruct:
			e.expandable = true
			e.ChildCount = len(obj.StructEntries)
		case heap.KindTag:
			if obj.TagValue != nil {
				e.expandable = true
				e.ChildCount = 1
			}
		}
	}
	return e
}

// debugText renders v as the short human-readable text a variables view
// shows before expansion, mirroring the kind-switch shape
// pkg/heap/heap.go's own internal hash renderer uses.
func debugText(h *heap.Heap, v heap.Value) string {
	obj, ok := v.Object()
	if !ok {
		return v.Kind()
	}
	switch obj.Kind {
	case heap.KindInt:
		return obj.Int.String()
	case heap.KindText:
		return strconv.Quote(obj.Text)
	case heap.KindTag:
		if obj.TagValue == nil {
			return "#" + obj.TagSymbol
		}
		return "#" + obj.TagSymbol + "(" + debugText(h, *obj.TagValue) + ")"
	case heap.KindList:
		return fmt.Sprintf("list[%d]", len(obj.ListItems))
	case heap.KindStruct:
		return fmt.Sprintf("struct{%d}", len(obj.StructEntries))
	case heap.KindFunction:
		return fmt.Sprintf("function@%d/%d", obj.FuncEntryIP, obj.FuncArgCount)
	case heap.KindHandle:
		return "handle:" + obj.HandleID
	case heap.KindHirId:
		return obj.HirIDValue.String()
	default:
		return v.Kind()
	}
}
