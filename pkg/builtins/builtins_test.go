// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package builtins

import (
	"testing"

	"github.com/kraklabs/ember/pkg/heap"
)

// call invokes a registered builtin the way the VM does: compute the
// result, then drop every argument, mirroring the standard calling
// convention (§4.9 "each builtin drops its argument objects after
// computing its result").
func call(t *testing.T, h *heap.Heap, name string, args []heap.Value) heap.Value {
	t.Helper()
	entry, ok := Default()[name]
	if !ok {
		t.Fatalf("no such builtin: %s", name)
	}
	if entry.Arity != len(args) {
		t.Fatalf("%s: arity mismatch, got %d args for arity %d", name, len(args), entry.Arity)
	}
	result, err := entry.Fn(h, args)
	for _, a := range args {
		h.Drop(a)
	}
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return result
}

func TestAddWrongTypePanicsCleanly(t *testing.T) {
	h := heap.New()
	entry := Default()["Add"]
	text := h.NewText("nope")
	_, err := entry.Fn(h, []heap.Value{text, h.NewInt(1)})
	if err == nil {
		t.Fatalf("Add: want a type error for a Text operand")
	}
	h.Drop(text)
}

// TestWithValueRetainsArgumentWithoutLeakOrDoubleFree is the regression
// test for the refcount bug where with-value embedded its second
// argument directly into the result tag without duplicating it first,
// which the caller's unconditional post-call drop would then double-free.
func TestWithValueRetainsArgumentWithoutLeakOrDoubleFree(t *testing.T) {
	h := heap.New()
	tag := h.NewTag("Some", nil)
	payload := h.NewText("hello")

	result := call(t, h, "WithValue", []heap.Value{tag, payload})

	obj, ok := result.Object()
	if !ok || obj.Kind != heap.KindTag || obj.TagSymbol != "Some" {
		t.Fatalf("result = %v, want a Some tag", result)
	}
	if obj.TagValue == nil {
		t.Fatalf("result tag has no payload")
	}
	text, ok := obj.TagValue.Object()
	if !ok || text.Kind != heap.KindText || text.Text != "hello" {
		t.Fatalf("payload = %v, want Text(hello)", *obj.TagValue)
	}
	if text.RefCount != 1 {
		t.Fatalf("payload refcount = %d, want 1 (no leak, no double-free)", text.RefCount)
	}
	h.Drop(result)
	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d after dropping the result, want 0", h.LiveCount())
	}
}

func TestWithoutValueDropsPayload(t *testing.T) {
	h := heap.New()
	payload := h.NewText("discarded")
	tag := h.NewTag("Some", &payload)

	result := call(t, h, "WithoutValue", []heap.Value{tag})

	obj, ok := result.Object()
	if !ok || obj.TagValue != nil {
		t.Fatalf("result = %v, want a payload-less tag", result)
	}
	h.Drop(result)
	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d, want 0 (payload text must have been freed)", h.LiveCount())
	}
}

func TestListInsertPreservesSharedElements(t *testing.T) {
	h := heap.New()
	shared := h.NewText("shared")
	list := h.NewList([]heap.Value{shared})
	h.Dup(shared, 1) // the test keeps its own reference alongside the list's

	inserted := h.NewInt(7)
	result := call(t, h, "ListInsert", []heap.Value{list, h.NewInt(0), inserted})

	items, ok := result.Object()
	if !ok || items.Kind != heap.KindList || len(items.ListItems) != 2 {
		t.Fatalf("result = %v, want a 2-element list", result)
	}
	sharedObj, _ := shared.Object()
	if sharedObj.RefCount != 2 {
		t.Fatalf("shared refcount = %d, want 2 (one held by the test, one by the new list)", sharedObj.RefCount)
	}

	h.Drop(result)
	h.Drop(shared)
	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d, want 0 after dropping both holders", h.LiveCount())
	}
}

func TestListGetDupsTheReturnedElement(t *testing.T) {
	h := heap.New()
	item := h.NewText("x")
	list := h.NewList([]heap.Value{item})
	h.Dup(list, 1) // the test keeps its own reference; call drops the other

	result := call(t, h, "ListGet", []heap.Value{list, h.NewInt(0)})

	obj, _ := result.Object()
	if obj.Text != "x" {
		t.Fatalf("result = %v, want Text(x)", result)
	}
	// The list itself is still alive (the test still holds a reference), and
	// it should still own its one reference to item independent of the copy
	// we hold.
	h.Drop(result)
	if h.LiveCount() != 2 { // the list, and the still-live item it owns
		t.Fatalf("LiveCount = %d, want 2 (list + its element) after dropping only the returned copy", h.LiveCount())
	}
}

func TestParseIntSuccessAndFailureShapes(t *testing.T) {
	h := heap.New()

	ok := call(t, h, "ParseInt", []heap.Value{h.NewText("42")})
	okObj, isOk := ok.Object()
	if !isOk || okObj.Kind != heap.KindTag || okObj.TagSymbol != "Ok" {
		t.Fatalf("ParseInt(42) = %v, want an Ok tag", ok)
	}
	n, isInt := okObj.TagValue.Int()
	if !isInt || n.Int64() != 42 {
		t.Fatalf("ParseInt(42) payload = %v, want 42", *okObj.TagValue)
	}
	h.Drop(ok)

	bad := call(t, h, "ParseInt", []heap.Value{h.NewText("nope")})
	badObj, isTag := bad.Object()
	if !isTag || badObj.Kind != heap.KindTag || badObj.TagSymbol != "Error" {
		t.Fatalf("ParseInt(nope) = %v, want a bare Error tag, not wrapped in Ok", bad)
	}
	h.Drop(bad)

	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d, want 0", h.LiveCount())
	}
}

func TestTextFromUtf8InvalidShape(t *testing.T) {
	h := heap.New()
	bytes := h.NewList([]heap.Value{h.NewInt(0xff), h.NewInt(0xfe)})

	result := call(t, h, "TextFromUtf8", []heap.Value{bytes})

	obj, ok := result.Object()
	if !ok || obj.Kind != heap.KindTag || obj.TagSymbol != "Error" {
		t.Fatalf("result = %v, want a bare Error tag, not wrapped in Ok", result)
	}
	h.Drop(result)
	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d, want 0", h.LiveCount())
	}
}

func TestStructGetKeysDupsEachKey(t *testing.T) {
	h := heap.New()
	k1, k2 := h.NewText("a"), h.NewText("b")
	s := h.NewStruct([]heap.StructEntry{
		{Key: k1, Value: h.NewInt(1)},
		{Key: k2, Value: h.NewInt(2)},
	})
	h.Dup(s, 1) // the test keeps its own reference; call drops the other

	result := call(t, h, "StructGetKeys", []heap.Value{s})

	items, ok := result.Object()
	if !ok || items.Kind != heap.KindList || len(items.ListItems) != 2 {
		t.Fatalf("result = %v, want a 2-element list of keys", result)
	}
	h.Drop(result)
	if h.LiveCount() != 3 { // the struct itself is still alive, and owns both text keys
		t.Fatalf("LiveCount = %d, want 3 (the struct + its 2 keys) after dropping the keys list", h.LiveCount())
	}
	h.Drop(s)
	if h.LiveCount() != 0 {
		t.Fatalf("LiveCount = %d, want 0 after dropping the struct too", h.LiveCount())
	}
}

func TestNeedsPanicsWithReasonOnFalseCondition(t *testing.T) {
	h := heap.New()
	entry := Default()["Needs"]
	cond := h.NewTag("False", nil)
	reason := h.NewText("must be positive")
	_, err := entry.Fn(h, []heap.Value{cond, reason})
	if err == nil || err.Error() != "must be positive" {
		t.Fatalf("Needs: err = %v, want %q", err, "must be positive")
	}
	h.Drop(cond)
	h.Drop(reason)
}

func TestNeedsReturnsNothingOnTrueCondition(t *testing.T) {
	h := heap.New()
	entry := Default()["Needs"]
	cond := h.NewTag("True", nil)
	reason := h.NewText("unused")
	result, err := entry.Fn(h, []heap.Value{cond, reason})
	if err != nil {
		t.Fatalf("Needs: unexpected error %v", err)
	}
	obj, ok := result.Object()
	if !ok || obj.TagSymbol != "Nothing" {
		t.Fatalf("result = %v, want Nothing", result)
	}
	h.Drop(cond)
	h.Drop(reason)
	h.Drop(result)
}

func TestFunctionRunAndIfElseAreExcludedFromTheTable(t *testing.T) {
	table := Default()
	for _, name := range []string{"FunctionRun", "IfElse"} {
		if _, ok := table[name]; ok {
			t.Fatalf("%s must not be registered in the data-builtin table; it re-enters call dispatch and is handled by the VM", name)
		}
	}
}
