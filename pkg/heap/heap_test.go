// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package heap

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInlineIntNoHeapAllocation checks small integers never allocate an
// Object (§3.8 "low bits tag the value as ... inline-integer (small)").
func TestInlineIntNoHeapAllocation(t *testing.T) {
	h := New()
	v := h.NewInt(42)
	assert.False(t, v.IsObject())
	assert.Equal(t, 0, h.LiveCount())
	i, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, "42", i.String())
}

// TestBigIntPromotion checks a value outside the inline range is promoted
// to a heap Int (SPEC_FULL §5 overflow/bigint promotion boundary).
func TestBigIntPromotion(t *testing.T) {
	h := New()
	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	v := h.NewBigInt(huge)
	assert.True(t, v.IsObject())
	assert.Equal(t, 1, h.LiveCount())
	i, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, huge.String(), i.String())
}

// TestRefcountConservation checks dup/drop round-trips leave the heap
// empty, and that a container's drop recursively drops its contents
// (§3.8, a universal testable property per §8).
func TestRefcountConservation(t *testing.T) {
	h := New()
	a := h.NewText("a")
	b := h.NewText("b")
	list := h.NewList([]Value{a, b})

	h.Dup(list, 2)
	assert.Equal(t, int64(3), list.obj.RefCount)
	h.Drop(list)
	h.Drop(list)
	assert.Equal(t, 3, h.LiveCount(), "list + its two contained Text objects must all still be live")
	h.Drop(list)
	assert.Equal(t, 0, h.LiveCount(), "dropping the last reference must recursively free contained objects")
}

// TestConstantBypassesRefcounting checks dup/drop on a constant-heap
// object never mutates its refcount or frees it (§3.8).
func TestConstantBypassesRefcounting(t *testing.T) {
	h := NewConstant()
	v := h.NewText("frozen")
	h.Dup(v, 5)
	h.Drop(v)
	h.Drop(v)
	obj, ok := v.Object()
	require.True(t, ok)
	assert.Equal(t, int64(1), obj.RefCount)
	assert.Equal(t, 1, h.LiveCount())
}

// TestEqualsStructural checks two independently-built equal value graphs
// compare equal, and a differing nested value breaks equality.
func TestEqualsStructural(t *testing.T) {
	h := New()
	some1a := h.NewTag("Some", ptr(h.NewInt(1)))
	some1b := h.NewTag("Some", ptr(h.NewInt(1)))
	some2 := h.NewTag("Some", ptr(h.NewInt(2)))

	assert.True(t, Equals(some1a, some1b))
	assert.False(t, Equals(some1a, some2))
}

// TestStructSortedByKeyHash checks struct entries come back in their
// stored hash order regardless of construction order (§3.8).
func TestStructSortedByKeyHash(t *testing.T) {
	h := New()
	s1 := h.NewStruct([]StructEntry{
		{Key: h.NewText("zebra"), Value: h.NewInt(1)},
		{Key: h.NewText("apple"), Value: h.NewInt(2)},
	})
	s2 := h.NewStruct([]StructEntry{
		{Key: h.NewText("apple"), Value: h.NewInt(2)},
		{Key: h.NewText("zebra"), Value: h.NewInt(1)},
	})
	obj1, _ := s1.Object()
	obj2, _ := s2.Object()
	require.Len(t, obj1.StructEntries, 2)
	for i := range obj1.StructEntries {
		assert.Equal(t, obj1.StructEntries[i].Hash, obj2.StructEntries[i].Hash)
	}
}

// TestToDebugText checks the recursive formatting rules for a compound
// value (SPEC_FULL §5).
func TestToDebugText(t *testing.T) {
	h := New()
	inner := h.NewTag("Some", ptr(h.NewInt(1)))
	outer := h.NewTag("Some", ptr(inner))
	assert.Equal(t, "Some (Some 1)", ToDebugText(outer))

	list := h.NewList([]Value{h.NewInt(1), h.NewText("x")})
	assert.Equal(t, `(1, "x")`, ToDebugText(list))

	s := h.NewStruct([]StructEntry{{Key: h.NewText("a"), Value: h.NewInt(1)}})
	assert.Equal(t, `"a": 1`, stripBrackets(ToDebugText(s)))
}

func ptr(v Value) *Value { return &v }

func stripBrackets(s string) string {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

// TestCloneDetachesFromSourceHeap checks Clone produces an independent
// object graph in the destination heap (§5 "Packet transfer").
func TestCloneDetachesFromSourceHeap(t *testing.T) {
	src := New()
	dst := New()
	v := src.NewList([]Value{src.NewText("hello")})
	cloned := Clone(dst, v)

	assert.Equal(t, 2, src.LiveCount())
	assert.Equal(t, 2, dst.LiveCount())
	assert.True(t, Equals(v, cloned))

	src.Drop(v)
	src.Drop(v)
	assert.Equal(t, 0, src.LiveCount())
	assert.Equal(t, 2, dst.LiveCount(), "dropping the source graph must not affect the clone")
}
