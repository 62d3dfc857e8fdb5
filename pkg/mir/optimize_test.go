// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConstantFoldAdd checks that add(2, 3) folds to the literal 5
// (§4.4.1).
func TestConstantFoldAdd(t *testing.T) {
	body := &Body{}
	a := body.Push(1, Int{Value: big.NewInt(2)})
	b := body.Push(2, Int{Value: big.NewInt(3)})
	fn := body.Push(3, Builtin{Name: "Add"})
	call := body.Push(4, Call{Function: fn, Arguments: []Id{a, b}, Responsible: 4})

	gen := &IdGenerator{}
	changed := constantFold(body, gen)
	require.True(t, changed)

	expr, _, ok := body.Lookup(call)
	require.True(t, ok)
	i, ok := expr.(Int)
	require.True(t, ok, "expected Call to fold into Int, got %T", expr)
	assert.Equal(t, "5", i.Value.String())
}

// TestConstantFoldDivideTruncating checks divideTruncating(7, 2) folds
// to the literal 3 (truncating, not flooring) (§4.4.1).
func TestConstantFoldDivideTruncating(t *testing.T) {
	body := &Body{}
	a := body.Push(1, Int{Value: big.NewInt(7)})
	b := body.Push(2, Int{Value: big.NewInt(2)})
	fn := body.Push(3, Builtin{Name: "DivideTruncating"})
	call := body.Push(4, Call{Function: fn, Arguments: []Id{a, b}, Responsible: 4})

	gen := &IdGenerator{}
	require.True(t, constantFold(body, gen))

	expr, _, ok := body.Lookup(call)
	require.True(t, ok)
	i, ok := expr.(Int)
	require.True(t, ok, "expected Call to fold into Int, got %T", expr)
	assert.Equal(t, "3", i.Value.String())
}

// TestConstantFoldDivideTruncatingByZeroPanics checks that dividing by a
// known-zero literal folds to a compile-time Panic rather than a runtime
// error (§4.4.1, §8 scenario #4).
func TestConstantFoldDivideTruncatingByZeroPanics(t *testing.T) {
	body := &Body{}
	a := body.Push(1, Int{Value: big.NewInt(1)})
	b := body.Push(2, Int{Value: big.NewInt(0)})
	fn := body.Push(3, Builtin{Name: "DivideTruncating"})
	call := body.Push(4, Call{Function: fn, Arguments: []Id{a, b}, Responsible: 4})

	gen := &IdGenerator{}
	require.True(t, constantFold(body, gen))

	expr, _, ok := body.Lookup(call)
	require.True(t, ok)
	multi, ok := expr.(Multiple)
	require.True(t, ok, "expected Call to fold into Multiple, got %T", expr)

	var panicEntry *Panic
	for _, e := range multi.Body.Entries {
		if p, ok := e.Expr.(Panic); ok {
			panicEntry = &p
		}
	}
	require.NotNil(t, panicEntry, "expected a Panic entry in the folded Multiple")
	reasonExpr, _, ok := multi.Body.Lookup(panicEntry.Reason)
	require.True(t, ok)
	text, ok := reasonExpr.(Text)
	require.True(t, ok)
	assert.Equal(t, "division by zero", text.Value)
}

// TestConstantFoldEqualsSameOperand checks equals(x, x) folds to True
// without needing to know x's value (§4.4.1).
func TestConstantFoldEqualsSameOperand(t *testing.T) {
	body := &Body{}
	param := body.Push(1, Reference{Target: 99}) // stands in for an unresolved parameter
	fn := body.Push(2, Builtin{Name: "Equals"})
	call := body.Push(3, Call{Function: fn, Arguments: []Id{param, param}, Responsible: 3})

	gen := &IdGenerator{}
	require.True(t, constantFold(body, gen))
	expr, _, _ := body.Lookup(call)
	tag, ok := expr.(Tag)
	require.True(t, ok)
	assert.Equal(t, "True", tag.Symbol)
}

// TestReferenceFollowingChain checks a chain of References collapses to
// point directly at the ultimate target (§4.4.2).
func TestReferenceFollowingChain(t *testing.T) {
	body := &Body{}
	root := body.Push(1, Int{Value: big.NewInt(7)})
	mid := body.Push(2, Reference{Target: root})
	leaf := body.Push(3, Reference{Target: mid})

	require.True(t, followReferences(body))
	expr, _, _ := body.Lookup(leaf)
	ref, ok := expr.(Reference)
	require.True(t, ok)
	assert.Equal(t, root, ref.Target)
}

// TestCommonSubexpressionElimination checks two structurally identical
// calls collapse to one definition plus a reference (§4.4.4).
func TestCommonSubexpressionElimination(t *testing.T) {
	body := &Body{}
	a := body.Push(1, Int{Value: big.NewInt(1)})
	b := body.Push(2, Int{Value: big.NewInt(2)})
	fn := body.Push(3, Builtin{Name: "Add"})
	resp := body.Push(6, Reference{Target: 0}) // stands in for the caller's responsible parameter
	call1 := body.Push(4, Call{Function: fn, Arguments: []Id{a, b}, Responsible: resp})
	call2 := body.Push(5, Call{Function: fn, Arguments: []Id{a, b}, Responsible: resp})

	require.True(t, commonSubexpressionEliminate(body))
	expr, _, _ := body.Lookup(call2)
	ref, ok := expr.(Reference)
	require.True(t, ok)
	assert.Equal(t, call1, ref.Target)
}

// TestCommonSubexpressionEliminationMergesFunctionsWithReferences checks
// that two structurally identical Function literals merge even though
// their bodies contain a Reference (§4.4.4: "Functions are compared
// structurally including their bodies"). Before writeKey had a case for
// Reference, a nested Reference fell into the address-keyed default
// case, so this never merged.
func TestCommonSubexpressionEliminationMergesFunctionsWithReferences(t *testing.T) {
	body := &Body{}
	param := body.Push(1, Reference{Target: 0}) // stands in for a captured outer value

	fnBody := func() Body {
		b := &Body{}
		b.Push(10, Reference{Target: param})
		return *b
	}
	fn1 := body.Push(2, Function{Parameters: []Id{param}, ResponsibleParameter: param, Body: fnBody()})
	fn2 := body.Push(3, Function{Parameters: []Id{param}, ResponsibleParameter: param, Body: fnBody()})

	require.True(t, commonSubexpressionEliminate(body))
	expr, _, ok := body.Lookup(fn2)
	require.True(t, ok)
	ref, ok := expr.(Reference)
	require.True(t, ok, "expected the second Function to merge into a Reference, got %T", expr)
	assert.Equal(t, fn1, ref.Target)
}

// TestTreeShakingRemovesDeadCode checks an unused pure binding is removed
// while the return value and an effectful Panic survive (§4.4.5).
func TestTreeShakingRemovesDeadCode(t *testing.T) {
	body := &Body{}
	dead := body.Push(1, Int{Value: big.NewInt(999)})
	_ = dead
	reason := body.Push(2, Text{Value: "boom"})
	panicID := body.Push(3, Panic{Reason: reason, Responsible: 3})
	returned := body.Push(4, Int{Value: big.NewInt(1)})

	require.True(t, treeShake(body))
	_, _, deadFound := body.Lookup(dead)
	assert.False(t, deadFound)
	_, _, panicFound := body.Lookup(panicID)
	assert.True(t, panicFound)
	_, _, returnFound := body.Lookup(returned)
	assert.True(t, returnFound)
	assert.Equal(t, returned, body.ReturnValue())
}

// TestFlattenMultiples checks a Multiple's inner entries are spliced into
// the containing body in order (§4.4.6).
func TestFlattenMultiples(t *testing.T) {
	body := &Body{}
	inner := &Body{}
	innerVal := inner.Push(10, Int{Value: big.NewInt(5)})
	outerID := body.Push(1, Multiple{Body: Body{Entries: []Entry{{Id: innerVal, Expr: Int{Value: big.NewInt(5)}}}}})

	require.True(t, flattenMultiples(body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, innerVal, body.Entries[0].Id)
	expr, _, _ := body.Lookup(outerID)
	ref, ok := expr.(Reference)
	require.True(t, ok)
	assert.Equal(t, innerVal, ref.Target)
}

// TestInlineSplicesFunctionBody checks a call to a small, visible Function
// gets its body spliced in with parameters substituted (§4.4.3).
func TestInlineSplicesFunctionBody(t *testing.T) {
	body := &Body{}

	fnBody := Body{}
	param := Id(100)
	resp := Id(101)
	fnBody.Push(150, Reference{Target: param}) // trivial identity body: return the parameter

	arg := body.Push(1, Int{Value: big.NewInt(42)})
	fn := body.Push(2, Function{Parameters: []Id{param}, ResponsibleParameter: resp, Body: fnBody})
	call := body.Push(3, Call{Function: fn, Arguments: []Id{arg}, Responsible: 3})

	gen := &IdGenerator{next: 200}
	require.True(t, inline(body, gen))

	expr, _, ok := body.Lookup(call)
	require.True(t, ok)
	ref, ok := expr.(Reference)
	require.True(t, ok, "expected call site to become a Reference after inlining, got %T", expr)
	target, _, ok := body.Lookup(ref.Target)
	require.True(t, ok)
	finalRef, ok := target.(Reference)
	require.True(t, ok)
	assert.Equal(t, arg, finalRef.Target)
}
