// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bytecode

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ember/pkg/hir"
	"github.com/kraklabs/ember/pkg/mir"
)

// TestCompileConstantReturn checks a body whose return value is a bare
// literal folds entirely to the constant heap: one PushConstant, then
// Return, with no PopMultipleBelowTop (§4.5).
func TestCompileConstantReturn(t *testing.T) {
	var body mir.Body
	body.Push(1, mir.Int{Value: big.NewInt(42)})

	prog := Compile(body, hir.Id{})

	require.Len(t, prog.Instructions, 2)
	push, ok := prog.Instructions[prog.ModuleFunctionIP].(PushConstant)
	require.True(t, ok)
	v, ok := prog.ConstantValues[push.ConstantIndex].(interface{ Int() (*big.Int, bool) })
	require.True(t, ok)
	n, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, "42", n.String())
	_, ok = prog.Instructions[prog.ModuleFunctionIP+1].(Return)
	assert.True(t, ok)
}

// TestCompileFinalCallBecomesTailCall checks the final call in a body
// compiles to TailCall rather than Call (§4.5).
func TestCompileFinalCallBecomesTailCall(t *testing.T) {
	var body mir.Body
	body.Push(1, mir.Builtin{Name: "Add"})
	body.Push(2, mir.Int{Value: big.NewInt(1)})
	body.Push(3, mir.Int{Value: big.NewInt(2)})
	body.Push(4, mir.HirId{Value: hir.Id{}})
	body.Push(5, mir.Call{Function: 1, Arguments: []mir.Id{2, 3}, Responsible: 4})

	prog := Compile(body, hir.Id{})

	last := prog.Instructions[len(prog.Instructions)-1]
	tc, ok := last.(TailCall)
	require.True(t, ok, "final call in a body must compile to TailCall")
	assert.Equal(t, 2, tc.NumArgs)
	assert.Equal(t, 0, tc.NumLocalsToPop)
}

// TestCompileNonFinalCallStaysCall checks a call that is not in tail
// position compiles to an ordinary Call.
func TestCompileNonFinalCallStaysCall(t *testing.T) {
	var body mir.Body
	body.Push(1, mir.Builtin{Name: "Add"})
	body.Push(2, mir.Int{Value: big.NewInt(1)})
	body.Push(3, mir.Int{Value: big.NewInt(2)})
	body.Push(4, mir.HirId{Value: hir.Id{}})
	body.Push(5, mir.Call{Function: 1, Arguments: []mir.Id{2, 3}, Responsible: 4})
	body.Push(6, mir.Reference{Target: 5})

	prog := Compile(body, hir.Id{})

	var sawCall bool
	for _, instr := range prog.Instructions {
		if _, ok := instr.(Call); ok {
			sawCall = true
		}
		if _, ok := instr.(TailCall); ok {
			t.Fatal("a non-final call must not compile to TailCall")
		}
	}
	assert.True(t, sawCall)
}

// TestCompileFunctionCapturesFreeVariable checks a nested Function's free
// variable is captured from its enclosing body's current stack offset
// (§4.5, §4.6).
func TestCompileFunctionCapturesFreeVariable(t *testing.T) {
	var body mir.Body
	body.Push(10, mir.HirId{Value: hir.Id{}})       // responsible for the call below
	body.Push(11, mir.Builtin{Name: "Foo"})         // callee
	body.Push(12, mir.Call{Function: 11, Responsible: 10}) // runtime value: lands on the stack

	var fnBody mir.Body
	fnBody.Push(13, mir.Reference{Target: 12}) // closes over id 12
	body.Push(15, mir.Function{
		Parameters:           nil,
		ResponsibleParameter: 14,
		Body:                 fnBody,
	})

	prog := Compile(body, hir.Id{})

	var createFn *CreateFunction
	for i := range prog.Instructions {
		if cf, ok := prog.Instructions[i].(CreateFunction); ok {
			createFn = &cf
		}
	}
	require.NotNil(t, createFn)
	require.Len(t, createFn.CapturedOffsets, 1)
	assert.Equal(t, 0, createFn.CapturedOffsets[0], "id 12 is on top of the stack when the Function is compiled")
	assert.Equal(t, 0, createFn.NumArgs)
}

// TestCompileListConstructsAtRuntimeWhenNotFullyConstant checks a List
// with one non-constant item emits CreateList rather than folding.
func TestCompileListConstructsAtRuntimeWhenNotFullyConstant(t *testing.T) {
	var body mir.Body
	body.Push(10, mir.HirId{Value: hir.Id{}})
	body.Push(11, mir.Builtin{Name: "Foo"})
	body.Push(12, mir.Call{Function: 11, Responsible: 10})
	body.Push(13, mir.Int{Value: big.NewInt(1)})
	body.Push(14, mir.List{Items: []mir.Id{12, 13}})

	prog := Compile(body, hir.Id{})

	var sawCreateList bool
	for _, instr := range prog.Instructions {
		if cl, ok := instr.(CreateList); ok {
			sawCreateList = true
			assert.Equal(t, 2, cl.N)
		}
	}
	assert.True(t, sawCreateList)
}

// TestCompileUseModuleBecomesCallToBuiltin checks use-module resolution
// compiles as an ordinary call rather than a dedicated instruction, since
// §6.3's instruction set has none (§4.2, §6.2).
func TestCompileUseModuleBecomesCallToBuiltin(t *testing.T) {
	var body mir.Body
	body.Push(10, mir.HirId{Value: hir.Id{}})
	body.Push(11, mir.Text{Value: "./sibling"})
	body.Push(12, mir.UseModule{CurrentModule: "main", RelativePath: 11, Responsible: 10})

	prog := Compile(body, hir.Id{})

	var sawCall bool
	for _, instr := range prog.Instructions {
		if c, ok := instr.(Call); ok {
			sawCall = true
			assert.Equal(t, 2, c.NumArgs)
		}
		if _, ok := instr.(TailCall); ok {
			sawCall = true
		}
	}
	assert.True(t, sawCall)
}
