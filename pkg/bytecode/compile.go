// Copyright 2026 The Ember Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bytecode

import (
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/hir"
	"github.com/kraklabs/ember/pkg/mir"
)

// Compile lowers an optimized MIR body into a Program (§4.5): a module is
// compiled as a zero-argument, zero-capture function whose entry point
// becomes ModuleFunctionIP.
func Compile(moduleBody mir.Body, responsibleModule hir.Id) *Program {
	c := &Compiler{
		prog:               &Program{ResponsibleModuleHirId: responsibleModule},
		constants:          heap.NewConstant(),
		constantIndex:      map[mir.Id]int{},
		textConstCache:     map[string]int{},
		builtinConstCache:  map[string]int{},
	}
	c.prog.ModuleFunctionIP = c.compileBody(nil, moduleBody)
	return c.prog
}

// Compiler holds the state threaded through one Compile call: the program
// being built, the shared constant sub-heap (§3.7, §3.8), the MIR-id to
// constant-index mapping, and interning caches so repeated literals (the
// current module's name, a builtin reference) share one constant slot.
type Compiler struct {
	prog              *Program
	constants         *heap.Heap
	constantIndex     map[mir.Id]int
	textConstCache    map[string]int
	builtinConstCache map[string]int
	synthCounter      mir.Id
}

func (c *Compiler) addConstant(v heap.Value) int {
	c.prog.ConstantValues = append(c.prog.ConstantValues, v)
	return len(c.prog.ConstantValues) - 1
}

func (c *Compiler) internText(s string) int {
	if idx, ok := c.textConstCache[s]; ok {
		return idx
	}
	idx := c.addConstant(c.constants.NewText(s))
	c.textConstCache[s] = idx
	return idx
}

func (c *Compiler) internBuiltin(name string) int {
	if idx, ok := c.builtinConstCache[name]; ok {
		return idx
	}
	idx := c.addConstant(c.constants.NewBuiltin(name))
	c.builtinConstCache[name] = idx
	return idx
}

// syntheticId mints an id disjoint from any real MIR id (which are always
// >= 1, §3.6 invariant 3), used to hand a compiler-materialized constant
// (e.g. a use-module's CurrentModule string) through the same
// constantIndex-lookup path as an ordinary MIR id.
func (c *Compiler) syntheticId() mir.Id {
	c.synthCounter--
	return c.synthCounter
}

func (c *Compiler) constantValue(id mir.Id) (heap.Value, bool) {
	idx, ok := c.constantIndex[id]
	if !ok {
		return heap.Value{}, false
	}
	return c.prog.ConstantValues[idx].(heap.Value), true
}

// tryFoldConstant registers entry.Id as a compile-time constant and returns
// true when every leaf value it depends on is already known — the
// data-only counterpart of the optimizer's constant folding (§4.4.1), this
// time choosing whether to materialize into the constant heap rather than
// computing a replacement expression.
func (c *Compiler) tryFoldConstant(id mir.Id, e mir.Expr) bool {
	switch e := e.(type) {
	case mir.Int:
		c.constantIndex[id] = c.addConstant(c.constants.NewBigInt(e.Value))
		return true
	case mir.Text:
		c.constantIndex[id] = c.internText(e.Value)
		return true
	case mir.Builtin:
		c.constantIndex[id] = c.internBuiltin(e.Name)
		return true
	case mir.HirId:
		c.constantIndex[id] = c.addConstant(c.constants.NewHirId(e.Value))
		return true
	case mir.Reference:
		if idx, ok := c.constantIndex[e.Target]; ok {
			c.constantIndex[id] = idx
			return true
		}
		return false
	case mir.Tag:
		if e.Value == nil {
			c.constantIndex[id] = c.addConstant(c.constants.NewTag(e.Symbol, nil))
			return true
		}
		payload, ok := c.constantValue(*e.Value)
		if !ok {
			return false
		}
		c.constantIndex[id] = c.addConstant(c.constants.NewTag(e.Symbol, &payload))
		return true
	case mir.List:
		items := make([]heap.Value, len(e.Items))
		for i, it := range e.Items {
			v, ok := c.constantValue(it)
			if !ok {
				return false
			}
			items[i] = v
		}
		c.constantIndex[id] = c.addConstant(c.constants.NewList(items))
		return true
	case mir.Struct:
		entries := make([]heap.StructEntry, len(e.Entries))
		for i, en := range e.Entries {
			kv, ok := c.constantValue(en.Key)
			if !ok {
				return false
			}
			vv, ok := c.constantValue(en.Value)
			if !ok {
				return false
			}
			entries[i] = heap.StructEntry{Key: kv, Value: vv}
		}
		c.constantIndex[id] = c.addConstant(c.constants.NewStruct(entries))
		return true
	default:
		return false
	}
}

// offsetOf finds id's distance from the top of the simulated compile-time
// data stack (§4.5 "a per-body stack ... tracks which MIR id currently
// occupies each data-stack slot").
func (c *Compiler) offsetOf(stack []mir.Id, id mir.Id) (int, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == id {
			return len(stack) - 1 - i, true
		}
	}
	return 0, false
}

// pushOperand emits whichever instruction makes id's value the new top of
// the data stack: PushConstant for a compile-time-known value,
// PushFromStack (which dups on every use, §3.8/§4.5) otherwise.
func (c *Compiler) pushOperand(stack *[]mir.Id, id mir.Id) int {
	if idx, ok := c.constantIndex[id]; ok {
		ip := c.prog.Emit(PushConstant{ConstantIndex: idx})
		*stack = append(*stack, id)
		return ip
	}
	off, ok := c.offsetOf(*stack, id)
	if !ok {
		// Defensive: a well-formed, already-optimized MIR body never
		// references an id before it is bound or captured.
		off = 0
	}
	ip := c.prog.Emit(PushFromStack{Offset: off})
	*stack = append(*stack, id)
	return ip
}

// compileBody compiles one Function's (or the module's) body into its own
// contiguous-enough instruction range and returns its entry point.
// initial is the set of ids already resident on the data stack when this
// body starts running: captures, then parameters, then the responsible
// parameter, in that order (§4.6 "Call ... pushes captures, arguments,
// responsible onto the data stack; jumps to the function body").
func (c *Compiler) compileBody(initial []mir.Id, body mir.Body) int {
	stack := append([]mir.Id(nil), initial...)
	entryIP := -1
	mark := func(ip int) {
		if entryIP == -1 {
			entryIP = ip
		}
	}

	terminated := false
	for i, entry := range body.Entries {
		isLast := i == len(body.Entries)-1
		ip, produced, term := c.compileEntry(entry, &stack, isLast)
		mark(ip)
		if produced {
			stack = append(stack, entry.Id)
		}
		if term {
			terminated = true
			break
		}
	}

	// A tail call or an unconditional panic transfers control away for
	// good; this body's own Return never runs (§4.5).
	if terminated {
		if entryIP == -1 {
			entryIP = 0
		}
		return entryIP
	}

	// A body whose return value folded entirely to a constant (or whose
	// final entry is a Reference aliasing one) never put it on the
	// runtime data stack; materialize it now so Return always finds the
	// return value on top (§4.5).
	if len(body.Entries) > 0 {
		retID := body.Entries[len(body.Entries)-1].Id
		if _, onStack := c.offsetOf(stack, retID); !onStack {
			if idx, ok := c.constantIndex[retID]; ok {
				ip := c.prog.Emit(PushConstant{ConstantIndex: idx})
				mark(ip)
				stack = append(stack, retID)
			}
		}
	}

	if len(stack) > 1 {
		ip := c.prog.Emit(PopMultipleBelowTop{N: len(stack) - 1})
		mark(ip)
	}
	retIP := c.prog.Emit(Return{})
	mark(retIP)
	return entryIP
}

// compileEntry compiles one Body entry, returning the index of (one of)
// the instructions it emitted, whether it left a new value on top of the
// data stack for entry.Id, and whether it permanently transferred control
// away (a tail call or panic, after which this body's trailer must not
// run).
func (c *Compiler) compileEntry(entry mir.Entry, stack *[]mir.Id, isLast bool) (ip int, produced bool, terminated bool) {
	switch e := entry.Expr.(type) {
	case mir.Reference:
		if idx, ok := c.constantIndex[e.Target]; ok {
			c.constantIndex[entry.Id] = idx
			return -1, false, false
		}
		off, ok := c.offsetOf(*stack, e.Target)
		if !ok {
			off = 0
		}
		ip = c.prog.Emit(PushFromStack{Offset: off})
		return ip, true, false

	case mir.Function:
		return c.emitFunction(e, stack), true, false

	case mir.Call:
		return c.emitCall(e, stack, isLast), true, isLast

	case mir.UseModule:
		return c.emitUseModule(e, stack), true, false

	case mir.Panic:
		ip = c.emitPanic(e, stack)
		return ip, false, true

	case mir.Multiple:
		return c.emitMultiple(entry.Id, e, stack)

	case mir.TraceCallStarts:
		ip = c.emitTraceCallStarts(e, stack)
		c.prog.AddOrigin(ip, e.HirCall)
		return ip, false, false

	case mir.TraceCallEnds:
		return c.emitTraceCallEnds(e, stack), false, false

	case mir.TraceExpressionEvaluated:
		ip = c.emitTraceExpressionEvaluated(e, stack)
		c.prog.AddOrigin(ip, e.HirExpression)
		return ip, false, false

	case mir.TraceFoundFuzzableFunction:
		ip = c.emitTraceFoundFuzzableFunction(e, stack)
		c.prog.AddOrigin(ip, e.HirDefinition)
		return ip, false, false

	default:
		// Int, Text, Builtin, HirId, Tag, List, Struct: either fold to a
		// constant (no instruction, no stack slot — later references fetch
		// it by PushConstant) or construct it at runtime.
		if c.tryFoldConstant(entry.Id, e) {
			return -1, false, false
		}
		ip = c.emitConstruct(e, stack)
		return ip, true, false
	}
}

// emitConstruct runtime-builds a Tag/List/Struct whose value could not be
// folded to a constant because at least one operand is only known at
// runtime.
func (c *Compiler) emitConstruct(e mir.Expr, stack *[]mir.Id) int {
	switch e := e.(type) {
	case mir.Tag:
		// A payload-less Tag always folds to a constant in tryFoldConstant;
		// reaching here means Value is non-nil.
		c.pushOperand(stack, *e.Value)
		return c.prog.Emit(CreateTag{Symbol: e.Symbol})
	case mir.List:
		for _, item := range e.Items {
			c.pushOperand(stack, item)
		}
		return c.prog.Emit(CreateList{N: len(e.Items)})
	case mir.Struct:
		for _, entry := range e.Entries {
			c.pushOperand(stack, entry.Key)
			c.pushOperand(stack, entry.Value)
		}
		return c.prog.Emit(CreateStruct{N: len(e.Entries)})
	default:
		// Int/Text/Builtin/HirId always fold; this path is unreachable for
		// a well-formed body.
		return c.prog.Emit(PushConstant{ConstantIndex: 0})
	}
}

// emitFunction compiles fn.Body as its own instruction range (capturing
// only the subset of its free variables that are not already
// globally-addressable constants), then emits the CreateFunction that
// closes over it at the call site (§4.5, §4.6).
func (c *Compiler) emitFunction(fn mir.Function, stack *[]mir.Id) int {
	free := mir.FreeVariables(fn.Body)
	var captureIds []mir.Id
	var captureOffsets []int
	for _, fv := range free {
		if _, isConst := c.constantIndex[fv]; isConst {
			continue
		}
		off, ok := c.offsetOf(*stack, fv)
		if !ok {
			continue
		}
		captureIds = append(captureIds, fv)
		captureOffsets = append(captureOffsets, off)
	}

	innerInitial := make([]mir.Id, 0, len(captureIds)+len(fn.Parameters)+1)
	innerInitial = append(innerInitial, captureIds...)
	innerInitial = append(innerInitial, fn.Parameters...)
	innerInitial = append(innerInitial, fn.ResponsibleParameter)
	bodyIP := c.compileBody(innerInitial, fn.Body)

	ip := c.prog.Emit(CreateFunction{
		CapturedOffsets: captureOffsets,
		NumArgs:         len(fn.Parameters),
		BodyIP:          bodyIP,
	})
	for _, hirID := range fn.OriginalHirs {
		c.prog.AddOrigin(ip, hirID)
	}
	return ip
}

// emitCall pushes the callee, arguments, and responsible id, then emits
// Call or, when this is the body's final entry, TailCall (§4.5 "the final
// non-tail call in a body becomes TailCall").
func (c *Compiler) emitCall(call mir.Call, stack *[]mir.Id, tail bool) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, call.Function)
	for _, a := range call.Arguments {
		c.pushOperand(stack, a)
	}
	c.pushOperand(stack, call.Responsible)
	if tail {
		return c.prog.Emit(TailCall{NumLocalsToPop: localsBefore, NumArgs: len(call.Arguments)})
	}
	ip := c.prog.Emit(Call{NumArgs: len(call.Arguments)})
	// Call pops callee+args+responsible and pushes one result; the caller
	// (compileBody) appends entry.Id as that result's new stack slot.
	*stack = (*stack)[:localsBefore]
	return ip
}

// emitUseModule compiles a use-module resolution (§6.2) as an ordinary
// call to the builtin use-module, since HIR already models `use` that way
// (§4.2) and the instruction set has no dedicated UseModule opcode.
func (c *Compiler) emitUseModule(u mir.UseModule, stack *[]mir.Id) int {
	builtinID := c.syntheticId()
	c.constantIndex[builtinID] = c.internBuiltin("UseModule")
	moduleID := c.syntheticId()
	c.constantIndex[moduleID] = c.internText(u.CurrentModule)

	synthetic := mir.Call{
		Function:    builtinID,
		Arguments:   []mir.Id{moduleID, u.RelativePath},
		Responsible: u.Responsible,
	}
	return c.emitCall(synthetic, stack, false)
}

// emitPanic pushes reason and responsible, then emits Panic. Control never
// returns to this body afterward.
func (c *Compiler) emitPanic(p mir.Panic, stack *[]mir.Id) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, p.Reason)
	c.pushOperand(stack, p.Responsible)
	ip := c.prog.Emit(Panic{})
	*stack = (*stack)[:localsBefore]
	return ip
}

// emitMultiple inlines a surviving Multiple's sub-body directly into the
// containing body. The optimizer's flattening pass (§4.4.6) runs to a
// fixpoint before compilation, so this path is defensive rather than
// normally exercised.
func (c *Compiler) emitMultiple(id mir.Id, m mir.Multiple, stack *[]mir.Id) (ip int, produced bool, terminated bool) {
	lastIP := -1
	for i, inner := range m.Body.Entries {
		innerIsLast := i == len(m.Body.Entries)-1
		innerIP, innerProduced, innerTerminated := c.compileEntry(inner, stack, false)
		if innerIP >= 0 {
			lastIP = innerIP
		}
		if innerProduced {
			*stack = append(*stack, inner.Id)
		}
		if innerTerminated {
			return lastIP, false, true
		}
		if innerIsLast && innerProduced {
			// Alias the Multiple's own id to its sub-body's return value,
			// which is now the top of the stack.
			(*stack)[len(*stack)-1] = id
		}
	}
	return lastIP, lastIP >= 0, false
}

func (c *Compiler) emitTraceCallStarts(t mir.TraceCallStarts, stack *[]mir.Id) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, t.Function)
	for _, a := range t.Arguments {
		c.pushOperand(stack, a)
	}
	c.pushOperand(stack, t.Responsible)
	ip := c.prog.Emit(TraceCallStarts{NumArgs: len(t.Arguments)})
	*stack = (*stack)[:localsBefore]
	return ip
}

func (c *Compiler) emitTraceCallEnds(t mir.TraceCallEnds, stack *[]mir.Id) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, t.ReturnValue)
	ip := c.prog.Emit(TraceCallEnds{HasReturnValue: true})
	*stack = (*stack)[:localsBefore]
	return ip
}

func (c *Compiler) emitTraceExpressionEvaluated(t mir.TraceExpressionEvaluated, stack *[]mir.Id) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, t.Value)
	ip := c.prog.Emit(TraceExpressionEvaluated{})
	*stack = (*stack)[:localsBefore]
	return ip
}

func (c *Compiler) emitTraceFoundFuzzableFunction(t mir.TraceFoundFuzzableFunction, stack *[]mir.Id) int {
	localsBefore := len(*stack)
	c.pushOperand(stack, t.Function)
	ip := c.prog.Emit(TraceFoundFuzzableFunction{})
	*stack = (*stack)[:localsBefore]
	return ip
}
