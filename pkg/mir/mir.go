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

// Package mir is the mid-level IR (§3.6): an SSA-style, explicitly-scoped
// representation with monotonically-assigned integer ids, subject to an
// optimizer fixpoint (§4.4) before being compiled to byte code (§4.5).
package mir

import (
	"math/big"

	"github.com/kraklabs/ember/pkg/hir"
)

// Id is a MIR id: a small integer, unique across the whole MIR of a
// module (§3.6 invariant 3).
type Id int

// Expr is any MIR expression.
type Expr interface{ isMIRExpr() }

// Int is an arbitrary-precision integer literal.
type Int struct{ Value *big.Int }

// Text is a literal string.
type Text struct{ Value string }

// Tag is a symbolic discriminator, optionally carrying a payload id.
type Tag struct {
	Symbol string
	Value  *Id
}

// Builtin references a builtin function by name (§4.9).
type Builtin struct{ Name string }

// List references element ids, in order.
type List struct{ Items []Id }

// StructEntry is one (key-id, value-id) pair.
type StructEntry struct{ Key, Value Id }

// Struct references its entries by id.
type Struct struct{ Entries []StructEntry }

// Reference is a use of a previously defined id.
type Reference struct{ Target Id }

// HirId carries a HIR id for blame tracking, materializable as a runtime
// HirId heap value (§3.8).
type HirId struct{ Value hir.Id }

// Function is a function literal. OriginalHirs is the set of HIR ids this
// MIR function was derived from (grows across inlining, §4.4.3).
type Function struct {
	OriginalHirs        []hir.Id
	Parameters          []Id
	ResponsibleParameter Id
	Body                Body
}

// Call invokes Function with Arguments, blamed on Responsible.
type Call struct {
	Function    Id
	Arguments   []Id
	Responsible Id
}

// UseModule resolves RelativePath against CurrentModule (§6.2).
type UseModule struct {
	CurrentModule string
	RelativePath  Id
	Responsible   Id
}

// Panic unconditionally panics with Reason, blamed on Responsible.
type Panic struct {
	Reason      Id
	Responsible Id
}

// Multiple temporarily splices a sub-body into the optimizer's working
// set; flattening (§4.4.6) replaces it with a Reference to the sub-body's
// return value and moves its entries into the containing body.
type Multiple struct{ Body Body }

// TraceCallStarts records entry into a call, for tracer consumption.
type TraceCallStarts struct {
	HirCall     hir.Id
	Function    Id
	Arguments   []Id
	Responsible Id
}

// TraceCallEnds records a call's return value.
type TraceCallEnds struct{ ReturnValue Id }

// TraceExpressionEvaluated records one HIR expression's evaluated value.
type TraceExpressionEvaluated struct {
	HirExpression hir.Id
	Value         Id
}

// TraceFoundFuzzableFunction records a fuzzable function definition
// encountered during compilation.
type TraceFoundFuzzableFunction struct {
	HirDefinition hir.Id
	Function      Id
}

func (Int) isMIRExpr()                      {}
func (Text) isMIRExpr()                     {}
func (Tag) isMIRExpr()                      {}
func (Builtin) isMIRExpr()                  {}
func (List) isMIRExpr()                     {}
func (Struct) isMIRExpr()                   {}
func (Reference) isMIRExpr()                {}
func (HirId) isMIRExpr()                    {}
func (Function) isMIRExpr()                 {}
func (Call) isMIRExpr()                     {}
func (UseModule) isMIRExpr()                {}
func (Panic) isMIRExpr()                    {}
func (Multiple) isMIRExpr()                 {}
func (TraceCallStarts) isMIRExpr()          {}
func (TraceCallEnds) isMIRExpr()            {}
func (TraceExpressionEvaluated) isMIRExpr() {}
func (TraceFoundFuzzableFunction) isMIRExpr() {}

// Entry is one (id, expression) pair of a Body, in definition order.
type Entry struct {
	Id   Id
	Expr Expr
}

// Body is an ordered sequence of bindings (§3.6).
type Body struct {
	Entries []Entry
}

// Push appends a new binding and returns its id.
func (b *Body) Push(id Id, expr Expr) Id {
	b.Entries = append(b.Entries, Entry{Id: id, Expr: expr})
	return id
}

// ReturnValue is the id of the body's last entry, or the zero Id for an
// empty body.
func (b *Body) ReturnValue() Id {
	if len(b.Entries) == 0 {
		return 0
	}
	return b.Entries[len(b.Entries)-1].Id
}

// Lookup finds the expression bound to id, and its index, within this body.
func (b *Body) Lookup(id Id) (Expr, int, bool) {
	for i, e := range b.Entries {
		if e.Id == id {
			return e.Expr, i, true
		}
	}
	return nil, -1, false
}

// Replace overwrites the expression bound to id in place.
func (b *Body) Replace(id Id, expr Expr) {
	for i := range b.Entries {
		if b.Entries[i].Id == id {
			b.Entries[i].Expr = expr
			return
		}
	}
}

// RemoveWhere deletes every entry whose id satisfies keep == false.
func (b *Body) RemoveWhere(keep func(Id) bool) {
	filtered := b.Entries[:0]
	for _, e := range b.Entries {
		if keep(e.Id) {
			filtered = append(filtered, e)
		}
	}
	b.Entries = filtered
}

// IdGenerator hands out fresh, module-unique MIR ids (§3.6 invariant 3).
type IdGenerator struct{ next Id }

// Fresh returns the next unused id.
func (g *IdGenerator) Fresh() Id {
	g.next++
	return g.next
}

// Seed advances g so the next Fresh() id is guaranteed past highest,
// letting a generator created after lowering continue numbering without
// colliding with ids the lowering pass already handed out.
func (g *IdGenerator) Seed(highest Id) {
	if highest > g.next {
		g.next = highest
	}
}

// TriState is an {off, only-current-module, all} tracing toggle (§4.3).
type TriState int

const (
	TraceOff TriState = iota
	TraceOnlyCurrentModule
	TraceAll
)

// TracingConfig controls which trace instructions HIR->MIR lowering
// emits (§4.3), and doubles as half of the compiler's memoization key
// (§9 design notes).
type TracingConfig struct {
	RegisterFuzzables   TriState
	Calls               TriState
	EvaluatedExpressions TriState
}

// shouldTrace reports whether a trace instruction should be emitted for a
// HIR id belonging to hirModule, given the current compiled module.
func shouldTrace(mode TriState, hirModule, currentModule string) bool {
	switch mode {
	case TraceOff:
		return false
	case TraceOnlyCurrentModule:
		return hirModule == currentModule
	case TraceAll:
		return true
	default:
		return false
	}
}
