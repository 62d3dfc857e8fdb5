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

// Package hir is the high-level IR (§3.5): only identifiers remain as
// binding sites, pattern matching has been lowered into explicit
// conditional destructuring, and every function carries an implicit
// "responsible" parameter standing for the caller's blame identity.
package hir

import "math/big"

// Id is a HIR id: a module-relative path of string segments, joined with
// "/" for a comparable representation (§3.5 — "(module, vector of path
// segments)"; the module itself is tracked by the caller, as with AST
// ids, see pkg/ast).
type Id struct {
	path string
}

// RootId is the id of a module's top-level body.
func RootId() Id { return Id{"root"} }

// Child derives a new id by appending segment to id's path.
func (id Id) Child(segment string) Id {
	if id.path == "" {
		return Id{segment}
	}
	return Id{id.path + "/" + segment}
}

func (id Id) String() string { return id.path }

// Expr is any HIR expression.
type Expr interface{ isHIRExpr() }

// Int is an arbitrary-precision integer literal.
type Int struct{ Value *big.Int }

// TextLiteral is a literal (non-interpolated) piece of text. Interpolated
// text is lowered to a chain of Call(Builtin(TextConcatenate)) expressions
// by the AST->HIR pass, so Expr itself only ever needs a literal form.
type TextLiteral struct{ Value string }

// Symbol is a tag, optionally carrying one payload reference.
type Symbol struct {
	Name  string
	Value *Id // nil if no payload
}

// List references element ids, in order.
type List struct{ Items []Id }

// StructEntry is one key/value pair, referenced by id.
type StructEntry struct{ Key, Value Id }

// Struct references its entries' ids.
type Struct struct{ Entries []StructEntry }

// Reference is a use of a previously bound id (an identifier lookup that
// resolved successfully, §4.2).
type Reference struct{ Target Id }

// Builtin references a builtin function by its enum value (§4.9), used
// both for direct builtin calls and for the callee of generated
// needs/equals guards.
type Builtin struct{ Name string }

// Lambda is a function literal. ResponsibleParameter is the implicit
// extra parameter every HIR function receives (§3.5, §4.2).
type Lambda struct {
	Parameters           []Id
	ResponsibleParameter Id
	Body                 Body
}

// Call invokes Function with Arguments, threading Responsible as the
// blame identity for this call site (§4.2, §4.3).
type Call struct {
	Function    Id
	Arguments   []Id
	Responsible Id
}

// UseModule resolves relativePath against the current module and returns
// its exports (code module) or bytes (asset module), per §6.2.
type UseModule struct {
	RelativePath Id
	Responsible  Id
}

// Panic unconditionally panics with Reason, blamed on Responsible.
type Panic struct {
	Reason      Id
	Responsible Id
}

// Error stands in for a HIR-level malformation (e.g. an unresolved
// reference), so later stages still receive a complete body (§4.2, §7.1).
type Error struct{ Message string }

func (Int) isHIRExpr()         {}
func (TextLiteral) isHIRExpr() {}
func (Symbol) isHIRExpr()      {}
func (List) isHIRExpr()        {}
func (Struct) isHIRExpr()      {}
func (Reference) isHIRExpr()   {}
func (Builtin) isHIRExpr()     {}
func (Lambda) isHIRExpr()      {}
func (Call) isHIRExpr()        {}
func (UseModule) isHIRExpr()   {}
func (Panic) isHIRExpr()       {}
func (Error) isHIRExpr()       {}

// Entry is one (id, expression) pair of a Body, in definition order.
type Entry struct {
	Id   Id
	Expr Expr
}

// Body is an ordered sequence of bindings; its return value is the id of
// its last entry (§3.5).
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
		return Id{}
	}
	return b.Entries[len(b.Entries)-1].Id
}

// Lookup finds the expression bound to id within this body.
func (b *Body) Lookup(id Id) (Expr, bool) {
	for _, e := range b.Entries {
		if e.Id == id {
			return e.Expr, true
		}
	}
	return nil, false
}
