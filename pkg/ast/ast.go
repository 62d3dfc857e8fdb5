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

// Package ast is the resolved, desugared abstract syntax tree (§3.4):
// pipes become calls, text interpolation becomes a sequence of parts,
// or-patterns and match-cases are explicit. Every node's Id is a local
// integer unique within the module whose package-level Lower call built
// it; the enclosing module identity is tracked by the caller (pkg/compiler),
// not carried on each node.
package ast

import (
	"math/big"

	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/srcpos"
)

// Id identifies an AST node within its module.
type Id int

// Expr is any AST expression node.
type Expr interface {
	ExprId() Id
	ExprSpan() srcpos.Span
	isExpr()
}

type exprBase struct {
	Id   Id
	Span srcpos.Span
}

func (e exprBase) ExprId() Id            { return e.Id }
func (e exprBase) ExprSpan() srcpos.Span { return e.Span }

// Int is an arbitrary-precision integer literal.
type Int struct {
	exprBase
	Value *big.Int
}

// TextPart is one piece of a Text node: either literal source text or an
// embedded expression produced by interpolation.
type TextPart struct {
	exprBase
	Literal *string // nil if this part is an interpolated expression
	Expr    Expr    // nil if this part is literal text
}

// Text is a sequence of literal/interpolated parts.
type Text struct {
	exprBase
	Parts []TextPart
}

// Identifier is a (not yet resolved) local name reference.
type Identifier struct {
	exprBase
	Name string
}

// Symbol is a tag literal, optionally carrying one payload expression
// (`Foo` vs `Foo value`).
type Symbol struct {
	exprBase
	Name  string
	Value Expr // nil if no payload
}

// List is a list literal.
type List struct {
	exprBase
	Items []Expr
}

// StructEntry is one key/value pair of a struct literal. Shorthand `[x]` is
// desugared to `[x: x]` before the Struct node is produced (§4.1). Key is
// nil only for a trailing bare entry that is not an identifier; that
// entry's Value is an ErrorExpr.
type StructEntry struct {
	Key   Expr // usually a Symbol or Identifier used as a key
	Value Expr
}

// Struct is a struct literal.
type Struct struct {
	exprBase
	Entries []StructEntry
}

// StructAccess is `receiver.key`.
type StructAccess struct {
	exprBase
	Receiver Expr
	Key      string
}

// Function is a function literal.
type Function struct {
	exprBase
	Parameters []Pattern
	Body       []Expr
	Fuzzable   bool
}

// Call is `receiver arguments...`, i.e. receiver applied to arguments.
// FromPipe records whether this call was desugared from a pipe (§4.1) —
// kept only for debug dumps / LSP hover text, never consulted by later
// stages.
type Call struct {
	exprBase
	Receiver  Expr
	Arguments []Expr
	FromPipe  bool
}

// AssignmentForm distinguishes `name = { params -> body }` (FunctionForm)
// from `pattern = value` (PatternForm).
type AssignmentForm interface{ isAssignmentForm() }

// FunctionForm is `name = { params -> body }`.
type FunctionForm struct {
	Name     string
	Function *Function
}

func (FunctionForm) isAssignmentForm() {}

// PatternForm is `pattern = value`.
type PatternForm struct {
	Pattern Pattern
	Value   Expr
}

func (PatternForm) isAssignmentForm() {}

// Assignment binds a name or destructures a pattern; it is itself an Expr
// so assignments can appear inline within a body sequence.
type Assignment struct {
	exprBase
	Public bool
	Form   AssignmentForm
}

// MatchCase is one `pattern -> body` arm of a Match.
type MatchCase struct {
	exprBase
	Pattern Pattern
	Body    []Expr
}

// Match is a `scrutinee %  case1  case2 ...` expression (desugared from
// whatever surface syntax the CST used; by the time it reaches AST, cases
// are explicit MatchCase nodes, §3.4).
type Match struct {
	exprBase
	Scrutinee Expr
	Cases     []MatchCase
}

// ErrorExpr carries one or more compile errors in place of a malformed
// expression, so later stages still receive a complete tree (§4.1, §7.1).
type ErrorExpr struct {
	exprBase
	Errors []CompileError
}

func (Int) isExpr()          {}
func (Text) isExpr()         {}
func (Identifier) isExpr()   {}
func (Symbol) isExpr()       {}
func (List) isExpr()         {}
func (Struct) isExpr()       {}
func (StructAccess) isExpr() {}
func (Function) isExpr()     {}
func (Call) isExpr()         {}
func (Assignment) isExpr()   {}
func (Match) isExpr()        {}
func (ErrorExpr) isExpr()    {}

// Pattern is any AST pattern node (used in function parameters and match
// cases).
type Pattern interface {
	PatternId() Id
	patternNode()
}

type patternBase struct{ Id Id }

func (p patternBase) PatternId() Id { return p.Id }
func (patternBase) patternNode()    {}

// PatIdentifier binds the matched value to Name.
type PatIdentifier struct {
	patternBase
	Name string
}

// PatWildcard matches anything and binds nothing (`_`).
type PatWildcard struct{ patternBase }

// PatInt matches an exact integer literal.
type PatInt struct {
	patternBase
	Value *big.Int
}

// PatText matches an exact text literal.
type PatText struct {
	patternBase
	Value string
}

// PatSymbol matches a tag by name, optionally destructuring its payload.
type PatSymbol struct {
	patternBase
	Name  string
	Value Pattern // nil if the tag has no payload to destructure
}

// PatList matches a list of exactly len(Items) elements.
type PatList struct {
	patternBase
	Items []Pattern
}

// PatStructEntry is one key/pattern pair of a PatStruct.
type PatStructEntry struct {
	Key     string
	Pattern Pattern
}

// PatStruct matches a struct that has (at least) the given keys.
type PatStruct struct {
	patternBase
	Entries []PatStructEntry
}

// PatOr matches if any alternative matches; every alternative must bind
// the same set of identifiers (validated at lowering time, §4.1).
type PatOr struct {
	patternBase
	Alternatives []Pattern
}

// Capture returns, in a stable order, every identifier this pattern binds.
// Used both by or-pattern validation and by HIR lowering of destructuring.
func Capture(p Pattern) []string {
	switch p := p.(type) {
	case PatIdentifier:
		return []string{p.Name}
	case PatWildcard, PatInt, PatText:
		return nil
	case PatSymbol:
		if p.Value != nil {
			return Capture(p.Value)
		}
		return nil
	case PatList:
		var names []string
		for _, item := range p.Items {
			names = append(names, Capture(item)...)
		}
		return names
	case PatStruct:
		var names []string
		for _, e := range p.Entries {
			names = append(names, Capture(e.Pattern)...)
		}
		return names
	case PatOr:
		if len(p.Alternatives) == 0 {
			return nil
		}
		return Capture(p.Alternatives[0])
	default:
		return nil
	}
}

// ErrorKind is the AST-level error taxonomy (§4.1, non-exhaustive).
type ErrorKind int

const (
	ExpectedNameOrPattern ErrorKind = iota
	ExpectedParameter
	FunctionMissingClosingBrace
	ListItemMissingComma
	ListMissingClosingParen
	ParenthesizedInPattern
	PipeInPattern
	StructKeyMissingColon
	StructValueMissingComma
	TextInterpolationMissingClosingBraces
	TextMissingClosingQuote
	UnexpectedPunctuation
	OrPatternMissingIdentifiers
)

// CompileError is one AST-level diagnostic. Identifier/Count/Captures are
// populated only for OrPatternMissingIdentifiers.
type CompileError struct {
	Kind       ErrorKind
	Span       srcpos.Span
	Message    string
	Identifier string
	Count      int
	Captures   []string
}

// CSTId records which CST node an AST node was built from, for the
// bidirectional map the language server needs for hover/goto-definition.
type CSTId = cst.Id

// IdMap is the bidirectional AST<->CST id map (§3.4).
type IdMap struct {
	astToCST map[Id]CSTId
	cstToAST map[CSTId][]Id
}

func newIDMap() *IdMap {
	return &IdMap{astToCST: make(map[Id]CSTId), cstToAST: make(map[CSTId][]Id)}
}

func (m *IdMap) record(astID Id, cstID CSTId) {
	m.astToCST[astID] = cstID
	m.cstToAST[cstID] = append(m.cstToAST[cstID], astID)
}

// CST returns the CST node id an AST node was lowered from.
func (m *IdMap) CST(astID Id) (CSTId, bool) {
	id, ok := m.astToCST[astID]
	return id, ok
}

// AST returns every AST node id lowered from a given CST node.
func (m *IdMap) AST(cstID CSTId) []Id {
	return m.cstToAST[cstID]
}
