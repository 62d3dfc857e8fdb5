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

package hir

import (
	"fmt"
	"math/big"

	"github.com/kraklabs/ember/pkg/ast"
)

// PlatformResponsible is the responsibility identity used for call sites
// that have no enclosing function (the module's top-level body), per
// §4.2 ("the enclosing function's responsible parameter, or a platform id
// at the top level").
var PlatformResponsible = Id{"platform"}

type scope struct {
	names  map[string]Id
	parent *scope
}

func newScope(parent *scope) *scope { return &scope{names: map[string]Id{}, parent: parent} }

func (s *scope) lookup(name string) (Id, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if id, ok := cur.names[name]; ok {
			return id, true
		}
	}
	return Id{}, false
}

func (s *scope) bind(name string, id Id) { s.names[name] = id }

// Lowerer lowers an AST body into HIR (§4.2).
type Lowerer struct {
	body    *Body
	scope   *scope
	counter int
	prefix  Id
}

// LowerModule lowers a module's top-level AST body into HIR, synthesizing
// the hidden `use` helper every module starts with (§4.2).
func LowerModule(topLevel []ast.Expr) *Body {
	l := &Lowerer{body: &Body{}, scope: newScope(nil), prefix: RootId()}
	l.synthesizeUse()
	for _, e := range topLevel {
		l.lowerStatement(e, PlatformResponsible)
	}
	return l.body
}

func (l *Lowerer) fresh(tag string) Id {
	l.counter++
	return l.prefix.Child(fmt.Sprintf("%s%d", tag, l.counter))
}

// synthesizeUse binds the name `use` at the top of the module body to a
// lambda that invokes the UseModule HIR primitive against the current
// module (§4.2).
func (l *Lowerer) synthesizeUse() {
	pathParam := l.fresh("use_path")
	responsibleParam := l.fresh("use_responsible")
	inner := &Body{}
	inner.Push(l.fresh("use_call"), UseModule{RelativePath: pathParam, Responsible: responsibleParam})
	id := l.body.Push(l.fresh("use"), Lambda{
		Parameters:           []Id{pathParam},
		ResponsibleParameter: responsibleParam,
		Body:                 *inner,
	})
	l.scope.bind("use", id)
}

// lowerStatement lowers one top-level-or-body-level AST expression,
// binding names into scope as a side effect when it is an Assignment.
func (l *Lowerer) lowerStatement(e ast.Expr, responsible Id) Id {
	if assign, ok := e.(ast.Assignment); ok {
		return l.lowerAssignment(assign, responsible)
	}
	return l.lowerExpr(e, responsible)
}

func (l *Lowerer) lowerAssignment(a ast.Assignment, responsible Id) Id {
	switch form := a.Form.(type) {
	case ast.FunctionForm:
		id := l.lowerFunction(*form.Function, responsible)
		l.scope.bind(form.Name, id)
		return id
	case ast.PatternForm:
		valueID := l.lowerExpr(form.Value, responsible)
		return l.lowerPatternBinding(form.Pattern, valueID, responsible)
	default:
		return l.body.Push(l.fresh("err"), Error{Message: "malformed assignment"})
	}
}

func (l *Lowerer) lowerFunction(fn ast.Function, responsible Id) Id {
	outer := l.scope
	outerBody, outerPrefix := l.body, l.prefix
	l.scope = newScope(outer)
	l.body = &Body{}
	l.prefix = l.fresh("fn")

	responsibleParam := l.fresh("responsible")
	var params []Id
	for i, p := range fn.Parameters {
		paramID := l.fresh(fmt.Sprintf("param%d", i))
		params = append(params, paramID)
		l.lowerPatternBinding(p, paramID, responsibleParam)
	}
	for _, stmt := range fn.Body {
		l.lowerStatement(stmt, responsibleParam)
	}
	lambdaBody := *l.body

	l.scope, l.body, l.prefix = outer, outerBody, outerPrefix
	return l.body.Push(l.fresh("lambda"), Lambda{Parameters: params, ResponsibleParameter: responsibleParam, Body: lambdaBody})
}

// lowerPatternBinding destructures pattern against an already-lowered
// value, emitting panicking-if-false needs() guards for every check and
// binding every capture into the current scope (§4.2).
func (l *Lowerer) lowerPatternBinding(p ast.Pattern, valueID Id, responsible Id) Id {
	switch p := p.(type) {
	case ast.PatWildcard:
		return valueID
	case ast.PatIdentifier:
		l.scope.bind(p.Name, valueID)
		return valueID
	case ast.PatInt:
		cond := l.pushCall("Equals", []Id{valueID, l.pushLiteralInt(p.Value)}, responsible)
		l.emitNeeds(cond, "expected int "+p.Value.String(), responsible)
		return valueID
	case ast.PatText:
		cond := l.pushCall("Equals", []Id{valueID, l.body.Push(l.fresh("lit"), TextLiteral{Value: p.Value})}, responsible)
		l.emitNeeds(cond, "expected text "+p.Value, responsible)
		return valueID
	case ast.PatSymbol:
		bare := l.body.Push(l.fresh("bare"), Symbol{Name: p.Name})
		stripped := l.pushCall("WithoutValue", []Id{valueID}, responsible)
		cond := l.pushCall("Equals", []Id{stripped, bare}, responsible)
		l.emitNeeds(cond, "expected tag "+p.Name, responsible)
		if p.Value != nil {
			has := l.pushCall("HasValue", []Id{valueID}, responsible)
			l.emitNeeds(has, "expected tag "+p.Name+" to carry a value", responsible)
			inner := l.pushCall("GetValue", []Id{valueID}, responsible)
			l.lowerPatternBinding(p.Value, inner, responsible)
		}
		return valueID
	case ast.PatList:
		lengthID := l.pushCall("ListLength", []Id{valueID}, responsible)
		cond := l.pushCall("Equals", []Id{lengthID, l.pushLiteralInt(big.NewInt(int64(len(p.Items))))}, responsible)
		l.emitNeeds(cond, "expected list of length", responsible)
		for i, item := range p.Items {
			elemID := l.pushCall("ListGet", []Id{valueID, l.pushLiteralInt(big.NewInt(int64(i)))}, responsible)
			l.lowerPatternBinding(item, elemID, responsible)
		}
		return valueID
	case ast.PatStruct:
		for _, entry := range p.Entries {
			keyID := l.body.Push(l.fresh("key"), Symbol{Name: entry.Key})
			has := l.pushCall("StructHasKey", []Id{valueID, keyID}, responsible)
			l.emitNeeds(has, "expected struct key "+entry.Key, responsible)
			fieldID := l.pushCall("StructGet", []Id{valueID, keyID}, responsible)
			l.lowerPatternBinding(entry.Pattern, fieldID, responsible)
		}
		return valueID
	case ast.PatOr:
		if len(p.Alternatives) == 0 {
			return valueID
		}
		// Captures were validated identical across alternatives at AST
		// lowering (§4.1); binding the first alternative's captures is
		// sufficient since later stages treat them as interchangeable
		// names, each alternative's guards still run in full.
		return l.lowerPatternBinding(p.Alternatives[0], valueID, responsible)
	default:
		return valueID
	}
}

func (l *Lowerer) pushLiteralInt(v *big.Int) Id {
	return l.body.Push(l.fresh("int"), Int{Value: v})
}

func (l *Lowerer) pushCall(builtin string, args []Id, responsible Id) Id {
	fnID := l.body.Push(l.fresh("builtin_"+builtin), Builtin{Name: builtin})
	return l.body.Push(l.fresh("call_"+builtin), Call{Function: fnID, Arguments: args, Responsible: responsible})
}

func (l *Lowerer) emitNeeds(condID Id, reason string, responsible Id) Id {
	reasonID := l.body.Push(l.fresh("reason"), TextLiteral{Value: reason})
	return l.pushCall("Needs", []Id{condID, reasonID}, responsible)
}

func (l *Lowerer) lowerExpr(e ast.Expr, responsible Id) Id {
	switch e := e.(type) {
	case ast.Int:
		return l.pushLiteralInt(e.Value)
	case ast.Text:
		return l.lowerText(e, responsible)
	case ast.Identifier:
		if id, ok := l.scope.lookup(e.Name); ok {
			return l.body.Push(l.fresh("ref"), Reference{Target: id})
		}
		return l.body.Push(l.fresh("err"), Error{Message: "unknown-reference: " + e.Name})
	case ast.Symbol:
		if e.Value == nil {
			return l.body.Push(l.fresh("sym"), Symbol{Name: e.Name})
		}
		valueID := l.lowerExpr(e.Value, responsible)
		return l.body.Push(l.fresh("sym"), Symbol{Name: e.Name, Value: &valueID})
	case ast.List:
		var items []Id
		for _, item := range e.Items {
			items = append(items, l.lowerExpr(item, responsible))
		}
		return l.body.Push(l.fresh("list"), List{Items: items})
	case ast.Struct:
		var entries []StructEntry
		for _, entry := range e.Entries {
			keyID := l.lowerExpr(entry.Key, responsible)
			valueID := l.lowerExpr(entry.Value, responsible)
			entries = append(entries, StructEntry{Key: keyID, Value: valueID})
		}
		return l.body.Push(l.fresh("struct"), Struct{Entries: entries})
	case ast.StructAccess:
		structID := l.lowerExpr(e.Receiver, responsible)
		keyID := l.body.Push(l.fresh("key"), Symbol{Name: e.Key})
		return l.pushCall("StructGet", []Id{structID, keyID}, responsible)
	case ast.Function:
		return l.lowerFunction(e, responsible)
	case ast.Call:
		fnID := l.lowerExpr(e.Receiver, responsible)
		var args []Id
		for _, a := range e.Arguments {
			args = append(args, l.lowerExpr(a, responsible))
		}
		return l.body.Push(l.fresh("call"), Call{Function: fnID, Arguments: args, Responsible: responsible})
	case ast.Assignment:
		return l.lowerAssignment(e, responsible)
	case ast.Match:
		return l.lowerMatch(e, responsible)
	case ast.ErrorExpr:
		msg := "compile error"
		if len(e.Errors) > 0 {
			msg = e.Errors[0].Message
		}
		return l.body.Push(l.fresh("err"), Error{Message: msg})
	default:
		return l.body.Push(l.fresh("err"), Error{Message: "unsupported AST node"})
	}
}

// lowerText lowers interpolated text into a left fold of
// TextConcatenate calls over literal and interpolated parts (§4.2's
// generalization of §4.1's interpolation desugaring into HIR terms).
func (l *Lowerer) lowerText(t ast.Text, responsible Id) Id {
	var acc Id
	first := true
	for _, part := range t.Parts {
		var partID Id
		if part.Literal != nil {
			partID = l.body.Push(l.fresh("text"), TextLiteral{Value: *part.Literal})
		} else {
			value := l.lowerExpr(part.Expr, responsible)
			partID = l.pushCall("ToDebugText", []Id{value}, responsible)
		}
		if first {
			acc = partID
			first = false
			continue
		}
		acc = l.pushCall("TextConcatenate", []Id{acc, partID}, responsible)
	}
	if first {
		return l.body.Push(l.fresh("text"), TextLiteral{Value: ""})
	}
	return acc
}

// lowerMatch desugars a match expression into a chain of builtin
// if-else calls over lazily-evaluated per-case thunks, falling through to
// a Panic if no case matches (§4.2/§4.3's "chained conditional
// expressions").
func (l *Lowerer) lowerMatch(m ast.Match, responsible Id) Id {
	scrutineeID := l.lowerExpr(m.Scrutinee, responsible)
	return l.lowerCases(m.Cases, 0, scrutineeID, responsible)
}

func (l *Lowerer) lowerCases(cases []ast.MatchCase, idx int, scrutineeID Id, responsible Id) Id {
	if idx >= len(cases) {
		reasonID := l.body.Push(l.fresh("reason"), TextLiteral{Value: "no case matched"})
		return l.body.Push(l.fresh("panic"), Panic{Reason: reasonID, Responsible: responsible})
	}
	condID := l.buildCondition(cases[idx].Pattern, scrutineeID, responsible)
	thenID := l.lowerThunk(func() {
		l.lowerPatternBinding(cases[idx].Pattern, scrutineeID, responsible)
		for _, stmt := range cases[idx].Body {
			l.lowerStatement(stmt, responsible)
		}
	})
	elseID := l.lowerThunk(func() {
		l.lowerCases(cases, idx+1, scrutineeID, responsible)
	})
	return l.pushCall("IfElse", []Id{condID, thenID, elseID}, responsible)
}

// lowerThunk builds a zero-argument lambda whose body is produced by fill,
// sharing the enclosing scope (the thunk may reference outer bindings —
// they become captures at HIR->MIR time, §4.3).
func (l *Lowerer) lowerThunk(fill func()) Id {
	outerBody, outerPrefix, outerScope := l.body, l.prefix, l.scope
	l.body = &Body{}
	l.prefix = l.fresh("thunk")
	l.scope = newScope(outerScope)
	responsibleParam := l.fresh("thunk_responsible")
	fill()
	thunkBody := *l.body
	l.body, l.prefix, l.scope = outerBody, outerPrefix, outerScope
	return l.body.Push(l.fresh("thunk_lambda"), Lambda{Parameters: nil, ResponsibleParameter: responsibleParam, Body: thunkBody})
}

// buildCondition builds a non-panicking boolean test for whether value
// matches pattern, short-circuiting with nested if-else so that later
// checks are only evaluated once earlier ones succeed.
func (l *Lowerer) buildCondition(p ast.Pattern, valueID Id, responsible Id) Id {
	switch p := p.(type) {
	case ast.PatWildcard, ast.PatIdentifier:
		return l.body.Push(l.fresh("true"), Symbol{Name: "True"})
	case ast.PatInt:
		return l.pushCall("Equals", []Id{valueID, l.pushLiteralInt(p.Value)}, responsible)
	case ast.PatText:
		return l.pushCall("Equals", []Id{valueID, l.body.Push(l.fresh("lit"), TextLiteral{Value: p.Value})}, responsible)
	case ast.PatSymbol:
		bare := l.body.Push(l.fresh("bare"), Symbol{Name: p.Name})
		stripped := l.pushCall("WithoutValue", []Id{valueID}, responsible)
		nameCond := l.pushCall("Equals", []Id{stripped, bare}, responsible)
		if p.Value == nil {
			return nameCond
		}
		return l.and(nameCond, responsible, func() Id {
			hasCond := l.pushCall("HasValue", []Id{valueID}, responsible)
			return l.and(hasCond, responsible, func() Id {
				inner := l.pushCall("GetValue", []Id{valueID}, responsible)
				return l.buildCondition(p.Value, inner, responsible)
			})
		})
	case ast.PatList:
		lengthID := l.pushCall("ListLength", []Id{valueID}, responsible)
		lengthCond := l.pushCall("Equals", []Id{lengthID, l.pushLiteralInt(big.NewInt(int64(len(p.Items))))}, responsible)
		return l.andAll(lengthCond, responsible, func(i int) (Id, bool) {
			if i >= len(p.Items) {
				return Id{}, false
			}
			elemID := l.pushCall("ListGet", []Id{valueID, l.pushLiteralInt(big.NewInt(int64(i)))}, responsible)
			return l.buildCondition(p.Items[i], elemID, responsible), true
		})
	case ast.PatStruct:
		return l.andAll(l.body.Push(l.fresh("true"), Symbol{Name: "True"}), responsible, func(i int) (Id, bool) {
			if i >= len(p.Entries) {
				return Id{}, false
			}
			entry := p.Entries[i]
			keyID := l.body.Push(l.fresh("key"), Symbol{Name: entry.Key})
			hasCond := l.pushCall("StructHasKey", []Id{valueID, keyID}, responsible)
			return l.and(hasCond, responsible, func() Id {
				fieldID := l.pushCall("StructGet", []Id{valueID, keyID}, responsible)
				return l.buildCondition(entry.Pattern, fieldID, responsible)
			}), true
		})
	case ast.PatOr:
		if len(p.Alternatives) == 0 {
			return l.body.Push(l.fresh("false"), Symbol{Name: "False"})
		}
		cond := l.buildCondition(p.Alternatives[0], valueID, responsible)
		for _, alt := range p.Alternatives[1:] {
			altCond := l.buildCondition(alt, valueID, responsible)
			thenID := l.lowerThunk(func() { l.body.Push(l.fresh("true"), Symbol{Name: "True"}) })
			elseThenID := l.lowerThunk(func() { l.body.Push(l.fresh("ref"), Reference{Target: altCond}) })
			cond = l.pushCall("IfElse", []Id{cond, thenID, elseThenID}, responsible)
		}
		return cond
	default:
		return l.body.Push(l.fresh("false"), Symbol{Name: "False"})
	}
}

// and short-circuits: if lhs is False, the result is False without
// evaluating rhs; otherwise the result is rhs().
func (l *Lowerer) and(lhsID Id, responsible Id, rhs func() Id) Id {
	thenID := l.lowerThunk(func() { rhs() })
	elseID := l.lowerThunk(func() { l.body.Push(l.fresh("false"), Symbol{Name: "False"}) })
	return l.pushCall("IfElse", []Id{lhsID, thenID, elseID}, responsible)
}

// andAll folds a sequence of lazily-produced conditions (indexed from 0
// until next returns ok=false) onto an initial condition with and.
func (l *Lowerer) andAll(initial Id, responsible Id, next func(i int) (Id, bool)) Id {
	acc := initial
	for i := 0; ; i++ {
		cond, ok := next(i)
		if !ok {
			break
		}
		prev := acc
		acc = l.and(prev, responsible, func() Id { return cond })
	}
	return acc
}
