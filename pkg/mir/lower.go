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

package mir

import "github.com/kraklabs/ember/pkg/hir"

// Lowerer lowers a HIR body into MIR (§4.3). One Lowerer lowers exactly
// one module's HIR; hirModule is that module's identity, used to decide
// only-current-module tracing (§4.3). Cross-module trace suppression for
// MIR bodies combined later (e.g. during inlining across modules at the
// compiler-orchestration layer) is out of scope for this single-module
// lowering pass.
type Lowerer struct {
	gen       IdGenerator
	hirModule string
	tracing   TracingConfig
	mapping   map[hir.Id]Id
	body      *Body
}

// Lower lowers hirBody (belonging to hirModule) into MIR under tracing,
// returning the resulting Body and its return-value id.
func Lower(hirBody *hir.Body, hirModule string, tracing TracingConfig) (Body, Id) {
	l := &Lowerer{hirModule: hirModule, tracing: tracing, mapping: map[hir.Id]Id{}, body: &Body{}}
	l.lowerBody(hirBody)
	return *l.body, l.body.ReturnValue()
}

func (l *Lowerer) lowerBody(hirBody *hir.Body) {
	for _, entry := range hirBody.Entries {
		id := l.lowerEntry(entry)
		l.mapping[entry.Id] = id
	}
}

func (l *Lowerer) resolve(id hir.Id) Id {
	if mirID, ok := l.mapping[id]; ok {
		return mirID
	}
	// Forward or outer-scope reference not yet lowered in this body
	// (e.g. a capture from an enclosing function) — reserve an id that a
	// later pass over the owning scope will bind; callers within a
	// single top-to-bottom lowerBody never hit this for same-body ids
	// since HIR bodies are already produced in dependency order (§3.5).
	fresh := l.gen.Fresh()
	l.mapping[id] = fresh
	return fresh
}

func (l *Lowerer) lowerEntry(entry hir.Entry) Id {
	id := l.gen.Fresh()
	switch e := entry.Expr.(type) {
	case hir.Int:
		l.body.Push(id, Int{Value: e.Value})
	case hir.TextLiteral:
		l.body.Push(id, Text{Value: e.Value})
	case hir.Symbol:
		var valueID *Id
		if e.Value != nil {
			v := l.resolve(*e.Value)
			valueID = &v
		}
		l.body.Push(id, Tag{Symbol: e.Name, Value: valueID})
	case hir.List:
		items := make([]Id, len(e.Items))
		for i, item := range e.Items {
			items[i] = l.resolve(item)
		}
		l.body.Push(id, List{Items: items})
	case hir.Struct:
		entries := make([]StructEntry, len(e.Entries))
		for i, entry := range e.Entries {
			entries[i] = StructEntry{Key: l.resolve(entry.Key), Value: l.resolve(entry.Value)}
		}
		l.body.Push(id, Struct{Entries: entries})
	case hir.Reference:
		l.body.Push(id, Reference{Target: l.resolve(e.Target)})
	case hir.Builtin:
		l.body.Push(id, Builtin{Name: e.Name})
	case hir.Lambda:
		l.body.Push(id, l.lowerLambda(entry.Id, e))
	case hir.Call:
		l.lowerCall(id, entry.Id, e)
	case hir.UseModule:
		l.body.Push(id, UseModule{CurrentModule: l.hirModule, RelativePath: l.resolve(e.RelativePath), Responsible: l.resolve(e.Responsible)})
	case hir.Panic:
		l.body.Push(id, Panic{Reason: l.resolve(e.Reason), Responsible: l.resolve(e.Responsible)})
	case hir.Error:
		l.body.Push(id, Panic{Reason: l.pushText(e.Message), Responsible: id})
	default:
		l.body.Push(id, Panic{Reason: l.pushText("malformed HIR node"), Responsible: id})
	}
	return id
}

func (l *Lowerer) pushText(s string) Id {
	id := l.gen.Fresh()
	l.body.Push(id, Text{Value: s})
	return id
}

func (l *Lowerer) lowerLambda(hirID hir.Id, lam hir.Lambda) Function {
	// mapping is shared with the enclosing Lowerer (maps are reference
	// types) so a closure's free-variable references resolve to the
	// same MIR id the enclosing body already assigned them, rather than
	// minting an unconnected duplicate (§3.6 invariant 2: captures
	// reference ids visible in the enclosing scope).
	inner := &Lowerer{hirModule: l.hirModule, tracing: l.tracing, mapping: l.mapping, body: &Body{}, gen: l.gen}
	params := make([]Id, len(lam.Parameters))
	for i, p := range lam.Parameters {
		pid := inner.gen.Fresh()
		inner.mapping[p] = pid
		params[i] = pid
	}
	respParam := inner.gen.Fresh()
	inner.mapping[lam.ResponsibleParameter] = respParam
	inner.lowerBody(&lam.Body)
	l.gen = inner.gen
	return Function{
		OriginalHirs:         []hir.Id{hirID},
		Parameters:           params,
		ResponsibleParameter: respParam,
		Body:                 *inner.body,
	}
}

func (l *Lowerer) lowerCall(id Id, hirID hir.Id, c hir.Call) {
	fnID := l.resolve(c.Function)
	args := make([]Id, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = l.resolve(a)
	}
	responsible := l.resolve(c.Responsible)

	if shouldTrace(l.tracing.Calls, l.hirModule, l.hirModule) {
		startID := l.gen.Fresh()
		l.body.Push(startID, TraceCallStarts{HirCall: hirID, Function: fnID, Arguments: args, Responsible: responsible})
	}
	l.body.Push(id, Call{Function: fnID, Arguments: args, Responsible: responsible})
	if shouldTrace(l.tracing.Calls, l.hirModule, l.hirModule) {
		endID := l.gen.Fresh()
		l.body.Push(endID, TraceCallEnds{ReturnValue: id})
	}
	if shouldTrace(l.tracing.EvaluatedExpressions, l.hirModule, l.hirModule) {
		evalID := l.gen.Fresh()
		l.body.Push(evalID, TraceExpressionEvaluated{HirExpression: hirID, Value: id})
	}
}
