// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// inlineBodySizeLimit bounds which function bodies get inlined, a
// correctness-preserving heuristic (§4.4.3 fixes only correctness, not
// which calls get inlined) chosen to keep the optimizer's output
// comparable in size to the un-inlined program.
const inlineBodySizeLimit = 24

// inline implements §4.4.3: a call to a visible Function literal is
// replaced by an alpha-renamed copy of its body, spliced in place, with
// parameters substituted by the call's arguments and the responsible
// parameter substituted by the call's responsible id. Returns whether any
// entry changed.
func inline(body *Body, gen *IdGenerator) bool {
	changed := false
	for i := 0; i < len(body.Entries); i++ {
		call, ok := body.Entries[i].Expr.(Call)
		if !ok {
			continue
		}
		fnExpr, _, ok := resolveExpr(body, call.Function)
		if !ok {
			continue
		}
		fn, ok := fnExpr.(Function)
		if !ok {
			continue
		}
		if len(fn.Body.Entries) == 0 || len(fn.Body.Entries) > inlineBodySizeLimit {
			continue
		}
		if len(fn.Parameters) != len(call.Arguments) {
			continue
		}

		substitution := map[Id]Id{fn.ResponsibleParameter: call.Responsible}
		for pi, param := range fn.Parameters {
			substitution[param] = call.Arguments[pi]
		}
		renamed := alphaRename(fn.Body, substitution, gen)

		callID := body.Entries[i].Id
		spliced := make([]Entry, 0, len(renamed.Entries)+len(body.Entries))
		spliced = append(spliced, body.Entries[:i]...)
		spliced = append(spliced, renamed.Entries...)
		spliced = append(spliced, Entry{Id: callID, Expr: Reference{Target: renamed.ReturnValue()}})
		spliced = append(spliced, body.Entries[i+1:]...)
		body.Entries = spliced
		changed = true
		// Skip past the spliced region: the body length changed and
		// indices shifted. Calls inside the spliced entries are reached on
		// the next optimizer iteration.
		i += len(renamed.Entries)
	}
	return changed
}

// alphaRename copies body with every id replaced by a fresh one (except
// ids already present in substitution, which are replaced by their
// mapped target instead), preserving structure.
func alphaRename(body Body, substitution map[Id]Id, gen *IdGenerator) Body {
	rename := map[Id]Id{}
	for k, v := range substitution {
		rename[k] = v
	}
	for _, e := range body.Entries {
		if _, already := rename[e.Id]; !already {
			rename[e.Id] = gen.Fresh()
		}
	}
	lookup := func(id Id) Id {
		if r, ok := rename[id]; ok {
			return r
		}
		return id
	}

	out := Body{}
	for _, e := range body.Entries {
		if _, substituted := substitution[e.Id]; substituted {
			continue
		}
		out.Entries = append(out.Entries, Entry{Id: lookup(e.Id), Expr: renameExpr(e.Expr, lookup)})
	}
	return out
}

func renameExpr(e Expr, f func(Id) Id) Expr {
	switch e := e.(type) {
	case Int, Text, Builtin, HirId:
		return e
	case Tag:
		if e.Value == nil {
			return e
		}
		v := f(*e.Value)
		return Tag{Symbol: e.Symbol, Value: &v}
	case List:
		items := make([]Id, len(e.Items))
		for i, it := range e.Items {
			items[i] = f(it)
		}
		return List{Items: items}
	case Struct:
		entries := make([]StructEntry, len(e.Entries))
		for i, entry := range e.Entries {
			entries[i] = StructEntry{Key: f(entry.Key), Value: f(entry.Value)}
		}
		return Struct{Entries: entries}
	case Reference:
		return Reference{Target: f(e.Target)}
	case Function:
		return Function{
			OriginalHirs:         e.OriginalHirs,
			Parameters:           mapIds(e.Parameters, f),
			ResponsibleParameter: f(e.ResponsibleParameter),
			Body:                 renameBody(e.Body, f),
		}
	case Call:
		return Call{Function: f(e.Function), Arguments: mapIds(e.Arguments, f), Responsible: f(e.Responsible)}
	case UseModule:
		return UseModule{CurrentModule: e.CurrentModule, RelativePath: f(e.RelativePath), Responsible: f(e.Responsible)}
	case Panic:
		return Panic{Reason: f(e.Reason), Responsible: f(e.Responsible)}
	case Multiple:
		return Multiple{Body: renameBody(e.Body, f)}
	case TraceCallStarts:
		return TraceCallStarts{HirCall: e.HirCall, Function: f(e.Function), Arguments: mapIds(e.Arguments, f), Responsible: f(e.Responsible)}
	case TraceCallEnds:
		return TraceCallEnds{ReturnValue: f(e.ReturnValue)}
	case TraceExpressionEvaluated:
		return TraceExpressionEvaluated{HirExpression: e.HirExpression, Value: f(e.Value)}
	case TraceFoundFuzzableFunction:
		return TraceFoundFuzzableFunction{HirDefinition: e.HirDefinition, Function: f(e.Function)}
	default:
		return e
	}
}

// renameBody renames a nested Function/Multiple body using an outer
// rename function for any free variable it references, but leaves its own
// internally-defined ids untouched (they are not in scope outside it, so
// no outer caller can ever reference them — alpha-renaming them too would
// only be needed if this body were itself being spliced, which inline
// handles via a fresh top-level call to alphaRename).
func renameBody(b Body, f func(Id) Id) Body {
	out := Body{}
	for _, e := range b.Entries {
		out.Entries = append(out.Entries, Entry{Id: e.Id, Expr: renameExpr(e.Expr, f)})
	}
	return out
}

func mapIds(ids []Id, f func(Id) Id) []Id {
	out := make([]Id, len(ids))
	for i, id := range ids {
		out[i] = f(id)
	}
	return out
}
