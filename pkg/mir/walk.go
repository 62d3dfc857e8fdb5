// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// operands returns every id an expression directly depends on, used by
// tree shaking (§4.4.5) and free-variable analysis (FreeVariables).
func operands(e Expr) []Id {
	switch e := e.(type) {
	case Int, Text, Builtin, HirId:
		return nil
	case Tag:
		if e.Value != nil {
			return []Id{*e.Value}
		}
		return nil
	case List:
		return append([]Id(nil), e.Items...)
	case Struct:
		ids := make([]Id, 0, len(e.Entries)*2)
		for _, entry := range e.Entries {
			ids = append(ids, entry.Key, entry.Value)
		}
		return ids
	case Reference:
		return []Id{e.Target}
	case Function:
		return operandsOfBody(e.Body)
	case Call:
		ids := append([]Id{e.Function}, e.Arguments...)
		return append(ids, e.Responsible)
	case UseModule:
		return []Id{e.RelativePath, e.Responsible}
	case Panic:
		return []Id{e.Reason, e.Responsible}
	case Multiple:
		return operandsOfBody(e.Body)
	case TraceCallStarts:
		ids := append([]Id{e.Function}, e.Arguments...)
		return append(ids, e.Responsible)
	case TraceCallEnds:
		return []Id{e.ReturnValue}
	case TraceExpressionEvaluated:
		return []Id{e.Value}
	case TraceFoundFuzzableFunction:
		return []Id{e.Function}
	default:
		return nil
	}
}

// FreeVariables returns the ids a Function's body references that are
// bound outside of it — the set the byte-code compiler must capture when
// emitting CreateFunction (§4.5, §4.6).
func FreeVariables(b Body) []Id { return operandsOfBody(b) }

// operandsOfBody returns the ids a Body's entries reference that are not
// themselves defined within the body (its free variables) — used to know
// what a Function or Multiple captures from its enclosing scope.
func operandsOfBody(b Body) []Id {
	defined := map[Id]bool{}
	for _, e := range b.Entries {
		defined[e.Id] = true
	}
	var free []Id
	for _, e := range b.Entries {
		for _, op := range operands(e.Expr) {
			if !defined[op] {
				free = append(free, op)
			}
		}
	}
	return free
}

// isEffectful reports whether an expression must never be removed by tree
// shaking even if its id is otherwise unreferenced (§4.4.5): panics and
// trace instructions always; calls only when the callee cannot be proven
// pure (conservatively: any call whose function is not a known-pure
// builtin is treated as effectful).
func isEffectful(e Expr, lookup func(Id) (Expr, bool)) bool {
	switch e := e.(type) {
	case Panic, TraceCallStarts, TraceCallEnds, TraceExpressionEvaluated, TraceFoundFuzzableFunction:
		return true
	case Call:
		fn, ok := lookup(e.Function)
		if !ok {
			return true
		}
		b, ok := fn.(Builtin)
		if !ok {
			return true
		}
		return !purebuiltins[b.Name]
	case UseModule:
		return true
	default:
		return false
	}
}

// purebuiltins enumerates builtins with no externally-visible side effect
// (safe to fold or drop, §4.4.1/§4.4.5). `print` is the one builtin in
// §4.9 with a host-visible effect and is deliberately excluded.
var purebuiltins = map[string]bool{
	"Equals": true, "GetArgumentCount": true,
	"Add": true, "Subtract": true, "Multiply": true, "DivideTruncating": true,
	"Modulo": true, "Remainder": true, "CompareTo": true, "BitLength": true,
	"BitwiseAnd": true, "BitwiseOr": true, "BitwiseXor": true,
	"ShiftLeft": true, "ShiftRight": true, "ParseInt": true,
	"TextConcatenate": true, "TextContains": true, "TextStartsWith": true,
	"TextEndsWith": true, "TextCharacters": true, "TextFromUtf8": true,
	"TextGetRange": true, "TextIsEmpty": true, "TextLength": true,
	"TextTrimStart": true, "TextTrimEnd": true,
	"ListFilled": true, "ListGet": true, "ListInsert": true, "ListLength": true,
	"ListRemoveAt": true, "ListReplace": true,
	"StructGet": true, "StructGetKeys": true, "StructHasKey": true,
	"GetValue": true, "HasValue": true, "WithValue": true, "WithoutValue": true,
	"ToDebugText": true, "TypeOf": true,
	"Needs":       false, // exists to panic; its result is usually unused
	"IfElse":      false, // calls arbitrary user code; not provably pure
	"FunctionRun": false, // calls arbitrary user code; not provably pure
	"Print":       false,
}
