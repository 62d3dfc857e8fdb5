// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

import "math/big"

// constantFold implements §4.4.1: calls to a visible Builtin whose
// arguments are sufficiently known are replaced by their compile-time
// result. Returns whether any entry changed.
func constantFold(body *Body, gen *IdGenerator) bool {
	changed := false
	for i, e := range body.Entries {
		call, ok := e.Expr.(Call)
		if !ok {
			continue
		}
		fnExpr, _, ok := resolveExpr(body, call.Function)
		if !ok {
			continue
		}
		builtin, ok := fnExpr.(Builtin)
		if !ok {
			continue
		}
		if newExpr, ok := foldBuiltin(body, builtin.Name, call.Arguments, call.Responsible, gen); ok {
			body.Entries[i].Expr = newExpr
			changed = true
		}
	}
	return changed
}

func foldBuiltin(body *Body, name string, args []Id, responsible Id, gen *IdGenerator) (Expr, bool) {
	// equals $x $x folds to True via structural identity of operand ids,
	// regardless of whether the value itself is statically known (§4.4.1).
	if name == "Equals" && len(args) == 2 && resolve(body, args[0]) == resolve(body, args[1]) {
		return Tag{Symbol: "True"}, true
	}

	switch name {
	case "Add", "Subtract", "Multiply":
		a, aOK := literalInt(body, args, 0)
		b, bOK := literalInt(body, args, 1)
		if !aOK || !bOK {
			return nil, false
		}
		result := new(big.Int)
		switch name {
		case "Add":
			result.Add(a, b)
		case "Subtract":
			result.Sub(a, b)
		case "Multiply":
			result.Mul(a, b)
		}
		return Int{Value: result}, true
	case "DivideTruncating":
		a, aOK := literalInt(body, args, 0)
		b, bOK := literalInt(body, args, 1)
		if !aOK || !bOK {
			return nil, false
		}
		if b.Sign() == 0 {
			// Known-zero divisor: compile-time panic (§4.4.1, mirrors
			// biDivideTruncating's runtime division-by-zero error).
			reasonID := gen.Fresh()
			inner := &Body{}
			inner.Push(reasonID, Text{Value: "division by zero"})
			panicID := gen.Fresh()
			inner.Push(panicID, Panic{Reason: reasonID, Responsible: responsible})
			return Multiple{Body: *inner}, true
		}
		return Int{Value: new(big.Int).Quo(a, b)}, true
	case "BitLength":
		a, ok := literalInt(body, args, 0)
		if !ok {
			return nil, false
		}
		return Int{Value: big.NewInt(int64(a.BitLen()))}, true
	case "TypeOf":
		if len(args) != 1 {
			return nil, false
		}
		if name, ok := staticTypeName(body, args[0]); ok {
			return Tag{Symbol: name}, true
		}
		return nil, false
	case "TextConcatenate":
		if len(args) != 2 {
			return nil, false
		}
		if a, ok := literalText(body, args[0]); ok && a == "" {
			return Reference{Target: args[1]}, true
		}
		if b, ok := literalText(body, args[1]); ok && b == "" {
			return Reference{Target: args[0]}, true
		}
		a, aOK := literalText(body, args[0])
		b, bOK := literalText(body, args[1])
		if aOK && bOK {
			return Text{Value: a + b}, true
		}
		return nil, false
	case "IfElse":
		if len(args) != 3 {
			return nil, false
		}
		condExpr, _, ok := resolveExpr(body, args[0])
		if !ok {
			return nil, false
		}
		tag, ok := condExpr.(Tag)
		if !ok || tag.Value != nil {
			return nil, false
		}
		var chosen Id
		switch tag.Symbol {
		case "True":
			chosen = args[1]
		case "False":
			chosen = args[2]
		default:
			return nil, false
		}
		inner := &Body{}
		runID := gen.Fresh()
		inner.Push(runID, Call{Function: chosen, Arguments: nil, Responsible: responsible})
		return Multiple{Body: *inner}, true
	case "StructGet":
		if len(args) != 2 {
			return nil, false
		}
		structExpr, _, ok := resolveExpr(body, args[0])
		if !ok {
			return nil, false
		}
		s, ok := structExpr.(Struct)
		if !ok {
			return nil, false
		}
		keyTarget := resolve(body, args[1])
		for _, entry := range s.Entries {
			if resolve(body, entry.Key) == keyTarget {
				return Reference{Target: entry.Value}, true
			}
		}
		// Constant-key structure, key missing: compile-time panic (§4.4.1).
		reasonID := gen.Fresh()
		inner := &Body{}
		inner.Push(reasonID, Text{Value: "struct has no such key"})
		panicID := gen.Fresh()
		inner.Push(panicID, Panic{Reason: reasonID, Responsible: responsible})
		return Multiple{Body: *inner}, true
	default:
		return nil, false
	}
}

func literalInt(body *Body, args []Id, idx int) (*big.Int, bool) {
	if idx >= len(args) {
		return nil, false
	}
	expr, _, ok := resolveExpr(body, args[idx])
	if !ok {
		return nil, false
	}
	i, ok := expr.(Int)
	if !ok {
		return nil, false
	}
	return i.Value, true
}

func literalText(body *Body, id Id) (string, bool) {
	expr, _, ok := resolveExpr(body, id)
	if !ok {
		return "", false
	}
	t, ok := expr.(Text)
	return t.Value, ok
}

// staticTypeName determines the dynamic type tag an expression would
// evaluate to, when statically determinable (§4.4.1): literals and known
// builtin call results.
func staticTypeName(body *Body, id Id) (string, bool) {
	expr, _, ok := resolveExpr(body, id)
	if !ok {
		return "", false
	}
	switch expr.(type) {
	case Int:
		return "Int", true
	case Text:
		return "Text", true
	case Tag:
		return "Tag", true
	case List:
		return "List", true
	case Struct:
		return "Struct", true
	case Function:
		return "Function", true
	case Builtin:
		return "Builtin", true
	case HirId:
		return "HirId", true
	default:
		return "", false
	}
}
