// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

import (
	"fmt"
	"strings"
)

// commonSubexpressionEliminate implements §4.4.4: two expressions with
// identical structural shape and equal (post-reference-following)
// operand ids are merged — the later one becomes a Reference to the
// earlier. Functions are compared structurally including their bodies.
// Returns whether any entry changed.
func commonSubexpressionEliminate(body *Body) bool {
	changed := false
	seen := map[string]Id{}
	for i, e := range body.Entries {
		if _, isRef := e.Expr.(Reference); isRef {
			continue // references are handled by followReferences, not CSE
		}
		key := structuralKey(body, e.Expr)
		if earlier, ok := seen[key]; ok && earlier != e.Id {
			body.Entries[i].Expr = Reference{Target: earlier}
			changed = true
			continue
		}
		seen[key] = e.Id
	}
	return changed
}

// structuralKey produces a canonical string for an expression's shape,
// using each operand's post-reference-following id so that two
// expressions built from differently-aliased but equal operands still
// compare equal.
func structuralKey(body *Body, e Expr) string {
	var b strings.Builder
	writeKey(&b, body, e)
	return b.String()
}

func writeKey(b *strings.Builder, body *Body, e Expr) {
	switch e := e.(type) {
	case Int:
		fmt.Fprintf(b, "Int(%s)", e.Value.String())
	case Text:
		fmt.Fprintf(b, "Text(%q)", e.Value)
	case Tag:
		if e.Value == nil {
			fmt.Fprintf(b, "Tag(%s)", e.Symbol)
		} else {
			fmt.Fprintf(b, "Tag(%s,%d)", e.Symbol, resolve(body, *e.Value))
		}
	case Builtin:
		fmt.Fprintf(b, "Builtin(%s)", e.Name)
	case List:
		b.WriteString("List(")
		for _, it := range e.Items {
			fmt.Fprintf(b, "%d,", resolve(body, it))
		}
		b.WriteString(")")
	case Struct:
		b.WriteString("Struct(")
		for _, entry := range e.Entries {
			fmt.Fprintf(b, "%d:%d,", resolve(body, entry.Key), resolve(body, entry.Value))
		}
		b.WriteString(")")
	case HirId:
		fmt.Fprintf(b, "HirId(%s)", e.Value.String())
	case Reference:
		fmt.Fprintf(b, "ref(%d)", e.Target)
	case Function:
		b.WriteString("Function(")
		for _, p := range e.Parameters {
			fmt.Fprintf(b, "%d,", p)
		}
		fmt.Fprintf(b, ";resp=%d;body=", e.ResponsibleParameter)
		for _, entry := range e.Body.Entries {
			fmt.Fprintf(b, "[%d=", entry.Id)
			writeKey(b, body, entry.Expr)
			b.WriteString("]")
		}
		b.WriteString(")")
	case Call:
		fmt.Fprintf(b, "Call(%d;", resolve(body, e.Function))
		for _, a := range e.Arguments {
			fmt.Fprintf(b, "%d,", resolve(body, a))
		}
		fmt.Fprintf(b, ";r=%d)", resolve(body, e.Responsible))
	default:
		// Side-effecting / non-pure-value forms (Panic, UseModule, Multiple,
		// Trace*) are never deduplicated — each retains its own identity
		// since merging them could reorder or drop observable effects.
		fmt.Fprintf(b, "unique(%p)", &e)
	}
}
