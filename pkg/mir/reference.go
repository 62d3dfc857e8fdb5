// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// followReferences implements §4.4.2: whenever Reference(a) is seen and a
// itself is Reference(b), retarget the outer reference to b. Returns
// whether any entry changed.
func followReferences(body *Body) bool {
	resolved := map[Id]Id{}
	for _, e := range body.Entries {
		if ref, ok := e.Expr.(Reference); ok {
			resolved[e.Id] = ref.Target
		}
	}
	final := func(id Id) Id {
		seen := map[Id]bool{}
		for {
			target, ok := resolved[id]
			if !ok || seen[id] {
				return id
			}
			seen[id] = true
			id = target
		}
	}

	changed := false
	for i, e := range body.Entries {
		ref, ok := e.Expr.(Reference)
		if !ok {
			continue
		}
		target := final(ref.Target)
		if target != ref.Target {
			body.Entries[i].Expr = Reference{Target: target}
			changed = true
		}
	}
	return changed
}

// resolve follows a chain of Reference entries in body starting at id and
// returns the id of the first non-Reference expression (or id itself if
// it is not bound to a Reference, or not found at all).
func resolve(body *Body, id Id) Id {
	seen := map[Id]bool{}
	for {
		expr, _, ok := body.Lookup(id)
		if !ok || seen[id] {
			return id
		}
		ref, ok := expr.(Reference)
		if !ok {
			return id
		}
		seen[id] = true
		id = ref.Target
	}
}

// resolveExpr is resolve followed by a Lookup, returning the ultimate
// expression and its id.
func resolveExpr(body *Body, id Id) (Expr, Id, bool) {
	target := resolve(body, id)
	expr, _, ok := body.Lookup(target)
	return expr, target, ok
}
