// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// treeShake implements §4.4.5: after folding, any expression not
// transitively reachable from the body's return value or from any
// remaining effectful expression is removed. Returns whether any entry
// was removed.
func treeShake(body *Body) bool {
	lookup := func(id Id) (Expr, bool) {
		e, _, ok := body.Lookup(id)
		return e, ok
	}

	reachable := map[Id]bool{}
	var queue []Id
	if rv := body.ReturnValue(); rv != 0 {
		queue = append(queue, rv)
	}
	for _, e := range body.Entries {
		if isEffectful(e.Expr, lookup) {
			queue = append(queue, e.Id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		expr, _, ok := body.Lookup(id)
		if !ok {
			continue
		}
		queue = append(queue, operands(expr)...)
	}

	before := len(body.Entries)
	body.RemoveWhere(func(id Id) bool { return reachable[id] })
	return len(body.Entries) != before
}
