// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// flattenMultiples implements §4.4.6: every Multiple(subBody) entry is
// replaced by moving subBody's entries into the containing body in
// place, retargeting the Multiple's own id to a Reference to the
// sub-body's return value. Returns whether any entry changed.
func flattenMultiples(body *Body) bool {
	changed := false
	for i := 0; i < len(body.Entries); i++ {
		m, ok := body.Entries[i].Expr.(Multiple)
		if !ok {
			continue
		}
		ownID := body.Entries[i].Id
		spliced := make([]Entry, 0, len(body.Entries)+len(m.Body.Entries))
		spliced = append(spliced, body.Entries[:i]...)
		spliced = append(spliced, m.Body.Entries...)
		spliced = append(spliced, Entry{Id: ownID, Expr: Reference{Target: m.Body.ReturnValue()}})
		spliced = append(spliced, body.Entries[i+1:]...)
		body.Entries = spliced
		changed = true
		i += len(m.Body.Entries)
	}
	return changed
}
