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

// Package symbols interns tag symbol names (e.g. True, False, Ok, Error)
// and assigns each a small, stable integer ID, shared across a compiled
// program and its constant heap.
package symbols

import "sync"

// ID is a small integer identifying an interned symbol name.
type ID int32

// Default symbols every program's constant sub-heap interns up front, so
// that builtins can refer to them by a fixed ID without a lookup.
const (
	True ID = iota
	False
	Ok
	Error
	Nothing
	Less
	Equal
	Greater
	numDefaults
)

var defaultNames = [numDefaults]string{
	True:    "True",
	False:   "False",
	Ok:      "Ok",
	Error:   "Error",
	Nothing: "Nothing",
	Less:    "Less",
	Equal:   "Equal",
	Greater: "Greater",
}

// Table is a bidirectional, thread-safe symbol-name interner.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]ID
	byID    []string
	nextID  ID
}

// NewTable builds a Table pre-populated with the default symbols, so every
// program's IDs for True/False/Ok/Error/etc. agree without coordination.
func NewTable() *Table {
	t := &Table{
		byName: make(map[string]ID, numDefaults),
		byID:   make([]string, numDefaults),
	}
	for id, name := range defaultNames {
		t.byName[name] = ID(id)
		t.byID[id] = name
	}
	t.nextID = numDefaults
	return t
}

// Intern returns the ID for name, assigning a fresh one if name has not
// been seen before.
func (t *Table) Intern(name string) ID {
	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.byName[name] = id
	t.byID = append(t.byID, name)
	return id
}

// Name returns the interned name for id. Panics if id was never issued by
// this table (a corrupted-bytecode condition per spec §7, fatal).
func (t *Table) Name(id ID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byID[id]
}

// Lookup returns the ID for name without interning it, reporting whether
// name has been seen.
func (t *Table) Lookup(name string) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}
