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

// Package srcpos provides byte-offset source positions and spans over a
// module's UTF-8 source, plus on-demand line/column computation.
package srcpos

import "sort"

// Offset is a byte offset within a module's source.
type Offset int

// Span is a half-open byte range [Start, End) within a module's source.
type Span struct {
	Start Offset
	End   Offset
}

// Contains reports whether o lies within the span (Start <= o < End).
// A zero-width span never contains anything.
func (s Span) Contains(o Offset) bool {
	return o >= s.Start && o < s.End
}

// Join returns the smallest span covering both s and other.
func (s Span) Join(other Span) Span {
	joined := s
	if other.Start < joined.Start {
		joined.Start = other.Start
	}
	if other.End > joined.End {
		joined.End = other.End
	}
	return joined
}

// Len returns the width of the span in bytes.
func (s Span) Len() int { return int(s.End - s.Start) }

// Position is a 1-based line and column, computed on demand from a Table.
type Position struct {
	Line   int
	Column int
}

// Table caches the byte offset of every line start in a source string,
// so that Offset -> Position lookups are O(log n) instead of re-scanning.
type Table struct {
	lineStarts []Offset
}

// NewTable builds a line-start table for source.
func NewTable(source string) *Table {
	starts := []Offset{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, Offset(i+1))
		}
	}
	return &Table{lineStarts: starts}
}

// Position returns the 1-based line/column for a byte offset.
func (t *Table) Position(o Offset) Position {
	// Find the last line start <= o.
	line := sort.Search(len(t.lineStarts), func(i int) bool {
		return t.lineStarts[i] > o
	}) - 1
	if line < 0 {
		line = 0
	}
	col := int(o-t.lineStarts[line]) + 1
	return Position{Line: line + 1, Column: col}
}
