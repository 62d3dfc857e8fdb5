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

// Package cst implements the concrete syntax tree (§3.3): a loss-less tree
// whose leaves concatenate back to the exact source bytes. The tree's
// Node shape (Kind, Children, byte span) mirrors the node-walking surface
// of github.com/smacker/go-tree-sitter (Child/StartByte/EndByte), since
// this spec places the actual lexer/parser producing the CST out of
// scope (§1) — only the query surface over an already-built tree matters
// here.
package cst

import (
	"sort"
	"strings"

	"github.com/kraklabs/ember/pkg/srcpos"
)

// Id identifies a node within one module's CST.
type Id int

// Kind is the closed sum of CST node variants (§3.3).
type Kind int

const (
	KindEquals Kind = iota
	KindComma
	KindColon
	KindBar
	KindLParen
	KindRParen
	KindLBracket
	KindRBracket
	KindLBrace
	KindRBrace
	KindArrow
	KindQuote
	KindPercent
	KindOctothorpe
	KindWhitespace
	KindNewline
	KindComment // owns its octothorpe plus trailing text
	KindTrailingWhitespace // binds whitespace to a child
	KindIdentifier
	KindSymbol
	KindInt // optional radix prefix, see Node.Text
	KindTextOpeningQuote
	KindTextClosingQuote
	KindTextLiteralPart
	KindTextInterpolationOpen  // "%("
	KindTextInterpolationExpr // the parenthesized expression CST inside an interpolation
	KindTextInterpolationClose
	KindText // composite: quotes + literal/interpolation parts, in source order
	KindPipe
	KindParenthesized
	KindCall
	KindList
	KindStruct
	KindStructAccess
	KindMatch
	KindMatchCase
	KindOrPattern
	KindFunction
	KindAssignment
	KindError // unparsable input; Node.Text carries the raw text, Node.Reason the cause
)

// Node is one element of the CST. Leaf nodes (punctuation, identifiers,
// comments, ...) carry their literal Text; composite nodes carry ordered
// Children whose spans exactly partition the parent's span.
type Node struct {
	Id       Id
	Span     srcpos.Span
	Kind     Kind
	Text     string // leaf token text, or raw unparsable text for KindError
	Reason   string // populated only for KindError
	Children []*Node
}

// Leaves returns every leaf descendant of n (including n itself if it is
// a leaf), in source order. Concatenating each leaf's Text reconstructs
// the exact source span n covers — the CST round-trip invariant (§8).
func (n *Node) Leaves() []*Node {
	if len(n.Children) == 0 {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// SourceText reconstructs the source text covered by n by
// concatenating its leaves' Text in visit order.
func SourceText(n *Node) string {
	var b strings.Builder
	for _, leaf := range n.Leaves() {
		b.WriteString(leaf.Text)
	}
	return b.String()
}

// Tree is a parsed CST plus the indices needed for O(log n) lookups.
type Tree struct {
	Root   *Node
	Source string
	byID   map[Id]*Node
}

// NewTree indexes root (and every descendant) by Id for Find, and assumes
// children are stored in ascending, non-overlapping span order for
// FindByOffset's binary search to be valid.
func NewTree(source string, root *Node) *Tree {
	t := &Tree{Root: root, Source: source, byID: make(map[Id]*Node)}
	t.index(root)
	return t
}

func (t *Tree) index(n *Node) {
	t.byID[n.Id] = n
	for _, c := range n.Children {
		t.index(c)
	}
}

// Find returns the node with the given Id, or nil if none exists.
func (t *Tree) Find(id Id) *Node {
	return t.byID[id]
}

// FindByOffset returns the smallest node whose span contains offset, in
// logarithmic time per level of the tree (§3.3, §8 CST position
// invariant).
func (t *Tree) FindByOffset(offset srcpos.Offset) *Node {
	n := t.Root
	if !n.Span.Contains(offset) {
		// Source end (offset == len(source)) tolerates landing on the
		// rightmost leaf's end boundary.
		if offset != n.Span.End {
			return nil
		}
	}
	for len(n.Children) > 0 {
		children := n.Children
		i := sort.Search(len(children), func(i int) bool {
			return children[i].Span.End > offset
		})
		if i == len(children) {
			i = len(children) - 1
		}
		n = children[i]
	}
	return n
}
