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

package ast

import (
	"math/big"

	"github.com/kraklabs/ember/pkg/cst"
)

// Lowerer turns a CST into an AST body, desugaring pipes, text
// interpolation, struct shorthand, and validating or-patterns (§4.1).
type Lowerer struct {
	tree            *cst.Tree
	ids             *IdMap
	nextID          Id
	orPatternErrors []CompileError
}

// Lower lowers every top-level item of tree's root into an AST body. The
// returned errors are the pattern diagnostics, or-pattern-missing-identifiers
// and parenthesized-in-pattern (§4.1); all other malformations are embedded
// as ErrorExpr nodes in the body itself.
func Lower(tree *cst.Tree) ([]Expr, *IdMap, []CompileError) {
	l := &Lowerer{tree: tree, ids: newIDMap()}
	body := l.lowerBody(tree.Root)
	return body, l.ids, l.orPatternErrors
}

func (l *Lowerer) freshID(cstID cst.Id) Id {
	id := l.nextID
	l.nextID++
	l.ids.record(id, cstID)
	return id
}

// isTrivia reports whether a CST node kind carries no semantic content
// (whitespace, newlines, comments, the bracket/punctuation tokens that a
// parent composite node already accounts for structurally).
func isTrivia(k cst.Kind) bool {
	switch k {
	case cst.KindWhitespace, cst.KindNewline, cst.KindComment, cst.KindTrailingWhitespace,
		cst.KindComma, cst.KindColon, cst.KindBar, cst.KindArrow,
		cst.KindLParen, cst.KindRParen, cst.KindLBracket, cst.KindRBracket,
		cst.KindLBrace, cst.KindRBrace, cst.KindEquals, cst.KindQuote, cst.KindPercent:
		return true
	default:
		return false
	}
}

func meaningfulChildren(n *cst.Node) []*cst.Node {
	var out []*cst.Node
	for _, c := range n.Children {
		if !isTrivia(c.Kind) {
			out = append(out, c)
		}
	}
	return out
}

// lowerBody lowers every meaningful child of a composite CST node (a
// module root, a function body, or a match-case body) into a sequence of
// AST expressions.
func (l *Lowerer) lowerBody(n *cst.Node) []Expr {
	var body []Expr
	for _, c := range meaningfulChildren(n) {
		body = append(body, l.lowerExpr(c))
	}
	return body
}

func (l *Lowerer) lowerExpr(n *cst.Node) Expr {
	switch n.Kind {
	case cst.KindInt:
		return l.lowerInt(n)
	case cst.KindIdentifier:
		return Identifier{exprBase{l.freshID(n.Id), n.Span}, n.Text}
	case cst.KindSymbol:
		return l.lowerSymbol(n)
	case cst.KindText:
		return l.lowerText(n)
	case cst.KindList:
		return l.lowerList(n)
	case cst.KindStruct:
		return l.lowerStruct(n)
	case cst.KindStructAccess:
		return l.lowerStructAccess(n)
	case cst.KindFunction:
		return l.lowerFunction(n)
	case cst.KindCall:
		return l.lowerCall(n)
	case cst.KindPipe:
		return l.lowerPipe(n)
	case cst.KindAssignment:
		return l.lowerAssignment(n)
	case cst.KindMatch:
		return l.lowerMatch(n)
	case cst.KindParenthesized:
		mc := meaningfulChildren(n)
		if len(mc) == 1 {
			return l.lowerExpr(mc[0])
		}
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "empty parenthesized expression"})
	case cst.KindError:
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: n.Reason})
	default:
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "unexpected node kind in expression position"})
	}
}

func (l *Lowerer) errorExpr(n *cst.Node, errs ...CompileError) ErrorExpr {
	return ErrorExpr{exprBase{l.freshID(n.Id), n.Span}, errs}
}

func (l *Lowerer) lowerInt(n *cst.Node) Expr {
	text := n.Text
	base := 10
	switch {
	case len(text) > 2 && (text[:2] == "0x" || text[:2] == "0X"):
		base, text = 16, text[2:]
	case len(text) > 2 && (text[:2] == "0o" || text[:2] == "0O"):
		base, text = 8, text[2:]
	case len(text) > 2 && (text[:2] == "0b" || text[:2] == "0B"):
		base, text = 2, text[2:]
	}
	v := new(big.Int)
	if _, ok := v.SetString(text, base); !ok {
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "malformed integer literal: " + n.Text})
	}
	return Int{exprBase{l.freshID(n.Id), n.Span}, v}
}

func (l *Lowerer) lowerSymbol(n *cst.Node) Expr {
	mc := meaningfulChildren(n)
	sym := Symbol{exprBase: exprBase{l.freshID(n.Id), n.Span}, Name: n.Text}
	if len(mc) == 1 {
		sym.Value = l.lowerExpr(mc[0])
	}
	return sym
}

// lowerText expands interpolation children into literal/expression parts.
func (l *Lowerer) lowerText(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	var parts []TextPart
	var unterminated bool
	for _, c := range n.Children {
		switch c.Kind {
		case cst.KindTextLiteralPart:
			text := c.Text
			parts = append(parts, TextPart{exprBase: exprBase{l.freshID(c.Id), c.Span}, Literal: &text})
		case cst.KindTextInterpolationExpr:
			mc := meaningfulChildren(c)
			var inner Expr
			if len(mc) == 1 {
				inner = l.lowerExpr(mc[0])
			} else {
				inner = l.errorExpr(c, CompileError{Kind: TextInterpolationMissingClosingBraces, Span: c.Span, Message: "interpolation must contain exactly one expression"})
			}
			parts = append(parts, TextPart{exprBase: exprBase{l.freshID(c.Id), c.Span}, Expr: inner})
		case cst.KindTextClosingQuote:
			// present: well-formed.
		}
	}
	hasClosing := false
	for _, c := range n.Children {
		if c.Kind == cst.KindTextClosingQuote {
			hasClosing = true
		}
	}
	unterminated = !hasClosing
	if unterminated {
		return l.errorExpr(n, CompileError{Kind: TextMissingClosingQuote, Span: n.Span, Message: "text literal is missing its closing quote"})
	}
	return Text{exprBase{id, n.Span}, parts}
}

func (l *Lowerer) lowerList(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	var items []Expr
	closed := false
	sawItem := false
	expectComma := false
	for _, c := range n.Children {
		switch {
		case c.Kind == cst.KindRParen || c.Kind == cst.KindRBracket:
			closed = true
		case c.Kind == cst.KindComma:
			expectComma = false
		case isTrivia(c.Kind):
			continue
		default:
			if sawItem && expectComma {
				items = append(items, l.errorExpr(c, CompileError{Kind: ListItemMissingComma, Span: c.Span, Message: "list items must be separated by a comma"}))
			}
			items = append(items, l.lowerExpr(c))
			sawItem = true
			expectComma = true
		}
	}
	if !closed {
		return l.errorExpr(n, CompileError{Kind: ListMissingClosingParen, Span: n.Span, Message: "list is missing its closing parenthesis"})
	}
	return List{exprBase{id, n.Span}, items}
}

func (l *Lowerer) lowerStruct(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	var entries []StructEntry
	// Group consecutive (key[, colon], value[, comma]) runs by scanning
	// children directly, since colons/commas carry no payload to lower.
	var pending *cst.Node
	for _, c := range n.Children {
		switch c.Kind {
		case cst.KindColon, cst.KindComma, cst.KindLBracket, cst.KindRBracket:
			// structural trivia, skip.
		default:
			if isTrivia(c.Kind) {
				continue
			}
			if pending == nil {
				pending = c
			} else {
				entries = append(entries, l.structEntry(pending, c))
				pending = nil
			}
		}
	}
	if pending != nil {
		// Shorthand `[x]`: desugar to `[x: x]` when the bare key is an
		// identifier (§4.1).
		if pending.Kind == cst.KindIdentifier {
			entries = append(entries, l.structEntry(pending, pending))
		} else {
			entries = append(entries, StructEntry{Value: l.errorExpr(pending, CompileError{Kind: StructValueMissingComma, Span: pending.Span, Message: "struct entry missing a value"})})
		}
	}
	return Struct{exprBase{id, n.Span}, entries}
}

func (l *Lowerer) structEntry(keyNode, valueNode *cst.Node) StructEntry {
	key := l.lowerExpr(keyNode)
	if keyNode == valueNode {
		// shorthand: value is a second reference to the same identifier.
		return StructEntry{Key: key, Value: Identifier{exprBase{l.freshID(valueNode.Id), valueNode.Span}, valueNode.Text}}
	}
	return StructEntry{Key: key, Value: l.lowerExpr(valueNode)}
}

func (l *Lowerer) lowerStructAccess(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	mc := meaningfulChildren(n)
	if len(mc) != 2 || mc[1].Kind != cst.KindIdentifier {
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "malformed struct access"})
	}
	return StructAccess{exprBase{id, n.Span}, l.lowerExpr(mc[0]), mc[1].Text}
}

func (l *Lowerer) lowerFunction(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	var arrowIdx = -1
	for i, c := range n.Children {
		if c.Kind == cst.KindArrow {
			arrowIdx = i
			break
		}
	}
	closed := false
	for _, c := range n.Children {
		if c.Kind == cst.KindRBrace {
			closed = true
		}
	}
	var params []Pattern
	var bodyNodes []*cst.Node
	if arrowIdx < 0 {
		return l.errorExpr(n, CompileError{Kind: ExpectedParameter, Span: n.Span, Message: "function literal is missing its parameter arrow"})
	}
	for _, c := range n.Children[:arrowIdx] {
		if isTrivia(c.Kind) || c.Kind == cst.KindComma {
			continue
		}
		params = append(params, l.lowerPattern(c))
	}
	for _, c := range n.Children[arrowIdx+1:] {
		if isTrivia(c.Kind) {
			continue
		}
		bodyNodes = append(bodyNodes, c)
	}
	var body []Expr
	for _, c := range bodyNodes {
		body = append(body, l.lowerExpr(c))
	}
	if !closed {
		return l.errorExpr(n, CompileError{Kind: FunctionMissingClosingBrace, Span: n.Span, Message: "function literal is missing its closing brace"})
	}
	return Function{exprBase{id, n.Span}, params, body, false}
}

// lowerCall handles a direct call `f a b`: first meaningful child is the
// callee, the rest are arguments.
func (l *Lowerer) lowerCall(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	mc := meaningfulChildren(n)
	if len(mc) == 0 {
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "empty call"})
	}
	receiver := l.lowerExpr(mc[0])
	var args []Expr
	for _, c := range mc[1:] {
		args = append(args, l.lowerExpr(c))
	}
	return Call{exprBase{id, n.Span}, receiver, args, false}
}

// lowerPipe desugars `x | f y` into `f x y` with FromPipe = true (§4.1).
// A CST Pipe node's meaningful children alternate: value, call-or-ident,
// call-or-ident, ...
func (l *Lowerer) lowerPipe(n *cst.Node) Expr {
	mc := meaningfulChildren(n)
	if len(mc) == 0 {
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "empty pipe"})
	}
	result := l.lowerExpr(mc[0])
	for _, stage := range mc[1:] {
		id := l.freshID(stage.Id)
		switch stage.Kind {
		case cst.KindCall:
			smc := meaningfulChildren(stage)
			if len(smc) == 0 {
				result = l.errorExpr(stage, CompileError{Kind: UnexpectedPunctuation, Span: stage.Span, Message: "empty pipe stage"})
				continue
			}
			callee := l.lowerExpr(smc[0])
			args := []Expr{result}
			for _, a := range smc[1:] {
				args = append(args, l.lowerExpr(a))
			}
			result = Call{exprBase{id, stage.Span}, callee, args, true}
		default:
			callee := l.lowerExpr(stage)
			result = Call{exprBase{id, stage.Span}, callee, []Expr{result}, true}
		}
	}
	return result
}

func (l *Lowerer) lowerAssignment(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	mc := meaningfulChildren(n)
	public := len(n.Text) > 0 && n.Text[0] >= 'A' && n.Text[0] <= 'Z'
	if len(mc) < 2 {
		return l.errorExpr(n, CompileError{Kind: ExpectedNameOrPattern, Span: n.Span, Message: "assignment is missing a name/pattern or a value"})
	}
	lhs, rhs := mc[0], mc[1]
	if rhs.Kind == cst.KindFunction && lhs.Kind == cst.KindIdentifier {
		public = len(lhs.Text) > 0 && lhs.Text[0] >= 'A' && lhs.Text[0] <= 'Z'
		fn := l.lowerExpr(rhs)
		fnLit, _ := fn.(Function)
		return Assignment{exprBase{id, n.Span}, public, FunctionForm{Name: lhs.Text, Function: &fnLit}}
	}
	pattern := l.lowerPattern(lhs)
	value := l.lowerExpr(rhs)
	return Assignment{exprBase{id, n.Span}, public, PatternForm{Pattern: pattern, Value: value}}
}

func (l *Lowerer) lowerMatch(n *cst.Node) Expr {
	id := l.freshID(n.Id)
	mc := meaningfulChildren(n)
	if len(mc) == 0 {
		return l.errorExpr(n, CompileError{Kind: UnexpectedPunctuation, Span: n.Span, Message: "empty match"})
	}
	scrutinee := l.lowerExpr(mc[0])
	var cases []MatchCase
	for _, c := range mc[1:] {
		if c.Kind != cst.KindMatchCase {
			continue
		}
		cases = append(cases, l.lowerMatchCase(c))
	}
	return Match{exprBase{id, n.Span}, scrutinee, cases}
}

func (l *Lowerer) lowerMatchCase(n *cst.Node) MatchCase {
	id := l.freshID(n.Id)
	var arrowIdx = -1
	for i, c := range n.Children {
		if c.Kind == cst.KindArrow {
			arrowIdx = i
			break
		}
	}
	if arrowIdx < 0 {
		return MatchCase{exprBase{id, n.Span}, PatWildcard{patternBase{l.freshID(n.Id)}}, nil}
	}
	var patNode *cst.Node
	for _, c := range n.Children[:arrowIdx] {
		if !isTrivia(c.Kind) {
			patNode = c
			break
		}
	}
	var pattern Pattern
	if patNode != nil {
		pattern = l.lowerPattern(patNode)
	} else {
		pattern = PatWildcard{patternBase{l.freshID(n.Id)}}
	}
	var body []Expr
	for _, c := range n.Children[arrowIdx+1:] {
		if isTrivia(c.Kind) {
			continue
		}
		body = append(body, l.lowerExpr(c))
	}
	return MatchCase{exprBase{id, n.Span}, pattern, body}
}

func (l *Lowerer) lowerPattern(n *cst.Node) Pattern {
	switch n.Kind {
	case cst.KindIdentifier:
		if n.Text == "_" {
			return PatWildcard{patternBase{l.freshID(n.Id)}}
		}
		return PatIdentifier{patternBase{l.freshID(n.Id)}, n.Text}
	case cst.KindInt:
		v := new(big.Int)
		v.SetString(n.Text, 10)
		return PatInt{patternBase{l.freshID(n.Id)}, v}
	case cst.KindText:
		return PatText{patternBase{l.freshID(n.Id)}, cst.SourceText(n)}
	case cst.KindSymbol:
		mc := meaningfulChildren(n)
		var value Pattern
		if len(mc) == 1 {
			value = l.lowerPattern(mc[0])
		}
		return PatSymbol{patternBase{l.freshID(n.Id)}, n.Text, value}
	case cst.KindList:
		var items []Pattern
		for _, c := range meaningfulChildren(n) {
			items = append(items, l.lowerPattern(c))
		}
		return PatList{patternBase{l.freshID(n.Id)}, items}
	case cst.KindStruct:
		var entries []PatStructEntry
		var pending *cst.Node
		for _, c := range n.Children {
			if isTrivia(c.Kind) {
				continue
			}
			if pending == nil {
				pending = c
				continue
			}
			entries = append(entries, PatStructEntry{Key: pending.Text, Pattern: l.lowerPattern(c)})
			pending = nil
		}
		if pending != nil {
			entries = append(entries, PatStructEntry{Key: pending.Text, Pattern: PatIdentifier{patternBase{l.freshID(pending.Id)}, pending.Text}})
		}
		return PatStruct{patternBase{l.freshID(n.Id)}, entries}
	case cst.KindOrPattern:
		return l.lowerOrPattern(n)
	case cst.KindParenthesized:
		// Parenthesized sub-patterns are a hard error (§4.1 taxonomy:
		// parenthesized-in-pattern); still produce a usable wildcard so
		// downstream stages continue.
		l.orPatternErrors = append(l.orPatternErrors, CompileError{Kind: ParenthesizedInPattern, Span: n.Span, Message: "patterns cannot be parenthesized"})
		return PatWildcard{patternBase{l.freshID(n.Id)}}
	default:
		return PatWildcard{patternBase{l.freshID(n.Id)}}
	}
}

// lowerOrPattern lowers each alternative and validates that every
// alternative binds exactly the same set of identifiers, emitting
// or-pattern-missing-identifiers otherwise (§4.1).
func (l *Lowerer) lowerOrPattern(n *cst.Node) Pattern {
	var alts []Pattern
	for _, c := range meaningfulChildren(n) {
		alts = append(alts, l.lowerPattern(c))
	}
	if len(alts) == 0 {
		return PatWildcard{patternBase{l.freshID(n.Id)}}
	}
	reference := stringSet(Capture(alts[0]))
	for _, alt := range alts[1:] {
		got := stringSet(Capture(alt))
		missing := diff(reference, got)
		extra := diff(got, reference)
		if len(missing) > 0 || len(extra) > 0 {
			for _, name := range append(missing, extra...) {
				l.orPatternErrors = append(l.orPatternErrors, CompileError{
					Kind:       OrPatternMissingIdentifiers,
					Span:       n.Span,
					Message:    "every alternative of an or-pattern must bind the same identifiers",
					Identifier: name,
					Count:      len(alts),
					Captures:   Capture(alt),
				})
			}
		}
	}
	return PatOr{patternBase{l.freshID(n.Id)}, alts}
}

func stringSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func diff(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	return out
}
