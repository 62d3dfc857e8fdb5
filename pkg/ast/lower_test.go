// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/srcpos"
)

func leaf(id cst.Id, k cst.Kind, text string, start, end int) *cst.Node {
	return &cst.Node{Id: id, Kind: k, Text: text, Span: srcpos.Span{Start: srcpos.Offset(start), End: srcpos.Offset(end)}}
}

// TestLowerPipe builds the CST for `1 | add 2` and checks it desugars to
// `add 1 2` with FromPipe set (§4.1, spec §8 scenario 1 shape).
func TestLowerPipe(t *testing.T) {
	lit1 := leaf(1, cst.KindInt, "1", 0, 1)
	ident := leaf(2, cst.KindIdentifier, "add", 4, 7)
	lit2 := leaf(3, cst.KindInt, "2", 8, 9)
	call := &cst.Node{Id: 4, Kind: cst.KindCall, Span: srcpos.Span{Start: 4, End: 9}, Children: []*cst.Node{ident, lit2}}
	pipe := &cst.Node{Id: 5, Kind: cst.KindPipe, Span: srcpos.Span{Start: 0, End: 9}, Children: []*cst.Node{lit1, call}}

	tree := cst.NewTree("1 | add 2", pipe)
	body, _, errs := Lower(tree)
	require.Empty(t, errs)
	require.Len(t, body, 1)

	call2, ok := body[0].(Call)
	require.True(t, ok, "expected Call, got %T", body[0])
	assert.True(t, call2.FromPipe)
	callee, ok := call2.Receiver.(Identifier)
	require.True(t, ok)
	assert.Equal(t, "add", callee.Name)
	require.Len(t, call2.Arguments, 2)
	arg0, ok := call2.Arguments[0].(Int)
	require.True(t, ok)
	assert.Equal(t, "1", arg0.Value.String())
}

// TestLowerStructShorthand builds `[x]` and checks it desugars to `[x: x]`.
func TestLowerStructShorthand(t *testing.T) {
	x := leaf(1, cst.KindIdentifier, "x", 1, 2)
	structNode := &cst.Node{Id: 2, Kind: cst.KindStruct, Span: srcpos.Span{Start: 0, End: 3}, Children: []*cst.Node{x}}

	tree := cst.NewTree("[x]", structNode)
	body, _, errs := Lower(tree)
	require.Empty(t, errs)
	require.Len(t, body, 1)

	s, ok := body[0].(Struct)
	require.True(t, ok)
	require.Len(t, s.Entries, 1)
	key, ok := s.Entries[0].Key.(Identifier)
	require.True(t, ok)
	value, ok := s.Entries[0].Value.(Identifier)
	require.True(t, ok)
	assert.Equal(t, "x", key.Name)
	assert.Equal(t, "x", value.Name)
}

// TestLowerOrPatternMismatch builds an or-pattern whose alternatives bind
// different identifiers and checks the mismatch is reported.
func TestLowerOrPatternMismatch(t *testing.T) {
	altA := leaf(1, cst.KindIdentifier, "a", 0, 1)
	altB := leaf(2, cst.KindIdentifier, "b", 4, 5)
	orPat := &cst.Node{Id: 3, Kind: cst.KindOrPattern, Span: srcpos.Span{Start: 0, End: 5}, Children: []*cst.Node{altA, altB}}
	wildcardArrow := leaf(4, cst.KindArrow, "->", 6, 8)
	body := leaf(5, cst.KindInt, "1", 9, 10)
	matchCase := &cst.Node{Id: 6, Kind: cst.KindMatchCase, Span: srcpos.Span{Start: 0, End: 10}, Children: []*cst.Node{orPat, wildcardArrow, body}}
	scrutinee := leaf(7, cst.KindInt, "0", 11, 12)
	matchNode := &cst.Node{Id: 8, Kind: cst.KindMatch, Span: srcpos.Span{Start: 0, End: 12}, Children: []*cst.Node{scrutinee, matchCase}}

	tree := cst.NewTree("a|b -> 1 % 0", matchNode)
	_, _, errs := Lower(tree)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, OrPatternMissingIdentifiers, e.Kind)
	}
}
