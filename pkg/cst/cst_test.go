// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ember/pkg/srcpos"
)

// buildSample builds the CST for source `1 | add 2`, which desugars to a
// pipe over a call (§4.1 example). Spans are computed by hand to keep the
// fixture self-contained and out of the (out-of-scope) lexer.
func buildSample() (string, *Tree) {
	source := "1 | add 2"
	lit1 := &Node{Id: 1, Kind: KindInt, Text: "1", Span: srcpos.Span{Start: 0, End: 1}}
	ws1 := &Node{Id: 2, Kind: KindWhitespace, Text: " ", Span: srcpos.Span{Start: 1, End: 2}}
	bar := &Node{Id: 3, Kind: KindBar, Text: "|", Span: srcpos.Span{Start: 2, End: 3}}
	ws2 := &Node{Id: 4, Kind: KindWhitespace, Text: " ", Span: srcpos.Span{Start: 3, End: 4}}
	ident := &Node{Id: 5, Kind: KindIdentifier, Text: "add", Span: srcpos.Span{Start: 4, End: 7}}
	ws3 := &Node{Id: 6, Kind: KindWhitespace, Text: " ", Span: srcpos.Span{Start: 7, End: 8}}
	lit2 := &Node{Id: 7, Kind: KindInt, Text: "2", Span: srcpos.Span{Start: 8, End: 9}}

	root := &Node{
		Id:   0,
		Kind: KindPipe,
		Span: srcpos.Span{Start: 0, End: 9},
		Children: []*Node{
			lit1, ws1, bar, ws2, ident, ws3, lit2,
		},
	}
	return source, NewTree(source, root)
}

func TestRoundTrip(t *testing.T) {
	source, tree := buildSample()
	assert.Equal(t, source, SourceText(tree.Root))
}

func TestFindByOffset(t *testing.T) {
	_, tree := buildSample()

	for offset := srcpos.Offset(0); offset < srcpos.Offset(9); offset++ {
		n := tree.FindByOffset(offset)
		require.NotNil(t, n, "offset %d", offset)
		assert.True(t, n.Span.Contains(offset), "offset %d not in span %v", offset, n.Span)
	}

	ident := tree.FindByOffset(5)
	require.NotNil(t, ident)
	assert.Equal(t, KindIdentifier, ident.Kind)
	assert.Equal(t, "add", ident.Text)
}

func TestFind(t *testing.T) {
	_, tree := buildSample()
	n := tree.Find(5)
	require.NotNil(t, n)
	assert.Equal(t, "add", n.Text)

	assert.Nil(t, tree.Find(999))
}
