// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ember/pkg/ast"
)

func ident(name string) ast.Expr    { return ast.Identifier{Name: name} }
func identPat(name string) ast.Pattern { return ast.PatIdentifier{Name: name} }

// TestLowerModuleBindsUse checks that every module starts with `use` bound
// in scope, ahead of any user-level statements (§4.2).
func TestLowerModuleBindsUse(t *testing.T) {
	body := LowerModule(nil)
	require.NotEmpty(t, body.Entries)

	var found bool
	for _, e := range body.Entries {
		if _, ok := e.Expr.(Lambda); ok {
			found = true
		}
	}
	assert.True(t, found, "expected the synthesized `use` lambda among the module's entries")
}

// TestLowerFunctionCall checks that a top-level call to a user-defined
// function lowers to a HIR Call whose Function resolves via Reference to
// the earlier Lambda binding, with Responsible threaded from the
// enclosing (platform) context.
func TestLowerFunctionCall(t *testing.T) {
	fn := &ast.Function{
		Parameters: []ast.Pattern{identPat("x")},
		Body:       []ast.Expr{ident("x")},
	}
	assignment := ast.Assignment{Form: ast.FunctionForm{Name: "identity", Function: fn}}
	call := ast.Call{Receiver: ident("identity"), Arguments: []ast.Expr{ast.Int{Value: big.NewInt(42)}}}

	body := LowerModule([]ast.Expr{assignment, call})

	var sawLambda, sawCall bool
	for _, e := range body.Entries {
		switch ex := e.Expr.(type) {
		case Lambda:
			if len(ex.Parameters) == 1 {
				sawLambda = true
			}
		case Call:
			if ex.Responsible == PlatformResponsible {
				sawCall = true
			}
		}
	}
	assert.True(t, sawLambda, "expected the identity function's Lambda entry")
	assert.True(t, sawCall, "expected a platform-responsible Call entry")
}

// TestLowerMatchProducesIfElseChain checks that a match with two int-literal
// cases lowers to nested Builtin("IfElse") calls rather than leaving the
// Match node intact (§4.2/§4.3).
func TestLowerMatchProducesIfElseChain(t *testing.T) {
	match := ast.Match{
		Scrutinee: ast.Int{Value: big.NewInt(1)},
		Cases: []ast.MatchCase{
			{Pattern: ast.PatInt{Value: big.NewInt(1)}, Body: []ast.Expr{ast.Int{Value: big.NewInt(100)}}},
			{Pattern: ast.PatWildcard{}, Body: []ast.Expr{ast.Int{Value: big.NewInt(0)}}},
		},
	}

	body := LowerModule([]ast.Expr{match})

	var sawIfElse bool
	for _, e := range body.Entries {
		if b, ok := e.Expr.(Builtin); ok && b.Name == "IfElse" {
			sawIfElse = true
		}
	}
	assert.True(t, sawIfElse, "expected the match to desugar into an IfElse builtin call")
}
